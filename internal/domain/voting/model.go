package voting

import (
	"math"
	"strings"
)

// Limits on a session's options, mirroring the ledger program.
const (
	MinOptions = 1
	MaxOptions = 10
)

// DefaultSessionDuration is how far in the future a new session closes unless
// the caller picks a time (seconds).
const DefaultSessionDuration = 3600

// Option is one selectable choice within a session and its running tally.
// Index is the option's position as stored on chain and is what a vote names.
type Option struct {
	Index int    `json:"index"`
	Label string `json:"label"`
	Count int64  `json:"count"`
}

// Session is a read-only snapshot of a voting session account.
type Session struct {
	Address       string   `json:"address"`
	Creator       string   `json:"creator"`
	CloseTime     int64    `json:"close_time"`
	IsPrivate     bool     `json:"is_private"`
	AllowedVoters []string `json:"allowed_voters,omitempty"`
	Options       []Option `json:"options"`
}

// VoterPolicy describes who may vote in a session.
type VoterPolicy string

const (
	VoterPolicyPublic    VoterPolicy = "public"
	VoterPolicyAllowList VoterPolicy = "allow_list"
	// VoterPolicyUnconfirmed is a private session with no listed voters. The
	// ledger program's behavior for this case is not established, so callers
	// must not assume it is open or closed to everyone.
	VoterPolicyUnconfirmed VoterPolicy = "unconfirmed"
)

// Labels returns the option labels in index order.
func (s Session) Labels() []string {
	out := make([]string, len(s.Options))
	for i, o := range s.Options {
		out[i] = o.Label
	}
	return out
}

// IsOpenAt reports whether the session still accepts votes at unix time now.
func (s Session) IsOpenAt(now int64) bool {
	return s.CloseTime > now
}

// VoterPolicy returns the session's voter policy.
func (s Session) VoterPolicy() VoterPolicy {
	switch {
	case !s.IsPrivate:
		return VoterPolicyPublic
	case len(s.AllowedVoters) > 0:
		return VoterPolicyAllowList
	default:
		return VoterPolicyUnconfirmed
	}
}

// AllowsVoter reports whether addr may vote. Unconfirmed policies report false.
func (s Session) AllowsVoter(addr string) bool {
	switch s.VoterPolicy() {
	case VoterPolicyPublic:
		return true
	case VoterPolicyAllowList:
		for _, v := range s.AllowedVoters {
			if v == addr {
				return true
			}
		}
	}
	return false
}

// TotalVotes sums the option tallies, saturating at math.MaxInt64.
func (s Session) TotalVotes() int64 {
	var total int64
	for _, o := range s.Options {
		if o.Count > math.MaxInt64-total {
			return math.MaxInt64
		}
		total += o.Count
	}
	return total
}

// Leader returns the option with the most votes; ties go to the lowest index.
func (s Session) Leader() (Option, bool) {
	if len(s.Options) == 0 {
		return Option{}, false
	}
	best := s.Options[0]
	for _, o := range s.Options[1:] {
		if o.Count > best.Count {
			best = o
		}
	}
	return best, true
}

// MatchesAddress reports whether the session address contains sub, ignoring case.
func (s Session) MatchesAddress(sub string) bool {
	return strings.Contains(strings.ToLower(s.Address), strings.ToLower(sub))
}

// Clone returns a deep copy.
func (s Session) Clone() Session {
	out := s
	if s.AllowedVoters != nil {
		out.AllowedVoters = append([]string(nil), s.AllowedVoters...)
	}
	if s.Options != nil {
		out.Options = append([]Option(nil), s.Options...)
	}
	return out
}
