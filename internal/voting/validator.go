// Package voting implements the session lifecycle: front-validation of create,
// vote and close requests, decoding of session accounts, session reads, and
// submission of operations to the ledger program.
package voting

import (
	"regexp"
	"strings"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
)

// Field names used in ValidationResult.FieldErrors.
const (
	FieldLabels         = "labels"
	FieldCloseTime      = "closeTime"
	FieldAllowedVoters  = "allowedVoters"
	FieldChoiceIndex    = "choiceIndex"
	FieldSessionAddress = "sessionAddress"
)

var (
	labelPattern = regexp.MustCompile(`^[A-Za-z0-9 ]+$`)
	// 32-44 characters from the base58 alphabet, comma separated.
	addressListPattern = regexp.MustCompile(`^\s*[1-9A-HJ-NP-Za-km-z]{32,44}\s*(,\s*[1-9A-HJ-NP-Za-km-z]{32,44}\s*)*$`)
)

// CreateInput is the raw create form.
type CreateInput struct {
	Labels        string `json:"labels"`
	CloseTime     int64  `json:"close_time"`
	IsPrivate     bool   `json:"is_private"`
	AllowedVoters string `json:"allowed_voters,omitempty"`
}

// VoteInput is a vote request. OptionCount and SessionCloseTime describe the
// target session as last read: OptionCount bounds ChoiceIndex, and a non-zero
// SessionCloseTime at or before now rejects the vote as SessionClosed.
type VoteInput struct {
	SessionAddress   string `json:"session_address"`
	ChoiceIndex      *int   `json:"choice_index"`
	OptionCount      int    `json:"-"`
	SessionCloseTime int64  `json:"-"`
}

// CloseInput is a close request.
type CloseInput struct {
	SessionAddress string `json:"session_address"`
}

// ValidationResult is the outcome of Validate. FieldErrors maps a field name to
// a user-facing message; Errors holds the typed errors in the order found.
type ValidationResult struct {
	Valid       bool
	FieldErrors map[string]string
	Errors      []*errors.ServiceError
}

// Err returns the first error, or nil when the input is valid.
func (r ValidationResult) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

func (r *ValidationResult) add(field string, err *errors.ServiceError) {
	if r.FieldErrors == nil {
		r.FieldErrors = make(map[string]string)
	}
	if _, exists := r.FieldErrors[field]; !exists {
		r.FieldErrors[field] = err.Message
	}
	r.Errors = append(r.Errors, err)
	r.Valid = false
}

// Validate checks payload for kind against now (unix seconds). It never
// touches the network. payload must be CreateInput, VoteInput or CloseInput
// (or a pointer to one) matching kind.
func Validate(kind domain.OperationKind, payload interface{}, now int64) ValidationResult {
	res := ValidationResult{Valid: true}
	switch kind {
	case domain.OperationCreate:
		switch in := payload.(type) {
		case CreateInput:
			validateCreate(&res, in, now)
		case *CreateInput:
			validateCreate(&res, *in, now)
		default:
			res.add(FieldLabels, errors.InvalidLabels("missing create input"))
		}
	case domain.OperationVote:
		switch in := payload.(type) {
		case VoteInput:
			validateVote(&res, in, now)
		case *VoteInput:
			validateVote(&res, *in, now)
		default:
			res.add(FieldChoiceIndex, errors.NoChoiceSelected())
		}
	case domain.OperationClose:
		switch in := payload.(type) {
		case CloseInput:
			validateSessionAddress(&res, in.SessionAddress)
		case *CloseInput:
			validateSessionAddress(&res, in.SessionAddress)
		default:
			validateSessionAddress(&res, "")
		}
	default:
		res.add("kind", errors.InvalidOperation(string(kind)))
	}
	return res
}

// SplitLabels splits a comma separated label list, trimming entries and
// dropping empty ones.
func SplitLabels(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// SplitAddresses splits a comma separated address list.
func SplitAddresses(raw string) []string {
	return SplitLabels(raw)
}

func validateCreate(res *ValidationResult, in CreateInput, now int64) {
	labels := SplitLabels(in.Labels)
	switch {
	case len(labels) < domain.MinOptions || len(labels) > domain.MaxOptions:
		res.add(FieldLabels, errors.InvalidLabels("must supply between 1 and 10 labels"))
	default:
		for _, l := range labels {
			if !labelPattern.MatchString(l) {
				res.add(FieldLabels, errors.InvalidLabels("labels may contain only letters, digits and spaces").
					WithDetails("label", l))
				break
			}
		}
	}

	if in.CloseTime <= now {
		res.add(FieldCloseTime, errors.PastCloseTime(in.CloseTime, now))
	}

	if in.IsPrivate {
		if !addressListPattern.MatchString(in.AllowedVoters) {
			res.add(FieldAllowedVoters, errors.InvalidAddressList("enter a comma-separated list of base58 addresses"))
			return
		}
		for _, token := range SplitAddresses(in.AllowedVoters) {
			if _, err := chain.ParseAddress(token); err != nil {
				res.add(FieldAllowedVoters, errors.MalformedAddress(FieldAllowedVoters, token, err))
				return
			}
		}
	}
}

func validateVote(res *ValidationResult, in VoteInput, now int64) {
	validateSessionAddress(res, in.SessionAddress)
	if in.SessionCloseTime != 0 && in.SessionCloseTime <= now {
		res.add(FieldSessionAddress, errors.SessionClosed(in.SessionAddress))
	}
	switch {
	case in.ChoiceIndex == nil:
		res.add(FieldChoiceIndex, errors.NoChoiceSelected())
	case *in.ChoiceIndex < 0 || *in.ChoiceIndex >= in.OptionCount:
		res.add(FieldChoiceIndex, errors.ChoiceOutOfRange(*in.ChoiceIndex, in.OptionCount))
	}
}

func validateSessionAddress(res *ValidationResult, addr string) {
	if _, err := chain.ParseAddress(strings.TrimSpace(addr)); err != nil {
		res.add(FieldSessionAddress, errors.MalformedAddress(FieldSessionAddress, addr, err))
	}
}
