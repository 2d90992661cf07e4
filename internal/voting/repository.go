package voting

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
	"github.com/R3E-Network/voting_client/internal/metrics"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// Reader is the ledger read capability.
type Reader interface {
	FetchAllSessions(ctx context.Context) ([]chain.ProgramAccount, error)
	FetchSession(ctx context.Context, addr chain.Address) (chain.ProgramAccount, error)
}

var _ Reader = (*chain.VotingProgram)(nil)

// RepositoryConfig configures a Repository.
type RepositoryConfig struct {
	Reader Reader
	Logger *logger.Logger
}

// Repository reads sessions from the ledger. It holds no session state; every
// call reflects the ledger at the time of the call.
type Repository struct {
	reader Reader
	log    *logger.Logger
}

// NewRepository creates a Repository.
func NewRepository(cfg RepositoryConfig) (*Repository, error) {
	if cfg.Reader == nil {
		return nil, fmt.Errorf("repository: reader is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("voting.repository")
	}
	return &Repository{reader: cfg.Reader, log: log}, nil
}

// FetchAll returns every session. If any account fails to decode the whole
// call fails; a partial snapshot is never returned.
func (r *Repository) FetchAll(ctx context.Context) ([]domain.Session, error) {
	accounts, err := r.reader.FetchAllSessions(ctx)
	if err != nil {
		r.log.WithContext(ctx).WithError(err).Warn("fetch sessions failed")
		return nil, errors.FetchFailed(err)
	}

	sessions := make([]domain.Session, 0, len(accounts))
	for _, acct := range accounts {
		s, err := ToDomain(acct)
		if err != nil {
			r.log.WithContext(ctx).WithError(err).WithField("address", acct.Address.String()).Warn("decode session failed")
			return nil, err
		}
		sessions = append(sessions, s)
	}

	r.log.WithContext(ctx).WithField("count", len(sessions)).Debug("fetched sessions")
	return sessions, nil
}

// FetchOne returns the session at address.
func (r *Repository) FetchOne(ctx context.Context, address string) (domain.Session, error) {
	addr, err := chain.ParseAddress(strings.TrimSpace(address))
	if err != nil {
		return domain.Session{}, errors.MalformedAddress(FieldSessionAddress, address, err)
	}

	acct, err := r.reader.FetchSession(ctx, addr)
	if err != nil {
		if stderrors.Is(err, chain.ErrAccountNotFound) {
			return domain.Session{}, errors.SessionNotFound(addr.String())
		}
		r.log.WithContext(ctx).WithError(err).WithField("address", addr.String()).Warn("fetch session failed")
		return domain.Session{}, errors.FetchFailed(err)
	}
	return ToDomain(acct)
}

// FetchOpen returns the sessions still open at now.
func (r *Repository) FetchOpen(ctx context.Context, now int64) ([]domain.Session, error) {
	all, err := r.FetchAll(ctx)
	if err != nil {
		return nil, err
	}
	open := OpenAsOf(now, all)
	metrics.SetOpenSessions(len(open))
	return open, nil
}

// OpenAsOf returns the sessions whose close time is after now, in input order.
// sessions is not modified.
func OpenAsOf(now int64, sessions []domain.Session) []domain.Session {
	out := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.IsOpenAt(now) {
			out = append(out, s)
		}
	}
	return out
}

// SearchByAddress returns the sessions whose address contains sub, ignoring
// case. An empty sub matches every session.
func SearchByAddress(sub string, sessions []domain.Session) []domain.Session {
	sub = strings.TrimSpace(sub)
	out := make([]domain.Session, 0, len(sessions))
	for _, s := range sessions {
		if sub == "" || s.MatchesAddress(sub) {
			out = append(out, s)
		}
	}
	return out
}
