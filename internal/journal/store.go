// Package journal records operations and their status transitions.
package journal

import (
	"context"
	"errors"

	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
)

// ErrNotFound is returned when no operation has the requested id.
var ErrNotFound = errors.New("operation not found")

// DefaultListLimit caps List when Filter.Limit is zero.
const DefaultListLimit = 100

// Filter narrows List. Zero fields match everything.
type Filter struct {
	Kind           domain.OperationKind
	Status         domain.OperationStatus
	SessionAddress string
	Wallet         string
	Limit          int
}

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return DefaultListLimit
	}
	return f.Limit
}

func (f Filter) matches(op *domain.Operation) bool {
	return (f.Kind == "" || op.Kind == f.Kind) &&
		(f.Status == "" || op.Status == f.Status) &&
		(f.SessionAddress == "" || op.SessionAddress == f.SessionAddress) &&
		(f.Wallet == "" || op.Wallet == f.Wallet)
}

// Store persists operations. Save inserts or replaces by id.
type Store interface {
	Save(ctx context.Context, op *domain.Operation) error
	Get(ctx context.Context, id string) (*domain.Operation, error)
	// List returns matching operations, most recently created first.
	List(ctx context.Context, filter Filter) ([]*domain.Operation, error)
}
