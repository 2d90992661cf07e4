package voting

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OperationKind is the kind of client-initiated request.
type OperationKind string

const (
	OperationCreate OperationKind = "create"
	OperationVote   OperationKind = "vote"
	OperationClose  OperationKind = "close"
)

// Valid reports whether k is a known kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OperationCreate, OperationVote, OperationClose:
		return true
	}
	return false
}

// OperationStatus tracks an operation through submission.
type OperationStatus string

const (
	StatusDraft      OperationStatus = "draft"
	StatusValidating OperationStatus = "validating"
	StatusSubmitted  OperationStatus = "submitted"
	StatusConfirmed  OperationStatus = "confirmed"
	StatusFailed     OperationStatus = "failed"
)

// Terminal reports whether no further transition is possible.
func (s OperationStatus) Terminal() bool {
	return s == StatusConfirmed || s == StatusFailed
}

var transitions = map[OperationStatus][]OperationStatus{
	StatusDraft:      {StatusValidating},
	StatusValidating: {StatusSubmitted, StatusFailed},
	StatusSubmitted:  {StatusConfirmed, StatusFailed},
}

// CanTransition reports whether from -> to is allowed.
func CanTransition(from, to OperationStatus) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Operation is a client-local record of one create, vote or close request.
type Operation struct {
	ID             string          `json:"id" db:"id"`
	Kind           OperationKind   `json:"kind" db:"kind"`
	Status         OperationStatus `json:"status" db:"status"`
	Wallet         string          `json:"wallet,omitempty" db:"wallet"`
	SessionAddress string          `json:"session_address,omitempty" db:"session_address"`
	Payload        json.RawMessage `json:"payload,omitempty" db:"payload"`
	TxID           string          `json:"tx_id,omitempty" db:"tx_id"`
	ErrorCode      string          `json:"error_code,omitempty" db:"error_code"`
	ErrorMessage   string          `json:"error_message,omitempty" db:"error_message"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// NewOperation returns a Draft operation carrying payload encoded as JSON.
func NewOperation(kind OperationKind, payload interface{}, now time.Time) (*Operation, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("unknown operation kind %q", kind)
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", kind, err)
	}
	return &Operation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Status:    StatusDraft,
		Payload:   raw,
		CreatedAt: now.UTC(),
		UpdatedAt: now.UTC(),
	}, nil
}

// Advance moves the operation to status to.
func (o *Operation) Advance(to OperationStatus, now time.Time) error {
	if !CanTransition(o.Status, to) {
		return fmt.Errorf("operation %s: invalid transition %s -> %s", o.ID, o.Status, to)
	}
	o.Status = to
	o.UpdatedAt = now.UTC()
	return nil
}

// Confirm records the transaction id and moves to Confirmed.
func (o *Operation) Confirm(txID string, now time.Time) error {
	if err := o.Advance(StatusConfirmed, now); err != nil {
		return err
	}
	o.TxID = txID
	return nil
}

// Fail records the error classification and moves to Failed. txID may be
// empty when the transaction never reached the ledger.
func (o *Operation) Fail(code, message, txID string, now time.Time) error {
	if err := o.Advance(StatusFailed, now); err != nil {
		return err
	}
	o.ErrorCode = code
	o.ErrorMessage = message
	if txID != "" {
		o.TxID = txID
	}
	return nil
}
