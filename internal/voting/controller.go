package voting

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
	"github.com/R3E-Network/voting_client/internal/journal"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// ControllerConfig configures a Controller.
type ControllerConfig struct {
	Repository *Repository
	Submitter  *Submitter
	// Journal records every operation; nil keeps an in-memory journal.
	Journal journal.Store
	Logger  *logger.Logger
	// Now defaults to time.Now.
	Now func() time.Time
}

// Controller runs operations through validation and submission and owns the
// per-flow state of the create, listing and vote flows.
type Controller struct {
	repo      *Repository
	submitter *Submitter
	journal   journal.Store
	log       *logger.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]struct{}
}

// NewController creates a Controller.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if cfg.Repository == nil {
		return nil, fmt.Errorf("controller: repository is required")
	}
	if cfg.Submitter == nil {
		return nil, fmt.Errorf("controller: submitter is required")
	}
	j := cfg.Journal
	if j == nil {
		j = journal.NewMemoryStore()
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("voting.controller")
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Controller{
		repo:      cfg.Repository,
		submitter: cfg.Submitter,
		journal:   j,
		log:       log,
		now:       now,
		inflight:  make(map[string]struct{}),
	}, nil
}

// Repository returns the session repository.
func (c *Controller) Repository() *Repository { return c.repo }

// Now returns the controller's current unix time.
func (c *Controller) Now() int64 { return c.now().Unix() }

// Operations lists journaled operations.
func (c *Controller) Operations(ctx context.Context, filter journal.Filter) ([]*domain.Operation, error) {
	return c.journal.List(ctx, filter)
}

// Operation returns one journaled operation.
func (c *Controller) Operation(ctx context.Context, id string) (*domain.Operation, error) {
	return c.journal.Get(ctx, id)
}

// Outcome is the result of one Execute call.
type Outcome struct {
	Operation  *domain.Operation
	Validation ValidationResult
	Result     OperationResult
}

// Err returns the error that ended the operation, or nil if it was confirmed.
func (o Outcome) Err() error {
	if !o.Validation.Valid {
		return o.Validation.Err()
	}
	return o.Result.Err
}

// Execute validates payload and, if valid, submits it with wallet. The
// operation is journaled at every transition. A second Execute with the same
// kind, wallet and payload while the first is in flight fails with
// OperationInFlight; different payloads run concurrently.
func (c *Controller) Execute(ctx context.Context, kind domain.OperationKind, payload interface{}, wallet chain.Wallet) Outcome {
	return c.execute(ctx, kind, payload, wallet, nil)
}

func (c *Controller) execute(ctx context.Context, kind domain.OperationKind, payload interface{}, wallet chain.Wallet, onSubmit func()) Outcome {
	key := inflightKey(kind, payload, wallet)
	if !c.acquire(key) {
		err := errors.OperationInFlight(string(kind))
		return Outcome{
			Validation: ValidationResult{Valid: true},
			Result:     OperationResult{Kind: kind, Status: domain.StatusFailed, Err: err},
		}
	}
	defer c.release(key)

	now := c.now()
	op, err := domain.NewOperation(kind, payload, now)
	if err != nil {
		se := errors.InvalidOperation(string(kind))
		se.Err = err
		return Outcome{
			Validation: ValidationResult{Valid: false, FieldErrors: map[string]string{"kind": se.Message}, Errors: []*errors.ServiceError{se}},
			Result:     OperationResult{Kind: kind, Status: domain.StatusFailed, Err: se},
		}
	}
	if wallet.PublicKey != nil {
		op.Wallet = wallet.PublicKey.String()
	}
	op.SessionAddress = sessionAddressOf(payload)

	ctx = logger.ContextWithOperationID(ctx, op.ID)
	log := c.log.WithContext(ctx).WithField("kind", string(kind))
	c.record(ctx, op)

	c.advance(ctx, op, domain.StatusValidating)
	validation := Validate(kind, payload, now.Unix())
	if !validation.Valid {
		first := validation.Errors[0]
		c.fail(ctx, op, string(first.Code), first.Message, "")
		log.WithField("fields", validation.FieldErrors).Info("operation rejected by validation")
		return Outcome{Operation: op, Validation: validation, Result: OperationResult{Kind: kind, Status: domain.StatusFailed, Err: first}}
	}

	if !wallet.CanSign() {
		se := errors.NoWalletConnected()
		c.fail(ctx, op, string(se.Code), se.Message, "")
		return Outcome{Operation: op, Validation: validation, Result: OperationResult{Kind: kind, Status: domain.StatusFailed, Err: se}}
	}

	c.advance(ctx, op, domain.StatusSubmitted)
	if onSubmit != nil {
		onSubmit()
	}
	log.Debug("operation submitted")

	res := c.submitter.Submit(ctx, kind, payload, wallet)
	if res.SessionAddress != "" {
		op.SessionAddress = res.SessionAddress
	}
	if res.OK() {
		if err := op.Confirm(res.TxID, c.now()); err != nil {
			log.WithError(err).Error("confirm operation")
		}
	} else {
		code, msg := string(errors.CodeTransportFailure), ""
		if se := errors.GetServiceError(res.Err); se != nil {
			code, msg = string(se.Code), se.Message
		} else if res.Err != nil {
			msg = res.Err.Error()
		}
		if err := op.Fail(code, msg, res.TxID, c.now()); err != nil {
			log.WithError(err).Error("fail operation")
		}
	}
	c.record(ctx, op)

	return Outcome{Operation: op, Validation: validation, Result: res}
}

func (c *Controller) advance(ctx context.Context, op *domain.Operation, to domain.OperationStatus) {
	if err := op.Advance(to, c.now()); err != nil {
		c.log.WithContext(ctx).WithError(err).Error("advance operation")
		return
	}
	c.record(ctx, op)
}

func (c *Controller) fail(ctx context.Context, op *domain.Operation, code, message, txID string) {
	if err := op.Fail(code, message, txID, c.now()); err != nil {
		c.log.WithContext(ctx).WithError(err).Error("fail operation")
		return
	}
	c.record(ctx, op)
}

// record journals op. Journal failures are logged and do not affect the
// operation, whose remote effect may already have happened.
func (c *Controller) record(ctx context.Context, op *domain.Operation) {
	if err := c.journal.Save(ctx, op); err != nil {
		c.log.WithContext(ctx).WithError(err).Warn("journal operation failed")
	}
}

func (c *Controller) acquire(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.inflight[key]; busy {
		return false
	}
	c.inflight[key] = struct{}{}
	return true
}

func (c *Controller) release(key string) {
	c.mu.Lock()
	delete(c.inflight, key)
	c.mu.Unlock()
}

// inflightKey identifies a trigger by kind, signer and the payload's JSON
// encoding, which is also what the journal stores.
func inflightKey(kind domain.OperationKind, payload interface{}, wallet chain.Wallet) string {
	w := ""
	if wallet.PublicKey != nil {
		w = wallet.PublicKey.String()
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		raw = []byte(fmt.Sprintf("%#v", payload))
	}
	sum := sha256.Sum256(raw)
	return string(kind) + "|" + w + "|" + hex.EncodeToString(sum[:])
}

func sessionAddressOf(payload interface{}) string {
	if in, ok := asVote(payload); ok {
		return in.SessionAddress
	}
	if in, ok := asClose(payload); ok {
		return in.SessionAddress
	}
	return ""
}
