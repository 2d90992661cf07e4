package voting

import (
	"context"
	"sync"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
)

// FlowState is the state of a user-facing flow.
type FlowState string

const (
	StateIdle       FlowState = "idle"
	StateValidating FlowState = "validating"
	StateSubmitting FlowState = "submitting"
	StateSucceeded  FlowState = "succeeded"
	StateFailed     FlowState = "failed"
)

// FlowStatus is a snapshot of a flow's transient state.
type FlowStatus struct {
	State       FlowState         `json:"state"`
	Message     string            `json:"message,omitempty"`
	FieldErrors map[string]string `json:"field_errors,omitempty"`
	TxID        string            `json:"tx_id,omitempty"`
	ExplorerURL string            `json:"explorer_url,omitempty"`
}

// flowMachine holds the Idle -> Validating -> Submitting -> Succeeded|Failed
// machine shared by the flows.
type flowMachine struct {
	mu     sync.Mutex
	status FlowStatus
}

func newFlowMachine() *flowMachine {
	return &flowMachine{status: FlowStatus{State: StateIdle}}
}

func (m *flowMachine) snapshot() FlowStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := m.status
	if s.FieldErrors != nil {
		fe := make(map[string]string, len(s.FieldErrors))
		for k, v := range s.FieldErrors {
			fe[k] = v
		}
		s.FieldErrors = fe
	}
	return s
}

// begin moves Idle, Succeeded or Failed to Validating. It refuses while a
// previous trigger is still validating or submitting.
func (m *flowMachine) begin(kind domain.OperationKind) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.status.State == StateValidating || m.status.State == StateSubmitting {
		return errors.OperationInFlight(string(kind))
	}
	m.status = FlowStatus{State: StateValidating}
	return nil
}

func (m *flowMachine) submitting() {
	m.mu.Lock()
	m.status.State = StateSubmitting
	m.mu.Unlock()
}

// finish applies an Execute outcome.
func (m *flowMachine) finish(out Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch {
	case !out.Validation.Valid:
		m.status = FlowStatus{State: StateIdle, FieldErrors: out.Validation.FieldErrors}
	case out.Result.OK():
		m.status = FlowStatus{State: StateSucceeded, TxID: out.Result.TxID, ExplorerURL: out.Result.ExplorerURL}
	default:
		msg := ""
		if out.Result.Err != nil {
			msg = out.Result.Err.Error()
			if se := errors.GetServiceError(out.Result.Err); se != nil {
				msg = se.Message
			}
		}
		m.status = FlowStatus{State: StateFailed, Message: msg, TxID: out.Result.TxID, ExplorerURL: out.Result.ExplorerURL}
	}
}

// edited returns a settled flow to a clean Idle: Succeeded and Failed reset,
// and field errors from a rejected submit are cleared.
func (m *flowMachine) edited() {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.status.State {
	case StateIdle, StateSucceeded, StateFailed:
		m.status = FlowStatus{State: StateIdle}
	}
}

func rejected(kind domain.OperationKind, err error) Outcome {
	return Outcome{
		Validation: ValidationResult{Valid: true},
		Result:     OperationResult{Kind: kind, Status: domain.StatusFailed, Err: err},
	}
}

// =============================================================================
// Create
// =============================================================================

// CreateFlow is the create-session form.
type CreateFlow struct {
	ctrl    *Controller
	machine *flowMachine

	mu      sync.Mutex
	form    CreateInput
	created string
}

// NewCreateFlow returns a flow whose close time defaults to one hour from now.
func (c *Controller) NewCreateFlow() *CreateFlow {
	return &CreateFlow{
		ctrl:    c,
		machine: newFlowMachine(),
		form:    CreateInput{CloseTime: c.Now() + domain.DefaultSessionDuration},
	}
}

// Form returns the current form values.
func (f *CreateFlow) Form() CreateInput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.form
}

// Edit changes the form. Form values are kept across submissions; a finished
// submission's messages are cleared.
func (f *CreateFlow) Edit(fn func(*CreateInput)) {
	f.mu.Lock()
	fn(&f.form)
	f.mu.Unlock()
	f.machine.edited()
}

// Status returns the flow state.
func (f *CreateFlow) Status() FlowStatus { return f.machine.snapshot() }

// CreatedSession returns the address of the last session created by the flow.
func (f *CreateFlow) CreatedSession() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.created
}

// Submit validates and submits the form.
func (f *CreateFlow) Submit(ctx context.Context, wallet chain.Wallet) Outcome {
	if err := f.machine.begin(domain.OperationCreate); err != nil {
		return rejected(domain.OperationCreate, err)
	}
	out := f.ctrl.execute(ctx, domain.OperationCreate, f.Form(), wallet, f.machine.submitting)
	if out.Result.OK() {
		f.mu.Lock()
		f.created = out.Result.SessionAddress
		f.mu.Unlock()
	}
	f.machine.finish(out)
	return out
}

// =============================================================================
// Listing
// =============================================================================

// ListingFlow holds the open sessions and closes them on request. A close
// removes the session from the list at once and puts it back if the close
// fails; errors are kept per session.
type ListingFlow struct {
	ctrl *Controller

	mu         sync.Mutex
	sessions   []domain.Session
	filter     string
	loadErr    error
	itemErrors map[string]string
	closing    map[string]bool
}

// NewListingFlow returns an empty listing.
func (c *Controller) NewListingFlow() *ListingFlow {
	return &ListingFlow{
		ctrl:       c,
		itemErrors: make(map[string]string),
		closing:    make(map[string]bool),
	}
}

// Refresh replaces the list with the sessions open now. On failure the
// previous list is kept and the error is returned.
func (f *ListingFlow) Refresh(ctx context.Context) error {
	sessions, err := f.ctrl.repo.FetchOpen(ctx, f.ctrl.Now())
	f.mu.Lock()
	defer f.mu.Unlock()
	f.loadErr = err
	if err != nil {
		return err
	}
	kept := sessions[:0]
	for _, s := range sessions {
		if !f.closing[s.Address] {
			kept = append(kept, s)
		}
	}
	f.sessions = kept
	return nil
}

// LoadError returns the error of the last Refresh, if any.
func (f *ListingFlow) LoadError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.loadErr
}

// SetFilter sets the address substring filter.
func (f *ListingFlow) SetFilter(sub string) {
	f.mu.Lock()
	f.filter = sub
	f.mu.Unlock()
}

// Sessions returns the listed sessions matching the filter.
func (f *ListingFlow) Sessions() []domain.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := SearchByAddress(f.filter, f.sessions)
	for i := range out {
		out[i] = out[i].Clone()
	}
	return out
}

// ItemError returns the last close error for address.
func (f *ListingFlow) ItemError(address string) string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.itemErrors[address]
}

// Close closes the session at address.
func (f *ListingFlow) Close(ctx context.Context, wallet chain.Wallet, address string) Outcome {
	f.mu.Lock()
	if f.closing[address] {
		f.mu.Unlock()
		return rejected(domain.OperationClose, errors.OperationInFlight(string(domain.OperationClose)))
	}
	idx := -1
	var removed domain.Session
	for i, s := range f.sessions {
		if s.Address == address {
			idx, removed = i, s
			break
		}
	}
	if idx >= 0 {
		f.sessions = append(f.sessions[:idx:idx], f.sessions[idx+1:]...)
	}
	f.closing[address] = true
	delete(f.itemErrors, address)
	f.mu.Unlock()

	out := f.ctrl.Execute(ctx, domain.OperationClose, CloseInput{SessionAddress: address}, wallet)

	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.closing, address)
	if out.Result.OK() {
		return out
	}

	if err := out.Err(); err != nil {
		msg := err.Error()
		if se := errors.GetServiceError(err); se != nil {
			msg = se.Message
		}
		f.itemErrors[address] = msg
	}
	if idx >= 0 && !f.contains(address) {
		if idx > len(f.sessions) {
			idx = len(f.sessions)
		}
		f.sessions = append(f.sessions[:idx], append([]domain.Session{removed}, f.sessions[idx:]...)...)
	}
	return out
}

func (f *ListingFlow) contains(address string) bool {
	for _, s := range f.sessions {
		if s.Address == address {
			return true
		}
	}
	return false
}

// =============================================================================
// Vote
// =============================================================================

// VoteFlow votes on one session.
type VoteFlow struct {
	ctrl    *Controller
	machine *flowMachine

	mu      sync.Mutex
	session *domain.Session
	choice  *int
}

// NewVoteFlow returns a flow with no session loaded.
func (c *Controller) NewVoteFlow() *VoteFlow {
	return &VoteFlow{ctrl: c, machine: newFlowMachine()}
}

// Load reads the session at address.
func (f *VoteFlow) Load(ctx context.Context, address string) (domain.Session, error) {
	s, err := f.ctrl.repo.FetchOne(ctx, address)
	if err != nil {
		return domain.Session{}, err
	}
	f.mu.Lock()
	f.session = &s
	f.mu.Unlock()
	return s.Clone(), nil
}

// Session returns the loaded session.
func (f *VoteFlow) Session() (domain.Session, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.session == nil {
		return domain.Session{}, false
	}
	return f.session.Clone(), true
}

// Select picks an option by index.
func (f *VoteFlow) Select(index int) {
	f.mu.Lock()
	f.choice = &index
	f.mu.Unlock()
	f.machine.edited()
}

// Status returns the flow state.
func (f *VoteFlow) Status() FlowStatus { return f.machine.snapshot() }

// Submit votes for the selected option. After a confirmed vote the session is
// read again so the tallies reflect it.
func (f *VoteFlow) Submit(ctx context.Context, wallet chain.Wallet) Outcome {
	f.mu.Lock()
	session := f.session
	var choice *int
	if f.choice != nil {
		c := *f.choice
		choice = &c
	}
	f.mu.Unlock()

	if session == nil {
		return rejected(domain.OperationVote, errors.SessionNotFound(""))
	}
	if err := f.machine.begin(domain.OperationVote); err != nil {
		return rejected(domain.OperationVote, err)
	}

	in := VoteInput{
		SessionAddress:   session.Address,
		ChoiceIndex:      choice,
		OptionCount:      len(session.Options),
		SessionCloseTime: session.CloseTime,
	}
	out := f.ctrl.execute(ctx, domain.OperationVote, in, wallet, f.machine.submitting)
	f.machine.finish(out)

	if out.Result.OK() {
		if _, err := f.Load(ctx, session.Address); err != nil {
			f.ctrl.log.WithContext(ctx).WithError(err).Warn("reload session after vote")
		}
	}
	return out
}
