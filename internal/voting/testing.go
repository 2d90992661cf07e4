package voting

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/R3E-Network/voting_client/internal/chain"
)

// FakeLedger is an in-memory stand-in for the voting program and its RPC
// node. It enforces the program's rules and raises the program's error codes,
// so callers see the same failures they would see on chain.
type FakeLedger struct {
	mu       sync.Mutex
	program  chain.Address
	accounts map[chain.Address]*chain.VoteAccount
	order    []chain.Address
	now      func() int64
	sigs     int

	// FetchErr, when set, fails every read.
	FetchErr error
	// SubmitErr, when set, fails every submission before it reaches the program.
	SubmitErr error
	// Submissions counts transactions that reached the program.
	Submissions int
}

var (
	_ Reader = (*FakeLedger)(nil)
	_ Writer = (*FakeLedger)(nil)
)

// NewFakeLedger creates an empty ledger whose clock is now (unix seconds).
func NewFakeLedger(now func() int64) *FakeLedger {
	if now == nil {
		now = func() int64 { return time.Now().Unix() }
	}
	return &FakeLedger{
		program:  chain.MustParseAddress(chain.DefaultProgramID),
		accounts: make(map[chain.Address]*chain.VoteAccount),
		now:      now,
	}
}

// Put stores a session account directly, bypassing the program.
func (l *FakeLedger) Put(addr chain.Address, acct chain.VoteAccount) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, exists := l.accounts[addr]; !exists {
		l.order = append(l.order, addr)
	}
	a := acct
	l.accounts[addr] = &a
}

// Exists reports whether a session account exists at addr.
func (l *FakeLedger) Exists(addr chain.Address) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.accounts[addr]
	return ok
}

func (l *FakeLedger) FetchAllSessions(_ context.Context) ([]chain.ProgramAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FetchErr != nil {
		return nil, l.FetchErr
	}
	out := make([]chain.ProgramAccount, 0, len(l.order))
	for _, addr := range l.order {
		acct, err := l.encode(addr)
		if err != nil {
			return nil, err
		}
		out = append(out, acct)
	}
	return out, nil
}

func (l *FakeLedger) FetchSession(_ context.Context, addr chain.Address) (chain.ProgramAccount, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.FetchErr != nil {
		return chain.ProgramAccount{}, l.FetchErr
	}
	if _, ok := l.accounts[addr]; !ok {
		return chain.ProgramAccount{}, fmt.Errorf("%w: %s", chain.ErrAccountNotFound, addr)
	}
	return l.encode(addr)
}

func (l *FakeLedger) encode(addr chain.Address) (chain.ProgramAccount, error) {
	data, err := chain.EncodeVoteAccount(*l.accounts[addr])
	if err != nil {
		return chain.ProgramAccount{}, err
	}
	return chain.ProgramAccount{Address: addr, Owner: l.program, Data: data}, nil
}

func (l *FakeLedger) Initialize(_ context.Context, wallet chain.Wallet, session chain.Keypair, args chain.InitializeArgs) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.precheck(wallet); err != nil {
		return "", err
	}
	addr := session.PublicKey()
	if _, exists := l.accounts[addr]; exists {
		return "", &chain.RPCError{Code: -32002, Message: "Transaction simulation failed: account already in use"}
	}
	acct := &chain.VoteAccount{
		CloseTime:     big.NewInt(args.CloseTime),
		Creator:       *wallet.PublicKey,
		AllowedVoters: append([]chain.Address(nil), args.AllowedVoters...),
	}
	for _, label := range args.Labels {
		acct.Options = append(acct.Options, chain.OptionCount{Label: label, Count: big.NewInt(0)})
	}
	l.accounts[addr] = acct
	l.order = append(l.order, addr)
	return l.signature(), nil
}

func (l *FakeLedger) Vote(_ context.Context, wallet chain.Wallet, session chain.Address, choiceIndex uint32) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.precheck(wallet); err != nil {
		return "", err
	}
	acct, ok := l.accounts[session]
	if !ok {
		return "", &chain.RPCError{Code: -32002, Message: "Transaction simulation failed: AccountNotInitialized"}
	}
	if acct.CloseTime.Int64() <= l.now() {
		return "", l.programError(chain.ErrCodeSessionClosed)
	}
	if len(acct.AllowedVoters) > 0 && !containsAddress(acct.AllowedVoters, *wallet.PublicKey) {
		return "", l.programError(chain.ErrCodeVoterNotAllowed)
	}
	if int(choiceIndex) >= len(acct.Options) {
		return "", l.programError(chain.ErrCodeInvalidChoice)
	}
	opt := &acct.Options[choiceIndex]
	if !opt.Count.IsUint64() || opt.Count.Uint64() == ^uint64(0) {
		return "", l.programError(chain.ErrCodeOverflow)
	}
	opt.Count = new(big.Int).Add(opt.Count, big.NewInt(1))
	return l.signature(), nil
}

func (l *FakeLedger) CloseSession(_ context.Context, wallet chain.Wallet, session chain.Address) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err := l.precheck(wallet); err != nil {
		return "", err
	}
	acct, ok := l.accounts[session]
	if !ok {
		return "", &chain.RPCError{Code: -32002, Message: "Transaction simulation failed: AccountNotInitialized"}
	}
	if acct.Creator != *wallet.PublicKey {
		return "", l.programError(chain.ErrCodeUnauthorized)
	}
	delete(l.accounts, session)
	for i, a := range l.order {
		if a == session {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	return l.signature(), nil
}

func (l *FakeLedger) precheck(wallet chain.Wallet) error {
	if !wallet.CanSign() {
		return fmt.Errorf("wallet cannot sign")
	}
	if l.SubmitErr != nil {
		return l.SubmitErr
	}
	l.Submissions++
	return nil
}

// programError mimics a preflight rejection carrying the program's logs.
func (l *FakeLedger) programError(code chain.ProgramErrorCode) error {
	data, _ := json.Marshal(map[string]interface{}{
		"err": map[string]interface{}{
			"InstructionError": []interface{}{0, map[string]interface{}{"Custom": uint32(code)}},
		},
		"logs": []string{
			fmt.Sprintf("Program %s invoke [1]", l.program),
			fmt.Sprintf("Program log: AnchorError occurred. Error Number: %d. Error Message: %s.", code, chain.ProgramErrorMessages[code]),
		},
	})
	return &chain.RPCError{
		Code:    -32002,
		Message: fmt.Sprintf("Transaction simulation failed: Error processing Instruction 0: custom program error: %#x", uint32(code)),
		Data:    data,
	}
}

func (l *FakeLedger) signature() string {
	l.sigs++
	var sig chain.Signature
	copy(sig[:], fmt.Sprintf("fake-signature-%08d", l.sigs))
	return sig.String()
}

func containsAddress(list []chain.Address, addr chain.Address) bool {
	for _, a := range list {
		if a == addr {
			return true
		}
	}
	return false
}

// NewFakeController wires a Controller to ledger using the memory journal.
func NewFakeController(ledger *FakeLedger, now func() time.Time) (*Controller, error) {
	repo, err := NewRepository(RepositoryConfig{Reader: ledger})
	if err != nil {
		return nil, err
	}
	sub, err := NewSubmitter(SubmitterConfig{Writer: ledger, Cluster: "devnet"})
	if err != nil {
		return nil, err
	}
	return NewController(ControllerConfig{Repository: repo, Submitter: sub, Now: now})
}
