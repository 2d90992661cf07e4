package voting

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"time"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
	"github.com/R3E-Network/voting_client/internal/metrics"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// Writer is the ledger write capability. Each call signs, broadcasts and
// waits for confirmation, returning the transaction signature whenever the
// transaction was sent.
type Writer interface {
	Initialize(ctx context.Context, wallet chain.Wallet, session chain.Keypair, args chain.InitializeArgs) (string, error)
	Vote(ctx context.Context, wallet chain.Wallet, session chain.Address, choiceIndex uint32) (string, error)
	CloseSession(ctx context.Context, wallet chain.Wallet, session chain.Address) (string, error)
}

var _ Writer = (*chain.VotingProgram)(nil)

// SubmitterConfig configures a Submitter.
type SubmitterConfig struct {
	Writer Writer
	Logger *logger.Logger
	// Cluster names the network for explorer links; empty means mainnet.
	Cluster string
	// NewKeypair generates session identities; defaults to chain.NewKeypair.
	NewKeypair func() (chain.Keypair, error)
}

// Submitter sends one operation to the ledger program per call. It never
// retries.
type Submitter struct {
	writer     Writer
	log        *logger.Logger
	cluster    string
	newKeypair func() (chain.Keypair, error)
}

// OperationResult is the classified outcome of Submit.
type OperationResult struct {
	Kind           domain.OperationKind
	Status         domain.OperationStatus
	SessionAddress string
	TxID           string
	ExplorerURL    string
	// Err is a *errors.ServiceError when Status is Failed.
	Err error
}

// OK reports whether the operation was confirmed.
func (r OperationResult) OK() bool { return r.Status == domain.StatusConfirmed }

// NewSubmitter creates a Submitter.
func NewSubmitter(cfg SubmitterConfig) (*Submitter, error) {
	if cfg.Writer == nil {
		return nil, fmt.Errorf("submitter: writer is required")
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("voting.submitter")
	}
	newKeypair := cfg.NewKeypair
	if newKeypair == nil {
		newKeypair = chain.NewKeypair
	}
	return &Submitter{
		writer:     cfg.Writer,
		log:        log,
		cluster:    cfg.Cluster,
		newKeypair: newKeypair,
	}, nil
}

// Submit builds the instruction for kind from payload and hands it to the
// ledger with wallet as signer. A wallet without a public key or signer fails
// with NoWalletConnected before anything is sent.
func (s *Submitter) Submit(ctx context.Context, kind domain.OperationKind, payload interface{}, wallet chain.Wallet) OperationResult {
	res := OperationResult{Kind: kind}
	if wallet.PublicKey == nil || wallet.SignTransaction == nil {
		res.Status = domain.StatusFailed
		res.Err = errors.NoWalletConnected()
		return res
	}

	start := time.Now()
	sig, sessionAddr, err := s.send(ctx, kind, payload, wallet)
	res.SessionAddress = sessionAddr
	res.TxID = sig
	if sig != "" {
		res.ExplorerURL = chain.ExplorerURL(sig, s.cluster)
	}

	entry := s.log.WithContext(ctx).WithFields(map[string]interface{}{
		"kind":    string(kind),
		"session": sessionAddr,
		"tx_id":   sig,
	})
	if err != nil {
		res.Status = domain.StatusFailed
		res.Err = classify(err, sig)
		entry.WithError(err).Warn("operation failed")
	} else {
		res.Status = domain.StatusConfirmed
		entry.Info("operation confirmed")
	}
	metrics.RecordOperation(string(kind), string(res.Status), time.Since(start))
	return res
}

func (s *Submitter) send(ctx context.Context, kind domain.OperationKind, payload interface{}, wallet chain.Wallet) (sig, sessionAddr string, err error) {
	switch kind {
	case domain.OperationCreate:
		in, ok := asCreate(payload)
		if !ok {
			return "", "", errors.InvalidLabels("missing create input")
		}
		args, err := ToCreateRequest(in)
		if err != nil {
			return "", "", err
		}
		kp, err := s.newKeypair()
		if err != nil {
			return "", "", fmt.Errorf("generate session identity: %w", err)
		}
		sessionAddr = kp.PublicKey().String()
		sig, err = s.writer.Initialize(ctx, wallet, kp, args)
		return sig, sessionAddr, err

	case domain.OperationVote:
		in, ok := asVote(payload)
		if !ok || in.ChoiceIndex == nil {
			return "", "", errors.NoChoiceSelected()
		}
		addr, err := parseSession(in.SessionAddress)
		if err != nil {
			return "", in.SessionAddress, err
		}
		if *in.ChoiceIndex < 0 {
			return "", addr.String(), errors.ChoiceOutOfRange(*in.ChoiceIndex, in.OptionCount)
		}
		sig, err = s.writer.Vote(ctx, wallet, addr, uint32(*in.ChoiceIndex))
		return sig, addr.String(), err

	case domain.OperationClose:
		in, ok := asClose(payload)
		if !ok {
			return "", "", errors.MalformedAddress(FieldSessionAddress, "", nil)
		}
		addr, err := parseSession(in.SessionAddress)
		if err != nil {
			return "", in.SessionAddress, err
		}
		sig, err = s.writer.CloseSession(ctx, wallet, addr)
		return sig, addr.String(), err
	}
	return "", "", errors.InvalidOperation(string(kind))
}

// classify normalizes a submission failure. A message raised by the program
// wins over the node's transport text.
func classify(err error, sig string) error {
	if se := errors.GetServiceError(err); se != nil {
		return se
	}

	var out *errors.ServiceError
	var rpcErr *chain.RPCError
	var txErr *chain.TransactionError
	if msg, ok := chain.ProgramErrorMessage(err); ok {
		out = errors.SubmissionRejected(msg, err)
		if code, ok := chain.ProgramErrorCodeOf(err); ok {
			out.WithDetails("program_error", uint32(code))
		}
	} else if stderrors.As(err, &txErr) {
		out = errors.SubmissionRejected(txErr.Error(), err)
	} else if stderrors.As(err, &rpcErr) {
		out = errors.SubmissionRejected(strings.TrimSpace(rpcErr.Message), err)
	} else {
		out = errors.TransportFailure(err)
	}
	if sig != "" {
		out.WithDetails("tx_id", sig)
	}
	return out
}

func parseSession(raw string) (chain.Address, error) {
	addr, err := chain.ParseAddress(strings.TrimSpace(raw))
	if err != nil {
		return chain.Address{}, errors.MalformedAddress(FieldSessionAddress, raw, err)
	}
	return addr, nil
}

func asCreate(payload interface{}) (CreateInput, bool) {
	switch in := payload.(type) {
	case CreateInput:
		return in, true
	case *CreateInput:
		if in != nil {
			return *in, true
		}
	}
	return CreateInput{}, false
}

func asVote(payload interface{}) (VoteInput, bool) {
	switch in := payload.(type) {
	case VoteInput:
		return in, true
	case *VoteInput:
		if in != nil {
			return *in, true
		}
	}
	return VoteInput{}, false
}

func asClose(payload interface{}) (CloseInput, bool) {
	switch in := payload.(type) {
	case CloseInput:
		return in, true
	case *CloseInput:
		if in != nil {
			return *in, true
		}
	}
	return CloseInput{}, false
}
