package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// DefaultConfirmTimeout is the default window for a transaction to confirm.
const DefaultConfirmTimeout = 90 * time.Second

// DefaultPollInterval is the default interval for polling signature status.
const DefaultPollInterval = 2 * time.Second

// =============================================================================
// Transaction Submission
// =============================================================================

// SendTransaction submits a signed transaction with preflight simulation and
// returns its signature. Simulation failures surface as *RPCError whose Data
// carries the program logs.
func (c *Client) SendTransaction(ctx context.Context, tx *Transaction) (string, error) {
	encoded, err := tx.Base64()
	if err != nil {
		return "", fmt.Errorf("encode transaction: %w", err)
	}

	result, err := c.Call(ctx, "sendTransaction", []interface{}{
		encoded,
		map[string]interface{}{
			"encoding":            "base64",
			"skipPreflight":       false,
			"preflightCommitment": c.commitment,
		},
	})
	if err != nil {
		return "", err
	}

	var sig string
	if err := json.Unmarshal(result, &sig); err != nil {
		return "", fmt.Errorf("unmarshal signature: %w", err)
	}
	return sig, nil
}

// SignatureStatus is the node's view of a submitted transaction.
type SignatureStatus struct {
	Slot               uint64          `json:"slot"`
	Confirmations      *uint64         `json:"confirmations"`
	ConfirmationStatus string          `json:"confirmationStatus"`
	Err                json.RawMessage `json:"err"`
}

// Failed reports whether the transaction executed with an error.
func (s SignatureStatus) Failed() bool {
	return len(s.Err) > 0 && string(s.Err) != "null"
}

// GetSignatureStatuses returns one entry per signature; unknown signatures
// yield nil entries.
func (c *Client) GetSignatureStatuses(ctx context.Context, signatures ...string) ([]*SignatureStatus, error) {
	result, err := c.Call(ctx, "getSignatureStatuses", []interface{}{
		signatures,
		map[string]interface{}{"searchTransactionHistory": true},
	})
	if err != nil {
		return nil, err
	}

	var resp struct {
		Value []*SignatureStatus `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal signature statuses: %w", err)
	}
	return resp.Value, nil
}

// WaitForConfirmation polls until the signature reaches the client's
// commitment level, fails on chain, or ctx is done.
func (c *Client) WaitForConfirmation(ctx context.Context, signature string) error {
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		statuses, err := c.GetSignatureStatuses(ctx, signature)
		if err != nil && ctx.Err() == nil {
			c.log.WithContext(ctx).WithError(err).WithField("signature", signature).Debug("signature status poll failed")
		}
		if err == nil && len(statuses) > 0 && statuses[0] != nil {
			st := statuses[0]
			if st.Failed() {
				return &TransactionError{Signature: signature, Raw: st.Err}
			}
			if meetsCommitment(st.ConfirmationStatus, c.commitment) {
				return nil
			}
		}

		select {
		case <-ctx.Done():
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return fmt.Errorf("%w: %s", ErrConfirmationTimeout, signature)
			}
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func meetsCommitment(status, want string) bool {
	rank := map[string]int{
		CommitmentProcessed: 1,
		CommitmentConfirmed: 2,
		CommitmentFinalized: 3,
	}
	return rank[status] >= rank[want] && rank[status] > 0
}

// SignAndSend compiles instructions into a transaction paid by wallet,
// signs it with extraSigners and the wallet, submits it and waits for
// confirmation. Once the transaction is sent the caller's cancellation is
// no longer honored; only the confirm timeout ends the wait. The signature
// is returned whenever the transaction was sent, even if confirmation failed.
func (c *Client) SignAndSend(ctx context.Context, instructions []Instruction, wallet Wallet, extraSigners ...Keypair) (string, error) {
	if !wallet.CanSign() {
		return "", fmt.Errorf("wallet cannot sign")
	}

	blockhash, err := c.GetLatestBlockhash(ctx)
	if err != nil {
		return "", fmt.Errorf("get latest blockhash: %w", err)
	}

	tx, err := NewTransaction(instructions, blockhash, *wallet.PublicKey)
	if err != nil {
		return "", fmt.Errorf("build transaction: %w", err)
	}
	if len(extraSigners) > 0 {
		if err := tx.Sign(extraSigners...); err != nil {
			return "", fmt.Errorf("sign transaction: %w", err)
		}
	}
	if err := wallet.SignTransaction(ctx, tx); err != nil {
		return "", fmt.Errorf("wallet sign: %w", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		return "", fmt.Errorf("verify signatures: %w", err)
	}

	sendCtx := context.WithoutCancel(ctx)
	sig, err := c.SendTransaction(sendCtx, tx)
	if err != nil {
		return "", err
	}

	c.log.WithContext(ctx).WithField("signature", sig).Info("transaction submitted")

	wctx, cancel := context.WithTimeout(sendCtx, c.confirmTimeout)
	defer cancel()
	if err := c.WaitForConfirmation(wctx, sig); err != nil {
		return sig, err
	}
	return sig, nil
}
