package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/R3E-Network/voting_client/internal/metrics"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// Commitment levels accepted by the RPC node.
const (
	CommitmentProcessed = "processed"
	CommitmentConfirmed = "confirmed"
	CommitmentFinalized = "finalized"
)

// Client is a ledger JSON-RPC client.
type Client struct {
	rpcURL     string
	httpClient *http.Client
	commitment string
	limiter    *rate.Limiter
	log        *logger.Logger
	nextID     atomic.Uint64

	confirmTimeout time.Duration
	pollInterval   time.Duration
}

// Config holds client configuration.
type Config struct {
	RPCURL     string
	Commitment string
	Timeout    time.Duration

	// RequestsPerSecond paces outgoing calls; zero disables pacing.
	RequestsPerSecond float64
	Burst             int

	// ConfirmTimeout bounds how long SignAndSend waits for confirmation.
	ConfirmTimeout time.Duration
	PollInterval   time.Duration

	Logger *logger.Logger
}

// NewClient creates a new RPC client.
func NewClient(cfg Config) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("RPC URL required")
	}

	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	commitment := cfg.Commitment
	switch commitment {
	case "":
		commitment = CommitmentConfirmed
	case CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
	default:
		return nil, fmt.Errorf("unknown commitment %q", cfg.Commitment)
	}

	limiter := rate.NewLimiter(rate.Inf, 0)
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}

	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("chain")
	}

	confirmTimeout := cfg.ConfirmTimeout
	if confirmTimeout <= 0 {
		confirmTimeout = DefaultConfirmTimeout
	}
	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	return &Client{
		rpcURL: cfg.RPCURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		commitment:     commitment,
		limiter:        limiter,
		log:            log,
		confirmTimeout: confirmTimeout,
		pollInterval:   pollInterval,
	}, nil
}

// Commitment returns the commitment level used for reads and confirmation.
func (c *Client) Commitment() string { return c.commitment }

// =============================================================================
// Core RPC Methods
// =============================================================================

// RPCRequest is a JSON-RPC request.
type RPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params"`
}

// RPCResponse is a JSON-RPC response.
type RPCResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      uint64          `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// Call makes an RPC call to the node.
func (c *Client) Call(ctx context.Context, method string, params []interface{}) (result json.RawMessage, err error) {
	start := time.Now()
	defer func() {
		metrics.RecordRPC(method, time.Since(start), err)
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	if params == nil {
		params = []interface{}{}
	}
	req := RPCRequest{
		JSONRPC: "2.0",
		ID:      c.nextID.Add(1),
		Method:  method,
		Params:  params,
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rpcURL, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	var rpcResp RPCResponse
	if err := json.Unmarshal(respBody, &rpcResp); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("rpc http status %d", resp.StatusCode)
		}
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	if rpcResp.Error != nil {
		c.log.WithContext(ctx).WithFields(map[string]interface{}{
			"method": method,
			"code":   rpcResp.Error.Code,
		}).Debug("rpc error response")
		return nil, rpcResp.Error
	}

	return rpcResp.Result, nil
}

// =============================================================================
// Read Methods
// =============================================================================

type encodedAccount struct {
	Lamports uint64   `json:"lamports"`
	Owner    string   `json:"owner"`
	Data     []string `json:"data"` // [payload, "base64"]
}

func (a encodedAccount) decode(addr Address) (ProgramAccount, error) {
	out := ProgramAccount{Address: addr, Lamports: a.Lamports}
	if a.Owner != "" {
		owner, err := ParseAddress(a.Owner)
		if err != nil {
			return out, fmt.Errorf("account %s owner: %w", addr, err)
		}
		out.Owner = owner
	}
	if len(a.Data) != 2 || a.Data[1] != "base64" {
		return out, fmt.Errorf("account %s: unexpected data encoding", addr)
	}
	data, err := decodeBase64(a.Data[0])
	if err != nil {
		return out, fmt.Errorf("account %s data: %w", addr, err)
	}
	out.Data = data
	return out, nil
}

// MemcmpFilter matches accounts whose data contains Bytes at Offset.
type MemcmpFilter struct {
	Offset int
	Bytes  []byte
}

// GetProgramAccounts returns all accounts owned by programID matching filters.
func (c *Client) GetProgramAccounts(ctx context.Context, programID Address, filters ...MemcmpFilter) ([]ProgramAccount, error) {
	opts := map[string]interface{}{
		"encoding":   "base64",
		"commitment": c.commitment,
	}
	if len(filters) > 0 {
		fs := make([]interface{}, 0, len(filters))
		for _, f := range filters {
			fs = append(fs, map[string]interface{}{
				"memcmp": map[string]interface{}{
					"offset": f.Offset,
					"bytes":  encodeBase58(f.Bytes),
				},
			})
		}
		opts["filters"] = fs
	}

	result, err := c.Call(ctx, "getProgramAccounts", []interface{}{programID.String(), opts})
	if err != nil {
		return nil, err
	}

	var raw []struct {
		Pubkey  string         `json:"pubkey"`
		Account encodedAccount `json:"account"`
	}
	if err := json.Unmarshal(result, &raw); err != nil {
		return nil, fmt.Errorf("unmarshal program accounts: %w", err)
	}

	accounts := make([]ProgramAccount, 0, len(raw))
	for _, r := range raw {
		addr, err := ParseAddress(r.Pubkey)
		if err != nil {
			return nil, fmt.Errorf("program account pubkey: %w", err)
		}
		acct, err := r.Account.decode(addr)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, acct)
	}
	return accounts, nil
}

// GetAccountInfo returns a single account, or ErrAccountNotFound.
func (c *Client) GetAccountInfo(ctx context.Context, addr Address) (ProgramAccount, error) {
	result, err := c.Call(ctx, "getAccountInfo", []interface{}{
		addr.String(),
		map[string]interface{}{"encoding": "base64", "commitment": c.commitment},
	})
	if err != nil {
		return ProgramAccount{}, err
	}

	var resp struct {
		Value *encodedAccount `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return ProgramAccount{}, fmt.Errorf("unmarshal account info: %w", err)
	}
	if resp.Value == nil {
		return ProgramAccount{}, fmt.Errorf("%w: %s", ErrAccountNotFound, addr)
	}
	return resp.Value.decode(addr)
}

// GetLatestBlockhash returns a recent blockhash for transaction construction.
func (c *Client) GetLatestBlockhash(ctx context.Context) ([32]byte, error) {
	var hash [32]byte
	result, err := c.Call(ctx, "getLatestBlockhash", []interface{}{
		map[string]interface{}{"commitment": c.commitment},
	})
	if err != nil {
		return hash, err
	}

	var resp struct {
		Value struct {
			Blockhash            string `json:"blockhash"`
			LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
		} `json:"value"`
	}
	if err := json.Unmarshal(result, &resp); err != nil {
		return hash, fmt.Errorf("unmarshal blockhash: %w", err)
	}
	raw, err := decodeBase58(resp.Value.Blockhash)
	if err != nil || len(raw) != len(hash) {
		return hash, fmt.Errorf("invalid blockhash %q", resp.Value.Blockhash)
	}
	copy(hash[:], raw)
	return hash, nil
}
