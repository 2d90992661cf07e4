package chain_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/mr-tron/base58"

	"github.com/R3E-Network/voting_client/internal/chain"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *chain.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client, err := chain.NewClient(chain.Config{
		RPCURL:         server.URL,
		ConfirmTimeout: 2 * time.Second,
		PollInterval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func makeRPCResponse(result interface{}) []byte {
	resultJSON, _ := json.Marshal(result)
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"result":  json.RawMessage(resultJSON),
	}
	data, _ := json.Marshal(resp)
	return data
}

func makeRPCError(code int, message string, data interface{}) []byte {
	errObj := map[string]interface{}{
		"code":    code,
		"message": message,
	}
	if data != nil {
		errObj["data"] = data
	}
	resp := map[string]interface{}{
		"jsonrpc": "2.0",
		"id":      1,
		"error":   errObj,
	}
	out, _ := json.Marshal(resp)
	return out
}

func decodeRequest(t *testing.T, r *http.Request) chain.RPCRequest {
	t.Helper()
	var req chain.RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		t.Errorf("decode request: %v", err)
	}
	return req
}

func encodedSession(t *testing.T, creator chain.Address) string {
	t.Helper()
	data, err := chain.EncodeVoteAccount(chain.VoteAccount{
		Options:   []chain.OptionCount{{Label: "Yes", Count: big.NewInt(2)}, {Label: "No", Count: big.NewInt(0)}},
		CloseTime: big.NewInt(1900000000),
		Creator:   creator,
	})
	if err != nil {
		t.Fatal(err)
	}
	return base64.StdEncoding.EncodeToString(data)
}

func newKeypair(t *testing.T) chain.Keypair {
	t.Helper()
	kp, err := chain.NewKeypair()
	if err != nil {
		t.Fatal(err)
	}
	return kp
}

func TestNewClient_Validation(t *testing.T) {
	if _, err := chain.NewClient(chain.Config{}); err == nil {
		t.Error("NewClient() should require an RPC URL")
	}
	if _, err := chain.NewClient(chain.Config{RPCURL: "http://x", Commitment: "eventually"}); err == nil {
		t.Error("NewClient() should reject unknown commitment")
	}
	c, err := chain.NewClient(chain.Config{RPCURL: "http://x"})
	if err != nil {
		t.Fatal(err)
	}
	if c.Commitment() != chain.CommitmentConfirmed {
		t.Errorf("default commitment = %s", c.Commitment())
	}
}

func TestCall_RPCError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write(makeRPCError(-32601, "Method not found", nil))
	})

	_, err := client.Call(context.Background(), "bogus", nil)
	var rpcErr *chain.RPCError
	if !errors.As(err, &rpcErr) {
		t.Fatalf("Call() error = %v, want *RPCError", err)
	}
	if rpcErr.Code != -32601 {
		t.Errorf("code = %d", rpcErr.Code)
	}
}

func TestCall_HTTPFailure(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad gateway", http.StatusBadGateway)
	})
	if _, err := client.Call(context.Background(), "getHealth", nil); err == nil {
		t.Error("Call() should fail on non-JSON error page")
	}
}

func TestVotingProgram_FetchAllSessions(t *testing.T) {
	creator := newKeypair(t).PublicKey()
	sessionAddr := newKeypair(t).PublicKey()
	programID := chain.MustParseAddress(chain.DefaultProgramID)
	disc := chain.AccountDiscriminator(chain.AccountVoteAccount)
	payload := encodedSession(t, creator)

	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		req := decodeRequest(t, r)
		if req.Method != "getProgramAccounts" {
			t.Errorf("method = %s", req.Method)
		}
		if req.Params[0] != chain.DefaultProgramID {
			t.Errorf("program param = %v", req.Params[0])
		}
		opts, _ := req.Params[1].(map[string]interface{})
		filters, _ := opts["filters"].([]interface{})
		if len(filters) != 1 {
			t.Errorf("filters = %v", opts["filters"])
			return
		}
		memcmp := filters[0].(map[string]interface{})["memcmp"].(map[string]interface{})
		if memcmp["bytes"] != base58.Encode(disc[:]) || memcmp["offset"] != float64(0) {
			t.Errorf("memcmp = %v", memcmp)
		}

		w.Write(makeRPCResponse([]map[string]interface{}{{
			"pubkey": sessionAddr.String(),
			"account": map[string]interface{}{
				"lamports": 1000,
				"owner":    chain.DefaultProgramID,
				"data":     []string{payload, "base64"},
			},
		}}))
	})

	accounts, err := chain.NewVotingProgram(client, programID).FetchAllSessions(context.Background())
	if err != nil {
		t.Fatalf("FetchAllSessions() error = %v", err)
	}
	if len(accounts) != 1 || accounts[0].Address != sessionAddr {
		t.Fatalf("accounts = %+v", accounts)
	}
	decoded, err := chain.ParseVoteAccount(accounts[0].Data)
	if err != nil {
		t.Fatal(err)
	}
	if decoded.Creator != creator {
		t.Error("creator mismatch")
	}
}

func TestVotingProgram_FetchSession(t *testing.T) {
	programID := chain.MustParseAddress(chain.DefaultProgramID)
	sessionAddr := newKeypair(t).PublicKey()
	payload := encodedSession(t, newKeypair(t).PublicKey())

	t.Run("found", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write(makeRPCResponse(map[string]interface{}{
				"context": map[string]interface{}{"slot": 1},
				"value": map[string]interface{}{
					"lamports": 1,
					"owner":    chain.DefaultProgramID,
					"data":     []string{payload, "base64"},
				},
			}))
		})
		acct, err := chain.NewVotingProgram(client, programID).FetchSession(context.Background(), sessionAddr)
		if err != nil {
			t.Fatalf("FetchSession() error = %v", err)
		}
		if acct.Address != sessionAddr || acct.Owner != programID {
			t.Errorf("account = %+v", acct)
		}
	})

	t.Run("missing", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write(makeRPCResponse(map[string]interface{}{"value": nil}))
		})
		_, err := chain.NewVotingProgram(client, programID).FetchSession(context.Background(), sessionAddr)
		if !errors.Is(err, chain.ErrAccountNotFound) {
			t.Errorf("FetchSession() error = %v, want ErrAccountNotFound", err)
		}
	})

	t.Run("foreign owner", func(t *testing.T) {
		client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			w.Write(makeRPCResponse(map[string]interface{}{
				"value": map[string]interface{}{
					"lamports": 1,
					"owner":    "11111111111111111111111111111111",
					"data":     []string{"", "base64"},
				},
			}))
		})
		_, err := chain.NewVotingProgram(client, programID).FetchSession(context.Background(), sessionAddr)
		if !errors.Is(err, chain.ErrAccountNotFound) {
			t.Errorf("FetchSession() error = %v, want ErrAccountNotFound", err)
		}
	})
}

// fakeNode answers the submission RPCs and records the transactions it sees.
type fakeNode struct {
	t         *testing.T
	mu        sync.Mutex
	sent      []string
	statusErr interface{}
	sendErr   []byte
	pending   int
}

func (n *fakeNode) handle(w http.ResponseWriter, r *http.Request) {
	req := decodeRequest(n.t, r)
	n.mu.Lock()
	defer n.mu.Unlock()

	switch req.Method {
	case "getLatestBlockhash":
		w.Write(makeRPCResponse(map[string]interface{}{
			"value": map[string]interface{}{
				"blockhash":            base58.Encode(make([]byte, 32)),
				"lastValidBlockHeight": 100,
			},
		}))
	case "sendTransaction":
		if n.sendErr != nil {
			w.Write(n.sendErr)
			return
		}
		n.sent = append(n.sent, req.Params[0].(string))
		w.Write(makeRPCResponse("5sigFromNode"))
	case "getSignatureStatuses":
		if n.pending > 0 {
			n.pending--
			w.Write(makeRPCResponse(map[string]interface{}{"value": []interface{}{nil}}))
			return
		}
		w.Write(makeRPCResponse(map[string]interface{}{
			"value": []interface{}{map[string]interface{}{
				"slot":               10,
				"confirmations":      nil,
				"confirmationStatus": "confirmed",
				"err":                n.statusErr,
			}},
		}))
	default:
		n.t.Errorf("unexpected method %s", req.Method)
	}
}

func TestVotingProgram_Vote(t *testing.T) {
	node := &fakeNode{t: t, pending: 2}
	client := newTestClient(t, node.handle)
	user := newKeypair(t)
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))

	sig, err := program.Vote(context.Background(), chain.KeypairWallet(user), newKeypair(t).PublicKey(), 1)
	if err != nil {
		t.Fatalf("Vote() error = %v", err)
	}
	if sig != "5sigFromNode" {
		t.Errorf("signature = %s", sig)
	}
	if len(node.sent) != 1 {
		t.Fatalf("sent = %d transactions", len(node.sent))
	}
	raw, err := base64.StdEncoding.DecodeString(node.sent[0])
	if err != nil {
		t.Fatal(err)
	}
	if raw[0] != 1 {
		t.Errorf("vote transaction carries %d signatures, want 1", raw[0])
	}
}

func TestVotingProgram_Initialize(t *testing.T) {
	node := &fakeNode{t: t}
	client := newTestClient(t, node.handle)
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))

	_, err := program.Initialize(context.Background(), chain.KeypairWallet(newKeypair(t)), newKeypair(t), chain.InitializeArgs{
		Labels:    []string{"A", "B"},
		CloseTime: 1900000000,
	})
	if err != nil {
		t.Fatalf("Initialize() error = %v", err)
	}
	raw, _ := base64.StdEncoding.DecodeString(node.sent[0])
	if raw[0] != 2 {
		t.Errorf("initialize transaction carries %d signatures, want 2", raw[0])
	}
}

func TestVotingProgram_ReadOnlyWallet(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no RPC expected for a read-only wallet")
	})
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))
	if _, err := program.CloseSession(context.Background(), chain.ReadOnlyWallet(newKeypair(t).PublicKey()), newKeypair(t).PublicKey()); err == nil {
		t.Error("CloseSession() should fail without a signer")
	}
}

func TestSignAndSend_PreflightProgramError(t *testing.T) {
	node := &fakeNode{t: t}
	node.sendErr = makeRPCError(-32002, "Transaction simulation failed: Error processing Instruction 0: custom program error: 0x1772", map[string]interface{}{
		"err": map[string]interface{}{"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6002}}},
		"logs": []string{
			"Program 5bMC9ahzar51f1ER4eoN34JWr2NtQdsAwfECQ985Bfvb invoke [1]",
			"Program log: AnchorError thrown in programs/voting/src/lib.rs:40. Error Code: SessionClosed. Error Number: 6002. Error Message: Voting session is closed.",
		},
	})
	client := newTestClient(t, node.handle)
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))

	sig, err := program.Vote(context.Background(), chain.KeypairWallet(newKeypair(t)), newKeypair(t).PublicKey(), 0)
	if err == nil {
		t.Fatal("Vote() should fail")
	}
	if sig != "" {
		t.Errorf("signature = %q, want empty for a rejected submission", sig)
	}
	msg, ok := chain.ProgramErrorMessage(err)
	if !ok || msg != "Voting session is closed" {
		t.Errorf("ProgramErrorMessage() = %q, %v", msg, ok)
	}
	code, ok := chain.ProgramErrorCodeOf(err)
	if !ok || code != chain.ErrCodeSessionClosed {
		t.Errorf("ProgramErrorCodeOf() = %d, %v", code, ok)
	}
}

func TestSignAndSend_LandedFailure(t *testing.T) {
	node := &fakeNode{t: t, statusErr: map[string]interface{}{
		"InstructionError": []interface{}{0, map[string]interface{}{"Custom": 6003}},
	}}
	client := newTestClient(t, node.handle)
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))

	sig, err := program.Vote(context.Background(), chain.KeypairWallet(newKeypair(t)), newKeypair(t).PublicKey(), 0)
	if sig != "5sigFromNode" {
		t.Errorf("signature = %q", sig)
	}
	var txErr *chain.TransactionError
	if !errors.As(err, &txErr) {
		t.Fatalf("error = %v, want *TransactionError", err)
	}
	msg, ok := chain.ProgramErrorMessage(err)
	if !ok || msg != "Voter is not allowed in this session" {
		t.Errorf("ProgramErrorMessage() = %q, %v", msg, ok)
	}
}

func TestSignAndSend_ConfirmTimeout(t *testing.T) {
	node := &fakeNode{t: t, pending: 1 << 30}
	server := httptest.NewServer(http.HandlerFunc(node.handle))
	t.Cleanup(server.Close)
	client, err := chain.NewClient(chain.Config{
		RPCURL:         server.URL,
		ConfirmTimeout: 50 * time.Millisecond,
		PollInterval:   10 * time.Millisecond,
	})
	if err != nil {
		t.Fatal(err)
	}
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))

	sig, err := program.Vote(context.Background(), chain.KeypairWallet(newKeypair(t)), newKeypair(t).PublicKey(), 0)
	if !errors.Is(err, chain.ErrConfirmationTimeout) {
		t.Errorf("error = %v, want ErrConfirmationTimeout", err)
	}
	if sig == "" {
		t.Error("signature should be reported after a send")
	}
}

func TestSignAndSend_IgnoresCancelAfterSend(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	node := &fakeNode{t: t, pending: 3}
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		node.handle(w, r)
		node.mu.Lock()
		sent := len(node.sent)
		node.mu.Unlock()
		if sent > 0 {
			cancel()
		}
	})
	program := chain.NewVotingProgram(client, chain.MustParseAddress(chain.DefaultProgramID))

	if _, err := program.Vote(ctx, chain.KeypairWallet(newKeypair(t)), newKeypair(t).PublicKey(), 0); err != nil {
		t.Errorf("Vote() error = %v, want confirmation despite cancellation", err)
	}
}

func TestProgramErrorMessage_Fallbacks(t *testing.T) {
	if _, ok := chain.ProgramErrorMessage(errors.New("dial tcp: refused")); ok {
		t.Error("plain errors carry no program message")
	}
	err := &chain.TransactionError{Signature: "s", Raw: json.RawMessage(`{"InstructionError":[0,{"Custom":6001}]}`)}
	if msg, _ := chain.ProgramErrorMessage(err); msg != "Invalid choice index" {
		t.Errorf("message = %q", msg)
	}
	if err.Error() != "Invalid choice index" {
		t.Errorf("Error() = %q", err.Error())
	}
	unknown := &chain.TransactionError{Signature: "s", Raw: json.RawMessage(`"InsufficientFundsForFee"`)}
	if _, ok := chain.ProgramErrorMessage(unknown); ok {
		t.Error("non-program ledger errors should not yield a program message")
	}
}
