package chain

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mr-tron/base58"
	"github.com/tidwall/gjson"
)

var (
	// ErrAccountNotFound is returned when the node has no account at an address.
	ErrAccountNotFound = errors.New("account not found")
	// ErrConfirmationTimeout is returned when a submitted transaction was not
	// confirmed within the configured window.
	ErrConfirmationTimeout = errors.New("transaction confirmation timed out")
)

// RPCError is a JSON-RPC error object returned by the node.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

// TransactionError reports a transaction that reached the ledger or its
// simulator and failed there.
type TransactionError struct {
	Signature string
	// Raw is the ledger's error value, e.g. {"InstructionError":[0,{"Custom":6002}]}.
	Raw json.RawMessage
	// Logs are the program logs, when the node returned them.
	Logs []string
}

func (e *TransactionError) Error() string {
	if msg := programMessage(e.Raw, e.Logs); msg != "" {
		return msg
	}
	return fmt.Sprintf("transaction %s failed: %s", e.Signature, string(e.Raw))
}

// ProgramErrorMessage extracts the human-readable message the voting program
// attached to err. The boolean is false when err carries no program error.
func ProgramErrorMessage(err error) (string, bool) {
	var txErr *TransactionError
	if errors.As(err, &txErr) {
		if msg := programMessage(txErr.Raw, txErr.Logs); msg != "" {
			return msg, true
		}
		return "", false
	}

	var rpcErr *RPCError
	if errors.As(err, &rpcErr) && len(rpcErr.Data) > 0 {
		data := gjson.ParseBytes(rpcErr.Data)
		var logs []string
		for _, l := range data.Get("logs").Array() {
			logs = append(logs, l.String())
		}
		if msg := programMessage(json.RawMessage(data.Get("err").Raw), logs); msg != "" {
			return msg, true
		}
	}
	return "", false
}

// ProgramErrorCodeOf returns the custom error number carried by err, if any.
func ProgramErrorCodeOf(err error) (ProgramErrorCode, bool) {
	var raw json.RawMessage
	var txErr *TransactionError
	var rpcErr *RPCError
	switch {
	case errors.As(err, &txErr):
		raw = txErr.Raw
	case errors.As(err, &rpcErr) && len(rpcErr.Data) > 0:
		raw = json.RawMessage(gjson.GetBytes(rpcErr.Data, "err").Raw)
	default:
		return 0, false
	}
	return customCode(raw)
}

func programMessage(raw json.RawMessage, logs []string) string {
	for _, l := range logs {
		if i := strings.Index(l, "Error Message: "); i >= 0 {
			msg := strings.TrimSpace(l[i+len("Error Message: "):])
			return strings.TrimSuffix(msg, ".")
		}
	}
	if code, ok := customCode(raw); ok {
		if msg, ok := ProgramErrorMessages[code]; ok {
			return msg
		}
		return fmt.Sprintf("custom program error %d", code)
	}
	return ""
}

func customCode(raw json.RawMessage) (ProgramErrorCode, bool) {
	if len(raw) == 0 {
		return 0, false
	}
	custom := gjson.GetBytes(raw, "InstructionError.1.Custom")
	if !custom.Exists() || custom.Type != gjson.Number {
		return 0, false
	}
	return ProgramErrorCode(custom.Uint()), true
}

func encodeBase58(b []byte) string { return base58.Encode(b) }

func decodeBase58(s string) ([]byte, error) { return base58.Decode(s) }

func decodeBase64(s string) ([]byte, error) { return base64.StdEncoding.DecodeString(s) }
