// Package chain provides ledger interaction for the voting client: addresses,
// keypairs, transaction compilation, the JSON-RPC client and the voting
// program binding.
package chain

import (
	"crypto/sha256"
	"math/big"
)

// =============================================================================
// Program Constants
// =============================================================================

// DefaultProgramID is the deployed voting program.
const DefaultProgramID = "5bMC9ahzar51f1ER4eoN34JWr2NtQdsAwfECQ985Bfvb"

const (
	// MaxLabels is the program's limit on options per session.
	MaxLabels = 10
	// MaxLabelSize is the per-label byte budget the program allocates.
	MaxLabelSize = 32
)

const (
	InstructionInitialize   = "initialize"
	InstructionVote         = "vote"
	InstructionCloseSession = "close_session"

	AccountVoteAccount = "VoteAccount"
)

// DiscriminatorLength is the size of instruction and account discriminators.
const DiscriminatorLength = 8

// Discriminator is the 8-byte tag prefixing instruction data and account data.
type Discriminator [DiscriminatorLength]byte

// InstructionDiscriminator returns the tag for a program method.
func InstructionDiscriminator(name string) Discriminator {
	return discriminator("global:" + name)
}

// AccountDiscriminator returns the tag for an account type.
func AccountDiscriminator(name string) Discriminator {
	return discriminator("account:" + name)
}

func discriminator(preimage string) Discriminator {
	var d Discriminator
	sum := sha256.Sum256([]byte(preimage))
	copy(d[:], sum[:DiscriminatorLength])
	return d
}

// =============================================================================
// Program Errors
// =============================================================================

// ProgramErrorCode is a custom error number raised by the voting program.
type ProgramErrorCode uint32

const (
	ErrCodeOverflow        ProgramErrorCode = 6000
	ErrCodeInvalidChoice   ProgramErrorCode = 6001
	ErrCodeSessionClosed   ProgramErrorCode = 6002
	ErrCodeVoterNotAllowed ProgramErrorCode = 6003
	ErrCodeUnauthorized    ProgramErrorCode = 6004
)

// ProgramErrorMessages maps custom error numbers to their declared messages.
var ProgramErrorMessages = map[ProgramErrorCode]string{
	ErrCodeOverflow:        "Vote count overflow",
	ErrCodeInvalidChoice:   "Invalid choice index",
	ErrCodeSessionClosed:   "Voting session is closed",
	ErrCodeVoterNotAllowed: "Voter is not allowed in this session",
	ErrCodeUnauthorized:    "Only the session creator can close it",
}

// =============================================================================
// Account Types
// =============================================================================

// OptionCount is one option as stored on chain.
type OptionCount struct {
	Label string
	Count *big.Int // u64 on the wire
}

// VoteAccount is a decoded session account. Numeric fields are kept wide so
// that narrowing to platform integers can be checked by the caller.
type VoteAccount struct {
	Options       []OptionCount
	CloseTime     *big.Int // i64 on the wire
	Creator       Address
	AllowedVoters []Address
}

// ProgramAccount is a raw account snapshot owned by the program.
type ProgramAccount struct {
	Address  Address
	Lamports uint64
	Owner    Address
	Data     []byte
}

// InitializeArgs are the arguments of the initialize instruction.
type InitializeArgs struct {
	Labels        []string
	CloseTime     int64
	AllowedVoters []Address
}
