package chain

import (
	"bytes"
	"errors"
	"fmt"
	"math/big"
	"unicode/utf8"

	nio "github.com/nspcc-dev/neo-go/pkg/io"
)

// ErrMalformedAccount is returned when account data cannot be decoded.
var ErrMalformedAccount = errors.New("malformed account data")

// Decoder limits. They are generous relative to the program's own limits so a
// future program version with larger sessions still decodes, while bogus
// length prefixes cannot trigger huge allocations.
const (
	maxDecodedOptions = 255
	maxDecodedString  = 1024
	maxDecodedVoters  = 1024
)

// =============================================================================
// Account Parsers
// =============================================================================

// HasVoteAccountDiscriminator reports whether data starts with the session
// account tag.
func HasVoteAccountDiscriminator(data []byte) bool {
	d := AccountDiscriminator(AccountVoteAccount)
	return len(data) >= DiscriminatorLength && bytes.Equal(data[:DiscriminatorLength], d[:])
}

// ParseVoteAccount decodes session account data. Trailing bytes (the unused
// part of the allocated space) are ignored.
func ParseVoteAccount(data []byte) (*VoteAccount, error) {
	if !HasVoteAccountDiscriminator(data) {
		return nil, fmt.Errorf("%w: missing %s discriminator", ErrMalformedAccount, AccountVoteAccount)
	}
	r := nio.NewBinReaderFromBuf(data[DiscriminatorLength:])

	n := r.ReadU32LE()
	if r.Err == nil && n > maxDecodedOptions {
		return nil, fmt.Errorf("%w: option count %d", ErrMalformedAccount, n)
	}
	options := make([]OptionCount, 0, n)
	for i := uint32(0); i < n && r.Err == nil; i++ {
		label, err := parseString(r)
		if err != nil {
			return nil, fmt.Errorf("%w: option %d label: %v", ErrMalformedAccount, i, err)
		}
		count := new(big.Int).SetUint64(r.ReadU64LE())
		options = append(options, OptionCount{Label: label, Count: count})
	}

	closeTime := big.NewInt(int64(r.ReadU64LE()))

	var creator Address
	r.ReadBytes(creator[:])

	m := r.ReadU32LE()
	if r.Err == nil && m > maxDecodedVoters {
		return nil, fmt.Errorf("%w: allowed voter count %d", ErrMalformedAccount, m)
	}
	var voters []Address
	for i := uint32(0); i < m && r.Err == nil; i++ {
		var v Address
		r.ReadBytes(v[:])
		voters = append(voters, v)
	}

	if r.Err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedAccount, r.Err)
	}

	return &VoteAccount{
		Options:       options,
		CloseTime:     closeTime,
		Creator:       creator,
		AllowedVoters: voters,
	}, nil
}

func parseString(r *nio.BinReader) (string, error) {
	l := r.ReadU32LE()
	if r.Err != nil {
		return "", r.Err
	}
	if l > maxDecodedString {
		return "", fmt.Errorf("string length %d", l)
	}
	buf := make([]byte, l)
	r.ReadBytes(buf)
	if r.Err != nil {
		return "", r.Err
	}
	if !utf8.Valid(buf) {
		return "", fmt.Errorf("invalid utf-8")
	}
	return string(buf), nil
}

// =============================================================================
// Instruction Encoders
// =============================================================================

// EncodeInitializeArgs builds the initialize instruction data.
func EncodeInitializeArgs(args InitializeArgs) ([]byte, error) {
	w := newInstructionWriter(InstructionInitialize)
	w.WriteU32LE(uint32(len(args.Labels)))
	for _, l := range args.Labels {
		writeString(w.BinWriter, l)
	}
	w.WriteU64LE(uint64(args.CloseTime))
	w.WriteU32LE(uint32(len(args.AllowedVoters)))
	for _, v := range args.AllowedVoters {
		w.WriteBytes(v[:])
	}
	return finish(w)
}

// EncodeVoteArgs builds the vote instruction data.
func EncodeVoteArgs(choiceIndex uint32) ([]byte, error) {
	w := newInstructionWriter(InstructionVote)
	w.WriteU32LE(choiceIndex)
	return finish(w)
}

// EncodeCloseSessionArgs builds the close_session instruction data.
func EncodeCloseSessionArgs() ([]byte, error) {
	return finish(newInstructionWriter(InstructionCloseSession))
}

// EncodeVoteAccount serializes a session account. The client never writes
// accounts; this exists so fixtures match the program's layout byte for byte.
func EncodeVoteAccount(acct VoteAccount) ([]byte, error) {
	w := nio.NewBufBinWriter()
	d := AccountDiscriminator(AccountVoteAccount)
	w.WriteBytes(d[:])
	w.WriteU32LE(uint32(len(acct.Options)))
	for _, o := range acct.Options {
		writeString(w.BinWriter, o.Label)
		if o.Count == nil || !o.Count.IsUint64() {
			return nil, fmt.Errorf("option %q count does not fit u64", o.Label)
		}
		w.WriteU64LE(o.Count.Uint64())
	}
	if acct.CloseTime == nil || !acct.CloseTime.IsInt64() {
		return nil, fmt.Errorf("close time does not fit i64")
	}
	w.WriteU64LE(uint64(acct.CloseTime.Int64()))
	w.WriteBytes(acct.Creator[:])
	w.WriteU32LE(uint32(len(acct.AllowedVoters)))
	for _, v := range acct.AllowedVoters {
		w.WriteBytes(v[:])
	}
	return finish(w)
}

func newInstructionWriter(name string) *nio.BufBinWriter {
	w := nio.NewBufBinWriter()
	d := InstructionDiscriminator(name)
	w.WriteBytes(d[:])
	return w
}

func writeString(w *nio.BinWriter, s string) {
	w.WriteU32LE(uint32(len(s)))
	w.WriteBytes([]byte(s))
}

func finish(w *nio.BufBinWriter) ([]byte, error) {
	if w.Err != nil {
		return nil, w.Err
	}
	return w.Bytes(), nil
}
