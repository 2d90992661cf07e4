package chain

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/mr-tron/base58"
)

// SignatureLength is the size of an ed25519 signature.
const SignatureLength = 64

// Signature is a transaction signature. The first signature of a transaction
// is its identifier.
type Signature [SignatureLength]byte

// String returns the base58 encoding used as the transaction id.
func (s Signature) String() string { return base58.Encode(s[:]) }

// IsZero reports whether the signature slot is still empty.
func (s Signature) IsZero() bool { return s == Signature{} }

// AccountMeta describes an account referenced by an instruction.
type AccountMeta struct {
	Address    Address
	IsSigner   bool
	IsWritable bool
}

// Instruction is a single program invocation.
type Instruction struct {
	ProgramID Address
	Accounts  []AccountMeta
	Data      []byte
}

// MessageHeader counts signer and read-only accounts.
type MessageHeader struct {
	NumRequiredSignatures       uint8
	NumReadonlySignedAccounts   uint8
	NumReadonlyUnsignedAccounts uint8
}

// CompiledInstruction references accounts by index into Message.AccountKeys.
type CompiledInstruction struct {
	ProgramIDIndex uint8
	Accounts       []uint8
	Data           []byte
}

// Message is the signed portion of a legacy transaction.
type Message struct {
	Header          MessageHeader
	AccountKeys     []Address
	RecentBlockhash [32]byte
	Instructions    []CompiledInstruction
}

// Transaction pairs a message with its signatures.
type Transaction struct {
	Signatures []Signature
	Message    Message
}

// NewTransaction compiles instructions into a transaction paid by feePayer.
// Account keys are ordered fee payer first, then writable signers, read-only
// signers, writable non-signers and read-only non-signers, each group in
// first-seen order.
func NewTransaction(instructions []Instruction, recentBlockhash [32]byte, feePayer Address) (*Transaction, error) {
	if len(instructions) == 0 {
		return nil, fmt.Errorf("transaction requires at least one instruction")
	}

	type entry struct {
		meta  AccountMeta
		order int
	}
	index := map[Address]*entry{}
	var ordered []*entry
	add := func(m AccountMeta) {
		if e, ok := index[m.Address]; ok {
			e.meta.IsSigner = e.meta.IsSigner || m.IsSigner
			e.meta.IsWritable = e.meta.IsWritable || m.IsWritable
			return
		}
		e := &entry{meta: m, order: len(ordered)}
		index[m.Address] = e
		ordered = append(ordered, e)
	}

	add(AccountMeta{Address: feePayer, IsSigner: true, IsWritable: true})
	for _, ix := range instructions {
		for _, acc := range ix.Accounts {
			add(acc)
		}
		add(AccountMeta{Address: ix.ProgramID})
	}

	var groups [4][]Address
	for _, e := range ordered {
		switch {
		case e.meta.Address == feePayer:
			// placed first below
		case e.meta.IsSigner && e.meta.IsWritable:
			groups[0] = append(groups[0], e.meta.Address)
		case e.meta.IsSigner:
			groups[1] = append(groups[1], e.meta.Address)
		case e.meta.IsWritable:
			groups[2] = append(groups[2], e.meta.Address)
		default:
			groups[3] = append(groups[3], e.meta.Address)
		}
	}

	keys := []Address{feePayer}
	for _, g := range groups {
		keys = append(keys, g...)
	}
	if len(keys) > 256 {
		return nil, fmt.Errorf("too many accounts: %d", len(keys))
	}

	header := MessageHeader{
		NumRequiredSignatures:       uint8(1 + len(groups[0]) + len(groups[1])),
		NumReadonlySignedAccounts:   uint8(len(groups[1])),
		NumReadonlyUnsignedAccounts: uint8(len(groups[3])),
	}

	position := make(map[Address]uint8, len(keys))
	for i, k := range keys {
		position[k] = uint8(i)
	}

	compiled := make([]CompiledInstruction, 0, len(instructions))
	for _, ix := range instructions {
		ci := CompiledInstruction{
			ProgramIDIndex: position[ix.ProgramID],
			Accounts:       make([]uint8, 0, len(ix.Accounts)),
			Data:           ix.Data,
		}
		for _, acc := range ix.Accounts {
			ci.Accounts = append(ci.Accounts, position[acc.Address])
		}
		compiled = append(compiled, ci)
	}

	return &Transaction{
		Signatures: make([]Signature, header.NumRequiredSignatures),
		Message: Message{
			Header:          header,
			AccountKeys:     keys,
			RecentBlockhash: recentBlockhash,
			Instructions:    compiled,
		},
	}, nil
}

// Signers returns the addresses whose signatures the message requires.
func (m Message) Signers() []Address {
	return m.AccountKeys[:m.Header.NumRequiredSignatures]
}

// MarshalBinary serializes the message in wire format.
func (m Message) MarshalBinary() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte(m.Header.NumRequiredSignatures)
	buf.WriteByte(m.Header.NumReadonlySignedAccounts)
	buf.WriteByte(m.Header.NumReadonlyUnsignedAccounts)

	writeCompactU16(&buf, len(m.AccountKeys))
	for _, k := range m.AccountKeys {
		buf.Write(k[:])
	}
	buf.Write(m.RecentBlockhash[:])

	writeCompactU16(&buf, len(m.Instructions))
	for _, ix := range m.Instructions {
		buf.WriteByte(ix.ProgramIDIndex)
		writeCompactU16(&buf, len(ix.Accounts))
		buf.Write(ix.Accounts)
		writeCompactU16(&buf, len(ix.Data))
		buf.Write(ix.Data)
	}
	return buf.Bytes(), nil
}

// Sign adds signatures from the given keypairs. Keypairs that are not
// required signers are rejected.
func (tx *Transaction) Sign(signers ...Keypair) error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	required := tx.Message.Signers()
	for _, kp := range signers {
		pub := kp.PublicKey()
		slot := -1
		for i, addr := range required {
			if addr == pub {
				slot = i
				break
			}
		}
		if slot < 0 {
			return fmt.Errorf("%s is not a required signer", pub)
		}
		tx.Signatures[slot] = kp.Sign(msg)
	}
	return nil
}

// AddSignature places an externally produced signature for addr.
func (tx *Transaction) AddSignature(addr Address, sig Signature) error {
	for i, signer := range tx.Message.Signers() {
		if signer == addr {
			tx.Signatures[i] = sig
			return nil
		}
	}
	return fmt.Errorf("%s is not a required signer", addr)
}

// VerifySignatures checks that every required signature is present and valid.
func (tx *Transaction) VerifySignatures() error {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return err
	}
	for i, signer := range tx.Message.Signers() {
		if tx.Signatures[i].IsZero() {
			return fmt.Errorf("missing signature for %s", signer)
		}
		if !Verify(signer, msg, tx.Signatures[i]) {
			return fmt.Errorf("invalid signature for %s", signer)
		}
	}
	return nil
}

// ID returns the transaction identifier (the fee payer's signature).
func (tx *Transaction) ID() string {
	if len(tx.Signatures) == 0 {
		return ""
	}
	return tx.Signatures[0].String()
}

// MarshalBinary serializes signatures followed by the message.
func (tx *Transaction) MarshalBinary() ([]byte, error) {
	msg, err := tx.Message.MarshalBinary()
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	writeCompactU16(&buf, len(tx.Signatures))
	for _, s := range tx.Signatures {
		buf.Write(s[:])
	}
	buf.Write(msg)
	return buf.Bytes(), nil
}

// Base64 returns the wire encoding accepted by sendTransaction.
func (tx *Transaction) Base64() (string, error) {
	raw, err := tx.MarshalBinary()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(raw), nil
}

func writeCompactU16(buf *bytes.Buffer, n int) {
	v := uint16(n)
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v == 0 {
			buf.WriteByte(b)
			return
		}
		buf.WriteByte(b | 0x80)
	}
}
