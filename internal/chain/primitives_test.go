package chain

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func mustKeypair(t *testing.T) Keypair {
	t.Helper()
	kp, err := NewKeypair()
	if err != nil {
		t.Fatalf("NewKeypair() error = %v", err)
	}
	return kp
}

func TestParseAddress(t *testing.T) {
	sys, err := ParseAddress("11111111111111111111111111111111")
	if err != nil {
		t.Fatalf("ParseAddress(system) error = %v", err)
	}
	if !sys.IsZero() || sys != SystemProgramID {
		t.Errorf("system program = %s, want zero address", sys)
	}

	prog := MustParseAddress(DefaultProgramID)
	if prog.String() != DefaultProgramID {
		t.Errorf("round trip = %s, want %s", prog.String(), DefaultProgramID)
	}

	for _, bad := range []string{"", "0OIl", "abc", DefaultProgramID + "1111"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("ParseAddress(%q) should fail", bad)
		}
	}
}

func TestAddressJSON(t *testing.T) {
	addr := MustParseAddress(DefaultProgramID)
	data, err := json.Marshal(addr)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `"`+DefaultProgramID+`"` {
		t.Errorf("Marshal() = %s", data)
	}
	var back Address
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if !back.Equals(addr) {
		t.Errorf("Unmarshal() = %s, want %s", back, addr)
	}
	if err := json.Unmarshal([]byte(`"short"`), &back); err == nil {
		t.Error("Unmarshal() should reject short address")
	}
}

func TestKeypairFromFile(t *testing.T) {
	kp := mustKeypair(t)
	ints := make([]int, 0, 64)
	for _, b := range kp.private {
		ints = append(ints, int(b))
	}
	data, _ := json.Marshal(ints)

	path := filepath.Join(t.TempDir(), "id.json")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}

	loaded, err := KeypairFromFile(path)
	if err != nil {
		t.Fatalf("KeypairFromFile() error = %v", err)
	}
	if loaded.PublicKey() != kp.PublicKey() {
		t.Error("loaded keypair has a different public key")
	}

	ints[40] ^= 1
	data, _ = json.Marshal(ints)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatal(err)
	}
	if _, err := KeypairFromFile(path); err == nil {
		t.Error("KeypairFromFile() should reject mismatched public half")
	}
}

func TestInstructionDiscriminator(t *testing.T) {
	want := Discriminator{175, 175, 109, 31, 13, 152, 155, 237}
	if got := InstructionDiscriminator(InstructionInitialize); got != want {
		t.Errorf("InstructionDiscriminator(initialize) = %v, want %v", got, want)
	}
	if InstructionDiscriminator(InstructionVote) == InstructionDiscriminator(InstructionCloseSession) {
		t.Error("distinct instructions share a discriminator")
	}
}

func TestWriteCompactU16(t *testing.T) {
	cases := map[int][]byte{
		0:      {0x00},
		0x7f:   {0x7f},
		0x80:   {0x80, 0x01},
		0x3fff: {0xff, 0x7f},
		0x4000: {0x80, 0x80, 0x01},
	}
	for n, want := range cases {
		var buf bytes.Buffer
		writeCompactU16(&buf, n)
		if !bytes.Equal(buf.Bytes(), want) {
			t.Errorf("writeCompactU16(%#x) = %x, want %x", n, buf.Bytes(), want)
		}
	}
}

func TestNewTransactionOrdering(t *testing.T) {
	payer := mustKeypair(t)
	session := mustKeypair(t)
	program := MustParseAddress(DefaultProgramID)
	p := NewVotingProgram(nil, program)

	ix, err := p.NewInitializeInstruction(session.PublicKey(), payer.PublicKey(), InitializeArgs{
		Labels:    []string{"a", "b"},
		CloseTime: 1700000000,
	})
	if err != nil {
		t.Fatalf("NewInitializeInstruction() error = %v", err)
	}

	tx, err := NewTransaction([]Instruction{ix}, [32]byte{1}, payer.PublicKey())
	if err != nil {
		t.Fatalf("NewTransaction() error = %v", err)
	}

	keys := tx.Message.AccountKeys
	want := []Address{payer.PublicKey(), session.PublicKey(), SystemProgramID, program}
	if len(keys) != len(want) {
		t.Fatalf("account keys = %d, want %d", len(keys), len(want))
	}
	for i := range want {
		if keys[i] != want[i] {
			t.Errorf("key[%d] = %s, want %s", i, keys[i], want[i])
		}
	}

	h := tx.Message.Header
	if h.NumRequiredSignatures != 2 || h.NumReadonlySignedAccounts != 0 || h.NumReadonlyUnsignedAccounts != 2 {
		t.Errorf("header = %+v", h)
	}

	ci := tx.Message.Instructions[0]
	if ci.ProgramIDIndex != 3 {
		t.Errorf("program index = %d, want 3", ci.ProgramIDIndex)
	}
	if !bytes.Equal(ci.Accounts, []uint8{1, 0, 2}) {
		t.Errorf("account indexes = %v, want [1 0 2]", ci.Accounts)
	}
}

func TestTransactionSignAndVerify(t *testing.T) {
	payer := mustKeypair(t)
	session := mustKeypair(t)
	p := NewVotingProgram(nil, MustParseAddress(DefaultProgramID))
	ix, err := p.NewInitializeInstruction(session.PublicKey(), payer.PublicKey(), InitializeArgs{Labels: []string{"x"}})
	if err != nil {
		t.Fatal(err)
	}
	tx, err := NewTransaction([]Instruction{ix}, [32]byte{9}, payer.PublicKey())
	if err != nil {
		t.Fatal(err)
	}

	if err := tx.Sign(session); err != nil {
		t.Fatalf("Sign(session) error = %v", err)
	}
	if err := tx.VerifySignatures(); err == nil {
		t.Error("VerifySignatures() should fail while the payer signature is missing")
	}
	if err := tx.Sign(payer); err != nil {
		t.Fatalf("Sign(payer) error = %v", err)
	}
	if err := tx.VerifySignatures(); err != nil {
		t.Errorf("VerifySignatures() error = %v", err)
	}
	if tx.ID() != tx.Signatures[0].String() {
		t.Error("ID() should be the payer signature")
	}

	stranger := mustKeypair(t)
	if err := tx.Sign(stranger); err == nil {
		t.Error("Sign() should reject a non-signer")
	}

	raw, err := tx.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	if raw[0] != 2 {
		t.Errorf("signature count prefix = %d, want 2", raw[0])
	}
}

func TestExplorerURL(t *testing.T) {
	if got := ExplorerURL("sig", "devnet"); got != "https://explorer.solana.com/tx/sig?cluster=devnet" {
		t.Errorf("ExplorerURL(devnet) = %s", got)
	}
	if got := ExplorerURL("sig", ""); got != "https://explorer.solana.com/tx/sig" {
		t.Errorf("ExplorerURL(mainnet) = %s", got)
	}
}
