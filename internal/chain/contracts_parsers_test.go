package chain

import (
	"encoding/binary"
	"errors"
	"math/big"
	"testing"
)

func sampleVoteAccount(t *testing.T) VoteAccount {
	t.Helper()
	return VoteAccount{
		Options: []OptionCount{
			{Label: "Yes", Count: big.NewInt(3)},
			{Label: "No", Count: big.NewInt(1)},
			{Label: "Abstain", Count: big.NewInt(0)},
		},
		CloseTime:     big.NewInt(1700000000),
		Creator:       mustKeypair(t).PublicKey(),
		AllowedVoters: []Address{mustKeypair(t).PublicKey(), mustKeypair(t).PublicKey()},
	}
}

func TestParseVoteAccount(t *testing.T) {
	want := sampleVoteAccount(t)
	data, err := EncodeVoteAccount(want)
	if err != nil {
		t.Fatalf("EncodeVoteAccount() error = %v", err)
	}
	// allocated space is larger than the serialized value
	data = append(data, make([]byte, 200)...)

	got, err := ParseVoteAccount(data)
	if err != nil {
		t.Fatalf("ParseVoteAccount() error = %v", err)
	}
	if len(got.Options) != 3 {
		t.Fatalf("options = %d, want 3", len(got.Options))
	}
	for i, o := range got.Options {
		if o.Label != want.Options[i].Label || o.Count.Cmp(want.Options[i].Count) != 0 {
			t.Errorf("option %d = %s/%s, want %s/%s", i, o.Label, o.Count, want.Options[i].Label, want.Options[i].Count)
		}
	}
	if got.CloseTime.Int64() != 1700000000 {
		t.Errorf("close time = %s", got.CloseTime)
	}
	if got.Creator != want.Creator {
		t.Errorf("creator = %s, want %s", got.Creator, want.Creator)
	}
	if len(got.AllowedVoters) != 2 || got.AllowedVoters[1] != want.AllowedVoters[1] {
		t.Errorf("allowed voters = %v", got.AllowedVoters)
	}
}

func TestParseVoteAccount_NegativeCloseTime(t *testing.T) {
	acct := sampleVoteAccount(t)
	acct.CloseTime = big.NewInt(-5)
	data, err := EncodeVoteAccount(acct)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseVoteAccount(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.CloseTime.Int64() != -5 {
		t.Errorf("close time = %s, want -5", got.CloseTime)
	}
}

func TestParseVoteAccount_LargeCount(t *testing.T) {
	acct := sampleVoteAccount(t)
	acct.Options[0].Count = new(big.Int).SetUint64(1 << 63)
	data, err := EncodeVoteAccount(acct)
	if err != nil {
		t.Fatal(err)
	}
	got, err := ParseVoteAccount(data)
	if err != nil {
		t.Fatal(err)
	}
	if got.Options[0].Count.IsInt64() {
		t.Error("count above int64 range should survive decoding unnarrowed")
	}
}

func TestParseVoteAccount_Malformed(t *testing.T) {
	good, err := EncodeVoteAccount(sampleVoteAccount(t))
	if err != nil {
		t.Fatal(err)
	}

	hugeOptions := append([]byte{}, good[:DiscriminatorLength]...)
	hugeOptions = binary.LittleEndian.AppendUint32(hugeOptions, 100000)

	badUTF8 := append([]byte{}, good[:DiscriminatorLength]...)
	badUTF8 = binary.LittleEndian.AppendUint32(badUTF8, 1)
	badUTF8 = binary.LittleEndian.AppendUint32(badUTF8, 2)
	badUTF8 = append(badUTF8, 0xff, 0xfe)

	cases := map[string][]byte{
		"empty":         nil,
		"short":         good[:4],
		"wrong tag":     append([]byte{1, 2, 3, 4, 5, 6, 7, 8}, good[DiscriminatorLength:]...),
		"truncated":     good[:len(good)-10],
		"huge options":  hugeOptions,
		"invalid utf-8": badUTF8,
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseVoteAccount(data)
			if !errors.Is(err, ErrMalformedAccount) {
				t.Errorf("ParseVoteAccount() error = %v, want ErrMalformedAccount", err)
			}
		})
	}
}

func TestEncodeInitializeArgs(t *testing.T) {
	voter := mustKeypair(t).PublicKey()
	data, err := EncodeInitializeArgs(InitializeArgs{
		Labels:        []string{"A", "BC"},
		CloseTime:     42,
		AllowedVoters: []Address{voter},
	})
	if err != nil {
		t.Fatalf("EncodeInitializeArgs() error = %v", err)
	}

	d := InstructionDiscriminator(InstructionInitialize)
	if string(data[:8]) != string(d[:]) {
		t.Error("missing initialize discriminator")
	}
	body := data[8:]
	if binary.LittleEndian.Uint32(body) != 2 {
		t.Errorf("label count = %d", binary.LittleEndian.Uint32(body))
	}
	// 4 (count) + 4+1 ("A") + 4+2 ("BC") = 15
	if got := int64(binary.LittleEndian.Uint64(body[15:])); got != 42 {
		t.Errorf("close time = %d, want 42", got)
	}
	if binary.LittleEndian.Uint32(body[23:]) != 1 {
		t.Error("voter count should be 1")
	}
	if got, err := AddressFromBytes(body[27:59]); err != nil || got != voter {
		t.Error("voter bytes mismatch")
	}
	if len(body) != 59 {
		t.Errorf("body length = %d, want 59", len(body))
	}
}

func TestEncodeVoteArgs(t *testing.T) {
	data, err := EncodeVoteArgs(7)
	if err != nil {
		t.Fatal(err)
	}
	if len(data) != 12 || binary.LittleEndian.Uint32(data[8:]) != 7 {
		t.Errorf("EncodeVoteArgs(7) = %x", data)
	}

	closeData, err := EncodeCloseSessionArgs()
	if err != nil {
		t.Fatal(err)
	}
	if len(closeData) != DiscriminatorLength {
		t.Errorf("close_session data length = %d", len(closeData))
	}
}
