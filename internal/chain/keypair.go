package chain

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"io"
	"os"
)

// Keypair is an ed25519 signing key and its address.
type Keypair struct {
	private ed25519.PrivateKey
}

// NewKeypair generates a fresh random keypair.
func NewKeypair() (Keypair, error) {
	return newKeypairFrom(rand.Reader)
}

func newKeypairFrom(r io.Reader) (Keypair, error) {
	_, priv, err := ed25519.GenerateKey(r)
	if err != nil {
		return Keypair{}, fmt.Errorf("generate keypair: %w", err)
	}
	return Keypair{private: priv}, nil
}

// KeypairFromBytes accepts the 64-byte seed||public layout used by keypair files.
func KeypairFromBytes(b []byte) (Keypair, error) {
	if len(b) != ed25519.PrivateKeySize {
		return Keypair{}, fmt.Errorf("keypair must be %d bytes, got %d", ed25519.PrivateKeySize, len(b))
	}
	priv := ed25519.NewKeyFromSeed(b[:ed25519.SeedSize])
	if !priv.Public().(ed25519.PublicKey).Equal(ed25519.PublicKey(b[ed25519.SeedSize:])) {
		return Keypair{}, fmt.Errorf("keypair public half does not match its seed")
	}
	return Keypair{private: priv}, nil
}

// KeypairFromFile reads a keypair file holding a JSON array of 64 bytes.
func KeypairFromFile(path string) (Keypair, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Keypair{}, fmt.Errorf("read keypair file: %w", err)
	}
	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return Keypair{}, fmt.Errorf("parse keypair file %s: %w", path, err)
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return Keypair{}, fmt.Errorf("keypair file %s: byte %d out of range", path, i)
		}
		raw[i] = byte(v)
	}
	return KeypairFromBytes(raw)
}

// PublicKey returns the keypair's address.
func (k Keypair) PublicKey() Address {
	var a Address
	copy(a[:], k.private.Public().(ed25519.PublicKey))
	return a
}

// Sign signs message with the private key.
func (k Keypair) Sign(message []byte) Signature {
	var s Signature
	copy(s[:], ed25519.Sign(k.private, message))
	return s
}

// IsZero reports whether the keypair is uninitialized.
func (k Keypair) IsZero() bool { return len(k.private) == 0 }

// Verify checks sig over message for the given address.
func Verify(addr Address, message []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(addr[:]), message, sig[:])
}
