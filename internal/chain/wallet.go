package chain

import "context"

// SignFunc signs tx in place on behalf of a wallet.
type SignFunc func(ctx context.Context, tx *Transaction) error

// Wallet is the signing capability supplied by the user. A nil PublicKey or
// nil SignTransaction means the wallet is read-only and cannot submit.
type Wallet struct {
	PublicKey       *Address
	SignTransaction SignFunc
}

// CanSign reports whether the wallet can sign transactions.
func (w Wallet) CanSign() bool {
	return w.PublicKey != nil && w.SignTransaction != nil
}

// KeypairWallet exposes a local keypair as a Wallet.
func KeypairWallet(kp Keypair) Wallet {
	pub := kp.PublicKey()
	return Wallet{
		PublicKey: &pub,
		SignTransaction: func(_ context.Context, tx *Transaction) error {
			return tx.Sign(kp)
		},
	}
}

// ReadOnlyWallet returns a wallet with an identity but no signer.
func ReadOnlyWallet(addr Address) Wallet {
	return Wallet{PublicKey: &addr}
}
