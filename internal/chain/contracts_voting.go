package chain

import (
	"context"
	"fmt"
	"net/url"
)

// =============================================================================
// Voting Program Interface
// =============================================================================

// VotingProgram provides interaction with the deployed voting program.
type VotingProgram struct {
	client    *Client
	programID Address
}

// NewVotingProgram creates a new voting program interface.
func NewVotingProgram(client *Client, programID Address) *VotingProgram {
	return &VotingProgram{
		client:    client,
		programID: programID,
	}
}

// ProgramID returns the program address.
func (p *VotingProgram) ProgramID() Address { return p.programID }

// FetchAllSessions returns every session account owned by the program.
func (p *VotingProgram) FetchAllSessions(ctx context.Context) ([]ProgramAccount, error) {
	d := AccountDiscriminator(AccountVoteAccount)
	return p.client.GetProgramAccounts(ctx, p.programID, MemcmpFilter{Offset: 0, Bytes: d[:]})
}

// FetchSession returns one session account. Accounts owned by another program
// or lacking the session tag are reported as not found.
func (p *VotingProgram) FetchSession(ctx context.Context, addr Address) (ProgramAccount, error) {
	acct, err := p.client.GetAccountInfo(ctx, addr)
	if err != nil {
		return ProgramAccount{}, err
	}
	if acct.Owner != p.programID || !HasVoteAccountDiscriminator(acct.Data) {
		return ProgramAccount{}, fmt.Errorf("%w: %s is not a voting session", ErrAccountNotFound, addr)
	}
	return acct, nil
}

// Initialize creates a session account at session's address. The session
// keypair co-signs so the program can allocate the account.
func (p *VotingProgram) Initialize(ctx context.Context, wallet Wallet, session Keypair, args InitializeArgs) (string, error) {
	if !wallet.CanSign() {
		return "", fmt.Errorf("wallet cannot sign")
	}
	ix, err := p.NewInitializeInstruction(session.PublicKey(), *wallet.PublicKey, args)
	if err != nil {
		return "", err
	}
	return p.client.SignAndSend(ctx, []Instruction{ix}, wallet, session)
}

// Vote casts one vote for choiceIndex in session.
func (p *VotingProgram) Vote(ctx context.Context, wallet Wallet, session Address, choiceIndex uint32) (string, error) {
	if !wallet.CanSign() {
		return "", fmt.Errorf("wallet cannot sign")
	}
	ix, err := p.NewVoteInstruction(session, *wallet.PublicKey, choiceIndex)
	if err != nil {
		return "", err
	}
	return p.client.SignAndSend(ctx, []Instruction{ix}, wallet)
}

// CloseSession closes session and refunds its rent to the wallet.
func (p *VotingProgram) CloseSession(ctx context.Context, wallet Wallet, session Address) (string, error) {
	if !wallet.CanSign() {
		return "", fmt.Errorf("wallet cannot sign")
	}
	ix, err := p.NewCloseSessionInstruction(session, *wallet.PublicKey)
	if err != nil {
		return "", err
	}
	return p.client.SignAndSend(ctx, []Instruction{ix}, wallet)
}

// =============================================================================
// Instruction Builders
// =============================================================================

// NewInitializeInstruction builds the initialize instruction.
func (p *VotingProgram) NewInitializeInstruction(session, user Address, args InitializeArgs) (Instruction, error) {
	data, err := EncodeInitializeArgs(args)
	if err != nil {
		return Instruction{}, fmt.Errorf("encode initialize: %w", err)
	}
	return Instruction{
		ProgramID: p.programID,
		Accounts: []AccountMeta{
			{Address: session, IsSigner: true, IsWritable: true},
			{Address: user, IsSigner: true, IsWritable: true},
			{Address: SystemProgramID},
		},
		Data: data,
	}, nil
}

// NewVoteInstruction builds the vote instruction.
func (p *VotingProgram) NewVoteInstruction(session, user Address, choiceIndex uint32) (Instruction, error) {
	data, err := EncodeVoteArgs(choiceIndex)
	if err != nil {
		return Instruction{}, fmt.Errorf("encode vote: %w", err)
	}
	return Instruction{
		ProgramID: p.programID,
		Accounts: []AccountMeta{
			{Address: session, IsWritable: true},
			{Address: user, IsSigner: true},
		},
		Data: data,
	}, nil
}

// NewCloseSessionInstruction builds the close_session instruction.
func (p *VotingProgram) NewCloseSessionInstruction(session, refund Address) (Instruction, error) {
	data, err := EncodeCloseSessionArgs()
	if err != nil {
		return Instruction{}, fmt.Errorf("encode close_session: %w", err)
	}
	return Instruction{
		ProgramID: p.programID,
		Accounts: []AccountMeta{
			{Address: session, IsWritable: true},
			{Address: refund, IsSigner: true, IsWritable: true},
		},
		Data: data,
	}, nil
}

// ExplorerURL returns a block explorer link for a transaction signature.
// An empty cluster means mainnet.
func ExplorerURL(signature, cluster string) string {
	u := url.URL{Scheme: "https", Host: "explorer.solana.com", Path: "/tx/" + signature}
	if cluster != "" && cluster != "mainnet-beta" {
		u.RawQuery = url.Values{"cluster": {cluster}}.Encode()
	}
	return u.String()
}
