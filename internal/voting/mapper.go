package voting

import (
	"math/big"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
)

// ToDomain decodes a raw session account. Wide wire integers are narrowed with
// a range check; option order is kept as stored since it defines each
// option's index.
func ToDomain(acct chain.ProgramAccount) (domain.Session, error) {
	addr := acct.Address.String()

	raw, err := chain.ParseVoteAccount(acct.Data)
	if err != nil {
		return domain.Session{}, errors.MalformedAccount(addr, err)
	}

	closeTime, nerr := narrow("close_time", raw.CloseTime)
	if nerr != nil {
		return domain.Session{}, nerr.WithDetails("address", addr)
	}

	options := make([]domain.Option, len(raw.Options))
	for i, o := range raw.Options {
		count, nerr := narrow("count", o.Count)
		if nerr != nil {
			return domain.Session{}, nerr.WithDetails("address", addr).WithDetails("option", i)
		}
		options[i] = domain.Option{Index: i, Label: o.Label, Count: count}
	}

	var voters []string
	if len(raw.AllowedVoters) > 0 {
		voters = make([]string, len(raw.AllowedVoters))
		for i, v := range raw.AllowedVoters {
			voters[i] = v.String()
		}
	}

	return domain.Session{
		Address:       addr,
		Creator:       raw.Creator.String(),
		CloseTime:     closeTime,
		IsPrivate:     len(voters) > 0,
		AllowedVoters: voters,
		Options:       options,
	}, nil
}

// FromDomain encodes a session back into account form.
func FromDomain(s domain.Session, owner chain.Address) (chain.ProgramAccount, error) {
	addr, err := chain.ParseAddress(s.Address)
	if err != nil {
		return chain.ProgramAccount{}, errors.MalformedAddress("address", s.Address, err)
	}
	var creator chain.Address
	if s.Creator != "" {
		if creator, err = chain.ParseAddress(s.Creator); err != nil {
			return chain.ProgramAccount{}, errors.MalformedAddress("creator", s.Creator, err)
		}
	}
	voters, err := parseAddresses(FieldAllowedVoters, s.AllowedVoters)
	if err != nil {
		return chain.ProgramAccount{}, err
	}

	acct := chain.VoteAccount{
		CloseTime:     big.NewInt(s.CloseTime),
		Creator:       creator,
		AllowedVoters: voters,
	}
	for _, o := range s.Options {
		if o.Count < 0 {
			return chain.ProgramAccount{}, errors.NumericOverflow("count", big.NewInt(o.Count).String())
		}
		acct.Options = append(acct.Options, chain.OptionCount{Label: o.Label, Count: big.NewInt(o.Count)})
	}

	data, err := chain.EncodeVoteAccount(acct)
	if err != nil {
		return chain.ProgramAccount{}, errors.MalformedAccount(s.Address, err)
	}
	return chain.ProgramAccount{Address: addr, Owner: owner, Data: data}, nil
}

// ToCreateRequest builds initialize arguments from a create form. The form is
// expected to have passed Validate; address decoding failures are still
// reported rather than dropped.
func ToCreateRequest(in CreateInput) (chain.InitializeArgs, error) {
	args := chain.InitializeArgs{
		Labels:    SplitLabels(in.Labels),
		CloseTime: in.CloseTime,
	}
	if in.IsPrivate {
		voters, err := parseAddresses(FieldAllowedVoters, SplitAddresses(in.AllowedVoters))
		if err != nil {
			return chain.InitializeArgs{}, err
		}
		args.AllowedVoters = voters
	}
	return args, nil
}

func parseAddresses(field string, tokens []string) ([]chain.Address, error) {
	if len(tokens) == 0 {
		return nil, nil
	}
	out := make([]chain.Address, 0, len(tokens))
	for _, t := range tokens {
		a, err := chain.ParseAddress(t)
		if err != nil {
			return nil, errors.MalformedAddress(field, t, err)
		}
		out = append(out, a)
	}
	return out, nil
}

func narrow(field string, v *big.Int) (int64, *errors.ServiceError) {
	if v == nil {
		return 0, errors.NumericOverflow(field, "<nil>")
	}
	if !v.IsInt64() {
		return 0, errors.NumericOverflow(field, v.String())
	}
	return v.Int64(), nil
}
