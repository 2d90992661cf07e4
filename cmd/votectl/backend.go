package main

import (
	"context"
	"fmt"
	"net/url"
	"strconv"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/httpapi"
	"github.com/R3E-Network/voting_client/internal/httputil"
	"github.com/R3E-Network/voting_client/internal/journal"
	"github.com/R3E-Network/voting_client/internal/voting"
)

// backend runs commands either in process against the ledger or through a
// votectl server.
type backend interface {
	List(ctx context.Context, all bool, filter string) ([]httpapi.SessionResponse, error)
	Show(ctx context.Context, address string) (httpapi.SessionResponse, error)
	Create(ctx context.Context, in voting.CreateInput) (httpapi.OperationResponse, error)
	Vote(ctx context.Context, address string, choice *int) (httpapi.OperationResponse, error)
	Close(ctx context.Context, address string) (httpapi.OperationResponse, error)
	Operations(ctx context.Context, filter journal.Filter) ([]*domain.Operation, error)
	Now() int64
}

// fieldErrors reports every invalid field of a rejected operation.
type fieldErrors struct {
	err    error
	fields map[string]string
}

func (e *fieldErrors) Error() string { return e.err.Error() }
func (e *fieldErrors) Unwrap() error { return e.err }

// =============================================================================
// Local
// =============================================================================

type localBackend struct {
	ctrl   *voting.Controller
	wallet chain.Wallet
}

func (b *localBackend) Now() int64 { return b.ctrl.Now() }

func (b *localBackend) List(ctx context.Context, all bool, filter string) ([]httpapi.SessionResponse, error) {
	var sessions []domain.Session
	if all {
		fetched, err := b.ctrl.Repository().FetchAll(ctx)
		if err != nil {
			return nil, err
		}
		sessions = voting.SearchByAddress(filter, fetched)
	} else {
		listing := b.ctrl.NewListingFlow()
		if err := listing.Refresh(ctx); err != nil {
			return nil, err
		}
		listing.SetFilter(filter)
		sessions = listing.Sessions()
	}

	now := b.ctrl.Now()
	out := make([]httpapi.SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, httpapi.NewSessionResponse(s, now))
	}
	return out, nil
}

func (b *localBackend) Show(ctx context.Context, address string) (httpapi.SessionResponse, error) {
	s, err := b.ctrl.Repository().FetchOne(ctx, address)
	if err != nil {
		return httpapi.SessionResponse{}, err
	}
	return httpapi.NewSessionResponse(s, b.ctrl.Now()), nil
}

func (b *localBackend) Create(ctx context.Context, in voting.CreateInput) (httpapi.OperationResponse, error) {
	flow := b.ctrl.NewCreateFlow()
	flow.Edit(func(form *voting.CreateInput) {
		form.Labels = in.Labels
		if in.CloseTime != 0 {
			form.CloseTime = in.CloseTime
		}
		form.IsPrivate = in.IsPrivate
		form.AllowedVoters = in.AllowedVoters
	})
	return b.result(flow.Submit(ctx, b.wallet))
}

func (b *localBackend) Vote(ctx context.Context, address string, choice *int) (httpapi.OperationResponse, error) {
	flow := b.ctrl.NewVoteFlow()
	if _, err := flow.Load(ctx, address); err != nil {
		return httpapi.OperationResponse{}, err
	}
	if choice != nil {
		flow.Select(*choice)
	}
	return b.result(flow.Submit(ctx, b.wallet))
}

func (b *localBackend) Close(ctx context.Context, address string) (httpapi.OperationResponse, error) {
	return b.result(b.ctrl.Execute(ctx, domain.OperationClose, voting.CloseInput{SessionAddress: address}, b.wallet))
}

func (b *localBackend) Operations(ctx context.Context, filter journal.Filter) ([]*domain.Operation, error) {
	return b.ctrl.Operations(ctx, filter)
}

func (b *localBackend) result(out voting.Outcome) (httpapi.OperationResponse, error) {
	resp := httpapi.OperationResponse{
		Operation:      out.Operation,
		SessionAddress: out.Result.SessionAddress,
		TxID:           out.Result.TxID,
		ExplorerURL:    out.Result.ExplorerURL,
	}
	if !out.Validation.Valid {
		return resp, &fieldErrors{err: out.Err(), fields: out.Validation.FieldErrors}
	}
	return resp, out.Err()
}

// =============================================================================
// Remote
// =============================================================================

type remoteBackend struct {
	client *httputil.Client
	now    func() int64
}

func (b *remoteBackend) Now() int64 { return b.now() }

func (b *remoteBackend) List(ctx context.Context, all bool, filter string) ([]httpapi.SessionResponse, error) {
	q := url.Values{}
	if all {
		q.Set("all", "true")
	}
	if filter != "" {
		q.Set("filter", filter)
	}
	path := "/v1/sessions"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []httpapi.SessionResponse
	if err := b.client.Get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (b *remoteBackend) Show(ctx context.Context, address string) (httpapi.SessionResponse, error) {
	var out httpapi.SessionResponse
	err := b.client.Get(ctx, "/v1/sessions/"+url.PathEscape(address), &out)
	return out, err
}

func (b *remoteBackend) Create(ctx context.Context, in voting.CreateInput) (httpapi.OperationResponse, error) {
	var out httpapi.OperationResponse
	err := b.client.Post(ctx, "/v1/sessions", in, &out)
	return out, err
}

func (b *remoteBackend) Vote(ctx context.Context, address string, choice *int) (httpapi.OperationResponse, error) {
	var out httpapi.OperationResponse
	body := map[string]*int{"choice_index": choice}
	err := b.client.Post(ctx, "/v1/sessions/"+url.PathEscape(address)+"/votes", body, &out)
	return out, err
}

func (b *remoteBackend) Close(ctx context.Context, address string) (httpapi.OperationResponse, error) {
	var out httpapi.OperationResponse
	err := b.client.Delete(ctx, "/v1/sessions/"+url.PathEscape(address), &out)
	return out, err
}

func (b *remoteBackend) Operations(ctx context.Context, filter journal.Filter) ([]*domain.Operation, error) {
	q := url.Values{}
	if filter.Kind != "" {
		q.Set("kind", string(filter.Kind))
	}
	if filter.Status != "" {
		q.Set("status", string(filter.Status))
	}
	if filter.SessionAddress != "" {
		q.Set("session", filter.SessionAddress)
	}
	if filter.Wallet != "" {
		q.Set("wallet", filter.Wallet)
	}
	if filter.Limit > 0 {
		q.Set("limit", strconv.Itoa(filter.Limit))
	}
	path := "/v1/operations"
	if len(q) > 0 {
		path += "?" + q.Encode()
	}
	var out []*domain.Operation
	if err := b.client.Get(ctx, path, &out); err != nil {
		return nil, fmt.Errorf("list operations: %w", err)
	}
	return out, nil
}
