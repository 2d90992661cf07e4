package httpapi

import (
	"bytes"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
	"github.com/R3E-Network/voting_client/internal/httputil"
	"github.com/R3E-Network/voting_client/internal/middleware"
	"github.com/R3E-Network/voting_client/internal/voting"
)

const now = int64(1700000000)

type fixture struct {
	t       *testing.T
	ledger  *voting.FakeLedger
	handler http.Handler
	signer  chain.Keypair
}

func newFixture(t *testing.T, wallet func(chain.Keypair) chain.Wallet) *fixture {
	t.Helper()
	ledger := voting.NewFakeLedger(func() int64 { return now })
	ctrl, err := voting.NewFakeController(ledger, func() time.Time { return time.Unix(now, 0) })
	require.NoError(t, err)
	kp, err := chain.NewKeypair()
	require.NoError(t, err)
	if wallet == nil {
		wallet = chain.KeypairWallet
	}
	return &fixture{
		t:       t,
		ledger:  ledger,
		handler: NewHandler(Config{Controller: ctrl, Wallet: wallet(kp)}),
		signer:  kp,
	}
}

func (f *fixture) put(creator chain.Address, closeTime int64, labels ...string) string {
	kp, err := chain.NewKeypair()
	require.NoError(f.t, err)
	acct := chain.VoteAccount{CloseTime: big.NewInt(closeTime), Creator: creator}
	for _, l := range labels {
		acct.Options = append(acct.Options, chain.OptionCount{Label: l, Count: big.NewInt(0)})
	}
	f.ledger.Put(kp.PublicKey(), acct)
	return kp.PublicKey().String()
}

func (f *fixture) do(method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		require.NoError(f.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode[map[string]interface{}](t, rec)
	assert.Equal(t, true, body["can_sign"])
	assert.NotEmpty(t, rec.Header().Get(middleware.RequestIDHeader))
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodGet, "/v1/sessions", nil)
	rec := f.do(http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "voting_client_http_requests_total")
}

func TestListSessions(t *testing.T) {
	f := newFixture(t, nil)
	creator := f.signer.PublicKey()
	open := f.put(creator, now+60, "a", "b")
	f.put(creator, now-60, "old")

	rec := f.do(http.MethodGet, "/v1/sessions", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[[]SessionResponse](t, rec)
	require.Len(t, got, 1)
	assert.Equal(t, open, got[0].Address)
	assert.True(t, got[0].Open)
	assert.Equal(t, domain.VoterPolicyPublic, got[0].VoterPolicy)

	rec = f.do(http.MethodGet, "/v1/sessions?all=true", nil)
	assert.Len(t, decode[[]SessionResponse](t, rec), 2)

	rec = f.do(http.MethodGet, "/v1/sessions?all=1&filter=zzzzzzzzzz", nil)
	assert.Empty(t, decode[[]SessionResponse](t, rec))
}

func TestListSessions_FetchFailed(t *testing.T) {
	f := newFixture(t, nil)
	f.ledger.FetchErr = &chain.RPCError{Code: -32005, Message: "node unhealthy"}

	rec := f.do(http.MethodGet, "/v1/sessions", nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[httputil.ErrorResponse](t, rec)
	assert.Equal(t, errors.CodeFetchFailed, body.Error.Code)
}

func TestGetSession(t *testing.T) {
	f := newFixture(t, nil)
	addr := f.put(f.signer.PublicKey(), now+60, "yes", "no")

	rec := f.do(http.MethodGet, "/v1/sessions/"+addr, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"yes", "no"}, decode[SessionResponse](t, rec).Labels())

	missing, err := chain.NewKeypair()
	require.NoError(t, err)
	rec = f.do(http.MethodGet, "/v1/sessions/"+missing.PublicKey().String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/v1/sessions/not-base58!", nil)
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestCreateSession(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/sessions", voting.CreateInput{Labels: "Cat, Dog, Cow", CloseTime: now + 3600})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	resp := decode[OperationResponse](t, rec)
	assert.Equal(t, domain.StatusConfirmed, resp.Operation.Status)
	assert.NotEmpty(t, resp.TxID)
	assert.Contains(t, resp.ExplorerURL, "cluster=devnet")
	assert.True(t, f.ledger.Exists(chain.MustParseAddress(resp.SessionAddress)))
}

func TestCreateSession_ValidationErrors(t *testing.T) {
	f := newFixture(t, nil)

	rec := f.do(http.MethodPost, "/v1/sessions", voting.CreateInput{Labels: "", CloseTime: now - 1})
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	body := decode[httputil.ErrorResponse](t, rec)
	assert.Equal(t, errors.CodeInvalidLabels, body.Error.Code)
	assert.Contains(t, body.Fields, voting.FieldLabels)
	assert.Contains(t, body.Fields, voting.FieldCloseTime)
	assert.Zero(t, f.ledger.Submissions)

	rec = f.do(http.MethodPost, "/v1/sessions", map[string]string{"nonsense": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestCreateSession_ReadOnlyWallet(t *testing.T) {
	f := newFixture(t, func(kp chain.Keypair) chain.Wallet { return chain.ReadOnlyWallet(kp.PublicKey()) })

	rec := f.do(http.MethodPost, "/v1/sessions", voting.CreateInput{Labels: "a", CloseTime: now + 60})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, errors.CodeNoWalletConnected, decode[httputil.ErrorResponse](t, rec).Error.Code)
	assert.Zero(t, f.ledger.Submissions)
}

func TestVote(t *testing.T) {
	f := newFixture(t, nil)
	addr := f.put(f.signer.PublicKey(), now+60, "Cat", "Dog", "Cow")

	rec := f.do(http.MethodPost, "/v1/sessions/"+addr+"/votes", map[string]int{"choice_index": 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = f.do(http.MethodGet, "/v1/sessions/"+addr, nil)
	s := decode[SessionResponse](t, rec)
	assert.Equal(t, int64(1), s.Options[1].Count)
	assert.Equal(t, int64(1), s.TotalVotes)

	rec = f.do(http.MethodPost, "/v1/sessions/"+addr+"/votes", map[string]int{"choice_index": 3})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeChoiceOutOfRange, decode[httputil.ErrorResponse](t, rec).Error.Code)

	rec = f.do(http.MethodPost, "/v1/sessions/"+addr+"/votes", map[string]interface{}{})
	assert.Equal(t, errors.CodeNoChoiceSelected, decode[httputil.ErrorResponse](t, rec).Error.Code)
}

func TestVote_ClosedSession(t *testing.T) {
	f := newFixture(t, nil)
	addr := f.put(f.signer.PublicKey(), now, "a")

	rec := f.do(http.MethodPost, "/v1/sessions/"+addr+"/votes", map[string]int{"choice_index": 0})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, errors.CodeSessionClosed, decode[httputil.ErrorResponse](t, rec).Error.Code)
	assert.Zero(t, f.ledger.Submissions)
}

func TestCloseSession(t *testing.T) {
	f := newFixture(t, nil)
	mine := f.put(f.signer.PublicKey(), now+60, "a")
	other, err := chain.NewKeypair()
	require.NoError(t, err)
	theirs := f.put(other.PublicKey(), now+60, "a")

	rec := f.do(http.MethodDelete, "/v1/sessions/"+mine, nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.False(t, f.ledger.Exists(chain.MustParseAddress(mine)))

	rec = f.do(http.MethodDelete, "/v1/sessions/"+theirs, nil)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode[httputil.ErrorResponse](t, rec)
	assert.Equal(t, errors.CodeSubmissionRejected, body.Error.Code)
	assert.Equal(t, "Only the session creator can close it", body.Error.Message)
}

func TestOperations(t *testing.T) {
	f := newFixture(t, nil)
	addr := f.put(f.signer.PublicKey(), now+60, "a", "b")
	f.do(http.MethodPost, "/v1/sessions/"+addr+"/votes", map[string]int{"choice_index": 0})
	f.do(http.MethodPost, "/v1/sessions", voting.CreateInput{Labels: ""})

	rec := f.do(http.MethodGet, "/v1/operations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ops := decode[[]domain.Operation](t, rec)
	require.Len(t, ops, 2)

	rec = f.do(http.MethodGet, "/v1/operations?kind=vote&session="+addr, nil)
	votes := decode[[]domain.Operation](t, rec)
	require.Len(t, votes, 1)
	assert.Equal(t, domain.StatusConfirmed, votes[0].Status)

	rec = f.do(http.MethodGet, "/v1/operations/"+votes[0].ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, votes[0].TxID, decode[domain.Operation](t, rec).TxID)

	rec = f.do(http.MethodGet, "/v1/operations/nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(http.MethodGet, "/v1/operations?limit=-3", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRateLimitApplied(t *testing.T) {
	ledger := voting.NewFakeLedger(nil)
	ctrl, err := voting.NewFakeController(ledger, nil)
	require.NoError(t, err)
	h := NewHandler(Config{Controller: ctrl, RateLimiter: middleware.NewRateLimiter(1, 1, nil)})

	codes := make([]int, 0, 2)
	for i := 0; i < 2; i++ {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/sessions", nil))
		codes = append(codes, rec.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusTooManyRequests}, codes)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code, "health is not rate limited")
}

func TestUnknownRoute(t *testing.T) {
	f := newFixture(t, nil)
	rec := f.do(http.MethodGet, "/v2/nothing", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
