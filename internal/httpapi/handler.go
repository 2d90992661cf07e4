// Package httpapi exposes the session lifecycle over JSON HTTP.
package httpapi

import (
	stderrors "errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/R3E-Network/voting_client/internal/chain"
	domain "github.com/R3E-Network/voting_client/internal/domain/voting"
	"github.com/R3E-Network/voting_client/internal/errors"
	"github.com/R3E-Network/voting_client/internal/httputil"
	"github.com/R3E-Network/voting_client/internal/journal"
	"github.com/R3E-Network/voting_client/internal/metrics"
	"github.com/R3E-Network/voting_client/internal/middleware"
	"github.com/R3E-Network/voting_client/internal/voting"
	"github.com/R3E-Network/voting_client/pkg/logger"
)

// Config configures the API handler.
type Config struct {
	Controller *voting.Controller
	// Wallet signs every write made through the API.
	Wallet         chain.Wallet
	Logger         *logger.Logger
	RateLimiter    *middleware.RateLimiter
	AllowedOrigins []string
}

// handler bundles HTTP endpoints for the lifecycle controller.
type handler struct {
	ctrl   *voting.Controller
	wallet chain.Wallet
	log    *logger.Logger
}

// NewHandler returns the API router.
func NewHandler(cfg Config) http.Handler {
	log := cfg.Logger
	if log == nil {
		log = logger.NewDefault("httpapi")
	}
	h := &handler{ctrl: cfg.Controller, wallet: cfg.Wallet, log: log}

	r := mux.NewRouter()
	r.NotFoundHandler = http.HandlerFunc(httputil.NotFound)
	r.Use(middleware.LoggingMiddleware(log))
	if len(cfg.AllowedOrigins) > 0 {
		r.Use(middleware.NewCORSMiddleware(cfg.AllowedOrigins).Handler)
	}

	r.HandleFunc("/healthz", h.health).Methods(http.MethodGet)
	r.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	api := r.PathPrefix("/v1").Subrouter()
	if cfg.RateLimiter != nil {
		api.Use(cfg.RateLimiter.Handler)
	}
	api.HandleFunc("/sessions", h.listSessions).Methods(http.MethodGet)
	api.HandleFunc("/sessions", h.createSession).Methods(http.MethodPost)
	api.HandleFunc("/sessions/{address}", h.getSession).Methods(http.MethodGet)
	api.HandleFunc("/sessions/{address}", h.closeSession).Methods(http.MethodDelete)
	api.HandleFunc("/sessions/{address}/votes", h.vote).Methods(http.MethodPost)
	api.HandleFunc("/operations", h.listOperations).Methods(http.MethodGet)
	api.HandleFunc("/operations/{id}", h.getOperation).Methods(http.MethodGet)

	return metrics.InstrumentHandler(r)
}

// =============================================================================
// Responses
// =============================================================================

// SessionResponse is a session with its derived state.
type SessionResponse struct {
	domain.Session
	Open        bool               `json:"open"`
	VoterPolicy domain.VoterPolicy `json:"voter_policy"`
	TotalVotes  int64              `json:"total_votes"`
}

// OperationResponse reports a confirmed operation.
type OperationResponse struct {
	Operation      *domain.Operation `json:"operation"`
	SessionAddress string            `json:"session_address,omitempty"`
	TxID           string            `json:"tx_id,omitempty"`
	ExplorerURL    string            `json:"explorer_url,omitempty"`
}

// NewSessionResponse derives the session's state as of unix time now.
func NewSessionResponse(s domain.Session, now int64) SessionResponse {
	return SessionResponse{
		Session:     s,
		Open:        s.IsOpenAt(now),
		VoterPolicy: s.VoterPolicy(),
		TotalVotes:  s.TotalVotes(),
	}
}

func (h *handler) sessionResponse(s domain.Session) SessionResponse {
	return NewSessionResponse(s, h.ctrl.Now())
}

// =============================================================================
// Handlers
// =============================================================================

func (h *handler) health(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "ok",
		"can_sign":  h.wallet.CanSign(),
		"unix_time": h.ctrl.Now(),
	})
}

// listSessions returns open sessions; ?all=true includes closed ones and
// ?filter= narrows by address substring.
func (h *handler) listSessions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	all, _ := strconv.ParseBool(q.Get("all"))

	repo := h.ctrl.Repository()
	var (
		sessions []domain.Session
		err      error
	)
	if all {
		sessions, err = repo.FetchAll(r.Context())
	} else {
		sessions, err = repo.FetchOpen(r.Context(), h.ctrl.Now())
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}

	sessions = voting.SearchByAddress(q.Get("filter"), sessions)
	out := make([]SessionResponse, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, h.sessionResponse(s))
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (h *handler) getSession(w http.ResponseWriter, r *http.Request) {
	s, err := h.ctrl.Repository().FetchOne(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, h.sessionResponse(s))
}

func (h *handler) createSession(w http.ResponseWriter, r *http.Request) {
	var in voting.CreateInput
	if err := httputil.DecodeJSON(r, &in); err != nil {
		httputil.WriteError(w, err)
		return
	}
	h.respond(w, r, domain.OperationCreate, in, http.StatusCreated)
}

type voteRequest struct {
	ChoiceIndex *int `json:"choice_index"`
}

// vote reads the session first so the choice is checked against its options
// and close time before anything is signed.
func (h *handler) vote(w http.ResponseWriter, r *http.Request) {
	var body voteRequest
	if err := httputil.DecodeJSON(r, &body); err != nil {
		httputil.WriteError(w, err)
		return
	}
	s, err := h.ctrl.Repository().FetchOne(r.Context(), mux.Vars(r)["address"])
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	in := voting.VoteInput{
		SessionAddress:   s.Address,
		ChoiceIndex:      body.ChoiceIndex,
		OptionCount:      len(s.Options),
		SessionCloseTime: s.CloseTime,
	}
	h.respond(w, r, domain.OperationVote, in, http.StatusOK)
}

func (h *handler) closeSession(w http.ResponseWriter, r *http.Request) {
	in := voting.CloseInput{SessionAddress: mux.Vars(r)["address"]}
	h.respond(w, r, domain.OperationClose, in, http.StatusOK)
}

func (h *handler) respond(w http.ResponseWriter, r *http.Request, kind domain.OperationKind, payload interface{}, status int) {
	out := h.ctrl.Execute(r.Context(), kind, payload, h.wallet)
	if !out.Validation.Valid {
		httputil.WriteFieldErrors(w, out.Err(), out.Validation.FieldErrors)
		return
	}
	if err := out.Err(); err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, status, OperationResponse{
		Operation:      out.Operation,
		SessionAddress: out.Result.SessionAddress,
		TxID:           out.Result.TxID,
		ExplorerURL:    out.Result.ExplorerURL,
	})
}

func (h *handler) listOperations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := journal.Filter{
		Kind:           domain.OperationKind(q.Get("kind")),
		Status:         domain.OperationStatus(q.Get("status")),
		SessionAddress: strings.TrimSpace(q.Get("session")),
		Wallet:         strings.TrimSpace(q.Get("wallet")),
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			httputil.BadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = n
	}

	ops, err := h.ctrl.Operations(r.Context(), filter)
	if err != nil {
		h.log.WithContext(r.Context()).WithError(err).Error("list operations")
		httputil.WriteError(w, err)
		return
	}
	if ops == nil {
		ops = []*domain.Operation{}
	}
	httputil.WriteJSON(w, http.StatusOK, ops)
}

func (h *handler) getOperation(w http.ResponseWriter, r *http.Request) {
	op, err := h.ctrl.Operation(r.Context(), mux.Vars(r)["id"])
	if stderrors.Is(err, journal.ErrNotFound) {
		httputil.WriteJSON(w, http.StatusNotFound, httputil.ErrorResponse{Error: &errors.ServiceError{
			Code:    "OperationNotFound",
			Message: "operation not found",
		}})
		return
	}
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, op)
}
