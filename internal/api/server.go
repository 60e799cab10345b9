// Package api exposes the sync core over a local HTTP surface for the UI
// process: domain queries and mutations, balance views, and queue
// introspection.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/divvyhq/divvy/internal/remote"
	"github.com/divvyhq/divvy/internal/service"
	"github.com/divvyhq/divvy/internal/syncer"
)

// Server routes local UI requests to the service layer.
type Server struct {
	svc     *service.Service
	session *remote.Session
	worker  *syncer.Worker
	metrics *syncer.Metrics

	http *http.Server
}

// NewServer builds the local HTTP server. session, worker and metrics may
// be nil in tests.
func NewServer(addr string, svc *service.Service, session *remote.Session, worker *syncer.Worker, metrics *syncer.Metrics, readTimeout, writeTimeout time.Duration) *Server {
	s := &Server{svc: svc, session: session, worker: worker, metrics: metrics}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	if metrics != nil {
		mux.Handle("GET /metrics", metrics.Handler())
	}

	mux.HandleFunc("GET /v1/groups", s.handleListGroups)
	mux.HandleFunc("POST /v1/groups", s.handleCreateGroup)
	mux.HandleFunc("GET /v1/groups/{id}", s.handleGetGroup)
	mux.HandleFunc("PUT /v1/groups/{id}", s.handleUpdateGroup)

	mux.HandleFunc("GET /v1/groups/{id}/expenses", s.handleListExpenses)
	mux.HandleFunc("GET /v1/groups/{id}/settlements", s.handleListSettlements)
	mux.HandleFunc("GET /v1/groups/{id}/balances", s.handleBalances)
	mux.HandleFunc("GET /v1/groups/{id}/settle-up", s.handleSettleUp)
	mux.HandleFunc("GET /v1/groups/{id}/settled", s.handleSettledView)

	mux.HandleFunc("POST /v1/expenses", s.handleCreateExpense)
	mux.HandleFunc("PUT /v1/expenses/{id}", s.handleUpdateExpense)
	mux.HandleFunc("DELETE /v1/expenses/{id}", s.handleDeleteExpense)

	mux.HandleFunc("POST /v1/settlements", s.handleCreateSettlement)
	mux.HandleFunc("DELETE /v1/settlements/{id}", s.handleDeleteSettlement)

	mux.HandleFunc("GET /v1/users/{id}/payment-methods", s.handleListPaymentMethods)
	mux.HandleFunc("POST /v1/payment-methods", s.handleCreatePaymentMethod)
	mux.HandleFunc("DELETE /v1/users/{userID}/payment-methods/{id}", s.handleDeletePaymentMethod)

	mux.HandleFunc("GET /v1/session", s.handleSession)

	mux.HandleFunc("GET /v1/sync/status", s.handleSyncStatus)
	mux.HandleFunc("GET /v1/sync/queue", s.handleSyncQueue)
	mux.HandleFunc("GET /v1/sync/dead", s.handleSyncDead)
	mux.HandleFunc("POST /v1/sync/refresh", s.handleRefresh)

	s.http = &http.Server{
		Addr:         addr,
		Handler:      loggingMiddleware(mux),
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
	}
	return s
}

// Handler returns the routing handler, for tests.
func (s *Server) Handler() http.Handler { return s.http.Handler }

// ListenAndServe runs the server until Shutdown.
func (s *Server) ListenAndServe() error {
	slog.Info("Local API listening", "address", s.http.Addr)
	err := s.http.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// errorBody is the JSON shape of every non-2xx response.
type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError maps service errors onto HTTP statuses.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: err.Error()})
	case remote.IsValidation(err):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case remote.AsConflict(err) != nil:
		writeJSON(w, http.StatusConflict, errorBody{Error: err.Error()})
	case errors.Is(err, service.ErrOffline):
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: err.Error()})
	default:
		slog.ErrorContext(r.Context(), "Request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		writeJSON(w, http.StatusInternalServerError, errorBody{Error: "internal error"})
	}
}

func decodeBody(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return &remote.ValidationError{Reason: "invalid request body: " + err.Error()}
	}
	return nil
}

// loggingMiddleware logs all incoming requests.
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		slog.Info("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}
