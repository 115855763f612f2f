// Package debugserver exposes a debug.Session over HTTP so an out-of-band
// client can drive suspended chains, plus the process metrics.
package debugserver

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roach88/vscript/internal/debug"
)

// Server routes debugger commands to a Session.
type Server struct {
	Session  *debug.Session
	Gatherer prometheus.Gatherer
}

// NewHandler creates the HTTP handler for session. Metrics come from the
// default prometheus registry.
//
//	GET    /state                      session status
//	POST   /resume, /step, /cancel     release a suspended chain
//	PUT    /breakpoints/{node}?owner=  enable a breakpoint
//	DELETE /breakpoints/{node}?owner=  disable a breakpoint
//	GET    /metrics                    prometheus exposition
func NewHandler(session *debug.Session) http.Handler {
	s := &Server{Session: session, Gatherer: prometheus.DefaultGatherer}
	return s.Routes()
}

// Routes builds the router.
func (s *Server) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/state", s.State)
	r.Post("/resume", s.action(debug.ActionResume))
	r.Post("/step", s.action(debug.ActionStep))
	r.Post("/cancel", s.action(debug.ActionCancel))
	r.Put("/breakpoints/{node}", s.breakpoint(true))
	r.Delete("/breakpoints/{node}", s.breakpoint(false))
	r.Handle("/metrics", promhttp.HandlerFor(s.Gatherer, promhttp.HandlerOpts{}))
	return r
}

// State handles GET /state.
func (s *Server) State(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Session.Status())
}

func (s *Server) action(a debug.Action) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if err := s.Session.Do(a); err != nil {
			status := http.StatusInternalServerError
			if errors.Is(err, debug.ErrNotSuspended) {
				status = http.StatusConflict
			}
			slog.Warn("debug action rejected", "action", a, "error", err)
			writeJSON(w, status, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.Session.Status())
	}
}

func (s *Server) breakpoint(enabled bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		node, err := strconv.Atoi(chi.URLParam(r, "node"))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "node must be an integer"})
			return
		}
		bp := debug.Breakpoint{Owner: r.URL.Query().Get("owner"), NodeID: node}
		if err := s.Session.SetBreakpoint(r.Context(), bp, enabled); err != nil {
			slog.Error("set breakpoint failed", "node", node, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorBody{Error: err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, s.Session.Status())
	}
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("debug response encode failed", "error", err)
	}
}

// ListenAndServe serves session on addr until ctx is done, then shuts the
// server down.
func ListenAndServe(ctx context.Context, addr string, session *debug.Session) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewHandler(session),
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		slog.Info("debug server listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
