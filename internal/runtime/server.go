package runtime

import (
	"context"
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/szaher/designs/keyreplay/internal/account"
	"github.com/szaher/designs/keyreplay/internal/secrets"
	"github.com/szaher/designs/keyreplay/internal/session"
	"github.com/szaher/designs/keyreplay/internal/telemetry"
)

// Query parameters and modes of the root endpoint.
const (
	paramAccount = "account"
	paramMode    = "mode"

	modeGo   = "go"
	modeTOTP = "totp"
)

const correlationHeader = "X-Correlation-ID"

var totpPage = template.Must(template.New("totp").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="utf-8"><title>{{.Account}}</title></head>
<body>
<input id="code" type="text" value="{{.Code}}" readonly>
<button onclick="navigator.clipboard.writeText({{.Code}})">Copy</button>
</body>
</html>
`))

// Server exposes a Service over HTTP using the query interface bookmarklets
// and hotkey bindings call: /?account=..., /?mode=go and /?mode=totp.
type Server struct {
	service   *Service
	mux       *http.ServeMux
	server    *http.Server
	logger    *slog.Logger
	metrics   http.Handler
	startTime time.Time
	replaying atomic.Int32
}

// ServerOption configures the Server.
type ServerOption func(*Server)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) ServerOption {
	return func(s *Server) { s.metrics = h }
}

// NewServer creates an HTTP server for service.
func NewServer(service *Service, opts ...ServerOption) *Server {
	s := &Server{
		service:   service,
		logger:    slog.Default(),
		startTime: time.Now(),
	}
	for _, opt := range opts {
		opt(s)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /{$}", s.handleRoot)
	if s.metrics != nil {
		mux.Handle("GET /metrics", s.metrics)
	}

	s.mux = mux
	return s
}

// Handler returns the HTTP handler for use with httptest or custom servers.
func (s *Server) Handler() http.Handler {
	return s.correlationMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("keyreplay server starting", "addr", addr, "base_dir", s.service.accounts.Base())
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server. A replay in progress is allowed to
// finish unless ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := telemetry.WithCorrelationID(r.Context(), r.Header.Get(correlationHeader))
		w.Header().Set(correlationHeader, telemetry.CorrelationID(ctx))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"uptime":    time.Since(s.startTime).String(),
		"replaying": s.replaying.Load() > 0,
		"version":   Version,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	switch mode := q.Get(paramMode); mode {
	case "":
		s.handleSelect(w, r, q.Get(paramAccount))
	case modeGo:
		s.handleGo(w, r)
	case modeTOTP:
		s.handleTOTP(w, r, q.Get(paramAccount))
	default:
		writeError(w, http.StatusBadRequest, "unknown_mode", "unknown mode "+mode)
	}
}

func (s *Server) handleSelect(w http.ResponseWriter, r *http.Request, name string) {
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing_account", "account parameter is required")
		return
	}
	url, err := s.service.Select(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, name, err)
		return
	}
	http.Redirect(w, r, url, http.StatusFound)
}

func (s *Server) handleGo(w http.ResponseWriter, r *http.Request) {
	name, err := s.service.Selected(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "", err)
		return
	}

	// The replay types into whatever window has focus; a client hanging up
	// must not stop it halfway through a password.
	ctx := context.WithoutCancel(r.Context())
	s.replaying.Add(1)
	err = s.service.Replay(ctx, name)
	s.replaying.Add(-1)
	if err != nil {
		s.writeServiceError(w, r, name, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "account": name})
}

func (s *Server) handleTOTP(w http.ResponseWriter, r *http.Request, name string) {
	code, err := s.service.TOTP(r.Context(), name)
	if err != nil {
		s.writeServiceError(w, r, name, err)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_ = totpPage.Execute(w, struct{ Account, Code string }{name, code})
}

func (s *Server) writeServiceError(w http.ResponseWriter, r *http.Request, name string, err error) {
	status, code := errorStatus(err)
	message := s.service.Redact(err.Error())
	logger := telemetry.RequestLogger(r.Context(), s.logger, name)
	if status >= http.StatusInternalServerError {
		logger.Error("request failed", "status", status, "error", message)
	} else {
		logger.Info("request rejected", "status", status, "error", message)
	}
	writeError(w, status, code, message)
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, account.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, session.ErrEmpty):
		return http.StatusConflict, "no_account_selected"
	case errors.Is(err, account.ErrNoURL):
		return http.StatusUnprocessableEntity, "no_url"
	case errors.Is(err, ErrNoTOTP):
		return http.StatusUnprocessableEntity, "no_totp"
	case errors.Is(err, secrets.ErrDecryptFailed):
		return http.StatusBadGateway, "decrypt_failed"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, map[string]string{"error": code, "message": message})
}
