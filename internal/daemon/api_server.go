package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"reqtrack/internal/config"
	"reqtrack/internal/logging"
	"reqtrack/internal/requests"
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	verifier *tokenVerifier
	handler  http.Handler

	mu       sync.Mutex
	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	if cfg == nil || d == nil {
		return nil, errors.New("api server requires config and daemon")
	}
	if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
		return nil, errors.New("auth.jwt_secret is required to serve the API")
	}
	srv := &apiServer{
		bind:     strings.TrimSpace(cfg.Paths.APIBind),
		logger:   logging.NewComponentLogger(logger, "api-server"),
		daemon:   d,
		verifier: newTokenVerifier(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer),
	}
	srv.handler = srv.routes()
	return srv, nil
}

func (s *apiServer) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.correlationMiddleware)
	r.Use(s.recoverMiddleware)
	r.Use(s.loggingMiddleware)

	r.Get("/api/health", s.handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Route("/api/requests", func(r chi.Router) {
			r.Post("/", s.handleCreateRequest)
			r.Get("/", s.handleListOwnRequests)
			r.Get("/{id}", s.handleGetRequest)
		})

		r.Route("/api/library", func(r chi.Router) {
			r.Get("/movies", s.handleLibraryMovies)
			r.Get("/tvshows", s.handleLibraryShows)
			r.Get("/stats", s.handleLibraryStats)
			r.Get("/recent", s.handleLibraryRecent)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(s.requireAdmin)
			r.Get("/requests", s.handleAdminListRequests)
			r.Patch("/requests/{id}", s.handleAdminUpdateRequest)
			r.Get("/stats", s.handleAdminStats)
			r.Get("/users", s.handleAdminListUsers)
			r.Patch("/users/{id}", s.handleAdminUpdateUser)
			r.Get("/health", s.handleAdminHealth)
			r.Get("/reconcile", s.handleAdminLastPass)
			r.Post("/reconcile", s.handleAdminReconcile)
		})
	})

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	if s.bind == "" {
		s.logger.Info("api server disabled; no bind address configured")
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	server := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      2 * time.Minute,
		IdleTimeout:       60 * time.Second,
	}
	s.mu.Lock()
	s.listener = listener
	s.server = server
	s.mu.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.ErrorWithContext(s.logger, "api server error", "api_serve_failed", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	s.mu.Lock()
	server, listener := s.server, s.listener
	s.server, s.listener = nil, nil
	s.mu.Unlock()

	if server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}
	if listener != nil {
		_ = listener.Close()
	}
}

func (s *apiServer) address() string {
	if s == nil {
		return ""
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// writeStoreError maps classified errors to HTTP statuses. Unclassified
// errors are logged and reported as 500 without detail.
func (s *apiServer) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusForError(err)
	if status == http.StatusInternalServerError {
		logging.ErrorWithContext(s.log(r.Context()), "api request failed", "api_internal_error",
			logging.Error(err),
			logging.String("path", r.URL.Path),
		)
		s.writeError(w, status, "internal error")
		return
	}
	s.writeError(w, status, err.Error())
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	switch requests.ErrorKind(err) {
	case "not_found":
		return http.StatusNotFound
	case "validation":
		return http.StatusBadRequest
	case "conflict":
		return http.StatusConflict
	case "unauthorized":
		return http.StatusUnauthorized
	case "unavailable":
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (s *apiServer) log(ctx context.Context) *slog.Logger {
	if s == nil || s.logger == nil {
		return logging.NewNop()
	}
	return logging.WithContext(ctx, s.logger)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: decode body: %v", requests.ErrInvalidRequest, err)
	}
	return nil
}
