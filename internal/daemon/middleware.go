package daemon

import (
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"reqtrack/internal/logging"
)

const correlationHeader = "X-Request-Id"

func (s *apiServer) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(correlationHeader))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

func (s *apiServer) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				logging.ErrorWithContext(s.log(r.Context()), "panic recovered", "api_panic",
					logging.Any("panic", rec),
					logging.String("method", r.Method),
					logging.String("path", r.URL.Path),
				)
				s.writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(payload []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(payload)
	r.bytes += n
	return n, err
}

func (s *apiServer) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(recorder, r)

		status := recorder.status
		if status == 0 {
			status = http.StatusOK
		}
		attrs := logging.Args(
			logging.String("method", r.Method),
			logging.String("path", r.URL.Path),
			logging.Int("status", status),
			logging.Int("bytes", recorder.bytes),
			logging.Duration("duration", time.Since(start)),
		)
		logger := s.log(r.Context())
		switch {
		case status >= 500:
			logger.Error("http request completed", attrs...)
		case status >= 400:
			logger.Info("http request completed", attrs...)
		default:
			logger.Debug("http request completed", attrs...)
		}
	})
}
