// Package server exposes the engine over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/klytics/xlengine/internal/apperr"
	"github.com/klytics/xlengine/internal/engine"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// Handler serves the engine's HTTP surface.
type Handler struct {
	svc       *engine.Service
	logger    *slog.Logger
	maxUpload int64
}

// NewHandler builds a Handler. maxUploadMB bounds request bodies; zero means 32 MB.
func NewHandler(svc *engine.Service, logger *slog.Logger, maxUploadMB int) *Handler {
	if maxUploadMB <= 0 {
		maxUploadMB = 32
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{svc: svc, logger: logger, maxUpload: int64(maxUploadMB) << 20}
}

// Routes returns the mux wrapped in request-ID and logging middleware.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.root)
	mux.HandleFunc("GET /health", h.health)
	mux.HandleFunc("POST /upload", h.upload)
	mux.HandleFunc("POST /analyze", h.analyze)
	mux.HandleFunc("POST /operations/math", h.math)
	mux.HandleFunc("POST /operations/aggregate", h.aggregate)
	mux.HandleFunc("POST /operations/filter", h.filter)
	mux.HandleFunc("POST /operations/pivot", h.pivot)
	mux.HandleFunc("POST /operations/unpivot", h.unpivot)
	mux.HandleFunc("POST /operations/dates", h.dates)
	mux.HandleFunc("POST /operations/join", h.join)
	return h.withRequestID(h.withLogging(mux))
}

// Serve listens on addr until ctx is cancelled, then shuts down gracefully.
func Serve(ctx context.Context, addr string, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	}
}

type errorBody struct {
	Kind    apperr.Kind  `json:"kind"`
	Message string       `json:"message"`
	Stage   engine.Stage `json:"stage,omitempty"`
}

type metadata struct {
	RequestID string    `json:"request_id"`
	Timestamp time.Time `json:"timestamp"`
}

type errorEnvelope struct {
	Status   string    `json:"status"`
	Error    errorBody `json:"error"`
	Metadata metadata  `json:"metadata"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	enc.Encode(v)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	msg := err.Error()
	var f *engine.Failure
	if errors.As(err, &f) {
		msg = f.Err.Error()
	}
	writeJSON(w, apperr.HTTPStatus(err), errorEnvelope{
		Status: "error",
		Error: errorBody{
			Kind:    apperr.KindOf(err),
			Message: msg,
			Stage:   engine.StageOf(err),
		},
		Metadata: metadata{
			RequestID: engine.RequestID(r.Context()),
			Timestamp: time.Now().UTC(),
		},
	})
}

func (h *Handler) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := engine.WithSource(engine.WithRequestID(r.Context(), id), "http")
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (h *Handler) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		h.logger.Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", engine.RequestID(r.Context()))
	})
}
