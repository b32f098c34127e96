package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/talk2db/talk2db/internal/assistant"
	"github.com/talk2db/talk2db/internal/config"
	"github.com/talk2db/talk2db/internal/domain"
	"github.com/talk2db/talk2db/internal/export"
	"github.com/talk2db/talk2db/internal/observability"
	"github.com/talk2db/talk2db/internal/schema"
	"github.com/talk2db/talk2db/internal/storage"
)

type ReadinessCheck func(ctx context.Context) error

// SchemaLoader introspects the target database on demand.
type SchemaLoader func(ctx context.Context) (schema.Description, error)

type Assistant interface {
	Ask(ctx context.Context, question string) assistant.Outcome
}

type Suggester interface {
	Suggest(ctx context.Context, domain string) []string
}

type SpeechService interface {
	Transcribe(ctx context.Context, audio io.Reader, contentType string) (string, error)
	Synthesize(ctx context.Context, text string) (io.ReadCloser, error)
}

type ExportArchiver interface {
	Archive(ctx context.Context, format export.Format, data []byte) (string, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	DependencyTimeout time.Duration
	Assistant         Assistant
	Suggester         Suggester
	Schema            SchemaLoader
	Catalog           *domain.Catalog
	Speech            SpeechService
	Archiver          ExportArchiver
	Exports           storage.ObjectStore
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"message": "Database Voice Chatbot API"})
	})

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"status":    "healthy",
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	mux.HandleFunc("GET /api/ping", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "message": "pong"})
	})

	mux.HandleFunc("GET /ready", func(w http.ResponseWriter, r *http.Request) {
		if deps.Readiness == nil {
			writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "service": cfg.Service.Name})
			return
		}
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "service": cfg.Service.Name})
	})

	mux.Handle("GET /metrics", promhttp.Handler())

	mux.HandleFunc("POST /api/query", func(w http.ResponseWriter, r *http.Request) {
		handleQuery(deps, w, r)
	})
	mux.HandleFunc("POST /api/suggestions", func(w http.ResponseWriter, r *http.Request) {
		handleSuggestions(deps, w, r)
	})
	mux.HandleFunc("GET /api/schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.HandleFunc("GET /schema", func(w http.ResponseWriter, r *http.Request) {
		handleSchema(deps, w, r)
	})
	mux.HandleFunc("GET /api/domains", func(w http.ResponseWriter, r *http.Request) {
		handleDomains(deps, w, r)
	})
	mux.HandleFunc("POST /api/export", func(w http.ResponseWriter, r *http.Request) {
		handleExport(deps, w, r)
	})
	mux.HandleFunc("GET /api/exports/{key...}", func(w http.ResponseWriter, r *http.Request) {
		handleExportDownload(deps, w, r)
	})
	for _, prefix := range []string{"", "/api"} {
		mux.HandleFunc("POST "+prefix+"/transcribe", func(w http.ResponseWriter, r *http.Request) {
			handleTranscribe(deps, w, r)
		})
		mux.HandleFunc("POST "+prefix+"/synthesize_speech", func(w http.ResponseWriter, r *http.Request) {
			handleSynthesize(deps, w, r)
		})
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	middlewares = append(middlewares, CORSMiddleware(cfg.HTTP.AllowedOrigins))
	return chain(mux, middlewares...)
}

type Pinger interface {
	PingContext(ctx context.Context) error
}

func CheckDatabase(db Pinger) ReadinessCheck {
	return func(ctx context.Context) error {
		if db == nil {
			return errors.New("database is not configured")
		}
		return db.PingContext(ctx)
	}
}

func CheckObjectStoreConfig(cfg config.Config) ReadinessCheck {
	return func(_ context.Context) error {
		if !cfg.Export.ArchiveEnabled {
			return nil
		}
		if cfg.ObjectStore.Endpoint == "" {
			return errors.New("object store endpoint is not configured")
		}
		if cfg.ObjectStore.Bucket == "" {
			return errors.New("object store bucket is not configured")
		}
		return nil
	}
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

// writeJSON encodes before writing the header so an unencodable payload still yields a JSON body.
func writeJSON(w http.ResponseWriter, status int, payload any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(payload); err != nil {
		buf.Reset()
		status = http.StatusInternalServerError
		_ = json.NewEncoder(&buf).Encode(map[string]any{
			"error_code": "ENCODE_FAILED",
			"message":    err.Error(),
			"retryable":  false,
			"context":    nil,
		})
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(buf.Bytes())
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
