// Package httpapi serves the session, agent and template API over HTTP, with a
// server-sent event stream of changes on /stream.
package httpapi

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/Plexify-AI/plexifybid-sub001/internal/config"
	"github.com/Plexify-AI/plexifybid-sub001/internal/errors"
	"github.com/Plexify-AI/plexifybid-sub001/internal/services"
	"github.com/Plexify-AI/plexifybid-sub001/pkg/models"
)

// defaultMaxRequestBodyBytes caps request bodies at 1 MiB.
const defaultMaxRequestBodyBytes = 1 << 20

// OperatorHeader names the operator a request acts for.
const OperatorHeader = "X-Operator"

func limitBody(w http.ResponseWriter, r *http.Request, maxBytes int64) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
}

// bodyLimitMiddleware limits request body size for POST, PUT and PATCH.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			limitBody(w, r, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows any origin; only installed in dev mode.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key, X-Operator")
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ServerOptions configures the HTTP server.
type ServerOptions struct {
	Home           string
	Addr           string
	Dev            bool
	APIKey         string // if set, require X-API-Key header or api_key query
	Operator       string // used when a request carries no X-Operator header
	DB             config.DBConfig
	Notify         config.NotifyConfig
	MetricsHandler http.Handler // if nil, /metrics serves the default Prometheus registry
	UseOtelHTTP    bool

	// Services, when set, is used instead of opening a store from DB. The caller
	// keeps ownership and closes it.
	Services *services.Services
}

// App holds the HTTP server, SSE hub and the domain services behind it.
type App struct {
	Server   *http.Server
	Hub      *SSEHub
	Services *services.Services
	Home     string
	Operator string
}

// NewApp opens the store (unless opts.Services is set) and registers all routes.
func NewApp(opts ServerOptions) (*App, error) {
	svc := opts.Services
	owned := false
	if svc == nil {
		var err error
		if svc, err = services.Open(context.Background(), opts.Home, config.Config{DB: opts.DB, Notify: opts.Notify}); err != nil {
			return nil, err
		}
		owned = true
	}
	app := &App{Hub: NewSSEHub(), Services: svc, Home: opts.Home, Operator: opts.Operator}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, map[string]any{"ok": true})
	})
	metrics := opts.MetricsHandler
	if metrics == nil {
		metrics = promhttp.Handler()
	}
	mux.Handle("GET /metrics", metrics)
	mux.HandleFunc("GET /config", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, models.Config{Home: opts.Home, Operator: app.operator(r), DBDriver: dbDriver(opts.DB)})
	})
	mux.HandleFunc("GET /stream", app.Hub.Handler())
	app.routes(mux)

	var handler http.Handler = mux
	handler = bodyLimitMiddleware(defaultMaxRequestBodyBytes, handler)
	if opts.Dev {
		handler = corsMiddleware(handler)
	}
	if opts.APIKey != "" {
		handler = apiKeyMiddleware(opts.APIKey, handler)
	}
	handler = requestLogMiddleware(handler)
	if opts.UseOtelHTTP {
		handler = otelhttp.NewHandler(handler, "plexify")
	}
	app.Server = &http.Server{
		Addr:              opts.Addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		// Zero so /stream can stay open; handlers bound their own work.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}
	if owned {
		app.Server.RegisterOnShutdown(func() {
			_ = svc.Close()
		})
	}
	return app, nil
}

func dbDriver(db config.DBConfig) string {
	if db.Driver == "" {
		return "sqlite"
	}
	return db.Driver
}

// operator returns the X-Operator header, or the server default.
func (a *App) operator(r *http.Request) string {
	if op := strings.TrimSpace(r.Header.Get(OperatorHeader)); op != "" {
		return op
	}
	return a.Operator
}

// responseRecorder captures the status code for logging and forwards Flush.
type responseRecorder struct {
	http.ResponseWriter
	status int
}

func (r *responseRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *responseRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func apiKeyMiddleware(apiKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path := r.URL.Path
		if path == "/health" || path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}
		key := r.Header.Get("X-API-Key")
		if key == "" {
			key = r.URL.Query().Get("api_key")
		}
		if key != apiKey {
			writeJSONError(w, http.StatusUnauthorized, "unauthorized", "invalid or missing API key")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func requestLogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		start := time.Now()
		rec := &responseRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, req)
		slog.Info("request",
			"method", req.Method,
			"path", req.URL.Path,
			"status", rec.status,
			"duration_ms", time.Since(start).Milliseconds())
	})
}

// decodeJSON decodes the request body into v. An empty body leaves v unchanged
// when allowEmpty is set.
func decodeJSON(r *http.Request, v any, allowEmpty bool) error {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil || (allowEmpty && stderrors.Is(err, io.EOF)) {
		return nil
	}
	var tooBig *http.MaxBytesError
	if stderrors.As(err, &tooBig) {
		return errors.NewValidationError("request body too large").WithCause(err)
	}
	return errors.NewValidationError("invalid json: " + err.Error()).WithCause(err)
}

func writeJSON(w http.ResponseWriter, v any) {
	writeJSONStatus(w, http.StatusOK, v)
}

func writeJSONStatus(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(v)
}

// writeJSONError sends {"error": message, "kind": kind} with the given status.
func writeJSONError(w http.ResponseWriter, code int, kind, message string) {
	writeJSONStatus(w, code, models.Error{Error: message, Kind: kind})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k errors.Kind) int {
	switch k {
	case errors.KindConflict:
		return http.StatusConflict
	case errors.KindValidation:
		return http.StatusBadRequest
	case errors.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// writeError classifies err and writes it. Storage and internal failures are
// logged and reported without their cause.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := errors.KindOf(err)
	body := models.Error{Kind: string(kind), Error: err.Error()}
	var (
		ve *errors.ValidationError
		ce *errors.ConflictError
		ne *errors.NotFoundError
		cf *errors.CompensationError
	)
	switch {
	case errors.As(err, &cf):
		body.ID = cf.Orphan
		body.Error = "session start failed and could not be rolled back"
	case errors.As(err, &ce):
		body.ID = ce.ID
	case errors.As(err, &ve):
		body.Field = ve.Field
	case errors.As(err, &ne):
		body.ID = ne.ID
	}
	if !errors.IsUserFacing(err) {
		slog.Error("request failed", "method", r.Method, "path", r.URL.Path, "kind", kind, "err", err)
		if kind != errors.KindCompensation {
			body.Error = string(kind) + " error"
		}
	}
	writeJSONStatus(w, StatusFor(kind), body)
}
