package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/microsoft/python-inference-script-sub000/internal/config"
	"github.com/microsoft/python-inference-script-sub000/internal/trie"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Dictionary is the read-only lookup surface served over HTTP. *trie.Trie
// implements it.
type Dictionary interface {
	Match(key string) (uint32, error)
	Walk(fn func(key string, value uint32) error) error
	Stats() trie.Stats
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxKeyBytes    int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
	normalize      func(string) string
}

func defaultOptions() options {
	return options{
		maxKeyBytes:    4096,
		workers:        2,
		requestTimeout: 10 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxKeyBytes sets the maximum allowed lookup key length in bytes.
func WithMaxKeyBytes(n int) Option {
	return func(o *options) { o.maxKeyBytes = n }
}

// WithWorkers sets the maximum number of concurrent GET /items dumps. Zero
// disables the limit.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request enumeration deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// WithKeyNormalizer rewrites lookup keys before matching, so they agree with
// the normalization applied when the dictionary was compiled.
func WithKeyNormalizer(fn func(string) string) Option {
	return func(o *options) { o.normalize = fn }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

// handler holds the dependencies needed to serve HTTP requests.
type handler struct {
	dict Dictionary
	opts options
	sem  chan struct{} // limits concurrent enumerations
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /match, /contains,
// /items and /stats.
func NewHandler(d Dictionary, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		dict: d,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/match", h.handleMatch)
	mux.HandleFunc("/contains", h.handleContains)
	mux.HandleFunc("/items", h.handleItems)
	mux.HandleFunc("/stats", h.handleStats)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type matchResponse struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

type containsResponse struct {
	Key   string `json:"key"`
	Found bool   `json:"found"`
}

// lookupKey extracts and normalizes the key query parameter, writing an
// error response when it is missing or too long.
func (h *handler) lookupKey(w http.ResponseWriter, r *http.Request) (string, bool) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return "", false
	}
	q := r.URL.Query()
	if !q.Has("key") {
		writeError(w, http.StatusBadRequest, "key parameter is required")
		return "", false
	}
	key := q.Get("key")
	if len(key) > h.opts.maxKeyBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("key exceeds maximum size of %d bytes", h.opts.maxKeyBytes))
		return "", false
	}
	if h.opts.normalize != nil {
		key = h.opts.normalize(key)
	}
	return key, true
}

func (h *handler) handleMatch(w http.ResponseWriter, r *http.Request) {
	key, ok := h.lookupKey(w, r)
	if !ok {
		return
	}

	start := time.Now()
	v, err := h.dict.Match(key)
	elapsed := time.Since(start)

	switch {
	case err == nil:
		h.log.DebugContext(r.Context(), "match",
			slog.Int("key_len", len(key)),
			slog.Bool("found", true),
			slog.Duration("duration", elapsed),
		)
		writeJSON(w, http.StatusOK, matchResponse{Key: key, Value: v})
	case errors.Is(err, trie.ErrNotFound):
		h.log.DebugContext(r.Context(), "match",
			slog.Int("key_len", len(key)),
			slog.Bool("found", false),
			slog.Duration("duration", elapsed),
		)
		writeError(w, http.StatusNotFound, "key not found")
	default:
		h.log.ErrorContext(r.Context(), "match failed",
			slog.Int("key_len", len(key)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (h *handler) handleContains(w http.ResponseWriter, r *http.Request) {
	key, ok := h.lookupKey(w, r)
	if !ok {
		return
	}

	_, err := h.dict.Match(key)
	if err != nil && !errors.Is(err, trie.ErrNotFound) {
		h.log.ErrorContext(r.Context(), "contains failed",
			slog.Int("key_len", len(key)),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, containsResponse{Key: key, Found: err == nil})
}

type itemJSON struct {
	Key   string `json:"key"`
	Value uint32 `json:"value"`
}

func (h *handler) handleItems(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if h.opts.normalize != nil {
		prefix = h.opts.normalize(prefix)
	}

	// Acquire a worker slot and honour context cancellation while waiting.
	if h.sem != nil {
		select {
		case h.sem <- struct{}{}:
		case <-r.Context().Done():
			writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
			return
		}
		defer func() { <-h.sem }()
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.opts.requestTimeout)
	defer cancel()

	start := time.Now()
	items := []itemJSON{}
	err := h.dict.Walk(func(key string, value uint32) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if strings.HasPrefix(key, prefix) {
			items = append(items, itemJSON{Key: key, Value: value})
		}
		return nil
	})
	durationMS := time.Since(start).Milliseconds()

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			h.log.WarnContext(r.Context(), "enumeration timed out",
				slog.Int("items", len(items)),
				slog.Int64("duration_ms", durationMS),
			)
			writeError(w, http.StatusGatewayTimeout, "enumeration timed out")
			return
		}
		h.log.ErrorContext(r.Context(), "enumeration failed",
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "enumeration complete",
		slog.String("prefix", prefix),
		slog.Int("items", len(items)),
		slog.Int64("duration_ms", durationMS),
	)
	writeJSON(w, http.StatusOK, items)
}

func (h *handler) handleStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.dict.Stats())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server wires handler into net/http.Server with graceful shutdown
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	dict            Dictionary
	opts            []Option
	shutdownTimeout time.Duration
}

// New returns a server for d configured from cfg. opts are applied after the
// options derived from cfg.
func New(cfg config.Config, d Dictionary, opts ...Option) *Server {
	return &Server{
		cfg:             cfg,
		dict:            d,
		opts:            opts,
		shutdownTimeout: time.Duration(cfg.Server.ShutdownTimeout) * time.Second,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.dict == nil {
		return errors.New("server: no dictionary loaded")
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxKeyBytes(s.cfg.Server.MaxKeyBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
	}
	handlerOpts = append(handlerOpts, s.opts...)

	h := NewHandler(s.dict, handlerOpts...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

func ProbeHTTP(addr string) error {
	resp, err := http.Get("http://" + addr + "/health") //nolint:noctx
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}
