package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/trace"
)

// New builds the service logger from the process environment.
// JSON output inside Kubernetes or when ENV is prod/dev, colored text otherwise.
func New() *slog.Logger {
	_, inK8s := os.LookupEnv("KUBERNETES_SERVICE_HOST")
	env := os.Getenv("ENV")

	return NewWithWriter(os.Stdout, inK8s || env == "prod" || env == "dev", os.Getenv("LOG_LEVEL"))
}

// NewWithWriter is New with explicit output, format and level.
func NewWithWriter(w io.Writer, useJSON bool, level string) *slog.Logger {
	var handler slog.Handler
	if useJSON {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{
			Level:     parseLevel(level, slog.LevelInfo),
			AddSource: true,
		})
	} else {
		handler = newColorTextHandler(w, &slog.HandlerOptions{
			Level: parseLevel(level, slog.LevelDebug),
		})
	}
	return slog.New(newTraceContextHandler(handler))
}

func NewWithServiceContext(serviceName, version string) *slog.Logger {
	return New().With(
		slog.String("service", serviceName),
		slog.String("version", version),
		slog.String("environment", os.Getenv("ENV")),
	)
}

// Discard returns a logger that drops everything. Used by tests.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func parseLevel(s string, fallback slog.Level) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return fallback
}

const (
	colorRed   = "\x1b[31m"
	colorReset = "\x1b[0m"
)

// colorTextHandler paints ERROR lines red. The escape codes wrap the whole
// line because TextHandler quotes control characters inside values.
type colorTextHandler struct {
	next slog.Handler
	w    io.Writer
	mu   *sync.Mutex
}

func newColorTextHandler(w io.Writer, opts *slog.HandlerOptions) *colorTextHandler {
	return &colorTextHandler{next: slog.NewTextHandler(w, opts), w: w, mu: &sync.Mutex{}}
}

func (h *colorTextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *colorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	if r.Level < slog.LevelError {
		return h.next.Handle(ctx, r)
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, err := io.WriteString(h.w, colorRed); err != nil {
		return err
	}
	if err := h.next.Handle(ctx, r); err != nil {
		return err
	}
	_, err := io.WriteString(h.w, colorReset)
	return err
}

func (h *colorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &colorTextHandler{next: h.next.WithAttrs(attrs), w: h.w, mu: h.mu}
}

func (h *colorTextHandler) WithGroup(name string) slog.Handler {
	return &colorTextHandler{next: h.next.WithGroup(name), w: h.w, mu: h.mu}
}

// traceContextHandler adds trace_id and span_id when the context carries an OTel span.
type traceContextHandler struct {
	next slog.Handler
}

func newTraceContextHandler(h slog.Handler) *traceContextHandler {
	return &traceContextHandler{next: h}
}

func (h *traceContextHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *traceContextHandler) Handle(ctx context.Context, r slog.Record) error {
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		r.AddAttrs(
			slog.String("trace_id", sc.TraceID().String()),
			slog.String("span_id", sc.SpanID().String()),
		)
	}
	return h.next.Handle(ctx, r)
}

func (h *traceContextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &traceContextHandler{next: h.next.WithAttrs(attrs)}
}

func (h *traceContextHandler) WithGroup(name string) slog.Handler {
	return &traceContextHandler{next: h.next.WithGroup(name)}
}
