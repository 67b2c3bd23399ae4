package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

type Level = slog.Level

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// Options selects the logging backend
type Options struct {
	Level string

	// SampleRate logs 1 out of every N warnings and errors; 1 logs all of them
	SampleRate int

	OTELEnabled bool
	ServiceName string
}

var (
	Logger       *slog.Logger
	programLevel = new(slog.LevelVar)
	sampleRate   atomic.Int32
	shutdownFunc func(context.Context) error
)

// Counters are incremented regardless of sampling and exported by the metrics collector
var (
	TotalErrors    atomic.Int64
	TotalWarnings  atomic.Int64
	Total4xxErrors atomic.Int64
	Total5xxErrors atomic.Int64
)

func init() {
	sampleRate.Store(1)
	programLevel.Set(LevelInfo)
	setupJSONLogging(os.Stdout)
}

// Setup configures the global logger. When OpenTelemetry export cannot be set
// up it falls back to JSON on stdout and returns the error for reporting.
func Setup(ctx context.Context, opts Options) error {
	level, err := ParseLevel(opts.Level)
	programLevel.Set(level)

	if opts.SampleRate > 0 {
		sampleRate.Store(int32(opts.SampleRate))
	}

	if !opts.OTELEnabled {
		setupJSONLogging(os.Stdout)
		return err
	}

	serviceName := opts.ServiceName
	if serviceName == "" {
		serviceName = "decisions"
	}
	shutdown, otelErr := setupOTELLogging(ctx, serviceName)
	if otelErr != nil {
		setupJSONLogging(os.Stdout)
		return fmt.Errorf("failed to setup OTEL logging, using JSON: %w", otelErr)
	}
	shutdownFunc = shutdown
	return err
}

// SetOutput redirects JSON logging, mainly for tests
func SetOutput(w io.Writer) {
	setupJSONLogging(w)
}

func setupJSONLogging(w io.Writer) {
	handler := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: programLevel})
	Logger = slog.New(handler)
	slog.SetDefault(Logger)
}

func setupOTELLogging(ctx context.Context, serviceName string) (func(context.Context) error, error) {
	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	loggerProvider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)

	otelHandler := otelslog.NewHandler(
		serviceName,
		otelslog.WithLoggerProvider(loggerProvider),
	)

	Logger = slog.New(&levelHandler{level: programLevel, handler: otelHandler})
	slog.SetDefault(Logger)

	return loggerProvider.Shutdown, nil
}

// levelHandler applies the program level to a handler that has no level of its own
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// Shutdown flushes the OTEL exporter; a no-op in JSON mode
func Shutdown(ctx context.Context) error {
	if shutdownFunc != nil {
		return shutdownFunc(ctx)
	}
	return nil
}

// SetLevel sets the minimum log level
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum log level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level. Empty means INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "", "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

func shouldSample() bool {
	rate := sampleRate.Load()
	if rate <= 1 {
		return true
	}
	return rand.Intn(int(rate)) == 0
}

// Debug logs a debug-level message
func Debug(msg string, args ...any) {
	Logger.Debug(msg, args...)
}

// Info logs an info-level message
func Info(msg string, args ...any) {
	Logger.Info(msg, args...)
}

// Warn logs a sampled warning
func Warn(msg string, args ...any) {
	TotalWarnings.Add(1)
	if shouldSample() {
		Logger.Warn(msg, args...)
	}
}

// Error logs a sampled error
func Error(msg string, args ...any) {
	TotalErrors.Add(1)
	if shouldSample() {
		Logger.Error(msg, args...)
	}
}

// Fatal logs and exits; never sampled
func Fatal(msg string, args ...any) {
	Logger.Log(context.Background(), LevelFatal, msg, args...)
	if shutdownFunc != nil {
		_ = shutdownFunc(context.Background())
	}
	os.Exit(1)
}

// ErrorHttp5xx counts a server-side failure
func ErrorHttp5xx() {
	Total5xxErrors.Add(1)
	TotalErrors.Add(1)
}

// WarnHttp4xx counts a client error
func WarnHttp4xx() {
	Total4xxErrors.Add(1)
	TotalWarnings.Add(1)
}
