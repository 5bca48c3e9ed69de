// Package logger builds the process zerolog.Logger and carries request
// correlation IDs through contexts.
package logger

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Config selects the level and destination of log output.
type Config struct {
	Level     string `mapstructure:"level"`
	Output    string `mapstructure:"output"` // stdout (default), console, file
	FilePath  string `mapstructure:"file_path"`
	MaxSizeMB int    `mapstructure:"max_size_mb"`
	MaxFiles  int    `mapstructure:"max_files"`
}

type ctxKey int

const (
	loggerKey ctxKey = iota
	correlationIDKey
)

// New creates a JSON logger writing to stdout at the given level.
// An unparsable level means info.
func New(level string) zerolog.Logger {
	return build(os.Stdout, level)
}

// NewFromConfig creates a logger for cfg.Output:
//   - "file": rotating file via lumberjack
//   - "console": human-readable output on stderr, for local runs
//   - anything else: JSON on stdout
func NewFromConfig(cfg Config, service string) zerolog.Logger {
	var w io.Writer
	switch strings.ToLower(cfg.Output) {
	case "file":
		w = NewFileWriter(FileConfig{
			Path:      cfg.FilePath,
			MaxSizeMB: cfg.MaxSizeMB,
			MaxFiles:  cfg.MaxFiles,
		})
	case "console":
		w = zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: "15:04:05"}
	default:
		w = os.Stdout
	}

	log := build(w, cfg.Level)
	if service != "" {
		log = log.With().Str("service", service).Logger()
	}
	return log
}

func build(w io.Writer, level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil || level == "" {
		lvl = zerolog.InfoLevel
	}
	return zerolog.New(w).Level(lvl).With().Timestamp().Logger()
}

// WithLogger stores a logger in the context.
func WithLogger(ctx context.Context, log zerolog.Logger) context.Context {
	return context.WithValue(ctx, loggerKey, log)
}

// WithCorrelationID stores a correlation ID in the context.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationIDFromContext returns the context's correlation ID, or "".
func CorrelationIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(correlationIDKey).(string)
	return id
}

// FromContext returns the context's logger tagged with its correlation ID.
// Without a stored logger it falls back to New("info").
func FromContext(ctx context.Context) zerolog.Logger {
	log, ok := ctx.Value(loggerKey).(zerolog.Logger)
	if !ok {
		log = New("info")
	}
	if id := CorrelationIDFromContext(ctx); id != "" {
		log = log.With().Str("correlation_id", id).Logger()
	}
	return log
}

// NewCorrelationID returns a fresh random correlation ID.
func NewCorrelationID() string {
	return uuid.NewString()
}
