package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/offlinefirst/statusscreen/pkg/config"
)

// Options describe how to configure a logger instance.
type Options struct {
	Level  string
	Format string
	Output io.Writer
}

// New creates a structured logger backed by Go's slog package.
func New(opts Options) (*slog.Logger, error) {
	lvl, err := parseLevel(opts.Level)
	if err != nil {
		return nil, err
	}

	out := opts.Output
	if out == nil {
		out = os.Stderr
	}

	handlerOpts := slog.HandlerOptions{
		Level:       lvl,
		ReplaceAttr: replaceTimeAttr,
	}

	format := strings.ToLower(strings.TrimSpace(opts.Format))
	var handler slog.Handler
	switch format {
	case "", "json":
		handler = slog.NewJSONHandler(out, &handlerOpts)
	case "console", "text":
		handler = slog.NewTextHandler(out, &handlerOpts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", opts.Format)
	}

	return slog.New(handler), nil
}

// Discard returns a logger that drops every record.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// OrDiscard returns logger, or a discarding logger when it is nil.
func OrDiscard(logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return Discard()
	}
	return logger
}

func parseLevel(level string) (slog.Leveler, error) {
	normalized, err := config.NormalizeLogLevel(level)
	if err != nil {
		return nil, err
	}

	var lvl slog.Level
	switch normalized {
	case "info":
		lvl = slog.LevelInfo
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return nil, fmt.Errorf("unhandled log level %q", normalized)
	}

	var levelVar slog.LevelVar
	levelVar.Set(lvl)
	return &levelVar, nil
}

func replaceTimeAttr(_ []string, attr slog.Attr) slog.Attr {
	if attr.Key == slog.TimeKey && attr.Value.Kind() == slog.KindTime {
		attr.Value = slog.StringValue(attr.Value.Time().UTC().Format(time.RFC3339))
	}
	return attr
}
