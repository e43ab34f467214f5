package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options selects level, output format and an optional log directory.
type Options struct {
	Level  string
	Format string
	Dir    string
}

// New creates a slog.Logger writing to stdout and, when Dir is set, to
// <Dir>/pipeline_<date>.log as well. The returned closer releases the file.
func New(opts Options) (*slog.Logger, io.Closer, error) {
	var (
		out    io.Writer = os.Stdout
		closer io.Closer = nopCloser{}
	)

	if opts.Dir != "" {
		if err := os.MkdirAll(opts.Dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log dir: %w", err)
		}
		name := fmt.Sprintf("pipeline_%s.log", time.Now().UTC().Format("2006-01-02"))
		f, err := os.OpenFile(filepath.Join(opts.Dir, name), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("open log file: %w", err)
		}
		out = io.MultiWriter(os.Stdout, f)
		closer = f
	}

	return slog.New(newHandler(out, opts)), closer, nil
}

func newHandler(w io.Writer, opts Options) slog.Handler {
	handlerOpts := &slog.HandlerOptions{Level: levelFromString(opts.Level)}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "json") {
		return slog.NewJSONHandler(w, handlerOpts)
	}
	return slog.NewTextHandler(w, handlerOpts)
}

func levelFromString(value string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "error":
		return slog.LevelError
	case "warn", "warning":
		return slog.LevelWarn
	case "info":
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
