// Package logging sets up the process-wide slog logger: human readable text on stdout
// and JSON lines in a weekly rotating file.
package logging

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// Options configure the global logger
type Options struct {
	// Dir holds the rotating log files; empty logs to the console only
	Dir            string
	Level          slog.Level
	RetentionWeeks int
	MaxFileSize    int64
}

// ParseLevel maps debug, info, warn/warning and error to a slog level
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}
	return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
}

type service struct {
	logger *slog.Logger
	writer *RotatingWriter
	stop   context.CancelFunc
	done   chan struct{}
}

var (
	mu      sync.RWMutex
	current *service
)

// Init replaces the global logger. Calling it again closes the previous log file.
func Init(opts Options) error {
	console := slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: opts.Level})
	svc := &service{logger: slog.New(console)}

	if opts.Dir != "" {
		if opts.RetentionWeeks <= 0 {
			opts.RetentionWeeks = 4
		}
		w, err := NewRotatingWriter(opts.Dir, opts.RetentionWeeks, opts.MaxFileSize)
		if err != nil {
			svc.logger.Error("File logging disabled", "error", err)
		} else {
			file := slog.NewJSONHandler(w, &slog.HandlerOptions{Level: opts.Level})
			svc.logger = slog.New(fanout{console, file})
			svc.writer = w
			svc.startCleanup()
		}
	}

	mu.Lock()
	prev := current
	current = svc
	mu.Unlock()
	slog.SetDefault(svc.logger)

	if prev != nil {
		prev.close()
	}
	return nil
}

func (s *service) startCleanup() {
	ctx, cancel := context.WithCancel(context.Background())
	s.stop = cancel
	s.done = make(chan struct{})

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := s.writer.Cleanup(); err != nil {
					s.logger.Warn("Failed to clean up old logs", "error", err)
				} else if n > 0 {
					s.logger.Info("Removed old log files", "count", n)
				}
			}
		}
	}()
}

func (s *service) close() {
	if s.stop != nil {
		s.stop()
		<-s.done
	}
	if s.writer != nil {
		s.writer.Close()
	}
}

// Close flushes and closes the log file. Later log calls go to the console.
func Close() {
	mu.Lock()
	prev := current
	current = nil
	mu.Unlock()

	if prev != nil {
		prev.close()
	}
}

// Logger returns the global logger, or a console logger before Init
func Logger() *slog.Logger {
	mu.RLock()
	defer mu.RUnlock()

	if current == nil {
		return slog.Default()
	}
	return current.logger
}

func Info(msg string, args ...any)  { Logger().Info(msg, args...) }
func Warn(msg string, args ...any)  { Logger().Warn(msg, args...) }
func Error(msg string, args ...any) { Logger().Error(msg, args...) }
func Debug(msg string, args ...any) { Logger().Debug(msg, args...) }

// fanout sends each record to every handler that accepts its level
type fanout []slog.Handler

func (f fanout) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanout) Handle(ctx context.Context, r slog.Record) error {
	for _, h := range f {
		if !h.Enabled(ctx, r.Level) {
			continue
		}
		if err := h.Handle(ctx, r.Clone()); err != nil {
			return err
		}
	}
	return nil
}

func (f fanout) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanout) WithGroup(name string) slog.Handler {
	out := make(fanout, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}
