package logging

import (
	"context"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TheGojiOG/vuserver/internal/config"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	logger    *slog.Logger
	initOnce  sync.Once
	logCloser io.Closer
)

// Init configures the global logger singleton.
func Init(cfg config.LoggingConfig) (*slog.Logger, error) {
	var initErr error

	initOnce.Do(func() {
		level := parseLevel(cfg.Level)
		output, closer, err := buildOutput(cfg)
		if err != nil {
			initErr = err
			return
		}
		if closer != nil {
			logCloser = closer
		}

		options := &slog.HandlerOptions{Level: level, AddSource: true}
		var handler slog.Handler
		if strings.EqualFold(cfg.Format, "text") {
			handler = slog.NewTextHandler(output, options)
		} else {
			handler = slog.NewJSONHandler(output, options)
		}

		logger = slog.New(handler)
		slog.SetDefault(logger)
		log.SetFlags(0)
		log.SetOutput(slogWriter{logger: logger})
	})

	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}

	return logger, initErr
}

// L returns the configured logger, or a no-op logger if not initialized.
func L() *slog.Logger {
	if logger == nil {
		return slog.New(slog.NewJSONHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
	return logger
}

// Close flushes and closes any logger resources.
func Close() error {
	if logCloser != nil {
		return logCloser.Close()
	}
	return nil
}

type slogWriter struct {
	logger *slog.Logger
}

func (w slogWriter) Write(p []byte) (int, error) {
	msg := strings.TrimSpace(string(p))
	if msg == "" {
		return len(p), nil
	}

	level := slog.LevelInfo
	lower := strings.ToLower(msg)
	if strings.Contains(lower, "failed") || strings.Contains(lower, "warning") {
		level = slog.LevelWarn
	}

	// "[Component] message" lines carry the component as an attribute
	if component, rest, ok := splitComponent(msg); ok {
		w.logger.Log(context.Background(), level, rest, "component", component)
		return len(p), nil
	}
	w.logger.Log(context.Background(), level, msg)
	return len(p), nil
}

func splitComponent(msg string) (string, string, bool) {
	if !strings.HasPrefix(msg, "[") {
		return "", "", false
	}
	end := strings.Index(msg, "]")
	if end <= 1 {
		return "", "", false
	}
	rest := strings.TrimSpace(msg[end+1:])
	if rest == "" {
		return "", "", false
	}
	return msg[1:end], rest, true
}

// Stdout belongs to the operator console, so diagnostics go to stderr.
func buildOutput(cfg config.LoggingConfig) (io.Writer, io.Closer, error) {
	if strings.TrimSpace(cfg.File) == "" {
		return os.Stderr, nil, nil
	}

	if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err != nil {
		return nil, nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	fileLogger := &lumberjack.Logger{
		Filename:   cfg.File,
		MaxSize:    cfg.MaxSize,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAge,
		Compress:   true,
	}

	return io.MultiWriter(os.Stderr, fileLogger), fileLogger, nil
}

func parseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	case "info", "":
		return slog.LevelInfo
	default:
		return slog.LevelInfo
	}
}
