// Package logging provides the process-wide structured logger used by the
// engine and the CLI, adapted from the teacher's pkg/logging: a lazily
// initialized *slog.Logger guarded by a mutex, configurable for text/JSON
// output, with With* helpers for attaching query-execution context instead
// of the teacher's storage-engine context (tx_id, page_id, lock).
package logging

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
)

var (
	logger   *slog.Logger
	loggerMu sync.RWMutex
	isInited bool
	initOnce sync.Once
)

// Level names accepted by Config.Level.
type Level string

const (
	LevelDebug Level = "DEBUG"
	LevelInfo  Level = "INFO"
	LevelWarn  Level = "WARN"
	LevelError Level = "ERROR"
)

// Config controls logger initialization.
type Config struct {
	Level  Level
	Format string // "json" or "text"
	Output io.Writer
}

// Init initializes the global logger. Subsequent calls return an error
// until Close is called, mirroring the teacher's one-shot Init contract.
func Init(cfg Config) error {
	loggerMu.Lock()
	defer loggerMu.Unlock()

	if isInited {
		return fmt.Errorf("logger already initialized; call Close() first")
	}

	writer := cfg.Output
	if writer == nil {
		writer = os.Stderr
	}

	var level slog.Level
	switch cfg.Level {
	case LevelDebug:
		level = slog.LevelDebug
	case LevelWarn:
		level = slog.LevelWarn
	case LevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(writer, opts)
	} else {
		handler = slog.NewTextHandler(writer, opts)
	}

	logger = slog.New(handler)
	isInited = true
	return nil
}

// InitDefault initializes the logger with INFO/text/stderr defaults. Safe
// to call multiple times; only the first call takes effect.
func InitDefault() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	if isInited {
		return
	}
	logger = slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo}))
	isInited = true
}

// Close tears down the logger so Init can be called again.
func Close() {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	logger = nil
	isInited = false
	initOnce = sync.Once{}
}

// Get returns the current logger, lazily initializing with defaults if
// nothing has configured one yet.
func Get() *slog.Logger {
	loggerMu.RLock()
	if isInited {
		l := logger
		loggerMu.RUnlock()
		return l
	}
	loggerMu.RUnlock()

	initOnce.Do(InitDefault)

	loggerMu.RLock()
	defer loggerMu.RUnlock()
	return logger
}
