package logging

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kingrea/loups-garous/internal/config"
)

// Logger appends JSON lines to .loups/logs/loups.log so moderators can
// inspect a game after the console has closed.
type Logger struct {
	file *os.File
	zap  *zap.Logger
}

// New creates (or reuses) the log file for the current project directory.
// Debug entries are kept only when debug is set.
func New(projectDir string, debug bool) (*Logger, error) {
	logDir := filepath.Join(projectDir, config.LoupsDir, "logs")
	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return nil, fmt.Errorf("logging: ensure log dir: %w", err)
	}
	path := filepath.Join(logDir, "loups.log")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("logging: open log file: %w", err)
	}
	level := zapcore.InfoLevel
	if debug {
		level = zapcore.DebugLevel
	}
	encoder := zap.NewProductionEncoderConfig()
	encoder.TimeKey = "ts"
	encoder.EncodeTime = zapcore.ISO8601TimeEncoder
	core := zapcore.NewCore(zapcore.NewJSONEncoder(encoder), zapcore.AddSync(f), zap.NewAtomicLevelAt(level))
	return &Logger{file: f, zap: zap.New(core, zap.AddCaller())}, nil
}

// Zap exposes the structured logger. A nil Logger yields a no-op logger.
func (l *Logger) Zap() *zap.Logger {
	if l == nil || l.zap == nil {
		return zap.NewNop()
	}
	return l.zap
}

// Close flushes buffered entries and releases the file handle.
func (l *Logger) Close() error {
	if l == nil || l.file == nil {
		return nil
	}
	if l.zap != nil {
		_ = l.zap.Sync()
	}
	return l.file.Close()
}

// Printf writes a single info entry for Printf-style callers.
func (l *Logger) Printf(format string, args ...any) {
	if l == nil || l.zap == nil {
		return
	}
	line := strings.TrimRight(fmt.Sprintf(format, args...), "\n")
	l.zap.Info(line)
}
