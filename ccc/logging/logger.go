package logging

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Logger is the log sink handed to every component. Front ends (CLI, service
// wrappers) can substitute their own implementation to surface status.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
	Debug(msg string, args ...any)
}

type LogLevel string

const (
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// dailyFileWriter writes to a per-day log file, switching files at midnight.
type dailyFileWriter struct {
	dir    string
	prefix string
	file   *os.File
	date   string
	mu     sync.Mutex
}

func newDailyFileWriter(dir, prefix string) *dailyFileWriter {
	return &dailyFileWriter{dir: dir, prefix: prefix}
}

// Write implements io.Writer.
func (w *dailyFileWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	// log files are named by local date
	date := time.Now().Format("2006-01-02")
	if w.file == nil || w.date != date {
		if err := w.open(date); err != nil {
			return 0, err
		}
	}
	return w.file.Write(p)
}

func (w *dailyFileWriter) open(date string) error {
	if w.file != nil {
		w.file.Close()
	}

	name := fmt.Sprintf("%s-%s.log", w.prefix, date)
	file, err := os.OpenFile(filepath.Join(w.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return err
	}

	w.file = file
	w.date = date
	return nil
}

func (w *dailyFileWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.file != nil {
		return w.file.Close()
	}
	return nil
}

// CreateLogger creates a JSON logger writing to daily log files under logDir.
// If the directory cannot be created, logs go to stdout instead.
func CreateLogger(logLevel LogLevel, logDir string, fileName string) Logger {
	var level slog.Level
	switch logLevel {
	case LogLevelDebug:
		level = slog.LevelDebug
	case LogLevelWarn:
		level = slog.LevelWarn
	case LogLevelError:
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	if err := os.MkdirAll(logDir, 0755); err != nil {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}

	return slog.New(slog.NewJSONHandler(newDailyFileWriter(logDir, fileName), opts))
}

type nopLogger struct{}

// NopLogger is a Logger that discards everything. Components fall back to it
// when constructed with a nil logger.
var NopLogger Logger = &nopLogger{}

func (l *nopLogger) Info(msg string, args ...any)  {}
func (l *nopLogger) Warn(msg string, args ...any)  {}
func (l *nopLogger) Error(msg string, args ...any) {}
func (l *nopLogger) Debug(msg string, args ...any) {}
