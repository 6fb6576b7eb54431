package config

import (
	"io"
	"log/slog"
	"os"
	"path/filepath"

	slogmulti "github.com/samber/slog-multi"
)

func noCleanup() error { return nil }

// humanHandler renders records as key=value text for a terminal.
func humanHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
}

// recordHandler renders records as JSON lines for the log file.
func recordHandler(w io.Writer, level slog.Level) slog.Handler {
	return slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})
}

// SetupLogger logs text to stderr and JSON to logFile.
// If the file cannot be opened only stderr is used. The returned func closes the file.
func SetupLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	file, err := openLogFile(logFile)
	if err != nil {
		logger := slog.New(humanHandler(os.Stderr, level))
		logger.Warn("log file unavailable, logging to stderr only", "file", logFile, "error", err)
		return logger, noCleanup
	}
	return SetupLoggerWithWriters(os.Stderr, file, level), file.Close
}

// SetupFileLogger logs to logFile only. The full-screen console uses it so
// that nothing is written over the display. Without a usable file it discards.
func SetupFileLogger(logFile string, level slog.Level) (*slog.Logger, func() error) {
	file, err := openLogFile(logFile)
	if err != nil {
		return slog.New(slog.DiscardHandler), noCleanup
	}
	return slog.New(recordHandler(file, level)), file.Close
}

// SetupLoggerWithWriters fans records out to a text and a JSON writer.
func SetupLoggerWithWriters(stderr, file io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slogmulti.Fanout(
		humanHandler(stderr, level),
		recordHandler(file, level),
	))
}

func openLogFile(path string) (*os.File, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
