// Package logging sets up the per-run logger used by the mailtriage CLI.
package logging

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/log"

	"github.com/DreamCats/mailtriage/internal/config"
)

// Run is a logger writing to stderr and to a log file for one command run.
type Run struct {
	Logger *log.Logger
	Path   string
	file   *os.File
}

// DefaultDir returns ~/.mailtriage/logs.
func DefaultDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, ".mailtriage", "logs"), nil
}

// Setup creates the log directory, opens mailtriage-<subcommand>-<ts>.log in
// it and returns a logger writing to both the file and stderr at the
// configured level.
func Setup(cfg config.LogConfig, subcommand string, stderr io.Writer) (*Run, error) {
	dir := cfg.Dir
	if dir == "" {
		var err error
		if dir, err = DefaultDir(); err != nil {
			return nil, err
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create log directory: %w", err)
	}

	timestamp := time.Now().Format("20060102-150405")
	path := filepath.Join(dir, fmt.Sprintf("mailtriage-%s-%s.log", subcommand, timestamp))

	file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open log file: %w", err)
	}

	level, err := ParseLevel(cfg.Level)
	if err != nil {
		file.Close()
		return nil, err
	}

	logger := log.NewWithOptions(io.MultiWriter(stderr, file), log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           level,
		Prefix:          subcommand,
	})
	logger.Debug("log file opened", "path", path)

	run := &Run{Logger: logger, Path: path, file: file}
	return run, nil
}

// New returns a console-only logger at level, for commands that do not keep a
// log file.
func New(w io.Writer, level string) (*log.Logger, error) {
	lvl, err := ParseLevel(level)
	if err != nil {
		return nil, err
	}
	return log.NewWithOptions(w, log.Options{Level: lvl}), nil
}

// ParseLevel maps a config level name to a log level. Empty means info.
func ParseLevel(level string) (log.Level, error) {
	if level == "" {
		return log.InfoLevel, nil
	}
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return 0, fmt.Errorf("unsupported log level: %s", level)
	}
	return lvl, nil
}

// Close flushes and closes the log file.
func (r *Run) Close() error {
	if r == nil || r.file == nil {
		return nil
	}
	return r.file.Close()
}
