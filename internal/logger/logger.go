// Package logger builds the gateway's zerolog logger.
package logger

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog"
)

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// New returns a logger writing to stderr and, when logDir is set, appending JSON
// lines to logDir/fileName. The returned Closer closes the log file.
func New(logDir, fileName string, level zerolog.Level) (zerolog.Logger, io.Closer, error) {
	console := zerolog.ConsoleWriter{Out: os.Stderr}
	if logDir == "" {
		return zerolog.New(console).Level(level).With().Timestamp().Logger(), nopCloser{}, nil
	}

	if err := os.MkdirAll(logDir, 0o755); err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("create log dir: %w", err)
	}
	f, err := os.OpenFile(filepath.Join(logDir, fileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return zerolog.Nop(), nil, fmt.Errorf("open log file: %w", err)
	}
	w := zerolog.MultiLevelWriter(console, f)
	return zerolog.New(w).Level(level).With().Timestamp().Logger(), f, nil
}
