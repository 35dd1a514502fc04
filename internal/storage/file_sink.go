package storage

import (
	"fmt"
	"log/slog"
	"path/filepath"
)

// FileSink saves recordings into a sandboxed output directory.
type FileSink struct {
	sandbox *Sandbox
	logger  *slog.Logger
}

// NewFileSink returns a sink writing into sandbox.
func NewFileSink(sandbox *Sandbox, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{
		sandbox: sandbox,
		logger:  logger.With(slog.String("component", "file_sink")),
	}
}

// Save writes data under filename. An existing file is never overwritten.
func (s *FileSink) Save(data []byte, filename, mimeType string) error {
	_, err := s.Store(data, filename, mimeType)
	return err
}

// Store writes data under filename and returns the name actually used, which
// differs from filename when that name was already taken.
func (s *FileSink) Store(data []byte, filename, mimeType string) (string, error) {
	if filename == "" || filepath.Base(filename) != filename {
		return "", fmt.Errorf("invalid recording file name %q", filename)
	}

	name, err := s.sandbox.Publish(filename, data)
	if err != nil {
		return "", fmt.Errorf("saving recording: %w", err)
	}

	s.logger.Info("recording written",
		slog.String("path", filepath.Join(s.sandbox.BaseDir(), name)),
		slog.String("mime_type", mimeType),
		slog.Int("bytes", len(data)),
	)
	return name, nil
}
