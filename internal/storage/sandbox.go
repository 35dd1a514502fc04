// Package storage provides sandboxed file operations for screenrec.
// All file operations are restricted to a configured directory to prevent
// path traversal.
package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/oklog/ulid/v2"
	"github.com/shirou/gopsutil/v4/disk"
)

// maxPublishAttempts bounds the numbered variants tried for a taken name.
const maxPublishAttempts = 1000

var (
	// ErrNameExhausted is returned when every numbered variant of a name is taken.
	ErrNameExhausted = errors.New("no free file name")
	// ErrLowDiskSpace is returned when the sandbox filesystem is short of space.
	ErrLowDiskSpace = errors.New("low disk space")
)

// Sandbox provides sandboxed file operations within a base directory.
type Sandbox struct {
	baseDir string
}

// NewSandbox creates a new Sandbox rooted at the given base directory.
// The base directory is created if it doesn't exist.
func NewSandbox(baseDir string) (*Sandbox, error) {
	absPath, err := filepath.Abs(baseDir)
	if err != nil {
		return nil, fmt.Errorf("getting absolute path: %w", err)
	}

	if err := os.MkdirAll(absPath, 0o750); err != nil {
		return nil, fmt.Errorf("creating base directory: %w", err)
	}

	return &Sandbox{baseDir: absPath}, nil
}

// BaseDir returns the absolute path to the sandbox base directory.
func (s *Sandbox) BaseDir() string {
	return s.baseDir
}

// ResolvePath resolves a relative path within the sandbox.
// Returns an error if the path would escape the sandbox or is absolute.
func (s *Sandbox) ResolvePath(relativePath string) (string, error) {
	if filepath.IsAbs(relativePath) {
		return "", fmt.Errorf("path escapes sandbox: %s (absolute paths not allowed)", relativePath)
	}

	absPath, err := filepath.Abs(filepath.Join(s.baseDir, filepath.Clean(relativePath)))
	if err != nil {
		return "", fmt.Errorf("getting absolute path: %w", err)
	}

	if !strings.HasPrefix(absPath, s.baseDir+string(filepath.Separator)) && absPath != s.baseDir {
		return "", fmt.Errorf("path escapes sandbox: %s", relativePath)
	}

	return absPath, nil
}

// FreeSpace returns the bytes available on the sandbox filesystem.
func (s *Sandbox) FreeSpace(ctx context.Context) (uint64, error) {
	usage, err := disk.UsageWithContext(ctx, s.baseDir)
	if err != nil {
		return 0, fmt.Errorf("getting disk usage: %w", err)
	}
	return usage.Free, nil
}

// CheckFreeSpace returns ErrLowDiskSpace when fewer than minFree bytes are
// available. It also returns the available bytes.
func (s *Sandbox) CheckFreeSpace(ctx context.Context, minFree uint64) (uint64, error) {
	free, err := s.FreeSpace(ctx)
	if err != nil {
		return 0, err
	}
	if free < minFree {
		return free, fmt.Errorf("%w: %d bytes free in %s", ErrLowDiskSpace, free, s.baseDir)
	}
	return free, nil
}

// Stat returns file info for a path within the sandbox.
func (s *Sandbox) Stat(relativePath string) (os.FileInfo, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("getting file info: %w", err)
	}
	return info, nil
}

// List returns the entries of a directory within the sandbox.
func (s *Sandbox) List(relativePath string) ([]os.DirEntry, error) {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(path)
	if err != nil {
		return nil, fmt.Errorf("reading directory: %w", err)
	}
	return entries, nil
}

// Publish writes data under relativePath without replacing an existing file.
// When the name is taken it tries "name (1).ext", "name (2).ext" and so on.
// It returns the relative path actually written.
func (s *Sandbox) Publish(relativePath string, data []byte) (string, error) {
	targetPath, err := s.ResolvePath(relativePath)
	if err != nil {
		return "", err
	}

	tempPath, err := s.writeTemp(targetPath, data)
	if err != nil {
		return "", err
	}
	defer func() { _ = os.Remove(tempPath) }()

	dir := filepath.Dir(relativePath)
	for i := 0; i < maxPublishAttempts; i++ {
		candidate := numberedName(relativePath, i)
		candidatePath := filepath.Join(filepath.Dir(targetPath), filepath.Base(candidate))

		err := linkNoClobber(tempPath, candidatePath, data)
		if err == nil {
			return filepath.Join(dir, filepath.Base(candidate)), nil
		}
		if !errors.Is(err, os.ErrExist) {
			return "", fmt.Errorf("publishing %s: %w", candidate, err)
		}
	}
	return "", fmt.Errorf("%w: %s", ErrNameExhausted, relativePath)
}

// Remove removes a file within the sandbox.
func (s *Sandbox) Remove(relativePath string) error {
	path, err := s.ResolvePath(relativePath)
	if err != nil {
		return err
	}
	if path == s.baseDir {
		return fmt.Errorf("cannot remove sandbox base directory")
	}

	if err := os.Remove(path); err != nil {
		return fmt.Errorf("removing file: %w", err)
	}
	return nil
}

// writeTemp writes data to a hidden temporary file next to targetPath.
func (s *Sandbox) writeTemp(targetPath string, data []byte) (string, error) {
	dir := filepath.Dir(targetPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("creating parent directory: %w", err)
	}

	tempPath := filepath.Join(dir, fmt.Sprintf(".%s.%s.tmp", filepath.Base(targetPath), ulid.Make()))
	if err := os.WriteFile(tempPath, data, 0o640); err != nil {
		_ = os.Remove(tempPath)
		return "", fmt.Errorf("writing temporary file: %w", err)
	}
	return tempPath, nil
}

// linkNoClobber makes tempPath visible as target, failing with os.ErrExist
// when target exists. Filesystems without hard links fall back to an
// exclusive create.
func linkNoClobber(tempPath, target string, data []byte) error {
	err := os.Link(tempPath, target)
	if err == nil || errors.Is(err, os.ErrExist) {
		return err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o640)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if closeErr := f.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(target)
	}
	return err
}

// numberedName returns name for n == 0 and "base (n).ext" otherwise.
func numberedName(name string, n int) string {
	if n == 0 {
		return name
	}
	ext := filepath.Ext(name)
	return fmt.Sprintf("%s (%d)%s", strings.TrimSuffix(name, ext), n, ext)
}
