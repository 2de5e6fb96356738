package fs

import (
	"errors"
	"fmt"
	"io"
	iofs "io/fs"
	"os"
	"path/filepath"

	"github.com/pavel-fokin/media-drop/internal/files"
)

// incomingDir holds uploads still being written. It lives inside dataDir so
// finished files can be linked into place on the same filesystem, and its
// dot prefix keeps it out of reach of file ids.
const incomingDir = ".incoming"

// Storage implements files.FileStorage using the filesystem
type Storage struct {
	dataDir     string
	incomingDir string
}

var _ files.FileStorage = (*Storage)(nil)

// NewStorage creates a new filesystem storage, creating dataDir if needed.
// Uploads left unfinished by a previous process are removed.
func NewStorage(dataDir string) (*Storage, error) {
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	incoming := filepath.Join(dataDir, incomingDir)
	if err := os.RemoveAll(incoming); err != nil {
		return nil, fmt.Errorf("failed to clear incoming directory: %w", err)
	}
	if err := os.Mkdir(incoming, 0o700); err != nil {
		return nil, fmt.Errorf("failed to create incoming directory: %w", err)
	}

	return &Storage{dataDir: dataDir, incomingDir: incoming}, nil
}

// Path returns the on-disk location of id. Directory components are stripped.
func (s *Storage) Path(id string) (string, error) {
	name := files.SanitizeID(id)
	if name == "" {
		return "", fmt.Errorf("invalid file id %q: %w", id, iofs.ErrNotExist)
	}
	return filepath.Join(s.dataDir, name), nil
}

// Save writes content to a temporary file and links it into place, so a
// partially written upload is never visible and an existing id is never overwritten.
func (s *Storage) Save(id string, content io.Reader) (int64, error) {
	filePath, err := s.Path(id)
	if err != nil {
		return 0, err
	}

	tmp, err := os.CreateTemp(s.incomingDir, "upload-*")
	if err != nil {
		return 0, fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	size, err := io.Copy(tmp, content)
	if err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to write file content: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return 0, fmt.Errorf("failed to sync file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return 0, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Link(tmpPath, filePath); err != nil {
		return 0, fmt.Errorf("failed to place file: %w", err)
	}
	return size, nil
}

// Open returns a read handle on the file content
func (s *Storage) Open(id string) (files.Object, error) {
	filePath, err := s.Path(id)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, fmt.Errorf("not a regular file: %w", iofs.ErrNotExist)
	}

	return f, nil
}

// Remove deletes a file by ID
func (s *Storage) Remove(id string) error {
	filePath, err := s.Path(id)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); err != nil {
		if errors.Is(err, iofs.ErrNotExist) {
			return fmt.Errorf("file already removed: %w", err)
		}
		return fmt.Errorf("failed to delete file: %w", err)
	}
	return nil
}
