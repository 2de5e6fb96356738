package files

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// DefaultMaxSize is the upload limit when none is configured (100 MiB).
const DefaultMaxSize = 100 << 20

// Service provides application-level upload operations
type Service struct {
	storage FileStorage
	store   *Store
	maxSize int64
	logger  *slog.Logger
}

// NewService creates a new upload service
func NewService(storage FileStorage, store *Store, maxSize int64, logger *slog.Logger) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{
		storage: storage,
		store:   store,
		maxSize: maxSize,
		logger:  logger.With(slog.String("component", "upload")),
	}
}

// MaxSize returns the upload limit in bytes.
func (s *Service) MaxSize() int64 {
	return s.maxSize
}

// UploadRequest represents a file upload request
type UploadRequest struct {
	Name     string
	MimeType string
	Content  io.Reader

	// ExpiryMinutes, when set, must be valid; nil selects the default.
	ExpiryMinutes *float64
	Metadata      map[string]any
}

// CheckUpload validates the original name and media type of an upload.
func CheckUpload(name, mimeType string) error {
	if _, ok := contentTypes[strings.ToLower(filepath.Ext(name))]; !ok {
		return Errorf(KindValidation, "only .mp4, .mov and .avi files are allowed")
	}
	if !strings.HasPrefix(strings.ToLower(mimeType), "video/") {
		return Errorf(KindValidation, "only video files are allowed")
	}
	return nil
}

// Upload stores the content under a new random id and records it.
func (s *Service) Upload(req *UploadRequest) (Record, error) {
	if err := CheckUpload(req.Name, req.MimeType); err != nil {
		return Record{}, err
	}
	if req.ExpiryMinutes != nil && !ValidExpiry(*req.ExpiryMinutes) {
		return Record{}, Errorf(KindValidation, "expiry_minutes must be a positive number")
	}

	id := uuid.NewString() + strings.ToLower(filepath.Ext(req.Name))

	// one byte over the limit is enough to tell it was exceeded
	size, err := s.storage.Save(id, io.LimitReader(req.Content, s.maxSize+1))
	if err != nil {
		return Record{}, Internal("failed to save file", err)
	}
	if size > s.maxSize {
		s.discard(id)
		return Record{}, Errorf(KindTooLarge, "file exceeds the %d byte limit", s.maxSize)
	}

	rec, err := s.store.Create(Descriptor{
		ID:           id,
		OriginalName: req.Name,
		Size:         size,
		MimeType:     req.MimeType,
	}, req.ExpiryMinutes, req.Metadata)
	if err != nil {
		// Clean up file if the record could not be created
		s.discard(id)
		return Record{}, fmt.Errorf("failed to create record: %w", err)
	}

	s.logger.Info("File uploaded",
		"file_id", rec.ID,
		"original_name", rec.OriginalName,
		"size", rec.Size,
		"expires_at", rec.ExpiresAt,
	)
	return rec, nil
}

func (s *Service) discard(id string) {
	if err := s.storage.Remove(id); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.logger.Error("Failed to discard stored file", "file_id", id, "error", err)
	}
}
