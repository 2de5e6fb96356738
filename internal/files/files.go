package files

import (
	"maps"
	"math"
	"time"
)

// MaxExpiryMinutes caps expiry at 100 years so the window fits a time.Duration.
const MaxExpiryMinutes = 100 * 365 * 24 * 60

// DefaultExpiryMinutes is used when the configured default is unusable.
const DefaultExpiryMinutes = 180

// Record represents the metadata of one uploaded file
type Record struct {
	ID            string         `json:"id"`
	OriginalName  string         `json:"originalName"`
	Size          int64          `json:"size"`
	MimeType      string         `json:"mimeType"`
	CreatedAt     time.Time      `json:"createdAt"`
	UpdatedAt     *time.Time     `json:"updatedAt,omitempty"`
	ExpiryMinutes float64        `json:"expiryMinutes"`
	ExpiresAt     time.Time      `json:"expiresAt"`
	Metadata      map[string]any `json:"metadata"`
	Deleted       bool           `json:"deleted"`
	DeletedAt     *time.Time     `json:"deletedAt"`
}

// IsExpired reports whether the record is deleted or past its expiry at now.
func (r *Record) IsExpired(now time.Time) bool {
	return r.Deleted || !r.ExpiresAt.After(now)
}

// IsActive is the complement of IsExpired.
func (r *Record) IsActive(now time.Time) bool {
	return !r.IsExpired(now)
}

// expiryBase is the instant ExpiresAt is derived from.
func (r *Record) expiryBase() time.Time {
	if r.UpdatedAt != nil {
		return *r.UpdatedAt
	}
	return r.CreatedAt
}

func (r *Record) clone() Record {
	out := *r
	out.Metadata = maps.Clone(r.Metadata)
	if out.Metadata == nil {
		out.Metadata = map[string]any{}
	}
	if r.UpdatedAt != nil {
		t := *r.UpdatedAt
		out.UpdatedAt = &t
	}
	if r.DeletedAt != nil {
		t := *r.DeletedAt
		out.DeletedAt = &t
	}
	return out
}

// Descriptor describes a file already written to storage.
type Descriptor struct {
	ID           string
	OriginalName string
	Size         int64
	MimeType     string
}

// UpdateRequest carries the mutable fields of a record. Nil fields are left as is.
type UpdateRequest struct {
	ExpiryMinutes *float64
	Metadata      map[string]any
}

// Status filters List results.
type Status string

const (
	StatusAll     Status = ""
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
)

// ParseStatus validates a status query value.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusAll, StatusActive, StatusExpired:
		return Status(s), nil
	}
	return "", Errorf(KindValidation, "status must be %q or %q", StatusActive, StatusExpired)
}

func (s Status) matches(r *Record, now time.Time) bool {
	switch s {
	case StatusActive:
		return r.IsActive(now)
	case StatusExpired:
		return r.IsExpired(now)
	default:
		return true
	}
}

// ValidExpiry reports whether minutes is a finite number in (0, MaxExpiryMinutes].
func ValidExpiry(minutes float64) bool {
	return !math.IsNaN(minutes) && !math.IsInf(minutes, 0) && minutes > 0 && minutes <= MaxExpiryMinutes
}

func expiryDuration(minutes float64) time.Duration {
	return time.Duration(minutes * float64(time.Minute))
}
