package files

import (
	"errors"
	"io/fs"
	"log/slog"
	"sync"
	"time"
)

// Store keeps the full record set in memory and persists it after every mutation.
//
// The in-memory set is authoritative. Saves run in the background and are
// best-effort: a failed save is logged and the next mutation writes the whole
// set again, so the persisted document may lag by the saves still in flight.
type Store struct {
	persister     Persister
	defaultExpiry float64
	logger        *slog.Logger
	now           func() time.Time

	mu      sync.RWMutex
	records []*Record
	byID    map[string]*Record
	seq     uint64

	saveMu  sync.Mutex
	written uint64
	saves   sync.WaitGroup
}

// NewStore creates an empty store. Call Load before serving requests.
func NewStore(persister Persister, defaultExpiryMinutes float64, logger *slog.Logger) *Store {
	if !ValidExpiry(defaultExpiryMinutes) {
		defaultExpiryMinutes = DefaultExpiryMinutes
	}
	return &Store{
		persister:     persister,
		defaultExpiry: defaultExpiryMinutes,
		logger:        logger.With(slog.String("component", "store")),
		now:           time.Now,
		byID:          map[string]*Record{},
	}
}

// DefaultExpiryMinutes returns the expiry applied when none is given.
func (s *Store) DefaultExpiryMinutes() float64 {
	return s.defaultExpiry
}

// Load replaces the in-memory set with the persisted document and repairs it.
// A missing or unreadable document yields an empty set.
func (s *Store) Load() {
	loaded, err := s.persister.Load()
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			s.logger.Info("No metadata document found, starting empty")
		} else {
			s.logger.Warn("Failed to load metadata document, starting empty", "error", err)
		}
		loaded = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records = s.records[:0]
	s.byID = make(map[string]*Record, len(loaded))
	for i := range loaded {
		rec := loaded[i]
		if rec.ID == "" {
			s.logger.Warn("Dropping record without id")
			continue
		}
		if _, dup := s.byID[rec.ID]; dup {
			s.logger.Warn("Dropping duplicate record", "file_id", rec.ID)
			continue
		}
		s.records = append(s.records, &rec)
		s.byID[rec.ID] = &rec
	}

	repaired := s.normalizeLocked()
	s.logger.Info("Metadata loaded", "records", len(s.records), "repaired", repaired)
	if repaired > 0 || len(s.records) != len(loaded) {
		s.saveLocked()
	}
}

// normalizeLocked repairs records written by older or interrupted saves.
func (s *Store) normalizeLocked() int {
	now := s.now()
	repaired := 0
	for _, rec := range s.records {
		changed := false
		if rec.CreatedAt.IsZero() {
			rec.CreatedAt = now
			changed = true
		}
		if !ValidExpiry(rec.ExpiryMinutes) {
			rec.ExpiryMinutes = s.defaultExpiry
			changed = true
		}
		// expiresAt is derived, a stored value that disagrees is recomputed
		if expiresAt := rec.expiryBase().Add(expiryDuration(rec.ExpiryMinutes)); !rec.ExpiresAt.Equal(expiresAt) {
			rec.ExpiresAt = expiresAt
			changed = true
		}
		if rec.Metadata == nil {
			rec.Metadata = map[string]any{}
			changed = true
		}
		if rec.Deleted && rec.DeletedAt == nil {
			t := now
			rec.DeletedAt = &t
			changed = true
		}
		if changed {
			repaired++
		}
	}
	return repaired
}

// Create adds a record for a file already written to storage. An absent or
// invalid expiry falls back to the configured default.
func (s *Store) Create(d Descriptor, expiryMinutes *float64, metadata map[string]any) (Record, error) {
	if d.ID == "" {
		return Record{}, Errorf(KindValidation, "file id is empty")
	}

	minutes := s.defaultExpiry
	if expiryMinutes != nil && ValidExpiry(*expiryMinutes) {
		minutes = *expiryMinutes
	}
	if metadata == nil {
		metadata = map[string]any{}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.byID[d.ID]; exists {
		return Record{}, Internal("duplicate file id", nil)
	}

	now := s.now()
	rec := &Record{
		ID:            d.ID,
		OriginalName:  d.OriginalName,
		Size:          d.Size,
		MimeType:      d.MimeType,
		CreatedAt:     now,
		ExpiryMinutes: minutes,
		ExpiresAt:     now.Add(expiryDuration(minutes)),
		Metadata:      metadata,
	}
	s.records = append(s.records, rec)
	s.byID[rec.ID] = rec
	s.saveLocked()

	return rec.clone(), nil
}

// Get returns the record with the given id.
func (s *Store) Get(id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, Errorf(KindNotFound, "file %s not found", id)
	}
	return rec.clone(), nil
}

// List returns records in creation order, filtered at call time.
func (s *Store) List(status Status) []Record {
	now := s.now()

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Record, 0, len(s.records))
	for _, rec := range s.records {
		if status.matches(rec, now) {
			out = append(out, rec.clone())
		}
	}
	return out
}

// Update changes expiry and/or metadata. A new expiry is counted from now.
// An unknown id is reported before an invalid expiry.
func (s *Store) Update(id string, req UpdateRequest) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, Errorf(KindNotFound, "file %s not found", id)
	}
	if req.ExpiryMinutes != nil && !ValidExpiry(*req.ExpiryMinutes) {
		return Record{}, Errorf(KindValidation, "expiry_minutes must be a positive number")
	}

	if req.ExpiryMinutes != nil {
		now := s.now()
		rec.UpdatedAt = &now
		rec.ExpiryMinutes = *req.ExpiryMinutes
		rec.ExpiresAt = now.Add(expiryDuration(rec.ExpiryMinutes))
	}
	if req.Metadata != nil {
		rec.Metadata = req.Metadata
	}
	s.saveLocked()

	return rec.clone(), nil
}

// MarkDeleted flags the record as deleted. Repeated calls keep the first DeletedAt.
func (s *Store) MarkDeleted(id string) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, Errorf(KindNotFound, "file %s not found", id)
	}
	if !rec.Deleted {
		s.markDeletedLocked(rec)
	}
	return rec.clone(), nil
}

func (s *Store) markDeletedLocked(rec *Record) {
	now := s.now()
	rec.Deleted = true
	rec.DeletedAt = &now
	s.saveLocked()
}

// reclaim removes the backing object and marks the record deleted while
// holding the write lock, so an Update cannot interleave between the
// due check and the removal. An object that is already gone counts as removed.
// Readers wait behind the removal; on local disk that is a single unlink.
func (s *Store) reclaim(id string, due func(*Record) bool, remove func(string) error) (Record, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.byID[id]
	if !ok {
		return Record{}, false, Errorf(KindNotFound, "file %s not found", id)
	}
	if rec.Deleted || !due(rec) {
		return rec.clone(), false, nil
	}
	if err := remove(rec.ID); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return rec.clone(), false, err
	}
	s.markDeletedLocked(rec)
	return rec.clone(), true, nil
}

// Flush waits for saves started so far.
func (s *Store) Flush() {
	s.saves.Wait()
}

// saveLocked snapshots the record set and persists it in the background.
// Must be called with mu held for writing.
func (s *Store) saveLocked() {
	s.seq++
	seq := s.seq
	snapshot := make([]Record, len(s.records))
	for i, rec := range s.records {
		snapshot[i] = rec.clone()
	}

	s.saves.Add(1)
	go func() {
		defer s.saves.Done()

		s.saveMu.Lock()
		defer s.saveMu.Unlock()

		// a newer snapshot already reached disk
		if seq <= s.written {
			return
		}
		if err := s.persister.Save(snapshot); err != nil {
			s.logger.Error("Failed to save metadata", "error", err, "records", len(snapshot))
			return
		}
		s.written = seq
	}()
}
