package files

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultSweepInterval is used when no positive interval is configured.
const DefaultSweepInterval = time.Minute

// SweepResult summarises one sweep.
type SweepResult struct {
	Skipped   bool          `json:"skipped"`
	Checked   int           `json:"checked"`
	Reclaimed int           `json:"reclaimed"`
	Errors    int           `json:"errors"`
	Duration  time.Duration `json:"duration_ns"`
}

// Manager reclaims storage of expired records.
type Manager struct {
	store    *Store
	storage  FileStorage
	interval time.Duration
	logger   *slog.Logger

	sweepMu sync.Mutex
}

// NewManager creates a lifecycle manager sweeping every interval.
func NewManager(store *Store, storage FileStorage, interval time.Duration, logger *slog.Logger) *Manager {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	return &Manager{
		store:    store,
		storage:  storage,
		interval: interval,
		logger:   logger.With(slog.String("component", "lifecycle")),
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
// A sweep that outlasts the interval delays the next one.
func (m *Manager) Run(ctx context.Context) error {
	m.logger.Info("Lifecycle started", "interval", m.interval.String())
	m.Sweep()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Lifecycle stopped")
			return nil
		case <-ticker.C:
			m.Sweep()
		}
	}
}

// Sweep removes the backing object of every expired, non-deleted record and
// marks it deleted. Failed removals stay undeleted and are retried next time.
// A call made while another sweep runs returns immediately with Skipped set.
func (m *Manager) Sweep() SweepResult {
	if !m.sweepMu.TryLock() {
		sweepsSkippedTotal.Inc()
		m.logger.Debug("Sweep already running, skipping")
		return SweepResult{Skipped: true}
	}
	defer m.sweepMu.Unlock()

	start := time.Now()
	now := m.store.now()
	result := SweepResult{}

	for _, rec := range m.store.List(StatusAll) {
		if rec.Deleted || !rec.IsExpired(now) {
			continue
		}
		result.Checked++

		got, reclaimed, err := m.store.reclaim(rec.ID, func(r *Record) bool {
			return r.IsExpired(now)
		}, m.storage.Remove)
		if err != nil {
			result.Errors++
			reclaimErrorsTotal.Inc()
			m.logger.Error("Failed to remove expired file", "file_id", rec.ID, "error", err)
			continue
		}
		if reclaimed {
			result.Reclaimed++
			filesReclaimedTotal.WithLabelValues("sweep").Inc()
			m.logger.Info("Expired file removed",
				"file_id", got.ID,
				"original_name", got.OriginalName,
				"expires_at", got.ExpiresAt,
			)
		}
	}

	result.Duration = time.Since(start)
	sweepsTotal.Inc()
	sweepDurationSeconds.Observe(result.Duration.Seconds())
	m.updateGauges()

	if result.Checked > 0 {
		m.logger.Info("Sweep finished",
			"reclaimed", result.Reclaimed,
			"errors", result.Errors,
			"duration", result.Duration,
		)
	}
	return result
}

// DeleteNow removes the file behind id right away. Deleting an already
// deleted record returns it unchanged.
func (m *Manager) DeleteNow(id string) (Record, error) {
	rec, reclaimed, err := m.store.reclaim(id, func(*Record) bool { return true }, m.storage.Remove)
	if err != nil {
		if KindOf(err) == KindNotFound {
			return Record{}, err
		}
		m.logger.Error("Failed to delete file", "file_id", id, "error", err)
		return Record{}, Internal("failed to delete file", err)
	}
	if reclaimed {
		filesReclaimedTotal.WithLabelValues("manual").Inc()
		m.logger.Info("File deleted", "file_id", rec.ID)
	}
	return rec, nil
}

func (m *Manager) updateGauges() {
	now := m.store.now()
	active, expired, deleted := 0, 0, 0
	for _, rec := range m.store.List(StatusAll) {
		switch {
		case rec.Deleted:
			deleted++
		case rec.IsExpired(now):
			expired++
		default:
			active++
		}
	}
	recordsGauge.WithLabelValues("active").Set(float64(active))
	recordsGauge.WithLabelValues("expired").Set(float64(expired))
	recordsGauge.WithLabelValues("deleted").Set(float64(deleted))
}
