// Package jobs contains implementations of scheduled jobs for Growth
// Activity Hub. Each job keeps a local copy of remote state fresh so
// reporting and prescription reads never depend on the remote API being up.
package jobs

import (
	"context"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SYNC PROGRESS MIRROR JOB
// ══════════════════════════════════════════════════════════════════════════════

// SyncProgressMirrorJob copies new progress entries from the remote record
// store into the local mirror. The remote store stays the system of record;
// the mirror only serves reporting queries.
type SyncProgressMirrorJob struct {
	store     record.Store
	mirror    progress.MirrorRepository
	publisher shared.EventPublisher
	logger    *slog.Logger
	config    SyncProgressMirrorConfig

	lastStats atomic.Value // *MirrorSyncStats
}

// SyncProgressMirrorConfig contains configuration for the sync job.
type SyncProgressMirrorConfig struct {
	// Overlap is subtracted from the high-water mark on each run so
	// entries written concurrently with the previous sync are not missed.
	// The upsert key makes the re-read harmless.
	Overlap time.Duration

	// InitialLookback bounds the first sync of an empty mirror.
	InitialLookback time.Duration

	// Timeout is the maximum duration for one sync run.
	Timeout time.Duration
}

// DefaultSyncProgressMirrorConfig returns sensible defaults.
func DefaultSyncProgressMirrorConfig() SyncProgressMirrorConfig {
	return SyncProgressMirrorConfig{
		Overlap:         5 * time.Minute,
		InitialLookback: 30 * 24 * time.Hour,
		Timeout:         5 * time.Minute,
	}
}

// MirrorSyncStats contains statistics from one sync run.
type MirrorSyncStats struct {
	StartedAt    time.Time
	CompletedAt  time.Time
	Since        time.Time
	FetchedCount int
	SyncedCount  int
	FailedCount  int
}

// NewSyncProgressMirrorJob creates the job.
func NewSyncProgressMirrorJob(
	store record.Store,
	mirror progress.MirrorRepository,
	publisher shared.EventPublisher,
	logger *slog.Logger,
	config SyncProgressMirrorConfig,
) *SyncProgressMirrorJob {
	if logger == nil {
		logger = slog.Default()
	}
	if config.Timeout <= 0 {
		config = DefaultSyncProgressMirrorConfig()
	}

	return &SyncProgressMirrorJob{
		store:     store,
		mirror:    mirror,
		publisher: publisher,
		logger:    logger,
		config:    config,
	}
}

// Name implements scheduler.Job.
func (j *SyncProgressMirrorJob) Name() string {
	return "sync_progress_mirror"
}

// Description implements scheduler.Job.
func (j *SyncProgressMirrorJob) Description() string {
	return "Copies new progress entries from the record store into the local mirror"
}

// Run implements scheduler.Job.
func (j *SyncProgressMirrorJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.config.Timeout)
	defer cancel()

	stats := &MirrorSyncStats{StartedAt: time.Now().UTC()}

	since, err := j.syncWindowStart(ctx)
	if err != nil {
		return err
	}
	stats.Since = since

	entries, err := j.store.ListProgressSince(ctx, since)
	if err != nil {
		j.logger.Error("mirror sync fetch failed", "since", since, "error", err)
		return err
	}
	stats.FetchedCount = len(entries)

	for _, entry := range entries {
		if err := j.mirror.Upsert(ctx, entry); err != nil {
			stats.FailedCount++
			j.logger.Error("mirror upsert failed",
				"student_id", entry.StudentID,
				"activity_id", entry.ActivityID,
				"cycle", entry.Cycle,
				"error", err,
			)
			continue
		}
		stats.SyncedCount++
	}

	stats.CompletedAt = time.Now().UTC()
	j.lastStats.Store(stats)

	j.logger.Info("mirror sync completed",
		"since", since.Format(time.RFC3339),
		"fetched", stats.FetchedCount,
		"synced", stats.SyncedCount,
		"failed", stats.FailedCount,
	)

	if j.publisher != nil {
		event := shared.NewMirrorSyncCompletedEvent(stats.SyncedCount, stats.FailedCount, since)
		if err := j.publisher.Publish(event); err != nil {
			j.logger.Warn("failed to publish mirror sync event", "error", err)
		}
	}

	return nil
}

// LastStats returns statistics from the most recent run, or nil.
func (j *SyncProgressMirrorJob) LastStats() *MirrorSyncStats {
	stats, _ := j.lastStats.Load().(*MirrorSyncStats)
	return stats
}

// syncWindowStart derives the window start from the mirror's high-water
// mark, minus the configured overlap.
func (j *SyncProgressMirrorJob) syncWindowStart(ctx context.Context) (time.Time, error) {
	latest, err := j.mirror.LastSyncedAt(ctx)
	if err != nil {
		return time.Time{}, err
	}

	if latest.IsZero() {
		return time.Now().UTC().Add(-j.config.InitialLookback), nil
	}

	return latest.Add(-j.config.Overlap), nil
}
