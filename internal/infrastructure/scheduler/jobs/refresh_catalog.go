package jobs

import (
	"context"
	"log/slog"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// REFRESH CATALOG JOB
// ══════════════════════════════════════════════════════════════════════════════

// CatalogInvalidator drops cached catalog state so the next read pulls
// fresh authoring data. Implemented by the Redis profile cache.
type CatalogInvalidator interface {
	InvalidateCatalog(ctx context.Context) error
}

// RefreshCatalogJob periodically invalidates the cached activity catalog
// and question lists. Authoring changes land upstream without any
// notification hook, so a timed invalidation is the freshness mechanism.
type RefreshCatalogJob struct {
	invalidator CatalogInvalidator
	logger      *slog.Logger
	timeout     time.Duration
}

// NewRefreshCatalogJob creates the job.
func NewRefreshCatalogJob(invalidator CatalogInvalidator, logger *slog.Logger) *RefreshCatalogJob {
	if logger == nil {
		logger = slog.Default()
	}

	return &RefreshCatalogJob{
		invalidator: invalidator,
		logger:      logger,
		timeout:     30 * time.Second,
	}
}

// Name implements scheduler.Job.
func (j *RefreshCatalogJob) Name() string {
	return "refresh_catalog"
}

// Description implements scheduler.Job.
func (j *RefreshCatalogJob) Description() string {
	return "Invalidates the cached activity catalog and question lists"
}

// Run implements scheduler.Job.
func (j *RefreshCatalogJob) Run(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, j.timeout)
	defer cancel()

	if err := j.invalidator.InvalidateCatalog(ctx); err != nil {
		j.logger.Error("catalog invalidation failed", "error", err)
		return err
	}

	j.logger.Info("catalog cache invalidated")
	return nil
}
