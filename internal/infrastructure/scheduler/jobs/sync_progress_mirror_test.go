package jobs

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

type stubStore struct {
	record.Store

	entries   []progress.Entry
	lastSince time.Time
	listErr   error
}

func (s *stubStore) ListProgressSince(ctx context.Context, since time.Time) ([]progress.Entry, error) {
	s.lastSince = since
	if s.listErr != nil {
		return nil, s.listErr
	}

	var out []progress.Entry
	for _, e := range s.entries {
		if !e.CompletedAt.Before(since) {
			out = append(out, e)
		}
	}
	return out, nil
}

type stubMirror struct {
	mu        sync.Mutex
	upserts   []progress.Entry
	upsertErr map[string]error
	latest    time.Time
}

func (m *stubMirror) Upsert(ctx context.Context, entry progress.Entry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if err := m.upsertErr[entry.ActivityID.String()]; err != nil {
		return err
	}
	m.upserts = append(m.upserts, entry)
	return nil
}

func (m *stubMirror) ListByStudent(ctx context.Context, studentID string) ([]progress.Entry, error) {
	return nil, nil
}

func (m *stubMirror) ListCompletedSince(ctx context.Context, since time.Time) ([]progress.Entry, error) {
	return nil, nil
}

func (m *stubMirror) LastSyncedAt(ctx context.Context) (time.Time, error) {
	return m.latest, nil
}

type capturingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *capturingPublisher) Publish(event shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func mirrorEntry(activityID string, completedAt time.Time) progress.Entry {
	return progress.Entry{
		ID:               "rec-" + activityID,
		StudentID:        "stu-1",
		ActivityID:       shared.ActivityID(activityID),
		Cycle:            2,
		TimeSpentMinutes: 15,
		WordCount:        40,
		PointsEarned:     25,
		CompletedAt:      completedAt,
	}
}

func TestSyncProgressMirrorJob_SyncsNewEntries(t *testing.T) {
	now := time.Now().UTC()
	store := &stubStore{entries: []progress.Entry{
		mirrorEntry("vision-board-01", now.Add(-time.Hour)),
		mirrorEntry("gratitude-log-02", now.Add(-time.Minute)),
	}}
	mirror := &stubMirror{}
	pub := &capturingPublisher{}

	job := NewSyncProgressMirrorJob(store, mirror, pub, nil, DefaultSyncProgressMirrorConfig())
	require.NoError(t, job.Run(context.Background()))

	assert.Len(t, mirror.upserts, 2)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 2, stats.FetchedCount)
	assert.Equal(t, 2, stats.SyncedCount)
	assert.Zero(t, stats.FailedCount)

	require.Len(t, pub.events, 1)
	assert.Equal(t, shared.EventMirrorSyncCompleted, pub.events[0].EventType())
}

func TestSyncProgressMirrorJob_EmptyMirrorUsesInitialLookback(t *testing.T) {
	store := &stubStore{}
	mirror := &stubMirror{}

	cfg := DefaultSyncProgressMirrorConfig()
	cfg.InitialLookback = 48 * time.Hour

	job := NewSyncProgressMirrorJob(store, mirror, nil, nil, cfg)
	require.NoError(t, job.Run(context.Background()))

	expected := time.Now().UTC().Add(-48 * time.Hour)
	assert.WithinDuration(t, expected, store.lastSince, time.Minute)
}

func TestSyncProgressMirrorJob_ResumesFromHighWaterMarkWithOverlap(t *testing.T) {
	latest := time.Date(2025, 9, 1, 12, 0, 0, 0, time.UTC)
	store := &stubStore{}
	mirror := &stubMirror{latest: latest}

	cfg := DefaultSyncProgressMirrorConfig()
	cfg.Overlap = 10 * time.Minute

	job := NewSyncProgressMirrorJob(store, mirror, nil, nil, cfg)
	require.NoError(t, job.Run(context.Background()))

	assert.Equal(t, latest.Add(-10*time.Minute), store.lastSince)
}

func TestSyncProgressMirrorJob_FetchFailureReturnsError(t *testing.T) {
	store := &stubStore{listErr: errors.New("record store down")}
	mirror := &stubMirror{}

	job := NewSyncProgressMirrorJob(store, mirror, nil, nil, DefaultSyncProgressMirrorConfig())
	err := job.Run(context.Background())

	require.Error(t, err)
	assert.Nil(t, job.LastStats())
}

func TestSyncProgressMirrorJob_PartialUpsertFailureContinues(t *testing.T) {
	now := time.Now().UTC()
	store := &stubStore{entries: []progress.Entry{
		mirrorEntry("vision-board-01", now.Add(-time.Hour)),
		mirrorEntry("gratitude-log-02", now.Add(-time.Minute)),
	}}
	mirror := &stubMirror{upsertErr: map[string]error{
		"vision-board-01": errors.New("constraint violated"),
	}}

	job := NewSyncProgressMirrorJob(store, mirror, nil, nil, DefaultSyncProgressMirrorConfig())
	require.NoError(t, job.Run(context.Background()))

	require.Len(t, mirror.upserts, 1)
	assert.Equal(t, shared.ActivityID("gratitude-log-02"), mirror.upserts[0].ActivityID)

	stats := job.LastStats()
	require.NotNil(t, stats)
	assert.Equal(t, 1, stats.SyncedCount)
	assert.Equal(t, 1, stats.FailedCount)
}

func TestRefreshCatalogJob_Invalidates(t *testing.T) {
	inv := &stubInvalidator{}
	job := NewRefreshCatalogJob(inv, nil)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, 1, inv.calls)
}

func TestRefreshCatalogJob_PropagatesError(t *testing.T) {
	inv := &stubInvalidator{err: errors.New("redis down")}
	job := NewRefreshCatalogJob(inv, nil)

	assert.Error(t, job.Run(context.Background()))
}

type stubInvalidator struct {
	calls int
	err   error
}

func (s *stubInvalidator) InvalidateCatalog(ctx context.Context) error {
	s.calls++
	return s.err
}
