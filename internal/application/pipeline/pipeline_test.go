package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/clock"
)

// ─────────────────────────────────────────────────────────────────────────────
// Fakes
// ─────────────────────────────────────────────────────────────────────────────

type fakeStore struct {
	mu sync.Mutex

	responses map[string]*record.Response
	progress  []progress.Entry
	nextID    int

	finds, creates, updates int

	// failNext makes the next n writes fail with failErr.
	failNext int
	failErr  error

	// hideFind makes FindResponse return no match, like a store whose
	// filter index lags behind a recent write.
	hideFind bool

	// onCreate runs inside CreateResponse, after the record is stored.
	onCreate func()
}

func newFakeStore() *fakeStore {
	return &fakeStore{responses: make(map[string]*record.Response)}
}

func (s *fakeStore) FindResponse(_ context.Context, studentID shared.StudentID, activityID shared.ActivityID) (*record.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.finds++

	if s.hideFind {
		return nil, nil
	}

	// First match wins, in creation order. An empty stored back-
	// reference matches anything, like a filter on the surviving field.
	for i := 1; i <= s.nextID; i++ {
		r, ok := s.responses[recID(i)]
		if !ok {
			continue
		}
		studentMatch := r.StudentID == studentID || r.StudentID.IsEmpty()
		activityMatch := r.ActivityID == activityID || r.ActivityID.IsEmpty()
		if studentMatch && activityMatch {
			cp := *r
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) CreateResponse(_ context.Context, resp record.Response) (*record.Response, error) {
	s.mu.Lock()
	if s.failNext > 0 {
		s.failNext--
		err := s.failErr
		s.mu.Unlock()
		return nil, err
	}
	s.creates++
	s.nextID++
	resp.ID = recID(s.nextID)
	s.responses[resp.ID] = &resp
	cp := resp
	hook := s.onCreate
	s.mu.Unlock()

	if hook != nil {
		hook()
	}
	return &cp, nil
}

func (s *fakeStore) UpdateResponse(_ context.Context, id string, resp record.Response) (*record.Response, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return nil, s.failErr
	}
	if _, ok := s.responses[id]; !ok {
		return nil, shared.ErrRecordNotFound
	}
	s.updates++
	resp.ID = id
	s.responses[id] = &resp
	cp := resp
	return &cp, nil
}

func (s *fakeStore) CreateProgress(_ context.Context, entry progress.Entry) (*progress.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext > 0 {
		s.failNext--
		return nil, s.failErr
	}
	entry.ID = fmt.Sprintf("prog%d", len(s.progress)+1)
	s.progress = append(s.progress, entry)
	cp := entry
	return &cp, nil
}

func (s *fakeStore) ListProgressSince(_ context.Context, _ time.Time) ([]progress.Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]progress.Entry(nil), s.progress...), nil
}

func (s *fakeStore) only(t *testing.T) *record.Response {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	require.Len(t, s.responses, 1)
	for _, r := range s.responses {
		return r
	}
	return nil
}

func recID(n int) string {
	return "rec" + strconv.Itoa(n)
}

type fakeSink struct {
	mu    sync.Mutex
	calls int
}

func (f *fakeSink) MarkFinished(_ context.Context, _ shared.StudentID, _ shared.ActivityID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return nil
}

func (f *fakeSink) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

// ─────────────────────────────────────────────────────────────────────────────
// Helpers
// ─────────────────────────────────────────────────────────────────────────────

func testConfig() Config {
	return Config{
		DebounceWindow:   100 * time.Millisecond,
		RetryInterval:    1 * time.Second,
		AutosaveInterval: 5 * time.Second,
		AutosaveGrace:    2 * time.Second,
	}
}

func newTestPipeline(store *fakeStore, sink FinishedSink) (*Pipeline, *clock.Fake) {
	fc := clock.NewFake(time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC))
	p := New(testConfig(), Deps{
		Store: store,
		Sink:  sink,
		Clock: fc,
	})
	return p, fc
}

func snapshot(answers map[string]string) Snapshot {
	return Snapshot{
		SessionID:  "sess-0001",
		StudentID:  "stu-1",
		ActivityID: "vision-board-01",
		Cycle:      2,
		Answers:    answers,
		Status:     session.StatusInProgress,
		StartedAt:  time.Date(2025, 9, 1, 10, 0, 0, 0, time.UTC),
		Cohort:     "fall-2025",
		GroupName:  "group-a",
	}
}

func completedSnapshot(answers map[string]string, at time.Time) Snapshot {
	s := snapshot(answers)
	s.Status = session.StatusCompleted
	s.CompletedAt = &at
	s.WordCount = 42
	s.PointsEarned = 30
	return s
}

func blobAnswers(t *testing.T, blob string) map[string]map[string]string {
	t.Helper()
	var parsed map[string]map[string]string
	require.NoError(t, json.Unmarshal([]byte(blob), &parsed))
	return parsed
}

// ─────────────────────────────────────────────────────────────────────────────
// Tests
// ─────────────────────────────────────────────────────────────────────────────

func TestCoalescing_BurstOfEditsProducesOneWrite(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	answers := map[string]string{}
	var h *Handle
	for i := 1; i <= 10; i++ {
		answers["q"+strconv.Itoa(i)] = "answer"
		h = p.RequestSave(snapshot(copyMap(answers)))
		fc.Advance(10 * time.Millisecond)
	}

	assert.Equal(t, 0, store.creates, "no write before the debounce window elapses")

	fc.Advance(100 * time.Millisecond)

	require.NoError(t, h.Await(context.Background()))
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 0, store.updates)

	parsed := blobAnswers(t, store.only(t).AnswerBlob)
	assert.Len(t, parsed["cycle-2"], 10, "the single write carries the union of all edits")
}

func TestSharedHandle_BurstCallersObserveSameFlush(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	h1 := p.RequestSave(snapshot(map[string]string{"q1": "a"}))
	h2 := p.RequestSave(snapshot(map[string]string{"q1": "a", "q2": "b"}))
	assert.Same(t, h1, h2)

	fc.Advance(100 * time.Millisecond)
	assert.NoError(t, h1.Await(context.Background()))
}

func TestIdempotentUpsert_SecondFlushUpdatesSameRecord(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	answers := map[string]string{"q1": "first"}

	p.RequestSave(snapshot(answers))
	fc.Advance(100 * time.Millisecond)

	p.RequestSave(snapshot(answers))
	fc.Advance(100 * time.Millisecond)

	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.updates)

	rec := store.only(t)
	parsed := blobAnswers(t, rec.AnswerBlob)
	assert.Equal(t, "first", parsed["cycle-2"]["q1"])
}

func TestCycleIsolation_SavingCycle2PreservesCycle1(t *testing.T) {
	store := newFakeStore()
	store.nextID = 1
	store.responses["rec1"] = &record.Response{
		ID:         "rec1",
		StudentID:  "stu-1",
		ActivityID: "vision-board-01",
		AnswerBlob: `{"cycle-1":{"q1":"old answer"}}`,
		Status:     "completed",
	}

	p, fc := newTestPipeline(store, nil)

	p.RequestSave(snapshot(map[string]string{"q1": "new answer"}))
	fc.Advance(100 * time.Millisecond)

	rec := store.only(t)
	parsed := blobAnswers(t, rec.AnswerBlob)
	assert.Equal(t, "old answer", parsed["cycle-1"]["q1"])
	assert.Equal(t, "new answer", parsed["cycle-2"]["q1"])
}

func TestFindMiss_FallbackUpdatePreservesOtherCycles(t *testing.T) {
	store := newFakeStore()
	store.nextID = 1
	store.responses["rec1"] = &record.Response{
		ID:         "rec1",
		StudentID:  "stu-1",
		ActivityID: "vision-board-01",
		AnswerBlob: `{"cycle-1":{"q1":"old answer"}}`,
		Status:     "completed",
	}

	p, fc := newTestPipeline(store, nil)

	p.RequestSave(snapshot(map[string]string{"q1": "new answer"}))
	fc.Advance(100 * time.Millisecond)
	require.Equal(t, 1, store.updates)

	// The filtered find misses while the record's ID is cached.
	store.mu.Lock()
	store.hideFind = true
	store.mu.Unlock()

	p.RequestSave(snapshot(map[string]string{"q1": "new answer", "q2": "late edit"}))
	fc.Advance(100 * time.Millisecond)

	assert.Equal(t, 0, store.creates, "the cached ID must be reused, not a new record created")
	assert.Equal(t, 2, store.updates)

	parsed := blobAnswers(t, store.only(t).AnswerBlob)
	assert.Equal(t, "old answer", parsed["cycle-1"]["q1"], "fallback write must not erase other cycles")
	assert.Equal(t, "late edit", parsed["cycle-2"]["q2"])
}

func TestUpdate_RepairsMissingBackReferences(t *testing.T) {
	store := newFakeStore()
	store.nextID = 1
	store.responses["rec1"] = &record.Response{
		ID:        "rec1",
		StudentID: "stu-1",
		// ActivityID lost by an older writer.
		AnswerBlob: `{"cycle-1":{"q1":"old"}}`,
	}

	p, fc := newTestPipeline(store, nil)

	p.RequestSave(snapshot(map[string]string{"q1": "a"}))
	fc.Advance(100 * time.Millisecond)

	rec := store.only(t)
	assert.True(t, rec.HasBackReferences())
	assert.Equal(t, shared.StudentID("stu-1"), rec.StudentID)
	assert.Equal(t, shared.ActivityID("vision-board-01"), rec.ActivityID)
}

func TestSerialization_MutationDuringFlushTriggersImmediateFollowUp(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	var followUp *Handle
	store.onCreate = func() {
		store.onCreate = nil
		followUp = p.RequestSave(snapshot(map[string]string{"q1": "a", "q2": "late edit"}))
	}

	first := p.RequestSave(snapshot(map[string]string{"q1": "a"}))
	fc.Advance(100 * time.Millisecond)

	require.NoError(t, first.Await(context.Background()))
	require.NotNil(t, followUp)
	require.NoError(t, followUp.Await(context.Background()))

	// The follow-up flushed immediately after the in-flight write, with
	// no second debounce window.
	assert.Equal(t, 1, store.creates)
	assert.Equal(t, 1, store.updates)

	parsed := blobAnswers(t, store.only(t).AnswerBlob)
	assert.Equal(t, "late edit", parsed["cycle-2"]["q2"])
}

func TestTransientFailure_RetriesWithLatestSnapshot(t *testing.T) {
	store := newFakeStore()
	store.failNext = 1
	store.failErr = shared.ErrRecordStoreUnavailable

	p, fc := newTestPipeline(store, nil)

	h := p.RequestSave(snapshot(map[string]string{"q1": "v1"}))
	fc.Advance(100 * time.Millisecond)

	// The caller sees the failure; the data is not dropped.
	assert.ErrorIs(t, h.Await(context.Background()), shared.ErrServiceUnavailable)
	assert.Equal(t, 0, store.creates)

	// A newer edit lands before the retry fires.
	p.RequestSave(snapshot(map[string]string{"q1": "v2"}))

	fc.Advance(1 * time.Second)

	assert.Equal(t, 1, store.creates)
	parsed := blobAnswers(t, store.only(t).AnswerBlob)
	assert.Equal(t, "v2", parsed["cycle-2"]["q1"], "retry carries the latest snapshot, not the one that failed")
}

func TestFatalFailure_NotRetried(t *testing.T) {
	store := newFakeStore()
	store.failNext = 1
	store.failErr = shared.ErrMalformedRecordRequest

	p, fc := newTestPipeline(store, nil)

	h := p.RequestSave(snapshot(map[string]string{"q1": "a"}))
	fc.Advance(100 * time.Millisecond)

	assert.ErrorIs(t, h.Await(context.Background()), shared.ErrInvalidInput)

	// Only the autosave timer remains armed; no retry was scheduled.
	assert.Equal(t, 1, fc.PendingTimers())

	fc.Advance(3 * time.Second)
	assert.Equal(t, 0, store.creates)
}

func TestCompletion_CreatesExactlyOneProgressRecord(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	p, fc := newTestPipeline(store, sink)

	answers := map[string]string{"q1": "done"}
	completedAt := fc.Now().Add(17 * time.Minute)

	h := p.SaveNow(completedSnapshot(answers, completedAt))
	require.NoError(t, h.Await(context.Background()))

	require.Len(t, store.progress, 1)
	entry := store.progress[0]
	assert.Equal(t, shared.Cycle(2), entry.Cycle)
	assert.Equal(t, 17, entry.TimeSpentMinutes)
	assert.Equal(t, 42, entry.WordCount)
	assert.Equal(t, 30, entry.PointsEarned)
	assert.Equal(t, 1, sink.count())
	assert.True(t, p.ProgressRecorded())
}

func TestCompletion_SecondCompletedFlushIsIdempotent(t *testing.T) {
	store := newFakeStore()
	sink := &fakeSink{}
	p, _ := newTestPipeline(store, sink)

	completedAt := time.Date(2025, 9, 1, 10, 20, 0, 0, time.UTC)
	snap := completedSnapshot(map[string]string{"q1": "done"}, completedAt)

	require.NoError(t, p.SaveNow(snap).Await(context.Background()))
	require.NoError(t, p.SaveNow(snap).Await(context.Background()))

	assert.Len(t, store.progress, 1, "second completed flush must not create a second progress record")
	assert.Equal(t, 1, sink.count())
}

func TestAutosave_FiresAfterGracePeriod(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	p.RequestSave(snapshot(map[string]string{"q1": "a"}))
	fc.Advance(100 * time.Millisecond)
	require.Equal(t, 1, store.creates)

	// No edits; the autosave interval after the grace period still
	// produces a write with the buffered data.
	fc.Advance(7 * time.Second)
	assert.Equal(t, 1, store.updates)

	// And again one interval later.
	fc.Advance(5 * time.Second)
	assert.Equal(t, 2, store.updates)
}

func TestAutosave_NothingBufferedNoWrite(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)
	_ = p

	fc.Advance(30 * time.Second)
	assert.Equal(t, 0, store.creates)
	assert.Equal(t, 0, store.finds)
}

func TestClose_FlushesPendingAndStopsTimers(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	p.RequestSave(snapshot(map[string]string{"q1": "last edit"}))

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 1, store.creates, "pending data is flushed on close without waiting out the debounce")
	assert.Equal(t, 0, fc.PendingTimers())

	// Work after close is refused.
	h := p.RequestSave(snapshot(map[string]string{"q1": "too late"}))
	assert.ErrorIs(t, h.Await(context.Background()), shared.ErrInvalidState)
}

func TestClose_NoPendingIsClean(t *testing.T) {
	store := newFakeStore()
	p, fc := newTestPipeline(store, nil)

	require.NoError(t, p.Close(context.Background()))
	assert.Equal(t, 0, store.finds)
	assert.Equal(t, 0, fc.PendingTimers())
}

func copyMap(m map[string]string) map[string]string {
	cp := make(map[string]string, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
