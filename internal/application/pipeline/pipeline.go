// Package pipeline implements the per-session persistence pipeline: the
// sole owner of write ordering between an open session and the record
// store. It debounces bursts of edits into single writes, keeps at most
// one write in flight, retries transient failures with the latest
// snapshot, and gates the once-only progress write on the first
// successful completed flush.
package pipeline

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/clock"
)

// ══════════════════════════════════════════════════════════════════════════════
// PORTS
// ══════════════════════════════════════════════════════════════════════════════

// FinishedSink marks an activity as finished for a student on the host
// platform. MarkFinished is idempotent; marking an already-finished
// activity is a no-op.
type FinishedSink interface {
	MarkFinished(ctx context.Context, studentID shared.StudentID, activityID shared.ActivityID) error
}

// ══════════════════════════════════════════════════════════════════════════════
// SNAPSHOT
// ══════════════════════════════════════════════════════════════════════════════

// Snapshot is an immutable copy of the session buffer at the moment a
// save was requested. The pipeline never reads the live session; every
// flush works from the latest snapshot handed to it.
type Snapshot struct {
	SessionID  string
	StudentID  shared.StudentID
	ActivityID shared.ActivityID
	Cycle      shared.Cycle

	// Answers is the full current buffer, not a delta.
	Answers map[string]string

	Status    session.Status
	StartedAt time.Time

	// WordCount and PointsEarned feed the progress record on the
	// completed flush; both are zero for in-progress saves.
	WordCount    int
	PointsEarned int
	CompletedAt  *time.Time

	// Cohort and GroupName are denormalized onto the response record
	// when the pipeline has to create it.
	Cohort    shared.Cohort
	GroupName string
}

// ══════════════════════════════════════════════════════════════════════════════
// COMPLETION HANDLE
// ══════════════════════════════════════════════════════════════════════════════

// Handle is the shared outcome of the next flush. All RequestSave calls
// made before that flush fires receive the same handle.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// Await blocks until the flush completes or the context is cancelled.
func (h *Handle) Await(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return h.err
	}
}

// Done returns a channel closed when the flush has completed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err returns the flush outcome. Valid only after Done is closed.
func (h *Handle) Err() error {
	return h.err
}

func (h *Handle) resolve(err error) {
	if h == nil {
		return
	}
	h.err = err
	close(h.done)
}

// ══════════════════════════════════════════════════════════════════════════════
// CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// Config contains pipeline timing configuration.
type Config struct {
	// DebounceWindow is how long after the last RequestSave a flush
	// waits, so a burst of edits produces one write.
	DebounceWindow time.Duration

	// RetryInterval is the fixed delay between re-attempts after a
	// transient flush failure.
	RetryInterval time.Duration

	// AutosaveInterval fires a save regardless of edit activity.
	AutosaveInterval time.Duration

	// AutosaveGrace suppresses autosave right after the session opens,
	// to avoid re-writing freshly loaded unchanged data.
	AutosaveGrace time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		DebounceWindow:   400 * time.Millisecond,
		RetryInterval:    5 * time.Second,
		AutosaveInterval: 30 * time.Second,
		AutosaveGrace:    10 * time.Second,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.DebounceWindow <= 0 {
		c.DebounceWindow = d.DebounceWindow
	}
	if c.RetryInterval <= 0 {
		c.RetryInterval = d.RetryInterval
	}
	if c.AutosaveInterval <= 0 {
		c.AutosaveInterval = d.AutosaveInterval
	}
	if c.AutosaveGrace < 0 {
		c.AutosaveGrace = d.AutosaveGrace
	}
	return c
}

// Deps contains the pipeline's collaborators.
type Deps struct {
	Store     record.Store
	Sink      FinishedSink
	Clock     clock.Clock
	Logger    *slog.Logger
	Publisher shared.EventPublisher
}

// ══════════════════════════════════════════════════════════════════════════════
// PIPELINE
// ══════════════════════════════════════════════════════════════════════════════

// Pipeline serializes all writes for one session. A new flush never
// starts while one is in flight; mutations arriving during a flush
// coalesce into an immediate follow-up flush.
type Pipeline struct {
	config Config

	store     record.Store
	sink      FinishedSink
	clk       clock.Clock
	logger    *slog.Logger
	publisher shared.EventPublisher

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  *Snapshot
	latest   *Snapshot
	next     *Handle
	inFlight bool
	closed   bool

	// recordID caches the response record's store ID after the first
	// successful find or create; recordBlob carries the last blob known
	// to be stored under that ID, so a fallback write cannot erase other
	// cycles' answers.
	recordID   string
	recordBlob string

	progressRecorded bool
	finishedMarked   bool

	debounceTimer clock.Timer
	retryTimer    clock.Timer
	autosaveTimer clock.Timer
}

// New creates a pipeline for one session and arms the autosave timer.
func New(config Config, deps Deps) *Pipeline {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}

	ctx, cancel := context.WithCancel(context.Background())
	p := &Pipeline{
		config:    config.withDefaults(),
		store:     deps.Store,
		sink:      deps.Sink,
		clk:       deps.Clock,
		logger:    deps.Logger,
		publisher: deps.Publisher,
		ctx:       ctx,
		cancel:    cancel,
	}

	p.autosaveTimer = p.clk.AfterFunc(p.config.AutosaveGrace+p.config.AutosaveInterval, p.autosaveTick)
	return p
}

// RequestSave records the snapshot as the latest pending data, replacing
// any earlier pending snapshot, and (re)starts the debounce window. The
// returned handle resolves with the outcome of the flush that carries
// this snapshot (or a newer one that superseded it).
func (p *Pipeline) RequestSave(snap Snapshot) *Handle {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		h := newHandle()
		h.resolve(shared.ErrSessionClosed)
		return h
	}

	p.pending = &snap
	p.latest = &snap
	if p.next == nil {
		p.next = newHandle()
	}

	// While a write is in flight the flush loop picks the new snapshot
	// up as soon as the current write finishes; no timer needed.
	if !p.inFlight {
		if p.debounceTimer == nil {
			p.debounceTimer = p.clk.AfterFunc(p.config.DebounceWindow, p.flushLoop)
		} else {
			p.debounceTimer.Reset(p.config.DebounceWindow)
		}
	}

	return p.next
}

// SaveNow bypasses the debounce window and flushes the snapshot
// immediately. Used for completion and exit, where the caller awaits
// the outcome.
func (p *Pipeline) SaveNow(snap Snapshot) *Handle {
	h := p.RequestSave(snap)

	p.mu.Lock()
	if p.debounceTimer != nil {
		p.debounceTimer.Stop()
		p.debounceTimer = nil
	}
	p.mu.Unlock()

	p.flushLoop()
	return h
}

// Close stops all timers and performs one final best-effort awaited
// save of any pending data. The pipeline accepts no work afterwards.
func (p *Pipeline) Close(ctx context.Context) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.stopTimersLocked()

	var finalSnap *Snapshot
	if p.pending != nil {
		finalSnap = p.pending
	}
	p.mu.Unlock()

	var err error
	if finalSnap != nil {
		h := p.SaveNow(*finalSnap)
		err = h.Await(ctx)
	}

	p.mu.Lock()
	p.closed = true
	p.stopTimersLocked()
	if p.next != nil {
		p.next.resolve(shared.ErrSessionClosed)
		p.next = nil
	}
	p.mu.Unlock()

	p.cancel()
	return err
}

// ProgressRecorded reports whether the once-only progress record has
// been written.
func (p *Pipeline) ProgressRecorded() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressRecorded
}

func (p *Pipeline) stopTimersLocked() {
	if p.debounceTimer != nil {
		p.debounceTimer.Stop()
		p.debounceTimer = nil
	}
	if p.retryTimer != nil {
		p.retryTimer.Stop()
		p.retryTimer = nil
	}
	if p.autosaveTimer != nil {
		p.autosaveTimer.Stop()
		p.autosaveTimer = nil
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// Flush serialization
// ──────────────────────────────────────────────────────────────────────────────

// flushLoop drains pending snapshots one write at a time. When new data
// arrives during a write, the loop immediately runs another flush with
// it rather than waiting for a new debounce window.
func (p *Pipeline) flushLoop() {
	p.mu.Lock()
	if p.closed && p.pending == nil {
		p.mu.Unlock()
		return
	}
	if p.inFlight {
		p.mu.Unlock()
		return
	}
	p.debounceTimer = nil

	for p.pending != nil {
		snap := p.pending
		h := p.next
		p.pending = nil
		p.next = nil
		p.inFlight = true
		p.mu.Unlock()

		err := p.doFlush(p.ctx, snap)

		p.mu.Lock()
		p.inFlight = false

		if err == nil {
			h.resolve(nil)
			continue
		}

		h.resolve(err)

		if shared.IsRetryable(err) {
			// Keep the data. A newer snapshot supersedes the failed
			// one; otherwise the failed snapshot is re-queued so the
			// retry carries the latest state known.
			if p.pending == nil {
				p.pending = snap
			}
			p.scheduleRetryLocked()
		} else {
			// Malformed data cannot succeed on a re-attempt; keeping it
			// buffered would just make autosave replay the failure.
			p.latest = nil
			p.logger.Error("dropping unsaveable snapshot",
				slog.String("student_id", snap.StudentID.String()),
				slog.String("activity_id", snap.ActivityID.String()),
				slog.String("error", err.Error()),
			)
		}
		break
	}
	p.mu.Unlock()
}

func (p *Pipeline) scheduleRetryLocked() {
	if p.closed {
		return
	}
	if p.retryTimer == nil {
		p.retryTimer = p.clk.AfterFunc(p.config.RetryInterval, p.retryTick)
	} else {
		p.retryTimer.Reset(p.config.RetryInterval)
	}
}

func (p *Pipeline) retryTick() {
	p.mu.Lock()
	p.retryTimer = nil
	p.mu.Unlock()
	p.flushLoop()
}

// autosaveTick fires a save with whatever is currently buffered, then
// re-arms itself. Redundant writes are harmless; the flush is an
// idempotent upsert.
func (p *Pipeline) autosaveTick() {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return
	}
	if p.pending == nil && p.latest != nil && !p.inFlight {
		p.pending = p.latest
		if p.next == nil {
			p.next = newHandle()
		}
	}
	p.autosaveTimer = p.clk.AfterFunc(p.config.AutosaveInterval, p.autosaveTick)
	p.mu.Unlock()

	p.flushLoop()
}

// ──────────────────────────────────────────────────────────────────────────────
// Flush algorithm
// ──────────────────────────────────────────────────────────────────────────────

// doFlush performs one find-merge-upsert cycle, plus the once-only
// progress write on the first successful completed flush.
func (p *Pipeline) doFlush(ctx context.Context, snap *Snapshot) error {
	existing, err := p.findExisting(ctx, snap)
	if err != nil {
		p.reportSaveFailure(snap, err)
		return err
	}

	if existing != nil {
		err = p.updateExisting(ctx, snap, existing)
	} else {
		err = p.createNew(ctx, snap)
	}
	if err != nil {
		p.reportSaveFailure(snap, err)
		return err
	}

	if snap.Status == session.StatusCompleted {
		if err := p.recordCompletion(ctx, snap); err != nil {
			p.reportSaveFailure(snap, err)
			return err
		}
	}
	return nil
}

// findExisting resolves the response record, preferring the cached
// store ID over a fresh filtered query.
func (p *Pipeline) findExisting(ctx context.Context, snap *Snapshot) (*record.Response, error) {
	p.mu.Lock()
	cachedID := p.recordID
	cachedBlob := p.recordBlob
	p.mu.Unlock()

	found, err := p.store.FindResponse(ctx, snap.StudentID, snap.ActivityID)
	if err != nil {
		return nil, err
	}
	if found == nil && cachedID != "" {
		// The filtered query can miss a record we created moments ago
		// when the store's index lags. Fall back to the known ID with
		// the last blob written under it, so the merge still preserves
		// the other cycles' answers.
		found = &record.Response{
			ID:         cachedID,
			StudentID:  snap.StudentID,
			ActivityID: snap.ActivityID,
			AnswerBlob: cachedBlob,
		}
	}
	return found, nil
}

func (p *Pipeline) updateExisting(ctx context.Context, snap *Snapshot, existing *record.Response) error {
	merged, err := session.EncodeAnswerBlob(existing.AnswerBlob, snap.Cycle, snap.Answers)
	if err != nil {
		return err
	}

	upd := record.Response{
		StudentID:   snap.StudentID,
		ActivityID:  snap.ActivityID,
		AnswerBlob:  merged,
		Status:      string(snap.Status),
		Cohort:      existing.Cohort,
		GroupName:   existing.GroupName,
		CompletedAt: snap.CompletedAt,
	}
	if upd.Cohort.IsEmpty() {
		upd.Cohort = snap.Cohort
	}
	if upd.GroupName == "" {
		upd.GroupName = snap.GroupName
	}

	saved, err := p.store.UpdateResponse(ctx, existing.ID, upd)
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.recordID = saved.ID
	p.recordBlob = merged
	p.mu.Unlock()
	return nil
}

func (p *Pipeline) createNew(ctx context.Context, snap *Snapshot) error {
	blob, err := session.EncodeAnswerBlob("", snap.Cycle, snap.Answers)
	if err != nil {
		return err
	}

	created, err := p.store.CreateResponse(ctx, record.Response{
		StudentID:   snap.StudentID,
		ActivityID:  snap.ActivityID,
		AnswerBlob:  blob,
		Status:      string(snap.Status),
		Cohort:      snap.Cohort,
		GroupName:   snap.GroupName,
		CompletedAt: snap.CompletedAt,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.recordID = created.ID
	p.recordBlob = blob
	p.mu.Unlock()
	return nil
}

// recordCompletion writes the progress record and marks the activity
// finished, each exactly once across all completed flushes.
func (p *Pipeline) recordCompletion(ctx context.Context, snap *Snapshot) error {
	p.mu.Lock()
	needProgress := !p.progressRecorded
	needMark := !p.finishedMarked
	p.mu.Unlock()

	if needProgress {
		completedAt := p.clk.Now()
		if snap.CompletedAt != nil {
			completedAt = *snap.CompletedAt
		}
		minutes := int(completedAt.Sub(snap.StartedAt).Minutes())
		if minutes < 0 {
			minutes = 0
		}

		_, err := p.store.CreateProgress(ctx, progress.Entry{
			StudentID:        snap.StudentID,
			ActivityID:       snap.ActivityID,
			Cycle:            snap.Cycle,
			TimeSpentMinutes: minutes,
			WordCount:        snap.WordCount,
			PointsEarned:     snap.PointsEarned,
			CompletedAt:      completedAt,
		})
		if err != nil {
			return err
		}

		p.mu.Lock()
		p.progressRecorded = true
		p.mu.Unlock()

		p.publish(shared.NewSessionCompletedEvent(
			snap.SessionID,
			snap.StudentID.String(),
			snap.ActivityID.String(),
			snap.Cycle.Int(),
			minutes,
			snap.WordCount,
			snap.PointsEarned,
		))
	}

	if needMark && p.sink != nil {
		if err := p.sink.MarkFinished(ctx, snap.StudentID, snap.ActivityID); err != nil {
			return err
		}
		p.mu.Lock()
		p.finishedMarked = true
		p.mu.Unlock()
	}
	return nil
}

func (p *Pipeline) reportSaveFailure(snap *Snapshot, err error) {
	p.logger.Warn("save failed",
		slog.String("student_id", snap.StudentID.String()),
		slog.String("activity_id", snap.ActivityID.String()),
		slog.Int("cycle", snap.Cycle.Int()),
		slog.Bool("retryable", shared.IsRetryable(err)),
		slog.String("error", err.Error()),
	)
	p.publish(shared.NewSaveFailedEvent(
		snap.SessionID,
		snap.StudentID.String(),
		snap.ActivityID.String(),
		err.Error(),
		shared.IsRetryable(err),
	))
}

func (p *Pipeline) publish(event shared.Event) {
	if p.publisher == nil {
		return
	}
	if err := p.publisher.Publish(event); err != nil {
		p.logger.Warn("publish event failed",
			slog.String("event_type", string(event.EventType())),
			slog.String("error", err.Error()),
		)
	}
}
