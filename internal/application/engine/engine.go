package engine

import (
	"context"
	"log/slog"
	"sync"

	"github.com/growthpath-hub/growth-activity-hub/internal/application/pipeline"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/clock"
	"github.com/growthpath-hub/growth-activity-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// ENGINE
// ══════════════════════════════════════════════════════════════════════════════

// Config contains engine configuration.
type Config struct {
	// Pipeline timing configuration applied to every session's pipeline.
	Pipeline pipeline.Config
}

// Deps contains the engine's collaborators.
type Deps struct {
	Store     record.Store
	Profiles  ProfileSource
	Sink      pipeline.FinishedSink
	Clock     clock.Clock
	Logger    *logger.Logger
	SaveLog   *slog.Logger
	Publisher shared.EventPublisher
}

// Engine drives activity sessions and computes prescriptions. Each open
// session owns an independent persistence pipeline; the engine itself
// holds no per-session state.
type Engine struct {
	config Config

	store     record.Store
	profiles  ProfileSource
	sink      pipeline.FinishedSink
	clk       clock.Clock
	logger    *logger.Logger
	saveLog   *slog.Logger
	publisher shared.EventPublisher

	prescriber *prescription.Engine
}

// New creates the engine.
func New(config Config, deps Deps) *Engine {
	if deps.Clock == nil {
		deps.Clock = clock.New()
	}
	if deps.Logger == nil {
		deps.Logger = logger.Default().With(logger.Component("activity-engine"))
	}
	if deps.SaveLog == nil {
		deps.SaveLog = slog.Default()
	}

	return &Engine{
		config:     config,
		store:      deps.Store,
		profiles:   deps.Profiles,
		sink:       deps.Sink,
		clk:        deps.Clock,
		logger:     deps.Logger,
		saveLog:    deps.SaveLog,
		publisher:  deps.Publisher,
		prescriber: prescription.NewEngine(),
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// ACTIVE SESSION
// ══════════════════════════════════════════════════════════════════════════════

// CompletionSummary is returned to the caller when a session completes.
type CompletionSummary struct {
	PointsEarned     int
	TimeSpentMinutes int
	WordCount        int
}

// ActiveSession bundles one open session with its persistence pipeline
// and the profile context captured at open time.
type ActiveSession struct {
	Session *session.Session

	profile StudentProfile
	points  int
	pipe    *pipeline.Pipeline

	mu      sync.Mutex
	summary *CompletionSummary
}

// ══════════════════════════════════════════════════════════════════════════════
// SESSION LIFECYCLE
// ══════════════════════════════════════════════════════════════════════════════

// OpenSession creates a session for the student's attempt at an
// activity. A previously started attempt is resumed: the buffer is
// reconstructed from the stored answer blob's highest cycle tag, and a
// corrupt blob degrades to an empty buffer rather than failing the open.
func (e *Engine) OpenSession(ctx context.Context, activityID shared.ActivityID, studentID shared.StudentID, cycle shared.Cycle) (*ActiveSession, error) {
	aid, err := shared.NewActivityID(activityID.String())
	if err != nil {
		return nil, err
	}
	sid, err := shared.NewStudentID(studentID.String())
	if err != nil {
		return nil, err
	}
	cyc, err := shared.NewCycle(cycle.Int())
	if err != nil {
		return nil, err
	}

	questions, err := e.profiles.Questions(ctx, aid)
	if err != nil {
		return nil, err
	}
	profile, err := e.profiles.Profile(ctx, sid)
	if err != nil {
		return nil, err
	}

	sess, err := session.New(aid, sid, cyc, questions, e.clk.Now())
	if err != nil {
		return nil, err
	}

	resumed := false
	existing, err := e.store.FindResponse(ctx, sid, aid)
	if err != nil {
		// The session can still open; the pipeline will retry writes
		// once the store recovers.
		e.logger.Warn("resume lookup failed, starting with empty buffer",
			logger.StudentID(sid.String()),
			logger.ActivityID(aid.String()),
			logger.Err(err),
		)
	} else if existing != nil {
		sess.RestoreResponses(existing.AnswerBlob)
		resumed = true
	}

	as := &ActiveSession{
		Session: sess,
		profile: profile,
		points:  e.activityPoints(ctx, aid),
		pipe: pipeline.New(e.config.Pipeline, pipeline.Deps{
			Store:     e.store,
			Sink:      e.sink,
			Clock:     e.clk,
			Logger:    e.saveLog,
			Publisher: e.publisher,
		}),
	}

	e.publish(shared.NewSessionOpenedEvent(sess.ID, sid.String(), aid.String(), cyc.Int(), resumed))
	e.logger.Info("session opened",
		logger.SessionID(sess.ID),
		logger.StudentID(sid.String()),
		logger.ActivityID(aid.String()),
		logger.CycleNumber(cyc.Int()),
	)
	return as, nil
}

// RecordAnswer writes an answer into the session buffer and schedules a
// debounced save. The returned handle resolves with the outcome of the
// flush that carries this edit.
func (e *Engine) RecordAnswer(as *ActiveSession, questionID, text string) *pipeline.Handle {
	as.Session.SetAnswer(questionID, text)
	return as.pipe.RequestSave(e.snapshotOf(as))
}

// Advance moves the session to the target stage when the stage machine
// allows it. A denied transition is a normal result, not an error.
// Entering Complete through Advance records the completion time; the
// progress write itself still happens exactly once, on the first
// successful completed flush.
func (e *Engine) Advance(as *ActiveSession, target session.Stage) session.Decision {
	from := as.Session.Stage()
	d := as.Session.Advance(target)
	if !d.Allowed {
		return d
	}

	if as.Session.Stage() == session.StageComplete {
		as.Session.MarkCompleted(e.clk.Now())
	}

	e.publish(shared.NewStageChangedEvent(
		as.Session.ID,
		as.Session.StudentID.String(),
		as.Session.ActivityID.String(),
		from.String(),
		target.String(),
	))
	as.pipe.RequestSave(e.snapshotOf(as))
	return d
}

// Complete closes out the session: it enters the Complete stage (or
// verifies the session is already there), forces an awaited flush, and
// returns the completion summary. Idempotent; a second call returns the
// same summary and never produces a second progress record.
func (e *Engine) Complete(ctx context.Context, as *ActiveSession) (CompletionSummary, error) {
	as.mu.Lock()
	if as.summary != nil {
		summary := *as.summary
		as.mu.Unlock()
		return summary, nil
	}
	as.mu.Unlock()

	sess := as.Session
	if sess.Stage() != session.StageComplete {
		d := sess.Advance(session.StageComplete)
		if !d.Allowed {
			return CompletionSummary{}, shared.NewDomainError("session", "Complete", shared.ErrValidation, d.Reason)
		}
	}
	sess.MarkCompleted(e.clk.Now())

	if err := as.pipe.SaveNow(e.snapshotOf(as)).Await(ctx); err != nil {
		return CompletionSummary{}, err
	}

	completedAt := sess.CompletedAt()
	minutes := 0
	if completedAt != nil {
		minutes = int(completedAt.Sub(sess.StartedAt).Minutes())
	}
	summary := CompletionSummary{
		PointsEarned:     as.points,
		TimeSpentMinutes: minutes,
		WordCount:        sess.WordCount(),
	}

	as.mu.Lock()
	as.summary = &summary
	as.mu.Unlock()

	e.logger.Info("session completed",
		logger.SessionID(sess.ID),
		logger.StudentID(sess.StudentID.String()),
		logger.ActivityID(sess.ActivityID.String()),
		logger.CycleNumber(sess.Cycle.Int()),
	)
	return summary, nil
}

// Exit tears the session down after one final awaited save of any
// pending edits. The session must not be used afterwards.
func (e *Engine) Exit(ctx context.Context, as *ActiveSession) error {
	err := as.pipe.Close(ctx)
	if err != nil {
		e.logger.Warn("final save on exit failed",
			logger.SessionID(as.Session.ID),
			logger.StudentID(as.Session.StudentID.String()),
			logger.Err(err),
		)
	}
	return err
}

// ══════════════════════════════════════════════════════════════════════════════
// PRESCRIPTION
// ══════════════════════════════════════════════════════════════════════════════

// ComputePrescription runs the pure prescription computation over the
// supplied inputs. No I/O; persisting the result is the orchestrating
// command's job.
func (e *Engine) ComputePrescription(scores prescription.Scores, catalog []prescription.Activity, history prescription.History) ([]shared.ActivityID, error) {
	return e.prescriber.Compute(scores, catalog, history)
}

// ──────────────────────────────────────────────────────────────────────────────
// Internals
// ──────────────────────────────────────────────────────────────────────────────

// snapshotOf freezes the session buffer for the pipeline.
func (e *Engine) snapshotOf(as *ActiveSession) pipeline.Snapshot {
	sess := as.Session
	status := session.StatusFor(sess.Stage())

	snap := pipeline.Snapshot{
		SessionID:  sess.ID,
		StudentID:  sess.StudentID,
		ActivityID: sess.ActivityID,
		Cycle:      sess.Cycle,
		Answers:    sess.Responses(),
		Status:     status,
		StartedAt:  sess.StartedAt,
		Cohort:     as.profile.Cohort,
		GroupName:  as.profile.GroupName,
	}
	if status == session.StatusCompleted {
		snap.CompletedAt = sess.CompletedAt()
		snap.WordCount = sess.WordCount()
		snap.PointsEarned = as.points
	}
	return snap
}

// activityPoints resolves the point value from the catalog; an activity
// missing from the catalog earns zero.
func (e *Engine) activityPoints(ctx context.Context, activityID shared.ActivityID) int {
	catalog, err := e.profiles.Catalog(ctx)
	if err != nil {
		e.logger.Warn("catalog lookup failed, points default to zero",
			logger.ActivityID(activityID.String()),
			logger.Err(err),
		)
		return 0
	}
	for _, a := range catalog {
		if a.ID == activityID {
			return a.Points
		}
	}
	return 0
}

func (e *Engine) publish(event shared.Event) {
	if e.publisher == nil {
		return
	}
	if err := e.publisher.Publish(event); err != nil {
		e.logger.Warn("publish event failed", logger.Err(err))
	}
}
