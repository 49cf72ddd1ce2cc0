package session

import (
	"encoding/json"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// SESSION ENTITY
// One open attempt at one activity by one student. Ephemeral: created when
// the activity opens, destroyed when the student exits or completes. The
// persistence pipeline must have flushed all pending writes before the
// session is discarded.
// ══════════════════════════════════════════════════════════════════════════════

// Session drives one open activity attempt.
type Session struct {
	// ID is a per-attempt identifier, used for event correlation.
	ID string

	// ActivityID and StudentID are immutable for the session's lifetime.
	ActivityID shared.ActivityID
	StudentID  shared.StudentID

	// Cycle is the reporting period this attempt is filed under.
	Cycle shared.Cycle

	// Questions is the read-only catalog slice for this activity.
	Questions []Question

	// StartedAt is set at creation and used to derive elapsed time.
	StartedAt time.Time

	stage       Stage
	responses   map[string]string
	completedAt *time.Time
}

// New creates a session at the Intro stage with an empty response buffer.
func New(activityID shared.ActivityID, studentID shared.StudentID, cycle shared.Cycle, questions []Question, startedAt time.Time) (*Session, error) {
	if !activityID.IsValid() {
		return nil, shared.ErrInvalidActivityID
	}
	if !studentID.IsValid() {
		return nil, shared.ErrInvalidStudentID
	}
	if !cycle.IsValid() {
		return nil, shared.ErrInvalidCycle
	}

	return &Session{
		ID:         uuid.NewString(),
		ActivityID: activityID,
		StudentID:  studentID,
		Cycle:      cycle,
		Questions:  questions,
		StartedAt:  startedAt,
		stage:      StageIntro,
		responses:  make(map[string]string),
	}, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Response buffer
// ─────────────────────────────────────────────────────────────────────────────

// SetAnswer records the answer for a question in the buffer. The buffer is
// the source of truth for what the student has typed until a save commits it.
func (s *Session) SetAnswer(questionID, text string) {
	s.responses[questionID] = text
}

// Answer returns the buffered answer for a question, or "".
func (s *Session) Answer(questionID string) string {
	return s.responses[questionID]
}

// Responses returns a copy of the buffer.
func (s *Session) Responses() map[string]string {
	out := make(map[string]string, len(s.responses))
	for k, v := range s.responses {
		out[k] = v
	}
	return out
}

// WordCount returns the total whitespace-delimited token count across all
// buffered answers.
func (s *Session) WordCount() int {
	total := 0
	for _, answer := range s.responses {
		total += len(strings.Fields(answer))
	}
	return total
}

// ─────────────────────────────────────────────────────────────────────────────
// Stage transitions
// ─────────────────────────────────────────────────────────────────────────────

// Stage returns the current stage.
func (s *Session) Stage() Stage {
	return s.stage
}

// Status returns the save status derived from the current stage.
func (s *Session) Status() Status {
	return StatusFor(s.stage)
}

// CanComplete reports whether every required question (reflection or not)
// has a non-blank answer in the buffer.
func (s *Session) CanComplete() bool {
	for _, q := range s.Questions {
		if q.IsRequired && !q.IsAnswered(s.responses[q.ID]) {
			return false
		}
	}
	return true
}

// CanAdvanceFromDo reports whether every required non-reflection question
// has a non-blank answer. Intentionally looser than CanComplete: it only
// unlocks the Reflect stage.
func (s *Session) CanAdvanceFromDo() bool {
	for _, q := range s.Questions {
		if q.IsRequired && !q.IsReflection && !q.IsAnswered(s.responses[q.ID]) {
			return false
		}
	}
	return true
}

// CanEnter reports whether the session may move to the target stage right
// now. All stages except Complete are freely enterable; Complete requires
// CanComplete.
func (s *Session) CanEnter(target Stage) Decision {
	if !target.IsValid() {
		return Deny("unknown stage")
	}
	if s.stage.IsTerminal() {
		return Deny("session already completed")
	}

	// Backward navigation to any earlier non-terminal stage is always legal.
	if target.Index() <= s.stage.Index() {
		return Allow()
	}

	// Forward movement is linear.
	if target.Index() > s.stage.Index()+1 {
		return Deny("stages must be completed in order")
	}

	switch target {
	case StageReflect:
		if !s.CanAdvanceFromDo() {
			return Deny("answer all required questions before reflecting")
		}
	case StageComplete:
		if !s.CanComplete() {
			return Deny("answer all required questions to finish")
		}
	}

	return Allow()
}

// Advance moves the session to the target stage if the transition is legal.
// The decision is returned either way; the session only mutates on Allow.
func (s *Session) Advance(target Stage) Decision {
	d := s.CanEnter(target)
	if d.Allowed {
		s.stage = target
	}
	return d
}

// MarkCompleted stamps the completion time. Returns false when the session
// was already completed, so Progress creation stays strictly once-only.
func (s *Session) MarkCompleted(at time.Time) bool {
	if s.completedAt != nil {
		return false
	}
	t := at
	s.completedAt = &t
	return true
}

// CompletedAt returns the completion timestamp, or nil.
func (s *Session) CompletedAt() *time.Time {
	return s.completedAt
}

// IsCompleted reports whether MarkCompleted has been called.
func (s *Session) IsCompleted() bool {
	return s.completedAt != nil
}

// TimeSpent returns the elapsed time between StartedAt and the given moment.
func (s *Session) TimeSpent(now time.Time) time.Duration {
	d := now.Sub(s.StartedAt)
	if d < 0 {
		return 0
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Resume
// ─────────────────────────────────────────────────────────────────────────────

// RestoreResponses rebuilds the buffer from a stored answer blob. The blob
// is a JSON object keyed by cycle tag; for each question the answer under
// the lexicographic-max cycle key wins, defaulting to "". A missing, empty,
// or corrupt blob degrades to an empty buffer and never fails the resume.
func (s *Session) RestoreResponses(blob string) {
	s.responses = make(map[string]string)

	answers := decodeAnswerBlob(blob)
	for _, q := range s.Questions {
		if text, ok := answers[q.ID]; ok {
			s.responses[q.ID] = text
		}
	}
}

// decodeAnswerBlob parses the cycle-keyed blob and returns the answers of
// the lexicographic-max cycle key. Parse failures yield an empty map.
func decodeAnswerBlob(blob string) map[string]string {
	if strings.TrimSpace(blob) == "" {
		return nil
	}

	var byCycle map[string]map[string]string
	if err := json.Unmarshal([]byte(blob), &byCycle); err != nil {
		return nil
	}
	if len(byCycle) == 0 {
		return nil
	}

	keys := make([]string, 0, len(byCycle))
	for k := range byCycle {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	return byCycle[keys[len(keys)-1]]
}

// EncodeAnswerBlob merges the given answers under the cycle's tag into an
// existing blob, preserving the other cycles' tags untouched. A corrupt
// existing blob is replaced rather than propagated.
func EncodeAnswerBlob(existing string, cycle shared.Cycle, answers map[string]string) (string, error) {
	byCycle := make(map[string]map[string]string)
	if strings.TrimSpace(existing) != "" {
		// Best effort: unreadable prior data cannot block a save.
		_ = json.Unmarshal([]byte(existing), &byCycle)
		if byCycle == nil {
			byCycle = make(map[string]map[string]string)
		}
	}

	merged := make(map[string]string, len(answers))
	for k, v := range answers {
		merged[k] = v
	}
	byCycle[cycle.Tag()] = merged

	out, err := json.Marshal(byCycle)
	if err != nil {
		return "", shared.WrapError("session", "EncodeAnswerBlob", shared.ErrInvalidFormat, "marshal answer blob", err)
	}
	return string(out), nil
}
