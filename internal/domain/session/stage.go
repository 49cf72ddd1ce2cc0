// Package session implements the activity session aggregate: the five-stage
// workflow a student moves through while working on an activity, the
// in-memory response buffer, and the rules that gate completion.
package session

// ══════════════════════════════════════════════════════════════════════════════
// STAGES
//
// An activity is worked through in five ordered stages:
//
//	Intro → Learn → Do → Reflect → Complete
//
// Forward movement is strictly linear (no skipping). Backward navigation to
// any earlier non-terminal stage is always legal, so a student can revisit
// material freely until the attempt is completed.
// ══════════════════════════════════════════════════════════════════════════════

// Stage is one of the five ordered phases of an activity.
type Stage string

const (
	StageIntro    Stage = "intro"
	StageLearn    Stage = "learn"
	StageDo       Stage = "do"
	StageReflect  Stage = "reflect"
	StageComplete Stage = "complete"
)

// stageOrder maps each stage to its position in the linear flow.
var stageOrder = map[Stage]int{
	StageIntro:    0,
	StageLearn:    1,
	StageDo:       2,
	StageReflect:  3,
	StageComplete: 4,
}

// Stages lists all stages in order.
func Stages() []Stage {
	return []Stage{StageIntro, StageLearn, StageDo, StageReflect, StageComplete}
}

// IsValid checks if the stage is one of the five known values.
func (s Stage) IsValid() bool {
	_, ok := stageOrder[s]
	return ok
}

// String returns the string representation.
func (s Stage) String() string {
	return string(s)
}

// Index returns the position of the stage in the linear flow, or -1 for
// an unknown stage.
func (s Stage) Index() int {
	if i, ok := stageOrder[s]; ok {
		return i
	}
	return -1
}

// IsTerminal reports whether the stage ends the attempt.
func (s Stage) IsTerminal() bool {
	return s == StageComplete
}

// Before reports whether s comes before other in the linear flow.
func (s Stage) Before(other Stage) bool {
	return s.Index() < other.Index()
}

// Next returns the stage that follows s, or s itself when terminal.
func (s Stage) Next() Stage {
	switch s {
	case StageIntro:
		return StageLearn
	case StageLearn:
		return StageDo
	case StageDo:
		return StageReflect
	case StageReflect:
		return StageComplete
	default:
		return s
	}
}

// Decision is the outcome of a transition check. Validation failures are
// normal results consumed by the caller to keep a control disabled; they
// are never surfaced as errors.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow returns a positive decision.
func Allow() Decision {
	return Decision{Allowed: true}
}

// Deny returns a negative decision with a caller-visible reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// Status is the persistence status derived from the stage. Any stage
// before Complete saves as in_progress; completed is used only on the
// transition into Complete.
type Status string

const (
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
)

// StatusFor derives the save status for a stage.
func StatusFor(stage Stage) Status {
	if stage == StageComplete {
		return StatusCompleted
	}
	return StatusInProgress
}
