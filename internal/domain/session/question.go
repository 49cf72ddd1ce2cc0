package session

import "strings"

// InputKind describes the control a question is answered with.
type InputKind string

const (
	// InputFreeText is a single-line text input.
	InputFreeText InputKind = "free-text"

	// InputLongText is a multi-line journal input.
	InputLongText InputKind = "long-text"

	// InputSingleChoice is a pick-one selection from Choices.
	InputSingleChoice InputKind = "single-choice"
)

// Question is an external, read-only catalog entry describing one prompt
// the student answers during an activity. Reflection questions are routed
// to the Reflect stage; everything else belongs to Do.
type Question struct {
	// ID uniquely identifies the question within the activity.
	ID string

	// Prompt is the text shown to the student.
	Prompt string

	// Kind determines the input control.
	Kind InputKind

	// Choices is the ordered option list, only for single-choice questions.
	Choices []string

	// IsRequired marks the question as required for completion.
	IsRequired bool

	// IsReflection routes the question to the Reflect stage.
	IsReflection bool
}

// StageFor returns the stage the question is answered in.
func (q Question) StageFor() Stage {
	if q.IsReflection {
		return StageReflect
	}
	return StageDo
}

// IsAnswered reports whether the given answer satisfies the question.
// Whitespace-only answers do not count.
func (q Question) IsAnswered(answer string) bool {
	return strings.TrimSpace(answer) != ""
}
