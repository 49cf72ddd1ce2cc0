// Package prescription implements the activity prescription engine: given a
// student's scored profile and the activity catalog, it selects which
// activities the student should attempt next cycle.
package prescription

import (
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// Threshold is the inclusive score range an activity targets. An activity
// is eligible for a category when the category's current score falls
// within the range.
type Threshold struct {
	Lower shared.Score
	Upper shared.Score
}

// Contains reports whether the score falls within the inclusive bounds.
func (t Threshold) Contains(score shared.Score) bool {
	return score >= t.Lower && score <= t.Upper
}

// IsValid checks the bounds are ordered and in range.
func (t Threshold) IsValid() bool {
	return t.Lower.IsValid() && t.Upper.IsValid() && t.Lower <= t.Upper
}

// Activity is one prescribable catalog entry.
type Activity struct {
	// ID uniquely identifies the activity.
	ID shared.ActivityID

	// Name is the display name; prior-cycle history is keyed by name.
	Name string

	// Category is the profile category the activity trains.
	Category shared.Category

	// Threshold is the score range the activity targets.
	Threshold Threshold

	// Points awarded on completion.
	Points int
}

// Scores is the five-category scored profile, each 0..10.
type Scores map[shared.Category]shared.Score

// Validate checks that every category has an in-range score.
func (s Scores) Validate() error {
	for _, cat := range shared.Categories() {
		score, ok := s[cat]
		if !ok {
			return shared.ErrUnknownCategory
		}
		if !score.IsValid() {
			return shared.ErrInvalidScore
		}
	}
	return nil
}

// History carries the de-duplication inputs for selection.
type History struct {
	// PriorCyclePrescribedNames lists activity names assigned last cycle.
	// Activities in this list are deprioritized ("repeat") behind fresh ones.
	PriorCyclePrescribedNames []string
}

// wasPrescribed reports whether the activity was assigned last cycle.
func (h History) wasPrescribed(name string) bool {
	for _, n := range h.PriorCyclePrescribedNames {
		if n == name {
			return true
		}
	}
	return false
}
