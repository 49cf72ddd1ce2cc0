// Package progress defines the append-only progress log: one entry per
// completed activity attempt, never updated after creation.
package progress

import (
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// Entry is one completed attempt. Duplicates are prevented upstream by
// gating creation strictly to the session's single transition into
// Complete; the entry itself carries no defence.
type Entry struct {
	// ID is assigned by the record store on creation; empty until then.
	ID string

	StudentID  shared.StudentID
	ActivityID shared.ActivityID
	Cycle      shared.Cycle

	// TimeSpentMinutes is derived from the session's StartedAt.
	TimeSpentMinutes int

	// WordCount is the whitespace-delimited token count across all answers.
	WordCount int

	// PointsEarned is the activity's point value.
	PointsEarned int

	CompletedAt time.Time
}

// Validate checks the entry is well-formed for persistence.
func (e Entry) Validate() error {
	if !e.StudentID.IsValid() {
		return shared.ErrInvalidStudentID
	}
	if !e.ActivityID.IsValid() {
		return shared.ErrInvalidActivityID
	}
	if !e.Cycle.IsValid() {
		return shared.ErrInvalidCycle
	}
	if e.TimeSpentMinutes < 0 || e.WordCount < 0 || e.PointsEarned < 0 {
		return shared.NewDomainError("progress", "Validate", shared.ErrValueOutOfRange, "counters cannot be negative")
	}
	if e.CompletedAt.IsZero() {
		return shared.NewDomainError("progress", "Validate", shared.ErrEmptyValue, "completed_at is required")
	}
	return nil
}
