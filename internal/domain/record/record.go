// Package record defines the durable record types held by the remote record
// store and the store port the persistence pipeline writes through.
package record

import (
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// Response is the persisted counterpart of a session: one record per
// (student, activity), with answers for every cycle coexisting inside
// AnswerBlob keyed by cycle tag. The pipeline enforces the one-record
// invariant through find-before-create.
type Response struct {
	// ID is assigned by the record store on first creation; empty until
	// the first successful write.
	ID string

	StudentID  shared.StudentID
	ActivityID shared.ActivityID

	// AnswerBlob is a JSON object keyed by cycle tag, e.g.
	// {"cycle-1": {"q1": "..."}, "cycle-2": {...}}. This shape is the one
	// structural contract the storage layer must honor: saving one cycle
	// never disturbs another.
	AnswerBlob string

	// Status is "in_progress" or "completed".
	Status string

	// Cohort and GroupName are denormalized reporting tags copied from
	// the student's profile context on creation.
	Cohort    shared.Cohort
	GroupName string

	// CompletedAt is set only when the student reaches the Complete stage.
	CompletedAt *time.Time
}

// HasBackReferences reports whether both identifying references are set.
// Older records occasionally lost one; the pipeline repairs them on update.
func (r Response) HasBackReferences() bool {
	return !r.StudentID.IsEmpty() && !r.ActivityID.IsEmpty()
}
