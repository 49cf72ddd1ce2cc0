// Package engine exposes the activity engine facade: the operations the
// rendering layer drives a session through, from open to completion,
// plus the prescription computation.
package engine

import (
	"context"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// StudentProfile is the denormalized profile context the engine copies
// onto new response records and feeds into the prescription flow.
type StudentProfile struct {
	StudentID shared.StudentID
	Cohort    shared.Cohort
	GroupName string
}

// ProfileSource supplies everything the engine needs about a student and
// the activity catalog. Implemented by excluded collaborators; injected
// at construction so there is no ambient lookup.
type ProfileSource interface {
	// Profile returns the student's denormalized reporting context.
	Profile(ctx context.Context, studentID shared.StudentID) (StudentProfile, error)

	// Questions returns the ordered question list for an activity.
	Questions(ctx context.Context, activityID shared.ActivityID) ([]session.Question, error)

	// Catalog returns the full activity catalog.
	Catalog(ctx context.Context) ([]prescription.Activity, error)

	// Scores returns the student's current five-category scores for the
	// given cycle.
	Scores(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle) (prescription.Scores, error)

	// History returns the prior-cycle assignment history.
	History(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle) (prescription.History, error)
}
