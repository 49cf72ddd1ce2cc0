package record

import (
	"context"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// Store is the port to the remote record store. Implementations are pure
// I/O adapters with no business logic.
//
// Known race, accepted by design: two concurrent find-or-create sequences
// for the same (student, activity) pair can each observe "not found" and
// both create, leaving a duplicate. The store's filtered query returning
// at most one record deterministically (first match wins) keeps reads
// stable; the duplicate itself is not defended against here.
type Store interface {
	// FindResponse returns the Response for the exact (studentID,
	// activityID) pair, limited to one result, or nil when none exists.
	FindResponse(ctx context.Context, studentID shared.StudentID, activityID shared.ActivityID) (*Response, error)

	// CreateResponse creates a new Response with both back-references
	// set and returns it with the store-assigned ID.
	CreateResponse(ctx context.Context, resp Response) (*Response, error)

	// UpdateResponse updates an existing Response by store ID.
	UpdateResponse(ctx context.Context, id string, resp Response) (*Response, error)

	// CreateProgress appends one progress entry. Progress records are
	// never updated after creation.
	CreateProgress(ctx context.Context, entry progress.Entry) (*progress.Entry, error)

	// ListProgressSince returns progress entries completed at or after
	// the given time, for the local mirror sync.
	ListProgressSince(ctx context.Context, since time.Time) ([]progress.Entry, error)
}
