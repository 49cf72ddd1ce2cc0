package progress

import (
	"context"
	"time"
)

// MirrorRepository is the local analytics copy of progress entries. The
// remote record store stays the system of record; the mirror exists so
// reporting queries never hit the remote API.
type MirrorRepository interface {
	// Upsert inserts the entry or refreshes an existing mirror row.
	// Keyed by (student_id, activity_id, cycle); re-syncing is safe.
	Upsert(ctx context.Context, entry Entry) error

	// ListByStudent returns the mirrored entries for one student,
	// newest first.
	ListByStudent(ctx context.Context, studentID string) ([]Entry, error)

	// ListCompletedSince returns entries completed at or after the
	// given time, for digest-style reporting.
	ListCompletedSince(ctx context.Context, since time.Time) ([]Entry, error)

	// LastSyncedAt returns the completion time of the newest mirrored
	// entry, or the zero time for an empty mirror.
	LastSyncedAt(ctx context.Context) (time.Time, error)
}
