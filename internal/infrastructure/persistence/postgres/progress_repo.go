package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// ProgressMirrorRepository implements progress.MirrorRepository for PostgreSQL.
type ProgressMirrorRepository struct {
	conn *Connection
}

var _ progress.MirrorRepository = (*ProgressMirrorRepository)(nil)

// NewProgressMirrorRepository creates a new ProgressMirrorRepository.
func NewProgressMirrorRepository(conn *Connection) *ProgressMirrorRepository {
	return &ProgressMirrorRepository{conn: conn}
}

// Upsert inserts the entry or refreshes an existing mirror row.
// Keyed by (student_id, activity_id, cycle), so a re-sync of the same
// remote record is a no-op apart from the synced_at bump.
func (r *ProgressMirrorRepository) Upsert(ctx context.Context, entry progress.Entry) error {
	if err := entry.Validate(); err != nil {
		return err
	}

	query := `
		INSERT INTO progress_mirror
			(record_id, student_id, activity_id, cycle, time_spent_minutes,
			 word_count, points_earned, completed_at, synced_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())
		ON CONFLICT (student_id, activity_id, cycle) DO UPDATE SET
			record_id = EXCLUDED.record_id,
			time_spent_minutes = EXCLUDED.time_spent_minutes,
			word_count = EXCLUDED.word_count,
			points_earned = EXCLUDED.points_earned,
			completed_at = EXCLUDED.completed_at,
			synced_at = NOW()
	`

	_, err := r.conn.Exec(ctx, query,
		entry.ID,
		entry.StudentID.String(),
		entry.ActivityID.String(),
		entry.Cycle.Int(),
		entry.TimeSpentMinutes,
		entry.WordCount,
		entry.PointsEarned,
		entry.CompletedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert progress mirror row: %w", err)
	}

	return nil
}

// ListByStudent returns the mirrored entries for one student, newest first.
func (r *ProgressMirrorRepository) ListByStudent(ctx context.Context, studentID string) ([]progress.Entry, error) {
	query := `
		SELECT record_id, student_id, activity_id, cycle, time_spent_minutes,
			   word_count, points_earned, completed_at
		FROM progress_mirror
		WHERE student_id = $1
		ORDER BY completed_at DESC
	`

	rows, err := r.conn.Query(ctx, query, studentID)
	if err != nil {
		return nil, fmt.Errorf("failed to query progress mirror by student: %w", err)
	}
	defer rows.Close()

	return scanProgressEntries(rows)
}

// ListCompletedSince returns entries completed at or after the given time.
func (r *ProgressMirrorRepository) ListCompletedSince(ctx context.Context, since time.Time) ([]progress.Entry, error) {
	query := `
		SELECT record_id, student_id, activity_id, cycle, time_spent_minutes,
			   word_count, points_earned, completed_at
		FROM progress_mirror
		WHERE completed_at >= $1
		ORDER BY completed_at ASC
	`

	rows, err := r.conn.Query(ctx, query, since.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to query progress mirror since %s: %w", since.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return scanProgressEntries(rows)
}

// LastSyncedAt returns the completion time of the newest mirrored entry,
// or the zero time for an empty mirror.
func (r *ProgressMirrorRepository) LastSyncedAt(ctx context.Context) (time.Time, error) {
	query := `SELECT COALESCE(MAX(completed_at), 'epoch'::timestamptz) FROM progress_mirror`

	var latest time.Time
	if err := r.conn.QueryRow(ctx, query).Scan(&latest); err != nil {
		return time.Time{}, fmt.Errorf("failed to query last synced time: %w", err)
	}

	// The epoch sentinel means the mirror is empty.
	if latest.Unix() <= 0 {
		return time.Time{}, nil
	}

	return latest.UTC(), nil
}

func scanProgressEntries(rows pgx.Rows) ([]progress.Entry, error) {
	var entries []progress.Entry
	for rows.Next() {
		var e progress.Entry
		var studentID, activityID string
		var cycle int
		var completedAt time.Time

		err := rows.Scan(
			&e.ID,
			&studentID,
			&activityID,
			&cycle,
			&e.TimeSpentMinutes,
			&e.WordCount,
			&e.PointsEarned,
			&completedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan progress mirror row: %w", err)
		}

		e.StudentID = shared.StudentID(studentID)
		e.ActivityID = shared.ActivityID(activityID)
		e.Cycle = shared.Cycle(cycle)
		e.CompletedAt = completedAt.UTC()

		entries = append(entries, e)
	}

	return entries, rows.Err()
}
