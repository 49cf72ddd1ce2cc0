package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// Assignment is one prescribed activity for a student's upcoming cycle.
type Assignment struct {
	StudentID  string
	Cycle      int
	ActivityID string
	Position   int
	AssignedAt time.Time
}

// AssignmentRepository persists prescription results. It implements
// command.AssignmentSink.
type AssignmentRepository struct {
	conn *Connection
}

// NewAssignmentRepository creates a new AssignmentRepository.
func NewAssignmentRepository(conn *Connection) *AssignmentRepository {
	return &AssignmentRepository{conn: conn}
}

// SaveAssignments replaces the student's assignment set for the cycle.
// Re-running the prescription command for the same cycle is therefore
// safe: stale rows from the previous run are removed first.
func (r *AssignmentRepository) SaveAssignments(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle, activityIDs []shared.ActivityID) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		deleteQuery := `DELETE FROM assignments WHERE student_id = $1 AND cycle = $2`
		if _, err := tx.Exec(ctx, deleteQuery, studentID.String(), cycle.Int()); err != nil {
			return fmt.Errorf("failed to clear previous assignments: %w", err)
		}

		insertQuery := `
			INSERT INTO assignments (student_id, cycle, activity_id, position)
			VALUES ($1, $2, $3, $4)
		`
		for i, activityID := range activityIDs {
			if _, err := tx.Exec(ctx, insertQuery, studentID.String(), cycle.Int(), activityID.String(), i); err != nil {
				return fmt.Errorf("failed to insert assignment %s: %w", activityID, err)
			}
		}

		return nil
	})
}

// ListAssignments returns the prescribed activities for a student's cycle,
// in prescription order.
func (r *AssignmentRepository) ListAssignments(ctx context.Context, studentID string, cycle int) ([]Assignment, error) {
	query := `
		SELECT student_id, cycle, activity_id, position, assigned_at
		FROM assignments
		WHERE student_id = $1 AND cycle = $2
		ORDER BY position ASC
	`

	rows, err := r.conn.Query(ctx, query, studentID, cycle)
	if err != nil {
		return nil, fmt.Errorf("failed to query assignments: %w", err)
	}
	defer rows.Close()

	var assignments []Assignment
	for rows.Next() {
		var a Assignment
		if err := rows.Scan(&a.StudentID, &a.Cycle, &a.ActivityID, &a.Position, &a.AssignedAt); err != nil {
			return nil, fmt.Errorf("failed to scan assignment row: %w", err)
		}
		assignments = append(assignments, a)
	}

	return assignments, rows.Err()
}
