package recordstore

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// ASSIGNMENT WRITER
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentWriter persists a computed prescription into the record
// store's assignments table, which is what ProfileSource.History reads
// back as the next cycle's fresh/repeat de-duplication input. It
// implements the prescribe command's AssignmentSink.
//
// History rows are keyed by activity name, so the writer resolves names
// through the activities table; an activity missing from the catalog is
// written under its raw id. The store has no delete operation, so
// re-running a cycle's prescription appends rows; history matching is
// set-based and duplicates are harmless.
type AssignmentWriter struct {
	client *Client
	config ProfileSourceConfig
}

// NewAssignmentWriter creates an AssignmentWriter on top of an existing
// client.
func NewAssignmentWriter(client *Client, config ProfileSourceConfig) *AssignmentWriter {
	if config.AssignmentsTable == "" {
		config = DefaultProfileSourceConfig()
	}
	return &AssignmentWriter{
		client: client,
		config: config,
	}
}

// SaveAssignments writes one assignment record per prescribed activity.
func (w *AssignmentWriter) SaveAssignments(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle, activityIDs []shared.ActivityID) error {
	names, err := w.activityNames(ctx)
	if err != nil {
		return err
	}

	for _, id := range activityIDs {
		name, ok := names[id]
		if !ok {
			name = id.String()
		}

		payload := recordRequestDTO[assignmentFieldsDTO]{
			Fields: assignmentFieldsDTO{
				StudentID:    studentID.String(),
				Cycle:        cycle.Int(),
				ActivityName: name,
			},
		}

		_, err := retry.DoInto(ctx, w.client.retrier, func(ctx context.Context) (*recordDTO[assignmentFieldsDTO], error) {
			body, err := w.client.doRequest(ctx, http.MethodPost, w.config.AssignmentsTable, nil, payload)
			if err != nil {
				return nil, err
			}

			var created recordDTO[assignmentFieldsDTO]
			if err := json.Unmarshal(body, &created); err != nil {
				return nil, shared.WrapError("recordstore", "SaveAssignments", shared.ErrInvalidFormat, "parse created record", err)
			}
			return &created, nil
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// activityNames maps catalog ids to the display names history rows are
// keyed by.
func (w *AssignmentWriter) activityNames(ctx context.Context) (map[shared.ActivityID]string, error) {
	records, err := listAll[activityFieldsDTO](ctx, w.client, w.config.ActivitiesTable, nil)
	if err != nil {
		return nil, err
	}

	names := make(map[shared.ActivityID]string, len(records))
	for _, r := range records {
		names[shared.ActivityID(r.Fields.ActivityID)] = r.Fields.Name
	}
	return names, nil
}
