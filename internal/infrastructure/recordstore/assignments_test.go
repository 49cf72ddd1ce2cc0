package recordstore

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// assignmentsBackend is a tiny record store serving the activities
// catalog and an appendable, filterable assignments table.
type assignmentsBackend struct {
	mu      sync.Mutex
	catalog []activityFieldsDTO
	rows    []assignmentFieldsDTO
}

func (b *assignmentsBackend) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/activities", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		list := listResponseDTO[activityFieldsDTO]{}
		for i, f := range b.catalog {
			list.Records = append(list.Records, recordDTO[activityFieldsDTO]{ID: fmt.Sprintf("recAct%d", i+1), Fields: f})
		}
		_ = json.NewEncoder(w).Encode(list)
	})

	mux.HandleFunc("/assignments", func(w http.ResponseWriter, r *http.Request) {
		b.mu.Lock()
		defer b.mu.Unlock()

		if r.Method == http.MethodPost {
			var req recordRequestDTO[assignmentFieldsDTO]
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				w.WriteHeader(http.StatusUnprocessableEntity)
				return
			}
			b.rows = append(b.rows, req.Fields)
			_ = json.NewEncoder(w).Encode(recordDTO[assignmentFieldsDTO]{ID: fmt.Sprintf("recAsg%d", len(b.rows)), Fields: req.Fields})
			return
		}

		student := r.URL.Query().Get("student_id")
		cycle, _ := strconv.Atoi(r.URL.Query().Get("cycle"))
		list := listResponseDTO[assignmentFieldsDTO]{}
		for i, f := range b.rows {
			if f.StudentID == student && f.Cycle == cycle {
				list.Records = append(list.Records, recordDTO[assignmentFieldsDTO]{ID: fmt.Sprintf("recAsg%d", i+1), Fields: f})
			}
		}
		_ = json.NewEncoder(w).Encode(list)
	})

	return mux
}

func TestAssignmentWriter_WritesNamesHistoryReadsBack(t *testing.T) {
	backend := &assignmentsBackend{
		catalog: []activityFieldsDTO{
			{ActivityID: "vision-board-01", Name: "Vision Board", Category: "vision"},
			{ActivityID: "effort-journal-02", Name: "Effort Journal", Category: "effort"},
		},
	}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	client := testClient(server.URL)
	writer := NewAssignmentWriter(client, DefaultProfileSourceConfig())
	source := NewProfileSource(client, DefaultProfileSourceConfig())

	err := writer.SaveAssignments(context.Background(), "stu-1", 2,
		[]shared.ActivityID{"vision-board-01", "effort-journal-02"})
	require.NoError(t, err)

	// The cycle 3 prescription de-duplicates against cycle 2's names.
	history, err := source.History(context.Background(), "stu-1", 3)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"Vision Board", "Effort Journal"}, history.PriorCyclePrescribedNames)

	// Another student's history stays empty.
	other, err := source.History(context.Background(), "stu-2", 3)
	require.NoError(t, err)
	assert.Empty(t, other.PriorCyclePrescribedNames)
}

func TestAssignmentWriter_UnknownActivityFallsBackToID(t *testing.T) {
	backend := &assignmentsBackend{}
	server := httptest.NewServer(backend.handler())
	defer server.Close()

	writer := NewAssignmentWriter(testClient(server.URL), DefaultProfileSourceConfig())

	err := writer.SaveAssignments(context.Background(), "stu-1", 1, []shared.ActivityID{"orphan-01"})
	require.NoError(t, err)

	backend.mu.Lock()
	defer backend.mu.Unlock()
	require.Len(t, backend.rows, 1)
	assert.Equal(t, "orphan-01", backend.rows[0].ActivityName)
	assert.Equal(t, 1, backend.rows[0].Cycle)
}
