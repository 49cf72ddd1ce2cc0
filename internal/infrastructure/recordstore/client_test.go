package recordstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/retry"
)

// newTestRetrier keeps retry delays tiny so failure-path tests run fast.
func newTestRetrier() *retry.Retrier {
	return retry.New(
		retry.WithMaxAttempts(3),
		retry.WithInitialDelay(time.Millisecond),
		retry.WithMaxDelay(5*time.Millisecond),
		retry.WithJitter(0),
		retry.WithRetryIf(shared.IsRetryable),
	)
}

func TestResponseRecordDTO_Parsing(t *testing.T) {
	jsonData := `{
    "records": [
        {
            "id": "rec8aQ4kZp07M2xVn",
            "createdTime": "2025-09-01T10:15:00Z",
            "fields": {
                "student_id": "stu-2041",
                "activity_id": "vision-board-01",
                "answers": "{\"cycle-2\":{\"q1\":\"my goals\"}}",
                "status": "in_progress",
                "cohort": "fall-2025",
                "group_name": "group-a"
            }
        }
    ]
}`

	var list listResponseDTO[responseFieldsDTO]
	err := json.Unmarshal([]byte(jsonData), &list)
	assert.NoError(t, err)

	require.Len(t, list.Records, 1)
	rec := list.Records[0]
	assert.Equal(t, "rec8aQ4kZp07M2xVn", rec.ID)
	assert.Equal(t, "stu-2041", rec.Fields.StudentID)
	assert.Equal(t, "vision-board-01", rec.Fields.ActivityID)
	assert.Equal(t, "in_progress", rec.Fields.Status)
	assert.Equal(t, "fall-2025", rec.Fields.Cohort)
	assert.Nil(t, rec.Fields.CompletedAt)
	assert.Empty(t, list.Offset)
}

func TestProgressRecordDTO_Parsing(t *testing.T) {
	jsonData := `{
    "records": [
        {
            "id": "recProg001",
            "fields": {
                "student_id": "stu-2041",
                "activity_id": "effort-journal-02",
                "cycle": 3,
                "time_spent_minutes": 17,
                "word_count": 412,
                "points_earned": 40,
                "completed_at": "2025-09-02T08:00:00Z"
            }
        }
    ],
    "offset": "itrNextPage"
}`

	var list listResponseDTO[progressFieldsDTO]
	err := json.Unmarshal([]byte(jsonData), &list)
	assert.NoError(t, err)

	require.Len(t, list.Records, 1)
	fields := list.Records[0].Fields
	assert.Equal(t, 3, fields.Cycle)
	assert.Equal(t, 17, fields.TimeSpentMinutes)
	assert.Equal(t, 412, fields.WordCount)
	assert.Equal(t, 40, fields.PointsEarned)
	assert.Equal(t, "itrNextPage", list.Offset)
}

func TestMapper_ResponseRoundTrip(t *testing.T) {
	mapper := NewMapper()

	completed := time.Date(2025, 9, 2, 8, 0, 0, 0, time.UTC)
	dto := &recordDTO[responseFieldsDTO]{
		ID: "rec123",
		Fields: responseFieldsDTO{
			StudentID:   "stu-1",
			ActivityID:  "practice-drill-04",
			Answers:     `{"cycle-1":{"q1":"answer"}}`,
			Status:      "completed",
			Cohort:      "fall-2025",
			GroupName:   "group-b",
			CompletedAt: &completed,
		},
	}

	resp, err := mapper.ResponseFromDTO(dto)
	require.NoError(t, err)
	assert.Equal(t, "rec123", resp.ID)
	assert.Equal(t, shared.StudentID("stu-1"), resp.StudentID)
	assert.Equal(t, shared.ActivityID("practice-drill-04"), resp.ActivityID)
	assert.True(t, resp.HasBackReferences())

	fields := mapper.ResponseToFields(*resp)
	assert.Equal(t, dto.Fields, fields)
}

func TestMapper_NilDTO(t *testing.T) {
	mapper := NewMapper()

	_, err := mapper.ResponseFromDTO(nil)
	assert.ErrorIs(t, err, ErrNilDTO)

	_, err = mapper.ProgressFromDTO(nil)
	assert.ErrorIs(t, err, ErrNilDTO)
}

// testClient builds a client against a test server with fast retries and
// a permissive rate limiter so tests do not sleep.
func testClient(serverURL string) *Client {
	config := DefaultClientConfig(serverURL, "test-key")
	config.Timeout = 2 * time.Second
	config.RateLimiterConfig = RateLimiterConfig{
		RequestsPerSecond: 1000,
		BurstSize:         1000,
		MinInterval:       time.Microsecond,
		WaitTimeout:       time.Second,
	}
	return NewClient(config)
}

func TestClient_FindResponse_Found(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/responses", r.URL.Path)
		assert.Equal(t, "stu-1", r.URL.Query().Get("student_id"))
		assert.Equal(t, "vision-board-01", r.URL.Query().Get("activity_id"))
		assert.Equal(t, "1", r.URL.Query().Get("maxRecords"))
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"records":[{"id":"rec1","fields":{"student_id":"stu-1","activity_id":"vision-board-01","status":"in_progress"}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)

	resp, err := client.FindResponse(context.Background(), "stu-1", "vision-board-01")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, "rec1", resp.ID)
	assert.Equal(t, "in_progress", resp.Status)
}

func TestClient_FindResponse_NotFound(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)

	resp, err := client.FindResponse(context.Background(), "stu-1", "vision-board-01")
	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestClient_CreateResponse(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/responses", r.URL.Path)

		var req recordRequestDTO[responseFieldsDTO]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "stu-1", req.Fields.StudentID)
		assert.Equal(t, "fall-2025", req.Fields.Cohort)

		created := recordDTO[responseFieldsDTO]{ID: "recNew", Fields: req.Fields}
		_ = json.NewEncoder(w).Encode(created)
	}))
	defer server.Close()

	client := testClient(server.URL)

	resp, err := client.CreateResponse(context.Background(), record.Response{
		StudentID:  "stu-1",
		ActivityID: "vision-board-01",
		AnswerBlob: `{"cycle-1":{"q1":"a"}}`,
		Status:     "in_progress",
		Cohort:     "fall-2025",
	})
	require.NoError(t, err)
	assert.Equal(t, "recNew", resp.ID)
	assert.Equal(t, shared.ActivityID("vision-board-01"), resp.ActivityID)
}

func TestClient_UpdateResponse_PatchesByID(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPatch, r.Method)
		assert.Equal(t, "/responses/rec1", r.URL.Path)

		var req recordRequestDTO[responseFieldsDTO]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))

		updated := recordDTO[responseFieldsDTO]{ID: "rec1", Fields: req.Fields}
		_ = json.NewEncoder(w).Encode(updated)
	}))
	defer server.Close()

	client := testClient(server.URL)

	resp, err := client.UpdateResponse(context.Background(), "rec1", record.Response{
		StudentID:  "stu-1",
		ActivityID: "vision-board-01",
		Status:     "completed",
	})
	require.NoError(t, err)
	assert.Equal(t, "completed", resp.Status)
}

func TestClient_UpdateResponse_EmptyID(t *testing.T) {
	client := testClient("http://unused.invalid")

	_, err := client.UpdateResponse(context.Background(), "", record.Response{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestClient_ServerErrorIsRetried(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			_, _ = w.Write([]byte(`{"code":"INTERNAL","message":"boom"}`))
			return
		}
		_, _ = w.Write([]byte(`{"records":[]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	// Shrink retry delays so the test stays fast.
	client.retrier = newTestRetrier()

	resp, err := client.FindResponse(context.Background(), "stu-1", "vision-board-01")
	assert.NoError(t, err)
	assert.Nil(t, resp)
	assert.Equal(t, int32(3), calls.Load())
}

func TestClient_BadRequestIsFatal(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte(`{"code":"INVALID_VALUE","message":"unknown field"}`))
	}))
	defer server.Close()

	client := testClient(server.URL)
	client.retrier = newTestRetrier()

	_, err := client.CreateResponse(context.Background(), record.Response{
		StudentID:  "stu-1",
		ActivityID: "vision-board-01",
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
	assert.False(t, shared.IsRetryable(err))
	assert.Equal(t, int32(1), calls.Load(), "malformed requests must not be retried")
}

func TestClient_CreateProgress(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/progress", r.URL.Path)

		var req recordRequestDTO[progressFieldsDTO]
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, 2, req.Fields.Cycle)

		created := recordDTO[progressFieldsDTO]{ID: "recProg", Fields: req.Fields}
		_ = json.NewEncoder(w).Encode(created)
	}))
	defer server.Close()

	client := testClient(server.URL)

	entry, err := client.CreateProgress(context.Background(), progress.Entry{
		StudentID:        "stu-1",
		ActivityID:       "vision-board-01",
		Cycle:            2,
		TimeSpentMinutes: 12,
		WordCount:        240,
		PointsEarned:     30,
		CompletedAt:      time.Date(2025, 9, 2, 8, 0, 0, 0, time.UTC),
	})
	require.NoError(t, err)
	assert.Equal(t, "recProg", entry.ID)
	assert.Equal(t, shared.Cycle(2), entry.Cycle)
}

func TestClient_ListProgressSince_FollowsPagination(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.NotEmpty(t, r.URL.Query().Get("completed_after"))

		if calls.Add(1) == 1 {
			assert.Empty(t, r.URL.Query().Get("offset"))
			_, _ = w.Write([]byte(`{"records":[{"id":"p1","fields":{"student_id":"s","activity_id":"a","cycle":1,"completed_at":"2025-09-01T00:00:00Z"}}],"offset":"page2"}`))
			return
		}
		assert.Equal(t, "page2", r.URL.Query().Get("offset"))
		_, _ = w.Write([]byte(`{"records":[{"id":"p2","fields":{"student_id":"s","activity_id":"b","cycle":1,"completed_at":"2025-09-02T00:00:00Z"}}]}`))
	}))
	defer server.Close()

	client := testClient(server.URL)

	entries, err := client.ListProgressSince(context.Background(), time.Date(2025, 8, 1, 0, 0, 0, 0, time.UTC))
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "p1", entries[0].ID)
	assert.Equal(t, "p2", entries[1].ID)
	assert.Equal(t, int32(2), calls.Load())
}

func TestParseRetryAfter(t *testing.T) {
	assert.Equal(t, 30*time.Second, parseRetryAfter(""))
	assert.Equal(t, 5*time.Second, parseRetryAfter("5"))
	assert.Equal(t, 30*time.Second, parseRetryAfter("garbage"))
}
