package recordstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"sort"
	"strconv"

	"github.com/growthpath-hub/growth-activity-hub/internal/application/engine"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/retry"
)

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE TABLE DTOs
// ══════════════════════════════════════════════════════════════════════════════

// studentFieldsDTO is the wire shape of a student profile record.
type studentFieldsDTO struct {
	StudentID string `json:"student_id"`
	Cohort    string `json:"cohort,omitempty"`
	GroupName string `json:"group_name,omitempty"`
}

// questionFieldsDTO is the wire shape of an authored question record.
type questionFieldsDTO struct {
	QuestionID   string   `json:"question_id"`
	ActivityID   string   `json:"activity_id"`
	Prompt       string   `json:"prompt"`
	Kind         string   `json:"kind"`
	Choices      []string `json:"choices,omitempty"`
	IsRequired   bool     `json:"is_required"`
	IsReflection bool     `json:"is_reflection"`
	Position     int      `json:"position"`
}

// activityFieldsDTO is the wire shape of a catalog activity record.
type activityFieldsDTO struct {
	ActivityID     string `json:"activity_id"`
	Name           string `json:"name"`
	Category       string `json:"category"`
	ThresholdLower int    `json:"threshold_lower"`
	ThresholdUpper int    `json:"threshold_upper"`
	Points         int    `json:"points"`
}

// scoreFieldsDTO is the wire shape of a per-category score record.
type scoreFieldsDTO struct {
	StudentID string `json:"student_id"`
	Cycle     int    `json:"cycle"`
	Category  string `json:"category"`
	Score     int    `json:"score"`
}

// assignmentFieldsDTO is the wire shape of a prior assignment record.
// History matching is by activity name.
type assignmentFieldsDTO struct {
	StudentID    string `json:"student_id"`
	Cycle        int    `json:"cycle"`
	ActivityName string `json:"activity_name"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROFILE SOURCE
// ══════════════════════════════════════════════════════════════════════════════

// ProfileSourceConfig names the tables the profile source reads.
type ProfileSourceConfig struct {
	StudentsTable    string
	QuestionsTable   string
	ActivitiesTable  string
	ScoresTable      string
	AssignmentsTable string
}

// DefaultProfileSourceConfig returns the default table names.
func DefaultProfileSourceConfig() ProfileSourceConfig {
	return ProfileSourceConfig{
		StudentsTable:    "students",
		QuestionsTable:   "questions",
		ActivitiesTable:  "activities",
		ScoresTable:      "scores",
		AssignmentsTable: "assignments",
	}
}

// ProfileSource serves profiles, questions, the catalog, scores, and
// assignment history from the record store. It implements
// engine.ProfileSource and shares the client's transport, so the same
// rate limit and circuit breaker protect these reads.
type ProfileSource struct {
	client *Client
	config ProfileSourceConfig
}

var _ engine.ProfileSource = (*ProfileSource)(nil)

// NewProfileSource creates a ProfileSource on top of an existing client.
func NewProfileSource(client *Client, config ProfileSourceConfig) *ProfileSource {
	if config.StudentsTable == "" {
		config = DefaultProfileSourceConfig()
	}
	return &ProfileSource{
		client: client,
		config: config,
	}
}

// Profile returns the student's denormalized reporting context.
func (s *ProfileSource) Profile(ctx context.Context, studentID shared.StudentID) (engine.StudentProfile, error) {
	query := url.Values{}
	query.Set("student_id", studentID.String())
	query.Set("maxRecords", "1")

	records, err := listAll[studentFieldsDTO](ctx, s.client, s.config.StudentsTable, query)
	if err != nil {
		return engine.StudentProfile{}, err
	}
	if len(records) == 0 {
		return engine.StudentProfile{}, shared.NewDomainError("recordstore", "Profile", shared.ErrNotFound, "student not found")
	}

	fields := records[0].Fields
	return engine.StudentProfile{
		StudentID: shared.StudentID(fields.StudentID),
		Cohort:    shared.Cohort(fields.Cohort),
		GroupName: fields.GroupName,
	}, nil
}

// Questions returns the ordered question list for an activity.
func (s *ProfileSource) Questions(ctx context.Context, activityID shared.ActivityID) ([]session.Question, error) {
	query := url.Values{}
	query.Set("activity_id", activityID.String())

	records, err := listAll[questionFieldsDTO](ctx, s.client, s.config.QuestionsTable, query)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].Fields.Position < records[j].Fields.Position
	})

	questions := make([]session.Question, 0, len(records))
	for _, r := range records {
		questions = append(questions, session.Question{
			ID:           r.Fields.QuestionID,
			Prompt:       r.Fields.Prompt,
			Kind:         session.InputKind(r.Fields.Kind),
			Choices:      r.Fields.Choices,
			IsRequired:   r.Fields.IsRequired,
			IsReflection: r.Fields.IsReflection,
		})
	}
	return questions, nil
}

// Catalog returns the full activity catalog.
func (s *ProfileSource) Catalog(ctx context.Context) ([]prescription.Activity, error) {
	records, err := listAll[activityFieldsDTO](ctx, s.client, s.config.ActivitiesTable, nil)
	if err != nil {
		return nil, err
	}

	catalog := make([]prescription.Activity, 0, len(records))
	for _, r := range records {
		catalog = append(catalog, prescription.Activity{
			ID:       shared.ActivityID(r.Fields.ActivityID),
			Name:     r.Fields.Name,
			Category: shared.Category(r.Fields.Category),
			Threshold: prescription.Threshold{
				Lower: shared.Score(r.Fields.ThresholdLower),
				Upper: shared.Score(r.Fields.ThresholdUpper),
			},
			Points: r.Fields.Points,
		})
	}
	return catalog, nil
}

// Scores returns the student's five-category scores for the cycle.
func (s *ProfileSource) Scores(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle) (prescription.Scores, error) {
	query := url.Values{}
	query.Set("student_id", studentID.String())
	query.Set("cycle", strconv.Itoa(cycle.Int()))

	records, err := listAll[scoreFieldsDTO](ctx, s.client, s.config.ScoresTable, query)
	if err != nil {
		return nil, err
	}

	scores := make(prescription.Scores, len(records))
	for _, r := range records {
		scores[shared.Category(r.Fields.Category)] = shared.Score(r.Fields.Score)
	}
	return scores, nil
}

// History returns the prior-cycle assignment history. For the first
// cycle there is no prior cycle and the history is empty.
func (s *ProfileSource) History(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle) (prescription.History, error) {
	prior := cycle.Int() - 1
	if prior < 1 {
		return prescription.History{}, nil
	}

	query := url.Values{}
	query.Set("student_id", studentID.String())
	query.Set("cycle", strconv.Itoa(prior))

	records, err := listAll[assignmentFieldsDTO](ctx, s.client, s.config.AssignmentsTable, query)
	if err != nil {
		return prescription.History{}, err
	}

	names := make([]string, 0, len(records))
	for _, r := range records {
		names = append(names, r.Fields.ActivityName)
	}
	return prescription.History{PriorCyclePrescribedNames: names}, nil
}

// ══════════════════════════════════════════════════════════════════════════════
// PAGINATED LIST HELPER
// ══════════════════════════════════════════════════════════════════════════════

// listAll fetches every record in a filtered table query, following
// pagination offsets until exhausted.
func listAll[T any](ctx context.Context, c *Client, table string, query url.Values) ([]recordDTO[T], error) {
	var records []recordDTO[T]
	offset := ""

	for {
		q := url.Values{}
		for k, vs := range query {
			q[k] = vs
		}
		if offset != "" {
			q.Set("offset", offset)
		}

		page, err := retry.DoInto(ctx, c.retrier, func(ctx context.Context) (*listResponseDTO[T], error) {
			body, err := c.doRequest(ctx, http.MethodGet, table, q, nil)
			if err != nil {
				return nil, err
			}

			var list listResponseDTO[T]
			if err := json.Unmarshal(body, &list); err != nil {
				return nil, shared.WrapError("recordstore", "List", shared.ErrInvalidFormat, "parse record list", err)
			}
			return &list, nil
		})
		if err != nil {
			return nil, err
		}

		records = append(records, page.Records...)

		if page.Offset == "" {
			return records, nil
		}
		offset = page.Offset
	}
}
