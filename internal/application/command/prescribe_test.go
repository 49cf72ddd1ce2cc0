package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/application/engine"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

type stubProfiles struct {
	scores  prescription.Scores
	catalog []prescription.Activity
	history prescription.History
}

func (s *stubProfiles) Profile(_ context.Context, id shared.StudentID) (engine.StudentProfile, error) {
	return engine.StudentProfile{StudentID: id}, nil
}

func (s *stubProfiles) Questions(_ context.Context, _ shared.ActivityID) ([]session.Question, error) {
	return nil, nil
}

func (s *stubProfiles) Catalog(_ context.Context) ([]prescription.Activity, error) {
	return s.catalog, nil
}

func (s *stubProfiles) Scores(_ context.Context, _ shared.StudentID, _ shared.Cycle) (prescription.Scores, error) {
	return s.scores, nil
}

func (s *stubProfiles) History(_ context.Context, _ shared.StudentID, _ shared.Cycle) (prescription.History, error) {
	return s.history, nil
}

type stubSink struct {
	saved []shared.ActivityID
	calls int
}

func (s *stubSink) SaveAssignments(_ context.Context, _ shared.StudentID, _ shared.Cycle, ids []shared.ActivityID) error {
	s.calls++
	s.saved = ids
	return nil
}

func fullScores(v shared.Score) prescription.Scores {
	scores := prescription.Scores{}
	for _, cat := range shared.Categories() {
		scores[cat] = v
	}
	return scores
}

func TestPrescribeCommand_Validate(t *testing.T) {
	assert.Error(t, PrescribeCommand{Cycle: 1}.Validate())
	assert.Error(t, PrescribeCommand{StudentID: "stu-1"}.Validate())
	assert.NoError(t, PrescribeCommand{StudentID: "stu-1", Cycle: 1}.Validate())
}

func TestPrescribeHandler_ComputesAndPersists(t *testing.T) {
	profiles := &stubProfiles{
		scores: fullScores(5),
		catalog: []prescription.Activity{
			{ID: "effort-journal-01", Name: "Effort Journal", Category: shared.CategoryEffort, Threshold: prescription.Threshold{Lower: 0, Upper: 10}},
			{ID: "systems-map-01", Name: "Systems Map", Category: shared.CategorySystems, Threshold: prescription.Threshold{Lower: 3, Upper: 7}},
		},
	}
	sink := &stubSink{}
	handler := NewPrescribeHandler(profiles, sink, nil, nil, nil)

	result, err := handler.Handle(context.Background(), PrescribeCommand{StudentID: "stu-1", Cycle: 3})
	require.NoError(t, err)

	assert.Equal(t, "stu-1", result.StudentID)
	assert.Equal(t, 3, result.Cycle)
	assert.NotEmpty(t, result.CorrelationID)
	assert.ElementsMatch(t, []shared.ActivityID{"effort-journal-01", "systems-map-01"}, result.ActivityIDs)

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, result.ActivityIDs, sink.saved)
}

func TestPrescribeHandler_EmptyCatalogFails(t *testing.T) {
	handler := NewPrescribeHandler(&stubProfiles{scores: fullScores(5)}, &stubSink{}, nil, nil, nil)

	_, err := handler.Handle(context.Background(), PrescribeCommand{StudentID: "stu-1", Cycle: 1})
	assert.ErrorIs(t, err, shared.ErrEmptyValue)
}

func TestPrescribeHandler_InvalidScoresSurface(t *testing.T) {
	profiles := &stubProfiles{
		scores: prescription.Scores{shared.CategoryVision: 99},
		catalog: []prescription.Activity{
			{ID: "vision-board-01", Category: shared.CategoryVision, Threshold: prescription.Threshold{Lower: 0, Upper: 10}},
		},
	}
	sink := &stubSink{}
	handler := NewPrescribeHandler(profiles, sink, nil, nil, nil)

	_, err := handler.Handle(context.Background(), PrescribeCommand{StudentID: "stu-1", Cycle: 1})
	require.Error(t, err)
	assert.Equal(t, 0, sink.calls)
}

func TestPrescribeHandler_RejectsInvalidCommand(t *testing.T) {
	handler := NewPrescribeHandler(&stubProfiles{}, &stubSink{}, nil, nil, nil)

	_, err := handler.Handle(context.Background(), PrescribeCommand{StudentID: "", Cycle: 1})
	assert.ErrorIs(t, err, shared.ErrValidation)
}

func TestPrescribeHandler_FreshPreferredOverRepeat(t *testing.T) {
	profiles := &stubProfiles{
		scores: fullScores(5),
		catalog: []prescription.Activity{
			{ID: "effort-a", Name: "Effort A", Category: shared.CategoryEffort, Threshold: prescription.Threshold{Lower: 0, Upper: 10}},
			{ID: "effort-b", Name: "Effort B", Category: shared.CategoryEffort, Threshold: prescription.Threshold{Lower: 0, Upper: 10}},
			{ID: "effort-c", Name: "Effort C", Category: shared.CategoryEffort, Threshold: prescription.Threshold{Lower: 0, Upper: 10}},
		},
		history: prescription.History{PriorCyclePrescribedNames: []string{"Effort A"}},
	}
	sink := &stubSink{}
	handler := NewPrescribeHandler(profiles, sink, nil, nil, nil)

	result, err := handler.Handle(context.Background(), PrescribeCommand{StudentID: "stu-1", Cycle: 2})
	require.NoError(t, err)

	require.Len(t, result.ActivityIDs, 2)
	assert.NotContains(t, result.ActivityIDs, shared.ActivityID("effort-a"), "repeats lose to fresh activities when fresh fills the quota")
	assert.Equal(t, []string{"Effort A"}, result.PriorCycleNames)
}
