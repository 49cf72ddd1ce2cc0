package session

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

func testQuestions() []Question {
	return []Question{
		{ID: "q1", Prompt: "What is your goal?", Kind: InputLongText, IsRequired: true},
		{ID: "q2", Prompt: "Pick a focus area", Kind: InputSingleChoice, Choices: []string{"daily", "weekly"}, IsRequired: true},
		{ID: "q3", Prompt: "Anything else?", Kind: InputFreeText, IsRequired: false},
		{ID: "q4", Prompt: "What did you learn?", Kind: InputLongText, IsRequired: true, IsReflection: true},
	}
}

func newTestSession(t *testing.T) *Session {
	t.Helper()
	s, err := New("vision-board-01", "student-1", 2, testQuestions(), time.Now())
	require.NoError(t, err)
	return s
}

func TestNew_Validation(t *testing.T) {
	_, err := New("", "student-1", 1, nil, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = New("vision-board-01", "   ", 1, nil, time.Now())
	assert.ErrorIs(t, err, shared.ErrInvalidID)

	_, err = New("vision-board-01", "student-1", 0, nil, time.Now())
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)
}

func TestAdvance_LinearForwardOnly(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, StageIntro, s.Stage())

	// Skipping ahead is not allowed.
	d := s.Advance(StageDo)
	assert.False(t, d.Allowed)
	assert.Equal(t, StageIntro, s.Stage())

	assert.True(t, s.Advance(StageLearn).Allowed)
	assert.True(t, s.Advance(StageDo).Allowed)
	assert.Equal(t, StageDo, s.Stage())
}

func TestAdvance_BackwardAlwaysLegal(t *testing.T) {
	s := newTestSession(t)
	s.Advance(StageLearn)
	s.Advance(StageDo)

	assert.True(t, s.Advance(StageIntro).Allowed)
	assert.Equal(t, StageIntro, s.Stage())
}

func TestAdvance_ReflectRequiresDoAnswers(t *testing.T) {
	s := newTestSession(t)
	s.Advance(StageLearn)
	s.Advance(StageDo)

	d := s.Advance(StageReflect)
	assert.False(t, d.Allowed)
	assert.NotEmpty(t, d.Reason)

	// Whitespace does not count as an answer.
	s.SetAnswer("q1", "   ")
	s.SetAnswer("q2", "daily")
	assert.False(t, s.Advance(StageReflect).Allowed)

	// Reflect unlocks with required non-reflection answers only; the
	// required reflection question q4 may still be blank.
	s.SetAnswer("q1", "Ship the project")
	assert.True(t, s.Advance(StageReflect).Allowed)
}

func TestAdvance_CompleteRequiresAllRequiredAnswers(t *testing.T) {
	s := newTestSession(t)
	s.Advance(StageLearn)
	s.Advance(StageDo)
	s.SetAnswer("q1", "Ship the project")
	s.SetAnswer("q2", "daily")
	s.Advance(StageReflect)

	// q4 (required reflection) is still unanswered.
	d := s.Advance(StageComplete)
	assert.False(t, d.Allowed)

	s.SetAnswer("q4", "Consistency beats intensity")
	assert.True(t, s.Advance(StageComplete).Allowed)
	assert.Equal(t, StageComplete, s.Stage())

	// Terminal: no further transitions.
	assert.False(t, s.Advance(StageIntro).Allowed)
}

func TestStatus_DerivedFromStage(t *testing.T) {
	s := newTestSession(t)
	assert.Equal(t, StatusInProgress, s.Status())

	s.Advance(StageLearn)
	assert.Equal(t, StatusInProgress, s.Status())

	s.SetAnswer("q1", "goal")
	s.SetAnswer("q2", "daily")
	s.SetAnswer("q4", "learned a lot")
	s.Advance(StageDo)
	s.Advance(StageReflect)
	s.Advance(StageComplete)
	assert.Equal(t, StatusCompleted, s.Status())
}

func TestMarkCompleted_OnceOnly(t *testing.T) {
	s := newTestSession(t)
	now := time.Now()

	assert.True(t, s.MarkCompleted(now))
	assert.False(t, s.MarkCompleted(now.Add(time.Minute)))
	require.NotNil(t, s.CompletedAt())
	assert.Equal(t, now, *s.CompletedAt())
}

func TestWordCount(t *testing.T) {
	s := newTestSession(t)
	s.SetAnswer("q1", "one two three")
	s.SetAnswer("q3", "  four   five ")
	assert.Equal(t, 5, s.WordCount())
}

func TestRestoreResponses_HighestCycleWins(t *testing.T) {
	s := newTestSession(t)
	blob := `{"cycle-1":{"q1":"old goal","q3":"old note"},"cycle-2":{"q1":"new goal"}}`

	s.RestoreResponses(blob)

	assert.Equal(t, "new goal", s.Answer("q1"))
	// cycle-2 has no q3, so it defaults to empty rather than falling back.
	assert.Equal(t, "", s.Answer("q3"))
}

func TestRestoreResponses_CorruptBlobDegradesToEmpty(t *testing.T) {
	s := newTestSession(t)

	for _, blob := range []string{".", "", "   ", "{not json", `"just a string"`, `[]`} {
		assert.NotPanics(t, func() { s.RestoreResponses(blob) })
		assert.Empty(t, s.Responses(), "blob %q should yield an empty buffer", blob)
	}
}

func TestEncodeAnswerBlob_PreservesOtherCycles(t *testing.T) {
	existing := `{"cycle-1":{"q1":"first attempt"}}`

	blob, err := EncodeAnswerBlob(existing, 2, map[string]string{"q1": "second attempt"})
	require.NoError(t, err)

	s := newTestSession(t)
	s.RestoreResponses(blob)
	assert.Equal(t, "second attempt", s.Answer("q1"))

	// Cycle 1 must remain untouched inside the blob.
	one, err := EncodeAnswerBlob(blob, 1, map[string]string{"q1": "first attempt"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cycle-1":{"q1":"first attempt"},"cycle-2":{"q1":"second attempt"}}`, one)
}

func TestEncodeAnswerBlob_ReplacesCorruptExisting(t *testing.T) {
	blob, err := EncodeAnswerBlob(".", 3, map[string]string{"q1": "fresh"})
	require.NoError(t, err)
	assert.JSONEq(t, `{"cycle-3":{"q1":"fresh"}}`, blob)
}

func TestQuestion_StageRouting(t *testing.T) {
	q := Question{ID: "r1", IsReflection: true}
	assert.Equal(t, StageReflect, q.StageFor())

	q = Question{ID: "d1"}
	assert.Equal(t, StageDo, q.StageFor())
}
