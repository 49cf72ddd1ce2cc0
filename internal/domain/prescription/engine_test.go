package prescription

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

func allThrees() Scores {
	return Scores{
		shared.CategoryVision:   3,
		shared.CategoryEffort:   3,
		shared.CategorySystems:  3,
		shared.CategoryPractice: 3,
		shared.CategoryAttitude: 3,
	}
}

func activity(id string, cat shared.Category, lower, upper int) Activity {
	return Activity{
		ID:        shared.ActivityID(id),
		Name:      id,
		Category:  cat,
		Threshold: Threshold{Lower: shared.Score(lower), Upper: shared.Score(upper)},
	}
}

func newTestEngine(seed int64) *Engine {
	return NewEngineWithRand(rand.New(rand.NewSource(seed)))
}

func TestCompute_ScoreValidation(t *testing.T) {
	scores := allThrees()
	scores[shared.CategoryVision] = 11

	_, err := newTestEngine(1).Compute(scores, nil, History{})
	assert.ErrorIs(t, err, shared.ErrValueOutOfRange)

	delete(scores, shared.CategoryVision)
	_, err = newTestEngine(1).Compute(scores, nil, History{})
	assert.ErrorIs(t, err, shared.ErrInvalidInput)
}

func TestCompute_QuotaAndNoDuplicates(t *testing.T) {
	// Plenty of eligible activities in every category.
	var catalog []Activity
	for _, cat := range shared.Categories() {
		for i := 0; i < 5; i++ {
			catalog = append(catalog, activity(fmt.Sprintf("%s-%02d", cat, i), cat, 0, 10))
		}
	}

	for seed := int64(0); seed < 20; seed++ {
		result, err := newTestEngine(seed).Compute(allThrees(), catalog, History{})
		require.NoError(t, err)

		assert.LessOrEqual(t, len(result), MaxTotal)

		seen := make(map[shared.ActivityID]bool)
		perCategory := make(map[shared.Category]int)
		for _, id := range result {
			assert.False(t, seen[id], "duplicate activity %s", id)
			seen[id] = true
			for _, a := range catalog {
				if a.ID == id {
					perCategory[a.Category]++
				}
			}
		}
		for cat, n := range perCategory {
			assert.LessOrEqual(t, n, MaxPerCategory, "category %s over quota", cat)
		}
	}
}

func TestCompute_DuplicateCatalogEntrySelectedOnce(t *testing.T) {
	// The same id listed twice in one category must not fill both slots.
	catalog := []Activity{
		activity("effort-dup", shared.CategoryEffort, 0, 5),
		activity("effort-dup", shared.CategoryEffort, 0, 5),
		activity("effort-other", shared.CategoryEffort, 0, 5),
	}

	for seed := int64(0); seed < 20; seed++ {
		result, err := newTestEngine(seed).Compute(allThrees(), catalog, History{})
		require.NoError(t, err)

		counts := make(map[shared.ActivityID]int)
		for _, id := range result {
			counts[id]++
		}
		assert.LessOrEqual(t, counts["effort-dup"], 1, "duplicate catalog entry picked twice")
		assert.ElementsMatch(t, []shared.ActivityID{"effort-dup", "effort-other"}, result)
	}
}

func TestCompute_ThresholdContainment(t *testing.T) {
	scores := allThrees()
	scores[shared.CategoryVision] = 8

	catalog := []Activity{
		activity("vision-high", shared.CategoryVision, 7, 10),
		activity("vision-low", shared.CategoryVision, 0, 5),
		activity("vision-edge", shared.CategoryVision, 8, 8), // inclusive bounds
	}

	result, err := newTestEngine(3).Compute(scores, catalog, History{})
	require.NoError(t, err)

	assert.ElementsMatch(t, []shared.ActivityID{"vision-high", "vision-edge"}, result)
}

func TestCompute_FreshPreferredOverRepeat(t *testing.T) {
	// Three fresh and two repeat-eligible effort activities. With fresh
	// candidates exceeding the quota, no repeat may appear, but any two of
	// the fresh ones are a valid selection.
	catalog := []Activity{
		activity("effort-a", shared.CategoryEffort, 0, 5),
		activity("effort-b", shared.CategoryEffort, 0, 5),
		activity("effort-c", shared.CategoryEffort, 0, 5),
		activity("effort-old-1", shared.CategoryEffort, 0, 5),
		activity("effort-old-2", shared.CategoryEffort, 0, 5),
	}
	history := History{PriorCyclePrescribedNames: []string{"effort-old-1", "effort-old-2"}}

	fresh := map[shared.ActivityID]bool{"effort-a": true, "effort-b": true, "effort-c": true}
	for seed := int64(0); seed < 20; seed++ {
		result, err := newTestEngine(seed).Compute(allThrees(), catalog, history)
		require.NoError(t, err)
		require.Len(t, result, MaxPerCategory)
		for _, id := range result {
			assert.True(t, fresh[id], "repeat activity %s selected while fresh remained", id)
		}
	}
}

func TestCompute_RepeatFillsWhenFreshInsufficient(t *testing.T) {
	catalog := []Activity{
		activity("effort-a", shared.CategoryEffort, 0, 5),
		activity("effort-old", shared.CategoryEffort, 0, 5),
	}
	history := History{PriorCyclePrescribedNames: []string{"effort-old"}}

	result, err := newTestEngine(7).Compute(allThrees(), catalog, history)
	require.NoError(t, err)

	// Fresh one first, repeat fills the quota.
	assert.ElementsMatch(t, []shared.ActivityID{"effort-a", "effort-old"}, result)
}

func TestCompute_WorkedExample(t *testing.T) {
	scores := Scores{
		shared.CategoryVision:   8,
		shared.CategoryEffort:   3,
		shared.CategorySystems:  3,
		shared.CategoryPractice: 3,
		shared.CategoryAttitude: 3,
	}
	catalog := []Activity{
		activity("vision-only", shared.CategoryVision, 7, 10),
		activity("effort-1", shared.CategoryEffort, 0, 5),
		activity("effort-2", shared.CategoryEffort, 0, 5),
		activity("effort-3", shared.CategoryEffort, 0, 5),
	}

	for seed := int64(0); seed < 20; seed++ {
		result, err := newTestEngine(seed).Compute(scores, catalog, History{})
		require.NoError(t, err)

		require.Len(t, result, 3)
		assert.Contains(t, result, shared.ActivityID("vision-only"))

		efforts := 0
		for _, id := range result {
			if id != "vision-only" {
				efforts++
			}
		}
		assert.Equal(t, 2, efforts)
	}
}

func TestThreshold_Contains(t *testing.T) {
	th := Threshold{Lower: 2, Upper: 6}
	assert.True(t, th.Contains(2))
	assert.True(t, th.Contains(6))
	assert.False(t, th.Contains(1))
	assert.False(t, th.Contains(7))
}
