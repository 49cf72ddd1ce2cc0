package prescription

import (
	"math/rand"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESCRIPTION ENGINE
//
// Pure computation, no I/O. For each of the five categories independently:
//
//  1. Filter the catalog to that category's activities whose threshold
//     contains the category's current score.
//  2. Partition into "fresh" (not prescribed last cycle) and "repeat".
//  3. Shuffle within each partition; the exact pick within a tier is
//     deliberately non-deterministic.
//  4. Take up to MaxPerCategory, fresh first, then repeat to fill.
//
// The concatenated result is capped at 2×5 by construction and contains
// no duplicate activity id.
// ══════════════════════════════════════════════════════════════════════════════

const (
	// MaxPerCategory is the selection quota per category.
	MaxPerCategory = 2

	// MaxTotal is the overall cap (MaxPerCategory × five categories).
	MaxTotal = 10
)

// Engine computes prescription sets. The zero value is not usable; use
// NewEngine, which seeds the tie-break shuffle from the current time, or
// NewEngineWithRand for deterministic tests.
type Engine struct {
	rng *rand.Rand
}

// NewEngine creates an engine with a time-seeded shuffle source.
func NewEngine() *Engine {
	return NewEngineWithRand(rand.New(rand.NewSource(time.Now().UnixNano())))
}

// NewEngineWithRand creates an engine with the given shuffle source.
func NewEngineWithRand(rng *rand.Rand) *Engine {
	return &Engine{rng: rng}
}

// Compute selects the next set of activities for the given profile.
// The result is an ordered sequence of activity ids grouped by category,
// at most MaxPerCategory per category and MaxTotal overall.
func (e *Engine) Compute(scores Scores, catalog []Activity, history History) ([]shared.ActivityID, error) {
	if err := scores.Validate(); err != nil {
		return nil, err
	}

	result := make([]shared.ActivityID, 0, MaxTotal)
	seen := make(map[shared.ActivityID]bool, MaxTotal)

	for _, cat := range shared.Categories() {
		picked := e.selectForCategory(cat, scores[cat], catalog, history, seen)
		result = append(result, picked...)
	}

	return result, nil
}

// selectForCategory applies the eligibility filter and the fresh-over-repeat
// preference for a single category. seen guards against a duplicate id
// appearing under two categories.
func (e *Engine) selectForCategory(cat shared.Category, score shared.Score, catalog []Activity, history History, seen map[shared.ActivityID]bool) []shared.ActivityID {
	var fresh, repeat []Activity
	for _, a := range catalog {
		if a.Category != cat || !a.Threshold.Contains(score) || seen[a.ID] {
			continue
		}
		if history.wasPrescribed(a.Name) {
			repeat = append(repeat, a)
		} else {
			fresh = append(fresh, a)
		}
	}

	e.shuffle(fresh)
	e.shuffle(repeat)

	picked := make([]shared.ActivityID, 0, MaxPerCategory)
	for _, a := range append(fresh, repeat...) {
		if len(picked) == MaxPerCategory {
			break
		}
		// A catalog can list the same id more than once; the filter pass
		// ran before anything in this category was marked seen.
		if seen[a.ID] {
			continue
		}
		picked = append(picked, a.ID)
		seen[a.ID] = true
	}
	return picked
}

func (e *Engine) shuffle(activities []Activity) {
	e.rng.Shuffle(len(activities), func(i, j int) {
		activities[i], activities[j] = activities[j], activities[i]
	})
}
