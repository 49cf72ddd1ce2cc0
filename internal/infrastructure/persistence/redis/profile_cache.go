package redis

import (
	"context"

	"github.com/growthpath-hub/growth-activity-hub/internal/application/engine"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/session"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// CachedProfileSource wraps an engine.ProfileSource with read-through
// caching. Misses and Redis failures fall through to the inner source,
// so a degraded cache never blocks a session from opening.
type CachedProfileSource struct {
	inner engine.ProfileSource
	cache *Cache
}

var _ engine.ProfileSource = (*CachedProfileSource)(nil)

// NewCachedProfileSource creates a new CachedProfileSource.
func NewCachedProfileSource(inner engine.ProfileSource, cache *Cache) *CachedProfileSource {
	return &CachedProfileSource{
		inner: inner,
		cache: cache,
	}
}

// Profile returns the student's denormalized reporting context.
func (s *CachedProfileSource) Profile(ctx context.Context, studentID shared.StudentID) (engine.StudentProfile, error) {
	key := ProfileKey(studentID.String())

	var cached engine.StudentProfile
	if err := s.cache.Get(ctx, key, &cached); err == nil && cached.StudentID.IsValid() {
		return cached, nil
	}

	profile, err := s.inner.Profile(ctx, studentID)
	if err != nil {
		return engine.StudentProfile{}, err
	}

	_ = s.cache.Set(ctx, key, profile, TTLProfile)
	return profile, nil
}

// Questions returns the ordered question list for an activity.
func (s *CachedProfileSource) Questions(ctx context.Context, activityID shared.ActivityID) ([]session.Question, error) {
	key := QuestionsKey(activityID.String())

	var cached []session.Question
	if err := s.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	questions, err := s.inner.Questions(ctx, activityID)
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, key, questions, TTLQuestions)
	return questions, nil
}

// Catalog returns the full activity catalog.
func (s *CachedProfileSource) Catalog(ctx context.Context) ([]prescription.Activity, error) {
	key := CatalogKey()

	var cached []prescription.Activity
	if err := s.cache.Get(ctx, key, &cached); err == nil && len(cached) > 0 {
		return cached, nil
	}

	catalog, err := s.inner.Catalog(ctx)
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, key, catalog, TTLCatalog)
	return catalog, nil
}

// Scores returns the student's current five-category scores for the cycle.
func (s *CachedProfileSource) Scores(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle) (prescription.Scores, error) {
	key := ScoresKey(studentID.String(), cycle.Int())

	var cached prescription.Scores
	if err := s.cache.Get(ctx, key, &cached); err == nil && cached.Validate() == nil {
		return cached, nil
	}

	scores, err := s.inner.Scores(ctx, studentID, cycle)
	if err != nil {
		return nil, err
	}

	_ = s.cache.Set(ctx, key, scores, TTLScores)
	return scores, nil
}

// History returns the prior-cycle assignment history.
func (s *CachedProfileSource) History(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle) (prescription.History, error) {
	key := HistoryKey(studentID.String(), cycle.Int())

	var cached prescription.History
	if err := s.cache.Get(ctx, key, &cached); err == nil && len(cached.PriorCyclePrescribedNames) > 0 {
		return cached, nil
	}

	history, err := s.inner.History(ctx, studentID, cycle)
	if err != nil {
		return prescription.History{}, err
	}

	_ = s.cache.Set(ctx, key, history, TTLHistory)
	return history, nil
}

// InvalidateStudent drops all cached state for one student. Called when
// the upstream profile changes or a new cycle is provisioned.
func (s *CachedProfileSource) InvalidateStudent(ctx context.Context, studentID shared.StudentID) error {
	if err := s.cache.Delete(ctx, ProfileKey(studentID.String())); err != nil {
		return err
	}
	if err := s.cache.DeleteByPattern(ctx, PrefixScores+studentID.String()+":*"); err != nil {
		return err
	}
	return s.cache.DeleteByPattern(ctx, PrefixHistory+studentID.String()+":*")
}

// InvalidateCatalog drops the cached catalog and all question lists.
func (s *CachedProfileSource) InvalidateCatalog(ctx context.Context) error {
	if err := s.cache.Delete(ctx, CatalogKey()); err != nil {
		return err
	}
	return s.cache.DeleteByPattern(ctx, PrefixQuestions+"*")
}
