// Package recordstore implements the remote record store API client.
// This package handles all communication with the records platform that
// durably holds Response and Progress records for the Activity Hub.
package recordstore

import (
	"fmt"
	"time"
)

// ══════════════════════════════════════════════════════════════════════════════
// API RESPONSE WRAPPERS
// ══════════════════════════════════════════════════════════════════════════════

// listResponseDTO wraps a filtered record query result.
type listResponseDTO[T any] struct {
	Records []recordDTO[T] `json:"records"`
	Offset  string         `json:"offset,omitempty"`
}

// recordDTO is a generic stored record: a store-assigned ID plus a typed
// fields object.
type recordDTO[T any] struct {
	ID          string    `json:"id"`
	CreatedTime time.Time `json:"createdTime,omitempty"`
	Fields      T         `json:"fields"`
}

// recordRequestDTO is the create/update payload shape.
type recordRequestDTO[T any] struct {
	Fields T `json:"fields"`
}

// ══════════════════════════════════════════════════════════════════════════════
// RESPONSE RECORD DTOs
// ══════════════════════════════════════════════════════════════════════════════

// responseFieldsDTO is the wire shape of a Response record's fields.
type responseFieldsDTO struct {
	// StudentID and ActivityID are the identifying back-references.
	StudentID  string `json:"student_id,omitempty"`
	ActivityID string `json:"activity_id,omitempty"`

	// Answers is the cycle-keyed JSON blob, stored as a string field.
	Answers string `json:"answers,omitempty"`

	// Status is "in_progress" or "completed".
	Status string `json:"status,omitempty"`

	// Cohort and GroupName are denormalized reporting tags.
	Cohort    string `json:"cohort,omitempty"`
	GroupName string `json:"group_name,omitempty"`

	// CompletedAt is set only for completed attempts.
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// ══════════════════════════════════════════════════════════════════════════════
// PROGRESS RECORD DTOs
// ══════════════════════════════════════════════════════════════════════════════

// progressFieldsDTO is the wire shape of a Progress record's fields.
type progressFieldsDTO struct {
	StudentID        string    `json:"student_id"`
	ActivityID       string    `json:"activity_id"`
	Cycle            int       `json:"cycle"`
	TimeSpentMinutes int       `json:"time_spent_minutes"`
	WordCount        int       `json:"word_count"`
	PointsEarned     int       `json:"points_earned"`
	CompletedAt      time.Time `json:"completed_at"`
}

// ══════════════════════════════════════════════════════════════════════════════
// ERROR DTOs
// ══════════════════════════════════════════════════════════════════════════════

// apiErrorDTO is the error body returned by the records platform.
type apiErrorDTO struct {
	StatusCode int    `json:"-"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

// Error implements the error interface.
func (e *apiErrorDTO) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("record store: %s (status %d)", e.Message, e.StatusCode)
	}
	return fmt.Sprintf("record store: status %d", e.StatusCode)
}

// IsServerError reports whether the failure originated server-side.
func (e *apiErrorDTO) IsServerError() bool {
	return e.StatusCode >= 500
}
