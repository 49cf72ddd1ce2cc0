// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"time"
)

// EventType represents the type of domain event.
type EventType string

// Domain event types. Each event represents something significant that
// happened in the domain.
const (
	// Session events
	EventSessionOpened    EventType = "session.opened"
	EventSessionResumed   EventType = "session.resumed"
	EventStageChanged     EventType = "session.stage_changed"
	EventSessionCompleted EventType = "session.completed"
	EventSessionExited    EventType = "session.exited"

	// Persistence events
	EventResponseSaved EventType = "persistence.response_saved"
	EventSaveFailed    EventType = "persistence.save_failed"

	// Prescription events
	EventPrescriptionIssued EventType = "prescription.issued"

	// System events
	EventMirrorSyncCompleted EventType = "system.mirror_sync_completed"
)

// Event is the base interface for all domain events.
type Event interface {
	// EventType returns the type of the event.
	EventType() EventType

	// OccurredAt returns when the event occurred.
	OccurredAt() time.Time

	// AggregateID returns the ID of the aggregate that produced this event.
	AggregateID() string

	// Payload returns the event data as a map for serialization.
	Payload() map[string]interface{}
}

// BaseEvent provides common event functionality.
type BaseEvent struct {
	Type          EventType `json:"type"`
	Timestamp     time.Time `json:"timestamp"`
	AggregateId   string    `json:"aggregate_id"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// EventType implements Event interface.
func (e BaseEvent) EventType() EventType {
	return e.Type
}

// OccurredAt implements Event interface.
func (e BaseEvent) OccurredAt() time.Time {
	return e.Timestamp
}

// AggregateID implements Event interface.
func (e BaseEvent) AggregateID() string {
	return e.AggregateId
}

// NewBaseEvent creates a new base event.
func NewBaseEvent(eventType EventType, aggregateID string) BaseEvent {
	return BaseEvent{
		Type:        eventType,
		Timestamp:   time.Now(),
		AggregateId: aggregateID,
	}
}

// WithCorrelationID sets the correlation ID for tracing.
func (e BaseEvent) WithCorrelationID(id string) BaseEvent {
	e.CorrelationID = id
	return e
}

// SessionOpenedEvent is emitted when a student opens an activity.
type SessionOpenedEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	ActivityID string `json:"activity_id"`
	Cycle      int    `json:"cycle"`
	Resumed    bool   `json:"resumed"`
}

// Payload implements Event interface.
func (e SessionOpenedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"activity_id": e.ActivityID,
		"cycle":       e.Cycle,
		"resumed":     e.Resumed,
	}
}

// NewSessionOpenedEvent creates a new SessionOpenedEvent.
func NewSessionOpenedEvent(sessionID, studentID, activityID string, cycle int, resumed bool) SessionOpenedEvent {
	return SessionOpenedEvent{
		BaseEvent:  NewBaseEvent(EventSessionOpened, sessionID),
		StudentID:  studentID,
		ActivityID: activityID,
		Cycle:      cycle,
		Resumed:    resumed,
	}
}

// StageChangedEvent is emitted on every legal stage transition.
type StageChangedEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	ActivityID string `json:"activity_id"`
	FromStage  string `json:"from_stage"`
	ToStage    string `json:"to_stage"`
}

// Payload implements Event interface.
func (e StageChangedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"activity_id": e.ActivityID,
		"from_stage":  e.FromStage,
		"to_stage":    e.ToStage,
	}
}

// NewStageChangedEvent creates a new StageChangedEvent.
func NewStageChangedEvent(sessionID, studentID, activityID, from, to string) StageChangedEvent {
	return StageChangedEvent{
		BaseEvent:  NewBaseEvent(EventStageChanged, sessionID),
		StudentID:  studentID,
		ActivityID: activityID,
		FromStage:  from,
		ToStage:    to,
	}
}

// SessionCompletedEvent is emitted exactly once when a session reaches
// the Complete stage and the completed save has been acknowledged.
type SessionCompletedEvent struct {
	BaseEvent
	StudentID        string `json:"student_id"`
	ActivityID       string `json:"activity_id"`
	Cycle            int    `json:"cycle"`
	TimeSpentMinutes int    `json:"time_spent_minutes"`
	WordCount        int    `json:"word_count"`
	PointsEarned     int    `json:"points_earned"`
}

// Payload implements Event interface.
func (e SessionCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":         e.StudentID,
		"activity_id":        e.ActivityID,
		"cycle":              e.Cycle,
		"time_spent_minutes": e.TimeSpentMinutes,
		"word_count":         e.WordCount,
		"points_earned":      e.PointsEarned,
	}
}

// NewSessionCompletedEvent creates a new SessionCompletedEvent.
func NewSessionCompletedEvent(sessionID, studentID, activityID string, cycle, minutes, words, points int) SessionCompletedEvent {
	return SessionCompletedEvent{
		BaseEvent:        NewBaseEvent(EventSessionCompleted, sessionID),
		StudentID:        studentID,
		ActivityID:       activityID,
		Cycle:            cycle,
		TimeSpentMinutes: minutes,
		WordCount:        words,
		PointsEarned:     points,
	}
}

// SaveFailedEvent is emitted when a flush attempt fails. Transient
// failures still retry; the event exists for observability.
type SaveFailedEvent struct {
	BaseEvent
	StudentID  string `json:"student_id"`
	ActivityID string `json:"activity_id"`
	Reason     string `json:"reason"`
	Retryable  bool   `json:"retryable"`
}

// Payload implements Event interface.
func (e SaveFailedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":  e.StudentID,
		"activity_id": e.ActivityID,
		"reason":      e.Reason,
		"retryable":   e.Retryable,
	}
}

// NewSaveFailedEvent creates a new SaveFailedEvent.
func NewSaveFailedEvent(sessionID, studentID, activityID, reason string, retryable bool) SaveFailedEvent {
	return SaveFailedEvent{
		BaseEvent:  NewBaseEvent(EventSaveFailed, sessionID),
		StudentID:  studentID,
		ActivityID: activityID,
		Reason:     reason,
		Retryable:  retryable,
	}
}

// PrescriptionIssuedEvent is emitted when a new prescription set is
// computed and persisted for a student.
type PrescriptionIssuedEvent struct {
	BaseEvent
	StudentID   string   `json:"student_id"`
	Cycle       int      `json:"cycle"`
	ActivityIDs []string `json:"activity_ids"`
}

// Payload implements Event interface.
func (e PrescriptionIssuedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"student_id":   e.StudentID,
		"cycle":        e.Cycle,
		"activity_ids": e.ActivityIDs,
	}
}

// NewPrescriptionIssuedEvent creates a new PrescriptionIssuedEvent.
func NewPrescriptionIssuedEvent(studentID string, cycle int, activityIDs []string) PrescriptionIssuedEvent {
	return PrescriptionIssuedEvent{
		BaseEvent:   NewBaseEvent(EventPrescriptionIssued, studentID),
		StudentID:   studentID,
		Cycle:       cycle,
		ActivityIDs: activityIDs,
	}
}

// MirrorSyncCompletedEvent is emitted after a progress mirror sync run.
type MirrorSyncCompletedEvent struct {
	BaseEvent
	SyncedCount int       `json:"synced_count"`
	FailedCount int       `json:"failed_count"`
	Since       time.Time `json:"since"`
}

// Payload implements Event interface.
func (e MirrorSyncCompletedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"synced_count": e.SyncedCount,
		"failed_count": e.FailedCount,
		"since":        e.Since,
	}
}

// NewMirrorSyncCompletedEvent creates a new MirrorSyncCompletedEvent.
func NewMirrorSyncCompletedEvent(synced, failed int, since time.Time) MirrorSyncCompletedEvent {
	return MirrorSyncCompletedEvent{
		BaseEvent:   NewBaseEvent(EventMirrorSyncCompleted, "progress-mirror"),
		SyncedCount: synced,
		FailedCount: failed,
		Since:       since,
	}
}

// EventHandler is a function that handles an event.
type EventHandler func(event Event) error

// EventPublisher defines the interface for publishing events.
type EventPublisher interface {
	// Publish sends an event to subscribers.
	Publish(event Event) error
}

// EventSubscriber defines the interface for subscribing to events.
type EventSubscriber interface {
	// Subscribe registers a handler for an event type.
	Subscribe(eventType EventType, handler EventHandler) error

	// SubscribeAll registers a handler for all events.
	SubscribeAll(handler EventHandler) error
}

// EventBus combines publishing and subscribing.
type EventBus interface {
	EventPublisher
	EventSubscriber
}
