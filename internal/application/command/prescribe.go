// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/growthpath-hub/growth-activity-hub/internal/application/engine"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/prescription"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
	"github.com/growthpath-hub/growth-activity-hub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// PRESCRIBE COMMAND
// Computes the next cycle's activity assignments from the student's
// scored profile and persists them, appending to the assignment history
// so the next cycle's run deprioritizes repeats.
// ══════════════════════════════════════════════════════════════════════════════

// AssignmentSink persists a computed prescription and appends it to the
// student's assignment history.
type AssignmentSink interface {
	SaveAssignments(ctx context.Context, studentID shared.StudentID, cycle shared.Cycle, activityIDs []shared.ActivityID) error
}

// PrescribeCommand contains the data to compute a prescription.
type PrescribeCommand struct {
	// StudentID is the student to prescribe for.
	StudentID string

	// Cycle is the reporting period the prescription belongs to.
	Cycle int

	// CorrelationID for tracing.
	CorrelationID string
}

// Validate validates the command.
func (c PrescribeCommand) Validate() error {
	if c.StudentID == "" {
		return errors.New("prescribe: student_id is required")
	}
	if c.Cycle < 1 {
		return errors.New("prescribe: cycle must be positive")
	}
	return nil
}

// PrescribeResult contains the result of a prescription run.
type PrescribeResult struct {
	// StudentID is the student prescribed for.
	StudentID string

	// Cycle is the reporting period.
	Cycle int

	// ActivityIDs is the ordered assignment set.
	ActivityIDs []shared.ActivityID

	// PriorCycleNames lists the activity names assigned last cycle, the
	// history the selection deprioritized.
	PriorCycleNames []string

	// ComputedAt is when the prescription was computed.
	ComputedAt time.Time

	// CorrelationID echoes the command's correlation ID.
	CorrelationID string
}

// PrescribeHandler handles PrescribeCommand.
type PrescribeHandler struct {
	profiles   engine.ProfileSource
	sink       AssignmentSink
	prescriber *prescription.Engine
	publisher  shared.EventPublisher
	logger     *logger.Logger
}

// NewPrescribeHandler creates a new PrescribeHandler.
func NewPrescribeHandler(
	profiles engine.ProfileSource,
	sink AssignmentSink,
	prescriber *prescription.Engine,
	publisher shared.EventPublisher,
	log *logger.Logger,
) *PrescribeHandler {
	if prescriber == nil {
		prescriber = prescription.NewEngine()
	}
	if log == nil {
		log = logger.Default().With(logger.Component("prescribe"))
	}
	return &PrescribeHandler{
		profiles:   profiles,
		sink:       sink,
		prescriber: prescriber,
		publisher:  publisher,
		logger:     log,
	}
}

// Handle executes the command: load the scored profile, catalog, and
// history; compute; persist; publish.
func (h *PrescribeHandler) Handle(ctx context.Context, cmd PrescribeCommand) (*PrescribeResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("prescription", "Handle", shared.ErrValidation, "invalid command", err)
	}
	if cmd.CorrelationID == "" {
		cmd.CorrelationID = uuid.NewString()
	}

	studentID, err := shared.NewStudentID(cmd.StudentID)
	if err != nil {
		return nil, err
	}
	cycle, err := shared.NewCycle(cmd.Cycle)
	if err != nil {
		return nil, err
	}

	scores, err := h.profiles.Scores(ctx, studentID, cycle)
	if err != nil {
		return nil, err
	}
	catalog, err := h.profiles.Catalog(ctx)
	if err != nil {
		return nil, err
	}
	if len(catalog) == 0 {
		return nil, shared.ErrEmptyCatalog
	}
	history, err := h.profiles.History(ctx, studentID, cycle)
	if err != nil {
		return nil, err
	}

	activityIDs, err := h.prescriber.Compute(scores, catalog, history)
	if err != nil {
		return nil, err
	}

	if err := h.sink.SaveAssignments(ctx, studentID, cycle, activityIDs); err != nil {
		return nil, err
	}

	if h.publisher != nil {
		ids := make([]string, len(activityIDs))
		for i, id := range activityIDs {
			ids[i] = id.String()
		}
		if pubErr := h.publisher.Publish(shared.NewPrescriptionIssuedEvent(studentID.String(), cycle.Int(), ids)); pubErr != nil {
			h.logger.Warn("publish prescription event failed", logger.Err(pubErr))
		}
	}

	h.logger.Info("prescription issued",
		logger.StudentID(studentID.String()),
		logger.CycleNumber(cycle.Int()),
		logger.Int("assigned", len(activityIDs)),
	)

	return &PrescribeResult{
		StudentID:       studentID.String(),
		Cycle:           cycle.Int(),
		ActivityIDs:     activityIDs,
		PriorCycleNames: history.PriorCyclePrescribedNames,
		ComputedAt:      time.Now(),
		CorrelationID:   cmd.CorrelationID,
	}, nil
}
