// Package recordstore implements the remote record store API client.
package recordstore

import (
	"errors"
	"time"

	"github.com/growthpath-hub/growth-activity-hub/internal/domain/progress"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/record"
	"github.com/growthpath-hub/growth-activity-hub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// MAPPER - DTO to Domain transformations
// ══════════════════════════════════════════════════════════════════════════════

// ErrNilDTO is returned when mapping a nil DTO.
var ErrNilDTO = errors.New("recordstore: nil DTO")

// Mapper transforms between wire DTOs and domain records. It is the
// anti-corruption layer protecting the domain from wire-format drift.
type Mapper struct{}

// NewMapper creates a new Mapper instance.
func NewMapper() *Mapper {
	return &Mapper{}
}

// ResponseFromDTO converts a stored record to a domain Response.
func (m *Mapper) ResponseFromDTO(dto *recordDTO[responseFieldsDTO]) (*record.Response, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}

	return &record.Response{
		ID:          dto.ID,
		StudentID:   shared.StudentID(dto.Fields.StudentID),
		ActivityID:  shared.ActivityID(dto.Fields.ActivityID),
		AnswerBlob:  dto.Fields.Answers,
		Status:      dto.Fields.Status,
		Cohort:      shared.Cohort(dto.Fields.Cohort),
		GroupName:   dto.Fields.GroupName,
		CompletedAt: dto.Fields.CompletedAt,
	}, nil
}

// ResponseToFields converts a domain Response to its wire fields.
func (m *Mapper) ResponseToFields(resp record.Response) responseFieldsDTO {
	return responseFieldsDTO{
		StudentID:   resp.StudentID.String(),
		ActivityID:  resp.ActivityID.String(),
		Answers:     resp.AnswerBlob,
		Status:      resp.Status,
		Cohort:      resp.Cohort.String(),
		GroupName:   resp.GroupName,
		CompletedAt: resp.CompletedAt,
	}
}

// ProgressFromDTO converts a stored record to a domain progress entry.
func (m *Mapper) ProgressFromDTO(dto *recordDTO[progressFieldsDTO]) (*progress.Entry, error) {
	if dto == nil {
		return nil, ErrNilDTO
	}

	return &progress.Entry{
		ID:               dto.ID,
		StudentID:        shared.StudentID(dto.Fields.StudentID),
		ActivityID:       shared.ActivityID(dto.Fields.ActivityID),
		Cycle:            shared.Cycle(dto.Fields.Cycle),
		TimeSpentMinutes: dto.Fields.TimeSpentMinutes,
		WordCount:        dto.Fields.WordCount,
		PointsEarned:     dto.Fields.PointsEarned,
		CompletedAt:      dto.Fields.CompletedAt,
	}, nil
}

// ProgressToFields converts a domain progress entry to its wire fields.
func (m *Mapper) ProgressToFields(entry progress.Entry) progressFieldsDTO {
	return progressFieldsDTO{
		StudentID:        entry.StudentID.String(),
		ActivityID:       entry.ActivityID.String(),
		Cycle:            entry.Cycle.Int(),
		TimeSpentMinutes: entry.TimeSpentMinutes,
		WordCount:        entry.WordCount,
		PointsEarned:     entry.PointsEarned,
		CompletedAt:      entry.CompletedAt.UTC().Truncate(time.Second),
	}
}
