// Package shared contains common domain types, errors, events, and value objects
// that are used across all domain packages.
package shared

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ═══════════════════════════════════════════════════════════════════════════
// ID Value Objects
// ═══════════════════════════════════════════════════════════════════════════

// StudentID identifies a student on the hosting platform. The value is
// opaque to this system; validation only rejects blanks and whitespace.
type StudentID string

// IsValid checks that the student ID is non-empty.
func (s StudentID) IsValid() bool {
	return strings.TrimSpace(string(s)) != ""
}

// String returns the string representation.
func (s StudentID) String() string {
	return string(s)
}

// IsEmpty checks if the ID is empty.
func (s StudentID) IsEmpty() bool {
	return s == ""
}

// NewStudentID creates a new StudentID with validation.
func NewStudentID(id string) (StudentID, error) {
	sid := StudentID(strings.TrimSpace(id))
	if !sid.IsValid() {
		return "", ErrInvalidStudentID
	}
	return sid, nil
}

// ActivityID identifies an activity in the catalog.
type ActivityID string

// Activity ID format: category-name-number (e.g., "vision-board-01").
var activityIDRegex = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9_.-]*$`)

// IsValid checks if the activity ID format is valid.
func (a ActivityID) IsValid() bool {
	s := string(a)
	return len(s) >= 1 && len(s) <= 80 && activityIDRegex.MatchString(s)
}

// String returns the string representation.
func (a ActivityID) String() string {
	return string(a)
}

// IsEmpty checks if the ID is empty.
func (a ActivityID) IsEmpty() bool {
	return a == ""
}

// NewActivityID creates a new ActivityID with validation.
func NewActivityID(id string) (ActivityID, error) {
	aid := ActivityID(strings.TrimSpace(id))
	if !aid.IsValid() {
		return "", ErrInvalidActivityID
	}
	return aid, nil
}

// QuestionID identifies a question within an activity.
type QuestionID string

// String returns the string representation.
func (q QuestionID) String() string {
	return string(q)
}

// ═══════════════════════════════════════════════════════════════════════════
// Cycle Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Cycle is the reporting period (e.g., a term) under which scores and
// prescriptions are versioned. Response records key their answer blobs
// by cycle tag so multiple cycles coexist in one record.
type Cycle int

// IsValid checks that the cycle number is positive.
func (c Cycle) IsValid() bool {
	return c >= 1
}

// Int returns the underlying int value.
func (c Cycle) Int() int {
	return int(c)
}

// Tag returns the key under which this cycle's answers are stored
// inside a Response record's answer blob.
func (c Cycle) Tag() string {
	return fmt.Sprintf("cycle-%d", int(c))
}

// NewCycle creates a new Cycle with validation.
func NewCycle(n int) (Cycle, error) {
	c := Cycle(n)
	if !c.IsValid() {
		return 0, ErrInvalidCycle
	}
	return c, nil
}

// ParseCycleTag extracts the cycle number from a blob key.
// Returns 0 and false when the key is not a cycle tag.
func ParseCycleTag(tag string) (Cycle, bool) {
	rest, ok := strings.CutPrefix(tag, "cycle-")
	if !ok {
		return 0, false
	}
	n, err := strconv.Atoi(rest)
	if err != nil || n < 1 {
		return 0, false
	}
	return Cycle(n), true
}

// ═══════════════════════════════════════════════════════════════════════════
// Score Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Score is a per-category assessment score.
type Score int

const (
	MinScore Score = 0
	MaxScore Score = 10
)

// IsValid checks if the score is within valid range.
func (s Score) IsValid() bool {
	return s >= MinScore && s <= MaxScore
}

// Int returns the underlying int value.
func (s Score) Int() int {
	return int(s)
}

// NewScore creates a new Score with validation.
func NewScore(value int) (Score, error) {
	s := Score(value)
	if !s.IsValid() {
		return 0, ErrInvalidScore
	}
	return s, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Category Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Category is one of the five scored profile categories.
type Category string

const (
	CategoryVision   Category = "vision"
	CategoryEffort   Category = "effort"
	CategorySystems  Category = "systems"
	CategoryPractice Category = "practice"
	CategoryAttitude Category = "attitude"
)

// Categories lists all categories in presentation order.
func Categories() []Category {
	return []Category{
		CategoryVision,
		CategoryEffort,
		CategorySystems,
		CategoryPractice,
		CategoryAttitude,
	}
}

// IsValid checks if the category is one of the five known values.
func (c Category) IsValid() bool {
	switch c {
	case CategoryVision, CategoryEffort, CategorySystems, CategoryPractice, CategoryAttitude:
		return true
	}
	return false
}

// String returns the string representation.
func (c Category) String() string {
	return string(c)
}

// NewCategory creates a Category with validation.
func NewCategory(value string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", ErrUnknownCategory
	}
	return c, nil
}

// ═══════════════════════════════════════════════════════════════════════════
// Cohort Value Object
// ═══════════════════════════════════════════════════════════════════════════

// Cohort is the student's enrollment group, denormalized onto created
// Response records for reporting. Free-form; empty means unknown.
type Cohort string

// String returns the string representation.
func (c Cohort) String() string {
	return string(c)
}

// IsEmpty checks if the cohort is unset.
func (c Cohort) IsEmpty() bool {
	return strings.TrimSpace(string(c)) == ""
}
