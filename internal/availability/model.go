package availability

import (
	"github.com/google/uuid"
)

// Day is one published calendar date and its slot labels, kept in publish
// order with times already normalized.
type Day struct {
	Date  string
	Slots []string
}

// Availability is the full published calendar for one doctor. It is the
// source of truth; the per-date projection rows are derived from it.
type Availability struct {
	DoctorID uuid.UUID
	Days     []Day
}

// DayInput carries the raw labels a doctor submits before normalization.
type DayInput struct {
	Date  string
	Slots []string
}
