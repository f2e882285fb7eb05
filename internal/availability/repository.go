package availability

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound       = errors.New("doctor not found")
	ErrAvailabilityNotFound = errors.New("no availability published")
	ErrDayNotPublished      = errors.New("no slots published for that date")
)

// Repository contains all DB interactions needed by the service.
//
// ReplaceDays must rebuild the projection rows for the affected dates in the
// same transaction as the authoritative write: the projection never survives
// a write it disagrees with.
type Repository interface {
	// DoctorTimezone returns the doctor's IANA timezone name, or
	// ErrDoctorNotFound. The name may be empty when the doctor never set one.
	DoctorTimezone(ctx context.Context, doctorID uuid.UUID) (string, error)

	ReplaceDays(ctx context.Context, doctorID uuid.UUID, days []Day) error
	Days(ctx context.Context, doctorID uuid.UUID) ([]Day, error)
	DeleteDay(ctx context.Context, doctorID uuid.UUID, date string) error

	// PublishedSlots reads through the projection, falling back to the
	// authoritative day row when the projection is missing.
	PublishedSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}
