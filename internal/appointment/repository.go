package appointment

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrDoctorNotFound      = errors.New("doctor not found")
	ErrPatientNotFound     = errors.New("patient not found")
	ErrAppointmentNotFound = errors.New("appointment not found")
	ErrSlotTaken           = errors.New("slot already booked")
)

// Repository contains all DB interactions needed by the service.
type Repository interface {
	GetDoctorByID(ctx context.Context, id uuid.UUID) (*Doctor, error)
	GetPatientByID(ctx context.Context, id uuid.UUID) (*Patient, error)

	GetAppointmentByID(ctx context.Context, id uuid.UUID) (*Appointment, error)

	// For conflict checks and visibility
	FindOccupying(ctx context.Context, doctorID uuid.UUID, date, timeSlot string) (*Appointment, error)
	OccupiedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)

	// CreatePending must fail with ErrSlotTaken when the partial unique
	// index on the occupying tuple rejects the insert.
	CreatePending(ctx context.Context, doctorID, patientID uuid.UUID, date, timeSlot, reason string) (*Appointment, error)

	// UpdateStatus is a compare-and-set: the row only moves when it is
	// still in the expected from status.
	UpdateStatus(ctx context.Context, id uuid.UUID, from, to Status, cancellationReason *string) (*Appointment, error)

	// AttachRating succeeds at most once, on a completed appointment.
	AttachRating(ctx context.Context, id uuid.UUID, rating int, feedback string) (*Appointment, error)

	ListByPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error)
	ListByDoctor(ctx context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error)

	// Event logging
	InsertEvent(ctx context.Context, ev EventLog) error
}
