package appointment

import (
	"time"

	"github.com/google/uuid"
)

type Status string

const (
	StatusPending          Status = "pending"
	StatusAccepted         Status = "accepted"
	StatusConfirmed        Status = "confirmed"
	StatusCompleted        Status = "completed"
	StatusCancelled        Status = "cancelled"
	StatusPatientCancelled Status = "patient-cancelled"
)

// OccupyingStatuses are the statuses that hold a (doctor, date, time) tuple
// against new claims. Both cancellation statuses free the slot for
// rebooking; everything else keeps it taken, including completed, so the
// historical record keeps blocking the exact tuple it consumed.
var OccupyingStatuses = []Status{
	StatusPending,
	StatusAccepted,
	StatusConfirmed,
	StatusCompleted,
}

func (s Status) Occupying() bool {
	for _, o := range OccupyingStatuses {
		if s == o {
			return true
		}
	}
	return false
}

func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusCancelled, StatusPatientCancelled:
		return true
	}
	return false
}

type Role string

const (
	RoleDoctor  Role = "doctor"
	RolePatient Role = "patient"
)

// Actor is the authenticated caller driving an operation.
type Actor struct {
	ID   uuid.UUID
	Role Role
}

type Doctor struct {
	ID        uuid.UUID
	Name      string
	Specialty *string
	Timezone  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Patient struct {
	ID        uuid.UUID
	Name      string
	Email     *string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Appointment is the unit of booking. Date and TimeSlot are canonical text
// labels (YYYY-MM-DD, HH:MM); records are never deleted, cancellation is a
// status.
type Appointment struct {
	ID                 uuid.UUID
	DoctorID           uuid.UUID
	PatientID          uuid.UUID
	Date               string
	TimeSlot           string
	Status             Status
	Reason             string
	CancellationReason *string
	Rating             *int
	Feedback           *string
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type EventLog struct {
	ID            int64
	EventType     string
	AppointmentID *uuid.UUID
	Payload       []byte
	CreatedAt     time.Time
}
