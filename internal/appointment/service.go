package appointment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/availability"
	"github.com/carebook/booking-engine/internal/clock"
	"github.com/carebook/booking-engine/internal/notify"
	redisclient "github.com/carebook/booking-engine/internal/redis"
	"github.com/carebook/booking-engine/internal/timeslot"
)

const (
	EventAppointmentBooked = "APPOINTMENT_BOOKED"
	EventStatusChanged     = "APPOINTMENT_STATUS_CHANGED"
	EventRatingAttached    = "APPOINTMENT_RATING_ATTACHED"
)

var (
	ErrSlotBeingBooked   = errors.New("slot is currently being booked, please retry")
	ErrSlotNotPublished  = errors.New("slot is not published for that date")
	ErrPastSlot          = errors.New("cannot book a slot in the past")
	ErrInvalidTransition = errors.New("invalid status transition")
	ErrInvalidRating     = errors.New("rating must be between 1 and 5")
	ErrRatingNotAllowed  = errors.New("rating requires a completed appointment")
	ErrRatingAlreadySet  = errors.New("rating already submitted")
)

// SlotSource answers what a doctor has published for a date. Implemented by
// the availability repository.
type SlotSource interface {
	PublishedSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}

type Service struct {
	repo     Repository
	slots    SlotSource
	locker   redisclient.Locker
	notifier notify.Notifier
	clk      clock.Clock
	logger   zerolog.Logger
}

func NewService(repo Repository, slots SlotSource, locker redisclient.Locker, notifier notify.Notifier, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		repo:     repo,
		slots:    slots,
		locker:   locker,
		notifier: notifier,
		clk:      clk,
		logger:   logger,
	}
}

// Claim reserves a published slot for a patient. The critical section runs
// under a per-slot lock and re-checks occupancy inside it; the partial
// unique index on the occupying tuple backstops the check, so a visibility
// result that went stale between read and write can never double-book.
func (s *Service) Claim(ctx context.Context, patientID, doctorID uuid.UUID, date, rawTime, reason string) (*Appointment, error) {
	if _, err := s.repo.GetPatientByID(ctx, patientID); err != nil {
		if errors.Is(err, ErrPatientNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load patient: %w", err)
	}
	doctor, err := s.repo.GetDoctorByID(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load doctor: %w", err)
	}

	day, err := timeslot.ParseDate(date)
	if err != nil {
		return nil, err
	}
	slot, err := timeslot.Normalize(rawTime)
	if err != nil {
		return nil, err
	}

	// The past check runs on the doctor's wall clock, not the server's.
	now := clock.InZone(s.clk.Now(), doctor.Timezone)
	today := timeslot.DateOf(now)
	if day < today || (day == today && timeslot.Before(slot, timeslot.ClockOf(now))) {
		return nil, ErrPastSlot
	}

	published, err := s.slots.PublishedSlots(ctx, doctorID, day)
	if err != nil {
		if errors.Is(err, availability.ErrDayNotPublished) {
			return nil, ErrSlotNotPublished
		}
		return nil, fmt.Errorf("load published slots: %w", err)
	}
	if !containsNormalized(published, slot) {
		return nil, ErrSlotNotPublished
	}

	var created *Appointment

	err = s.locker.WithSlotLock(ctx, doctorID, day, slot, func(lockCtx context.Context) error {
		// Inside the critical section re-check for an occupying appointment.
		existing, err := s.repo.FindOccupying(lockCtx, doctorID, day, slot)
		if err != nil && !errors.Is(err, ErrAppointmentNotFound) {
			return fmt.Errorf("check occupying appointment: %w", err)
		}
		if existing != nil {
			return ErrSlotTaken
		}

		appt, err := s.repo.CreatePending(lockCtx, doctorID, patientID, day, slot, reason)
		if err != nil {
			return fmt.Errorf("create pending appointment: %w", err)
		}

		created = appt

		s.logEvent(lockCtx, appt.ID, EventAppointmentBooked, map[string]any{
			"doctor_id":  doctorID.String(),
			"patient_id": patientID.String(),
			"date":       day,
			"time":       slot,
		})

		return nil
	})

	if err != nil {
		if errors.Is(err, redisclient.ErrLockNotAcquired) {
			return nil, ErrSlotBeingBooked
		}
		if errors.Is(err, ErrSlotTaken) {
			return nil, ErrSlotTaken
		}
		return nil, err
	}

	s.notifier.Notify(ctx, doctorID, notify.EventBookingRequested, map[string]any{
		"appointment_id": created.ID.String(),
		"date":           created.Date,
		"time":           created.TimeSlot,
	})

	return created, nil
}

// Transition moves an appointment through the status state machine on
// behalf of an actor. Ownership failures report not-found so callers learn
// nothing about other people's appointments.
func (s *Service) Transition(ctx context.Context, actor Actor, id uuid.UUID, target Status, reason string) (*Appointment, error) {
	appt, err := s.getOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	if !CanTransition(appt.Status, target, actor.Role) {
		return nil, fmt.Errorf("%w: %s -> %s as %s", ErrInvalidTransition, appt.Status, target, actor.Role)
	}

	var cancellationReason *string
	if target == StatusPatientCancelled || target == StatusCancelled {
		if reason != "" {
			cancellationReason = &reason
		}
	}

	updated, err := s.repo.UpdateStatus(ctx, appt.ID, appt.Status, target, cancellationReason)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Status moved under us between the read and the CAS.
			return nil, ErrInvalidTransition
		}
		return nil, fmt.Errorf("update status: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventStatusChanged, map[string]any{
		"from":  string(appt.Status),
		"to":    string(target),
		"actor": string(actor.Role),
	})

	s.notifyTransition(ctx, updated, actor)

	return updated, nil
}

// AttachRating records a one-time rating and feedback on a completed
// appointment, by its patient.
func (s *Service) AttachRating(ctx context.Context, patientID uuid.UUID, id uuid.UUID, rating int, feedback string) (*Appointment, error) {
	if rating < 1 || rating > 5 {
		return nil, ErrInvalidRating
	}

	appt, err := s.getOwned(ctx, Actor{ID: patientID, Role: RolePatient}, id)
	if err != nil {
		return nil, err
	}
	if appt.Status != StatusCompleted {
		return nil, ErrRatingNotAllowed
	}
	if appt.Rating != nil {
		return nil, ErrRatingAlreadySet
	}

	updated, err := s.repo.AttachRating(ctx, appt.ID, rating, feedback)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			// Lost a race with another rating attempt.
			return nil, ErrRatingAlreadySet
		}
		return nil, fmt.Errorf("attach rating: %w", err)
	}

	s.logEvent(ctx, updated.ID, EventRatingAttached, map[string]any{
		"rating": rating,
	})

	return updated, nil
}

// Get returns an appointment if the actor owns it.
func (s *Service) Get(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	return s.getOwned(ctx, actor, id)
}

// ListForActor returns the caller's appointments, newest first.
func (s *Service) ListForActor(ctx context.Context, actor Actor, limit, offset int) ([]Appointment, error) {
	if limit <= 0 {
		limit = 20 // default
	}
	if limit > 100 {
		limit = 100 // max
	}
	if offset < 0 {
		offset = 0
	}

	switch actor.Role {
	case RoleDoctor:
		return s.repo.ListByDoctor(ctx, actor.ID, limit, offset)
	default:
		return s.repo.ListByPatient(ctx, actor.ID, limit, offset)
	}
}

func (s *Service) getOwned(ctx context.Context, actor Actor, id uuid.UUID) (*Appointment, error) {
	appt, err := s.repo.GetAppointmentByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrAppointmentNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("load appointment: %w", err)
	}

	switch actor.Role {
	case RoleDoctor:
		if appt.DoctorID != actor.ID {
			return nil, ErrAppointmentNotFound
		}
	case RolePatient:
		if appt.PatientID != actor.ID {
			return nil, ErrAppointmentNotFound
		}
	default:
		return nil, ErrAppointmentNotFound
	}

	return appt, nil
}

func (s *Service) notifyTransition(ctx context.Context, appt *Appointment, actor Actor) {
	payload := map[string]any{
		"appointment_id": appt.ID.String(),
		"status":         string(appt.Status),
		"date":           appt.Date,
		"time":           appt.TimeSlot,
	}

	var event string
	switch appt.Status {
	case StatusAccepted:
		event = notify.EventBookingAccepted
	case StatusConfirmed:
		event = notify.EventBookingConfirmed
	case StatusCompleted:
		event = notify.EventBookingCompleted
	case StatusCancelled, StatusPatientCancelled:
		event = notify.EventBookingCancelled
	default:
		return
	}

	// Tell the counterparty, not the actor who made the change.
	target := appt.PatientID
	if actor.Role == RolePatient {
		target = appt.DoctorID
	}
	s.notifier.Notify(ctx, target, event, payload)
}

func (s *Service) logEvent(ctx context.Context, appointmentID uuid.UUID, eventType string, payload map[string]any) {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Msg("marshal event payload")
		data = nil
	}

	apptID := appointmentID

	ev := EventLog{
		EventType:     eventType,
		AppointmentID: &apptID,
		Payload:       data,
	}

	if err := s.repo.InsertEvent(ctx, ev); err != nil {
		s.logger.Error().Err(err).
			Str("event", eventType).
			Str("appointment_id", appointmentID.String()).
			Msg("insert event log")
	}
}

func containsNormalized(slots []string, normalized string) bool {
	for _, s := range slots {
		n, err := timeslot.Normalize(s)
		if err != nil {
			continue
		}
		if n == normalized {
			return true
		}
	}
	return false
}
