package availability

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/carebook/booking-engine/internal/clock"
	"github.com/carebook/booking-engine/internal/timeslot"
)

var (
	ErrPastDate = errors.New("cannot publish slots for past dates")
	ErrNoDays   = errors.New("at least one day is required")
)

// OccupancyReader reports which times on a date are held by a live
// appointment. Implemented by the appointment repository.
type OccupancyReader interface {
	OccupiedTimes(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error)
}

type Service struct {
	repo      Repository
	occupancy OccupancyReader
	clk       clock.Clock
	logger    zerolog.Logger
}

func NewService(repo Repository, occupancy OccupancyReader, clk clock.Clock, logger zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		occupancy: occupancy,
		clk:       clk,
		logger:    logger,
	}
}

// Publish overwrites the slot sets for the submitted dates. Each date is a
// full replacement; appointments already booked on those dates are untouched.
func (s *Service) Publish(ctx context.Context, doctorID uuid.UUID, days []DayInput) (*Availability, error) {
	if len(days) == 0 {
		return nil, ErrNoDays
	}

	now, err := s.doctorNow(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	today := timeslot.DateOf(now)

	normalized := make([]Day, 0, len(days))
	for _, in := range days {
		date, err := timeslot.ParseDate(in.Date)
		if err != nil {
			return nil, err
		}
		if date < today {
			return nil, fmt.Errorf("%w: %s", ErrPastDate, date)
		}
		slots, err := timeslot.NormalizeAll(in.Slots)
		if err != nil {
			return nil, err
		}
		normalized = append(normalized, Day{Date: date, Slots: slots})
	}

	if err := s.repo.ReplaceDays(ctx, doctorID, normalized); err != nil {
		return nil, fmt.Errorf("replace days: %w", err)
	}

	s.logger.Info().
		Str("doctor_id", doctorID.String()).
		Int("days", len(normalized)).
		Msg("availability published")

	return s.Raw(ctx, doctorID)
}

// ReplaceDate overwrites a single date's slot set, creating the date entry
// when absent. An empty slot list is allowed and clears the date.
func (s *Service) ReplaceDate(ctx context.Context, doctorID uuid.UUID, date string, slots []string) (*Availability, error) {
	return s.Publish(ctx, doctorID, []DayInput{{Date: date, Slots: slots}})
}

// Raw returns the unfiltered published calendar. Owner management view only;
// booking flows go through VisibleSlots.
func (s *Service) Raw(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	days, err := s.repo.Days(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return &Availability{DoctorID: doctorID, Days: days}, nil
}

// RemoveDate deletes a date entry and its projection. Appointments already
// booked for that date stay valid; removal only blocks new claims.
func (s *Service) RemoveDate(ctx context.Context, doctorID uuid.UUID, date string) error {
	d, err := timeslot.ParseDate(date)
	if err != nil {
		return err
	}
	return s.repo.DeleteDay(ctx, doctorID, d)
}

// VisibleSlots computes which published slots are still offerable to a new
// patient right now: published minus occupied, minus already-elapsed times
// when the date is today. "Today" is the doctor's today, not the server's.
// Publish order is preserved.
func (s *Service) VisibleSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	now, err := s.doctorNow(ctx, doctorID)
	if err != nil {
		return nil, err
	}
	return s.visibleSlotsAt(ctx, doctorID, date, now)
}

func (s *Service) visibleSlotsAt(ctx context.Context, doctorID uuid.UUID, date string, now time.Time) ([]string, error) {
	d, err := timeslot.ParseDate(date)
	if err != nil {
		return nil, err
	}

	today := timeslot.DateOf(now)
	if d < today {
		return []string{}, nil
	}

	published, err := s.repo.PublishedSlots(ctx, doctorID, d)
	if err != nil {
		if errors.Is(err, ErrDayNotPublished) {
			return []string{}, nil
		}
		return nil, err
	}

	occupied, err := s.occupancy.OccupiedTimes(ctx, doctorID, d)
	if err != nil {
		return nil, fmt.Errorf("load occupied times: %w", err)
	}

	taken := make(map[string]struct{}, len(occupied))
	for _, raw := range occupied {
		norm, err := timeslot.Normalize(raw)
		if err != nil {
			// A stored label that no longer parses still blocks nothing;
			// log it rather than failing the whole read.
			s.logger.Warn().Str("time", raw).Msg("skipping unparseable appointment time")
			continue
		}
		taken[norm] = struct{}{}
	}

	cutoff := ""
	if d == today {
		cutoff = timeslot.ClockOf(now)
	}

	visible := make([]string, 0, len(published))
	for _, slot := range published {
		norm, err := timeslot.Normalize(slot)
		if err != nil {
			continue
		}
		if _, booked := taken[norm]; booked {
			continue
		}
		if cutoff != "" && timeslot.Before(norm, cutoff) {
			continue
		}
		visible = append(visible, slot)
	}
	return visible, nil
}

// VisibleCalendar returns every published day with its slots filtered
// through VisibleSlots. Days whose slots are all taken are kept with an
// empty list so the caller can still render the date.
func (s *Service) VisibleCalendar(ctx context.Context, doctorID uuid.UUID) (*Availability, error) {
	now, err := s.doctorNow(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	days, err := s.repo.Days(ctx, doctorID)
	if err != nil {
		return nil, err
	}

	filtered := make([]Day, 0, len(days))
	for _, day := range days {
		visible, err := s.visibleSlotsAt(ctx, doctorID, day.Date, now)
		if err != nil {
			return nil, err
		}
		filtered = append(filtered, Day{Date: day.Date, Slots: visible})
	}
	return &Availability{DoctorID: doctorID, Days: filtered}, nil
}

// doctorNow is the current instant in the doctor's own timezone. Every
// "today" and elapsed-time decision goes through it, and it doubles as the
// doctor existence check.
func (s *Service) doctorNow(ctx context.Context, doctorID uuid.UUID) (time.Time, error) {
	tz, err := s.repo.DoctorTimezone(ctx, doctorID)
	if err != nil {
		if errors.Is(err, ErrDoctorNotFound) {
			return time.Time{}, err
		}
		return time.Time{}, fmt.Errorf("load doctor: %w", err)
	}
	return clock.InZone(s.clk.Now(), tz), nil
}
