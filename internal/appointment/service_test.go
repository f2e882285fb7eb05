package appointment

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebook/booking-engine/internal/availability"
	"github.com/carebook/booking-engine/internal/clock"
	"github.com/carebook/booking-engine/internal/notify"
	"github.com/carebook/booking-engine/internal/timeslot"
)

// memoryRepo emulates the Postgres repository, including the partial unique
// index on the occupying tuple, so conflict behavior can be exercised
// without a database.
type memoryRepo struct {
	mu           sync.Mutex
	doctors      map[uuid.UUID]*Doctor
	patients     map[uuid.UUID]*Patient
	appointments map[uuid.UUID]*Appointment
	events       []EventLog
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		doctors:      make(map[uuid.UUID]*Doctor),
		patients:     make(map[uuid.UUID]*Patient),
		appointments: make(map[uuid.UUID]*Appointment),
	}
}

func (m *memoryRepo) GetDoctorByID(_ context.Context, id uuid.UUID) (*Doctor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.doctors[id]
	if !ok {
		return nil, ErrDoctorNotFound
	}
	return d, nil
}

func (m *memoryRepo) GetPatientByID(_ context.Context, id uuid.UUID) (*Patient, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.patients[id]
	if !ok {
		return nil, ErrPatientNotFound
	}
	return p, nil
}

func (m *memoryRepo) GetAppointmentByID(_ context.Context, id uuid.UUID) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok {
		return nil, ErrAppointmentNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) findOccupyingLocked(doctorID uuid.UUID, date, timeSlot string) *Appointment {
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.TimeSlot == timeSlot && a.Status.Occupying() {
			return a
		}
	}
	return nil
}

func (m *memoryRepo) FindOccupying(_ context.Context, doctorID uuid.UUID, date, timeSlot string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if a := m.findOccupyingLocked(doctorID, date, timeSlot); a != nil {
		cp := *a
		return &cp, nil
	}
	return nil, ErrAppointmentNotFound
}

func (m *memoryRepo) OccupiedTimes(_ context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var times []string
	for _, a := range m.appointments {
		if a.DoctorID == doctorID && a.Date == date && a.Status.Occupying() {
			times = append(times, a.TimeSlot)
		}
	}
	return times, nil
}

func (m *memoryRepo) CreatePending(_ context.Context, doctorID, patientID uuid.UUID, date, timeSlot, reason string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	// The partial unique index: one occupying row per tuple.
	if m.findOccupyingLocked(doctorID, date, timeSlot) != nil {
		return nil, ErrSlotTaken
	}
	now := time.Now()
	a := &Appointment{
		ID:        uuid.New(),
		DoctorID:  doctorID,
		PatientID: patientID,
		Date:      date,
		TimeSlot:  timeSlot,
		Status:    StatusPending,
		Reason:    reason,
		CreatedAt: now,
		UpdatedAt: now,
	}
	m.appointments[a.ID] = a
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) UpdateStatus(_ context.Context, id uuid.UUID, from, to Status, cancellationReason *string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != from {
		return nil, ErrAppointmentNotFound
	}
	a.Status = to
	if cancellationReason != nil {
		a.CancellationReason = cancellationReason
	}
	a.UpdatedAt = time.Now()
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) AttachRating(_ context.Context, id uuid.UUID, rating int, feedback string) (*Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.appointments[id]
	if !ok || a.Status != StatusCompleted || a.Rating != nil {
		return nil, ErrAppointmentNotFound
	}
	a.Rating = &rating
	a.Feedback = &feedback
	cp := *a
	return &cp, nil
}

func (m *memoryRepo) ListByPatient(_ context.Context, patientID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.PatientID == patientID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryRepo) ListByDoctor(_ context.Context, doctorID uuid.UUID, limit, offset int) ([]Appointment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Appointment
	for _, a := range m.appointments {
		if a.DoctorID == doctorID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (m *memoryRepo) InsertEvent(_ context.Context, ev EventLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, ev)
	return nil
}

// memoryLocker serializes claims per slot key the way the Redis locker does,
// but blocking instead of failing on contention so races resolve into clean
// conflicts in tests.
type memoryLocker struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newMemoryLocker() *memoryLocker {
	return &memoryLocker{locks: make(map[string]*sync.Mutex)}
}

func (l *memoryLocker) WithSlotLock(ctx context.Context, doctorID uuid.UUID, date, timeSlot string, fn func(ctx context.Context) error) error {
	key := doctorID.String() + ":" + date + ":" + timeSlot
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	defer m.Unlock()
	return fn(ctx)
}

type staticSlots struct {
	byDate map[string][]string
}

func (s staticSlots) PublishedSlots(_ context.Context, _ uuid.UUID, date string) ([]string, error) {
	slots, ok := s.byDate[date]
	if !ok {
		return nil, availability.ErrDayNotPublished
	}
	return slots, nil
}

type fixture struct {
	repo      *memoryRepo
	svc       *Service
	doctorID  uuid.UUID
	patientID uuid.UUID
}

var fixtureNow = time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

func newFixture(t *testing.T, slots map[string][]string, now time.Time) *fixture {
	t.Helper()
	repo := newMemoryRepo()
	doctorID := uuid.New()
	patientID := uuid.New()
	repo.doctors[doctorID] = &Doctor{ID: doctorID, Name: "Dr. Test", Timezone: "UTC"}
	repo.patients[patientID] = &Patient{ID: patientID, Name: "Pat Test"}

	svc := NewService(repo, staticSlots{byDate: slots}, newMemoryLocker(), notify.Noop{}, clock.Fixed{At: now}, zerolog.Nop())
	return &fixture{repo: repo, svc: svc, doctorID: doctorID, patientID: patientID}
}

func TestClaimCreatesPendingAppointment(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00", "09:30"}}, fixtureNow)

	appt, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "9:00 AM", "checkup")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, appt.Status)
	assert.Equal(t, "09:00", appt.TimeSlot)
	assert.Equal(t, "2025-03-10", appt.Date)
	assert.Equal(t, "checkup", appt.Reason)
	require.Len(t, f.repo.events, 1)
	assert.Equal(t, EventAppointmentBooked, f.repo.events[0].EventType)
}

func TestClaimSameSlotConflicts(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)
	otherPatient := uuid.New()
	f.repo.patients[otherPatient] = &Patient{ID: otherPatient, Name: "Other"}

	_, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "first")
	require.NoError(t, err)

	// Same instant in the other format still conflicts.
	_, err = f.svc.Claim(context.Background(), otherPatient, f.doctorID, "2025-03-10", "9:00 AM", "second")
	assert.ErrorIs(t, err, ErrSlotTaken)
}

func TestClaimConcurrentSingleWinner(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)

	const callers = 50
	patients := make([]uuid.UUID, callers)
	for i := range patients {
		id := uuid.New()
		patients[i] = id
		f.repo.patients[id] = &Patient{ID: id, Name: "Racer"}
	}

	var wg sync.WaitGroup
	errs := make([]error, callers)
	start := make(chan struct{})
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			<-start
			_, errs[i] = f.svc.Claim(context.Background(), patients[i], f.doctorID, "2025-03-10", "09:00", "race")
		}(i)
	}
	close(start)
	wg.Wait()

	successes := 0
	for _, err := range errs {
		if err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrSlotTaken)
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent claim may win")
}

func TestClaimUnpublishedSlot(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)

	_, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "10:00", "walk-in")
	assert.ErrorIs(t, err, ErrSlotNotPublished)

	_, err = f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-04-01", "09:00", "walk-in")
	assert.ErrorIs(t, err, ErrSlotNotPublished)
}

func TestClaimPastSlot(t *testing.T) {
	now := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)
	f := newFixture(t, map[string][]string{
		"2025-03-09": {"09:00"},
		"2025-03-10": {"09:00", "14:00"},
	}, now)

	_, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-09", "09:00", "too late")
	assert.ErrorIs(t, err, ErrPastSlot)

	_, err = f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "earlier today")
	assert.ErrorIs(t, err, ErrPastSlot)

	_, err = f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "14:00", "later today")
	assert.NoError(t, err)
}

func TestClaimPastSlotInDoctorTimezone(t *testing.T) {
	// 2025-03-09 20:00 UTC is 2025-03-10 01:30 in Kolkata: the doctor's
	// day has already rolled over, so the 01:00 slot is in the past for
	// them even though a UTC clock would call it tomorrow.
	now := time.Date(2025, 3, 9, 20, 0, 0, 0, time.UTC)
	f := newFixture(t, map[string][]string{
		"2025-03-10": {"01:00", "09:00"},
	}, now)
	f.repo.doctors[f.doctorID].Timezone = "Asia/Kolkata"

	_, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "01:00", "night owl")
	assert.ErrorIs(t, err, ErrPastSlot)

	_, err = f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "morning")
	assert.NoError(t, err)
}

func TestClaimValidation(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)

	_, err := f.svc.Claim(context.Background(), uuid.New(), f.doctorID, "2025-03-10", "09:00", "x")
	assert.ErrorIs(t, err, ErrPatientNotFound)

	_, err = f.svc.Claim(context.Background(), f.patientID, uuid.New(), "2025-03-10", "09:00", "x")
	assert.ErrorIs(t, err, ErrDoctorNotFound)

	_, err = f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "nine sharp", "x")
	assert.ErrorIs(t, err, timeslot.ErrMalformedTime)
}

func TestCancelledSlotCanBeRebooked(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)
	otherPatient := uuid.New()
	f.repo.patients[otherPatient] = &Patient{ID: otherPatient, Name: "Other"}

	first, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "first")
	require.NoError(t, err)

	_, err = f.svc.Claim(context.Background(), otherPatient, f.doctorID, "2025-03-10", "09:00", "blocked")
	require.ErrorIs(t, err, ErrSlotTaken)

	_, err = f.svc.Transition(context.Background(), Actor{ID: f.doctorID, Role: RoleDoctor}, first.ID, StatusCancelled, "")
	require.NoError(t, err)

	second, err := f.svc.Claim(context.Background(), otherPatient, f.doctorID, "2025-03-10", "09:00", "rebooked")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, second.Status)

	// The cancelled record survives as history.
	kept, err := f.repo.GetAppointmentByID(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusCancelled, kept.Status)
}

func TestTransitionLifecycle(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)
	doctor := Actor{ID: f.doctorID, Role: RoleDoctor}

	appt, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "visit")
	require.NoError(t, err)

	accepted, err := f.svc.Transition(context.Background(), doctor, appt.ID, StatusAccepted, "")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, accepted.Status)

	completed, err := f.svc.Transition(context.Background(), doctor, appt.ID, StatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, completed.Status)

	// Terminal: every further transition fails.
	for _, target := range []Status{StatusAccepted, StatusCancelled, StatusCompleted} {
		_, err := f.svc.Transition(context.Background(), doctor, appt.ID, target, "")
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	patient := Actor{ID: f.patientID, Role: RolePatient}
	_, err = f.svc.Transition(context.Background(), patient, appt.ID, StatusPatientCancelled, "changed plans")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestPatientCancelCapturesReason(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)
	patient := Actor{ID: f.patientID, Role: RolePatient}

	appt, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "visit")
	require.NoError(t, err)

	cancelled, err := f.svc.Transition(context.Background(), patient, appt.ID, StatusPatientCancelled, "schedule conflict")
	require.NoError(t, err)
	assert.Equal(t, StatusPatientCancelled, cancelled.Status)
	require.NotNil(t, cancelled.CancellationReason)
	assert.Equal(t, "schedule conflict", *cancelled.CancellationReason)
}

func TestTransitionActorRestrictions(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)
	patient := Actor{ID: f.patientID, Role: RolePatient}
	doctor := Actor{ID: f.doctorID, Role: RoleDoctor}

	appt, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "visit")
	require.NoError(t, err)

	_, err = f.svc.Transition(context.Background(), patient, appt.ID, StatusCompleted, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)

	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusPatientCancelled, "")
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestTransitionOwnershipMasksExistence(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)

	appt, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "visit")
	require.NoError(t, err)

	stranger := Actor{ID: uuid.New(), Role: RoleDoctor}
	_, err = f.svc.Transition(context.Background(), stranger, appt.ID, StatusAccepted, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)

	otherPatient := Actor{ID: uuid.New(), Role: RolePatient}
	_, err = f.svc.Transition(context.Background(), otherPatient, appt.ID, StatusPatientCancelled, "")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
}

func TestAttachRating(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)
	doctor := Actor{ID: f.doctorID, Role: RoleDoctor}

	appt, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "visit")
	require.NoError(t, err)

	// Not completed yet.
	_, err = f.svc.AttachRating(context.Background(), f.patientID, appt.ID, 5, "great")
	assert.ErrorIs(t, err, ErrRatingNotAllowed)

	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusConfirmed, "")
	require.NoError(t, err)
	_, err = f.svc.Transition(context.Background(), doctor, appt.ID, StatusCompleted, "")
	require.NoError(t, err)

	_, err = f.svc.AttachRating(context.Background(), f.patientID, appt.ID, 0, "bad value")
	assert.ErrorIs(t, err, ErrInvalidRating)

	rated, err := f.svc.AttachRating(context.Background(), f.patientID, appt.ID, 5, "great")
	require.NoError(t, err)
	require.NotNil(t, rated.Rating)
	assert.Equal(t, 5, *rated.Rating)

	// One-time only.
	_, err = f.svc.AttachRating(context.Background(), f.patientID, appt.ID, 4, "again")
	assert.ErrorIs(t, err, ErrRatingAlreadySet)
}

func TestListForActorClampsPaging(t *testing.T) {
	f := newFixture(t, map[string][]string{"2025-03-10": {"09:00"}}, fixtureNow)

	_, err := f.svc.Claim(context.Background(), f.patientID, f.doctorID, "2025-03-10", "09:00", "visit")
	require.NoError(t, err)

	list, err := f.svc.ListForActor(context.Background(), Actor{ID: f.patientID, Role: RolePatient}, -5, -3)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	list, err = f.svc.ListForActor(context.Background(), Actor{ID: f.doctorID, Role: RoleDoctor}, 0, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
