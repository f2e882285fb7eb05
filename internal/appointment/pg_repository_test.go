package appointment

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var appointmentCols = []string{
	"id", "doctor_id", "patient_id", "date", "time_slot", "status", "reason",
	"cancellation_reason", "rating", "feedback", "created_at", "updated_at",
}

func appointmentRow(id, doctorID, patientID uuid.UUID, status Status) *pgxmock.Rows {
	now := time.Now()
	return pgxmock.NewRows(appointmentCols).AddRow(
		id, doctorID, patientID, "2025-03-10", "09:00", status, "checkup",
		nil, nil, nil, now, now,
	)
}

func TestCreatePendingMapsConstraintViolation(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), doctorID, patientID, "2025-03-10", "09:00", "checkup").
		WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: activeSlotConstraint})

	repo := NewPgRepository(mock)
	_, err = repo.CreatePending(context.Background(), doctorID, patientID, "2025-03-10", "09:00", "checkup")
	assert.ErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingPassesThroughOtherErrors(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), doctorID, patientID, "2025-03-10", "09:00", "checkup").
		WillReturnError(&pgconn.PgError{Code: "23503", ConstraintName: "appointments_doctor_id_fkey"})

	repo := NewPgRepository(mock)
	_, err = repo.CreatePending(context.Background(), doctorID, patientID, "2025-03-10", "09:00", "checkup")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrSlotTaken)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCreatePendingReturnsRow(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()
	doctorID := uuid.New()
	patientID := uuid.New()

	mock.ExpectQuery("INSERT INTO appointments").
		WithArgs(pgxmock.AnyArg(), doctorID, patientID, "2025-03-10", "09:00", "checkup").
		WillReturnRows(appointmentRow(id, doctorID, patientID, StatusPending))

	repo := NewPgRepository(mock)
	appt, err := repo.CreatePending(context.Background(), doctorID, patientID, "2025-03-10", "09:00", "checkup")
	require.NoError(t, err)
	assert.Equal(t, id, appt.ID)
	assert.Equal(t, StatusPending, appt.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUpdateStatusLostCAS(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()

	// No row still in `pending`: the compare-and-set found nothing to move.
	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, StatusAccepted, StatusPending, (*string)(nil)).
		WillReturnError(pgx.ErrNoRows)

	repo := NewPgRepository(mock)
	_, err = repo.UpdateStatus(context.Background(), id, StatusPending, StatusAccepted, nil)
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOccupiedTimes(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()

	mock.ExpectQuery("SELECT time_slot").
		WithArgs(doctorID, "2025-03-10", occupyingStatusStrings()).
		WillReturnRows(pgxmock.NewRows([]string{"time_slot"}).AddRow("09:00").AddRow("14:00"))

	repo := NewPgRepository(mock)
	times, err := repo.OccupiedTimes(context.Background(), doctorID, "2025-03-10")
	require.NoError(t, err)
	assert.Equal(t, []string{"09:00", "14:00"}, times)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFindOccupyingNone(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	doctorID := uuid.New()

	mock.ExpectQuery("SELECT(.|\n)+FROM appointments").
		WithArgs(doctorID, "2025-03-10", "09:00", occupyingStatusStrings()).
		WillReturnError(pgx.ErrNoRows)

	repo := NewPgRepository(mock)
	_, err = repo.FindOccupying(context.Background(), doctorID, "2025-03-10", "09:00")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAttachRatingConditional(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	id := uuid.New()

	mock.ExpectQuery("UPDATE appointments").
		WithArgs(id, 5, "great visit").
		WillReturnError(pgx.ErrNoRows)

	repo := NewPgRepository(mock)
	_, err = repo.AttachRating(context.Background(), id, 5, "great visit")
	assert.ErrorIs(t, err, ErrAppointmentNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
