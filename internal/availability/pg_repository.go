package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/carebook/booking-engine/internal/db"
)

type PgRepository struct {
	db db.Querier
}

func NewPgRepository(q db.Querier) *PgRepository {
	return &PgRepository{db: q}
}

func (r *PgRepository) DoctorTimezone(ctx context.Context, doctorID uuid.UUID) (string, error) {
	var tz string
	err := r.db.QueryRow(ctx, `
		SELECT timezone
		FROM doctors
		WHERE id = $1
	`, doctorID).Scan(&tz)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", ErrDoctorNotFound
		}
		return "", err
	}
	return tz, nil
}

// ReplaceDays overwrites the slot set per date and rebuilds the projection
// rows for exactly those dates, all inside one transaction.
func (r *PgRepository) ReplaceDays(ctx context.Context, doctorID uuid.UUID, days []Day) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin replace days: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, day := range days {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_days (doctor_id, date, slots, created_at, updated_at)
			VALUES ($1, $2, $3, now(), now())
			ON CONFLICT (doctor_id, date)
			DO UPDATE SET slots = EXCLUDED.slots, updated_at = now()
		`, doctorID, day.Date, day.Slots)
		if err != nil {
			return fmt.Errorf("upsert day %s: %w", day.Date, err)
		}

		_, err = tx.Exec(ctx, `
			DELETE FROM availability_slots
			WHERE doctor_id = $1 AND date = $2
		`, doctorID, day.Date)
		if err != nil {
			return fmt.Errorf("clear projection %s: %w", day.Date, err)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO availability_slots (doctor_id, date, available_slots, rebuilt_at)
			VALUES ($1, $2, $3, now())
		`, doctorID, day.Date, day.Slots)
		if err != nil {
			return fmt.Errorf("rebuild projection %s: %w", day.Date, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit replace days: %w", err)
	}
	return nil
}

func (r *PgRepository) Days(ctx context.Context, doctorID uuid.UUID) ([]Day, error) {
	rows, err := r.db.Query(ctx, `
		SELECT date, slots
		FROM availability_days
		WHERE doctor_id = $1
		ORDER BY date
	`, doctorID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var days []Day
	for rows.Next() {
		var d Day
		if err := rows.Scan(&d.Date, &d.Slots); err != nil {
			return nil, err
		}
		days = append(days, d)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(days) == 0 {
		return nil, ErrAvailabilityNotFound
	}
	return days, nil
}

func (r *PgRepository) DeleteDay(ctx context.Context, doctorID uuid.UUID, date string) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin delete day: %w", err)
	}
	defer tx.Rollback(ctx)

	tag, err := tx.Exec(ctx, `
		DELETE FROM availability_days
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	if err != nil {
		return fmt.Errorf("delete day: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrDayNotPublished
	}

	_, err = tx.Exec(ctx, `
		DELETE FROM availability_slots
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date)
	if err != nil {
		return fmt.Errorf("delete projection: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delete day: %w", err)
	}
	return nil
}

// PublishedSlots prefers the projection row but treats it as advisory: a
// missing projection falls back to the authoritative day row.
func (r *PgRepository) PublishedSlots(ctx context.Context, doctorID uuid.UUID, date string) ([]string, error) {
	var slots []string
	err := r.db.QueryRow(ctx, `
		SELECT available_slots
		FROM availability_slots
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date).Scan(&slots)
	if err == nil {
		return slots, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return nil, err
	}

	err = r.db.QueryRow(ctx, `
		SELECT slots
		FROM availability_days
		WHERE doctor_id = $1 AND date = $2
	`, doctorID, date).Scan(&slots)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrDayNotPublished
		}
		return nil, err
	}
	return slots, nil
}
