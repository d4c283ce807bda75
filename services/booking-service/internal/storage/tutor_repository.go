package storage

import (
	"context"

	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

const tutorColumns = `id, display_name, bio, subjects, hourly_rate_cents, currency, rating, timezone, created_at`

type TutorRepository struct {
	pool *db.Pool
}

func NewTutorRepository(pool *db.Pool) *TutorRepository {
	return &TutorRepository{pool: pool}
}

// List returns every tutor profile. Filtering and ordering belong to the
// catalog package.
func (r *TutorRepository) List(ctx context.Context) ([]model.Tutor, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+tutorColumns+` FROM tutors`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tutors []model.Tutor
	for rows.Next() {
		t, err := scanTutor(rows)
		if err != nil {
			return nil, err
		}
		tutors = append(tutors, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return tutors, nil
}

func (r *TutorRepository) Get(ctx context.Context, id string) (model.Tutor, error) {
	t, err := scanTutor(r.pool.QueryRow(ctx, `SELECT `+tutorColumns+` FROM tutors WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return model.Tutor{}, ErrNotFound
	}
	return t, err
}

// Upsert creates or replaces the editable part of a profile. Rating is
// never written here.
func (r *TutorRepository) Upsert(ctx context.Context, t model.Tutor) (model.Tutor, error) {
	subjects := t.Subjects
	if subjects == nil {
		subjects = []string{}
	}
	return scanTutor(r.pool.QueryRow(ctx, `
		INSERT INTO tutors (id, display_name, bio, subjects, hourly_rate_cents, currency, timezone)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO UPDATE SET
			display_name = EXCLUDED.display_name,
			bio = EXCLUDED.bio,
			subjects = EXCLUDED.subjects,
			hourly_rate_cents = EXCLUDED.hourly_rate_cents,
			currency = EXCLUDED.currency,
			timezone = EXCLUDED.timezone,
			updated_at = now()
		RETURNING `+tutorColumns,
		t.ID, t.DisplayName, t.Bio, subjects, t.HourlyRateCents, t.Currency, t.Timezone))
}

func scanTutor(row rowScanner) (model.Tutor, error) {
	var t model.Tutor
	err := row.Scan(
		&t.ID,
		&t.DisplayName,
		&t.Bio,
		&t.Subjects,
		&t.HourlyRateCents,
		&t.Currency,
		&t.Rating,
		&t.Timezone,
		&t.CreatedAt,
	)
	if err != nil {
		return model.Tutor{}, err
	}
	t.AccountID = t.ID
	return t, nil
}
