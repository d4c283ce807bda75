package storage

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/tutorbook/libs/db"
	"github.com/md-rashed-zaman/tutorbook/services/booking-service/internal/model"
)

const accountColumns = `id, email, password_hash, role, display_name, created_at`

type AccountRepository struct {
	pool *db.Pool
}

func NewAccountRepository(pool *db.Pool) *AccountRepository {
	return &AccountRepository{pool: pool}
}

func (r *AccountRepository) Create(ctx context.Context, a model.Account) (model.Account, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	created, err := scanAccount(r.pool.QueryRow(ctx, `
		INSERT INTO accounts (id, email, password_hash, role, display_name)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING `+accountColumns,
		a.ID, strings.ToLower(strings.TrimSpace(a.Email)), a.PasswordHash, string(a.Role), a.DisplayName))
	if db.HasCode(err, db.CodeUniqueViolation) {
		return model.Account{}, ErrDuplicate
	}
	return created, err
}

func (r *AccountRepository) GetByEmail(ctx context.Context, email string) (model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `
		SELECT `+accountColumns+` FROM accounts WHERE lower(email) = lower($1)
	`, strings.TrimSpace(email)))
	if db.IsNoRows(err) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}

func (r *AccountRepository) GetByID(ctx context.Context, id string) (model.Account, error) {
	a, err := scanAccount(r.pool.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if db.IsNoRows(err) {
		return model.Account{}, ErrNotFound
	}
	return a, err
}

func scanAccount(row rowScanner) (model.Account, error) {
	var (
		a    model.Account
		role string
	)
	if err := row.Scan(&a.ID, &a.Email, &a.PasswordHash, &role, &a.DisplayName, &a.CreatedAt); err != nil {
		return model.Account{}, err
	}
	a.Role = model.Role(role)
	return a, nil
}
