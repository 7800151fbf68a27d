package repositories

import (
	"context"

	"github.com/jackc/pgx/v4"

	"github.com/poofware/verification-service/internal/models"
)

type ProfileRepository interface {
	GetByID(ctx context.Context, id string) (*models.Profile, error)
	// GetByPhoneNumber returns the most recently updated profile carrying the
	// phone number, or nil.
	GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Profile, error)
	Upsert(ctx context.Context, id, phoneNumber string, isPrivileged bool) error
}

type profileRepository struct {
	db DB
}

func NewProfileRepository(db DB) ProfileRepository {
	return &profileRepository{db: db}
}

func (r *profileRepository) GetByID(ctx context.Context, id string) (*models.Profile, error) {
	q := `SELECT id, phone_number, is_privileged, updated_at FROM profiles WHERE id = $1`
	return scanProfile(r.db.QueryRow(ctx, q, id))
}

func (r *profileRepository) GetByPhoneNumber(ctx context.Context, phoneNumber string) (*models.Profile, error) {
	q := `
        SELECT id, phone_number, is_privileged, updated_at
        FROM profiles
        WHERE phone_number = $1
        ORDER BY updated_at DESC
        LIMIT 1
    `
	return scanProfile(r.db.QueryRow(ctx, q, phoneNumber))
}

func (r *profileRepository) Upsert(ctx context.Context, id, phoneNumber string, isPrivileged bool) error {
	q := `
        INSERT INTO profiles (id, phone_number, is_privileged, updated_at)
        VALUES ($1, $2, $3, NOW())
        ON CONFLICT (id) DO UPDATE
        SET phone_number = EXCLUDED.phone_number,
            is_privileged = EXCLUDED.is_privileged,
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, q, id, phoneNumber, isPrivileged)
	return err
}

func scanProfile(row pgx.Row) (*models.Profile, error) {
	var p models.Profile
	if err := row.Scan(&p.ID, &p.PhoneNumber, &p.IsPrivileged, &p.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}
