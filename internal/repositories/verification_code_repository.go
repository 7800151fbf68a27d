package repositories

import (
	"context"

	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/poofware/verification-service/internal/models"
)

type VerificationCodeRepository interface {
	CreateCode(ctx context.Context, code *models.VerificationCode) error
	// ConsumeCode atomically flips the newest valid matching code to consumed
	// and returns it. A nil code with a nil error means nothing matched.
	ConsumeCode(ctx context.Context, phoneNumber, code string) (*models.VerificationCode, error)
	ListRecent(ctx context.Context, phoneNumber string, limit int) ([]*models.VerificationCode, error)
}

type verificationCodeRepository struct {
	db DB
}

func NewVerificationCodeRepository(db DB) VerificationCodeRepository {
	return &verificationCodeRepository{db: db}
}

const verificationCodeColumns = `id, phone_number, code, ip_address, created_at, expires_at, consumed, consumed_at`

func (r *verificationCodeRepository) CreateCode(ctx context.Context, c *models.VerificationCode) error {
	q := `
        INSERT INTO verification_codes
            (id, phone_number, code, ip_address, created_at, expires_at, consumed)
        VALUES ($1, $2, $3, $4, $5, $6, FALSE)
    `
	_, err := r.db.Exec(ctx, q, c.ID, c.PhoneNumber, c.Code, c.IPAddress, c.CreatedAt, c.ExpiresAt)
	return err
}

func (r *verificationCodeRepository) ConsumeCode(ctx context.Context, phoneNumber, code string) (*models.VerificationCode, error) {
	q := `
        UPDATE verification_codes
        SET consumed = TRUE,
            consumed_at = NOW()
        WHERE id = (
            SELECT id
            FROM verification_codes
            WHERE phone_number = $1
              AND code = $2
              AND consumed = FALSE
              AND expires_at > NOW()
            ORDER BY created_at DESC
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
          AND consumed = FALSE
        RETURNING ` + verificationCodeColumns

	rec, err := scanVerificationCode(r.db.QueryRow(ctx, q, phoneNumber, code))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *verificationCodeRepository) ListRecent(ctx context.Context, phoneNumber string, limit int) ([]*models.VerificationCode, error) {
	q := `
        SELECT ` + verificationCodeColumns + `
        FROM verification_codes
        WHERE phone_number = $1
        ORDER BY created_at DESC
        LIMIT $2
    `
	rows, err := r.db.Query(ctx, q, phoneNumber, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.VerificationCode
	for rows.Next() {
		rec, err := scanVerificationCode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func scanVerificationCode(row pgx.Row) (*models.VerificationCode, error) {
	var (
		rec        models.VerificationCode
		consumedAt pgtype.Timestamptz
	)
	err := row.Scan(
		&rec.ID,
		&rec.PhoneNumber,
		&rec.Code,
		&rec.IPAddress,
		&rec.CreatedAt,
		&rec.ExpiresAt,
		&rec.Consumed,
		&consumedAt,
	)
	if err != nil {
		return nil, err
	}
	if consumedAt.Status == pgtype.Present {
		rec.ConsumedAt = &consumedAt.Time
	}
	return &rec, nil
}
