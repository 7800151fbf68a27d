package repositories

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgtype"
	"github.com/jackc/pgx/v4"

	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/utils"
)

// AccountRepository is the storage behind the built-in identity provider.
type AccountRepository interface {
	// Create inserts acc, assigning an id when empty. A taken email yields
	// utils.ErrEmailAlreadyExists.
	Create(ctx context.Context, acc *models.Account) error
	GetByID(ctx context.Context, id string) (*models.Account, error)
	GetByEmail(ctx context.Context, email string) (*models.Account, error)
	// List pages through accounts ordered by creation; page starts at 1.
	List(ctx context.Context, page, perPage int) ([]*models.Account, error)
	UpdatePasswordHash(ctx context.Context, id, passwordHash string) error
	MergeMetadata(ctx context.Context, id string, metadata map[string]any) error
	TouchLastSignIn(ctx context.Context, id string) error
}

type accountRepository struct {
	db DB
}

func NewAccountRepository(db DB) AccountRepository {
	return &accountRepository{db: db}
}

const accountColumns = `id, email, password_hash, email_confirmed, managed_credential,
               user_metadata, created_at, updated_at, last_sign_in_at`

func (r *accountRepository) Create(ctx context.Context, acc *models.Account) error {
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	meta, err := json.Marshal(nonNilMetadata(acc.UserMetadata))
	if err != nil {
		return fmt.Errorf("encode user metadata: %w", err)
	}

	q := `
        INSERT INTO accounts
            (id, email, password_hash, email_confirmed, managed_credential, user_metadata, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6::jsonb, NOW(), NOW())
        RETURNING created_at, updated_at
    `
	err = r.db.QueryRow(ctx, q,
		acc.ID,
		acc.Email,
		acc.PasswordHash,
		acc.EmailConfirmed,
		acc.ManagedCredential,
		string(meta),
	).Scan(&acc.CreatedAt, &acc.UpdatedAt)
	if isUniqueViolation(err) {
		return utils.ErrEmailAlreadyExists
	}
	return err
}

func (r *accountRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, q, id))
}

func (r *accountRepository) GetByEmail(ctx context.Context, email string) (*models.Account, error) {
	q := `SELECT ` + accountColumns + ` FROM accounts WHERE LOWER(email) = LOWER($1)`
	return scanAccount(r.db.QueryRow(ctx, q, email))
}

func (r *accountRepository) List(ctx context.Context, page, perPage int) ([]*models.Account, error) {
	if page < 1 {
		page = 1
	}
	q := `
        SELECT ` + accountColumns + `
        FROM accounts
        ORDER BY created_at, id
        LIMIT $1 OFFSET $2
    `
	rows, err := r.db.Query(ctx, q, perPage, (page-1)*perPage)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Account
	for rows.Next() {
		acc, err := scanAccountRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, acc)
	}
	return out, rows.Err()
}

func (r *accountRepository) UpdatePasswordHash(ctx context.Context, id, passwordHash string) error {
	q := `UPDATE accounts SET password_hash = $2, updated_at = NOW() WHERE id = $1`
	tag, err := r.db.Exec(ctx, q, id, passwordHash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) MergeMetadata(ctx context.Context, id string, metadata map[string]any) error {
	patch, err := json.Marshal(nonNilMetadata(metadata))
	if err != nil {
		return fmt.Errorf("encode user metadata: %w", err)
	}
	q := `
        UPDATE accounts
        SET user_metadata = user_metadata || $2::jsonb,
            updated_at = NOW()
        WHERE id = $1
    `
	tag, err := r.db.Exec(ctx, q, id, string(patch))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return utils.ErrAccountNotFound
	}
	return nil
}

func (r *accountRepository) TouchLastSignIn(ctx context.Context, id string) error {
	q := `UPDATE accounts SET last_sign_in_at = NOW() WHERE id = $1`
	_, err := r.db.Exec(ctx, q, id)
	return err
}

func nonNilMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func scanAccount(row pgx.Row) (*models.Account, error) {
	acc, err := scanAccountRow(row)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	return acc, err
}

func scanAccountRow(row pgx.Row) (*models.Account, error) {
	var (
		acc        models.Account
		meta       []byte
		lastSignIn pgtype.Timestamptz
	)
	err := row.Scan(
		&acc.ID,
		&acc.Email,
		&acc.PasswordHash,
		&acc.EmailConfirmed,
		&acc.ManagedCredential,
		&meta,
		&acc.CreatedAt,
		&acc.UpdatedAt,
		&lastSignIn,
	)
	if err != nil {
		return nil, err
	}
	if lastSignIn.Status == pgtype.Present {
		acc.LastSignInAt = &lastSignIn.Time
	}
	acc.UserMetadata = map[string]any{}
	if len(meta) > 0 {
		if err := json.Unmarshal(meta, &acc.UserMetadata); err != nil {
			return nil, fmt.Errorf("decode user metadata for %s: %w", acc.ID, err)
		}
	}
	return &acc, nil
}
