package repositories

import (
	"context"

	"github.com/jackc/pgx/v4"

	"github.com/poofware/verification-service/internal/models"
)

// DirectoryRepository manages the public users table.
type DirectoryRepository interface {
	GetByUserID(ctx context.Context, userID string) (*models.DirectoryUser, error)
	GetByUsername(ctx context.Context, username string) (*models.DirectoryUser, error)
	// Upsert writes the row, keeping a username that is already set.
	Upsert(ctx context.Context, userID, username string) error
}

type directoryRepository struct {
	db DB
}

func NewDirectoryRepository(db DB) DirectoryRepository {
	return &directoryRepository{db: db}
}

func (r *directoryRepository) GetByUserID(ctx context.Context, userID string) (*models.DirectoryUser, error) {
	q := `SELECT user_id, username, created_at, updated_at FROM users WHERE user_id = $1`
	return scanDirectoryUser(r.db.QueryRow(ctx, q, userID))
}

func (r *directoryRepository) GetByUsername(ctx context.Context, username string) (*models.DirectoryUser, error) {
	q := `
        SELECT user_id, username, created_at, updated_at
        FROM users
        WHERE username = $1
        ORDER BY updated_at DESC
        LIMIT 1
    `
	return scanDirectoryUser(r.db.QueryRow(ctx, q, username))
}

func (r *directoryRepository) Upsert(ctx context.Context, userID, username string) error {
	q := `
        INSERT INTO users (user_id, username, created_at, updated_at)
        VALUES ($1, $2, NOW(), NOW())
        ON CONFLICT (user_id) DO UPDATE
        SET username = COALESCE(NULLIF(users.username, ''), EXCLUDED.username),
            updated_at = NOW()
    `
	_, err := r.db.Exec(ctx, q, userID, username)
	return err
}

func scanDirectoryUser(row pgx.Row) (*models.DirectoryUser, error) {
	var u models.DirectoryUser
	if err := row.Scan(&u.UserID, &u.Username, &u.CreatedAt, &u.UpdatedAt); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}
