package repositories

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"

	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/utils"
)

type TokenRepository interface {
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	GetRefreshToken(ctx context.Context, rawToken string) (*models.RefreshToken, error)
	RemoveRefreshToken(ctx context.Context, id string) error
	CleanupExpiredRefreshTokens(ctx context.Context) error
}

type tokenRepository struct {
	db DB
}

func NewTokenRepository(db DB) TokenRepository {
	return &tokenRepository{db: db}
}

func (r *tokenRepository) CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error {
	if token.ID == "" {
		token.ID = uuid.NewString()
	}
	q := `
        INSERT INTO refresh_tokens
            (id, account_id, token_hash, ip_address, expires_at, created_at, revoked)
        VALUES ($1, $2, $3, $4, $5, $6, $7)
    `
	_, err := r.db.Exec(ctx, q,
		token.ID,
		token.AccountID,
		utils.HashToken(token.Token),
		token.IPAddress,
		token.ExpiresAt,
		token.CreatedAt,
		token.Revoked,
	)
	return err
}

func (r *tokenRepository) GetRefreshToken(ctx context.Context, rawToken string) (*models.RefreshToken, error) {
	q := `
        SELECT id, account_id, COALESCE(ip_address, ''), expires_at, created_at, revoked
        FROM refresh_tokens
        WHERE token_hash = $1
    `
	var rt models.RefreshToken
	err := r.db.QueryRow(ctx, q, utils.HashToken(rawToken)).Scan(
		&rt.ID,
		&rt.AccountID,
		&rt.IPAddress,
		&rt.ExpiresAt,
		&rt.CreatedAt,
		&rt.Revoked,
	)
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rt.Token = rawToken
	return &rt, nil
}

func (r *tokenRepository) RemoveRefreshToken(ctx context.Context, id string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE id = $1`, id)
	return err
}

func (r *tokenRepository) CleanupExpiredRefreshTokens(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < NOW() OR revoked = TRUE`)
	return err
}
