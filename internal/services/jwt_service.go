package services

import (
	"context"
	"crypto/rsa"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/middleware"
	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/utils"
)

var (
	errInvalidRefreshToken = errors.New("invalid refresh token")
	errRefreshTokenExpired = errors.New("refresh token expired")
)

// ---------------------------------------------------------------------
// JWTService interface
// ---------------------------------------------------------------------

type JWTService interface {
	GenerateAccessToken(account *models.Account) (string, time.Time, error)
	GenerateRefreshToken(ctx context.Context, accountID string) (*models.RefreshToken, error)
	// RotateRefreshToken revokes rawToken and returns the account id it
	// belonged to with a replacement token.
	RotateRefreshToken(ctx context.Context, rawToken string) (string, *models.RefreshToken, error)
}

// ---------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------

type jwtService struct {
	privateKey    *rsa.PrivateKey
	tokenRepo     repositories.TokenRepository
	tokenExpiry   time.Duration
	refreshExpiry time.Duration
}

func NewJWTService(cfg *config.Config, tokenRepo repositories.TokenRepository) JWTService {
	return &jwtService{
		privateKey:    cfg.RSAPrivateKey,
		tokenRepo:     tokenRepo,
		tokenExpiry:   cfg.AccessTokenExpiry,
		refreshExpiry: cfg.RefreshTokenExpiry,
	}
}

func (j *jwtService) GenerateAccessToken(account *models.Account) (string, time.Time, error) {
	now := time.Now()
	expiresAt := now.Add(j.tokenExpiry)

	claims := jwt.MapClaims{
		"iss":           middleware.TokenIssuer,
		"sub":           account.ID,
		"exp":           expiresAt.Unix(),
		"iat":           now.Unix(),
		"jti":           uuid.NewString(),
		"email":         account.Email,
		"user_metadata": account.UserMetadata,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodRS256, claims).SignedString(j.privateKey)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func (j *jwtService) GenerateRefreshToken(ctx context.Context, accountID string) (*models.RefreshToken, error) {
	if j.tokenRepo == nil {
		return nil, errors.New("jwtService has nil tokenRepo")
	}

	now := time.Now()
	rt := &models.RefreshToken{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Token:     utils.RandomToken(48),
		ExpiresAt: now.Add(j.refreshExpiry),
		CreatedAt: now,
	}
	if err := j.tokenRepo.CreateRefreshToken(ctx, rt); err != nil {
		return nil, err
	}
	return rt, nil
}

func (j *jwtService) RotateRefreshToken(ctx context.Context, rawToken string) (string, *models.RefreshToken, error) {
	if j.tokenRepo == nil {
		return "", nil, errors.New("jwtService has nil tokenRepo")
	}

	old, err := j.tokenRepo.GetRefreshToken(ctx, rawToken)
	if err != nil {
		return "", nil, err
	}
	if old == nil || old.Revoked {
		return "", nil, errInvalidRefreshToken
	}
	if old.IsExpired() {
		return "", nil, errRefreshTokenExpired
	}

	if err := j.tokenRepo.RemoveRefreshToken(ctx, old.ID); err != nil {
		utils.Logger.WithError(err).Error("failed to remove old refresh token")
		return "", nil, err
	}

	next, err := j.GenerateRefreshToken(ctx, old.AccountID)
	if err != nil {
		return "", nil, err
	}
	return old.AccountID, next, nil
}
