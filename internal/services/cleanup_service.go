package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/jackc/pgconn"

	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/utils"
)

// One retry on transient connection errors, after a short pause.
var cleanupRetryDelay = 3 * time.Second

// runWithRetry runs op and retries it once when the failure looks like a
// dropped connection (EOF, pgconn safe-to-retry, "connection was closed").
func runWithRetry(ctx context.Context, name string, op func(context.Context) error) error {
	err := op(ctx)
	if err == nil {
		return nil
	}
	if !isTransientDBError(err) {
		return err
	}

	utils.Logger.WithError(err).Warnf("%s hit transient DB error; retrying once", name)
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(cleanupRetryDelay):
	}
	return op(ctx)
}

func isTransientDBError(err error) bool {
	return errors.Is(err, io.EOF) ||
		pgconn.SafeToRetry(err) ||
		strings.Contains(err.Error(), "connection was closed")
}

// ---------------------------------------------------------------------
// Refresh tokens
// ---------------------------------------------------------------------

// TokenCleanupService removes expired refresh tokens each night.
type TokenCleanupService interface {
	CleanupDaily(ctx context.Context) error
}

type tokenCleanupService struct {
	tokenRepo repositories.TokenRepository
}

func NewTokenCleanupService(tokenRepo repositories.TokenRepository) TokenCleanupService {
	return &tokenCleanupService{tokenRepo: tokenRepo}
}

func (s *tokenCleanupService) CleanupDaily(ctx context.Context) error {
	if err := runWithRetry(ctx, "token cleanup", s.tokenRepo.CleanupExpiredRefreshTokens); err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup expired refresh_tokens")
		return err
	}
	utils.Logger.Info("Daily refresh token cleanup completed successfully.")
	return nil
}

// ---------------------------------------------------------------------
// Rate limit counters
// ---------------------------------------------------------------------

// RateLimitCleanupService removes expired rate limit counter keys.
type RateLimitCleanupService interface {
	CleanupDaily(ctx context.Context) error
}

type rateLimitCleanupService struct {
	repo repositories.RateLimitRepository
}

func NewRateLimitCleanupService(repo repositories.RateLimitRepository) RateLimitCleanupService {
	return &rateLimitCleanupService{repo: repo}
}

func (s *rateLimitCleanupService) CleanupDaily(ctx context.Context) error {
	if err := runWithRetry(ctx, "rate limit cleanup", s.repo.CleanupExpired); err != nil {
		utils.Logger.WithError(err).Error("Failed to cleanup expired rate_limit_attempts")
		return err
	}
	utils.Logger.Info("Daily rate limit counter cleanup completed successfully.")
	return nil
}
