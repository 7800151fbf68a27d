package services

import (
	"context"
	"fmt"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/utils"
)

// RateLimiterService guards code issuance. Limits only apply while the
// rate_limit_enabled flag is on.
type RateLimiterService interface {
	CheckSendLimits(ctx context.Context, ip, phoneNumber string) error
}

type rateLimiterService struct {
	repo repositories.RateLimitRepository
	cfg  *config.Config
}

func NewRateLimiterService(repo repositories.RateLimitRepository, cfg *config.Config) RateLimiterService {
	return &rateLimiterService{repo: repo, cfg: cfg}
}

// CheckSendLimits checks global, per-IP, and per-phone-number limits.
func (s *rateLimiterService) CheckSendLimits(ctx context.Context, ip, phoneNumber string) error {
	if !s.cfg.LDFlag_RateLimitEnabled {
		return nil
	}

	checks := []struct {
		key   string
		limit int
	}{
		{"send:global", s.cfg.GlobalSMSLimitPerHour},
		{fmt.Sprintf("send:ip:%s", ip), s.cfg.SMSLimitPerIPPerHour},
		{fmt.Sprintf("send:phone:%s", phoneNumber), s.cfg.SMSLimitPerNumberPerHour},
	}
	for _, c := range checks {
		allowed, err := s.repo.IncrementAndCheck(ctx, c.key, c.limit, s.cfg.RateLimitWindow)
		if err != nil {
			return fmt.Errorf("%w: rate limit check failed: %v", utils.ErrPersistence, err)
		}
		if !allowed {
			utils.Logger.Warnf("Send rate limit exceeded (key: %s)", c.key)
			return utils.ErrRateLimitExceeded
		}
	}
	return nil
}
