package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/metrics"
	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/utils"
)

// ---------------------------------------------------------------------
// CodeLedgerService interface
// ---------------------------------------------------------------------

type CodeLedgerService interface {
	// Issue persists a fresh code for phoneNumber and notifies the operator.
	// Older outstanding codes stay valid.
	Issue(ctx context.Context, phoneNumber, originIP string) (*models.VerificationCode, error)
	// Consume accepts a code at most once. utils.ErrVerificationCodeNotFound
	// means nothing valid matched.
	Consume(ctx context.Context, phoneNumber, code string) (*models.VerificationCode, error)
}

// ---------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------

type codeLedgerService struct {
	repo        repositories.VerificationCodeRepository
	notifier    Notifier
	rateLimiter RateLimiterService
	phoneLookup utils.PhoneLookup
	cfg         *config.Config
	metrics     *metrics.Metrics
	now         func() time.Time
}

func NewCodeLedgerService(
	repo repositories.VerificationCodeRepository,
	notifier Notifier,
	rateLimiter RateLimiterService,
	cfg *config.Config,
	m *metrics.Metrics,
) CodeLedgerService {
	return &codeLedgerService{
		repo:        repo,
		notifier:    notifier,
		rateLimiter: rateLimiter,
		phoneLookup: utils.NewTwilioPhoneLookup(cfg.TwilioAccountSID, cfg.TwilioAuthToken),
		cfg:         cfg,
		metrics:     m,
		now:         time.Now,
	}
}

// ---------------------------------------------------------------------
// Issue
// ---------------------------------------------------------------------

func (s *codeLedgerService) Issue(ctx context.Context, phoneNumber, originIP string) (*models.VerificationCode, error) {
	if phoneNumber == "" {
		return nil, utils.NewValidationError("Phone number is required")
	}
	if originIP == "" {
		originIP = utils.UnknownClientIP
	}

	if s.rateLimiter != nil {
		if err := s.rateLimiter.CheckSendLimits(ctx, originIP, phoneNumber); err != nil {
			return nil, err
		}
	}

	ok, err := utils.ValidatePhoneNumber(ctx, utils.NormalizePhone(phoneNumber), s.cfg.LDFlag_ValidatePhoneWithTwilio, s.phoneLookup)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, utils.NewValidationError("Phone number is invalid")
	}

	code, err := utils.RandomVerificationCode()
	if err != nil {
		return nil, fmt.Errorf("generate verification code: %w", err)
	}

	issuedAt := s.now()
	rec := &models.VerificationCode{
		ID:          uuid.New(),
		PhoneNumber: phoneNumber,
		Code:        code,
		IPAddress:   originIP,
		CreatedAt:   issuedAt,
		ExpiresAt:   issuedAt.Add(s.cfg.VerificationCodeExpiry),
	}
	if err := s.repo.CreateCode(ctx, rec); err != nil {
		return nil, fmt.Errorf("%w: failed to store verification code: %v", utils.ErrPersistence, err)
	}
	s.metrics.CodeIssued()

	s.notifyOperator(ctx, rec)
	return rec, nil
}

// notifyOperator hands the code to a human for SMS delivery. Failures are
// logged only; the code counts as issued either way.
func (s *codeLedgerService) notifyOperator(ctx context.Context, rec *models.VerificationCode) {
	if !s.cfg.NotificationsEnabled() {
		utils.Logger.WithField("phone", rec.PhoneNumber).
			Warn("Operator notification skipped: SENDGRID_API_KEY or OPERATOR_EMAIL not configured")
		return
	}

	plain, html := operatorNotificationBody(rec.PhoneNumber, rec.Code, rec.IPAddress, rec.ExpiresAt)
	err := s.notifier.SendEmail(ctx, Email{
		To:        s.cfg.OperatorEmail,
		Subject:   operatorNotificationSubject(s.cfg.NotificationSubjectPrefix, rec.PhoneNumber),
		PlainText: plain,
		HTML:      html,
	})
	if err != nil {
		s.metrics.NotificationFailed()
		utils.Logger.WithError(err).Errorf("Failed to notify operator about code for %s", rec.PhoneNumber)
		return
	}
	utils.Logger.Debugf("Operator notified about code for %s", rec.PhoneNumber)
}

// ---------------------------------------------------------------------
// Consume
// ---------------------------------------------------------------------

func (s *codeLedgerService) Consume(ctx context.Context, phoneNumber, code string) (*models.VerificationCode, error) {
	if phoneNumber == "" || code == "" {
		return nil, utils.NewValidationError("Phone and code are required")
	}

	rec, err := s.repo.ConsumeCode(ctx, phoneNumber, code)
	if err != nil {
		s.metrics.Verification(metrics.OutcomeError)
		return nil, fmt.Errorf("%w: failed to consume verification code: %v", utils.ErrPersistence, err)
	}
	if rec == nil {
		s.metrics.Verification(metrics.OutcomeRejected)
		s.logRecentCodes(ctx, phoneNumber)
		return nil, utils.ErrVerificationCodeNotFound
	}

	s.metrics.Verification(metrics.OutcomeAccepted)
	utils.Logger.WithFields(logrus.Fields{
		"phone":   phoneNumber,
		"code_id": rec.ID.String(),
	}).Info("Verification code accepted")
	return rec, nil
}

// logRecentCodes records what the ledger holds for a phone after a miss.
func (s *codeLedgerService) logRecentCodes(ctx context.Context, phoneNumber string) {
	if s.cfg.DiagnosticRecentCodes <= 0 {
		return
	}
	recent, err := s.repo.ListRecent(ctx, phoneNumber, s.cfg.DiagnosticRecentCodes)
	if err != nil {
		utils.Logger.WithError(err).Warnf("Could not read recent codes for %s", phoneNumber)
		return
	}

	now := s.now()
	entries := make([]string, 0, len(recent))
	for _, c := range recent {
		entries = append(entries, fmt.Sprintf("%s created=%s expires=%s consumed=%t expired=%t",
			utils.MaskCode(c.Code),
			c.CreatedAt.UTC().Format(time.RFC3339),
			c.ExpiresAt.UTC().Format(time.RFC3339),
			c.Consumed,
			!now.Before(c.ExpiresAt),
		))
	}
	utils.Logger.WithFields(logrus.Fields{
		"phone":       phoneNumber,
		"recent":      entries,
		"server_time": now.UTC().Format(time.RFC3339),
	}).Debug("No matching verification code")
}
