package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/metrics"
	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/utils"
)

// Branch records how a phone number was mapped to an identity.
type Branch string

const (
	BranchSuppliedUser       Branch = "supplied_user"
	BranchExistingProfile    Branch = "existing_profile"
	BranchCreatedAccount     Branch = "created_account"
	BranchRecoveredDirectory Branch = "recovered_directory"
	BranchRecoveredEmail     Branch = "recovered_email"
)

const (
	syncStepProfile   = "profile"
	syncStepMetadata  = "metadata"
	syncStepDirectory = "directory"

	oneTimePasswordBytes = 24
)

// ErrMsgUnresolvableAccount is returned when an account exists for the
// placeholder email but none of the recovery lookups can find it.
const ErrMsgUnresolvableAccount = "System error: User exists but ID not found."

// Resolution is the outcome of mapping a verified phone to an identity.
type Resolution struct {
	UserID       string
	IsNewAccount bool
	Branch       Branch
	// Session is nil unless this service controls the account's credential
	// and the caller did not already hold a session.
	Session *models.Session
}

// ---------------------------------------------------------------------
// IdentityResolverService interface
// ---------------------------------------------------------------------

type IdentityResolverService interface {
	// Resolve maps a freshly verified phone to exactly one identity, grants
	// it the entitlement and, where possible, signs it in.
	Resolve(ctx context.Context, phoneNumber, suppliedUserID string) (*Resolution, error)
}

// ---------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------

type identityResolverService struct {
	profiles  repositories.ProfileRepository
	directory repositories.DirectoryRepository
	provider  IdentityProvider
	cfg       *config.Config
	metrics   *metrics.Metrics
}

func NewIdentityResolverService(
	profiles repositories.ProfileRepository,
	directory repositories.DirectoryRepository,
	provider IdentityProvider,
	cfg *config.Config,
	m *metrics.Metrics,
) IdentityResolverService {
	return &identityResolverService{
		profiles:  profiles,
		directory: directory,
		provider:  provider,
		cfg:       cfg,
		metrics:   m,
	}
}

func (s *identityResolverService) Resolve(ctx context.Context, phoneNumber, suppliedUserID string) (*Resolution, error) {
	if phoneNumber == "" {
		return nil, utils.NewValidationError("Phone number is required")
	}

	res, err := s.findOrCreate(ctx, phoneNumber, suppliedUserID)
	if err != nil {
		return nil, err
	}
	s.metrics.Resolved(string(res.Branch))

	logger := utils.Logger.WithFields(logrus.Fields{
		"phone":   phoneNumber,
		"user_id": res.UserID,
		"branch":  res.Branch,
	})
	logger.Info("Phone resolved to identity; syncing entitlement")

	s.syncEntitlement(ctx, res.UserID, phoneNumber)

	if res.Branch == BranchSuppliedUser {
		logger.Debug("Caller already holds a session; skipping session issuance")
		s.metrics.Session("skipped_supplied")
		return res, nil
	}
	res.Session = s.issueSession(ctx, res.UserID)
	return res, nil
}

// findOrCreate walks the branches in priority order.
func (s *identityResolverService) findOrCreate(ctx context.Context, phoneNumber, suppliedUserID string) (*Resolution, error) {
	if suppliedUserID != "" {
		return &Resolution{UserID: suppliedUserID, Branch: BranchSuppliedUser}, nil
	}

	profile, err := s.profiles.GetByPhoneNumber(ctx, phoneNumber)
	if err != nil {
		return nil, fmt.Errorf("%w: profile lookup failed: %v", utils.ErrPersistence, err)
	}
	if profile != nil {
		return &Resolution{UserID: profile.ID, Branch: BranchExistingProfile}, nil
	}

	return s.createOrAdopt(ctx, phoneNumber)
}

func (s *identityResolverService) createOrAdopt(ctx context.Context, phoneNumber string) (*Resolution, error) {
	email := placeholderEmail(phoneNumber, s.cfg.PlaceholderEmailDomain)

	password, err := utils.RandomPassword(oneTimePasswordBytes)
	if err != nil {
		return nil, fmt.Errorf("generate one-time password: %w", err)
	}

	acc, err := s.provider.CreateAccount(ctx, models.NewAccount{
		Email:             email,
		Password:          password,
		EmailConfirmed:    true,
		ManagedCredential: true,
		UserMetadata: map[string]any{
			models.MetadataPhoneNumber:  phoneNumber,
			models.MetadataLoginMethod:  models.LoginMethodManualSMS,
			models.MetadataIsPrivileged: true,
		},
	})
	if err == nil {
		s.metrics.AccountCreated()
		utils.Logger.Infof("Created placeholder account %s for %s", acc.ID, phoneNumber)
		return &Resolution{UserID: acc.ID, IsNewAccount: true, Branch: BranchCreatedAccount}, nil
	}
	if !errors.Is(err, utils.ErrEmailAlreadyExists) {
		return nil, err
	}

	utils.Logger.Infof("Placeholder account for %s already registered; recovering its id", phoneNumber)
	return s.recoverExisting(ctx, phoneNumber, email)
}

// recoverExisting finds the account behind a placeholder-email conflict:
// directory by username first, then the provider by email.
func (s *identityResolverService) recoverExisting(ctx context.Context, phoneNumber, email string) (*Resolution, error) {
	entry, err := s.directory.GetByUsername(ctx, phoneNumber)
	if err != nil {
		utils.Logger.WithError(err).Warnf("Directory lookup for %s failed; falling back to provider", phoneNumber)
	} else if entry != nil {
		return &Resolution{UserID: entry.UserID, Branch: BranchRecoveredDirectory}, nil
	}

	acc, err := s.findAccountByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if acc == nil {
		return nil, utils.NewIdentityResolutionError(ErrMsgUnresolvableAccount)
	}
	return &Resolution{UserID: acc.ID, Branch: BranchRecoveredEmail}, nil
}

// findAccountByEmail uses a direct lookup when the provider has one and a
// paged scan otherwise. A nil account with a nil error means not found.
func (s *identityResolverService) findAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	if finder, ok := s.provider.(AccountEmailFinder); ok {
		acc, err := finder.GetAccountByEmail(ctx, email)
		if errors.Is(err, utils.ErrAccountNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, asProviderError(err)
		}
		return acc, nil
	}

	perPage := s.cfg.AccountScanPageSize
	for page := 1; ; page++ {
		accs, err := s.provider.ListAccounts(ctx, page, perPage)
		if err != nil {
			return nil, asProviderError(err)
		}
		for _, acc := range accs {
			if acc.Email == email {
				return acc, nil
			}
		}
		if len(accs) < perPage {
			return nil, nil
		}
	}
}

// syncEntitlement performs the three independent best-effort writes.
// Each is attempted regardless of the others; failures are logged only.
func (s *identityResolverService) syncEntitlement(ctx context.Context, userID, phoneNumber string) {
	if err := s.profiles.Upsert(ctx, userID, phoneNumber, true); err != nil {
		s.syncFailed(syncStepProfile, userID, err)
	}

	_, err := s.provider.UpdateAccountByID(ctx, userID, models.AccountUpdate{
		UserMetadata: map[string]any{
			models.MetadataIsPrivileged: true,
			models.MetadataPhoneNumber:  phoneNumber,
		},
	})
	if err != nil {
		s.syncFailed(syncStepMetadata, userID, err)
	}

	if err := s.directory.Upsert(ctx, userID, phoneNumber); err != nil {
		s.syncFailed(syncStepDirectory, userID, err)
	}
}

func (s *identityResolverService) syncFailed(step, userID string, err error) {
	s.metrics.SyncFailed(step)
	utils.Logger.WithError(err).WithFields(logrus.Fields{
		"step":    step,
		"user_id": userID,
	}).Error("Entitlement sync step failed")
}

// issueSession rotates the credential of a managed account and signs in
// with it. Any failure yields a nil session.
func (s *identityResolverService) issueSession(ctx context.Context, userID string) *models.Session {
	acc, err := s.provider.GetAccountByID(ctx, userID)
	if err != nil {
		s.metrics.Session("lookup_failed")
		utils.Logger.WithError(err).Warnf("Could not load account %s for session issuance", userID)
		return nil
	}
	if !acc.ManagedCredential {
		s.metrics.Session("unmanaged")
		utils.Logger.Debugf("Account %s has an unmanaged credential; no session issued", userID)
		return nil
	}

	password, err := utils.RandomPassword(oneTimePasswordBytes)
	if err != nil {
		s.metrics.Session("failed")
		utils.Logger.WithError(err).Error("Could not generate one-time password")
		return nil
	}
	if _, err := s.provider.UpdateAccountByID(ctx, userID, models.AccountUpdate{Password: &password}); err != nil {
		s.metrics.Session("failed")
		utils.Logger.WithError(err).Warnf("Could not rotate credential for account %s", userID)
		return nil
	}

	session, err := s.provider.SignInWithPassword(ctx, acc.Email, password)
	if err != nil {
		s.metrics.Session("failed")
		utils.Logger.WithError(err).Warnf("Sign-in for account %s failed", userID)
		return nil
	}
	s.metrics.Session("issued")
	return session
}

func asProviderError(err error) error {
	var appErr *utils.AppError
	if errors.Is(err, utils.ErrProvider) || errors.As(err, &appErr) {
		return err
	}
	return fmt.Errorf("%w: %v", utils.ErrProvider, err)
}
