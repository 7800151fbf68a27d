package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/repositories"
	"github.com/poofware/verification-service/internal/utils"
)

// IdentityProvider is the account directory the resolver works against.
//
// CreateAccount fails with utils.ErrEmailAlreadyExists when the email is
// taken. Lookups of a missing account fail with utils.ErrAccountNotFound.
type IdentityProvider interface {
	CreateAccount(ctx context.Context, acc models.NewAccount) (*models.Account, error)
	GetAccountByID(ctx context.Context, id string) (*models.Account, error)
	// ListAccounts pages through all accounts; page starts at 1.
	ListAccounts(ctx context.Context, page, perPage int) ([]*models.Account, error)
	UpdateAccountByID(ctx context.Context, id string, update models.AccountUpdate) (*models.Account, error)
	SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error)
}

// AccountEmailFinder is implemented by providers that can look an account
// up by email directly. Without it the resolver falls back to ListAccounts.
type AccountEmailFinder interface {
	GetAccountByEmail(ctx context.Context, email string) (*models.Account, error)
}

// SessionRefresher exchanges a refresh token for a new session.
type SessionRefresher interface {
	RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error)
}

// ---------------------------------------------------------------------
// Postgres-backed provider
// ---------------------------------------------------------------------

type localIdentityProvider struct {
	accounts   repositories.AccountRepository
	jwt        JWTService
	bcryptCost int
}

// LocalIdentityProvider is the built-in provider: accounts live in the
// service database and sessions are RS256 access tokens plus rotating
// refresh tokens.
type LocalIdentityProvider interface {
	IdentityProvider
	AccountEmailFinder
	SessionRefresher
}

func NewLocalIdentityProvider(
	accounts repositories.AccountRepository,
	jwtSvc JWTService,
	cfg *config.Config,
) LocalIdentityProvider {
	return &localIdentityProvider{
		accounts:   accounts,
		jwt:        jwtSvc,
		bcryptCost: cfg.BcryptCost,
	}
}

func providerFailure(op string, err error) error {
	return fmt.Errorf("%w: %s: %v", utils.ErrProvider, op, err)
}

func (p *localIdentityProvider) CreateAccount(ctx context.Context, in models.NewAccount) (*models.Account, error) {
	email := strings.TrimSpace(in.Email)
	if email == "" || in.Password == "" {
		return nil, providerFailure("create account", errors.New("email and password are required"))
	}

	hash, err := utils.HashPassword(in.Password, p.bcryptCost)
	if err != nil {
		return nil, providerFailure("hash password", err)
	}

	acc := &models.Account{
		Email:             email,
		PasswordHash:      hash,
		EmailConfirmed:    in.EmailConfirmed,
		ManagedCredential: in.ManagedCredential,
		UserMetadata:      in.UserMetadata,
	}
	if err := p.accounts.Create(ctx, acc); err != nil {
		if errors.Is(err, utils.ErrEmailAlreadyExists) {
			return nil, fmt.Errorf("a user with this email address has already been registered: %w", err)
		}
		return nil, providerFailure("create account", err)
	}
	if acc.UserMetadata == nil {
		acc.UserMetadata = map[string]any{}
	}
	return acc, nil
}

func (p *localIdentityProvider) GetAccountByID(ctx context.Context, id string) (*models.Account, error) {
	acc, err := p.accounts.GetByID(ctx, id)
	if err != nil {
		return nil, providerFailure("get account", err)
	}
	if acc == nil {
		return nil, utils.ErrAccountNotFound
	}
	return acc, nil
}

func (p *localIdentityProvider) GetAccountByEmail(ctx context.Context, email string) (*models.Account, error) {
	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, providerFailure("get account by email", err)
	}
	if acc == nil {
		return nil, utils.ErrAccountNotFound
	}
	return acc, nil
}

func (p *localIdentityProvider) ListAccounts(ctx context.Context, page, perPage int) ([]*models.Account, error) {
	accs, err := p.accounts.List(ctx, page, perPage)
	if err != nil {
		return nil, providerFailure("list accounts", err)
	}
	return accs, nil
}

func (p *localIdentityProvider) UpdateAccountByID(ctx context.Context, id string, update models.AccountUpdate) (*models.Account, error) {
	if update.Password != nil {
		hash, err := utils.HashPassword(*update.Password, p.bcryptCost)
		if err != nil {
			return nil, providerFailure("hash password", err)
		}
		if err := p.accounts.UpdatePasswordHash(ctx, id, hash); err != nil {
			if errors.Is(err, utils.ErrAccountNotFound) {
				return nil, err
			}
			return nil, providerFailure("update password", err)
		}
	}
	if len(update.UserMetadata) > 0 {
		if err := p.accounts.MergeMetadata(ctx, id, update.UserMetadata); err != nil {
			if errors.Is(err, utils.ErrAccountNotFound) {
				return nil, err
			}
			return nil, providerFailure("update metadata", err)
		}
	}
	return p.GetAccountByID(ctx, id)
}

func (p *localIdentityProvider) SignInWithPassword(ctx context.Context, email, password string) (*models.Session, error) {
	acc, err := p.accounts.GetByEmail(ctx, email)
	if err != nil {
		return nil, providerFailure("sign in", err)
	}
	if acc == nil || !utils.CheckPasswordHash(password, acc.PasswordHash) {
		return nil, utils.ErrInvalidCredentials
	}
	if !acc.EmailConfirmed {
		return nil, fmt.Errorf("%w: email not confirmed", utils.ErrInvalidCredentials)
	}

	if err := p.accounts.TouchLastSignIn(ctx, acc.ID); err != nil {
		utils.Logger.WithError(err).Warnf("Failed to record sign-in for account %s", acc.ID)
	} else {
		now := time.Now()
		acc.LastSignInAt = &now
	}
	return p.issueSession(ctx, acc)
}

func (p *localIdentityProvider) RefreshSession(ctx context.Context, refreshToken string) (*models.Session, error) {
	accountID, next, err := p.jwt.RotateRefreshToken(ctx, refreshToken)
	if err != nil {
		if errors.Is(err, errInvalidRefreshToken) || errors.Is(err, errRefreshTokenExpired) {
			return nil, fmt.Errorf("%w: %v", utils.ErrInvalidCredentials, err)
		}
		return nil, providerFailure("refresh session", err)
	}
	acc, err := p.GetAccountByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return p.buildSession(acc, next)
}

func (p *localIdentityProvider) issueSession(ctx context.Context, acc *models.Account) (*models.Session, error) {
	rt, err := p.jwt.GenerateRefreshToken(ctx, acc.ID)
	if err != nil {
		return nil, providerFailure("store refresh token", err)
	}
	return p.buildSession(acc, rt)
}

func (p *localIdentityProvider) buildSession(acc *models.Account, rt *models.RefreshToken) (*models.Session, error) {
	access, expiresAt, err := p.jwt.GenerateAccessToken(acc)
	if err != nil {
		return nil, providerFailure("sign access token", err)
	}
	return &models.Session{
		AccessToken:  access,
		TokenType:    "bearer",
		ExpiresIn:    int64(time.Until(expiresAt).Seconds()),
		ExpiresAt:    expiresAt.Unix(),
		RefreshToken: rt.Token,
		User:         acc,
	}, nil
}
