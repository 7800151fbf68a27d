package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/poofware/verification-service/internal/config"
	"github.com/poofware/verification-service/internal/models"
	"github.com/poofware/verification-service/internal/utils"
)

var errStoreDown = errors.New("store unavailable")

func testConfig() *config.Config {
	return &config.Config{
		AppName:                   "verification-service-test",
		SendGridAPIKey:            "sg-test",
		OperatorEmail:             "operator@example.com",
		NotificationSubjectPrefix: "[Test]",
		PlaceholderEmailDomain:    config.DefaultPlaceholderEmailDomain,
		VerificationCodeExpiry:    config.DefaultVerificationCodeExpiry,
		DiagnosticRecentCodes:     config.DefaultDiagnosticRecentCodes,
		AccountScanPageSize:       2,
		RateLimitWindow:           time.Hour,
		AccessTokenExpiry:         15 * time.Minute,
		RefreshTokenExpiry:        time.Hour,
		BcryptCost:                4,
	}
}

// ---------------------------------------------------------------------
// Verification codes
// ---------------------------------------------------------------------

type memCodeRepo struct {
	mu         sync.Mutex
	codes      []*models.VerificationCode
	createErr  error
	consumeErr error
}

func (r *memCodeRepo) CreateCode(_ context.Context, c *models.VerificationCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *c
	r.codes = append(r.codes, &cp)
	return nil
}

func (r *memCodeRepo) ConsumeCode(_ context.Context, phone, code string) (*models.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.consumeErr != nil {
		return nil, r.consumeErr
	}
	now := time.Now()
	var best *models.VerificationCode
	for _, c := range r.codes {
		if c.PhoneNumber != phone || c.Code != code || !c.IsValidAt(now) {
			continue
		}
		if best == nil || c.CreatedAt.After(best.CreatedAt) {
			best = c
		}
	}
	if best == nil {
		return nil, nil
	}
	best.Consumed = true
	best.ConsumedAt = &now
	cp := *best
	return &cp, nil
}

func (r *memCodeRepo) ListRecent(_ context.Context, phone string, limit int) ([]*models.VerificationCode, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.VerificationCode
	for _, c := range r.codes {
		if c.PhoneNumber == phone {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// seed stores a code directly, bypassing Issue.
func (r *memCodeRepo) seed(phone, code string, expiresAt time.Time) *models.VerificationCode {
	c := &models.VerificationCode{
		ID:          uuid.New(),
		PhoneNumber: phone,
		Code:        code,
		IPAddress:   "203.0.113.7",
		CreatedAt:   time.Now(),
		ExpiresAt:   expiresAt,
	}
	r.mu.Lock()
	r.codes = append(r.codes, c)
	r.mu.Unlock()
	return c
}

func (r *memCodeRepo) all() []*models.VerificationCode {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*models.VerificationCode(nil), r.codes...)
}

// ---------------------------------------------------------------------
// Notifier and rate limiter
// ---------------------------------------------------------------------

type fakeNotifier struct {
	mu   sync.Mutex
	sent []Email
	err  error
}

func (n *fakeNotifier) SendEmail(_ context.Context, email Email) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, email)
	return n.err
}

type stubRateLimiter struct{ err error }

func (s stubRateLimiter) CheckSendLimits(context.Context, string, string) error { return s.err }

type memRateLimitRepo struct {
	mu       sync.Mutex
	counts   map[string]int
	err      error
	cleanups int
}

func (r *memRateLimitRepo) IncrementAndCheck(_ context.Context, key string, limit int, _ time.Duration) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return false, r.err
	}
	if r.counts == nil {
		r.counts = map[string]int{}
	}
	r.counts[key]++
	return r.counts[key] <= limit, nil
}

func (r *memRateLimitRepo) CleanupExpired(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups++
	return r.err
}

// ---------------------------------------------------------------------
// Profiles and directory
// ---------------------------------------------------------------------

type memProfileRepo struct {
	mu        sync.Mutex
	profiles  map[string]*models.Profile
	lookupErr error
	upsertErr error
	lookups   int
}

func newMemProfileRepo() *memProfileRepo {
	return &memProfileRepo{profiles: map[string]*models.Profile{}}
}

func (r *memProfileRepo) GetByID(_ context.Context, id string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.profiles[id], nil
}

func (r *memProfileRepo) GetByPhoneNumber(_ context.Context, phone string) (*models.Profile, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups++
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	var best *models.Profile
	for _, p := range r.profiles {
		if p.PhoneNumber == nil || *p.PhoneNumber != phone {
			continue
		}
		if best == nil || p.UpdatedAt.After(best.UpdatedAt) {
			best = p
		}
	}
	return best, nil
}

func (r *memProfileRepo) Upsert(_ context.Context, id, phone string, isPrivileged bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	r.profiles[id] = &models.Profile{
		ID:           id,
		PhoneNumber:  utils.Ptr(phone),
		IsPrivileged: isPrivileged,
		UpdatedAt:    time.Now(),
	}
	return nil
}

type memDirectoryRepo struct {
	mu        sync.Mutex
	users     map[string]*models.DirectoryUser
	lookupErr error
	upsertErr error
}

func newMemDirectoryRepo() *memDirectoryRepo {
	return &memDirectoryRepo{users: map[string]*models.DirectoryUser{}}
}

func (r *memDirectoryRepo) GetByUserID(_ context.Context, userID string) (*models.DirectoryUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.users[userID], nil
}

func (r *memDirectoryRepo) GetByUsername(_ context.Context, username string) (*models.DirectoryUser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.lookupErr != nil {
		return nil, r.lookupErr
	}
	for _, u := range r.users {
		if u.Username != nil && *u.Username == username {
			return u, nil
		}
	}
	return nil, nil
}

func (r *memDirectoryRepo) Upsert(_ context.Context, userID, username string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.upsertErr != nil {
		return r.upsertErr
	}
	if u, ok := r.users[userID]; ok {
		if u.Username == nil || *u.Username == "" {
			u.Username = utils.Ptr(username)
		}
		u.UpdatedAt = time.Now()
		return nil
	}
	r.users[userID] = &models.DirectoryUser{
		UserID:    userID,
		Username:  utils.Ptr(username),
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}
	return nil
}

// ---------------------------------------------------------------------
// Identity provider without email lookup
// ---------------------------------------------------------------------

// fakeProvider implements IdentityProvider only, so the resolver has to
// fall back to the paged scan.
type fakeProvider struct {
	mu        sync.Mutex
	accounts  []*models.Account
	passwords map[string]string

	createErr   error
	listErr     error
	updateErr   error
	getErr      error
	signInErr   error
	listCalls   int
	createCalls int
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{passwords: map[string]string{}}
}

func (p *fakeProvider) add(acc *models.Account, password string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if acc.UserMetadata == nil {
		acc.UserMetadata = map[string]any{}
	}
	p.accounts = append(p.accounts, acc)
	p.passwords[acc.ID] = password
}

func (p *fakeProvider) byID(id string) *models.Account {
	for _, a := range p.accounts {
		if a.ID == id {
			return a
		}
	}
	return nil
}

func (p *fakeProvider) CreateAccount(_ context.Context, in models.NewAccount) (*models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.createCalls++
	if p.createErr != nil {
		return nil, p.createErr
	}
	for _, a := range p.accounts {
		if a.Email == in.Email {
			return nil, fmt.Errorf("a user with this email address has already been registered: %w", utils.ErrEmailAlreadyExists)
		}
	}
	md := map[string]any{}
	for k, v := range in.UserMetadata {
		md[k] = v
	}
	acc := &models.Account{
		ID:                uuid.NewString(),
		Email:             in.Email,
		EmailConfirmed:    in.EmailConfirmed,
		ManagedCredential: in.ManagedCredential,
		UserMetadata:      md,
		CreatedAt:         time.Now(),
	}
	p.accounts = append(p.accounts, acc)
	p.passwords[acc.ID] = in.Password
	return acc, nil
}

func (p *fakeProvider) GetAccountByID(_ context.Context, id string) (*models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.getErr != nil {
		return nil, p.getErr
	}
	acc := p.byID(id)
	if acc == nil {
		return nil, utils.ErrAccountNotFound
	}
	return acc, nil
}

func (p *fakeProvider) ListAccounts(_ context.Context, page, perPage int) ([]*models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.listCalls++
	if p.listErr != nil {
		return nil, p.listErr
	}
	start := (page - 1) * perPage
	if start >= len(p.accounts) {
		return nil, nil
	}
	end := start + perPage
	if end > len(p.accounts) {
		end = len(p.accounts)
	}
	return append([]*models.Account(nil), p.accounts[start:end]...), nil
}

func (p *fakeProvider) UpdateAccountByID(_ context.Context, id string, update models.AccountUpdate) (*models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.updateErr != nil {
		return nil, p.updateErr
	}
	acc := p.byID(id)
	if acc == nil {
		return nil, utils.ErrAccountNotFound
	}
	if update.Password != nil {
		p.passwords[id] = *update.Password
	}
	for k, v := range update.UserMetadata {
		acc.UserMetadata[k] = v
	}
	return acc, nil
}

func (p *fakeProvider) SignInWithPassword(_ context.Context, email, password string) (*models.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.signInErr != nil {
		return nil, p.signInErr
	}
	for _, a := range p.accounts {
		if a.Email == email && p.passwords[a.ID] == password {
			return &models.Session{
				AccessToken:  "access-" + a.ID,
				TokenType:    "bearer",
				ExpiresIn:    900,
				ExpiresAt:    time.Now().Add(15 * time.Minute).Unix(),
				RefreshToken: "refresh-" + a.ID,
				User:         a,
			}, nil
		}
	}
	return nil, utils.ErrInvalidCredentials
}

// findingProvider adds the direct email lookup.
type findingProvider struct {
	*fakeProvider
	emailLookups int
}

func (p *findingProvider) GetAccountByEmail(_ context.Context, email string) (*models.Account, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.emailLookups++
	for _, a := range p.accounts {
		if a.Email == email {
			return a, nil
		}
	}
	return nil, utils.ErrAccountNotFound
}

// ---------------------------------------------------------------------
// Accounts and refresh tokens for the local provider
// ---------------------------------------------------------------------

type memAccountRepo struct {
	mu       sync.Mutex
	accounts map[string]*models.Account
	order    []string
}

func newMemAccountRepo() *memAccountRepo {
	return &memAccountRepo{accounts: map[string]*models.Account{}}
}

func (r *memAccountRepo) Create(_ context.Context, acc *models.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == acc.Email {
			return utils.ErrEmailAlreadyExists
		}
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.UserMetadata == nil {
		acc.UserMetadata = map[string]any{}
	}
	acc.CreatedAt = time.Now()
	acc.UpdatedAt = acc.CreatedAt
	cp := *acc
	r.accounts[acc.ID] = &cp
	r.order = append(r.order, acc.ID)
	return nil
}

func (r *memAccountRepo) GetByID(_ context.Context, id string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, nil
	}
	cp := *a
	return &cp, nil
}

func (r *memAccountRepo) GetByEmail(_ context.Context, email string) (*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.Email == email {
			cp := *a
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memAccountRepo) List(_ context.Context, page, perPage int) ([]*models.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Account
	for i, id := range r.order {
		if i >= (page-1)*perPage && i < page*perPage {
			cp := *r.accounts[id]
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *memAccountRepo) UpdatePasswordHash(_ context.Context, id, hash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return utils.ErrAccountNotFound
	}
	a.PasswordHash = hash
	return nil
}

func (r *memAccountRepo) MergeMetadata(_ context.Context, id string, md map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return utils.ErrAccountNotFound
	}
	merged := map[string]any{}
	for k, v := range a.UserMetadata {
		merged[k] = v
	}
	for k, v := range md {
		merged[k] = v
	}
	a.UserMetadata = merged
	return nil
}

func (r *memAccountRepo) TouchLastSignIn(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return utils.ErrAccountNotFound
	}
	now := time.Now()
	a.LastSignInAt = &now
	return nil
}

type memTokenRepo struct {
	mu          sync.Mutex
	tokens      map[string]*models.RefreshToken
	cleanups    int
	cleanupErrs []error
}

func newMemTokenRepo() *memTokenRepo {
	return &memTokenRepo{tokens: map[string]*models.RefreshToken{}}
}

func (r *memTokenRepo) CreateRefreshToken(_ context.Context, t *models.RefreshToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *t
	r.tokens[t.Token] = &cp
	return nil
}

func (r *memTokenRepo) GetRefreshToken(_ context.Context, raw string) (*models.RefreshToken, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[raw]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (r *memTokenRepo) RemoveRefreshToken(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for k, t := range r.tokens {
		if t.ID == id {
			delete(r.tokens, k)
		}
	}
	return nil
}

func (r *memTokenRepo) CleanupExpiredRefreshTokens(context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cleanups++
	if len(r.cleanupErrs) > 0 {
		err := r.cleanupErrs[0]
		r.cleanupErrs = r.cleanupErrs[1:]
		return err
	}
	return nil
}
