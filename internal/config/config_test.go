package config

import (
	"errors"
	"testing"
	"time"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://localhost:5432/verification?sslmode=disable")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultAppPort, cfg.AppPort)
	assert.Equal(t, DefaultPlaceholderEmailDomain, cfg.PlaceholderEmailDomain)
	assert.Equal(t, 10*time.Minute, cfg.VerificationCodeExpiry)
	assert.Equal(t, DefaultDiagnosticRecentCodes, cfg.DiagnosticRecentCodes)
	assert.Equal(t, DefaultAccountScanPageSize, cfg.AccountScanPageSize)
	assert.Equal(t, []string{"*"}, cfg.AllowedOrigins())
	assert.False(t, cfg.LDFlag_RateLimitEnabled)
	assert.False(t, cfg.NotificationsEnabled())
	require.NotNil(t, cfg.RSAPrivateKey)
	require.NotNil(t, cfg.RSAPublicKey)
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://db/verification")
	t.Setenv("APP_PORT", "9090")
	t.Setenv("VERIFICATION_CODE_EXPIRY", "2m")
	t.Setenv("PLACEHOLDER_EMAIL_DOMAIN", "phone.example")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("SENDGRID_API_KEY", "SG.key")
	t.Setenv("OPERATOR_EMAIL", "ops@example.com")
	t.Setenv("RATE_LIMIT_ENABLED", "true")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.AppPort)
	assert.Equal(t, 2*time.Minute, cfg.VerificationCodeExpiry)
	assert.Equal(t, "phone.example", cfg.PlaceholderEmailDomain)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.AllowedOrigins())
	assert.True(t, cfg.NotificationsEnabled())
	assert.True(t, cfg.LDFlag_RateLimitEnabled)
}

func TestLoad_Validation(t *testing.T) {
	t.Run("missing database url", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "")
		_, err := Load()
		require.Error(t, err)
		assert.Contains(t, err.Error(), "DATABASE_URL")
	})

	t.Run("placeholder domain with at sign", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/verification")
		t.Setenv("PLACEHOLDER_EMAIL_DOMAIN", "x@manual.sms")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bcrypt cost out of range", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/verification")
		t.Setenv("BCRYPT_COST", "40")
		_, err := Load()
		require.Error(t, err)
	})

	t.Run("bad rsa key", func(t *testing.T) {
		t.Setenv("DATABASE_URL", "postgres://db/verification")
		t.Setenv("RSA_PRIVATE_KEY_BASE64", "bm90LWEta2V5")
		_, err := Load()
		require.Error(t, err)
	})
}

type fakeFlags struct {
	bools   map[string]bool
	strings map[string]string
	err     error
}

func (f *fakeFlags) BoolVariation(key string, _ ldcontext.Context, def bool) (bool, error) {
	if f.err != nil {
		return def, f.err
	}
	if v, ok := f.bools[key]; ok {
		return v, nil
	}
	return def, nil
}

func (f *fakeFlags) StringVariation(key string, _ ldcontext.Context, def string) (string, error) {
	if v, ok := f.strings[key]; ok {
		return v, nil
	}
	return def, nil
}

func TestApplyFlags(t *testing.T) {
	cfg := &Config{
		LDContextKey:      "verification-service",
		LDContextKind:     "service",
		SendgridFromEmail: "env@example.com",
	}
	src := &fakeFlags{
		bools: map[string]bool{
			"validate_phone_with_twilio": true,
			"sendgrid_sandbox_mode":      true,
		},
		strings: map[string]string{"sendgrid_from_email": "flag@example.com"},
	}

	require.NoError(t, applyFlags(cfg, src))
	assert.True(t, cfg.LDFlag_ValidatePhoneWithTwilio)
	assert.True(t, cfg.LDFlag_SendgridSandboxMode)
	assert.False(t, cfg.LDFlag_RateLimitEnabled)
	assert.Equal(t, "flag@example.com", cfg.SendgridFromEmail)

	err := applyFlags(cfg, &fakeFlags{err: errors.New("offline")})
	require.Error(t, err)
}
