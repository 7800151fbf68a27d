package config

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/spf13/viper"

	"github.com/poofware/verification-service/internal/utils"
)

// Config holds all application configuration, including secrets, flags, etc.
type Config struct {
	AppName string `mapstructure:"APP_NAME"`
	AppPort string `mapstructure:"APP_PORT"`
	AppUrl  string `mapstructure:"APP_URL"`
	DBUrl   string `mapstructure:"DATABASE_URL"`
	Env     string `mapstructure:"APP_ENV"`

	SendGridAPIKey            string `mapstructure:"SENDGRID_API_KEY"`
	SendgridFromEmail         string `mapstructure:"SENDGRID_FROM_EMAIL"`
	SendgridFromName          string `mapstructure:"SENDGRID_FROM_NAME"`
	OperatorEmail             string `mapstructure:"OPERATOR_EMAIL"`
	NotificationSubjectPrefix string `mapstructure:"NOTIFICATION_SUBJECT_PREFIX"`
	TwilioAccountSID          string `mapstructure:"TWILIO_ACCOUNT_SID"`
	TwilioAuthToken           string `mapstructure:"TWILIO_AUTH_TOKEN"`

	PlaceholderEmailDomain string        `mapstructure:"PLACEHOLDER_EMAIL_DOMAIN"`
	VerificationCodeExpiry time.Duration `mapstructure:"VERIFICATION_CODE_EXPIRY"`
	DiagnosticRecentCodes  int           `mapstructure:"DIAGNOSTIC_RECENT_CODES"`
	AccountScanPageSize    int           `mapstructure:"ACCOUNT_SCAN_PAGE_SIZE"`

	SMSLimitPerIPPerHour     int           `mapstructure:"SMS_LIMIT_PER_IP_PER_HOUR"`
	SMSLimitPerNumberPerHour int           `mapstructure:"SMS_LIMIT_PER_NUMBER_PER_HOUR"`
	GlobalSMSLimitPerHour    int           `mapstructure:"GLOBAL_SMS_LIMIT_PER_HOUR"`
	RateLimitWindow          time.Duration `mapstructure:"RATE_LIMIT_WINDOW"`

	RSAPrivateKeyBase64 string        `mapstructure:"RSA_PRIVATE_KEY_BASE64"`
	RSAPublicKeyBase64  string        `mapstructure:"RSA_PUBLIC_KEY_BASE64"`
	AccessTokenExpiry   time.Duration `mapstructure:"ACCESS_TOKEN_EXPIRY"`
	RefreshTokenExpiry  time.Duration `mapstructure:"REFRESH_TOKEN_EXPIRY"`
	BcryptCost          int           `mapstructure:"BCRYPT_COST"`

	CORSAllowedOrigins string `mapstructure:"CORS_ALLOWED_ORIGINS"`
	MetricsEnabled     bool   `mapstructure:"METRICS_ENABLED"`

	LDSDKKey      string `mapstructure:"LD_SDK_KEY"`
	LDContextKey  string `mapstructure:"LD_CONTEXT_KEY"`
	LDContextKind string `mapstructure:"LD_CONTEXT_KIND"`

	// Static flags. Seeded from the environment, overridden by LaunchDarkly
	// when LD_SDK_KEY is set.
	LDFlag_ValidatePhoneWithTwilio bool `mapstructure:"VALIDATE_PHONE_WITH_TWILIO"`
	LDFlag_SendgridSandboxMode     bool `mapstructure:"SENDGRID_SANDBOX_MODE"`
	LDFlag_RateLimitEnabled        bool `mapstructure:"RATE_LIMIT_ENABLED"`

	RSAPrivateKey *rsa.PrivateKey `mapstructure:"-"`
	RSAPublicKey  *rsa.PublicKey  `mapstructure:"-"`
}

// Defaults for time-based and numeric configuration.
const (
	DefaultAppName                   = "verification-service"
	DefaultAppPort                   = "8080"
	DefaultPlaceholderEmailDomain    = "manual.sms"
	DefaultVerificationCodeExpiry    = 10 * time.Minute
	DefaultDiagnosticRecentCodes     = 3
	DefaultAccountScanPageSize       = 1000
	DefaultSMSLimitPerIPPerHour      = 20
	DefaultSMSLimitPerNumberPerHour  = 5
	DefaultGlobalSMSLimitPerHour     = 1000
	DefaultRateLimitWindow           = 1 * time.Hour
	DefaultAccessTokenExpiry         = 15 * time.Minute
	DefaultRefreshTokenExpiry        = 7 * 24 * time.Hour
	DefaultBcryptCost                = 12
	DefaultNotificationSubjectPrefix = "[SupaQuiz]"
	LDConnectionTimeout              = 5 * time.Second
	ephemeralRSAKeyBits              = 2048
)

// AppName can be overridden with ldflags at build time; APP_NAME wins when set.
var AppName = DefaultAppName

// Load reads .env (if present), the environment and, when BWS_ACCESS_TOKEN
// is set, Bitwarden secrets into a validated Config. Process env vars win over
// Bitwarden, which wins over .env.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // missing .env is fine

	v.AutomaticEnv()
	setDefaults(v)

	if err := loadBWSSecrets(v); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	if err := cfg.loadRSAKeys(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadConfig loads the configuration, applies LaunchDarkly flags and exits
// the process on any error.
func LoadConfig() *Config {
	cfg, err := Load()
	if err != nil {
		utils.Logger.WithError(err).Fatal("Failed to load configuration")
	}
	utils.Logger.Info("Loading config for app: ", cfg.AppName)

	if cfg.LDSDKKey != "" {
		if err := applyLaunchDarklyFlags(cfg); err != nil {
			utils.Logger.WithError(err).Fatal("Failed to fetch LaunchDarkly flags")
		}
	} else {
		utils.Logger.Info("LD_SDK_KEY not set; using flag values from the environment")
	}

	if cfg.SendGridAPIKey == "" {
		utils.Logger.Warn("SENDGRID_API_KEY not set; operator notifications are disabled")
	}
	if cfg.OperatorEmail == "" {
		utils.Logger.Warn("OPERATOR_EMAIL not set; operator notifications are disabled")
	}

	utils.Logger.Debugf("App can be accessed at: %s", cfg.AppUrl)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("APP_NAME", AppName)
	v.SetDefault("APP_PORT", DefaultAppPort)
	v.SetDefault("APP_URL", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("APP_ENV", "")
	v.SetDefault("SENDGRID_API_KEY", "")
	v.SetDefault("SENDGRID_FROM_EMAIL", "no-reply@thepoofapp.com")
	v.SetDefault("SENDGRID_FROM_NAME", "Verification Service")
	v.SetDefault("OPERATOR_EMAIL", "")
	v.SetDefault("NOTIFICATION_SUBJECT_PREFIX", DefaultNotificationSubjectPrefix)
	v.SetDefault("TWILIO_ACCOUNT_SID", "")
	v.SetDefault("TWILIO_AUTH_TOKEN", "")
	v.SetDefault("PLACEHOLDER_EMAIL_DOMAIN", DefaultPlaceholderEmailDomain)
	v.SetDefault("VERIFICATION_CODE_EXPIRY", DefaultVerificationCodeExpiry)
	v.SetDefault("DIAGNOSTIC_RECENT_CODES", DefaultDiagnosticRecentCodes)
	v.SetDefault("ACCOUNT_SCAN_PAGE_SIZE", DefaultAccountScanPageSize)
	v.SetDefault("SMS_LIMIT_PER_IP_PER_HOUR", DefaultSMSLimitPerIPPerHour)
	v.SetDefault("SMS_LIMIT_PER_NUMBER_PER_HOUR", DefaultSMSLimitPerNumberPerHour)
	v.SetDefault("GLOBAL_SMS_LIMIT_PER_HOUR", DefaultGlobalSMSLimitPerHour)
	v.SetDefault("RATE_LIMIT_WINDOW", DefaultRateLimitWindow)
	v.SetDefault("RSA_PRIVATE_KEY_BASE64", "")
	v.SetDefault("RSA_PUBLIC_KEY_BASE64", "")
	v.SetDefault("ACCESS_TOKEN_EXPIRY", DefaultAccessTokenExpiry)
	v.SetDefault("REFRESH_TOKEN_EXPIRY", DefaultRefreshTokenExpiry)
	v.SetDefault("BCRYPT_COST", DefaultBcryptCost)
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("METRICS_ENABLED", true)
	v.SetDefault("BWS_ACCESS_TOKEN", "")
	v.SetDefault("BWS_ORGANIZATION_ID", "")
	v.SetDefault("LD_SDK_KEY", "")
	v.SetDefault("LD_CONTEXT_KEY", "verification-service")
	v.SetDefault("LD_CONTEXT_KIND", "service")
	v.SetDefault("VALIDATE_PHONE_WITH_TWILIO", false)
	v.SetDefault("SENDGRID_SANDBOX_MODE", false)
	v.SetDefault("RATE_LIMIT_ENABLED", false)
}

func (c *Config) validate() error {
	if c.AppPort == "" {
		return errors.New("config: APP_PORT must be set")
	}
	if c.DBUrl == "" {
		return errors.New("config: DATABASE_URL must be set")
	}
	if c.PlaceholderEmailDomain == "" || strings.Contains(c.PlaceholderEmailDomain, "@") {
		return fmt.Errorf("config: PLACEHOLDER_EMAIL_DOMAIN %q is not a bare domain", c.PlaceholderEmailDomain)
	}
	if c.VerificationCodeExpiry <= 0 {
		return errors.New("config: VERIFICATION_CODE_EXPIRY must be positive")
	}
	if c.DiagnosticRecentCodes < 0 {
		return errors.New("config: DIAGNOSTIC_RECENT_CODES must not be negative")
	}
	if c.AccountScanPageSize <= 0 {
		c.AccountScanPageSize = DefaultAccountScanPageSize
	}
	if c.BcryptCost == 0 {
		c.BcryptCost = DefaultBcryptCost
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return errors.New("config: BCRYPT_COST must be between 4 and 31")
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		return errors.New("config: token expiries must be positive")
	}
	return nil
}

// AllowedOrigins splits CORS_ALLOWED_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	if len(out) == 0 {
		return []string{"*"}
	}
	return out
}

// NotificationsEnabled reports whether the operator notifier has what it needs.
func (c *Config) NotificationsEnabled() bool {
	return c.SendGridAPIKey != "" && c.OperatorEmail != ""
}

// loadRSAKeys decodes the base64 PEM key pair, or generates an ephemeral one
// when neither is configured. Tokens signed by an ephemeral key do not
// survive a restart.
func (c *Config) loadRSAKeys() error {
	if c.RSAPrivateKeyBase64 == "" && c.RSAPublicKeyBase64 == "" {
		utils.Logger.Warn("RSA keys not configured; generating an ephemeral signing key")
		priv, err := rsa.GenerateKey(rand.Reader, ephemeralRSAKeyBits)
		if err != nil {
			return fmt.Errorf("config: generate rsa key: %w", err)
		}
		c.RSAPrivateKey = priv
		c.RSAPublicKey = &priv.PublicKey
		return nil
	}

	privateKeyPEM, err := base64.StdEncoding.DecodeString(c.RSAPrivateKeyBase64)
	if err != nil {
		return fmt.Errorf("config: decode RSA_PRIVATE_KEY_BASE64: %w", err)
	}
	privateKey, err := jwt.ParseRSAPrivateKeyFromPEM(privateKeyPEM)
	if err != nil {
		return fmt.Errorf("config: parse rsa private key: %w", err)
	}

	publicKey := &privateKey.PublicKey
	if c.RSAPublicKeyBase64 != "" {
		publicKeyPEM, err := base64.StdEncoding.DecodeString(c.RSAPublicKeyBase64)
		if err != nil {
			return fmt.Errorf("config: decode RSA_PUBLIC_KEY_BASE64: %w", err)
		}
		publicKey, err = jwt.ParseRSAPublicKeyFromPEM(publicKeyPEM)
		if err != nil {
			return fmt.Errorf("config: parse rsa public key: %w", err)
		}
	}

	c.RSAPrivateKey = privateKey
	c.RSAPublicKey = publicKey
	return nil
}
