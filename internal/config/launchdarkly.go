package config

import (
	"errors"
	"fmt"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	ld "github.com/launchdarkly/go-server-sdk/v7"

	"github.com/poofware/verification-service/internal/utils"
)

// flagSource is the subset of the LaunchDarkly client used at startup.
type flagSource interface {
	BoolVariation(key string, context ldcontext.Context, defaultVal bool) (bool, error)
	StringVariation(key string, context ldcontext.Context, defaultVal string) (string, error)
}

func applyLaunchDarklyFlags(cfg *Config) error {
	ldClient, err := ld.MakeClient(cfg.LDSDKKey, LDConnectionTimeout)
	if err != nil {
		return fmt.Errorf("create LaunchDarkly client: %w", err)
	}
	defer ldClient.Close()

	if !ldClient.Initialized() {
		return errors.New("LaunchDarkly client failed to initialize")
	}
	return applyFlags(cfg, ldClient)
}

// applyFlags reads the static flags once. Env values act as the defaults.
func applyFlags(cfg *Config, src flagSource) error {
	context := ldcontext.NewWithKind(ldcontext.Kind(cfg.LDContextKind), cfg.LDContextKey)

	validatePhone, err := src.BoolVariation("validate_phone_with_twilio", context, cfg.LDFlag_ValidatePhoneWithTwilio)
	if err != nil {
		return fmt.Errorf("validate_phone_with_twilio: %w", err)
	}
	utils.Logger.Debugf("validate_phone_with_twilio flag: %t", validatePhone)

	sandbox, err := src.BoolVariation("sendgrid_sandbox_mode", context, cfg.LDFlag_SendgridSandboxMode)
	if err != nil {
		return fmt.Errorf("sendgrid_sandbox_mode: %w", err)
	}
	utils.Logger.Debugf("sendgrid_sandbox_mode flag: %t", sandbox)

	rateLimit, err := src.BoolVariation("rate_limit_enabled", context, cfg.LDFlag_RateLimitEnabled)
	if err != nil {
		return fmt.Errorf("rate_limit_enabled: %w", err)
	}
	utils.Logger.Debugf("rate_limit_enabled flag: %t", rateLimit)

	fromEmail, err := src.StringVariation("sendgrid_from_email", context, cfg.SendgridFromEmail)
	if err != nil {
		return fmt.Errorf("sendgrid_from_email: %w", err)
	}

	cfg.LDFlag_ValidatePhoneWithTwilio = validatePhone
	cfg.LDFlag_SendgridSandboxMode = sandbox
	cfg.LDFlag_RateLimitEnabled = rateLimit
	if fromEmail != "" {
		cfg.SendgridFromEmail = fromEmail
	}
	return nil
}
