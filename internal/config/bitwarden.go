package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	sdk "github.com/bitwarden/sdk-go"
	"github.com/spf13/viper"

	"github.com/poofware/verification-service/internal/utils"
)

// Retry parameters for Bitwarden logins.
const (
	bwsMaxRetries     = 5
	bwsInitialBackoff = 500 * time.Millisecond
)

// secretSource returns the key/value secrets of one project.
type secretSource interface {
	GetSecrets(projectName string) (map[string]string, error)
}

type bwsSecretsClient struct {
	bw    sdk.BitwardenClientInterface
	orgID string
}

// newBWSSecretsClient logs in with accessToken, retrying on 429 responses.
func newBWSSecretsClient(accessToken, orgID string) (*bwsSecretsClient, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, errors.New("BWS_ORGANIZATION_ID must be set with BWS_ACCESS_TOKEN")
	}

	bw, err := sdk.NewBitwardenClient(nil, nil)
	if err != nil {
		return nil, fmt.Errorf("initialising Bitwarden SDK client: %w", err)
	}

	backoff := bwsInitialBackoff
	for attempt := 1; ; attempt++ {
		err = bw.AccessTokenLogin(accessToken, nil)
		if err == nil {
			return &bwsSecretsClient{bw: bw, orgID: orgID}, nil
		}
		// sdk-go has no typed status errors.
		if !strings.Contains(err.Error(), "429") && !strings.Contains(err.Error(), "Too Many Requests") {
			bw.Close()
			return nil, fmt.Errorf("Bitwarden access-token login failed: %w", err)
		}
		if attempt == bwsMaxRetries {
			bw.Close()
			return nil, fmt.Errorf("Bitwarden access-token login failed after %d attempts: %w", bwsMaxRetries, err)
		}
		time.Sleep(backoff)
		backoff *= 2
	}
}

func (c *bwsSecretsClient) Close() {
	if c != nil && c.bw != nil {
		c.bw.Close()
	}
}

// GetSecrets resolves projectName to its id and returns the secrets in it.
func (c *bwsSecretsClient) GetSecrets(projectName string) (map[string]string, error) {
	projects, err := c.bw.Projects().List(c.orgID)
	if err != nil {
		return nil, fmt.Errorf("listing Bitwarden projects: %w", err)
	}

	var projectID string
	for _, p := range projects.Data {
		if strings.EqualFold(p.Name, projectName) {
			projectID = p.ID
			break
		}
	}
	if projectID == "" {
		return nil, fmt.Errorf("project %q not found in organisation %s", projectName, c.orgID)
	}

	synced, err := c.bw.Secrets().Sync(c.orgID, nil)
	if err != nil {
		return nil, fmt.Errorf("syncing Bitwarden secrets: %w", err)
	}

	out := make(map[string]string)
	for _, s := range synced.Secrets {
		if s.ProjectID != nil && *s.ProjectID == projectID {
			out[s.Key] = s.Value
		}
	}
	return out, nil
}

// loadBWSSecrets overlays secrets from Bitwarden onto v when BWS_ACCESS_TOKEN
// is set. Shared secrets load first so app-specific ones win.
func loadBWSSecrets(v *viper.Viper) error {
	token := v.GetString("BWS_ACCESS_TOKEN")
	if token == "" {
		return nil
	}

	client, err := newBWSSecretsClient(token, v.GetString("BWS_ORGANIZATION_ID"))
	if err != nil {
		return err
	}
	defer client.Close()

	return applySecrets(v, client, v.GetString("APP_NAME"), v.GetString("APP_ENV"))
}

// applySecrets copies secrets from the shared-<env> and <app>-<env>
// projects into v. Variables set in the process environment are kept.
func applySecrets(v *viper.Viper, src secretSource, appName, env string) error {
	if env == "" {
		return errors.New("APP_ENV must be set to load secrets from Bitwarden")
	}

	for _, project := range []string{"shared-" + env, appName + "-" + env} {
		secrets, err := src.GetSecrets(project)
		if err != nil {
			return fmt.Errorf("fetch secrets for %s: %w", project, err)
		}
		for key, val := range secrets {
			if _, set := os.LookupEnv(key); set {
				continue
			}
			v.Set(key, val)
		}
		utils.Logger.Infof("Loaded %d secrets from Bitwarden project %s", len(secrets), project)
	}
	return nil
}
