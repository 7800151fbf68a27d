package models

import "time"

// Metadata keys written onto provider accounts.
const (
	MetadataLoginMethod  = "login_method"
	MetadataIsPrivileged = "is_privileged"
	MetadataPhoneNumber  = "phone_number"

	LoginMethodManualSMS = "manual_sms"
)

// Account is an identity-provider account.
type Account struct {
	ID             string `json:"id"`
	Email          string `json:"email"`
	PasswordHash   string `json:"-"`
	EmailConfirmed bool   `json:"email_confirmed"`
	// ManagedCredential marks accounts whose password this service owns
	// and may rotate to mint a session.
	ManagedCredential bool           `json:"managed_credential"`
	UserMetadata      map[string]any `json:"user_metadata"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
	LastSignInAt      *time.Time     `json:"last_sign_in_at,omitempty"`
}

// NewAccount describes an account to be created.
type NewAccount struct {
	Email             string
	Password          string
	EmailConfirmed    bool
	ManagedCredential bool
	UserMetadata      map[string]any
}

// AccountUpdate is a partial update. Nil fields are left alone; metadata is
// merged key by key.
type AccountUpdate struct {
	Password     *string
	UserMetadata map[string]any
}

// PhoneNumber returns the phone recorded in metadata, if any.
func (a *Account) PhoneNumber() string {
	if a == nil || a.UserMetadata == nil {
		return ""
	}
	s, _ := a.UserMetadata[MetadataPhoneNumber].(string)
	return s
}
