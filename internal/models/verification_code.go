package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationCode for the verification_codes table.
type VerificationCode struct {
	ID          uuid.UUID  `json:"id"`
	PhoneNumber string     `json:"phone_number"`
	Code        string     `json:"-"`
	IPAddress   string     `json:"ip_address"`
	CreatedAt   time.Time  `json:"created_at"`
	ExpiresAt   time.Time  `json:"expires_at"`
	Consumed    bool       `json:"consumed"`
	ConsumedAt  *time.Time `json:"consumed_at,omitempty"`
}

// IsValidAt reports whether the code could still be accepted at now.
func (c *VerificationCode) IsValidAt(now time.Time) bool {
	return !c.Consumed && now.Before(c.ExpiresAt)
}
