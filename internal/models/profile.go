package models

import "time"

// Profile is the application-side record keyed by the provider account id.
type Profile struct {
	ID           string    `json:"id"`
	PhoneNumber  *string   `json:"phone_number,omitempty"`
	IsPrivileged bool      `json:"is_privileged"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// DirectoryUser is the public user directory row (users table).
type DirectoryUser struct {
	UserID    string    `json:"user_id"`
	Username  *string   `json:"username,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}
