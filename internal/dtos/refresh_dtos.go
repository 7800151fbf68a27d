package dtos

// ----------------------
// Refresh Token
// ----------------------

type RefreshTokenRequest struct {
	RefreshToken string `json:"refresh_token" validate:"required,len=64"`
}
