package dtos

import "github.com/poofware/verification-service/internal/models"

const (
	ActionSend   = "send"
	ActionVerify = "verify"
)

// ----------------------
// Phone Verification
// ----------------------

// PhoneVerificationRequest is the single body accepted by the dispatcher.
// Field presence per action is checked by the services so that missing
// fields produce the documented messages.
type PhoneVerificationRequest struct {
	Action string `json:"action"`
	Phone  string `json:"phone" validate:"omitempty,max=32"`
	Code   string `json:"code,omitempty" validate:"omitempty,max=16"`
	UserID string `json:"userId,omitempty" validate:"omitempty,max=128"`
}

type SendCodeResponse struct {
	Message string `json:"message"`
}

type VerifyRejectedResponse struct {
	Valid   bool   `json:"valid"`
	Message string `json:"message"`
}

// VerifyAcceptedResponse carries a null session when none could be issued.
type VerifyAcceptedResponse struct {
	Valid        bool            `json:"valid"`
	Session      *models.Session `json:"session"`
	User         any             `json:"user"`
	IsNewAccount bool            `json:"is_new_account"`
}

// UserRef is returned as the verify user when no full account view exists.
type UserRef struct {
	ID string `json:"id"`
}
