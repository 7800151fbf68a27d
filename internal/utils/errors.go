package utils

import (
	"errors"
	"net/http"
)

// Domain-level errors used by the service layer. The dispatcher maps them
// onto the response envelope's kind and status.
var (
	ErrValidation               = errors.New("validation_error")
	ErrInvalidAction            = errors.New("invalid_action")
	ErrVerificationCodeNotFound = errors.New("verification_code_not_found")
	ErrPersistence              = errors.New("persistence_error")
	ErrProvider                 = errors.New("provider_error")
	ErrIdentityResolution       = errors.New("identity_resolution_error")
	ErrInvalidPhone             = errors.New("invalid_phone")
	ErrRateLimitExceeded        = errors.New("rate_limit_exceeded")
	ErrEmailAlreadyExists       = errors.New("email_already_registered")
	ErrAccountNotFound          = errors.New("account_not_found")
	ErrInvalidCredentials       = errors.New("invalid_credentials")
	ErrExternalServiceFailure   = errors.New("external_service_failure")
)

// AppError carries a failure from the service layer to the transport with
// its public message, discriminator and HTTP status.
type AppError struct {
	StatusCode int
	Code       string
	Message    string
	Err        error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// NewValidationError reports a missing or malformed request field.
func NewValidationError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrCodeValidation,
		Message:    message,
		Err:        ErrValidation,
	}
}

// NewInvalidActionError reports an unrecognized dispatcher action.
func NewInvalidActionError() *AppError {
	return &AppError{
		StatusCode: http.StatusBadRequest,
		Code:       ErrCodeInvalidAction,
		Message:    "Invalid action",
		Err:        ErrInvalidAction,
	}
}

// NewIdentityResolutionError reports an account conflict that could not be
// traced back to an existing identity.
func NewIdentityResolutionError(message string) *AppError {
	return &AppError{
		StatusCode: http.StatusConflict,
		Code:       ErrCodeIdentityResolution,
		Message:    message,
		Err:        ErrIdentityResolution,
	}
}

// ClassifyError turns any error into an AppError. Errors that already are
// AppErrors pass through unchanged; the rest are matched against the
// sentinels above and keep their own message.
func ClassifyError(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}

	out := &AppError{Message: err.Error(), Err: err}
	switch {
	case errors.Is(err, ErrValidation), errors.Is(err, ErrInvalidPhone):
		out.StatusCode, out.Code = http.StatusBadRequest, ErrCodeValidation
	case errors.Is(err, ErrInvalidAction):
		out.StatusCode, out.Code = http.StatusBadRequest, ErrCodeInvalidAction
	case errors.Is(err, ErrInvalidCredentials):
		out.StatusCode, out.Code = http.StatusUnauthorized, ErrCodeInvalidCredentials
	case errors.Is(err, ErrRateLimitExceeded):
		out.StatusCode, out.Code = http.StatusTooManyRequests, ErrCodeRateLimitExceeded
		out.Message = "Too many requests. Please try again later."
	case errors.Is(err, ErrIdentityResolution):
		out.StatusCode, out.Code = http.StatusConflict, ErrCodeIdentityResolution
	case errors.Is(err, ErrProvider), errors.Is(err, ErrExternalServiceFailure):
		out.StatusCode, out.Code = http.StatusBadGateway, ErrCodeProvider
	case errors.Is(err, ErrPersistence):
		out.StatusCode, out.Code = http.StatusInternalServerError, ErrCodePersistence
	default:
		out.StatusCode, out.Code = http.StatusInternalServerError, ErrCodeInternal
	}
	return out
}

// HandleAppError centralizes responding to service-layer failures.
func HandleAppError(w http.ResponseWriter, err error) {
	appErr := ClassifyError(err)
	RespondErrorWithCode(w, appErr.StatusCode, appErr.Code, appErr.Message, appErr.Err)
}
