package utils

import (
	"encoding/json"
	"net/http"

	"github.com/sirupsen/logrus"
)

const (
	ErrCodeInvalidPayload     = "invalid_payload"
	ErrCodeValidation         = "validation_error"
	ErrCodeInvalidAction      = "invalid_action"
	ErrCodePersistence        = "persistence_error"
	ErrCodeProvider           = "provider_error"
	ErrCodeIdentityResolution = "identity_resolution_error"
	ErrCodeRateLimitExceeded  = "rate_limit_exceeded"
	ErrCodeInternal           = "internal_error"
	ErrCodeUnauthorized       = "unauthorized"
	ErrCodeInvalidCredentials = "invalid_credentials"
)

// ErrorResponse keeps the historical `error` message field and adds the
// machine-readable kind.
type ErrorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

// RespondErrorWithCode builds a JSON error envelope. devErrs are logged, never sent.
func RespondErrorWithCode(
	w http.ResponseWriter,
	status int,
	kind string,
	publicMessage string,
	devErrs ...error,
) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error: publicMessage,
		Kind:  kind,
	})

	fields := logrus.Fields{
		"status": status,
		"kind":   kind,
	}
	if len(devErrs) > 0 && devErrs[0] != nil {
		fields["error"] = devErrs[0].Error()
	}
	if status >= http.StatusInternalServerError {
		Logger.WithFields(fields).Error(publicMessage)
	} else {
		Logger.WithFields(fields).Warn(publicMessage)
	}
}

// RespondWithJSON for successful cases
func RespondWithJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
