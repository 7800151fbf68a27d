package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/go-playground/validator/v10"

	"github.com/poofware/verification-service/internal/dtos"
	"github.com/poofware/verification-service/internal/middleware"
	"github.com/poofware/verification-service/internal/services"
	"github.com/poofware/verification-service/internal/utils"
)

var validate = validator.New()

type VerificationController struct {
	dispatcher services.VerificationDispatcherService
}

func NewVerificationController(dispatcher services.VerificationDispatcherService) *VerificationController {
	return &VerificationController{dispatcher: dispatcher}
}

// PhoneVerificationHandler serves both the send and verify actions.
func (c *VerificationController) PhoneVerificationHandler(w http.ResponseWriter, r *http.Request) {
	var req dtos.PhoneVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid payload", err,
		)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid request fields", err,
		)
		return
	}

	// On verify, a caller signed in with one of our access tokens is treated
	// as having supplied its own id.
	if req.Action == dtos.ActionVerify && req.UserID == "" {
		req.UserID = middleware.UserIDFromContext(r.Context())
	}

	resp, err := c.dispatcher.Dispatch(r.Context(), req, utils.GetClientIP(r))
	if err != nil {
		utils.HandleAppError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, resp)
}
