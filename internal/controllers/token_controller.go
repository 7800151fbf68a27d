package controllers

import (
	"encoding/json"
	"net/http"

	"github.com/poofware/verification-service/internal/dtos"
	"github.com/poofware/verification-service/internal/services"
	"github.com/poofware/verification-service/internal/utils"
)

type TokenController struct {
	refresher services.SessionRefresher
}

func NewTokenController(refresher services.SessionRefresher) *TokenController {
	return &TokenController{refresher: refresher}
}

// RefreshTokenHandler exchanges a refresh token for a new session.
func (c *TokenController) RefreshTokenHandler(w http.ResponseWriter, r *http.Request) {
	var req dtos.RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeInvalidPayload, "Invalid payload", err,
		)
		return
	}
	if err := validate.Struct(req); err != nil {
		utils.RespondErrorWithCode(
			w, http.StatusBadRequest, utils.ErrCodeValidation, "Invalid refresh token", err,
		)
		return
	}

	session, err := c.refresher.RefreshSession(r.Context(), req.RefreshToken)
	if err != nil {
		appErr := utils.ClassifyError(err)
		if appErr.StatusCode == http.StatusUnauthorized {
			utils.RespondErrorWithCode(w, http.StatusUnauthorized, utils.ErrCodeInvalidCredentials, "Invalid or expired refresh token", err)
			return
		}
		utils.HandleAppError(w, err)
		return
	}
	utils.RespondWithJSON(w, http.StatusOK, session)
}
