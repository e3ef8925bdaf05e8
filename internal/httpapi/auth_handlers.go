package httpapi

import (
	"errors"
	"net/http"
	"strings"

	"authly.org/internal/audit"
	"authly.org/internal/auth"
	"authly.org/internal/obs"
)

type loginRequest struct {
	UserID string `json:"user_id"`
}

type refreshRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req loginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		writeError(w, r, http.StatusBadRequest, "user_id is required")
		return
	}

	pair, err := a.svc.Login(r.Context(), userID)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	obs.TokenIssued()
	_ = audit.LogEvent(r.Context(), "auth.login", map[string]any{
		"user_id": userID,
	})
	writeJSON(w, http.StatusOK, pair)
}

func (a *API) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	var req refreshRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}

	pair, err := a.svc.Refresh(r.Context(), req.AccessToken, req.RefreshToken)
	if err != nil {
		obs.TokenRotation(rotationResult(err))
		_ = audit.LogEvent(r.Context(), "auth.refresh.denied", map[string]any{
			"reason": rotationResult(err),
		})
		writeDomainError(w, r, err)
		return
	}

	obs.TokenIssued()
	obs.TokenRotation("ok")
	_ = audit.LogEvent(r.Context(), "auth.refresh", nil)
	writeJSON(w, http.StatusOK, pair)
}

func rotationResult(err error) string {
	var domainErr *auth.Error
	if errors.As(err, &domainErr) {
		return domainErr.Code
	}
	return "error"
}
