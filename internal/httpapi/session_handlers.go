package httpapi

import (
	"net/http"
	"strings"
	"time"

	"authly.org/internal/audit"
	"authly.org/internal/obs"
)

type sessionListResponse struct {
	Items []sessionView `json:"items"`
	AsOf  time.Time     `json:"as_of"`
}

// sessionView is the external shape of a session record. The opaque refresh
// value never leaves the service after issuance.
type sessionView struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	CreatedOn         time.Time  `json:"created_on"`
	ExpiresOn         time.Time  `json:"expires_on"`
	RevokedOn         *time.Time `json:"revoked_on,omitempty"`
	ReplacedByTokenID string     `json:"replaced_by_token_id,omitempty"`
	IPAddress         string     `json:"ip_address,omitempty"`
	UserAgent         string     `json:"user_agent,omitempty"`
	Active            bool       `json:"active"`
}

// handleUserResource serves /v1/users/{id}/sessions.
func (a *API) handleUserResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/users/")
	userID, rest, _ := strings.Cut(path, "/")
	if userID == "" || rest != "sessions" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}

	sessions, err := a.svc.Sessions(r.Context(), userID, callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}

	now := time.Now().UTC()
	items := make([]sessionView, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, sessionView{
			ID:                s.ID,
			UserID:            s.UserID,
			CreatedOn:         s.CreatedOn,
			ExpiresOn:         s.ExpiresOn,
			RevokedOn:         s.RevokedOn,
			ReplacedByTokenID: s.ReplacedByTokenID,
			IPAddress:         s.IPAddress,
			UserAgent:         s.UserAgent,
			Active:            s.IsActive(now),
		})
	}
	writeJSON(w, http.StatusOK, sessionListResponse{Items: items, AsOf: now})
}

// handleSessionResource serves DELETE /v1/sessions/{id}.
func (a *API) handleSessionResource(w http.ResponseWriter, r *http.Request) {
	sessionID := strings.TrimPrefix(r.URL.Path, "/v1/sessions/")
	if sessionID == "" || strings.Contains(sessionID, "/") {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodDelete {
		methodNotAllowed(w, r, http.MethodDelete)
		return
	}

	if err := a.svc.RevokeSession(r.Context(), sessionID, callerID(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}

	obs.SessionRevoked()
	_ = audit.LogEvent(r.Context(), "auth.session.revoke", map[string]any{
		"session_id": sessionID,
	})
	w.WriteHeader(http.StatusNoContent)
}
