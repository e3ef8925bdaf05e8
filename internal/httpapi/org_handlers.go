package httpapi

import (
	"net/http"
	"strings"

	"authly.org/internal/audit"
)

type createOrganizationRequest struct {
	Name string `json:"name"`
}

type createUserRequest struct {
	Name string `json:"name"`
}

type upsertRoleRequest struct {
	Name   string   `json:"name"`
	Scopes []string `json:"scopes"`
}

type upsertScopeRequest struct {
	Name string `json:"name"`
}

type addOwnerRequest struct {
	UserID string `json:"user_id"`
}

type assignRoleRequest struct {
	RoleID string `json:"role_id"`
}

func (a *API) handleOrganizationsCollection(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		a.createOrganization(w, r)
	case http.MethodGet:
		a.listOrganizations(w, r)
	default:
		methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
	}
}

// handleOrganizationResource dispatches /v1/organizations/{id}/... subresources.
func (a *API) handleOrganizationResource(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/v1/organizations/")
	orgID, rest, _ := strings.Cut(path, "/")
	if orgID == "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	head, tail, _ := strings.Cut(rest, "/")
	switch head {
	case "users":
		a.handleOrganizationUsers(w, r, orgID, tail)
	case "roles":
		a.handleOrganizationRoles(w, r, orgID, tail)
	case "scopes":
		a.handleOrganizationScopes(w, r, orgID, tail)
	case "owners":
		a.handleOrganizationOwners(w, r, orgID, tail)
	default:
		writeError(w, r, http.StatusNotFound, "resource not found")
	}
}

func (a *API) createOrganization(w http.ResponseWriter, r *http.Request) {
	var req createOrganizationRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.CreateOrganization(r.Context(), req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.create", map[string]any{
		"organization_id": org.ID,
		"name":            org.Name,
	})
	w.Header().Set("Location", "/v1/organizations/"+org.ID)
	writeJSON(w, http.StatusCreated, org)
}

func (a *API) listOrganizations(w http.ResponseWriter, r *http.Request) {
	orgs, err := a.svc.Organizations(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": orgs})
}

func (a *API) handleOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID, tail string) {
	if tail == "" {
		switch r.Method {
		case http.MethodPost:
			a.createOrganizationUser(w, r, orgID)
		case http.MethodGet:
			a.listOrganizationUsers(w, r, orgID)
		default:
			methodNotAllowed(w, r, http.MethodPost, http.MethodGet)
		}
		return
	}

	userID, sub, _ := strings.Cut(tail, "/")
	if sub == "roles" {
		if r.Method != http.MethodPost {
			methodNotAllowed(w, r, http.MethodPost)
			return
		}
		a.assignRole(w, r, orgID, userID)
		return
	}
	if sub != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}

	switch r.Method {
	case http.MethodPut:
		a.updateOrganizationUser(w, r, orgID, userID)
	case http.MethodDelete:
		a.deleteOrganizationUser(w, r, orgID, userID)
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodDelete)
	}
}

func (a *API) createOrganizationUser(w http.ResponseWriter, r *http.Request, orgID string) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.CreateOrganizationUser(r.Context(), orgID, req.Name, callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.user.create", map[string]any{
		"organization_id": orgID,
		"target_user_id":  user.ID,
	})
	w.Header().Set("Location", "/v1/organizations/"+orgID+"/users/"+user.ID)
	writeJSON(w, http.StatusCreated, user)
}

func (a *API) listOrganizationUsers(w http.ResponseWriter, r *http.Request, orgID string) {
	users, err := a.svc.OrganizationUsers(r.Context(), orgID, callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": users})
}

func (a *API) updateOrganizationUser(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	var req createUserRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.UpdateOrganizationUser(r.Context(), orgID, userID, req.Name, callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.user.update", map[string]any{
		"organization_id": orgID,
		"target_user_id":  userID,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) deleteOrganizationUser(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	if err := a.svc.DeleteOrganizationUser(r.Context(), orgID, userID, callerID(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.user.delete", map[string]any{
		"organization_id": orgID,
		"target_user_id":  userID,
	})
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) assignRole(w http.ResponseWriter, r *http.Request, orgID, userID string) {
	var req assignRoleRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	user, err := a.svc.AssignRole(r.Context(), orgID, userID, strings.TrimSpace(req.RoleID), callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.user.assign_role", map[string]any{
		"organization_id": orgID,
		"target_user_id":  userID,
		"role_id":         req.RoleID,
	})
	writeJSON(w, http.StatusOK, user)
}

func (a *API) handleOrganizationRoles(w http.ResponseWriter, r *http.Request, orgID, tail string) {
	if tail != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req upsertRoleRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		role, err := a.svc.UpsertRole(r.Context(), orgID, strings.TrimSpace(req.Name), req.Scopes, callerID(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "org.role.upsert", map[string]any{
			"organization_id": orgID,
			"role_id":         role.ID,
			"name":            role.Name,
		})
		writeJSON(w, http.StatusOK, role)
	case http.MethodGet:
		roles, err := a.svc.Roles(r.Context(), orgID, callerID(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": roles})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodGet)
	}
}

func (a *API) handleOrganizationScopes(w http.ResponseWriter, r *http.Request, orgID, tail string) {
	if tail != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	switch r.Method {
	case http.MethodPut:
		var req upsertScopeRequest
		if err := decodeJSON(w, r, &req); err != nil {
			writeError(w, r, http.StatusBadRequest, err.Error())
			return
		}
		scope, err := a.svc.UpsertScope(r.Context(), orgID, strings.TrimSpace(req.Name), callerID(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		_ = audit.LogEvent(r.Context(), "org.scope.upsert", map[string]any{
			"organization_id": orgID,
			"scope_id":        scope.ID,
			"name":            scope.Name,
		})
		writeJSON(w, http.StatusOK, scope)
	case http.MethodGet:
		scopes, err := a.svc.Scopes(r.Context(), orgID, callerID(r))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"items": scopes})
	default:
		methodNotAllowed(w, r, http.MethodPut, http.MethodGet)
	}
}

func (a *API) handleOrganizationOwners(w http.ResponseWriter, r *http.Request, orgID, tail string) {
	if tail != "" {
		writeError(w, r, http.StatusNotFound, "resource not found")
		return
	}
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req addOwnerRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	org, err := a.svc.AddOrganizationOwner(r.Context(), orgID, strings.TrimSpace(req.UserID), callerID(r))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "org.owner.add", map[string]any{
		"organization_id": orgID,
		"owner_user_id":   req.UserID,
	})
	writeJSON(w, http.StatusOK, org)
}
