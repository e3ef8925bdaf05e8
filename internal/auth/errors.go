package auth

import (
	"errors"
	"fmt"
)

// Error is a domain-level outcome with a stable code. Codes are the contract
// the boundary layer maps to transport statuses; messages may change.
type Error struct {
	Code    string
	Message string
}

func (e *Error) Error() string {
	return e.Code + ": " + e.Message
}

// Is matches by code so parameterized errors compare against their template.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Code == e.Code
}

var (
	ErrUnauthorizedIP    = &Error{Code: "User.UnauthorizedIp", Message: "IP is not authorized"}
	ErrUnauthorizedOwner = &Error{Code: "User.UnauthorizedOwner", Message: "user is not an owner of the organization"}
	ErrUnauthorized      = &Error{Code: "User.Unauthorized", Message: "user is not authorized"}
	ErrUserNotFound      = &Error{Code: "User.NotFound", Message: "user not found"}
	ErrUserNameEmpty     = &Error{Code: "User.NameEmpty", Message: "user name cannot be empty"}
	ErrCannotRemoveSelf  = &Error{Code: "User.CannotRemoveSelf", Message: "user cannot remove themselves"}

	ErrOrganizationNameEmpty = &Error{Code: "Organization.NameEmpty", Message: "organization name cannot be empty"}
	ErrOrganizationNotFound  = &Error{Code: "Organization.NotFound", Message: "organization not found"}

	ErrScopesRequired = &Error{Code: "Role.ScopesRequired", Message: "at least one scope is required for a role"}
	ErrRoleNotFound   = &Error{Code: "Role.NotFound", Message: "role not found"}

	ErrScopeNameEmpty = &Error{Code: "Scope.NameEmpty", Message: "scope name cannot be empty"}

	ErrRefreshTokenNotFound = &Error{Code: "RefreshToken.NotFound", Message: "refresh token not found"}
	ErrRefreshTokenInvalid  = &Error{Code: "RefreshToken.Invalid", Message: "invalid refresh token"}
	ErrRefreshTokenRevoked  = &Error{Code: "RefreshToken.Revoked", Message: "refresh token has been revoked"}
	ErrRefreshTokenExpired  = &Error{Code: "RefreshToken.Expired", Message: "refresh token has expired"}
	ErrRefreshTokenMismatch = &Error{Code: "RefreshToken.Mismatch", Message: "refresh token does not match the access token"}

	ErrAccessTokenInvalid = &Error{Code: "AccessToken.Invalid", Message: "invalid access token"}
)

// ErrScopeNotFound is the template for ScopeNotFound; use it with errors.Is.
var ErrScopeNotFound = &Error{Code: "Role.ScopeNotFound", Message: "scope was not found"}

// ScopeNotFound reports a role referencing a scope the organization does not have.
func ScopeNotFound(name string) *Error {
	return &Error{Code: ErrScopeNotFound.Code, Message: fmt.Sprintf("scope %q was not found", name)}
}

// ErrConflict is returned by stores on uniqueness violations.
var ErrConflict = errors.New("auth: already exists")
