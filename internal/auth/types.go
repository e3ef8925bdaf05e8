package auth

import "time"

// Organization is an isolated tenant. OwnerIDs is an explicit reference list;
// every owner id is expected to identify a user of this organization, but the
// subset is documented rather than referentially enforced.
type Organization struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	OwnerIDs  []string  `json:"owner_ids,omitempty"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// User belongs to exactly one organization and carries its role assignments.
type User struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	RoleIDs        []string  `json:"role_ids,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Role is an organization-scoped bundle of scopes. A role references at least
// one scope; the name is unique within its organization.
type Role struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	ScopeIDs       []string  `json:"scope_ids"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Scope is a named permission, unique per organization.
type Scope struct {
	ID             string    `json:"id"`
	OrganizationID string    `json:"organization_id"`
	Name           string    `json:"name"`
	CreatedAt      time.Time `json:"created_at"`
}

// RefreshToken is the persisted session record. It is created together with
// an access token, mutated at most once (rotation or explicit revocation) and
// never deleted; the ReplacedByTokenID forward link preserves the rotation
// chain as an audit trail.
type RefreshToken struct {
	ID                string     `json:"id"`
	UserID            string     `json:"user_id"`
	Token             string     `json:"token"`
	JwtID             string     `json:"jwt_id"`
	CreatedOn         time.Time  `json:"created_on"`
	ExpiresOn         time.Time  `json:"expires_on"`
	RevokedOn         *time.Time `json:"revoked_on,omitempty"`
	ReplacedByTokenID string     `json:"replaced_by_token_id,omitempty"`
	IPAddress         string     `json:"ip_address,omitempty"`
	UserAgent         string     `json:"user_agent,omitempty"`
}

// IsRevoked reports whether the session has been revoked.
func (t *RefreshToken) IsRevoked() bool {
	return t.RevokedOn != nil
}

// IsExpired reports whether the session has expired as of now.
func (t *RefreshToken) IsExpired(now time.Time) bool {
	return !now.Before(t.ExpiresOn)
}

// IsActive reports whether the session can still be exchanged.
func (t *RefreshToken) IsActive(now time.Time) bool {
	return !t.IsRevoked() && !t.IsExpired(now)
}

// TokenPair is the credential pair returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}
