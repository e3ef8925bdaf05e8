package auth

import (
	"context"
	"time"
)

// Store opens request-scoped units of work.
type Store interface {
	Begin(ctx context.Context) (UnitOfWork, error)
}

// UnitOfWork scopes every read and write of one operation. Writes are visible
// only inside the unit until Commit flushes them atomically; Rollback discards
// them. The execution wrapper calls exactly one of the two, and Commit only
// after the operation succeeded.
type UnitOfWork interface {
	Organizations() OrganizationStore
	Users() UserStore
	Roles() RoleStore
	Scopes() ScopeStore
	Sessions() SessionStore
	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// Lookup methods on the stores below return (nil, nil) when no record exists;
// errors are reserved for infrastructure failures.

// OrganizationStore manages tenants and their owner lists.
type OrganizationStore interface {
	Add(ctx context.Context, org *Organization) error
	GetByID(ctx context.Context, id string) (*Organization, error)
	List(ctx context.Context) ([]*Organization, error)
	Update(ctx context.Context, org *Organization) error
}

// UserStore manages organization users and their role assignments.
type UserStore interface {
	Add(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	// OrganizationIDForUser returns "" when the user does not exist.
	OrganizationIDForUser(ctx context.Context, userID string) (string, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*User, error)
	Update(ctx context.Context, u *User) error
	Delete(ctx context.Context, id string) error
}

// RoleStore manages organization roles.
type RoleStore interface {
	Add(ctx context.Context, role *Role) error
	GetByID(ctx context.Context, id string) (*Role, error)
	GetByName(ctx context.Context, orgID, name string) (*Role, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*Role, error)
	ForUser(ctx context.Context, userID string) ([]*Role, error)
	Update(ctx context.Context, role *Role) error
}

// ScopeStore manages organization scopes.
type ScopeStore interface {
	Add(ctx context.Context, scope *Scope) error
	GetByName(ctx context.Context, orgID, name string) (*Scope, error)
	GetByNames(ctx context.Context, orgID string, names []string) ([]*Scope, error)
	GetByIDs(ctx context.Context, ids []string) ([]*Scope, error)
	ListByOrganization(ctx context.Context, orgID string) ([]*Scope, error)
}

// SessionStore is durable storage for refresh-token records.
type SessionStore interface {
	Add(ctx context.Context, tok *RefreshToken) error
	GetByID(ctx context.Context, id string) (*RefreshToken, error)
	GetByValue(ctx context.Context, value string) (*RefreshToken, error)
	AllForUser(ctx context.Context, userID string) ([]*RefreshToken, error)
	// MarkRotated stamps the revocation time and the forward link in one
	// conditional update. It fails with ErrRefreshTokenRevoked when the record
	// is already revoked, so the slower of two racing rotations loses.
	MarkRotated(ctx context.Context, id string, revokedOn time.Time, replacedByID string) error
	// MarkRevoked stamps the revocation time unconditionally; re-revoking an
	// already revoked session re-stamps the timestamp.
	MarkRevoked(ctx context.Context, id string, revokedOn time.Time) error
}
