// Package memory provides a per-instance in-memory implementation of the auth
// store. Each Store owns its own state; nothing is shared between instances,
// which keeps test doubles isolated and lets the API binary run without a
// database. Writes are staged inside a unit of work and applied atomically at
// commit: validations for every staged write run first, under one lock, and
// only if all pass are the writes applied.
package memory

import (
	"context"
	"sync"
	"time"

	"authly.org/internal/auth"
)

// Store holds committed state. Use New for every independent instance.
type Store struct {
	mu              sync.Mutex
	orgs            map[string]*auth.Organization
	users           map[string]*auth.User
	roles           map[string]*auth.Role
	scopes          map[string]*auth.Scope
	sessions        map[string]*auth.RefreshToken
	sessionsByValue map[string]string
}

// New constructs an empty store.
func New() *Store {
	return &Store{
		orgs:            make(map[string]*auth.Organization),
		users:           make(map[string]*auth.User),
		roles:           make(map[string]*auth.Role),
		scopes:          make(map[string]*auth.Scope),
		sessions:        make(map[string]*auth.RefreshToken),
		sessionsByValue: make(map[string]string),
	}
}

// Begin opens a unit of work over this store.
func (s *Store) Begin(ctx context.Context) (auth.UnitOfWork, error) {
	return &unitOfWork{store: s}, nil
}

// stagedOp is one pending write: validate runs first for every staged op,
// apply runs only after all validations passed. Both run under the store lock.
type stagedOp struct {
	validate func() error
	apply    func()
}

type unitOfWork struct {
	store  *Store
	mu     sync.Mutex
	staged []stagedOp
	done   bool
}

func (u *unitOfWork) stage(op stagedOp) {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.staged = append(u.staged, op)
}

func (u *unitOfWork) Commit(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.done {
		return nil
	}
	u.done = true

	u.store.mu.Lock()
	defer u.store.mu.Unlock()
	for _, op := range u.staged {
		if op.validate != nil {
			if err := op.validate(); err != nil {
				u.staged = nil
				return err
			}
		}
	}
	for _, op := range u.staged {
		op.apply()
	}
	u.staged = nil
	return nil
}

func (u *unitOfWork) Rollback(ctx context.Context) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	u.done = true
	u.staged = nil
	return nil
}

func (u *unitOfWork) Organizations() auth.OrganizationStore { return &organizationStore{u} }
func (u *unitOfWork) Users() auth.UserStore                 { return &userStore{u} }
func (u *unitOfWork) Roles() auth.RoleStore                 { return &roleStore{u} }
func (u *unitOfWork) Scopes() auth.ScopeStore               { return &scopeStore{u} }
func (u *unitOfWork) Sessions() auth.SessionStore           { return &sessionStore{u} }

// --- organizations ---

type organizationStore struct{ uow *unitOfWork }

func (r *organizationStore) Add(ctx context.Context, org *auth.Organization) error {
	clone := cloneOrg(org)
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.orgs[clone.ID]; ok {
				return auth.ErrConflict
			}
			return nil
		},
		apply: func() { r.uow.store.orgs[clone.ID] = clone },
	})
	return nil
}

func (r *organizationStore) GetByID(ctx context.Context, id string) (*auth.Organization, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	org, ok := r.uow.store.orgs[id]
	if !ok {
		return nil, nil
	}
	return cloneOrg(org), nil
}

func (r *organizationStore) List(ctx context.Context) ([]*auth.Organization, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	out := make([]*auth.Organization, 0, len(r.uow.store.orgs))
	for _, org := range r.uow.store.orgs {
		out = append(out, cloneOrg(org))
	}
	sortByID(out, func(o *auth.Organization) string { return o.ID })
	return out, nil
}

func (r *organizationStore) Update(ctx context.Context, org *auth.Organization) error {
	clone := cloneOrg(org)
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.orgs[clone.ID]; !ok {
				return auth.ErrOrganizationNotFound
			}
			return nil
		},
		apply: func() { r.uow.store.orgs[clone.ID] = clone },
	})
	return nil
}

// --- users ---

type userStore struct{ uow *unitOfWork }

func (r *userStore) Add(ctx context.Context, u *auth.User) error {
	clone := cloneUser(u)
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.users[clone.ID]; ok {
				return auth.ErrConflict
			}
			return nil
		},
		apply: func() { r.uow.store.users[clone.ID] = clone },
	})
	return nil
}

func (r *userStore) GetByID(ctx context.Context, id string) (*auth.User, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	u, ok := r.uow.store.users[id]
	if !ok {
		return nil, nil
	}
	return cloneUser(u), nil
}

func (r *userStore) OrganizationIDForUser(ctx context.Context, userID string) (string, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	u, ok := r.uow.store.users[userID]
	if !ok {
		return "", nil
	}
	return u.OrganizationID, nil
}

func (r *userStore) ListByOrganization(ctx context.Context, orgID string) ([]*auth.User, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	var out []*auth.User
	for _, u := range r.uow.store.users {
		if u.OrganizationID == orgID {
			out = append(out, cloneUser(u))
		}
	}
	sortByID(out, func(u *auth.User) string { return u.ID })
	return out, nil
}

func (r *userStore) Update(ctx context.Context, u *auth.User) error {
	clone := cloneUser(u)
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.users[clone.ID]; !ok {
				return auth.ErrUserNotFound
			}
			return nil
		},
		apply: func() { r.uow.store.users[clone.ID] = clone },
	})
	return nil
}

func (r *userStore) Delete(ctx context.Context, id string) error {
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.users[id]; !ok {
				return auth.ErrUserNotFound
			}
			return nil
		},
		apply: func() { delete(r.uow.store.users, id) },
	})
	return nil
}

// --- roles ---

type roleStore struct{ uow *unitOfWork }

func (r *roleStore) Add(ctx context.Context, role *auth.Role) error {
	clone := cloneRole(role)
	r.uow.stage(stagedOp{
		validate: func() error {
			for _, existing := range r.uow.store.roles {
				if existing.OrganizationID == clone.OrganizationID && existing.Name == clone.Name {
					return auth.ErrConflict
				}
			}
			return nil
		},
		apply: func() { r.uow.store.roles[clone.ID] = clone },
	})
	return nil
}

func (r *roleStore) GetByID(ctx context.Context, id string) (*auth.Role, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	role, ok := r.uow.store.roles[id]
	if !ok {
		return nil, nil
	}
	return cloneRole(role), nil
}

func (r *roleStore) GetByName(ctx context.Context, orgID, name string) (*auth.Role, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	for _, role := range r.uow.store.roles {
		if role.OrganizationID == orgID && role.Name == name {
			return cloneRole(role), nil
		}
	}
	return nil, nil
}

func (r *roleStore) ListByOrganization(ctx context.Context, orgID string) ([]*auth.Role, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	var out []*auth.Role
	for _, role := range r.uow.store.roles {
		if role.OrganizationID == orgID {
			out = append(out, cloneRole(role))
		}
	}
	sortByID(out, func(role *auth.Role) string { return role.ID })
	return out, nil
}

func (r *roleStore) ForUser(ctx context.Context, userID string) ([]*auth.Role, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	u, ok := r.uow.store.users[userID]
	if !ok {
		return nil, nil
	}
	var out []*auth.Role
	for _, roleID := range u.RoleIDs {
		if role, ok := r.uow.store.roles[roleID]; ok {
			out = append(out, cloneRole(role))
		}
	}
	return out, nil
}

func (r *roleStore) Update(ctx context.Context, role *auth.Role) error {
	clone := cloneRole(role)
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.roles[clone.ID]; !ok {
				return auth.ErrRoleNotFound
			}
			return nil
		},
		apply: func() { r.uow.store.roles[clone.ID] = clone },
	})
	return nil
}

// --- scopes ---

type scopeStore struct{ uow *unitOfWork }

func (r *scopeStore) Add(ctx context.Context, scope *auth.Scope) error {
	clone := *scope
	r.uow.stage(stagedOp{
		validate: func() error {
			for _, existing := range r.uow.store.scopes {
				if existing.OrganizationID == clone.OrganizationID && existing.Name == clone.Name {
					return auth.ErrConflict
				}
			}
			return nil
		},
		apply: func() { r.uow.store.scopes[clone.ID] = &clone },
	})
	return nil
}

func (r *scopeStore) GetByName(ctx context.Context, orgID, name string) (*auth.Scope, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	for _, scope := range r.uow.store.scopes {
		if scope.OrganizationID == orgID && scope.Name == name {
			clone := *scope
			return &clone, nil
		}
	}
	return nil, nil
}

func (r *scopeStore) GetByNames(ctx context.Context, orgID string, names []string) ([]*auth.Scope, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	wanted := make(map[string]struct{}, len(names))
	for _, n := range names {
		wanted[n] = struct{}{}
	}
	var out []*auth.Scope
	for _, scope := range r.uow.store.scopes {
		if scope.OrganizationID != orgID {
			continue
		}
		if _, ok := wanted[scope.Name]; ok {
			clone := *scope
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *scopeStore) GetByIDs(ctx context.Context, scopeIDs []string) ([]*auth.Scope, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	var out []*auth.Scope
	for _, id := range scopeIDs {
		if scope, ok := r.uow.store.scopes[id]; ok {
			clone := *scope
			out = append(out, &clone)
		}
	}
	return out, nil
}

func (r *scopeStore) ListByOrganization(ctx context.Context, orgID string) ([]*auth.Scope, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	var out []*auth.Scope
	for _, scope := range r.uow.store.scopes {
		if scope.OrganizationID == orgID {
			clone := *scope
			out = append(out, &clone)
		}
	}
	sortByID(out, func(scope *auth.Scope) string { return scope.ID })
	return out, nil
}

// --- sessions ---

type sessionStore struct{ uow *unitOfWork }

func (r *sessionStore) Add(ctx context.Context, tok *auth.RefreshToken) error {
	clone := cloneSession(tok)
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.sessions[clone.ID]; ok {
				return auth.ErrConflict
			}
			if _, ok := r.uow.store.sessionsByValue[clone.Token]; ok {
				return auth.ErrConflict
			}
			return nil
		},
		apply: func() {
			r.uow.store.sessions[clone.ID] = clone
			r.uow.store.sessionsByValue[clone.Token] = clone.ID
		},
	})
	return nil
}

func (r *sessionStore) GetByID(ctx context.Context, id string) (*auth.RefreshToken, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	tok, ok := r.uow.store.sessions[id]
	if !ok {
		return nil, nil
	}
	return cloneSession(tok), nil
}

func (r *sessionStore) GetByValue(ctx context.Context, value string) (*auth.RefreshToken, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	id, ok := r.uow.store.sessionsByValue[value]
	if !ok {
		return nil, nil
	}
	return cloneSession(r.uow.store.sessions[id]), nil
}

func (r *sessionStore) AllForUser(ctx context.Context, userID string) ([]*auth.RefreshToken, error) {
	r.uow.store.mu.Lock()
	defer r.uow.store.mu.Unlock()
	var out []*auth.RefreshToken
	for _, tok := range r.uow.store.sessions {
		if tok.UserID == userID {
			out = append(out, cloneSession(tok))
		}
	}
	sortByID(out, func(tok *auth.RefreshToken) string { return tok.ID })
	return out, nil
}

func (r *sessionStore) MarkRotated(ctx context.Context, id string, revokedOn time.Time, replacedByID string) error {
	r.uow.stage(stagedOp{
		validate: func() error {
			tok, ok := r.uow.store.sessions[id]
			if !ok {
				return auth.ErrRefreshTokenNotFound
			}
			// Already revoked means a concurrent rotation won; this unit loses.
			if tok.RevokedOn != nil {
				return auth.ErrRefreshTokenRevoked
			}
			return nil
		},
		apply: func() {
			tok := r.uow.store.sessions[id]
			ts := revokedOn
			tok.RevokedOn = &ts
			tok.ReplacedByTokenID = replacedByID
		},
	})
	return nil
}

func (r *sessionStore) MarkRevoked(ctx context.Context, id string, revokedOn time.Time) error {
	r.uow.stage(stagedOp{
		validate: func() error {
			if _, ok := r.uow.store.sessions[id]; !ok {
				return auth.ErrRefreshTokenNotFound
			}
			return nil
		},
		apply: func() {
			ts := revokedOn
			r.uow.store.sessions[id].RevokedOn = &ts
		},
	})
	return nil
}

// --- helpers ---

func cloneOrg(org *auth.Organization) *auth.Organization {
	clone := *org
	clone.OwnerIDs = append([]string(nil), org.OwnerIDs...)
	return &clone
}

func cloneUser(u *auth.User) *auth.User {
	clone := *u
	clone.RoleIDs = append([]string(nil), u.RoleIDs...)
	return &clone
}

func cloneRole(role *auth.Role) *auth.Role {
	clone := *role
	clone.ScopeIDs = append([]string(nil), role.ScopeIDs...)
	return &clone
}

func cloneSession(tok *auth.RefreshToken) *auth.RefreshToken {
	clone := *tok
	if tok.RevokedOn != nil {
		ts := *tok.RevokedOn
		clone.RevokedOn = &ts
	}
	return &clone
}

func sortByID[T any](items []T, key func(T) string) {
	for i := 1; i < len(items); i++ {
		for j := i; j > 0 && key(items[j]) < key(items[j-1]); j-- {
			items[j], items[j-1] = items[j-1], items[j]
		}
	}
}
