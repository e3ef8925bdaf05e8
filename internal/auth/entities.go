package auth

import (
	"context"
	"slices"
	"strings"

	"authly.org/internal/ids"
)

// Entity management around the credential core. Every mutating operation is
// gated by the access-decision engine before any tenant state is read or
// written, and runs inside one commit-on-success unit of work.

// CreateOrganization provisions a new tenant. Platform allow-list only.
func (s *Service) CreateOrganization(ctx context.Context, name string) (*Organization, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrOrganizationNameEmpty
	}
	if err := s.ensureRootIP(ctx); err != nil {
		return nil, err
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (*Organization, error) {
		now := s.now().UTC()
		org := &Organization{
			ID:        ids.New(),
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if err := uow.Organizations().Add(ctx, org); err != nil {
			return nil, err
		}
		return org, nil
	})
}

// Organizations lists all tenants. Platform allow-list only.
func (s *Service) Organizations(ctx context.Context) ([]*Organization, error) {
	if err := s.ensureRootIP(ctx); err != nil {
		return nil, err
	}
	return execute(ctx, s.store, func(uow UnitOfWork) ([]*Organization, error) {
		return uow.Organizations().List(ctx)
	})
}

// AddOrganizationOwner promotes an existing user of the organization into its
// owner list.
func (s *Service) AddOrganizationOwner(ctx context.Context, orgID, userID, requestingUserID string) (*Organization, error) {
	return execute(ctx, s.store, func(uow UnitOfWork) (*Organization, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		org, err := uow.Organizations().GetByID(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, ErrOrganizationNotFound
		}
		user, err := uow.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil || user.OrganizationID != orgID {
			return nil, ErrUserNotFound
		}
		if !slices.Contains(org.OwnerIDs, userID) {
			org.OwnerIDs = append(org.OwnerIDs, userID)
			org.UpdatedAt = s.now().UTC()
			if err := uow.Organizations().Update(ctx, org); err != nil {
				return nil, err
			}
		}
		return org, nil
	})
}

// CreateOrganizationUser adds a user to the organization.
func (s *Service) CreateOrganizationUser(ctx context.Context, orgID, name, requestingUserID string) (*User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrUserNameEmpty
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (*User, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		org, err := uow.Organizations().GetByID(ctx, orgID)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, ErrOrganizationNotFound
		}
		now := s.now().UTC()
		user := &User{
			ID:             ids.New(),
			OrganizationID: org.ID,
			Name:           name,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := uow.Users().Add(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	})
}

// UpdateOrganizationUser renames a user of the organization.
func (s *Service) UpdateOrganizationUser(ctx context.Context, orgID, userID, name, requestingUserID string) (*User, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrUserNameEmpty
	}
	if strings.TrimSpace(userID) == "" {
		return nil, ErrUserNotFound
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (*User, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		user, err := uow.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil || user.OrganizationID != orgID {
			return nil, ErrUserNotFound
		}
		user.Name = name
		user.UpdatedAt = s.now().UTC()
		if err := uow.Users().Update(ctx, user); err != nil {
			return nil, err
		}
		return user, nil
	})
}

// DeleteOrganizationUser removes a user from the organization. A user can
// never remove itself, regardless of the authorization outcome.
func (s *Service) DeleteOrganizationUser(ctx context.Context, orgID, userID, requestingUserID string) error {
	if strings.TrimSpace(userID) == "" {
		return ErrUserNotFound
	}
	if userID == requestingUserID {
		return ErrCannotRemoveSelf
	}
	_, err := execute(ctx, s.store, func(uow UnitOfWork) (struct{}, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return struct{}{}, err
		}
		user, err := uow.Users().GetByID(ctx, userID)
		if err != nil {
			return struct{}{}, err
		}
		if user == nil || user.OrganizationID != orgID {
			return struct{}{}, ErrUserNotFound
		}
		return struct{}{}, uow.Users().Delete(ctx, user.ID)
	})
	return err
}

// OrganizationUsers lists the users of the organization.
func (s *Service) OrganizationUsers(ctx context.Context, orgID, requestingUserID string) ([]*User, error) {
	return execute(ctx, s.store, func(uow UnitOfWork) ([]*User, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		return uow.Users().ListByOrganization(ctx, orgID)
	})
}

// UpsertRole creates or replaces a role by (organization, name). The scope
// set must be non-empty and every name must resolve within the organization.
func (s *Service) UpsertRole(ctx context.Context, orgID, name string, scopeNames []string, requestingUserID string) (*Role, error) {
	names := dedupeNames(scopeNames)
	if len(names) == 0 {
		return nil, ErrScopesRequired
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (*Role, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		found, err := uow.Scopes().GetByNames(ctx, orgID, names)
		if err != nil {
			return nil, err
		}
		foundByName := make(map[string]*Scope, len(found))
		for _, scope := range found {
			foundByName[scope.Name] = scope
		}
		for _, n := range names {
			if _, ok := foundByName[n]; !ok {
				return nil, ScopeNotFound(n)
			}
		}
		scopeIDs := make([]string, 0, len(names))
		for _, n := range names {
			scopeIDs = append(scopeIDs, foundByName[n].ID)
		}

		now := s.now().UTC()
		role, err := uow.Roles().GetByName(ctx, orgID, name)
		if err != nil {
			return nil, err
		}
		if role == nil {
			role = &Role{
				ID:             ids.New(),
				OrganizationID: orgID,
				Name:           name,
				ScopeIDs:       scopeIDs,
				CreatedAt:      now,
				UpdatedAt:      now,
			}
			if err := uow.Roles().Add(ctx, role); err != nil {
				return nil, err
			}
			return role, nil
		}
		role.ScopeIDs = scopeIDs
		role.UpdatedAt = now
		if err := uow.Roles().Update(ctx, role); err != nil {
			return nil, err
		}
		return role, nil
	})
}

// Roles lists the roles of the organization.
func (s *Service) Roles(ctx context.Context, orgID, requestingUserID string) ([]*Role, error) {
	return execute(ctx, s.store, func(uow UnitOfWork) ([]*Role, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		return uow.Roles().ListByOrganization(ctx, orgID)
	})
}

// AssignRole grants an organization role to a user of the same organization.
func (s *Service) AssignRole(ctx context.Context, orgID, userID, roleID, requestingUserID string) (*User, error) {
	return execute(ctx, s.store, func(uow UnitOfWork) (*User, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		user, err := uow.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil || user.OrganizationID != orgID {
			return nil, ErrUserNotFound
		}
		role, err := uow.Roles().GetByID(ctx, roleID)
		if err != nil {
			return nil, err
		}
		if role == nil || role.OrganizationID != orgID {
			return nil, ErrRoleNotFound
		}
		if !slices.Contains(user.RoleIDs, role.ID) {
			user.RoleIDs = append(user.RoleIDs, role.ID)
			user.UpdatedAt = s.now().UTC()
			if err := uow.Users().Update(ctx, user); err != nil {
				return nil, err
			}
		}
		return user, nil
	})
}

// UpsertScope creates a scope by (organization, name) or returns the existing
// one; scopes have no other editable fields.
func (s *Service) UpsertScope(ctx context.Context, orgID, name, requestingUserID string) (*Scope, error) {
	if strings.TrimSpace(name) == "" {
		return nil, ErrScopeNameEmpty
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (*Scope, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		scope, err := uow.Scopes().GetByName(ctx, orgID, name)
		if err != nil {
			return nil, err
		}
		if scope != nil {
			return scope, nil
		}
		scope = &Scope{
			ID:             ids.New(),
			OrganizationID: orgID,
			Name:           name,
			CreatedAt:      s.now().UTC(),
		}
		if err := uow.Scopes().Add(ctx, scope); err != nil {
			return nil, err
		}
		return scope, nil
	})
}

// Scopes lists the scopes of the organization.
func (s *Service) Scopes(ctx context.Context, orgID, requestingUserID string) ([]*Scope, error) {
	return execute(ctx, s.store, func(uow UnitOfWork) ([]*Scope, error) {
		if err := s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID); err != nil {
			return nil, err
		}
		return uow.Scopes().ListByOrganization(ctx, orgID)
	})
}

func dedupeNames(values []string) []string {
	if len(values) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(values))
	result := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		result = append(result, v)
	}
	return result
}
