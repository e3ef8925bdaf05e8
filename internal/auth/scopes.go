package auth

import (
	"context"
	"sort"
)

// EffectiveScopes resolves the deduplicated set of scope names granted to the
// user through every assigned role. Claims embedded in access tokens reflect
// this set at issuance time, not live at verification time.
func (s *Service) EffectiveScopes(ctx context.Context, userID string) ([]string, error) {
	return execute(ctx, s.store, func(uow UnitOfWork) ([]string, error) {
		user, err := uow.Users().GetByID(ctx, userID)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return nil, ErrUserNotFound
		}
		return s.effectiveScopes(ctx, uow, user)
	})
}

func (s *Service) effectiveScopes(ctx context.Context, uow UnitOfWork, user *User) ([]string, error) {
	roles, err := uow.Roles().ForUser(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	idSet := make(map[string]struct{})
	for _, role := range roles {
		for _, scopeID := range role.ScopeIDs {
			idSet[scopeID] = struct{}{}
		}
	}
	if len(idSet) == 0 {
		return nil, nil
	}
	scopeIDs := make([]string, 0, len(idSet))
	for id := range idSet {
		scopeIDs = append(scopeIDs, id)
	}
	scopes, err := uow.Scopes().GetByIDs(ctx, scopeIDs)
	if err != nil {
		return nil, err
	}
	nameSet := make(map[string]struct{}, len(scopes))
	for _, scope := range scopes {
		nameSet[scope.Name] = struct{}{}
	}
	names := make([]string, 0, len(nameSet))
	for name := range nameSet {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}
