package auth_test

import (
	"errors"
	"slices"
	"testing"

	"authly.org/internal/auth"
)

func TestCreateOrganizationValidation(t *testing.T) {
	f := newFixture(t)
	// Validation precedes the access decision.
	if _, err := f.svc.CreateOrganization(anonCtx(), "   "); !errors.Is(err, auth.ErrOrganizationNameEmpty) {
		t.Fatalf("err = %v, want ErrOrganizationNameEmpty", err)
	}
}

func TestOrganizationUserLifecycle(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)

	user, err := f.svc.CreateOrganizationUser(anonCtx(), "org-acme", "Kim", "u-owner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if user.OrganizationID != "org-acme" || user.Name != "Kim" {
		t.Fatalf("unexpected user: %+v", user)
	}

	renamed, err := f.svc.UpdateOrganizationUser(anonCtx(), "org-acme", user.ID, "Kim R.", "u-owner")
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if renamed.Name != "Kim R." {
		t.Fatalf("rename did not apply: %+v", renamed)
	}

	if err := f.svc.DeleteOrganizationUser(anonCtx(), "org-acme", user.ID, "u-owner"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	users, err := f.svc.OrganizationUsers(anonCtx(), "org-acme", "u-owner")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(users) != 1 {
		t.Fatalf("expected only the owner to remain, got %d users", len(users))
	}
}

func TestCreateUserEmptyName(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	if _, err := f.svc.CreateOrganizationUser(anonCtx(), "org-acme", " ", "u-owner"); !errors.Is(err, auth.ErrUserNameEmpty) {
		t.Fatalf("err = %v, want ErrUserNameEmpty", err)
	}
}

func TestUpdateUserFromOtherOrganization(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	f.seedUser(t, "org-globex", "u-globex", "Glo", false)

	if _, err := f.svc.UpdateOrganizationUser(anonCtx(), "org-acme", "u-globex", "X", "u-owner"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestDeleteSelfAlwaysRejected(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)

	// Self-removal is rejected before any access decision, even for a caller
	// who would otherwise be authorized.
	if err := f.svc.DeleteOrganizationUser(anonCtx(), "org-acme", "u-owner", "u-owner"); !errors.Is(err, auth.ErrCannotRemoveSelf) {
		t.Fatalf("owner self-delete err = %v, want ErrCannotRemoveSelf", err)
	}
	if err := f.svc.DeleteOrganizationUser(rootCtx(), "org-acme", "u-owner", "u-owner"); !errors.Is(err, auth.ErrCannotRemoveSelf) {
		t.Fatalf("root self-delete err = %v, want ErrCannotRemoveSelf", err)
	}
	// And it wins over an unauthorized caller too.
	if err := f.svc.DeleteOrganizationUser(anonCtx(), "org-acme", "u-stranger", "u-stranger"); !errors.Is(err, auth.ErrCannotRemoveSelf) {
		t.Fatalf("stranger self-delete err = %v, want ErrCannotRemoveSelf", err)
	}
}

func TestUpsertRoleRequiresScopes(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)

	if _, err := f.svc.UpsertRole(anonCtx(), "org-acme", "reader", nil, "u-owner"); !errors.Is(err, auth.ErrScopesRequired) {
		t.Fatalf("nil scopes err = %v, want ErrScopesRequired", err)
	}
	// Blank entries are dropped before the emptiness check.
	if _, err := f.svc.UpsertRole(anonCtx(), "org-acme", "reader", []string{" ", ""}, "u-owner"); !errors.Is(err, auth.ErrScopesRequired) {
		t.Fatalf("blank scopes err = %v, want ErrScopesRequired", err)
	}
}

func TestUpsertRoleUnknownScope(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	if _, err := f.svc.UpsertScope(anonCtx(), "org-acme", "reports.read", "u-owner"); err != nil {
		t.Fatalf("seed scope: %v", err)
	}

	_, err := f.svc.UpsertRole(anonCtx(), "org-acme", "reader", []string{"reports.read", "ghost"}, "u-owner")
	if !errors.Is(err, auth.ErrScopeNotFound) {
		t.Fatalf("err = %v, want ErrScopeNotFound", err)
	}
	var domainErr *auth.Error
	if !errors.As(err, &domainErr) || domainErr.Message != `scope "ghost" was not found` {
		t.Fatalf("message should name the first missing scope: %v", err)
	}
}

func TestUpsertRoleCreatesThenReplaces(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	for _, name := range []string{"reports.read", "reports.write"} {
		if _, err := f.svc.UpsertScope(anonCtx(), "org-acme", name, "u-owner"); err != nil {
			t.Fatalf("seed scope: %v", err)
		}
	}

	created, err := f.svc.UpsertRole(anonCtx(), "org-acme", "reader", []string{"reports.read"}, "u-owner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	replaced, err := f.svc.UpsertRole(anonCtx(), "org-acme", "reader", []string{"reports.read", "reports.write"}, "u-owner")
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if replaced.ID != created.ID {
		t.Fatalf("upsert by name must keep the role identity")
	}
	if len(replaced.ScopeIDs) != 2 {
		t.Fatalf("scope set not replaced: %v", replaced.ScopeIDs)
	}

	roles, err := f.svc.Roles(anonCtx(), "org-acme", "u-owner")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(roles) != 1 {
		t.Fatalf("expected one role, got %d", len(roles))
	}
}

func TestUpsertScopeIdempotent(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)

	first, err := f.svc.UpsertScope(anonCtx(), "org-acme", "reports.read", "u-owner")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := f.svc.UpsertScope(anonCtx(), "org-acme", "reports.read", "u-owner")
	if err != nil {
		t.Fatalf("repeat: %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("repeated upsert minted a new scope")
	}
	if _, err := f.svc.UpsertScope(anonCtx(), "org-acme", " ", "u-owner"); !errors.Is(err, auth.ErrScopeNameEmpty) {
		t.Fatalf("blank name err = %v, want ErrScopeNameEmpty", err)
	}
}

func TestAssignRole(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	if _, err := f.svc.UpsertScope(anonCtx(), "org-acme", "reports.read", "u-owner"); err != nil {
		t.Fatalf("seed scope: %v", err)
	}
	role, err := f.svc.UpsertRole(anonCtx(), "org-acme", "reader", []string{"reports.read"}, "u-owner")
	if err != nil {
		t.Fatalf("seed role: %v", err)
	}

	user, err := f.svc.AssignRole(anonCtx(), "org-acme", "u-kim", role.ID, "u-owner")
	if err != nil {
		t.Fatalf("assign: %v", err)
	}
	if !slices.Contains(user.RoleIDs, role.ID) {
		t.Fatalf("role not assigned: %v", user.RoleIDs)
	}
	// Assigning again is a no-op, not a duplicate.
	again, err := f.svc.AssignRole(anonCtx(), "org-acme", "u-kim", role.ID, "u-owner")
	if err != nil {
		t.Fatalf("repeat assign: %v", err)
	}
	if len(again.RoleIDs) != 1 {
		t.Fatalf("duplicate assignment: %v", again.RoleIDs)
	}

	if _, err := f.svc.AssignRole(anonCtx(), "org-acme", "u-kim", "ghost-role", "u-owner"); !errors.Is(err, auth.ErrRoleNotFound) {
		t.Fatalf("unknown role err = %v, want ErrRoleNotFound", err)
	}
}

func TestAddOrganizationOwner(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	f.seedUser(t, "org-globex", "u-globex", "Glo", false)

	org, err := f.svc.AddOrganizationOwner(anonCtx(), "org-acme", "u-kim", "u-owner")
	if err != nil {
		t.Fatalf("add owner: %v", err)
	}
	if !slices.Contains(org.OwnerIDs, "u-kim") {
		t.Fatalf("owner not added: %v", org.OwnerIDs)
	}
	// Promoting a user of another tenant is rejected.
	if _, err := f.svc.AddOrganizationOwner(anonCtx(), "org-acme", "u-globex", "u-owner"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("cross-tenant owner err = %v, want ErrUserNotFound", err)
	}
	// Idempotent for an existing owner.
	again, err := f.svc.AddOrganizationOwner(anonCtx(), "org-acme", "u-kim", "u-owner")
	if err != nil {
		t.Fatalf("repeat add: %v", err)
	}
	if n := len(again.OwnerIDs); n != 2 {
		t.Fatalf("expected two owners, got %d", n)
	}
}
