package auth_test

import (
	"context"
	"errors"
	"testing"

	"authly.org/internal/auth"
)

func TestRootCallerByAddress(t *testing.T) {
	f := newFixture(t)
	if !f.svc.IsRootCaller(rootCtx()) {
		t.Fatalf("allow-listed address not recognized")
	}
	if f.svc.IsRootCaller(anonCtx()) {
		t.Fatalf("ordinary address treated as platform caller")
	}
	if f.svc.IsRootCaller(context.Background()) {
		t.Fatalf("missing request metadata treated as platform caller")
	}
}

func TestRootCallerIPv4MappedIPv6(t *testing.T) {
	f := newFixture(t)
	ctx := auth.ContextWithRequestMeta(context.Background(), auth.RequestMeta{
		RemoteIP: "::ffff:203.0.113.9",
	})
	if !f.svc.IsRootCaller(ctx) {
		t.Fatalf("IPv4-mapped IPv6 form of an allow-listed address rejected")
	}
}

func TestRootCallerGarbageAddress(t *testing.T) {
	f := newFixture(t)
	ctx := auth.ContextWithRequestMeta(context.Background(), auth.RequestMeta{
		RemoteIP: "not-an-address",
	})
	if f.svc.IsRootCaller(ctx) {
		t.Fatalf("unparseable address treated as platform caller")
	}
}

func TestOwnerManagesOrganization(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	f.seedUser(t, "org-acme", "u-member", "Member", false)

	// The owner may list users without a platform address.
	users, err := f.svc.OrganizationUsers(anonCtx(), "org-acme", "u-owner")
	if err != nil {
		t.Fatalf("owner list: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected two users, got %d", len(users))
	}

	// An ordinary member is rejected.
	if _, err := f.svc.OrganizationUsers(anonCtx(), "org-acme", "u-member"); !errors.Is(err, auth.ErrUnauthorizedOwner) {
		t.Fatalf("member err = %v, want ErrUnauthorizedOwner", err)
	}
}

func TestOwnerOfOtherTenantDenied(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-acme-owner", "AcmeOwner", true)
	f.seedUser(t, "org-globex", "u-globex-owner", "GlobexOwner", true)

	if _, err := f.svc.OrganizationUsers(anonCtx(), "org-acme", "u-globex-owner"); !errors.Is(err, auth.ErrUnauthorizedOwner) {
		t.Fatalf("cross-tenant owner err = %v, want ErrUnauthorizedOwner", err)
	}
}

func TestMissingOrganizationLooksLikeDenial(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)

	// A nonexistent tenant and a denied caller are indistinguishable.
	if _, err := f.svc.OrganizationUsers(anonCtx(), "org-ghost", "u-owner"); !errors.Is(err, auth.ErrUnauthorizedOwner) {
		t.Fatalf("err = %v, want ErrUnauthorizedOwner", err)
	}
}

func TestRootBypassesOwnershipLookup(t *testing.T) {
	f := newFixture(t)
	// No organization exists. The platform caller passes the access decision
	// and fails only on the entity lookup itself.
	_, err := f.svc.CreateOrganizationUser(rootCtx(), "org-ghost", "Kim", "")
	if !errors.Is(err, auth.ErrOrganizationNotFound) {
		t.Fatalf("err = %v, want ErrOrganizationNotFound", err)
	}
}

func TestSelfAccessToSessions(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	f.seedUser(t, "org-acme", "u-other", "Other", false)
	login(t, f, "u-kim")

	// Users read their own sessions without ownership or a platform address.
	sessions, err := f.svc.Sessions(anonCtx(), "u-kim", "u-kim")
	if err != nil {
		t.Fatalf("self access: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}

	// A peer in the same organization is not enough.
	if _, err := f.svc.Sessions(anonCtx(), "u-kim", "u-other"); !errors.Is(err, auth.ErrUnauthorizedOwner) {
		t.Fatalf("peer err = %v, want ErrUnauthorizedOwner", err)
	}
}

func TestOwnerAccessToMemberSessions(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	login(t, f, "u-kim")

	sessions, err := f.svc.Sessions(anonCtx(), "u-kim", "u-owner")
	if err != nil {
		t.Fatalf("owner access: %v", err)
	}
	if len(sessions) != 1 {
		t.Fatalf("expected one session, got %d", len(sessions))
	}
}

func TestManageUnknownTargetUser(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-owner", "Owner", true)

	if _, err := f.svc.Sessions(anonCtx(), "ghost", "u-owner"); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}

func TestCreateOrganizationRequiresRootAddress(t *testing.T) {
	f := newFixture(t)

	if _, err := f.svc.CreateOrganization(anonCtx(), "acme"); !errors.Is(err, auth.ErrUnauthorizedIP) {
		t.Fatalf("err = %v, want ErrUnauthorizedIP", err)
	}
	org, err := f.svc.CreateOrganization(rootCtx(), "acme")
	if err != nil {
		t.Fatalf("root create: %v", err)
	}
	if org.ID == "" || org.Name != "acme" {
		t.Fatalf("unexpected organization: %+v", org)
	}

	orgs, err := f.svc.Organizations(rootCtx())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(orgs) != 1 {
		t.Fatalf("expected one organization, got %d", len(orgs))
	}
	if _, err := f.svc.Organizations(anonCtx()); !errors.Is(err, auth.ErrUnauthorizedIP) {
		t.Fatalf("anon list err = %v, want ErrUnauthorizedIP", err)
	}
}
