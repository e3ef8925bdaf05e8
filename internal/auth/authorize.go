package auth

import (
	"context"
	"net/netip"
	"slices"
)

// The access-decision engine layers three trust sources, cheapest first:
// platform network origin, tenant ownership, self-access. Both checks are
// pure read/decision functions invoked before any organization- or
// user-scoped state is touched.

// IsRootCaller reports whether the request originates from an allow-listed
// platform address.
func (s *Service) IsRootCaller(ctx context.Context) bool {
	return s.ensureRootIP(ctx) == nil
}

func (s *Service) ensureRootIP(ctx context.Context) error {
	meta, ok := RequestMetaFromContext(ctx)
	if !ok || meta.RemoteIP == "" {
		return ErrUnauthorizedIP
	}
	addr, err := netip.ParseAddr(meta.RemoteIP)
	if err != nil {
		return ErrUnauthorizedIP
	}
	// An IPv4-mapped IPv6 caller matches its IPv4 allow-list entry.
	if _, ok := s.rootIPs[addr.Unmap()]; !ok {
		return ErrUnauthorizedIP
	}
	return nil
}

// EnsureRootOrOwner succeeds when the caller's address is on the platform
// allow-list, or when userID is an owner of the organization. A missing
// organization and a non-owner user are indistinguishable to the caller.
func (s *Service) EnsureRootOrOwner(ctx context.Context, uow UnitOfWork, organizationID, userID string) error {
	if err := s.ensureRootIP(ctx); err == nil {
		return nil
	}
	org, err := uow.Organizations().GetByID(ctx, organizationID)
	if err != nil {
		return err
	}
	if org == nil || !slices.Contains(org.OwnerIDs, userID) {
		return ErrUnauthorizedOwner
	}
	return nil
}

// EnsureCanManageUser succeeds for allow-listed callers, for self-access, and
// for owners of the target user's organization.
func (s *Service) EnsureCanManageUser(ctx context.Context, uow UnitOfWork, targetUserID, requestingUserID string) error {
	if err := s.ensureRootIP(ctx); err == nil {
		return nil
	}
	if targetUserID == requestingUserID {
		return nil
	}
	orgID, err := uow.Users().OrganizationIDForUser(ctx, targetUserID)
	if err != nil {
		return err
	}
	if orgID == "" {
		return ErrUserNotFound
	}
	return s.EnsureRootOrOwner(ctx, uow, orgID, requestingUserID)
}
