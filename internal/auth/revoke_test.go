package auth_test

import (
	"errors"
	"testing"

	"authly.org/internal/auth"
)

func TestRevokeOwnSession(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	pair := login(t, f, "u-kim")

	sessions, err := f.svc.Sessions(anonCtx(), "u-kim", "u-kim")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions: %v, %v", sessions, err)
	}
	sessionID := sessions[0].ID

	if err := f.svc.RevokeSession(anonCtx(), sessionID, "u-kim"); err != nil {
		t.Fatalf("RevokeSession: %v", err)
	}

	// The revoked refresh value can no longer be exchanged.
	if _, err := f.svc.Refresh(anonCtx(), pair.AccessToken, pair.RefreshToken); !errors.Is(err, auth.ErrRefreshTokenRevoked) {
		t.Fatalf("refresh after revoke err = %v, want ErrRefreshTokenRevoked", err)
	}
}

func TestRevokeSessionMalformedID(t *testing.T) {
	f := newFixture(t)
	if err := f.svc.RevokeSession(anonCtx(), "not-a-ulid", "u-kim"); !errors.Is(err, auth.ErrRefreshTokenInvalid) {
		t.Fatalf("err = %v, want ErrRefreshTokenInvalid", err)
	}
}

func TestRevokeSessionUnknownID(t *testing.T) {
	f := newFixture(t)
	// Well-formed identifier with no record behind it.
	if err := f.svc.RevokeSession(rootCtx(), "01HZXW5N9V2J3K4M5P6Q7R8S9T", ""); !errors.Is(err, auth.ErrRefreshTokenNotFound) {
		t.Fatalf("err = %v, want ErrRefreshTokenNotFound", err)
	}
}

func TestRevokeSessionDeniedForPeer(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	f.seedUser(t, "org-acme", "u-other", "Other", false)
	login(t, f, "u-kim")

	sessions, _ := f.svc.Sessions(anonCtx(), "u-kim", "u-kim")
	if err := f.svc.RevokeSession(anonCtx(), sessions[0].ID, "u-other"); !errors.Is(err, auth.ErrUnauthorizedOwner) {
		t.Fatalf("peer revoke err = %v, want ErrUnauthorizedOwner", err)
	}

	// Authorization failed before the write; the session is still active.
	after, _ := f.svc.Sessions(anonCtx(), "u-kim", "u-kim")
	if after[0].IsRevoked() {
		t.Fatalf("session revoked despite denied caller")
	}
}

func TestRevokeSessionIdempotentRestamp(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "org-acme", "u-kim", "Kim", false)
	login(t, f, "u-kim")

	sessions, _ := f.svc.Sessions(anonCtx(), "u-kim", "u-kim")
	sessionID := sessions[0].ID

	if err := f.svc.RevokeSession(anonCtx(), sessionID, "u-kim"); err != nil {
		t.Fatalf("first revoke: %v", err)
	}
	f.clock.Advance(1)
	if err := f.svc.RevokeSession(anonCtx(), sessionID, "u-kim"); err != nil {
		t.Fatalf("second revoke: %v", err)
	}

	after, _ := f.svc.Sessions(anonCtx(), "u-kim", "u-kim")
	if after[0].RevokedOn == nil || !after[0].RevokedOn.Equal(f.clock.Now()) {
		t.Fatalf("timestamp not re-stamped: %v", after[0].RevokedOn)
	}
}

func TestSessionsBlankTarget(t *testing.T) {
	f := newFixture(t)
	if _, err := f.svc.Sessions(rootCtx(), "  ", ""); !errors.Is(err, auth.ErrUserNotFound) {
		t.Fatalf("err = %v, want ErrUserNotFound", err)
	}
}
