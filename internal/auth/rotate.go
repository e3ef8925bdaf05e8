package auth

import (
	"context"
	"strings"
)

// Refresh implements the rotate-on-use protocol: a valid (access, refresh)
// pair is exchanged for a new pair, the presented refresh record is revoked
// and forward-linked to its replacement. Checkpoints are evaluated in a fixed
// order and every failure is terminal. No partial rotation is ever
// observable, because the whole exchange runs in one unit of work.
func (s *Service) Refresh(ctx context.Context, accessToken, refreshValue string) (TokenPair, error) {
	if strings.TrimSpace(accessToken) == "" {
		return TokenPair{}, ErrAccessTokenInvalid
	}
	if strings.TrimSpace(refreshValue) == "" {
		return TokenPair{}, ErrRefreshTokenInvalid
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (TokenPair, error) {
		sessions := uow.Sessions()

		stored, err := sessions.GetByValue(ctx, refreshValue)
		if err != nil {
			return TokenPair{}, err
		}
		if stored == nil {
			return TokenPair{}, ErrRefreshTokenInvalid
		}

		now := s.now().UTC()
		// Replay of an already-rotated value lands here; only the presented
		// record was revoked, the chain is not walked.
		if stored.IsRevoked() {
			return TokenPair{}, ErrRefreshTokenRevoked
		}
		if stored.IsExpired(now) {
			return TokenPair{}, ErrRefreshTokenExpired
		}

		jti, err := s.tokenID(accessToken)
		if err != nil {
			return TokenPair{}, err
		}
		if jti != stored.JwtID {
			return TokenPair{}, ErrRefreshTokenMismatch
		}

		user, err := uow.Users().GetByID(ctx, stored.UserID)
		if err != nil {
			return TokenPair{}, err
		}
		if user == nil {
			return TokenPair{}, ErrUserNotFound
		}

		// Scopes are resolved live from the role graph, not from the old token.
		scopes, err := s.effectiveScopes(ctx, uow, user)
		if err != nil {
			return TokenPair{}, err
		}
		pair, rec, err := s.issueTokens(ctx, sessions, user, scopes)
		if err != nil {
			return TokenPair{}, err
		}
		// Conditional update: a concurrent rotation that committed first makes
		// this fail with ErrRefreshTokenRevoked and the whole unit rolls back.
		if err := sessions.MarkRotated(ctx, stored.ID, now, rec.ID); err != nil {
			return TokenPair{}, err
		}
		return pair, nil
	})
}
