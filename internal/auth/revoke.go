package auth

import (
	"context"
	"strings"

	"authly.org/internal/ids"
)

// RevokeSession explicitly revokes a single session by id. The requester must
// be allowed to manage the session's owner. Revoking an already revoked
// session re-stamps the timestamp; there is no special-cased error here.
func (s *Service) RevokeSession(ctx context.Context, sessionID, requestingUserID string) error {
	sessionID = strings.TrimSpace(sessionID)
	if !ids.IsValid(sessionID) {
		return ErrRefreshTokenInvalid
	}
	_, err := execute(ctx, s.store, func(uow UnitOfWork) (struct{}, error) {
		rec, err := uow.Sessions().GetByID(ctx, sessionID)
		if err != nil {
			return struct{}{}, err
		}
		if rec == nil {
			return struct{}{}, ErrRefreshTokenNotFound
		}
		if err := s.EnsureCanManageUser(ctx, uow, rec.UserID, requestingUserID); err != nil {
			return struct{}{}, err
		}
		return struct{}{}, uow.Sessions().MarkRevoked(ctx, rec.ID, s.now().UTC())
	})
	return err
}

// Sessions lists the session history of a user, newest first as stored.
func (s *Service) Sessions(ctx context.Context, targetUserID, requestingUserID string) ([]*RefreshToken, error) {
	targetUserID = strings.TrimSpace(targetUserID)
	if targetUserID == "" {
		return nil, ErrUserNotFound
	}
	return execute(ctx, s.store, func(uow UnitOfWork) ([]*RefreshToken, error) {
		if err := s.EnsureCanManageUser(ctx, uow, targetUserID, requestingUserID); err != nil {
			return nil, err
		}
		return uow.Sessions().AllForUser(ctx, targetUserID)
	})
}
