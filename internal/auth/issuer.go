package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"authly.org/internal/ids"
)

// AccessClaims is the payload of issued access tokens: subject identity, a
// unique jti binding the token to one session record, and one entry per
// granted scope name.
type AccessClaims struct {
	Name   string   `json:"name,omitempty"`
	Scopes []string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

// Login authenticates the subject by id and issues a fresh credential pair.
// The refresh record captures the caller's address and user agent from the
// request context.
func (s *Service) Login(ctx context.Context, userID string) (TokenPair, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return TokenPair{}, ErrUserNotFound
	}
	return execute(ctx, s.store, func(uow UnitOfWork) (TokenPair, error) {
		user, err := uow.Users().GetByID(ctx, userID)
		if err != nil {
			return TokenPair{}, err
		}
		if user == nil {
			return TokenPair{}, ErrUserNotFound
		}
		scopes, err := s.effectiveScopes(ctx, uow, user)
		if err != nil {
			return TokenPair{}, err
		}
		pair, _, err := s.issueTokens(ctx, uow.Sessions(), user, scopes)
		return pair, err
	})
}

// issueTokens mints a signed access token and its companion refresh record,
// persists the record, and returns both credentials. The access token itself
// is never persisted.
func (s *Service) issueTokens(ctx context.Context, sessions SessionStore, user *User, scopes []string) (TokenPair, *RefreshToken, error) {
	now := s.now().UTC()
	jti := uuid.NewString()

	claims := AccessClaims{
		Name:   user.Name,
		Scopes: scopes,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			ID:        jti,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.accessTTL)),
		},
	}
	if s.issuer != "" {
		claims.Issuer = s.issuer
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
	if err != nil {
		return TokenPair{}, nil, err
	}

	value, err := opaqueToken()
	if err != nil {
		return TokenPair{}, nil, err
	}
	meta, _ := RequestMetaFromContext(ctx)
	rec := &RefreshToken{
		ID:        ids.New(),
		UserID:    user.ID,
		Token:     value,
		JwtID:     jti,
		CreatedOn: now,
		ExpiresOn: now.Add(refreshTTL),
		IPAddress: meta.RemoteIP,
		UserAgent: meta.UserAgent,
	}
	if err := sessions.Add(ctx, rec); err != nil {
		return TokenPair{}, nil, err
	}
	return TokenPair{AccessToken: signed, RefreshToken: value}, rec, nil
}

// VerifyAccessToken fully validates a presented bearer token: signature,
// issuer, and expiry against the service clock.
func (s *Service) VerifyAccessToken(token string) (*AccessClaims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrAccessTokenInvalid
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	parsed, err := parser.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return nil, ErrAccessTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || !parsed.Valid || strings.TrimSpace(claims.Subject) == "" {
		return nil, ErrAccessTokenInvalid
	}
	if s.issuer != "" && claims.Issuer != s.issuer {
		return nil, ErrAccessTokenInvalid
	}
	return claims, nil
}

// tokenID extracts the jti from a presented access token. The signature is
// verified before any claim is trusted, but expiry is deliberately not
// checked: the access token is normally past its lifetime when refreshed.
func (s *Service) tokenID(token string) (string, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithoutClaimsValidation(),
	)
	parsed, err := parser.ParseWithClaims(token, &AccessClaims{}, func(t *jwt.Token) (any, error) {
		return s.signingKey, nil
	})
	if err != nil {
		return "", ErrAccessTokenInvalid
	}
	claims, ok := parsed.Claims.(*AccessClaims)
	if !ok || claims.ID == "" {
		return "", ErrAccessTokenInvalid
	}
	return claims.ID, nil
}

// opaqueToken returns a 128-bit random value rendered as a URL-safe string.
func opaqueToken() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}
