package auth

import (
	"context"
	"strings"
)

// RequestMeta carries caller network metadata captured at the boundary. The
// access-decision engine reads the remote address from here, and issued
// session records capture both fields.
type RequestMeta struct {
	RemoteIP  string
	UserAgent string
}

type metaContextKey struct{}
type userContextKey struct{}
type scopesContextKey struct{}

// ContextWithRequestMeta attaches caller network metadata to the context.
func ContextWithRequestMeta(ctx context.Context, meta RequestMeta) context.Context {
	return context.WithValue(ctx, metaContextKey{}, meta)
}

// RequestMetaFromContext extracts caller network metadata from the context.
func RequestMetaFromContext(ctx context.Context) (RequestMeta, bool) {
	if ctx == nil {
		return RequestMeta{}, false
	}
	meta, ok := ctx.Value(metaContextKey{}).(RequestMeta)
	return meta, ok
}

// ContextWithUserID stores the authenticated subject in the context.
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return ctx
	}
	return context.WithValue(ctx, userContextKey{}, userID)
}

// UserIDFromContext extracts the authenticated subject from the context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	if ctx == nil {
		return "", false
	}
	v, ok := ctx.Value(userContextKey{}).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// ContextWithScopes stores the scope claims of the presented access token.
func ContextWithScopes(ctx context.Context, scopes []string) context.Context {
	if len(scopes) == 0 {
		return ctx
	}
	return context.WithValue(ctx, scopesContextKey{}, scopes)
}

// ScopesFromContext returns the scope claims stored in the context.
func ScopesFromContext(ctx context.Context) []string {
	if ctx == nil {
		return nil
	}
	v, ok := ctx.Value(scopesContextKey{}).([]string)
	if !ok || len(v) == 0 {
		return nil
	}
	out := make([]string, len(v))
	copy(out, v)
	return out
}
