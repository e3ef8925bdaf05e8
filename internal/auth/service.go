package auth

import (
	"errors"
	"net/netip"
	"strings"
	"time"
)

const (
	defaultAccessTTL = 15 * time.Minute

	// Refresh tokens live for seven days from issuance. Fixed policy, not a knob.
	refreshTTL = 7 * 24 * time.Hour
)

// Service is the credential lifecycle and authorization-decision engine. All
// operations run inside one unit of work and commit only on success.
type Service struct {
	store      Store
	now        func() time.Time
	signingKey []byte
	issuer     string
	accessTTL  time.Duration
	rootIPs    map[netip.Addr]struct{}
}

// ServiceOption configures Service behavior.
type ServiceOption func(*Service) error

// WithClock overrides the time source (useful for tests).
func WithClock(fn func() time.Time) ServiceOption {
	return func(s *Service) error {
		if fn != nil {
			s.now = fn
		}
		return nil
	}
}

// WithAccessTTL configures access token lifetime.
func WithAccessTTL(ttl time.Duration) ServiceOption {
	return func(s *Service) error {
		if ttl > 0 {
			s.accessTTL = ttl
		}
		return nil
	}
}

// WithIssuer overrides the token issuer claim.
func WithIssuer(issuer string) ServiceOption {
	return func(s *Service) error {
		s.issuer = strings.TrimSpace(issuer)
		return nil
	}
}

// WithRootIPs configures the platform allow-list. Addresses are normalized so
// an IPv4-mapped IPv6 entry matches its IPv4 form.
func WithRootIPs(addrs []string) ServiceOption {
	return func(s *Service) error {
		set := make(map[netip.Addr]struct{}, len(addrs))
		for _, raw := range addrs {
			raw = strings.TrimSpace(raw)
			if raw == "" {
				continue
			}
			addr, err := netip.ParseAddr(raw)
			if err != nil {
				return errors.New("auth: invalid root ip " + raw)
			}
			set[addr.Unmap()] = struct{}{}
		}
		s.rootIPs = set
		return nil
	}
}

// NewService constructs the engine. The signing key is the symmetric secret
// used for HS256 access tokens.
func NewService(store Store, signingKey string, opts ...ServiceOption) (*Service, error) {
	if store == nil {
		return nil, errors.New("auth: store is required")
	}
	if strings.TrimSpace(signingKey) == "" {
		return nil, errors.New("auth: signing key is required")
	}
	svc := &Service{
		store:      store,
		now:        time.Now,
		signingKey: []byte(signingKey),
		accessTTL:  defaultAccessTTL,
	}
	for _, opt := range opts {
		if err := opt(svc); err != nil {
			return nil, err
		}
	}
	return svc, nil
}
