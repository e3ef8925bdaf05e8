package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"authly.org/internal/auth"
	"authly.org/internal/store/memory"
)

const rootAddr = "203.0.113.9"

func newTestAPI(t *testing.T) (*API, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc, err := auth.NewService(st, "test-signing-key",
		auth.WithIssuer("authly-test"),
		auth.WithRootIPs([]string{rootAddr}),
	)
	if err != nil {
		t.Fatalf("NewService: %v", err)
	}
	return New(svc, ReadyProbe{}, "test"), st
}

type request struct {
	method string
	path   string
	body   any
	asRoot bool
	bearer string
}

func do(t *testing.T, h http.Handler, req request) *httptest.ResponseRecorder {
	t.Helper()
	var body *bytes.Reader
	if req.body != nil {
		raw, err := json.Marshal(req.body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(req.method, req.path, body)
	r.Header.Set("User-Agent", "test-agent")
	if req.asRoot {
		r.RemoteAddr = rootAddr + ":51412"
	}
	if req.bearer != "" {
		r.Header.Set("Authorization", "Bearer "+req.bearer)
	}
	w := httptest.NewRecorder()
	h.ServeHTTP(w, r)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, dst any) {
	t.Helper()
	if err := json.Unmarshal(w.Body.Bytes(), dst); err != nil {
		t.Fatalf("decode response %q: %v", w.Body.String(), err)
	}
}

func TestHealthAndInfo(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	if w := do(t, h, request{method: http.MethodGet, path: "/healthz"}); w.Code != http.StatusOK {
		t.Fatalf("healthz = %d", w.Code)
	}
	if w := do(t, h, request{method: http.MethodGet, path: "/readyz"}); w.Code != http.StatusOK {
		t.Fatalf("readyz = %d", w.Code)
	}
	w := do(t, h, request{method: http.MethodGet, path: "/v1/info"})
	if w.Code != http.StatusOK {
		t.Fatalf("info = %d", w.Code)
	}
	if rid := w.Header().Get("X-Request-Id"); rid == "" {
		t.Fatalf("missing X-Request-Id header")
	}
}

func TestOpenAPISpecServed(t *testing.T) {
	api, _ := newTestAPI(t)
	w := do(t, api.Handler(), request{method: http.MethodGet, path: "/openapi.yaml"})
	if w.Code != http.StatusOK {
		t.Fatalf("openapi = %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "openapi:") {
		t.Fatalf("unexpected spec body: %q", w.Body.String()[:40])
	}
}

// provisionTenant drives the full bootstrap through the HTTP surface: the
// platform caller creates the organization and its first user, promotes the
// user to owner, and the owner continues with a bearer token.
func provisionTenant(t *testing.T, h http.Handler) (orgID, ownerID string, pair auth.TokenPair) {
	t.Helper()

	w := do(t, h, request{method: http.MethodPost, path: "/v1/organizations", body: map[string]string{"name": "acme"}, asRoot: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("create org = %d: %s", w.Code, w.Body.String())
	}
	var org auth.Organization
	decodeBody(t, w, &org)

	w = do(t, h, request{method: http.MethodPost, path: "/v1/organizations/" + org.ID + "/users", body: map[string]string{"name": "Owner"}, asRoot: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("create user = %d: %s", w.Code, w.Body.String())
	}
	var owner auth.User
	decodeBody(t, w, &owner)

	w = do(t, h, request{method: http.MethodPost, path: "/v1/organizations/" + org.ID + "/owners", body: map[string]string{"user_id": owner.ID}, asRoot: true})
	if w.Code != http.StatusOK {
		t.Fatalf("add owner = %d: %s", w.Code, w.Body.String())
	}

	w = do(t, h, request{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"user_id": owner.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("login = %d: %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &pair)
	return org.ID, owner.ID, pair
}

func TestTenantProvisioningFlow(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	orgID, _, pair := provisionTenant(t, h)

	// The owner manages scopes and roles with a bearer token only.
	w := do(t, h, request{method: http.MethodPut, path: "/v1/organizations/" + orgID + "/scopes", body: map[string]string{"name": "reports.read"}, bearer: pair.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert scope = %d: %s", w.Code, w.Body.String())
	}
	w = do(t, h, request{method: http.MethodPut, path: "/v1/organizations/" + orgID + "/roles", body: map[string]any{"name": "reader", "scopes": []string{"reports.read"}}, bearer: pair.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("upsert role = %d: %s", w.Code, w.Body.String())
	}
	var role auth.Role
	decodeBody(t, w, &role)

	w = do(t, h, request{method: http.MethodPost, path: "/v1/organizations/" + orgID + "/users", body: map[string]string{"name": "Kim"}, bearer: pair.AccessToken})
	if w.Code != http.StatusCreated {
		t.Fatalf("create member = %d: %s", w.Code, w.Body.String())
	}
	var member auth.User
	decodeBody(t, w, &member)

	w = do(t, h, request{method: http.MethodPost, path: "/v1/organizations/" + orgID + "/users/" + member.ID + "/roles", body: map[string]string{"role_id": role.ID}, bearer: pair.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("assign role = %d: %s", w.Code, w.Body.String())
	}

	// The member's next login carries the granted scope.
	w = do(t, h, request{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"user_id": member.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("member login = %d: %s", w.Code, w.Body.String())
	}
}

func TestOrganizationCreationRequiresPlatformAddress(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	w := do(t, h, request{method: http.MethodPost, path: "/v1/organizations", body: map[string]string{"name": "acme"}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("code = %d, want 401", w.Code)
	}
	var resp struct {
		Code string `json:"code"`
	}
	decodeBody(t, w, &resp)
	if resp.Code != "User.UnauthorizedIp" {
		t.Fatalf("code = %q", resp.Code)
	}

	// A forged forwarding header does not grant the platform bypass; only
	// the connection address counts.
	raw, err := json.Marshal(map[string]string{"name": "evil-org"})
	if err != nil {
		t.Fatalf("marshal body: %v", err)
	}
	r := httptest.NewRequest(http.MethodPost, "/v1/organizations", bytes.NewReader(raw))
	r.RemoteAddr = "198.51.100.66:44321"
	r.Header.Set("X-Forwarded-For", rootAddr)
	forged := httptest.NewRecorder()
	h.ServeHTTP(forged, r)
	if forged.Code != http.StatusUnauthorized {
		t.Fatalf("forged forwarding header = %d, want 401: %s", forged.Code, forged.Body.String())
	}
}

func TestLoginValidation(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	if w := do(t, h, request{method: http.MethodGet, path: "/v1/auth/login"}); w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("GET login = %d", w.Code)
	}
	if w := do(t, h, request{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"user_id": ""}}); w.Code != http.StatusBadRequest {
		t.Fatalf("blank user = %d", w.Code)
	}
	w := do(t, h, request{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"user_id": "ghost"}})
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown user = %d", w.Code)
	}
}

func TestRefreshAndReplay(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	_, _, pair := provisionTenant(t, h)

	w := do(t, h, request{method: http.MethodPost, path: "/v1/auth/refresh", body: map[string]string{
		"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken,
	}})
	if w.Code != http.StatusOK {
		t.Fatalf("refresh = %d: %s", w.Code, w.Body.String())
	}

	// Replaying the consumed pair is rejected as revoked.
	w = do(t, h, request{method: http.MethodPost, path: "/v1/auth/refresh", body: map[string]string{
		"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken,
	}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("replay = %d: %s", w.Code, w.Body.String())
	}
	var resp struct {
		Code string `json:"code"`
	}
	decodeBody(t, w, &resp)
	if resp.Code != "RefreshToken.Revoked" {
		t.Fatalf("code = %q", resp.Code)
	}
}

func TestSessionListAndRevoke(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	_, ownerID, pair := provisionTenant(t, h)

	w := do(t, h, request{method: http.MethodGet, path: "/v1/users/" + ownerID + "/sessions", bearer: pair.AccessToken})
	if w.Code != http.StatusOK {
		t.Fatalf("sessions = %d: %s", w.Code, w.Body.String())
	}
	var list struct {
		Items []sessionView `json:"items"`
		AsOf  time.Time     `json:"as_of"`
	}
	decodeBody(t, w, &list)
	if len(list.Items) != 1 || !list.Items[0].Active {
		t.Fatalf("unexpected session list: %+v", list.Items)
	}
	// The opaque refresh value must not appear in the listing.
	if strings.Contains(w.Body.String(), pair.RefreshToken) {
		t.Fatalf("refresh value leaked in session listing")
	}

	w = do(t, h, request{method: http.MethodDelete, path: "/v1/sessions/" + list.Items[0].ID, bearer: pair.AccessToken})
	if w.Code != http.StatusNoContent {
		t.Fatalf("revoke = %d: %s", w.Code, w.Body.String())
	}

	// The revoked pair no longer refreshes.
	w = do(t, h, request{method: http.MethodPost, path: "/v1/auth/refresh", body: map[string]string{
		"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken,
	}})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("refresh after revoke = %d", w.Code)
	}
}

func TestSessionAccessDeniedWithoutToken(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	_, ownerID, _ := provisionTenant(t, h)

	w := do(t, h, request{method: http.MethodGet, path: "/v1/users/" + ownerID + "/sessions"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous sessions = %d", w.Code)
	}
}

func TestSessionAccessForbiddenForPeer(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	orgID, ownerID, _ := provisionTenant(t, h)

	w := do(t, h, request{method: http.MethodPost, path: "/v1/organizations/" + orgID + "/users", body: map[string]string{"name": "Peer"}, asRoot: true})
	if w.Code != http.StatusCreated {
		t.Fatalf("create peer = %d: %s", w.Code, w.Body.String())
	}
	var peer auth.User
	decodeBody(t, w, &peer)

	w = do(t, h, request{method: http.MethodPost, path: "/v1/auth/login", body: map[string]string{"user_id": peer.ID}})
	if w.Code != http.StatusOK {
		t.Fatalf("peer login = %d: %s", w.Code, w.Body.String())
	}
	var pair auth.TokenPair
	decodeBody(t, w, &pair)

	// Authenticated but neither the target nor an owner: a permission
	// verdict, not an authentication failure.
	w = do(t, h, request{method: http.MethodGet, path: "/v1/users/" + ownerID + "/sessions", bearer: pair.AccessToken})
	if w.Code != http.StatusForbidden {
		t.Fatalf("peer sessions = %d, want 403: %s", w.Code, w.Body.String())
	}
}

func TestInvalidBearerRejected(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	w := do(t, h, request{method: http.MethodGet, path: "/v1/info", bearer: "garbage"})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("garbage bearer = %d", w.Code)
	}
}

func TestRoleWithUnknownScopeIsUnprocessable(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	orgID, _, pair := provisionTenant(t, h)

	w := do(t, h, request{method: http.MethodPut, path: "/v1/organizations/" + orgID + "/roles", body: map[string]any{"name": "reader", "scopes": []string{"ghost"}}, bearer: pair.AccessToken})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("code = %d, want 422: %s", w.Code, w.Body.String())
	}
}

func TestSelfDeleteConflict(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()
	orgID, ownerID, pair := provisionTenant(t, h)

	w := do(t, h, request{method: http.MethodDelete, path: "/v1/organizations/" + orgID + "/users/" + ownerID, bearer: pair.AccessToken})
	if w.Code != http.StatusConflict {
		t.Fatalf("self delete = %d, want 409: %s", w.Code, w.Body.String())
	}
}

func TestUnknownRoutes(t *testing.T) {
	api, _ := newTestAPI(t)
	h := api.Handler()

	if w := do(t, h, request{method: http.MethodGet, path: "/v1/users/abc/unknown"}); w.Code != http.StatusNotFound {
		t.Fatalf("user subresource = %d", w.Code)
	}
	if w := do(t, h, request{method: http.MethodGet, path: "/nope"}); w.Code != http.StatusNotFound {
		t.Fatalf("root fallthrough = %d", w.Code)
	}
}
