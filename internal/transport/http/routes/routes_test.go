package routes_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap/zaptest"

	"github.com/arklim/admin-iam/internal/core/domain"
	"github.com/arklim/admin-iam/internal/infra/config"
	"github.com/arklim/admin-iam/internal/infra/security"
	httproutes "github.com/arklim/admin-iam/internal/transport/http/routes"
	"github.com/arklim/admin-iam/internal/usecase"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// roleGrants maps role ids to the grants an operator configured for them.
type roleGrants map[int64][]string

func (g roleGrants) Resolve(_ context.Context, roleIDs []int64) (domain.GrantSet, error) {
	set := domain.NewGrantSet()
	for _, id := range roleIDs {
		set.Add(g[id]...)
	}
	return set, nil
}

type stubAuth struct {
	pair    domain.TokenPair
	err     error
	profile usecase.Profile
}

func (s *stubAuth) Login(context.Context, string, string, usecase.RequestMeta) (domain.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubAuth) LoginExternal(context.Context, domain.ExternalProfile, usecase.RequestMeta) (domain.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubAuth) Refresh(context.Context, string, usecase.RequestMeta) (domain.TokenPair, error) {
	return s.pair, s.err
}

func (s *stubAuth) Me(context.Context, int64) (usecase.Profile, error) {
	return s.profile, s.err
}

type testServer struct {
	engine *gin.Engine
	tokens *usecase.TokenService
}

func newTestServer(t *testing.T, auth *stubAuth, grants roleGrants) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	signer, err := security.NewJWTManager(testSecret, "admin-iam-test")
	if err != nil {
		t.Fatalf("NewJWTManager: %v", err)
	}
	tokens := usecase.NewTokenService(signer, 30*time.Minute, 7*24*time.Hour)

	engine := httproutes.Register(httproutes.Dependencies{
		Config:   &config.AppConfig{App: config.AppSettings{Env: "test"}},
		Logger:   zaptest.NewLogger(t),
		Services: httproutes.ServiceSet{Auth: auth},
		Tokens:   tokens,
		Resolver: grants,
		Decider:  usecase.NewAccessDecider(nil),
	})
	return &testServer{engine: engine, tokens: tokens}
}

func (s *testServer) tokenFor(t *testing.T, userID int64, roleIDs ...int64) string {
	t.Helper()
	pair, err := s.tokens.Issue(domain.Principal{ID: userID, RoleIDs: roleIDs})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	return pair.AccessToken
}

func (s *testServer) do(method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rr := httptest.NewRecorder()
	s.engine.ServeHTTP(rr, req)
	return rr
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body %q: %v", rr.Body.String(), err)
	}
	return body.Error
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, nil)

	if rr := srv.do(http.MethodGet, "/healthz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	if rr := srv.do(http.MethodGet, "/readyz", "", ""); rr.Code != http.StatusOK {
		t.Fatalf("expected readiness 200 without checks, got %d", rr.Code)
	}
}

func TestEditorScenario(t *testing.T) {
	// Role 2 is "editor": it may list roles but not delete them.
	srv := newTestServer(t, &stubAuth{}, roleGrants{2: {"GET:/api/v1/roles:exact"}})
	alice := srv.tokenFor(t, 7, 2)

	// Allowed requests reach the handler, which has no service configured here.
	if rr := srv.do(http.MethodGet, "/api/v1/roles", alice, ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected the guard to let GET through, got %d: %s", rr.Code, rr.Body.String())
	}

	rr := srv.do(http.MethodDelete, "/api/v1/roles/5", alice, "")
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if got := errorMessage(t, rr); got != "missing permission DELETE:/api/v1/roles/5" {
		t.Fatalf("unexpected deny message %q", got)
	}
}

func TestGuardAcceptsRouteTemplateGrants(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, roleGrants{3: {"DELETE:/api/v1/roles/:id:exact"}})
	token := srv.tokenFor(t, 8, 3)

	if rr := srv.do(http.MethodDelete, "/api/v1/roles/5", token, ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected template grant to pass the guard, got %d", rr.Code)
	}
}

func TestGuardAcceptsPrefixGrants(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, roleGrants{4: {"GET:/api/v1/users:prefix"}})
	token := srv.tokenFor(t, 9, 4)

	if rr := srv.do(http.MethodGet, "/api/v1/users/12", token, ""); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected prefix grant to pass the guard, got %d", rr.Code)
	}
	if rr := srv.do(http.MethodDelete, "/api/v1/users/12", token, ""); rr.Code != http.StatusForbidden {
		t.Fatalf("expected other methods to be denied, got %d", rr.Code)
	}
}

func TestGuardEnforcesRequiredPermissions(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, roleGrants{
		5: {"POST:/api/v1/users:exact"},
		6: {"user:create"},
	})

	rr := srv.do(http.MethodPost, "/api/v1/users", srv.tokenFor(t, 10, 5), `{}`)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 without user:create, got %d", rr.Code)
	}
	if got := errorMessage(t, rr); got != "missing permission user:create for POST:/api/v1/users" {
		t.Fatalf("unexpected deny message %q", got)
	}

	if rr := srv.do(http.MethodPost, "/api/v1/users", srv.tokenFor(t, 10, 5, 6), `{}`); rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected both grants to pass the guard, got %d", rr.Code)
	}
}

func TestSuperPermissionPassesEveryGuard(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, roleGrants{1: {domain.SuperPermission}})
	admin := srv.tokenFor(t, 1, 1)

	for _, route := range httproutes.GuardedRoutes() {
		path := strings.ReplaceAll(route.Path, ":id", "1")
		if rr := srv.do(route.Method, path, admin, `{}`); rr.Code == http.StatusForbidden || rr.Code == http.StatusUnauthorized {
			t.Fatalf("%s %s: expected super permission to pass, got %d", route.Method, path, rr.Code)
		}
	}
}

func TestGuardedRoutesRequireToken(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, nil)

	rr := srv.do(http.MethodGet, "/api/v1/roles", "", "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}

	refresh, err := srv.tokens.Issue(domain.Principal{ID: 7})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	rr = srv.do(http.MethodGet, "/api/v1/roles", refresh.RefreshToken, "")
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected refresh token to be rejected as access token, got %d", rr.Code)
	}
	if got := errorMessage(t, rr); got != "invalid access token" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestLoginMapsInvalidCredentials(t *testing.T) {
	srv := newTestServer(t, &stubAuth{err: usecase.ErrInvalidCredentials}, nil)

	rr := srv.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"ghost","password":"nope"}`)
	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if got := errorMessage(t, rr); got != "invalid credentials" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestLoginReturnsTokenPair(t *testing.T) {
	exp := time.Now().Add(30 * time.Minute)
	auth := &stubAuth{pair: domain.TokenPair{AccessToken: "a", RefreshToken: "r", AccessExpiresAt: exp, RefreshExpiresAt: exp}}
	srv := newTestServer(t, auth, nil)

	rr := srv.do(http.MethodPost, "/api/v1/auth/login", "", `{"username":"alice","password":"pw"}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var body struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		TokenType    string `json:"token_type"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.AccessToken != "a" || body.RefreshToken != "r" || body.TokenType != "Bearer" {
		t.Fatalf("unexpected body %+v", body)
	}
	if body.ExpiresIn <= 0 || body.ExpiresIn > 1800 {
		t.Fatalf("unexpected expires_in %d", body.ExpiresIn)
	}
}

func TestRefreshMapsTokenErrors(t *testing.T) {
	cases := map[error]string{
		usecase.ErrTokenExpired:      "refresh token expired",
		usecase.ErrTokenInvalid:      "invalid refresh token",
		usecase.ErrTokenReused:       "refresh token already used",
		usecase.ErrPrincipalNotFound: "invalid refresh token",
	}
	for err, want := range cases {
		srv := newTestServer(t, &stubAuth{err: err}, nil)
		rr := srv.do(http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"x"}`)
		if rr.Code != http.StatusUnauthorized {
			t.Fatalf("%v: expected 401, got %d", err, rr.Code)
		}
		if got := errorMessage(t, rr); got != want {
			t.Fatalf("%v: expected %q, got %q", err, want, got)
		}
	}

	srv := newTestServer(t, &stubAuth{err: errors.Join(usecase.ErrInternal, errors.New("redis down"))}, nil)
	rr := srv.do(http.MethodPost, "/api/v1/auth/refresh", "", `{"refresh_token":"x"}`)
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500 for internal errors, got %d", rr.Code)
	}
	if got := errorMessage(t, rr); got != "internal error" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestMeReturnsResolvedGrants(t *testing.T) {
	auth := &stubAuth{profile: usecase.Profile{
		Principal: domain.Principal{ID: 7, Username: "alice", RoleIDs: []int64{2}},
		Grants:    domain.NewGrantSet("GET:/api/v1/roles:exact", "article:read"),
	}}
	srv := newTestServer(t, auth, nil)

	rr := srv.do(http.MethodGet, "/api/v1/auth/me", srv.tokenFor(t, 7, 2), "")
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}
	var body struct {
		User struct {
			Username string `json:"username"`
		} `json:"user"`
		Permissions []string `json:"permissions"`
		IsSuper     bool     `json:"is_super"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.User.Username != "alice" || len(body.Permissions) != 2 || body.IsSuper {
		t.Fatalf("unexpected body %+v", body)
	}
}

func TestGitHubLoginNotConfigured(t *testing.T) {
	srv := newTestServer(t, &stubAuth{}, nil)

	if rr := srv.do(http.MethodGet, "/api/v1/auth/github", "", ""); rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404 without provider, got %d", rr.Code)
	}
}

func TestTableIsConsistent(t *testing.T) {
	seen := make(map[string]bool)
	for _, r := range httproutes.Table() {
		key := r.Method + " " + r.Path
		if seen[key] {
			t.Fatalf("duplicate route %s", key)
		}
		seen[key] = true
		if len(r.Required) > 0 && r.Access != httproutes.Guarded {
			t.Fatalf("%s declares required permissions but is not guarded", key)
		}
	}

	for _, info := range httproutes.GuardedRoutes() {
		if !strings.HasPrefix(info.Path, "/api/v1/") {
			t.Fatalf("guarded route %s lacks the api prefix", info.Path)
		}
		if _, ok := domain.ParseGrant(info.Method + ":" + info.Path + ":exact"); !ok {
			t.Fatalf("guarded route %s %s does not form a valid grant", info.Method, info.Path)
		}
	}

	required := httproutes.RequiredPermissions()
	if len(required) == 0 {
		t.Fatal("expected at least one required permission")
	}
	for _, p := range required {
		if _, ok := domain.ParseGrant(p); ok {
			t.Fatalf("required permission %q parses as an API grant", p)
		}
	}
}
