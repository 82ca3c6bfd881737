package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmitrijs2005/brainbox/internal/common"
	"github.com/dmitrijs2005/brainbox/internal/logging"
	"github.com/dmitrijs2005/brainbox/internal/server/auth"
	"github.com/dmitrijs2005/brainbox/internal/server/password"
	"github.com/dmitrijs2005/brainbox/internal/server/repositories/refreshtokens"
	"github.com/dmitrijs2005/brainbox/internal/server/services"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	gin.SetMode(gin.TestMode)
	os.Exit(m.Run())
}

// ---- fakes ----

type fakeSessions struct {
	loginRes *services.LoginResult
	loginErr error

	refreshRes *services.RefreshResult
	refreshErr error
	refreshArg string

	logoutErr error
	logoutArg string

	authClaims *auth.Claims
	authErr    error
}

func (f *fakeSessions) Login(context.Context, string, string) (*services.LoginResult, error) {
	return f.loginRes, f.loginErr
}

func (f *fakeSessions) Refresh(_ context.Context, raw string) (*services.RefreshResult, error) {
	f.refreshArg = raw
	return f.refreshRes, f.refreshErr
}

func (f *fakeSessions) Logout(_ context.Context, raw string) error {
	f.logoutArg = raw
	return f.logoutErr
}

func (f *fakeSessions) Authorize(string) (*auth.Claims, error) {
	return f.authClaims, f.authErr
}

func newTestServer(sessions SessionService) *HTTPServer {
	return NewHTTPServer(Options{
		Address: "127.0.0.1:0",
		Cookie:  CookieOptions{SameSite: http.SameSiteStrictMode, MaxAge: 3600},
	}, logging.Nop{}, sessions)
}

func do(t *testing.T, h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func formLogin(user, pass string) *http.Request {
	body := url.Values{"username": {user}, "password": {pass}}.Encode()
	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return req
}

func refreshCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == common.RefreshTokenCookieName {
			return c
		}
	}
	return nil
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body["detail"]
}

// ---- login ----

func TestLogin_SetsCookieAndReturnsToken(t *testing.T) {
	f := &fakeSessions{loginRes: &services.LoginResult{RefreshToken: "raw-refresh", AccessToken: "access", ExpiresIn: 900}}
	s := newTestServer(f)

	rec := do(t, s.Handler(), formLogin("admin", "pw"))
	require.Equal(t, http.StatusOK, rec.Code)

	var body tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, tokenResponse{Token: "access", TokenType: "bearer", ExpiresIn: 900}, body)

	c := refreshCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "raw-refresh", c.Value)
	assert.True(t, c.HttpOnly)
	assert.True(t, c.Secure)
	assert.Equal(t, http.SameSiteStrictMode, c.SameSite)
	assert.Equal(t, "/api/auth", c.Path)
	assert.Equal(t, 3600, c.MaxAge)
}

func TestLogin_CookieSecureUnlessOptedOut(t *testing.T) {
	f := &fakeSessions{loginRes: &services.LoginResult{RefreshToken: "r", AccessToken: "a", ExpiresIn: 60}}

	s := NewHTTPServer(Options{}, logging.Nop{}, f)
	c := refreshCookie(do(t, s.Handler(), formLogin("admin", "pw")))
	require.NotNil(t, c)
	assert.True(t, c.Secure, "zero options must still send a Secure cookie")
	assert.True(t, c.HttpOnly)

	s = NewHTTPServer(Options{Cookie: CookieOptions{Insecure: true}}, logging.Nop{}, f)
	c = refreshCookie(do(t, s.Handler(), formLogin("admin", "pw")))
	require.NotNil(t, c)
	assert.False(t, c.Secure)
}

func TestLogin_JSONBody(t *testing.T) {
	f := &fakeSessions{loginRes: &services.LoginResult{RefreshToken: "r", AccessToken: "a", ExpiresIn: 60}}
	s := newTestServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{"username":"admin","password":"pw"}`))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, s.Handler(), req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestLogin_BadJSON(t *testing.T) {
	s := newTestServer(&fakeSessions{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/token", strings.NewReader(`{`))
	req.Header.Set("Content-Type", "application/json")

	rec := do(t, s.Handler(), req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	s := newTestServer(&fakeSessions{loginErr: common.ErrInvalidCredentials})

	rec := do(t, s.Handler(), formLogin("admin", "bad"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Incorrect username or password", decodeDetail(t, rec))
	assert.Nil(t, refreshCookie(rec))
}

func TestLogin_StoreFailure(t *testing.T) {
	s := newTestServer(&fakeSessions{loginErr: errors.New("store refresh token: disk full")})

	rec := do(t, s.Handler(), formLogin("admin", "pw"))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeDetail(t, rec))
	assert.NotContains(t, rec.Body.String(), "disk full")
}

// ---- refresh ----

func TestRefresh_ErrorsAreGeneric(t *testing.T) {
	causes := []error{
		common.ErrNoToken,
		common.ErrInvalidRefreshToken,
		errors.Join(common.ErrInvalidRefreshToken, common.ErrTokenExpired),
	}

	for _, cause := range causes {
		s := newTestServer(&fakeSessions{refreshErr: cause})
		rec := do(t, s.Handler(), httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil))

		assert.Equal(t, http.StatusUnauthorized, rec.Code, cause.Error())
		assert.Equal(t, "Could not validate credentials", decodeDetail(t, rec))
	}
}

func TestRefresh_ReadsCookie(t *testing.T) {
	f := &fakeSessions{refreshRes: &services.RefreshResult{AccessToken: "fresh", ExpiresIn: 900}}
	s := newTestServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "raw-refresh"})

	rec := do(t, s.Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "raw-refresh", f.refreshArg)
	assert.Nil(t, refreshCookie(rec), "no cookie without rotation")
}

func TestRefresh_RotationSetsNewCookie(t *testing.T) {
	f := &fakeSessions{refreshRes: &services.RefreshResult{AccessToken: "fresh", ExpiresIn: 900, RefreshToken: "next"}}
	s := newTestServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "raw-refresh"})

	rec := do(t, s.Handler(), req)
	require.Equal(t, http.StatusOK, rec.Code)
	c := refreshCookie(rec)
	require.NotNil(t, c)
	assert.Equal(t, "next", c.Value)
}

// ---- logout ----

func TestLogout_ClearsCookie(t *testing.T) {
	f := &fakeSessions{}
	s := newTestServer(f)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "raw-refresh"})

	rec := do(t, s.Handler(), req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "raw-refresh", f.logoutArg)

	c := refreshCookie(rec)
	require.NotNil(t, c)
	assert.Empty(t, c.Value)
	assert.Less(t, c.MaxAge, 0)
}

func TestLogout_WithoutCookie(t *testing.T) {
	f := &fakeSessions{}
	s := newTestServer(f)

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, f.logoutArg)
}

func TestLogout_StoreFailure(t *testing.T) {
	s := newTestServer(&fakeSessions{logoutErr: errors.New("db down")})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: common.RefreshTokenCookieName, Value: "raw"})

	rec := do(t, s.Handler(), req)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

// ---- gate ----

func TestSession_RequiresBearer(t *testing.T) {
	s := newTestServer(&fakeSessions{authErr: common.ErrUnauthorized})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodGet, "/api/auth/session", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Bearer", rec.Header().Get("WWW-Authenticate"))
	assert.Equal(t, "Could not validate credentials", decodeDetail(t, rec))
}

func TestHealth(t *testing.T) {
	s := newTestServer(&fakeSessions{})
	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodHead, "/api/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRequestID(t *testing.T) {
	s := newTestServer(&fakeSessions{})

	rec := do(t, s.Handler(), httptest.NewRequest(http.MethodHead, "/api/health", nil))
	generated := rec.Header().Get(common.RequestIDHeaderName)
	assert.Len(t, generated, 36)

	req := httptest.NewRequest(http.MethodHead, "/api/health", nil)
	req.Header.Set(common.RequestIDHeaderName, "6f1c1c2e-6a3b-4bb4-9a62-2f0d1a8e4e11")
	rec = do(t, s.Handler(), req)
	assert.Equal(t, "6f1c1c2e-6a3b-4bb4-9a62-2f0d1a8e4e11", rec.Header().Get(common.RequestIDHeaderName))

	req = httptest.NewRequest(http.MethodHead, "/api/health", nil)
	req.Header.Set(common.RequestIDHeaderName, "<script>")
	rec = do(t, s.Handler(), req)
	assert.NotEqual(t, "<script>", rec.Header().Get(common.RequestIDHeaderName))
}

func TestBearerToken(t *testing.T) {
	tests := map[string]string{
		"Bearer abc":    "abc",
		"bearer abc":    "abc",
		"BEARER  abc ":  "abc",
		"Basic abc":     "",
		"abc":           "",
		"":              "",
		"Bearer":        "",
		" Bearer x.y.z": "x.y.z",
	}
	for header, want := range tests {
		assert.Equal(t, want, bearerToken(header), header)
	}
}

// ---- end to end over the real session service ----

func newRealServer(t *testing.T) *HTTPServer {
	t.Helper()

	hasher, err := password.NewHasher(password.Params{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	require.NoError(t, err)
	hashed, err := hasher.Hash("s3cret")
	require.NoError(t, err)
	codec, err := auth.NewCodec("http-test-secret", nil)
	require.NoError(t, err)

	svc, err := services.NewSessionService(services.SessionDeps{
		Hasher:        hasher,
		Codec:         codec,
		RefreshTokens: refreshtokens.NewMemoryRepository(),
	}, services.SessionConfig{
		Username:       "admin",
		HashedPassword: hashed,
		AccessTTL:      15 * time.Minute,
		RefreshTTL:     time.Hour,
	})
	require.NoError(t, err)

	return newTestServer(svc)
}

func TestFlow_LoginRefreshSessionLogout(t *testing.T) {
	s := newRealServer(t)
	h := s.Handler()

	rec := do(t, h, formLogin("admin", "s3cret"))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := refreshCookie(rec)
	require.NotNil(t, cookie)

	var tok tokenResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))

	req := httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec = do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	var sess sessionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sess))
	assert.Equal(t, "admin", sess.Subject)

	// a refresh token is not an access token
	req = httptest.NewRequest(http.MethodGet, "/api/auth/session", nil)
	req.Header.Set("Authorization", "Bearer "+cookie.Value)
	rec = do(t, h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = do(t, h, req)
	require.Equal(t, http.StatusOK, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = do(t, h, req)
	require.Equal(t, http.StatusNoContent, rec.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/auth/refresh", nil)
	req.AddCookie(&http.Cookie{Name: cookie.Name, Value: cookie.Value})
	rec = do(t, h, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = do(t, h, formLogin("admin", "wrong"))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
