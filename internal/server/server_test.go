package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"regexp"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"attendance/internal/auth"
	"attendance/internal/config"
	"attendance/internal/email"
)

var (
	codePattern  = regexp.MustCompile(`>(\d{6})<`)
	resetPattern = regexp.MustCompile(`/reset-password/([0-9a-f]+)`)
)

type captureMailer struct {
	mu   sync.Mutex
	sent []email.Message
	fail error
}

func (c *captureMailer) Send(_ context.Context, msg email.Message) (email.Receipt, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return email.Receipt{}, c.fail
	}
	c.sent = append(c.sent, msg)
	return email.Receipt{MessageID: "<id@test>"}, nil
}

func (c *captureMailer) lastMatch(t *testing.T, re *regexp.Regexp) string {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if m := re.FindStringSubmatch(c.sent[i].HTML); len(m) == 2 {
			return m[1]
		}
	}
	t.Fatalf("no mail matching %s", re)
	return ""
}

func (c *captureMailer) setFail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

type testServer struct {
	*httptest.Server
	svc    *auth.Service
	store  *auth.MemoryStore
	mailer *captureMailer
	redis  *miniredis.Miniredis
	rdb    *redis.Client
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })

	cfg := config.Config{
		BaseURL:     "http://localhost:5173",
		CORSOrigins: []string{"http://localhost:5173"},
		JWTSecret:   "server-test-secret-0123",
	}
	store := auth.NewMemoryStore()
	mailer := &captureMailer{}
	svc := auth.NewService(auth.Options{
		Store:    store,
		Hasher:   &auth.BcryptHasher{Cost: bcrypt.MinCost},
		Sessions: auth.NewSessionIssuer(cfg.JWTSecret, auth.DefaultSessionTTL),
		Mailer:   mailer,
		From:     email.Address{Email: "noreply@example.com"},
		BaseURL:  cfg.BaseURL,
	})
	srv := NewServer(cfg, Deps{
		Auth:        svc,
		RateLimiter: auth.NewRateLimiter(rdb),
		Audit:       &auth.AuditLogger{Redis: rdb, MaxLen: 100},
		Health: map[string]HealthCheck{
			"redis": func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		},
	})
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		svc.Wait()
	})
	return &testServer{Server: ts, svc: svc, store: store, mailer: mailer, redis: mr, rdb: rdb}
}

// browser returns a client with its own cookie jar.
func (ts *testServer) browser(t *testing.T) *http.Client {
	t.Helper()
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &http.Client{Jar: jar}
}

type apiResponse struct {
	Status int
	Body   map[string]interface{}
	Raw    string
	Header http.Header
}

func (ts *testServer) do(t *testing.T, c *http.Client, method, path string, body interface{}) apiResponse {
	t.Helper()
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, reader)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := apiResponse{Status: resp.StatusCode, Raw: string(raw), Header: resp.Header}
	if len(raw) > 0 && resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(t, json.Unmarshal(raw, &out.Body))
	}
	return out
}

func (ts *testServer) signup(t *testing.T, c *http.Client) string {
	t.Helper()
	resp := ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ann", "email": "a@x.com", "password": "Pwd123!",
	})
	require.Equal(t, http.StatusCreated, resp.Status, resp.Raw)
	return ts.mailer.lastMatch(t, codePattern)
}

func hasSessionCookie(resp apiResponse) bool {
	for _, c := range (&http.Response{Header: resp.Header}).Cookies() {
		if c.Name == auth.SessionCookieName && c.Value != "" {
			return true
		}
	}
	return false
}

func TestSignupVerifyScenario(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	code := ts.signup(t, c)

	resp := ts.do(t, c, http.MethodGet, "/api/auth/check-auth", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status, "signup does not log in")

	wrong := "000000"
	if code == wrong {
		wrong = "999999"
	}
	resp = ts.do(t, c, http.MethodPost, "/api/auth/verify-email", map[string]string{"code": wrong})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Invalid or expired verification code", resp.Body["message"])

	resp = ts.do(t, c, http.MethodPost, "/api/auth/verify-email", map[string]string{"code": code})
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	assert.True(t, hasSessionCookie(resp))
	user := resp.Body["user"].(map[string]interface{})
	assert.Equal(t, true, user["isVerified"])
	assert.NotContains(t, resp.Raw, "password")

	resp = ts.do(t, c, http.MethodPost, "/api/auth/verify-email", map[string]string{"code": code})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Invalid or expired verification code", resp.Body["message"])

	resp = ts.do(t, c, http.MethodGet, "/api/auth/check-auth", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "a@x.com", resp.Body["user"].(map[string]interface{})["email"])
}

func TestPasswordResetScenario(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.signup(t, c)

	resp := ts.do(t, c, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	token := ts.mailer.lastMatch(t, resetPattern)

	resp = ts.do(t, c, http.MethodPost, "/api/auth/reset-password/"+token, map[string]string{"password": "NewPwd1!"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	assert.Equal(t, "Password reset successful", resp.Body["message"])

	resp = ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "Pwd123!"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Invalid credentials", resp.Body["message"])

	resp = ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "NewPwd1!"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	assert.True(t, hasSessionCookie(resp))

	resp = ts.do(t, c, http.MethodPost, "/api/auth/reset-password/"+token, map[string]string{"password": "Other12!"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.Equal(t, "Invalid or expired reset token", resp.Body["message"])
}

func TestConcurrentSignupSameEmail(t *testing.T) {
	ts := newTestServer(t)

	statuses := make(chan int, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			body, _ := json.Marshal(map[string]string{"name": "Ann", "email": "a@x.com", "password": "Pwd123!"})
			resp, err := http.Post(ts.URL+"/api/auth/signup", "application/json", bytes.NewReader(body))
			if err != nil {
				statuses <- 0
				return
			}
			resp.Body.Close()
			statuses <- resp.StatusCode
		}()
	}
	wg.Wait()
	close(statuses)

	got := map[int]int{}
	for s := range statuses {
		got[s]++
	}
	assert.Equal(t, map[int]int{http.StatusCreated: 1, http.StatusConflict: 1}, got)
}

func TestLoginDoesNotRevealAccountExistence(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.signup(t, c)

	wrongPassword := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "Nope123!"})
	unknown := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "b@x.com", "password": "Pwd123!"})
	missing := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com"})

	assert.Equal(t, http.StatusBadRequest, wrongPassword.Status)
	assert.Equal(t, wrongPassword.Status, unknown.Status)
	assert.Equal(t, wrongPassword.Raw, unknown.Raw)
	assert.Equal(t, wrongPassword.Raw, missing.Raw)
}

func TestLoginUnverifiedIssuesSession(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.signup(t, c)

	resp := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "A@X.com", "password": "Pwd123!"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	assert.Equal(t, "Logged in successfully", resp.Body["message"])
	assert.Equal(t, false, resp.Body["user"].(map[string]interface{})["isVerified"])

	resp = ts.do(t, c, http.MethodGet, "/api/auth/check-auth", nil)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestForgotPasswordUniformResponse(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.signup(t, c)

	known := ts.do(t, c, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@x.com"})
	unknown := ts.do(t, c, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "nobody@x.com"})

	assert.Equal(t, http.StatusOK, known.Status)
	assert.Equal(t, known.Status, unknown.Status)
	assert.Equal(t, known.Raw, unknown.Raw)
	assert.Equal(t, forgotPasswordMessage, known.Body["message"])
}

func TestLogoutClearsSessionAndIsIdempotent(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.signup(t, c)

	resp := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "Pwd123!"})
	require.Equal(t, http.StatusOK, resp.Status)

	resp = ts.do(t, c, http.MethodPost, "/api/auth/logout", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "Logged out successfully", resp.Body["message"])

	resp = ts.do(t, c, http.MethodGet, "/api/auth/check-auth", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.Status)
	assert.Equal(t, "Unauthenticated", resp.Body["message"])

	resp = ts.do(t, c, http.MethodPost, "/api/auth/logout", nil)
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestCheckAuthRejectsTamperedAndOrphanedSessions(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.signup(t, c)

	req, err := http.NewRequest(http.MethodGet, ts.URL+"/api/auth/check-auth", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: "forged.token.value"})
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	acct, err := ts.store.FindByEmail(context.Background(), "a@x.com")
	require.NoError(t, err)
	sess, err := ts.svc.Sessions().Issue(acct.ID)
	require.NoError(t, err)
	ts.store.Delete(acct.ID)

	req, err = http.NewRequest(http.MethodGet, ts.URL+"/api/auth/check-auth", nil)
	require.NoError(t, err)
	req.AddCookie(&http.Cookie{Name: auth.SessionCookieName, Value: sess.Token})
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestSignupValidationAndDuplicate(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	resp := ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{"email": "bad"})
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	fields := resp.Body["errors"].(map[string]interface{})
	assert.Contains(t, fields, "name")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "password")

	resp = ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "Pwd123!", "role": "admin"})
	assert.Equal(t, http.StatusBadRequest, resp.Status, "unknown fields are rejected")

	ts.signup(t, c)
	resp = ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "Pwd123!"})
	assert.Equal(t, http.StatusConflict, resp.Status)
}

func TestSignupDeliveryFailure(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.mailer.setFail(errors.New("smtp down"))

	resp := ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "Pwd123!"})
	assert.Equal(t, http.StatusBadGateway, resp.Status)

	resp = ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{"name": "Ann", "email": "a@x.com", "password": "Pwd123!"})
	assert.Equal(t, http.StatusConflict, resp.Status)
	assert.Contains(t, resp.Body["message"], "verify your email")
}

func TestLoginThrottle(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	for i := int64(0); i < auth.LoginLimit.Max; i++ {
		resp := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "Wrong12!"})
		require.Equal(t, http.StatusBadRequest, resp.Status)
	}
	resp := ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{"email": "a@x.com", "password": "Wrong12!"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)
	assert.Greater(t, resp.Body["cooldown"], float64(0))

	events, err := (&auth.AuditLogger{Redis: ts.rdb}).Recent(context.Background(), "", 100)
	require.NoError(t, err)
	assert.Len(t, events, int(auth.LoginLimit.Max))
}

func TestResendVerificationCooldown(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	first := ts.signup(t, c)

	resp := ts.do(t, c, http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": "a@x.com"})
	require.Equal(t, http.StatusOK, resp.Status, resp.Raw)
	second := ts.mailer.lastMatch(t, codePattern)

	resp = ts.do(t, c, http.MethodPost, "/api/auth/resend-verification", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusTooManyRequests, resp.Status)

	if first != second {
		resp = ts.do(t, c, http.MethodPost, "/api/auth/verify-email", map[string]string{"code": first})
		assert.Equal(t, http.StatusBadRequest, resp.Status, "replaced code is dead")
	}
	resp = ts.do(t, c, http.MethodPost, "/api/auth/verify-email", map[string]string{"code": second})
	assert.Equal(t, http.StatusOK, resp.Status)
}

func TestHealthAndMetrics(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)

	resp := ts.do(t, c, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Equal(t, "ok", resp.Body["status"])

	ts.redis.Close()
	resp = ts.do(t, c, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, resp.Status)

	resp = ts.do(t, c, http.MethodGet, "/metrics", nil)
	require.Equal(t, http.StatusOK, resp.Status)
	assert.Contains(t, resp.Raw, "attendance_api_http_requests_total")
	assert.Contains(t, resp.Raw, `route="/healthz"`)
}

func TestThrottledEndpointsFailClosedWithoutRedis(t *testing.T) {
	ts := newTestServer(t)
	c := ts.browser(t)
	ts.redis.Close()

	resp := ts.do(t, c, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ann", "email": "a@x.com", "password": "Pwd123!",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	resp = ts.do(t, c, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "a@x.com", "password": "Pwd123!",
	})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)

	resp = ts.do(t, c, http.MethodPost, "/api/auth/forgot-password", map[string]string{"email": "a@x.com"})
	assert.Equal(t, http.StatusInternalServerError, resp.Status)
	assert.Contains(t, resp.Raw, "Internal server error")

	_, err := ts.store.FindByEmail(context.Background(), "a@x.com")
	assert.ErrorIs(t, err, auth.ErrNotFound, "no account is created past a failed throttle")
}

func TestSecurityAndCORSHeaders(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.URL+"/api/auth/login", nil)
	require.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, "http://localhost:5173", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", resp.Header.Get("Access-Control-Allow-Credentials"))

	c := ts.browser(t)
	out := ts.do(t, c, http.MethodGet, "/api/auth/check-auth", nil)
	assert.Equal(t, "nosniff", out.Header.Get("X-Content-Type-Options"))
	assert.Equal(t, "DENY", out.Header.Get("X-Frame-Options"))
}
