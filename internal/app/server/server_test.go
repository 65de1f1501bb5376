package server_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/golang-jwt/jwt/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/atinyakov/shortlinks/internal/app/server"
	"github.com/atinyakov/shortlinks/internal/app/service"
	"github.com/atinyakov/shortlinks/internal/models"
	"github.com/atinyakov/shortlinks/internal/storage"
)

// syncClicks stores clicks immediately so assertions need no waiting.
type syncClicks struct {
	s *storage.MemoryStorage
}

func (c syncClicks) Record(e storage.ClickEvent) {
	e.Region = "Testland"
	_ = c.s.AppendClicks(context.Background(), []storage.ClickEvent{e})
}

type env struct {
	srv  *httptest.Server
	auth *service.Auth
}

func newEnv(t *testing.T) *env {
	t.Helper()

	mem, err := storage.CreateMemoryStorage()
	require.NoError(t, err)

	log := zap.NewNop()
	allocator := service.NewAllocator(mem, service.RandomGenerator{}, service.DefaultCodeLength, service.DefaultMaxAttempts, log)
	resolver := service.NewURLResolver(mem, syncClicks{s: mem}, log)

	srv := httptest.NewServer(server.Init(
		service.NewURL(mem, allocator, resolver, log, "http://short.test"),
		service.NewAuth("test-secret"),
		log,
		"127.0.0.0/8",
	))
	t.Cleanup(srv.Close)

	return &env{srv: srv, auth: service.NewAuth("test-secret")}
}

func (e *env) token(t *testing.T, userID string, admin bool) string {
	t.Helper()
	tok, err := e.auth.BuildToken(userID, admin)
	require.NoError(t, err)
	return tok
}

func (e *env) do(t *testing.T, method, path, token, body string) *http.Response {
	t.Helper()

	req, err := http.NewRequest(method, e.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
	resp, err := client.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func TestLifecycle(t *testing.T) {
	e := newEnv(t)
	alice := e.token(t, "alice", false)
	bob := e.token(t, "bob", false)

	resp := e.do(t, http.MethodPost, "/api/urls", alice, `{"url":"https://example.com/a","custom_code":"promo"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decode[models.Response](t, resp)
	assert.Equal(t, "http://short.test/promo", created.Result)

	resp = e.do(t, http.MethodPost, "/api/urls", bob, `{"url":"https://other.example","custom_code":"promo"}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = e.do(t, http.MethodPost, "/api/urls", bob, `{"url":"https://other.example","custom_code":"admin"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/promo", "", "")
	require.Equal(t, http.StatusFound, resp.StatusCode)
	assert.Equal(t, "https://example.com/a", resp.Header.Get("Location"))

	resp = e.do(t, http.MethodGet, "/missing", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/urls/promo/stats", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	stats := decode[models.StatsResponse](t, resp)
	assert.EqualValues(t, 1, stats.Clicks)
	assert.EqualValues(t, 1, stats.ByRegion["Testland"])

	resp = e.do(t, http.MethodGet, "/api/urls/promo/stats", bob, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/urls/promo", bob, `{"url":"https://evil.example"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodPut, "/api/urls/promo", alice, `{"url":"https://example.com/a"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, service.StatusNoChanges, decode[models.UpdateResponse](t, resp).Status)

	resp = e.do(t, http.MethodPut, "/api/urls/promo", alice, `{"custom_code":"spring"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	updated := decode[models.UpdateResponse](t, resp)
	assert.Equal(t, service.StatusUpdated, updated.Status)
	assert.Equal(t, "spring", updated.Mapping.Code)

	resp = e.do(t, http.MethodGet, "/spring", "", "")
	assert.Equal(t, http.StatusFound, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/dashboard", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	dash := decode[models.DashboardResponse](t, resp)
	assert.EqualValues(t, 2, dash.TotalClicks)
	require.Len(t, dash.PerMapping, 1)

	resp = e.do(t, http.MethodGet, "/api/urls/logs", alice, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.ClickLogEntry](t, resp), 2)

	resp = e.do(t, http.MethodGet, "/api/urls", bob, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/urls/spring", bob, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/urls/spring", alice, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/spring", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAnonymousCallerGetsCookie(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodPost, "/api/urls", "", `{"url":"https://example.com"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var token string
	for _, c := range resp.Cookies() {
		if c.Name == "token" {
			token = c.Value
		}
	}
	require.NotEmpty(t, token)

	resp = e.do(t, http.MethodGet, "/api/urls", token, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decode[[]models.Mapping](t, resp), 1)
}

func TestInvalidToken(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/api/urls", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoutes(t *testing.T) {
	e := newEnv(t)
	alice := e.token(t, "alice", false)
	root := e.token(t, "root", true)

	for _, u := range []string{"https://a.example", "https://b.example"} {
		resp := e.do(t, http.MethodPost, "/api/urls", alice, `{"url":"`+u+`"}`)
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := e.do(t, http.MethodGet, "/api/admin/urls", alice, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodGet, "/api/admin/urls", root, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := decode[[]models.AdminMapping](t, resp)
	require.Len(t, rows, 2)
	assert.Equal(t, "alice", rows[0].CreatedBy)
	require.NotNil(t, rows[0].Clicks)

	resp = e.do(t, http.MethodDelete, "/api/admin/owners/alice", alice, "")
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = e.do(t, http.MethodDelete, "/api/admin/owners/alice", root, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 2, decode[models.DeleteOwnerResponse](t, resp).Deleted)

	resp = e.do(t, http.MethodGet, "/api/urls", alice, "")
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}

func TestAdminRoutes_ForeignSecretIsRejected(t *testing.T) {
	e := newEnv(t)

	for _, secret := range []string{"supersecretkey", "another-key"} {
		forged := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"user_id": "attacker", "admin": true})
		tok, err := forged.SignedString([]byte(secret))
		require.NoError(t, err)

		resp := e.do(t, http.MethodGet, "/api/admin/urls", tok, "")
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode, "secret %q", secret)
	}
}

func TestMetricsSubnet(t *testing.T) {
	e := newEnv(t)

	resp := e.do(t, http.MethodGet, "/metrics", "", "")
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/metrics", nil)
	require.NoError(t, err)
	req.Header.Set("X-Real-IP", "203.0.113.9")
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestPing(t *testing.T) {
	e := newEnv(t)
	assert.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/ping", "", "").StatusCode)
}
