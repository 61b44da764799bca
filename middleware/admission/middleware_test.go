package admission

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"admission-gateway/middleware/admission/application"
	"admission-gateway/middleware/admission/domain"
	"admission-gateway/middleware/admission/infra"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func okHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
}

func testEngine(max int, window time.Duration) *application.Engine {
	return &application.Engine{
		Store: infra.NewLocalStore(),
		Resolver: &application.Resolver{
			Global: &domain.Rule{Scope: domain.ScopeGlobal, Window: window, Max: max},
		},
	}
}

func doGet(t *testing.T, handler http.Handler, ip string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.RemoteAddr = ip + ":40000"
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestMiddleware_AllowsAndAnnotates(t *testing.T) {
	handler := Middleware(Options{Engine: testEngine(5, time.Minute)})(okHandler())

	rec := doGet(t, handler, "10.0.0.1")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "5", rec.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "4", rec.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, rec.Header().Get("X-RateLimit-Reset"))
}

func TestMiddleware_DeniesWithJSONBody(t *testing.T) {
	handler := Middleware(Options{Engine: testEngine(2, time.Minute)})(okHandler())

	doGet(t, handler, "10.0.0.1")
	doGet(t, handler, "10.0.0.1")
	rec := doGet(t, handler, "10.0.0.1")

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))
	assert.Equal(t, rec.Header().Get("Retry-After"), rec.Header().Get("X-Retry-After"))
	assert.Equal(t, "0", rec.Header().Get("X-RateLimit-Remaining"))

	var body struct {
		Success    bool   `json:"success"`
		Error      string `json:"error"`
		RetryAfter int    `json:"retryAfter"`
		Limits     []struct {
			Limit    int   `json:"limit"`
			WindowMs int64 `json:"windowMs"`
		} `json:"limits"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, "RATE_LIMIT_EXCEEDED", body.Error)
	assert.GreaterOrEqual(t, body.RetryAfter, 1)
	require.NotEmpty(t, body.Limits)
	assert.Equal(t, 2, body.Limits[0].Limit)
	assert.Equal(t, time.Minute.Milliseconds(), body.Limits[0].WindowMs)
}

func TestMiddleware_DeniedHTMLWhenRequested(t *testing.T) {
	handler := Middleware(Options{Engine: testEngine(1, time.Minute)})(okHandler())

	doGet(t, handler, "10.0.0.1")

	req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
	req.RemoteAddr = "10.0.0.1:40000"
	req.Header.Set("Accept", "text/html")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, rec.Body.String(), "429")
}

func TestMiddleware_ClientsAreIsolated(t *testing.T) {
	handler := Middleware(Options{Engine: testEngine(1, time.Minute)})(okHandler())

	doGet(t, handler, "10.0.0.1")
	rec := doGet(t, handler, "10.0.0.1")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	rec = doGet(t, handler, "10.0.0.2")
	assert.Equal(t, http.StatusOK, rec.Code, "a limited client must not affect others")
}

func TestMiddleware_SkipPathsBypassEverything(t *testing.T) {
	handler := Middleware(Options{
		Engine:    testEngine(1, time.Minute),
		SkipPaths: []string{"/health"},
	})(okHandler())

	for i := 0; i < 10; i++ {
		req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("X-RateLimit-Limit"), "skipped requests carry no limit headers")
	}
}

func TestMiddleware_SkipRoleBypasses(t *testing.T) {
	handler := Middleware(Options{
		Engine:    testEngine(1, time.Minute),
		Identity:  HeaderIdentity("X-User-Id", "X-User-Role"),
		SkipRoles: []string{"admin"},
	})(okHandler())

	for i := 0; i < 5; i++ {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req.RemoteAddr = "10.0.0.1:40000"
		req.Header.Set("X-User-Id", "root")
		req.Header.Set("X-User-Role", "admin")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMiddleware_SkipIPsBypasses(t *testing.T) {
	skip, err := infra.NewMatchList([]string{"10.0.0.0/8"})
	require.NoError(t, err)

	handler := Middleware(Options{
		Engine:  testEngine(1, time.Minute),
		SkipIPs: skip,
	})(okHandler())

	for i := 0; i < 5; i++ {
		rec := doGet(t, handler, "10.1.2.3")
		assert.Equal(t, http.StatusOK, rec.Code)
	}

	doGet(t, handler, "192.168.0.9")
	rec := doGet(t, handler, "192.168.0.9")
	assert.Equal(t, http.StatusTooManyRequests, rec.Code, "addresses outside the skip list are limited")
}

func TestMiddleware_DisabledIsTransparent(t *testing.T) {
	handler := Middleware(Options{Engine: testEngine(1, time.Minute), Disabled: true})(okHandler())

	for i := 0; i < 5; i++ {
		rec := doGet(t, handler, "10.0.0.1")
		assert.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestMiddleware_IdentityKeysOverIP(t *testing.T) {
	handler := Middleware(Options{
		Engine:   testEngine(1, time.Minute),
		Identity: HeaderIdentity("X-User-Id", "X-User-Role"),
	})(okHandler())

	send := func(ip, user string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/jobs", nil)
		req.RemoteAddr = ip + ":40000"
		req.Header.Set("X-User-Id", user)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	// Mesma identidade atrás de IPs diferentes divide o mesmo orçamento...
	assert.Equal(t, http.StatusOK, send("10.0.0.1", "alice").Code)

	// ...mas a chave composta inclui o IP, então trocar de IP troca de chave.
	assert.Equal(t, http.StatusOK, send("10.0.0.2", "alice").Code)
	assert.Equal(t, http.StatusTooManyRequests, send("10.0.0.2", "alice").Code)
}

func TestMiddleware_CostFuncDrainsFaster(t *testing.T) {
	handler := Middleware(Options{
		Engine: testEngine(10, time.Minute),
		Cost:   func(*http.Request) float64 { return 5 },
	})(okHandler())

	assert.Equal(t, http.StatusOK, doGet(t, handler, "10.0.0.1").Code)
	assert.Equal(t, http.StatusOK, doGet(t, handler, "10.0.0.1").Code)
	assert.Equal(t, http.StatusTooManyRequests, doGet(t, handler, "10.0.0.1").Code,
		"two cost-5 requests exhaust a budget of 10")
}

func TestMiddleware_StatsRecorded(t *testing.T) {
	stats := infra.NewMemoryStatsStore()
	handler := Middleware(Options{
		Engine: testEngine(1, time.Minute),
		Stats:  stats,
	})(okHandler())

	doGet(t, handler, "10.0.0.1")
	doGet(t, handler, "10.0.0.1")

	// Gravação é assíncrona em relação à resposta.
	require.Eventually(t, func() bool {
		snap, err := stats.Snapshot(context.Background())
		return err == nil && snap.Total.Requests == 2 && snap.Total.Limited == 1
	}, 2*time.Second, 10*time.Millisecond)
}
