package middleware_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"clinic-portal/internal/backend"
	"clinic-portal/internal/guard"
	"clinic-portal/internal/middleware"
	"clinic-portal/internal/model"
)

var ok = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) })

func TestRequestID(t *testing.T) {
	var seen string
	h := middleware.RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = backend.RequestID(r.Context())
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, seen)
	assert.Equal(t, seen, rec.Header().Get(backend.RequestIDHeader))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(backend.RequestIDHeader, "abc")
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc", seen)
}

func TestMemoryLimiter(t *testing.T) {
	ml := middleware.NewMemoryLimiter(0.001, 2)
	t.Cleanup(ml.Close)
	h := middleware.RateLimit(ml)(ok)

	hit := func(addr string) int {
		req := httptest.NewRequest(http.MethodPost, "/login", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1000"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.1:1001"))
	assert.Equal(t, http.StatusTooManyRequests, hit("10.0.0.1:1002"))
	assert.Equal(t, http.StatusNoContent, hit("10.0.0.2:1000"))
}

func TestRedisLimiter(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: os.Getenv("REDIS_PASSWORD")})
	t.Cleanup(func() { _ = rdb.Close() })

	rl := middleware.NewRedisLimiter(rdb, 0.01, 2)
	key := "test-" + uuid.NewString()
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		allowed, err := rl.Allow(ctx, key)
		require.NoError(t, err)
		assert.True(t, allowed)
	}
	allowed, err := rl.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, allowed)
}

type fakeChecker struct {
	res   backend.SessionResult
	calls int
}

func (f *fakeChecker) Session(context.Context, backend.Credentials) backend.SessionResult {
	f.calls++
	return f.res
}

func TestRequireRole(t *testing.T) {
	doctor := model.Session{Role: model.RoleDoctor, Name: "house", ID: 4}

	t.Run("allow", func(t *testing.T) {
		fc := &fakeChecker{res: backend.SessionResult{Status: backend.SessionOK, Session: doctor}}
		var got model.Session
		h := middleware.RequireRole(fc, model.RoleDoctor, func(http.ResponseWriter, *http.Request, guard.Decision) {
			t.Fatal("unexpected reject")
		})(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got, _ = middleware.SessionFrom(r.Context())
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/doctor", nil))
		assert.Equal(t, doctor, got)
		assert.Equal(t, 1, fc.calls)
	})

	t.Run("deny before handler", func(t *testing.T) {
		fc := &fakeChecker{res: backend.SessionResult{Status: backend.SessionOK, Session: doctor}}
		var decision guard.Decision
		h := middleware.RequireRole(fc, model.RoleAdmin, func(w http.ResponseWriter, r *http.Request, d guard.Decision) {
			decision = d
		})(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
			t.Fatal("handler must not run")
		}))
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, guard.Deny, decision.Outcome)
	})

	t.Run("transport error redirects", func(t *testing.T) {
		fc := &fakeChecker{res: backend.SessionResult{Status: backend.SessionTransportError}}
		var decision guard.Decision
		h := middleware.RequireRole(fc, model.RoleAdmin, func(w http.ResponseWriter, r *http.Request, d guard.Decision) {
			decision = d
		})(ok)
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/admin", nil))
		assert.Equal(t, guard.RedirectLogin, decision.Outcome)
	})
}

func TestVerifyCSRF(t *testing.T) {
	rejected := 0
	h := middleware.VerifyCSRF(func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusForbidden)
	})(ok)

	post := func(cookie, field string) int {
		form := url.Values{}
		if field != "" {
			form.Set(middleware.CSRFField, field)
		}
		req := httptest.NewRequest(http.MethodPost, "/x", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: backend.CSRFCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("tok", "tok"))
	assert.Equal(t, http.StatusForbidden, post("tok", "other"))
	assert.Equal(t, http.StatusForbidden, post("", "tok"))
	assert.Equal(t, http.StatusForbidden, post("tok", ""))
	assert.Equal(t, 3, rejected)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestVerifyCSRFWhenSet(t *testing.T) {
	h := middleware.VerifyCSRFWhenSet(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})(ok)

	post := func(cookie, field string) int {
		form := url.Values{middleware.CSRFField: {field}}
		req := httptest.NewRequest(http.MethodPost, "/logout", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		if cookie != "" {
			req.AddCookie(&http.Cookie{Name: backend.CSRFCookie, Value: cookie})
		}
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	assert.Equal(t, http.StatusNoContent, post("", ""))
	assert.Equal(t, http.StatusNoContent, post("", "anything"))
	assert.Equal(t, http.StatusNoContent, post("tok", "tok"))
	assert.Equal(t, http.StatusForbidden, post("tok", ""))
	assert.Equal(t, http.StatusForbidden, post("tok", "forged"))
}

type pages map[string]int

func (p pages) ObservePage(route string, code int) { p[route+" "+http.StatusText(code)]++ }

func TestMetricsUsesRoutePattern(t *testing.T) {
	p := pages{}
	r := chi.NewRouter()
	r.Use(middleware.Metrics(p))
	r.Get("/doctor/appointments/{id}", ok)
	r.Get("/plain", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("x")) })

	for _, path := range []string{"/doctor/appointments/1", "/doctor/appointments/2", "/plain", "/missing"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}
	assert.Equal(t, 2, p["/doctor/appointments/{id} No Content"])
	assert.Equal(t, 1, p["/plain OK"])
	assert.Equal(t, 1, p["unmatched Not Found"])
}
