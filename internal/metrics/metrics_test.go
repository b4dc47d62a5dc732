package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveBackend(http.MethodGet, "/admin/doctors", 200, 20*time.Millisecond)
	m.ObserveBackend(http.MethodGet, "/admin/doctors", 200, 30*time.Millisecond)
	m.ObservePage("/admin", 200)
	m.ObserveAction("delete_doctor", "ok")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.backend.WithLabelValues("GET", "/admin/doctors", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.pages.WithLabelValues("/admin", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.actions.WithLabelValues("delete_doctor", "ok")))
}

func TestHandlerExposesSeries(t *testing.T) {
	m := New()
	m.ObservePage("/login", 303)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), `portal_http_requests_total{code="303",route="/login"} 1`))
}
