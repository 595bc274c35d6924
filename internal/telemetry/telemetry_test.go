package telemetry

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New()
	m.ObserveRequest("metrics", 200, 10*time.Millisecond)
	m.ObserveRequest("", 400, time.Millisecond)
	m.ObserveBackend("loki", nil)
	m.ObserveBackend("loki", errors.New("down"))
	m.ObserveBackend("loki", errors.New("down"))

	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("metrics", "200")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unknown", "400")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.backend.WithLabelValues("loki", "ok")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.backend.WithLabelValues("loki", "error")))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveBackend("zipkin", nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), `statsgateway_backend_requests_total{backend="zipkin",result="ok"} 1`)
}
