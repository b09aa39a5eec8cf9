package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew_IndependentRegistries(t *testing.T) {
	a := New()
	b := New()

	a.Connections.Inc()
	a.InboundEvents.WithLabelValues("chat").Add(2)

	assert.Equal(t, float64(1), testutil.ToFloat64(a.Connections))
	assert.Equal(t, float64(0), testutil.ToFloat64(b.Connections))
	assert.Equal(t, float64(2), testutil.ToFloat64(a.InboundEvents.WithLabelValues("chat")))
}

func TestHandler_Exposition(t *testing.T) {
	m := New()
	m.HeartbeatEvictions.Inc()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), "sketchrelay_heartbeat_evictions_total 1")
}
