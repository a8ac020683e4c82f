package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMetrics_Counters(t *testing.T) {
	m := New()
	m.ObserveCycle("bought")
	m.ObserveCycle("bought")
	m.ObserveCycle("trigger_not_met")
	m.ObserveOrder("buy", true)
	m.ObserveOrder("buy", false)
	m.SetFund(1200.5, 300)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.cycles.WithLabelValues("bought")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.orders.WithLabelValues("buy", "failed")))
	assert.Equal(t, 1200.5, testutil.ToFloat64(m.available))
	assert.Equal(t, 300.0, testutil.ToFloat64(m.reserved))
}

func TestMetrics_Handler(t *testing.T) {
	m := New()
	m.ObserveLockWait(0.02)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, "triggerbot_lock_wait_seconds_count 1"))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}
