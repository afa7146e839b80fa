package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorder(t *testing.T) {
	m, err := NewPrometheus(Config{Namespace: "test"})
	require.NoError(t, err)

	m.DeliveryFinished(OutcomeOK, 20*time.Millisecond)
	m.DeliveryFinished(OutcomeRetry, time.Second)
	m.Requeued(30 * time.Second)
	m.Claimed(3)
	m.Claimed(0)

	families, err := m.Registry().Gather()
	require.NoError(t, err)
	values := map[string]float64{}
	for _, f := range families {
		for _, metric := range f.GetMetric() {
			if c := metric.GetCounter(); c != nil {
				values[f.GetName()] += c.GetValue()
			}
		}
	}
	assert.Equal(t, 2.0, values["test_deliveries_total"])
	assert.Equal(t, 1.0, values["test_requeues_total"])
	assert.Equal(t, 3.0, values["test_submissions_claimed_total"])

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Contains(t, rec.Body.String(), `test_deliveries_total{outcome="retry"} 1`)
}

func TestNopRecorder(t *testing.T) {
	var r Recorder = Nop{}
	r.DeliveryFinished(OutcomeOK, time.Second)
	r.Requeued(time.Second)
	r.Claimed(1)
}
