package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// collectMetric extracts the metric matching labels from a collector.
func collectMetric(t *testing.T, c prometheus.Collector, labels map[string]string) *dto.Metric {
	t.Helper()
	ch := make(chan prometheus.Metric, 100)
	c.Collect(ch)
	close(ch)

	for m := range ch {
		d := &dto.Metric{}
		if err := m.Write(d); err != nil {
			continue
		}
		match := true
		for k, v := range labels {
			found := false
			for _, lp := range d.GetLabel() {
				if lp.GetName() == k && lp.GetValue() == v {
					found = true
					break
				}
			}
			if !found {
				match = false
				break
			}
		}
		if match {
			return d
		}
	}
	return nil
}

func TestPrometheusMetrics_UsesRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-test"))
	r.Get("/c/{username}", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	for _, name := range []string{"alice", "bob"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/c/"+name, nil))
	}

	m := collectMetric(t, httpRequestsTotal, map[string]string{
		"service": "metrics-test", "path": "/c/{username}", "status": "200",
	})
	require.NotNil(t, m)
	assert.Equal(t, float64(2), m.GetCounter().GetValue())
}

func TestPrometheusMetrics_CapturesStatus(t *testing.T) {
	r := chi.NewRouter()
	r.Use(PrometheusMetrics("metrics-status"))
	r.Get("/missing", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))

	m := collectMetric(t, httpRequestsTotal, map[string]string{
		"service": "metrics-status", "status": "404",
	})
	require.NotNil(t, m)
}

func TestAuth_CountsFailures(t *testing.T) {
	before := collectMetric(t, authFailuresTotal, map[string]string{"reason": "missing_token"})
	var start float64
	if before != nil {
		start = before.GetCounter().GetValue()
	}

	handler := Auth(staticResolver("good", &Identity{UserID: "u"}))(okHandler())
	handler.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	after := collectMetric(t, authFailuresTotal, map[string]string{"reason": "missing_token"})
	require.NotNil(t, after)
	assert.Equal(t, start+1, after.GetCounter().GetValue())
}
