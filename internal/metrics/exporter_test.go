package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

func scrape(t *testing.T, handler http.Handler, path string) (int, string) {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, string(body)
}

func TestExporterExpositionFormat(t *testing.T) {
	r := metrics.NewRegistry()
	r.Increment("llm_calls_total", map[string]string{"model": "default"}, 3)
	r.SetGauge("queue_depth", nil, 5)
	for _, v := range []float64{0.1, 0.2, 0.4, 2} {
		r.Observe("llm_call_seconds", nil, v)
	}

	srv := metrics.NewExporterServer(":0", r, "watchtower", logging.NewNop())
	code, body := scrape(t, srv.Handler(), "/metrics")

	require.Equal(t, http.StatusOK, code)

	assert.Contains(t, body, "# TYPE watchtower_llm_calls_total counter")
	assert.Contains(t, body, `watchtower_llm_calls_total{model="default"} 3`)

	assert.Contains(t, body, "# TYPE watchtower_queue_depth gauge")
	assert.Contains(t, body, "watchtower_queue_depth 5")

	assert.Contains(t, body, "# TYPE watchtower_llm_call_seconds histogram")
	assert.Contains(t, body, "watchtower_llm_call_seconds_bucket")
	assert.Contains(t, body, "watchtower_llm_call_seconds_sum")
	assert.Contains(t, body, "watchtower_llm_call_seconds_count 4")
	assert.Contains(t, body, "# HELP")
}

func TestExporterHealthEndpoint(t *testing.T) {
	srv := metrics.NewExporterServer(":0", metrics.NewRegistry(), "watchtower", logging.NewNop())
	code, body := scrape(t, srv.Handler(), "/health")

	assert.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"status":"ok"}`, body)
}

func TestExporterSanitizesNames(t *testing.T) {
	r := metrics.NewRegistry()
	r.Increment("match.analysis-runs", nil, 1)

	srv := metrics.NewExporterServer(":0", r, "watchtower", logging.NewNop())
	_, body := scrape(t, srv.Handler(), "/metrics")

	assert.Contains(t, body, "watchtower_match_analysis_runs 1")
}
