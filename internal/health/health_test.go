package health_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"watchtower/internal/health"
	"watchtower/internal/logging"
	"watchtower/internal/metrics"
)

func staticCheck(status health.CheckStatus) health.Checker {
	return func(context.Context) health.ComponentCheck {
		return health.ComponentCheck{Status: status}
	}
}

// TestAggregateComposition pins the folding matrix from the health contract.
func TestAggregateComposition(t *testing.T) {
	tests := []struct {
		name     string
		statuses []health.CheckStatus
		want     health.Status
	}{
		{"all pass", []health.CheckStatus{health.CheckPass, health.CheckPass}, health.StatusHealthy},
		{"pass and warn", []health.CheckStatus{health.CheckPass, health.CheckWarn}, health.StatusDegraded},
		{"pass and fail", []health.CheckStatus{health.CheckPass, health.CheckFail}, health.StatusUnhealthy},
		{"warn and fail", []health.CheckStatus{health.CheckWarn, health.CheckFail}, health.StatusUnhealthy},
		{"no checks", nil, health.StatusHealthy},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			agg := health.NewAggregator()
			for i, status := range tt.statuses {
				agg.Register(string(rune('a'+i)), staticCheck(status))
			}
			report := agg.Evaluate(context.Background())
			assert.Equal(t, tt.want, report.Status)
			assert.Len(t, report.Checks, len(tt.statuses))
		})
	}
}

func TestPanickingCheckCountsAsFail(t *testing.T) {
	agg := health.NewAggregator()
	agg.Register("bad", func(context.Context) health.ComponentCheck { panic("boom") })

	report := agg.Evaluate(context.Background())
	require.Len(t, report.Checks, 1)
	assert.Equal(t, health.CheckFail, report.Checks[0].Status)
	assert.Equal(t, health.StatusUnhealthy, report.Status)
}

func get(t *testing.T, handler http.Handler, path string) (int, []byte) {
	t.Helper()
	srv := httptest.NewServer(handler)
	defer srv.Close()

	resp, err := http.Get(srv.URL + path)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func newServer(statuses ...health.CheckStatus) *health.Server {
	agg := health.NewAggregator()
	for i, status := range statuses {
		agg.Register(string(rune('a'+i)), staticCheck(status))
	}
	return health.NewServer(":0", agg, logging.NewNop())
}

func TestEndpointsHealthy(t *testing.T) {
	srv := newServer(health.CheckPass, health.CheckPass)

	code, body := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)

	var report health.Report
	require.NoError(t, json.Unmarshal(body, &report))
	assert.Equal(t, health.StatusHealthy, report.Status)
	assert.Len(t, report.Checks, 2)

	code, _ = get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusOK, code)
}

// TestEndpointsDegraded: degraded still serves 200 on /health but /ready is
// the stricter gate and returns 503.
func TestEndpointsDegraded(t *testing.T) {
	srv := newServer(health.CheckPass, health.CheckWarn)

	code, _ := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusOK, code)

	code, body := get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Contains(t, string(body), `"ready":false`)
}

func TestEndpointsUnhealthy(t *testing.T) {
	srv := newServer(health.CheckPass, health.CheckFail)

	code, _ := get(t, srv.Handler(), "/health")
	assert.Equal(t, http.StatusServiceUnavailable, code)

	code, _ = get(t, srv.Handler(), "/ready")
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestLivenessIsTrivial(t *testing.T) {
	// Even an unhealthy aggregate keeps /live at 200: liveness only says the
	// process can answer.
	srv := newServer(health.CheckFail)

	code, body := get(t, srv.Handler(), "/live")
	assert.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body), "alive")
}

func TestDirectoryCheck(t *testing.T) {
	ok := health.DirectoryCheck(t.TempDir())(context.Background())
	assert.Equal(t, health.CheckPass, ok.Status)

	missing := health.DirectoryCheck("/nonexistent/watchtower-test")(context.Background())
	assert.Equal(t, health.CheckFail, missing.Status)
	assert.Contains(t, missing.Message, "inaccessible")
}

func TestRegistrySelfCheck(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.Increment("a_total", nil, 1)
	reg.Increment("b_total", nil, 1)

	pass := health.RegistrySelfCheck(reg, 10)(context.Background())
	assert.Equal(t, health.CheckPass, pass.Status)

	warn := health.RegistrySelfCheck(reg, 1)(context.Background())
	assert.Equal(t, health.CheckWarn, warn.Status)
	assert.Contains(t, warn.Message, "cardinality")
}

func TestResourceCheckReportsUsage(t *testing.T) {
	check := health.ResourceCheck(health.DefaultResourceThresholds())(context.Background())
	// Can't assert exact usage; the check must at least produce a verdict
	// and a latency.
	assert.NotEmpty(t, check.Status)
	assert.Greater(t, check.Latency, time.Duration(0))
}

func TestResourceCheckThresholds(t *testing.T) {
	// Thresholds of zero disable the respective gates; absurdly low warn
	// thresholds force a warn since usage is always >= 0.
	low := health.ResourceCheck(health.ResourceThresholds{MemWarn: 0.0001})(context.Background())
	assert.Equal(t, health.CheckWarn, low.Status)
}
