package logging_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"watchtower/internal/logging"
)

func newObservedLogger(t *testing.T) (*logging.Logger, *observer.ObservedLogs) {
	t.Helper()
	core, logs := observer.New(zap.DebugLevel)
	return logging.FromZap(zap.New(core)), logs
}

// TestRedactionMasksSensitiveFields verifies that a field named api_key never
// reaches the sink with its full literal value.
func TestRedactionMasksSensitiveFields(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.Info("calling provider",
		zap.String("api_key", "sk-1234567890abcdef"),
		zap.String("model", "gpt-4"),
	)

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()

	masked, ok := fields["api_key"].(string)
	require.True(t, ok)
	assert.NotContains(t, masked, "1234567890")
	assert.Equal(t, "sk***ef", masked)
	assert.Equal(t, "gpt-4", fields["model"])
}

func TestRedactionShortValuesFullyMasked(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.Info("auth", zap.String("password", "hunter2"))

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, "***", logs.All()[0].ContextMap()["password"])
}

func TestRedactionNonStringSensitiveField(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.Info("auth", zap.Int("token_length", 42), zap.Int("attempts", 3))

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	// Key contains "token", so even the int value is masked.
	assert.Equal(t, "***", fields["token_length"])
	assert.EqualValues(t, 3, fields["attempts"])
}

func TestAmbientContextMergedIntoRecords(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.SetAmbient("request_id", "req-123")
	logger.Info("first")

	logger.ClearAmbient()
	logger.Info("second")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "req-123", logs.All()[0].ContextMap()["request_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "request_id")
}

func TestContextBoundFields(t *testing.T) {
	logger, logs := newObservedLogger(t)

	ctx := logging.ContextWith(context.Background(), zap.String("task_id", "t-9"))
	logger.Ctx(ctx).Info("working")

	ctx = logging.ClearContext(ctx)
	logger.Ctx(ctx).Info("after clear")

	require.Equal(t, 2, logs.Len())
	assert.Equal(t, "t-9", logs.All()[0].ContextMap()["task_id"])
	assert.NotContains(t, logs.All()[1].ContextMap(), "task_id")
}

func TestWithTimingEmitsOneRecordPerOutcome(t *testing.T) {
	logger, logs := newObservedLogger(t)

	err := logger.TimeFunc("fetch_stats", func() error { return nil })
	require.NoError(t, err)

	err = logger.TimeFunc("fetch_stats", func() error { return errors.New("boom") })
	require.Error(t, err)

	require.Equal(t, 2, logs.Len())

	ok := logs.All()[0].ContextMap()
	assert.Equal(t, "fetch_stats", ok["operation"])
	assert.Equal(t, true, ok["success"])
	assert.Contains(t, ok, "duration")

	failed := logs.All()[1].ContextMap()
	assert.Equal(t, false, failed["success"])
}

func TestTimeFuncRecordsPanicAsFailure(t *testing.T) {
	logger, logs := newObservedLogger(t)

	assert.Panics(t, func() {
		_ = logger.TimeFunc("explode", func() error { panic("no") })
	})

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, false, logs.All()[0].ContextMap()["success"])
}

func TestCriticalCarriesSeverityMarker(t *testing.T) {
	logger, logs := newObservedLogger(t)

	logger.Critical("store corrupted")

	require.Equal(t, 1, logs.Len())
	assert.Equal(t, zap.ErrorLevel, logs.All()[0].Level)
	assert.Equal(t, "critical", logs.All()[0].ContextMap()["severity"])
}
