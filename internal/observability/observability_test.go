package observability

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/spec-kit/visit-service/internal/config"
	apperrors "github.com/spec-kit/visit-service/pkg/util/errorutil"
)

func TestRequestLoggerRecordsStatus(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	metrics := NewMetrics()
	app := fiber.New()
	app.Use(RequestLogger(zap.New(core), metrics))
	app.Get("/ok", func(c *fiber.Ctx) error { return c.SendStatus(http.StatusNoContent) })
	app.Get("/locked", func(c *fiber.Ctx) error { return apperrors.NewDocumentLocked("locked", nil) })

	for _, path := range []string{"/ok", "/locked"} {
		_, err := app.Test(httptest.NewRequest(http.MethodGet, path, nil))
		require.NoError(t, err)
	}

	requests, _ := metrics.Snapshot()
	assert.Equal(t, int64(1), requests["/ok|GET|204"])
	assert.Equal(t, int64(1), requests["/locked|GET|423"])

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zap.InfoLevel, entries[0].Level)
	assert.Equal(t, zap.WarnLevel, entries[1].Level)
}

func TestMetricsSlowAndErrors(t *testing.T) {
	m := NewMetrics()
	m.RecordRequest("/visits", "GET", 200, 2*time.Second)
	m.RecordError("/visits", "GET", "STALE_STATE")

	requests, errs := m.Snapshot()
	assert.Equal(t, int64(1), requests["/visits|GET|slow"])
	assert.Equal(t, int64(1), errs["/visits|GET|STALE_STATE"])

	var nilMetrics *Metrics
	nilMetrics.RecordRequest("/", "GET", 200, 0)
	r, e := nilMetrics.Snapshot()
	assert.Empty(t, r)
	assert.Empty(t, e)
}

func TestNewLoggerFallsBackToInfo(t *testing.T) {
	logger, err := NewLogger(config.LoggerConfig{Level: "loud"})
	require.NoError(t, err)
	assert.True(t, logger.Core().Enabled(zap.InfoLevel))
	assert.False(t, logger.Core().Enabled(zap.DebugLevel))
}
