package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type ledgerStateStub bool

func (s ledgerStateStub) Enabled() bool { return bool(s) }

func TestHealthHandlerReadyReportsChecks(t *testing.T) {
	h := NewHealthHandler(nil, ledgerStateStub(true))
	h.AddCheck("database", true, func(ctx context.Context) error { return nil })
	h.AddCheck("redis", false, func(ctx context.Context) error { return errors.New("dial tcp: connection refused") })

	c, w := newTestContext(http.MethodGet, "/ready", "")
	h.Ready(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Status string            `json:"status"`
		Ledger bool              `json:"ledger"`
		Checks map[string]string `json:"checks"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ready", body.Status)
	assert.True(t, body.Ledger)
	assert.Equal(t, "ok", body.Checks["database"])
	assert.Contains(t, body.Checks["redis"], "connection refused")
}

func TestHealthHandlerCriticalFailure(t *testing.T) {
	h := NewHealthHandler(nil, nil)
	h.AddCheck("database", true, func(ctx context.Context) error { return errors.New("database not configured") })

	c, w := newTestContext(http.MethodGet, "/ready", "")
	h.Ready(c)

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"unavailable"`)
	assert.Contains(t, w.Body.String(), `"ledger":false`)
}

func TestHealthHandlerPrometheusWithoutMetrics(t *testing.T) {
	c, w := newTestContext(http.MethodGet, "/metrics", "")
	NewHealthHandler(nil, nil).Prometheus(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
