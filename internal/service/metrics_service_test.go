package service

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

func TestMetricsServiceLedgerCounters(t *testing.T) {
	m := NewMetricsService()
	m.ObserveLedgerCall("append", nil, 10*time.Millisecond)
	m.ObserveLedgerCall("append", errors.New("boom"), time.Millisecond)
	m.ObserveReconcile(models.ReconcileReport{Synced: 3, Skipped: 1, Failed: 2}, nil)
	m.ObserveAccessChange(models.MaterialKindTextbook, "grant", 2)
	m.ObserveAccessChange(models.MaterialKindTextbook, "grant", 0)

	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerRequests.WithLabelValues("append", "ok")))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.ledgerRequests.WithLabelValues("append", "error")))
	assert.Equal(t, float64(3), testutil.ToFloat64(m.reconcileItems.WithLabelValues("synced")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.reconcileItems.WithLabelValues("failed")))
	assert.Equal(t, float64(2), testutil.ToFloat64(m.accessGrants.WithLabelValues("textbook", "grant")))
}

func TestMetricsServiceHandler(t *testing.T) {
	m := NewMetricsService()
	m.ObserveHTTPRequest(http.MethodGet, "/api/v1/purchase-requests", http.StatusOK, 5*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "http_requests_total")

	var nilMetrics *MetricsService
	nilMetrics.ObserveLedgerCall("read", nil, time.Millisecond)
	rec = httptest.NewRecorder()
	nilMetrics.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
