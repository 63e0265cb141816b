package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/service"
)

const readinessTimeout = 2 * time.Second

type ledgerState interface {
	Enabled() bool
}

type readinessCheck struct {
	name     string
	critical bool
	probe    func(ctx context.Context) error
}

// HealthHandler serves liveness, readiness and the Prometheus scrape.
type HealthHandler struct {
	metrics *service.MetricsService
	ledger  ledgerState
	checks  []readinessCheck
}

// NewHealthHandler constructs the handler. Readiness checks are added with AddCheck.
func NewHealthHandler(metrics *service.MetricsService, ledger ledgerState) *HealthHandler {
	return &HealthHandler{metrics: metrics, ledger: ledger}
}

// AddCheck registers a dependency probe. A failing critical probe turns
// readiness into 503; other failures are only reported.
func (h *HealthHandler) AddCheck(name string, critical bool, probe func(ctx context.Context) error) {
	h.checks = append(h.checks, readinessCheck{name: name, critical: critical, probe: probe})
}

// Health answers liveness probes.
func (h *HealthHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready runs every registered probe and reports whether the ledger mirror is
// configured. A disabled ledger never makes the service unready.
func (h *HealthHandler) Ready(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), readinessTimeout)
	defer cancel()

	status := http.StatusOK
	results := make(map[string]string, len(h.checks))
	for _, check := range h.checks {
		if err := check.probe(ctx); err != nil {
			results[check.name] = err.Error()
			if check.critical {
				status = http.StatusServiceUnavailable
			}
			continue
		}
		results[check.name] = "ok"
	}

	state := "ready"
	if status != http.StatusOK {
		state = "unavailable"
	}
	c.JSON(status, gin.H{
		"status": state,
		"ledger": h.ledger != nil && h.ledger.Enabled(),
		"checks": results,
	})
}

// Prometheus serves the metrics endpoint.
func (h *HealthHandler) Prometheus(c *gin.Context) {
	if h.metrics == nil {
		c.Status(http.StatusServiceUnavailable)
		return
	}
	h.metrics.Handler().ServeHTTP(c.Writer, c.Request)
}
