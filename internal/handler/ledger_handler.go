package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/service"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

type reconciler interface {
	Run(ctx context.Context, opts service.ReconcileOptions) (models.ReconcileReport, error)
}

type ledgerExporter interface {
	Render(ctx context.Context, format service.ExportFormat) (*service.ExportFile, error)
}

// LedgerHandler exposes admin maintenance of the spreadsheet ledger.
type LedgerHandler struct {
	reconciler reconciler
	exporter   ledgerExporter
}

// NewLedgerHandler builds a new handler.
func NewLedgerHandler(reconciler reconciler, exporter ledgerExporter) *LedgerHandler {
	return &LedgerHandler{reconciler: reconciler, exporter: exporter}
}

// Reconcile godoc
// @Summary Append purchase requests missing from the ledger
// @Tags Ledger
// @Produce json
// @Param limit query int false "Maximum rows to append"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Failure 502 {object} response.Envelope
// @Router /admin/ledger/reconcile [post]
func (h *LedgerHandler) Reconcile(c *gin.Context) {
	var req dto.ReconcileRequest
	if err := c.ShouldBindQuery(&req); err != nil || req.Limit < 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a non-negative integer"))
		return
	}
	actorID := ""
	if claims := middleware.CurrentUser(c); claims != nil {
		actorID = claims.UserID
	}
	report, err := h.reconciler.Run(c.Request.Context(), service.ReconcileOptions{Limit: req.Limit, ActorID: actorID})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, dto.ReconcileResponse{ReconcileReport: report, Limit: req.Limit}, nil)
}

// Export godoc
// @Summary Download a snapshot of all purchase requests
// @Tags Ledger
// @Produce text/csv
// @Produce application/pdf
// @Param format query string false "csv or pdf"
// @Success 200 {file} file
// @Router /admin/ledger/export [get]
func (h *LedgerHandler) Export(c *gin.Context) {
	file, err := h.exporter.Render(c.Request.Context(), service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Attachment(c, file.Filename, file.ContentType, file.Payload)
}
