package handler

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/service"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

type snapshotService interface {
	Create(ctx context.Context, actor *models.JWTClaims, format service.ExportFormat) (*dto.SnapshotLink, error)
	Open(ctx context.Context, token string) (*service.SnapshotDownload, error)
}

// SnapshotHandler stores ledger exports and serves them through signed links.
type SnapshotHandler struct {
	service snapshotService
}

// NewSnapshotHandler constructs the handler.
func NewSnapshotHandler(service snapshotService) *SnapshotHandler {
	return &SnapshotHandler{service: service}
}

// Create godoc
// @Summary Store a ledger snapshot and return a download link
// @Tags Ledger
// @Produce json
// @Param format query string false "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /admin/ledger/snapshots [post]
func (h *SnapshotHandler) Create(c *gin.Context) {
	link, err := h.service.Create(c.Request.Context(), middleware.CurrentUser(c), service.ExportFormat(c.DefaultQuery("format", string(service.ExportFormatCSV))))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, link)
}

// Download godoc
// @Summary Download a stored ledger snapshot via signed token
// @Tags Ledger
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Router /ledger/snapshots/{token} [get]
func (h *SnapshotHandler) Download(c *gin.Context) {
	result, err := h.service.Open(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer result.File.Close() //nolint:errcheck
	response.AttachmentFromReader(c, result.Filename, result.ContentType, result.SizeBytes, result.File)
}
