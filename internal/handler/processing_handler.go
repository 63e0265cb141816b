package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/response"
)

type processingService interface {
	SetProcessed(ctx context.Context, actor *models.JWTClaims, req dto.SetProcessedRequest) (*dto.SetProcessedResult, error)
}

type accessGrantService interface {
	Grant(ctx context.Context, actor *models.JWTClaims, req dto.AccessGrantRequest) (*models.AccessGrant, error)
	Revoke(ctx context.Context, actor *models.JWTClaims, req dto.AccessGrantRequest) error
	ListForUser(ctx context.Context, userID string) ([]models.AccessGrant, error)
}

type auditHistory interface {
	ListForResource(ctx context.Context, resource, resourceID string, limit int) ([]models.AuditLog, error)
}

const historyLimit = 50

// AdminHandler exposes request processing and material access management.
type AdminHandler struct {
	processing processingService
	access     accessGrantService
	history    auditHistory
}

// NewAdminHandler builds a new handler. history may be nil, in which case the
// history endpoint answers 503.
func NewAdminHandler(processing processingService, access accessGrantService, history auditHistory) *AdminHandler {
	return &AdminHandler{processing: processing, access: access, history: history}
}

// SetProcessed godoc
// @Summary Mark purchase requests processed or unprocessed
// @Description Granting or revoking material access happens per request; one failing id does not stop the rest.
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.SetProcessedRequest true "Ids and target state"
// @Success 200 {object} response.Envelope
// @Router /admin/purchase-requests/processed [post]
func (h *AdminHandler) SetProcessed(c *gin.Context) {
	var req dto.SetProcessedRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid processed payload"))
		return
	}
	result, err := h.processing.SetProcessed(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil, map[string]interface{}{
		"succeeded": result.Succeeded,
		"failed":    result.Failed,
	})
}

// ListAccess godoc
// @Summary List a user's material access
// @Tags Admin
// @Produce json
// @Param userId query string true "User ID"
// @Success 200 {object} response.Envelope
// @Router /admin/access-grants [get]
func (h *AdminHandler) ListAccess(c *gin.Context) {
	grants, err := h.access.ListForUser(c.Request.Context(), c.Query("userId"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grants, nil)
}

// GrantAccess godoc
// @Summary Grant one material to one user
// @Tags Admin
// @Accept json
// @Produce json
// @Param payload body dto.AccessGrantRequest true "Grant payload"
// @Success 201 {object} response.Envelope
// @Router /admin/access-grants [post]
func (h *AdminHandler) GrantAccess(c *gin.Context) {
	var req dto.AccessGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid access grant payload"))
		return
	}
	grant, err := h.access.Grant(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, grant)
}

// RevokeAccess godoc
// @Summary Revoke one material from one user
// @Tags Admin
// @Accept json
// @Param payload body dto.AccessGrantRequest true "Grant payload"
// @Success 204
// @Router /admin/access-grants [delete]
func (h *AdminHandler) RevokeAccess(c *gin.Context) {
	var req dto.AccessGrantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid access grant payload"))
		return
	}
	if err := h.access.Revoke(c.Request.Context(), middleware.CurrentUser(c), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// History godoc
// @Summary Audit history of one purchase request
// @Tags Admin
// @Produce json
// @Param id path string true "Purchase request ID"
// @Param limit query int false "Maximum entries" default(50)
// @Success 200 {object} response.Envelope
// @Router /admin/purchase-requests/{id}/history [get]
func (h *AdminHandler) History(c *gin.Context) {
	if h.history == nil {
		response.Error(c, appErrors.ErrServiceUnavailable)
		return
	}
	limit := historyLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer"))
			return
		}
		limit = parsed
	}
	logs, err := h.history.ListForResource(c.Request.Context(), "purchase_request", c.Param("id"), limit)
	if err != nil {
		response.Error(c, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load history"))
		return
	}
	response.JSON(c, http.StatusOK, dto.NewAuditEntries(logs), nil)
}
