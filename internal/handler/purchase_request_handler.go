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

type purchaseRequestService interface {
	Create(ctx context.Context, actor *models.JWTClaims, req dto.CreatePurchaseRequest) (*dto.PurchaseRequestResult, error)
	Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdatePurchaseRequest) (*dto.PurchaseRequestResult, error)
	Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeletePurchaseRequestResult, error)
	Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.PurchaseRequest, error)
	List(ctx context.Context, actor *models.JWTClaims, query dto.PurchaseRequestQuery) ([]models.PurchaseRequest, *models.Pagination, error)
}

// PurchaseRequestHandler exposes the owner-facing purchase request lifecycle.
type PurchaseRequestHandler struct {
	service purchaseRequestService
}

// NewPurchaseRequestHandler builds a new handler.
func NewPurchaseRequestHandler(service purchaseRequestService) *PurchaseRequestHandler {
	return &PurchaseRequestHandler{service: service}
}

// Create godoc
// @Summary Submit a purchase request
// @Tags PurchaseRequests
// @Accept json
// @Produce json
// @Param payload body dto.CreatePurchaseRequest true "Purchase request payload"
// @Success 201 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /purchase-requests [post]
func (h *PurchaseRequestHandler) Create(c *gin.Context) {
	var req dto.CreatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid purchase request payload"))
		return
	}
	result, err := h.service.Create(c.Request.Context(), middleware.CurrentUser(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if result != nil && result.Request != nil {
		c.Set(middleware.AuditResourceKey, result.Request.ID)
	}
	response.Created(c, result)
}

// List godoc
// @Summary List purchase requests
// @Description Owners see their own requests; admins may filter by user.
// @Tags PurchaseRequests
// @Produce json
// @Param userId query string false "Owner filter (admin only)"
// @Param isProcessed query bool false "Processed flag filter"
// @Param page query int false "Page"
// @Param pageSize query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /purchase-requests [get]
func (h *PurchaseRequestHandler) List(c *gin.Context) {
	query := dto.PurchaseRequestQuery{UserID: c.Query("userId")}
	if raw := c.Query("isProcessed"); raw != "" {
		val, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "isProcessed must be a boolean"))
			return
		}
		query.IsProcessed = &val
	}
	if page, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		query.Page = page
	}
	if size, err := strconv.Atoi(c.DefaultQuery("pageSize", "20")); err == nil {
		query.PageSize = size
	}

	items, pagination, err := h.service.List(c.Request.Context(), middleware.CurrentUser(c), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, pagination)
}

// Get godoc
// @Summary Get a purchase request
// @Tags PurchaseRequests
// @Produce json
// @Param id path string true "Purchase request ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /purchase-requests/{id} [get]
func (h *PurchaseRequestHandler) Get(c *gin.Context) {
	item, err := h.service.Get(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, item, nil)
}

// Update godoc
// @Summary Edit an unprocessed purchase request
// @Tags PurchaseRequests
// @Accept json
// @Produce json
// @Param id path string true "Purchase request ID"
// @Param payload body dto.UpdatePurchaseRequest true "Purchase request payload"
// @Success 200 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /purchase-requests/{id} [put]
func (h *PurchaseRequestHandler) Update(c *gin.Context) {
	var req dto.UpdatePurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid purchase request payload"))
		return
	}
	result, err := h.service.Update(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// Delete godoc
// @Summary Withdraw an unprocessed purchase request
// @Tags PurchaseRequests
// @Produce json
// @Param id path string true "Purchase request ID"
// @Success 200 {object} response.Envelope
// @Failure 423 {object} response.Envelope
// @Router /purchase-requests/{id} [delete]
func (h *PurchaseRequestHandler) Delete(c *gin.Context) {
	result, err := h.service.Delete(c.Request.Context(), middleware.CurrentUser(c), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
