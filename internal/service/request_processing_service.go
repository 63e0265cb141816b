package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

type processingStore interface {
	GetByID(ctx context.Context, id string) (*models.PurchaseRequest, error)
	SetProcessed(ctx context.Context, id string, processed bool, adminID string, at time.Time) (*models.PurchaseRequest, error)
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus) error
}

type accessGranter interface {
	GrantForRequest(ctx context.Context, req *models.PurchaseRequest, adminID string) (*dto.GrantResult, error)
	RevokeForRequest(ctx context.Context, req *models.PurchaseRequest, adminID string) (int64, error)
}

type statusMirror interface {
	Upsert(ctx context.Context, req *models.PurchaseRequest) SyncOutcome
}

// RequestProcessingService toggles the processed state of requests for admins
// and keeps material access in step with it.
type RequestProcessingService struct {
	repo      processingStore
	access    accessGranter
	ledger    statusMirror
	audit     auditLogger
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewRequestProcessingService constructs the service.
func NewRequestProcessingService(repo processingStore, access accessGranter, ledger statusMirror, audit auditLogger, validate *validator.Validate, logger *zap.Logger) *RequestProcessingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RequestProcessingService{
		repo:      repo,
		access:    access,
		ledger:    ledger,
		audit:     audit,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetProcessed applies the transition to each id in order. One id failing
// does not stop the others.
func (s *RequestProcessingService) SetProcessed(ctx context.Context, actor *models.JWTClaims, req dto.SetProcessedRequest) (*dto.SetProcessedResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid processed payload")
	}
	processed := *req.IsProcessed

	result := &dto.SetProcessedResult{Items: make([]dto.ProcessedItemResult, 0, len(req.IDs))}
	seen := make(map[string]struct{}, len(req.IDs))
	for _, raw := range req.IDs {
		id := strings.TrimSpace(raw)
		if _, dup := seen[id]; dup || id == "" {
			continue
		}
		seen[id] = struct{}{}

		item := s.processOne(ctx, actor.UserID, id, processed)
		if item.OK {
			result.Succeeded++
		} else {
			result.Failed++
		}
		result.Items = append(result.Items, item)
	}
	return result, nil
}

func (s *RequestProcessingService) processOne(ctx context.Context, adminID, id string, processed bool) dto.ProcessedItemResult {
	item := dto.ProcessedItemResult{ID: id}
	fail := func(err error, msg string) dto.ProcessedItemResult {
		s.logger.Warn(msg, zap.String("request_id", id), zap.Bool("processed", processed), zap.Error(err))
		item.Error = appErrors.FromError(err).Message
		return item
	}

	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(appErrors.Clone(appErrors.ErrNotFound, "purchase request not found"), "processed transition skipped")
		}
		return fail(appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load purchase request"), "processed transition failed")
	}
	item.RequestNumber = req.RequestNumber

	if processed {
		granted, err := s.access.GrantForRequest(ctx, req, adminID)
		if err != nil {
			return fail(err, "grant step failed")
		}
		item.Granted = granted.Granted
	} else {
		revoked, err := s.access.RevokeForRequest(ctx, req, adminID)
		if err != nil {
			return fail(err, "revoke step failed")
		}
		item.Revoked = revoked
	}

	updated, err := s.repo.SetProcessed(ctx, id, processed, adminID, s.now())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fail(appErrors.Clone(appErrors.ErrNotFound, "purchase request not found"), "processed transition skipped")
		}
		return fail(appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update purchase request"), "processed transition failed")
	}
	item.OK = true

	if s.ledger != nil {
		outcome := s.ledger.Upsert(ctx, updated)
		recordSyncOutcome(ctx, s.repo, s.logger, updated, outcome, s.now())
		ledger := outcome.DTO()
		item.Ledger = &ledger
	}
	s.emitAudit(ctx, adminID, updated, item)
	return item
}

func (s *RequestProcessingService) emitAudit(ctx context.Context, adminID string, req *models.PurchaseRequest, item dto.ProcessedItemResult) {
	if s.audit == nil {
		return
	}
	action := models.AuditActionRequestUnprocessed
	if req.IsProcessed {
		action = models.AuditActionRequestProcessed
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"requestNumber": req.RequestNumber,
		"isProcessed":   req.IsProcessed,
		"granted":       item.Granted,
		"revoked":       item.Revoked,
	})
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &adminID,
		Action:     action,
		Resource:   "purchase_request",
		ResourceID: &req.ID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "request-processing-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
