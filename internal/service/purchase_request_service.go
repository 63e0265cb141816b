package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

type purchaseRequestStore interface {
	Create(ctx context.Context, req *models.PurchaseRequest) error
	GetByID(ctx context.Context, id string) (*models.PurchaseRequest, error)
	List(ctx context.Context, filter models.PurchaseRequestFilter) ([]models.PurchaseRequest, int, error)
	UpdateOwned(ctx context.Context, params repository.UpdateOwnedParams) (*models.PurchaseRequest, error)
	DeleteOwned(ctx context.Context, id, userID string) (string, error)
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus) error
}

type syncStatusWriter interface {
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus) error
}

type profileLookup interface {
	FindByID(ctx context.Context, id string) (*models.UserProfile, error)
}

type ledgerMirror interface {
	Append(ctx context.Context, req *models.PurchaseRequest) SyncOutcome
	Upsert(ctx context.Context, req *models.PurchaseRequest) SyncOutcome
	Remove(ctx context.Context, key string) SyncOutcome
}

// PurchaseRequestService runs the owner-facing request lifecycle. The
// database row is written first; the ledger mirror follows and its failure
// never fails the operation.
type PurchaseRequestService struct {
	repo      purchaseRequestStore
	users     profileLookup
	ledger    ledgerMirror
	validator *validator.Validate
	keyPrefix string
	logger    *zap.Logger
	now       func() time.Time
}

// NewPurchaseRequestService constructs the service.
func NewPurchaseRequestService(repo purchaseRequestStore, users profileLookup, ledger ledgerMirror, validate *validator.Validate, keyPrefix string, logger *zap.Logger) *PurchaseRequestService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PurchaseRequestService{
		repo:      repo,
		users:     users,
		ledger:    ledger,
		validator: validate,
		keyPrefix: keyPrefix,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new request and appends it to the ledger.
func (s *PurchaseRequestService) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreatePurchaseRequest) (*dto.PurchaseRequestResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid purchase request payload")
	}
	number := strings.TrimSpace(req.RequestNumber)
	if number == "" || (s.keyPrefix != "" && !strings.HasPrefix(number, s.keyPrefix)) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "requestNumber must start with "+s.keyPrefix)
	}
	types := normalizeMaterialTypes(req.MaterialTypes)
	if len(types) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one material type is required")
	}
	email, fullName, err := s.resolveContact(ctx, actor.UserID, req.Email, req.FullName)
	if err != nil {
		return nil, err
	}

	record := &models.PurchaseRequest{
		RequestNumber: number,
		UserID:        actor.UserID,
		ClassLevel:    strings.TrimSpace(req.ClassLevel),
		MaterialTypes: types,
		Email:         email,
		FullName:      fullName,
		CreatedAt:     s.now(),
	}
	if err := s.repo.Create(ctx, record); err != nil {
		if repository.IsUniqueViolation(err) {
			return nil, appErrors.Clone(appErrors.ErrConflict, "request number already exists")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to create purchase request")
	}

	outcome := s.ledger.Append(ctx, record)
	recordSyncOutcome(ctx, s.repo, s.logger, record, outcome, s.now())
	return &dto.PurchaseRequestResult{Request: record, Ledger: outcome.DTO()}, nil
}

// Update rewrites an unprocessed request owned by the actor and refreshes its ledger row.
func (s *PurchaseRequestService) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdatePurchaseRequest) (*dto.PurchaseRequestResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid purchase request payload")
	}
	types := normalizeMaterialTypes(req.MaterialTypes)
	if len(types) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one material type is required")
	}
	existing, err := s.loadOwned(ctx, actor, id)
	if err != nil {
		return nil, err
	}

	email := strings.TrimSpace(req.Email)
	if email == "" {
		email = existing.Email
	}
	fullName := strings.TrimSpace(req.FullName)
	if fullName == "" {
		fullName = existing.FullName
	}
	updated, err := s.repo.UpdateOwned(ctx, repository.UpdateOwnedParams{
		ID:            id,
		UserID:        actor.UserID,
		ClassLevel:    strings.TrimSpace(req.ClassLevel),
		MaterialTypes: types,
		Email:         email,
		FullName:      fullName,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrLocked
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to update purchase request")
	}

	outcome := s.ledger.Upsert(ctx, updated)
	recordSyncOutcome(ctx, s.repo, s.logger, updated, outcome, s.now())
	return &dto.PurchaseRequestResult{Request: updated, Ledger: outcome.DTO()}, nil
}

// Delete removes an unprocessed request owned by the actor and every ledger row carrying its number.
func (s *PurchaseRequestService) Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeletePurchaseRequestResult, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	number, err := s.repo.DeleteOwned(ctx, id, actor.UserID)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to delete purchase request")
		}
		if _, loadErr := s.loadOwned(ctx, actor, id); loadErr != nil {
			return nil, loadErr
		}
		return nil, appErrors.ErrLocked
	}

	outcome := s.ledger.Remove(ctx, number)
	return &dto.DeletePurchaseRequestResult{ID: id, RequestNumber: number, Ledger: outcome.DTO()}, nil
}

// Get returns a request visible to the actor.
func (s *PurchaseRequestService) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.PurchaseRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != actor.UserID && !actor.IsAdmin() {
		return nil, appErrors.ErrForbidden
	}
	return req, nil
}

// List returns the actor's requests. Admins may list any user's requests.
func (s *PurchaseRequestService) List(ctx context.Context, actor *models.JWTClaims, query dto.PurchaseRequestQuery) ([]models.PurchaseRequest, *models.Pagination, error) {
	if actor == nil {
		return nil, nil, appErrors.ErrUnauthorized
	}
	page := query.Page
	if page < 1 {
		page = 1
	}
	size := query.PageSize
	if size <= 0 || size > 200 {
		size = 20
	}
	filter := models.PurchaseRequestFilter{
		UserID:      actor.UserID,
		IsProcessed: query.IsProcessed,
		Limit:       size,
		Offset:      (page - 1) * size,
	}
	if actor.IsAdmin() {
		filter.UserID = strings.TrimSpace(query.UserID)
	}
	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list purchase requests")
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

func (s *PurchaseRequestService) load(ctx context.Context, id string) (*models.PurchaseRequest, error) {
	req, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase request not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load purchase request")
	}
	return req, nil
}

// loadOwned classifies why an owner mutation is not allowed.
func (s *PurchaseRequestService) loadOwned(ctx context.Context, actor *models.JWTClaims, id string) (*models.PurchaseRequest, error) {
	req, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.UserID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if req.IsProcessed {
		return nil, appErrors.ErrLocked
	}
	return req, nil
}

func (s *PurchaseRequestService) resolveContact(ctx context.Context, userID, email, fullName string) (string, string, error) {
	email = strings.TrimSpace(email)
	fullName = strings.TrimSpace(fullName)
	if (email == "" || fullName == "") && s.users != nil {
		profile, err := s.users.FindByID(ctx, userID)
		switch {
		case err == nil:
			if email == "" {
				email = strings.TrimSpace(profile.Email)
			}
			if fullName == "" {
				fullName = strings.TrimSpace(profile.FullName)
			}
		case errors.Is(err, sql.ErrNoRows):
		default:
			return "", "", appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load user profile")
		}
	}
	if email == "" || fullName == "" {
		return "", "", appErrors.Clone(appErrors.ErrValidation, "email and full name are required")
	}
	return email, fullName, nil
}

func normalizeMaterialTypes(types []string) []string {
	out := make([]string, 0, len(types))
	seen := make(map[string]struct{}, len(types))
	for _, raw := range types {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		key := strings.ToLower(value)
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, value)
	}
	return out
}

// recordSyncOutcome stamps the mirror result on the stored request and on req.
// A failed stamp is logged only; the next sync overwrites it.
func recordSyncOutcome(ctx context.Context, store syncStatusWriter, logger *zap.Logger, req *models.PurchaseRequest, outcome SyncOutcome, now time.Time) {
	status := outcome.Status(now)
	if !outcome.OK {
		status.Row = req.SheetRow
	}
	if err := store.UpdateSyncStatus(ctx, req.ID, status); err != nil {
		logger.Warn("failed to record ledger sync status", zap.String("request_id", req.ID), zap.Error(err))
	}
	req.SheetSyncedAt = status.SyncedAt
	req.SheetRow = status.Row
	req.SheetSyncError = status.Error
}
