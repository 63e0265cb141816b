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

// categoryAliases holds lower-case fragments identifying a material kind
// inside free-form type labels.
var categoryAliases = map[models.MaterialKind][]string{
	models.MaterialKindTextbook:  {"учебник", "textbook"},
	models.MaterialKindCrossword: {"кроссворд", "crossword"},
}

var kindLabels = map[models.MaterialKind]string{
	models.MaterialKindTextbook:  "Учебник",
	models.MaterialKindCrossword: "Кроссворд",
}

// MatchCategories maps free-form type labels onto material kinds by
// case-insensitive substring match. Labels matching nothing are ignored.
func MatchCategories(types []string) []models.MaterialKind {
	matched := make(map[models.MaterialKind]bool, len(models.MaterialKinds))
	for _, raw := range types {
		value := strings.ToLower(strings.TrimSpace(raw))
		if value == "" {
			continue
		}
		for kind, aliases := range categoryAliases {
			for _, alias := range aliases {
				if strings.Contains(value, alias) {
					matched[kind] = true
					break
				}
			}
		}
	}
	kinds := make([]models.MaterialKind, 0, len(matched))
	for _, kind := range models.MaterialKinds {
		if matched[kind] {
			kinds = append(kinds, kind)
		}
	}
	return kinds
}

// ParseClassLevels splits a possibly composite class level into distinct codes.
func ParseClassLevels(level string) []string {
	parts := strings.Split(level, ",")
	levels := make([]string, 0, len(parts))
	seen := make(map[string]struct{}, len(parts))
	for _, part := range parts {
		code := strings.TrimSpace(part)
		if code == "" {
			continue
		}
		if _, dup := seen[code]; dup {
			continue
		}
		seen[code] = struct{}{}
		levels = append(levels, code)
	}
	return levels
}

type grantStore interface {
	GrantMany(ctx context.Context, kind models.MaterialKind, userID string, materialIDs []string, grantedBy string, at time.Time) (int64, error)
	Grant(ctx context.Context, kind models.MaterialKind, grant *models.AccessGrant) (bool, error)
	Revoke(ctx context.Context, kind models.MaterialKind, userID, materialID string) (int64, error)
	RevokeByGranter(ctx context.Context, kind models.MaterialKind, userID, grantedBy string) (int64, error)
	ListByUser(ctx context.Context, kind models.MaterialKind, userID string) ([]models.AccessGrant, error)
}

type materialCatalog interface {
	ListActiveByClassLevels(ctx context.Context, kind models.MaterialKind, levels []string) ([]models.Material, error)
	GetByID(ctx context.Context, kind models.MaterialKind, id string) (*models.Material, error)
}

// AccessGrantService derives and manages material access for users.
type AccessGrantService struct {
	grants    grantStore
	materials materialCatalog
	audit     auditLogger
	metrics   *MetricsService
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewAccessGrantService constructs the service.
func NewAccessGrantService(grants grantStore, materials materialCatalog, audit auditLogger, metrics *MetricsService, validate *validator.Validate, logger *zap.Logger) *AccessGrantService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AccessGrantService{
		grants:    grants,
		materials: materials,
		audit:     audit,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// GrantForRequest unlocks every active material matching the request's class
// levels and categories. Pairs the user already holds are left as they are,
// including their original granter.
func (s *AccessGrantService) GrantForRequest(ctx context.Context, req *models.PurchaseRequest, adminID string) (*dto.GrantResult, error) {
	result := &dto.GrantResult{Granted: []string{}}
	levels := ParseClassLevels(req.ClassLevel)
	kinds := MatchCategories(req.MaterialTypes)
	if len(levels) == 0 || len(kinds) == 0 {
		return result, nil
	}

	seen := make(map[string]struct{})
	at := s.now()
	for _, kind := range kinds {
		materials, err := s.materials.ListActiveByClassLevels(ctx, kind, levels)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load materials")
		}
		if len(materials) == 0 {
			continue
		}
		ids := make([]string, 0, len(materials))
		for _, material := range materials {
			ids = append(ids, material.ID)
			label := kindLabels[kind] + ": " + material.Title
			if _, dup := seen[label]; !dup {
				seen[label] = struct{}{}
				result.Granted = append(result.Granted, label)
			}
		}
		inserted, err := s.grants.GrantMany(ctx, kind, req.UserID, ids, adminID, at)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to grant access")
		}
		result.Inserted += inserted
		s.metrics.ObserveAccessChange(kind, "grant", inserted)
	}
	s.logger.Info("access granted for request",
		zap.String("request_number", req.RequestNumber), zap.String("user_id", req.UserID),
		zap.Int("materials", len(result.Granted)), zap.Int64("inserted", result.Inserted))
	return result, nil
}

// RevokeForRequest removes every grant adminID gave the request's owner, in
// both catalogues. Grants by other admins are untouched.
func (s *AccessGrantService) RevokeForRequest(ctx context.Context, req *models.PurchaseRequest, adminID string) (int64, error) {
	var total int64
	for _, kind := range models.MaterialKinds {
		removed, err := s.grants.RevokeByGranter(ctx, kind, req.UserID, adminID)
		if err != nil {
			return total, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to revoke access")
		}
		total += removed
		s.metrics.ObserveAccessChange(kind, "revoke", removed)
	}
	return total, nil
}

// Grant gives one user access to one material.
func (s *AccessGrantService) Grant(ctx context.Context, actor *models.JWTClaims, req dto.AccessGrantRequest) (*models.AccessGrant, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrValidation, "invalid access grant payload")
	}
	material, err := s.materials.GetByID(ctx, req.Kind, req.MaterialID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "material not found")
		}
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load material")
	}
	grant := &models.AccessGrant{
		UserID:     req.UserID,
		MaterialID: material.ID,
		Kind:       req.Kind,
		GrantedBy:  actor.UserID,
		GrantedAt:  s.now(),
		Title:      material.Title,
	}
	created, err := s.grants.Grant(ctx, req.Kind, grant)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to grant access")
	}
	if created {
		s.metrics.ObserveAccessChange(req.Kind, "grant", 1)
		s.emitAudit(ctx, actor.UserID, models.AuditActionAccessGrant, grant)
	}
	return grant, nil
}

// Revoke removes one user's access to one material regardless of who granted it.
func (s *AccessGrantService) Revoke(ctx context.Context, actor *models.JWTClaims, req dto.AccessGrantRequest) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if err := s.validator.Struct(req); err != nil {
		return appErrors.WrapAs(err, appErrors.ErrValidation, "invalid access grant payload")
	}
	removed, err := s.grants.Revoke(ctx, req.Kind, req.UserID, req.MaterialID)
	if err != nil {
		return appErrors.WrapAs(err, appErrors.ErrInternal, "failed to revoke access")
	}
	if removed == 0 {
		return appErrors.Clone(appErrors.ErrNotFound, "access grant not found")
	}
	s.metrics.ObserveAccessChange(req.Kind, "revoke", removed)
	s.emitAudit(ctx, actor.UserID, models.AuditActionAccessRevoke, &models.AccessGrant{UserID: req.UserID, MaterialID: req.MaterialID, Kind: req.Kind})
	return nil
}

// ListForUser returns all grants held by userID across both catalogues.
func (s *AccessGrantService) ListForUser(ctx context.Context, userID string) ([]models.AccessGrant, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "userId is required")
	}
	all := make([]models.AccessGrant, 0)
	for _, kind := range models.MaterialKinds {
		grants, err := s.grants.ListByUser(ctx, kind, userID)
		if err != nil {
			return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to list access grants")
		}
		all = append(all, grants...)
	}
	return all, nil
}

func (s *AccessGrantService) emitAudit(ctx context.Context, actorID, action string, grant *models.AccessGrant) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(grant)
	resourceID := grant.UserID
	if err := s.audit.CreateAuditLog(ctx, &models.AuditLog{
		UserID:     &actorID,
		Action:     action,
		Resource:   string(grant.Kind) + "_access",
		ResourceID: &resourceID,
		NewValues:  payload,
		IPAddress:  "system",
		UserAgent:  "access-grant-service",
	}); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
