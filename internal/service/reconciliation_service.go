package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/jobs"
)

const (
	reconcileLease = "ledger:reconcile"
	// ReconcileJobType identifies scheduled reconciliation jobs.
	ReconcileJobType = "ledger.reconcile"
)

type reconcileStore interface {
	ListForReconciliation(ctx context.Context, after *models.ReconcileCursor, limit int) ([]models.PurchaseRequest, error)
	UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus) error
}

type reconcileLedger interface {
	ExistingKeys(ctx context.Context) (map[string]struct{}, error)
	Append(ctx context.Context, req *models.PurchaseRequest) SyncOutcome
}

type auditLogger interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// ReconcileOptions bounds one run.
type ReconcileOptions struct {
	Limit   int
	ActorID string
}

// ReconciliationConfig tunes batch sizes.
type ReconciliationConfig struct {
	BatchLimit int
	PageSize   int
	LockTTL    time.Duration
}

// ReconciliationService appends requests missing from the ledger, oldest first.
type ReconciliationService struct {
	repo    reconcileStore
	ledger  reconcileLedger
	leases  leaseStore
	audit   auditLogger
	metrics *MetricsService
	logger  *zap.Logger
	cfg     ReconciliationConfig
	running atomic.Bool
	now     func() time.Time
}

// NewReconciliationService constructs the service.
func NewReconciliationService(repo reconcileStore, ledger reconcileLedger, leases leaseStore, audit auditLogger, metrics *MetricsService, cfg ReconciliationConfig, logger *zap.Logger) *ReconciliationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.BatchLimit <= 0 {
		cfg.BatchLimit = 100
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = 200
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 10 * time.Minute
	}
	return &ReconciliationService{
		repo:    repo,
		ledger:  ledger,
		leases:  leases,
		audit:   audit,
		metrics: metrics,
		logger:  logger,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Run performs one pass. It stops as soon as Limit rows were appended; a
// non-positive Limit means the configured batch limit. Individual append
// failures are counted and the pass continues.
func (s *ReconciliationService) Run(ctx context.Context, opts ReconcileOptions) (models.ReconcileReport, error) {
	var report models.ReconcileReport
	limit := opts.Limit
	if limit <= 0 {
		limit = s.cfg.BatchLimit
	}

	if !s.running.CompareAndSwap(false, true) {
		return report, appErrors.Clone(appErrors.ErrConflict, "reconciliation already running")
	}
	defer s.running.Store(false)

	if s.leases != nil {
		token, err := s.leases.Acquire(ctx, reconcileLease, s.cfg.LockTTL)
		if err != nil {
			if errors.Is(err, repository.ErrLeaseHeld) {
				return report, appErrors.Clone(appErrors.ErrConflict, "reconciliation already running")
			}
			return report, appErrors.WrapAs(err, appErrors.ErrServiceUnavailable, "failed to acquire reconciliation lease")
		}
		defer func() {
			if err := s.leases.Release(context.WithoutCancel(ctx), reconcileLease, token); err != nil {
				s.logger.Warn("release reconciliation lease failed", zap.Error(err))
			}
		}()
	}

	report, err := s.run(ctx, limit)
	s.metrics.ObserveReconcile(report, err)
	s.logger.Info("ledger reconciliation finished",
		zap.Int("synced", report.Synced), zap.Int("skipped", report.Skipped), zap.Int("failed", report.Failed),
		zap.Int("limit", limit), zap.Error(err))
	s.emitAudit(ctx, opts.ActorID, limit, report)
	return report, err
}

func (s *ReconciliationService) run(ctx context.Context, limit int) (models.ReconcileReport, error) {
	var report models.ReconcileReport
	keys, err := s.ledger.ExistingKeys(ctx)
	if err != nil {
		return report, appErrors.WrapAs(err, appErrors.ErrLedgerUnavailable, "failed to read ledger keys")
	}

	var cursor *models.ReconcileCursor
	for report.Synced < limit {
		start := time.Now()
		page, err := s.repo.ListForReconciliation(ctx, cursor, s.cfg.PageSize)
		s.metrics.ObserveDBQuery("reconcile_page", time.Since(start))
		if err != nil {
			return report, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to page purchase requests")
		}
		for i := range page {
			if err := ctx.Err(); err != nil {
				return report, err
			}
			req := &page[i]
			cursor = &models.ReconcileCursor{CreatedAt: req.CreatedAt, ID: req.ID}

			key := strings.TrimSpace(req.RequestNumber)
			if key == "" {
				report.Skipped++
				continue
			}
			if _, present := keys[key]; present {
				if !req.IsSynced() {
					now := s.now()
					if err := s.repo.UpdateSyncStatus(ctx, req.ID, models.SyncStatus{SyncedAt: &now, Row: req.SheetRow}); err != nil {
						s.logger.Warn("failed to mark request synced", zap.String("request_id", req.ID), zap.Error(err))
					}
				}
				report.Skipped++
				continue
			}

			outcome := s.ledger.Append(ctx, req)
			recordSyncOutcome(ctx, s.repo, s.logger, req, outcome, s.now())
			if !outcome.OK {
				report.Failed++
				continue
			}
			keys[key] = struct{}{}
			report.Synced++
			if report.Synced >= limit {
				return report, nil
			}
		}
		if len(page) < s.cfg.PageSize {
			break
		}
	}
	return report, nil
}

// Handle runs a scheduled reconciliation job.
func (s *ReconciliationService) Handle(ctx context.Context, job jobs.Job) error {
	_, err := s.Run(ctx, ReconcileOptions{})
	if errors.Is(err, appErrors.ErrConflict) {
		s.logger.Info("scheduled reconciliation skipped, another run in progress", zap.String("job_id", job.ID))
		return nil
	}
	return err
}

func (s *ReconciliationService) emitAudit(ctx context.Context, actorID string, limit int, report models.ReconcileReport) {
	if s.audit == nil {
		return
	}
	payload, _ := json.Marshal(map[string]interface{}{
		"limit":   limit,
		"synced":  report.Synced,
		"skipped": report.Skipped,
		"failed":  report.Failed,
	})
	entry := &models.AuditLog{
		Action:    models.AuditActionLedgerReconcile,
		Resource:  "ledger",
		NewValues: payload,
		IPAddress: "system",
		UserAgent: "ledger-reconciler",
	}
	if actorID != "" {
		entry.UserID = &actorID
	}
	if err := s.audit.CreateAuditLog(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Warn("failed to persist audit log", zap.Error(err))
	}
}
