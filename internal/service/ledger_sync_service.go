package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/pkg/middleware/requestid"
)

const (
	maxSyncErrorRunes   = 500
	ledgerMutationLease = "ledger:mutation"
	leaseRetryInterval  = 100 * time.Millisecond
)

// ErrLedgerDisabled is reported when no ledger is configured.
var ErrLedgerDisabled = errors.New("ledger sync disabled")

// LedgerClient is the spreadsheet primitive set used by the sync layer.
type LedgerClient interface {
	Append(ctx context.Context, values []string) (int, error)
	ReadRange(ctx context.Context, a1 string) ([][]string, error)
	UpdateRange(ctx context.Context, row int, values []string) error
	DeleteRows(ctx context.Context, tabID int64, rows []int) error
	ResolveTabID(ctx context.Context, title string) (int64, error)
	Tab() string
	RowRange() string
	KeyColumnRange() string
}

type leaseStore interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

type tabIDCache interface {
	Lookup(ctx context.Context, tab string) (int64, bool)
	Remember(ctx context.Context, tab string, id int64)
	Forget(ctx context.Context, tab string)
}

// SyncOutcome is the result of one mirror attempt. It never carries an
// authoritative-store failure.
type SyncOutcome struct {
	OK  bool
	Row *int
	Err error
}

// Status converts the outcome into the sync columns stored on the request.
func (o SyncOutcome) Status(now time.Time) models.SyncStatus {
	if o.OK {
		return models.SyncStatus{SyncedAt: &now, Row: o.Row}
	}
	message := truncateSyncError(o.Err)
	return models.SyncStatus{Error: &message}
}

// DTO converts the outcome into its response form.
func (o SyncOutcome) DTO() dto.LedgerOutcome {
	out := dto.LedgerOutcome{OK: o.OK, Row: o.Row}
	if !o.OK {
		message := truncateSyncError(o.Err)
		out.Error = &message
	}
	return out
}

func truncateSyncError(err error) string {
	if err == nil {
		return "unknown ledger error"
	}
	runes := []rune(err.Error())
	if len(runes) > maxSyncErrorRunes {
		return string(runes[:maxSyncErrorRunes])
	}
	return string(runes)
}

// LedgerSyncConfig tunes locking.
type LedgerSyncConfig struct {
	LockTTL  time.Duration
	LockWait time.Duration
}

// LedgerSyncService mirrors purchase requests into the ledger. Every mutating
// call runs under one process mutex plus a shared lease so that row indices
// computed by a scan are still valid when the write lands.
type LedgerSyncService struct {
	client    LedgerClient
	resolver  *LedgerResolver
	formatter *LedgerFormatter
	leases    leaseStore
	tabIDs    tabIDCache
	metrics   *MetricsService
	logger    *zap.Logger
	cfg       LedgerSyncConfig

	mu sync.Mutex
}

// NewLedgerSyncService wires the sync layer. A nil client disables mirroring;
// nil leases fall back to the process mutex and a nil tab cache resolves
// the tab id on every delete.
func NewLedgerSyncService(client LedgerClient, resolver *LedgerResolver, formatter *LedgerFormatter, leases leaseStore, tabIDs tabIDCache, metrics *MetricsService, cfg LedgerSyncConfig, logger *zap.Logger) *LedgerSyncService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 30 * time.Second
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = 5 * time.Second
	}
	return &LedgerSyncService{
		client:    client,
		resolver:  resolver,
		formatter: formatter,
		leases:    leases,
		tabIDs:    tabIDs,
		metrics:   metrics,
		logger:    logger,
		cfg:       cfg,
	}
}

// Enabled reports whether a ledger is configured.
func (s *LedgerSyncService) Enabled() bool {
	return s != nil && s.client != nil
}

// Formatter exposes the row formatter shared with exports.
func (s *LedgerSyncService) Formatter() *LedgerFormatter {
	return s.formatter
}

// Append adds req as a new ledger row without scanning. Used on create.
func (s *LedgerSyncService) Append(ctx context.Context, req *models.PurchaseRequest) SyncOutcome {
	if !s.Enabled() {
		return SyncOutcome{Err: ErrLedgerDisabled}
	}
	var row int
	err := s.withMutationLock(ctx, func(ctx context.Context) error {
		var err error
		row, err = s.appendRow(ctx, req)
		return err
	})
	return s.outcome(ctx, "append", req.RequestNumber, row, err)
}

// Upsert rewrites the row carrying req's business key, or appends one when
// the key is absent. Running it twice leaves exactly one row.
func (s *LedgerSyncService) Upsert(ctx context.Context, req *models.PurchaseRequest) SyncOutcome {
	if !s.Enabled() {
		return SyncOutcome{Err: ErrLedgerDisabled}
	}
	var row int
	err := s.withMutationLock(ctx, func(ctx context.Context) error {
		index, err := s.scan(ctx)
		if err != nil {
			return err
		}
		entry, found := index.Find(req.RequestNumber)
		if !found {
			s.logger.Info("ledger row missing, appending", zap.String("request_number", req.RequestNumber))
			row, err = s.appendRow(ctx, req)
			return err
		}
		start := time.Now()
		err = s.client.UpdateRange(ctx, entry.Row, s.formatter.Row(req))
		s.metrics.ObserveLedgerCall("update", err, time.Since(start))
		if err != nil {
			return err
		}
		row = entry.Row
		return nil
	})
	return s.outcome(ctx, "upsert", req.RequestNumber, row, err)
}

// Remove deletes every row carrying key. A missing key is a success.
func (s *LedgerSyncService) Remove(ctx context.Context, key string) SyncOutcome {
	if !s.Enabled() {
		return SyncOutcome{Err: ErrLedgerDisabled}
	}
	err := s.withMutationLock(ctx, func(ctx context.Context) error {
		index, err := s.scan(ctx)
		if err != nil {
			return err
		}
		rows := index.Rows(key)
		if len(rows) == 0 {
			return nil
		}
		tabID, err := s.tabID(ctx)
		if err != nil {
			return err
		}
		start := time.Now()
		err = s.client.DeleteRows(ctx, tabID, rows)
		s.metrics.ObserveLedgerCall("delete", err, time.Since(start))
		if err != nil && s.tabIDs != nil {
			// the tab may have been recreated under a new id
			s.tabIDs.Forget(ctx, s.client.Tab())
		}
		return err
	})
	return s.outcome(ctx, "remove", key, 0, err)
}

// ExistingKeys returns the business keys currently present in the ledger.
func (s *LedgerSyncService) ExistingKeys(ctx context.Context) (map[string]struct{}, error) {
	if !s.Enabled() {
		return nil, ErrLedgerDisabled
	}
	start := time.Now()
	keys, err := s.resolver.ExistingKeySet(ctx)
	s.metrics.ObserveLedgerCall("read_keys", err, time.Since(start))
	return keys, err
}

func (s *LedgerSyncService) appendRow(ctx context.Context, req *models.PurchaseRequest) (int, error) {
	start := time.Now()
	row, err := s.client.Append(ctx, s.formatter.Row(req))
	s.metrics.ObserveLedgerCall("append", err, time.Since(start))
	return row, err
}

func (s *LedgerSyncService) scan(ctx context.Context) (*LedgerIndex, error) {
	start := time.Now()
	index, err := s.resolver.BuildIndex(ctx)
	s.metrics.ObserveLedgerCall("read", err, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.logger.Debug("ledger scanned", zap.Int("keys", index.Len()))
	return index, nil
}

func (s *LedgerSyncService) tabID(ctx context.Context) (int64, error) {
	tab := s.client.Tab()
	if s.tabIDs != nil {
		if id, ok := s.tabIDs.Lookup(ctx, tab); ok {
			return id, nil
		}
	}
	start := time.Now()
	id, err := s.client.ResolveTabID(ctx, tab)
	s.metrics.ObserveLedgerCall("metadata", err, time.Since(start))
	if err != nil {
		return 0, err
	}
	if s.tabIDs != nil {
		s.tabIDs.Remember(ctx, tab, id)
	}
	return id, nil
}

func (s *LedgerSyncService) withMutationLock(ctx context.Context, fn func(context.Context) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.leases == nil {
		return fn(ctx)
	}
	token, err := s.acquireLease(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := s.leases.Release(context.WithoutCancel(ctx), ledgerMutationLease, token); err != nil {
			s.logger.Warn("release ledger lease failed", zap.Error(err))
		}
	}()
	return fn(ctx)
}

func (s *LedgerSyncService) acquireLease(ctx context.Context) (string, error) {
	deadline := time.Now().Add(s.cfg.LockWait)
	for {
		token, err := s.leases.Acquire(ctx, ledgerMutationLease, s.cfg.LockTTL)
		if err == nil {
			return token, nil
		}
		if !errors.Is(err, repository.ErrLeaseHeld) {
			return "", fmt.Errorf("acquire ledger lease: %w", err)
		}
		if time.Now().After(deadline) {
			return "", fmt.Errorf("acquire ledger lease: timed out after %s: %w", s.cfg.LockWait, err)
		}
		timer := time.NewTimer(leaseRetryInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return "", ctx.Err()
		case <-timer.C:
		}
	}
}

func (s *LedgerSyncService) outcome(ctx context.Context, op, key string, row int, err error) SyncOutcome {
	fields := []zap.Field{zap.String("op", op), zap.String("request_number", key)}
	if id := requestid.FromContext(ctx); id != "" {
		fields = append(fields, zap.String("request_id", id))
	}
	if err != nil {
		s.logger.Warn("ledger sync failed", append(fields, zap.Error(err))...)
		return SyncOutcome{Err: err}
	}
	s.logger.Debug("ledger sync ok", append(fields, zap.Int("row", row))...)
	out := SyncOutcome{OK: true}
	if row > 0 {
		r := row
		out.Row = &r
	}
	return out
}
