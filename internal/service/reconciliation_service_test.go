package service

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/jobs"
)

type auditRecorder struct {
	logs []*models.AuditLog
}

func (a *auditRecorder) CreateAuditLog(ctx context.Context, log *models.AuditLog) error {
	a.logs = append(a.logs, log)
	return nil
}

func seedRequests(n int) []*models.PurchaseRequest {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	items := make([]*models.PurchaseRequest, 0, n)
	for i := 1; i <= n; i++ {
		req := sampleRequest(fmt.Sprintf("PR-%d", i))
		req.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		items = append(items, req)
	}
	return items
}

func newTestReconciler(store *memoryRequestStore, ledger *fakeLedger, leases leaseStore, audit auditLogger, pageSize int) *ReconciliationService {
	return NewReconciliationService(store, newTestLedgerSync(ledger, nil), leases, audit, nil,
		ReconciliationConfig{BatchLimit: 100, PageSize: pageSize}, nil)
}

func TestReconcileForwardProgressWithFailures(t *testing.T) {
	store := newMemoryRequestStore(seedRequests(5)...)
	ledger := newFakeLedger()
	ledger.failKeys = map[string]error{"PR-2": errors.New("quota"), "PR-4": errors.New("quota")}
	audit := &auditRecorder{}
	svc := newTestReconciler(store, ledger, newStubLeases(), audit, 2)

	report, err := svc.Run(context.Background(), ReconcileOptions{Limit: 10, ActorID: "admin-1"})
	require.NoError(t, err)
	assert.Equal(t, models.ReconcileReport{Synced: 3, Skipped: 0, Failed: 2}, report)
	assert.Equal(t, []string{"PR-1", "PR-3", "PR-5"}, ledger.keys())
	assert.NotNil(t, store.items["id-PR-2"].SheetSyncError)
	assert.Nil(t, store.items["id-PR-2"].SheetSyncedAt)
	require.Len(t, audit.logs, 1)
	assert.Equal(t, models.AuditActionLedgerReconcile, audit.logs[0].Action)
	assert.Equal(t, "admin-1", *audit.logs[0].UserID)
}

func TestReconcileStopsAtLimit(t *testing.T) {
	store := newMemoryRequestStore(seedRequests(5)...)
	ledger := newFakeLedger()
	svc := newTestReconciler(store, ledger, nil, nil, 10)

	report, err := svc.Run(context.Background(), ReconcileOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, []string{"PR-1", "PR-2"}, ledger.keys())
	for _, id := range []string{"id-PR-3", "id-PR-4", "id-PR-5"} {
		assert.Nil(t, store.items[id].SheetSyncedAt, id)
		assert.Nil(t, store.items[id].SheetSyncError, id)
	}

	report, err = svc.Run(context.Background(), ReconcileOptions{Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 2, report.Synced)
	assert.Equal(t, 2, report.Skipped)
	assert.Equal(t, []string{"PR-1", "PR-2", "PR-3", "PR-4"}, ledger.keys())
}

func TestReconcileSkipsPresentAndBlankKeys(t *testing.T) {
	items := seedRequests(3)
	items[1].RequestNumber = "  "
	store := newMemoryRequestStore(items...)
	ledger := newFakeLedger("PR-1")
	svc := newTestReconciler(store, ledger, nil, nil, 10)

	report, err := svc.Run(context.Background(), ReconcileOptions{})
	require.NoError(t, err)
	assert.Equal(t, models.ReconcileReport{Synced: 1, Skipped: 2}, report)
	assert.NotNil(t, store.items["id-PR-1"].SheetSyncedAt, "present rows are marked synced")
	assert.Equal(t, []string{"PR-1", "PR-3"}, ledger.keys())
}

func TestReconcileAbortsWhenKeysUnreadable(t *testing.T) {
	store := newMemoryRequestStore(seedRequests(2)...)
	ledger := newFakeLedger()
	ledger.readErr = errors.New("UNAVAILABLE")
	svc := newTestReconciler(store, ledger, nil, nil, 10)

	report, err := svc.Run(context.Background(), ReconcileOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, appErrors.ErrLedgerUnavailable)
	assert.Equal(t, models.ReconcileReport{}, report)
	assert.Equal(t, 0, ledger.appends)
}

func TestReconcileRejectsConcurrentRun(t *testing.T) {
	leases := newStubLeases()
	leases.held[reconcileLease] = "other-replica"
	svc := newTestReconciler(newMemoryRequestStore(), newFakeLedger(), leases, nil, 10)

	_, err := svc.Run(context.Background(), ReconcileOptions{})
	assert.ErrorIs(t, err, appErrors.ErrConflict)

	assert.NoError(t, svc.Handle(context.Background(), jobs.Job{ID: "job-1", Type: ReconcileJobType}))
}
