package service

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/pkg/middleware/requestid"
)

func sampleRequest(number string) *models.PurchaseRequest {
	return &models.PurchaseRequest{
		ID:            "id-" + number,
		RequestNumber: number,
		UserID:        "user-1",
		ClassLevel:    "5-6",
		MaterialTypes: pq.StringArray{"учебник"},
		Email:         "anna@example.com",
		FullName:      "Anna",
		CreatedAt:     time.Date(2026, 2, 1, 7, 0, 0, 0, time.UTC),
	}
}

func TestLedgerSyncUpsertIsIdempotent(t *testing.T) {
	ledger := newFakeLedger("PR-1", "PR-2")
	svc := newTestLedgerSync(ledger, newStubLeases())
	req := sampleRequest("PR-3")

	first := svc.Upsert(context.Background(), req)
	require.True(t, first.OK, "%v", first.Err)
	req.ClassLevel = "7-8"
	second := svc.Upsert(context.Background(), req)
	require.True(t, second.OK, "%v", second.Err)

	assert.Equal(t, 1, ledger.count("PR-3"))
	assert.Equal(t, *first.Row, *second.Row)
	assert.Equal(t, 1, ledger.appends)
	assert.Equal(t, 1, ledger.updates)
	assert.Equal(t, "7-8 класс", ledger.rows[*second.Row-1][2])
}

func TestLedgerSyncUpsertSelfHealsMissingRow(t *testing.T) {
	ledger := newFakeLedger("PR-1")
	svc := newTestLedgerSync(ledger, nil)

	outcome := svc.Upsert(context.Background(), sampleRequest("PR-9"))
	require.True(t, outcome.OK)
	assert.Equal(t, 3, *outcome.Row)
	assert.Equal(t, []string{"PR-1", "PR-9"}, ledger.keys())
}

func TestLedgerSyncUpsertTargetsBottomMostDuplicate(t *testing.T) {
	ledger := newFakeLedger("PR-5", "PR-6", "PR-5")
	svc := newTestLedgerSync(ledger, nil)

	outcome := svc.Upsert(context.Background(), sampleRequest("PR-5"))
	require.True(t, outcome.OK)
	assert.Equal(t, 4, *outcome.Row)
	assert.Equal(t, []string{"PR-5"}, ledger.rows[1])
}

func TestLedgerSyncRemoveDeletesEveryDuplicate(t *testing.T) {
	// PR-7 sits at rows 3, 7 and 9 (row 1 is the header)
	ledger := newFakeLedger("PR-1", "PR-7", "PR-2", "PR-3", "PR-4", "PR-7", "PR-5", "PR-7", "PR-6")
	svc := newTestLedgerSync(ledger, newStubLeases())

	outcome := svc.Remove(context.Background(), "PR-7")
	require.True(t, outcome.OK, "%v", outcome.Err)

	require.Len(t, ledger.deleteCalls, 1)
	assert.Equal(t, []int{9, 7, 3}, ledger.deleteCalls[0])
	assert.Equal(t, []string{"PR-1", "PR-2", "PR-3", "PR-4", "PR-5", "PR-6"}, ledger.keys())
}

func TestLedgerSyncRemoveMissingKeyIsNoop(t *testing.T) {
	ledger := newFakeLedger("PR-1")
	svc := newTestLedgerSync(ledger, nil)

	outcome := svc.Remove(context.Background(), "PR-404")
	assert.True(t, outcome.OK)
	assert.Empty(t, ledger.deleteCalls)
	assert.Equal(t, 0, ledger.tabLookups)
}

func TestLedgerSyncCachesTabID(t *testing.T) {
	ledger := newFakeLedger("PR-1", "PR-2")
	svc := newTestLedgerSync(ledger, nil)

	require.True(t, svc.Remove(context.Background(), "PR-1").OK)
	require.True(t, svc.Remove(context.Background(), "PR-2").OK)
	assert.Equal(t, 1, ledger.tabLookups)
}

func TestLedgerSyncDropsCachedTabIDAfterDeleteFailure(t *testing.T) {
	ledger := newFakeLedger("PR-1", "PR-2")
	svc := newTestLedgerSync(ledger, nil)

	ledger.deleteErr = errors.New("INVALID_ARGUMENT: no grid with id: 42")
	require.False(t, svc.Remove(context.Background(), "PR-1").OK)
	ledger.deleteErr = nil
	require.True(t, svc.Remove(context.Background(), "PR-1").OK)
	assert.Equal(t, 2, ledger.tabLookups)
	assert.Equal(t, []string{"PR-2"}, ledger.keys())
}

func TestLedgerSyncAppendFailureIsTruncated(t *testing.T) {
	ledger := newFakeLedger()
	ledger.appendErr = errors.New("timeout: " + strings.Repeat("x", 800))
	svc := newTestLedgerSync(ledger, nil)

	outcome := svc.Append(context.Background(), sampleRequest("PR-1"))
	require.False(t, outcome.OK)
	status := outcome.Status(time.Now())
	assert.Nil(t, status.SyncedAt)
	require.NotNil(t, status.Error)
	assert.Equal(t, 500, len([]rune(*status.Error)))
	assert.True(t, strings.HasPrefix(*status.Error, "timeout: "))
}

func TestLedgerSyncLeaseContentionFails(t *testing.T) {
	ledger := newFakeLedger()
	leases := newStubLeases()
	leases.held[ledgerMutationLease] = "other-replica"
	svc := newTestLedgerSync(ledger, leases)

	outcome := svc.Append(context.Background(), sampleRequest("PR-1"))
	require.False(t, outcome.OK)
	assert.ErrorIs(t, outcome.Err, repository.ErrLeaseHeld)
	assert.Equal(t, 0, ledger.appends)
}

func TestLedgerSyncReleasesLease(t *testing.T) {
	ledger := newFakeLedger()
	leases := newStubLeases()
	svc := newTestLedgerSync(ledger, leases)

	require.True(t, svc.Append(context.Background(), sampleRequest("PR-1")).OK)
	require.True(t, svc.Upsert(context.Background(), sampleRequest("PR-1")).OK)
	assert.Equal(t, 2, leases.acquired)
	assert.Equal(t, 2, leases.released)
	assert.Empty(t, leases.held)
}

func TestLedgerSyncDisabled(t *testing.T) {
	svc := newTestLedgerSync(nil, nil)
	assert.False(t, svc.Enabled())

	outcome := svc.Append(context.Background(), sampleRequest("PR-1"))
	assert.ErrorIs(t, outcome.Err, ErrLedgerDisabled)
	_, err := svc.ExistingKeys(context.Background())
	assert.ErrorIs(t, err, ErrLedgerDisabled)
}

func TestSyncOutcomeDTO(t *testing.T) {
	row := 12
	ok := SyncOutcome{OK: true, Row: &row}.DTO()
	assert.True(t, ok.OK)
	assert.Equal(t, 12, *ok.Row)
	assert.Nil(t, ok.Error)

	failed := SyncOutcome{Err: errors.New("boom")}.DTO()
	require.NotNil(t, failed.Error)
	assert.Equal(t, "boom", *failed.Error)
}

func TestLedgerSyncFailureLogCarriesRequestID(t *testing.T) {
	ledger := newFakeLedger()
	ledger.appendErr = errors.New("RESOURCE_EXHAUSTED: quota")
	core, logs := observer.New(zapcore.WarnLevel)
	svc := NewLedgerSyncService(ledger, NewLedgerResolver(ledger, "PR-", nil), NewLedgerFormatter(nil, false), nil, nil, nil,
		LedgerSyncConfig{}, zap.New(core))

	ctx := requestid.WithValue(context.Background(), "req-7")
	require.False(t, svc.Append(ctx, sampleRequest("PR-1")).OK)

	entries := logs.FilterMessage("ledger sync failed").All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	assert.Equal(t, "req-7", fields["request_id"])
	assert.Equal(t, "PR-1", fields["request_number"])
}
