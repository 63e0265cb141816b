package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/models"
	"github.com/noah-isme/edu-portal-api/internal/repository"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

type memoryRequestStore struct {
	mu        sync.Mutex
	items     map[string]*models.PurchaseRequest
	order     []string
	statuses  map[string]models.SyncStatus
	createErr error
}

func newMemoryRequestStore(items ...*models.PurchaseRequest) *memoryRequestStore {
	store := &memoryRequestStore{items: make(map[string]*models.PurchaseRequest), statuses: make(map[string]models.SyncStatus)}
	for _, item := range items {
		copied := *item
		store.items[item.ID] = &copied
		store.order = append(store.order, item.ID)
	}
	return store
}

func (m *memoryRequestStore) Create(ctx context.Context, req *models.PurchaseRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.createErr != nil {
		return m.createErr
	}
	if req.ID == "" {
		req.ID = "pr-" + req.RequestNumber
	}
	copied := *req
	m.items[req.ID] = &copied
	m.order = append(m.order, req.ID)
	return nil
}

func (m *memoryRequestStore) GetByID(ctx context.Context, id string) (*models.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copied := *item
	return &copied, nil
}

func (m *memoryRequestStore) List(ctx context.Context, filter models.PurchaseRequestFilter) ([]models.PurchaseRequest, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PurchaseRequest
	for _, id := range m.order {
		item, ok := m.items[id]
		if !ok || (filter.UserID != "" && item.UserID != filter.UserID) {
			continue
		}
		out = append(out, *item)
	}
	return out, len(out), nil
}

func (m *memoryRequestStore) UpdateOwned(ctx context.Context, params repository.UpdateOwnedParams) (*models.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[params.ID]
	if !ok || item.UserID != params.UserID || item.IsProcessed {
		return nil, sql.ErrNoRows
	}
	item.ClassLevel = params.ClassLevel
	item.MaterialTypes = params.MaterialTypes
	item.Email = params.Email
	item.FullName = params.FullName
	copied := *item
	return &copied, nil
}

func (m *memoryRequestStore) DeleteOwned(ctx context.Context, id, userID string) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok || item.UserID != userID || item.IsProcessed {
		return "", sql.ErrNoRows
	}
	delete(m.items, id)
	return item.RequestNumber, nil
}

func (m *memoryRequestStore) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return sql.ErrNoRows
	}
	m.statuses[id] = status
	item.SheetSyncedAt = status.SyncedAt
	item.SheetRow = status.Row
	item.SheetSyncError = status.Error
	return nil
}

func (m *memoryRequestStore) SetProcessed(ctx context.Context, id string, processed bool, adminID string, at time.Time) (*models.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	item.IsProcessed = processed
	if processed {
		if item.ProcessedAt == nil {
			item.ProcessedAt = &at
		}
		item.ProcessedBy = &adminID
	} else {
		item.ProcessedAt = nil
		item.ProcessedBy = nil
	}
	copied := *item
	return &copied, nil
}

func (m *memoryRequestStore) ListForReconciliation(ctx context.Context, after *models.ReconcileCursor, limit int) ([]models.PurchaseRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.PurchaseRequest
	passed := after == nil
	for _, id := range m.order {
		item, ok := m.items[id]
		if !ok {
			continue
		}
		if !passed {
			if id == after.ID {
				passed = true
			}
			continue
		}
		out = append(out, *item)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

type stubProfiles struct {
	profiles map[string]*models.UserProfile
	err      error
}

func (s *stubProfiles) FindByID(ctx context.Context, id string) (*models.UserProfile, error) {
	if s.err != nil {
		return nil, s.err
	}
	profile, ok := s.profiles[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return profile, nil
}

func ownerClaims() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-1", Role: models.RoleUser}
}

func newTestPurchaseRequestService(store *memoryRequestStore, ledger *fakeLedger) *PurchaseRequestService {
	profiles := &stubProfiles{profiles: map[string]*models.UserProfile{
		"user-1": {ID: "user-1", Email: "anna@example.com", FullName: "Anna Petrova"},
	}}
	return NewPurchaseRequestService(store, profiles, newTestLedgerSync(ledger, nil), nil, "PR-", nil)
}

func TestPurchaseRequestCreateAppendsToLedger(t *testing.T) {
	// eleven rows already present: a header and ten requests
	ledger := newFakeLedger("PR-1", "PR-2", "PR-3", "PR-4", "PR-5", "PR-6", "PR-7", "PR-8", "PR-9", "PR-10")
	store := newMemoryRequestStore()
	svc := newTestPurchaseRequestService(store, ledger)

	result, err := svc.Create(context.Background(), ownerClaims(), dto.CreatePurchaseRequest{
		RequestNumber: "PR-1001",
		ClassLevel:    "5-6",
		MaterialTypes: []string{"учебник"},
	})
	require.NoError(t, err)

	assert.True(t, result.Ledger.OK)
	require.NotNil(t, result.Ledger.Row)
	assert.Equal(t, 12, *result.Ledger.Row)
	stored := store.items[result.Request.ID]
	require.NotNil(t, stored.SheetRow)
	assert.Equal(t, 12, *stored.SheetRow)
	assert.NotNil(t, stored.SheetSyncedAt)
	assert.Nil(t, stored.SheetSyncError)
	assert.Equal(t, "anna@example.com", stored.Email)
	assert.Equal(t, "Anna Petrova", stored.FullName)
	assert.Equal(t, "PR-1001", ledger.rows[11][0])
}

func TestPurchaseRequestCreateSurvivesLedgerTimeout(t *testing.T) {
	ledger := newFakeLedger()
	ledger.appendErr = errors.New("context deadline exceeded: " + strings.Repeat("Ж", 700))
	store := newMemoryRequestStore()
	svc := newTestPurchaseRequestService(store, ledger)

	result, err := svc.Create(context.Background(), ownerClaims(), dto.CreatePurchaseRequest{
		RequestNumber: "PR-1002",
		ClassLevel:    "7-8",
		MaterialTypes: []string{"кроссворд"},
		Email:         "x@example.com",
		FullName:      "X",
	})
	require.NoError(t, err)
	assert.False(t, result.Ledger.OK)
	require.NotNil(t, result.Ledger.Error)

	stored := store.items[result.Request.ID]
	require.NotNil(t, stored, "authoritative row must survive ledger failure")
	assert.Nil(t, stored.SheetSyncedAt)
	require.NotNil(t, stored.SheetSyncError)
	assert.Equal(t, 500, len([]rune(*stored.SheetSyncError)))
}

func TestPurchaseRequestCreateValidation(t *testing.T) {
	svc := newTestPurchaseRequestService(newMemoryRequestStore(), newFakeLedger())

	_, err := svc.Create(context.Background(), nil, dto.CreatePurchaseRequest{})
	assert.ErrorIs(t, err, appErrors.ErrUnauthorized)

	_, err = svc.Create(context.Background(), ownerClaims(), dto.CreatePurchaseRequest{RequestNumber: "PR-1", ClassLevel: "5-6"})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), ownerClaims(), dto.CreatePurchaseRequest{RequestNumber: "X-1", ClassLevel: "5-6", MaterialTypes: []string{"учебник"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)

	_, err = svc.Create(context.Background(), &models.JWTClaims{UserID: "ghost"}, dto.CreatePurchaseRequest{RequestNumber: "PR-1", ClassLevel: "5-6", MaterialTypes: []string{"учебник"}})
	assert.ErrorIs(t, err, appErrors.ErrValidation)
}

func TestPurchaseRequestCreateDuplicateNumber(t *testing.T) {
	store := newMemoryRequestStore()
	store.createErr = &pq.Error{Code: "23505"}
	svc := newTestPurchaseRequestService(store, newFakeLedger())

	_, err := svc.Create(context.Background(), ownerClaims(), dto.CreatePurchaseRequest{RequestNumber: "PR-1", ClassLevel: "5-6", MaterialTypes: []string{"учебник"}})
	assert.ErrorIs(t, err, appErrors.ErrConflict)
}

func TestPurchaseRequestUpdateRules(t *testing.T) {
	open := sampleRequest("PR-10")
	processed := sampleRequest("PR-11")
	processed.IsProcessed = true
	store := newMemoryRequestStore(open, processed)
	ledger := newFakeLedger("PR-10")
	svc := newTestPurchaseRequestService(store, ledger)
	payload := dto.UpdatePurchaseRequest{ClassLevel: "7-8", MaterialTypes: []string{"кроссворд"}}

	_, err := svc.Update(context.Background(), ownerClaims(), "missing", payload)
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	_, err = svc.Update(context.Background(), &models.JWTClaims{UserID: "user-2"}, open.ID, payload)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)

	_, err = svc.Update(context.Background(), ownerClaims(), processed.ID, payload)
	var appErr *appErrors.Error
	require.True(t, errors.As(err, &appErr))
	assert.Equal(t, "REQUEST_LOCKED", appErr.Code)
	assert.Equal(t, 423, appErr.Status)

	result, err := svc.Update(context.Background(), ownerClaims(), open.ID, payload)
	require.NoError(t, err)
	assert.True(t, result.Ledger.OK)
	assert.Equal(t, 2, *result.Ledger.Row)
	assert.Equal(t, "7-8 класс", ledger.rows[1][2])
	assert.Equal(t, "anna@example.com", result.Request.Email)
	assert.Equal(t, 1, ledger.count("PR-10"))
}

func TestPurchaseRequestUpdateReappendsMissingRow(t *testing.T) {
	open := sampleRequest("PR-20")
	store := newMemoryRequestStore(open)
	ledger := newFakeLedger("PR-1")
	svc := newTestPurchaseRequestService(store, ledger)

	result, err := svc.Update(context.Background(), ownerClaims(), open.ID, dto.UpdatePurchaseRequest{ClassLevel: "5-6", MaterialTypes: []string{"учебник"}})
	require.NoError(t, err)
	assert.True(t, result.Ledger.OK)
	assert.Equal(t, []string{"PR-1", "PR-20"}, ledger.keys())
}

func TestPurchaseRequestDelete(t *testing.T) {
	open := sampleRequest("PR-30")
	processed := sampleRequest("PR-31")
	processed.IsProcessed = true
	store := newMemoryRequestStore(open, processed)
	ledger := newFakeLedger("PR-30", "PR-31", "PR-30")
	svc := newTestPurchaseRequestService(store, ledger)

	_, err := svc.Delete(context.Background(), ownerClaims(), processed.ID)
	assert.ErrorIs(t, err, appErrors.ErrLocked)
	_, err = svc.Delete(context.Background(), &models.JWTClaims{UserID: "user-2"}, open.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	_, err = svc.Delete(context.Background(), ownerClaims(), "missing")
	assert.ErrorIs(t, err, appErrors.ErrNotFound)

	result, err := svc.Delete(context.Background(), ownerClaims(), open.ID)
	require.NoError(t, err)
	assert.Equal(t, "PR-30", result.RequestNumber)
	assert.True(t, result.Ledger.OK)
	assert.Equal(t, []string{"PR-31"}, ledger.keys())
	_, exists := store.items[open.ID]
	assert.False(t, exists)
}

func TestPurchaseRequestDeleteSurvivesLedgerFailure(t *testing.T) {
	open := sampleRequest("PR-40")
	store := newMemoryRequestStore(open)
	ledger := newFakeLedger("PR-40")
	ledger.readErr = errors.New("UNAVAILABLE")
	svc := newTestPurchaseRequestService(store, ledger)

	result, err := svc.Delete(context.Background(), ownerClaims(), open.ID)
	require.NoError(t, err)
	assert.False(t, result.Ledger.OK)
	assert.Empty(t, store.items)
}

func TestPurchaseRequestGetAndList(t *testing.T) {
	mine := sampleRequest("PR-50")
	other := sampleRequest("PR-51")
	other.UserID = "user-2"
	store := newMemoryRequestStore(mine, other)
	svc := newTestPurchaseRequestService(store, newFakeLedger())

	_, err := svc.Get(context.Background(), ownerClaims(), other.ID)
	assert.ErrorIs(t, err, appErrors.ErrForbidden)
	admin := &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	got, err := svc.Get(context.Background(), admin, other.ID)
	require.NoError(t, err)
	assert.Equal(t, "PR-51", got.RequestNumber)

	items, pagination, err := svc.List(context.Background(), ownerClaims(), dto.PurchaseRequestQuery{UserID: "user-2"})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "PR-50", items[0].RequestNumber)
	assert.Equal(t, 1, pagination.TotalCount)

	items, _, err = svc.List(context.Background(), admin, dto.PurchaseRequestQuery{})
	require.NoError(t, err)
	assert.Len(t, items, 2)
}
