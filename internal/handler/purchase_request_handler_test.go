package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-portal-api/internal/dto"
	"github.com/noah-isme/edu-portal-api/internal/middleware"
	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
)

type purchaseRequestServiceMock struct {
	createResp *dto.PurchaseRequestResult
	createErr  error
	updateErr  error
	deleteResp *dto.DeletePurchaseRequestResult
	listResp   []models.PurchaseRequest
	lastQuery  dto.PurchaseRequestQuery
	lastID     string
	lastActor  *models.JWTClaims
	lastCreate dto.CreatePurchaseRequest
}

func (m *purchaseRequestServiceMock) Create(ctx context.Context, actor *models.JWTClaims, req dto.CreatePurchaseRequest) (*dto.PurchaseRequestResult, error) {
	m.lastActor = actor
	m.lastCreate = req
	return m.createResp, m.createErr
}

func (m *purchaseRequestServiceMock) Update(ctx context.Context, actor *models.JWTClaims, id string, req dto.UpdatePurchaseRequest) (*dto.PurchaseRequestResult, error) {
	m.lastID = id
	return &dto.PurchaseRequestResult{}, m.updateErr
}

func (m *purchaseRequestServiceMock) Delete(ctx context.Context, actor *models.JWTClaims, id string) (*dto.DeletePurchaseRequestResult, error) {
	m.lastID = id
	return m.deleteResp, nil
}

func (m *purchaseRequestServiceMock) Get(ctx context.Context, actor *models.JWTClaims, id string) (*models.PurchaseRequest, error) {
	m.lastID = id
	return nil, appErrors.Clone(appErrors.ErrNotFound, "purchase request not found")
}

func (m *purchaseRequestServiceMock) List(ctx context.Context, actor *models.JWTClaims, query dto.PurchaseRequestQuery) ([]models.PurchaseRequest, *models.Pagination, error) {
	m.lastQuery = query
	return m.listResp, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: len(m.listResp)}, nil
}

func newTestContext(method, target, body string) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var reader *bytes.Buffer
	if body != "" {
		reader = bytes.NewBufferString(body)
	} else {
		reader = &bytes.Buffer{}
	}
	req, _ := http.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestPurchaseRequestHandlerCreate(t *testing.T) {
	row := 12
	mockSvc := &purchaseRequestServiceMock{createResp: &dto.PurchaseRequestResult{
		Request: &models.PurchaseRequest{ID: "id-1", RequestNumber: "PR-1001"},
		Ledger:  dto.LedgerOutcome{OK: true, Row: &row},
	}}
	handler := NewPurchaseRequestHandler(mockSvc)

	c, w := newTestContext(http.MethodPost, "/purchase-requests", `{"requestNumber":"PR-1001","classLevel":"5-6","materialTypes":["учебник"]}`)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "user-1", Role: models.RoleUser})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "user-1", mockSvc.lastActor.UserID)
	assert.Equal(t, []string{"учебник"}, mockSvc.lastCreate.MaterialTypes)
	assert.Equal(t, "id-1", c.GetString(middleware.AuditResourceKey))

	var body struct {
		Data dto.PurchaseRequestResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Data.Ledger.OK)
	assert.Equal(t, 12, *body.Data.Ledger.Row)
}

func TestPurchaseRequestHandlerCreateInvalidBody(t *testing.T) {
	handler := NewPurchaseRequestHandler(&purchaseRequestServiceMock{})
	c, w := newTestContext(http.MethodPost, "/purchase-requests", `{"requestNumber":`)

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseRequestHandlerCreateConflict(t *testing.T) {
	handler := NewPurchaseRequestHandler(&purchaseRequestServiceMock{createErr: appErrors.Clone(appErrors.ErrConflict, "request number already exists")})
	c, w := newTestContext(http.MethodPost, "/purchase-requests", `{"requestNumber":"PR-1"}`)

	handler.Create(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "CONFLICT")
}

func TestPurchaseRequestHandlerListParsesQuery(t *testing.T) {
	mockSvc := &purchaseRequestServiceMock{listResp: []models.PurchaseRequest{{ID: "id-1"}}}
	handler := NewPurchaseRequestHandler(mockSvc)
	c, w := newTestContext(http.MethodGet, "/purchase-requests?isProcessed=false&page=2&pageSize=5&userId=u-9", "")

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, mockSvc.lastQuery.IsProcessed)
	assert.False(t, *mockSvc.lastQuery.IsProcessed)
	assert.Equal(t, 2, mockSvc.lastQuery.Page)
	assert.Equal(t, 5, mockSvc.lastQuery.PageSize)
	assert.Equal(t, "u-9", mockSvc.lastQuery.UserID)
	assert.Contains(t, w.Body.String(), `"pagination"`)
}

func TestPurchaseRequestHandlerListRejectsBadFlag(t *testing.T) {
	handler := NewPurchaseRequestHandler(&purchaseRequestServiceMock{})
	c, w := newTestContext(http.MethodGet, "/purchase-requests?isProcessed=maybe", "")

	handler.List(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestPurchaseRequestHandlerGetNotFound(t *testing.T) {
	mockSvc := &purchaseRequestServiceMock{}
	handler := NewPurchaseRequestHandler(mockSvc)
	c, w := newTestContext(http.MethodGet, "/purchase-requests/id-404", "")
	c.Params = gin.Params{{Key: "id", Value: "id-404"}}

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "id-404", mockSvc.lastID)
}

func TestPurchaseRequestHandlerUpdateLocked(t *testing.T) {
	handler := NewPurchaseRequestHandler(&purchaseRequestServiceMock{updateErr: appErrors.ErrLocked})
	c, w := newTestContext(http.MethodPut, "/purchase-requests/id-1", `{"classLevel":"7-8","materialTypes":["кроссворд"]}`)
	c.Params = gin.Params{{Key: "id", Value: "id-1"}}

	handler.Update(c)
	require.Equal(t, http.StatusLocked, w.Code)
}

func TestPurchaseRequestHandlerDelete(t *testing.T) {
	mockSvc := &purchaseRequestServiceMock{deleteResp: &dto.DeletePurchaseRequestResult{ID: "id-1", RequestNumber: "PR-1", Ledger: dto.LedgerOutcome{OK: true}}}
	handler := NewPurchaseRequestHandler(mockSvc)
	c, w := newTestContext(http.MethodDelete, "/purchase-requests/id-1", "")
	c.Params = gin.Params{{Key: "id", Value: "id-1"}}

	handler.Delete(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"requestNumber":"PR-1"`)
}
