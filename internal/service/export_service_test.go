package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/export"
)

type failingSource struct{}

func (failingSource) ListForReconciliation(ctx context.Context, after *models.ReconcileCursor, limit int) ([]models.PurchaseRequest, error) {
	return nil, errors.New("connection refused")
}

func newTestExportService(source exportSource) *ExportService {
	svc := NewExportService(source, NewLedgerFormatter(nil, true), export.NewCSVExporter(false), nil, nil)
	svc.now = func() time.Time { return time.Date(2026, 2, 3, 9, 0, 0, 0, time.UTC) }
	return svc
}

func TestExportServiceRendersCSVThroughFormatter(t *testing.T) {
	processed := sampleRequest("PR-2")
	processed.IsProcessed = true
	store := newMemoryRequestStore(sampleRequest("PR-1"), processed)
	svc := newTestExportService(store)

	file, err := svc.Render(context.Background(), "CSV")
	require.NoError(t, err)
	assert.Equal(t, "purchase-requests-20260203-090000.csv", file.Filename)
	assert.Equal(t, 2, file.Rows)

	records, err := csv.NewReader(bytes.NewReader(file.Payload)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, "Номер заявки", records[0][0])
	assert.Equal(t, []string{"PR-1", "01.02.2026 10:00", "5-6 класс", "Учебник", "anna@example.com", "Anna", "Новая"}, records[1])
	assert.Equal(t, "Обработана", records[2][6])
}

func TestExportServicePagesThroughAllRequests(t *testing.T) {
	items := make([]*models.PurchaseRequest, 0, exportPageSize+3)
	for i := 0; i < exportPageSize+3; i++ {
		items = append(items, sampleRequest(fmt.Sprintf("PR-%d", i)))
	}
	svc := newTestExportService(newMemoryRequestStore(items...))

	file, err := svc.Render(context.Background(), ExportFormatCSV)
	require.NoError(t, err)
	assert.Equal(t, exportPageSize+3, file.Rows)
}

func TestExportServiceRendersPDF(t *testing.T) {
	svc := newTestExportService(newMemoryRequestStore(sampleRequest("PR-1")))

	file, err := svc.Render(context.Background(), ExportFormatPDF)
	require.NoError(t, err)
	assert.Equal(t, "application/pdf", file.ContentType)
	assert.True(t, bytes.HasPrefix(file.Payload, []byte("%PDF-")))
}

func TestExportServiceErrors(t *testing.T) {
	svc := newTestExportService(newMemoryRequestStore())
	_, err := svc.Render(context.Background(), "xlsx")
	assert.True(t, errors.Is(err, appErrors.ErrValidation))

	_, err = newTestExportService(failingSource{}).Render(context.Background(), ExportFormatCSV)
	assert.True(t, errors.Is(err, appErrors.ErrInternal))
}
