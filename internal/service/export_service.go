package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/models"
	appErrors "github.com/noah-isme/edu-portal-api/pkg/errors"
	"github.com/noah-isme/edu-portal-api/pkg/export"
)

// ExportFormat selects the rendering of a ledger snapshot.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

const exportPageSize = 500

type exportSource interface {
	ListForReconciliation(ctx context.Context, after *models.ReconcileCursor, limit int) ([]models.PurchaseRequest, error)
}

type datasetRenderer interface {
	Render(data export.Dataset) ([]byte, error)
	ContentType() string
}

// ExportFile is a rendered snapshot ready to be streamed.
type ExportFile struct {
	Filename    string
	ContentType string
	Payload     []byte
	Rows        int
}

// ExportService renders every purchase request the way the ledger shows it.
type ExportService struct {
	source    exportSource
	formatter *LedgerFormatter
	renderers map[ExportFormat]datasetRenderer
	logger    *zap.Logger
	now       func() time.Time
}

// NewExportService constructs an ExportService. Nil renderers fall back to
// the defaults of pkg/export.
func NewExportService(source exportSource, formatter *LedgerFormatter, csv, pdf datasetRenderer, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if formatter == nil {
		formatter = NewLedgerFormatter(nil, true)
	}
	if csv == nil {
		csv = export.NewCSVExporter(true)
	}
	if pdf == nil {
		pdf = export.NewPDFExporter("")
	}
	return &ExportService{
		source:    source,
		formatter: formatter,
		renderers: map[ExportFormat]datasetRenderer{ExportFormatCSV: csv, ExportFormatPDF: pdf},
		logger:    logger,
		now:       time.Now,
	}
}

// Render builds a snapshot of all requests, oldest first.
func (s *ExportService) Render(ctx context.Context, format ExportFormat) (*ExportFile, error) {
	format = ExportFormat(strings.ToLower(strings.TrimSpace(string(format))))
	if format == "" {
		format = ExportFormatCSV
	}
	renderer, ok := s.renderers[format]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}

	dataset, err := s.buildDataset(ctx)
	if err != nil {
		return nil, err
	}
	payload, err := renderer.Render(dataset)
	if err != nil {
		return nil, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to render export")
	}

	file := &ExportFile{
		Filename:    fmt.Sprintf("purchase-requests-%s.%s", s.now().Format("20060102-150405"), format),
		ContentType: renderer.ContentType(),
		Payload:     payload,
		Rows:        len(dataset.Rows),
	}
	s.logger.Info("ledger export rendered", zap.String("format", string(format)), zap.Int("rows", file.Rows), zap.Int("bytes", len(payload)))
	return file, nil
}

func (s *ExportService) buildDataset(ctx context.Context) (export.Dataset, error) {
	dataset := export.Dataset{
		Title:   "Заявки на покупку " + s.formatter.Timestamp(s.now()),
		Headers: s.formatter.Headers(),
	}
	var cursor *models.ReconcileCursor
	for {
		page, err := s.source.ListForReconciliation(ctx, cursor, exportPageSize)
		if err != nil {
			return dataset, appErrors.WrapAs(err, appErrors.ErrInternal, "failed to load purchase requests")
		}
		for i := range page {
			dataset.Rows = append(dataset.Rows, s.formatter.Row(&page[i]))
		}
		if len(page) < exportPageSize {
			return dataset, nil
		}
		last := page[len(page)-1]
		cursor = &models.ReconcileCursor{CreatedAt: last.CreatedAt, ID: last.ID}
	}
}
