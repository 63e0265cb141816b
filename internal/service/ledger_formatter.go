package service

import (
	"strings"
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

const (
	ledgerTimeLayout   = "02.01.2006 15:04"
	ledgerSeparator    = ", "
	statusProcessed    = "Обработана"
	statusNew          = "Новая"
	ledgerBaseColumns  = 6
	ledgerStatusColumn = 7
)

var classLevelLabels = map[string]string{
	"1-2":   "1-2 класс",
	"3-4":   "3-4 класс",
	"5-6":   "5-6 класс",
	"7-8":   "7-8 класс",
	"9":     "9 класс",
	"10-11": "10-11 класс",
}

var materialTypeLabels = map[string]string{
	"учебник":    "Учебник",
	"учебники":   "Учебник",
	"textbook":   "Учебник",
	"textbooks":  "Учебник",
	"кроссворд":  "Кроссворд",
	"кроссворды": "Кроссворд",
	"crossword":  "Кроссворд",
	"crosswords": "Кроссворд",
}

// moscowTime is the fixed UTC+3 zone the finance team reads ledger timestamps in.
var moscowTime = time.FixedZone("MSK", 3*60*60)

// LedgerLocation resolves the display zone for ledger timestamps, falling back
// to fixed UTC+3 when the tz database is unavailable.
func LedgerLocation(name string) *time.Location {
	if strings.TrimSpace(name) == "" {
		return moscowTime
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return moscowTime
	}
	return loc
}

// LedgerFormatter turns purchase requests into the ledger's fixed column tuple.
// It is pure: the same request always yields the same row.
type LedgerFormatter struct {
	loc           *time.Location
	includeStatus bool
}

// NewLedgerFormatter builds a formatter rendering timestamps in loc.
func NewLedgerFormatter(loc *time.Location, includeStatus bool) *LedgerFormatter {
	if loc == nil {
		loc = moscowTime
	}
	return &LedgerFormatter{loc: loc, includeStatus: includeStatus}
}

// Columns reports the width of a formatted row.
func (f *LedgerFormatter) Columns() int {
	if f.includeStatus {
		return ledgerStatusColumn
	}
	return ledgerBaseColumns
}

// Headers returns column captions in row order.
func (f *LedgerFormatter) Headers() []string {
	headers := []string{"Номер заявки", "Дата создания", "Класс", "Тип материала", "Email", "ФИО"}
	if f.includeStatus {
		headers = append(headers, "Статус")
	}
	return headers
}

// Row formats req into ledger columns.
func (f *LedgerFormatter) Row(req *models.PurchaseRequest) []string {
	row := []string{
		strings.TrimSpace(req.RequestNumber),
		f.Timestamp(req.CreatedAt),
		ClassLevelLabel(req.ClassLevel),
		MaterialTypeLabel(req.MaterialTypes),
		req.Email,
		req.FullName,
	}
	if f.includeStatus {
		row = append(row, f.Status(req))
	}
	return row
}

// Timestamp renders t for display. Zero times render empty.
func (f *LedgerFormatter) Timestamp(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.In(f.loc).Format(ledgerTimeLayout)
}

// Status combines the processed flag with the processed timestamp when known.
func (f *LedgerFormatter) Status(req *models.PurchaseRequest) string {
	if !req.IsProcessed {
		return statusNew
	}
	if req.ProcessedAt == nil || req.ProcessedAt.IsZero() {
		return statusProcessed
	}
	return statusProcessed + " " + f.Timestamp(*req.ProcessedAt)
}

// ClassLevelLabel localizes a single or comma-separated class level. Unknown codes pass through.
func ClassLevelLabel(level string) string {
	parts := strings.Split(level, ",")
	labels := make([]string, 0, len(parts))
	for _, part := range parts {
		code := strings.TrimSpace(part)
		if code == "" {
			continue
		}
		if label, ok := classLevelLabels[code]; ok {
			labels = append(labels, label)
			continue
		}
		labels = append(labels, code)
	}
	return strings.Join(labels, ledgerSeparator)
}

// MaterialTypeLabel localizes material type tokens case-insensitively. Unknown tokens pass through verbatim.
func MaterialTypeLabel(types []string) string {
	labels := make([]string, 0, len(types))
	for _, raw := range types {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if label, ok := materialTypeLabels[strings.ToLower(value)]; ok {
			labels = append(labels, label)
			continue
		}
		labels = append(labels, value)
	}
	return strings.Join(labels, ledgerSeparator)
}
