package service

import (
	"context"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

type ledgerReader interface {
	ReadRange(ctx context.Context, a1 string) ([][]string, error)
	RowRange() string
	KeyColumnRange() string
}

// LedgerIndex maps business keys to the rows carrying them at scan time.
type LedgerIndex struct {
	rows    map[string][]int
	entries map[string]models.LedgerEntry
}

// Find returns the bottom-most row carrying key.
func (i *LedgerIndex) Find(key string) (models.LedgerEntry, bool) {
	if i == nil {
		return models.LedgerEntry{}, false
	}
	entry, ok := i.entries[strings.TrimSpace(key)]
	return entry, ok
}

// Rows returns every row carrying key in ascending order.
func (i *LedgerIndex) Rows(key string) []int {
	if i == nil {
		return nil
	}
	return append([]int(nil), i.rows[strings.TrimSpace(key)]...)
}

// Len reports the number of distinct keys.
func (i *LedgerIndex) Len() int {
	if i == nil {
		return 0
	}
	return len(i.entries)
}

// LedgerResolver locates ledger rows by business key. Every call rescans the
// ledger because row positions shift whenever anyone deletes a row.
type LedgerResolver struct {
	client    ledgerReader
	keyPrefix string
	logger    *zap.Logger
}

// NewLedgerResolver constructs a resolver. Keys not starting with keyPrefix,
// such as a header row, are ignored.
func NewLedgerResolver(client ledgerReader, keyPrefix string, logger *zap.Logger) *LedgerResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LedgerResolver{client: client, keyPrefix: keyPrefix, logger: logger}
}

// BuildIndex reads the whole tab once and indexes it top-down. When a key
// appears more than once the bottom-most occurrence wins for Find.
func (r *LedgerResolver) BuildIndex(ctx context.Context) (*LedgerIndex, error) {
	values, err := r.client.ReadRange(ctx, r.client.RowRange())
	if err != nil {
		return nil, err
	}
	index := &LedgerIndex{rows: make(map[string][]int), entries: make(map[string]models.LedgerEntry)}
	// the range starts at A1, so position i is row i+1
	for i, cells := range values {
		if len(cells) == 0 {
			continue
		}
		key := strings.TrimSpace(cells[0])
		if !r.isKey(key) {
			continue
		}
		row := i + 1
		if previous, dup := index.entries[key]; dup {
			r.logger.Warn("duplicate ledger key", zap.String("key", key), zap.Int("row", row), zap.Int("previous_row", previous.Row))
		}
		index.rows[key] = append(index.rows[key], row)
		index.entries[key] = models.LedgerEntry{Key: key, Row: row, Columns: cells}
	}
	return index, nil
}

// ExistingKeySet reads only the key column and returns the distinct keys present.
func (r *LedgerResolver) ExistingKeySet(ctx context.Context) (map[string]struct{}, error) {
	values, err := r.client.ReadRange(ctx, r.client.KeyColumnRange())
	if err != nil {
		return nil, err
	}
	keys := make(map[string]struct{}, len(values))
	for _, cells := range values {
		if len(cells) == 0 {
			continue
		}
		key := strings.TrimSpace(cells[0])
		if r.isKey(key) {
			keys[key] = struct{}{}
		}
	}
	return keys, nil
}

func (r *LedgerResolver) isKey(value string) bool {
	if value == "" {
		return false
	}
	return r.keyPrefix == "" || strings.HasPrefix(value, r.keyPrefix)
}
