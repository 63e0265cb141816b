package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/noah-isme/edu-portal-api/internal/repository"
	"github.com/noah-isme/edu-portal-api/pkg/sheets"
)

// fakeLedger is an in-memory spreadsheet tab with the same row-shift
// semantics as the real ledger. Row 1 is a header.
type fakeLedger struct {
	mu          sync.Mutex
	rows        [][]string
	tabID       int64
	appendErr   error
	failKeys    map[string]error
	readErr     error
	updateErr   error
	deleteErr   error
	appends     int
	updates     int
	deleteCalls [][]int
	tabLookups  int
}

func newFakeLedger(keys ...string) *fakeLedger {
	f := &fakeLedger{tabID: 42, rows: [][]string{{"Номер заявки", "Дата создания"}}}
	for _, key := range keys {
		f.rows = append(f.rows, []string{key})
	}
	return f
}

func (f *fakeLedger) Append(ctx context.Context, values []string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.appendErr != nil {
		return 0, f.appendErr
	}
	if len(values) > 0 && f.failKeys[values[0]] != nil {
		return 0, f.failKeys[values[0]]
	}
	f.appends++
	f.rows = append(f.rows, append([]string(nil), values...))
	return len(f.rows), nil
}

func (f *fakeLedger) ReadRange(ctx context.Context, a1 string) ([][]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	out := make([][]string, len(f.rows))
	for i, row := range f.rows {
		out[i] = append([]string(nil), row...)
	}
	return out, nil
}

func (f *fakeLedger) UpdateRange(ctx context.Context, row int, values []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.updateErr != nil {
		return f.updateErr
	}
	if row < 1 || row > len(f.rows) {
		return errors.New("row out of range")
	}
	f.updates++
	f.rows[row-1] = append([]string(nil), values...)
	return nil
}

func (f *fakeLedger) DeleteRows(ctx context.Context, tabID int64, rows []int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	ordered, err := sheets.DescendingRows(rows)
	if err != nil {
		return err
	}
	f.deleteCalls = append(f.deleteCalls, ordered)
	for _, row := range ordered {
		f.rows = append(f.rows[:row-1], f.rows[row:]...)
	}
	return nil
}

func (f *fakeLedger) ResolveTabID(ctx context.Context, title string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tabLookups++
	return f.tabID, nil
}

func (f *fakeLedger) Tab() string            { return "Заявки" }
func (f *fakeLedger) RowRange() string       { return "'Заявки'!A:F" }
func (f *fakeLedger) KeyColumnRange() string { return "'Заявки'!A:A" }

func (f *fakeLedger) keys() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	keys := make([]string, 0, len(f.rows))
	for _, row := range f.rows[1:] {
		if len(row) > 0 {
			keys = append(keys, row[0])
		}
	}
	return keys
}

func (f *fakeLedger) count(key string) int {
	n := 0
	for _, k := range f.keys() {
		if k == key {
			n++
		}
	}
	return n
}

type stubLeases struct {
	mu       sync.Mutex
	held     map[string]string
	acquired int
	released int
	err      error
}

func newStubLeases() *stubLeases {
	return &stubLeases{held: make(map[string]string)}
}

func (l *stubLeases) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.err != nil {
		return "", l.err
	}
	if _, busy := l.held[key]; busy {
		return "", repository.ErrLeaseHeld
	}
	l.acquired++
	token := key + "-token"
	l.held[key] = token
	return token, nil
}

func (l *stubLeases) Release(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		l.released++
	}
	return nil
}

func newTestLedgerSync(ledger *fakeLedger, leases leaseStore) *LedgerSyncService {
	var client LedgerClient
	if ledger != nil {
		client = ledger
	}
	resolver := NewLedgerResolver(client, "PR-", nil)
	return NewLedgerSyncService(client, resolver, NewLedgerFormatter(nil, false), leases, NewTabIDCache(nil, "doc-1", time.Hour, nil, nil), nil,
		LedgerSyncConfig{LockWait: 50 * time.Millisecond}, nil)
}
