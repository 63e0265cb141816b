package models

// LedgerEntry is one ledger row located by a resolver scan. Row is the 1-based
// position at scan time and is only valid until the next structural change.
type LedgerEntry struct {
	Key     string
	Row     int
	Columns []string
}

// ReconcileReport aggregates one reconciliation run.
type ReconcileReport struct {
	Synced  int `json:"synced"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
