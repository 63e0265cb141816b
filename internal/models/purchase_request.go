package models

import (
	"time"

	"github.com/lib/pq"
)

// PurchaseRequest is a user's request to buy learning materials. RequestNumber
// is the business key correlating the row with the finance ledger.
type PurchaseRequest struct {
	ID            string         `db:"id" json:"id"`
	RequestNumber string         `db:"request_number" json:"requestNumber"`
	UserID        string         `db:"user_id" json:"userId"`
	ClassLevel    string         `db:"class_level" json:"classLevel"`
	MaterialTypes pq.StringArray `db:"material_types" json:"materialTypes"`
	Email         string         `db:"email" json:"email"`
	FullName      string         `db:"full_name" json:"fullName"`
	IsProcessed   bool           `db:"is_processed" json:"isProcessed"`
	ProcessedAt   *time.Time     `db:"processed_at" json:"processedAt,omitempty"`
	ProcessedBy   *string        `db:"processed_by" json:"processedBy,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`

	// Owned by the ledger sync subsystem.
	SheetSyncedAt  *time.Time `db:"sheet_synced_at" json:"sheetSyncedAt,omitempty"`
	SheetRow       *int       `db:"sheet_row" json:"sheetRow,omitempty"`
	SheetSyncError *string    `db:"sheet_sync_error" json:"sheetSyncError,omitempty"`
}

// IsSynced reports whether the last mirror attempt succeeded.
func (r *PurchaseRequest) IsSynced() bool {
	return r.SheetSyncedAt != nil
}

// PurchaseRequestFilter constrains listing queries.
type PurchaseRequestFilter struct {
	UserID      string
	IsProcessed *bool
	Limit       int
	Offset      int
}

// ReconcileCursor marks the last record visited by an oldest-first scan.
type ReconcileCursor struct {
	CreatedAt time.Time
	ID        string
}

// SyncStatus is the outcome of one ledger mirror attempt written back onto the request.
type SyncStatus struct {
	SyncedAt *time.Time
	Row      *int
	Error    *string
}
