package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// CreatePurchaseRequest is the payload for POST /purchase-requests. Email and
// full name fall back to the owner's profile when omitted.
type CreatePurchaseRequest struct {
	RequestNumber string   `json:"requestNumber" validate:"required,max=64"`
	ClassLevel    string   `json:"classLevel" validate:"required,max=64"`
	MaterialTypes []string `json:"materialTypes" validate:"required,min=1,dive,required"`
	Email         string   `json:"email" validate:"omitempty,email"`
	FullName      string   `json:"fullName" validate:"omitempty,max=255"`
}

// UpdatePurchaseRequest is the payload for PUT /purchase-requests/:id. The
// request number is immutable and therefore absent.
type UpdatePurchaseRequest struct {
	ClassLevel    string   `json:"classLevel" validate:"required,max=64"`
	MaterialTypes []string `json:"materialTypes" validate:"required,min=1,dive,required"`
	Email         string   `json:"email" validate:"omitempty,email"`
	FullName      string   `json:"fullName" validate:"omitempty,max=255"`
}

// LedgerOutcome reports how the ledger mirror went. It never turns a
// successful authoritative write into a failure.
type LedgerOutcome struct {
	OK    bool    `json:"ok"`
	Row   *int    `json:"row,omitempty"`
	Error *string `json:"error,omitempty"`
}

// PurchaseRequestResult wraps a lifecycle result with its mirror outcome.
type PurchaseRequestResult struct {
	Request *models.PurchaseRequest `json:"request,omitempty"`
	Ledger  LedgerOutcome           `json:"ledger"`
}

// DeletePurchaseRequestResult is returned by DELETE /purchase-requests/:id.
type DeletePurchaseRequestResult struct {
	ID            string        `json:"id"`
	RequestNumber string        `json:"requestNumber"`
	Ledger        LedgerOutcome `json:"ledger"`
}

// PurchaseRequestQuery mirrors supported listing filters.
type PurchaseRequestQuery struct {
	UserID      string
	IsProcessed *bool
	Page        int
	PageSize    int
}

// AuditEntry is one line of a purchase request's history.
type AuditEntry struct {
	Action    string          `json:"action"`
	ActorID   *string         `json:"actorId,omitempty"`
	Resource  string          `json:"resource"`
	Changes   json.RawMessage `json:"changes,omitempty"`
	Previous  json.RawMessage `json:"previous,omitempty"`
	CreatedAt time.Time       `json:"createdAt"`
}

// NewAuditEntries converts stored audit rows into their response form.
func NewAuditEntries(logs []models.AuditLog) []AuditEntry {
	out := make([]AuditEntry, 0, len(logs))
	for _, log := range logs {
		out = append(out, AuditEntry{
			Action:    log.Action,
			ActorID:   log.UserID,
			Resource:  log.Resource,
			Changes:   json.RawMessage(log.NewValues),
			Previous:  json.RawMessage(log.OldValues),
			CreatedAt: log.CreatedAt,
		})
	}
	return out
}
