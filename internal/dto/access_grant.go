package dto

import "github.com/noah-isme/edu-portal-api/internal/models"

// SetProcessedRequest toggles the processed state of a batch of requests.
type SetProcessedRequest struct {
	IDs         []string `json:"ids" validate:"required,min=1,max=200,dive,required"`
	IsProcessed *bool    `json:"isProcessed" validate:"required"`
}

// ProcessedItemResult reports the outcome for one id of a batch.
type ProcessedItemResult struct {
	ID            string         `json:"id"`
	RequestNumber string         `json:"requestNumber,omitempty"`
	OK            bool           `json:"ok"`
	Granted       []string       `json:"granted,omitempty"`
	Revoked       int64          `json:"revoked,omitempty"`
	Ledger        *LedgerOutcome `json:"ledger,omitempty"`
	Error         string         `json:"error,omitempty"`
}

// SetProcessedResult aggregates a batch run.
type SetProcessedResult struct {
	Items     []ProcessedItemResult `json:"items"`
	Succeeded int                   `json:"succeeded"`
	Failed    int                   `json:"failed"`
}

// AccessGrantRequest grants or revokes one material for one user.
type AccessGrantRequest struct {
	UserID     string              `json:"userId" validate:"required"`
	MaterialID string              `json:"materialId" validate:"required"`
	Kind       models.MaterialKind `json:"kind" validate:"required,oneof=textbook crossword"`
}

// GrantResult lists the human-readable labels of the materials a request unlocked.
type GrantResult struct {
	Granted  []string `json:"granted"`
	Inserted int64    `json:"inserted"`
}
