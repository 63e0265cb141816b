package dto

import (
	"time"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// ReconcileRequest bounds one reconciliation run.
type ReconcileRequest struct {
	Limit int `form:"limit" json:"limit" validate:"gte=0,lte=10000"`
}

// ReconcileResponse is the admin-facing summary of a run.
type ReconcileResponse struct {
	models.ReconcileReport
	Limit int `json:"limit"`
}

// SnapshotLink points at a stored ledger snapshot through an expiring token.
type SnapshotLink struct {
	Filename    string    `json:"filename"`
	DownloadURL string    `json:"downloadUrl"`
	ExpiresAt   time.Time `json:"expiresAt"`
	Rows        int       `json:"rows"`
}
