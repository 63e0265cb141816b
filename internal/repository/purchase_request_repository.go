package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

const purchaseRequestColumns = `id, request_number, user_id, class_level, material_types, email, full_name,
       is_processed, processed_at, processed_by, created_at, updated_at, sheet_synced_at, sheet_row, sheet_sync_error`

const uniqueViolation = "23505"

// IsUniqueViolation reports whether err carries a Postgres unique constraint violation.
func IsUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && string(pqErr.Code) == uniqueViolation
}

// PurchaseRequestRepository persists purchase requests and their ledger sync state.
type PurchaseRequestRepository struct {
	db *sqlx.DB
}

// NewPurchaseRequestRepository constructs the repository.
func NewPurchaseRequestRepository(db *sqlx.DB) *PurchaseRequestRepository {
	return &PurchaseRequestRepository{db: db}
}

// Create inserts a new request row.
func (r *PurchaseRequestRepository) Create(ctx context.Context, req *models.PurchaseRequest) error {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if req.CreatedAt.IsZero() {
		req.CreatedAt = now
	}
	req.UpdatedAt = req.CreatedAt
	const query = `INSERT INTO purchase_requests
	(id, request_number, user_id, class_level, material_types, email, full_name, is_processed, created_at, updated_at)
	VALUES (:id, :request_number, :user_id, :class_level, :material_types, :email, :full_name, :is_processed, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, req); err != nil {
		return fmt.Errorf("create purchase request: %w", err)
	}
	return nil
}

// GetByID fetches a request by identifier.
func (r *PurchaseRequestRepository) GetByID(ctx context.Context, id string) (*models.PurchaseRequest, error) {
	query := `SELECT ` + purchaseRequestColumns + ` FROM purchase_requests WHERE id = $1`
	var req models.PurchaseRequest
	if err := r.db.GetContext(ctx, &req, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get purchase request: %w", err)
	}
	return &req, nil
}

// List returns requests matching the filter, newest first, plus the total count.
func (r *PurchaseRequestRepository) List(ctx context.Context, filter models.PurchaseRequestFilter) ([]models.PurchaseRequest, int, error) {
	conditions := make([]string, 0, 2)
	args := make([]interface{}, 0, 2)
	if filter.UserID != "" {
		args = append(args, filter.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if filter.IsProcessed != nil {
		args = append(args, *filter.IsProcessed)
		conditions = append(conditions, fmt.Sprintf("is_processed = $%d", len(args)))
	}
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM purchase_requests"+where, args...); err != nil {
		return nil, 0, fmt.Errorf("count purchase requests: %w", err)
	}

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	query := fmt.Sprintf("SELECT %s FROM purchase_requests%s ORDER BY created_at DESC, id DESC LIMIT %d OFFSET %d",
		purchaseRequestColumns, where, limit, offset)

	var items []models.PurchaseRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list purchase requests: %w", err)
	}
	return items, total, nil
}

// UpdateOwnedParams carries the mutable fields of an owner edit.
type UpdateOwnedParams struct {
	ID            string
	UserID        string
	ClassLevel    string
	MaterialTypes []string
	Email         string
	FullName      string
}

// UpdateOwned rewrites an unprocessed request owned by the caller. It returns
// sql.ErrNoRows when the row is missing, foreign or already processed.
func (r *PurchaseRequestRepository) UpdateOwned(ctx context.Context, params UpdateOwnedParams) (*models.PurchaseRequest, error) {
	query := `UPDATE purchase_requests
	SET class_level = $3, material_types = $4, email = $5, full_name = $6, updated_at = $7
	WHERE id = $1 AND user_id = $2 AND is_processed = false
	RETURNING ` + purchaseRequestColumns
	var req models.PurchaseRequest
	err := r.db.GetContext(ctx, &req, query,
		params.ID, params.UserID, params.ClassLevel, pq.Array(params.MaterialTypes), params.Email, params.FullName, time.Now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("update purchase request: %w", err)
	}
	return &req, nil
}

// DeleteOwned removes an unprocessed request owned by the caller and returns its request number.
func (r *PurchaseRequestRepository) DeleteOwned(ctx context.Context, id, userID string) (string, error) {
	const query = `DELETE FROM purchase_requests WHERE id = $1 AND user_id = $2 AND is_processed = false RETURNING request_number`
	var number string
	if err := r.db.GetContext(ctx, &number, query, id, userID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", err
		}
		return "", fmt.Errorf("delete purchase request: %w", err)
	}
	return number, nil
}

// UpdateSyncStatus stamps the outcome of a ledger mirror attempt.
func (r *PurchaseRequestRepository) UpdateSyncStatus(ctx context.Context, id string, status models.SyncStatus) error {
	const query = `UPDATE purchase_requests SET sheet_synced_at = $2, sheet_row = $3, sheet_sync_error = $4 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, status.SyncedAt, status.Row, status.Error)
	if err != nil {
		return fmt.Errorf("update sync status: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("update sync status rows: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetProcessed flips the processed flag. processed_at keeps its first value
// while the request stays processed and is cleared when it is reverted.
func (r *PurchaseRequestRepository) SetProcessed(ctx context.Context, id string, processed bool, adminID string, at time.Time) (*models.PurchaseRequest, error) {
	var query string
	var args []interface{}
	if processed {
		query = `UPDATE purchase_requests
	SET is_processed = true, processed_at = COALESCE(processed_at, $2), processed_by = $3, updated_at = $2
	WHERE id = $1
	RETURNING ` + purchaseRequestColumns
		args = []interface{}{id, at, adminID}
	} else {
		query = `UPDATE purchase_requests
	SET is_processed = false, processed_at = NULL, processed_by = NULL, updated_at = $2
	WHERE id = $1
	RETURNING ` + purchaseRequestColumns
		args = []interface{}{id, at}
	}
	var req models.PurchaseRequest
	if err := r.db.GetContext(ctx, &req, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("set purchase request processed: %w", err)
	}
	return &req, nil
}

// ListForReconciliation pages through requests oldest first using a keyset cursor.
func (r *PurchaseRequestRepository) ListForReconciliation(ctx context.Context, after *models.ReconcileCursor, limit int) ([]models.PurchaseRequest, error) {
	if limit <= 0 {
		limit = 200
	}
	var (
		query string
		args  []interface{}
	)
	if after == nil {
		query = fmt.Sprintf("SELECT %s FROM purchase_requests ORDER BY created_at ASC, id ASC LIMIT %d", purchaseRequestColumns, limit)
	} else {
		query = fmt.Sprintf("SELECT %s FROM purchase_requests WHERE (created_at, id) > ($1, $2) ORDER BY created_at ASC, id ASC LIMIT %d", purchaseRequestColumns, limit)
		args = []interface{}{after.CreatedAt, after.ID}
	}
	var items []models.PurchaseRequest
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, fmt.Errorf("list purchase requests for reconciliation: %w", err)
	}
	return items, nil
}
