package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

type kindTables struct {
	grants    string
	materials string
}

var materialTables = map[models.MaterialKind]kindTables{
	models.MaterialKindTextbook:  {grants: "textbook_access", materials: "textbooks"},
	models.MaterialKindCrossword: {grants: "crossword_access", materials: "crosswords"},
}

func tablesFor(kind models.MaterialKind) (kindTables, error) {
	if !kind.Valid() {
		return kindTables{}, fmt.Errorf("unknown material kind %q", kind)
	}
	return materialTables[kind], nil
}

// AccessGrantRepository manages per-user material access rows for both material kinds.
type AccessGrantRepository struct {
	db *sqlx.DB
}

// NewAccessGrantRepository constructs the repository.
func NewAccessGrantRepository(db *sqlx.DB) *AccessGrantRepository {
	return &AccessGrantRepository{db: db}
}

// GrantMany inserts one grant per material in a single transaction. Existing
// (user, material) pairs are left untouched; the number of new rows is returned.
func (r *AccessGrantRepository) GrantMany(ctx context.Context, kind models.MaterialKind, userID string, materialIDs []string, grantedBy string, at time.Time) (inserted int64, err error) {
	if len(materialIDs) == 0 {
		return 0, nil
	}
	tables, err := tablesFor(kind)
	if err != nil {
		return 0, err
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin %s transaction: %w", tables.grants, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := fmt.Sprintf(`INSERT INTO %s (user_id, material_id, granted_by, granted_at) VALUES ($1, $2, $3, $4)
ON CONFLICT (user_id, material_id) DO NOTHING`, tables.grants)
	for _, materialID := range materialIDs {
		result, execErr := tx.ExecContext(ctx, query, userID, materialID, grantedBy, at)
		if execErr != nil {
			err = fmt.Errorf("insert %s: %w", tables.grants, execErr)
			return 0, err
		}
		affected, raErr := result.RowsAffected()
		if raErr != nil {
			err = fmt.Errorf("insert %s rows: %w", tables.grants, raErr)
			return 0, err
		}
		inserted += affected
	}

	if err = tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit %s: %w", tables.grants, err)
	}
	return inserted, nil
}

// Grant inserts a single grant and reports whether a new row was created.
func (r *AccessGrantRepository) Grant(ctx context.Context, kind models.MaterialKind, grant *models.AccessGrant) (bool, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return false, err
	}
	if grant.GrantedAt.IsZero() {
		grant.GrantedAt = time.Now().UTC()
	}
	query := fmt.Sprintf(`INSERT INTO %s (user_id, material_id, granted_by, granted_at) VALUES (:user_id, :material_id, :granted_by, :granted_at)
ON CONFLICT (user_id, material_id) DO NOTHING`, tables.grants)
	result, err := r.db.NamedExecContext(ctx, query, grant)
	if err != nil {
		return false, fmt.Errorf("grant %s: %w", tables.grants, err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("grant %s rows: %w", tables.grants, err)
	}
	return affected > 0, nil
}

// Revoke deletes one grant regardless of who created it.
func (r *AccessGrantRepository) Revoke(ctx context.Context, kind models.MaterialKind, userID, materialID string) (int64, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND material_id = $2`, tables.grants)
	result, err := r.db.ExecContext(ctx, query, userID, materialID)
	if err != nil {
		return 0, fmt.Errorf("revoke %s: %w", tables.grants, err)
	}
	return result.RowsAffected()
}

// RevokeByGranter deletes every grant of userID created by grantedBy.
func (r *AccessGrantRepository) RevokeByGranter(ctx context.Context, kind models.MaterialKind, userID, grantedBy string) (int64, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return 0, err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE user_id = $1 AND granted_by = $2`, tables.grants)
	result, err := r.db.ExecContext(ctx, query, userID, grantedBy)
	if err != nil {
		return 0, fmt.Errorf("revoke %s by granter: %w", tables.grants, err)
	}
	return result.RowsAffected()
}

// ListByUser returns the grants of one kind held by userID with material titles.
func (r *AccessGrantRepository) ListByUser(ctx context.Context, kind models.MaterialKind, userID string) ([]models.AccessGrant, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT g.user_id, g.material_id, g.granted_by, g.granted_at, m.title
FROM %s g JOIN %s m ON m.id = g.material_id
WHERE g.user_id = $1 ORDER BY g.granted_at DESC`, tables.grants, tables.materials)
	var grants []models.AccessGrant
	if err := r.db.SelectContext(ctx, &grants, query, userID); err != nil {
		return nil, fmt.Errorf("list %s: %w", tables.grants, err)
	}
	for i := range grants {
		grants[i].Kind = kind
	}
	return grants, nil
}
