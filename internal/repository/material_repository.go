package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

// MaterialRepository reads the textbook and crossword catalogues.
type MaterialRepository struct {
	db *sqlx.DB
}

// NewMaterialRepository constructs the repository.
func NewMaterialRepository(db *sqlx.DB) *MaterialRepository {
	return &MaterialRepository{db: db}
}

// ListActiveByClassLevels returns active materials tagged with any of the given class levels.
func (r *MaterialRepository) ListActiveByClassLevels(ctx context.Context, kind models.MaterialKind, levels []string) ([]models.Material, error) {
	if len(levels) == 0 {
		return nil, nil
	}
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, title, class_levels, is_active FROM %s
WHERE is_active = true AND class_levels && $1 ORDER BY title, id`, tables.materials)
	var materials []models.Material
	if err := r.db.SelectContext(ctx, &materials, query, pq.Array(levels)); err != nil {
		return nil, fmt.Errorf("list active %s: %w", tables.materials, err)
	}
	for i := range materials {
		materials[i].Kind = kind
	}
	return materials, nil
}

// GetByID loads one catalogue entry.
func (r *MaterialRepository) GetByID(ctx context.Context, kind models.MaterialKind, id string) (*models.Material, error) {
	tables, err := tablesFor(kind)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf(`SELECT id, title, class_levels, is_active FROM %s WHERE id = $1`, tables.materials)
	var material models.Material
	if err := r.db.GetContext(ctx, &material, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("get %s: %w", tables.materials, err)
	}
	material.Kind = kind
	return &material, nil
}
