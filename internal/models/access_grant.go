package models

import (
	"time"

	"github.com/lib/pq"
)

// MaterialKind distinguishes the two disjoint material catalogues.
type MaterialKind string

const (
	MaterialKindTextbook  MaterialKind = "textbook"
	MaterialKindCrossword MaterialKind = "crossword"
)

// MaterialKinds lists every kind in a stable order.
var MaterialKinds = []MaterialKind{MaterialKindTextbook, MaterialKindCrossword}

// Valid reports whether the kind is known.
func (k MaterialKind) Valid() bool {
	return k == MaterialKindTextbook || k == MaterialKindCrossword
}

// Material is an active or archived catalogue entry tagged with class levels.
type Material struct {
	ID          string         `db:"id" json:"id"`
	Kind        MaterialKind   `db:"-" json:"kind"`
	Title       string         `db:"title" json:"title"`
	ClassLevels pq.StringArray `db:"class_levels" json:"classLevels"`
	IsActive    bool           `db:"is_active" json:"isActive"`
}

// AccessGrant unlocks one material for one user. It is unique per
// (user, material); GrantedBy scopes reversal to the admin who created it.
type AccessGrant struct {
	UserID     string       `db:"user_id" json:"userId"`
	MaterialID string       `db:"material_id" json:"materialId"`
	Kind       MaterialKind `db:"-" json:"kind"`
	GrantedBy  string       `db:"granted_by" json:"grantedBy"`
	GrantedAt  time.Time    `db:"granted_at" json:"grantedAt"`
	Title      string       `db:"title" json:"title,omitempty"`
}
