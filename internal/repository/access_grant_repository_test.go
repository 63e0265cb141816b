package repository

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/edu-portal-api/internal/models"
)

func TestAccessGrantRepositoryGrantManyIsIdempotent(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessGrantRepository(db)

	at := time.Now()
	insert := regexp.QuoteMeta("INSERT INTO textbook_access (user_id, material_id, granted_by, granted_at) VALUES ($1, $2, $3, $4)\nON CONFLICT (user_id, material_id) DO NOTHING")
	mock.ExpectBegin()
	mock.ExpectExec(insert).WithArgs("user-1", "tb-1", "admin-1", at).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insert).WithArgs("user-1", "tb-2", "admin-1", at).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()

	inserted, err := repo.GrantMany(context.Background(), models.MaterialKindTextbook, "user-1", []string{"tb-1", "tb-2"}, "admin-1", at)
	require.NoError(t, err)
	assert.Equal(t, int64(1), inserted)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGrantRepositoryGrantManyRollsBack(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessGrantRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO crossword_access")).WillReturnError(errors.New("boom"))
	mock.ExpectRollback()

	_, err := repo.GrantMany(context.Background(), models.MaterialKindCrossword, "user-1", []string{"cw-1"}, "admin-1", time.Now())
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGrantRepositoryRevokeByGranterScoped(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessGrantRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM textbook_access WHERE user_id = $1 AND granted_by = $2")).
		WithArgs("user-1", "admin-1").
		WillReturnResult(sqlmock.NewResult(0, 2))

	removed, err := repo.RevokeByGranter(context.Background(), models.MaterialKindTextbook, "user-1", "admin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGrantRepositoryGrantAndRevokeSingle(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessGrantRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO crossword_access")).WillReturnResult(sqlmock.NewResult(0, 1))
	created, err := repo.Grant(context.Background(), models.MaterialKindCrossword, &models.AccessGrant{UserID: "user-1", MaterialID: "cw-1", GrantedBy: "admin-1"})
	require.NoError(t, err)
	assert.True(t, created)

	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM crossword_access WHERE user_id = $1 AND material_id = $2")).
		WithArgs("user-1", "cw-1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	removed, err := repo.Revoke(context.Background(), models.MaterialKindCrossword, "user-1", "cw-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), removed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGrantRepositoryListByUser(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewAccessGrantRepository(db)

	rows := sqlmock.NewRows([]string{"user_id", "material_id", "granted_by", "granted_at", "title"}).
		AddRow("user-1", "tb-1", "admin-1", time.Now(), "Математика 5")
	mock.ExpectQuery(regexp.QuoteMeta("FROM textbook_access g JOIN textbooks m ON m.id = g.material_id")).
		WithArgs("user-1").
		WillReturnRows(rows)

	grants, err := repo.ListByUser(context.Background(), models.MaterialKindTextbook, "user-1")
	require.NoError(t, err)
	require.Len(t, grants, 1)
	assert.Equal(t, models.MaterialKindTextbook, grants[0].Kind)
	assert.Equal(t, "Математика 5", grants[0].Title)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAccessGrantRepositoryRejectsUnknownKind(t *testing.T) {
	repo := NewAccessGrantRepository(nil)
	_, err := repo.RevokeByGranter(context.Background(), models.MaterialKind("video"), "user-1", "admin-1")
	assert.Error(t, err)
}

func TestMaterialRepositoryListActiveByClassLevels(t *testing.T) {
	db, mock, cleanup := newMock(t)
	defer cleanup()
	repo := NewMaterialRepository(db)

	rows := sqlmock.NewRows([]string{"id", "title", "class_levels", "is_active"}).
		AddRow("tb-1", "Математика 5", "{5-6}", true).
		AddRow("tb-2", "Русский язык 6", "{5-6,7-8}", true)
	mock.ExpectQuery(regexp.QuoteMeta("FROM textbooks\nWHERE is_active = true AND class_levels && $1")).
		WithArgs("{\"5-6\"}").
		WillReturnRows(rows)

	materials, err := repo.ListActiveByClassLevels(context.Background(), models.MaterialKindTextbook, []string{"5-6"})
	require.NoError(t, err)
	require.Len(t, materials, 2)
	assert.Equal(t, []string{"5-6", "7-8"}, []string(materials[1].ClassLevels))
	assert.Equal(t, models.MaterialKindTextbook, materials[0].Kind)

	empty, err := repo.ListActiveByClassLevels(context.Background(), models.MaterialKindTextbook, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
	assert.NoError(t, mock.ExpectationsWereMet())
}
