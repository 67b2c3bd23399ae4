package rules

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPostgresDefinitionStore_Save(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE decision_tables`).
		WithArgs("dishDecision").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO decision_tables`).
		WithArgs(sqlmock.AnyArg(), "dishDecision", sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"version"}).AddRow(2))
	mock.ExpectCommit()

	store := NewPostgresDefinitionStore(db)
	version, err := store.Save(context.Background(), dishDefinition())

	require.NoError(t, err)
	assert.Equal(t, 2, version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_SaveRollsBack(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE decision_tables`).
		WithArgs("dishDecision").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`INSERT INTO decision_tables`).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	store := NewPostgresDefinitionStore(db)
	_, err = store.Save(context.Background(), dishDefinition())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_Get(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	stored, err := json.Marshal(dishDefinition())
	require.NoError(t, err)

	mock.ExpectQuery(`SELECT version, definition`).
		WithArgs("dishDecision").
		WillReturnRows(sqlmock.NewRows([]string{"version", "definition"}).AddRow(4, stored))

	store := NewPostgresDefinitionStore(db)
	def, err := store.Get(context.Background(), "dishDecision")

	require.NoError(t, err)
	assert.Equal(t, 4, def.Version)
	assert.Len(t, def.Rules, 6)

	_, err = Compile(def)
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_GetNotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT version, definition`).
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"version", "definition"}))

	store := NewPostgresDefinitionStore(db)
	_, err = store.Get(context.Background(), "missing")

	assert.True(t, IsNotFound(err), "expected NotFoundError, got %v", err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_ListActive(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	dish, _ := json.Marshal(dishDefinition())
	other := dishDefinition()
	other.Name = "ignoredName"
	otherJSON, _ := json.Marshal(other)

	mock.ExpectQuery(`SELECT name, version, definition`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "version", "definition"}).
			AddRow("dishDecision", 1, dish).
			AddRow("seasonal", 7, otherJSON))

	store := NewPostgresDefinitionStore(db)
	defs, err := store.ListActive(context.Background())

	require.NoError(t, err)
	require.Len(t, defs, 2)
	assert.Equal(t, "dishDecision", defs[0].Name)
	assert.Equal(t, "seasonal", defs[1].Name, "the row name wins over the stored document")
	assert.Equal(t, 7, defs[1].Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestPostgresDefinitionStore_ListActiveCorrupt(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectQuery(`SELECT name, version, definition`).
		WillReturnRows(sqlmock.NewRows([]string{"name", "version", "definition"}).
			AddRow("broken", 1, []byte("{not json")))

	store := NewPostgresDefinitionStore(db)
	_, err = store.ListActive(context.Background())

	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestPostgresDefinitionStore_Delete(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	mock.ExpectExec(`UPDATE decision_tables`).
		WithArgs("dishDecision").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE decision_tables`).
		WithArgs("dishDecision").
		WillReturnResult(sqlmock.NewResult(0, 0))

	store := NewPostgresDefinitionStore(db)

	assert.NoError(t, store.Delete(context.Background(), "dishDecision"))
	assert.True(t, IsNotFound(store.Delete(context.Background(), "dishDecision")))
	assert.NoError(t, mock.ExpectationsWereMet())
}
