package rules

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

// PostgresDefinitionStore implements DefinitionStore backed by PostgreSQL.
// Every Save inserts a new version row; exactly one row per table is active.
type PostgresDefinitionStore struct {
	db *sql.DB
}

// NewPostgresDefinitionStore creates a PostgreSQL-backed DefinitionStore
func NewPostgresDefinitionStore(db *sql.DB) *PostgresDefinitionStore {
	return &PostgresDefinitionStore{db: db}
}

// Save deactivates the current version and inserts def as the next one
func (s *PostgresDefinitionStore) Save(ctx context.Context, def TableDefinition) (int, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		UPDATE decision_tables
		SET active = false
		WHERE name = $1 AND active = true
	`, def.Name)
	if err != nil {
		return 0, fmt.Errorf("failed to deactivate old versions: %w", err)
	}

	def.Version = 0
	definitionJSON, err := json.Marshal(def)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal definition: %w", err)
	}

	var version int
	err = tx.QueryRowContext(ctx, `
		INSERT INTO decision_tables (id, name, version, definition, active, created_at)
		SELECT $1, $2, COALESCE(MAX(version), 0) + 1, $3, true, NOW()
		FROM decision_tables
		WHERE name = $2
		RETURNING version
	`, uuid.New(), def.Name, definitionJSON).Scan(&version)
	if err != nil {
		return 0, fmt.Errorf("failed to save definition: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit definition: %w", err)
	}
	return version, nil
}

// Get retrieves the active definition of a table
func (s *PostgresDefinitionStore) Get(ctx context.Context, name string) (TableDefinition, error) {
	var version int
	var definitionJSON []byte
	err := s.db.QueryRowContext(ctx, `
		SELECT version, definition
		FROM decision_tables
		WHERE name = $1 AND active = true
	`, name).Scan(&version, &definitionJSON)

	if errors.Is(err, sql.ErrNoRows) {
		return TableDefinition{}, &NotFoundError{Table: name}
	}
	if err != nil {
		return TableDefinition{}, fmt.Errorf("failed to get definition: %w", err)
	}

	return decodeStoredDefinition(name, version, definitionJSON)
}

// ListActive returns the active definition of every table
func (s *PostgresDefinitionStore) ListActive(ctx context.Context) ([]TableDefinition, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT name, version, definition
		FROM decision_tables
		WHERE active = true
		ORDER BY name ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to list active definitions: %w", err)
	}
	defer rows.Close()

	var defs []TableDefinition
	for rows.Next() {
		var name string
		var version int
		var definitionJSON []byte
		if err := rows.Scan(&name, &version, &definitionJSON); err != nil {
			return nil, fmt.Errorf("failed to scan definition: %w", err)
		}
		def, err := decodeStoredDefinition(name, version, definitionJSON)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating definitions: %w", err)
	}

	return defs, nil
}

// Delete deactivates every version of a table
func (s *PostgresDefinitionStore) Delete(ctx context.Context, name string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE decision_tables
		SET active = false
		WHERE name = $1 AND active = true
	`, name)
	if err != nil {
		return fmt.Errorf("failed to delete definition: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return &NotFoundError{Table: name}
	}

	return nil
}

func decodeStoredDefinition(name string, version int, data []byte) (TableDefinition, error) {
	var def TableDefinition
	if err := json.Unmarshal(data, &def); err != nil {
		return TableDefinition{}, fmt.Errorf("invalid stored definition for %s: %w", name, err)
	}
	def.Name = name
	def.Version = version
	return def, nil
}
