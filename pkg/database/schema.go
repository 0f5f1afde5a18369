package database

import (
	"database/sql"
	"fmt"
	"strings"
)

// SchemaValidator checks that the live database has the tables, columns and
// indexes the block store queries against.
type SchemaValidator struct {
	db *sql.DB
}

// NewSchemaValidator creates a new schema validator
func NewSchemaValidator(db *sql.DB) *SchemaValidator {
	return &SchemaValidator{db: db}
}

// Validate runs every check and returns the first failure.
func (v *SchemaValidator) Validate() error {
	if err := v.ValidateTablesExist(); err != nil {
		return err
	}
	if err := v.ValidateTableStructure(); err != nil {
		return err
	}
	return v.ValidateIndexes()
}

// ValidateTablesExist verifies that all required tables exist
func (v *SchemaValidator) ValidateTablesExist() error {
	for _, table := range []string{"code_blocks", "schema_migrations"} {
		exists, err := v.exists("table", table)
		if err != nil {
			return fmt.Errorf("error checking table %s: %w", table, err)
		}
		if !exists {
			return fmt.Errorf("required table %s does not exist", table)
		}
	}
	return nil
}

// ValidateTableStructure verifies column names and declared types.
func (v *SchemaValidator) ValidateTableStructure() error {
	columns := map[string]string{
		"id":         "TEXT",
		"title":      "TEXT",
		"template":   "TEXT",
		"solution":   "TEXT",
		"position":   "INTEGER",
		"created_at": "DATETIME",
		"updated_at": "DATETIME",
	}
	if err := v.validateColumns("code_blocks", columns); err != nil {
		return fmt.Errorf("code_blocks table structure invalid: %w", err)
	}
	return nil
}

// ValidateIndexes verifies the listing index exists.
func (v *SchemaValidator) ValidateIndexes() error {
	exists, err := v.exists("index", "idx_code_blocks_position")
	if err != nil {
		return fmt.Errorf("error checking index idx_code_blocks_position: %w", err)
	}
	if !exists {
		return fmt.Errorf("required index idx_code_blocks_position does not exist")
	}
	return nil
}

func (v *SchemaValidator) exists(kind, name string) (bool, error) {
	var count int
	err := v.db.QueryRow(
		"SELECT COUNT(*) FROM sqlite_master WHERE type = ? AND name = ?",
		kind, name,
	).Scan(&count)
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

func (v *SchemaValidator) validateColumns(table string, expected map[string]string) error {
	rows, err := v.db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return err
	}
	defer func() { _ = rows.Close() }()

	actual := make(map[string]string)
	for rows.Next() {
		var (
			cid       int
			name      string
			colType   string
			notNull   int
			dfltValue sql.NullString
			pk        int
		)
		if err := rows.Scan(&cid, &name, &colType, &notNull, &dfltValue, &pk); err != nil {
			return err
		}
		actual[name] = strings.ToUpper(colType)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	for column, want := range expected {
		got, ok := actual[column]
		if !ok {
			return fmt.Errorf("missing column %s", column)
		}
		if got != want {
			return fmt.Errorf("column %s has type %s, expected %s", column, got, want)
		}
	}
	return nil
}
