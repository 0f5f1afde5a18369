package database

import (
	"database/sql"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"sort"
	"strings"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migration is one versioned SQL file, e.g. "001_code_blocks.sql".
type Migration struct {
	Version     string
	Description string
	SQL         string
}

// MigrationManager applies migrations in version order and records them in
// schema_migrations so reruns are no-ops.
type MigrationManager struct {
	db     *sql.DB
	source fs.FS
}

// NewMigrationManager uses the migrations compiled into the binary.
func NewMigrationManager(db *sql.DB) *MigrationManager {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		// embed guarantees the directory exists
		panic(err)
	}
	return &MigrationManager{db: db, source: sub}
}

// NewMigrationManagerFromDir reads migrations from a directory on disk.
func NewMigrationManagerFromDir(db *sql.DB, dir string) *MigrationManager {
	return &MigrationManager{db: db, source: os.DirFS(dir)}
}

// NewMigrationManagerFromFS reads migrations from an arbitrary filesystem.
func NewMigrationManagerFromFS(db *sql.DB, source fs.FS) *MigrationManager {
	return &MigrationManager{db: db, source: source}
}

// ApplyMigrations applies all pending migrations, each in its own transaction.
func (m *MigrationManager) ApplyMigrations() error {
	if err := m.createMigrationTable(); err != nil {
		return fmt.Errorf("failed to create migration table: %w", err)
	}

	migrations, err := m.LoadMigrations()
	if err != nil {
		return fmt.Errorf("failed to load migrations: %w", err)
	}

	applied, err := m.AppliedVersions()
	if err != nil {
		return fmt.Errorf("failed to get applied migrations: %w", err)
	}

	done := make(map[string]bool, len(applied))
	for _, v := range applied {
		done[v] = true
	}

	for _, migration := range migrations {
		if done[migration.Version] {
			continue
		}
		if err := m.applyMigration(migration); err != nil {
			return fmt.Errorf("failed to apply migration %s: %w", migration.Version, err)
		}
	}

	return nil
}

func (m *MigrationManager) createMigrationTable() error {
	_, err := m.db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version TEXT PRIMARY KEY,
			applied_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)
	`)
	return err
}

// LoadMigrations returns every .sql file in the source sorted by version.
func (m *MigrationManager) LoadMigrations() ([]Migration, error) {
	entries, err := fs.ReadDir(m.source, ".")
	if err != nil {
		return nil, err
	}

	var migrations []Migration
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || path.Ext(name) != ".sql" {
			continue
		}

		content, err := fs.ReadFile(m.source, name)
		if err != nil {
			return nil, err
		}

		// "001_code_blocks.sql" -> version "001", description "code_blocks"
		version, rest, _ := strings.Cut(strings.TrimSuffix(name, ".sql"), "_")
		migrations = append(migrations, Migration{
			Version:     version,
			Description: rest,
			SQL:         string(content),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})

	return migrations, nil
}

// AppliedVersions lists versions already recorded in schema_migrations.
func (m *MigrationManager) AppliedVersions() ([]string, error) {
	rows, err := m.db.Query("SELECT version FROM schema_migrations ORDER BY version")
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var versions []string
	for rows.Next() {
		var version string
		if err := rows.Scan(&version); err != nil {
			return nil, err
		}
		versions = append(versions, version)
	}

	return versions, rows.Err()
}

func (m *MigrationManager) applyMigration(migration Migration) error {
	tx, err := m.db.Begin()
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.Exec(migration.SQL); err != nil {
		return err
	}

	if _, err := tx.Exec("INSERT INTO schema_migrations (version) VALUES (?)", migration.Version); err != nil {
		return err
	}

	return tx.Commit()
}
