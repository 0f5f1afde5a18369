package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	dbconfig "github.com/idoggk/moveo/pkg/database"
	"github.com/idoggk/moveo/pkg/interfaces"
	"github.com/idoggk/moveo/pkg/types"
)

var _ interfaces.BlockStore = (*Store)(nil)

// Store is the SQLite-backed code-block catalog. Reads go straight to the
// pool; writes are serialized through a single goroutine.
type Store struct {
	db           *sql.DB
	logger       *zap.Logger
	writeChannel chan writeOperation
	writeTimeout time.Duration
	shutdown     chan struct{}
	wg           sync.WaitGroup
	closed       bool
	mu           sync.RWMutex
}

type writeOperation struct {
	operation func(*sql.DB) error
	result    chan error
}

// Open connects to the database, applies pending migrations, validates the
// schema and starts the writer.
func Open(config *dbconfig.Config, logger *zap.Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid database config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	if dir := filepath.Dir(config.DatabasePath); config.DatabasePath != ":memory:" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", config.DatabasePath+"?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(config.MaxConnections)
	db.SetConnMaxLifetime(config.ConnMaxLifetime)
	db.SetConnMaxIdleTime(config.ConnMaxIdleTime)

	if err := dbconfig.ApplySQLiteOptimizations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to apply SQLite optimizations: %w", err)
	}

	migrations := dbconfig.NewMigrationManager(db)
	if config.MigrationsPath != "" {
		migrations = dbconfig.NewMigrationManagerFromDir(db, config.MigrationsPath)
	}
	if err := migrations.ApplyMigrations(); err != nil {
		_ = db.Close()
		return nil, err
	}
	if err := dbconfig.NewSchemaValidator(db).Validate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	s := &Store{
		db:           db,
		logger:       logger.Named("store"),
		writeChannel: make(chan writeOperation, 16),
		writeTimeout: 30 * time.Second,
		shutdown:     make(chan struct{}),
	}

	s.wg.Add(1)
	go s.writeLoop()

	return s, nil
}

func (s *Store) writeLoop() {
	defer s.wg.Done()

	for {
		select {
		case op := <-s.writeChannel:
			err := op.operation(s.db)
			if err != nil {
				s.logger.Warn("database write failed", zap.Error(err))
			}
			op.result <- err

		case <-s.shutdown:
			s.logger.Debug("write loop shutting down")
			return
		}
	}
}

func (s *Store) executeWrite(ctx context.Context, operation func(*sql.DB) error) error {
	s.mu.RLock()
	if s.closed {
		s.mu.RUnlock()
		return ErrStoreClosed
	}
	s.mu.RUnlock()

	result := make(chan error, 1)
	timer := time.NewTimer(s.writeTimeout)
	defer timer.Stop()

	select {
	case s.writeChannel <- writeOperation{operation: operation, result: result}:
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return ErrWriteTimeout
	case <-s.shutdown:
		return ErrStoreClosed
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ListBlocks returns every block in catalog order.
func (s *Store) ListBlocks(ctx context.Context) ([]*types.CodeBlock, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, title, template, solution
		FROM code_blocks
		ORDER BY position, id
	`)
	if err != nil {
		return nil, fmt.Errorf("failed to query code blocks: %w", err)
	}
	defer func() { _ = rows.Close() }()

	blocks := make([]*types.CodeBlock, 0)
	for rows.Next() {
		var block types.CodeBlock
		if err := rows.Scan(&block.ID, &block.Title, &block.Template, &block.Solution); err != nil {
			return nil, fmt.Errorf("failed to scan code block: %w", err)
		}
		blocks = append(blocks, &block)
	}

	return blocks, rows.Err()
}

// GetBlock returns ErrBlockNotFound when id is unknown.
func (s *Store) GetBlock(ctx context.Context, id string) (*types.CodeBlock, error) {
	var block types.CodeBlock
	err := s.db.QueryRowContext(ctx, `
		SELECT id, title, template, solution
		FROM code_blocks
		WHERE id = ?
	`, id).Scan(&block.ID, &block.Title, &block.Template, &block.Solution)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBlockNotFound
		}
		return nil, fmt.Errorf("failed to query code block: %w", err)
	}
	return &block, nil
}

// UpsertBlock inserts block or replaces the fields of an existing one.
// position orders the catalog listing.
func (s *Store) UpsertBlock(ctx context.Context, block *types.CodeBlock, position int) error {
	if err := block.Validate(); err != nil {
		return err
	}

	return s.executeWrite(ctx, func(db *sql.DB) error {
		_, err := db.ExecContext(ctx, `
			INSERT INTO code_blocks (id, title, template, solution, position)
			VALUES (?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title,
				template = excluded.template,
				solution = excluded.solution,
				position = excluded.position,
				updated_at = CURRENT_TIMESTAMP
		`, block.ID, block.Title, block.Template, block.Solution, position)
		if err != nil {
			return fmt.Errorf("failed to upsert code block %s: %w", block.ID, err)
		}
		return nil
	})
}

// SeedDefaults inserts blocks when the catalog is empty and reports how many
// were written. A populated catalog is left untouched.
func (s *Store) SeedDefaults(ctx context.Context, blocks []*types.CodeBlock) (int, error) {
	for _, block := range blocks {
		if err := block.Validate(); err != nil {
			return 0, err
		}
	}

	seeded := 0
	err := s.executeWrite(ctx, func(db *sql.DB) error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("failed to begin transaction: %w", err)
		}
		defer func() { _ = tx.Rollback() }()

		var count int
		if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM code_blocks").Scan(&count); err != nil {
			return fmt.Errorf("failed to count code blocks: %w", err)
		}
		if count > 0 {
			return nil
		}

		for i, block := range blocks {
			_, err := tx.ExecContext(ctx, `
				INSERT INTO code_blocks (id, title, template, solution, position)
				VALUES (?, ?, ?, ?, ?)
			`, block.ID, block.Title, block.Template, block.Solution, i)
			if err != nil {
				return fmt.Errorf("failed to insert code block %s: %w", block.ID, err)
			}
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit seed: %w", err)
		}
		seeded = len(blocks)
		return nil
	})
	if err != nil {
		return 0, err
	}

	if seeded > 0 {
		s.logger.Info("seeded code block catalog", zap.Int("blocks", seeded))
	}
	return seeded, nil
}

// HealthCheck validates database connectivity
func (s *Store) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM code_blocks").Scan(&count); err != nil {
		return fmt.Errorf("database read test failed: %w", err)
	}
	return nil
}

// Close stops the writer and closes the pool. Safe to call twice.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.shutdown)
	s.wg.Wait()

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	return nil
}
