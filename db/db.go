package db

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"hotrepos/config"
	"hotrepos/logger"
)

// DB represents a database connection
type DB struct {
	conn *sqlx.DB
	// Prepared statements cache
	stmtCache struct {
		sync.RWMutex
		statements map[string]*sqlx.Stmt
	}
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS repositories (
		full_name     TEXT PRIMARY KEY,
		stars         INTEGER NOT NULL,
		forks         INTEGER NOT NULL,
		created_at    TIMESTAMPTZ NOT NULL,
		language      TEXT NOT NULL,
		description   TEXT NOT NULL,
		url           TEXT NOT NULL,
		topics        TEXT[] NOT NULL DEFAULT '{}',
		first_seen_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		last_seen_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`,
	`CREATE TABLE IF NOT EXISTS search_runs (
		id           SERIAL PRIMARY KEY,
		query        TEXT NOT NULL,
		ran_at       TIMESTAMPTZ NOT NULL,
		result_count INTEGER NOT NULL,
		partial      BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS run_repositories (
		run_id    INTEGER NOT NULL REFERENCES search_runs(id) ON DELETE CASCADE,
		full_name TEXT NOT NULL REFERENCES repositories(full_name),
		rank      INTEGER NOT NULL,
		stars     INTEGER NOT NULL,
		PRIMARY KEY (run_id, full_name)
	)`,
}

// New opens the Postgres snapshot store described by cfg
func New(cfg config.DatabaseConfig) (*DB, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("%w: database host is not configured", ErrInvalidInput)
	}

	logger.Info("Connecting to database",
		zap.String("host", cfg.Host),
		zap.String("port", cfg.Port),
		zap.String("database", cfg.Name))
	conn, err := sqlx.Connect("postgres", cfg.DSN())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDatabaseConnection, err)
	}

	conn.SetMaxOpenConns(cfg.MaxOpenConns)
	conn.SetMaxIdleConns(cfg.MaxIdleConns)
	conn.SetConnMaxLifetime(cfg.ConnMaxLifetime)

	logger.Info("Database connection established",
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns),
		zap.Duration("conn_max_lifetime", cfg.ConnMaxLifetime))
	return newDB(conn), nil
}

func newDB(conn *sqlx.DB) *DB {
	database := &DB{conn: conn}
	database.stmtCache.statements = make(map[string]*sqlx.Stmt)
	return database
}

// Migrate creates the snapshot tables if they do not exist
func (db *DB) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := db.conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	logger.Info("Database schema up to date")
	return nil
}

// getStmt returns a prepared statement from cache or creates a new one
func (db *DB) getStmt(ctx context.Context, query string) (*sqlx.Stmt, error) {
	db.stmtCache.RLock()
	stmt, exists := db.stmtCache.statements[query]
	db.stmtCache.RUnlock()

	if exists {
		return stmt, nil
	}

	db.stmtCache.Lock()
	defer db.stmtCache.Unlock()

	// Double-check after acquiring write lock
	if stmt, exists = db.stmtCache.statements[query]; exists {
		return stmt, nil
	}

	stmt, err := db.conn.PreparexContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare statement: %w", err)
	}

	db.stmtCache.statements[query] = stmt
	return stmt, nil
}

// Close closes the database connection
func (db *DB) Close() error {
	db.stmtCache.Lock()
	for _, stmt := range db.stmtCache.statements {
		stmt.Close()
	}
	db.stmtCache.statements = make(map[string]*sqlx.Stmt)
	db.stmtCache.Unlock()

	return db.conn.Close()
}
