package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// SQLite stores each document as a JSON TEXT column in the pdf_positioning table.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at dbPath and applies pending
// migrations.
func NewSQLite(ctx context.Context, dbPath string) (*SQLite, error) {
	if dbPath == "" {
		return nil, errors.New("sqlite path must be provided")
	}
	if strings.HasPrefix(dbPath, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, err
		}
		dbPath = filepath.Join(home, dbPath[1:])
	}
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", dbPath)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	s := &SQLite{db: db}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLite) migrate(ctx context.Context) error {
	all, err := loadMigrations(migrationFS, "sqlite")
	if err != nil {
		return err
	}
	if _, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT version FROM schema_migrations`)
	if err != nil {
		return fmt.Errorf("failed to read applied migrations: %w", err)
	}
	applied := make(map[int]bool)
	for rows.Next() {
		var v int
		if err := rows.Scan(&v); err != nil {
			rows.Close()
			return err
		}
		applied[v] = true
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return err
	}

	for _, m := range pending(all, applied) {
		if err := s.apply(ctx, m); err != nil {
			return err
		}
		slog.Info("Applied schema migration.", "dialect", "sqlite", "version", m.Version, "name", m.Name)
	}
	return nil
}

func (s *SQLite) apply(ctx context.Context, m migration) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, m.SQL); err != nil {
		return fmt.Errorf("migration %04d_%s failed: %w", m.Version, m.Name, err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)`,
		m.Version, m.Name, now()); err != nil {
		return fmt.Errorf("failed to record migration %04d: %w", m.Version, err)
	}
	return tx.Commit()
}

func (s *SQLite) Get(ctx context.Context, scope models.Scope) (models.Record, error) {
	if err := scope.Validate(); err != nil {
		return models.Record{}, err
	}
	row := s.db.QueryRowContext(ctx, `
		SELECT positioning_data, version, updated_at
		FROM pdf_positioning
		WHERE scope_type = ? AND scope_id = ? AND template_name = ?
	`, string(scope.Type), scope.ID, scope.TemplateName)

	var (
		data      string
		version   int64
		updatedAt time.Time
	)
	if err := row.Scan(&data, &version, &updatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return emptyRecord(scope), nil
		}
		return models.Record{}, unavailable("get", scope, err)
	}
	doc, err := models.DecodeDocument([]byte(data))
	if err != nil {
		return models.Record{}, unavailable("decode", scope, err)
	}
	return models.Record{Scope: scope, Document: doc, Version: version, UpdatedAt: updatedAt}, nil
}

func (s *SQLite) Put(ctx context.Context, scope models.Scope, doc models.Document) (models.Record, error) {
	if err := checkPut(scope, doc); err != nil {
		return models.Record{}, err
	}
	stored := doc.Clone()
	data, err := json.Marshal(stored)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", models.ErrMalformedDocument, err)
	}
	ts := now()
	var version int64
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO pdf_positioning (scope_type, scope_id, template_name, positioning_data, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (scope_type, scope_id, template_name) DO UPDATE SET
			positioning_data = excluded.positioning_data,
			version = pdf_positioning.version + 1,
			updated_at = excluded.updated_at
		RETURNING version
	`, string(scope.Type), scope.ID, scope.TemplateName, string(data), ts, ts).Scan(&version)
	if err != nil {
		return models.Record{}, unavailable("put", scope, err)
	}
	return models.Record{Scope: scope, Document: stored, Version: version, UpdatedAt: ts}, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}
