package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// migrationLockID keys the advisory lock that serialises migrations across instances.
const migrationLockID = 7_401_290_113

// Postgres stores each document as JSONB in the pdf_positioning table.
type Postgres struct {
	pool *pgxpool.Pool
}

var _ Store = (*Postgres)(nil)

// NewPostgres connects to dsn, pings the server and applies pending migrations.
func NewPostgres(ctx context.Context, dsn string) (*Postgres, error) {
	if dsn == "" {
		return nil, errors.New("postgres DSN must be provided")
	}
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse pgx config: %w", err)
	}
	config.MaxConns = 10
	config.MinConns = 1
	config.MaxConnLifetime = 3 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create pgx pool: %v", ErrStoreUnavailable, err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: postgres ping failed: %v", ErrStoreUnavailable, err)
	}

	p := &Postgres{pool: pool}
	if err := p.migrate(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return p, nil
}

func (p *Postgres) migrate(ctx context.Context) error {
	all, err := loadMigrations(migrationFS, "postgres")
	if err != nil {
		return err
	}
	if _, err := p.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version    INTEGER PRIMARY KEY,
			name       TEXT NOT NULL,
			applied_at TIMESTAMPTZ NOT NULL
		)`); err != nil {
		return fmt.Errorf("failed to create schema_migrations: %w", err)
	}
	for _, m := range all {
		applied, err := p.apply(ctx, m)
		if err != nil {
			return err
		}
		if applied {
			slog.Info("Applied schema migration.", "dialect", "postgres", "version", m.Version, "name", m.Name)
		}
	}
	return nil
}

// apply runs one migration under a transaction-scoped advisory lock. It reports false
// when another instance already recorded the version.
func (p *Postgres) apply(ctx context.Context, m migration) (bool, error) {
	tx, err := p.pool.Begin(ctx)
	if err != nil {
		return false, err
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(migrationLockID)); err != nil {
		return false, fmt.Errorf("failed to take migration lock: %w", err)
	}
	var exists bool
	if err := tx.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM schema_migrations WHERE version = $1)`, m.Version).Scan(&exists); err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if _, err := tx.Exec(ctx, m.SQL); err != nil {
		return false, fmt.Errorf("migration %04d_%s failed: %w", m.Version, m.Name, err)
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO schema_migrations (version, name, applied_at) VALUES ($1, $2, $3)`,
		m.Version, m.Name, now()); err != nil {
		return false, fmt.Errorf("failed to record migration %04d: %w", m.Version, err)
	}
	return true, tx.Commit(ctx)
}

func (p *Postgres) Get(ctx context.Context, scope models.Scope) (models.Record, error) {
	if err := scope.Validate(); err != nil {
		return models.Record{}, err
	}
	var (
		data      string
		version   int64
		updatedAt time.Time
	)
	err := p.pool.QueryRow(ctx, `
		SELECT positioning_data::text, version, updated_at
		FROM pdf_positioning
		WHERE scope_type = $1 AND scope_id = $2 AND template_name = $3
	`, string(scope.Type), scope.ID, scope.TemplateName).Scan(&data, &version, &updatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return emptyRecord(scope), nil
		}
		return models.Record{}, unavailable("get", scope, err)
	}
	doc, err := models.DecodeDocument([]byte(data))
	if err != nil {
		return models.Record{}, unavailable("decode", scope, err)
	}
	return models.Record{Scope: scope, Document: doc, Version: version, UpdatedAt: updatedAt.UTC()}, nil
}

func (p *Postgres) Put(ctx context.Context, scope models.Scope, doc models.Document) (models.Record, error) {
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
	err = p.pool.QueryRow(ctx, `
		INSERT INTO pdf_positioning (scope_type, scope_id, template_name, positioning_data, version, created_at, updated_at)
		VALUES ($1, $2, $3, $4::jsonb, 1, $5, $5)
		ON CONFLICT (scope_type, scope_id, template_name) DO UPDATE SET
			positioning_data = EXCLUDED.positioning_data,
			version = pdf_positioning.version + 1,
			updated_at = EXCLUDED.updated_at
		RETURNING version
	`, string(scope.Type), scope.ID, scope.TemplateName, string(data), ts).Scan(&version)
	if err != nil {
		return models.Record{}, unavailable("put", scope, err)
	}
	return models.Record{Scope: scope, Document: stored, Version: version, UpdatedAt: ts}, nil
}

func (p *Postgres) Close() error {
	p.pool.Close()
	return nil
}
