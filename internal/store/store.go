// Package store persists positioning documents keyed by scope.
//
// Every backend follows the same contract: Get on a scope that was never written
// returns an empty document with Version 0; Put replaces the whole document in one
// atomic write and bumps the version; a backend that cannot be reached fails with an
// error wrapping ErrStoreUnavailable and never with an empty document.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// ErrStoreUnavailable wraps every failure of the backing persistence layer.
var ErrStoreUnavailable = errors.New("positioning store unavailable")

// Store is the positioning document repository.
type Store interface {
	Get(ctx context.Context, scope models.Scope) (models.Record, error)
	Put(ctx context.Context, scope models.Scope, doc models.Document) (models.Record, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendMemory    = "memory"
	BackendSQLite    = "sqlite"
	BackendPostgres  = "postgres"
	BackendFirestore = "firestore"
)

// Config selects and configures a backend.
type Config struct {
	Backend             string
	SQLitePath          string
	PostgresDSN         string
	ProjectID           string
	FirestoreCollection string
}

// Open builds the configured backend. SQL backends apply pending schema migrations
// before returning.
func Open(ctx context.Context, cfg Config) (Store, error) {
	var (
		s   Store
		err error
	)
	switch cfg.Backend {
	case "", BackendMemory:
		s = NewMemory()
	case BackendSQLite:
		s, err = NewSQLite(ctx, cfg.SQLitePath)
	case BackendPostgres:
		s, err = NewPostgres(ctx, cfg.PostgresDSN)
	case BackendFirestore:
		s, err = NewFirestore(ctx, cfg.ProjectID, cfg.FirestoreCollection)
	default:
		return nil, fmt.Errorf("unsupported store backend %q", cfg.Backend)
	}
	if err != nil {
		return nil, err
	}
	return s, nil
}

// checkPut validates the arguments of a Put before anything is written.
func checkPut(scope models.Scope, doc models.Document) error {
	if err := scope.Validate(); err != nil {
		return err
	}
	return doc.Validate()
}

func emptyRecord(scope models.Scope) models.Record {
	return models.Record{Scope: scope, Document: models.Document{}}
}

func unavailable(op string, scope models.Scope, err error) error {
	return fmt.Errorf("%w: %s %s: %v", ErrStoreUnavailable, op, scope, err)
}

func now() time.Time {
	return time.Now().UTC().Truncate(time.Microsecond)
}
