package store

import (
	"context"
	"sync"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// Memory keeps documents in process memory. Documents are copied on the way in and out
// so callers never share a map with the store.
type Memory struct {
	mu      sync.RWMutex
	records map[string]models.Record
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{records: make(map[string]models.Record)}
}

func (m *Memory) Get(_ context.Context, scope models.Scope) (models.Record, error) {
	if err := scope.Validate(); err != nil {
		return models.Record{}, err
	}
	m.mu.RLock()
	rec, ok := m.records[scope.Key()]
	m.mu.RUnlock()
	if !ok {
		return emptyRecord(scope), nil
	}
	rec.Document = rec.Document.Clone()
	return rec, nil
}

func (m *Memory) Put(_ context.Context, scope models.Scope, doc models.Document) (models.Record, error) {
	if err := checkPut(scope, doc); err != nil {
		return models.Record{}, err
	}
	stored := doc.Clone()

	m.mu.Lock()
	rec := m.records[scope.Key()]
	rec = models.Record{Scope: scope, Document: stored, Version: rec.Version + 1, UpdatedAt: now()}
	m.records[scope.Key()] = rec
	m.mu.Unlock()

	rec.Document = stored.Clone()
	return rec, nil
}

func (m *Memory) Close() error { return nil }
