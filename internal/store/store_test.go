package store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"testing/fstest"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

func testScope(id string) models.Scope {
	return models.Scope{Type: models.ScopeConsortium, ID: id, TemplateName: "po_template"}
}

func placement(x, y float64) models.FieldPlacement {
	return models.FieldPlacement{X: x, Y: y, FontSize: 9, FontWeight: models.FontNormal, Visible: true}
}

// runContract exercises the behaviour every backend shares.
func runContract(t *testing.T, s Store) {
	ctx := context.Background()
	scope := testScope(fmt.Sprintf("contract-%d", time.Now().UnixNano()))

	t.Run("Given an unwritten scope When getting Then an empty version 0 record is returned", func(t *testing.T) {
		rec, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.Empty(t, rec.Document)
		assert.NotNil(t, rec.Document)
		assert.Zero(t, rec.Version)
	})

	t.Run("Given two saves When getting Then the second document replaces the first", func(t *testing.T) {
		first := models.Document{"po_number": placement(1, 2), "po_date": placement(3, 4)}
		rec, err := s.Put(ctx, scope, first)
		require.NoError(t, err)
		assert.Equal(t, int64(1), rec.Version)

		second := models.Document{"total": placement(400, 180)}
		rec, err = s.Put(ctx, scope, second)
		require.NoError(t, err)
		assert.Equal(t, int64(2), rec.Version)

		got, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.True(t, second.Equal(got.Document), "got %v", got.Document)
		assert.Equal(t, int64(2), got.Version)
		assert.WithinDuration(t, rec.UpdatedAt, got.UpdatedAt, time.Second)
	})

	t.Run("Given an empty document When saving Then it is stored as the cleared state", func(t *testing.T) {
		_, err := s.Put(ctx, scope, models.Document{})
		require.NoError(t, err)
		got, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.Empty(t, got.Document)
		assert.Equal(t, int64(3), got.Version)
	})

	t.Run("Given different scopes When saving Then they do not interfere", func(t *testing.T) {
		team := models.Scope{Type: models.ScopeTeam, ID: scope.ID, TemplateName: scope.TemplateName}
		_, err := s.Put(ctx, team, models.Document{"a": placement(1, 1)})
		require.NoError(t, err)
		other := models.Scope{Type: scope.Type, ID: scope.ID, TemplateName: "invoice"}
		rec, err := s.Get(ctx, other)
		require.NoError(t, err)
		assert.Empty(t, rec.Document)
	})

	t.Run("Given an invalid document When saving Then nothing is written", func(t *testing.T) {
		before, err := s.Get(ctx, scope)
		require.NoError(t, err)
		bad := models.Document{"a": {X: 1, Y: 1, FontSize: 0, FontWeight: models.FontNormal, Visible: true}}
		_, err = s.Put(ctx, scope, bad)
		assert.ErrorIs(t, err, models.ErrMalformedDocument)
		after, err := s.Get(ctx, scope)
		require.NoError(t, err)
		assert.Equal(t, before.Version, after.Version)
	})

	t.Run("Given an invalid scope When using the store Then ErrInvalidScope is returned", func(t *testing.T) {
		_, err := s.Get(ctx, models.Scope{Type: "vendor", ID: "1", TemplateName: "po"})
		assert.ErrorIs(t, err, models.ErrInvalidScope)
		_, err = s.Put(ctx, models.Scope{Type: models.ScopeTeam, TemplateName: "po"}, models.Document{})
		assert.ErrorIs(t, err, models.ErrInvalidScope)
	})
}

func TestMemoryContract(t *testing.T) {
	runContract(t, NewMemory())
}

func TestMemoryIsolatesCallers(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	doc := models.Document{"a": placement(1, 1)}
	_, err := s.Put(ctx, testScope("1"), doc)
	require.NoError(t, err)

	doc["b"] = placement(2, 2)
	rec, err := s.Get(ctx, testScope("1"))
	require.NoError(t, err)
	assert.Len(t, rec.Document, 1)

	delete(rec.Document, "a")
	again, err := s.Get(ctx, testScope("1"))
	require.NoError(t, err)
	assert.Len(t, again.Document, 1)
}

func TestMemoryConcurrentPuts(t *testing.T) {
	ctx := context.Background()
	s := NewMemory()
	scope := testScope("busy")

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			doc := models.Document{
				"po_number": placement(float64(i), float64(i)),
				"total":     placement(float64(i), float64(i)),
			}
			_, err := s.Put(ctx, scope, doc)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	rec, err := s.Get(ctx, scope)
	require.NoError(t, err)
	assert.Equal(t, int64(16), rec.Version)
	// Whole-document writes: both fields must come from the same Put.
	assert.Equal(t, rec.Document["po_number"], rec.Document["total"])
}

func TestSQLiteContract(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "positioning.db"))
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestSQLitePersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "positioning.db")

	s, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	doc := models.Document{"vendor_name": {X: 72, Y: 620, FontSize: 10, FontWeight: models.FontBold, Visible: false}}
	_, err = s.Put(ctx, testScope("00000014"), doc)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	reopened, err := NewSQLite(ctx, path)
	require.NoError(t, err)
	defer reopened.Close()

	rec, err := reopened.Get(ctx, testScope("00000014"))
	require.NoError(t, err)
	assert.True(t, doc.Equal(rec.Document))
	assert.Equal(t, int64(1), rec.Version)

	var applied int
	require.NoError(t, reopened.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&applied))
	all, err := loadMigrations(migrationFS, "sqlite")
	require.NoError(t, err)
	assert.Equal(t, len(all), applied)
}

func TestSQLiteRequiresPath(t *testing.T) {
	_, err := NewSQLite(context.Background(), "")
	assert.Error(t, err)
}

func TestSQLiteClosedIsUnavailable(t *testing.T) {
	s, err := NewSQLite(context.Background(), filepath.Join(t.TempDir(), "positioning.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = s.Get(context.Background(), testScope("1"))
	assert.ErrorIs(t, err, ErrStoreUnavailable)
	_, err = s.Put(context.Background(), testScope("1"), models.Document{})
	assert.ErrorIs(t, err, ErrStoreUnavailable)
}

func TestPostgresContract(t *testing.T) {
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	s, err := NewPostgres(context.Background(), dsn)
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestFirestoreContract(t *testing.T) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	s, err := NewFirestore(context.Background(), "rfpo-test", "pdf_positioning_test")
	require.NoError(t, err)
	defer s.Close()
	runContract(t, s)
}

func TestNewFirestoreDocument(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	got := newFirestoreDocument(testScope("USCAR"), []byte(`{"po_number":{}}`), 4, ts)
	assert.Equal(t, firestoreDocument{
		ScopeType:       "consortium",
		ScopeID:         "USCAR",
		TemplateName:    "po_template",
		PositioningData: `{"po_number":{}}`,
		Version:         4,
		UpdatedAt:       ts,
	}, got)
}

func TestOpen(t *testing.T) {
	ctx := context.Background()

	s, err := Open(ctx, Config{})
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, s)

	s, err = Open(ctx, Config{Backend: BackendSQLite, SQLitePath: filepath.Join(t.TempDir(), "p.db")})
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, s)
	require.NoError(t, s.Close())

	_, err = Open(ctx, Config{Backend: "redis"})
	assert.Error(t, err)
}

func TestLoadMigrations(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/sqlite/0002_second.sql": {Data: []byte("SELECT 2;")},
		"migrations/sqlite/0001_first.sql":  {Data: []byte("SELECT 1;")},
		"migrations/sqlite/README.md":       {Data: []byte("notes")},
	}
	got, err := loadMigrations(fsys, "sqlite")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, migration{Version: 1, Name: "first", SQL: "SELECT 1;"}, got[0])
	assert.Equal(t, 2, got[1].Version)

	assert.Equal(t, []migration{got[1]}, pending(got, map[int]bool{1: true}))
	assert.Empty(t, pending(got, map[int]bool{1: true, 2: true}))
}

func TestLoadMigrationsRejects(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"duplicate version", fstest.MapFS{
			"migrations/sqlite/0001_a.sql": {Data: []byte("")},
			"migrations/sqlite/1_b.sql":    {Data: []byte("")},
		}},
		{"no name", fstest.MapFS{"migrations/sqlite/0001.sql": {Data: []byte("")}}},
		{"bad version", fstest.MapFS{"migrations/sqlite/abc_x.sql": {Data: []byte("")}}},
		{"missing dialect", fstest.MapFS{"migrations/postgres/0001_a.sql": {Data: []byte("")}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := loadMigrations(tt.fsys, "sqlite")
			assert.Error(t, err)
		})
	}
}

func TestEmbeddedMigrationsMatchAcrossDialects(t *testing.T) {
	lite, err := loadMigrations(migrationFS, "sqlite")
	require.NoError(t, err)
	pg, err := loadMigrations(migrationFS, "postgres")
	require.NoError(t, err)
	require.Equal(t, len(lite), len(pg))
	for i := range lite {
		assert.Equal(t, lite[i].Version, pg[i].Version)
		assert.Equal(t, lite[i].Name, pg[i].Name)
	}
}
