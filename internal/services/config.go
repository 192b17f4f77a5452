package services

import (
	"fmt"
	"strings"

	"github.com/Lllllllleong/rfpopositioning/internal/gcp"
	"github.com/Lllllllleong/rfpopositioning/internal/store"
)

// PositioningConfig holds all configuration for the positioning service.
type PositioningConfig struct {
	Store             store.Config
	TemplateDir       string
	TemplateBucket    string
	TemplatePrefix    string
	DefaultTemplate   string
	ArchiveBucket     string
	AppendixTemplates map[string]string
}

// loadPositioningConfig loads and validates the environment variables of the
// positioning service.
func loadPositioningConfig() (*PositioningConfig, error) {
	config := &PositioningConfig{
		Store: store.Config{
			Backend:             gcp.GetEnv("STORE_BACKEND", store.BackendMemory),
			SQLitePath:          gcp.GetEnv("SQLITE_PATH", "rfpo-positioning.db"),
			PostgresDSN:         gcp.GetEnv("DATABASE_URL", ""),
			ProjectID:           gcp.GetEnv("PROJECT_ID", ""),
			FirestoreCollection: gcp.GetEnv("FIRESTORE_COLLECTION", "pdf_positioning"),
		},
		TemplateDir:     gcp.GetEnv("TEMPLATE_DIR", "static/templates"),
		TemplateBucket:  gcp.GetEnv("TEMPLATE_BUCKET", ""),
		TemplatePrefix:  gcp.GetEnv("TEMPLATE_PREFIX", "templates/"),
		DefaultTemplate: gcp.GetEnv("DEFAULT_TEMPLATE", "po_template"),
		ArchiveBucket:   gcp.GetEnv("ARCHIVE_BUCKET", ""),
	}

	switch config.Store.Backend {
	case store.BackendMemory, store.BackendSQLite:
	case store.BackendPostgres:
		if config.Store.PostgresDSN == "" {
			return nil, fmt.Errorf("DATABASE_URL environment variable must be set for the postgres store")
		}
	case store.BackendFirestore:
		if config.Store.ProjectID == "" {
			return nil, fmt.Errorf("PROJECT_ID environment variable must be set for the firestore store")
		}
	default:
		return nil, fmt.Errorf("STORE_BACKEND %q is not one of memory, sqlite, postgres, firestore", config.Store.Backend)
	}
	if strings.TrimSpace(config.DefaultTemplate) == "" {
		return nil, fmt.Errorf("DEFAULT_TEMPLATE must not be empty")
	}

	appendix, err := parseAppendixTemplates(gcp.GetEnv("APPENDIX_TEMPLATES", ""))
	if err != nil {
		return nil, fmt.Errorf("APPENDIX_TEMPLATES: %w", err)
	}
	config.AppendixTemplates = appendix
	return config, nil
}

// parseAppendixTemplates reads "USCAR=uscar_terms,USABC=usabc_terms".
func parseAppendixTemplates(s string) (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(s, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		scopeID, name, ok := strings.Cut(pair, "=")
		scopeID, name = strings.TrimSpace(scopeID), strings.TrimSpace(name)
		if !ok || scopeID == "" || name == "" {
			return nil, fmt.Errorf("entry %q is not SCOPE=template", pair)
		}
		if _, dup := out[scopeID]; dup {
			return nil, fmt.Errorf("scope %q listed twice", scopeID)
		}
		out[scopeID] = name
	}
	return out, nil
}
