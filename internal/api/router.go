// Package api exposes the positioning service over HTTP.
package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// maxBodyBytes limits every request body.
const maxBodyBytes = 1 << 20

// BasePath is where every positioning route lives.
const BasePath = "/api/pdf-positioning"

// Service is the behaviour the handlers need from the positioning service.
type Service interface {
	DefaultTemplate() string
	Defaults() models.Document
	Load(ctx context.Context, scope models.Scope) (models.Record, error)
	Save(ctx context.Context, scope models.Scope, doc models.Document) (models.Record, error)
	Preview(ctx context.Context, scope models.Scope) ([]byte, error)
	Render(ctx context.Context, scope models.Scope, req models.RenderRequest) ([]byte, error)
	Convert(req models.ConvertRequest) (models.Document, error)
	Templates(ctx context.Context) ([]string, error)
}

type handlers struct {
	svc Service
}

// NewRouter registers the positioning routes. Fixed paths are registered before the
// {scope_id} routes so that they win.
func NewRouter(svc Service) http.Handler {
	h := &handlers{svc: svc}
	router := mux.NewRouter()
	router.Use(withRequestLogging, withBodyLimit)
	router.NotFoundHandler = http.HandlerFunc(h.handleNotFound)
	router.MethodNotAllowedHandler = http.HandlerFunc(h.handleMethodNotAllowed)

	router.HandleFunc("/health", h.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix(BasePath).Subrouter()
	api.HandleFunc("/defaults", h.handleDefaults).Methods(http.MethodGet)
	api.HandleFunc("/templates", h.handleTemplates).Methods(http.MethodGet)
	api.HandleFunc("/convert", h.handleConvert).Methods(http.MethodPost)
	api.HandleFunc("/preview/{scope_id}", h.handlePreview).Methods(http.MethodGet)
	api.HandleFunc("/render/{scope_id}", h.handleRender).Methods(http.MethodPost)
	api.HandleFunc("/{scope_id}", h.handleGet).Methods(http.MethodGet)
	api.HandleFunc("/{scope_id}", h.handleSave).Methods(http.MethodPost)
	return router
}
