package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// scopeFromRequest builds the scope from the {scope_id} path variable and the
// scope_type and template query parameters.
func (h *handlers) scopeFromRequest(r *http.Request) (models.Scope, error) {
	q := r.URL.Query()
	scopeType := models.ScopeConsortium
	if raw := q.Get("scope_type"); raw != "" {
		st, err := models.ParseScopeType(raw)
		if err != nil {
			return models.Scope{}, err
		}
		scopeType = st
	}
	template := strings.TrimSpace(q.Get("template"))
	if template == "" {
		template = h.svc.DefaultTemplate()
	}
	scope := models.Scope{Type: scopeType, ID: mux.Vars(r)["scope_id"], TemplateName: template}
	return scope, scope.Validate()
}

// decodeJSON reads the whole body into dst.
func decodeJSON(r *http.Request, dst any) error {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return fmt.Errorf("%w: %v", errRequestTooLarge, err)
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		// Documents nested in the body report their own validation errors.
		if errors.Is(err, models.ErrMalformedDocument) {
			return err
		}
		return fmt.Errorf("%w: %v", errInvalidRequest, err)
	}
	return nil
}

func (h *handlers) handleHealth(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *handlers) handleDefaults(w http.ResponseWriter, _ *http.Request) {
	respondJSON(w, http.StatusOK, models.PositioningResponse{PositioningData: h.svc.Defaults()})
}

func (h *handlers) handleTemplates(w http.ResponseWriter, r *http.Request) {
	names, err := h.svc.Templates(r.Context())
	if err != nil {
		respondError(w, r, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	respondJSON(w, http.StatusOK, map[string][]string{"templates": names})
}

func (h *handlers) handleGet(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scopeFromRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.svc.Load(r.Context(), scope)
	if err != nil {
		respondError(w, r, err)
		return
	}
	resp := models.PositioningResponse{PositioningData: rec.Document, Version: rec.Version}
	if rec.Version > 0 {
		resp.UpdatedAt = &rec.UpdatedAt
	}
	respondJSON(w, http.StatusOK, resp)
}

func (h *handlers) handleSave(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scopeFromRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req models.PositioningRequest
	if err := decodeJSON(r, &req); err != nil {
		// A body that is not JSON at all is a malformed save, not a generic bad request.
		if errors.Is(err, errInvalidRequest) {
			err = fmt.Errorf("%w: %v", models.ErrMalformedDocument, err)
		}
		respondError(w, r, err)
		return
	}
	doc, err := models.DecodeDocument(req.PositioningData)
	if err != nil {
		respondError(w, r, err)
		return
	}
	rec, err := h.svc.Save(r.Context(), scope, doc)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.SaveResponse{Success: true, Version: rec.Version})
}

func (h *handlers) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req models.ConvertRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	doc, err := h.svc.Convert(req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondJSON(w, http.StatusOK, models.ConvertResponse{PositioningData: doc})
}

func (h *handlers) handlePreview(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scopeFromRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	pdf, err := h.svc.Preview(r.Context(), scope)
	if err != nil {
		respondError(w, r, err)
		return
	}
	respondPDF(w, fmt.Sprintf("preview_%s_%s.pdf", scope.ID, scope.TemplateName), pdf)
}

func (h *handlers) handleRender(w http.ResponseWriter, r *http.Request) {
	scope, err := h.scopeFromRequest(r)
	if err != nil {
		respondError(w, r, err)
		return
	}
	var req models.RenderRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	pdf, err := h.svc.Render(r.Context(), scope, req)
	if err != nil {
		respondError(w, r, err)
		return
	}
	filename := fmt.Sprintf("po_%s.pdf", scope.ID)
	if req.ArchiveName != "" {
		filename = strings.TrimSuffix(req.ArchiveName, ".pdf") + ".pdf"
	}
	respondPDF(w, filename, pdf)
}

func (h *handlers) handleNotFound(w http.ResponseWriter, r *http.Request) {
	requestLogger(r).Warn("No route.", "method", r.Method, "path", r.URL.Path)
	respondJSON(w, http.StatusNotFound, models.ErrorResponse{Error: CodeNotFound, Message: "no such endpoint"})
}

func (h *handlers) handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusMethodNotAllowed, models.ErrorResponse{Error: CodeMethodNotAllowed, Message: r.Method + " is not supported here"})
}
