package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
	pdfapi "github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/rfpopositioning/internal/coords"
	"github.com/Lllllllleong/rfpopositioning/internal/models"
	"github.com/Lllllllleong/rfpopositioning/internal/services"
	"github.com/Lllllllleong/rfpopositioning/internal/store"
	"github.com/Lllllllleong/rfpopositioning/internal/templates"
)

func templatePDF(t *testing.T) []byte {
	t.Helper()
	pdf := fpdf.NewCustom(&fpdf.InitType{UnitStr: "pt", Size: fpdf.SizeType{Wd: 612, Ht: 792}})
	pdf.SetCompression(false)
	pdf.SetFont("Helvetica", "", 12)
	pdf.AddPage()
	pdf.Text(50, 50, "PURCHASE ORDER")
	var buf bytes.Buffer
	require.NoError(t, pdf.Output(&buf))
	return buf.Bytes()
}

// contentStreams decodes and concatenates every stream of pdf.
func contentStreams(t *testing.T, pdf []byte) string {
	t.Helper()
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	conf.DecodeAllStreams = true
	pdfCtx, err := pdfapi.ReadContext(bytes.NewReader(pdf), conf)
	require.NoError(t, err)

	var sb strings.Builder
	for _, entry := range pdfCtx.XRefTable.Table {
		if entry == nil || entry.Free {
			continue
		}
		sd, ok := entry.Object.(types.StreamDict)
		if !ok {
			continue
		}
		if sd.Content == nil && sd.Decode() != nil {
			continue
		}
		sb.Write(sd.Content)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func newTestRouter(t *testing.T) http.Handler {
	t.Helper()
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "po_template.pdf"), templatePDF(t), 0o644))
	svc := services.NewPositioningWith(services.PositioningConfig{DefaultTemplate: "po_template"},
		store.NewMemory(), templates.Dir{Root: root}, nil)
	return NewRouter(svc)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

func TestSaveThenGet(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/pdf-positioning/00000014", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"positioning_data": {}, "version": 0}`, rec.Body.String())

	rec = do(t, h, http.MethodPost, "/api/pdf-positioning/00000014",
		`{"positioning_data": {"po_number": {"x": 450, "y": 700, "font_size": 14, "font_weight": "bold", "visible": true}}}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"success": true, "version": 1}`, rec.Body.String())

	rec = do(t, h, http.MethodGet, "/api/pdf-positioning/00000014", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got struct {
		PositioningData map[string]models.FieldPlacement `json:"positioning_data"`
		Version         int64                            `json:"version"`
		UpdatedAt       *string                          `json:"updated_at"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, models.FieldPlacement{X: 450, Y: 700, FontSize: 14, FontWeight: models.FontBold, Visible: true}, got.PositioningData["po_number"])
	assert.Equal(t, int64(1), got.Version)
	assert.NotNil(t, got.UpdatedAt)

	// Scopes with another type or template are separate documents.
	rec = do(t, h, http.MethodGet, "/api/pdf-positioning/00000014?scope_type=team", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"positioning_data": {}, "version": 0}`, rec.Body.String())
}

func TestSaveEmptyDocumentClears(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/pdf-positioning/7",
		`{"positioning_data": {"po_number": {"x": 1, "y": 2}}}`).Code)
	rec := do(t, h, http.MethodPost, "/api/pdf-positioning/7", `{"positioning_data": {}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = do(t, h, http.MethodGet, "/api/pdf-positioning/7", "")
	var got models.PositioningResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Empty(t, got.PositioningData)
	assert.Equal(t, int64(2), got.Version)

	rec = do(t, h, http.MethodGet, "/api/pdf-positioning/preview/7", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotContains(t, rec.Body.String(), "PO NUMBER")
}

func TestSaveRejections(t *testing.T) {
	h := newTestRouter(t)
	tests := []struct {
		name   string
		target string
		body   string
		status int
		code   string
	}{
		{"not json", "/api/pdf-positioning/1", `{{{`, http.StatusBadRequest, CodeMalformedDocument},
		{"missing data", "/api/pdf-positioning/1", `{}`, http.StatusBadRequest, CodeMalformedDocument},
		{"array", "/api/pdf-positioning/1", `{"positioning_data": []}`, http.StatusBadRequest, CodeMalformedDocument},
		{"duplicate key", "/api/pdf-positioning/1", `{"positioning_data": {"a": {"x": 1, "y": 1}, "a": {"x": 2, "y": 2}}}`, http.StatusBadRequest, CodeMalformedDocument},
		{"bad font size", "/api/pdf-positioning/1", `{"positioning_data": {"a": {"x": 1, "y": 1, "font_size": 0}}}`, http.StatusBadRequest, CodeMalformedDocument},
		{"bad scope type", "/api/pdf-positioning/1?scope_type=vendor", `{"positioning_data": {}}`, http.StatusBadRequest, CodeInvalidScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.target, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			resp := decodeError(t, rec)
			assert.False(t, resp.Success)
			assert.Equal(t, tt.code, resp.Error)
		})
	}

	// Nothing was written by the rejected saves.
	rec := do(t, h, http.MethodGet, "/api/pdf-positioning/1", "")
	assert.JSONEq(t, `{"positioning_data": {}, "version": 0}`, rec.Body.String())
}

func TestBodyLimit(t *testing.T) {
	h := newTestRouter(t)
	big := `{"positioning_data": {"a": {"x": 1, "y": 1, "pad": "` + strings.Repeat("x", maxBodyBytes) + `"}}}`
	rec := do(t, h, http.MethodPost, "/api/pdf-positioning/1", big)
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Equal(t, CodeRequestTooLarge, decodeError(t, rec).Error)
}

func TestDefaultsAndConvert(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/pdf-positioning/defaults", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var defaults models.PositioningResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &defaults))
	assert.Contains(t, defaults.PositioningData, "po_number")

	rec = do(t, h, http.MethodPost, "/api/pdf-positioning/convert", `{
		"geometry": {"canvas_width": 600, "canvas_height": 776, "pdf_page_width": 612, "pdf_page_height": 792},
		"fields": {"po_number": {"canvas_x": 72.55, "canvas_y": 110.5, "font_size": 10, "font_weight": "bold"}}
	}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var converted models.ConvertResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &converted))
	assert.InDelta(t, 74.00, converted.PositioningData["po_number"].X, 0.01)
	assert.InDelta(t, 679.22, converted.PositioningData["po_number"].Y, 0.01)

	rec = do(t, h, http.MethodPost, "/api/pdf-positioning/convert",
		`{"geometry": {"canvas_width": 0, "canvas_height": 776, "pdf_page_width": 612, "pdf_page_height": 792}, "fields": {}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidGeometry, decodeError(t, rec).Error)
}

func TestPreviewAndRender(t *testing.T) {
	h := newTestRouter(t)
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPost, "/api/pdf-positioning/USCAR",
		`{"positioning_data": {"po_number": {"x": 470, "y": 710, "font_size": 10, "font_weight": "bold"}}}`).Code)

	rec := do(t, h, http.MethodGet, "/api/pdf-positioning/preview/USCAR", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "inline")
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))
	assert.Equal(t, 1, strings.Count(contentStreams(t, rec.Body.Bytes()), "BT 470.00 710.00 Td (PO NUMBER) Tj"))

	rec = do(t, h, http.MethodPost, "/api/pdf-positioning/render/USCAR", `{"values": {"po_number": "PO-1"}}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rendered := contentStreams(t, rec.Body.Bytes())
	assert.Contains(t, rendered, "BT 470.00 710.00 Td (PO-1) Tj")
	assert.NotContains(t, rendered, "PO NUMBER")
	assert.Contains(t, rec.Header().Get("Content-Disposition"), `filename="po_USCAR.pdf"`)

	rec = do(t, h, http.MethodGet, "/api/pdf-positioning/preview/USCAR?template=invoice", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeTemplateNotFound, decodeError(t, rec).Error)

	rec = do(t, h, http.MethodPost, "/api/pdf-positioning/render/USCAR", `{"archive_name": "../x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, CodeInvalidRequest, decodeError(t, rec).Error)
}

func TestTemplatesAndRouting(t *testing.T) {
	h := newTestRouter(t)

	rec := do(t, h, http.MethodGet, "/api/pdf-positioning/templates", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"templates": ["po_template"]}`, rec.Body.String())

	rec = do(t, h, http.MethodDelete, "/api/pdf-positioning/1", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = do(t, h, http.MethodGet, "/nowhere", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, CodeNotFound, decodeError(t, rec).Error)

	rec = do(t, h, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, rec.Header().Get(RequestIDHeader))
}

func TestRequestIDIsEchoed(t *testing.T) {
	h := newTestRouter(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set(RequestIDHeader, "abc-123")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	assert.Equal(t, "abc-123", rec.Header().Get(RequestIDHeader))
}

// brokenService fails every call with the configured error.
type brokenService struct {
	err error
}

func (b brokenService) DefaultTemplate() string   { return "po_template" }
func (b brokenService) Defaults() models.Document { return models.Document{} }
func (b brokenService) Load(context.Context, models.Scope) (models.Record, error) {
	return models.Record{}, b.err
}
func (b brokenService) Save(context.Context, models.Scope, models.Document) (models.Record, error) {
	return models.Record{}, b.err
}
func (b brokenService) Preview(context.Context, models.Scope) ([]byte, error) { return nil, b.err }
func (b brokenService) Render(context.Context, models.Scope, models.RenderRequest) ([]byte, error) {
	return nil, b.err
}
func (b brokenService) Convert(models.ConvertRequest) (models.Document, error) { return nil, b.err }
func (b brokenService) Templates(context.Context) ([]string, error)            { return nil, b.err }

func TestErrorMapping(t *testing.T) {
	tests := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("get: %w", store.ErrStoreUnavailable), http.StatusServiceUnavailable, CodeStoreUnavailable},
		{templates.ErrTemplateNotFound, http.StatusNotFound, CodeTemplateNotFound},
		{fmt.Errorf("x: %w", templates.ErrTemplateInvalid), http.StatusUnprocessableEntity, CodeTemplateInvalid},
		{coords.ErrInvalidGeometry, http.StatusBadRequest, CodeInvalidGeometry},
		{models.ErrInvalidScope, http.StatusBadRequest, CodeInvalidScope},
		{errors.New("pq: password authentication failed for user admin"), http.StatusInternalServerError, CodeInternal},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			h := NewRouter(brokenService{err: tt.err})
			rec := do(t, h, http.MethodGet, "/api/pdf-positioning/1", "")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.code, decodeError(t, rec).Error)
			assert.NotContains(t, rec.Body.String(), "password")
		})
	}
}

func TestStoreUnavailableOnSave(t *testing.T) {
	h := NewRouter(brokenService{err: store.ErrStoreUnavailable})
	rec := do(t, h, http.MethodPost, "/api/pdf-positioning/1", `{"positioning_data": {}}`)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	resp := decodeError(t, rec)
	assert.False(t, resp.Success)
	assert.Equal(t, CodeStoreUnavailable, resp.Error)
}
