package api

import (
	"errors"
	"net/http"

	"github.com/Lllllllleong/rfpopositioning/internal/coords"
	"github.com/Lllllllleong/rfpopositioning/internal/models"
	"github.com/Lllllllleong/rfpopositioning/internal/services"
	"github.com/Lllllllleong/rfpopositioning/internal/store"
	"github.com/Lllllllleong/rfpopositioning/internal/templates"
)

// Stable error codes returned in the "error" member of every failed response.
const (
	CodeMalformedDocument = "malformed_document"
	CodeInvalidScope      = "invalid_scope"
	CodeInvalidGeometry   = "invalid_geometry"
	CodeInvalidRequest    = "invalid_request"
	CodeRequestTooLarge   = "request_too_large"
	CodeTemplateNotFound  = "template_not_found"
	CodeTemplateInvalid   = "template_invalid"
	CodeStoreUnavailable  = "store_unavailable"
	CodeNotFound          = "not_found"
	CodeMethodNotAllowed  = "method_not_allowed"
	CodeInternal          = "internal"
)

var (
	// errInvalidRequest marks request bodies that are not the JSON the endpoint expects.
	errInvalidRequest  = errors.New("invalid request body")
	// errRequestTooLarge marks request bodies over maxBodyBytes.
	errRequestTooLarge = errors.New("request body too large")
)

type errorClass struct {
	target  error
	status  int
	code    string
	message string
}

var errorClasses = []errorClass{
	{models.ErrMalformedDocument, http.StatusBadRequest, CodeMalformedDocument, "positioning_data is not a valid positioning document"},
	{models.ErrInvalidScope, http.StatusBadRequest, CodeInvalidScope, "scope_type, scope id or template is invalid"},
	{coords.ErrInvalidGeometry, http.StatusBadRequest, CodeInvalidGeometry, "canvas and page dimensions must be positive numbers"},
	{services.ErrInvalidArchiveName, http.StatusBadRequest, CodeInvalidRequest, "archive_name must be a plain file name"},
	{errInvalidRequest, http.StatusBadRequest, CodeInvalidRequest, "request body is not valid JSON"},
	{errRequestTooLarge, http.StatusRequestEntityTooLarge, CodeRequestTooLarge, "request body exceeds 1 MiB"},
	{templates.ErrTemplateNotFound, http.StatusNotFound, CodeTemplateNotFound, "template not found"},
	{templates.ErrTemplateInvalid, http.StatusUnprocessableEntity, CodeTemplateInvalid, "template is not a usable PDF"},
	{store.ErrStoreUnavailable, http.StatusServiceUnavailable, CodeStoreUnavailable, "positioning store is unavailable"},
}

// classify maps an error onto its HTTP status, stable code and a safe message. Raw
// error text never reaches the client.
func classify(err error) (int, string, string) {
	for _, c := range errorClasses {
		if errors.Is(err, c.target) {
			return c.status, c.code, c.message
		}
	}
	return http.StatusInternalServerError, CodeInternal, "internal error"
}
