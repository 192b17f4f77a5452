package api

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

func respondJSON(w http.ResponseWriter, status int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to encode response.", "error", err)
		status = http.StatusInternalServerError
		body = []byte(`{"success":false,"error":"internal"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(body); err != nil {
		slog.Warn("Failed to write response.", "error", err)
	}
}

// respondError logs err with the request's context and writes its classified form.
func respondError(w http.ResponseWriter, r *http.Request, err error) {
	status, code, message := classify(err)
	logger := requestLogger(r)
	if status >= http.StatusInternalServerError {
		logger.Error("Request failed.", "code", code, "error", err)
	} else {
		logger.Warn("Request rejected.", "code", code, "error", err)
	}
	respondJSON(w, status, models.ErrorResponse{Success: false, Error: code, Message: message})
}

func respondPDF(w http.ResponseWriter, filename string, pdf []byte) {
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(pdf); err != nil {
		slog.Warn("Failed to write PDF response.", "error", err)
	}
}
