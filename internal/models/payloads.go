package models

import (
	"encoding/json"
	"time"
)

// These structs define the JSON payloads exchanged with the positioning editor and
// the PO generation callers.

// PositioningRequest is the body of a save call. PositioningData is kept raw so that
// it can be checked for duplicate keys before decoding.
type PositioningRequest struct {
	PositioningData json.RawMessage `json:"positioning_data"`
}

// PositioningResponse is returned when a positioning document is read.
type PositioningResponse struct {
	PositioningData Document   `json:"positioning_data"`
	Version         int64      `json:"version"`
	UpdatedAt       *time.Time `json:"updated_at,omitempty"`
}

// SaveResponse reports the outcome of a save call.
type SaveResponse struct {
	Success bool  `json:"success"`
	Version int64 `json:"version,omitempty"`
}

// ErrorResponse carries a stable error code; Message is a short human readable hint.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// CanvasGeometry is the editor's canvas size and the PDF page size it stands for.
type CanvasGeometry struct {
	CanvasWidth   float64 `json:"canvas_width"`
	CanvasHeight  float64 `json:"canvas_height"`
	PDFPageWidth  float64 `json:"pdf_page_width"`
	PDFPageHeight float64 `json:"pdf_page_height"`
}

// CanvasPlacement is a field placed on the editor canvas, in canvas pixels with the
// origin at the top-left corner.
type CanvasPlacement struct {
	CanvasX    float64    `json:"canvas_x"`
	CanvasY    float64    `json:"canvas_y"`
	FontSize   float64    `json:"font_size"`
	FontWeight FontWeight `json:"font_weight"`
	Visible    *bool      `json:"visible"`
}

// ConvertRequest asks for canvas placements to be mapped into PDF space.
type ConvertRequest struct {
	Geometry CanvasGeometry             `json:"geometry"`
	Fields   map[string]CanvasPlacement `json:"fields"`
}

// ConvertResponse holds the converted document, ready to be saved.
type ConvertResponse struct {
	PositioningData Document `json:"positioning_data"`
}

// RenderRequest carries the field values of a real purchase order. When ArchiveName
// is set the rendered PDF is also archived under that name.
type RenderRequest struct {
	Values      map[string]string `json:"values"`
	ArchiveName string            `json:"archive_name,omitempty"`
}
