// Package coords maps points between the positioning editor's canvas and PDF page space.
//
// Canvas space is measured in pixels with the origin at the top-left corner and y
// growing downward. PDF space is measured in points with the origin at the bottom-left
// corner and y growing upward. Only the y axis is flipped; both axes are scaled
// independently.
package coords

import (
	"errors"
	"fmt"
	"math"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// ErrInvalidGeometry is returned for a geometry with a non-positive or non-finite
// dimension.
var ErrInvalidGeometry = errors.New("invalid canvas geometry")

// Geometry is the canvas size in pixels and the page size in points it represents.
type Geometry struct {
	CanvasWidth   float64
	CanvasHeight  float64
	PDFPageWidth  float64
	PDFPageHeight float64
}

// FromModel converts the wire representation.
func FromModel(g models.CanvasGeometry) Geometry {
	return Geometry{
		CanvasWidth:   g.CanvasWidth,
		CanvasHeight:  g.CanvasHeight,
		PDFPageWidth:  g.PDFPageWidth,
		PDFPageHeight: g.PDFPageHeight,
	}
}

func (g Geometry) Validate() error {
	dims := []struct {
		name string
		v    float64
	}{
		{"canvas_width", g.CanvasWidth},
		{"canvas_height", g.CanvasHeight},
		{"pdf_page_width", g.PDFPageWidth},
		{"pdf_page_height", g.PDFPageHeight},
	}
	for _, d := range dims {
		if math.IsNaN(d.v) || math.IsInf(d.v, 0) || d.v <= 0 {
			return fmt.Errorf("%w: %s must be a positive number, got %v", ErrInvalidGeometry, d.name, d.v)
		}
	}
	return nil
}

// ToPDF maps a canvas point to PDF space.
func ToPDF(canvasX, canvasY float64, g Geometry) (pdfX, pdfY float64, err error) {
	if err := g.Validate(); err != nil {
		return 0, 0, err
	}
	scaleX := g.PDFPageWidth / g.CanvasWidth
	scaleY := g.PDFPageHeight / g.CanvasHeight
	return canvasX * scaleX, g.PDFPageHeight - canvasY*scaleY, nil
}

// ToCanvas is the inverse of ToPDF.
func ToCanvas(pdfX, pdfY float64, g Geometry) (canvasX, canvasY float64, err error) {
	if err := g.Validate(); err != nil {
		return 0, 0, err
	}
	scaleX := g.PDFPageWidth / g.CanvasWidth
	scaleY := g.PDFPageHeight / g.CanvasHeight
	return pdfX / scaleX, (g.PDFPageHeight - pdfY) / scaleY, nil
}

// ConvertPlacements maps a set of canvas placements to a PDF-space document. Styling
// defaults match models.DecodeDocument. The result is validated.
func ConvertPlacements(fields map[string]models.CanvasPlacement, g Geometry) (models.Document, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	doc := make(models.Document, len(fields))
	for key, f := range fields {
		x, y, err := ToPDF(f.CanvasX, f.CanvasY, g)
		if err != nil {
			return nil, err
		}
		p := models.FieldPlacement{
			X:          x,
			Y:          y,
			FontSize:   f.FontSize,
			FontWeight: f.FontWeight,
			Visible:    true,
		}
		if p.FontSize == 0 {
			p.FontSize = models.DefaultFontSize
		}
		if p.FontWeight == "" {
			p.FontWeight = models.FontNormal
		}
		if f.Visible != nil {
			p.Visible = *f.Visible
		}
		doc[key] = p
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}
