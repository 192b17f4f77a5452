package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"

	"github.com/Lllllllleong/rfpopositioning/internal/models"
	"github.com/Lllllllleong/rfpopositioning/internal/templates"
)

// stampDescription places the overlay page unscaled over the lower-left corner of the
// template page, so overlay coordinates are template coordinates.
const stampDescription = "pos:bl, off:0 0, scalefactor:1 abs, rot:0, op:1"

var disableConfigDir sync.Once

// TextFunc returns the text drawn for a field. Returning false skips the field.
type TextFunc func(key string) (string, bool)

// PreviewText draws each field's label, e.g. "PO NUMBER".
func PreviewText(key string) (string, bool) {
	return models.FieldLabel(key), true
}

// ValuesText draws the supplied value for each field. Fields without a value are
// skipped.
func ValuesText(values map[string]string) TextFunc {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

// MoneyColumn reports whether key is a price or cost share column. Those are drawn
// with their right edge at the field's x.
func MoneyColumn(key string) bool {
	return strings.HasSuffix(key, "_unit_price") ||
		strings.HasSuffix(key, "_total_price") ||
		strings.HasSuffix(key, "_cost_share_amount")
}

type RenderInput struct {
	Template []byte
	Document models.Document
	Text     TextFunc
	// RightAlign selects the fields whose text ends at x. Nil left-aligns everything.
	RightAlign func(key string) bool
	// Appendix PDFs are appended after the template pages, in order.
	Appendix [][]byte
}

// Renderer draws positioning documents onto PDF templates.
type Renderer struct {
	tempDir string
}

func NewRenderer() *Renderer {
	disableConfigDir.Do(api.DisableConfigDir)
	return &Renderer{tempDir: os.TempDir()}
}

func newPDFConfig() *model.Configuration {
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return conf
}

// Render returns the template with every visible field drawn on page 1. Pages after
// the first are passed through untouched and the appendix is appended.
func (r *Renderer) Render(ctx context.Context, in RenderInput) ([]byte, error) {
	if in.Text == nil {
		in.Text = PreviewText
	}
	if len(in.Template) == 0 {
		return nil, fmt.Errorf("%w: template is empty", templates.ErrTemplateInvalid)
	}
	if err := api.Validate(bytes.NewReader(in.Template), newPDFConfig()); err != nil {
		return nil, fmt.Errorf("%w: %v", templates.ErrTemplateInvalid, err)
	}
	dims, err := api.PageDims(bytes.NewReader(in.Template), newPDFConfig())
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read page dimensions: %v", templates.ErrTemplateInvalid, err)
	}
	if len(dims) == 0 {
		return nil, fmt.Errorf("%w: template has no pages", templates.ErrTemplateInvalid)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	overlay, drawn, err := buildOverlay(dims[0], in.Document, in.Text, in.RightAlign)
	if err != nil {
		return nil, err
	}

	out := in.Template
	if drawn > 0 {
		if out, err = r.stamp(in.Template, overlay); err != nil {
			return nil, err
		}
	}
	if len(in.Appendix) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if out, err = appendPages(out, in.Appendix); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// buildOverlay draws one transparent page the size of dim holding the text of every
// visible field. It reports how many fields were drawn.
func buildOverlay(dim types.Dim, doc models.Document, text TextFunc, rightAlign func(string) bool) ([]byte, int, error) {
	pdf := fpdf.NewCustom(&fpdf.InitType{
		OrientationStr: "P",
		UnitStr:        "pt",
		Size:           fpdf.SizeType{Wd: dim.Width, Ht: dim.Height},
	})
	pdf.SetCompression(false)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetMargins(0, 0, 0)
	pdf.SetCreationDate(time.Unix(0, 0).UTC())
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	drawn := 0
	for _, key := range doc.VisibleKeys() {
		value, ok := text(key)
		if !ok || strings.TrimSpace(value) == "" {
			continue
		}
		p := doc[key]
		if p.X < 0 || p.Y < 0 || p.X > dim.Width || p.Y > dim.Height {
			slog.Warn("Field lies outside the page.", "field", key, "x", p.X, "y", p.Y,
				"pageWidth", dim.Width, "pageHeight", dim.Height)
		}
		style := ""
		if p.FontWeight == models.FontBold {
			style = "B"
		}
		pdf.SetFont("Helvetica", style, p.FontSize)
		right := rightAlign != nil && rightAlign(key)
		lineHeight := p.FontSize + 2
		for i, line := range strings.Split(value, "\n") {
			line = tr(strings.TrimRight(line, "\r"))
			x := p.X
			if right {
				x -= pdf.GetStringWidth(line)
			}
			pdf.Text(x, dim.Height-p.Y+float64(i)*lineHeight, line)
		}
		drawn++
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, 0, fmt.Errorf("failed to build overlay page: %w", err)
	}
	return buf.Bytes(), drawn, nil
}

// stamp merges the overlay onto page 1 of the template exactly once.
func (r *Renderer) stamp(template, overlay []byte) ([]byte, error) {
	tempDir, err := os.MkdirTemp(r.tempDir, "pdf-overlay-*")
	if err != nil {
		return nil, fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	overlayPath := filepath.Join(tempDir, "overlay.pdf")
	if err := os.WriteFile(overlayPath, overlay, 0o600); err != nil {
		return nil, fmt.Errorf("failed to write overlay page: %w", err)
	}
	wm, err := api.PDFWatermark(overlayPath, stampDescription, true, false, types.POINTS)
	if err != nil {
		return nil, fmt.Errorf("failed to prepare overlay stamp: %w", err)
	}
	var out bytes.Buffer
	if err := api.AddWatermarks(bytes.NewReader(template), &out, []string{"1"}, wm, newPDFConfig()); err != nil {
		return nil, fmt.Errorf("failed to stamp overlay onto template: %w", err)
	}
	return out.Bytes(), nil
}

func appendPages(doc []byte, appendix [][]byte) ([]byte, error) {
	readers := []io.ReadSeeker{bytes.NewReader(doc)}
	for i, a := range appendix {
		if err := api.Validate(bytes.NewReader(a), newPDFConfig()); err != nil {
			return nil, fmt.Errorf("%w: appendix %d: %v", templates.ErrTemplateInvalid, i+1, err)
		}
		readers = append(readers, bytes.NewReader(a))
	}
	var out bytes.Buffer
	if err := api.MergeRaw(readers, &out, false, newPDFConfig()); err != nil {
		return nil, fmt.Errorf("failed to append pages: %w", err)
	}
	return out.Bytes(), nil
}

// PageCount reports the number of pages in pdf.
func PageCount(pdf []byte) (int, error) {
	n, err := api.PageCount(bytes.NewReader(pdf), newPDFConfig())
	if err != nil {
		return 0, fmt.Errorf("%w: %v", templates.ErrTemplateInvalid, err)
	}
	return n, nil
}
