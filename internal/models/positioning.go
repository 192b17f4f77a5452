package models

import (
	"errors"
	"fmt"
	"maps"
	"math"
	"net/url"
	"slices"
	"strings"
	"time"
)

var (
	// ErrMalformedDocument is returned when a positioning document fails validation.
	ErrMalformedDocument = errors.New("malformed positioning document")
	// ErrInvalidScope is returned when a scope is incomplete or names an unknown scope type.
	ErrInvalidScope      = errors.New("invalid positioning scope")
)

// ScopeType names the kind of entity a positioning configuration belongs to.
type ScopeType string

const (
	ScopeConsortium ScopeType = "consortium"
	ScopeTeam       ScopeType = "team"
	ScopeProject    ScopeType = "project"
)

// ParseScopeType accepts the scope type names case-insensitively.
func ParseScopeType(s string) (ScopeType, error) {
	switch t := ScopeType(strings.ToLower(strings.TrimSpace(s))); t {
	case ScopeConsortium, ScopeTeam, ScopeProject:
		return t, nil
	}
	return "", fmt.Errorf("%w: unknown scope type %q", ErrInvalidScope, s)
}

// Scope identifies one positioning configuration: at most one document exists per
// (Type, ID, TemplateName).
type Scope struct {
	Type         ScopeType
	ID           string
	TemplateName string
}

func (s Scope) Validate() error {
	if _, err := ParseScopeType(string(s.Type)); err != nil {
		return err
	}
	if strings.TrimSpace(s.ID) == "" {
		return fmt.Errorf("%w: scope id is empty", ErrInvalidScope)
	}
	if strings.TrimSpace(s.TemplateName) == "" {
		return fmt.Errorf("%w: template name is empty", ErrInvalidScope)
	}
	return nil
}

// Key returns a stable key for the scope that is safe to use as a path segment list.
func (s Scope) Key() string {
	return string(s.Type) + "/" + url.PathEscape(s.ID) + "/" + url.PathEscape(s.TemplateName)
}

func (s Scope) String() string {
	return fmt.Sprintf("%s:%s:%s", s.Type, s.ID, s.TemplateName)
}

// FontWeight is the weight a field's text is drawn with.
type FontWeight string

const (
	FontNormal FontWeight = "normal"
	FontBold   FontWeight = "bold"
)

// DefaultFontSize is applied to fields that do not carry a font size.
const DefaultFontSize = 9.0

// FieldPlacement is one field of a positioning document. X and Y are PDF points with the
// origin at the bottom-left corner of the page.
type FieldPlacement struct {
	X          float64    `json:"x"`
	Y          float64    `json:"y"`
	FontSize   float64    `json:"font_size"`
	FontWeight FontWeight `json:"font_weight"`
	Visible    bool       `json:"visible"`
}

func (p FieldPlacement) Validate() error {
	for name, v := range map[string]float64{"x": p.X, "y": p.Y, "font_size": p.FontSize} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s is not finite", name)
		}
	}
	if p.FontSize <= 0 {
		return fmt.Errorf("font_size must be positive, got %v", p.FontSize)
	}
	if p.FontWeight != FontNormal && p.FontWeight != FontBold {
		return fmt.Errorf("font_weight must be %q or %q, got %q", FontNormal, FontBold, p.FontWeight)
	}
	return nil
}

// Document maps field keys to placements. An empty document is the valid "all fields
// cleared" state.
type Document map[string]FieldPlacement

func (d Document) Validate() error {
	for key, p := range d {
		if strings.TrimSpace(key) == "" {
			return fmt.Errorf("%w: empty field key", ErrMalformedDocument)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("%w: field %q: %v", ErrMalformedDocument, key, err)
		}
	}
	return nil
}

// Clone returns a copy that shares nothing with d. A nil document clones to an empty one.
func (d Document) Clone() Document {
	out := make(Document, len(d))
	maps.Copy(out, d)
	return out
}

// VisibleKeys returns the keys of visible fields in sorted order.
func (d Document) VisibleKeys() []string {
	keys := make([]string, 0, len(d))
	for k, p := range d {
		if p.Visible {
			keys = append(keys, k)
		}
	}
	slices.Sort(keys)
	return keys
}

func (d Document) Equal(other Document) bool {
	return maps.Equal(d, other)
}

// Record is a stored document with its bookkeeping. Version 0 means the scope has
// never been written.
type Record struct {
	Scope     Scope
	Document  Document
	Version   int64
	UpdatedAt time.Time
}

// FieldLabel is the preview text drawn for a field: "po_number" becomes "PO NUMBER".
func FieldLabel(key string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(key), "_", " "))
}
