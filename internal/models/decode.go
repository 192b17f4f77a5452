package models

import (
	"encoding/json"
	"fmt"

	"github.com/buger/jsonparser"
)

// rawPlacement mirrors FieldPlacement with optional members so that absent values can
// be told apart from zero values.
type rawPlacement struct {
	X          *float64 `json:"x"`
	Y          *float64 `json:"y"`
	FontSize   *float64 `json:"font_size"`
	FontWeight *string  `json:"font_weight"`
	Visible    *bool    `json:"visible"`
}

// DecodeDocument parses the JSON object carried in "positioning_data". Duplicate field
// keys, non-object entries, missing coordinates and values of the wrong type are
// rejected with ErrMalformedDocument. Missing styling falls back to 9pt, normal weight,
// visible.
func DecodeDocument(raw []byte) (Document, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("%w: positioning_data is missing", ErrMalformedDocument)
	}
	_, dataType, _, err := jsonparser.Get(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if dataType != jsonparser.Object {
		return nil, fmt.Errorf("%w: positioning_data must be an object, got %s", ErrMalformedDocument, dataType)
	}

	doc := make(Document)
	seen := make(map[string]struct{})
	err = jsonparser.ObjectEach(raw, func(key []byte, value []byte, dataType jsonparser.ValueType, _ int) error {
		k, err := jsonparser.ParseString(key)
		if err != nil {
			return fmt.Errorf("field key %q: %v", key, err)
		}
		if _, dup := seen[k]; dup {
			return fmt.Errorf("duplicate field key %q", k)
		}
		seen[k] = struct{}{}
		if dataType != jsonparser.Object {
			return fmt.Errorf("field %q must be an object, got %s", k, dataType)
		}
		p, err := decodePlacement(value)
		if err != nil {
			return fmt.Errorf("field %q: %v", k, err)
		}
		doc[k] = p
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return doc, nil
}

func decodePlacement(value []byte) (FieldPlacement, error) {
	var rp rawPlacement
	if err := json.Unmarshal(value, &rp); err != nil {
		return FieldPlacement{}, err
	}
	if rp.X == nil || rp.Y == nil {
		return FieldPlacement{}, fmt.Errorf("x and y are required")
	}
	p := FieldPlacement{
		X:          *rp.X,
		Y:          *rp.Y,
		FontSize:   DefaultFontSize,
		FontWeight: FontNormal,
		Visible:    true,
	}
	if rp.FontSize != nil {
		p.FontSize = *rp.FontSize
	}
	if rp.FontWeight != nil {
		p.FontWeight = FontWeight(*rp.FontWeight)
	}
	if rp.Visible != nil {
		p.Visible = *rp.Visible
	}
	return p, nil
}

// UnmarshalJSON routes wire documents through DecodeDocument so every decoding path
// applies the same checks.
func (d *Document) UnmarshalJSON(b []byte) error {
	doc, err := DecodeDocument(b)
	if err != nil {
		return err
	}
	*d = doc
	return nil
}
