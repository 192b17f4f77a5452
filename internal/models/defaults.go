package models

// DefaultDocument returns the starting layout offered by the editor for a new
// purchase-order template (US Letter, PDF points).
func DefaultDocument() Document {
	text := func(x, y, size float64, weight FontWeight) FieldPlacement {
		return FieldPlacement{X: x, Y: y, FontSize: size, FontWeight: weight, Visible: true}
	}
	return Document{
		"po_number":            text(470, 710, 10, FontBold),
		"po_date":              text(470, 695, 9, FontNormal),
		"vendor_company":       text(60, 600, 9, FontNormal),
		"vendor_contact":       text(60, 585, 9, FontNormal),
		"vendor_address":       text(60, 570, 9, FontNormal),
		"vendor_phone":         text(60, 555, 9, FontNormal),
		"ship_to_name":         text(240, 600, 9, FontNormal),
		"ship_to_address":      text(240, 585, 9, FontNormal),
		"delivery_type":        text(410, 570, 9, FontNormal),
		"delivery_payment":     text(410, 545, 9, FontNormal),
		"delivery_routing":     text(410, 520, 9, FontNormal),
		"payment_terms":        text(60, 470, 9, FontNormal),
		"project_info":         text(240, 470, 9, FontNormal),
		"delivery_date":        text(410, 470, 9, FontNormal),
		"government_agreement": text(240, 455, 8, FontNormal),
		"requestor_info":       text(60, 380, 9, FontNormal),
		"invoice_address":      text(410, 380, 9, FontNormal),
		"line_items_header":    text(60, 320, 8, FontBold),
		"subtotal":             text(400, 200, 9, FontBold),
		"total":                text(400, 180, 11, FontBold),
	}
}
