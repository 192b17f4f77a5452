package models

import "time"

// Template registration states.
const (
	TemplateStatusValidating = "VALIDATING"
	TemplateStatusReady      = "READY"
	TemplateStatusInvalid    = "INVALID"
)

// TemplateRecord is the Firestore record kept for every template PDF uploaded to the
// template bucket. It lets operators see an unusable template before the first render.
type TemplateRecord struct {
	Name         string    `firestore:"name,omitempty"`
	Bucket       string    `firestore:"bucket,omitempty"`
	Object       string    `firestore:"object,omitempty"`
	FileHash     string    `firestore:"fileHash,omitempty"`
	Status       string    `firestore:"status,omitempty"`
	ErrorDetails string    `firestore:"errorDetails,omitempty"`
	PageCount    int       `firestore:"pageCount,omitempty"`
	PageWidth    float64   `firestore:"pageWidth,omitempty"`
	PageHeight   float64   `firestore:"pageHeight,omitempty"`
	CreatedAt    time.Time `firestore:"createdAt,omitempty"`
}
