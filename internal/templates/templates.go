// Package templates loads the blank PDF templates that positioning overlays are drawn on.
package templates

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrTemplateNotFound is returned when no template exists under the requested name.
	ErrTemplateNotFound = errors.New("template not found")
	// ErrTemplateInvalid is returned when a template cannot be parsed as a PDF.
	ErrTemplateInvalid  = errors.New("template is not a valid PDF")
)

// Source returns template bytes by name. Names carry no extension.
type Source interface {
	Open(ctx context.Context, name string) ([]byte, error)
}

// Lister is implemented by sources that can enumerate their templates.
type Lister interface {
	List(ctx context.Context) ([]string, error)
}

const extension = ".pdf"

// checkName rejects names that could escape the template root.
func checkName(name string) error {
	switch {
	case name == "":
		return fmt.Errorf("%w: empty template name", ErrTemplateNotFound)
	case strings.ContainsAny(name, `/\`), strings.Contains(name, ".."):
		return fmt.Errorf("%w: illegal template name %q", ErrTemplateNotFound, name)
	}
	return nil
}
