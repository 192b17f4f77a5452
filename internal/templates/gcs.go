package templates

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/iterator"

	"github.com/Lllllllleong/rfpopositioning/internal/gcp"
)

// GCS serves templates stored as gs://<bucket>/<Prefix><name>.pdf.
type GCS struct {
	Bucket *storage.BucketHandle
	Prefix string
}

var (
	_ Source = (*GCS)(nil)
	_ Lister = (*GCS)(nil)
)

func NewGCS(client *storage.Client, bucket, prefix string) *GCS {
	return &GCS{Bucket: client.Bucket(bucket), Prefix: prefix}
}

// ObjectName is the object a template name resolves to.
func (g *GCS) ObjectName(name string) string {
	return g.Prefix + name + extension
}

func (g *GCS) Open(ctx context.Context, name string) ([]byte, error) {
	if err := checkName(name); err != nil {
		return nil, err
	}
	data, err := gcp.ReadObject(ctx, g.Bucket, g.ObjectName(name))
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, name)
		}
		return nil, err
	}
	return data, nil
}

// List returns the names of the PDFs directly under Prefix.
func (g *GCS) List(ctx context.Context) ([]string, error) {
	it := g.Bucket.Objects(ctx, &storage.Query{Prefix: g.Prefix, Delimiter: "/"})
	var names []string
	for {
		attrs, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to list templates: %w", err)
		}
		if attrs.Name == "" {
			continue // synthetic prefix entry
		}
		name, ok := TemplateName(g.Prefix, attrs.Name)
		if ok {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	return names, nil
}

// TemplateName maps an object name back to its template name. It reports false for
// objects outside prefix, nested objects and non-PDF files.
func TemplateName(prefix, object string) (string, bool) {
	rest, ok := strings.CutPrefix(object, prefix)
	if !ok || rest == "" || strings.Contains(rest, "/") {
		return "", false
	}
	if !strings.EqualFold(rest[max(0, len(rest)-len(extension)):], extension) {
		return "", false
	}
	name := rest[:len(rest)-len(extension)]
	if checkName(name) != nil {
		return "", false
	}
	return name, true
}
