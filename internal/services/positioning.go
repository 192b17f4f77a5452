package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/rfpopositioning/internal/coords"
	"github.com/Lllllllleong/rfpopositioning/internal/gcp"
	"github.com/Lllllllleong/rfpopositioning/internal/models"
	"github.com/Lllllllleong/rfpopositioning/internal/store"
	"github.com/Lllllllleong/rfpopositioning/internal/templates"
)

// ErrInvalidArchiveName is returned for archive names that are not a single plain
// object name.
var ErrInvalidArchiveName = errors.New("invalid archive name")

// PositioningFunction holds the dependencies of the positioning editor and PO rendering.
type PositioningFunction struct {
	store     store.Store
	templates templates.Source
	renderer  *Renderer
	archive   *storage.BucketHandle
	config    PositioningConfig
}

// NewPositioning builds the service from the environment.
func NewPositioning(ctx context.Context) (*PositioningFunction, error) {
	config, err := loadPositioningConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	st, err := store.Open(ctx, config.Store)
	if err != nil {
		return nil, fmt.Errorf("failed to open positioning store: %w", err)
	}

	var (
		source  templates.Source = templates.Dir{Root: config.TemplateDir}
		archive *storage.BucketHandle
	)
	if config.TemplateBucket != "" || config.ArchiveBucket != "" {
		storageClient, err := storage.NewClient(ctx)
		if err != nil {
			st.Close()
			return nil, fmt.Errorf("failed to create storage client: %w", err)
		}
		if config.TemplateBucket != "" {
			source = templates.NewGCS(storageClient, config.TemplateBucket, config.TemplatePrefix)
		}
		if config.ArchiveBucket != "" {
			archive = storageClient.Bucket(config.ArchiveBucket)
		}
	}

	f := NewPositioningWith(*config, st, source, archive)
	slog.Info("Positioning service initialized.",
		"storeBackend", config.Store.Backend,
		"templateBucket", config.TemplateBucket,
		"templateDir", config.TemplateDir,
		"archiveBucket", config.ArchiveBucket)
	return f, nil
}

// NewPositioningWith wires the service from explicit dependencies. archive may be nil.
func NewPositioningWith(config PositioningConfig, st store.Store, source templates.Source, archive *storage.BucketHandle) *PositioningFunction {
	if config.DefaultTemplate == "" {
		config.DefaultTemplate = "po_template"
	}
	return &PositioningFunction{
		store:     st,
		templates: source,
		renderer:  NewRenderer(),
		archive:   archive,
		config:    config,
	}
}

// DefaultTemplate is the template used when a request names none.
func (f *PositioningFunction) DefaultTemplate() string {
	return f.config.DefaultTemplate
}

// Defaults returns the starting layout offered to the editor for a new configuration.
func (f *PositioningFunction) Defaults() models.Document {
	return models.DefaultDocument()
}

func scopeLogger(scope models.Scope) *slog.Logger {
	return slog.With("scopeType", scope.Type, "scopeId", scope.ID, "template", scope.TemplateName)
}

// Load returns the stored document, or an empty one for a scope that was never saved.
func (f *PositioningFunction) Load(ctx context.Context, scope models.Scope) (models.Record, error) {
	rec, err := f.store.Get(ctx, scope)
	if err != nil {
		scopeLogger(scope).Error("Failed to load positioning document.", "error", err)
		return models.Record{}, err
	}
	return rec, nil
}

// Save replaces the whole document of the scope.
func (f *PositioningFunction) Save(ctx context.Context, scope models.Scope, doc models.Document) (models.Record, error) {
	logCtx := scopeLogger(scope)
	rec, err := f.store.Put(ctx, scope, doc)
	if err != nil {
		logCtx.Error("Failed to save positioning document.", "error", err)
		return models.Record{}, err
	}
	logCtx.Info("Saved positioning document.", "fields", len(doc), "version", rec.Version)
	return rec, nil
}

// Convert maps editor canvas placements into a PDF-space document.
func (f *PositioningFunction) Convert(req models.ConvertRequest) (models.Document, error) {
	return coords.ConvertPlacements(req.Fields, coords.FromModel(req.Geometry))
}

// Preview renders the stored layout with each field's label as its text.
func (f *PositioningFunction) Preview(ctx context.Context, scope models.Scope) ([]byte, error) {
	return f.render(ctx, scope, PreviewText, false)
}

// Render renders a purchase order with real field values, appends the scope's terms
// pages and archives the result when asked to.
func (f *PositioningFunction) Render(ctx context.Context, scope models.Scope, req models.RenderRequest) ([]byte, error) {
	var objectName string
	if req.ArchiveName != "" {
		var err error
		if objectName, err = archiveObjectName(scope, req.ArchiveName); err != nil {
			return nil, err
		}
	}

	pdf, err := f.render(ctx, scope, ValuesText(req.Values), true)
	if err != nil {
		return nil, err
	}
	if objectName == "" {
		return pdf, nil
	}

	logCtx := scopeLogger(scope).With("gcsObject", objectName)
	if f.archive == nil {
		logCtx.Warn("Archive requested but ARCHIVE_BUCKET is not configured. Skipping.")
		return pdf, nil
	}
	written, err := f.archivePDF(ctx, objectName, pdf)
	if err != nil {
		logCtx.Error("Failed to archive rendered PDF.", "error", err)
		return nil, fmt.Errorf("failed to archive rendered PDF: %w", err)
	}
	logCtx.Info("Archived rendered PDF.", "written", written)
	return pdf, nil
}

// archivePDF saves pdf under objectName, retrying transient failures with backoff.
func (f *PositioningFunction) archivePDF(ctx context.Context, objectName string, pdf []byte) (bool, error) {
	const maxRetries = 4
	var backoff = 1 * time.Second
	var lastErr error

	for i := 0; i < maxRetries; i++ {
		writeCtx, cancel := context.WithTimeout(ctx, 50*time.Second)
		written, err := gcp.SaveToGCSAtomically(writeCtx, f.archive, objectName, "application/pdf", pdf)
		cancel()
		if err == nil {
			return written, nil
		}

		lastErr = err
		slog.Warn(
			"Archive upload failed, will retry.",
			"gcsObject", objectName,
			"attempt", i+1,
			"maxRetries", maxRetries,
			"backoff", backoff.String(),
			"error", err,
		)
		select {
		case <-time.After(backoff):
			backoff *= 2
		case <-ctx.Done():
			return false, ctx.Err()
		}
	}
	return false, fmt.Errorf("archive upload for %s failed after all retries: %w", objectName, lastErr)
}

func (f *PositioningFunction) render(ctx context.Context, scope models.Scope, text TextFunc, withAppendix bool) ([]byte, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	logCtx := scopeLogger(scope)

	var (
		template []byte
		record   models.Record
		appendix []byte
	)
	eg, gctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		var err error
		template, err = f.templates.Open(gctx, scope.TemplateName)
		return err
	})
	eg.Go(func() error {
		var err error
		record, err = f.store.Get(gctx, scope)
		return err
	})
	appendixName, hasAppendix := f.appendixFor(scope)
	if withAppendix && hasAppendix {
		eg.Go(func() error {
			var err error
			if appendix, err = f.templates.Open(gctx, appendixName); err != nil {
				return fmt.Errorf("appendix %s: %w", appendixName, err)
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		logCtx.Error("Failed to load render inputs.", "error", err)
		return nil, err
	}

	in := RenderInput{Template: template, Document: record.Document, Text: text, RightAlign: MoneyColumn}
	if appendix != nil {
		in.Appendix = [][]byte{appendix}
	}
	pdf, err := f.renderer.Render(ctx, in)
	if err != nil {
		logCtx.Error("Failed to render PDF.", "error", err)
		return nil, err
	}
	logCtx.Info("Rendered PDF.", "version", record.Version, "visibleFields", len(record.Document.VisibleKeys()), "bytes", len(pdf))
	return pdf, nil
}

// appendixFor returns the terms template configured for a consortium scope.
func (f *PositioningFunction) appendixFor(scope models.Scope) (string, bool) {
	if scope.Type != models.ScopeConsortium {
		return "", false
	}
	name, ok := f.config.AppendixTemplates[scope.ID]
	return name, ok
}

// Templates lists the available template names when the source supports it.
func (f *PositioningFunction) Templates(ctx context.Context) ([]string, error) {
	lister, ok := f.templates.(templates.Lister)
	if !ok {
		return nil, errors.New("template source cannot list templates")
	}
	return lister.List(ctx)
}

func (f *PositioningFunction) Close() error {
	return f.store.Close()
}

// archiveObjectName places archived POs under <scope type>/<scope id>/<name>.pdf.
func archiveObjectName(scope models.Scope, name string) (string, error) {
	name = strings.TrimSuffix(strings.TrimSpace(name), ".pdf")
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) || strings.Contains(name, "..") {
		return "", fmt.Errorf("%w: %q", ErrInvalidArchiveName, name)
	}
	return path.Join(string(scope.Type), url.PathEscape(scope.ID), name+".pdf"), nil
}
