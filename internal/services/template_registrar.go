package services

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/storage"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"github.com/Lllllllleong/rfpopositioning/internal/gcp"
	"github.com/Lllllllleong/rfpopositioning/internal/models"
	"github.com/Lllllllleong/rfpopositioning/internal/templates"
)

type TemplateRegistrarConfig struct {
	ProjectID      string
	TemplatePrefix string
	CollectionName string
}

// TemplateRegistrarFunction records every template PDF uploaded to the template bucket.
type TemplateRegistrarFunction struct {
	storageClient   *storage.Client
	firestoreClient *firestore.Client
	config          TemplateRegistrarConfig
}

// GCSEvent is the payload of a storage object finalize event.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

// templateInfo is what a successful inspection learns about a template.
type templateInfo struct {
	PageCount  int
	PageWidth  float64
	PageHeight float64
}

func NewTemplateRegistrar(ctx context.Context) (*TemplateRegistrarFunction, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	config := TemplateRegistrarConfig{
		ProjectID:      projectID,
		TemplatePrefix: gcp.GetEnv("TEMPLATE_PREFIX", "templates/"),
		CollectionName: gcp.GetEnv("TEMPLATE_COLLECTION", "pdf_templates"),
	}

	firestoreClient, err := gcp.NewFirestoreClient(ctx, config.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	storageClient, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create Storage client: %w", err)
	}

	f := &TemplateRegistrarFunction{
		firestoreClient: firestoreClient,
		storageClient:   storageClient,
		config:          config,
	}
	slog.Info("Template registrar initialized.", "templatePrefix", config.TemplatePrefix, "collection", config.CollectionName)
	return f, nil
}

func (f *TemplateRegistrarFunction) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)
	name, ok := templates.TemplateName(f.config.TemplatePrefix, e.Name)
	if !ok {
		logCtx.Info("Object is not a template PDF. Skipping.")
		return nil
	}
	logCtx = logCtx.With("template", name)
	logCtx.Info("Registering template.")

	tempDir, err := os.MkdirTemp("", "template-registrar-*")
	if err != nil {
		return fmt.Errorf("failed to create temp dir: %w", err)
	}
	defer os.RemoveAll(tempDir)

	localPath := filepath.Join(tempDir, "template.pdf")
	if err := f.streamGCSObject(ctx, e.Bucket, e.Name, localPath); err != nil {
		logCtx.Error("Failed to download template", "error", err)
		return err
	}

	fileHash, err := calculateFileHash(localPath)
	if err != nil {
		logCtx.Error("Failed to calculate file hash", "error", err)
		return fmt.Errorf("failed to calculate file hash: %w", err)
	}
	logCtx = logCtx.With("fileHash", fileHash)

	isDuplicate, docID, err := f.isDuplicate(ctx, name, fileHash)
	if err != nil {
		logCtx.Error("Failed to check for duplicate", "error", err)
		return err
	}
	if isDuplicate {
		logCtx.Info("Template already registered. Skipping.", "existingDocId", docID)
		return nil
	}

	docRef, _, err := f.firestoreClient.Collection(f.config.CollectionName).Add(ctx, models.TemplateRecord{
		Name:      name,
		Bucket:    e.Bucket,
		Object:    e.Name,
		FileHash:  fileHash,
		Status:    models.TemplateStatusValidating,
		CreatedAt: time.Now(),
	})
	if err != nil {
		logCtx.Error("Failed to create template record", "error", err)
		return fmt.Errorf("failed to create template record: %w", err)
	}
	logCtx = logCtx.With("documentId", docRef.ID)

	info, inspectErr := inspectTemplate(localPath)
	if inspectErr != nil {
		// An unusable upload will not improve on retry, so the event is acknowledged.
		logCtx.Warn("Template is not a usable PDF.", "error", inspectErr)
		if err := f.updateStatus(ctx, docRef, models.TemplateStatusInvalid, inspectErr.Error(), templateInfo{}); err != nil {
			logCtx.Error("CRITICAL: Failed to mark template INVALID.", "updateError", err)
			return fmt.Errorf("failed to mark template invalid: %w", err)
		}
		return nil
	}
	if err := f.updateStatus(ctx, docRef, models.TemplateStatusReady, "", info); err != nil {
		logCtx.Error("Failed to mark template READY", "error", err)
		return fmt.Errorf("failed to mark template ready: %w", err)
	}
	logCtx.Info("Template registered.", "pageCount", info.PageCount, "pageWidth", info.PageWidth, "pageHeight", info.PageHeight)
	return nil
}

func (f *TemplateRegistrarFunction) isDuplicate(ctx context.Context, name, fileHash string) (bool, string, error) {
	docs, err := f.firestoreClient.Collection(f.config.CollectionName).
		Where("name", "==", name).
		Where("fileHash", "==", fileHash).
		Limit(1).Documents(ctx).GetAll()
	if err != nil {
		return false, "", fmt.Errorf("failed to query for duplicates: %w", err)
	}
	if len(docs) > 0 {
		return true, docs[0].Ref.ID, nil
	}
	return false, "", nil
}

func (f *TemplateRegistrarFunction) updateStatus(ctx context.Context, docRef *firestore.DocumentRef, status, errDetails string, info templateInfo) error {
	updates := []firestore.Update{
		{Path: "status", Value: status},
	}
	if errDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: errDetails})
	}
	if info.PageCount > 0 {
		updates = append(updates,
			firestore.Update{Path: "pageCount", Value: info.PageCount},
			firestore.Update{Path: "pageWidth", Value: info.PageWidth},
			firestore.Update{Path: "pageHeight", Value: info.PageHeight},
		)
	}
	_, err := docRef.Update(ctx, updates)
	return err
}

func (f *TemplateRegistrarFunction) streamGCSObject(ctx context.Context, bucket, object, destPath string) error {
	gcsReader, err := f.storageClient.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", bucket, object, err)
	}
	defer gcsReader.Close()
	localFile, err := os.Create(destPath)
	if err != nil {
		return fmt.Errorf("failed to create temp file at %s: %w", destPath, err)
	}
	defer localFile.Close()
	if _, err := io.Copy(localFile, gcsReader); err != nil {
		return fmt.Errorf("failed to copy GCS object to local file: %w", err)
	}
	return nil
}

// inspectTemplate validates the PDF at path and reads its page count and the size of
// the page overlays are drawn on.
func inspectTemplate(path string) (templateInfo, error) {
	file, err := os.Open(path)
	if err != nil {
		return templateInfo{}, err
	}
	defer file.Close()

	if err := api.Validate(file, newPDFConfig()); err != nil {
		return templateInfo{}, fmt.Errorf("%w: %v", templates.ErrTemplateInvalid, err)
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return templateInfo{}, err
	}
	dims, err := api.PageDims(file, newPDFConfig())
	if err != nil {
		return templateInfo{}, fmt.Errorf("%w: %v", templates.ErrTemplateInvalid, err)
	}
	if len(dims) == 0 {
		return templateInfo{}, fmt.Errorf("%w: template has no pages", templates.ErrTemplateInvalid)
	}
	return templateInfo{PageCount: len(dims), PageWidth: dims[0].Width, PageHeight: dims[0].Height}, nil
}

func calculateFileHash(filePath string) (string, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return "", err
	}
	defer file.Close()
	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}
	return hex.EncodeToString(hash.Sum(nil)), nil
}
