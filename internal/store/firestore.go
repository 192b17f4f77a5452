package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/rfpopositioning/internal/gcp"
	"github.com/Lllllllleong/rfpopositioning/internal/models"
)

// firestoreDocument is the stored shape. The positioning document is kept as a JSON
// string so that field keys are never interpreted as Firestore field paths.
type firestoreDocument struct {
	ScopeType       string    `firestore:"scopeType"`
	ScopeID         string    `firestore:"scopeId"`
	TemplateName    string    `firestore:"templateName"`
	PositioningData string    `firestore:"positioningData"`
	Version         int64     `firestore:"version"`
	UpdatedAt       time.Time `firestore:"updatedAt"`
}

// Firestore keeps one Firestore document per scope in a single collection.
type Firestore struct {
	client     *firestore.Client
	collection string
}

var _ Store = (*Firestore)(nil)

func NewFirestore(ctx context.Context, projectID, collection string) (*Firestore, error) {
	if collection == "" {
		return nil, errors.New("firestore collection must be provided")
	}
	client, err := gcp.NewFirestoreClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return &Firestore{client: client, collection: collection}, nil
}

// docRef derives the document ID from the scope key. The key's separators are escaped
// because Firestore treats "/" as a path delimiter.
func (f *Firestore) docRef(scope models.Scope) *firestore.DocumentRef {
	return f.client.Collection(f.collection).Doc(url.PathEscape(scope.Key()))
}

func (f *Firestore) Get(ctx context.Context, scope models.Scope) (models.Record, error) {
	if err := scope.Validate(); err != nil {
		return models.Record{}, err
	}
	snap, err := f.docRef(scope).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return emptyRecord(scope), nil
		}
		return models.Record{}, unavailable("get", scope, err)
	}
	return decodeSnapshot(scope, snap)
}

func decodeSnapshot(scope models.Scope, snap *firestore.DocumentSnapshot) (models.Record, error) {
	var stored firestoreDocument
	if err := snap.DataTo(&stored); err != nil {
		return models.Record{}, unavailable("decode", scope, err)
	}
	doc, err := models.DecodeDocument([]byte(stored.PositioningData))
	if err != nil {
		return models.Record{}, unavailable("decode", scope, err)
	}
	return models.Record{Scope: scope, Document: doc, Version: stored.Version, UpdatedAt: stored.UpdatedAt.UTC()}, nil
}

func newFirestoreDocument(scope models.Scope, data []byte, version int64, ts time.Time) firestoreDocument {
	return firestoreDocument{
		ScopeType:       string(scope.Type),
		ScopeID:         scope.ID,
		TemplateName:    scope.TemplateName,
		PositioningData: string(data),
		Version:         version,
		UpdatedAt:       ts,
	}
}

func (f *Firestore) Put(ctx context.Context, scope models.Scope, doc models.Document) (models.Record, error) {
	if err := checkPut(scope, doc); err != nil {
		return models.Record{}, err
	}
	stored := doc.Clone()
	data, err := json.Marshal(stored)
	if err != nil {
		return models.Record{}, fmt.Errorf("%w: %v", models.ErrMalformedDocument, err)
	}

	ref := f.docRef(scope)
	var rec models.Record
	err = f.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		var version int64
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var prev firestoreDocument
			if err := snap.DataTo(&prev); err != nil {
				return err
			}
			version = prev.Version
		case status.Code(err) == codes.NotFound:
		default:
			return err
		}

		ts := now()
		next := newFirestoreDocument(scope, data, version+1, ts)
		if err := tx.Set(ref, next); err != nil {
			return err
		}
		rec = models.Record{Scope: scope, Document: stored, Version: next.Version, UpdatedAt: ts}
		return nil
	})
	if err != nil {
		return models.Record{}, unavailable("put", scope, err)
	}
	return rec, nil
}

func (f *Firestore) Close() error {
	return f.client.Close()
}
