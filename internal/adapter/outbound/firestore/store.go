// Package firestore implements the document and blob stores on Google
// Cloud Firestore and Cloud Storage through the Firebase Admin SDK.
package firestore

import (
	"context"
	"fmt"

	"cloud.google.com/go/firestore"
	firebase "firebase.google.com/go/v4"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/medicos-health/medigate/internal/port/outbound"
)

// Config holds Firebase project settings.
type Config struct {
	ProjectID       string
	StorageBucket   string
	CredentialsFile string
}

// Store is a DocumentStore backed by Firestore.
type Store struct {
	client *firestore.Client
}

// NewApp initializes the Firebase app shared by the Firestore store,
// the blob store, and the FCM notifier. When CredentialsFile is empty,
// application default credentials are used.
func NewApp(ctx context.Context, cfg Config) (*firebase.App, error) {
	fbCfg := &firebase.Config{
		ProjectID:     cfg.ProjectID,
		StorageBucket: cfg.StorageBucket,
	}
	var opts []option.ClientOption
	if cfg.CredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(cfg.CredentialsFile))
	}
	app, err := firebase.NewApp(ctx, fbCfg, opts...)
	if err != nil {
		return nil, fmt.Errorf("init firebase app: %w", err)
	}
	return app, nil
}

// NewStore creates a document store over the app's Firestore database.
func NewStore(ctx context.Context, app *firebase.App) (*Store, error) {
	client, err := app.Firestore(ctx)
	if err != nil {
		return nil, fmt.Errorf("init firestore client: %w", err)
	}
	return &Store{client: client}, nil
}

var _ outbound.DocumentStore = (*Store)(nil)

// Get returns the document or outbound.ErrNotFound.
func (s *Store) Get(ctx context.Context, collection, id string) (map[string]interface{}, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if status.Code(err) == codes.NotFound {
		return nil, fmt.Errorf("%w: %s/%s", outbound.ErrNotFound, collection, id)
	}
	if err != nil {
		return nil, fmt.Errorf("get document: %w", err)
	}
	return snap.Data(), nil
}

// Put creates or fully replaces a document.
func (s *Store) Put(ctx context.Context, collection, id string, doc map[string]interface{}) error {
	if _, err := s.client.Collection(collection).Doc(id).Set(ctx, doc); err != nil {
		return fmt.Errorf("put document: %w", err)
	}
	return nil
}

// Update merges fields into an existing document.
func (s *Store) Update(ctx context.Context, collection, id string, fields map[string]interface{}) error {
	updates := make([]firestore.Update, 0, len(fields))
	for k, v := range fields {
		updates = append(updates, firestore.Update{Path: k, Value: v})
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	if status.Code(err) == codes.NotFound {
		return fmt.Errorf("%w: %s/%s", outbound.ErrNotFound, collection, id)
	}
	if err != nil {
		return fmt.Errorf("update document: %w", err)
	}
	return nil
}

// Delete removes a document. Deleting a missing document is not an error.
func (s *Store) Delete(ctx context.Context, collection, id string) error {
	if _, err := s.client.Collection(collection).Doc(id).Delete(ctx); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return nil
}

// Query returns all documents matching every filter.
func (s *Store) Query(ctx context.Context, collection string, filters []outbound.Filter) ([]map[string]interface{}, error) {
	q := s.client.Collection(collection).Query
	for _, f := range filters {
		q = q.Where(f.Field, f.Op, f.Value)
	}
	snaps, err := q.Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("query documents: %w", err)
	}
	docs := make([]map[string]interface{}, 0, len(snaps))
	for _, snap := range snaps {
		docs = append(docs, snap.Data())
	}
	return docs, nil
}

// Close releases the Firestore client.
func (s *Store) Close() error {
	return s.client.Close()
}
