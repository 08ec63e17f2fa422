package firestore

import (
	"context"
	"fmt"

	firebase "firebase.google.com/go/v4"

	"github.com/medicos-health/medigate/internal/port/outbound"
)

// BlobStore uploads binary objects to the project's Cloud Storage
// bucket. Used for prescription images and scanned documents.
type BlobStore struct {
	app    *firebase.App
	bucket string
}

// NewBlobStore creates a blob store over the app's default bucket.
func NewBlobStore(app *firebase.App, bucket string) *BlobStore {
	return &BlobStore{app: app, bucket: bucket}
}

var _ outbound.BlobStore = (*BlobStore)(nil)

// Put writes an object and returns its gs:// URI.
func (b *BlobStore) Put(ctx context.Context, path string, data []byte, contentType string, metadata map[string]string) (string, error) {
	storage, err := b.app.Storage(ctx)
	if err != nil {
		return "", fmt.Errorf("init storage client: %w", err)
	}
	bucket, err := storage.Bucket(b.bucket)
	if err != nil {
		return "", fmt.Errorf("open bucket: %w", err)
	}

	obj := bucket.Object(path)
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	w.Metadata = metadata
	if _, err := w.Write(data); err != nil {
		w.Close()
		return "", fmt.Errorf("write object: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("finalize object: %w", err)
	}

	return fmt.Sprintf("gs://%s/%s", b.bucket, path), nil
}
