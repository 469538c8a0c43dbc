package media

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
)

// GCSStore writes public objects to a Google Cloud Storage bucket.
type GCSStore struct {
	client *storage.Client
	bucket string
}

// NewGCSStore authenticates with a service-account JSON document. The same
// key signs upload URLs.
func NewGCSStore(ctx context.Context, bucket string, credentialsJSON []byte) (*GCSStore, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: bucket is required", ErrNotConfigured)
	}
	if len(credentialsJSON) == 0 {
		return nil, fmt.Errorf("%w: service account credentials are required", ErrNotConfigured)
	}

	creds, err := google.CredentialsFromJSON(ctx, credentialsJSON, storage.ScopeReadWrite)
	if err != nil {
		return nil, fmt.Errorf("parse gcs credentials: %w", err)
	}

	client, err := storage.NewClient(ctx, option.WithCredentials(creds))
	if err != nil {
		return nil, fmt.Errorf("gcs client: %w", err)
	}
	return &GCSStore{client: client, bucket: bucket}, nil
}

func (g *GCSStore) Put(ctx context.Context, key, contentType, cacheControl string, body []byte) (string, error) {
	w := g.client.Bucket(g.bucket).Object(key).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl

	if _, err := w.Write(body); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("write gs://%s/%s: %w", g.bucket, key, err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("close gs://%s/%s: %w", g.bucket, key, err)
	}
	return g.PublicURL(key), nil
}

func (g *GCSStore) SignedPutURL(_ context.Context, key, contentType string, ttl time.Duration) (string, error) {
	u, err := g.client.Bucket(g.bucket).SignedURL(key, &storage.SignedURLOptions{
		Scheme:      storage.SigningSchemeV4,
		Method:      "PUT",
		ContentType: contentType,
		Expires:     time.Now().Add(ttl),
	})
	if err != nil {
		return "", fmt.Errorf("sign gs://%s/%s: %w", g.bucket, key, err)
	}
	return u, nil
}

func (g *GCSStore) PublicURL(key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", g.bucket, key)
}

func (g *GCSStore) Close() error {
	return g.client.Close()
}
