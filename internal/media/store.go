package media

import (
	"context"
	"fmt"

	"github.com/primebarber/site-backend/config"
)

// NewObjectStore picks the bucket backend named by cfg.Provider. An empty
// bucket yields ErrNotConfigured so the service can start without storage.
func NewObjectStore(ctx context.Context, cfg config.StorageConfig) (ObjectStore, error) {
	if cfg.Bucket == "" {
		return nil, ErrNotConfigured
	}
	var (
		store ObjectStore
		err   error
	)
	switch cfg.Provider {
	case "s3":
		store, err = NewS3Store(ctx, cfg)
	case "", "gcs":
		store, err = NewGCSStore(ctx, cfg.Bucket, []byte(cfg.CredentialsJSON))
	default:
		return nil, fmt.Errorf("unknown storage provider %q", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
