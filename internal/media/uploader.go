package media

import (
	"context"
	"errors"
	"fmt"
	"path"
	"time"
)

const (
	CacheControl     = "public, max-age=31536000"
	SignedURLTTL     = 15 * time.Minute
	SignedUploadType = "image/jpeg"
)

var ErrNotConfigured = errors.New("object storage is not configured")

// ObjectStore is the subset of a bucket client the pipeline needs.
type ObjectStore interface {
	Put(ctx context.Context, key, contentType, cacheControl string, body []byte) (string, error)
	SignedPutURL(ctx context.Context, key, contentType string, ttl time.Duration) (string, error)
	PublicURL(key string) string
}

// StoreUploader writes decoded payloads to {siteID}/{filename}.
type StoreUploader struct {
	store ObjectStore
}

func NewStoreUploader(store ObjectStore) *StoreUploader {
	return &StoreUploader{store: store}
}

func (u *StoreUploader) Upload(ctx context.Context, siteID, filename, payload string) (string, error) {
	if u.store == nil {
		return "", ErrNotConfigured
	}
	contentType, body, err := DecodeDataURL(payload)
	if err != nil {
		return "", err
	}
	url, err := u.store.Put(ctx, objectKey(siteID, filename), contentType, CacheControl, body)
	if err != nil {
		return "", fmt.Errorf("store %s: %w", filename, err)
	}
	return url, nil
}

// SignedUpload is a short-lived URL a browser can PUT an image to directly.
type SignedUpload struct {
	Filename  string `json:"filename"`
	UploadURL string `json:"uploadUrl"`
	PublicURL string `json:"publicUrl"`
}

// SignedUploadURLs issues one PUT URL per filename under the site prefix.
func (u *StoreUploader) SignedUploadURLs(ctx context.Context, siteID string, filenames []string) ([]SignedUpload, error) {
	if u.store == nil {
		return nil, ErrNotConfigured
	}
	out := make([]SignedUpload, 0, len(filenames))
	for _, f := range filenames {
		key := objectKey(siteID, f)
		signed, err := u.store.SignedPutURL(ctx, key, SignedUploadType, SignedURLTTL)
		if err != nil {
			return nil, fmt.Errorf("sign %s: %w", f, err)
		}
		out = append(out, SignedUpload{Filename: f, UploadURL: signed, PublicURL: u.store.PublicURL(key)})
	}
	return out, nil
}

func objectKey(siteID, filename string) string {
	return path.Join(siteID, path.Base(filename))
}
