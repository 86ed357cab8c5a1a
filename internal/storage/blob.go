// Package storage removes artwork image blobs from object storage.
package storage

import "context"

// BlobStore deletes stored artwork images by key
type BlobStore interface {
	DeleteKeys(ctx context.Context, keys []string) error
}

// NoopStore is used when no bucket is configured
type NoopStore struct{}

func (NoopStore) DeleteKeys(context.Context, []string) error { return nil }
