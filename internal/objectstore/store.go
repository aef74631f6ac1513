// Package objectstore stores job payloads in NATS JetStream object store buckets.
package objectstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// ErrObjectNotFound is returned when a key is absent from the bucket.
var ErrObjectNotFound = errors.New("object not found")

// Store implements core.ObjectStore on a single JetStream object store bucket.
type Store struct {
	bucket string
	store  jetstream.ObjectStore
}

// New opens bucket, creating it on first use.
func New(ctx context.Context, js jetstream.JetStream, bucket string) (*Store, error) {
	store, err := js.CreateObjectStore(ctx, jetstream.ObjectStoreConfig{
		Bucket:      bucket,
		Description: fmt.Sprintf("Voice service payloads for the %s bucket.", bucket),
		Storage:     jetstream.FileStorage,
		Replicas:    1,
	})
	if errors.Is(err, jetstream.ErrBucketExists) {
		store, err = js.ObjectStore(ctx, bucket)
		if err != nil {
			return nil, fmt.Errorf("failed to bind to existing object store bucket '%s': %w", bucket, err)
		}
	}

	if err != nil {
		return nil, fmt.Errorf("failed to create object store bucket '%s': %w", bucket, err)
	}

	return &Store{bucket: bucket, store: store}, nil
}

// Download retrieves the object stored under key.
func (s *Store) Download(ctx context.Context, key string) ([]byte, error) {
	data, err := s.store.GetBytes(ctx, key)
	if errors.Is(err, jetstream.ErrObjectNotFound) {
		return nil, fmt.Errorf("%w: '%s' in bucket '%s'", ErrObjectNotFound, key, s.bucket)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to get object '%s' from bucket '%s': %w", key, s.bucket, err)
	}

	return data, nil
}

// Upload stores data under key, replacing any previous object.
func (s *Store) Upload(ctx context.Context, key string, data []byte) error {
	_, err := s.store.PutBytes(ctx, key, data)
	if err != nil {
		return fmt.Errorf("failed to put object '%s' to bucket '%s': %w", key, s.bucket, err)
	}

	return nil
}
