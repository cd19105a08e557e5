package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/nats-io/nats.go/jetstream"
)

// BucketRuns is the JetStream key-value bucket holding run records.
const BucketRuns = "SEMTRIP_RUNS"

// Bucket is the key-value surface used by KVStore. Put with revision 0
// creates the key and fails if it exists; a non-zero revision updates the
// key only if it still has that revision.
type Bucket interface {
	Get(ctx context.Context, key string) (value []byte, revision uint64, err error)
	Put(ctx context.Context, key string, value []byte, revision uint64) error
	Keys(ctx context.Context) ([]string, error)
}

// KVStore keeps runs in a key-value bucket, one key per run.
type KVStore struct {
	bucket Bucket
}

// NewKVStore creates a store over bucket.
func NewKVStore(bucket Bucket) *KVStore {
	return &KVStore{bucket: bucket}
}

// NewJetStreamStore opens the runs bucket, creating it if needed.
func NewJetStreamStore(ctx context.Context, js jetstream.JetStream) (*KVStore, error) {
	kv, err := getOrCreateBucket(ctx, js, BucketRuns)
	if err != nil {
		return nil, fmt.Errorf("create runs bucket: %w", err)
	}
	return NewKVStore(jsBucket{kv: kv}), nil
}

func getOrCreateBucket(ctx context.Context, js jetstream.JetStream, name string) (jetstream.KeyValue, error) {
	kv, err := js.KeyValue(ctx, name)
	if err == nil {
		return kv, nil
	}
	return js.CreateKeyValue(ctx, jetstream.KeyValueConfig{
		Bucket:      name,
		Description: "semtrip plan runs",
		History:     5,
	})
}

// Create implements Store.
func (s *KVStore) Create(ctx context.Context, r *Run) error {
	data, err := marshalRun(r)
	if err != nil {
		return err
	}
	if _, _, err := s.bucket.Get(ctx, r.ID); err == nil {
		return ErrExists
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("check run: %w", err)
	}
	if err := s.bucket.Put(ctx, r.ID, data, 0); err != nil {
		return fmt.Errorf("store run: %w", err)
	}
	return nil
}

// Get implements Store.
func (s *KVStore) Get(ctx context.Context, id string) (*Run, error) {
	data, _, err := s.bucket.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get run: %w", err)
	}
	return unmarshalRun(data)
}

// Update implements Store. The write is conditional on the revision read
// just before it, so a concurrent writer makes Update fail instead of
// being silently overwritten.
func (s *KVStore) Update(ctx context.Context, r *Run) error {
	_, rev, err := s.bucket.Get(ctx, r.ID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("get run: %w", err)
	}
	data, err := marshalRun(r)
	if err != nil {
		return err
	}
	if err := s.bucket.Put(ctx, r.ID, data, rev); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

// List implements Store.
func (s *KVStore) List(ctx context.Context, limit int) ([]*Run, error) {
	keys, err := s.bucket.Keys(ctx)
	if err != nil {
		return nil, fmt.Errorf("list run keys: %w", err)
	}
	runs := make([]*Run, 0, len(keys))
	for _, key := range keys {
		data, _, err := s.bucket.Get(ctx, key)
		if err != nil {
			continue // deleted between Keys and Get
		}
		r, err := unmarshalRun(data)
		if err != nil {
			continue
		}
		runs = append(runs, r)
	}
	return newestFirst(runs, limit), nil
}

// Close implements Store. The bucket belongs to the NATS connection.
func (s *KVStore) Close() error {
	return nil
}

// jsBucket adapts a JetStream key-value bucket.
type jsBucket struct {
	kv jetstream.KeyValue
}

func (b jsBucket) Get(ctx context.Context, key string) ([]byte, uint64, error) {
	entry, err := b.kv.Get(ctx, key)
	if err != nil {
		if errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted) {
			return nil, 0, ErrNotFound
		}
		return nil, 0, err
	}
	return entry.Value(), entry.Revision(), nil
}

func (b jsBucket) Put(ctx context.Context, key string, value []byte, revision uint64) error {
	if revision == 0 {
		_, err := b.kv.Create(ctx, key, value)
		return err
	}
	_, err := b.kv.Update(ctx, key, value, revision)
	return err
}

func (b jsBucket) Keys(ctx context.Context) ([]string, error) {
	keys, err := b.kv.Keys(ctx)
	if errors.Is(err, jetstream.ErrNoKeysFound) {
		return nil, nil
	}
	return keys, err
}
