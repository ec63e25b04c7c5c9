// Package s3store implements the storage backend contract over an
// S3-compatible bucket using a lock-free MVCC protocol: every push writes
// into a fresh UUID-keyed folder, and the only contended resource is the
// per-(name,version) metadata object, arbitrated by the store's own
// conditional-write primitive.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"
)

const (
	DefaultPlanTTL     = 30 * time.Minute
	DefaultConcurrency = 4
)

// ObjectStore is the byte-level primitive set the protocol needs. *s3.Client
// satisfies it; tests use an in-memory fake.
type ObjectStore interface {
	PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error
	PutObjectIfAbsent(ctx context.Context, key string, body io.Reader, contentLength int64) (bool, error)
	GetObjectBytes(ctx context.Context, key string) ([]byte, error)
	DeleteObject(ctx context.Context, key string) error
	ListObjects(ctx context.Context, prefix string, maxKeys int32) ([]string, error)
	Exists(ctx context.Context, key string) (bool, error)
	UploadFile(ctx context.Context, key, localPath string) error
	DownloadFile(ctx context.Context, key, localPath string) error
	URI(relative string) string
}

type Store struct {
	store       ObjectStore
	planTTL     time.Duration
	concurrency int
}

type Options struct {
	Store       ObjectStore
	PlanTTL     time.Duration
	Concurrency int
}

func New(opts Options) (*Store, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("s3store: object store is required")
	}
	if opts.PlanTTL <= 0 {
		opts.PlanTTL = DefaultPlanTTL
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Store{
		store:       opts.Store,
		planTTL:     opts.PlanTTL,
		concurrency: opts.Concurrency,
	}, nil
}

var _ storage.Backend = (*Store)(nil)

// fetchMeta reads and parses the metadata object for one ref.
func (s *Store) fetchMeta(ctx context.Context, ref storage.ObjectRef) (*storage.ObjectMetadata, error) {
	data, err := s.store.GetObjectBytes(ctx, s3.MetadataKey(ref.Name, ref.Version))
	if err != nil {
		if errors.Is(err, s3.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
		}
		return nil, err
	}
	return storage.UnmarshalMetadata(data)
}

func (s *Store) SaveMetadata(ctx context.Context, entries []storage.MetadataEntry, opts storage.SaveMetadataOptions) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, entry := range entries {
		results.Put(s.saveMetaOne(ctx, entry, opts.IfAbsent))
	}
	return results, nil
}

func (s *Store) saveMetaOne(ctx context.Context, entry storage.MetadataEntry, ifAbsent bool) storage.OpResult {
	meta := entry.Meta
	data, err := meta.Marshal()
	if err != nil {
		return storage.Failed(entry.Ref, err)
	}
	key := s3.MetadataKey(entry.Ref.Name, entry.Ref.Version)
	if ifAbsent {
		created, err := s.store.PutObjectIfAbsent(ctx, key, bytes.NewReader(data), int64(len(data)))
		if err != nil {
			return storage.Failed(entry.Ref, err)
		}
		if !created {
			return storage.Skipped(entry.Ref)
		}
		return storage.Success(entry.Ref, &meta)
	}
	if err := s.store.PutObject(ctx, key, bytes.NewReader(data), int64(len(data))); err != nil {
		return storage.Failed(entry.Ref, err)
	}
	return storage.Success(entry.Ref, &meta)
}

func (s *Store) FetchMetadata(ctx context.Context, refs []storage.ObjectRef) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, ref := range refs {
		meta, err := s.fetchMeta(ctx, ref)
		if err != nil {
			results.Put(storage.Failed(ref, err))
			continue
		}
		results.Put(storage.Success(ref, meta))
	}
	return results, nil
}

func (s *Store) DeleteMetadata(ctx context.Context, refs []storage.ObjectRef) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, ref := range refs {
		if err := s.store.DeleteObject(ctx, s3.MetadataKey(ref.Name, ref.Version)); err != nil {
			results.Put(storage.Failed(ref, err))
			continue
		}
		results.Put(storage.Success(ref, nil))
	}
	return results, nil
}

// ListObjects returns the distinct names with at least one metadata object.
func (s *Store) ListObjects(ctx context.Context) ([]string, error) {
	keys, err := s.store.ListObjects(ctx, s3.MetadataListPrefix(""), 0)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, key := range keys {
		name, _, ok := s3.ParseMetadataKey(key)
		if !ok {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		names = append(names, name)
	}
	return names, nil
}

func (s *Store) ListVersions(ctx context.Context, name string) ([]string, error) {
	keys, err := s.store.ListObjects(ctx, s3.MetadataListPrefix(name), 0)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, key := range keys {
		keyName, version, ok := s3.ParseMetadataKey(key)
		if !ok || keyName != name {
			continue
		}
		versions = append(versions, version)
	}
	return versions, nil
}

func (s *Store) HasObject(ctx context.Context, name, version string) (bool, error) {
	return s.store.Exists(ctx, s3.MetadataKey(name, version))
}

func (s *Store) SaveRegistryMetadata(ctx context.Context, meta storage.RegistryMetadata) error {
	data, err := marshalRegistryMeta(meta)
	if err != nil {
		return err
	}
	return s.store.PutObject(ctx, s3.RegistryMetaKey, bytes.NewReader(data), int64(len(data)))
}

func (s *Store) FetchRegistryMetadata(ctx context.Context) (storage.RegistryMetadata, error) {
	data, err := s.store.GetObjectBytes(ctx, s3.RegistryMetaKey)
	if err != nil {
		if errors.Is(err, s3.ErrNotExist) {
			return storage.RegistryMetadata{Materializers: map[string]string{}}, nil
		}
		return storage.RegistryMetadata{}, err
	}
	return unmarshalRegistryMeta(data)
}

// writePlan persists a commit plan before any risky step.
func (s *Store) writePlan(ctx context.Context, requestID string, plan storage.CommitPlan) error {
	data, err := plan.Marshal()
	if err != nil {
		return err
	}
	if err := s.store.PutObject(ctx, s3.StagingKey(requestID), bytes.NewReader(data), int64(len(data))); err != nil {
		return fmt.Errorf("write commit plan: %w", err)
	}
	return nil
}

func (s *Store) deletePlan(ctx context.Context, requestID string) error {
	return s.store.DeleteObject(ctx, s3.StagingKey(requestID))
}

// deleteFolder removes every key of a UUID folder. Best effort: the first
// error is returned but deletion of the remaining keys is still attempted.
func (s *Store) deleteFolder(ctx context.Context, uuid string, concurrency int) error {
	keys, err := s.store.ListObjects(ctx, s3.ObjectFolderPrefix(uuid), 0)
	if err != nil {
		return fmt.Errorf("list folder %s: %w", uuid, err)
	}
	errs := forEachKey(ctx, keys, concurrency, func(ctx context.Context, key string) error {
		return s.store.DeleteObject(ctx, key)
	})
	for _, e := range errs {
		if e != nil {
			return e
		}
	}
	return nil
}
