package s3store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"

	"github.com/google/uuid"
)

// Push stores each requested object as a fresh UUID folder and commits it by
// writing its metadata object. Concurrent pushers never touch each other's
// bytes; only the metadata write is contended, arbitrated by the store's
// conditional-write primitive under the skip policy.
func (s *Store) Push(ctx context.Context, reqs []storage.PushRequest, opts storage.PushOptions) (storage.OpResults, error) {
	policy := opts.OnConflict
	if policy == "" {
		policy = storage.PolicySkip
	}
	if policy != storage.PolicySkip && policy != storage.PolicyOverwrite {
		return nil, fmt.Errorf("invalid conflict policy %q", policy)
	}
	concurrency := opts.Concurrency
	if concurrency <= 0 {
		concurrency = s.concurrency
	}
	results := storage.OpResults{}
	for _, req := range reqs {
		results.Put(s.pushOne(ctx, req, policy, concurrency))
	}
	return results, nil
}

func (s *Store) pushOne(ctx context.Context, req storage.PushRequest, policy storage.ConflictPolicy, concurrency int) storage.OpResult {
	ref := req.Ref()
	if err := storage.ValidateName(req.Name); err != nil {
		return storage.Failed(ref, err)
	}
	if err := storage.ValidateVersionToken(req.Version); err != nil {
		return storage.Failed(ref, err)
	}

	// Step 1: look at the current generation. Under skip an existing version
	// short-circuits before any upload; under overwrite its folder is
	// remembered for reclaim after the new commit.
	oldUUID := ""
	existing, err := s.fetchMeta(ctx, ref)
	switch {
	case err == nil:
		if policy == storage.PolicySkip {
			return storage.Skipped(ref)
		}
		oldUUID = existing.Storage.UUID
	case errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, storage.ErrMetadataCorrupt):
		// A corrupt current generation cannot be read back, but overwrite
		// may still replace it. Its folder cannot be identified for reclaim.
		if policy == storage.PolicySkip {
			return storage.Skipped(ref)
		}
	default:
		return storage.Failed(ref, err)
	}

	relPaths, absByRel, err := collectFiles(req.SourcePath)
	if err != nil {
		return storage.Failed(ref, err)
	}
	if len(relPaths) == 0 {
		return storage.Failed(ref, fmt.Errorf("source %s contains no files", req.SourcePath))
	}

	// Step 2: record intent before any remote write. A failure here aborts
	// with no side effects.
	requestID := uuid.NewString()
	newUUID := uuid.NewString()
	plan := storage.CommitPlan{
		Operation: storage.OpPush,
		Name:      req.Name,
		Version:   req.Version,
		UUID:      newUUID,
		OldUUID:   oldUUID,
		ExpiresAt: time.Now().Add(s.planTTL),
	}
	if err := s.writePlan(ctx, requestID, plan); err != nil {
		return storage.Failed(ref, err)
	}

	// Step 3: upload every file under the UUID-qualified prefix. The keys
	// cannot collide with any other writer's, so a failure only requires
	// rolling back this writer's own folder. Checksums land in a slice
	// index-aligned with relPaths; upload goroutines never share a slot.
	indexByRel := make(map[string]int, len(relPaths))
	for i, rel := range relPaths {
		indexByRel[rel] = i
	}
	sums := make([]string, len(relPaths))
	uploadErrs := forEachKey(ctx, relPaths, concurrency, func(ctx context.Context, rel string) error {
		local := absByRel[rel]
		sum, err := hashFile(local)
		if err != nil {
			return err
		}
		if err := s.store.UploadFile(ctx, s3.ObjectFileKey(newUUID, rel), local); err != nil {
			return fmt.Errorf("upload %s: %w", rel, err)
		}
		sums[indexByRel[rel]] = sum
		return nil
	})
	for _, e := range uploadErrs {
		if e != nil {
			s.rollbackPush(ctx, requestID, newUUID, concurrency)
			return storage.Failed(ref, e)
		}
	}
	checksums := make(map[string]string, len(relPaths))
	for i, rel := range relPaths {
		checksums[rel] = sums[i]
	}

	meta := storage.ObjectMetadata{
		Class:    req.Class,
		Path:     s.store.URI(s3.ObjectFolderPrefix(newUUID)),
		Files:    relPaths,
		Metadata: req.Metadata,
		Storage: storage.StorageInfo{
			UUID:      newUUID,
			CreatedAt: time.Now().UTC(),
			Checksums: checksums,
		},
	}

	// Step 4: the commit point. Skip uses write-if-absent so exactly one
	// concurrent pusher can win; the loser rolls back its own folder.
	entry := storage.MetadataEntry{Ref: ref, Meta: meta}
	saved := s.saveMetaOne(ctx, entry, policy == storage.PolicySkip)
	switch saved.Status {
	case storage.StatusFailed:
		s.rollbackPush(ctx, requestID, newUUID, concurrency)
		return storage.Failed(ref, errors.New(saved.Err))
	case storage.StatusSkipped:
		s.rollbackPush(ctx, requestID, newUUID, concurrency)
		return storage.Skipped(ref)
	}

	// Step 5: the new generation is visible. Reclaim the superseded folder;
	// if that cleanup fails the plan stays behind for the janitor.
	if oldUUID != "" {
		if err := s.deleteFolder(ctx, oldUUID, concurrency); err != nil {
			return storage.Overwritten(ref, &meta)
		}
		_ = s.deletePlan(ctx, requestID)
		return storage.Overwritten(ref, &meta)
	}
	_ = s.deletePlan(ctx, requestID)
	return storage.Success(ref, &meta)
}

// rollbackPush undoes an uncommitted push: the partial folder and the plan
// are removed best effort. Anything left behind is janitor-recoverable.
func (s *Store) rollbackPush(ctx context.Context, requestID, folderUUID string, concurrency int) {
	_ = s.deleteFolder(ctx, folderUUID, concurrency)
	_ = s.deletePlan(ctx, requestID)
}
