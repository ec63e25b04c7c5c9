package s3store

import (
	"context"
	"errors"
	"time"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"

	"github.com/google/uuid"
)

// Delete removes each object. Deleting an absent object succeeds without any
// I/O. The metadata delete is the commit point: after it, the object is
// invisible to new readers even if later cleanup crashes, which can only
// leak bytes for the janitor to reclaim, never resurrect stale data.
func (s *Store) Delete(ctx context.Context, refs []storage.ObjectRef) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, ref := range refs {
		results.Put(s.deleteOne(ctx, ref))
	}
	return results, nil
}

func (s *Store) deleteOne(ctx context.Context, ref storage.ObjectRef) storage.OpResult {
	meta, err := s.fetchMeta(ctx, ref)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return storage.Success(ref, nil)
		}
		if !errors.Is(err, storage.ErrMetadataCorrupt) {
			return storage.Failed(ref, err)
		}
		// Corrupt metadata still marks existence; fall through and remove
		// it without a folder to reclaim.
		meta = nil
	}

	folderUUID := ""
	if meta != nil {
		folderUUID = meta.Storage.UUID
	}

	requestID := uuid.NewString()
	if folderUUID != "" {
		plan := storage.CommitPlan{
			Operation: storage.OpDelete,
			Name:      ref.Name,
			Version:   ref.Version,
			UUID:      folderUUID,
			ExpiresAt: time.Now().Add(s.planTTL),
		}
		if err := s.writePlan(ctx, requestID, plan); err != nil {
			return storage.Failed(ref, err)
		}
	}

	// Commit point.
	if err := s.store.DeleteObject(ctx, s3.MetadataKey(ref.Name, ref.Version)); err != nil {
		if folderUUID != "" {
			_ = s.deletePlan(ctx, requestID)
		}
		return storage.Failed(ref, err)
	}

	if folderUUID != "" {
		if err := s.deleteFolder(ctx, folderUUID, s.concurrency); err != nil {
			// Leave the plan behind: the janitor reclaims the folder.
			return storage.Success(ref, nil)
		}
		_ = s.deletePlan(ctx, requestID)
	}
	return storage.Success(ref, nil)
}
