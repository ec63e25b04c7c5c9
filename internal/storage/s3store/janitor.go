package s3store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"
)

// SweepResult summarizes one janitor pass.
type SweepResult struct {
	Scanned        int
	Expired        int
	FoldersDeleted int
	PlansDeleted   int
	Errors         []string
}

// Sweep reclaims storage left behind by incomplete or superseded operations.
// Only plans past their expiry are touched; before any folder is deleted the
// object's current metadata is re-read, because the owning operation may have
// completed and deleted its own plan too late for this pass to observe.
func (s *Store) Sweep(ctx context.Context, now time.Time) (SweepResult, error) {
	var result SweepResult

	planKeys, err := s.store.ListObjects(ctx, s3.StagingPrefix+"/", 0)
	if err != nil {
		return result, fmt.Errorf("list staging plans: %w", err)
	}

	for _, key := range planKeys {
		requestID, ok := s3.ParseStagingKey(key)
		if !ok {
			continue
		}
		result.Scanned++

		data, err := s.store.GetObjectBytes(ctx, key)
		if err != nil {
			if errors.Is(err, s3.ErrNotExist) {
				continue
			}
			result.Errors = append(result.Errors, fmt.Sprintf("read plan %s: %v", requestID, err))
			continue
		}
		plan, err := storage.UnmarshalCommitPlan(data)
		if err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("plan %s: %v", requestID, err))
			continue
		}
		if !plan.Expired(now) {
			continue
		}
		result.Expired++

		if err := s.recoverPlan(ctx, plan, &result); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("recover plan %s: %v", requestID, err))
			continue
		}
		if err := s.deletePlan(ctx, requestID); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("delete plan %s: %v", requestID, err))
			continue
		}
		result.PlansDeleted++
	}
	return result, nil
}

func (s *Store) recoverPlan(ctx context.Context, plan *storage.CommitPlan, result *SweepResult) error {
	currentUUID := ""
	meta, err := s.fetchMeta(ctx, storage.ObjectRef{Name: plan.Name, Version: plan.Version})
	switch {
	case err == nil:
		currentUUID = meta.Storage.UUID
	case errors.Is(err, storage.ErrNotFound), errors.Is(err, storage.ErrMetadataCorrupt):
	default:
		return err
	}

	switch plan.Operation {
	case storage.OpPush:
		if plan.UUID == currentUUID {
			// The push committed; the only possible leak is the superseded
			// folder whose reclaim failed after the commit.
			if plan.OldUUID != "" && plan.OldUUID != currentUUID {
				if err := s.deleteFolder(ctx, plan.OldUUID, s.concurrency); err != nil {
					return err
				}
				result.FoldersDeleted++
			}
			return nil
		}
		// The push never committed: remove the incomplete folder. The old
		// folder may still be current and is left untouched.
		if plan.UUID != "" {
			if err := s.deleteFolder(ctx, plan.UUID, s.concurrency); err != nil {
				return err
			}
			result.FoldersDeleted++
		}
		return nil

	case storage.OpDelete:
		if plan.UUID != "" && plan.UUID == currentUUID {
			// The delete never reached its commit point; the object is
			// still live and its folder must survive.
			return nil
		}
		if plan.UUID != "" {
			if err := s.deleteFolder(ctx, plan.UUID, s.concurrency); err != nil {
				return err
			}
			result.FoldersDeleted++
		}
		return nil

	default:
		return fmt.Errorf("unknown operation %q", plan.Operation)
	}
}
