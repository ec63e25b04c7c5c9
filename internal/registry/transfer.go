package registry

import (
	"context"
	"fmt"
	"os"

	"VelRegistry/internal/storage"
)

// TransferOptions controls a cross-registry copy.
type TransferOptions struct {
	// NewName renames the object at the destination.
	NewName string
	// NewVersion re-versions the copy; only valid for single-version
	// transfers.
	NewVersion string
	// AllVersions copies every committed version instead of one.
	AllVersions bool
}

// Transfer copies object bytes and metadata from src to dst without
// deserializing. A destination coordinate that already exists rejects the
// whole transfer before any copy starts.
func Transfer(ctx context.Context, src, dst *Registry, name, version string, opts TransferOptions) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	dstName := name
	if opts.NewName != "" {
		if err := storage.ValidateName(opts.NewName); err != nil {
			return err
		}
		dstName = opts.NewName
	}
	if opts.AllVersions && opts.NewVersion != "" {
		return fmt.Errorf("transfer: cannot re-version an all-versions copy")
	}

	type pair struct{ srcVersion, dstVersion string }
	var pairs []pair
	if opts.AllVersions {
		versions, err := src.ListVersions(ctx, name)
		if err != nil {
			return err
		}
		if len(versions) == 0 {
			return fmt.Errorf("%s: %w", name, storage.ErrNotFound)
		}
		for _, v := range versions {
			pairs = append(pairs, pair{srcVersion: v, dstVersion: v})
		}
	} else {
		resolved, err := src.resolveVersion(ctx, name, version)
		if err != nil {
			return err
		}
		dstVersion := resolved
		if opts.NewVersion != "" {
			dstVersion, err = storage.NormalizeVersion(opts.NewVersion)
			if err != nil {
				return err
			}
		}
		pairs = append(pairs, pair{srcVersion: resolved, dstVersion: dstVersion})
	}

	for _, p := range pairs {
		exists, err := dst.backend.HasObject(ctx, dstName, p.dstVersion)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("transfer %s@%s: destination exists: %w", dstName, p.dstVersion, storage.ErrVersionConflict)
		}
	}

	for _, p := range pairs {
		if err := transferOne(ctx, src, dst, name, dstName, p.srcVersion, p.dstVersion); err != nil {
			return err
		}
	}
	return nil
}

func transferOne(ctx context.Context, src, dst *Registry, srcName, dstName, srcVersion, dstVersion string) error {
	srcRef := storage.ObjectRef{Name: srcName, Version: srcVersion}
	meta, err := src.FetchMetadata(ctx, srcName, srcVersion)
	if err != nil {
		return err
	}

	stage, err := os.MkdirTemp(src.stageDir, "velreg-transfer-*")
	if err != nil {
		return fmt.Errorf("create stage dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(stage); rmErr != nil {
			src.logf("cleanup transfer stage %s: %v", stage, rmErr)
		}
	}()

	pulls, err := src.backend.Pull(ctx, []storage.PullRequest{{
		Name:     srcName,
		Version:  srcVersion,
		DestPath: stage,
		Metadata: meta,
	}}, storage.PullOptions{})
	if err != nil {
		return err
	}
	pres, _ := pulls.Get(srcRef)
	if pullErr := pres.AsError(); pullErr != nil {
		return fmt.Errorf("pull %s: %w", srcRef, pullErr)
	}

	dstRef := storage.ObjectRef{Name: dstName, Version: dstVersion}
	pushes, err := dst.backend.Push(ctx, []storage.PushRequest{{
		Name:       dstName,
		Version:    dstVersion,
		SourcePath: stage,
		Class:      meta.Class,
		Metadata:   meta.Metadata,
	}}, storage.PushOptions{OnConflict: storage.PolicySkip})
	if err != nil {
		return err
	}
	res, _ := pushes.Get(dstRef)
	if pushErr := res.AsError(); pushErr != nil {
		return fmt.Errorf("push %s: %w", dstRef, pushErr)
	}
	return nil
}

// Prune deletes all but the newest keep versions of name, returning the
// versions it removed in ascending order.
func (r *Registry) Prune(ctx context.Context, name string, keep int) ([]string, error) {
	if keep < 1 {
		return nil, fmt.Errorf("prune: keep must be at least 1, got %d", keep)
	}
	versions, err := r.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	if len(versions) <= keep {
		return nil, nil
	}
	victims := versions[:len(versions)-keep]
	for _, v := range victims {
		if err := r.deleteRef(ctx, storage.ObjectRef{Name: name, Version: v}); err != nil {
			return nil, err
		}
	}
	return victims, nil
}
