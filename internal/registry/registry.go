// Package registry is the front-end over any storage backend: name and
// version resolution, the temp-then-promote save protocol, materializer
// dispatch, a map-style API, cross-registry transfer and pruning.
package registry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"VelRegistry/internal/lock"
	"VelRegistry/internal/materializer"
	"VelRegistry/internal/storage"

	"github.com/google/uuid"
)

// tempVersionPrefix marks reserved in-flight version tokens. They never
// parse as versions, so listings and "latest" resolution ignore them.
const tempVersionPrefix = "tmp-"

// saveRetries bounds auto-version promotion attempts under contention.
const saveRetries = 5

type Registry struct {
	backend  storage.Backend
	mats     *materializer.Registry
	stageDir string
	locker   func(key string) (lock.Locker, error)
	logf     func(format string, args ...any)
}

type Options struct {
	Backend       storage.Backend
	Materializers *materializer.Registry

	// StageDir holds per-operation scratch directories. Defaults to the
	// system temp dir.
	StageDir string

	// NewLocker, when set, serializes writes per object name (legacy/local
	// path). The MVCC backend needs no locking and should leave this nil.
	NewLocker func(key string) (lock.Locker, error)

	// Logf receives non-fatal cleanup failures. Defaults to discarding.
	Logf func(format string, args ...any)
}

func New(opts Options) (*Registry, error) {
	if opts.Backend == nil {
		return nil, fmt.Errorf("registry: backend is required")
	}
	mats := opts.Materializers
	if mats == nil {
		mats = materializer.Default()
	}
	stageDir := opts.StageDir
	if stageDir == "" {
		stageDir = os.TempDir()
	}
	logf := opts.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Registry{
		backend:  opts.Backend,
		mats:     mats,
		stageDir: stageDir,
		locker:   opts.NewLocker,
		logf:     logf,
	}, nil
}

func (r *Registry) Backend() storage.Backend { return r.backend }

// Save stores obj under name at the successor of the current maximum
// version and returns the committed version string.
func (r *Registry) Save(ctx context.Context, name string, obj any) (string, error) {
	return r.save(ctx, name, "", obj)
}

// SaveVersion stores obj under an explicit version. Reusing a committed
// version fails with ErrVersionConflict.
func (r *Registry) SaveVersion(ctx context.Context, name, version string, obj any) (string, error) {
	if version == "" {
		return r.save(ctx, name, "", obj)
	}
	if version == storage.LatestAlias || strings.HasPrefix(version, tempVersionPrefix) {
		return "", fmt.Errorf("version %q is reserved", version)
	}
	normalized, err := storage.NormalizeVersion(version)
	if err != nil {
		return "", err
	}
	return r.save(ctx, name, normalized, obj)
}

func (r *Registry) save(ctx context.Context, name, version string, obj any) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	mat, err := r.mats.For(obj)
	if err != nil {
		return "", err
	}
	if r.locker == nil {
		return r.saveStaged(ctx, name, version, obj, mat)
	}
	l, err := r.locker(name)
	if err != nil {
		return "", err
	}
	var committed string
	err = lock.WithLock(ctx, l, func(ctx context.Context) error {
		committed, err = r.saveStaged(ctx, name, version, obj, mat)
		return err
	})
	return committed, err
}

// saveStaged materializes obj into a scratch directory, pushes it under a
// reserved temp version, then promotes by writing metadata at the final
// version pointing at the same folder. The final version is the only commit
// point; any failure before it leaves nothing visible.
func (r *Registry) saveStaged(ctx context.Context, name, version string, obj any, mat materializer.Materializer) (string, error) {
	stage, err := os.MkdirTemp(r.stageDir, "velreg-save-*")
	if err != nil {
		return "", fmt.Errorf("create stage dir: %w", err)
	}
	defer func() {
		if rmErr := os.RemoveAll(stage); rmErr != nil {
			r.logf("cleanup stage dir %s: %v", stage, rmErr)
		}
	}()

	_, extraMeta, err := mat.Save(obj, stage)
	if err != nil {
		return "", fmt.Errorf("materialize %s: %w", name, err)
	}

	class := materializer.ClassName(obj)
	tempVersion := tempVersionPrefix + uuid.NewString()
	tempRef := storage.ObjectRef{Name: name, Version: tempVersion}

	results, err := r.backend.Push(ctx, []storage.PushRequest{{
		Name:       name,
		Version:    tempVersion,
		SourcePath: stage,
		Class:      class,
		Metadata:   extraMeta,
	}}, storage.PushOptions{OnConflict: storage.PolicySkip})
	if err != nil {
		return "", err
	}
	pushed, _ := results.Get(tempRef)
	if pushErr := pushed.AsError(); pushErr != nil {
		return "", fmt.Errorf("stage %s: %w", name, pushErr)
	}

	committed, err := r.promote(ctx, name, version, *pushed.Metadata)
	if err != nil {
		// The folder was never committed; delete reclaims it with the
		// temp metadata.
		if _, delErr := r.backend.Delete(ctx, []storage.ObjectRef{tempRef}); delErr != nil {
			r.logf("cleanup temp version %s: %v", tempRef, delErr)
		}
		return "", err
	}

	// The folder now belongs to the final version; drop only the temp
	// metadata pointer.
	if dres, delErr := r.backend.DeleteMetadata(ctx, []storage.ObjectRef{tempRef}); delErr != nil {
		r.logf("cleanup temp metadata %s: %v", tempRef, delErr)
	} else if res, ok := dres.Get(tempRef); ok && res.Failed() {
		r.logf("cleanup temp metadata %s: %s", tempRef, res.Err)
	}

	r.recordMaterializer(ctx, class, mat.Name())
	return committed, nil
}

// promote writes the final metadata if-absent. With no explicit version it
// recomputes the successor and retries on a lost race.
func (r *Registry) promote(ctx context.Context, name, version string, meta storage.ObjectMetadata) (string, error) {
	auto := version == ""
	attempts := 1
	if auto {
		attempts = saveRetries
	}
	for i := 0; i < attempts; i++ {
		target := version
		if auto {
			versions, err := r.backend.ListVersions(ctx, name)
			if err != nil {
				return "", fmt.Errorf("list versions of %s: %w", name, err)
			}
			target = storage.NextVersion(versions)
		}
		ref := storage.ObjectRef{Name: name, Version: target}
		results, err := r.backend.SaveMetadata(ctx, []storage.MetadataEntry{{Ref: ref, Meta: meta}}, storage.SaveMetadataOptions{IfAbsent: true})
		if err != nil {
			return "", err
		}
		res, _ := results.Get(ref)
		switch res.Status {
		case storage.StatusSuccess:
			return target, nil
		case storage.StatusSkipped:
			if !auto {
				return "", fmt.Errorf("%s: %w", ref, storage.ErrVersionConflict)
			}
			// Another writer took this version; recompute and retry.
		default:
			return "", fmt.Errorf("commit %s: %w", ref, res.AsError())
		}
	}
	return "", fmt.Errorf("save %s: %w after %d attempts", name, storage.ErrVersionConflict, saveRetries)
}

// recordMaterializer keeps the registry-level class to materializer mapping
// current so readers can resolve interface-matched classes. Best effort.
func (r *Registry) recordMaterializer(ctx context.Context, class, matName string) {
	meta, err := r.backend.FetchRegistryMetadata(ctx)
	if err != nil {
		r.logf("fetch registry metadata: %v", err)
		return
	}
	if meta.Materializers == nil {
		meta.Materializers = map[string]string{}
	}
	if meta.Materializers[class] == matName {
		return
	}
	meta.Materializers[class] = matName
	if err := r.backend.SaveRegistryMetadata(ctx, meta); err != nil {
		r.logf("save registry metadata: %v", err)
	}
}

// Load fetches and reconstructs the object at (name, version). Version ""
// or "latest" resolves to the maximum committed version. The returned files
// live under a scratch directory owned by the caller: materializers that
// yield paths (Dir) point into it.
func (r *Registry) Load(ctx context.Context, name, version string) (any, error) {
	ref, meta, err := r.resolveMetadata(ctx, name, version)
	if err != nil {
		return nil, err
	}
	if err := meta.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", ref, err)
	}
	mat, err := r.materializerFor(ctx, meta.Class)
	if err != nil {
		return nil, err
	}

	stage, err := os.MkdirTemp(r.stageDir, "velreg-load-*")
	if err != nil {
		return nil, fmt.Errorf("create stage dir: %w", err)
	}
	results, err := r.backend.Pull(ctx, []storage.PullRequest{{
		Name:     ref.Name,
		Version:  ref.Version,
		DestPath: stage,
		Metadata: meta,
	}}, storage.PullOptions{})
	if err != nil {
		return nil, err
	}
	res, _ := results.Get(ref)
	if pullErr := res.AsError(); pullErr != nil {
		_ = os.RemoveAll(stage)
		return nil, fmt.Errorf("pull %s: %w", ref, pullErr)
	}
	obj, err := mat.Load(stage, meta.Files, meta.Metadata)
	if err != nil {
		_ = os.RemoveAll(stage)
		return nil, fmt.Errorf("load %s: %w", ref, err)
	}
	return obj, nil
}

// materializerFor resolves by class, consulting registry-level metadata for
// classes that matched an interface registration at save time.
func (r *Registry) materializerFor(ctx context.Context, class string) (materializer.Materializer, error) {
	mat, err := r.mats.ForClass(class)
	if err == nil {
		return mat, nil
	}
	regMeta, fetchErr := r.backend.FetchRegistryMetadata(ctx)
	if fetchErr != nil {
		return nil, err
	}
	if matName, ok := regMeta.Materializers[class]; ok {
		return r.mats.ByName(matName)
	}
	return nil, err
}

// Delete removes one version of name; "" or "latest" resolves first.
// Deleting an absent object succeeds.
func (r *Registry) Delete(ctx context.Context, name, version string) error {
	if err := storage.ValidateName(name); err != nil {
		return err
	}
	resolved, err := r.resolveVersion(ctx, name, version)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil
		}
		return err
	}
	return r.deleteRef(ctx, storage.ObjectRef{Name: name, Version: resolved})
}

// DeleteAll removes every version of name.
func (r *Registry) DeleteAll(ctx context.Context, name string) error {
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return err
	}
	for _, v := range versions {
		if err := r.deleteRef(ctx, storage.ObjectRef{Name: name, Version: v}); err != nil {
			return err
		}
	}
	return nil
}

func (r *Registry) deleteRef(ctx context.Context, ref storage.ObjectRef) error {
	if r.locker != nil {
		l, err := r.locker(ref.Name)
		if err != nil {
			return err
		}
		return lock.WithLock(ctx, l, func(ctx context.Context) error {
			return r.deleteBackend(ctx, ref)
		})
	}
	return r.deleteBackend(ctx, ref)
}

func (r *Registry) deleteBackend(ctx context.Context, ref storage.ObjectRef) error {
	results, err := r.backend.Delete(ctx, []storage.ObjectRef{ref})
	if err != nil {
		return err
	}
	res, _ := results.Get(ref)
	if delErr := res.AsError(); delErr != nil {
		return fmt.Errorf("delete %s: %w", ref, delErr)
	}
	return nil
}

// Has reports whether (name, version) is committed; "" or "latest" checks
// for any version.
func (r *Registry) Has(ctx context.Context, name, version string) (bool, error) {
	resolved, err := r.resolveVersion(ctx, name, version)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return r.backend.HasObject(ctx, name, resolved)
}

// ListNames returns every committed object name.
func (r *Registry) ListNames(ctx context.Context) ([]string, error) {
	return r.backend.ListObjects(ctx)
}

// ListVersions returns the committed versions of name in ascending order.
// Reserved temp markers are excluded.
func (r *Registry) ListVersions(ctx context.Context, name string) ([]string, error) {
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return nil, err
	}
	return storage.SortVersions(versions), nil
}

// LatestVersion resolves the maximum committed version of name.
func (r *Registry) LatestVersion(ctx context.Context, name string) (string, error) {
	versions, err := r.backend.ListVersions(ctx, name)
	if err != nil {
		return "", err
	}
	max, ok := storage.MaxVersion(versions)
	if !ok {
		return "", fmt.Errorf("%s: %w", name, storage.ErrNotFound)
	}
	return max, nil
}

// FetchMetadata returns the stored metadata for (name, version).
func (r *Registry) FetchMetadata(ctx context.Context, name, version string) (*storage.ObjectMetadata, error) {
	_, meta, err := r.resolveMetadata(ctx, name, version)
	return meta, err
}

func (r *Registry) resolveMetadata(ctx context.Context, name, version string) (storage.ObjectRef, *storage.ObjectMetadata, error) {
	resolved, err := r.resolveVersion(ctx, name, version)
	if err != nil {
		return storage.ObjectRef{}, nil, err
	}
	ref := storage.ObjectRef{Name: name, Version: resolved}
	results, err := r.backend.FetchMetadata(ctx, []storage.ObjectRef{ref})
	if err != nil {
		return ref, nil, err
	}
	res, _ := results.Get(ref)
	if fetchErr := res.AsError(); fetchErr != nil {
		if errors.Is(fetchErr, storage.ErrMetadataCorrupt) {
			return ref, nil, fmt.Errorf("%s: %w", ref, storage.ErrMetadataCorrupt)
		}
		// Every other failure to produce metadata means the object is not
		// addressable at this coordinate.
		return ref, nil, fmt.Errorf("%s: %w", ref, storage.ErrNotFound)
	}
	return ref, res.Metadata, nil
}

// resolveVersion maps "" and "latest" to the current maximum and normalizes
// explicit versions. Unparseable explicit tokens pass through untouched so
// storage-level coordinates stay addressable.
func (r *Registry) resolveVersion(ctx context.Context, name, version string) (string, error) {
	if err := storage.ValidateName(name); err != nil {
		return "", err
	}
	if version == "" || version == storage.LatestAlias {
		return r.LatestVersion(ctx, name)
	}
	normalized, err := storage.NormalizeVersion(version)
	if err != nil {
		return version, nil
	}
	return normalized, nil
}
