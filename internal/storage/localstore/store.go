// Package localstore implements the storage backend contract over a plain
// directory tree. It is the legacy path: writes to one object are serialized
// by a named lease lock instead of the conditional-write arbitration the
// MVCC backend uses. The on-disk layout mirrors the bucket layout, so a
// registry root is portable between the two.
package localstore

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"VelRegistry/internal/lock"
	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"
)

type Store struct {
	root     string
	lockOpts lock.Options
}

type Options struct {
	Root string
	Lock lock.Options
}

func New(opts Options) (*Store, error) {
	if opts.Root == "" {
		return nil, fmt.Errorf("localstore: root is required")
	}
	if err := os.MkdirAll(opts.Root, 0755); err != nil {
		return nil, fmt.Errorf("create root %s: %w", opts.Root, err)
	}
	return &Store{root: opts.Root, lockOpts: opts.Lock}, nil
}

var _ storage.Backend = (*Store)(nil)

func (s *Store) metaPath(ref storage.ObjectRef) string {
	return filepath.Join(s.root, s3.MetadataKey(ref.Name, ref.Version))
}

func (s *Store) folderPath(folderUUID string) string {
	return filepath.Join(s.root, s3.ObjectsPrefix, folderUUID)
}

func (s *Store) lockerFor(ref storage.ObjectRef) (*lock.LocalLocker, error) {
	return lock.NewLocal(lock.LocalOptions{
		Dir:     filepath.Join(s.root, s3.LocksPrefix),
		Key:     ref.String(),
		Options: s.lockOpts,
	})
}

func (s *Store) readMeta(ref storage.ObjectRef) (*storage.ObjectMetadata, error) {
	data, err := os.ReadFile(s.metaPath(ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, ref)
		}
		return nil, err
	}
	return storage.UnmarshalMetadata(data)
}

// writeMeta writes metadata atomically via temp-then-rename.
func (s *Store) writeMeta(ref storage.ObjectRef, meta *storage.ObjectMetadata) error {
	data, err := meta.Marshal()
	if err != nil {
		return err
	}
	path := s.metaPath(ref)
	tmp := path + ".tmp-" + uuid.NewString()
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("commit metadata: %w", err)
	}
	return nil
}

func (s *Store) Push(ctx context.Context, reqs []storage.PushRequest, opts storage.PushOptions) (storage.OpResults, error) {
	policy := opts.OnConflict
	if policy == "" {
		policy = storage.PolicySkip
	}
	if policy != storage.PolicySkip && policy != storage.PolicyOverwrite {
		return nil, fmt.Errorf("invalid conflict policy %q", policy)
	}
	results := storage.OpResults{}
	for _, req := range reqs {
		results.Put(s.pushOne(ctx, req, policy))
	}
	return results, nil
}

func (s *Store) pushOne(ctx context.Context, req storage.PushRequest, policy storage.ConflictPolicy) storage.OpResult {
	ref := req.Ref()
	if err := storage.ValidateName(req.Name); err != nil {
		return storage.Failed(ref, err)
	}
	if err := storage.ValidateVersionToken(req.Version); err != nil {
		return storage.Failed(ref, err)
	}
	locker, err := s.lockerFor(ref)
	if err != nil {
		return storage.Failed(ref, err)
	}

	var result storage.OpResult
	err = lock.WithLock(ctx, locker, func(ctx context.Context) error {
		result = s.pushLocked(ctx, req, policy)
		return nil
	})
	if err != nil {
		return storage.Failed(ref, err)
	}
	return result
}

func (s *Store) pushLocked(ctx context.Context, req storage.PushRequest, policy storage.ConflictPolicy) storage.OpResult {
	ref := req.Ref()

	oldUUID := ""
	existing, err := s.readMeta(ref)
	switch {
	case err == nil:
		if policy == storage.PolicySkip {
			return storage.Skipped(ref)
		}
		oldUUID = existing.Storage.UUID
	case errors.Is(err, storage.ErrNotFound):
	case errors.Is(err, storage.ErrMetadataCorrupt):
		if policy == storage.PolicySkip {
			return storage.Skipped(ref)
		}
	default:
		return storage.Failed(ref, err)
	}

	newUUID := uuid.NewString()
	folder := s.folderPath(newUUID)
	relPaths, checksums, err := copyTree(req.SourcePath, folder)
	if err != nil {
		_ = os.RemoveAll(folder)
		return storage.Failed(ref, err)
	}
	if len(relPaths) == 0 {
		_ = os.RemoveAll(folder)
		return storage.Failed(ref, fmt.Errorf("source %s contains no files", req.SourcePath))
	}

	meta := storage.ObjectMetadata{
		Class:    req.Class,
		Path:     "file://" + folder,
		Files:    relPaths,
		Metadata: req.Metadata,
		Storage: storage.StorageInfo{
			UUID:      newUUID,
			CreatedAt: time.Now().UTC(),
			Checksums: checksums,
		},
	}
	if err := s.writeMeta(ref, &meta); err != nil {
		_ = os.RemoveAll(folder)
		return storage.Failed(ref, err)
	}

	if oldUUID != "" {
		_ = os.RemoveAll(s.folderPath(oldUUID))
		return storage.Overwritten(ref, &meta)
	}
	return storage.Success(ref, &meta)
}

func (s *Store) Pull(ctx context.Context, reqs []storage.PullRequest, opts storage.PullOptions) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, req := range reqs {
		results.Put(s.pullOne(req))
	}
	return results, nil
}

func (s *Store) pullOne(req storage.PullRequest) storage.OpResult {
	ref := req.Ref()
	meta := req.Metadata
	if meta == nil {
		read, err := s.readMeta(ref)
		if err != nil {
			return storage.Failed(ref, err)
		}
		meta = read
	}
	if err := meta.Validate(); err != nil {
		return storage.Failed(ref, err)
	}
	folder := s.folderPath(meta.Storage.UUID)

	files := meta.Files
	if len(files) == 0 {
		listed, err := listTree(folder)
		if err != nil {
			return storage.Failed(ref, err)
		}
		files = listed
	}
	for _, rel := range files {
		if err := storage.ValidateRelPath(rel); err != nil {
			return storage.Failed(ref, err)
		}
		src := filepath.Join(folder, filepath.FromSlash(rel))
		dst := filepath.Join(req.DestPath, filepath.FromSlash(rel))
		if err := copyFile(src, dst); err != nil {
			if os.IsNotExist(err) {
				return storage.Failed(ref, fmt.Errorf("%w: file %s", storage.ErrNotFound, rel))
			}
			return storage.Failed(ref, err)
		}
		if want := meta.Storage.Checksums[rel]; want != "" {
			got, err := hashFile(dst)
			if err != nil {
				return storage.Failed(ref, err)
			}
			if got != want {
				return storage.Failed(ref, fmt.Errorf("checksum mismatch for %s", rel))
			}
		}
	}
	return storage.Success(ref, meta)
}

func (s *Store) Delete(ctx context.Context, refs []storage.ObjectRef) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, ref := range refs {
		results.Put(s.deleteOne(ctx, ref))
	}
	return results, nil
}

func (s *Store) deleteOne(ctx context.Context, ref storage.ObjectRef) storage.OpResult {
	locker, err := s.lockerFor(ref)
	if err != nil {
		return storage.Failed(ref, err)
	}
	var result storage.OpResult
	err = lock.WithLock(ctx, locker, func(ctx context.Context) error {
		meta, err := s.readMeta(ref)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				result = storage.Success(ref, nil)
				return nil
			}
			if !errors.Is(err, storage.ErrMetadataCorrupt) {
				result = storage.Failed(ref, err)
				return nil
			}
			meta = nil
		}
		// Metadata first: the object disappears before its bytes do.
		if err := os.Remove(s.metaPath(ref)); err != nil && !os.IsNotExist(err) {
			result = storage.Failed(ref, err)
			return nil
		}
		if meta != nil && meta.Storage.UUID != "" {
			_ = os.RemoveAll(s.folderPath(meta.Storage.UUID))
		}
		result = storage.Success(ref, nil)
		return nil
	})
	if err != nil {
		return storage.Failed(ref, err)
	}
	return result
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
	if !ifAbsent {
		if err := s.writeMeta(entry.Ref, &meta); err != nil {
			return storage.Failed(entry.Ref, err)
		}
		return storage.Success(entry.Ref, &meta)
	}

	// Absence check and write under the object's lock stand in for the
	// bucket's conditional-write primitive.
	locker, err := s.lockerFor(entry.Ref)
	if err != nil {
		return storage.Failed(entry.Ref, err)
	}
	var result storage.OpResult
	err = lock.WithLock(ctx, locker, func(ctx context.Context) error {
		if _, statErr := os.Stat(s.metaPath(entry.Ref)); statErr == nil {
			result = storage.Skipped(entry.Ref)
			return nil
		}
		if err := s.writeMeta(entry.Ref, &meta); err != nil {
			result = storage.Failed(entry.Ref, err)
			return nil
		}
		result = storage.Success(entry.Ref, &meta)
		return nil
	})
	if err != nil {
		return storage.Failed(entry.Ref, err)
	}
	return result
}

func (s *Store) FetchMetadata(ctx context.Context, refs []storage.ObjectRef) (storage.OpResults, error) {
	results := storage.OpResults{}
	for _, ref := range refs {
		meta, err := s.readMeta(ref)
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
		if err := os.Remove(s.metaPath(ref)); err != nil && !os.IsNotExist(err) {
			results.Put(storage.Failed(ref, err))
			continue
		}
		results.Put(storage.Success(ref, nil))
	}
	return results, nil
}

func (s *Store) ListObjects(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var names []string
	for _, e := range entries {
		name, _, ok := s3.ParseMetadataKey(e.Name())
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
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, err
	}
	var versions []string
	for _, e := range entries {
		entryName, version, ok := s3.ParseMetadataKey(e.Name())
		if !ok || entryName != name {
			continue
		}
		versions = append(versions, version)
	}
	return versions, nil
}

func (s *Store) HasObject(ctx context.Context, name, version string) (bool, error) {
	_, err := os.Stat(s.metaPath(storage.ObjectRef{Name: name, Version: version}))
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) SaveRegistryMetadata(ctx context.Context, meta storage.RegistryMetadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal registry metadata: %w", err)
	}
	return os.WriteFile(filepath.Join(s.root, s3.RegistryMetaKey), data, 0644)
}

func (s *Store) FetchRegistryMetadata(ctx context.Context) (storage.RegistryMetadata, error) {
	data, err := os.ReadFile(filepath.Join(s.root, s3.RegistryMetaKey))
	if err != nil {
		if os.IsNotExist(err) {
			return storage.RegistryMetadata{Materializers: map[string]string{}}, nil
		}
		return storage.RegistryMetadata{}, err
	}
	var meta storage.RegistryMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return storage.RegistryMetadata{}, fmt.Errorf("unmarshal registry metadata: %w", err)
	}
	if meta.Materializers == nil {
		meta.Materializers = map[string]string{}
	}
	return meta, nil
}

// copyTree copies a file or directory into dst, returning the slash-relative
// file list and per-file blake3 checksums.
func copyTree(src, dst string) ([]string, map[string]string, error) {
	info, err := os.Stat(src)
	if err != nil {
		return nil, nil, fmt.Errorf("stat source %s: %w", src, err)
	}
	var relPaths []string
	checksums := make(map[string]string)

	copyOne := func(rel, from string) error {
		to := filepath.Join(dst, filepath.FromSlash(rel))
		if err := copyFile(from, to); err != nil {
			return err
		}
		sum, err := hashFile(to)
		if err != nil {
			return err
		}
		relPaths = append(relPaths, rel)
		checksums[rel] = sum
		return nil
	}

	if !info.IsDir() {
		if err := copyOne(filepath.Base(src), src); err != nil {
			return nil, nil, err
		}
		return relPaths, checksums, nil
	}
	err = filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		return copyOne(filepath.ToSlash(rel), path)
	})
	if err != nil {
		return nil, nil, fmt.Errorf("copy tree %s: %w", src, err)
	}
	return relPaths, checksums, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}

func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

func listTree(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: folder %s", storage.ErrNotFound, filepath.Base(root))
		}
		return nil, err
	}
	if len(files) == 0 {
		return nil, fmt.Errorf("%w: folder %s is empty", storage.ErrNotFound, filepath.Base(root))
	}
	return files, nil
}
