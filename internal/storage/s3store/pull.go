package s3store

import (
	"context"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"
)

// Pull fetches the files of each requested object into its destination path.
// All files across all requested objects go through one bounded batch for
// throughput; a failed file is attributed back to its owning object.
func (s *Store) Pull(ctx context.Context, reqs []storage.PullRequest, opts storage.PullOptions) (storage.OpResults, error) {
	results := storage.OpResults{}
	metaByRef := make(map[storage.ObjectRef]*storage.ObjectMetadata)
	var downloads []download

	for _, req := range reqs {
		ref := req.Ref()
		meta := req.Metadata
		if meta == nil {
			fetched, err := s.fetchMeta(ctx, ref)
			if err != nil {
				results.Put(storage.Failed(ref, err))
				continue
			}
			meta = fetched
		}
		if err := meta.Validate(); err != nil {
			results.Put(storage.Failed(ref, err))
			continue
		}

		files := meta.Files
		if len(files) == 0 {
			// Metadata without a file list forces a prefix listing. Slower,
			// and kept only for objects written by older clients.
			listed, err := s.listFolderFiles(ctx, meta.Storage.UUID)
			if err != nil {
				results.Put(storage.Failed(ref, err))
				continue
			}
			files = listed
		}
		if len(files) == 0 {
			results.Put(storage.Failed(ref, fmt.Errorf("%w: folder %s has no files", storage.ErrNotFound, meta.Storage.UUID)))
			continue
		}

		badPath := false
		for _, rel := range files {
			if err := storage.ValidateRelPath(rel); err != nil {
				results.Put(storage.Failed(ref, err))
				badPath = true
				break
			}
		}
		if badPath {
			continue
		}

		metaByRef[ref] = meta
		for _, rel := range files {
			downloads = append(downloads, download{
				ref:      ref,
				key:      s3.ObjectFileKey(meta.Storage.UUID, rel),
				local:    filepath.Join(req.DestPath, filepath.FromSlash(rel)),
				checksum: meta.Storage.Checksums[rel],
			})
		}
	}

	failedByRef := s.downloadAll(ctx, downloads, opts.Concurrency)
	for ref, meta := range metaByRef {
		if err, failed := failedByRef[ref]; failed {
			results.Put(storage.Failed(ref, err))
			continue
		}
		results.Put(storage.Success(ref, meta))
	}
	return results, nil
}

// listFolderFiles returns the file paths of a UUID folder relative to it.
func (s *Store) listFolderFiles(ctx context.Context, uuid string) ([]string, error) {
	prefix := s3.ObjectFolderPrefix(uuid)
	keys, err := s.store.ListObjects(ctx, prefix, 0)
	if err != nil {
		return nil, fmt.Errorf("list folder %s: %w", uuid, err)
	}
	var files []string
	for _, key := range keys {
		rel := strings.TrimPrefix(key, strings.TrimSuffix(prefix, "/")+"/")
		if rel == "" || rel == key {
			keyUUID, keyRel := s3.ParseObjectFileKey(key)
			if keyUUID != uuid {
				continue
			}
			rel = keyRel
		}
		files = append(files, path.Clean(rel))
	}
	return files, nil
}
