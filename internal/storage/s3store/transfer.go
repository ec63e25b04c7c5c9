package s3store

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"VelRegistry/internal/storage"

	"github.com/zeebo/blake3"
)

// forEachKey runs fn over keys with bounded concurrency and returns the
// per-key error slice, index-aligned with keys.
func forEachKey(ctx context.Context, keys []string, concurrency int, fn func(ctx context.Context, key string) error) []error {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	errs := make([]error, len(keys))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, key := range keys {
		i, key := i, key
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			errs[i] = fn(ctx, key)
		}()
	}
	wg.Wait()
	return errs
}

// collectFiles lists the files of a push source: a single file yields its
// base name, a directory yields every regular file with slash-separated
// paths relative to the directory.
func collectFiles(sourcePath string) (relPaths []string, absByRel map[string]string, err error) {
	info, err := os.Stat(sourcePath)
	if err != nil {
		return nil, nil, fmt.Errorf("stat source %s: %w", sourcePath, err)
	}
	absByRel = make(map[string]string)
	if !info.IsDir() {
		rel := filepath.Base(sourcePath)
		absByRel[rel] = sourcePath
		return []string{rel}, absByRel, nil
	}
	err = filepath.WalkDir(sourcePath, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(sourcePath, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		relPaths = append(relPaths, rel)
		absByRel[rel] = path
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("walk source %s: %w", sourcePath, err)
	}
	return relPaths, absByRel, nil
}

// hashFile computes the blake3 digest of a local file.
func hashFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()
	h := blake3.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// download is one remote-to-local file transfer, attributed to its owning
// object so a failed file never marks an unrelated object as failed.
type download struct {
	ref      storage.ObjectRef
	key      string
	local    string
	checksum string
}

// downloadAll runs every download of a pull batch through one bounded pool
// and returns the first error observed per owning ref.
func (s *Store) downloadAll(ctx context.Context, downloads []download, concurrency int) map[storage.ObjectRef]error {
	if concurrency <= 0 {
		concurrency = s.concurrency
	}
	errs := make([]error, len(downloads))
	sem := make(chan struct{}, concurrency)
	var wg sync.WaitGroup

	for i, d := range downloads {
		i, d := i, d
		wg.Add(1)
		go func() {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				errs[i] = ctx.Err()
				return
			}
			defer func() { <-sem }()
			errs[i] = s.downloadOne(ctx, d)
		}()
	}
	wg.Wait()

	perRef := make(map[storage.ObjectRef]error)
	for i, d := range downloads {
		if errs[i] != nil && perRef[d.ref] == nil {
			perRef[d.ref] = errs[i]
		}
	}
	return perRef
}

func (s *Store) downloadOne(ctx context.Context, d download) error {
	if err := s.store.DownloadFile(ctx, d.key, d.local); err != nil {
		return fmt.Errorf("download %s: %w", d.key, err)
	}
	if d.checksum == "" {
		return nil
	}
	got, err := hashFile(d.local)
	if err != nil {
		return err
	}
	if got != d.checksum {
		return fmt.Errorf("checksum mismatch for %s: got %s, want %s", d.key, got, d.checksum)
	}
	return nil
}

func marshalRegistryMeta(meta storage.RegistryMetadata) ([]byte, error) {
	data, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal registry metadata: %w", err)
	}
	return data, nil
}

func unmarshalRegistryMeta(data []byte) (storage.RegistryMetadata, error) {
	var meta storage.RegistryMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return storage.RegistryMetadata{}, fmt.Errorf("unmarshal registry metadata: %w", err)
	}
	if meta.Materializers == nil {
		meta.Materializers = map[string]string{}
	}
	return meta, nil
}
