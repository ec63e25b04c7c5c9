package s3store

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"VelRegistry/internal/s3"
)

// fakeStore is an in-memory ObjectStore with the same conditional-write
// semantics as the real bucket. Failure injection is keyed by substring so
// tests can break a single file of a multi-file upload.
type fakeStore struct {
	mu      sync.Mutex
	objects map[string][]byte

	failPutSubstr    string
	failDeleteSubstr string
	putCount         int
}

func newFakeStore() *fakeStore {
	return &fakeStore{objects: make(map[string][]byte)}
}

func (f *fakeStore) PutObject(ctx context.Context, key string, body io.Reader, contentLength int64) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPutSubstr != "" && strings.Contains(key, f.failPutSubstr) {
		return fmt.Errorf("injected put failure for %s", key)
	}
	f.putCount++
	f.objects[key] = data
	return nil
}

func (f *fakeStore) PutObjectIfAbsent(ctx context.Context, key string, body io.Reader, contentLength int64) (bool, error) {
	data, err := io.ReadAll(body)
	if err != nil {
		return false, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failPutSubstr != "" && strings.Contains(key, f.failPutSubstr) {
		return false, fmt.Errorf("injected put failure for %s", key)
	}
	if _, exists := f.objects[key]; exists {
		return false, nil
	}
	f.putCount++
	f.objects[key] = data
	return true, nil
}

func (f *fakeStore) GetObjectBytes(ctx context.Context, key string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", s3.ErrNotExist, key)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (f *fakeStore) DeleteObject(ctx context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failDeleteSubstr != "" && strings.Contains(key, f.failDeleteSubstr) {
		return fmt.Errorf("injected delete failure for %s", key)
	}
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) ListObjects(ctx context.Context, prefix string, maxKeys int32) ([]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var keys []string
	for key := range f.objects {
		if strings.HasPrefix(key, prefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	if maxKeys > 0 && int32(len(keys)) > maxKeys {
		keys = keys[:maxKeys]
	}
	return keys, nil
}

func (f *fakeStore) Exists(ctx context.Context, key string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.objects[key]
	return ok, nil
}

func (f *fakeStore) UploadFile(ctx context.Context, key, localPath string) error {
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	return f.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)))
}

func (f *fakeStore) DownloadFile(ctx context.Context, key, localPath string) error {
	data, err := f.GetObjectBytes(ctx, key)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(localPath), 0755); err != nil {
		return err
	}
	return os.WriteFile(localPath, data, 0644)
}

func (f *fakeStore) URI(relative string) string {
	return "mem://test-bucket/" + strings.Trim(relative, "/")
}

func (f *fakeStore) UploadFileBytes(ctx context.Context, key string, data []byte) error {
	return f.PutObject(ctx, key, bytes.NewReader(data), int64(len(data)))
}

func (f *fakeStore) keysWithPrefix(prefix string) []string {
	keys, _ := f.ListObjects(context.Background(), prefix, 0)
	return keys
}
