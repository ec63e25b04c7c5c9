package s3store

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *fakeStore) {
	t.Helper()
	fake := newFakeStore()
	store, err := New(Options{Store: fake, PlanTTL: time.Minute})
	require.NoError(t, err)
	return store, fake
}

// writeSource lays out a source directory with the given file contents.
func writeSource(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0644))
	}
	return dir
}

func pushOneObject(t *testing.T, store *Store, name, version, sourceDir string, policy storage.ConflictPolicy) storage.OpResult {
	t.Helper()
	results, err := store.Push(context.Background(), []storage.PushRequest{{
		Name:       name,
		Version:    version,
		SourcePath: sourceDir,
		Class:      "test.Blob",
	}}, storage.PushOptions{OnConflict: policy})
	require.NoError(t, err)
	result, ok := results.Get(storage.ObjectRef{Name: name, Version: version})
	require.True(t, ok)
	return result
}

func TestPush_RoundTrip(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, map[string]string{
		"model.bin":     "weights",
		"sub/extra.txt": "extra",
	})

	result := pushOneObject(t, store, "team:model", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, result.Status)
	require.NotNil(t, result.Metadata)
	assert.Equal(t, "test.Blob", result.Metadata.Class)
	assert.Len(t, result.Metadata.Files, 2)
	assert.NotEmpty(t, result.Metadata.Storage.UUID)
	assert.Len(t, result.Metadata.Storage.Checksums, 2)

	dest := t.TempDir()
	pullResults, err := store.Pull(ctx, []storage.PullRequest{{
		Name: "team:model", Version: "1", DestPath: dest,
	}}, storage.PullOptions{})
	require.NoError(t, err)
	pulled, ok := pullResults.Get(storage.ObjectRef{Name: "team:model", Version: "1"})
	require.True(t, ok)
	require.Equal(t, storage.StatusSuccess, pulled.Status, pulled.Err)

	data, err := os.ReadFile(filepath.Join(dest, "model.bin"))
	require.NoError(t, err)
	assert.Equal(t, "weights", string(data))
	data, err = os.ReadFile(filepath.Join(dest, "sub", "extra.txt"))
	require.NoError(t, err)
	assert.Equal(t, "extra", string(data))
}

func TestPush_SkipExisting(t *testing.T) {
	store, fake := newTestStore(t)
	src := writeSource(t, map[string]string{"a.bin": "first"})

	result := pushOneObject(t, store, "m", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, result.Status)

	putsBefore := fake.putCount
	src2 := writeSource(t, map[string]string{"a.bin": "second"})
	result = pushOneObject(t, store, "m", "1", src2, storage.PolicySkip)
	assert.Equal(t, storage.StatusSkipped, result.Status)
	// The loser saw the existing metadata and never attempted an upload.
	assert.Equal(t, putsBefore, fake.putCount)
}

func TestPush_Overwrite(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, map[string]string{"a.bin": "first"})

	first := pushOneObject(t, store, "m", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, first.Status)
	oldUUID := first.Metadata.Storage.UUID

	src2 := writeSource(t, map[string]string{"a.bin": "second"})
	second := pushOneObject(t, store, "m", "1", src2, storage.PolicyOverwrite)
	require.Equal(t, storage.StatusOverwritten, second.Status)
	require.NotEqual(t, oldUUID, second.Metadata.Storage.UUID)

	// The superseded folder is reclaimed only after the new commit.
	assert.Empty(t, fake.keysWithPrefix(s3.ObjectFolderPrefix(oldUUID)))
	assert.Empty(t, fake.keysWithPrefix(s3.StagingPrefix))

	dest := t.TempDir()
	pullResults, err := store.Pull(ctx, []storage.PullRequest{{Name: "m", Version: "1", DestPath: dest}}, storage.PullOptions{})
	require.NoError(t, err)
	pulled, _ := pullResults.Get(storage.ObjectRef{Name: "m", Version: "1"})
	require.Equal(t, storage.StatusSuccess, pulled.Status, pulled.Err)
	data, err := os.ReadFile(filepath.Join(dest, "a.bin"))
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))
}

func TestPush_ConcurrentSkip_OneWinner(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()
	const writers = 8

	sources := make([]string, writers)
	for i := range sources {
		sources[i] = writeSource(t, map[string]string{"payload.bin": fmt.Sprintf("payload-%d", i)})
	}

	results := make([]storage.OpResult, writers)
	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			rs, err := store.Push(ctx, []storage.PushRequest{{
				Name: "race:obj", Version: "1", SourcePath: sources[i], Class: "test.Blob",
			}}, storage.PushOptions{OnConflict: storage.PolicySkip})
			if err != nil {
				t.Error(err)
				return
			}
			results[i], _ = rs.Get(storage.ObjectRef{Name: "race:obj", Version: "1"})
		}()
	}
	wg.Wait()

	winner := -1
	for i, r := range results {
		switch r.Status {
		case storage.StatusSuccess:
			require.Equal(t, -1, winner, "more than one winner")
			winner = i
		case storage.StatusSkipped:
		default:
			t.Fatalf("writer %d: status %s (%s)", i, r.Status, r.Err)
		}
	}
	require.NotEqual(t, -1, winner, "no writer won")

	// Final stored bytes equal exactly the winner's payload.
	dest := t.TempDir()
	pullResults, err := store.Pull(ctx, []storage.PullRequest{{Name: "race:obj", Version: "1", DestPath: dest}}, storage.PullOptions{})
	require.NoError(t, err)
	pulled, _ := pullResults.Get(storage.ObjectRef{Name: "race:obj", Version: "1"})
	require.Equal(t, storage.StatusSuccess, pulled.Status, pulled.Err)
	data, err := os.ReadFile(filepath.Join(dest, "payload.bin"))
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("payload-%d", winner), string(data))
}

func TestPush_ConcurrentOverwrite_FinalFolderComplete(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	const writers = 8

	var wg sync.WaitGroup
	for i := 0; i < writers; i++ {
		i := i
		wg.Add(1)
		go func() {
			defer wg.Done()
			src := writeSource(t, map[string]string{
				"a.bin": fmt.Sprintf("a-%d", i),
				"b.bin": fmt.Sprintf("b-%d", i),
			})
			_, err := store.Push(ctx, []storage.PushRequest{{
				Name: "ow:obj", Version: "1", SourcePath: src, Class: "test.Blob",
			}}, storage.PushOptions{OnConflict: storage.PolicyOverwrite})
			if err != nil {
				t.Error(err)
			}
		}()
	}
	wg.Wait()

	// Whatever the interleaving, the final metadata points at a folder
	// whose files are all present.
	data, err := fake.GetObjectBytes(ctx, s3.MetadataKey("ow:obj", "1"))
	require.NoError(t, err)
	meta, err := storage.UnmarshalMetadata(data)
	require.NoError(t, err)
	require.NotEmpty(t, meta.Storage.UUID)
	for _, rel := range meta.Files {
		ok, err := fake.Exists(ctx, s3.ObjectFileKey(meta.Storage.UUID, rel))
		require.NoError(t, err)
		assert.True(t, ok, "file %s of current folder missing", rel)
	}
}

func TestPush_ManyFilesParallelUpload(t *testing.T) {
	store, fake := newTestStore(t)
	const files = 64

	contents := make(map[string]string, files)
	for i := 0; i < files; i++ {
		contents[fmt.Sprintf("part-%02d.bin", i)] = fmt.Sprintf("chunk-%d", i)
	}
	src := writeSource(t, contents)

	results, err := store.Push(context.Background(), []storage.PushRequest{{
		Name: "big:obj", Version: "1", SourcePath: src, Class: "test.Blob",
	}}, storage.PushOptions{OnConflict: storage.PolicySkip, Concurrency: 8})
	require.NoError(t, err)
	result, ok := results.Get(storage.ObjectRef{Name: "big:obj", Version: "1"})
	require.True(t, ok)
	require.Equal(t, storage.StatusSuccess, result.Status, result.Err)

	// Every file got a checksum slot and every checksum matches its bytes.
	require.Len(t, result.Metadata.Storage.Checksums, files)
	for rel := range contents {
		want, err := hashFile(filepath.Join(src, rel))
		require.NoError(t, err)
		assert.Equal(t, want, result.Metadata.Storage.Checksums[rel], rel)
		exists, err := fake.Exists(context.Background(), s3.ObjectFileKey(result.Metadata.Storage.UUID, rel))
		require.NoError(t, err)
		assert.True(t, exists, rel)
	}
}

func TestPush_MidUploadFailure_RollsBack(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, map[string]string{
		"good.bin": "fine",
		"bad.bin":  "doomed",
	})
	fake.failPutSubstr = "bad.bin"

	result := pushOneObject(t, store, "m", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusFailed, result.Status)

	has, err := store.HasObject(ctx, "m", "1")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Empty(t, fake.keysWithPrefix(s3.ObjectsPrefix), "partial folder left behind")
	assert.Empty(t, fake.keysWithPrefix(s3.StagingPrefix), "commit plan left behind")
}

func TestPush_InvalidName(t *testing.T) {
	store, _ := newTestStore(t)
	src := writeSource(t, map[string]string{"a.bin": "x"})

	result := pushOneObject(t, store, "bad_name", "1", src, storage.PolicySkip)
	assert.Equal(t, storage.StatusFailed, result.Status)
	assert.Contains(t, result.Err, "underscore")
}

func TestPush_InvalidPolicy(t *testing.T) {
	store, _ := newTestStore(t)
	_, err := store.Push(context.Background(), nil, storage.PushOptions{OnConflict: "merge"})
	require.Error(t, err)
}
