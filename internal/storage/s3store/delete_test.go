package s3store

import (
	"bytes"
	"context"
	"os"
	"testing"

	"VelRegistry/internal/s3"
	"VelRegistry/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDelete_Idempotent(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	puts := fake.putCount
	results, err := store.Delete(ctx, []storage.ObjectRef{{Name: "ghost", Version: "1"}})
	require.NoError(t, err)
	result, ok := results.Get(storage.ObjectRef{Name: "ghost", Version: "1"})
	require.True(t, ok)
	assert.Equal(t, storage.StatusSuccess, result.Status)
	// Absent object: immediate success, no I/O.
	assert.Equal(t, puts, fake.putCount)
}

func TestDelete_RemovesMetadataAndFolder(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, map[string]string{"a.bin": "x"})

	pushed := pushOneObject(t, store, "m", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, pushed.Status)
	folderUUID := pushed.Metadata.Storage.UUID

	results, err := store.Delete(ctx, []storage.ObjectRef{{Name: "m", Version: "1"}})
	require.NoError(t, err)
	result, _ := results.Get(storage.ObjectRef{Name: "m", Version: "1"})
	require.Equal(t, storage.StatusSuccess, result.Status, result.Err)

	has, err := store.HasObject(ctx, "m", "1")
	require.NoError(t, err)
	assert.False(t, has)
	assert.Empty(t, fake.keysWithPrefix(s3.ObjectFolderPrefix(folderUUID)))
	assert.Empty(t, fake.keysWithPrefix(s3.StagingPrefix))

	// Deleting again still succeeds.
	results, err = store.Delete(ctx, []storage.ObjectRef{{Name: "m", Version: "1"}})
	require.NoError(t, err)
	result, _ = results.Get(storage.ObjectRef{Name: "m", Version: "1"})
	assert.Equal(t, storage.StatusSuccess, result.Status)
}

func TestDelete_FolderCleanupFailureLeavesPlan(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, map[string]string{"a.bin": "x"})

	pushed := pushOneObject(t, store, "m", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, pushed.Status)

	// Folder deletes fail; metadata delete (the commit point) still works.
	fake.failDeleteSubstr = s3.ObjectsPrefix + "/"
	results, err := store.Delete(ctx, []storage.ObjectRef{{Name: "m", Version: "1"}})
	require.NoError(t, err)
	result, _ := results.Get(storage.ObjectRef{Name: "m", Version: "1"})
	require.Equal(t, storage.StatusSuccess, result.Status)

	// The object is gone for readers even though bytes leaked.
	has, err := store.HasObject(ctx, "m", "1")
	require.NoError(t, err)
	assert.False(t, has)
	// The plan stays behind for the janitor.
	assert.NotEmpty(t, fake.keysWithPrefix(s3.StagingPrefix))
}

func TestPull_MissingObject(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := context.Background()

	results, err := store.Pull(ctx, []storage.PullRequest{{Name: "nope", Version: "1", DestPath: t.TempDir()}}, storage.PullOptions{})
	require.NoError(t, err)
	result, ok := results.Get(storage.ObjectRef{Name: "nope", Version: "1"})
	require.True(t, ok)
	assert.Equal(t, storage.StatusFailed, result.Status)
	assert.Contains(t, result.Err, "not found")
}

func TestPull_FailureAttributedToOwningObject(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()

	good := writeSource(t, map[string]string{"g.bin": "good"})
	bad := writeSource(t, map[string]string{"b.bin": "bad"})
	require.Equal(t, storage.StatusSuccess, pushOneObject(t, store, "good", "1", good, storage.PolicySkip).Status)
	pushed := pushOneObject(t, store, "bad", "1", bad, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, pushed.Status)

	// Break only the bad object's stored file.
	require.NoError(t, fake.DeleteObject(ctx, s3.ObjectFileKey(pushed.Metadata.Storage.UUID, "b.bin")))

	dest := t.TempDir()
	results, err := store.Pull(ctx, []storage.PullRequest{
		{Name: "good", Version: "1", DestPath: dest + "/good"},
		{Name: "bad", Version: "1", DestPath: dest + "/bad"},
	}, storage.PullOptions{})
	require.NoError(t, err)

	goodResult, _ := results.Get(storage.ObjectRef{Name: "good", Version: "1"})
	badResult, _ := results.Get(storage.ObjectRef{Name: "bad", Version: "1"})
	assert.Equal(t, storage.StatusSuccess, goodResult.Status, goodResult.Err)
	assert.Equal(t, storage.StatusFailed, badResult.Status)
}

func TestPull_PrefixListingFallback(t *testing.T) {
	store, fake := newTestStore(t)
	ctx := context.Background()
	src := writeSource(t, map[string]string{"a.bin": "x", "d/b.bin": "y"})

	pushed := pushOneObject(t, store, "m", "1", src, storage.PolicySkip)
	require.Equal(t, storage.StatusSuccess, pushed.Status)

	// Strip the file list (and checksums) to force the listing path.
	meta := *pushed.Metadata
	meta.Files = nil
	meta.Storage.Checksums = nil
	data, err := meta.Marshal()
	require.NoError(t, err)
	require.NoError(t, fake.PutObject(ctx, s3.MetadataKey("m", "1"), bytes.NewReader(data), int64(len(data))))

	dest := t.TempDir()
	results, err := store.Pull(ctx, []storage.PullRequest{{Name: "m", Version: "1", DestPath: dest}}, storage.PullOptions{})
	require.NoError(t, err)
	result, _ := results.Get(storage.ObjectRef{Name: "m", Version: "1"})
	require.Equal(t, storage.StatusSuccess, result.Status, result.Err)
	assertFileContent(t, dest+"/a.bin", "x")
	assertFileContent(t, dest+"/d/b.bin", "y")
}

func assertFileContent(t *testing.T, path, want string) {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, want, string(data))
}
