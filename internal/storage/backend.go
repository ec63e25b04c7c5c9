package storage

import "context"

type ConflictPolicy string

const (
	// PolicySkip leaves an existing version untouched; the first writer wins.
	PolicySkip ConflictPolicy = "skip"
	// PolicyOverwrite replaces an existing version; the last writer wins.
	PolicyOverwrite ConflictPolicy = "overwrite"
)

// PushRequest describes one object to store: every file under SourcePath
// (a file or a directory) becomes part of the new generation.
type PushRequest struct {
	Name       string
	Version    string
	SourcePath string
	Class      string
	Metadata   map[string]string
}

func (r PushRequest) Ref() ObjectRef {
	return ObjectRef{Name: r.Name, Version: r.Version}
}

// PullRequest describes one object to fetch into DestPath. Metadata may be
// supplied to skip the lookup; when nil it is fetched.
type PullRequest struct {
	Name     string
	Version  string
	DestPath string
	Metadata *ObjectMetadata
}

func (r PullRequest) Ref() ObjectRef {
	return ObjectRef{Name: r.Name, Version: r.Version}
}

type PushOptions struct {
	OnConflict  ConflictPolicy
	Concurrency int
}

type PullOptions struct {
	Concurrency int
}

// MetadataEntry pairs a ref with the metadata to store for it.
type MetadataEntry struct {
	Ref  ObjectRef
	Meta ObjectMetadata
}

type SaveMetadataOptions struct {
	// IfAbsent makes the write conditional on the metadata object not
	// existing; a lost race yields a skipped result, never an error.
	IfAbsent bool
}

// Backend is the abstract operation set any storage implementation must
// satisfy. Every batch operation returns per-item results and never fails
// because of an individual item; returned errors indicate the whole call
// could not run.
type Backend interface {
	Push(ctx context.Context, reqs []PushRequest, opts PushOptions) (OpResults, error)
	Pull(ctx context.Context, reqs []PullRequest, opts PullOptions) (OpResults, error)
	Delete(ctx context.Context, refs []ObjectRef) (OpResults, error)

	SaveMetadata(ctx context.Context, entries []MetadataEntry, opts SaveMetadataOptions) (OpResults, error)
	FetchMetadata(ctx context.Context, refs []ObjectRef) (OpResults, error)
	DeleteMetadata(ctx context.Context, refs []ObjectRef) (OpResults, error)

	ListObjects(ctx context.Context) ([]string, error)
	ListVersions(ctx context.Context, name string) ([]string, error)
	HasObject(ctx context.Context, name, version string) (bool, error)

	SaveRegistryMetadata(ctx context.Context, meta RegistryMetadata) error
	FetchRegistryMetadata(ctx context.Context) (RegistryMetadata, error)
}
