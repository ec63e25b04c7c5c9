package storage

import "errors"

var (
	// ErrNotFound covers a missing (name, version): the metadata object is
	// absent, which is the sole source of truth for existence.
	ErrNotFound = errors.New("object not found")

	// ErrVersionConflict is returned under the skip policy when the version
	// already exists for the name.
	ErrVersionConflict = errors.New("version already exists")

	// ErrMetadataCorrupt marks metadata that exists but is unusable (missing
	// class or storage uuid). Distinct from ErrNotFound.
	ErrMetadataCorrupt = errors.New("metadata corrupt")
)
