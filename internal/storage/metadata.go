package storage

import (
	"encoding/json"
	"fmt"
	"time"
)

// StorageInfo records where one committed generation of an object lives.
// The uuid folder is never reused and never mutated in place.
type StorageInfo struct {
	UUID      string            `json:"uuid"`
	CreatedAt time.Time         `json:"created_at"`
	Checksums map[string]string `json:"checksums,omitempty"`
}

// ObjectMetadata is the artifact-of-record for one (name, version). An object
// exists iff its metadata object exists.
type ObjectMetadata struct {
	Class    string            `json:"class"`
	Path     string            `json:"path"`
	Storage  StorageInfo       `json:"_storage"`
	Files    []string          `json:"_files"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Validate reports corruption: metadata that parses but cannot be acted on.
func (m *ObjectMetadata) Validate() error {
	if m.Class == "" {
		return fmt.Errorf("%w: missing class", ErrMetadataCorrupt)
	}
	if m.Storage.UUID == "" {
		return fmt.Errorf("%w: missing storage uuid", ErrMetadataCorrupt)
	}
	return nil
}

func (m *ObjectMetadata) Marshal() ([]byte, error) {
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	return data, nil
}

func UnmarshalMetadata(data []byte) (*ObjectMetadata, error) {
	var m ObjectMetadata
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupt, err)
	}
	return &m, nil
}

const (
	OpPush   = "push"
	OpDelete = "delete"
)

// CommitPlan is written before the risky steps of a push or delete and is
// the janitor's sole recovery input. A plan past ExpiresAt whose owning
// operation never finished is eligible for cleanup.
type CommitPlan struct {
	Operation string    `json:"operation"`
	Name      string    `json:"name"`
	Version   string    `json:"version"`
	UUID      string    `json:"uuid"`
	OldUUID   string    `json:"old_uuid,omitempty"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (p *CommitPlan) Expired(now time.Time) bool {
	return now.After(p.ExpiresAt)
}

func (p *CommitPlan) Marshal() ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal commit plan: %w", err)
	}
	return data, nil
}

func UnmarshalCommitPlan(data []byte) (*CommitPlan, error) {
	var p CommitPlan
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("unmarshal commit plan: %w", err)
	}
	return &p, nil
}

// RegistryMetadata is the registry-level metadata object: the materializer
// type-name to materializer-class mapping.
type RegistryMetadata struct {
	Materializers map[string]string `json:"materializers"`
}
