package s3

import (
	"path"
	"strings"
)

const (
	ObjectsPrefix   = "objects"
	StagingPrefix   = "_staging"
	LocksPrefix     = "locks"
	MetadataPrefix  = "_meta_"
	RegistryMetaKey = "_registry.json"
)

// MetadataKey addresses the metadata object of one (name, version) pair.
// The name may contain colons; "@" appears exactly once, between the name
// and the version.
func MetadataKey(name, version string) string {
	return MetadataPrefix + name + "@" + version + ".json"
}

// MetadataListPrefix lists every version of a name when name is non-empty,
// or every metadata object in the registry when it is empty.
func MetadataListPrefix(name string) string {
	if name == "" {
		return MetadataPrefix
	}
	return MetadataPrefix + name + "@"
}

// ParseMetadataKey extracts (name, version) from a metadata key. The version
// never contains "@", so the split is on the last occurrence.
func ParseMetadataKey(key string) (name, version string, ok bool) {
	base := path.Base(key)
	if !strings.HasPrefix(base, MetadataPrefix) || !strings.HasSuffix(base, ".json") {
		return "", "", false
	}
	ref := strings.TrimSuffix(strings.TrimPrefix(base, MetadataPrefix), ".json")
	idx := strings.LastIndex(ref, "@")
	if idx <= 0 || idx == len(ref)-1 {
		return "", "", false
	}
	return ref[:idx], ref[idx+1:], true
}

func ObjectFolderPrefix(uuid string) string {
	return path.Join(ObjectsPrefix, uuid) + "/"
}

func ObjectFileKey(uuid, relative string) string {
	return path.Join(ObjectsPrefix, uuid, relative)
}

// ParseObjectFileKey returns the uuid and the file path relative to its
// folder, or empty strings when the key is not an object file key.
func ParseObjectFileKey(key string) (uuid, relative string) {
	key = strings.Trim(key, "/")
	parts := strings.SplitN(key, "/", 3)
	if len(parts) != 3 || parts[0] != ObjectsPrefix {
		return "", ""
	}
	return parts[1], parts[2]
}

func StagingKey(requestID string) string {
	return path.Join(StagingPrefix, requestID+".json")
}

func ParseStagingKey(key string) (requestID string, ok bool) {
	key = strings.Trim(key, "/")
	parts := strings.Split(key, "/")
	if len(parts) != 2 || parts[0] != StagingPrefix || !strings.HasSuffix(parts[1], ".json") {
		return "", false
	}
	id := strings.TrimSuffix(parts[1], ".json")
	if id == "" {
		return "", false
	}
	return id, true
}

func LockPrefix(name string) string {
	return path.Join(LocksPrefix, name) + "/"
}

func LockKey(name, entry string) string {
	return path.Join(LocksPrefix, name, entry)
}
