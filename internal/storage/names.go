package storage

import (
	"fmt"
	"path"
	"strings"
	"unicode"
)

// ValidateName checks a registry object name. Names are colon-namespaced
// ("team:model"); underscores are rejected, as are characters that would
// break the metadata key layout.
func ValidateName(name string) error {
	if name == "" {
		return fmt.Errorf("name is empty")
	}
	if strings.Contains(name, "_") {
		return fmt.Errorf("invalid name %q: underscores are not allowed", name)
	}
	for _, r := range name {
		if r == '@' || r == '/' || r == '\\' || unicode.IsSpace(r) {
			return fmt.Errorf("invalid name %q: character %q is not allowed", name, r)
		}
	}
	for _, seg := range strings.Split(name, ":") {
		if seg == "" {
			return fmt.Errorf("invalid name %q: empty namespace segment", name)
		}
	}
	return nil
}

// ValidateRelPath checks a file path recorded in metadata before it is
// joined under a destination directory. Absolute paths, backslashes, and
// paths that climb out of the destination are metadata corruption.
func ValidateRelPath(rel string) error {
	if rel == "" {
		return fmt.Errorf("%w: empty file path", ErrMetadataCorrupt)
	}
	if strings.HasPrefix(rel, "/") || strings.Contains(rel, "\\") {
		return fmt.Errorf("%w: unsafe file path %q", ErrMetadataCorrupt, rel)
	}
	clean := path.Clean(rel)
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("%w: unsafe file path %q", ErrMetadataCorrupt, rel)
	}
	return nil
}

// ValidateVersionToken checks that a version string is safe to embed in a
// metadata key. It does not require the dotted-integer form; reserved
// markers (temp versions) pass through here too.
func ValidateVersionToken(version string) error {
	if version == "" {
		return fmt.Errorf("version is empty")
	}
	for _, r := range version {
		if r == '@' || r == '/' || r == '\\' || unicode.IsSpace(r) {
			return fmt.Errorf("invalid version %q: character %q is not allowed", version, r)
		}
	}
	return nil
}
