package storage

import (
	"errors"
	"testing"
)

func TestObjectMetadataValidate(t *testing.T) {
	good := ObjectMetadata{Class: "test.Blob", Storage: StorageInfo{UUID: "u1"}}
	if err := good.Validate(); err != nil {
		t.Errorf("Validate = %v, want nil", err)
	}

	noClass := ObjectMetadata{Storage: StorageInfo{UUID: "u1"}}
	if err := noClass.Validate(); !errors.Is(err, ErrMetadataCorrupt) {
		t.Errorf("Validate without class = %v, want ErrMetadataCorrupt", err)
	}

	noUUID := ObjectMetadata{Class: "test.Blob"}
	if err := noUUID.Validate(); !errors.Is(err, ErrMetadataCorrupt) {
		t.Errorf("Validate without uuid = %v, want ErrMetadataCorrupt", err)
	}
}

func TestValidateRelPath(t *testing.T) {
	for _, rel := range []string{"a.bin", "sub/dir/a.bin", "./a.bin", "sub/../a.bin"} {
		if err := ValidateRelPath(rel); err != nil {
			t.Errorf("ValidateRelPath(%q) = %v, want nil", rel, err)
		}
	}
	for _, rel := range []string{"", "..", "../a.bin", "sub/../../a.bin", "/etc/passwd", "a\\b.bin"} {
		err := ValidateRelPath(rel)
		if err == nil {
			t.Errorf("ValidateRelPath(%q) should fail", rel)
			continue
		}
		if !errors.Is(err, ErrMetadataCorrupt) {
			t.Errorf("ValidateRelPath(%q) = %v, want ErrMetadataCorrupt", rel, err)
		}
	}
}
