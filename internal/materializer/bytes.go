package materializer

import (
	"fmt"
	"os"
	"path/filepath"
)

const bytesFileName = "data.bin"

// Bytes stores a []byte as a single opaque file.
type Bytes struct{}

func (Bytes) Name() string { return "bytes" }

func (Bytes) Save(obj any, dir string) ([]string, map[string]string, error) {
	data, ok := obj.([]byte)
	if !ok {
		return nil, nil, fmt.Errorf("bytes materializer: expected []byte, got %T", obj)
	}
	if err := os.WriteFile(filepath.Join(dir, bytesFileName), data, 0644); err != nil {
		return nil, nil, fmt.Errorf("write %s: %w", bytesFileName, err)
	}
	return []string{bytesFileName}, nil, nil
}

func (Bytes) Load(dir string, files []string, _ map[string]string) (any, error) {
	name := bytesFileName
	if len(files) == 1 {
		name = files[0]
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}
