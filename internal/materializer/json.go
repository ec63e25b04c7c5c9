package materializer

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

const jsonFileName = "object.json"

// JSON stores a value of type T as a single JSON document. Register one per
// concrete type:
//
//	materializer.Register[Config](reg, materializer.JSON[Config]{})
type JSON[T any] struct{}

func (JSON[T]) Name() string {
	var zero T
	return "json:" + ClassName(zero)
}

func (JSON[T]) Save(obj any, dir string) ([]string, map[string]string, error) {
	v, ok := obj.(T)
	if !ok {
		var zero T
		return nil, nil, fmt.Errorf("json materializer: expected %T, got %T", zero, obj)
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("marshal object: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, jsonFileName), data, 0644); err != nil {
		return nil, nil, fmt.Errorf("write %s: %w", jsonFileName, err)
	}
	return []string{jsonFileName}, nil, nil
}

func (JSON[T]) Load(dir string, files []string, _ map[string]string) (any, error) {
	name := jsonFileName
	if len(files) == 1 {
		name = files[0]
	}
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("unmarshal object: %w", err)
	}
	return v, nil
}
