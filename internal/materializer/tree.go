package materializer

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
)

// Dir is a file-tree object: a path to a local directory whose contents are
// the artifact. Loading yields a Dir pointing at the pulled files.
type Dir string

// Tree stores a Dir by copying its files verbatim into the staging directory.
type Tree struct{}

func (Tree) Name() string { return "tree" }

func (Tree) Save(obj any, dir string) ([]string, map[string]string, error) {
	src, ok := obj.(Dir)
	if !ok {
		return nil, nil, fmt.Errorf("tree materializer: expected Dir, got %T", obj)
	}
	var files []string
	err := filepath.WalkDir(string(src), func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(string(src), path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if err := copyFile(path, filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return err
		}
		files = append(files, rel)
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("copy tree %s: %w", src, err)
	}
	if len(files) == 0 {
		return nil, nil, fmt.Errorf("tree materializer: %s contains no files", src)
	}
	return files, nil, nil
}

func (Tree) Load(dir string, files []string, _ map[string]string) (any, error) {
	for _, rel := range files {
		if _, err := os.Stat(filepath.Join(dir, filepath.FromSlash(rel))); err != nil {
			return nil, fmt.Errorf("tree materializer: missing file %s: %w", rel, err)
		}
	}
	return Dir(dir), nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
		return err
	}
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		_ = os.Remove(dst)
		return err
	}
	return out.Close()
}
