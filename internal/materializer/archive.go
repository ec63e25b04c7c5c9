package materializer

import (
	"archive/tar"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

const archiveFileName = "tree.tar.zst"

// Archive stores a Dir as a single zstd-compressed tarball. Register it in
// place of Tree when artifacts hold many small files:
//
//	materializer.Register[Dir](reg, materializer.Archive{})
type Archive struct{}

func (Archive) Name() string { return "archive" }

func (Archive) Save(obj any, dir string) ([]string, map[string]string, error) {
	src, ok := obj.(Dir)
	if !ok {
		return nil, nil, fmt.Errorf("archive materializer: expected Dir, got %T", obj)
	}
	out, err := os.Create(filepath.Join(dir, archiveFileName))
	if err != nil {
		return nil, nil, fmt.Errorf("create archive: %w", err)
	}
	zw, err := zstd.NewWriter(out)
	if err != nil {
		_ = out.Close()
		return nil, nil, fmt.Errorf("zstd writer: %w", err)
	}
	tw := tar.NewWriter(zw)

	entries := 0
	err = filepath.WalkDir(string(src), func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(string(src), p)
		if err != nil {
			return err
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		if _, err := io.Copy(tw, f); err != nil {
			_ = f.Close()
			return err
		}
		entries++
		return f.Close()
	})
	if err == nil {
		err = tw.Close()
	} else {
		_ = tw.Close()
	}
	if err == nil {
		err = zw.Close()
	} else {
		_ = zw.Close()
	}
	if cerr := out.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(filepath.Join(dir, archiveFileName))
		return nil, nil, fmt.Errorf("archive %s: %w", src, err)
	}
	if entries == 0 {
		_ = os.Remove(filepath.Join(dir, archiveFileName))
		return nil, nil, fmt.Errorf("archive materializer: %s contains no files", src)
	}
	return []string{archiveFileName}, nil, nil
}

func (Archive) Load(dir string, files []string, _ map[string]string) (any, error) {
	name := archiveFileName
	if len(files) == 1 {
		name = files[0]
	}
	f, err := os.Open(filepath.Join(dir, filepath.FromSlash(name)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()
	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	defer zr.Close()

	target := filepath.Join(dir, "content")
	if err := os.MkdirAll(target, 0755); err != nil {
		return nil, err
	}
	tr := tar.NewReader(zr)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read tar: %w", err)
		}
		if err := extractEntry(tr, hdr, target); err != nil {
			return nil, err
		}
	}
	return Dir(target), nil
}

func extractEntry(tr *tar.Reader, hdr *tar.Header, target string) error {
	name := cleanTarName(hdr.Name)
	if name == "" {
		return nil
	}
	dst := filepath.Join(target, filepath.FromSlash(name))
	switch hdr.Typeflag {
	case tar.TypeDir:
		return os.MkdirAll(dst, os.FileMode(hdr.Mode))
	case tar.TypeReg:
		if err := os.MkdirAll(filepath.Dir(dst), 0755); err != nil {
			return err
		}
		f, err := os.OpenFile(dst, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, os.FileMode(hdr.Mode))
		if err != nil {
			return err
		}
		if _, err := io.Copy(f, tr); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	default:
		return nil
	}
}

// cleanTarName rejects absolute and parent-escaping entry names.
func cleanTarName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}
	name = path.Clean(name)
	name = strings.TrimLeft(name, "/")
	if name == "" || strings.HasPrefix(name, "..") {
		return ""
	}
	return name
}
