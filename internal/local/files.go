package local

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"warden/internal/models"
)

// ErrPathTraversal is returned for paths that would escape the sandbox root.
var ErrPathTraversal = errors.New("path escapes server directory")

// Files confines all file operations to a root directory.
type Files struct {
	root string
}

// NewFiles creates a sandboxed file manager rooted at root.
func NewFiles(root string) (*Files, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, err
	}
	return &Files{root: filepath.Clean(abs)}, nil
}

// resolve maps a client-supplied path to a local path under the root,
// rejecting any traversal outside it.
func (f *Files) resolve(userPath string) (string, error) {
	p := strings.TrimLeft(userPath, "/\\")
	joined := filepath.Clean(filepath.Join(f.root, filepath.FromSlash(p)))

	if joined != f.root && !strings.HasPrefix(joined, f.root+string(filepath.Separator)) {
		return "", ErrPathTraversal
	}
	return joined, nil
}

// List returns the entries of a directory relative to the root.
func (f *Files) List(dir string) ([]models.FileMeta, error) {
	full, err := f.resolve(dir)
	if err != nil {
		return nil, err
	}

	entries, err := os.ReadDir(full)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}

	out := make([]models.FileMeta, 0, len(entries))
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		rel := filepath.ToSlash(filepath.Join(dir, e.Name()))
		out = append(out, models.FileMeta{
			Name:       e.Name(),
			Path:       strings.TrimLeft(rel, "/"),
			SizeBytes:  info.Size(),
			IsDir:      e.IsDir(),
			ModifiedAt: info.ModTime(),
		})
	}
	return out, nil
}

// Read returns a file's contents.
func (f *Files) Read(path string) (string, error) {
	full, err := f.resolve(path)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(full)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", path, err)
	}
	return string(data), nil
}

// Write replaces a file's contents, creating parent directories as needed.
func (f *Files) Write(path, content string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return fmt.Errorf("create directory for %s: %w", path, err)
	}
	if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Delete removes a single file or empty directory.
func (f *Files) Delete(path string) error {
	full, err := f.resolve(path)
	if err != nil {
		return err
	}
	if full == f.root {
		return ErrPathTraversal
	}
	if err := os.Remove(full); err != nil {
		return fmt.Errorf("delete %s: %w", path, err)
	}
	return nil
}

// Upload copies local files into a directory under the root, reporting
// per-file success.
func (f *Files) Upload(dir string, paths []string) (models.UploadResult, error) {
	target, err := f.resolve(dir)
	if err != nil {
		return models.UploadResult{}, err
	}
	if err := os.MkdirAll(target, 0o755); err != nil {
		return models.UploadResult{}, fmt.Errorf("create %s: %w", dir, err)
	}

	result := models.UploadResult{Uploaded: []string{}, Failed: []string{}}
	for _, src := range paths {
		name := filepath.Base(src)
		if err := copyFile(src, filepath.Join(target, name)); err != nil {
			result.Failed = append(result.Failed, name)
			continue
		}
		result.Uploaded = append(result.Uploaded, name)
	}
	return result, nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, in); err != nil {
		return err
	}
	return out.Close()
}
