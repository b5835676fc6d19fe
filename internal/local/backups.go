package local

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"warden/internal/models"
)

// Backups manages zip archives of the server directory. Full backups take
// the whole tree; quick backups take only the top-level files.
type Backups struct {
	dir    string // where archives are written
	srcDir string // what gets archived
}

// NewBackups creates a backup manager writing archives of srcDir into dir.
func NewBackups(dir, srcDir string) (*Backups, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup directory: %w", err)
	}
	return &Backups{dir: dir, srcDir: srcDir}, nil
}

// Create writes a new archive and returns its metadata.
func (b *Backups) Create(name string, full bool) (models.BackupMeta, error) {
	if name == "" {
		name = "backup"
	}
	name = sanitizeName(name)

	id := name + "-" + time.Now().UTC().Format("20060102-150405")
	if full {
		id = "full-" + id
	}
	path := filepath.Join(b.dir, id+".zip")

	if err := b.writeArchive(path, full); err != nil {
		os.Remove(path)
		return models.BackupMeta{}, err
	}

	info, err := os.Stat(path)
	if err != nil {
		return models.BackupMeta{}, fmt.Errorf("stat backup: %w", err)
	}
	return models.BackupMeta{
		ID:        id,
		Name:      name,
		Full:      full,
		SizeBytes: info.Size(),
		CreatedAt: info.ModTime().UTC(),
	}, nil
}

// List returns metadata for every archive, newest first.
func (b *Backups) List() ([]models.BackupMeta, error) {
	entries, err := os.ReadDir(b.dir)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}

	out := []models.BackupMeta{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".zip") {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		id := strings.TrimSuffix(e.Name(), ".zip")
		out = append(out, models.BackupMeta{
			ID:        id,
			Name:      strings.TrimPrefix(id, "full-"),
			Full:      strings.HasPrefix(id, "full-"),
			SizeBytes: info.Size(),
			CreatedAt: info.ModTime().UTC(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Restore extracts an archive over the server directory.
func (b *Backups) Restore(id string) error {
	path, err := b.archivePath(id)
	if err != nil {
		return err
	}

	r, err := zip.OpenReader(path)
	if err != nil {
		return fmt.Errorf("open backup %s: %w", id, err)
	}
	defer r.Close()

	root, err := filepath.Abs(b.srcDir)
	if err != nil {
		return err
	}
	for _, f := range r.File {
		dst := filepath.Clean(filepath.Join(root, filepath.FromSlash(f.Name)))
		if dst != root && !strings.HasPrefix(dst, root+string(filepath.Separator)) {
			return fmt.Errorf("backup entry %q escapes server directory", f.Name)
		}
		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(dst, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := extractFile(f, dst); err != nil {
			return fmt.Errorf("extract %s: %w", f.Name, err)
		}
	}
	return nil
}

// Delete removes an archive.
func (b *Backups) Delete(id string) error {
	path, err := b.archivePath(id)
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("delete backup %s: %w", id, err)
	}
	return nil
}

// archivePath validates the id and returns the archive location.
func (b *Backups) archivePath(id string) (string, error) {
	if id == "" || strings.ContainsAny(id, "/\\") || strings.Contains(id, "..") {
		return "", errors.New("invalid backup id")
	}
	path := filepath.Join(b.dir, id+".zip")
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("backup %s not found", id)
	}
	return path, nil
}

func (b *Backups) writeArchive(path string, full bool) error {
	out, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create backup file: %w", err)
	}
	defer out.Close()

	w := zip.NewWriter(out)
	defer w.Close()

	root, err := filepath.Abs(b.srcDir)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(root, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if !full && p != root {
				return filepath.SkipDir
			}
			return nil
		}

		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		f, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		in, err := os.Open(p)
		if err != nil {
			return err
		}
		defer in.Close()
		_, err = io.Copy(f, in)
		return err
	})
	if err != nil {
		return fmt.Errorf("archive server directory: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finish backup archive: %w", err)
	}
	return out.Close()
}

func extractFile(f *zip.File, dst string) error {
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	in, err := f.Open()
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

func sanitizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	return b.String()
}
