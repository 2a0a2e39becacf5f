package modelstore

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/YuminosukeSato/fatigo/pkg/errors"
)

type backupFile struct {
	version int
	path    string
}

func pad6(v int) string { return fmt.Sprintf("%06d", v) }

// backups lists retained blobs in ascending version order.
func (s *Store) backups() ([]backupFile, error) {
	dir := filepath.Join(s.dir, backupDir)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, errors.Wrapf(err, "read %s", dir)
	}
	var out []backupFile
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !strings.HasPrefix(name, "model_v") || !strings.HasSuffix(name, ".gob") {
			continue
		}
		v, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(name, "model_v"), ".gob"))
		if err != nil {
			continue
		}
		out = append(out, backupFile{version: v, path: filepath.Join(dir, name)})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].version < out[j].version })
	return out, nil
}

// rotate keeps the newest s.keep backups.
func (s *Store) rotate() error {
	files, err := s.backups()
	if err != nil {
		return err
	}
	for len(files) > s.keep {
		if err := os.Remove(files[0].path); err != nil && !os.IsNotExist(err) {
			return errors.Wrapf(err, "remove %s", files[0].path)
		}
		s.logger.Debug("Backup rotated out", "version", files[0].version)
		files = files[1:]
	}
	return nil
}

func copyInto(src string, dst io.Writer) error {
	in, err := os.Open(src)
	if err != nil {
		return errors.Wrapf(err, "open %s", src)
	}
	defer in.Close()
	if _, err := io.Copy(dst, in); err != nil {
		return errors.Wrapf(err, "copy %s", src)
	}
	return nil
}

// copyFile writes src to dst through a temp file and rename.
func copyFile(src, dst string) error {
	tmp, err := os.CreateTemp(filepath.Dir(dst), ".copy-*")
	if err != nil {
		return errors.Wrap(err, "create temp file")
	}
	name := tmp.Name()
	defer os.Remove(name)

	if err := copyInto(src, tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return errors.Wrap(err, "sync copy")
	}
	if err := tmp.Close(); err != nil {
		return errors.Wrap(err, "close copy")
	}
	return errors.Wrap(os.Rename(name, dst), "rename copy")
}
