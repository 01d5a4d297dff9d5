package status

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// File persists a Store as a JSON file.
type File struct {
	path   string
	logger *logrus.Logger

	// beforeRename, when set, runs after the temporary file is complete
	// and before it replaces the target. Tests use it to interrupt a save.
	beforeRename func(tmpPath string) error
}

// NewFile creates a File backend for path. A nil logger discards output.
func NewFile(path string, logger *logrus.Logger) *File {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &File{path: path, logger: logger}
}

// Path returns the backing file path.
func (f *File) Path() string {
	return f.path
}

// Load reads the store from disk. A missing file yields an empty store.
// Content that cannot be decoded also yields an empty store and a logged
// warning; only I/O errors are returned.
func (f *File) Load() (*Store, error) {
	data, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.logger.Debugf("Status file %s does not exist, starting empty", f.path)
		return New(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("status: could not read %s: %w", f.path, err)
	}

	s := New()
	if len(data) == 0 {
		f.logger.Warnf("Status file %s is empty, starting empty", f.path)
		return s, nil
	}
	if err := json.Unmarshal(data, s); err != nil {
		f.logger.Warnf("Status file %s is corrupt, starting empty: %v", f.path, err)
		return New(), nil
	}

	f.logger.Debugf("Loaded status for %d check(s) from %s", len(s.Checks()), f.path)
	return s, nil
}

// Save writes the store atomically: the data goes to a temporary file in
// the same directory, which is synced and then renamed over the target.
// On failure the previous file is left untouched.
func (f *File) Save(s *Store) (err error) {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("status: could not encode: %w", err)
	}

	dir := filepath.Dir(f.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("status: could not create directory %s: %w", dir, err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(f.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("status: could not create temporary file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			tmp.Close()
			os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		return fmt.Errorf("status: could not write %s: %w", tmpPath, err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("status: could not sync %s: %w", tmpPath, err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("status: could not close %s: %w", tmpPath, err)
	}
	if err = os.Chmod(tmpPath, 0644); err != nil {
		return fmt.Errorf("status: could not chmod %s: %w", tmpPath, err)
	}
	if f.beforeRename != nil {
		if err = f.beforeRename(tmpPath); err != nil {
			return fmt.Errorf("status: save interrupted: %w", err)
		}
	}
	if err = os.Rename(tmpPath, f.path); err != nil {
		return fmt.Errorf("status: could not replace %s: %w", f.path, err)
	}

	syncDir(dir)
	f.logger.Debugf("Saved status for %d check(s) to %s", len(s.Checks()), f.path)
	return nil
}

// syncDir flushes the directory entry of a completed rename. Not every
// platform supports syncing a directory; failures are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}
