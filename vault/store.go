package vault

import (
	"errors"
	"os"
	"path/filepath"
)

// Store persists the encoded container as one opaque blob. Implementations
// read and write whole files; they do not lock, so two processes writing the
// same file race and the last Save wins.
type Store interface {
	// Exists reports whether a data file is present.
	Exists() bool

	// Load reads the whole data file.
	Load() ([]byte, error)

	// Save replaces the data file with contents.
	Save(contents []byte) error

	// LoadFrom reads another file, e.g. a backup, without touching the store.
	LoadFrom(path string) ([]byte, error)
}

type FileStore struct {
	Path string
}

func NewFileStore(path string) *FileStore {
	return &FileStore{Path: path}
}

func (f *FileStore) Exists() bool {
	_, err := os.Stat(f.Path)
	return !errors.Is(err, os.ErrNotExist)
}

func (f *FileStore) Load() ([]byte, error) {
	return os.ReadFile(f.Path)
}

func (f *FileStore) LoadFrom(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (f *FileStore) Save(contents []byte) error {
	if err := os.MkdirAll(filepath.Dir(f.Path), 0700); err != nil {
		return err
	}
	return atomicWriteFile(f.Path, contents, 0600)
}

func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".kapa-*")
	if err != nil {
		return err
	}
	tmpPath := tmpFile.Name()
	defer func() {
		tmpFile.Close()
		os.Remove(tmpPath)
	}()

	if err := tmpFile.Chmod(perm); err != nil {
		return err
	}
	if _, err := tmpFile.Write(data); err != nil {
		return err
	}
	if err := tmpFile.Sync(); err != nil {
		return err
	}
	if err := tmpFile.Close(); err != nil {
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return err
	}

	_ = syncDir(dir)
	return nil
}

func syncDir(dir string) error {
	f, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer f.Close()
	return f.Sync()
}
