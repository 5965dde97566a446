package file

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store is a content-addressed local filesystem store. Files live at
// {root}/{category}/{first 2 hex chars of fingerprint}/{fingerprint}{ext},
// so concurrent writers of the same content always target the same path and
// the layout never needs a lookup table.
type Store struct {
	root string
}

func NewStore(root string) (*Store, error) {
	for _, dir := range []string{root, filepath.Join(root, "tmp"), filepath.Join(root, "previews")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, dir, err)
		}
	}
	return &Store{root: root}, nil
}

func (s *Store) Root() string { return s.root }

// PathFor returns the relative content-addressed path for a fingerprint.
func (s *Store) PathFor(category, fingerprint, ext string) string {
	category = sanitizeCategory(category)
	return filepath.Join(category, fingerprint[:2], fingerprint+ext)
}

// Spool opens a temporary file inside the storage root so a later Commit is a
// same-filesystem rename.
func (s *Store) Spool() (*os.File, error) {
	f, err := os.Create(filepath.Join(s.root, "tmp", uuid.New().String()))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return f, nil
}

// Discard closes and removes a spool file. Safe to call after Commit, in
// which case the rename already emptied the source path.
func (s *Store) Discard(spool *os.File) {
	if spool == nil {
		return
	}
	_ = spool.Close()
	_ = os.Remove(spool.Name())
}

// Commit moves a spool file into its final content-addressed location. The
// rename is atomic; if another writer committed the same fingerprint first,
// the replace is byte-identical and harmless.
func (s *Store) Commit(spool *os.File, relPath string) error {
	if err := spool.Close(); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	abs := filepath.Join(s.root, relPath)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	if err := os.Rename(spool.Name(), abs); err != nil {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

func (s *Store) Exists(relPath string) bool {
	_, err := os.Stat(filepath.Join(s.root, relPath))
	return err == nil
}

func (s *Store) Open(relPath string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.root, relPath))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrFileNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return f, nil
}

func (s *Store) Remove(relPath string) error {
	err := os.Remove(filepath.Join(s.root, relPath))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrStorageUnavailable, err)
	}
	return nil
}

// Abs resolves a relative storage path against the root.
func (s *Store) Abs(relPath string) string {
	return filepath.Join(s.root, relPath)
}

func sanitizeCategory(category string) string {
	category = strings.ToLower(strings.TrimSpace(category))
	category = strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' || r == '_' {
			return r
		}
		return '_'
	}, category)
	if category == "" {
		return "misc"
	}
	return category
}
