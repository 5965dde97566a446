package file

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const DefaultMaxSize = 200 * 1024 * 1024 // 200 MB

// Service is the deduplication boundary: it turns an uploaded byte stream
// into a content-addressed, cataloged File. Identical content is stored and
// cataloged exactly once, no matter how many callers upload it concurrently.
type Service struct {
	repo    Repository
	store   *Store
	maxSize int64
}

func NewService(repo Repository, store *Store, maxSize int64) *Service {
	if maxSize <= 0 {
		maxSize = DefaultMaxSize
	}
	return &Service{repo: repo, store: store, maxSize: maxSize}
}

// Ingest hashes the stream while spooling it to disk, then either returns the
// existing catalog row for that fingerprint (discarding the spooled bytes) or
// commits the spool into the content-addressed store and inserts a new row.
// A losing racer on the fingerprint unique constraint re-reads the winner's
// row; the race never surfaces to the caller.
func (s *Service) Ingest(ctx context.Context, r io.Reader, originalName, category string) (*File, error) {
	spool, err := s.store.Spool()
	if err != nil {
		return nil, err
	}
	defer s.store.Discard(spool)

	fingerprint, size, err := Fingerprint(io.LimitReader(r, s.maxSize+1), spool)
	if err != nil {
		return nil, err
	}
	if size == 0 {
		return nil, ErrEmptyFile
	}
	if size > s.maxSize {
		return nil, ErrFileTooLarge
	}

	existing, err := s.repo.GetByFingerprint(ctx, fingerprint)
	if err == nil {
		return existing, nil
	}
	if !errors.Is(err, ErrFileNotFound) {
		return nil, fmt.Errorf("catalog lookup: %w", err)
	}

	mimeType, err := sniffMime(spool)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrHashComputation, err)
	}

	ext := strings.ToLower(filepath.Ext(originalName))
	relPath := s.store.PathFor(category, fingerprint, ext)
	if err := s.store.Commit(spool, relPath); err != nil {
		return nil, err
	}

	f := &File{
		Fingerprint:  fingerprint,
		OriginalName: filepath.Base(originalName),
		StoredName:   fingerprint + ext,
		RelativePath: relPath,
		MimeType:     mimeType,
		Category:     category,
		Size:         size,
		CreatedAt:    time.Now(),
	}

	if err := s.repo.Create(ctx, f); err != nil {
		// Another caller may have won the insert race on the fingerprint
		// unique constraint. Resolve by re-reading their row. The winner may
		// have committed under a different path (the original name carried a
		// different extension), in which case our copy is an orphan.
		if winner, rerr := s.repo.GetByFingerprint(ctx, fingerprint); rerr == nil {
			if winner.RelativePath != relPath {
				_ = s.store.Remove(relPath)
			}
			return winner, nil
		}
		if !isUniqueViolation(err) {
			// No row was committed; remove the orphaned bytes.
			_ = s.store.Remove(relPath)
		}
		return nil, fmt.Errorf("save file record: %w", err)
	}

	return f, nil
}

// Get returns catalog metadata by id.
func (s *Service) Get(ctx context.Context, id int64) (*File, error) {
	return s.repo.GetByID(ctx, id)
}

// Open returns a reader over the stored bytes of a cataloged file.
func (s *Service) Open(ctx context.Context, id int64) (*File, io.ReadCloser, error) {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	rc, err := s.store.Open(f.RelativePath)
	if err != nil {
		return nil, nil, err
	}
	return f, rc, nil
}

// OpenByFingerprint returns a reader over the stored bytes for a fingerprint.
// Used by the thumbnail workers, which carry the fingerprint in the job.
func (s *Service) OpenByFingerprint(ctx context.Context, fingerprint string) (io.ReadCloser, error) {
	f, err := s.repo.GetByFingerprint(ctx, fingerprint)
	if err != nil {
		return nil, err
	}
	return s.store.Open(f.RelativePath)
}

// Remove deletes the catalog row and the stored bytes. Callers are expected
// to have verified that nothing references the file anymore.
func (s *Service) Remove(ctx context.Context, id int64) error {
	f, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrFileNotFound) {
			return nil
		}
		return err
	}
	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}
	return s.store.Remove(f.RelativePath)
}

// isUniqueViolation recognizes a lost insert race on both backends: gorm's
// translated sentinel plus the raw PostgreSQL error code in case the driver
// error slips through untranslated.
func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func sniffMime(spool io.ReadSeeker) (string, error) {
	if _, err := spool.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	buf := make([]byte, 512)
	n, err := spool.Read(buf)
	if err != nil && err != io.EOF {
		return "", err
	}
	mimeType := http.DetectContentType(buf[:n])
	return strings.Split(mimeType, ";")[0], nil
}
