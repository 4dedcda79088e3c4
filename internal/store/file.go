package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/gofrs/flock"
)

const (
	fileDocumentVersion = 1
	lockRetryDelay      = 50 * time.Millisecond
)

// fileDocument is the on-disk representation of the file store
type fileDocument struct {
	Version int                `json:"version"`
	Records map[string]*Record `json:"records"`
}

type fileStore struct {
	path string
	lock *flock.Flock
	mu   sync.Mutex
	now  Clock
}

var _ Store = (*fileStore)(nil)

// NewFileStore creates a Store that keeps all records in a single JSON file.
// Writes hold an exclusive file lock and replace the file atomically.
func NewFileStore(path string, opts ...Option) Store {
	o := newOptions(opts)
	return &fileStore{
		path: filepath.Clean(path),
		lock: flock.New(filepath.Clean(path) + ".lock"),
		now:  o.now,
	}
}

func (s *fileStore) Get(ctx context.Context, repoKey string) (*Record, error) {
	var found *Record
	err := s.withReadLock(ctx, func(doc *fileDocument) {
		if rec, ok := doc.Records[repoKey]; ok {
			cp := *rec
			found = &cp
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get version record %s: %w", repoKey, err)
	}
	return found, nil
}

func (s *fileStore) UpsertSeen(ctx context.Context, repoKey, version string) error {
	now := s.now().UTC()
	err := s.withWriteLock(ctx, func(doc *fileDocument) error {
		if rec, ok := doc.Records[repoKey]; ok {
			rec.ManifestVersion = version
			rec.LastSeenAt = now
			return nil
		}
		doc.Records[repoKey] = &Record{
			RepoKey:         repoKey,
			ManifestVersion: version,
			LastSeenAt:      now,
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to upsert version record %s: %w", repoKey, err)
	}
	return nil
}

func (s *fileStore) MarkRegistered(ctx context.Context, repoKey string) error {
	now := s.now().UTC()
	err := s.withWriteLock(ctx, func(doc *fileDocument) error {
		rec, ok := doc.Records[repoKey]
		if !ok {
			return ErrRecordNotFound
		}
		rec.LastRegisteredAt = &now
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to mark %s registered: %w", repoKey, err)
	}
	return nil
}

func (s *fileStore) List(ctx context.Context) ([]Record, error) {
	records := []Record{}
	err := s.withReadLock(ctx, func(doc *fileDocument) {
		for _, rec := range doc.Records {
			records = append(records, *rec)
		}
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list version records: %w", err)
	}
	sort.Slice(records, func(i, j int) bool {
		return records[i].RepoKey < records[j].RepoKey
	})
	return records, nil
}

// Initialize creates the parent directory and an empty document if none exists
func (s *fileStore) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0750); err != nil {
		return fmt.Errorf("failed to create store directory: %w", err)
	}
	return s.withWriteLock(ctx, func(*fileDocument) error { return nil })
}

func (s *fileStore) Close() error {
	return s.lock.Close()
}

func (s *fileStore) withReadLock(ctx context.Context, fn func(doc *fileDocument)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryRLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire store lock on %s", s.lock.Path())
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	doc, err := s.read()
	if err != nil {
		return err
	}
	fn(doc)
	return nil
}

func (s *fileStore) withWriteLock(ctx context.Context, fn func(doc *fileDocument) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	locked, err := s.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to acquire store lock: %w", err)
	}
	if !locked {
		return fmt.Errorf("failed to acquire store lock on %s", s.lock.Path())
	}
	defer func() {
		_ = s.lock.Unlock()
	}()

	doc, err := s.read()
	if err != nil {
		return err
	}
	if err := fn(doc); err != nil {
		return err
	}
	return s.write(doc)
}

func (s *fileStore) read() (*fileDocument, error) {
	doc := &fileDocument{Version: fileDocumentVersion, Records: map[string]*Record{}}

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return doc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read store file: %w", err)
	}
	if len(data) == 0 {
		return doc, nil
	}
	if err := json.Unmarshal(data, doc); err != nil {
		return nil, fmt.Errorf("failed to decode store file %s: %w", s.path, err)
	}
	if doc.Records == nil {
		doc.Records = map[string]*Record{}
	}
	return doc, nil
}

// write replaces the store file through a temporary file and rename
func (s *fileStore) write(doc *fileDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode store file: %w", err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary store file: %w", err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to write temporary store file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("failed to sync temporary store file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close temporary store file: %w", err)
	}
	if err := os.Rename(tmpName, s.path); err != nil {
		return fmt.Errorf("failed to replace store file: %w", err)
	}
	return nil
}
