// Package history keeps a local record of finished transcription jobs so
// past runs can be listed and audited without any external service.
package history

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"
)

var jobsBucket = []byte("jobs")

// Record is the persisted outcome of one job.
type Record struct {
	ID           string        `json:"id"`
	Name         string        `json:"name"`
	Source       string        `json:"source"`
	OutputPath   string        `json:"output_path,omitempty"`
	State        string        `json:"state"`
	Error        string        `json:"error,omitempty"`
	SegmentCount int           `json:"segment_count"`
	Failed       int           `json:"failed_segments"`
	Duration     time.Duration `json:"duration"`
	CreatedAt    time.Time     `json:"created_at"`
	FinishedAt   time.Time     `json:"finished_at"`
}

// Store is a bbolt-backed history database. Safe for concurrent use.
type Store struct {
	db         *bolt.DB
	maxEntries int
}

// Open opens (or creates) the history database at path. maxEntries bounds
// how many records are retained; zero means unlimited.
func Open(path string, maxEntries int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open history database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(jobsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}

	return &Store{db: db, maxEntries: maxEntries}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// key orders records chronologically; the id suffix keeps same-instant
// records distinct.
func key(r Record) []byte {
	return []byte(r.FinishedAt.UTC().Format(time.RFC3339Nano) + "_" + r.ID)
}

// Add persists a record and prunes the oldest entries past the retention
// limit in the same transaction.
func (s *Store) Add(r Record) error {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("failed to encode history record: %w", err)
	}

	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(jobsBucket)
		if err := b.Put(key(r), data); err != nil {
			return err
		}
		if s.maxEntries <= 0 {
			return nil
		}
		n := 0
		c := b.Cursor()
		for k, _ := c.First(); k != nil; k, _ = c.Next() {
			n++
		}
		excess := n - s.maxEntries
		for k, _ := c.First(); k != nil && excess > 0; k, _ = c.Next() {
			if err := c.Delete(); err != nil {
				return err
			}
			excess--
		}
		return nil
	})
}

// List returns up to limit records, newest first. A non-positive limit
// returns everything.
func (s *Store) List(limit int) ([]Record, error) {
	var records []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(jobsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			if limit > 0 && len(records) >= limit {
				break
			}
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue // skip records from older formats
			}
			records = append(records, r)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	return records, nil
}

// Get returns the record for a job id, if present.
func (s *Store) Get(id string) (Record, bool, error) {
	var found Record
	var ok bool
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(jobsBucket).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue
			}
			if r.ID == id {
				found = r
				ok = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read history: %w", err)
	}
	return found, ok, nil
}

// Count reports the number of stored records.
func (s *Store) Count() (int, error) {
	n := 0
	err := s.db.View(func(tx *bolt.Tx) error {
		n = tx.Bucket(jobsBucket).Stats().KeyN
		return nil
	})
	return n, err
}
