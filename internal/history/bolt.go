// Package history keeps a durable record of past provisioning runs and
// per-host results in a BoltDB database, so operators can audit what each
// run did long after the run's log directory is gone.
package history

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	bucketRuns    = []byte("runs")
	bucketResults = []byte("host_results")
)

// RunRecord summarises one completed provisioning run.
type RunRecord struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Total     int           `json:"total"`
	Succeeded int           `json:"succeeded"`
	Failed    int           `json:"failed"`
	Skipped   int           `json:"skipped"`
}

// HostResult records the terminal outcome of one host in one run.
type HostResult struct {
	Timestamp time.Time       `json:"timestamp"`
	Host      string          `json:"host"`
	Status    string          `json:"status"`
	Agents    map[string]bool `json:"agents,omitempty"`
	LogFile   string          `json:"log_file,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Store wraps a BoltDB database for provisioning history.
type Store struct {
	db *bolt.DB
}

// Open creates or opens the history database at the given path and ensures
// all required buckets exist.
func Open(path string) (*Store, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open history db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, b := range [][]byte{bucketRuns, bucketResults} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("create buckets: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying BoltDB.
func (s *Store) Close() error {
	return s.db.Close()
}

// RecordRun appends a run summary, keyed by start time for chronological
// ordering.
func (s *Store) RecordRun(rec RunRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal run record: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		key := []byte(rec.StartedAt.UTC().Format(time.RFC3339Nano))
		return b.Put(key, data)
	})
}

// RecentRuns returns the most recent run summaries, newest first, up to limit.
func (s *Store) RecentRuns(limit int) ([]RunRecord, error) {
	var records []RunRecord

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRuns)
		c := b.Cursor()

		// Walk backwards from the end (newest first).
		for k, v := c.Last(); k != nil && len(records) < limit; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}

// RecordHostResult appends one host's terminal result.
// Key format: "{host}::{RFC3339Nano}" for per-host chronological ordering.
func (s *Store) RecordHostResult(rec HostResult) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal host result: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		key := []byte(fmt.Sprintf("%s::%s", rec.Host, rec.Timestamp.UTC().Format(time.RFC3339Nano)))
		return b.Put(key, data)
	})
}

// ResultsFor returns all recorded results for a host, oldest first.
func (s *Store) ResultsFor(host string) ([]HostResult, error) {
	var records []HostResult
	prefix := []byte(host + "::")

	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketResults)
		c := b.Cursor()

		for k, v := c.Seek(prefix); k != nil && len(k) >= len(prefix) && string(k[:len(prefix)]) == string(prefix); k, v = c.Next() {
			var rec HostResult
			if err := json.Unmarshal(v, &rec); err != nil {
				continue
			}
			records = append(records, rec)
		}
		return nil
	})
	return records, err
}
