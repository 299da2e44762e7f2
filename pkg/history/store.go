package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	bolt "go.etcd.io/bbolt"
)

// Buckets of the history database.
const (
	bucketRuns  = "runs"    // order key -> RunRecord JSON
	bucketIndex = "run_ids" // run id -> order key
)

// Outcome is the terminal state an enforcement run ended in.
type Outcome string

const (
	OutcomePassed Outcome = "PASSED"
	OutcomeFailed Outcome = "FAILED_TERMINAL"
	OutcomeError  Outcome = "ERROR"
)

// ErrNotFound is returned by Get for an unknown run id.
var ErrNotFound = errors.New("run not found")

// RunRecord summarizes one enforcement run.
type RunRecord struct {
	ID        string        `json:"id"`
	PackKey   string        `json:"pack_key"`
	Outcome   Outcome       `json:"outcome"`
	Attempts  int           `json:"attempts"`
	Failing   []string      `json:"failing,omitempty"`
	Score     int           `json:"score"`
	Error     string        `json:"error,omitempty"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
}

// ListOptions filters List results.
type ListOptions struct {
	PackKey string
	Limit   int
}

// Store persists enforcement run records.
type Store interface {
	Record(ctx context.Context, rec RunRecord) error
	Get(id string) (RunRecord, error)
	List(opts ListOptions) ([]RunRecord, error)
	Prune(before time.Time) (int, error)
	Close() error
}

// BoltStore is a bbolt-backed implementation of Store. Records are keyed
// by start time so iteration yields them in chronological order.
type BoltStore struct {
	db *bolt.DB
	mu sync.RWMutex
}

// NewBoltStore opens (or creates) a history database at the given path.
func NewBoltStore(path string) (*BoltStore, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open history db %s", path)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range []string{bucketRuns, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return errors.Wrapf(err, "create bucket %s", name)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, errors.Wrap(err, "init buckets")
	}

	return &BoltStore{db: db}, nil
}

func orderKey(rec RunRecord) []byte {
	return []byte(fmt.Sprintf("%020d/%s", rec.StartedAt.UnixNano(), rec.ID))
}

func (s *BoltStore) Record(ctx context.Context, rec RunRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if rec.ID == "" {
		return errors.New("run record has no id")
	}
	if rec.StartedAt.IsZero() {
		rec.StartedAt = time.Now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))

		if old := index.Get([]byte(rec.ID)); old != nil {
			if err := runs.Delete(old); err != nil {
				return err
			}
		}

		data, err := json.Marshal(rec)
		if err != nil {
			return errors.Wrap(err, "marshal run record")
		}
		key := orderKey(rec)
		if err := runs.Put(key, data); err != nil {
			return err
		}
		return index.Put([]byte(rec.ID), key)
	})
}

func (s *BoltStore) Get(id string) (RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rec RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		key := tx.Bucket([]byte(bucketIndex)).Get([]byte(id))
		if key == nil {
			return errors.Wrapf(ErrNotFound, "run %s", id)
		}
		data := tx.Bucket([]byte(bucketRuns)).Get(key)
		if data == nil {
			return errors.Wrapf(ErrNotFound, "run %s", id)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return RunRecord{}, err
	}
	return rec, nil
}

// List returns records newest first.
func (s *BoltStore) List(opts ListOptions) ([]RunRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []RunRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket([]byte(bucketRuns)).Cursor()
		for k, v := c.Last(); k != nil; k, v = c.Prev() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "unmarshal run %s", string(k))
			}
			if opts.PackKey != "" && rec.PackKey != opts.PackKey {
				continue
			}
			out = append(out, rec)
			if opts.Limit > 0 && len(out) == opts.Limit {
				break
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Prune deletes every record that started before the cutoff and reports
// how many were removed.
func (s *BoltStore) Prune(before time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	err := s.db.Update(func(tx *bolt.Tx) error {
		runs := tx.Bucket([]byte(bucketRuns))
		index := tx.Bucket([]byte(bucketIndex))

		var stale []RunRecord
		c := runs.Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var rec RunRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return errors.Wrapf(err, "unmarshal run %s", string(k))
			}
			if !rec.StartedAt.Before(before) {
				break
			}
			stale = append(stale, rec)
		}
		for _, rec := range stale {
			if err := runs.Delete(orderKey(rec)); err != nil {
				return err
			}
			if err := index.Delete([]byte(rec.ID)); err != nil {
				return err
			}
		}
		removed = len(stale)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return removed, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
