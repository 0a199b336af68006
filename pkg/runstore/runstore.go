// Package runstore is a small embedded ledger of run history, keyed by
// run_id and indexed by start time. It lets a long-lived daemon answer
// "what happened to run X" and "what ran between T1 and T2" without
// depending on the blob store's object listing.
package runstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/loadforge/loadforge/pkg/api"
)

var (
	prefixRunning  = "running"
	prefixComplete = "complete"

	// ErrNotFound is returned when a run_id has no record in either phase.
	ErrNotFound = errors.New("run not found")
)

// Record is the ledger's entry for one run, a thin projection of
// RunOutcome that stays small enough to iterate cheaply over a time
// range.
type Record struct {
	RunID     string     `json:"run_id"`
	TargetURL string     `json:"target_url"`
	TestKind  api.TestKind `json:"test_kind"`
	Status    api.Status `json:"status"`
	ExitCode  int        `json:"exit_code"`
	Grade     api.Grade  `json:"grade,omitempty"`
	StartedAt time.Time  `json:"started_at"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}

// Store persists Records in an embedded LevelDB, keyed by phase prefix and
// start-time so range queries over a window don't require a full scan.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) a LevelDB-backed store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("opening run store: %w", err)
	}
	return &Store{db: db}, nil
}

// OpenMemory returns a Store backed entirely by memory, for tests and the
// local single-process daemon mode.
func OpenMemory() (*Store, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, err
	}
	return &Store{db: db}, nil
}

func (s *Store) Close() error { return s.db.Close() }

func keyFor(prefix string, startedAtUnix int64, runID string) []byte {
	return []byte(strings.Join([]string{prefix, strconv.FormatInt(startedAtUnix, 10), runID}, ":"))
}

func recordKey(prefix string, rec *Record) []byte {
	return keyFor(prefix, rec.StartedAt.Unix(), rec.RunID)
}

func (s *Store) put(prefix string, rec *Record) error {
	val, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return s.db.Put(recordKey(prefix, rec), val, &opt.WriteOptions{Sync: true})
}

// PersistRunning records a run that has just started, before its outcome
// is known.
func (s *Store) PersistRunning(rec *Record) error {
	return s.put(prefixRunning, rec)
}

// Complete moves a run from the running phase to the complete phase,
// recording its final outcome.
func (s *Store) Complete(rec *Record) error {
	trans, err := s.db.OpenTransaction()
	if err != nil {
		return err
	}
	oldKey := keyFor(prefixRunning, rec.StartedAt.Unix(), rec.RunID)
	if err := trans.Delete(oldKey, nil); err != nil && err != leveldb.ErrNotFound {
		trans.Discard()
		return err
	}
	val, err := json.Marshal(rec)
	if err != nil {
		trans.Discard()
		return err
	}
	if err := trans.Put(recordKey(prefixComplete, rec), val, &opt.WriteOptions{Sync: true}); err != nil {
		trans.Discard()
		return err
	}
	return trans.Commit()
}

// Get fetches a run by id, checking the complete phase first since most
// lookups happen after a run finishes.
func (s *Store) Get(runID string) (*Record, error) {
	if rec, err := s.scanForID(prefixComplete, runID); err == nil {
		return rec, nil
	}
	rec, err := s.scanForID(prefixRunning, runID)
	if err != nil {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (s *Store) scanForID(prefix, runID string) (*Record, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte(prefix+":")), nil)
	defer iter.Release()
	for iter.Next() {
		if strings.HasSuffix(string(iter.Key()), ":"+runID) {
			rec := &Record{}
			if err := json.Unmarshal(iter.Value(), rec); err != nil {
				return nil, err
			}
			return rec, nil
		}
	}
	return nil, ErrNotFound
}

// ListCompleted returns every completed run with StartedAt in [start, end),
// ordered oldest first.
func (s *Store) ListCompleted(start, end time.Time) ([]*Record, error) {
	rng := util.Range{
		Start: []byte(strings.Join([]string{prefixComplete, strconv.FormatInt(start.Unix(), 10)}, ":")),
		Limit: []byte(strings.Join([]string{prefixComplete, strconv.FormatInt(end.Unix(), 10)}, ":")),
	}
	iter := s.db.NewIterator(&rng, nil)
	defer iter.Release()

	var records []*Record
	for iter.Next() {
		rec := &Record{}
		if err := json.Unmarshal(iter.Value(), rec); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}
