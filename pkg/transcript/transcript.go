// Package transcript persists conversation transcripts on the bridge side.
//
// Each forwarded turn is appended under its session id; entries are
// msgpack-encoded in BadgerDB and keyed so that a prefix scan returns one
// session's turns in append order. This is operator-side record keeping:
// relay sessions themselves remain in-memory only.
package transcript

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

const keyPrefix = "t:"

// Entry roles.
const (
	RoleUser  = "user"
	RoleAgent = "agent"
)

// Entry is one recorded conversation turn.
type Entry struct {
	SessionID string    `msgpack:"sid"`
	Role      string    `msgpack:"role"`
	Text      string    `msgpack:"text"`
	Time      time.Time `msgpack:"time"`
}

// Options configures a Store.
type Options struct {
	// Dir is the directory for BadgerDB data files.
	// Required unless InMemory is set.
	Dir string

	// InMemory runs BadgerDB in memory-only mode. Useful for testing
	// with a real badger engine.
	InMemory bool
}

// Store is a BadgerDB-backed transcript store.
type Store struct {
	db  *badger.DB
	seq atomic.Uint64
}

// Open opens or creates a transcript store.
func Open(opts Options) (*Store, error) {
	if !opts.InMemory && opts.Dir == "" {
		return nil, errors.New("transcript: Options.Dir is required for on-disk mode")
	}
	dbOpts := badger.DefaultOptions(opts.Dir).WithLogger(nopLogger{})
	if opts.InMemory {
		dbOpts = dbOpts.WithInMemory(true)
	}
	db, err := badger.Open(dbOpts)
	if err != nil {
		return nil, fmt.Errorf("transcript: open store: %w", err)
	}
	return &Store{db: db}, nil
}

// Append records one turn.
func (s *Store) Append(ctx context.Context, e Entry) error {
	if e.SessionID == "" {
		return errors.New("transcript: entry has no session id")
	}
	if e.Time.IsZero() {
		e.Time = time.Now()
	}
	data, err := msgpack.Marshal(e)
	if err != nil {
		return err
	}
	key := s.entryKey(e)
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(key, data)
	})
}

// entryKey orders a session's entries by time, with a process-local
// sequence breaking ties within the same nanosecond.
func (s *Store) entryKey(e Entry) []byte {
	return fmt.Appendf(nil, "%s%s:%016x-%08x",
		keyPrefix, e.SessionID, uint64(e.Time.UnixNano()), s.seq.Add(1))
}

// List returns all recorded turns for a session in append order.
func (s *Store) List(ctx context.Context, sessionID string) ([]Entry, error) {
	prefix := []byte(keyPrefix + sessionID + ":")
	var entries []Entry
	err := s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			err := it.Item().Value(func(val []byte) error {
				var e Entry
				if err := msgpack.Unmarshal(val, &e); err != nil {
					// Skip malformed entries.
					return nil
				}
				entries = append(entries, e)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return entries, err
}

// Sessions returns the distinct session ids with recorded turns.
func (s *Store) Sessions(ctx context.Context) ([]string, error) {
	var ids []string
	seen := make(map[string]bool)
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		prefix := []byte(keyPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := string(it.Item().Key())
			rest := strings.TrimPrefix(key, keyPrefix)
			sid, _, ok := strings.Cut(rest, ":")
			if ok && !seen[sid] {
				seen[sid] = true
				ids = append(ids, sid)
			}
		}
		return nil
	})
	return ids, err
}

// Close releases the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// nopLogger silences badger's own logging.
type nopLogger struct{}

func (nopLogger) Errorf(string, ...any)   {}
func (nopLogger) Warningf(string, ...any) {}
func (nopLogger) Infof(string, ...any)    {}
func (nopLogger) Debugf(string, ...any)   {}
