// Package persist is the transactional store for swaps, payments, sync
// state and plugin KV (spec.md §4.2 / component B). It is a bbolt-backed
// adaptation of channeldb/db.go: one file under the configured working
// directory, one bucket per entity, every multi-step mutation wrapped in
// an immediate read-write transaction so partial updates are never
// observable, matching channeldb.DB's Update/View split.
package persist

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	dbFileName       = "swaps.db"
	dbFilePermission = 0600
)

// DB is the primary datastore for the swap engine.
type DB struct {
	*bolt.DB

	// writtenAt tracks, per swap id, the last local-write wall-clock
	// time this process observed. The reconciler's grace-period rule
	// (spec.md §4.9) consults this to avoid clobbering a tx id this
	// very process just persisted but that isn't indexed on chain yet.
	mu        sync.Mutex
	writtenAt map[string]time.Time
}

// Open opens (creating if absent) the swaps database at workingDir,
// running any pending migrations.
func Open(workingDir string) (*DB, error) {
	if err := os.MkdirAll(workingDir, 0700); err != nil {
		return nil, wrap("mkdir working dir", err)
	}

	path := filepath.Join(workingDir, dbFileName)
	bdb, err := bolt.Open(path, dbFilePermission, &bolt.Options{
		Timeout: 5 * time.Second,
	})
	if err != nil {
		return nil, wrap("open bbolt", err)
	}

	db := &DB{DB: bdb, writtenAt: make(map[string]time.Time)}

	if err := db.Update(func(tx *bolt.Tx) error {
		for _, b := range allBuckets {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		bdb.Close()
		return nil, wrap("create buckets", err)
	}

	if err := db.runMigrations(); err != nil {
		bdb.Close()
		return nil, wrap("run migrations", err)
	}

	return db, nil
}

// Close releases the underlying bbolt file handle.
func (db *DB) Close() error {
	return db.DB.Close()
}

// markWritten records that swapID was just locally mutated, for the
// reconciler's grace-period check.
func (db *DB) markWritten(swapID string, now time.Time) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.writtenAt[swapID] = now
}

// LastWrittenAt returns the last time this process locally wrote
// swapID, or the zero time if unknown (e.g. after a restart — the
// grace period then degrades to "not recent", which is conservative:
// it allows the reconciler to derive state fully from chain data).
func (db *DB) LastWrittenAt(swapID string) time.Time {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.writtenAt[swapID]
}

func marshal(v interface{}) ([]byte, error) {
	return json.Marshal(v)
}

func unmarshal(data []byte, v interface{}) error {
	return json.Unmarshal(data, v)
}
