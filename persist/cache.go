package persist

import (
	"time"

	bolt "go.etcd.io/bbolt"
)

// cacheEntry wraps a cached value with its expiry, backing the
// cached_items table (spec.md §6) the swapper client uses to avoid
// re-fetching fee/limit pairs on every call.
type cacheEntry struct {
	Value   []byte
	Expires int64 // unix seconds, 0 = no expiry
}

// CacheSet stores value under key with an optional TTL (0 = forever).
func (db *DB) CacheSet(key string, value []byte, ttl time.Duration) error {
	entry := cacheEntry{Value: value}
	if ttl > 0 {
		entry.Expires = time.Now().Add(ttl).Unix()
	}
	return wrap("cache set", db.Update(func(tx *bolt.Tx) error {
		data, err := marshal(&entry)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketCachedItems).Put([]byte(key), data)
	}))
}

// CacheGet returns the cached value for key, or ok=false if absent or
// expired.
func (db *DB) CacheGet(key string) (value []byte, ok bool, err error) {
	err = db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketCachedItems).Get([]byte(key))
		if data == nil {
			return nil
		}
		var entry cacheEntry
		if uErr := unmarshal(data, &entry); uErr != nil {
			return uErr
		}
		if entry.Expires != 0 && time.Now().Unix() > entry.Expires {
			return nil
		}
		value = entry.Value
		ok = true
		return nil
	})
	return value, ok, wrap("cache get", err)
}
