package persist

import bolt "go.etcd.io/bbolt"

// migration mutates the bucket structure to bring an older database up
// to the current version, mirroring channeldb's migration type. Bucket
// creation is naturally idempotent, so every migration here is safe to
// re-run (spec.md §6: "Schema migrations are idempotent").
type migration func(tx *bolt.Tx) error

// dbVersions lists every migration in order. Version 0 requires no
// migration — it's produced directly by Open's CreateBucketIfNotExists
// pass.
var dbVersions = []struct {
	number    uint32
	migration migration
}{
	{number: 0, migration: nil},
}

var versionKey = []byte("db-version")

// runMigrations brings the database from its persisted version up to
// the latest entry in dbVersions, in an immediate transaction per step
// so a crash mid-migration leaves the database at a well-defined prior
// version rather than a half-migrated one.
func (db *DB) runMigrations() error {
	var current uint32
	if err := db.View(func(tx *bolt.Tx) error {
		meta := tx.Bucket(bucketMeta)
		v := meta.Get(versionKey)
		if len(v) == 4 {
			current = byteOrder.Uint32(v)
		}
		return nil
	}); err != nil {
		return err
	}

	for _, v := range dbVersions {
		if v.number <= current {
			continue
		}
		if err := db.Update(func(tx *bolt.Tx) error {
			if v.migration != nil {
				if err := v.migration(tx); err != nil {
					return err
				}
			}
			buf := make([]byte, 4)
			byteOrder.PutUint32(buf, v.number)
			return tx.Bucket(bucketMeta).Put(versionKey, buf)
		}); err != nil {
			return err
		}
		current = v.number
	}

	return nil
}
