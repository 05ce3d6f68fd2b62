package persist

import bolt "go.etcd.io/bbolt"

// SyncState is the local/remote record-tracking row for cross-wallet
// sync (spec.md §3 SyncState / §4.2 sync tables). The sync transport
// and schema themselves are out of scope (spec.md §1 Non-goals); this
// package only stores what a sync plugin would read and write.
type SyncState struct {
	DataID         string
	RecordID       string
	RecordRevision int64
	IsLocal        bool
}

// OutgoingChange is a pending local edit queued for an outgoing sync
// push.
type OutgoingChange struct {
	RecordID      string
	UpdatedFields []string
	CommitTime    int64
}

// GetSyncStateByRecordID returns the sync row for recordID.
func (db *DB) GetSyncStateByRecordID(recordID string) (*SyncState, error) {
	var s SyncState
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncState).Get([]byte("record:" + recordID))
		if data == nil {
			return ErrNotFound
		}
		return unmarshal(data, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// GetSyncStateByDataID returns the sync row for dataID.
func (db *DB) GetSyncStateByDataID(dataID string) (*SyncState, error) {
	var s SyncState
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSyncState).Get([]byte("data:" + dataID))
		if data == nil {
			return ErrNotFound
		}
		return unmarshal(data, &s)
	})
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// SetSyncState upserts s, indexed by both its record id and data id.
func (db *DB) SetSyncState(s SyncState) error {
	return wrap("set sync state", db.Update(func(tx *bolt.Tx) error {
		data, err := marshal(&s)
		if err != nil {
			return err
		}
		b := tx.Bucket(bucketSyncState)
		if err := b.Put([]byte("record:"+s.RecordID), data); err != nil {
			return err
		}
		return b.Put([]byte("data:"+s.DataID), data)
	}))
}

// GetSyncSettings returns the raw opaque sync-plugin settings blob.
func (db *DB) GetSyncSettings() ([]byte, error) {
	var out []byte
	err := db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSyncSettings).Get([]byte("settings"))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// SetSyncSettings stores the raw opaque sync-plugin settings blob.
func (db *DB) SetSyncSettings(settings []byte) error {
	return wrap("set sync settings", db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncSettings).Put([]byte("settings"), settings)
	}))
}

// GetIncomingRecord returns a staged incoming remote record by id.
func (db *DB) GetIncomingRecord(recordID string) ([]byte, error) {
	var out []byte
	err := db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSyncIncoming).Get([]byte(recordID))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// SetIncomingRecord stages an incoming remote record prior to commit.
func (db *DB) SetIncomingRecord(recordID string, data []byte) error {
	return wrap("set incoming record", db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncIncoming).Put([]byte(recordID), data)
	}))
}

// RemoveIncomingRecord discards a staged incoming record.
func (db *DB) RemoveIncomingRecord(recordID string) error {
	return wrap("remove incoming record", db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncIncoming).Delete([]byte(recordID))
	}))
}

// GetSyncOutgoingChanges returns every pending outgoing change.
func (db *DB) GetSyncOutgoingChanges() ([]OutgoingChange, error) {
	var out []OutgoingChange
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncOutgoing).ForEach(func(_, data []byte) error {
			var c OutgoingChange
			if err := unmarshal(data, &c); err != nil {
				return err
			}
			out = append(out, c)
			return nil
		})
	})
	return out, wrap("get sync outgoing changes", err)
}

// RemoveSyncOutgoingChange removes a pushed outgoing change.
func (db *DB) RemoveSyncOutgoingChange(recordID string) error {
	return wrap("remove sync outgoing change", db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSyncOutgoing).Delete([]byte(recordID))
	}))
}

// CommitOutgoing appends a new pending outgoing change.
func (db *DB) CommitOutgoing(change OutgoingChange) error {
	return wrap("commit outgoing", db.Update(func(tx *bolt.Tx) error {
		data, err := marshal(&change)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketSyncOutgoing).Put([]byte(change.RecordID), data)
	}))
}

// commitIncomingSwap is the shared guard every commit_incoming_*_swap
// operation applies: the remote change is rejected if the local
// record's last commit time is after the remote change's commit time,
// i.e. the local record was touched since the pull began (spec.md
// §4.2).
func (db *DB) commitIncomingSwap(recordID string, remoteCommitTime int64, apply func(*bolt.Tx) error) error {
	return wrap("commit incoming swap", db.Update(func(tx *bolt.Tx) error {
		state := tx.Bucket(bucketSyncState)
		data := state.Get([]byte("record:" + recordID))
		if data != nil {
			var s SyncState
			if err := unmarshal(data, &s); err == nil {
				if s.RecordRevision > remoteCommitTime {
					return ErrCommitStale
				}
			}
		}
		return apply(tx)
	}))
}

// CommitIncomingSendSwap atomically applies a remote send-swap change
// if it isn't stale.
func (db *DB) CommitIncomingSendSwap(recordID string, remoteCommitTime int64, apply func(*bolt.Tx) error) error {
	return db.commitIncomingSwap(recordID, remoteCommitTime, apply)
}

// CommitIncomingReceiveSwap atomically applies a remote receive-swap
// change if it isn't stale.
func (db *DB) CommitIncomingReceiveSwap(recordID string, remoteCommitTime int64, apply func(*bolt.Tx) error) error {
	return db.commitIncomingSwap(recordID, remoteCommitTime, apply)
}

// CommitIncomingChainSwap atomically applies a remote chain-swap change
// if it isn't stale.
func (db *DB) CommitIncomingChainSwap(recordID string, remoteCommitTime int64, apply func(*bolt.Tx) error) error {
	return db.commitIncomingSwap(recordID, remoteCommitTime, apply)
}
