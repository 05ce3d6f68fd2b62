package persist

import (
	"time"

	"github.com/lightningnetwork/lnliquid/swap"
	bolt "go.etcd.io/bbolt"
)

// InsertSendSwap idempotently inserts s keyed by its swap id: a second
// insert with the same id is a no-op rather than an error, matching
// spec.md §4.2's "idempotent insert on primary key".
func (db *DB) InsertSendSwap(s *swap.SendSwap) error {
	return wrap("insert send swap", db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSendSwaps)
		if b.Get([]byte(s.SwapID)) != nil {
			return nil
		}
		data, err := marshal(s)
		if err != nil {
			return err
		}
		return b.Put([]byte(s.SwapID), data)
	}))
}

// FetchSendSwapByID returns the send swap with the given id.
func (db *DB) FetchSendSwapByID(id string) (*swap.SendSwap, error) {
	var s swap.SendSwap
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketSendSwaps).Get([]byte(id))
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

// ListSendSwaps returns every persisted send swap.
func (db *DB) ListSendSwaps() ([]*swap.SendSwap, error) {
	var out []*swap.SendSwap
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSendSwaps).ForEach(func(_, data []byte) error {
			var s swap.SendSwap
			if err := unmarshal(data, &s); err != nil {
				return err
			}
			out = append(out, &s)
			return nil
		})
	})
	return out, wrap("list send swaps", err)
}

// ListOngoingSendSwaps returns send swaps not yet in a resolved state.
func (db *DB) ListOngoingSendSwaps() ([]*swap.SendSwap, error) {
	all, err := db.ListSendSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.SendSwap
	for _, s := range all {
		if !s.State.Resolved() {
			out = append(out, s)
		}
	}
	return out, nil
}

// TryHandleSendSwapUpdate validates the transition from the swap's
// current state to toState, then atomically applies the new state and
// populates lockupTxID/refundTxID only where they are currently unset
// (CASE WHEN IS NULL THEN :new ELSE current END semantics), satisfying
// invariant 1: a once-set tx id is never overwritten.
func (db *DB) TryHandleSendSwapUpdate(id string, toState swap.PaymentState, lockupTxID, refundTxID *string) (*swap.SendSwap, error) {
	var out swap.SendSwap
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSendSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.SendSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}

		if err := swap.ValidateTransition(s.State, toState); err != nil {
			return err
		}
		s.State = toState
		if lockupTxID != nil && s.LockupTxID == nil {
			s.LockupTxID = lockupTxID
		}
		if refundTxID != nil && s.RefundTxID == nil {
			s.RefundTxID = refundTxID
		}

		encoded, err := marshal(&s)
		if err != nil {
			return err
		}
		out = s
		return b.Put([]byte(id), encoded)
	})
	if err != nil {
		return nil, wrap("try handle send swap update", err)
	}
	db.markWritten(id, time.Now())
	return &out, nil
}

// SetSendRefundTxID sets RefundTxID iff unset, the atomic single-writer
// gate invariant 3 requires before any refund broadcast.
func (db *DB) SetSendRefundTxID(id, txid string) error {
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSendSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.SendSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}
		if s.RefundTxID != nil {
			return ErrAlreadyClaimed
		}
		s.RefundTxID = &txid
		encoded, err := marshal(&s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	})
	if err != nil {
		return err
	}
	db.markWritten(id, time.Now())
	return nil
}

// UnsetSendRefundTxID frees the refund tx id slot after a broadcast
// failure so a retry can claim it, used only in that narrow path per
// spec.md §5.
func (db *DB) UnsetSendRefundTxID(id, txid string) error {
	return wrap("unset send refund tx id", db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSendSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.SendSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}
		if s.RefundTxID == nil || *s.RefundTxID != txid {
			return nil
		}
		s.RefundTxID = nil
		encoded, err := marshal(&s)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), encoded)
	}))
}

// ListPendingSendSwapsByLockupTxID returns ongoing send swaps whose
// LockupTxID is set but RefundTxID is not, the set of swaps the
// Liquid-block-driven refund retry in spec.md §4.6 iterates.
func (db *DB) ListPendingSendSwapsByLockupTxID() ([]*swap.SendSwap, error) {
	ongoing, err := db.ListOngoingSendSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.SendSwap
	for _, s := range ongoing {
		if s.LockupTxID != nil && s.RefundTxID == nil {
			out = append(out, s)
		}
	}
	return out, nil
}
