package persist

import (
	"time"

	"github.com/lightningnetwork/lnliquid/swap"
	bolt "go.etcd.io/bbolt"
)

// InsertReceiveSwap idempotently inserts s and indexes it by invoice so
// FetchReceiveSwapByInvoice can find it later (the MRH reconciliation
// path looks swaps up by the invoice they were created for).
func (db *DB) InsertReceiveSwap(s *swap.ReceiveSwap) error {
	return wrap("insert receive swap", db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiveSwaps)
		if b.Get([]byte(s.SwapID)) != nil {
			return nil
		}
		data, err := marshal(s)
		if err != nil {
			return err
		}
		if err := b.Put([]byte(s.SwapID), data); err != nil {
			return err
		}
		return tx.Bucket(bucketReceiveSwapsByInvoice).Put([]byte(s.Invoice), []byte(s.SwapID))
	}))
}

// FetchReceiveSwapByID returns the receive swap with the given id.
func (db *DB) FetchReceiveSwapByID(id string) (*swap.ReceiveSwap, error) {
	var s swap.ReceiveSwap
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketReceiveSwaps).Get([]byte(id))
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

// FetchReceiveSwapByInvoice looks a receive swap up by its BOLT11
// invoice string (spec.md §4.2).
func (db *DB) FetchReceiveSwapByInvoice(invoice string) (*swap.ReceiveSwap, error) {
	var id string
	err := db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketReceiveSwapsByInvoice).Get([]byte(invoice))
		if v == nil {
			return ErrNotFound
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.FetchReceiveSwapByID(id)
}

// ListReceiveSwaps returns every persisted receive swap.
func (db *DB) ListReceiveSwaps() ([]*swap.ReceiveSwap, error) {
	var out []*swap.ReceiveSwap
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketReceiveSwaps).ForEach(func(_, data []byte) error {
			var s swap.ReceiveSwap
			if err := unmarshal(data, &s); err != nil {
				return err
			}
			out = append(out, &s)
			return nil
		})
	})
	return out, wrap("list receive swaps", err)
}

// ListOngoingReceiveSwaps returns receive swaps not yet resolved.
func (db *DB) ListOngoingReceiveSwaps() ([]*swap.ReceiveSwap, error) {
	all, err := db.ListReceiveSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.ReceiveSwap
	for _, s := range all {
		if !s.State.Resolved() {
			out = append(out, s)
		}
	}
	return out, nil
}

// put writes back the full record, used by the claim-tx-id and MRH
// helpers below which mutate more than one field atomically.
func (db *DB) putReceiveSwap(tx *bolt.Tx, s *swap.ReceiveSwap) error {
	data, err := marshal(s)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketReceiveSwaps).Put([]byte(s.SwapID), data)
}

// TryHandleReceiveSwapUpdate is the receive-swap analogue of
// TryHandleSendSwapUpdate: validates the transition, then populates
// lockupTxID/claimTxID only where unset.
func (db *DB) TryHandleReceiveSwapUpdate(id string, toState swap.PaymentState, lockupTxID, claimTxID *string) (*swap.ReceiveSwap, error) {
	var out swap.ReceiveSwap
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiveSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.ReceiveSwap
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
		if claimTxID != nil && s.ClaimTxID == nil {
			s.ClaimTxID = claimTxID
		}
		out = s
		return db.putReceiveSwap(tx, &s)
	})
	if err != nil {
		return nil, wrap("try handle receive swap update", err)
	}
	db.markWritten(id, time.Now())
	return &out, nil
}

// SetReceiveClaimTxID atomically sets ClaimTxID iff unset (invariant 3).
// claimAddress is not stored: ReceiveSwap has no claim-address field, so
// a retry after restart derives a fresh address.
func (db *DB) SetReceiveClaimTxID(id string, claimAddress *string, txid string) error {
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiveSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.ReceiveSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}
		if s.ClaimTxID != nil {
			return ErrAlreadyClaimed
		}
		s.ClaimTxID = &txid
		return db.putReceiveSwap(tx, &s)
	})
	if err != nil {
		return err
	}
	db.markWritten(id, time.Now())
	return nil
}

// UnsetReceiveClaimTxID frees the claim tx id slot after a broadcast
// failure (spec.md §4.7 step 5).
func (db *DB) UnsetReceiveClaimTxID(id, txid string) error {
	return wrap("unset receive claim tx id", db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiveSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.ReceiveSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}
		if s.ClaimTxID == nil || *s.ClaimTxID != txid {
			return nil
		}
		s.ClaimTxID = nil
		return db.putReceiveSwap(tx, &s)
	}))
}

// SetReceiveMRH atomically populates the MRH tx fields and transitions
// to Complete, used when the reconciler detects a direct Liquid payment
// to the invoice's magic routing hint address (spec.md §4.9).
func (db *DB) SetReceiveMRH(id, txid string, amountSat uint64) error {
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketReceiveSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.ReceiveSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}
		if s.MRHTxID != nil {
			return nil
		}
		if err := swap.ValidateTransition(s.State, swap.Complete); err != nil {
			return err
		}
		s.MRHTxID = &txid
		s.MRHAmountSat = &amountSat
		s.State = swap.Complete
		return db.putReceiveSwap(tx, &s)
	})
	if err != nil {
		return wrap("set receive mrh", err)
	}
	db.markWritten(id, time.Now())
	return nil
}

// ListPendingReceiveSwapsByLockupTxID returns ongoing receive swaps
// with a lockup but no claim, the set the Liquid block-driven rescan in
// spec.md §4.7 iterates.
func (db *DB) ListPendingReceiveSwapsByLockupTxID() ([]*swap.ReceiveSwap, error) {
	ongoing, err := db.ListOngoingReceiveSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.ReceiveSwap
	for _, s := range ongoing {
		if s.LockupTxID != nil && s.ClaimTxID == nil {
			out = append(out, s)
		}
	}
	return out, nil
}
