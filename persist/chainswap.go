package persist

import (
	"time"

	"github.com/lightningnetwork/lnliquid/swap"
	bolt "go.etcd.io/bbolt"
)

// InsertChainSwap idempotently inserts s, indexed additionally by its
// lockup address (spec.md §4.2: fetch_chain_swap_by_lockup_address).
func (db *DB) InsertChainSwap(s *swap.ChainSwap) error {
	return wrap("insert chain swap", db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChainSwaps)
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
		return tx.Bucket(bucketChainSwapsByLockupAddr).Put(
			[]byte(s.LockupAddress), []byte(s.SwapID),
		)
	}))
}

// FetchChainSwapByID returns the chain swap with the given id.
func (db *DB) FetchChainSwapByID(id string) (*swap.ChainSwap, error) {
	var s swap.ChainSwap
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketChainSwaps).Get([]byte(id))
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

// FetchChainSwapByLockupAddress looks a chain swap up by its lockup
// address.
func (db *DB) FetchChainSwapByLockupAddress(addr string) (*swap.ChainSwap, error) {
	var id string
	err := db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketChainSwapsByLockupAddr).Get([]byte(addr))
		if v == nil {
			return ErrNotFound
		}
		id = string(v)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return db.FetchChainSwapByID(id)
}

// ListChainSwaps returns every persisted chain swap.
func (db *DB) ListChainSwaps() ([]*swap.ChainSwap, error) {
	var out []*swap.ChainSwap
	err := db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketChainSwaps).ForEach(func(_, data []byte) error {
			var s swap.ChainSwap
			if err := unmarshal(data, &s); err != nil {
				return err
			}
			out = append(out, &s)
			return nil
		})
	})
	return out, wrap("list chain swaps", err)
}

// ListOngoingChainSwaps returns chain swaps not yet resolved.
func (db *DB) ListOngoingChainSwaps() ([]*swap.ChainSwap, error) {
	all, err := db.ListChainSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.ChainSwap
	for _, s := range all {
		if !s.State.Resolved() {
			out = append(out, s)
		}
	}
	return out, nil
}

// ListRefundableChainSwaps returns chain swaps currently in the
// Refundable state (spec.md §4.2).
func (db *DB) ListRefundableChainSwaps() ([]*swap.ChainSwap, error) {
	all, err := db.ListChainSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.ChainSwap
	for _, s := range all {
		if s.State == swap.Refundable {
			out = append(out, s)
		}
	}
	return out, nil
}

func (db *DB) putChainSwap(tx *bolt.Tx, s *swap.ChainSwap) error {
	data, err := marshal(s)
	if err != nil {
		return err
	}
	return tx.Bucket(bucketChainSwaps).Put([]byte(s.SwapID), data)
}

// mutateChainSwap is the shared "load, mutate, store" helper every other
// chain swap update builds on, keeping the single-writer transaction
// pattern in one place; transition checks are left to the callers' fn.
func (db *DB) mutateChainSwap(id string, fn func(*swap.ChainSwap) error) (*swap.ChainSwap, error) {
	var out swap.ChainSwap
	err := db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketChainSwaps)
		data := b.Get([]byte(id))
		if data == nil {
			return ErrNotFound
		}
		var s swap.ChainSwap
		if err := unmarshal(data, &s); err != nil {
			return err
		}
		if err := fn(&s); err != nil {
			return err
		}
		out = s
		return db.putChainSwap(tx, &s)
	})
	if err != nil {
		return nil, err
	}
	db.markWritten(id, time.Now())
	return &out, nil
}

// TryHandleChainSwapUpdate validates the state transition then
// populates userLockupTxID/serverLockupTxID/claimTxID/refundTxID only
// where unset.
func (db *DB) TryHandleChainSwapUpdate(id string, toState swap.PaymentState,
	userLockupTxID, serverLockupTxID, claimTxID, refundTxID *string) (*swap.ChainSwap, error) {

	out, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		if err := swap.ValidateTransition(s.State, toState); err != nil {
			return err
		}
		s.State = toState
		if userLockupTxID != nil && s.UserLockupTxID == nil {
			s.UserLockupTxID = userLockupTxID
		}
		if serverLockupTxID != nil && s.ServerLockupTxID == nil {
			s.ServerLockupTxID = serverLockupTxID
		}
		if claimTxID != nil && s.ClaimTxID == nil {
			s.ClaimTxID = claimTxID
		}
		if refundTxID != nil && s.RefundTxID == nil {
			s.RefundTxID = refundTxID
		}
		return nil
	})
	return out, wrap("try handle chain swap update", err)
}

// SetChainClaimTxID atomically sets ClaimTxID iff unset.
func (db *DB) SetChainClaimTxID(id string, claimAddress *string, txid string) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		if s.ClaimTxID != nil {
			return ErrAlreadyClaimed
		}
		s.ClaimTxID = &txid
		if claimAddress != nil {
			s.ClaimAddress = claimAddress
		}
		return nil
	})
	return err
}

// UnsetChainClaimTxID frees the claim tx id slot after a broadcast
// failure.
func (db *DB) UnsetChainClaimTxID(id, txid string) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		if s.ClaimTxID != nil && *s.ClaimTxID == txid {
			s.ClaimTxID = nil
		}
		return nil
	})
	return wrap("unset chain claim tx id", err)
}

// SetChainRefundTxID atomically sets RefundTxID iff unset.
func (db *DB) SetChainRefundTxID(id, txid string) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		if s.RefundTxID != nil {
			return ErrAlreadyClaimed
		}
		s.RefundTxID = &txid
		return nil
	})
	return err
}

// UnsetChainRefundTxID frees the refund tx id slot after a broadcast
// failure.
func (db *DB) UnsetChainRefundTxID(id, txid string) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		if s.RefundTxID != nil && *s.RefundTxID == txid {
			s.RefundTxID = nil
		}
		return nil
	})
	return wrap("unset chain refund tx id", err)
}

// UpdateChainSwapAcceptZeroConf updates the zero-conf acceptance flag.
func (db *DB) UpdateChainSwapAcceptZeroConf(id string, accept bool) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		s.AcceptZeroConf = accept
		return nil
	})
	return wrap("update chain swap accept zero conf", err)
}

// UpdateAcceptedReceiverAmount sets AcceptedReceiverAmountSat. Passing
// nil clears it, the only case in which it may be cleared after being
// set (invariant 4: recovery from a failed server-side accept).
func (db *DB) UpdateAcceptedReceiverAmount(id string, amountSat *uint64) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		s.AcceptedReceiverAmountSat = amountSat
		return nil
	})
	return wrap("update accepted receiver amount", err)
}

// UpdateActualPayerAmount records the actual on-chain observed payer
// amount for an amountless chain swap.
func (db *DB) UpdateActualPayerAmount(id string, amountSat uint64) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		s.ActualPayerAmountSat = &amountSat
		return nil
	})
	return wrap("update actual payer amount", err)
}

// SetChainSwapAutoAcceptedFees marks that the quote for this amountless
// chain swap was accepted automatically rather than by explicit user
// action.
func (db *DB) SetChainSwapAutoAcceptedFees(id string) error {
	_, err := db.mutateChainSwap(id, func(s *swap.ChainSwap) error {
		s.AutoAcceptedFees = true
		return nil
	})
	return wrap("set chain swap auto accepted fees", err)
}

// ListPendingOutgoingChainSwapsByLockupTxID returns pending or
// refund-pending outgoing chain swaps with a user lockup but no
// refund, the set the expiry refund scheduler in spec.md §4.8 walks.
func (db *DB) ListPendingOutgoingChainSwapsByLockupTxID() ([]*swap.ChainSwap, error) {
	all, err := db.ListChainSwaps()
	if err != nil {
		return nil, err
	}
	var out []*swap.ChainSwap
	for _, s := range all {
		if s.Direction != swap.Outgoing {
			continue
		}
		if s.State != swap.Pending && s.State != swap.RefundPending {
			continue
		}
		if s.UserLockupTxID != nil && s.RefundTxID == nil {
			out = append(out, s)
		}
	}
	return out, nil
}
