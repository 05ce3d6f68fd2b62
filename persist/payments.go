package persist

import (
	"github.com/lightningnetwork/lnliquid/swap"
	bolt "go.etcd.io/bbolt"
)

// InsertOrUpdatePayment upserts a payment_tx_data row keyed by tx id,
// used for both the pseudo-payment rows handlers insert for instant UI
// visibility (spec.md §4.6/§4.7) and later confirmation updates.
func (db *DB) InsertOrUpdatePayment(tx swap.PaymentTxData) error {
	return wrap("insert or update payment", db.Update(func(btx *bolt.Tx) error {
		data, err := marshal(&tx)
		if err != nil {
			return err
		}
		return btx.Bucket(bucketPaymentTxData).Put([]byte(tx.TxID), data)
	}))
}

// GetPaymentTxData returns the tx row for txid, if any.
func (db *DB) GetPaymentTxData(txid string) (*swap.PaymentTxData, error) {
	var out swap.PaymentTxData
	err := db.View(func(btx *bolt.Tx) error {
		data := btx.Bucket(bucketPaymentTxData).Get([]byte(txid))
		if data == nil {
			return ErrNotFound
		}
		return unmarshal(data, &out)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

// ReserveAddress records that addr has been handed out to a caller so
// the same address is never derived twice concurrently (supplemented
// feature, see SPEC_FULL.md §3).
func (db *DB) ReserveAddress(addr string) error {
	return wrap("reserve address", db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(bucketReservedAddrs).Put([]byte(addr), []byte{1})
	}))
}

// ListReservedAddresses returns every address currently reserved.
func (db *DB) ListReservedAddresses() ([]string, error) {
	var out []string
	err := db.View(func(btx *bolt.Tx) error {
		return btx.Bucket(bucketReservedAddrs).ForEach(func(k, _ []byte) error {
			out = append(out, string(k))
			return nil
		})
	})
	return out, wrap("list reserved addresses", err)
}

// DeleteReservedAddress releases addr once its swap has been
// created/consumed.
func (db *DB) DeleteReservedAddress(addr string) error {
	return wrap("delete reserved address", db.Update(func(btx *bolt.Tx) error {
		return btx.Bucket(bucketReservedAddrs).Delete([]byte(addr))
	}))
}

// GetPayments returns every payment known to the store: payment_tx_data
// rows without a matching swap follow confirmation status, and swaps
// without a tx yet follow the swap's own state, matching the Payment
// constructor precedence described in spec.md §3.
func (db *DB) GetPayments() ([]swap.Payment, error) {
	var payments []swap.Payment

	txs := make(map[string]swap.PaymentTxData)
	err := db.View(func(btx *bolt.Tx) error {
		return btx.Bucket(bucketPaymentTxData).ForEach(func(_, data []byte) error {
			var t swap.PaymentTxData
			if err := unmarshal(data, &t); err != nil {
				return err
			}
			txs[t.TxID] = t
			return nil
		})
	})
	if err != nil {
		return nil, wrap("get payments: scan tx data", err)
	}

	consumed := make(map[string]bool)

	sendSwaps, err := db.ListSendSwaps()
	if err != nil {
		return nil, err
	}
	for _, s := range sendSwaps {
		amount := -int64(s.PayerAmountSat)
		if s.LockupTxID != nil {
			if t, ok := txs[*s.LockupTxID]; ok {
				payments = append(payments, swap.NewPaymentFromTxAndSwap(t, s.Swap, s.Description))
				consumed[t.TxID] = true
				continue
			}
		}
		payments = append(payments, swap.NewPaymentFromSwap(s.Swap, amount, swap.Send))
	}

	receiveSwaps, err := db.ListReceiveSwaps()
	if err != nil {
		return nil, err
	}
	for _, s := range receiveSwaps {
		amount := int64(s.ReceiverAmountSat)
		txid := s.ClaimTxID
		if txid == nil {
			txid = s.MRHTxID
		}
		if txid != nil {
			if t, ok := txs[*txid]; ok {
				payments = append(payments, swap.NewPaymentFromTxAndSwap(t, s.Swap, s.Description))
				consumed[t.TxID] = true
				continue
			}
		}
		payments = append(payments, swap.NewPaymentFromSwap(s.Swap, amount, swap.Receive))
	}

	chainSwaps, err := db.ListChainSwaps()
	if err != nil {
		return nil, err
	}
	for _, s := range chainSwaps {
		amount := int64(s.ReceiverAmountSat)
		ptype := swap.Receive
		if s.Direction == swap.Outgoing {
			amount = -int64(s.PayerAmountSat)
			ptype = swap.Send
		}
		var txid *string
		if s.ClaimTxID != nil {
			txid = s.ClaimTxID
		} else if s.UserLockupTxID != nil {
			txid = s.UserLockupTxID
		}
		if txid != nil {
			if t, ok := txs[*txid]; ok {
				payments = append(payments, swap.NewPaymentFromTxAndSwap(t, s.Swap, s.Description))
				consumed[t.TxID] = true
				continue
			}
		}
		payments = append(payments, swap.NewPaymentFromSwap(s.Swap, amount, ptype))
	}

	for txid, t := range txs {
		if consumed[txid] {
			continue
		}
		payments = append(payments, swap.NewPaymentFromTx(t))
	}

	return payments, nil
}
