package persist

import bolt "go.etcd.io/bbolt"

// scopedKey prefixes key with pluginID so different plugins can't
// collide in the shared KV bucket (spec.md §4.2: "Plugin KV:
// {set,get,remove}_item(scoped_key, value) with plugin_id prefix").
func scopedKey(pluginID, key string) []byte {
	return []byte(pluginID + ":" + key)
}

// SetItem stores value under a plugin-scoped key.
func (db *DB) SetItem(pluginID, key string, value []byte) error {
	return wrap("set item", db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPluginKV).Put(scopedKey(pluginID, key), value)
	}))
}

// GetItem returns the value stored under a plugin-scoped key.
func (db *DB) GetItem(pluginID, key string) ([]byte, error) {
	var out []byte
	err := db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketPluginKV).Get(scopedKey(pluginID, key))
		if v == nil {
			return ErrNotFound
		}
		out = append([]byte(nil), v...)
		return nil
	})
	return out, err
}

// RemoveItem deletes a plugin-scoped key.
func (db *DB) RemoveItem(pluginID, key string) error {
	return wrap("remove item", db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPluginKV).Delete(scopedKey(pluginID, key))
	}))
}

// Bolt12Offer is a persisted BOLT12 offer row (supplemented feature,
// see SPEC_FULL.md §3), keyed by offer id.
type Bolt12Offer struct {
	OfferID string
	SwapID  string
	Offer   string
}

// InsertBolt12Offer upserts a BOLT12 offer row.
func (db *DB) InsertBolt12Offer(o Bolt12Offer) error {
	return wrap("insert bolt12 offer", db.Update(func(tx *bolt.Tx) error {
		data, err := marshal(&o)
		if err != nil {
			return err
		}
		return tx.Bucket(bucketBolt12Offers).Put([]byte(o.OfferID), data)
	}))
}

// FetchBolt12Offer returns the offer row for offerID.
func (db *DB) FetchBolt12Offer(offerID string) (*Bolt12Offer, error) {
	var o Bolt12Offer
	err := db.View(func(tx *bolt.Tx) error {
		data := tx.Bucket(bucketBolt12Offers).Get([]byte(offerID))
		if data == nil {
			return ErrNotFound
		}
		return unmarshal(data, &o)
	})
	if err != nil {
		return nil, err
	}
	return &o, nil
}
