package persist

import "encoding/binary"

// byteOrder is the preferred byte order for any raw integer keys,
// matching channeldb's choice of big-endian so cursor scans over
// integer-keyed buckets iterate in order.
var byteOrder = binary.BigEndian

// Bucket names mirror the table list in spec.md §6. Each top-level
// bucket holds one JSON-encoded record per key, the same
// bucket-per-entity layout channeldb.Open uses for bbolt, adapted from
// a single monolithic "channel.db" file to a "swaps.db" file scoped to
// this SDK's persisted state.
var (
	bucketSendSwaps      = []byte("send_swaps")
	bucketReceiveSwaps   = []byte("receive_swaps")
	bucketChainSwaps     = []byte("chain_swaps")
	bucketPaymentTxData  = []byte("payment_tx_data")
	bucketPayments       = []byte("payments")
	bucketReservedAddrs  = []byte("reserved_addresses")
	bucketSyncState      = []byte("sync_state")
	bucketSyncIncoming   = []byte("sync_incoming")
	bucketSyncOutgoing   = []byte("sync_outgoing")
	bucketSyncSettings   = []byte("sync_settings")
	bucketBolt12Offers   = []byte("bolt12_offers")
	bucketCachedItems    = []byte("cached_items")
	bucketPluginKV       = []byte("plugin_kv")
	bucketMeta           = []byte("meta")

	// Secondary indexes, keyed by a derived field rather than the
	// primary swap id, to support the fetch_*_by_* lookups in §4.2.
	bucketChainSwapsByLockupAddr = []byte("chain_swaps_by_lockup_addr")
	bucketReceiveSwapsByInvoice  = []byte("receive_swaps_by_invoice")
)

var allBuckets = [][]byte{
	bucketSendSwaps, bucketReceiveSwaps, bucketChainSwaps,
	bucketPaymentTxData, bucketPayments, bucketReservedAddrs,
	bucketSyncState, bucketSyncIncoming, bucketSyncOutgoing,
	bucketSyncSettings, bucketBolt12Offers, bucketCachedItems,
	bucketPluginKV, bucketMeta,
	bucketChainSwapsByLockupAddr, bucketReceiveSwapsByInvoice,
}
