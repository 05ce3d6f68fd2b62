package swapper

import "context"

// ResolveMRH implements check_for_mrh (spec.md §4.4 / invariant 5): a
// reverse swap's invoice may carry a Magic Routing Hint address in one
// of its fallback/tagged fields, letting the payer settle directly
// on-chain instead of over Lightning. The BOLT11 decode itself lives in
// package invoice; callers pass what local decoding already found, and
// ResolveMRH only falls back to asking the server when local decoding
// came up empty (e.g. an older invoice encoding not locally understood).
func ResolveMRH(ctx context.Context, client *Client, invoice string, localAddress string, localFound bool) (address string, found bool, err error) {
	if localFound {
		return localAddress, true, nil
	}
	return client.CheckForMRH(ctx, invoice)
}
