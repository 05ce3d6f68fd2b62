package persist

import "github.com/lightningnetwork/lnliquid/errkind"

// ErrNotFound is returned when a fetch-by-id/lookup finds no row.
var ErrNotFound = errkind.New(errkind.Persist, "not found", nil)

// ErrAlreadyClaimed is returned by SetClaimTxID/SetRefundTxID when the
// tx id slot is already populated — the atomic single-writer gate
// described in spec.md §4.2 lost the race (or the caller is retrying
// after a crash, per scenario F).
var ErrAlreadyClaimed = errkind.New(errkind.State, "claim/refund tx id already set", nil)

// ErrCommitStale is returned by the commit_incoming_* operations when
// the local record has a commit_time after the remote change's pull
// began (spec.md §4.2 sync tables).
var ErrCommitStale = errkind.New(errkind.State, "local record committed after pull began", nil)

// wrap classifies an underlying bbolt/encoding error as a Persist-kind
// error, matching spec.md §7 ("Persist — storage failure").
func wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return errkind.New(errkind.Persist, op, err)
}
