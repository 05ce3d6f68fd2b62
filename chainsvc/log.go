package chainsvc

import "github.com/btcsuite/btclog"

// log is this subsystem's logger, wired by the root package's
// init the way every lnd subsystem package exposes its own
// UseLogger hook instead of importing a shared logger directly (that
// would create an import cycle with the root package, which imports
// this one).
var log = btclog.Disabled

// UseLogger sets the logger used by this package. Called once from the
// root package's init, mirroring lnd's per-subsystem logging setup.
func UseLogger(l btclog.Logger) {
	log = l
}
