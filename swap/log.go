package swap

import "github.com/btcsuite/btclog"

// log is this subsystem's logger, wired by the root package's init.
var log = btclog.Disabled

// UseLogger sets the logger used by this package.
func UseLogger(l btclog.Logger) {
	log = l
}
