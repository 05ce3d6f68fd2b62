package lnliquid

import (
	"os"

	"github.com/btcsuite/btclog"

	"github.com/lightningnetwork/lnliquid/chainsvc"
	"github.com/lightningnetwork/lnliquid/eventbus"
	"github.com/lightningnetwork/lnliquid/handlers"
	"github.com/lightningnetwork/lnliquid/persist"
	"github.com/lightningnetwork/lnliquid/reconcile"
	"github.com/lightningnetwork/lnliquid/sprvr"
	"github.com/lightningnetwork/lnliquid/statusstream"
	"github.com/lightningnetwork/lnliquid/swap"
	"github.com/lightningnetwork/lnliquid/swapper"
)

// subsystems is the list of logger tags the SDK registers, one per
// component so operators can raise/lower verbosity per component the
// way lnd's SetLogLevels does.
var subsystems = []string{
	"SWAP", "PRST", "CHSV", "SWPR", "STRM", "HNDL", "RCNC", "SPRV", "EVTB",
}

// loggers holds one btclog.Logger per subsystem tag.
var loggers = make(map[string]btclog.Logger, len(subsystems))

func init() {
	backend := btclog.NewBackend(os.Stdout)
	for _, tag := range subsystems {
		loggers[tag] = backend.Logger(tag)
	}

	// Wire each subsystem package's own logger var, lnd's per-package
	// UseLogger idiom: packages never import this root package (that
	// would cycle), so the root is the only place that can reach in and
	// set them.
	swap.UseLogger(loggers["SWAP"])
	persist.UseLogger(loggers["PRST"])
	chainsvc.UseLogger(loggers["CHSV"])
	swapper.UseLogger(loggers["SWPR"])
	statusstream.UseLogger(loggers["STRM"])
	handlers.UseLogger(loggers["HNDL"])
	reconcile.UseLogger(loggers["RCNC"])
	sprvr.UseLogger(loggers["SPRV"])
	eventbus.UseLogger(loggers["EVTB"])
}

// Logger returns the logger registered for tag, or the disabled logger
// if tag is unknown.
func Logger(tag string) btclog.Logger {
	if l, ok := loggers[tag]; ok {
		return l
	}
	return btclog.Disabled
}

// SetLogLevel sets the verbosity of a single subsystem by tag.
func SetLogLevel(tag, level string) {
	l, ok := loggers[tag]
	if !ok {
		return
	}
	lvl, ok := btclog.LevelFromString(level)
	if !ok {
		return
	}
	l.SetLevel(lvl)
}

// SetLogLevels sets the verbosity of every registered subsystem.
func SetLogLevels(level string) {
	for tag := range loggers {
		SetLogLevel(tag, level)
	}
}
