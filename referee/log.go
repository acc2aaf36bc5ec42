package referee

import "github.com/btcsuite/btclog"

// log is the subsystem logger for the referee maker: a disabled logger
// until UseLogger is called by the host binary.
var log = btclog.Disabled

// UseLogger sets the package-wide logger used by every referee maker.
func UseLogger(logger btclog.Logger) {
	log = logger
}
