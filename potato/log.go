package potato

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by every potato handler.
func UseLogger(logger btclog.Logger) {
	log = logger
}
