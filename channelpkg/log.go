package channelpkg

import "github.com/btcsuite/btclog"

var log = btclog.Disabled

// UseLogger sets the package-wide logger used by every channel
// handler. Callers wire this up before any handler is constructed.
func UseLogger(logger btclog.Logger) {
	log = logger
}
