package channelpkg

import "errors"

// Sentinel errors for the channel handler.
var (
	// ErrReplyFromFuture is returned by ChannelCoinSpent when the
	// observed state number is ahead of our current state number, a
	// state we never produced.
	ErrReplyFromFuture = errors.New("channelpkg: observed state is ahead of our current state")

	// ErrCannotSupersedeOwnState is returned when the observed state
	// number is behind ours but carries our own parity -- the peer
	// cannot supersede their own prior commitment with a replay of
	// ours.
	ErrCannotSupersedeOwnState = errors.New("channelpkg: cannot supersede our own committed state")

	// ErrSignatureVerification is returned whenever a peer-supplied
	// partial signature fails to verify against the expected
	// aggregate public key. Fatal; callers are expected to
	// transition on chain.
	ErrSignatureVerification = errors.New("channelpkg: partial signature verification failed")

	// ErrInconsistentCache is returned when CachedLastAction
	// references a game id that's no longer present in the live game
	// list.
	ErrInconsistentCache = errors.New("channelpkg: cached last action refers to a missing game")

	// ErrGameNotFound is returned when an operation names a game id
	// that isn't in the live game list.
	ErrGameNotFound = errors.New("channelpkg: no such live game")

	// ErrDistinctPubkeysRequired is returned by Initiate if our and the
	// peer's channel public keys are equal (a degenerate, non-2-of-2
	// channel).
	ErrDistinctPubkeysRequired = errors.New("channelpkg: our and peer channel public keys must differ")

	// ErrPotatoDiscipline is returned when a clean shutdown is
	// attempted by the side that does not hold the potato.
	ErrPotatoDiscipline = errors.New("channelpkg: clean shutdown must be initiated by the potato holder")

	// ErrHandshakeNotFinished is returned by operations that require a
	// completed handshake when the channel coin hasn't been created.
	ErrHandshakeNotFinished = errors.New("channelpkg: handshake not finished")

	// ErrShutdownUnderpays is returned by ReceivedCleanShutdown when
	// the proposed split pays our reward puzzle hash less than our
	// current out-of-game balance.
	ErrShutdownUnderpays = errors.New("channelpkg: proposed shutdown pays us less than our balance")
)
