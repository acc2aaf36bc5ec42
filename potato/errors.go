package potato

import "errors"

// Sentinel errors for the potato handler. Receiving a message illegal
// in the current handshake/queue state is
// treated as fatal per-peer, with the UI notified alongside an on-chain
// transition.
var (
	ErrUnexpectedMessage   = errors.New("potato: message illegal in current handshake state")
	ErrNotPotatoHolder     = errors.New("potato: action requires holding the potato")
	ErrAlreadyHandshaking  = errors.New("potato: handshake already in progress")
	ErrShutdownConditions  = errors.New("potato: shutdown conditions do not pay out our balance")

	// ErrGameNotQueued is returned by CancelGame when gameID doesn't
	// name a StartGames request still parked in game_action_queue.
	ErrGameNotQueued = errors.New("potato: no queued start-games request for that game id")
)
