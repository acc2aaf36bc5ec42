package potato

import "github.com/chia-network/chia-gaming-go/channelpkg"

// PotatoState tracks who currently holds the exclusive right to
// initiate a state transition. Requested is the transient state
// between Absent and Present: we want the potato and have asked for
// it, but the peer hasn't granted it yet.
type PotatoState uint8

const (
	Absent PotatoState = iota
	Requested
	Present
)

func (s PotatoState) String() string {
	switch s {
	case Absent:
		return "Absent"
	case Requested:
		return "Requested"
	case Present:
		return "Present"
	default:
		return "Unknown"
	}
}

type actionKind uint8

const (
	actionNil actionKind = iota
	actionStartGames
	actionMove
	actionAccept
	actionShutdown
)

// queuedAction is one entry in game_action_queue: a local
// request to take a potato-requiring action, parked until the potato
// is ours to use.
type queuedAction struct {
	kind actionKind

	startMySide   []channelpkg.GameStartInfo
	startTheirSide []channelpkg.GameStartInfo

	gameID [32]byte
	move   []byte
}
