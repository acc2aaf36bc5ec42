package referee

import "fmt"

// GameMoveRejected is returned by TheirTurnMoveOffChain when the peer's
// claimed move doesn't validate against the prior state and validation
// program. It carries the opaque rejection payload the validation
// program produced so the UI (and, on an on-chain dispute, the slash
// transaction) can show/prove exactly what was wrong.
type GameMoveRejected struct {
	GameID  [32]byte
	Payload []byte
}

func (e *GameMoveRejected) Error() string {
	return fmt.Sprintf("referee: move rejected for game %x: %x", e.GameID, e.Payload)
}

// ErrStructuralPrecondition is returned by MyTurnMakeMove and
// TheirTurnMoveOffChain when a move is attempted by the side whose turn
// it is not, before it's ever handed to the validation program. Move
// size is not checked here.
type ErrStructuralPrecondition struct {
	Reason string
}

func (e *ErrStructuralPrecondition) Error() string {
	return fmt.Sprintf("referee: move precondition failed: %s", e.Reason)
}
