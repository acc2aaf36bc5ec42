// Package host defines the external-collaborator boundary: the
// callbacks the core invokes outward (wallet, chain, UI) and the events
// the host delivers inward (new block, message, puzzle/solution reply).
// Everything here is an interface; concrete implementations (a real
// wallet RPC client, an HTTP/UI shell, the blockchain simulator) live
// outside this module.
package host

import (
	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/watch"
	"github.com/chia-network/chia-gaming-go/wire"
)

// SpendBundle is re-exported from types so host callers don't need to
// import two packages for one concept.
type SpendBundle = types.SpendBundle

// Callbacks is the host interface the core calls out through.
type Callbacks interface {
	// SendMessage delivers envelope to the peer. Asynchronous; MUST
	// eventually deliver in order.
	SendMessage(envelope wire.Envelope) error

	// RegisterCoin begins watching coin, idempotent by coin id.
	RegisterCoin(coin types.Coin, timeoutBlocks uint32, debugName string)

	// SpendTransactionAndAddFee submits bundle to chain, the host
	// adding whatever fee current policy calls for. Fee-market policy
	// itself is out of scope; the parameter exists
	// because a real host call needs one.
	SpendTransactionAndAddFee(bundle SpendBundle, feeRateHint uint64) error

	// RequestPuzzleAndSolution queries the chain for how coin was
	// spent, answered asynchronously via Events.ReportPuzzleAndSolution.
	RequestPuzzleAndSolution(coin types.Coin) error

	// ChannelPuzzleHash asks the wallet to fund a coin locked by ph,
	// as part of the handshake.
	ChannelPuzzleHash(ph types.Hash) error

	// ReceivedChannelOffer delivers the partly-signed channel-coin
	// creation bundle to the wallet for co-signing (handshake step E).
	ReceivedChannelOffer(bundle SpendBundle) error

	// ReceivedChannelTransactionCompletion delivers the fully-signed
	// channel-coin creation bundle to the wallet to broadcast
	// (handshake step F).
	ReceivedChannelTransactionCompletion(bundle SpendBundle) error
}

// UI is the host interface the core calls out through to notify a user
// interface of game and channel lifecycle events.
type UI interface {
	SelfMove(gameID [32]byte, move []byte)
	OpponentMoved(gameID [32]byte, move []byte)
	RawGameMessage(gameID [32]byte, message []byte)
	GameMessage(gameID [32]byte, message []byte)
	GameStart(gameID [32]byte)
	GameFinished(gameID [32]byte, myShare types.Amount)
	GameCancelled(gameID [32]byte)
	ShutdownComplete(rewardCoin types.Coin)
	GoingOnChain(gotError bool)
}

// Events is what the host delivers into the core.
type Events interface {
	NewBlock(height uint64, report watch.Report)
	DeliverMessage(raw []byte)
	ReportPuzzleAndSolution(coin types.Coin, puzzle *types.Puzzle, solution *types.Node)
}

// GameFactory runs a game type's start-negotiation factory program: the
// per-type CLVM (or, in tests, Go closure) that turns a GameStart
// request into the pair of per-side GameStartInfo lists. Output MUST
// be exactly
// [my_side_starts, their_side_starts].
type GameFactory interface {
	RunFactory(gameType string, amount, myContribution types.Amount, myTurn bool, parameters []byte) (mySide, theirSide []FactoryGameStart, err error)
}

// GameStartRequest is the UI-facing input to a StartGames round: what
// the local player wants to propose, before the factory resolves it
// into the mutual FactoryGameStart pair.
type GameStartRequest struct {
	GameType       string
	Timeout        uint32
	Amount         types.Amount
	MyContribution types.Amount
	MyTurn         bool
	Parameters     []byte
}

// FactoryGameStart is one game's worth of factory output, before it's
// turned into a channelpkg.GameStartInfo (which additionally needs a
// fresh GameID and the resolved ValidationProgram handle).
type FactoryGameStart struct {
	Timeout           uint32
	Amount            types.Amount
	MyContribution    types.Amount
	MyTurn            bool
	ValidationProgram *types.Program
	InitialState      []byte
}

// AggSigConstant names the network-wide constant AggSigMe conditions
// bind into their signed message (GLOSSARY).
type AggSigConstant = types.Hash

// DefaultConditions is a convenience constructor for an unroll
// puzzle's post-timeout default condition list, used by hosts wiring
// up the on-chain simulator.
func DefaultConditions(conds condition.List) condition.List {
	return conds
}
