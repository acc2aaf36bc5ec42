// Package referee implements the per-game on-chain-capable state
// machine: it wraps a game-specific validation program behind a single
// run() collaborator, and exposes the operations the channel handler
// and the unroll engine need to drive a game off chain and, if it comes
// to that, on chain. A Maker holds just enough state to decide its next
// on-chain action: move replay, slash, or timeout claim.
package referee

import (
	"fmt"

	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/types"
)

// GameMoveDetails is the fully determined result of a move: the new
// validation-puzzle-hash, the new mover share, a cap on the next move's
// size, and the next validation program to hand future moves to.
type GameMoveDetails struct {
	ValidationPuzzleHash types.Hash
	MoverShare           types.Amount
	MaxMoveSize          int
	NextValidationProgram *types.Program

	// Move is the raw on-the-wire move bytes (what actually gets
	// signed and, on chain, replayed).
	Move []byte

	// Signature is our referee-key signature over Move, present once
	// my_turn_make_move has produced it.
	Signature types.Signature
}

// Maker is the per-game referee state machine.
// One Maker exists per LiveGame, for the lifetime of that game, whether
// or not it's ever actually materialized as an on-chain referee coin.
type Maker struct {
	GameID [32]byte

	runner types.ProgramRunner

	// previousValidationHash and currentValidationHash track the
	// validation-program hash before and after the last move, so a
	// slash can prove the mover used a stale/incorrect program.
	previousValidationHash types.Hash
	currentValidationHash  types.Hash
	currentValidationProgram *types.Program

	// state is the opaque (to us) game state blob the validation
	// program interprets; the referee never looks inside it.
	state []byte

	// mover is true if it is our turn to move next.
	mover bool

	// ourKey / theirKey are the referee public keys of the two
	// parties; moves are signed by whichever side is NOT currently
	// "mover" in the on-chain puzzle's terms -- i.e. the side that
	// just finished making the move signs it for replay.
	ourKey, theirKey types.PublicKey
	ourPrivateKey    types.PrivateKey

	nonce uint64
	stake types.Amount

	timeoutBlocks uint32

	puzzleHash types.Hash
	myShare    types.Amount

	// lastMove is the most recent move this Maker itself signed via
	// MyTurnMakeMove, kept around so GetTransactionForMove can replay
	// it on chain without the caller having to keep its own copy.
	lastMove *GameMoveDetails
}

// Config bundles everything needed to construct a Maker for a newly
// started (or rehydrated, after a StartGames round-trip) game.
type Config struct {
	GameID          [32]byte
	Runner          types.ProgramRunner
	ValidationProgram *types.Program
	InitialState    []byte
	OurTurn         bool
	OurKey, TheirKey types.PublicKey
	OurPrivateKey   types.PrivateKey
	Stake           types.Amount
	MyShare         types.Amount
	TimeoutBlocks   uint32
}

// NewMaker builds a referee maker for a freshly agreed game start.
func NewMaker(cfg Config) *Maker {
	vph := cfg.ValidationProgram.TreeHash()
	return &Maker{
		GameID:                   cfg.GameID,
		runner:                   cfg.Runner,
		currentValidationHash:    vph,
		previousValidationHash:   vph,
		currentValidationProgram: cfg.ValidationProgram,
		state:                    cfg.InitialState,
		mover:                    cfg.OurTurn,
		ourKey:                   cfg.OurKey,
		theirKey:                 cfg.TheirKey,
		ourPrivateKey:            cfg.OurPrivateKey,
		stake:                    cfg.Stake,
		myShare:                  cfg.MyShare,
		timeoutBlocks:            cfg.TimeoutBlocks,
		puzzleHash:               refereePuzzleHash(vph, cfg.GameID, initialMoverShare(cfg)),
	}
}

// initialMoverShare derives the canonical, mover-relative share the
// referee coin's initial puzzle hash is curried on. cfg.MyShare is each
// side's own view of its contribution; whichever side starts as mover
// (cfg.OurTurn) contributes the canonical value directly, and the
// other side recovers the same value as stake-minus-its-own-share --
// otherwise the two parties' mirrored Makers would curry different
// puzzle hashes for the same game.
func initialMoverShare(cfg Config) types.Amount {
	if cfg.OurTurn {
		return cfg.MyShare
	}
	return cfg.Stake - cfg.MyShare
}

// refereePuzzleHash derives the on-chain referee coin's locking puzzle
// hash from the game's current validation program, identity, and share.
// Identical in both peers when run over agreed-on state.
func refereePuzzleHash(validationHash types.Hash, gameID [32]byte, myShare types.Amount) types.Hash {
	node := types.List(
		types.Atom(validationHash[:]),
		types.Atom(gameID[:]),
		types.Atom([]byte(fmt.Sprintf("%d", myShare))),
	)
	return node.TreeHash()
}

// GetCurrentPuzzleHash returns the referee coin puzzle hash to use for
// this game in the channel handler's unroll condition list.
func (m *Maker) GetCurrentPuzzleHash() types.Hash {
	return m.puzzleHash
}

// GetMyShare returns our current share of the game's stake.
func (m *Maker) GetMyShare() types.Amount {
	return m.myShare
}

// GetAmount returns the game's total stake (our share + the peer's).
func (m *Maker) GetAmount() types.Amount {
	return m.stake
}

// GetTimeoutBlocks returns the referee coin's own timelock, for the
// coin watcher to register the successor referee coin with once it's
// observed on chain, rather than some blanket default.
func (m *Maker) GetTimeoutBlocks() uint32 {
	return m.timeoutBlocks
}

// moveSolution builds the Node handed to the validation program to
// evaluate a proposed move against the current state.
func moveSolution(state, move []byte) *types.Program {
	return types.List(types.Atom(state), types.Atom(move))
}

// MyTurnMakeMove validates readableMove's structural preconditions (it
// must be our turn) and then runs the current validation program to
// produce a fully determined GameMoveDetails, signing the resulting move
// with our referee key.
func (m *Maker) MyTurnMakeMove(readableMove []byte) (*GameMoveDetails, error) {
	if !m.mover {
		return nil, &ErrStructuralPrecondition{Reason: "not our turn"}
	}

	output, err := m.runner.Run(m.currentValidationProgram, moveSolution(m.state, readableMove))
	if err != nil {
		return nil, fmt.Errorf("referee: validation program rejected our own move: %w", err)
	}

	details, newState, err := decodeMoveOutput(output)
	if err != nil {
		return nil, err
	}

	details.Signature = m.ourPrivateKey.Sign(readableMove)
	details.Move = readableMove

	m.previousValidationHash = m.currentValidationHash
	m.currentValidationHash = details.ValidationPuzzleHash
	m.state = newState
	m.myShare = details.MoverShare
	m.mover = false
	m.puzzleHash = refereePuzzleHash(details.ValidationPuzzleHash, m.GameID, m.myShare)
	m.lastMove = details

	log.Debugf("game %x: made move, new share %d", m.GameID, m.myShare)

	return details, nil
}

// LastMove returns the most recent move this Maker signed via
// MyTurnMakeMove, for replay on chain.
// ok is false if we have never been the mover for this game.
func (m *Maker) LastMove() (details GameMoveDetails, ok bool) {
	if m.lastMove == nil {
		return GameMoveDetails{}, false
	}
	return *m.lastMove, true
}

// TheirTurnMoveOffChain validates a peer-claimed move against the prior
// state and current validation program. On mismatch it returns a
// *GameMoveRejected carrying the opaque rejection payload; the
// accepting side is expected to initiate an on-chain dispute.
func (m *Maker) TheirTurnMoveOffChain(details *GameMoveDetails) (readableMove []byte, message []byte, err error) {
	if m.mover {
		return nil, nil, &ErrStructuralPrecondition{Reason: "it is our turn, not theirs"}
	}

	output, err := m.runner.Run(m.currentValidationProgram, moveSolution(m.state, details.Move))
	if err != nil {
		return nil, nil, &GameMoveRejected{GameID: m.GameID, Payload: []byte(err.Error())}
	}

	wantDetails, newState, err := decodeMoveOutput(output)
	if err != nil {
		return nil, nil, err
	}
	if wantDetails.ValidationPuzzleHash != details.ValidationPuzzleHash ||
		wantDetails.MoverShare != details.MoverShare {
		return nil, nil, &GameMoveRejected{
			GameID:  m.GameID,
			Payload: []byte("claimed move details do not match validation program output"),
		}
	}

	if !types.Verify(m.theirKey, details.Move, details.Signature) {
		return nil, nil, &GameMoveRejected{
			GameID:  m.GameID,
			Payload: []byte("move signature does not verify"),
		}
	}

	m.previousValidationHash = m.currentValidationHash
	m.currentValidationHash = details.ValidationPuzzleHash
	m.state = newState
	m.myShare = m.stake - details.MoverShare
	m.mover = true
	// The referee coin's puzzle hash is curried on the mover's share as
	// the validation program reported it, not on our own complementary
	// share bookkeeping -- both parties' Makers for the same game must
	// derive the identical puzzle hash, and details.MoverShare
	// is the one value both sides observed identically.
	m.puzzleHash = refereePuzzleHash(details.ValidationPuzzleHash, m.GameID, details.MoverShare)

	readableMove, message = splitReadableAndMessage(details.Move)
	return readableMove, message, nil
}

// decodeMoveOutput interprets a validation program's run() output: the
// Node list (validation_puzzle_hash mover_share max_move_size new_state
// next_validation_program_hash). next_validation_program itself is
// opaque to us here -- in a real deployment it would be resolved via
// the injected program provider keyed by the hash; tests supply it
// directly through the ProgramRunner's closure table.
func decodeMoveOutput(output *types.Node) (*GameMoveDetails, []byte, error) {
	parts, err := output.ToList()
	if err != nil || len(parts) < 4 {
		return nil, nil, fmt.Errorf("referee: malformed validation program output")
	}
	vph, err := parts[0].AsAtom()
	if err != nil || len(vph) != 32 {
		return nil, nil, fmt.Errorf("referee: malformed validation puzzle hash")
	}
	shareBytes, err := parts[1].AsAtom()
	if err != nil {
		return nil, nil, fmt.Errorf("referee: malformed mover share")
	}
	sizeBytes, err := parts[2].AsAtom()
	if err != nil {
		return nil, nil, fmt.Errorf("referee: malformed max move size")
	}
	newState, err := parts[3].AsAtom()
	if err != nil {
		return nil, nil, fmt.Errorf("referee: malformed new state")
	}

	var hash types.Hash
	copy(hash[:], vph)

	details := &GameMoveDetails{
		ValidationPuzzleHash: hash,
		MoverShare:           types.Amount(decodeInt(shareBytes)),
		MaxMoveSize:          int(decodeInt(sizeBytes)),
	}
	return details, newState, nil
}

func decodeInt(b []byte) int64 {
	var v int64
	for _, by := range b {
		v = v<<8 | int64(by)
	}
	return v
}

// splitReadableAndMessage separates a move's user-visible decoded
// payload from an optional inter-player message the move carries
// piggy-backed, by convention a single 0x00
// separator byte. Games that never emit an inter-player message simply
// never include the separator.
func splitReadableAndMessage(state []byte) (readable, message []byte) {
	for i, b := range state {
		if b == 0 {
			return state[:i], state[i+1:]
		}
	}
	return state, nil
}

// GetTransactionForMove produces the solution needed to spend gameCoin
// on chain, replaying the last move this Maker signed. Used by the
// on-chain dispatch path once a referee coin exists.
func (m *Maker) GetTransactionForMove(gameCoin types.Coin, move GameMoveDetails) (*types.Node, error) {
	if gameCoin.PuzzleHash != m.puzzleHash {
		return nil, fmt.Errorf("referee: game coin puzzle hash does not match current referee puzzle hash")
	}
	solution := types.List(
		types.Atom([]byte{0}), // move-branch selector
		types.Atom(move.Move),
		types.Atom(move.Signature.Bytes()),
	)
	return solution, nil
}

// SlashSolution builds the solution revealing that the mover cheated:
// the prior state, the bogus move, and proof (the validation program's
// own rejection) that the transition is invalid. Funds from the
// referee coin go to the challenger (us) if this solution is accepted
// on chain.
func (m *Maker) SlashSolution(priorState, bogusMove []byte) *types.Node {
	return types.List(
		types.Atom([]byte{1}), // slash-branch selector
		types.Atom(priorState),
		types.Atom(bogusMove),
		types.Atom(m.previousValidationHash[:]),
	)
}

// TimeoutSolution builds the solution claiming the referee coin via the
// unroll timelock after the mover failed to move in time. Funds go to
// the non-mover side.
func (m *Maker) TimeoutSolution() *types.Node {
	return types.List(types.Atom([]byte{2})) // timeout-branch selector
}

// Condition helpers used by the channel handler to compose unroll
// condition lists: one CreateCoin per live game, in list order.
func (m *Maker) CreateCoinCondition() condition.Condition {
	return condition.NewCreateCoin(m.puzzleHash, m.stake)
}

// Snapshot is a serializable dump of one Maker's game state, for
// host-side persistence alongside the channel handler's own snapshot.
// Key material and the program runner are deliberately omitted; the
// host supplies them again at restore time.
type Snapshot struct {
	GameID                 [32]byte
	PreviousValidationHash types.Hash
	CurrentValidationHash  types.Hash
	ValidationProgram      *types.Program
	State                  []byte
	Mover                  bool
	Nonce                  uint64
	Stake                  types.Amount
	MyShare                types.Amount
	TimeoutBlocks          uint32
	PuzzleHash             types.Hash
	LastMove               *GameMoveDetails
}

// Snapshot captures the Maker's current state.
func (m *Maker) Snapshot() Snapshot {
	return Snapshot{
		GameID:                 m.GameID,
		PreviousValidationHash: m.previousValidationHash,
		CurrentValidationHash:  m.currentValidationHash,
		ValidationProgram:      m.currentValidationProgram,
		State:                  m.state,
		Mover:                  m.mover,
		Nonce:                  m.nonce,
		Stake:                  m.stake,
		MyShare:                m.myShare,
		TimeoutBlocks:          m.timeoutBlocks,
		PuzzleHash:             m.puzzleHash,
		LastMove:               m.lastMove,
	}
}

// FromSnapshot rebuilds a Maker from snap plus the immutable inputs the
// snapshot omits: the program runner and the two parties' referee keys.
func FromSnapshot(snap Snapshot, runner types.ProgramRunner, ourKey, theirKey types.PublicKey, ourPrivateKey types.PrivateKey) *Maker {
	return &Maker{
		GameID:                   snap.GameID,
		runner:                   runner,
		previousValidationHash:   snap.PreviousValidationHash,
		currentValidationHash:    snap.CurrentValidationHash,
		currentValidationProgram: snap.ValidationProgram,
		state:                    snap.State,
		mover:                    snap.Mover,
		ourKey:                   ourKey,
		theirKey:                 theirKey,
		ourPrivateKey:            ourPrivateKey,
		nonce:                    snap.Nonce,
		stake:                    snap.Stake,
		myShare:                  snap.MyShare,
		timeoutBlocks:            snap.TimeoutBlocks,
		puzzleHash:               snap.PuzzleHash,
		lastMove:                 snap.LastMove,
	}
}
