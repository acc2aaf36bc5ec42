// Package cradle implements the cradle facade: the single-threaded
// driver exposing a minimal host surface over the potato/channel/watch
// stack. The cradle is an explicit synchronous pump: callers advance
// it only by calling one of its methods or Idle, never by blocking on a
// channel read.
package cradle

import (
	"bytes"
	"fmt"

	"github.com/google/uuid"

	"github.com/chia-network/chia-gaming-go/channelpkg"
	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/host"
	"github.com/chia-network/chia-gaming-go/potato"
	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/unroll"
	"github.com/chia-network/chia-gaming-go/watch"
	"github.com/chia-network/chia-gaming-go/wire"
)

// OutboundTransaction pairs a spend bundle with the fee-rate hint it was
// submitted with, one of the three effect queues Idle drains.
type OutboundTransaction struct {
	Bundle      types.SpendBundle
	FeeRateHint uint64
}

// IdleResult is what Idle returns: everything produced by internal
// progress since the last call, for the host to actually perform.
type IdleResult struct {
	OutboundMessages     [][]byte
	OutboundTransactions []OutboundTransaction
	CoinSolutionRequests []types.Coin
	ContinueOn           bool
}

func (r *IdleResult) empty() bool {
	return len(r.OutboundMessages) == 0 && len(r.OutboundTransactions) == 0 && len(r.CoinSolutionRequests) == 0
}

// sink is the host.Callbacks implementation the potato handler is wired
// against: it queues effects instead of performing I/O, so Idle can
// drain them back to the real host in one synchronous batch.
type sink struct {
	wallet host.Callbacks
	watch  *watch.Adapter

	coinsByID map[types.Hash]types.Coin

	messages     [][]byte
	transactions []OutboundTransaction
	solutionReqs []types.Coin
}

func (s *sink) SendMessage(envelope wire.Envelope) error {
	var buf bytes.Buffer
	if _, err := wire.WriteMessage(&buf, envelope); err != nil {
		return err
	}
	s.messages = append(s.messages, buf.Bytes())
	return nil
}

func (s *sink) RegisterCoin(coin types.Coin, timeoutBlocks uint32, debugName string) {
	s.coinsByID[coin.ID()] = coin
	s.watch.Register(coin.ID(), timeoutBlocks, debugName)
}

func (s *sink) SpendTransactionAndAddFee(bundle host.SpendBundle, feeRateHint uint64) error {
	s.transactions = append(s.transactions, OutboundTransaction{Bundle: bundle, FeeRateHint: feeRateHint})
	return nil
}

func (s *sink) RequestPuzzleAndSolution(coin types.Coin) error {
	s.solutionReqs = append(s.solutionReqs, coin)
	return nil
}

func (s *sink) ChannelPuzzleHash(ph types.Hash) error {
	return s.wallet.ChannelPuzzleHash(ph)
}

func (s *sink) ReceivedChannelOffer(bundle host.SpendBundle) error {
	return s.wallet.ReceivedChannelOffer(bundle)
}

func (s *sink) ReceivedChannelTransactionCompletion(bundle host.SpendBundle) error {
	return s.wallet.ReceivedChannelTransactionCompletion(bundle)
}

func (s *sink) drain() ([][]byte, []OutboundTransaction, []types.Coin) {
	msgs, txs, reqs := s.messages, s.transactions, s.solutionReqs
	s.messages, s.transactions, s.solutionReqs = nil, nil, nil
	return msgs, txs, reqs
}

// Cradle is one peer's whole runtime: the channel handler, the potato
// handler wired against the effect sink above, and the coin-watch
// adapter, all advanced only through its exported methods.
type Cradle struct {
	id      uuid.UUID
	channel *channelpkg.Handler
	potato  *potato.Handler
	watch   *watch.Adapter
	sink    *sink
	runner  types.ProgramRunner

	networkAggSigConstant types.Hash

	// unrollCoin is the unroll coin created by the channel coin's
	// observed spend, once we've seen one. nil until then.
	unrollCoin *types.Coin

	// gameCoins maps a live game's id to its current on-chain referee
	// coin, populated as unroll-coin successors are matched.
	gameCoins map[[32]byte]types.Coin

	// claimedTimeouts records games whose referee-coin timeout claim
	// has already been submitted, so NewBlock doesn't resubmit the
	// same claim on every block past the deadline.
	claimedTimeouts map[[32]byte]struct{}
}

// ID returns the cradle's process-local correlation id, used only to
// tell instances apart in logs (e.g. when a host runs several cradles
// in one process for testing); it has no on-chain or wire meaning.
func (c *Cradle) ID() uuid.UUID { return c.id }

// Config bundles everything New needs to assemble one side of a channel.
type Config struct {
	OurKeys               types.ChannelHandlerPrivateKeys
	OurRewardPuzzleHash   types.Hash
	OurRefereePuzzleHash  types.Hash
	NetworkAggSigConstant types.Hash
	Runner                types.ProgramRunner
	UI                    host.UI
	Factory               host.GameFactory
	Wallet                host.Callbacks
	WeHoldPotatoAtStart   bool
	OurContribution       types.Amount
	TheirContribution     types.Amount

	// ChannelTimeout is the generous timelock the channel coin and its
	// state-0 unroll coin are pre-registered with at handshake
	// completion.
	ChannelTimeout uint32
}

// New constructs a Cradle ready to either StartHandshake (potato holder)
// or wait for an inbound HandshakeA via DeliverMessage (non-holder).
func New(cfg Config) *Cradle {
	w := watch.New()
	s := &sink{wallet: cfg.Wallet, watch: w, coinsByID: make(map[types.Hash]types.Coin)}
	channel := channelpkg.New(cfg.OurKeys, cfg.OurRewardPuzzleHash, cfg.NetworkAggSigConstant, cfg.Runner, cfg.WeHoldPotatoAtStart)
	p := potato.New(
		channel, s, cfg.UI, cfg.Factory, cfg.NetworkAggSigConstant,
		cfg.OurKeys, cfg.OurRewardPuzzleHash, cfg.OurRefereePuzzleHash,
		cfg.WeHoldPotatoAtStart, cfg.OurContribution, cfg.TheirContribution,
		cfg.ChannelTimeout,
	)
	return &Cradle{
		id:                    uuid.New(),
		channel:               channel,
		potato:                p,
		watch:                 w,
		sink:                  s,
		runner:                cfg.Runner,
		networkAggSigConstant: cfg.NetworkAggSigConstant,
		gameCoins:             make(map[[32]byte]types.Coin),
		claimedTimeouts:       make(map[[32]byte]struct{}),
	}
}

// OpeningCoin starts the handshake from the potato-holding side, funding
// the channel coin from parentCoin.
func (c *Cradle) OpeningCoin(parentCoin types.Coin) error {
	return c.potato.StartHandshake(parentCoin)
}

// SendChannelOffer forwards the wallet's partly-signed channel-coin
// bundle once it answers a ChannelPuzzleHash callback (non-holder side
// of the handshake).
func (c *Cradle) SendChannelOffer(bundle types.SpendBundle) error {
	return c.potato.SendChannelOffer(bundle)
}

// StartGames proposes one or more new games.
func (c *Cradle) StartGames(reqs []host.GameStartRequest) error {
	return c.potato.RequestStartGames(reqs)
}

// MakeMove proposes a move in an existing game.
func (c *Cradle) MakeMove(gameID [32]byte, move []byte) error {
	return c.potato.RequestMove(gameID, move)
}

// Accept ends a game from our side, crediting its payoff into our
// balance.
func (c *Cradle) Accept(gameID [32]byte) error {
	return c.potato.RequestAccept(gameID)
}

// ShutDown proposes a direct clean channel-coin split.
func (c *Cradle) ShutDown() error {
	return c.potato.RequestShutdown()
}

// DeliverMessage decodes and dispatches one inbound wire frame.
func (c *Cradle) DeliverMessage(raw []byte) error {
	env, err := wire.ReadMessage(bytes.NewReader(raw))
	if err != nil {
		return fmt.Errorf("cradle: decoding inbound message: %w", err)
	}
	return c.potato.Deliver(env)
}

// NewBlock reports a new block height and the full set of coin ids
// currently present on chain, diffing it against the registered watch
// set: newly created coins are noted with the potato handler, coins that
// newly disappeared (a spend) get a puzzle/solution reveal request, and
// each timed-out referee coin of a live game gets one automatic
// ClaimTimeout.
func (c *Cradle) NewBlock(height uint64, present map[types.Hash]struct{}) error {
	report := c.watch.Diff(height, present)
	for _, id := range report.Created {
		if coin, ok := c.sink.coinsByID[id]; ok {
			c.potato.NoteCoinCreated(coin)
		}
	}
	for _, id := range report.Deleted {
		coin, ok := c.sink.coinsByID[id]
		if !ok {
			continue
		}
		if err := c.sink.RequestPuzzleAndSolution(coin); err != nil {
			return err
		}
	}
	for _, id := range report.TimedOut {
		for gameID, coin := range c.gameCoins {
			if coin.ID() != id {
				continue
			}
			if _, claimed := c.claimedTimeouts[gameID]; claimed {
				continue
			}
			if err := c.ClaimTimeout(gameID); err != nil {
				log.Errorf("cradle %s: claiming timeout for game %x: %v", c.id, gameID, err)
				continue
			}
			c.claimedTimeouts[gameID] = struct{}{}
		}
	}
	return nil
}

// ReportPuzzleAndSolution delivers the chain's answer to an earlier
// RequestPuzzleAndSolution: the reported puzzle is run against its
// solution to recover the spend's condition list, which is then
// triaged by coin identity -- the channel coin or the unroll coin it
// creates; a report for any other coin is logged and ignored.
func (c *Cradle) ReportPuzzleAndSolution(coin types.Coin, puzzle *types.Puzzle, solution *types.Node) error {
	if puzzle == nil || solution == nil {
		log.Debugf("cradle %s: coin %s reported spent with no puzzle reveal available", c.id, coin.ID())
		return nil
	}
	output, err := c.runner.Run(puzzle, solution)
	if err != nil {
		return fmt.Errorf("cradle: running reported puzzle/solution for coin %s: %w", coin.ID(), err)
	}
	conds, err := condition.Parse(output)
	if err != nil {
		return fmt.Errorf("cradle: parsing conditions for coin %s: %w", coin.ID(), err)
	}

	switch {
	case coin.ID() == c.channel.ChannelCoin().ID():
		return c.handleChannelCoinSpent(conds)
	case c.unrollCoin != nil && coin.ID() == c.unrollCoin.ID():
		return c.handleUnrollCoinSpent(conds)
	default:
		log.Debugf("cradle %s: puzzle/solution reported for unrecognized coin %s", c.id, coin.ID())
		return nil
	}
}

// handleChannelCoinSpent triages an observed channel-coin spend against
// our own state (channelpkg.ChannelCoinSpent), notes the on-chain
// transition, and broadcasts whichever unroll-coin spend the dispatch
// rule calls for -- a real supersede or the puzzle's own default/timeout
// claim.
func (c *Cradle) handleChannelCoinSpent(conds condition.List) error {
	stateNumber, err := unroll.StateNumberFromRems(conds)
	if err != nil {
		return err
	}
	tx, _, err := c.channel.ChannelCoinSpent(stateNumber, c.channel.ObservedParityIsOurs(stateNumber))
	if err != nil {
		return err
	}
	c.potato.NoteOnChain(false)

	sol := unroll.Dispatch(tx.StateNumber, tx.Conditions, tx.PuzzleHash, tx.Signature, tx.HasSignature)
	unrollCoin := types.Coin{
		ParentID:   c.channel.ChannelCoin().ID(),
		PuzzleHash: tx.PuzzleHash,
		Amount:     c.channel.ChannelCoin().Amount,
	}
	c.unrollCoin = &unrollCoin
	bundle := types.SpendBundle{Coin: unrollCoin, Solution: sol.Conditions.Encode(), Signature: sol.Signature}
	if err := c.sink.SpendTransactionAndAddFee(bundle, 0); err != nil {
		return err
	}
	c.sink.RegisterCoin(unrollCoin, 0, "unroll coin")
	return nil
}

// handleUnrollCoinSpent classifies the unroll coin's successor coins
// against our live games and starts watching each one -- the per-game
// referee coins as well as the plain balance refunds.
func (c *Cradle) handleUnrollCoinSpent(conds condition.List) error {
	successors, err := unroll.MatchSuccessors(c.unrollCoin.ID(), conds, c.channel.GamePuzzleHashes())
	if err != nil {
		return err
	}
	for _, s := range successors {
		name := "balance coin"
		timeout := uint32(0)
		if s.IsGame {
			name = "referee coin"
			c.gameCoins[s.GameID] = s.Coin
			if maker, err := c.channel.Game(s.GameID); err == nil {
				timeout = maker.GetTimeoutBlocks()
			}
		}
		c.sink.RegisterCoin(s.Coin, timeout, name)
	}
	return nil
}

// GoOnChain forces the channel onto its on-chain fallback path with no
// protocol violation driving it (e.g. the operator no longer trusts
// the peer to cooperate off chain).
func (c *Cradle) GoOnChain() error {
	return c.potato.GoOnChain()
}

// CancelGame withdraws gameID from a StartGames request that hasn't
// been sent to the peer yet.
func (c *Cradle) CancelGame(gameID [32]byte) error {
	return c.potato.CancelGame(gameID)
}

// SubmitOnChainMove replays the last move we signed for gameID on
// chain, once its referee coin has been observed.
func (c *Cradle) SubmitOnChainMove(gameID [32]byte) error {
	maker, err := c.channel.Game(gameID)
	if err != nil {
		return err
	}
	details, ok := maker.LastMove()
	if !ok {
		return fmt.Errorf("cradle: no move of ours to replay for game %x", gameID)
	}
	coin, ok := c.gameCoins[gameID]
	if !ok {
		return fmt.Errorf("cradle: referee coin for game %x not yet observed", gameID)
	}
	solution, err := maker.GetTransactionForMove(coin, details)
	if err != nil {
		return err
	}
	return c.sink.SpendTransactionAndAddFee(types.SpendBundle{Coin: coin, Solution: solution}, 0)
}

// SubmitSlash challenges gameID's referee coin on chain, proving the
// mover's bogusMove is an invalid transition from priorState.
func (c *Cradle) SubmitSlash(gameID [32]byte, priorState, bogusMove []byte) error {
	maker, err := c.channel.Game(gameID)
	if err != nil {
		return err
	}
	coin, ok := c.gameCoins[gameID]
	if !ok {
		return fmt.Errorf("cradle: referee coin for game %x not yet observed", gameID)
	}
	solution := maker.SlashSolution(priorState, bogusMove)
	return c.sink.SpendTransactionAndAddFee(types.SpendBundle{Coin: coin, Solution: solution}, 0)
}

// ClaimTimeout collects gameID's referee coin via the unroll timelock
// after the mover failed to move in time.
func (c *Cradle) ClaimTimeout(gameID [32]byte) error {
	maker, err := c.channel.Game(gameID)
	if err != nil {
		return err
	}
	coin, ok := c.gameCoins[gameID]
	if !ok {
		return fmt.Errorf("cradle: referee coin for game %x not yet observed", gameID)
	}
	solution := maker.TimeoutSolution()
	return c.sink.SpendTransactionAndAddFee(types.SpendBundle{Coin: coin, Solution: solution}, 0)
}

// Idle drains whatever outbound effects the last round of method calls
// or message delivery accumulated.
func (c *Cradle) Idle() IdleResult {
	if err := c.potato.Idle(); err != nil {
		log.Errorf("cradle %s: idle drain: %v", c.id, err)
	}
	msgs, txs, reqs := c.sink.drain()
	result := IdleResult{OutboundMessages: msgs, OutboundTransactions: txs, CoinSolutionRequests: reqs}
	result.ContinueOn = !result.empty()
	return result
}

// Channel exposes the underlying channel handler for host-side
// diagnostics and persistence.
func (c *Cradle) Channel() *channelpkg.Handler { return c.channel }

// Potato exposes the underlying potato handler for host-side
// diagnostics.
func (c *Cradle) Potato() *potato.Handler { return c.potato }
