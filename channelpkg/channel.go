// Package channelpkg implements the channel handler: the per-peer
// state machine that owns the 2-of-2 channel coin, maintains the
// monotonic state sequence number, tracks the cached last potato action
// for replay during unroll, and produces the partial aggregate
// signatures the potato handler relays to the peer. One Handler exists
// per channel, mutated only from the owning call stack, producing
// signed state updates plus their on-chain fallback.
package channelpkg

import (
	"fmt"

	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/referee"
	"github.com/chia-network/chia-gaming-go/types"
)

// PotatoSignatures is the pair of partial BLS signatures a sender
// attaches to every potato message: one over the channel-coin spend,
// one over the matching unroll-coin spend.
type PotatoSignatures struct {
	ChannelSignature types.Signature
	UnrollSignature  types.Signature
}

// InitData is what the peer's public handshake fields
// get turned into once both sides are known.
type InitData struct {
	TheirKeys              types.PublicKeys
	TheirRefereePuzzleHash types.Hash
	TheirRewardPuzzleHash  types.Hash
	AggregateContribution  types.Amount
	OurContribution        types.Amount
}

// InitResult is returned by Initiate: the first channel-coin partial
// signature, to be relayed to the peer as part of the handshake.
type InitResult struct {
	ChannelCoin          types.Coin
	ChannelPartialSig    types.Signature
}

// CachedActionKind discriminates CachedLastAction's variants.
type CachedActionKind uint8

const (
	CacheNone CachedActionKind = iota
	CacheStartedGames
	CacheMovedInGame
	CacheAcceptedGame
)

// GameStartInfo is one game's worth of the parameters a StartGames
// round exchanges.
type GameStartInfo struct {
	GameID          [32]byte
	GameType        string
	Timeout         uint32
	Amount          types.Amount
	MyContribution  types.Amount
	MyTurn          bool
	Parameters      []byte
	ValidationProgram *types.Program
	InitialState    []byte
}

// CachedLastAction is the variant record the channel handler keeps so
// that, if the peer unrolls mid-flight, we can reproduce the effect of
// the potato action we just sent.
type CachedLastAction struct {
	Kind CachedActionKind

	// CacheStartedGames.
	StartedGames []GameStartInfo

	// CacheMovedInGame / CacheAcceptedGame.
	GameID        [32]byte
	NewPuzzleHash types.Hash
	Amount        types.Amount
}

// LiveGame is a per-active-game record: the game id and its referee
// maker. Unroll conditions read the game's puzzle hash and stake from
// the maker each time they are built.
type LiveGame struct {
	GameID [32]byte
	Maker  *referee.Maker
}

// MoveResult is produced by SendPotatoMove and carried over the wire by
// the potato handler's Move message.
type MoveResult struct {
	GameID  [32]byte
	Details referee.GameMoveDetails
}

// Handler is the channel handler for one side of one channel.
type Handler struct {
	ourKeys               types.ChannelHandlerPrivateKeys
	ourRewardPuzzleHash   types.Hash
	networkAggSigConstant types.Hash
	runner                types.ProgramRunner

	theirKeys              types.PublicKeys
	theirRefereePuzzleHash types.Hash
	theirRewardPuzzleHash  types.Hash

	channelCoin     types.Coin
	channelSpend    condition.List
	channelSpendSig types.Signature
	handshakeDone   bool

	currentStateNumber uint64
	unrollStateNumber  uint64

	ourBalance   types.Amount
	theirBalance types.Amount

	games     []*LiveGame
	gameIndex map[[32]byte]int

	cachedLastAction CachedLastAction

	startedWithPotato bool
}

// New constructs a channel handler for one party. startedWithPotato
// records which side held the potato at handshake time, which is also
// the parity used to decide unroll refund ordering and who may
// supersede whom.
func New(
	ourKeys types.ChannelHandlerPrivateKeys,
	ourRewardPuzzleHash types.Hash,
	networkAggSigConstant types.Hash,
	runner types.ProgramRunner,
	startedWithPotato bool,
) *Handler {
	return &Handler{
		ourKeys:               ourKeys,
		ourRewardPuzzleHash:   ourRewardPuzzleHash,
		networkAggSigConstant: networkAggSigConstant,
		runner:                runner,
		gameIndex:             make(map[[32]byte]int),
		startedWithPotato:     startedWithPotato,
	}
}

// Initiate records the peer's handshake data, computes the channel
// coin, and returns our first partial signature over its spend.
func (h *Handler) Initiate(init InitData) (*InitResult, error) {
	if h.ourKeys.Channel.PublicKey().Equal(init.TheirKeys.Channel) {
		return nil, ErrDistinctPubkeysRequired
	}

	h.theirKeys = init.TheirKeys
	h.theirRefereePuzzleHash = init.TheirRefereePuzzleHash
	h.theirRewardPuzzleHash = init.TheirRewardPuzzleHash

	if h.startedWithPotato {
		h.ourBalance = init.OurContribution
		h.theirBalance = init.AggregateContribution - init.OurContribution
	} else {
		h.theirBalance = init.AggregateContribution - init.OurContribution
		h.ourBalance = init.OurContribution
	}

	ph, err := h.channelPuzzleHash()
	if err != nil {
		return nil, err
	}
	h.channelCoin = types.Coin{
		ParentID:   types.ZeroHash,
		PuzzleHash: ph,
		Amount:     init.AggregateContribution,
	}

	conds := h.channelCoinSpendConditions(0, h.unrollPuzzleHash(0))
	sig, err := h.signConditions(conds, h.channelCoin.ID(), h.ourKeys.Channel)
	if err != nil {
		return nil, err
	}

	log.Debugf("channel %x initiated, amount %d", h.channelCoin.ID(), init.AggregateContribution)

	return &InitResult{ChannelCoin: h.channelCoin, ChannelPartialSig: sig}, nil
}

// FinishHandshake verifies the peer's partial signature over the
// initial channel-coin spend combines with ours into a valid aggregate
// signature, and stores the complete spend.
func (h *Handler) FinishHandshake(theirPartialSig types.Signature) error {
	conds := h.channelCoinSpendConditions(0, h.unrollPuzzleHash(0))
	ourSig, err := h.signConditions(conds, h.channelCoin.ID(), h.ourKeys.Channel)
	if err != nil {
		return err
	}
	agg, err := types.AggregateSignatures(ourSig, theirPartialSig)
	if err != nil {
		return fmt.Errorf("channelpkg: aggregating handshake signatures: %w", err)
	}
	pk, err := types.AggregatePublicKeys(h.ourKeys.Channel.PublicKey(), h.theirKeys.Channel)
	if err != nil {
		return err
	}
	if !types.Verify(pk, h.aggSigMeMessage(conds, h.channelCoin.ID()), agg) {
		return ErrSignatureVerification
	}
	h.channelSpend = conds
	h.channelSpendSig = agg
	h.handshakeDone = true
	return nil
}

// channelPuzzleHash is the standard puzzle of the aggregate of both
// sides' channel public keys.
func (h *Handler) channelPuzzleHash() (types.Hash, error) {
	agg, err := types.AggregatePublicKeys(h.ourKeys.Channel.PublicKey(), h.theirKeys.Channel)
	if err != nil {
		return types.Hash{}, err
	}
	return types.List(types.Atom([]byte("standard-puzzle")), types.Atom(agg.Bytes())).TreeHash(), nil
}

// unrollPuzzleHash is the curried unroll puzzle instance for the given
// state number: the aggregate unroll key, the state number, and the
// hash of the default conditions the puzzle enforces on the unsigned
// timeout path -- without the last, nothing would tie the timeout
// spend to any particular payout. See unroll.PuzzleHash for the
// canonical construction the unroll engine also uses; duplicated here
// (rather than imported) to avoid a channelpkg<->unroll import cycle.
func (h *Handler) unrollPuzzleHash(stateNumber uint64) types.Hash {
	agg, _ := types.AggregatePublicKeys(h.ourKeys.Unroll.PublicKey(), h.theirKeys.Unroll)
	defaults := h.defaultConditionsHash()
	return types.List(
		types.Atom([]byte("unroll-puzzle")),
		types.Atom(agg.Bytes()),
		types.Atom(uint64Bytes(stateNumber)),
		types.Atom(defaults[:]),
	).TreeHash()
}

func uint64Bytes(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// refundRecipients returns the (first, second) reward puzzle hashes in
// unroll-condition order: the party that started with the potato gets
// the first CreateCoin.
func (h *Handler) refundRecipients() (firstPH, secondPH types.Hash, firstBal, secondBal types.Amount) {
	if h.startedWithPotato {
		return h.ourRewardPuzzleHash, h.theirRewardPuzzleHash, h.ourBalance, h.theirBalance
	}
	return h.theirRewardPuzzleHash, h.ourRewardPuzzleHash, h.theirBalance, h.ourBalance
}

// unrollRestConditions is the CreateCoin body of the unroll condition
// list: the two balance refunds in potato-start order, then one
// CreateCoin per live game in list order.
func (h *Handler) unrollRestConditions() condition.List {
	firstPH, secondPH, firstBal, secondBal := h.refundRecipients()

	rest := make(condition.List, 0, 2+len(h.games))
	rest = append(rest, condition.NewCreateCoin(firstPH, firstBal))
	rest = append(rest, condition.NewCreateCoin(secondPH, secondBal))
	for _, g := range h.games {
		rest = append(rest, g.Maker.CreateCoinCondition())
	}
	return rest
}

// defaultConditionsHash is the tree hash of unrollRestConditions, the
// value the curried unroll puzzle binds so its unsigned timeout path
// can only ever produce exactly these coins.
func (h *Handler) defaultConditionsHash() types.Hash {
	return h.unrollRestConditions().Encode().TreeHash()
}

// unrollConditions builds the deterministic condition list for state
// stateNumber: two Rem memos, then the unrollRestConditions body.
func (h *Handler) unrollConditions(stateNumber uint64) condition.List {
	rest := h.unrollRestConditions()
	restHash := rest.Encode().TreeHash()
	out := make(condition.List, 0, len(rest)+2)
	out = append(out, condition.NewRem(uint64Bytes(stateNumber)))
	out = append(out, condition.NewRem(restHash[:]))
	out = append(out, rest...)
	return out
}

// channelCoinSpendConditions builds the channel coin's own spend: a
// single CreateCoin to the unroll puzzle hash for stateNumber, prefixed
// by the same two Rem memos (so both spends sign the same state
// number binding).
func (h *Handler) channelCoinSpendConditions(stateNumber uint64, unrollPH types.Hash) condition.List {
	rest := condition.List{condition.NewCreateCoin(unrollPH, h.channelCoin.Amount)}
	restHash := rest.Encode().TreeHash()
	return condition.List{
		condition.NewRem(uint64Bytes(stateNumber)),
		condition.NewRem(restHash[:]),
		rest[0],
	}
}

// aggSigMeMessage is the message actually signed for a condition list:
// its tree hash, bound to the coin id and network constant.
func (h *Handler) aggSigMeMessage(conds condition.List, coinID types.Hash) []byte {
	hash := conds.Encode().TreeHash()
	return condition.AggSigMeMessage(hash[:], coinID, h.networkAggSigConstant)
}

func (h *Handler) signConditions(conds condition.List, coinID types.Hash, key types.PrivateKey) (types.Signature, error) {
	return key.Sign(h.aggSigMeMessage(conds, coinID)), nil
}

// verifyPartialAt verifies the peer's two partial signatures (channel,
// unroll) against our own at the given state number and, on success,
// caches the verified channel-coin spend. Every received
// Nil/StartGames/Move/Accept applies the peer's change to our games and
// balances first, then runs this check before advancing the state
// numbers.
func (h *Handler) verifyPartialAt(stateNumber uint64, sigs PotatoSignatures) error {
	channelConds := h.channelCoinSpendConditions(stateNumber, h.unrollPuzzleHash(stateNumber))
	ourChanSig, err := h.signConditions(channelConds, h.channelCoin.ID(), h.ourKeys.Channel)
	if err != nil {
		return err
	}
	chanAgg, err := types.AggregateSignatures(ourChanSig, sigs.ChannelSignature)
	if err != nil {
		return err
	}
	chanPK, err := types.AggregatePublicKeys(h.ourKeys.Channel.PublicKey(), h.theirKeys.Channel)
	if err != nil {
		return err
	}
	if !types.Verify(chanPK, h.aggSigMeMessage(channelConds, h.channelCoin.ID()), chanAgg) {
		return ErrSignatureVerification
	}

	unrollConds := h.unrollConditions(stateNumber)
	unrollCoinID := types.Coin{
		ParentID:   h.channelCoin.ID(),
		PuzzleHash: h.unrollPuzzleHash(stateNumber),
		Amount:     h.channelCoin.Amount,
	}.ID()
	ourUnrollSig, err := h.signConditions(unrollConds, unrollCoinID, h.ourKeys.Unroll)
	if err != nil {
		return err
	}
	unrollAgg, err := types.AggregateSignatures(ourUnrollSig, sigs.UnrollSignature)
	if err != nil {
		return err
	}
	unrollPK, err := types.AggregatePublicKeys(h.ourKeys.Unroll.PublicKey(), h.theirKeys.Unroll)
	if err != nil {
		return err
	}
	if !types.Verify(unrollPK, h.aggSigMeMessage(unrollConds, unrollCoinID), unrollAgg) {
		return ErrSignatureVerification
	}

	// Cache the now-mutually-verified channel-coin spend so
	// ForceOnChainTransaction always has a broadcastable aggregate
	// signature for the latest state both sides agree on, without
	// needing the peer's cooperation again later.
	h.channelSpend = channelConds
	h.channelSpendSig = chanAgg
	return nil
}

// outgoingSigsAt produces our own two partial signatures at stateNumber,
// the form PotatoSignatures takes on the wire.
func (h *Handler) outgoingSigsAt(stateNumber uint64) (PotatoSignatures, error) {
	channelConds := h.channelCoinSpendConditions(stateNumber, h.unrollPuzzleHash(stateNumber))
	chanSig, err := h.signConditions(channelConds, h.channelCoin.ID(), h.ourKeys.Channel)
	if err != nil {
		return PotatoSignatures{}, err
	}
	unrollConds := h.unrollConditions(stateNumber)
	unrollCoinID := types.Coin{
		ParentID:   h.channelCoin.ID(),
		PuzzleHash: h.unrollPuzzleHash(stateNumber),
		Amount:     h.channelCoin.Amount,
	}.ID()
	unrollSig, err := h.signConditions(unrollConds, unrollCoinID, h.ourKeys.Unroll)
	if err != nil {
		return PotatoSignatures{}, err
	}
	return PotatoSignatures{ChannelSignature: chanSig, UnrollSignature: unrollSig}, nil
}

// SendEmptyPotato bumps current_state_number and caches CacheNone; the
// produced signatures are over the new state.
func (h *Handler) SendEmptyPotato() (PotatoSignatures, error) {
	if !h.handshakeDone {
		return PotatoSignatures{}, ErrHandshakeNotFinished
	}
	h.currentStateNumber++
	h.cachedLastAction = CachedLastAction{Kind: CacheNone}
	return h.outgoingSigsAt(h.currentStateNumber)
}

// ReceivedEmptyPotato verifies both partial signatures at the new state,
// advances unroll_state_number to match, and returns our matching
// outgoing signatures.
func (h *Handler) ReceivedEmptyPotato(sigs PotatoSignatures) (PotatoSignatures, error) {
	newState := h.currentStateNumber + 1
	if err := h.verifyPartialAt(newState, sigs); err != nil {
		return PotatoSignatures{}, err
	}
	h.currentStateNumber = newState
	h.unrollStateNumber = newState
	return h.outgoingSigsAt(newState)
}

// SendPotatoStartGame adds games to the live game list, caches
// CacheStartedGames, and produces signatures over the resulting state.
func (h *Handler) SendPotatoStartGame(starts []GameStartInfo) (PotatoSignatures, error) {
	if !h.handshakeDone {
		return PotatoSignatures{}, ErrHandshakeNotFinished
	}
	if err := h.addGames(starts); err != nil {
		return PotatoSignatures{}, err
	}
	h.currentStateNumber++
	h.cachedLastAction = CachedLastAction{Kind: CacheStartedGames, StartedGames: starts}
	return h.outgoingSigsAt(h.currentStateNumber)
}

// ReceivedPotatoStartGame verifies sigs at the new state and adds the
// same games the peer started.
func (h *Handler) ReceivedPotatoStartGame(sigs PotatoSignatures, starts []GameStartInfo) (PotatoSignatures, error) {
	newState := h.currentStateNumber + 1
	if err := h.addGames(starts); err != nil {
		return PotatoSignatures{}, err
	}
	if err := h.verifyPartialAt(newState, sigs); err != nil {
		return PotatoSignatures{}, err
	}
	h.currentStateNumber = newState
	h.unrollStateNumber = newState
	return h.outgoingSigsAt(newState)
}

func (h *Handler) addGames(starts []GameStartInfo) error {
	for _, s := range starts {
		if _, ok := h.gameIndex[s.GameID]; ok {
			continue
		}
		ours, err := h.ourBalance.Sub(s.MyContribution)
		if err != nil {
			return err
		}
		theirs, err := h.theirBalance.Sub(s.Amount - s.MyContribution)
		if err != nil {
			return err
		}
		h.ourBalance, h.theirBalance = ours, theirs
		maker := referee.NewMaker(referee.Config{
			GameID:            s.GameID,
			Runner:            h.runner,
			ValidationProgram: s.ValidationProgram,
			InitialState:      s.InitialState,
			OurTurn:           s.MyTurn,
			OurKey:            h.ourKeys.Referee.PublicKey(),
			TheirKey:          h.theirKeys.Referee,
			OurPrivateKey:     h.ourKeys.Referee,
			Stake:             s.Amount,
			MyShare:           s.MyContribution,
			TimeoutBlocks:     s.Timeout,
		})
		h.gameIndex[s.GameID] = len(h.games)
		h.games = append(h.games, &LiveGame{GameID: s.GameID, Maker: maker})
	}
	return nil
}

func (h *Handler) findGame(gameID [32]byte) (*LiveGame, error) {
	idx, ok := h.gameIndex[gameID]
	if !ok {
		return nil, ErrGameNotFound
	}
	return h.games[idx], nil
}

func (h *Handler) removeGame(gameID [32]byte) error {
	idx, ok := h.gameIndex[gameID]
	if !ok {
		return ErrGameNotFound
	}
	last := len(h.games) - 1
	h.games[idx] = h.games[last]
	h.gameIndex[h.games[idx].GameID] = idx
	h.games = h.games[:last]
	delete(h.gameIndex, gameID)
	return nil
}

// SendPotatoMove delegates to the named game's referee maker, records
// the new (puzzle_hash_for_unroll, mover_share), and caches
// CacheMovedInGame.
func (h *Handler) SendPotatoMove(gameID [32]byte, move []byte) (*MoveResult, PotatoSignatures, error) {
	game, err := h.findGame(gameID)
	if err != nil {
		return nil, PotatoSignatures{}, err
	}
	details, err := game.Maker.MyTurnMakeMove(move)
	if err != nil {
		return nil, PotatoSignatures{}, err
	}
	h.currentStateNumber++
	h.cachedLastAction = CachedLastAction{
		Kind:          CacheMovedInGame,
		GameID:        gameID,
		NewPuzzleHash: details.ValidationPuzzleHash,
		Amount:        details.MoverShare,
	}
	sigs, err := h.outgoingSigsAt(h.currentStateNumber)
	if err != nil {
		return nil, PotatoSignatures{}, err
	}
	return &MoveResult{GameID: gameID, Details: *details}, sigs, nil
}

// ReceivedPotatoMove delegates to the referee maker's
// their_turn_move_off_chain and then verifies sigs. The move must be
// applied to the referee maker before verification, the same order
// ReceivedPotatoStartGame uses for addGames: the sender signed the
// unroll conditions built from its own post-move puzzle hash, so we
// must reach that same puzzle hash ourselves before the signatures can
// possibly match.
func (h *Handler) ReceivedPotatoMove(result MoveResult, sigs PotatoSignatures) (readableMove, message []byte, outSigs PotatoSignatures, err error) {
	game, err := h.findGame(result.GameID)
	if err != nil {
		return nil, nil, PotatoSignatures{}, err
	}
	readableMove, message, err = game.Maker.TheirTurnMoveOffChain(&result.Details)
	if err != nil {
		return nil, nil, PotatoSignatures{}, err
	}
	newState := h.currentStateNumber + 1
	if err := h.verifyPartialAt(newState, sigs); err != nil {
		return nil, nil, PotatoSignatures{}, err
	}
	h.currentStateNumber = newState
	h.unrollStateNumber = newState
	outSigs, err = h.outgoingSigsAt(newState)
	return readableMove, message, outSigs, err
}

// ReceivedMessage handles an inter-player Message: it never affects the
// potato or the state number.
func (h *Handler) ReceivedMessage(gameID [32]byte, payload []byte) error {
	if _, err := h.findGame(gameID); err != nil {
		return err
	}
	return nil
}

// SendPotatoAccept removes the game, moves its payoff into our
// out-of-game balance and the rest of its stake into theirs, and caches
// CacheAcceptedGame.
func (h *Handler) SendPotatoAccept(gameID [32]byte) (types.Amount, PotatoSignatures, error) {
	game, err := h.findGame(gameID)
	if err != nil {
		return 0, PotatoSignatures{}, err
	}
	payoff := game.Maker.GetMyShare()
	stake := game.Maker.GetAmount()
	if err := h.removeGame(gameID); err != nil {
		return 0, PotatoSignatures{}, err
	}
	newBal, err := h.ourBalance.Add(payoff)
	if err != nil {
		return 0, PotatoSignatures{}, err
	}
	theirBal, err := h.theirBalance.Add(stake - payoff)
	if err != nil {
		return 0, PotatoSignatures{}, err
	}
	h.ourBalance, h.theirBalance = newBal, theirBal
	h.currentStateNumber++
	h.cachedLastAction = CachedLastAction{Kind: CacheAcceptedGame, GameID: gameID, Amount: payoff}
	sigs, err := h.outgoingSigsAt(h.currentStateNumber)
	return payoff, sigs, err
}

// ReceivedPotatoAccept removes the game, credits the sender's payoff to
// their balance and the rest of the stake to ours, and verifies sigs.
// Both happen before verification for the same reason
// ReceivedPotatoMove applies its move first: the sender already signed
// unroll conditions with that game's CreateCoin gone and the balances
// credited.
func (h *Handler) ReceivedPotatoAccept(sigs PotatoSignatures, gameID [32]byte, payoff types.Amount) error {
	game, err := h.findGame(gameID)
	if err != nil {
		return err
	}
	stake := game.Maker.GetAmount()
	if err := h.removeGame(gameID); err != nil {
		return err
	}
	theirBal, err := h.theirBalance.Add(payoff)
	if err != nil {
		return err
	}
	ourBal, err := h.ourBalance.Add(stake - payoff)
	if err != nil {
		return err
	}
	h.theirBalance, h.ourBalance = theirBal, ourBal
	newState := h.currentStateNumber + 1
	if err := h.verifyPartialAt(newState, sigs); err != nil {
		return err
	}
	h.currentStateNumber = newState
	h.unrollStateNumber = newState
	return nil
}

// CleanShutdown produces a direct channel-coin spend splitting balances
// two ways. Per the design notes' resolved open question, only the
// potato holder may initiate a clean shutdown; haveOurPotato records
// whether we currently hold it.
func (h *Handler) CleanShutdown(haveOurPotato bool) (condition.List, types.Signature, error) {
	if !haveOurPotato {
		return nil, types.Signature{}, ErrPotatoDiscipline
	}
	conds := condition.List{
		condition.NewCreateCoin(h.ourRewardPuzzleHash, h.ourBalance),
		condition.NewCreateCoin(h.theirRewardPuzzleHash, h.theirBalance),
	}
	sig, err := h.signConditions(conds, h.channelCoin.ID(), h.ourKeys.Channel)
	return conds, sig, err
}

// ReceivedCleanShutdown verifies the peer's (the potato holder's)
// partial signature over their proposed shutdown split, after checking
// the split actually pays us at least our current balance -- a valid
// signature over a split that shortchanges us is still a split we must
// never co-sign.
func (h *Handler) ReceivedCleanShutdown(conds condition.List, theirSig types.Signature) (types.Signature, error) {
	var payout types.Amount
	for _, cc := range conds.CreateCoins() {
		if cc.PuzzleHash == h.ourRewardPuzzleHash {
			payout += cc.Amount
		}
	}
	if payout < h.ourBalance {
		return types.Signature{}, ErrShutdownUnderpays
	}
	ourSig, err := h.signConditions(conds, h.channelCoin.ID(), h.ourKeys.Channel)
	if err != nil {
		return types.Signature{}, err
	}
	agg, err := types.AggregateSignatures(ourSig, theirSig)
	if err != nil {
		return types.Signature{}, err
	}
	pk, err := types.AggregatePublicKeys(h.ourKeys.Channel.PublicKey(), h.theirKeys.Channel)
	if err != nil {
		return types.Signature{}, err
	}
	if !types.Verify(pk, h.aggSigMeMessage(conds, h.channelCoin.ID()), agg) {
		return types.Signature{}, ErrSignatureVerification
	}
	return agg, nil
}

// UnrollTransaction is what ChannelCoinSpent returns: the solution
// needed to spend the unroll coin, and whether our signature on it may
// be empty (a timeout claim relying on the puzzle's timelock) or must
// be our real partial signature (a supersede).
type UnrollTransaction struct {
	StateNumber uint64
	Conditions  condition.List
	PuzzleHash  types.Hash
	Signature   types.Signature
	HasSignature bool
}

// ChannelCoinSpent triages an observed channel-coin spend by its state
// number against our own.
func (h *Handler) ChannelCoinSpent(observedStateNumber uint64, observedParityIsOurs bool) (*UnrollTransaction, bool, error) {
	switch {
	// currentStateNumber is at most one ahead of unrollStateNumber,
	// so "we never produced this state" is
	// observedStateNumber > currentStateNumber, not > unrollStateNumber
	// -- the latter would shadow the == currentStateNumber branch below
	// whenever current > unroll, making it unreachable.
	case observedStateNumber > h.currentStateNumber:
		return nil, false, ErrReplyFromFuture

	case observedStateNumber < h.unrollStateNumber && observedParityIsOurs:
		return nil, false, ErrCannotSupersedeOwnState

	case observedStateNumber < h.unrollStateNumber && !observedParityIsOurs:
		conds := h.unrollConditions(h.unrollStateNumber)
		sig, err := h.signConditions(conds, h.channelCoinID(), h.ourKeys.Unroll)
		if err != nil {
			return nil, false, err
		}
		return &UnrollTransaction{
			StateNumber:  h.unrollStateNumber,
			Conditions:   conds,
			PuzzleHash:   h.unrollPuzzleHash(h.unrollStateNumber),
			Signature:    sig,
			HasSignature: true,
		}, false, nil

	case observedStateNumber == h.unrollStateNumber:
		conds := h.unrollConditions(h.unrollStateNumber)
		return &UnrollTransaction{
			StateNumber: h.unrollStateNumber,
			Conditions:  conds,
			PuzzleHash:  h.unrollPuzzleHash(h.unrollStateNumber),
		}, true, nil

	case observedStateNumber == h.currentStateNumber:
		conds := h.unrollConditions(h.currentStateNumber)
		return &UnrollTransaction{
			StateNumber: h.currentStateNumber,
			Conditions:  conds,
			PuzzleHash:  h.unrollPuzzleHash(h.currentStateNumber),
		}, true, nil

	default:
		return nil, false, fmt.Errorf("channelpkg: unreachable state comparison (observed=%d current=%d unroll=%d)",
			observedStateNumber, h.currentStateNumber, h.unrollStateNumber)
	}
}

func (h *Handler) channelCoinID() types.Hash {
	return h.channelCoin.ID()
}

// ObservedParityIsOurs reports whether state stateNumber, if it was
// ever reached, would have been produced by our own send_potato_* call
// rather than one the peer sent us. The two sides alternate producing
// states strictly by who held the potato, starting from whoever held
// it first, so the producer's identity is determined by stateNumber's
// parity against startedWithPotato alone. State 0 is the handshake itself,
// jointly signed by both sides, so it has no single producer.
func (h *Handler) ObservedParityIsOurs(stateNumber uint64) bool {
	if stateNumber == 0 {
		return false
	}
	return h.startedWithPotato == (stateNumber%2 == 1)
}

// UnrollCoinAt returns the unroll coin a channel-coin spend at
// stateNumber would create. Used to pre-register the eventual unroll
// coin's id with the host's coin watcher before it has ever appeared
// on chain.
func (h *Handler) UnrollCoinAt(stateNumber uint64) types.Coin {
	return types.Coin{
		ParentID:   h.channelCoin.ID(),
		PuzzleHash: h.unrollPuzzleHash(stateNumber),
		Amount:     h.channelCoin.Amount,
	}
}

// ForceOnChainTransaction returns the channel-coin spend bundle for our
// last mutually verified state (unroll_state_number): the one state
// both sides are known to have signed, and so the only one we can
// unilaterally broadcast without the peer's further cooperation.
func (h *Handler) ForceOnChainTransaction() (types.SpendBundle, error) {
	if !h.handshakeDone {
		return types.SpendBundle{}, ErrHandshakeNotFinished
	}
	return types.SpendBundle{
		Coin:      h.channelCoin,
		Solution:  h.channelSpend.Encode(),
		Signature: h.channelSpendSig,
	}, nil
}

// GamePuzzleHashes returns each live game's current referee-coin
// puzzle hash, keyed by game id, for the unroll engine's successor
// matching against an observed unroll-coin spend.
func (h *Handler) GamePuzzleHashes() map[[32]byte]types.Hash {
	out := make(map[[32]byte]types.Hash, len(h.games))
	for _, g := range h.games {
		out[g.GameID] = g.Maker.GetCurrentPuzzleHash()
	}
	return out
}

// Game returns the live game's referee maker, for on-chain dispatch
// once its referee coin is observed.
func (h *Handler) Game(gameID [32]byte) (*referee.Maker, error) {
	g, err := h.findGame(gameID)
	if err != nil {
		return nil, err
	}
	return g.Maker, nil
}

// ChannelCoin returns the channel coin once the handshake has completed.
func (h *Handler) ChannelCoin() types.Coin { return h.channelCoin }

// CurrentStateNumber returns current_state_number.
func (h *Handler) CurrentStateNumber() uint64 { return h.currentStateNumber }

// UnrollStateNumber returns unroll_state_number.
func (h *Handler) UnrollStateNumber() uint64 { return h.unrollStateNumber }

// Balances returns our and their out-of-game balances.
func (h *Handler) Balances() (ours, theirs types.Amount) { return h.ourBalance, h.theirBalance }

// LiveGames returns a snapshot copy of the live game id list, in
// order. The two peers' lists must be equal at every quiescent point.
func (h *Handler) LiveGames() []([32]byte) {
	ids := make([][32]byte, len(h.games))
	for i, g := range h.games {
		ids[i] = g.GameID
	}
	return ids
}

// TotalStake returns the sum of all live games' stakes. Balances plus
// stakes always equal the initial channel amount.
func (h *Handler) TotalStake() types.Amount {
	var total types.Amount
	for _, g := range h.games {
		total += g.Maker.GetAmount()
	}
	return total
}

// CachedLastAction returns the cached last potato action, consulted by
// the potato handler / unroll engine when replaying our last sent
// action during an on-chain transition.
func (h *Handler) CachedLastAction() CachedLastAction { return h.cachedLastAction }

// Snapshot is a serializable, non-consensus-critical dump of the
// channel handler's state, for host-side persistence. Private keys,
// the network constant, and the program runner are deliberately
// omitted; FromSnapshot takes them from the host again at restore
// time.
type Snapshot struct {
	TheirKeys              types.PublicKeys
	TheirRefereePuzzleHash types.Hash
	TheirRewardPuzzleHash  types.Hash
	ChannelCoin            types.Coin
	ChannelSpend           condition.List
	ChannelSpendSig        types.Signature
	HandshakeDone          bool
	CurrentStateNumber     uint64
	UnrollStateNumber      uint64
	OurBalance             types.Amount
	TheirBalance           types.Amount
	Games                  []referee.Snapshot
	CachedLastAction       CachedLastAction
	StartedWithPotato      bool
}

// Snapshot captures the current state for host-side persistence.
func (h *Handler) Snapshot() Snapshot {
	games := make([]referee.Snapshot, len(h.games))
	for i, g := range h.games {
		games[i] = g.Maker.Snapshot()
	}
	return Snapshot{
		TheirKeys:              h.theirKeys,
		TheirRefereePuzzleHash: h.theirRefereePuzzleHash,
		TheirRewardPuzzleHash:  h.theirRewardPuzzleHash,
		ChannelCoin:            h.channelCoin,
		ChannelSpend:           h.channelSpend,
		ChannelSpendSig:        h.channelSpendSig,
		HandshakeDone:          h.handshakeDone,
		CurrentStateNumber:     h.currentStateNumber,
		UnrollStateNumber:      h.unrollStateNumber,
		OurBalance:             h.ourBalance,
		TheirBalance:           h.theirBalance,
		Games:                  games,
		CachedLastAction:       h.cachedLastAction,
		StartedWithPotato:      h.startedWithPotato,
	}
}

// FromSnapshot reconstructs a Handler from a persisted Snapshot. The
// host supplies the same private keys, network constant, and program
// runner it originally constructed the handler with; everything else
// comes from the snapshot, including the live games' referee makers.
func FromSnapshot(
	ourKeys types.ChannelHandlerPrivateKeys,
	ourRewardPuzzleHash types.Hash,
	networkAggSigConstant types.Hash,
	runner types.ProgramRunner,
	snap Snapshot,
) (*Handler, error) {
	h := New(ourKeys, ourRewardPuzzleHash, networkAggSigConstant, runner, snap.StartedWithPotato)
	h.theirKeys = snap.TheirKeys
	h.theirRefereePuzzleHash = snap.TheirRefereePuzzleHash
	h.theirRewardPuzzleHash = snap.TheirRewardPuzzleHash
	h.channelCoin = snap.ChannelCoin
	h.channelSpend = snap.ChannelSpend
	h.channelSpendSig = snap.ChannelSpendSig
	h.handshakeDone = snap.HandshakeDone
	h.currentStateNumber = snap.CurrentStateNumber
	h.unrollStateNumber = snap.UnrollStateNumber
	h.ourBalance = snap.OurBalance
	h.theirBalance = snap.TheirBalance
	h.cachedLastAction = snap.CachedLastAction

	for _, gs := range snap.Games {
		if _, dup := h.gameIndex[gs.GameID]; dup {
			return nil, fmt.Errorf("channelpkg: snapshot repeats game id %x", gs.GameID)
		}
		maker := referee.FromSnapshot(gs, runner, ourKeys.Referee.PublicKey(), snap.TheirKeys.Referee, ourKeys.Referee)
		h.gameIndex[gs.GameID] = len(h.games)
		h.games = append(h.games, &LiveGame{GameID: gs.GameID, Maker: maker})
	}
	return h, nil
}
