// Package potato implements the potato handler: the peer-message
// protocol state machine layered over the channel handler. It owns the
// handshake, the potato mutual-exclusion token, and the queue of local
// actions parked while the peer holds the potato. One Handler exists
// per connection, driving a single channelpkg.Handler; Deliver
// dispatches inbound frames by wire.MessageType.
package potato

import (
	"crypto/rand"
	"fmt"

	"github.com/davecgh/go-spew/spew"

	"github.com/chia-network/chia-gaming-go/channelpkg"
	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/host"
	"github.com/chia-network/chia-gaming-go/referee"
	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/wire"
)

// Handler drives one channel's peer protocol: handshake negotiation,
// potato discipline, and the translation between channelpkg's call/return
// API and wire.Envelope messages.
type Handler struct {
	channel *channelpkg.Handler
	host    host.Callbacks
	ui      host.UI
	factory host.GameFactory

	networkAggSigConstant types.Hash
	ourKeys                types.ChannelHandlerPrivateKeys
	ourRewardPuzzleHash    types.Hash
	ourRefereePuzzleHash   types.Hash

	weHoldPotatoAtStart bool
	potato              PotatoState
	handshake           HandshakeState

	ourContribution   types.Amount
	theirContribution types.Amount

	// channelTimeoutBlocks is the generous timelock both the channel
	// coin and its state-0 unroll coin are pre-registered with at
	// handshake completion.
	channelTimeoutBlocks uint32

	parentCoin    types.Coin
	channelBundle types.SpendBundle

	// ourChannelPartialSig is our own partial signature over the
	// initial channel-coin spend, computed the moment channel.Initiate
	// runs (deliverHandshakeA for the non-holder, deliverHandshakeB for
	// the holder). The non-holder's wallet reads it via
	// OurChannelPartialSig to build the SendChannelOffer bundle; the
	// holder carries it forward into the HandshakeF bundle at step E.
	ourChannelPartialSig types.Signature

	queue []queuedAction

	// pendingRewardCoin is the payout coin we expect the co-signed
	// clean-shutdown spend to create, set when a Shutdown round
	// completes on either side and cleared once the coin is observed
	// on chain.
	pendingRewardCoin *types.Coin

	onChain bool
}

// New constructs a potato handler wrapping an already-constructed (but
// not yet handshaken) channel handler. ourContribution/theirContribution
// are the agreed channel funding split, settled out of band before the
// handshake begins.
func New(
	channel *channelpkg.Handler,
	hostCB host.Callbacks,
	ui host.UI,
	factory host.GameFactory,
	networkAggSigConstant types.Hash,
	ourKeys types.ChannelHandlerPrivateKeys,
	ourRewardPuzzleHash types.Hash,
	ourRefereePuzzleHash types.Hash,
	weHoldPotatoAtStart bool,
	ourContribution, theirContribution types.Amount,
	channelTimeoutBlocks uint32,
) *Handler {
	return &Handler{
		channel:                channel,
		host:                   hostCB,
		ui:                     ui,
		factory:                factory,
		networkAggSigConstant:  networkAggSigConstant,
		ourKeys:                ourKeys,
		ourRewardPuzzleHash:    ourRewardPuzzleHash,
		ourRefereePuzzleHash:   ourRefereePuzzleHash,
		weHoldPotatoAtStart:    weHoldPotatoAtStart,
		ourContribution:        ourContribution,
		theirContribution:      theirContribution,
		channelTimeoutBlocks:   channelTimeoutBlocks,
		potato:                 potatoStateAtStart(weHoldPotatoAtStart),
		handshake:              StepA,
	}
}

func potatoStateAtStart(weHoldPotatoAtStart bool) PotatoState {
	if weHoldPotatoAtStart {
		return Present
	}
	return Absent
}

// HandshakeState returns the current handshake progress, for tests and
// host-side diagnostics.
func (h *Handler) HandshakeState() HandshakeState { return h.handshake }

// Potato returns the current potato state.
func (h *Handler) Potato() PotatoState { return h.potato }

// OurChannelPartialSig returns our own partial signature over the
// initial channel-coin spend, available once the handshake has passed
// the step where channel.Initiate first ran. The non-holder's host
// wallet reads this to fill in the SendChannelOffer bundle's Signature
// field.
func (h *Handler) OurChannelPartialSig() types.Signature { return h.ourChannelPartialSig }

// StartHandshake is called by the potato-holding side to open a new
// channel. parentCoin funds the eventual channel coin.
func (h *Handler) StartHandshake(parentCoin types.Coin) error {
	if !h.weHoldPotatoAtStart {
		return ErrNotPotatoHolder
	}
	if h.handshake != StepA {
		return ErrAlreadyHandshaking
	}
	h.parentCoin = parentCoin
	msg := &wire.HandshakeA{
		ParentCoin: parentCoin,
		ChannelPK:  h.ourKeys.Channel.PublicKey(),
		UnrollPK:   h.ourKeys.Unroll.PublicKey(),
		RefereePK:  h.ourKeys.Referee.PublicKey(),
		RewardPH:   h.ourRewardPuzzleHash,
		RefereePH:  h.ourRefereePuzzleHash,
	}
	if err := h.host.SendMessage(msg); err != nil {
		return err
	}
	h.handshake = StepB
	return nil
}

// theirKeysFrom builds the PublicKeys triple a HandshakeA/B carries.
func theirKeysFrom(channelPK, unrollPK, refereePK types.PublicKey) types.PublicKeys {
	return types.PublicKeys{Channel: channelPK, Unroll: unrollPK, Referee: refereePK}
}

// deliverHandshakeA is the non-holder's reaction to step A: it
// initiates the channel handler with the peer's keys, replies with
// HandshakeB, and asks the wallet to fund the channel coin.
func (h *Handler) deliverHandshakeA(msg *wire.HandshakeA) error {
	if h.handshake != StepA {
		return ErrUnexpectedMessage
	}
	h.parentCoin = msg.ParentCoin
	init := channelpkg.InitData{
		TheirKeys:              theirKeysFrom(msg.ChannelPK, msg.UnrollPK, msg.RefereePK),
		TheirRefereePuzzleHash: msg.RefereePH,
		TheirRewardPuzzleHash:  msg.RewardPH,
		AggregateContribution:  h.ourContribution + h.theirContribution,
		OurContribution:        h.ourContribution,
	}
	initResult, err := h.channel.Initiate(init)
	if err != nil {
		return err
	}
	h.ourChannelPartialSig = initResult.ChannelPartialSig
	reply := &wire.HandshakeB{
		ChannelPK: h.ourKeys.Channel.PublicKey(),
		UnrollPK:  h.ourKeys.Unroll.PublicKey(),
		RefereePK: h.ourKeys.Referee.PublicKey(),
		RewardPH:  h.ourRewardPuzzleHash,
		RefereePH: h.ourRefereePuzzleHash,
	}
	if err := h.host.SendMessage(reply); err != nil {
		return err
	}
	h.handshake = StepC
	return h.host.ChannelPuzzleHash(h.channel.ChannelCoin().PuzzleHash)
}

// deliverHandshakeB is the holder's reaction to step B: it initiates the
// channel handler with the peer's keys, then waits for the wallet to
// fund the channel coin before sending its partial signature.
func (h *Handler) deliverHandshakeB(msg *wire.HandshakeB) error {
	if h.handshake != StepB {
		return ErrUnexpectedMessage
	}
	init := channelpkg.InitData{
		TheirKeys:              theirKeysFrom(msg.ChannelPK, msg.UnrollPK, msg.RefereePK),
		TheirRefereePuzzleHash: msg.RefereePH,
		TheirRewardPuzzleHash:  msg.RewardPH,
		AggregateContribution:  h.ourContribution + h.theirContribution,
		OurContribution:        h.ourContribution,
	}
	initResult, err := h.channel.Initiate(init)
	if err != nil {
		return err
	}
	h.ourChannelPartialSig = initResult.ChannelPartialSig
	h.handshake = StepE
	return h.host.ChannelPuzzleHash(h.channel.ChannelCoin().PuzzleHash)
}

// deliverHandshakeE is the holder's reaction to the non-holder's
// partly-signed channel-coin bundle: it co-signs and replies with
// HandshakeF.
func (h *Handler) deliverHandshakeE(msg *wire.HandshakeE) error {
	if h.handshake != StepE {
		return ErrUnexpectedMessage
	}
	if err := h.channel.FinishHandshake(msg.Bundle.Signature); err != nil {
		return err
	}
	h.channelBundle = msg.Bundle
	// Relay our own partial signature onward, the mirror of the
	// non-holder's partial sig this bundle arrived carrying: the
	// non-holder's deliverHandshakeF calls FinishHandshake(this
	// signature) to complete its side of the same aggregate.
	h.channelBundle.Signature = h.ourChannelPartialSig
	if err := h.host.SendMessage(&wire.HandshakeF{Bundle: h.channelBundle}); err != nil {
		return err
	}
	h.registerChannelAndUnrollCoins()
	h.handshake = Finished
	return nil
}

// deliverHandshakeF is the non-holder's reaction to the holder's
// fully-signed bundle: the handshake is complete.
func (h *Handler) deliverHandshakeF(msg *wire.HandshakeF) error {
	if h.handshake != StepD {
		return ErrUnexpectedMessage
	}
	if err := h.channel.FinishHandshake(msg.Bundle.Signature); err != nil {
		return err
	}
	if err := h.host.ReceivedChannelTransactionCompletion(msg.Bundle); err != nil {
		return err
	}
	h.registerChannelAndUnrollCoins()
	h.handshake = Finished
	return nil
}

// registerChannelAndUnrollCoins pre-registers both the channel coin and
// the unroll coin its state-0 spend would create, each with the same
// generous timeout: by the time either actually appears on chain, we
// want the watcher already tracking it rather than discovering it only
// after a RequestPuzzleAndSolution round trip.
func (h *Handler) registerChannelAndUnrollCoins() {
	h.host.RegisterCoin(h.channel.ChannelCoin(), h.channelTimeoutBlocks, "channel coin")
	h.host.RegisterCoin(h.channel.UnrollCoinAt(0), h.channelTimeoutBlocks, "unroll coin (state 0)")
}

// SendChannelOffer is called by the non-holder once the wallet has
// produced our half of the channel-coin creation bundle (in response to
// the ChannelPuzzleHash callback StepC triggers): it notifies the
// wallet and carries our partial signature to the holder as HandshakeE.
func (h *Handler) SendChannelOffer(bundle types.SpendBundle) error {
	if h.handshake != StepC {
		return ErrUnexpectedMessage
	}
	if err := h.host.ReceivedChannelOffer(bundle); err != nil {
		return err
	}
	h.handshake = StepD
	return h.host.SendMessage(&wire.HandshakeE{Bundle: bundle})
}

// Deliver routes one inbound wire envelope. It is
// the single entry point for anything arriving from the peer.
func (h *Handler) Deliver(env wire.Envelope) error {
	switch msg := env.(type) {
	case *wire.HandshakeA:
		return h.deliverHandshakeA(msg)
	case *wire.HandshakeB:
		return h.deliverHandshakeB(msg)
	case *wire.HandshakeE:
		return h.deliverHandshakeE(msg)
	case *wire.HandshakeF:
		return h.deliverHandshakeF(msg)
	case *wire.Nil:
		return h.guardOnChain(h.deliverNil(msg))
	case *wire.Move:
		return h.guardOnChain(h.deliverMove(msg))
	case *wire.GameMessage:
		return h.guardOnChain(h.deliverGameMessage(msg))
	case *wire.Accept:
		return h.guardOnChain(h.deliverAccept(msg))
	case *wire.Shutdown:
		return h.guardOnChain(h.deliverShutdown(msg))
	case *wire.RequestPotato:
		return h.guardOnChain(h.deliverRequestPotato(msg))
	case *wire.StartGames:
		return h.guardOnChain(h.deliverStartGames(msg))
	default:
		log.Debugf("unrecognized envelope: %s", spew.Sdump(env))
		return fmt.Errorf("potato: unrecognized envelope %T", env)
	}
}

// guardOnChain wraps a post-handshake Deliver branch: on error (a
// signature that fails to verify, a structurally illegal move, any
// other protocol violation) it forces an on-chain transition before
// propagating the error -- a peer that
// breaks the protocol forfeits further off-chain cooperation, and our
// only recourse is to fall back to the channel coin's on-chain path.
func (h *Handler) guardOnChain(err error) error {
	if err == nil {
		return nil
	}
	if onChainErr := h.TriggerOnChainTransition(true); onChainErr != nil {
		log.Errorf("potato: forcing on-chain transition after %v: %v", err, onChainErr)
	}
	return err
}

// TriggerOnChainTransition forces the channel onto its on-chain
// fallback path: it broadcasts our last mutually verified channel-coin
// spend and notifies the UI. gotError distinguishes a fault-driven transition (a
// protocol violation observed via guardOnChain) from one the UI
// requested directly via GoOnChain. A no-op once we're already past
// Finished, so callers never need to check state first.
func (h *Handler) TriggerOnChainTransition(gotError bool) error {
	if h.handshake != Finished {
		return nil
	}
	bundle, err := h.channel.ForceOnChainTransaction()
	if err != nil {
		return err
	}
	h.handshake = OnChainTransition
	h.ui.GoingOnChain(gotError)
	if err := h.host.SpendTransactionAndAddFee(bundle, 0); err != nil {
		return err
	}
	h.handshake = OnChainWaitingForUnrollSpend
	h.onChain = true
	return nil
}

// GoOnChain lets the UI force an on-chain transition directly, with no
// protocol violation driving it (e.g. the operator no longer trusts
// the peer to cooperate off chain).
func (h *Handler) GoOnChain() error {
	return h.TriggerOnChainTransition(false)
}

// NoteOnChain records that the channel coin has already been spent on
// chain -- observed via a host's ReportPuzzleAndSolution callback,
// rather than broadcast by TriggerOnChainTransition ourselves -- and
// notifies the UI accordingly. It never attempts to spend the channel
// coin itself: once it's already gone there's nothing left to
// supersede, only the resulting unroll coin's own dispatch matters
// from here.
func (h *Handler) NoteOnChain(gotError bool) {
	if h.handshake == Finished || h.handshake == OnChainTransition {
		h.handshake = OnChainWaitingForUnrollSpend
		h.ui.GoingOnChain(gotError)
	}
	h.onChain = true
}

// CancelGame withdraws gameID from a StartGames request that is still
// parked in game_action_queue, not yet sent to the peer. Once a
// StartGames round has actually been sent, both sides have already
// added the game to their live list and there is nothing left to
// unwind locally: the cached StartedGames entry a completed round
// leaves behind already carries everything CancelGame would otherwise
// need to recover, so it never has to re-run the factory.
func (h *Handler) CancelGame(gameID [32]byte) error {
	for i := range h.queue {
		a := &h.queue[i]
		if a.kind != actionStartGames {
			continue
		}
		for j, g := range a.startMySide {
			if g.GameID != gameID {
				continue
			}
			a.startMySide = append(a.startMySide[:j], a.startMySide[j+1:]...)
			a.startTheirSide = append(a.startTheirSide[:j], a.startTheirSide[j+1:]...)
			if len(a.startMySide) == 0 {
				h.queue = append(h.queue[:i], h.queue[i+1:]...)
			}
			h.ui.GameCancelled(gameID)
			return nil
		}
	}
	return ErrGameNotQueued
}

func (h *Handler) fromWireSigs(sigs wire.PotatoSigs) channelpkg.PotatoSignatures {
	return channelpkg.PotatoSignatures{ChannelSignature: sigs.ChannelSig, UnrollSignature: sigs.UnrollSig}
}

func (h *Handler) toWireSigs(sigs channelpkg.PotatoSignatures) wire.PotatoSigs {
	return wire.PotatoSigs{ChannelSig: sigs.ChannelSignature, UnrollSig: sigs.UnrollSignature}
}

func (h *Handler) deliverNil(msg *wire.Nil) error {
	if _, err := h.channel.ReceivedEmptyPotato(h.fromWireSigs(msg.Sigs)); err != nil {
		return err
	}
	h.potato = Present
	return h.drainQueue()
}

func (h *Handler) deliverMove(msg *wire.Move) error {
	result := channelpkg.MoveResult{
		GameID:  msg.GameID,
		Details: gameMoveDetailsFromWire(msg.Details),
	}
	readable, message, _, err := h.channel.ReceivedPotatoMove(result, h.fromWireSigs(msg.Sigs))
	if err != nil {
		return err
	}
	h.ui.OpponentMoved(msg.GameID, readable)
	if len(message) > 0 {
		h.ui.RawGameMessage(msg.GameID, message)
		h.ui.GameMessage(msg.GameID, message)
	}
	h.potato = Present
	return h.drainQueue()
}

func (h *Handler) deliverGameMessage(msg *wire.GameMessage) error {
	if err := h.channel.ReceivedMessage(msg.GameID, msg.Payload); err != nil {
		return err
	}
	h.ui.RawGameMessage(msg.GameID, msg.Payload)
	h.ui.GameMessage(msg.GameID, msg.Payload)
	return nil
}

func (h *Handler) deliverAccept(msg *wire.Accept) error {
	if err := h.channel.ReceivedPotatoAccept(h.fromWireSigs(msg.Sigs), msg.GameID, msg.Amount); err != nil {
		return err
	}
	h.ui.GameFinished(msg.GameID, msg.Amount)
	h.potato = Present
	return h.drainQueue()
}

func (h *Handler) deliverShutdown(msg *wire.Shutdown) error {
	condNode, err := types.DecodeNode(msg.ConditionsProgram)
	if err != nil {
		return fmt.Errorf("potato: decoding shutdown conditions: %w", err)
	}
	conds, err := condition.Parse(condNode)
	if err != nil {
		return err
	}
	ourBalance, _ := h.channel.Balances()
	payout, ok := shutdownPayout(conds, h.ourRewardPuzzleHash, ourBalance)
	if !ok {
		return ErrShutdownConditions
	}
	agg, err := h.channel.ReceivedCleanShutdown(conds, msg.Signature)
	if err != nil {
		return err
	}
	bundle := types.SpendBundle{
		Coin:      h.channel.ChannelCoin(),
		Solution:  conds.Encode(),
		Signature: agg,
	}
	if err := h.host.SpendTransactionAndAddFee(bundle, 0); err != nil {
		return err
	}
	h.watchShutdownRewardCoin(payout.Amount)
	h.onChain = true
	return nil
}

// watchShutdownRewardCoin registers the reward coin the clean-shutdown
// spend will create for us and parks the handshake in
// WaitingForShutdown until the coin is observed on chain.
func (h *Handler) watchShutdownRewardCoin(amount types.Amount) {
	rewardCoin := types.Coin{
		ParentID:   h.channel.ChannelCoin().ID(),
		PuzzleHash: h.ourRewardPuzzleHash,
		Amount:     amount,
	}
	h.pendingRewardCoin = &rewardCoin
	h.host.RegisterCoin(rewardCoin, h.channelTimeoutBlocks, "shutdown reward coin")
	h.handshake = WaitingForShutdown
}

// NoteCoinCreated tells the handler a registered coin has been observed
// created on chain. Only the pending shutdown reward coin is acted on:
// observing it completes the clean shutdown and notifies the UI.
func (h *Handler) NoteCoinCreated(coin types.Coin) {
	if h.pendingRewardCoin == nil || coin.ID() != h.pendingRewardCoin.ID() {
		return
	}
	h.pendingRewardCoin = nil
	h.handshake = Completed
	h.ui.ShutdownComplete(coin)
}

func (h *Handler) deliverRequestPotato(msg *wire.RequestPotato) error {
	if h.potato != Present {
		return nil
	}
	sigs, err := h.channel.SendEmptyPotato()
	if err != nil {
		return err
	}
	if err := h.host.SendMessage(&wire.Nil{Sigs: h.toWireSigs(sigs)}); err != nil {
		return err
	}
	h.potato = Absent
	return nil
}

func (h *Handler) deliverStartGames(msg *wire.StartGames) error {
	starts := make([]channelpkg.GameStartInfo, len(msg.Games))
	for i, g := range msg.Games {
		starts[i] = gameStartInfoFromWire(g)
	}
	if _, err := h.channel.ReceivedPotatoStartGame(h.fromWireSigs(msg.Sigs), starts); err != nil {
		return err
	}
	for _, s := range starts {
		h.ui.GameStart(s.GameID)
	}
	h.potato = Present
	return h.drainQueue()
}

// gameMoveDetailsFromWire converts a wire.MoveDetails into the channel
// handler's referee.GameMoveDetails shape, decoding the encoded
// validation program if one was sent.
func gameMoveDetailsFromWire(d wire.MoveDetails) (out referee.GameMoveDetails) {
	out.ValidationPuzzleHash = d.ValidationPuzzleHash
	out.MoverShare = d.MoverShare
	out.MaxMoveSize = int(d.MaxMoveSize)
	out.Move = d.Move
	out.Signature = d.Signature
	if len(d.NextValidationProgram) > 0 {
		if n, err := types.DecodeNode(d.NextValidationProgram); err == nil {
			out.NextValidationProgram = n
		}
	}
	return out
}

// shutdownPayout finds the CreateCoin paying our reward puzzle hash in
// the peer's proposed shutdown conditions and checks it pays at least
// our current balance. A split that names our puzzle hash but
// shortchanges us is as bad as one that omits us entirely.
func shutdownPayout(conds condition.List, ourRewardPuzzleHash types.Hash, ourBalance types.Amount) (condition.Condition, bool) {
	for _, c := range conds.CreateCoins() {
		if c.PuzzleHash == ourRewardPuzzleHash && c.Amount >= ourBalance {
			return c, true
		}
	}
	return condition.Condition{}, false
}

func gameStartInfoFromWire(g wire.GameStartEntry) channelpkg.GameStartInfo {
	info := channelpkg.GameStartInfo{
		GameID:         g.GameID,
		GameType:       g.GameType,
		Timeout:        g.Timeout,
		Amount:         g.Amount,
		MyContribution: g.MyContribution,
		MyTurn:         g.MyTurn,
		Parameters:     g.Parameters,
		InitialState:   g.InitialState,
	}
	if len(g.ValidationProgram) > 0 {
		if n, err := types.DecodeNode(g.ValidationProgram); err == nil {
			info.ValidationProgram = n
		}
	}
	return info
}

func gameStartInfoToWire(g channelpkg.GameStartInfo) wire.GameStartEntry {
	var vp []byte
	if g.ValidationProgram != nil {
		vp = types.EncodeNode(g.ValidationProgram)
	}
	return wire.GameStartEntry{
		GameID:            g.GameID,
		GameType:          g.GameType,
		Timeout:           g.Timeout,
		Amount:            g.Amount,
		MyContribution:    g.MyContribution,
		MyTurn:            g.MyTurn,
		Parameters:        g.Parameters,
		ValidationProgram: vp,
		InitialState:      g.InitialState,
	}
}

func newGameID() ([32]byte, error) {
	var id [32]byte
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("potato: generating game id: %w", err)
	}
	return id, nil
}

// RequestStartGames runs the factory for each requested game and either
// sends (potato present) or enqueues (potato absent) the resulting
// StartGames round. A factory's two output lists are positional:
// myOut[i] and theirOut[i] describe the two sides of the SAME game, so
// they're assigned one shared GameID per index rather than one id per
// list entry -- otherwise our own local Maker and the copy we ask the
// peer to add would track the same game under two different ids, and a
// later RequestMove/Deliver(Move) could never find a match on either
// side.
func (h *Handler) RequestStartGames(reqs []host.GameStartRequest) error {
	var mySide, theirSide []channelpkg.GameStartInfo
	for _, req := range reqs {
		myOut, theirOut, err := h.factory.RunFactory(req.GameType, req.Amount, req.MyContribution, req.MyTurn, req.Parameters)
		if err != nil {
			return err
		}
		if len(myOut) != len(theirOut) {
			return fmt.Errorf("potato: game factory %q returned %d my-side starts but %d their-side starts", req.GameType, len(myOut), len(theirOut))
		}
		for i := range myOut {
			id, err := newGameID()
			if err != nil {
				return err
			}
			mySide = append(mySide, channelpkg.GameStartInfo{
				GameID:            id,
				GameType:          req.GameType,
				Timeout:           myOut[i].Timeout,
				Amount:            myOut[i].Amount,
				MyContribution:    myOut[i].MyContribution,
				MyTurn:            myOut[i].MyTurn,
				Parameters:        req.Parameters,
				ValidationProgram: myOut[i].ValidationProgram,
				InitialState:      myOut[i].InitialState,
			})
			theirSide = append(theirSide, channelpkg.GameStartInfo{
				GameID:            id,
				GameType:          req.GameType,
				Timeout:           theirOut[i].Timeout,
				Amount:            theirOut[i].Amount,
				MyContribution:    theirOut[i].MyContribution,
				MyTurn:            theirOut[i].MyTurn,
				Parameters:        req.Parameters,
				ValidationProgram: theirOut[i].ValidationProgram,
				InitialState:      theirOut[i].InitialState,
			})
		}
	}
	return h.enqueueOrSend(queuedAction{kind: actionStartGames, startMySide: mySide, startTheirSide: theirSide})
}

// RequestMove asks the named game's referee maker for our next move,
// sending or enqueuing the result.
func (h *Handler) RequestMove(gameID [32]byte, move []byte) error {
	return h.enqueueOrSend(queuedAction{kind: actionMove, gameID: gameID, move: move})
}

// RequestAccept ends the named game from our side, sending or enqueuing
// the resulting Accept.
func (h *Handler) RequestAccept(gameID [32]byte) error {
	return h.enqueueOrSend(queuedAction{kind: actionAccept, gameID: gameID})
}

// RequestShutdown proposes a direct clean shutdown. Only valid while we
// hold the potato.
func (h *Handler) RequestShutdown() error {
	if h.potato != Present {
		return ErrNotPotatoHolder
	}
	conds, sig, err := h.channel.CleanShutdown(true)
	if err != nil {
		return err
	}
	if err := h.host.SendMessage(&wire.Shutdown{
		Signature:         sig,
		ConditionsProgram: types.EncodeNode(conds.Encode()),
	}); err != nil {
		return err
	}
	ourBalance, _ := h.channel.Balances()
	h.watchShutdownRewardCoin(ourBalance)
	return nil
}

// RequestPotato asks the peer to release the potato.
func (h *Handler) RequestPotato() error {
	if h.potato == Present {
		return nil
	}
	h.potato = Requested
	return h.host.SendMessage(&wire.RequestPotato{})
}

// enqueueOrSend performs action immediately if we hold the potato, or
// parks it in game_action_queue otherwise.
func (h *Handler) enqueueOrSend(action queuedAction) error {
	if h.potato != Present {
		h.queue = append(h.queue, action)
		return nil
	}
	return h.perform(action)
}

// drainQueue performs one parked action, if any, now that we've just
// been granted the potato; otherwise it stays Present and idle.
func (h *Handler) drainQueue() error {
	if len(h.queue) == 0 {
		return nil
	}
	action := h.queue[0]
	h.queue = h.queue[1:]
	return h.perform(action)
}

func (h *Handler) perform(action queuedAction) error {
	switch action.kind {
	case actionNil:
		return h.sendNil()
	case actionStartGames:
		return h.sendStartGames(action.startMySide, action.startTheirSide)
	case actionMove:
		return h.sendMove(action.gameID, action.move)
	case actionAccept:
		return h.sendAccept(action.gameID)
	default:
		return fmt.Errorf("potato: unknown queued action kind %d", action.kind)
	}
}

func (h *Handler) sendNil() error {
	sigs, err := h.channel.SendEmptyPotato()
	if err != nil {
		return err
	}
	if err := h.host.SendMessage(&wire.Nil{Sigs: h.toWireSigs(sigs)}); err != nil {
		return err
	}
	h.potato = Absent
	return nil
}

func (h *Handler) sendStartGames(mySide, theirSide []channelpkg.GameStartInfo) error {
	sigs, err := h.channel.SendPotatoStartGame(mySide)
	if err != nil {
		return err
	}
	entries := make([]wire.GameStartEntry, len(theirSide))
	for i, g := range theirSide {
		entries[i] = gameStartInfoToWire(g)
	}
	for _, g := range mySide {
		h.ui.GameStart(g.GameID)
	}
	if err := h.host.SendMessage(&wire.StartGames{Sigs: h.toWireSigs(sigs), Games: entries}); err != nil {
		return err
	}
	h.potato = Absent
	return nil
}

func (h *Handler) sendMove(gameID [32]byte, move []byte) error {
	result, sigs, err := h.channel.SendPotatoMove(gameID, move)
	if err != nil {
		return err
	}
	h.ui.SelfMove(gameID, move)
	wireDetails := wire.MoveDetails{
		ValidationPuzzleHash: result.Details.ValidationPuzzleHash,
		MoverShare:           result.Details.MoverShare,
		MaxMoveSize:          uint32(result.Details.MaxMoveSize),
		Move:                 result.Details.Move,
		Signature:            result.Details.Signature,
	}
	if result.Details.NextValidationProgram != nil {
		wireDetails.NextValidationProgram = types.EncodeNode(result.Details.NextValidationProgram)
	}
	if err := h.host.SendMessage(&wire.Move{GameID: gameID, Details: wireDetails, Sigs: h.toWireSigs(sigs)}); err != nil {
		return err
	}
	h.potato = Absent
	return nil
}

func (h *Handler) sendAccept(gameID [32]byte) error {
	payoff, sigs, err := h.channel.SendPotatoAccept(gameID)
	if err != nil {
		return err
	}
	h.ui.GameFinished(gameID, payoff)
	if err := h.host.SendMessage(&wire.Accept{GameID: gameID, Amount: payoff, Sigs: h.toWireSigs(sigs)}); err != nil {
		return err
	}
	h.potato = Absent
	return nil
}

// Idle is called periodically by the host driver loop; if we hold an
// idle potato with queued work it performs one queued action, and if we
// hold an idle potato with no queued work it sends nothing (an empty
// Nil keepalive is only useful once a peer actually needs the state
// bump, which SendEmptyPotato already drives from queued actions).
func (h *Handler) Idle() error {
	if h.potato != Present {
		return nil
	}
	return h.drainQueue()
}
