package potato_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chia-network/chia-gaming-go/channelpkg"
	"github.com/chia-network/chia-gaming-go/host"
	"github.com/chia-network/chia-gaming-go/potato"
	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/wire"
)

func mustKey(t *testing.T, seed byte) types.PrivateKey {
	t.Helper()
	var seedBuf [32]byte
	for i := range seedBuf {
		seedBuf[i] = seed
	}
	sk, err := types.GeneratePrivateKey(seedBuf[:])
	require.NoError(t, err)
	return sk
}

func mustHandlerKeys(t *testing.T, base byte) types.ChannelHandlerPrivateKeys {
	t.Helper()
	return types.ChannelHandlerPrivateKeys{
		Channel: mustKey(t, base),
		Unroll:  mustKey(t, base+1),
		Referee: mustKey(t, base+2),
	}
}

type noopUI struct{}

func (noopUI) SelfMove(gameID [32]byte, move []byte)             {}
func (noopUI) OpponentMoved(gameID [32]byte, move []byte)        {}
func (noopUI) RawGameMessage(gameID [32]byte, message []byte)    {}
func (noopUI) GameMessage(gameID [32]byte, message []byte)       {}
func (noopUI) GameStart(gameID [32]byte)                         {}
func (noopUI) GameFinished(gameID [32]byte, myShare types.Amount) {}
func (noopUI) GameCancelled(gameID [32]byte)                     {}
func (noopUI) ShutdownComplete(rewardCoin types.Coin)            {}
func (noopUI) GoingOnChain(gotError bool)                        {}

// recUI records ShutdownComplete notifications on top of noopUI.
type recUI struct {
	noopUI
	shutdownComplete []types.Coin
}

func (u *recUI) ShutdownComplete(rewardCoin types.Coin) {
	u.shutdownComplete = append(u.shutdownComplete, rewardCoin)
}

type noFactory struct{}

func (noFactory) RunFactory(gameType string, amount, myContribution types.Amount, myTurn bool, parameters []byte) ([]host.FactoryGameStart, []host.FactoryGameStart, error) {
	return nil, nil, nil
}

// queuedWallet is a host.Callbacks that queues outbound messages instead
// of delivering them, so the test driver can pump them to the peer
// between top-level calls -- mirroring SendMessage's documented
// asynchronous contract rather than synchronously reentering the peer's
// Deliver mid-call.
type queuedWallet struct {
	outbox     []wire.Envelope
	registered []types.Coin
	self       *potato.Handler
	isHolder   bool
}

func (w *queuedWallet) SendMessage(envelope wire.Envelope) error {
	w.outbox = append(w.outbox, envelope)
	return nil
}
func (w *queuedWallet) RegisterCoin(coin types.Coin, timeoutBlocks uint32, debugName string) {
	w.registered = append(w.registered, coin)
}
func (w *queuedWallet) SpendTransactionAndAddFee(bundle host.SpendBundle, feeRateHint uint64) error {
	return nil
}
func (w *queuedWallet) RequestPuzzleAndSolution(coin types.Coin) error { return nil }

// ChannelPuzzleHash is only meaningfully handled on the non-holder side:
// it recovers our own partial signature (already computed the moment
// channel.Initiate ran) and hands back the channel-coin creation bundle
// via SendChannelOffer, exactly the continuation the design notes'
// resolved wallet-bootstrap question describes.
func (w *queuedWallet) ChannelPuzzleHash(ph types.Hash) error {
	if w.isHolder {
		return nil
	}
	bundle := types.SpendBundle{Signature: w.self.OurChannelPartialSig()}
	return w.self.SendChannelOffer(bundle)
}
func (w *queuedWallet) ReceivedChannelOffer(bundle host.SpendBundle) error { return nil }
func (w *queuedWallet) ReceivedChannelTransactionCompletion(bundle host.SpendBundle) error {
	return nil
}

func (w *queuedWallet) drain() []wire.Envelope {
	out := w.outbox
	w.outbox = nil
	return out
}

// pump alternates delivering each side's queued outbound messages to the
// other, stopping once a round produces nothing new -- the same
// fixed-point loop cmd/chia-gaming-cli/main.go's bus.pump runs over
// cradles, applied directly to a pair of potato handlers.
func pump(t *testing.T, aliceWallet, bobWallet *queuedWallet, alicePotato, bobPotato *potato.Handler, rounds int) {
	t.Helper()
	for i := 0; i < rounds; i++ {
		progress := false
		for _, msg := range aliceWallet.drain() {
			require.NoError(t, bobPotato.Deliver(msg))
			progress = true
		}
		for _, msg := range bobWallet.drain() {
			require.NoError(t, alicePotato.Deliver(msg))
			progress = true
		}
		if !progress {
			return
		}
	}
}

func newLinkedPair(t *testing.T) (alicePotato, bobPotato *potato.Handler, aliceWallet, bobWallet *queuedWallet) {
	t.Helper()
	return newLinkedPairUI(t, noopUI{}, noopUI{})
}

// newLinkedPairUI is newLinkedPair with caller-supplied UI fakes, for
// tests that need to observe UI notifications.
func newLinkedPairUI(t *testing.T, aliceUI, bobUI host.UI) (alicePotato, bobPotato *potato.Handler, aliceWallet, bobWallet *queuedWallet) {
	t.Helper()
	aliceKeys := mustHandlerKeys(t, 0x80)
	bobKeys := mustHandlerKeys(t, 0x90)
	networkConst := types.HashBytes([]byte("testnet"))

	aliceChannel := channelpkg.New(aliceKeys, types.HashBytes([]byte("alice-reward")), networkConst, nil, true)
	bobChannel := channelpkg.New(bobKeys, types.HashBytes([]byte("bob-reward")), networkConst, nil, false)

	aliceWallet = &queuedWallet{isHolder: true}
	bobWallet = &queuedWallet{isHolder: false}

	alicePotato = potato.New(
		aliceChannel, aliceWallet, aliceUI, noFactory{}, networkConst,
		aliceKeys, types.HashBytes([]byte("alice-reward")), types.HashBytes([]byte("alice-referee")),
		true, 1000, 1000, 100,
	)
	bobPotato = potato.New(
		bobChannel, bobWallet, bobUI, noFactory{}, networkConst,
		bobKeys, types.HashBytes([]byte("bob-reward")), types.HashBytes([]byte("bob-referee")),
		false, 1000, 1000, 100,
	)

	aliceWallet.self = alicePotato
	bobWallet.self = bobPotato
	return alicePotato, bobPotato, aliceWallet, bobWallet
}

func TestFullHandshakeReachesFinishedOnBothSides(t *testing.T) {
	alicePotato, bobPotato, aliceWallet, bobWallet := newLinkedPair(t)

	parentCoin := types.Coin{
		ParentID:   types.ZeroHash,
		PuzzleHash: types.HashBytes([]byte("alice-parent-puzzle")),
		Amount:     2000,
	}
	require.NoError(t, alicePotato.StartHandshake(parentCoin))

	pump(t, aliceWallet, bobWallet, alicePotato, bobPotato, 10)

	require.Equal(t, potato.Finished, alicePotato.HandshakeState())
	require.Equal(t, potato.Finished, bobPotato.HandshakeState())
}

func TestStartHandshakeRequiresPotatoHolder(t *testing.T) {
	_, bobPotato, _, _ := newLinkedPair(t)
	err := bobPotato.StartHandshake(types.Coin{})
	require.ErrorIs(t, err, potato.ErrNotPotatoHolder)
}

func TestStartHandshakeRejectsDoubleStart(t *testing.T) {
	alicePotato, _, _, _ := newLinkedPair(t)
	require.NoError(t, alicePotato.StartHandshake(types.Coin{Amount: 1}))
	err := alicePotato.StartHandshake(types.Coin{Amount: 2})
	require.ErrorIs(t, err, potato.ErrAlreadyHandshaking)
}

func TestRequestShutdownRequiresPotatoPresent(t *testing.T) {
	_, bobPotato, _, _ := newLinkedPair(t)
	// bob did not start with the potato.
	err := bobPotato.RequestShutdown()
	require.ErrorIs(t, err, potato.ErrNotPotatoHolder)
}

func TestRequestPotatoIsNoOpWhenAlreadyPresent(t *testing.T) {
	alicePotato, _, aliceWallet, _ := newLinkedPair(t)
	require.NoError(t, alicePotato.RequestPotato())
	require.Empty(t, aliceWallet.outbox)
	require.Equal(t, potato.Present, alicePotato.Potato())
}

func TestRequestPotatoSendsRequestWhenAbsent(t *testing.T) {
	_, bobPotato, _, bobWallet := newLinkedPair(t)
	require.Equal(t, potato.Absent, bobPotato.Potato())
	require.NoError(t, bobPotato.RequestPotato())
	require.Equal(t, potato.Requested, bobPotato.Potato())
	require.Len(t, bobWallet.outbox, 1)
	_, ok := bobWallet.outbox[0].(*wire.RequestPotato)
	require.True(t, ok)
}

// TestDeliverRejectsUnrecognizedEnvelopeType exercises Deliver's default
// case: a nil Envelope matches none of the typed cases in its switch.
func TestDeliverRejectsUnrecognizedEnvelopeType(t *testing.T) {
	_, bobPotato, _, _ := newLinkedPair(t)
	err := bobPotato.Deliver(nil)
	require.Error(t, err)
}

func TestRequestMoveQueuesWhenPotatoAbsent(t *testing.T) {
	_, bobPotato, _, bobWallet := newLinkedPair(t)
	require.Equal(t, potato.Absent, bobPotato.Potato())
	require.NoError(t, bobPotato.RequestMove([32]byte{1}, []byte{1, 2}))
	require.Empty(t, bobWallet.outbox)
}

// rewardCoinFor picks the registered coin paying rewardPH, i.e. the
// shutdown reward coin watchShutdownRewardCoin registered.
func rewardCoinFor(t *testing.T, w *queuedWallet, rewardPH types.Hash) types.Coin {
	t.Helper()
	for _, coin := range w.registered {
		if coin.PuzzleHash == rewardPH {
			return coin
		}
	}
	t.Fatalf("no registered coin pays %s", rewardPH)
	return types.Coin{}
}

// TestShutdownRoundTripCompletesOnRewardCoin drives a clean shutdown
// end to end: the holder proposes, the peer validates and co-signs the
// spend, both sides park in WaitingForShutdown watching their reward
// coins, and observing a reward coin created completes the shutdown on
// that side.
func TestShutdownRoundTripCompletesOnRewardCoin(t *testing.T) {
	aliceUI, bobUI := &recUI{}, &recUI{}
	alicePotato, bobPotato, aliceWallet, bobWallet := newLinkedPairUI(t, aliceUI, bobUI)

	parentCoin := types.Coin{
		ParentID:   types.ZeroHash,
		PuzzleHash: types.HashBytes([]byte("alice-parent-puzzle")),
		Amount:     2000,
	}
	require.NoError(t, alicePotato.StartHandshake(parentCoin))
	pump(t, aliceWallet, bobWallet, alicePotato, bobPotato, 10)
	require.Equal(t, potato.Finished, alicePotato.HandshakeState())

	require.NoError(t, alicePotato.RequestShutdown())
	require.Equal(t, potato.WaitingForShutdown, alicePotato.HandshakeState())

	pump(t, aliceWallet, bobWallet, alicePotato, bobPotato, 10)
	require.Equal(t, potato.WaitingForShutdown, bobPotato.HandshakeState())

	bobReward := rewardCoinFor(t, bobWallet, types.HashBytes([]byte("bob-reward")))
	require.Equal(t, types.Amount(1000), bobReward.Amount)
	bobPotato.NoteCoinCreated(bobReward)
	require.Equal(t, potato.Completed, bobPotato.HandshakeState())
	require.Equal(t, []types.Coin{bobReward}, bobUI.shutdownComplete)

	aliceReward := rewardCoinFor(t, aliceWallet, types.HashBytes([]byte("alice-reward")))
	alicePotato.NoteCoinCreated(aliceReward)
	require.Equal(t, potato.Completed, alicePotato.HandshakeState())
	require.Equal(t, []types.Coin{aliceReward}, aliceUI.shutdownComplete)

	// An unrelated coin created later is ignored.
	bobPotato.NoteCoinCreated(types.Coin{Amount: 1})
	require.Equal(t, []types.Coin{bobReward}, bobUI.shutdownComplete)
}
