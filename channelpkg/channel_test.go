package channelpkg_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chia-network/chia-gaming-go/channelpkg"
	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/types"
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

// countingRunner increments game state by the move length, identical in
// spirit to referee's own test double (types.ProgramRunner's intended
// test shape per types/node.go's doc comment).
type countingRunner struct{}

func (r *countingRunner) Run(program, solution *types.Program) (*types.Node, error) {
	parts, err := solution.ToList()
	if err != nil || len(parts) != 2 {
		return nil, fmt.Errorf("bad solution shape")
	}
	stateBytes, _ := parts[0].AsAtom()
	moveBytes, _ := parts[1].AsAtom()

	state := decodeState(stateBytes)
	newShare := state + int64(len(moveBytes))
	newState := encodeState(newShare)
	vph := types.HashBytes([]byte(fmt.Sprintf("vph-%d", newShare)))

	return types.List(
		types.Atom(vph[:]),
		types.Atom(amountBytes(newShare)),
		types.Atom(amountBytes(64)),
		types.Atom(newState),
	), nil
}

func decodeState(b []byte) int64 {
	var v int64
	for _, by := range b {
		v = v<<8 | int64(by)
	}
	return v
}

func encodeState(v int64) []byte {
	if v == 0 {
		return nil
	}
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	i := 0
	for i < 7 && buf[i] == 0 {
		i++
	}
	return buf[i:]
}

func amountBytes(v int64) []byte { return encodeState(v) }

// pairedHandlers builds two channel handlers (alice holds the potato,
// bob doesn't) and drives them through Initiate/FinishHandshake so every
// other test can start from a ready channel.
func pairedHandlers(t *testing.T) (alice, bob *channelpkg.Handler) {
	t.Helper()
	alice, bob, _, _ = pairedHandlersWithKeys(t)
	return alice, bob
}

// pairedHandlersWithKeys is pairedHandlers for tests that also need the
// raw private keys back (e.g. to rebuild a handler from a snapshot).
func pairedHandlersWithKeys(t *testing.T) (alice, bob *channelpkg.Handler, aliceKeys, bobKeys types.ChannelHandlerPrivateKeys) {
	t.Helper()
	aliceKeys = mustHandlerKeys(t, 0x10)
	bobKeys = mustHandlerKeys(t, 0x20)
	aliceReward := types.HashBytes([]byte("alice-reward"))
	bobReward := types.HashBytes([]byte("bob-reward"))
	networkConst := types.HashBytes([]byte("testnet"))
	runner := &countingRunner{}

	alice = channelpkg.New(aliceKeys, aliceReward, networkConst, runner, true)
	bob = channelpkg.New(bobKeys, bobReward, networkConst, runner, false)

	aliceInit, err := alice.Initiate(channelpkg.InitData{
		TheirKeys:              bobKeys.Public(),
		TheirRefereePuzzleHash: types.HashBytes([]byte("bob-referee-ph")),
		TheirRewardPuzzleHash:  bobReward,
		AggregateContribution:  2000,
		OurContribution:        1000,
	})
	require.NoError(t, err)

	bobInit, err := bob.Initiate(channelpkg.InitData{
		TheirKeys:              aliceKeys.Public(),
		TheirRefereePuzzleHash: types.HashBytes([]byte("alice-referee-ph")),
		TheirRewardPuzzleHash:  aliceReward,
		AggregateContribution:  2000,
		OurContribution:        1000,
	})
	require.NoError(t, err)

	require.NoError(t, alice.FinishHandshake(bobInit.ChannelPartialSig))
	require.NoError(t, bob.FinishHandshake(aliceInit.ChannelPartialSig))
	require.Equal(t, alice.ChannelCoin().ID(), bob.ChannelCoin().ID())
	return alice, bob, aliceKeys, bobKeys
}

func TestInitiateRejectsEqualChannelKeys(t *testing.T) {
	keys := mustHandlerKeys(t, 0x30)
	networkConst := types.HashBytes([]byte("testnet"))
	h := channelpkg.New(keys, types.HashBytes([]byte("r")), networkConst, &countingRunner{}, true)
	_, err := h.Initiate(channelpkg.InitData{
		TheirKeys:             keys.Public(),
		AggregateContribution: 100,
		OurContribution:       50,
	})
	require.ErrorIs(t, err, channelpkg.ErrDistinctPubkeysRequired)
}

func TestHandshakeProducesSharedChannelCoin(t *testing.T) {
	alice, bob := pairedHandlers(t)
	aliceOurs, aliceTheirs := alice.Balances()
	bobOurs, bobTheirs := bob.Balances()
	require.Equal(t, types.Amount(1000), aliceOurs)
	require.Equal(t, types.Amount(1000), aliceTheirs)
	require.Equal(t, bobOurs, aliceTheirs)
	require.Equal(t, bobTheirs, aliceOurs)
}

func TestEmptyPotatoRoundTrip(t *testing.T) {
	alice, bob := pairedHandlers(t)

	sigs, err := alice.SendEmptyPotato()
	require.NoError(t, err)
	require.Equal(t, uint64(1), alice.CurrentStateNumber())

	outSigs, err := bob.ReceivedEmptyPotato(sigs)
	require.NoError(t, err)
	require.Equal(t, uint64(1), bob.CurrentStateNumber())
	require.Equal(t, uint64(1), bob.UnrollStateNumber())
	require.NotEqual(t, types.Signature{}, outSigs.ChannelSignature)
}

func TestReceivedEmptyPotatoRejectsBadSignature(t *testing.T) {
	_, bob := pairedHandlers(t)
	bogus := channelpkg.PotatoSignatures{}
	_, err := bob.ReceivedEmptyPotato(bogus)
	require.ErrorIs(t, err, channelpkg.ErrSignatureVerification)
}

func TestStartGameRoundTripAndTotalStake(t *testing.T) {
	alice, bob := pairedHandlers(t)

	starts := []channelpkg.GameStartInfo{
		{
			GameID:            [32]byte{9},
			GameType:          "poker",
			Timeout:           10,
			Amount:            200,
			MyContribution:    100,
			MyTurn:            true,
			ValidationProgram: types.Atom([]byte("validator")),
			InitialState:      encodeState(100),
		},
	}

	sigs, err := alice.SendPotatoStartGame(starts)
	require.NoError(t, err)

	bobStarts := []channelpkg.GameStartInfo{
		{
			GameID:            [32]byte{9},
			GameType:          "poker",
			Timeout:           10,
			Amount:            200,
			MyContribution:    100,
			MyTurn:            false,
			ValidationProgram: types.Atom([]byte("validator")),
			InitialState:      encodeState(100),
		},
	}
	_, err = bob.ReceivedPotatoStartGame(sigs, bobStarts)
	require.NoError(t, err)

	require.Equal(t, alice.LiveGames(), bob.LiveGames())
	require.Equal(t, types.Amount(200), alice.TotalStake())
	require.Equal(t, alice.TotalStake(), bob.TotalStake())
}

func startMatchingGame(t *testing.T, alice, bob *channelpkg.Handler, gameID [32]byte, stake types.Amount, myShare types.Amount) {
	t.Helper()
	validationProgram := types.Atom([]byte("validator"))
	initial := encodeState(int64(myShare))

	sigs, err := alice.SendPotatoStartGame([]channelpkg.GameStartInfo{{
		GameID:            gameID,
		Amount:            stake,
		MyContribution:    myShare,
		MyTurn:            true,
		ValidationProgram: validationProgram,
		InitialState:      initial,
	}})
	require.NoError(t, err)
	_, err = bob.ReceivedPotatoStartGame(sigs, []channelpkg.GameStartInfo{{
		GameID:            gameID,
		Amount:            stake,
		MyContribution:    stake - myShare,
		MyTurn:            false,
		ValidationProgram: validationProgram,
		InitialState:      initial,
	}})
	require.NoError(t, err)
}

func TestMoveRoundTripBetweenPeers(t *testing.T) {
	alice, bob := pairedHandlers(t)
	gameID := [32]byte{7}
	startMatchingGame(t, alice, bob, gameID, 200, 100)

	move := []byte{1, 2, 3}
	result, sigs, err := alice.SendPotatoMove(gameID, move)
	require.NoError(t, err)
	require.Equal(t, types.Amount(103), result.Details.MoverShare)

	readable, message, _, err := bob.ReceivedPotatoMove(*result, sigs)
	require.NoError(t, err)
	require.Equal(t, move, readable)
	require.Nil(t, message)
	require.Equal(t, alice.CurrentStateNumber(), bob.CurrentStateNumber())
}

func TestAcceptRoundTripCreditsBalances(t *testing.T) {
	alice, bob := pairedHandlers(t)
	gameID := [32]byte{11}
	startMatchingGame(t, alice, bob, gameID, 200, 100)

	payoff, sigs, err := alice.SendPotatoAccept(gameID)
	require.NoError(t, err)
	require.Equal(t, types.Amount(100), payoff)

	err = bob.ReceivedPotatoAccept(sigs, gameID, payoff)
	require.NoError(t, err)

	require.Empty(t, alice.LiveGames())
	require.Empty(t, bob.LiveGames())

	aliceOurs, _ := alice.Balances()
	_, bobTheirs := bob.Balances()
	require.Equal(t, aliceOurs, bobTheirs)
}

func TestCleanShutdownRequiresPotato(t *testing.T) {
	alice, _ := pairedHandlers(t)
	_, _, err := alice.CleanShutdown(false)
	require.ErrorIs(t, err, channelpkg.ErrPotatoDiscipline)
}

func TestCleanShutdownRoundTrip(t *testing.T) {
	alice, bob := pairedHandlers(t)
	conds, sig, err := alice.CleanShutdown(true)
	require.NoError(t, err)

	agg, err := bob.ReceivedCleanShutdown(conds, sig)
	require.NoError(t, err)
	require.NotEqual(t, types.Signature{}, agg)
}

// TestReceivedCleanShutdownRejectsUnderpayingSplit proposes a split
// that names bob's reward puzzle hash but pays it less than bob's
// balance; bob must refuse before any signature work happens.
func TestReceivedCleanShutdownRejectsUnderpayingSplit(t *testing.T) {
	_, bob := pairedHandlers(t)
	conds := condition.List{
		condition.NewCreateCoin(types.HashBytes([]byte("alice-reward")), 1999),
		condition.NewCreateCoin(types.HashBytes([]byte("bob-reward")), 1),
	}
	_, err := bob.ReceivedCleanShutdown(conds, types.Signature{})
	require.ErrorIs(t, err, channelpkg.ErrShutdownUnderpays)
}

// TestUnrollCoinBindsDefaultConditions checks the unroll puzzle hash is
// curried on the default-conditions hash, not just the key and state
// number: starting a game changes the default payout set, so the
// unroll coin at the same state number must change too.
func TestUnrollCoinBindsDefaultConditions(t *testing.T) {
	alice, bob := pairedHandlers(t)
	before := alice.UnrollCoinAt(alice.UnrollStateNumber())
	startMatchingGame(t, alice, bob, [32]byte{31}, 200, 100)
	after := alice.UnrollCoinAt(alice.UnrollStateNumber())
	require.NotEqual(t, before.PuzzleHash, after.PuzzleHash)
}

func TestChannelCoinSpentTriage(t *testing.T) {
	alice, bob := pairedHandlers(t)

	// One round each way, so both peers reach unroll_state_number == 2...
	sigs1, err := alice.SendEmptyPotato()
	require.NoError(t, err)
	_, err = bob.ReceivedEmptyPotato(sigs1)
	require.NoError(t, err)

	sigs2, err := bob.SendEmptyPotato()
	require.NoError(t, err)
	_, err = alice.ReceivedEmptyPotato(sigs2)
	require.NoError(t, err)
	require.Equal(t, uint64(2), alice.UnrollStateNumber())

	// ...then alice sends once more without bob ever receiving it, so
	// alice's current_state_number (3) outpaces her unroll_state_number
	// (2), the precondition every ChannelCoinSpent branch below needs.
	_, err = alice.SendEmptyPotato()
	require.NoError(t, err)
	require.Equal(t, uint64(3), alice.CurrentStateNumber())
	require.Equal(t, uint64(2), alice.UnrollStateNumber())

	// Reply from the future: nobody has unrolled past state 2 yet.
	_, _, err = alice.ChannelCoinSpent(99, true)
	require.ErrorIs(t, err, channelpkg.ErrReplyFromFuture)

	// Observed state equal to our own unroll state: informational, no
	// supersede required.
	tx, flag, err := alice.ChannelCoinSpent(alice.UnrollStateNumber(), true)
	require.NoError(t, err)
	require.True(t, flag)
	require.NotNil(t, tx)
	require.Equal(t, alice.UnrollStateNumber(), tx.StateNumber)

	// Cannot supersede our own committed state.
	_, _, err = alice.ChannelCoinSpent(0, true)
	require.ErrorIs(t, err, channelpkg.ErrCannotSupersedeOwnState)

	// Observed state behind ours but not our own parity: we supersede
	// with our own newer, already-signed state.
	tx, flag, err = alice.ChannelCoinSpent(0, false)
	require.NoError(t, err)
	require.False(t, flag)
	require.True(t, tx.HasSignature)
	require.Equal(t, alice.UnrollStateNumber(), tx.StateNumber)

	// Observed state equal to our own current (ahead of unroll) state:
	// the timeout path built from the current, not the unroll, state
	// number. Exercises the one branch the earlier ErrReplyFromFuture
	// guard used to shadow whenever current_state_number outpaced
	// unroll_state_number.
	tx, flag, err = alice.ChannelCoinSpent(alice.CurrentStateNumber(), true)
	require.NoError(t, err)
	require.True(t, flag)
	require.False(t, tx.HasSignature)
	require.Equal(t, alice.CurrentStateNumber(), tx.StateNumber)
}

func TestSnapshotReflectsCurrentState(t *testing.T) {
	alice, _ := pairedHandlers(t)
	_, err := alice.SendEmptyPotato()
	require.NoError(t, err)

	snap := alice.Snapshot()
	require.Equal(t, alice.ChannelCoin().ID(), snap.ChannelCoin.ID())
	require.Equal(t, uint64(1), snap.CurrentStateNumber)
	require.True(t, snap.StartedWithPotato)
}

// TestSnapshotRoundTripRestoresHandler persists a handler mid-game and
// rebuilds it from the snapshot plus the host-held immutable inputs,
// then checks the restored handler agrees with the original on every
// observable surface, the unroll coin (games and defaults included)
// most of all.
func TestSnapshotRoundTripRestoresHandler(t *testing.T) {
	alice, bob, aliceKeys, _ := pairedHandlersWithKeys(t)
	gameID := [32]byte{21}
	startMatchingGame(t, alice, bob, gameID, 200, 100)

	result, sigs, err := alice.SendPotatoMove(gameID, []byte{1, 2})
	require.NoError(t, err)
	_, _, _, err = bob.ReceivedPotatoMove(*result, sigs)
	require.NoError(t, err)

	restored, err := channelpkg.FromSnapshot(
		aliceKeys,
		types.HashBytes([]byte("alice-reward")),
		types.HashBytes([]byte("testnet")),
		&countingRunner{},
		alice.Snapshot(),
	)
	require.NoError(t, err)

	require.Equal(t, alice.CurrentStateNumber(), restored.CurrentStateNumber())
	require.Equal(t, alice.UnrollStateNumber(), restored.UnrollStateNumber())
	aliceOurs, aliceTheirs := alice.Balances()
	restoredOurs, restoredTheirs := restored.Balances()
	require.Equal(t, aliceOurs, restoredOurs)
	require.Equal(t, aliceTheirs, restoredTheirs)
	require.Equal(t, alice.LiveGames(), restored.LiveGames())
	require.Equal(t, alice.GamePuzzleHashes(), restored.GamePuzzleHashes())
	require.Equal(t,
		alice.UnrollCoinAt(alice.UnrollStateNumber()),
		restored.UnrollCoinAt(restored.UnrollStateNumber()))
}
