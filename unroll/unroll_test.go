package unroll_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/types"
	"github.com/chia-network/chia-gaming-go/unroll"
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

func TestPuzzleHashDeterministicAndStateSensitive(t *testing.T) {
	pk := mustKey(t, 0x60).PublicKey()
	defaults := types.HashBytes([]byte("defaults"))

	h1 := unroll.PuzzleHash(pk, 5, defaults)
	h2 := unroll.PuzzleHash(pk, 5, defaults)
	require.Equal(t, h1, h2)

	h3 := unroll.PuzzleHash(pk, 6, defaults)
	require.NotEqual(t, h1, h3)

	otherPK := mustKey(t, 0x61).PublicKey()
	h4 := unroll.PuzzleHash(otherPK, 5, defaults)
	require.NotEqual(t, h1, h4)

	// The default-conditions binding matters too: the unsigned timeout
	// path is only sound if a different payout list curries a
	// different puzzle.
	otherDefaults := types.HashBytes([]byte("other defaults"))
	h5 := unroll.PuzzleHash(pk, 5, otherDefaults)
	require.NotEqual(t, h1, h5)
}

func TestMatchSuccessorsClassifiesGameAndBalanceCoins(t *testing.T) {
	unrollCoinID := types.HashBytes([]byte("unroll-coin"))
	gameID := [32]byte{3}
	gamePH := types.HashBytes([]byte("game-ph"))
	balancePH := types.HashBytes([]byte("balance-ph"))

	observed := condition.List{
		condition.NewCreateCoin(balancePH, 100),
		condition.NewCreateCoin(gamePH, 50),
	}

	successors, err := unroll.MatchSuccessors(unrollCoinID, observed, map[[32]byte]types.Hash{gameID: gamePH})
	require.NoError(t, err)
	require.Len(t, successors, 2)

	require.False(t, successors[0].IsGame)
	require.Equal(t, unrollCoinID, successors[0].Coin.ParentID)
	require.Equal(t, balancePH, successors[0].Coin.PuzzleHash)

	require.True(t, successors[1].IsGame)
	require.Equal(t, gameID, successors[1].GameID)
	require.Equal(t, gamePH, successors[1].Coin.PuzzleHash)
}

func TestMatchSuccessorsRejectsNoCreateCoins(t *testing.T) {
	observed := condition.List{condition.NewRem([]byte{0, 1})}
	_, err := unroll.MatchSuccessors(types.HashBytes([]byte("x")), observed, nil)
	require.Error(t, err)
}

func TestStateNumberFromRemsRoundTripsThroughBigEndianEncoding(t *testing.T) {
	observed := condition.List{
		condition.NewRem([]byte{0, 0, 0, 0, 0, 0, 1, 44}),
		condition.NewRem([]byte("restHash")),
	}
	n, err := unroll.StateNumberFromRems(observed)
	require.NoError(t, err)
	require.Equal(t, uint64(300), n)
}

func TestStateNumberFromRemsRejectsMissingMemo(t *testing.T) {
	observed := condition.List{condition.NewCreateCoin(types.HashBytes([]byte("a")), 1)}
	_, err := unroll.StateNumberFromRems(observed)
	require.Error(t, err)
}

func TestDispatchSupersedeVsTimeout(t *testing.T) {
	conds := condition.List{condition.NewCreateCoin(types.HashBytes([]byte("ph")), 10)}
	puzzleHash := types.HashBytes([]byte("unroll-ph"))
	sig := mustKey(t, 0x62).Sign([]byte("msg"))

	supersede := unroll.Dispatch(4, conds, puzzleHash, sig, true)
	require.True(t, supersede.HasSignature)
	require.Equal(t, sig, supersede.Signature)

	timeout := unroll.Dispatch(4, conds, puzzleHash, types.Signature{}, false)
	require.False(t, timeout.HasSignature)
}
