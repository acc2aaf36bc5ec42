// Package unroll implements the on-chain fallback engine: building
// the unroll puzzle's curried instance and solution, and deriving the
// set of successor coins (per-game referee coins plus balance coins)
// from an observed unroll spend. Dispatch picks between the supersede
// and timeout paths.
package unroll

import (
	"fmt"

	"github.com/btcsuite/btclog"

	"github.com/chia-network/chia-gaming-go/condition"
	"github.com/chia-network/chia-gaming-go/types"
)

var log = btclog.Disabled

// UseLogger sets the package-wide logger.
func UseLogger(logger btclog.Logger) {
	log = logger
}

// PuzzleHash derives the curried unroll puzzle's hash for the given
// shared (aggregate unroll) public key, state number, and the hash of
// the default (post-timeout) conditions it should enforce if nobody
// supersedes it. This is the same construction channelpkg.unrollPuzzleHash
// uses internally; it is re-exposed here for callers that only have
// the shared key and state number (e.g. after observing a channel-coin
// spend on chain) and not a live channelpkg.Handler.
func PuzzleHash(sharedUnrollPubKey types.PublicKey, stateNumber uint64, defaultConditionsHash types.Hash) types.Hash {
	return types.List(
		types.Atom([]byte("unroll-puzzle")),
		types.Atom(sharedUnrollPubKey.Bytes()),
		types.Atom(beUint64(stateNumber)),
		types.Atom(defaultConditionsHash[:]),
	).TreeHash()
}

func beUint64(v uint64) []byte {
	buf := make([]byte, 8)
	for i := 7; i >= 0; i-- {
		buf[i] = byte(v)
		v >>= 8
	}
	return buf
}

// Solution is what actually gets passed to the unroll puzzle to spend
// it: either our signature over the cached conditions (supersede), or
// an empty signature relying on the puzzle's own timelock (timeout).
type Solution struct {
	Conditions condition.List
	Signature  types.Signature
	HasSignature bool
}

// Successor is one coin created by a spent unroll coin, classified
// against the live game list it was built from.
type Successor struct {
	Coin    types.Coin
	IsGame  bool
	GameID  [32]byte
}

// MatchSuccessors filters the CreateCoin conditions a spent unroll coin
// produced, and for each one that matches a known game's current
// referee puzzle hash, tags it as that game's referee coin; everything
// else is a balance refund.
func MatchSuccessors(unrollCoinID types.Hash, observed condition.List, gamePuzzleHashes map[[32]byte]types.Hash) ([]Successor, error) {
	creates := observed.CreateCoins()
	if len(creates) == 0 {
		return nil, fmt.Errorf("unroll: spent conditions contain no CREATE_COIN")
	}

	byHash := make(map[types.Hash][32]byte, len(gamePuzzleHashes))
	for id, ph := range gamePuzzleHashes {
		byHash[ph] = id
	}

	out := make([]Successor, 0, len(creates))
	for _, c := range creates {
		coin := types.Coin{ParentID: unrollCoinID, PuzzleHash: c.PuzzleHash, Amount: c.Amount}
		if gameID, ok := byHash[c.PuzzleHash]; ok {
			out = append(out, Successor{Coin: coin, IsGame: true, GameID: gameID})
			continue
		}
		out = append(out, Successor{Coin: coin})
	}
	return out, nil
}

// StateNumberFromRems extracts the state number a spend's Rem memos
// bound to it, the inverse of channelpkg's Rem(state_number) memo.
// Returns an error if the conditions carry no such memo, which
// is a protocol violation -- every channel/unroll spend this protocol
// produces carries one.
func StateNumberFromRems(observed condition.List) (uint64, error) {
	rems := observed.Rems()
	if len(rems) == 0 || len(rems[0].Memo) != 1 || len(rems[0].Memo[0]) > 8 {
		return 0, fmt.Errorf("unroll: no valid state-number REM memo present")
	}
	var v uint64
	for _, b := range rems[0].Memo[0] {
		v = v<<8 | uint64(b)
	}
	return v, nil
}

// Dispatch decides what to broadcast in response to an observed
// channel-coin spend, by combining the channel handler's triage
// (already encapsulated in channelpkg.Handler.ChannelCoinSpent) with
// the unroll-specific signature rule: on a supersede, sign and
// broadcast the cached unroll spend; on a timeout, submit the default
// spend with an empty signature, relying on the puzzle's timelock to
// accept it.
func Dispatch(stateNumber uint64, conds condition.List, puzzleHash types.Hash, sig types.Signature, hasSignature bool) Solution {
	if hasSignature {
		log.Debugf("unroll: superseding at state %d", stateNumber)
	} else {
		log.Debugf("unroll: submitting default (timeout) unroll at state %d", stateNumber)
	}
	return Solution{Conditions: conds, Signature: sig, HasSignature: hasSignature}
}
