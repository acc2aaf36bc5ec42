// Package types defines the cryptographic and content-addressed value
// types shared across the channel handler, referee maker, potato handler
// and unroll engine: BLS keys and signatures, coin identifiers, and the
// CLVM-style program/puzzle values that the channel and referee coins are
// locked by.
package types

import (
	"crypto/sha256"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
)

// Hash is a 32-byte content-addressed identifier: a coin id, a puzzle
// hash, or a tree hash of a program. It is a thin wrapper over
// chainhash.Hash for its string/JSON/comparison ergonomics.
type Hash = chainhash.Hash

// ZeroHash is the all-zero hash, used as the parent id of the very first
// coin created off chain (a funding coin has no on-chain parent yet).
var ZeroHash Hash

// HashBytes returns the sha256 of buf as a Hash. Used for anything that
// isn't a tree hash (e.g. hashing a serialized condition list).
func HashBytes(buf []byte) Hash {
	return Hash(sha256.Sum256(buf))
}

// Amount is a coin amount in mojo (the smallest on-chain unit). Signed so
// that intermediate balance arithmetic can be checked for underflow
// before it is ever written into a condition.
type Amount int64

// Add returns a+b, and an error if the result would overflow or go
// negative. Every balance mutation in the channel handler routes through
// this so that amount overflow/underflow is fatal rather than silently
// wrapping.
func (a Amount) Add(b Amount) (Amount, error) {
	sum := a + b
	if (b > 0 && sum < a) || (b < 0 && sum > a) {
		return 0, ErrAmountOverflow
	}
	if sum < 0 {
		return 0, ErrAmountUnderflow
	}
	return sum, nil
}

// Sub returns a-b with the same overflow/underflow checking as Add.
func (a Amount) Sub(b Amount) (Amount, error) {
	return a.Add(-b)
}
