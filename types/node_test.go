package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chia-network/chia-gaming-go/types"
)

func TestNodeAtomPairAccessors(t *testing.T) {
	leaf := types.Atom([]byte("hello"))
	require.True(t, leaf.IsAtom())
	b, err := leaf.AsAtom()
	require.NoError(t, err)
	require.Equal(t, []byte("hello"), b)
	_, _, err = leaf.AsPair()
	require.ErrorIs(t, err, types.ErrBadPair)

	pair := types.Cons(types.Atom([]byte("a")), types.Nil)
	require.False(t, pair.IsAtom())
	first, rest, err := pair.AsPair()
	require.NoError(t, err)
	require.Equal(t, []byte("a"), first.Atom)
	require.True(t, rest.IsAtom())
	_, err = pair.AsAtom()
	require.ErrorIs(t, err, types.ErrBadAtom)
}

func TestListRoundTripsThroughToList(t *testing.T) {
	a := types.Atom([]byte("1"))
	b := types.Atom([]byte("2"))
	c := types.Atom([]byte("3"))
	l := types.List(a, b, c)

	items, err := l.ToList()
	require.NoError(t, err)
	require.Len(t, items, 3)
	require.Equal(t, []byte("1"), items[0].Atom)
	require.Equal(t, []byte("2"), items[1].Atom)
	require.Equal(t, []byte("3"), items[2].Atom)
}

func TestToListRejectsImproperList(t *testing.T) {
	improper := types.Cons(types.Atom([]byte("a")), types.Atom([]byte("not-nil")))
	_, err := improper.ToList()
	require.ErrorIs(t, err, types.ErrBadPair)
}

// TestTreeHashDeterministicAndSensitive checks the hash the Rem-memo
// binding relies on: two structurally equal trees hash equal, and any
// difference in shape or atom content changes the hash.
func TestTreeHashDeterministicAndSensitive(t *testing.T) {
	build := func() *types.Node {
		return types.List(types.Atom([]byte("x")), types.Cons(types.Atom([]byte("y")), types.Nil))
	}
	h1 := build().TreeHash()
	h2 := build().TreeHash()
	require.Equal(t, h1, h2)

	different := types.List(types.Atom([]byte("x")), types.Cons(types.Atom([]byte("z")), types.Nil))
	require.NotEqual(t, h1, different.TreeHash())

	require.NotEqual(t, types.Atom([]byte("x")).TreeHash(), types.Atom([]byte("y")).TreeHash())
}

func TestNilIsEmptyAtom(t *testing.T) {
	require.True(t, types.Nil.IsAtom())
	b, err := types.Nil.AsAtom()
	require.NoError(t, err)
	require.Len(t, b, 0)
}
