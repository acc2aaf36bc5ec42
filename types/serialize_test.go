package types_test

import (
	"testing"

	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/chia-network/chia-gaming-go/types"
)

func TestEncodeDecodeNodeRoundTrip(t *testing.T) {
	cases := []*types.Node{
		types.Nil,
		types.Atom([]byte("a single atom")),
		types.List(types.Atom([]byte("1")), types.Atom([]byte("2"))),
		types.Cons(types.Atom(nil), types.Cons(types.Atom([]byte("x")), types.Nil)),
	}
	for _, n := range cases {
		encoded := types.EncodeNode(n)
		decoded, err := types.DecodeNode(encoded)
		require.NoError(t, err)
		require.Equal(t, n.TreeHash(), decoded.TreeHash())
	}
}

func TestDecodeNodeRejectsTrailingBytes(t *testing.T) {
	encoded := types.EncodeNode(types.Atom([]byte("a")))
	_, err := types.DecodeNode(append(encoded, 0xff))
	require.Error(t, err)
}

func TestDecodeNodeRejectsUnknownTag(t *testing.T) {
	_, err := types.DecodeNode([]byte{0x02})
	require.Error(t, err)
}

// TestEncodeDecodeNodeRapid is a generative round-trip check: for any
// randomly shaped Node, EncodeNode/DecodeNode must preserve its tree
// hash.
func TestEncodeDecodeNodeRapid(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		n := genNode(rt, 4)
		encoded := types.EncodeNode(n)
		decoded, err := types.DecodeNode(encoded)
		if err != nil {
			rt.Fatalf("decode failed: %v", err)
		}
		if decoded.TreeHash() != n.TreeHash() {
			rt.Fatalf("tree hash mismatch after round trip")
		}
	})
}

func genNode(rt *rapid.T, depth int) *types.Node {
	if depth <= 0 || rapid.Bool().Draw(rt, "isAtom") {
		b := rapid.SliceOfN(rapid.Byte(), 0, 8).Draw(rt, "atom")
		return types.Atom(b)
	}
	first := genNode(rt, depth-1)
	rest := genNode(rt, depth-1)
	return types.Cons(first, rest)
}
