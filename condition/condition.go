// Package condition models the small fixed vocabulary of coin-spend
// conditions this protocol relies on, and the parsing/emission between
// that vocabulary and the generic types.Node a puzzle's CLVM run
// actually produces: a fixed, ordered list of outputs plus
// out-of-band signing data, expressed as CreateCoin/AggSig*/Rem.
package condition

import (
	"encoding/binary"
	"fmt"

	"github.com/chia-network/chia-gaming-go/types"
)

// Kind discriminates the condition variants.
type Kind uint8

const (
	// CreateCoin creates a new coin as this spend's effect.
	CreateCoin Kind = iota
	// AggSigMe requires a BLS signature over a message bound to this
	// coin's id and a network-wide constant.
	AggSigMe
	// AggSigUnsafe requires a BLS signature over an unbound message.
	AggSigUnsafe
	// Rem is an opaque memo: it contributes to the conditions' tree
	// hash (and hence to what gets signed) but has no on-chain effect.
	Rem
)

func (k Kind) String() string {
	switch k {
	case CreateCoin:
		return "CREATE_COIN"
	case AggSigMe:
		return "AGG_SIG_ME"
	case AggSigUnsafe:
		return "AGG_SIG_UNSAFE"
	case Rem:
		return "REM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", k)
	}
}

// Opcodes match Chia's standard condition opcode numbering, used both
// for wire-level Node encoding and for readability in debug dumps.
const (
	OpcodeAggSigUnsafe = 49
	OpcodeAggSigMe     = 50
	OpcodeCreateCoin    = 51
	OpcodeRemark        = 1
)

// Condition is a single parsed coin-spend condition.
type Condition struct {
	Kind Kind

	// CreateCoin fields.
	PuzzleHash types.Hash
	Amount     types.Amount

	// AggSigMe / AggSigUnsafe fields.
	PublicKey types.PublicKey
	Message   []byte

	// Rem fields: opaque memo chunks, kept as separate chunks in order.
	Memo [][]byte
}

// NewCreateCoin builds a CreateCoin condition.
func NewCreateCoin(puzzleHash types.Hash, amount types.Amount) Condition {
	return Condition{Kind: CreateCoin, PuzzleHash: puzzleHash, Amount: amount}
}

// NewAggSigMe builds an AggSigMe condition. Callers must already have
// folded the coin id and network constant into msg via AggSigMeMessage;
// this keeps Condition itself a dumb data holder with no hidden
// binding logic.
func NewAggSigMe(pk types.PublicKey, msg []byte) Condition {
	return Condition{Kind: AggSigMe, PublicKey: pk, Message: msg}
}

// NewAggSigUnsafe builds an AggSigUnsafe condition.
func NewAggSigUnsafe(pk types.PublicKey, msg []byte) Condition {
	return Condition{Kind: AggSigUnsafe, PublicKey: pk, Message: msg}
}

// NewRem builds a Rem memo condition out of the given opaque chunks.
func NewRem(memo ...[]byte) Condition {
	return Condition{Kind: Rem, Memo: memo}
}

// AggSigMeMessage binds msg to coinID and the network-wide agg-sig
// constant, the way AggSigMe's "Me" half implies. This
// is what must be signed (and what Verify must be called with) for an
// AggSigMe condition, as opposed to plain msg for AggSigUnsafe.
func AggSigMeMessage(msg []byte, coinID types.Hash, networkAggSigConstant types.Hash) []byte {
	out := make([]byte, 0, len(msg)+64)
	out = append(out, msg...)
	out = append(out, coinID[:]...)
	out = append(out, networkAggSigConstant[:]...)
	return out
}

// List is an ordered condition list: the output of building a coin
// spend, or the parsed output of running a puzzle.
type List []Condition

// Encode renders a condition list into the generic Node list a puzzle
// reveal's solution would carry, one (opcode arg...) list per
// condition, in order. Ordering is consensus-critical: both peers must
// build the list in the same order or their signatures diverge.
func (l List) Encode() *types.Node {
	nodes := make([]*types.Node, len(l))
	for i, c := range l {
		nodes[i] = c.encode()
	}
	return types.List(nodes...)
}

func (c Condition) encode() *types.Node {
	switch c.Kind {
	case CreateCoin:
		return types.List(
			opcodeAtom(OpcodeCreateCoin),
			types.Atom(c.PuzzleHash[:]),
			types.Atom(amountAtom(c.Amount)),
		)
	case AggSigMe:
		return types.List(
			opcodeAtom(OpcodeAggSigMe),
			types.Atom(c.PublicKey.Bytes()),
			types.Atom(c.Message),
		)
	case AggSigUnsafe:
		return types.List(
			opcodeAtom(OpcodeAggSigUnsafe),
			types.Atom(c.PublicKey.Bytes()),
			types.Atom(c.Message),
		)
	case Rem:
		nodes := append([]*types.Node{opcodeAtom(OpcodeRemark)}, memoAtoms(c.Memo)...)
		return types.List(nodes...)
	default:
		panic(fmt.Sprintf("condition: unknown kind %d", c.Kind))
	}
}

func opcodeAtom(op int) *types.Node {
	return types.Atom([]byte{byte(op)})
}

func memoAtoms(memo [][]byte) []*types.Node {
	nodes := make([]*types.Node, len(memo))
	for i, m := range memo {
		nodes[i] = types.Atom(m)
	}
	return nodes
}

func amountAtom(a types.Amount) []byte {
	if a == 0 {
		return nil
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], uint64(a))
	i := 0
	for i < 7 && buf[i] == 0 && buf[i+1]&0x80 == 0 {
		i++
	}
	return buf[i:]
}

// Parse reads a program-output Node as a condition list. Unknown
// opcodes are preserved as-is only if they're Rem-shaped (opcode 1);
// anything else unrecognized is a parse error, since a referee or
// channel puzzle that emits a condition we don't understand is a
// protocol violation we'd rather surface than silently ignore.
func Parse(output *types.Node) (List, error) {
	items, err := output.ToList()
	if err != nil {
		return nil, fmt.Errorf("condition: output is not a proper list: %w", err)
	}
	out := make(List, 0, len(items))
	for _, item := range items {
		c, err := parseOne(item)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func parseOne(item *types.Node) (Condition, error) {
	parts, err := item.ToList()
	if err != nil || len(parts) < 1 {
		return Condition{}, fmt.Errorf("condition: malformed condition entry")
	}
	opBytes, err := parts[0].AsAtom()
	if err != nil || len(opBytes) != 1 {
		return Condition{}, fmt.Errorf("condition: malformed opcode")
	}
	switch int(opBytes[0]) {
	case OpcodeCreateCoin:
		if len(parts) != 3 {
			return Condition{}, fmt.Errorf("condition: CREATE_COIN wants 2 args, got %d", len(parts)-1)
		}
		ph, err := parts[1].AsAtom()
		if err != nil || len(ph) != 32 {
			return Condition{}, fmt.Errorf("condition: CREATE_COIN puzzle hash must be 32 bytes")
		}
		amt, err := parts[2].AsAtom()
		if err != nil {
			return Condition{}, fmt.Errorf("condition: CREATE_COIN amount malformed")
		}
		var hash types.Hash
		copy(hash[:], ph)
		return NewCreateCoin(hash, decodeAmount(amt)), nil
	case OpcodeAggSigMe, OpcodeAggSigUnsafe:
		if len(parts) != 3 {
			return Condition{}, fmt.Errorf("condition: AGG_SIG wants 2 args, got %d", len(parts)-1)
		}
		pkBytes, err := parts[1].AsAtom()
		if err != nil {
			return Condition{}, fmt.Errorf("condition: AGG_SIG public key malformed")
		}
		pk, err := types.PublicKeyFromBytes(pkBytes)
		if err != nil {
			return Condition{}, fmt.Errorf("condition: AGG_SIG public key: %w", err)
		}
		msg, err := parts[2].AsAtom()
		if err != nil {
			return Condition{}, fmt.Errorf("condition: AGG_SIG message malformed")
		}
		if int(opBytes[0]) == OpcodeAggSigMe {
			return NewAggSigMe(pk, msg), nil
		}
		return NewAggSigUnsafe(pk, msg), nil
	case OpcodeRemark:
		memo := make([][]byte, 0, len(parts)-1)
		for _, p := range parts[1:] {
			m, err := p.AsAtom()
			if err != nil {
				return Condition{}, fmt.Errorf("condition: REM memo malformed")
			}
			memo = append(memo, m)
		}
		return NewRem(memo...), nil
	default:
		return Condition{}, fmt.Errorf("condition: unsupported opcode %d", opBytes[0])
	}
}

func decodeAmount(b []byte) types.Amount {
	var v int64
	for _, by := range b {
		v = v<<8 | int64(by)
	}
	return types.Amount(v)
}

// CreateCoins filters l down to just the CreateCoin conditions, in
// order, the way the unroll engine derives successor coins from
// observed spend conditions.
func (l List) CreateCoins() []Condition {
	var out []Condition
	for _, c := range l {
		if c.Kind == CreateCoin {
			out = append(out, c)
		}
	}
	return out
}

// Rems filters l down to just the Rem conditions, in order.
func (l List) Rems() []Condition {
	var out []Condition
	for _, c := range l {
		if c.Kind == Rem {
			out = append(out, c)
		}
	}
	return out
}
