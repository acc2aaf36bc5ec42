package types

import "crypto/sha256"

// Node is a minimal CLVM-style value: either an atom (a byte string) or a
// pair (cons cell) of two further Nodes. Puzzles, solutions, conditions
// and program outputs are all represented as Nodes; nothing in this
// package interprets what an atom or pair *means*; that's the job of
// the condition package (parsing program output into Conditions) and the
// ProgramRunner collaborator (actually executing CLVM).
//
// A Node is an atom iff Pair is nil. The canonical CLVM nil is the atom
// with a zero-length byte string.
type Node struct {
	Atom []byte
	Pair *ConsPair
}

// ConsPair is the (First . Rest) cell of a pair Node. Rest is
// conventionally itself a Node whose trailing element is the atom nil,
// giving the usual CLVM proper-list encoding.
type ConsPair struct {
	First *Node
	Rest  *Node
}

// Nil is the canonical CLVM empty list / false value.
var Nil = Atom(nil)

// Atom builds a leaf Node from a byte string.
func Atom(b []byte) *Node {
	return &Node{Atom: b}
}

// Cons builds a pair Node.
func Cons(first, rest *Node) *Node {
	return &Node{Pair: &ConsPair{First: first, Rest: rest}}
}

// List builds a proper CLVM list out of the given Nodes, terminated by
// Nil, the way (list a b c) would in CHIALISP.
func List(nodes ...*Node) *Node {
	out := Nil
	for i := len(nodes) - 1; i >= 0; i-- {
		out = Cons(nodes[i], out)
	}
	return out
}

// IsAtom reports whether n is a leaf.
func (n *Node) IsAtom() bool {
	return n.Pair == nil
}

// AsAtom returns n's atom bytes, or ErrBadAtom if n is a pair.
func (n *Node) AsAtom() ([]byte, error) {
	if !n.IsAtom() {
		return nil, ErrBadAtom
	}
	return n.Atom, nil
}

// AsPair returns n's (first, rest), or ErrBadPair if n is an atom.
func (n *Node) AsPair() (*Node, *Node, error) {
	if n.IsAtom() {
		return nil, nil, ErrBadPair
	}
	return n.Pair.First, n.Pair.Rest, nil
}

// ToList walks a proper list Node into a Go slice. Fails if n isn't
// nil-terminated.
func (n *Node) ToList() ([]*Node, error) {
	var out []*Node
	cur := n
	for !cur.IsAtom() {
		out = append(out, cur.Pair.First)
		cur = cur.Pair.Rest
	}
	if len(cur.Atom) != 0 {
		return nil, ErrBadPair
	}
	return out, nil
}

// TreeHash computes the sha256tree of n: sha256(0x01 || atom) for a leaf,
// sha256(0x02 || TreeHash(first) || TreeHash(rest)) for a pair. This is
// the content-addressing scheme puzzle hashes, program hashes, and the
// Rem-memo "sha256tree(rest_of_conditions)" binding all use.
func (n *Node) TreeHash() Hash {
	h := sha256.New()
	if n.IsAtom() {
		h.Write([]byte{1})
		h.Write(n.Atom)
	} else {
		first := n.Pair.First.TreeHash()
		rest := n.Pair.Rest.TreeHash()
		h.Write([]byte{2})
		h.Write(first[:])
		h.Write(rest[:])
	}
	var out Hash
	copy(out[:], h.Sum(nil))
	return out
}

// Program is an executable, hashable CLVM value: a puzzle or a
// validation program. Its identity (for currying, for matching against
// on-chain puzzle reveals) is its TreeHash.
type Program = Node

// Puzzle is a Program that is expected to be run with a solution to
// yield a condition list; the alias exists purely for readability at
// call sites that construct a coin's locking puzzle as opposed to a
// validation program.
type Puzzle = Program

// ProgramRunner is the sole interface through which this module invokes
// CLVM. In production it is backed by a real CLVM interpreter; in
// tests, by a Go closure table keyed by program hash.
type ProgramRunner interface {
	// Run evaluates program(solution) and returns the resulting
	// condition-list Node, or an error if the program rejects the
	// solution (a puzzle reveal that doesn't satisfy its own puzzle,
	// or a validation program that rejects a proposed move).
	Run(program *Program, solution *Program) (*Node, error)
}
