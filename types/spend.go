package types

// SpendBundle is an opaque, possibly-partially-signed transaction: a
// coin spend (a puzzle reveal plus the solution to run it with) and an
// aggregate BLS signature over whatever conditions that run produces.
// Lives in types (rather than host, which otherwise owns the
// collaborator boundary) because both the wire codec and the host
// interfaces need it without creating an import cycle between them.
type SpendBundle struct {
	Coin      Coin
	Puzzle    *Puzzle
	Solution  *Node
	Signature Signature
}
