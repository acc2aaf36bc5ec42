package types

import "errors"

// Sentinel errors shared by the crypto/value layer. Higher layers
// wrap these with more context where it helps a caller branch on cause;
// callers that only need to know "this failed" can compare directly
// against these.
var (
	// ErrAmountOverflow is returned by Amount.Add/Sub when the result
	// would exceed the representable range.
	ErrAmountOverflow = errors.New("types: amount overflow")

	// ErrAmountUnderflow is returned by Amount.Add/Sub when the result
	// would be negative. Off-chain balances, stakes, and mover shares
	// are never allowed to go negative.
	ErrAmountUnderflow = errors.New("types: amount underflow")

	// ErrBadAtom is returned when a Node expected to be a leaf atom is
	// a pair, or vice versa.
	ErrBadAtom = errors.New("types: expected atom, got pair")

	// ErrBadPair is returned when a Node expected to be a pair is an
	// atom.
	ErrBadPair = errors.New("types: expected pair, got atom")

	// ErrNilAggregate is returned when an aggregate signature or
	// public key operation is given zero inputs.
	ErrNilAggregate = errors.New("types: cannot aggregate zero values")

	// ErrSignatureVerification names a signature that does not
	// validate against the claimed public key(s). Verify itself reports
	// that case as a false result rather than returning this error.
	ErrSignatureVerification = errors.New("types: signature verification failed")
)
