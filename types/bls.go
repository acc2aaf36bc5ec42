package types

import (
	"fmt"

	blst "github.com/supranational/blst/bindings/go"
)

// dst is the hash-to-curve domain separation tag used for every
// signature this module produces. Binding a fixed DST means our
// signatures can never be replayed as valid signatures for an unrelated
// protocol that happens to share the same curve.
var dst = []byte("CHIA_GAMING_CHANNEL_SIG_V1")

// blstSignature and blstPublicKey name the min-pk blst variant used
// throughout: public keys live in G1 (48 bytes compressed), signatures
// in G2 (96 bytes compressed). Chia's own BLS scheme makes the same
// choice, trading a larger signature for a smaller (and more commonly
// aggregated) public key.
type (
	blstSignature = blst.P2Affine
	blstPublicKey = blst.P1Affine
)

// PrivateKey is a BLS12-381 secret scalar.
type PrivateKey struct {
	sk blst.SecretKey
}

// PublicKey is a BLS12-381 G1 point.
type PublicKey struct {
	pk blstPublicKey
}

// Signature is a BLS12-381 G2 point.
type Signature struct {
	sig blstSignature
}

// GeneratePrivateKey derives a PrivateKey deterministically from seed
// key-generation material (at least 32 bytes of entropy). Wallet key
// management beyond this derivation is out of scope.
func GeneratePrivateKey(ikm []byte) (PrivateKey, error) {
	if len(ikm) < 32 {
		return PrivateKey{}, fmt.Errorf("types: ikm must be at least 32 bytes, got %d", len(ikm))
	}
	sk := blst.KeyGen(ikm)
	return PrivateKey{sk: *sk}, nil
}

// PublicKey returns the public key corresponding to sk.
func (sk PrivateKey) PublicKey() PublicKey {
	var pk blstPublicKey
	pk.From(&sk.sk)
	return PublicKey{pk: pk}
}

// Sign produces a BLS signature over msg under sk, using the standard
// hash-to-curve domain separation tag. Callers that need AggSigMe
// binding must fold the coin id and network constant into msg
// themselves (condition.AggSigMeMessage) before calling Sign.
func (sk PrivateKey) Sign(msg []byte) Signature {
	var sig blstSignature
	sig.Sign(&sk.sk, msg, dst)
	return Signature{sig: sig}
}

// Bytes returns the 48-byte compressed serialization of pk.
func (pk PublicKey) Bytes() []byte {
	return pk.pk.Compress()
}

// PublicKeyFromBytes parses a compressed 48-byte public key.
func PublicKeyFromBytes(b []byte) (PublicKey, error) {
	var pk blstPublicKey
	if pk.Uncompress(b) == nil {
		return PublicKey{}, fmt.Errorf("types: invalid public key encoding")
	}
	if !pk.KeyValidate() {
		return PublicKey{}, fmt.Errorf("types: public key fails group validation")
	}
	return PublicKey{pk: pk}, nil
}

// Equal reports whether two public keys are the same curve point.
func (pk PublicKey) Equal(other PublicKey) bool {
	return pk.pk.Equals(&other.pk)
}

// Bytes returns the 96-byte compressed serialization of sig.
func (sig Signature) Bytes() []byte {
	return sig.sig.Compress()
}

// SignatureFromBytes parses a compressed 96-byte signature.
func SignatureFromBytes(b []byte) (Signature, error) {
	var sig blstSignature
	if sig.Uncompress(b) == nil {
		return Signature{}, fmt.Errorf("types: invalid signature encoding")
	}
	return Signature{sig: sig}, nil
}

// AggregatePublicKeys sums public keys. BLS public-key aggregation is
// additive, commutative and associative: the aggregate of both
// parties' channel keys is what actually controls the 2-of-2 channel
// coin, and the order the two keys are summed in never matters.
func AggregatePublicKeys(keys ...PublicKey) (PublicKey, error) {
	if len(keys) == 0 {
		return PublicKey{}, ErrNilAggregate
	}
	var agg blst.P1Aggregate
	affines := make([]*blstPublicKey, len(keys))
	for i := range keys {
		affines[i] = &keys[i].pk
	}
	if !agg.Aggregate(affines, false) {
		return PublicKey{}, fmt.Errorf("types: public key aggregation failed")
	}
	return PublicKey{pk: *agg.ToAffine()}, nil
}

// AggregateSignatures sums partial signatures, the same way the channel
// handler combines its own partial channel/unroll signature with the
// peer's to produce the jointly valid spend.
func AggregateSignatures(sigs ...Signature) (Signature, error) {
	if len(sigs) == 0 {
		return Signature{}, ErrNilAggregate
	}
	var agg blst.P2Aggregate
	affines := make([]*blstSignature, len(sigs))
	for i := range sigs {
		affines[i] = &sigs[i].sig
	}
	if !agg.Aggregate(affines, false) {
		return Signature{}, fmt.Errorf("types: signature aggregation failed")
	}
	return Signature{sig: *agg.ToAffine()}, nil
}

// Verify checks that sig is a valid signature over msg under pk.
func Verify(pk PublicKey, msg []byte, sig Signature) bool {
	return sig.sig.Verify(false, &pk.pk, false, msg, dst)
}

// VerifyAggregate checks that sig is a valid aggregate signature over
// the single message msg under the aggregate of pks: one message (the
// signed condition list), two partial signers, one combined public
// key.
func VerifyAggregate(pks []PublicKey, msg []byte, sig Signature) bool {
	agg, err := AggregatePublicKeys(pks...)
	if err != nil {
		return false
	}
	return Verify(agg, msg, sig)
}
