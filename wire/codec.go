package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/chia-network/chia-gaming-go/types"
)

// The helpers below give every message type a terse way to read/write
// the handful of field shapes the envelopes need: fixed 32-byte hashes,
// compressed BLS points, variable-length byte strings, and fixed-width
// integers.

func writeHash(w io.Writer, h types.Hash) error {
	_, err := w.Write(h[:])
	return err
}

func readHash(r io.Reader) (types.Hash, error) {
	var h types.Hash
	_, err := io.ReadFull(r, h[:])
	return h, err
}

func writeBytes(w io.Writer, b []byte) error {
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(b)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

func readBytes(r io.Reader) ([]byte, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return nil, err
	}
	l := binary.BigEndian.Uint32(lenBuf[:])
	if l > MaxMessagePayload {
		return nil, fmt.Errorf("wire: field length %d exceeds max payload", l)
	}
	buf := make([]byte, l)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

func writeString(w io.Writer, s string) error {
	return writeBytes(w, []byte(s))
}

func readString(r io.Reader) (string, error) {
	b, err := readBytes(r)
	return string(b), err
}

func writeUint32(w io.Writer, v uint32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(buf[:]), nil
}

func writeUint64(w io.Writer, v uint64) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	_, err := w.Write(buf[:])
	return err
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func writeAmount(w io.Writer, a types.Amount) error {
	return writeUint64(w, uint64(a))
}

func readAmount(r io.Reader) (types.Amount, error) {
	v, err := readUint64(r)
	return types.Amount(v), err
}

func writeBool(w io.Writer, b bool) error {
	var v byte
	if b {
		v = 1
	}
	_, err := w.Write([]byte{v})
	return err
}

func readBool(r io.Reader) (bool, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return false, err
	}
	return buf[0] != 0, nil
}

func writePublicKey(w io.Writer, pk types.PublicKey) error {
	return writeBytes(w, pk.Bytes())
}

func readPublicKey(r io.Reader) (types.PublicKey, error) {
	b, err := readBytes(r)
	if err != nil {
		return types.PublicKey{}, err
	}
	return types.PublicKeyFromBytes(b)
}

func writeSignature(w io.Writer, sig types.Signature) error {
	return writeBytes(w, sig.Bytes())
}

func readSignature(r io.Reader) (types.Signature, error) {
	b, err := readBytes(r)
	if err != nil {
		return types.Signature{}, err
	}
	return types.SignatureFromBytes(b)
}

func writeCoin(w io.Writer, c types.Coin) error {
	if err := writeHash(w, c.ParentID); err != nil {
		return err
	}
	if err := writeHash(w, c.PuzzleHash); err != nil {
		return err
	}
	return writeAmount(w, c.Amount)
}

func readCoin(r io.Reader) (types.Coin, error) {
	parent, err := readHash(r)
	if err != nil {
		return types.Coin{}, err
	}
	ph, err := readHash(r)
	if err != nil {
		return types.Coin{}, err
	}
	amt, err := readAmount(r)
	if err != nil {
		return types.Coin{}, err
	}
	return types.Coin{ParentID: parent, PuzzleHash: ph, Amount: amt}, nil
}

func writeGameID(w io.Writer, id [32]byte) error {
	_, err := w.Write(id[:])
	return err
}

func readGameID(r io.Reader) ([32]byte, error) {
	var id [32]byte
	_, err := io.ReadFull(r, id[:])
	return id, err
}

func writeSpendBundle(w io.Writer, b types.SpendBundle) error {
	if err := writeCoin(w, b.Coin); err != nil {
		return err
	}
	// A bundle that carries only a signature (no puzzle reveal or
	// solution yet) encodes both as the CLVM nil atom.
	puzzle, solution := b.Puzzle, b.Solution
	if puzzle == nil {
		puzzle = types.Nil
	}
	if solution == nil {
		solution = types.Nil
	}
	if err := writeBytes(w, types.EncodeNode(puzzle)); err != nil {
		return err
	}
	if err := writeBytes(w, types.EncodeNode(solution)); err != nil {
		return err
	}
	return writeSignature(w, b.Signature)
}

func readSpendBundle(r io.Reader) (types.SpendBundle, error) {
	coin, err := readCoin(r)
	if err != nil {
		return types.SpendBundle{}, err
	}
	puzzleBytes, err := readBytes(r)
	if err != nil {
		return types.SpendBundle{}, err
	}
	puzzle, err := types.DecodeNode(puzzleBytes)
	if err != nil {
		return types.SpendBundle{}, err
	}
	solutionBytes, err := readBytes(r)
	if err != nil {
		return types.SpendBundle{}, err
	}
	solution, err := types.DecodeNode(solutionBytes)
	if err != nil {
		return types.SpendBundle{}, err
	}
	sig, err := readSignature(r)
	if err != nil {
		return types.SpendBundle{}, err
	}
	return types.SpendBundle{Coin: coin, Puzzle: puzzle, Solution: solution, Signature: sig}, nil
}

// PotatoSigs is the wire encoding of PotatoSignatures: kept
// independent of channelpkg.PotatoSignatures so this package never
// needs to import the channel handler.
type PotatoSigs struct {
	ChannelSig types.Signature
	UnrollSig  types.Signature
}

func writePotatoSigs(w io.Writer, s PotatoSigs) error {
	if err := writeSignature(w, s.ChannelSig); err != nil {
		return err
	}
	return writeSignature(w, s.UnrollSig)
}

func readPotatoSigs(r io.Reader) (PotatoSigs, error) {
	chanSig, err := readSignature(r)
	if err != nil {
		return PotatoSigs{}, err
	}
	unrollSig, err := readSignature(r)
	if err != nil {
		return PotatoSigs{}, err
	}
	return PotatoSigs{ChannelSig: chanSig, UnrollSig: unrollSig}, nil
}
