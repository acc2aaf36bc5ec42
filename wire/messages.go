package wire

import (
	"fmt"
	"io"

	"github.com/chia-network/chia-gaming-go/types"
)

// HandshakeA is the potato holder's opening handshake message.
type HandshakeA struct {
	ParentCoin types.Coin
	ChannelPK  types.PublicKey
	UnrollPK   types.PublicKey
	RefereePK  types.PublicKey
	RewardPH   types.Hash
	RefereePH  types.Hash
}

func (*HandshakeA) MsgType() MessageType { return MsgHandshakeA }

func (m *HandshakeA) Encode(w io.Writer) error {
	if err := writeCoin(w, m.ParentCoin); err != nil {
		return err
	}
	if err := writePublicKey(w, m.ChannelPK); err != nil {
		return err
	}
	if err := writePublicKey(w, m.UnrollPK); err != nil {
		return err
	}
	if err := writePublicKey(w, m.RefereePK); err != nil {
		return err
	}
	if err := writeHash(w, m.RewardPH); err != nil {
		return err
	}
	return writeHash(w, m.RefereePH)
}

func (m *HandshakeA) Decode(r io.Reader) (err error) {
	if m.ParentCoin, err = readCoin(r); err != nil {
		return err
	}
	if m.ChannelPK, err = readPublicKey(r); err != nil {
		return err
	}
	if m.UnrollPK, err = readPublicKey(r); err != nil {
		return err
	}
	if m.RefereePK, err = readPublicKey(r); err != nil {
		return err
	}
	if m.RewardPH, err = readHash(r); err != nil {
		return err
	}
	m.RefereePH, err = readHash(r)
	return err
}

// HandshakeB is the non-holder's handshake reply.
type HandshakeB struct {
	ChannelPK types.PublicKey
	UnrollPK  types.PublicKey
	RefereePK types.PublicKey
	RewardPH  types.Hash
	RefereePH types.Hash
}

func (*HandshakeB) MsgType() MessageType { return MsgHandshakeB }

func (m *HandshakeB) Encode(w io.Writer) error {
	if err := writePublicKey(w, m.ChannelPK); err != nil {
		return err
	}
	if err := writePublicKey(w, m.UnrollPK); err != nil {
		return err
	}
	if err := writePublicKey(w, m.RefereePK); err != nil {
		return err
	}
	if err := writeHash(w, m.RewardPH); err != nil {
		return err
	}
	return writeHash(w, m.RefereePH)
}

func (m *HandshakeB) Decode(r io.Reader) (err error) {
	if m.ChannelPK, err = readPublicKey(r); err != nil {
		return err
	}
	if m.UnrollPK, err = readPublicKey(r); err != nil {
		return err
	}
	if m.RefereePK, err = readPublicKey(r); err != nil {
		return err
	}
	if m.RewardPH, err = readHash(r); err != nil {
		return err
	}
	m.RefereePH, err = readHash(r)
	return err
}

// HandshakeE carries the non-holder's partly-signed channel-coin
// creation bundle to the holder.
type HandshakeE struct {
	Bundle types.SpendBundle
}

func (*HandshakeE) MsgType() MessageType { return MsgHandshakeE }
func (m *HandshakeE) Encode(w io.Writer) error { return writeSpendBundle(w, m.Bundle) }
func (m *HandshakeE) Decode(r io.Reader) (err error) {
	m.Bundle, err = readSpendBundle(r)
	return err
}

// HandshakeF carries the holder's fully-signed channel-coin creation
// bundle back to the non-holder.
type HandshakeF struct {
	Bundle types.SpendBundle
}

func (*HandshakeF) MsgType() MessageType { return MsgHandshakeF }
func (m *HandshakeF) Encode(w io.Writer) error { return writeSpendBundle(w, m.Bundle) }
func (m *HandshakeF) Decode(r io.Reader) (err error) {
	m.Bundle, err = readSpendBundle(r)
	return err
}

// Nil is a potato-only state bump: both partial signatures, no game
// action.
type Nil struct {
	Sigs PotatoSigs
}

func (*Nil) MsgType() MessageType { return MsgNil }
func (m *Nil) Encode(w io.Writer) error { return writePotatoSigs(w, m.Sigs) }
func (m *Nil) Decode(r io.Reader) (err error) {
	m.Sigs, err = readPotatoSigs(r)
	return err
}

// MoveDetails is the wire form of referee.GameMoveDetails.
type MoveDetails struct {
	ValidationPuzzleHash  types.Hash
	MoverShare            types.Amount
	MaxMoveSize           uint32
	NextValidationProgram []byte // types.EncodeNode output, or empty if unchanged
	Move                  []byte
	Signature             types.Signature
}

func writeMoveDetails(w io.Writer, d MoveDetails) error {
	if err := writeHash(w, d.ValidationPuzzleHash); err != nil {
		return err
	}
	if err := writeAmount(w, d.MoverShare); err != nil {
		return err
	}
	if err := writeUint32(w, d.MaxMoveSize); err != nil {
		return err
	}
	if err := writeBytes(w, d.NextValidationProgram); err != nil {
		return err
	}
	if err := writeBytes(w, d.Move); err != nil {
		return err
	}
	return writeSignature(w, d.Signature)
}

func readMoveDetails(r io.Reader) (MoveDetails, error) {
	var d MoveDetails
	var err error
	if d.ValidationPuzzleHash, err = readHash(r); err != nil {
		return d, err
	}
	if d.MoverShare, err = readAmount(r); err != nil {
		return d, err
	}
	if d.MaxMoveSize, err = readUint32(r); err != nil {
		return d, err
	}
	if d.NextValidationProgram, err = readBytes(r); err != nil {
		return d, err
	}
	if d.Move, err = readBytes(r); err != nil {
		return d, err
	}
	d.Signature, err = readSignature(r)
	return d, err
}

// Move carries a single game move plus the sender's updated potato
// signatures.
type Move struct {
	GameID  [32]byte
	Details MoveDetails
	Sigs    PotatoSigs
}

func (*Move) MsgType() MessageType { return MsgMove }

func (m *Move) Encode(w io.Writer) error {
	if err := writeGameID(w, m.GameID); err != nil {
		return err
	}
	if err := writeMoveDetails(w, m.Details); err != nil {
		return err
	}
	return writePotatoSigs(w, m.Sigs)
}

func (m *Move) Decode(r io.Reader) (err error) {
	if m.GameID, err = readGameID(r); err != nil {
		return err
	}
	if m.Details, err = readMoveDetails(r); err != nil {
		return err
	}
	m.Sigs, err = readPotatoSigs(r)
	return err
}

// GameMessage carries an inter-player message piggy-backed on a game;
// named GameMessage (not Message) to avoid colliding with the Envelope
// interface's implicit vocabulary.
type GameMessage struct {
	GameID  [32]byte
	Payload []byte
}

func (*GameMessage) MsgType() MessageType { return MsgMessage }

func (m *GameMessage) Encode(w io.Writer) error {
	if err := writeGameID(w, m.GameID); err != nil {
		return err
	}
	return writeBytes(w, m.Payload)
}

func (m *GameMessage) Decode(r io.Reader) (err error) {
	if m.GameID, err = readGameID(r); err != nil {
		return err
	}
	m.Payload, err = readBytes(r)
	return err
}

// Accept ends a game. Amount is the sender's payoff, which both sides
// credit to the sender's out-of-game balance.
type Accept struct {
	GameID [32]byte
	Amount types.Amount
	Sigs   PotatoSigs
}

func (*Accept) MsgType() MessageType { return MsgAccept }

func (m *Accept) Encode(w io.Writer) error {
	if err := writeGameID(w, m.GameID); err != nil {
		return err
	}
	if err := writeAmount(w, m.Amount); err != nil {
		return err
	}
	return writePotatoSigs(w, m.Sigs)
}

func (m *Accept) Decode(r io.Reader) (err error) {
	if m.GameID, err = readGameID(r); err != nil {
		return err
	}
	if m.Amount, err = readAmount(r); err != nil {
		return err
	}
	m.Sigs, err = readPotatoSigs(r)
	return err
}

// Shutdown proposes a direct channel-coin split.
type Shutdown struct {
	Signature          types.Signature
	ConditionsProgram  []byte // types.EncodeNode of the proposed condition list
}

func (*Shutdown) MsgType() MessageType { return MsgShutdown }

func (m *Shutdown) Encode(w io.Writer) error {
	if err := writeSignature(w, m.Signature); err != nil {
		return err
	}
	return writeBytes(w, m.ConditionsProgram)
}

func (m *Shutdown) Decode(r io.Reader) (err error) {
	if m.Signature, err = readSignature(r); err != nil {
		return err
	}
	m.ConditionsProgram, err = readBytes(r)
	return err
}

// RequestPotato asks the current holder to release the potato.
type RequestPotato struct{}

func (*RequestPotato) MsgType() MessageType    { return MsgRequestPotato }
func (*RequestPotato) Encode(w io.Writer) error { return nil }
func (*RequestPotato) Decode(r io.Reader) error  { return nil }

// GameStartEntry is one game's worth of a StartGames message: the
// game-start factory output, flattened for the wire.
type GameStartEntry struct {
	GameID            [32]byte
	GameType          string
	Timeout           uint32
	Amount            types.Amount
	MyContribution    types.Amount
	MyTurn            bool
	Parameters        []byte
	ValidationProgram []byte // types.EncodeNode output
	InitialState      []byte
}

func writeGameStart(w io.Writer, g GameStartEntry) error {
	if err := writeGameID(w, g.GameID); err != nil {
		return err
	}
	if err := writeString(w, g.GameType); err != nil {
		return err
	}
	if err := writeUint32(w, g.Timeout); err != nil {
		return err
	}
	if err := writeAmount(w, g.Amount); err != nil {
		return err
	}
	if err := writeAmount(w, g.MyContribution); err != nil {
		return err
	}
	if err := writeBool(w, g.MyTurn); err != nil {
		return err
	}
	if err := writeBytes(w, g.Parameters); err != nil {
		return err
	}
	if err := writeBytes(w, g.ValidationProgram); err != nil {
		return err
	}
	return writeBytes(w, g.InitialState)
}

func readGameStart(r io.Reader) (GameStartEntry, error) {
	var g GameStartEntry
	var err error
	if g.GameID, err = readGameID(r); err != nil {
		return g, err
	}
	if g.GameType, err = readString(r); err != nil {
		return g, err
	}
	if g.Timeout, err = readUint32(r); err != nil {
		return g, err
	}
	if g.Amount, err = readAmount(r); err != nil {
		return g, err
	}
	if g.MyContribution, err = readAmount(r); err != nil {
		return g, err
	}
	if g.MyTurn, err = readBool(r); err != nil {
		return g, err
	}
	if g.Parameters, err = readBytes(r); err != nil {
		return g, err
	}
	if g.ValidationProgram, err = readBytes(r); err != nil {
		return g, err
	}
	g.InitialState, err = readBytes(r)
	return g, err
}

// StartGames begins one or more games in a single potato round.
type StartGames struct {
	Sigs  PotatoSigs
	Games []GameStartEntry
}

func (*StartGames) MsgType() MessageType { return MsgStartGames }

func (m *StartGames) Encode(w io.Writer) error {
	if err := writePotatoSigs(w, m.Sigs); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(len(m.Games))); err != nil {
		return err
	}
	for _, g := range m.Games {
		if err := writeGameStart(w, g); err != nil {
			return err
		}
	}
	return nil
}

// maxGamesPerStartGames bounds the game count read off the wire before
// the slice backing it is allocated, the same way readBytes bounds a
// length-prefixed field against MaxMessagePayload: an advertised count
// is attacker-controlled and must be checked before it sizes an
// allocation, not after.
const maxGamesPerStartGames = 1024

func (m *StartGames) Decode(r io.Reader) error {
	sigs, err := readPotatoSigs(r)
	if err != nil {
		return err
	}
	m.Sigs = sigs
	count, err := readUint32(r)
	if err != nil {
		return err
	}
	if count > maxGamesPerStartGames {
		return fmt.Errorf("wire: StartGames game count %d exceeds max %d", count, maxGamesPerStartGames)
	}
	m.Games = make([]GameStartEntry, count)
	for i := range m.Games {
		if m.Games[i], err = readGameStart(r); err != nil {
			return err
		}
	}
	return nil
}
