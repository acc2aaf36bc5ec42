// Package wire implements the tagged envelope wire format exchanged
// between the two peers: a length-framed encoding of exactly one
// of HandshakeA/B/E/F, Nil, Move, Message, Accept, Shutdown,
// RequestPotato, or StartGames. A 2-byte MessageType tag selects the
// variant; WriteMessage/ReadMessage frame it with a payload length.
package wire

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// MaxMessagePayload bounds any single envelope's payload before any
// allocation happens.
const MaxMessagePayload = 1 << 20 // 1 MiB; StartGames with many games can be large.

// MessageType is the 2-byte tag identifying which envelope variant
// follows.
type MessageType uint16

const (
	MsgHandshakeA MessageType = iota + 1
	MsgHandshakeB
	MsgHandshakeE
	MsgHandshakeF
	MsgNil
	MsgMove
	MsgMessage
	MsgAccept
	MsgShutdown
	MsgRequestPotato
	MsgStartGames
)

func (t MessageType) String() string {
	switch t {
	case MsgHandshakeA:
		return "HandshakeA"
	case MsgHandshakeB:
		return "HandshakeB"
	case MsgHandshakeE:
		return "HandshakeE"
	case MsgHandshakeF:
		return "HandshakeF"
	case MsgNil:
		return "Nil"
	case MsgMove:
		return "Move"
	case MsgMessage:
		return "Message"
	case MsgAccept:
		return "Accept"
	case MsgShutdown:
		return "Shutdown"
	case MsgRequestPotato:
		return "RequestPotato"
	case MsgStartGames:
		return "StartGames"
	default:
		return fmt.Sprintf("Unknown(%d)", uint16(t))
	}
}

// Envelope is the tagged-union interface every wire message implements.
type Envelope interface {
	MsgType() MessageType
	Encode(w io.Writer) error
	Decode(r io.Reader) error
}

// UnknownMessage is the error produced when ReadMessage sees a tag it
// doesn't recognize.
type UnknownMessage struct {
	Type MessageType
}

func (u *UnknownMessage) Error() string {
	return fmt.Sprintf("wire: unknown message type %v", u.Type)
}

func makeEmpty(t MessageType) (Envelope, error) {
	switch t {
	case MsgHandshakeA:
		return &HandshakeA{}, nil
	case MsgHandshakeB:
		return &HandshakeB{}, nil
	case MsgHandshakeE:
		return &HandshakeE{}, nil
	case MsgHandshakeF:
		return &HandshakeF{}, nil
	case MsgNil:
		return &Nil{}, nil
	case MsgMove:
		return &Move{}, nil
	case MsgMessage:
		return &GameMessage{}, nil
	case MsgAccept:
		return &Accept{}, nil
	case MsgShutdown:
		return &Shutdown{}, nil
	case MsgRequestPotato:
		return &RequestPotato{}, nil
	case MsgStartGames:
		return &StartGames{}, nil
	default:
		return nil, &UnknownMessage{Type: t}
	}
}

// WriteMessage length-frames and writes env: a 2-byte type, a 4-byte
// big-endian payload length, then the payload.
func WriteMessage(w io.Writer, env Envelope) (int, error) {
	var body bytes.Buffer
	if err := env.Encode(&body); err != nil {
		return 0, err
	}
	if body.Len() > MaxMessagePayload {
		return 0, fmt.Errorf("wire: payload too large: %d bytes", body.Len())
	}

	var header [6]byte
	binary.BigEndian.PutUint16(header[0:2], uint16(env.MsgType()))
	binary.BigEndian.PutUint32(header[2:6], uint32(body.Len()))

	n, err := w.Write(header[:])
	if err != nil {
		return n, err
	}
	m, err := w.Write(body.Bytes())
	return n + m, err
}

// ReadMessage reads one length-framed envelope from r.
func ReadMessage(r io.Reader) (Envelope, error) {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	msgType := MessageType(binary.BigEndian.Uint16(header[0:2]))
	length := binary.BigEndian.Uint32(header[2:6])
	if length > MaxMessagePayload {
		return nil, fmt.Errorf("wire: advertised payload too large: %d bytes", length)
	}

	env, err := makeEmpty(msgType)
	if err != nil {
		return nil, err
	}
	body := io.LimitReader(r, int64(length))
	if err := env.Decode(body); err != nil {
		return nil, err
	}
	return env, nil
}
