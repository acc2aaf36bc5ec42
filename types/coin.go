package types

// Coin is a content-addressed UTXO: the triple (parent_id, puzzle_hash,
// amount). Its id is the hash of the concatenation of all three fields,
// so two coins are the same coin iff all three fields match.
type Coin struct {
	ParentID   Hash
	PuzzleHash Hash
	Amount     Amount
}

// ID returns the coin's unique identifier.
func (c Coin) ID() Hash {
	buf := make([]byte, 0, 32+32+8)
	buf = append(buf, c.ParentID[:]...)
	buf = append(buf, c.PuzzleHash[:]...)
	buf = append(buf, amountBytes(c.Amount)...)
	return HashBytes(buf)
}

// amountBytes encodes an Amount the way a coin id's preimage encodes it:
// a minimal big-endian twos-complement integer, matching CLVM atom
// encoding of integers (no leading zero bytes, except a single zero
// byte to disambiguate a value whose top bit would otherwise look
// negative).
func amountBytes(a Amount) []byte {
	if a == 0 {
		return nil
	}
	u := uint64(a)
	var buf [8]byte
	for i := 7; i >= 0; i-- {
		buf[i] = byte(u)
		u >>= 8
	}
	i := 0
	for i < 7 && buf[i] == 0 && buf[i+1]&0x80 == 0 {
		i++
	}
	return buf[i:]
}

// ChannelHandlerPrivateKeys is the triple of private keys each party
// holds for a single channel: one to co-sign channel-coin spends, one to
// co-sign unroll-coin spends, and one used by that party's referee
// makers to sign on-chain game moves.
type ChannelHandlerPrivateKeys struct {
	Channel  PrivateKey
	Unroll   PrivateKey
	Referee  PrivateKey
}

// PublicKeys is the corresponding triple of public keys, the form
// exchanged with the peer during the handshake.
type PublicKeys struct {
	Channel PublicKey
	Unroll  PublicKey
	Referee PublicKey
}

// Public derives the PublicKeys counterpart of a ChannelHandlerPrivateKeys.
func (k ChannelHandlerPrivateKeys) Public() PublicKeys {
	return PublicKeys{
		Channel: k.Channel.PublicKey(),
		Unroll:  k.Unroll.PublicKey(),
		Referee: k.Referee.PublicKey(),
	}
}
