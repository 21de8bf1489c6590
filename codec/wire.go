package codec

import (
	"fmt"
	"math/big"
)

// maxWireBytes is the fixed buffer size an encoded ballot integer must fit
// in.
const maxWireBytes = 30

// EncodeWire serialises n as a length-prefixed little-endian byte array:
// one length byte followed by that many little-endian magnitude bytes.
func EncodeWire(n *big.Int) ([]byte, error) {
	if n.Sign() < 0 {
		return nil, fmt.Errorf("codec: %w: negative integer", ErrBallotTooLarge)
	}
	raw := n.Bytes() // big-endian, no leading zero byte unless n==0
	if len(raw) > maxWireBytes {
		return nil, fmt.Errorf("codec: %w: %d bytes exceeds %d-byte buffer", ErrBallotTooLarge, len(raw), maxWireBytes)
	}
	le := make([]byte, len(raw))
	for i, b := range raw {
		le[len(raw)-1-i] = b
	}
	out := make([]byte, 0, len(le)+1)
	out = append(out, byte(len(le)))
	out = append(out, le...)
	return out, nil
}

// DecodeWire reverses EncodeWire.
func DecodeWire(buf []byte) (*big.Int, error) {
	if len(buf) == 0 {
		return nil, fmt.Errorf("codec: empty wire buffer")
	}
	length := int(buf[0])
	if len(buf) < 1+length {
		return nil, fmt.Errorf("codec: wire buffer truncated: declared %d bytes, have %d", length, len(buf)-1)
	}
	le := buf[1 : 1+length]
	be := make([]byte, length)
	for i, b := range le {
		be[length-1-i] = b
	}
	return new(big.Int).SetBytes(be), nil
}
