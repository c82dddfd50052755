package wireveil

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
)

// Codec size constants (spec.md §4.2).
const (
	MaxTotalPacketSize     = 1024
	MaxDummyHandshakeBytes = 512
	DefaultMaxDummyData    = 4
)

// PacketCodec wraps and unwraps a WireGuard packet for transport: header
// scramble, random padding, and the ObfuscationEngine keystream. Like the
// engine it holds, a codec is stateless and value-like once constructed
// (spec.md §3 "Lifecycles") — safe to share across the relay's receive
// loops without locking (spec.md §5).
type PacketCodec struct {
	engine       *ObfuscationEngine
	maxDummyData int
}

// NewPacketCodec validates key through NewObfuscationEngine and returns a
// codec. maxDummyData caps the random padding added to non-handshake
// packets; 0 or negative selects the spec default of 4 (spec.md §4.2).
func NewPacketCodec(key []byte, maxDummyData int) (*PacketCodec, error) {
	engine, err := NewObfuscationEngine(key)
	if err != nil {
		return nil, err
	}
	if maxDummyData <= 0 {
		maxDummyData = DefaultMaxDummyData
	}
	return &PacketCodec{engine: engine, maxDummyData: maxDummyData}, nil
}

// randomByte returns a cryptographically random byte in [0, maxExclusive).
// maxExclusive must be > 0. Weak randomness here would reduce the header
// scramble to a trivial, recoverable rotation (spec.md §9 "Randomness").
func randomByte(maxExclusive int) (byte, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(maxExclusive)))
	if err != nil {
		return 0, err
	}
	return byte(n.Int64()), nil
}

// Encode implements spec.md §4.2 "Encode(packet, type)".
func (c *PacketCodec) Encode(packet []byte, typ WireGuardMessageType) ([]byte, error) {
	if len(packet) < 4 {
		return nil, ErrPacketTooShort{Expected: 4, Got: len(packet)}
	}

	rb, err := randomByte(255)
	if err != nil {
		return nil, err
	}
	r := rb + 1 // uniform in [1, 255]

	room := MaxTotalPacketSize - len(packet)
	var d int
	if len(packet) >= MaxTotalPacketSize {
		d = 0
	} else {
		limit := c.maxDummyData
		if typ == HandshakeInitiation || typ == HandshakeResponse {
			limit = MaxDummyHandshakeBytes
		}
		if limit > room {
			limit = room
		}
		if limit > 0 {
			n, err := rand.Int(rand.Reader, big.NewInt(int64(limit+1)))
			if err != nil {
				return nil, err
			}
			d = int(n.Int64())
		}
	}

	buf := make([]byte, len(packet)+d)
	copy(buf, packet)
	buf[0] = packet[0] ^ r
	buf[1] = r
	binary.LittleEndian.PutUint16(buf[2:4], uint16(d))
	for i := len(packet); i < len(buf); i++ {
		buf[i] = 0xFF
	}

	c.engine.Xor(buf)
	return buf, nil
}

// Decode implements spec.md §4.2 "Decode(packet)". The caller's slice is
// not mutated in the legacy-passthrough path: decode keeps a private copy
// to XOR against so the original bytes can still be returned untouched
// (spec.md §9 "Legacy passthrough in decode").
func (c *PacketCodec) Decode(packet []byte) ([]byte, error) {
	if len(packet) < 4 {
		return nil, ErrPacketTooShort{Expected: 4, Got: len(packet)}
	}

	buf := make([]byte, len(packet))
	copy(buf, packet)
	c.engine.Xor(buf)

	if !c.engine.IsObfuscated(buf) {
		return packet, nil
	}

	buf[0] ^= buf[1]

	d := int(binary.LittleEndian.Uint16(buf[2:4]))
	if d > len(buf)-4 {
		return nil, ErrDecodingFailed{Reason: "dummy length exceeds buffer"}
	}
	buf = buf[:len(buf)-d]

	buf[1], buf[2], buf[3] = 0, 0, 0

	if _, ok := c.engine.DetectType(buf); !ok {
		return nil, ErrInvalidWireGuardPacket{}
	}
	return buf, nil
}
