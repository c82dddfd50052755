package wireveil

import (
	"encoding/binary"

	"golang.zx2c4.com/wireguard/device"
)

// WireGuardMessageType mirrors golang.zx2c4.com/wireguard/device.MessageType:
// the little-endian uint32 that opens every WireGuard datagram. Reusing the
// device package's own constants, rather than redeclaring the enum, keeps
// the obfuscator's notion of "valid WireGuard packet" bit-for-bit aligned
// with the reference WireGuard implementation it sits in front of.
type WireGuardMessageType = device.MessageType

const (
	HandshakeInitiation = device.MessageInitiationType
	HandshakeResponse   = device.MessageResponseType
	Cookie              = device.MessageCookieReplyType
	Data                = device.MessageTransportType
)

// detectType reports the WireGuardMessageType encoded in buf's first four
// bytes, and whether it is one of the four recognized variants.
func detectType(buf []byte) (WireGuardMessageType, bool) {
	if len(buf) < 4 {
		return 0, false
	}
	t := WireGuardMessageType(binary.LittleEndian.Uint32(buf[0:4]))
	switch t {
	case HandshakeInitiation, HandshakeResponse, Cookie, Data:
		return t, true
	default:
		return 0, false
	}
}

// isObfuscated reports whether buf does NOT look like a plaintext WireGuard
// packet: either it is too short to tell, or its leading little-endian
// 32-bit type field doesn't decode to a known message type. A type field of
// 1-4 already implies that bytes 1-3 are zero, so no separate reserved-byte
// check is needed (spec.md §4.1).
func isObfuscated(buf []byte) bool {
	_, ok := detectType(buf)
	return !ok
}
