package wireveil

import "fmt"

// ErrKeyTooShort is raised by NewObfuscationEngine when a key is empty.
type ErrKeyTooShort struct{}

func (ErrKeyTooShort) Error() string {
	return "obfuscation key must be at least 1 byte"
}

// ErrKeyTooLong is raised by NewObfuscationEngine when a key exceeds 255 bytes.
type ErrKeyTooLong struct{ Length int }

func (e ErrKeyTooLong) Error() string {
	return fmt.Sprintf("obfuscation key must be at most 255 bytes, got %d", e.Length)
}

// ErrPacketTooShort is raised by codec encode/decode and STUN parsing when a
// buffer is smaller than the operation requires.
type ErrPacketTooShort struct {
	Expected int
	Got      int
}

func (e ErrPacketTooShort) Error() string {
	return fmt.Sprintf("packet too short: expected at least %d bytes, got %d", e.Expected, e.Got)
}

// ErrDecodingFailed is raised by PacketCodec.Decode when the embedded dummy
// length is inconsistent with the buffer it was found in.
type ErrDecodingFailed struct{ Reason string }

func (e ErrDecodingFailed) Error() string {
	return fmt.Sprintf("decoding failed: %s", e.Reason)
}

// ErrInvalidWireGuardPacket is raised by PacketCodec.Decode when the
// recovered type byte is not a recognized WireGuardMessageType.
type ErrInvalidWireGuardPacket struct{}

func (ErrInvalidWireGuardPacket) Error() string {
	return "decoded packet is not a valid WireGuard message"
}

// ErrInvalidMagicCookie is raised by STUN parsing when the magic cookie does
// not match the RFC 5389 constant.
type ErrInvalidMagicCookie struct{ Got uint32 }

func (e ErrInvalidMagicCookie) Error() string {
	return fmt.Sprintf("invalid STUN magic cookie: got %#08x", e.Got)
}

// ErrInvalidTransactionID is raised when constructing a STUN message with a
// transaction ID that is not exactly 12 bytes.
type ErrInvalidTransactionID struct{ Length int }

func (e ErrInvalidTransactionID) Error() string {
	return fmt.Sprintf("STUN transaction ID must be 12 bytes, got %d", e.Length)
}

// ErrUnknownMessageType is raised by STUN parsing/peeking on an unrecognized
// message type field.
type ErrUnknownMessageType struct{ Type uint16 }

func (e ErrUnknownMessageType) Error() string {
	return fmt.Sprintf("unknown STUN message type: %#04x", e.Type)
}

// ErrMalformedAttribute is raised when a STUN attribute's declared length
// would read past the end of the buffer.
type ErrMalformedAttribute struct{ Type uint16 }

func (e ErrMalformedAttribute) Error() string {
	return fmt.Sprintf("malformed STUN attribute %#04x", e.Type)
}

// ErrFailedToBindPort is raised by Relay.Start when the local UDP listener
// could not be opened or its bound port could not be read back.
type ErrFailedToBindPort struct {
	Addr  string
	Cause error
}

func (e ErrFailedToBindPort) Error() string {
	return fmt.Sprintf("failed to bind local port %s: %s", e.Addr, e.Cause)
}

func (e ErrFailedToBindPort) Unwrap() error { return e.Cause }

// ErrResolveAddr is raised by Config.Validate / NewRelay when a configured
// endpoint string cannot be resolved as a UDP address.
type ErrResolveAddr struct {
	Kind  string // "local" or "remote"
	Addr  string
	Cause error
}

func (e ErrResolveAddr) Error() string {
	return fmt.Sprintf("failed to resolve %s address %q: %s", e.Kind, e.Addr, e.Cause)
}

func (e ErrResolveAddr) Unwrap() error { return e.Cause }
