package wireveil

import (
	"crypto/rand"
	"encoding/binary"
)

// STUN message types recognized by this package (spec.md §3 "STUN
// message"). Only the subset needed for cover traffic and keepalives is
// implemented — this is not a general STUN stack (spec.md §1 Non-goals).
type STUNMessageType uint16

const (
	BindingRequest  STUNMessageType = 0x0001
	BindingResponse STUNMessageType = 0x0101
	DataIndication  STUNMessageType = 0x0115
)

func (t STUNMessageType) known() bool {
	switch t {
	case BindingRequest, BindingResponse, DataIndication:
		return true
	default:
		return false
	}
}

// STUN attribute types recognized by this package.
type STUNAttrType uint16

const (
	AttrXorMappedAddress STUNAttrType = 0x0020
	AttrSoftware         STUNAttrType = 0x8022
	AttrFingerprint      STUNAttrType = 0x8028
	AttrData             STUNAttrType = 0x0013
)

// MagicCookie is the fixed RFC 5389 constant identifying a STUN message.
const MagicCookie uint32 = 0x2112A442

const stunHeaderSize = 20

// STUNAttribute is a single type-length-value attribute, padded to a
// 4-byte boundary on the wire (spec.md §3 "STUN message").
type STUNAttribute struct {
	Type  STUNAttrType
	Value []byte
}

func (a STUNAttribute) paddedLen() int {
	return 4 + len(a.Value) + padLen(len(a.Value))
}

func padLen(n int) int {
	return (4 - n%4) % 4
}

// STUNPacket is a parsed RFC 5389 message: a fixed 20-byte header followed
// by zero or more attributes (spec.md §3 "STUN message").
type STUNPacket struct {
	Type          STUNMessageType
	TransactionID [12]byte
	Attributes    []STUNAttribute
}

// NewTransactionID draws 12 cryptographically random bytes, as required for
// every outbound STUN message (spec.md §3 "Transaction ID"; §9
// "Randomness").
func NewTransactionID() ([12]byte, error) {
	var id [12]byte
	_, err := rand.Read(id[:])
	return id, err
}

// attributesLength returns the header's length field: the sum of attribute
// bytes including headers and 4-byte padding (spec.md §4.3.1 "Serialize").
func (p *STUNPacket) attributesLength() int {
	n := 0
	for _, a := range p.Attributes {
		n += a.paddedLen()
	}
	return n
}

// Serialize renders p to its wire form (spec.md §4.3.1 "Serialize"). The
// result is always at least 20 bytes.
func (p *STUNPacket) Serialize() []byte {
	attrsLen := p.attributesLength()
	buf := make([]byte, stunHeaderSize+attrsLen)

	binary.BigEndian.PutUint16(buf[0:2], uint16(p.Type))
	binary.BigEndian.PutUint16(buf[2:4], uint16(attrsLen))
	binary.BigEndian.PutUint32(buf[4:8], MagicCookie)
	copy(buf[8:20], p.TransactionID[:])

	off := stunHeaderSize
	for _, a := range p.Attributes {
		binary.BigEndian.PutUint16(buf[off:off+2], uint16(a.Type))
		binary.BigEndian.PutUint16(buf[off+2:off+4], uint16(len(a.Value)))
		copy(buf[off+4:], a.Value)
		off += 4 + len(a.Value) + padLen(len(a.Value))
	}
	return buf
}

// ParseSTUNPacket implements spec.md §4.3.1 "Parse".
func ParseSTUNPacket(data []byte) (*STUNPacket, error) {
	if len(data) < stunHeaderSize {
		return nil, ErrPacketTooShort{Expected: stunHeaderSize, Got: len(data)}
	}

	msgType := STUNMessageType(binary.BigEndian.Uint16(data[0:2]))
	if !msgType.known() {
		return nil, ErrUnknownMessageType{Type: uint16(msgType)}
	}

	l := int(binary.BigEndian.Uint16(data[2:4]))
	if len(data) < stunHeaderSize+l {
		return nil, ErrPacketTooShort{Expected: stunHeaderSize + l, Got: len(data)}
	}

	cookie := binary.BigEndian.Uint32(data[4:8])
	if cookie != MagicCookie {
		return nil, ErrInvalidMagicCookie{Got: cookie}
	}

	p := &STUNPacket{Type: msgType}
	copy(p.TransactionID[:], data[8:20])

	end := stunHeaderSize + l
	offset := stunHeaderSize
	for offset < end {
		if offset+4 > len(data) {
			return nil, ErrMalformedAttribute{}
		}
		attrType := STUNAttrType(binary.BigEndian.Uint16(data[offset : offset+2]))
		attrLen := int(binary.BigEndian.Uint16(data[offset+2 : offset+4]))
		if offset+4+attrLen > len(data) {
			return nil, ErrMalformedAttribute{Type: uint16(attrType)}
		}
		value := make([]byte, attrLen)
		copy(value, data[offset+4:offset+4+attrLen])
		p.Attributes = append(p.Attributes, STUNAttribute{Type: attrType, Value: value})
		offset += 4 + attrLen + padLen(attrLen)
	}

	return p, nil
}

// HasMagicCookie reports whether data's bytes 4:8 equal the STUN magic
// cookie, without otherwise validating the message (spec.md §4.3.1
// "Helpers").
func HasMagicCookie(data []byte) bool {
	if len(data) < 8 {
		return false
	}
	return binary.BigEndian.Uint32(data[4:8]) == MagicCookie
}

// PeekSTUNType returns the message type from data's first two bytes without
// parsing the rest of the message (spec.md §4.3.1 "Helpers"). A type this
// package does not recognize is reported as ErrUnknownMessageType.
func PeekSTUNType(data []byte) (STUNMessageType, error) {
	if len(data) < 2 {
		return 0, ErrPacketTooShort{Expected: 2, Got: len(data)}
	}
	t := STUNMessageType(binary.BigEndian.Uint16(data[0:2]))
	if !t.known() {
		return 0, ErrUnknownMessageType{Type: uint16(t)}
	}
	return t, nil
}

// attr returns the first attribute of the given type, if any.
func (p *STUNPacket) attr(t STUNAttrType) ([]byte, bool) {
	for _, a := range p.Attributes {
		if a.Type == t {
			return a.Value, true
		}
	}
	return nil, false
}
