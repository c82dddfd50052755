package wireveil

import (
	"encoding/binary"
	"hash/crc32"
)

// fingerprintXOR is the RFC 5389 FINGERPRINT obfuscation constant, "STUN"
// in ASCII XORed over the CRC32 (spec.md §4.3.2 "generate_keepalive").
const fingerprintXOR uint32 = 0x5354554E

// KeepaliveInterval is the cadence at which generate_keepalive should be
// invoked by a relay when no other traffic is flowing (spec.md §4.3.2).
// Enforcing the cadence is the relay's job, not the masker's; this constant
// is exported purely as that hint.
const KeepaliveInterval = 10 // seconds

// STUNMasker wraps and unwraps WireGuard payloads inside synthetic STUN
// messages so a passive observer sees NAT-traversal cover traffic instead
// of an obfuscated WireGuard flow (spec.md §4.3.2). Like PacketCodec, it is
// stateless and safe to share across goroutines once constructed.
type STUNMasker struct{}

// NewSTUNMasker returns a ready-to-use masker. It takes no parameters: STUN
// framing needs no key, only the obfuscation layer underneath it does.
func NewSTUNMasker() *STUNMasker {
	return &STUNMasker{}
}

// Wrap implements spec.md §4.3.2 "wrap(payload)".
func (m *STUNMasker) Wrap(payload []byte) ([]byte, error) {
	if len(payload) == 0 {
		return nil, ErrPacketTooShort{Expected: 1, Got: 0}
	}
	txID, err := NewTransactionID()
	if err != nil {
		return nil, err
	}
	pkt := &STUNPacket{
		Type:          DataIndication,
		TransactionID: txID,
		Attributes:    []STUNAttribute{{Type: AttrData, Value: payload}},
	}
	return pkt.Serialize(), nil
}

// Unwrap implements spec.md §4.3.2 "unwrap(data)". It returns (nil, nil)
// for anything that isn't recognizable STUN cover traffic, so the relay can
// drop it silently rather than treating a malformed datagram as fatal
// (spec.md §7 "Propagation policy").
func (m *STUNMasker) Unwrap(data []byte) ([]byte, error) {
	if len(data) < 24 || !HasMagicCookie(data) {
		return nil, nil
	}
	msgType, err := PeekSTUNType(data)
	if err != nil || msgType != DataIndication {
		return nil, nil
	}

	// Fast path (spec.md §9 "STUN fast path"): the DATA attribute is
	// conventionally the first (and only) attribute wrap() produces, at a
	// fixed offset, so recognize it directly instead of running the full
	// attribute walk.
	if data[20] == 0x00 && data[21] == 0x13 {
		l := int(binary.BigEndian.Uint16(data[22:24]))
		if 24+l > len(data) {
			return nil, ErrMalformedAttribute{Type: uint16(AttrData)}
		}
		out := make([]byte, l)
		copy(out, data[24:24+l])
		return out, nil
	}

	pkt, err := ParseSTUNPacket(data)
	if err != nil {
		return nil, err
	}
	value, ok := pkt.attr(AttrData)
	if !ok {
		return nil, ErrMalformedAttribute{Type: uint16(AttrData)}
	}
	out := make([]byte, len(value))
	copy(out, value)
	return out, nil
}

// GenerateKeepalive implements spec.md §4.3.2 "generate_keepalive()".
//
// The FINGERPRINT here is computed over the message as serialized WITHOUT
// the FINGERPRINT attribute, then the attribute is appended and the message
// is reserialized with its length field updated to include it. RFC 5389
// §15.5 instead says FINGERPRINT must be computed as if it were already
// present. This is a deliberate replica of that (non-conformant) behavior —
// see DESIGN.md's note on spec.md §9's Open Question — since interoperating
// with conformant STUN implementations is explicitly out of scope (spec.md
// §1 Non-goals); what matters is that our own wrap/unwrap and any peer
// running this same code agree.
func (m *STUNMasker) GenerateKeepalive() ([]byte, error) {
	txID, err := NewTransactionID()
	if err != nil {
		return nil, err
	}
	pkt := &STUNPacket{Type: BindingRequest, TransactionID: txID}

	unsigned := pkt.Serialize()
	fp := crc32.ChecksumIEEE(unsigned) ^ fingerprintXOR

	var fpValue [4]byte
	binary.BigEndian.PutUint32(fpValue[:], fp)
	pkt.Attributes = append(pkt.Attributes, STUNAttribute{Type: AttrFingerprint, Value: fpValue[:]})

	return pkt.Serialize(), nil
}

// HandleBindingRequest implements spec.md §4.3.2 "handle_binding_request".
// It returns (nil, false) for any input that isn't a parseable
// BindingRequest.
func (m *STUNMasker) HandleBindingRequest(req []byte) ([]byte, bool) {
	pkt, err := ParseSTUNPacket(req)
	if err != nil || pkt.Type != BindingRequest {
		return nil, false
	}
	resp := &STUNPacket{Type: BindingResponse, TransactionID: pkt.TransactionID}
	return resp.Serialize(), true
}
