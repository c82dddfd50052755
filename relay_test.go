package wireveil

import (
	"bytes"
	"encoding/base64"
	"net"
	"testing"
	"time"
)

// fakeRemotePeer simulates the far side of the tunnel: whatever arrives on
// this socket is exactly what went out over the "wire" the relay is meant
// to camouflage.
type fakeRemotePeer struct {
	conn *net.UDPConn
}

func newFakeRemotePeer(t *testing.T) *fakeRemotePeer {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0})
	if err != nil {
		t.Fatal(err)
	}
	return &fakeRemotePeer{conn: conn}
}

func (f *fakeRemotePeer) addr() string {
	return f.conn.LocalAddr().String()
}

func (f *fakeRemotePeer) recv(t *testing.T) ([]byte, *net.UDPAddr) {
	t.Helper()
	f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, from, err := f.conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("fake remote peer: read: %s", err)
	}
	return buf[:n], from
}

func (f *fakeRemotePeer) send(t *testing.T, data []byte, to *net.UDPAddr) {
	t.Helper()
	if _, err := f.conn.WriteToUDP(data, to); err != nil {
		t.Fatalf("fake remote peer: write: %s", err)
	}
}

func buildRelay(t *testing.T, remoteAddr string, masking MaskingMode) *Relay {
	t.Helper()
	cfg := &Config{
		LocalPort:      0,
		RemoteEndpoint: remoteAddr,
		Key:            base64.StdEncoding.EncodeToString([]byte("relay-integration-test-key")),
		Masking:        masking,
	}
	relay, err := NewRelay(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return relay
}

func buildMultiPeerRelay(t *testing.T, remoteAddr string) *Relay {
	t.Helper()
	cfg := &Config{
		LocalPort:          0,
		RemoteEndpoint:     remoteAddr,
		Key:                base64.StdEncoding.EncodeToString([]byte("relay-integration-test-key")),
		Masking:            MaskingNone,
		AllowMultiplePeers: true,
		PeerTimeoutSeconds: 5,
	}
	relay, err := NewRelay(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return relay
}

func runRoundTrip(t *testing.T, masking MaskingMode) {
	t.Helper()
	remotePeer := newFakeRemotePeer(t)
	defer remotePeer.conn.Close()

	relay := buildRelay(t, remotePeer.addr(), masking)
	port, err := relay.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer relay.Stop()

	localSender, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatal(err)
	}
	defer localSender.Close()

	outboundPlain := validPlaintext(byte(Data), 64)
	outboundPlain[4] = 0xAA
	if _, err := localSender.Write(outboundPlain); err != nil {
		t.Fatal(err)
	}

	onWire, remoteSeenFrom := remotePeer.recv(t)
	if masking == MaskingStun {
		if !HasMagicCookie(onWire) {
			t.Fatal("expected STUN-masked traffic to carry the magic cookie")
		}
	} else if !isObfuscated(onWire) {
		t.Fatal("on-wire bytes should not look like a plaintext WireGuard packet")
	}

	// Build a reply the same way the relay's own peer would: encode (and
	// optionally wrap) a plaintext WireGuard packet using the same key.
	codec, err := NewPacketCodec([]byte("relay-integration-test-key"), 4)
	if err != nil {
		t.Fatal(err)
	}
	inboundPlain := validPlaintext(byte(HandshakeResponse), 92)
	inboundPlain[4] = 0xBB
	encoded, err := codec.Encode(inboundPlain, HandshakeResponse)
	if err != nil {
		t.Fatal(err)
	}
	reply := encoded
	if masking == MaskingStun {
		masker := NewSTUNMasker()
		reply, err = masker.Wrap(encoded)
		if err != nil {
			t.Fatal(err)
		}
	}
	remotePeer.send(t, reply, remoteSeenFrom)

	localSender.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 2048)
	n, err := localSender.Read(buf)
	if err != nil {
		t.Fatalf("local sender: read reply: %s", err)
	}
	if !bytes.Equal(buf[:n], inboundPlain) {
		t.Fatalf("round-trip mismatch:\n got  %x\n want %x", buf[:n], inboundPlain)
	}
}

func TestRelayRoundTripNoMasking(t *testing.T) {
	runRoundTrip(t, MaskingNone)
}

func TestRelayRoundTripStunMasking(t *testing.T) {
	runRoundTrip(t, MaskingStun)
}

func TestRelayDropsMalformedDatagramsWithoutDying(t *testing.T) {
	remotePeer := newFakeRemotePeer(t)
	defer remotePeer.conn.Close()

	relay := buildRelay(t, remotePeer.addr(), MaskingNone)
	port, err := relay.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer relay.Stop()

	localSender, err := net.DialUDP("udp", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port})
	if err != nil {
		t.Fatal(err)
	}
	defer localSender.Close()

	// Empty datagram and a non-WireGuard-looking datagram should both be
	// dropped silently: nothing should reach the fake remote peer for
	// these, and the relay must still serve subsequent valid packets.
	localSender.Write(nil)
	localSender.Write([]byte{0xFF, 0xFF, 0xFF, 0xFF})

	valid := validPlaintext(byte(Data), 40)
	if _, err := localSender.Write(valid); err != nil {
		t.Fatal(err)
	}
	onWire, _ := remotePeer.recv(t)
	if !isObfuscated(onWire) {
		t.Fatal("expected the one valid packet to still make it through as obfuscated traffic")
	}
}

// TestRelayMultiPeerFanOut covers spec.md §9's suggested peer-table
// redesign: with AllowMultiplePeers set, an inbound datagram reaches every
// local peer the forward table still considers active, not just the most
// recently seen one.
func TestRelayMultiPeerFanOut(t *testing.T) {
	remotePeer := newFakeRemotePeer(t)
	defer remotePeer.conn.Close()

	relay := buildMultiPeerRelay(t, remotePeer.addr())
	port, err := relay.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer relay.Stop()

	localAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}
	senderA, err := net.DialUDP("udp", nil, localAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer senderA.Close()
	senderB, err := net.DialUDP("udp", nil, localAddr)
	if err != nil {
		t.Fatal(err)
	}
	defer senderB.Close()

	// Register both local peers in the forward table by sending outbound
	// traffic from each.
	outboundA := validPlaintext(byte(Data), 40)
	outboundA[4] = 0xAA
	if _, err := senderA.Write(outboundA); err != nil {
		t.Fatal(err)
	}
	_, remoteSeenFrom := remotePeer.recv(t)

	outboundB := validPlaintext(byte(Data), 40)
	outboundB[4] = 0xBB
	if _, err := senderB.Write(outboundB); err != nil {
		t.Fatal(err)
	}
	remotePeer.recv(t)

	codec, err := NewPacketCodec([]byte("relay-integration-test-key"), 4)
	if err != nil {
		t.Fatal(err)
	}
	inboundPlain := validPlaintext(byte(HandshakeResponse), 92)
	inboundPlain[4] = 0xCC
	encoded, err := codec.Encode(inboundPlain, HandshakeResponse)
	if err != nil {
		t.Fatal(err)
	}
	remotePeer.send(t, encoded, remoteSeenFrom)

	for name, sender := range map[string]*net.UDPConn{"A": senderA, "B": senderB} {
		sender.SetReadDeadline(time.Now().Add(2 * time.Second))
		buf := make([]byte, 2048)
		n, err := sender.Read(buf)
		if err != nil {
			t.Fatalf("local peer %s: read fan-out: %s", name, err)
		}
		if !bytes.Equal(buf[:n], inboundPlain) {
			t.Fatalf("local peer %s: fan-out mismatch:\n got  %x\n want %x", name, buf[:n], inboundPlain)
		}
	}
}

func TestRelayListeningPort(t *testing.T) {
	remotePeer := newFakeRemotePeer(t)
	defer remotePeer.conn.Close()

	relay := buildRelay(t, remotePeer.addr(), MaskingNone)
	if _, ok := relay.ListeningPort(); ok {
		t.Fatal("expected no listening port before Start")
	}
	port, err := relay.Start()
	if err != nil {
		t.Fatal(err)
	}
	defer relay.Stop()

	got, ok := relay.ListeningPort()
	if !ok || got != port {
		t.Fatalf("ListeningPort() = %d, %v; want %d, true", got, ok, port)
	}
}
