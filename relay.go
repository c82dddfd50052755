package wireveil

import (
	"fmt"
	"log"
	"net"
	"sync"
	"sync/atomic"
	"time"
)

const maxDatagramSize = 65535

// Relay is the long-lived object described in spec.md §4.4: it owns a local
// UDP listener, a connection to a remote endpoint, a shared PacketCodec,
// and an optional STUNMasker. Mirroring mwgp's Client in client.go, it pumps
// datagrams between the two sockets, applying the outbound or inbound
// pipeline to each one.
//
// The only mutable relay state is the two socket handles and the current
// local peer endpoint (spec.md §5 "Shared resources"); all three are
// written only from lifecycle events or the dedicated receive loops, and
// read via an atomic snapshot, per spec.md §5's single-writer discipline.
type Relay struct {
	config *Config
	codec  *PacketCodec
	masker *STUNMasker
	table  *forwardTable

	localConn  *net.UDPConn
	remoteConn *net.UDPConn
	remoteAddr *net.UDPAddr

	currentPeer   atomic.Value // *net.UDPAddr
	listeningPort atomic.Int32
	lastSent      atomic.Int64 // unix nanos

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewRelay validates cfg and builds the codec/masker it needs, but does not
// open any sockets — that happens in Start (spec.md §3 "Lifecycles":
// "Relay sockets are opened at start").
func NewRelay(cfg *Config) (*Relay, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	key, err := cfg.decodedKey()
	if err != nil {
		return nil, err
	}
	codec, err := NewPacketCodec(key, cfg.MaxDummyData)
	if err != nil {
		return nil, err
	}

	r := &Relay{
		config: cfg,
		codec:  codec,
		stopCh: make(chan struct{}),
	}
	if cfg.Masking == MaskingStun {
		r.masker = NewSTUNMasker()
	}
	if cfg.AllowMultiplePeers {
		r.table = newForwardTable(cfg.peerTimeout())
	}
	return r, nil
}

// Start binds the local loopback listener and dials the remote endpoint,
// then launches the two receive loops (and, under STUN masking, the
// keepalive timer). It returns the bound local port once the listener is
// ready (spec.md §4.4 "Lifecycle").
func (r *Relay) Start() (int, error) {
	remoteAddr, err := net.ResolveUDPAddr("udp", r.config.RemoteEndpoint)
	if err != nil {
		return 0, ErrResolveAddr{Kind: "remote", Addr: r.config.RemoteEndpoint, Cause: err}
	}
	r.remoteAddr = remoteAddr

	localAddr := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: r.config.LocalPort}
	localConn, err := net.ListenUDP("udp", localAddr)
	if err != nil {
		return 0, ErrFailedToBindPort{Addr: localAddr.String(), Cause: err}
	}

	remoteConn, err := net.DialUDP("udp", nil, remoteAddr)
	if err != nil {
		localConn.Close()
		return 0, ErrFailedToBindPort{Addr: remoteAddr.String(), Cause: err}
	}

	boundAddr, ok := localConn.LocalAddr().(*net.UDPAddr)
	if !ok {
		localConn.Close()
		remoteConn.Close()
		return 0, ErrFailedToBindPort{Addr: localAddr.String(), Cause: fmt.Errorf("unexpected local address type %T", localConn.LocalAddr())}
	}

	r.localConn = localConn
	r.remoteConn = remoteConn
	r.listeningPort.Store(int32(boundAddr.Port))

	r.wg.Add(2)
	go r.localLoop()
	go r.remoteLoop()

	if r.masker != nil {
		r.wg.Add(1)
		go r.keepaliveLoop()
	}

	return boundAddr.Port, nil
}

// Stop closes both sockets, which unblocks the in-flight receive calls and
// lets the workers exit (spec.md §5 "Cancellation / timeouts"), then waits
// for them to return.
func (r *Relay) Stop() {
	select {
	case <-r.stopCh:
		return // already stopped
	default:
		close(r.stopCh)
	}
	if r.localConn != nil {
		r.localConn.Close()
	}
	if r.remoteConn != nil {
		r.remoteConn.Close()
	}
	r.wg.Wait()
}

// ListeningPort returns the bound local port, or (0, false) before Start
// has completed.
func (r *Relay) ListeningPort() (int, bool) {
	p := r.listeningPort.Load()
	if p == 0 {
		return 0, false
	}
	return int(p), true
}

// localLoop implements the outbound pipeline of spec.md §4.4: read from the
// local (unobfuscated) socket, apply codec.Encode and the optional STUN
// wrap, and send to the remote endpoint.
func (r *Relay) localLoop() {
	defer r.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, srcAddr, err := r.localConn.ReadFromUDP(buf)
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
				log.Printf("[error] wireveil: local read failed: %s", err)
				return
			}
		}
		r.handleOutbound(srcAddr, buf[:n])
	}
}

func (r *Relay) handleOutbound(srcAddr *net.UDPAddr, packet []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[error] wireveil: recovered from panic handling outbound packet: %v", rec)
		}
	}()

	if len(packet) == 0 {
		return
	}
	typ, ok := detectType(packet)
	if !ok {
		return
	}

	r.recordPeer(srcAddr)

	obf, err := r.codec.Encode(packet, typ)
	if err != nil {
		log.Printf("[warn] wireveil: failed to encode outbound packet: %s", err)
		return
	}

	out := obf
	if r.masker != nil {
		out, err = r.masker.Wrap(obf)
		if err != nil {
			log.Printf("[warn] wireveil: failed to wrap outbound packet: %s", err)
			return
		}
	}

	if _, err := r.remoteConn.Write(out); err != nil {
		log.Printf("[error] wireveil: failed to write to remote endpoint: %s", err)
		return
	}
	r.lastSent.Store(time.Now().UnixNano())
}

// remoteLoop implements the inbound pipeline of spec.md §4.4: read from the
// remote (obfuscated) socket, undo the optional STUN wrap and codec.Decode,
// and send to the current local peer.
func (r *Relay) remoteLoop() {
	defer r.wg.Done()
	buf := make([]byte, maxDatagramSize)
	for {
		n, err := r.remoteConn.Read(buf)
		if err != nil {
			select {
			case <-r.stopCh:
				return
			default:
				log.Printf("[error] wireveil: remote read failed: %s", err)
				return
			}
		}
		r.handleInbound(buf[:n])
	}
}

func (r *Relay) handleInbound(packet []byte) {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("[error] wireveil: recovered from panic handling inbound packet: %v", rec)
		}
	}()

	obf := packet
	if r.masker != nil {
		unwrapped, err := r.masker.Unwrap(packet)
		if err != nil {
			log.Printf("[warn] wireveil: failed to unwrap inbound STUN packet: %s", err)
			return
		}
		if unwrapped == nil {
			return // not a DataIndication; drop silently (spec.md §4.4 step 1)
		}
		obf = unwrapped
	}

	plain, err := r.codec.Decode(obf)
	if err != nil {
		log.Printf("[warn] wireveil: failed to decode inbound packet: %s", err)
		return
	}

	if r.table != nil {
		r.fanOutToTable(plain)
		return
	}

	peer := r.peer()
	if peer == nil {
		return // no local peer registered yet
	}
	if _, err := r.localConn.WriteToUDP(plain, peer); err != nil {
		log.Printf("[error] wireveil: failed to write to local peer %s: %s", peer, err)
	}
}

// keepaliveLoop emits a STUN Binding Request every KeepaliveInterval
// seconds of outbound silence, so the flow keeps looking like live
// NAT-traversal traffic even when WireGuard itself is idle (spec.md §4.3.2
// "generate_keepalive").
func (r *Relay) keepaliveLoop() {
	defer r.wg.Done()
	ticker := time.NewTicker(KeepaliveInterval * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-r.stopCh:
			return
		case <-ticker.C:
			idleSince := time.Duration(time.Now().UnixNano()-r.lastSent.Load()) * time.Nanosecond
			if idleSince < KeepaliveInterval*time.Second {
				continue
			}
			keepalive, err := r.masker.GenerateKeepalive()
			if err != nil {
				log.Printf("[warn] wireveil: failed to generate STUN keepalive: %s", err)
				continue
			}
			if _, err := r.remoteConn.Write(keepalive); err != nil {
				log.Printf("[error] wireveil: failed to send STUN keepalive: %s", err)
				continue
			}
			r.lastSent.Store(time.Now().UnixNano())
		}
	}
}

// recordPeer updates the current local peer. A second local peer displaces
// the first (spec.md §4.4 "Shape"), unless AllowMultiplePeers opts into the
// peer-table redesign (SPEC_FULL.md), in which case every peer seen within
// the table's inactivity timeout stays registered instead of being evicted
// on first contact from someone new.
func (r *Relay) recordPeer(addr *net.UDPAddr) {
	if r.table != nil {
		r.table.touch(addr)
	}
	r.currentPeer.Store(addr)
}

// fanOutToTable delivers an inbound datagram to every local peer the
// forward table still considers active. The relay has no per-packet way to
// tell which local peer an inbound datagram is meant for (session
// demultiplexing is explicitly out of scope, spec.md §1), so under
// AllowMultiplePeers every live peer receives a copy, the same tradeoff
// mwgp's own fwTable-backed forwarding made for its fixed peer slots.
func (r *Relay) fanOutToTable(plain []byte) {
	peers := r.table.addrs()
	if len(peers) == 0 {
		return // no local peer registered yet
	}
	for _, peer := range peers {
		if _, err := r.localConn.WriteToUDP(plain, peer); err != nil {
			log.Printf("[error] wireveil: failed to write to local peer %s: %s", peer, err)
		}
	}
}

func (r *Relay) peer() *net.UDPAddr {
	v := r.currentPeer.Load()
	if v == nil {
		return nil
	}
	return v.(*net.UDPAddr)
}
