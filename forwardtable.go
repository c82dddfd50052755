package wireveil

import (
	"net"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"
)

// forwardTable tracks local peer endpoints by source address, generalizing
// the relay's default single-peer behavior per spec.md §9's own suggested
// redesign ("a production-quality rewrite may generalize this to a peer
// table keyed by source endpoint"). It is only consulted when a Relay is
// constructed with AllowMultiplePeers set; the default relay keeps spec.md
// §4.4's single-peer semantics exactly (see Relay.currentPeer).
//
// Keyed on xxhash.Sum64 of the address string, the same "hash the endpoint,
// look up a small table" shape mwgp's fwTable/kMaxPeersCount uses in
// client.go, just generalized from a fixed peer-ID slot to an
// inactivity-pruned map.
type forwardTable struct {
	mu      sync.Mutex
	timeout time.Duration
	peers   map[uint64]*forwardEntry
}

type forwardEntry struct {
	addr     *net.UDPAddr
	lastSeen time.Time
}

func newForwardTable(timeout time.Duration) *forwardTable {
	if timeout <= 0 {
		timeout = 180 * time.Second
	}
	return &forwardTable{
		timeout: timeout,
		peers:   make(map[uint64]*forwardEntry),
	}
}

func hashUDPAddr(addr *net.UDPAddr) uint64 {
	return xxhash.Sum64String(addr.String())
}

// touch records addr as active now, evicting entries that have been
// inactive longer than the table's timeout.
func (t *forwardTable) touch(addr *net.UDPAddr) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := time.Now()
	key := hashUDPAddr(addr)
	if e, ok := t.peers[key]; ok {
		e.addr = addr
		e.lastSeen = now
	} else {
		t.peers[key] = &forwardEntry{addr: addr, lastSeen: now}
	}

	for k, e := range t.peers {
		if now.Sub(e.lastSeen) > t.timeout {
			delete(t.peers, k)
		}
	}
}

// addrs snapshots the currently active addresses. The relay's inbound loop
// calls this under AllowMultiplePeers to fan an inbound datagram out to
// every live local peer (relay.go's fanOutToTable).
func (t *forwardTable) addrs() []*net.UDPAddr {
	t.mu.Lock()
	defer t.mu.Unlock()

	out := make([]*net.UDPAddr, 0, len(t.peers))
	for _, e := range t.peers {
		out = append(out, e.addr)
	}
	return out
}
