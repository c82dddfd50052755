package wireveil

import (
	"net"
	"testing"
	"time"
)

func TestForwardTableTouchAndEviction(t *testing.T) {
	table := newForwardTable(20 * time.Millisecond)
	addr1 := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10001}
	addr2 := &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 10002}

	table.touch(addr1)
	table.touch(addr2)
	if got := len(table.addrs()); got != 2 {
		t.Fatalf("expected 2 tracked peers, got %d", got)
	}

	time.Sleep(30 * time.Millisecond)
	table.touch(addr1) // refreshes addr1, addr2 should be pruned on this pass
	if got := len(table.addrs()); got != 1 {
		t.Fatalf("expected 1 tracked peer after eviction, got %d", got)
	}
}
