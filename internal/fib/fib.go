// Package fib implements the switch's MAC-learning forwarding table: a
// bounded map from MAC address to ingress/egress port name with FIFO
// eviction, as described in spec §4.1.
package fib

import "net"

// Table is a fixed-capacity MAC→port forwarding table. A Table is not safe
// for concurrent use; the switch event loop owns one exclusively.
type Table struct {
	capacity int
	ring     []string // MAC keys in slot order; "" marks a vacant slot
	pos      int
	ports    map[string]string // MAC (string form) -> port
}

// New returns a Table that holds at most capacity entries.
func New(capacity int) *Table {
	return &Table{
		capacity: capacity,
		ring:     make([]string, capacity),
		ports:    make(map[string]string, capacity),
	}
}

// Update records that srcMAC was last seen arriving on port. A broadcast
// source is ignored. An already-known address just has its port
// overwritten, since the station may have moved without the ring being
// touched; a new address evicts the FIFO ring's current slot occupant, if
// any, before taking its place.
func (t *Table) Update(srcMAC net.HardwareAddr, port string) {
	if isBroadcast(srcMAC) {
		return
	}
	key := srcMAC.String()

	if _, known := t.ports[key]; known {
		t.ports[key] = port
		return
	}

	t.ports[key] = port
	if evict := t.ring[t.pos]; evict != "" {
		delete(t.ports, evict)
	}
	t.ring[t.pos] = key
	t.pos = (t.pos + 1) % t.capacity
}

// Lookup returns the port last associated with dstMAC, if known.
func (t *Table) Lookup(dstMAC net.HardwareAddr) (string, bool) {
	port, ok := t.ports[dstMAC.String()]
	return port, ok
}

// Len returns the number of distinct addresses currently held.
func (t *Table) Len() int {
	return len(t.ports)
}

// Contains reports whether mac is currently known to the table.
func (t *Table) Contains(mac net.HardwareAddr) bool {
	_, ok := t.ports[mac.String()]
	return ok
}

// Entries returns every currently-known MAC-to-port association, in no
// particular order. Used to render the table for status reporting.
func (t *Table) Entries() map[string]string {
	out := make(map[string]string, len(t.ports))
	for mac, port := range t.ports {
		out[mac] = port
	}
	return out
}

var broadcast = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

func isBroadcast(mac net.HardwareAddr) bool {
	return mac.String() == broadcast.String()
}
