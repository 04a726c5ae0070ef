// Package route implements the router's longest-prefix-match forwarding
// table, with FIFO eviction for dynamically-learned routes and pinned
// entries for local interface routes, per spec §4.4.
package route

import (
	"net"
	"sort"
)

// Entry is one forwarding-table row: a destination prefix, reachable either
// directly (Local, NextHop nil) or via NextHop out OutPortMAC.
type Entry struct {
	Prefix     *net.IPNet
	NextHop    net.IP // nil when Local
	OutPortMAC net.HardwareAddr
	Local      bool
}

// Table is a bounded longest-prefix-match forwarding table. A Table is not
// safe for concurrent use; the router event loop owns one exclusively.
type Table struct {
	capacity int
	ring     []string // CIDR keys of non-local entries, in slot order
	pos      int
	entries  map[string]Entry // CIDR string -> entry, locals and dynamics alike
}

// New returns a Table whose dynamically-learned (non-local) entries are
// bounded to capacity.
func New(capacity int) *Table {
	return &Table{
		capacity: capacity,
		ring:     make([]string, capacity),
		entries:  make(map[string]Entry),
	}
}

// AddEntry installs or refreshes a route. An exact-CIDR match overwrites
// NextHop/OutPortMAC in place without touching the FIFO ring. A new local
// entry is pinned (never evicted, never occupies a ring slot); a new
// non-local entry evicts whatever CIDR currently occupies the FIFO cursor's
// slot, if any.
func (t *Table) AddEntry(prefix *net.IPNet, nextHop net.IP, outPortMAC net.HardwareAddr, local bool) {
	key := prefix.String()

	if _, exists := t.entries[key]; exists {
		e := t.entries[key]
		e.NextHop = nextHop
		e.OutPortMAC = outPortMAC
		t.entries[key] = e
		return
	}

	t.entries[key] = Entry{Prefix: prefix, NextHop: nextHop, OutPortMAC: outPortMAC, Local: local}
	if local {
		return
	}

	if evict := t.ring[t.pos]; evict != "" {
		delete(t.entries, evict)
	}
	t.ring[t.pos] = key
	t.pos = (t.pos + 1) % t.capacity
}

// Lookup returns the longest-prefix-matching route for dstIP, if any. When
// the matched entry is local, the returned next hop is dstIP itself (direct
// delivery).
func (t *Table) Lookup(dstIP net.IP) (outPortMAC net.HardwareAddr, nextHop net.IP, ok bool) {
	var candidates []Entry
	for _, e := range t.entries {
		if e.Prefix.Contains(dstIP) {
			candidates = append(candidates, e)
		}
	}
	if len(candidates) == 0 {
		return nil, nil, false
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		iOnes, _ := candidates[i].Prefix.Mask.Size()
		jOnes, _ := candidates[j].Prefix.Mask.Size()
		return iOnes > jOnes
	})

	best := candidates[0]
	if best.Local {
		return best.OutPortMAC, dstIP, true
	}
	return best.OutPortMAC, best.NextHop, true
}

// Entries returns every route currently installed, in no particular
// order. Used to render the table for status reporting.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	return out
}
