// Package arp implements the router's ARP resolver: request/reply handling
// against the local interfaces, a remote MAC cache, and a pending-packet
// retry queue coalesced per target IP, per spec §4.5.
package arp

import (
	"net"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

const (
	retryInterval = time.Second
	maxRetries    = 3
)

// Pending is one packet awaiting ARP resolution for targetIP before it can
// be sent out outPortMAC.
type Pending struct {
	Frame      []byte
	OutPortMAC net.HardwareAddr
	TargetIP   net.IP
}

type retryState struct {
	arpsSent    int
	lastARPTime time.Time
}

// Resolver holds the remote ARP cache and the pending-packet queue. A
// Resolver is not safe for concurrent use; the router event loop owns one
// exclusively.
type Resolver struct {
	localIPs map[string]netio.Interface // IP string -> owning interface

	cache map[string]net.HardwareAddr // IP string -> MAC

	pending []Pending
	retries map[string]*retryState // target IP string -> retry state
}

// New returns a Resolver that treats the IPs of interfaces as local.
func New(interfaces []netio.Interface) *Resolver {
	r := &Resolver{
		localIPs: make(map[string]netio.Interface),
		cache:    make(map[string]net.HardwareAddr),
		retries:  make(map[string]*retryState),
	}
	for _, intf := range interfaces {
		if intf.IP != nil {
			r.localIPs[intf.IP.String()] = intf
		}
	}
	return r
}

// Lookup returns the cached MAC for ip, if known.
func (r *Resolver) Lookup(ip net.IP) (net.HardwareAddr, bool) {
	mac, ok := r.cache[ip.String()]
	return mac, ok
}

// Cache returns a copy of the current IP-to-MAC resolution cache. Used to
// render the cache for status reporting.
func (r *Resolver) Cache() map[string]net.HardwareAddr {
	out := make(map[string]net.HardwareAddr, len(r.cache))
	for ip, mac := range r.cache {
		out[ip] = mac
	}
	return out
}

// LocalEntries returns a copy of the interface-local IP-to-MAC table — the
// router's own addresses, distinct from the remote cache returned by Cache.
// Used to render the local table for status reporting.
func (r *Resolver) LocalEntries() map[string]net.HardwareAddr {
	out := make(map[string]net.HardwareAddr, len(r.localIPs))
	for ip, intf := range r.localIPs {
		out[ip] = intf.HWAddr
	}
	return out
}

// HandleARP processes one inbound ARP request or reply arriving on inPort.
// A request targeting one of our local IPs is answered directly via send. A
// reply is absorbed into the remote cache.
func (r *Resolver) HandleARP(a wire.ARP, inPort string, send func(port string, frame []byte) error) {
	switch a.Operation {
	case wire.ARPRequest:
		intf, ok := r.localIPs[a.TargetProtoAddr.String()]
		if !ok {
			return
		}
		reply := wire.ARP{
			Operation:       wire.ARPReply,
			SenderHWAddr:    intf.HWAddr,
			SenderProtoAddr: intf.IP,
			TargetHWAddr:    a.SenderHWAddr,
			TargetProtoAddr: a.SenderProtoAddr,
		}
		frame := wire.EncodeEthernet(wire.Ethernet{
			Dst:       a.SenderHWAddr,
			Src:       intf.HWAddr,
			EtherType: wire.EtherTypeARP,
		}, wire.EncodeARP(reply))
		send(inPort, frame)

	case wire.ARPReply:
		r.cache[a.SenderProtoAddr.String()] = a.SenderHWAddr
	}
}

// Enqueue appends frame, destined for targetIP via the interface owning
// outPortMAC, to the pending queue. If targetIP has no retry-index entry
// yet, one is created backdated so the first Pump call fires an ARP request
// immediately.
func (r *Resolver) Enqueue(frame []byte, outPortMAC net.HardwareAddr, targetIP net.IP, now time.Time) {
	r.pending = append(r.pending, Pending{Frame: frame, OutPortMAC: outPortMAC, TargetIP: targetIP})

	key := targetIP.String()
	if _, ok := r.retries[key]; !ok {
		r.retries[key] = &retryState{arpsSent: 0, lastARPTime: now.Add(-2 * time.Second)}
	}
}

// Pump advances every pending entry by one tick: entries whose target has
// resolved are rewritten and sent; entries within the retry back-off are
// skipped; entries due for another ARP request get one (coalesced per
// target IP, not per queued packet); entries that have exhausted their
// retries are dropped.
func (r *Resolver) Pump(now time.Time, findInterface func(mac net.HardwareAddr) (netio.Interface, bool), send func(port string, frame []byte) error) {
	var still []Pending

	for _, p := range r.pending {
		dstMAC, resolved := r.Lookup(p.TargetIP)
		if resolved {
			r.deliver(p, dstMAC, findInterface, send)
			continue
		}

		key := p.TargetIP.String()
		rs := r.retries[key]
		if rs == nil {
			// The entry is gone when an earlier pending packet for the
			// same target exhausted its retries and removed it in this
			// same pass; this packet is dropped with it.
			continue
		}

		if now.Sub(rs.lastARPTime) < retryInterval {
			still = append(still, p)
			continue
		}

		if rs.arpsSent < maxRetries {
			r.sendRequest(p, now, rs, findInterface, send)
			still = append(still, p)
			continue
		}

		// Retries exhausted: drop this packet and forget the retry index
		// entry for its target.
		delete(r.retries, key)
	}

	r.pending = still
}

func (r *Resolver) deliver(p Pending, dstMAC net.HardwareAddr, findInterface func(mac net.HardwareAddr) (netio.Interface, bool), send func(port string, frame []byte) error) {
	intf, ok := findInterface(p.OutPortMAC)
	if !ok {
		return
	}
	_, payload, err := wire.DecodeEthernet(p.Frame)
	if err != nil {
		return
	}
	wire.DecrementTTLInPlace(payload[:20])
	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       dstMAC,
		Src:       p.OutPortMAC,
		EtherType: wire.EtherTypeIPv4,
	}, payload)
	send(intf.Name, frame)
}

func (r *Resolver) sendRequest(p Pending, now time.Time, rs *retryState, findInterface func(mac net.HardwareAddr) (netio.Interface, bool), send func(port string, frame []byte) error) {
	intf, ok := findInterface(p.OutPortMAC)
	if !ok {
		return
	}
	req := wire.ARP{
		Operation:       wire.ARPRequest,
		SenderHWAddr:    intf.HWAddr,
		SenderProtoAddr: intf.IP,
		TargetHWAddr:    net.HardwareAddr{0, 0, 0, 0, 0, 0},
		TargetProtoAddr: p.TargetIP,
	}
	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       wire.BroadcastMAC,
		Src:       intf.HWAddr,
		EtherType: wire.EtherTypeARP,
	}, wire.EncodeARP(req))
	send(intf.Name, frame)

	rs.arpsSent++
	rs.lastARPTime = now
}
