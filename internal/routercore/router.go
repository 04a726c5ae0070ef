// Package routercore is the top-level orchestrator for the IPv4 router
// dataplane: it ties together the longest-prefix-match forwarding table, the
// ARP resolver, and a netio.NetIO to run the event loop described in spec
// §4.6.
package routercore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/coursenet/dataplane/internal/arp"
	"github.com/coursenet/dataplane/internal/route"
	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

const (
	// routeCapacity bounds dynamically-learned (non-local) routes (spec §7c).
	routeCapacity = 5
	recvTimeout   = time.Second
)

// Router orchestrates IPv4 forwarding, ARP resolution, and dynamic-routing
// message handling over a netio.NetIO.
type Router struct {
	net netio.NetIO
	clk netio.Clock
	log *slog.Logger

	interfaces []netio.Interface
	localIPs   map[string]bool

	table *route.Table
	arp   *arp.Resolver
}

// New constructs a Router. Each of io's interfaces with a non-nil IP is
// installed as a pinned local route.
func New(io netio.NetIO, clk netio.Clock, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	interfaces := io.Interfaces()

	r := &Router{
		net:        io,
		clk:        clk,
		log:        logger.With("component", "router"),
		interfaces: interfaces,
		localIPs:   make(map[string]bool, len(interfaces)),
		table:      route.New(routeCapacity),
		arp:        arp.New(interfaces),
	}

	for _, intf := range interfaces {
		if intf.IP == nil {
			continue
		}
		r.localIPs[intf.IP.String()] = true
		ones, bits := intf.Netmask.Size()
		prefix := &net.IPNet{IP: intf.IP.Mask(intf.Netmask), Mask: net.CIDRMask(ones, bits)}
		r.table.AddEntry(prefix, nil, intf.HWAddr, true)
	}

	return r
}

// AddStaticRoute installs a non-local route, e.g. from a preloaded
// forwarding-table file (spec §6).
func (r *Router) AddStaticRoute(prefix *net.IPNet, nextHop net.IP, outPortMAC net.HardwareAddr) {
	r.table.AddEntry(prefix, nextHop, outPortMAC, false)
}

// Routes returns every route currently installed, for status reporting.
func (r *Router) Routes() []route.Entry {
	return r.table.Entries()
}

// ARPCache returns the current remote IP-to-MAC resolution cache, for
// status reporting.
func (r *Router) ARPCache() map[string]net.HardwareAddr {
	return r.arp.Cache()
}

// LocalARPEntries returns the router's own interface-local IP-to-MAC
// table, distinct from the remote cache returned by ARPCache, for status
// reporting.
func (r *Router) LocalARPEntries() map[string]net.HardwareAddr {
	return r.arp.LocalEntries()
}

func (r *Router) findInterfaceByMAC(mac net.HardwareAddr) (netio.Interface, bool) {
	for _, intf := range r.interfaces {
		if intf.HWAddr.String() == mac.String() {
			return intf, true
		}
	}
	return netio.Interface{}, false
}

// Run executes the router's event loop until ctx is cancelled or the
// underlying NetIO signals shutdown.
func (r *Router) Run(ctx context.Context) error {
	r.log.Debug("starting router event loop", "interfaces", len(r.interfaces))

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		r.arp.Pump(r.clk.Now(), r.findInterfaceByMAC, r.net.Send)

		recv, err := r.net.Recv(recvTimeout)
		switch {
		case errors.Is(err, netio.ErrNoPacket):
			continue
		case errors.Is(err, netio.ErrShutdown):
			r.log.Debug("received shutdown signal")
			return nil
		case err != nil:
			return fmt.Errorf("router: recv: %w", err)
		}

		r.handleFrame(recv)
	}
}

func (r *Router) handleFrame(recv netio.Received) {
	eth, payload, err := wire.DecodeEthernet(recv.Frame)
	if err != nil {
		r.log.Debug("dropped malformed frame", "port", recv.Port, "error", err)
		return
	}

	switch eth.EtherType {
	case wire.EtherTypeARP:
		a, err := wire.DecodeARP(payload)
		if err != nil {
			r.log.Debug("dropped malformed ARP packet", "port", recv.Port, "error", err)
			return
		}
		r.arp.HandleARP(a, recv.Port, r.net.Send)

	case wire.EtherTypeIPv4:
		r.handleIPv4(recv.Port, payload)

	case wire.EtherTypeSlow:
		drm, err := wire.DecodeDRM(payload)
		if err != nil {
			r.log.Debug("dropped malformed dynamic-routing message", "port", recv.Port, "error", err)
			return
		}
		r.handleDRM(recv.Port, drm)

	default:
		r.log.Debug("dropped frame with unrecognized ethertype", "port", recv.Port, "ethertype", eth.EtherType)
	}
}

func (r *Router) handleIPv4(inPort string, ipv4Frame []byte) {
	h, _, err := wire.DecodeIPv4(ipv4Frame)
	if err != nil {
		r.log.Debug("dropped malformed IPv4 header", "port", inPort, "error", err)
		return
	}

	if r.localIPs[h.Dst.String()] {
		r.log.Debug("dropped packet addressed to the router itself", "dst", h.Dst)
		return
	}

	outPortMAC, nextHop, ok := r.table.Lookup(h.Dst)
	if !ok {
		r.log.Debug("dropped packet with no matching route", "dst", h.Dst)
		return
	}

	frame := wire.EncodeEthernet(wire.Ethernet{EtherType: wire.EtherTypeIPv4}, ipv4Frame)

	if mac, resolved := r.arp.Lookup(nextHop); resolved {
		r.forward(frame, outPortMAC, mac)
		return
	}

	r.arp.Enqueue(frame, outPortMAC, nextHop, r.clk.Now())
}

func (r *Router) forward(frame []byte, outPortMAC, dstMAC net.HardwareAddr) {
	intf, ok := r.findInterfaceByMAC(outPortMAC)
	if !ok {
		return
	}
	_, ipv4Frame, err := wire.DecodeEthernet(frame)
	if err != nil {
		return
	}
	wire.DecrementTTLInPlace(ipv4Frame[:20])

	out := wire.EncodeEthernet(wire.Ethernet{
		Dst:       dstMAC,
		Src:       outPortMAC,
		EtherType: wire.EtherTypeIPv4,
	}, ipv4Frame)

	if err := r.net.Send(intf.Name, out); err != nil {
		r.log.Debug("failed to forward IPv4 packet", "port", intf.Name, "error", err)
	}
}

func (r *Router) handleDRM(inPort string, drm wire.DRM) {
	intf, ok := r.net.InterfaceByName(inPort)
	if !ok {
		return
	}
	ones, bits := net.IPMask(drm.AdvertisedMask.To4()).Size()
	mask := net.CIDRMask(ones, bits)
	prefix := &net.IPNet{IP: drm.AdvertisedPrefix.Mask(mask), Mask: mask}
	r.table.AddEntry(prefix, drm.NextHop, intf.HWAddr, false)
	r.log.Debug("installed dynamic route", "prefix", prefix, "next_hop", drm.NextHop, "via", inPort)
}
