package routercore

import (
	"net"
	"testing"
	"time"

	"github.com/coursenet/dataplane/internal/netiotest"
	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

func mac(b byte) net.HardwareAddr {
	return net.HardwareAddr{0, 0, 0, 0, 0, b}
}

func newTestRouter(t *testing.T) (*Router, *netiotest.NetIO, *netiotest.Network) {
	t.Helper()
	clk := netio.NewManualClock(time.Unix(0, 0))
	n := netiotest.NewNetwork(clk)
	io := n.AddNode("router", []netio.Interface{
		{Name: "eth0", HWAddr: mac(1), IP: net.ParseIP("10.10.1.1").To4(), Netmask: net.CIDRMask(24, 32)},
		{Name: "eth1", HWAddr: mac(2), IP: net.ParseIP("192.168.1.1").To4(), Netmask: net.CIDRMask(24, 32)},
	})
	r := New(io, clk, nil)
	return r, io, n
}

func ipv4Frame(ttl uint8, dst net.IP) []byte {
	hdr := wire.EncodeIPv4(wire.IPv4{TTL: ttl, Protocol: wire.IPProtocolUDP, Src: net.ParseIP("10.10.1.5").To4(), Dst: dst}, []byte("x"))
	return wire.EncodeEthernet(wire.Ethernet{Dst: mac(1), Src: mac(9), EtherType: wire.EtherTypeIPv4}, hdr)
}

func TestLocalRoutesInstalledFromInterfaces(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)

	outMAC, nextHop, ok := r.table.Lookup(net.ParseIP("10.10.1.254").To4())
	if !ok {
		t.Fatalf("Lookup() ok = false, want true")
	}
	if outMAC.String() != mac(1).String() {
		t.Errorf("outMAC = %v, want %v", outMAC, mac(1))
	}
	if !nextHop.Equal(net.ParseIP("10.10.1.254").To4()) {
		t.Errorf("nextHop = %v, want the destination itself (local route)", nextHop)
	}
}

func TestHandleIPv4DropsPacketAddressedToRouterItself(t *testing.T) {
	t.Parallel()

	r, _, n := newTestRouter(t)
	other := n.AddNode("probe", []netio.Interface{{Name: "p0", HWAddr: mac(100)}})
	n.Connect("router", "eth1", "probe", "p0")

	frame := ipv4Frame(64, net.ParseIP("10.10.1.1").To4()) // addressed to the router's own eth0 IP
	_, payload, _ := wire.DecodeEthernet(frame)

	r.handleIPv4("eth0", payload)
	r.arp.Pump(time.Unix(0, 0), r.findInterfaceByMAC, r.net.Send)

	if _, err := other.Recv(10 * time.Millisecond); err != netio.ErrNoPacket {
		t.Fatalf("expected no frame sent for a packet addressed to the router itself, got err=%v", err)
	}
}

// S4 — LPM override: a static route to 172.16.0.0/16 is preloaded; an IPv4
// packet to 172.16.254.123 should trigger ARP resolution toward the
// preloaded next hop rather than any other match.
func TestStaticRouteTriggersARPEnqueue(t *testing.T) {
	t.Parallel()

	r, _, n := newTestRouter(t)
	r.AddStaticRoute(&net.IPNet{IP: net.ParseIP("172.16.0.0").To4(), Mask: net.CIDRMask(16, 32)}, net.ParseIP("10.10.1.254").To4(), mac(1))

	frame := ipv4Frame(64, net.ParseIP("172.16.254.123").To4())
	_, payload, _ := wire.DecodeEthernet(frame)
	r.handleIPv4("eth1", payload)

	other := n.AddNode("probe", []netio.Interface{{Name: "p0", HWAddr: mac(100)}})
	n.Connect("router", "eth0", "probe", "p0")

	r.arp.Pump(time.Unix(0, 0), r.findInterfaceByMAC, r.net.Send)

	recv, err := other.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error: %v, want an ARP request for the next hop", err)
	}
	eth, arpPayload, err := wire.DecodeEthernet(recv.Frame)
	if err != nil {
		t.Fatalf("DecodeEthernet() error: %v", err)
	}
	if eth.EtherType != wire.EtherTypeARP {
		t.Fatalf("EtherType = %v, want ARP", eth.EtherType)
	}
	a, err := wire.DecodeARP(arpPayload)
	if err != nil {
		t.Fatalf("DecodeARP() error: %v", err)
	}
	if !a.TargetProtoAddr.Equal(net.ParseIP("10.10.1.254").To4()) {
		t.Errorf("TargetProtoAddr = %v, want %v", a.TargetProtoAddr, "10.10.1.254")
	}
}

// S5 — dynamic route insertion: a DRM arriving on eth0 for 172.16.0.0/16 via
// 192.168.1.2 should take precedence over the preloaded static route.
func TestDynamicRoutingMessageInstallsRoute(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)
	r.AddStaticRoute(&net.IPNet{IP: net.ParseIP("172.16.0.0").To4(), Mask: net.CIDRMask(16, 32)}, net.ParseIP("10.10.1.254").To4(), mac(1))

	drm := wire.DRM{
		AdvertisedPrefix: net.ParseIP("172.16.0.0").To4(),
		AdvertisedMask:   net.ParseIP("255.255.0.0").To4(),
		NextHop:          net.ParseIP("192.168.1.2").To4(),
	}
	r.handleDRM("eth0", drm)

	_, nextHop, ok := r.table.Lookup(net.ParseIP("172.16.254.123").To4())
	if !ok {
		t.Fatalf("Lookup() ok = false, want true")
	}
	if !nextHop.Equal(net.ParseIP("192.168.1.2").To4()) {
		t.Errorf("nextHop = %v, want %v (dynamic route should win)", nextHop, "192.168.1.2")
	}
}

func TestHandleIPv4ForwardsImmediatelyWhenARPCacheHit(t *testing.T) {
	t.Parallel()

	r, _, n := newTestRouter(t)
	r.AddStaticRoute(&net.IPNet{IP: net.ParseIP("172.16.0.0").To4(), Mask: net.CIDRMask(16, 32)}, net.ParseIP("10.10.1.254").To4(), mac(1))
	r.arp.HandleARP(wire.ARP{
		Operation:       wire.ARPReply,
		SenderHWAddr:    mac(50),
		SenderProtoAddr: net.ParseIP("10.10.1.254").To4(),
		TargetHWAddr:    mac(1),
		TargetProtoAddr: net.ParseIP("10.10.1.1").To4(),
	}, "eth0", r.net.Send)

	other := n.AddNode("probe", []netio.Interface{{Name: "p0", HWAddr: mac(100)}})
	n.Connect("router", "eth0", "probe", "p0")

	frame := ipv4Frame(64, net.ParseIP("172.16.254.123").To4())
	_, payload, _ := wire.DecodeEthernet(frame)
	r.handleIPv4("eth1", payload)

	recv, err := other.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error: %v, want immediate forward", err)
	}
	eth, ipFrame, err := wire.DecodeEthernet(recv.Frame)
	if err != nil {
		t.Fatalf("DecodeEthernet() error: %v", err)
	}
	if eth.Dst.String() != mac(50).String() {
		t.Errorf("Dst = %v, want resolved next-hop MAC %v", eth.Dst, mac(50))
	}
	gotIP, _, err := wire.DecodeIPv4(ipFrame)
	if err != nil {
		t.Fatalf("DecodeIPv4() error: %v", err)
	}
	if gotIP.TTL != 63 {
		t.Errorf("TTL = %d, want 63 (decremented)", gotIP.TTL)
	}
}

func TestRoutesReflectsInstalledRoutes(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)
	r.AddStaticRoute(&net.IPNet{IP: net.ParseIP("172.16.0.0").To4(), Mask: net.CIDRMask(16, 32)}, net.ParseIP("10.10.1.254").To4(), mac(1))

	routes := r.Routes()
	if len(routes) != 3 { // eth0 local, eth1 local, plus the static route
		t.Fatalf("len(Routes()) = %d, want 3", len(routes))
	}

	var sawStatic bool
	for _, e := range routes {
		if e.Prefix.String() == "172.16.0.0/16" {
			sawStatic = true
			if e.Local {
				t.Errorf("static route Local = true, want false")
			}
			if !e.NextHop.Equal(net.ParseIP("10.10.1.254").To4()) {
				t.Errorf("static route NextHop = %v, want 10.10.1.254", e.NextHop)
			}
		}
	}
	if !sawStatic {
		t.Errorf("Routes() = %+v, want an entry for 172.16.0.0/16", routes)
	}
}

func TestARPCacheReflectsResolvedEntries(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)

	if cache := r.ARPCache(); len(cache) != 0 {
		t.Fatalf("ARPCache() = %+v, want empty before any reply", cache)
	}

	r.arp.HandleARP(wire.ARP{
		Operation:       wire.ARPReply,
		SenderHWAddr:    mac(50),
		SenderProtoAddr: net.ParseIP("10.10.1.254").To4(),
		TargetHWAddr:    mac(1),
		TargetProtoAddr: net.ParseIP("10.10.1.1").To4(),
	}, "eth0", r.net.Send)

	cache := r.ARPCache()
	got, ok := cache["10.10.1.254"]
	if !ok {
		t.Fatalf("ARPCache() = %+v, want an entry for 10.10.1.254", cache)
	}
	if got.String() != mac(50).String() {
		t.Errorf("ARPCache()[10.10.1.254] = %v, want %v", got, mac(50))
	}
}

func TestLocalARPEntriesReflectsInterfaceAddresses(t *testing.T) {
	t.Parallel()

	r, _, _ := newTestRouter(t)

	local := r.LocalARPEntries()
	if len(local) != 2 {
		t.Fatalf("LocalARPEntries() = %+v, want 2 entries (one per interface)", local)
	}
	got, ok := local["10.10.1.1"]
	if !ok {
		t.Fatalf("LocalARPEntries() = %+v, want an entry for 10.10.1.1", local)
	}
	if got.String() != mac(1).String() {
		t.Errorf("LocalARPEntries()[10.10.1.1] = %v, want %v", got, mac(1))
	}
}
