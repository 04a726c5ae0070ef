package switchcore

import (
	"net"
	"testing"
	"time"

	"github.com/coursenet/dataplane/internal/netiotest"
	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

func mac(b byte) net.HardwareAddr {
	return net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, b}
}

func newTestSwitch(t *testing.T, n *netiotest.Network, name string, portMACs map[string]byte) (*Switch, *netiotest.NetIO) {
	t.Helper()
	var interfaces []netio.Interface
	for port, b := range portMACs {
		interfaces = append(interfaces, netio.Interface{Name: port, HWAddr: mac(b)})
	}
	io := n.AddNode(name, interfaces)
	sw := New(io, netio.NewManualClock(time.Unix(0, 0)), nil, nil)
	return sw, io
}

func TestHandleFrameLearnsAndForwardsUnicast(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, _ := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1, "eth1": 2})
	probe := n.AddNode("probe", []netio.Interface{{Name: "p0", HWAddr: mac(9)}})
	n.Connect("sw", "eth0", "probe", "p0")

	// A station behind eth0 (src=0xAA) has already been learned.
	sw.fib.Update(mac(0xAA), "eth0")

	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       mac(0xAA),
		Src:       mac(0xBB),
		EtherType: wire.EtherTypeIPv4,
	}, []byte("payload"))

	sw.handleFrame(netio.Received{Port: "eth1", Frame: frame})

	port, ok := sw.fib.Lookup(mac(0xBB))
	if !ok || port != "eth1" {
		t.Fatalf("fib.Lookup(0xBB) = (%q, %v), want (%q, true)", port, ok, "eth1")
	}

	recv, err := probe.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error: %v, want frame forwarded out eth0", err)
	}
	if string(recv.Frame) != string(frame) {
		t.Errorf("forwarded frame mismatch")
	}
}

func TestHandleFrameDropsForOwnMAC(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, io := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1})

	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       mac(1), // this switch's own eth0 MAC
		Src:       mac(0xBB),
		EtherType: wire.EtherTypeIPv4,
	}, []byte("payload"))

	sw.handleFrame(netio.Received{Port: "eth0", Frame: frame})

	if _, err := io.Recv(10 * time.Millisecond); err != netio.ErrNoPacket {
		t.Fatalf("expected no frame sent for own-MAC destination, got err=%v", err)
	}
}

func TestHandleFrameFloodsUnknownDestination(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, io := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1, "eth1": 2, "eth2": 3})
	other := n.AddNode("other", []netio.Interface{{Name: "p0", HWAddr: mac(9)}})
	n.Connect("sw", "eth1", "other", "p0")

	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       mac(0xCC), // unknown
		Src:       mac(0xBB),
		EtherType: wire.EtherTypeIPv4,
	}, []byte("payload"))

	sw.handleFrame(netio.Received{Port: "eth0", Frame: frame})

	recv, err := other.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error: %v", err)
	}
	if string(recv.Frame) != string(frame) {
		t.Errorf("flooded frame mismatch")
	}
	_ = io
}

func TestHandleFrameDoesNotFloodOnIngressPort(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, _ := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1})
	self := n.AddNode("probe", []netio.Interface{{Name: "p0", HWAddr: mac(9)}})
	n.Connect("sw", "eth0", "probe", "p0")

	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       mac(0xCC),
		Src:       mac(0xBB),
		EtherType: wire.EtherTypeIPv4,
	}, []byte("payload"))

	sw.handleFrame(netio.Received{Port: "eth0", Frame: frame})

	if _, err := self.Recv(10 * time.Millisecond); err != netio.ErrNoPacket {
		t.Fatalf("expected no flood back on ingress port, got err=%v", err)
	}
}

func TestHandleFrameDispatchesBPDUWithoutDataForward(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, _ := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1, "eth1": 2})
	peer := n.AddNode("peer", []netio.Interface{{Name: "p0", HWAddr: mac(9)}})
	n.Connect("sw", "eth1", "peer", "p0")

	bpdu := wire.BPDU{RootID: mac(0), HopsToRoot: 0, SwitchID: mac(0)}
	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       wire.BroadcastMAC,
		Src:       mac(5),
		EtherType: wire.EtherTypeSlow,
	}, wire.EncodeBPDU(bpdu))

	sw.handleFrame(netio.Received{Port: "eth0", Frame: frame})

	if sw.fib.Contains(mac(5)) {
		t.Errorf("BPDU source should not be learned into the data-plane FIB")
	}
	// mac(0) < mac(1), so sw should have accepted the better root and be
	// non-root now, forwarding the BPDU out eth1.
	if sw.stp.AmRoot() {
		t.Fatalf("AmRoot() = true, want false after accepting a better root via BPDU")
	}

	recv, err := peer.Recv(time.Second)
	if err != nil {
		t.Fatalf("Recv() error: %v, want forwarded BPDU on eth1", err)
	}
	if _, payload, err := wire.DecodeEthernet(recv.Frame); err != nil || len(payload) == 0 {
		t.Errorf("forwarded frame did not decode as a BPDU: %v", err)
	}
}

func TestFIBEntriesReflectsLearnedState(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, _ := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1, "eth1": 2})

	sw.fib.Update(mac(0xAA), "eth0")
	sw.fib.Update(mac(0xBB), "eth1")

	entries := sw.FIBEntries()
	if got := entries[mac(0xAA).String()]; got != "eth0" {
		t.Errorf("FIBEntries()[%v] = %q, want %q", mac(0xAA), got, "eth0")
	}
	if got := entries[mac(0xBB).String()]; got != "eth1" {
		t.Errorf("FIBEntries()[%v] = %q, want %q", mac(0xBB), got, "eth1")
	}
}

func TestSTPStatusReflectsRootElectionAndBlockedPorts(t *testing.T) {
	t.Parallel()

	n := netiotest.NewNetwork(netio.NewManualClock(time.Unix(0, 0)))
	sw, _ := newTestSwitch(t, n, "sw", map[string]byte{"eth0": 1, "eth1": 2})

	if rootID, amRoot, blocked := sw.STPStatus(); rootID != mac(1).String() || !amRoot || len(blocked) != 0 {
		t.Fatalf("STPStatus() = (%q, %v, %v), want self-rooted with no blocked ports", rootID, amRoot, blocked)
	}

	bpdu := wire.BPDU{RootID: mac(0), HopsToRoot: 0, SwitchID: mac(0)}
	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       wire.BroadcastMAC,
		Src:       mac(9),
		EtherType: wire.EtherTypeSlow,
	}, wire.EncodeBPDU(bpdu))

	sw.handleFrame(netio.Received{Port: "eth0", Frame: frame})

	rootID, amRoot, _ := sw.STPStatus()
	if amRoot {
		t.Errorf("STPStatus() amRoot = true, want false after accepting a better root")
	}
	if rootID != mac(0).String() {
		t.Errorf("STPStatus() rootID = %q, want %q", rootID, mac(0).String())
	}
}
