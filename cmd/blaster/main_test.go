package main

import (
	"net"
	"testing"
	"time"

	"github.com/coursenet/dataplane/internal/blast"
	"github.com/coursenet/dataplane/internal/control"
	"github.com/coursenet/dataplane/internal/topology"
	"github.com/coursenet/dataplane/pkg/netio"
)

func mac(b byte) net.HardwareAddr {
	return net.HardwareAddr{0, 0, 0, 0, 0, b}
}

func sampleTopo(t *testing.T) *topology.Topology {
	t.Helper()
	topo, err := topology.Parse(`
[[node]]
name = "blaster1"
role = "blaster"

  [[node.interface]]
  name = "eth0"
  mac = "02:00:00:00:00:01"
  ip = "192.168.100.1"
  netmask = "255.255.255.0"

[[node]]
name = "mb1"
role = "middlebox"

  [[node.interface]]
  name = "eth0"
  mac = "02:00:00:00:00:02"

[[link]]
a = "blaster1:eth0"
b = "mb1:eth0"
`)
	if err != nil {
		t.Fatalf("topology.Parse() error: %v", err)
	}
	return topo
}

func TestBlasterLinkResolvesPeerMAC(t *testing.T) {
	t.Parallel()

	topo := sampleTopo(t)
	intf, targetMAC, err := blasterLink(topo, "blaster1")
	if err != nil {
		t.Fatalf("blasterLink() error: %v", err)
	}
	if intf.Name != "eth0" {
		t.Errorf("intf.Name = %q, want %q", intf.Name, "eth0")
	}
	if targetMAC.String() != "02:00:00:00:00:02" {
		t.Errorf("targetMAC = %v, want the middlebox's MAC", targetMAC)
	}
}

func TestBlasterLinkRejectsUnlinkedNode(t *testing.T) {
	t.Parallel()

	topo, err := topology.Parse(`
[[node]]
name = "lonely"
role = "blaster"

  [[node.interface]]
  name = "eth0"
  mac = "02:00:00:00:00:09"
`)
	if err != nil {
		t.Fatalf("topology.Parse() error: %v", err)
	}

	if _, _, err := blasterLink(topo, "lonely"); err == nil {
		t.Fatalf("blasterLink() error = nil, want error for a node with no link")
	}
}

func TestBlastStatusReflectsWindowAndMetrics(t *testing.T) {
	t.Parallel()

	cfg := blast.SenderConfig{
		BlasteeIP:      net.ParseIP("192.168.200.1").To4(),
		TotalPackets:   5,
		LengthPerBlast: 4,
		WindowSize:     2,
		EstRTTMs:       50,
		RecvTimeoutMs:  100,
		EWMAAlpha:      0.2,
	}
	intf := netio.Interface{Name: "eth0", HWAddr: mac(1), IP: net.ParseIP("192.168.100.1").To4()}
	s := blast.NewSender(cfg, intf, mac(2), nil)

	s.Blast(time.Unix(0, 0), func([]byte) error { return nil })

	status := blastStatus("blaster1", time.Unix(0, 0), s)
	if status.Node != "blaster1" || status.Role != "blaster" {
		t.Fatalf("status = %+v, want Node=blaster1 Role=blaster", status)
	}
	detail, ok := status.Detail.(control.BlastDetail)
	if !ok {
		t.Fatalf("Detail = %T, want control.BlastDetail", status.Detail)
	}
	if detail.LHS != 1 || detail.RHS != 3 {
		t.Errorf("LHS/RHS = %d/%d, want 1/3 after one Blast with window 2", detail.LHS, detail.RHS)
	}
	if detail.Done {
		t.Errorf("Done = true, want false (only 2 of 5 packets sent)")
	}
}
