package main

import (
	"testing"

	"github.com/coursenet/dataplane/internal/topology"
)

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

  [[node.interface]]
  name = "eth1"
  mac = "02:00:00:00:00:03"

[[node]]
name = "blastee1"
role = "blastee"

  [[node.interface]]
  name = "eth0"
  mac = "02:00:00:00:00:04"
  ip = "192.168.200.1"
  netmask = "255.255.255.0"

[[link]]
a = "blaster1:eth0"
b = "mb1:eth0"

[[link]]
a = "mb1:eth1"
b = "blastee1:eth0"
`)
	if err != nil {
		t.Fatalf("topology.Parse() error: %v", err)
	}
	return topo
}

func TestBlasteeLinkDerivesPeerMACAndBlasterIP(t *testing.T) {
	t.Parallel()

	topo := sampleTopo(t)
	intf, targetMAC, blasterIP, err := blasteeLink(topo, "blastee1")
	if err != nil {
		t.Fatalf("blasteeLink() error: %v", err)
	}
	if intf.Name != "eth0" {
		t.Errorf("intf.Name = %q, want %q", intf.Name, "eth0")
	}
	if targetMAC.String() != "02:00:00:00:00:03" {
		t.Errorf("targetMAC = %v, want the middlebox's blastee-facing MAC", targetMAC)
	}
	if blasterIP.String() != "192.168.100.1" {
		t.Errorf("blasterIP = %v, want 192.168.100.1", blasterIP)
	}
}

func TestBlasteeLinkRejectsMissingBlaster(t *testing.T) {
	t.Parallel()

	topo, err := topology.Parse(`
[[node]]
name = "blastee1"
role = "blastee"

  [[node.interface]]
  name = "eth0"
  mac = "02:00:00:00:00:04"

[[node]]
name = "mb1"
role = "middlebox"

  [[node.interface]]
  name = "eth0"
  mac = "02:00:00:00:00:02"

[[link]]
a = "blastee1:eth0"
b = "mb1:eth0"
`)
	if err != nil {
		t.Fatalf("topology.Parse() error: %v", err)
	}

	if _, _, _, err := blasteeLink(topo, "blastee1"); err == nil {
		t.Fatalf("blasteeLink() error = nil, want error when no node has role \"blaster\"")
	}
}
