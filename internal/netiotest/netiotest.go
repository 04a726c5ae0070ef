// Package netiotest provides an in-memory netio.NetIO fake for wiring
// multiple nodes (switches, routers, blaster/blastee, middleboxes) into a
// topology inside a test, without any real socket or process boundary.
package netiotest

import (
	"net"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
)

type endpoint struct {
	node string
	port string
}

// Network is a shared switchboard that a set of NetIO fakes send frames
// through. The zero value is not usable; use NewNetwork.
type Network struct {
	clk   netio.Clock
	nodes map[string]*NetIO
	links map[endpoint]endpoint
}

// NewNetwork returns an empty Network whose Recv calls report arrival times
// from clk.
func NewNetwork(clk netio.Clock) *Network {
	return &Network{
		clk:   clk,
		nodes: make(map[string]*NetIO),
		links: make(map[endpoint]endpoint),
	}
}

// AddNode registers a new node named name with the given interfaces and
// returns its NetIO.
func (n *Network) AddNode(name string, interfaces []netio.Interface) *NetIO {
	io := &NetIO{
		name:       name,
		interfaces: interfaces,
		network:    n,
		recvCh:     make(chan netio.Received, 64),
		shutdownCh: make(chan struct{}),
	}
	n.nodes[name] = io
	return io
}

// Connect wires nodeA's port portA to nodeB's port portB, bidirectionally: a
// frame sent on one arrives on the other.
func (n *Network) Connect(nodeA, portA, nodeB, portB string) {
	a := endpoint{nodeA, portA}
	b := endpoint{nodeB, portB}
	n.links[a] = b
	n.links[b] = a
}

// Shutdown causes every node's Recv to return netio.ErrShutdown.
func (n *Network) Shutdown() {
	for _, io := range n.nodes {
		close(io.shutdownCh)
	}
}

// NetIO is one node's view of a Network.
type NetIO struct {
	name       string
	interfaces []netio.Interface
	network    *Network
	recvCh     chan netio.Received
	shutdownCh chan struct{}
}

func (io *NetIO) Interfaces() []netio.Interface {
	return io.interfaces
}

func (io *NetIO) InterfaceByName(name string) (netio.Interface, bool) {
	for _, intf := range io.interfaces {
		if intf.Name == name {
			return intf, true
		}
	}
	return netio.Interface{}, false
}

func (io *NetIO) InterfaceByMAC(mac net.HardwareAddr) (netio.Interface, bool) {
	for _, intf := range io.interfaces {
		if intf.HWAddr.String() == mac.String() {
			return intf, true
		}
	}
	return netio.Interface{}, false
}

func (io *NetIO) Recv(timeout time.Duration) (netio.Received, error) {
	select {
	case r := <-io.recvCh:
		return r, nil
	case <-io.shutdownCh:
		return netio.Received{}, netio.ErrShutdown
	case <-time.After(timeout):
		return netio.Received{}, netio.ErrNoPacket
	}
}

func (io *NetIO) Send(port string, frame []byte) error {
	dst, ok := io.network.links[endpoint{io.name, port}]
	if !ok {
		// An unconnected port silently swallows the frame, matching a real
		// dangling cable: spec §7a treats send failures as non-fatal.
		return nil
	}
	peer := io.network.nodes[dst.node]

	cp := make([]byte, len(frame))
	copy(cp, frame)

	select {
	case peer.recvCh <- netio.Received{Timestamp: io.network.clk.Now(), Port: dst.port, Frame: cp}:
	default:
		// Receiver's inbox is full; drop, as a real NIC would under
		// overload.
	}
	return nil
}
