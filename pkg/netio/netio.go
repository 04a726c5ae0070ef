// Package netio defines the façade that every dataplane event loop in this
// module is built against: enumerate interfaces, receive a frame with a
// bounded timeout, send a frame on a named port. Raw frame I/O on a real
// host interface is out of scope for this module (see SPEC_FULL.md); the
// concrete implementations live in internal/netiotest (in-memory, for
// tests) and internal/netio/udpnet (loopback UDP, for running binaries as
// OS processes against each other).
package netio

import (
	"errors"
	"net"
	"strconv"
	"time"
)

// ErrNoPacket is returned by NetIO.Recv when the timeout elapses with no
// frame delivered.
var ErrNoPacket = errors.New("netio: no packet available")

// ErrShutdown is returned by NetIO.Recv once the underlying node has been
// asked to shut down. The event loop should break its main loop on this
// error, not retry.
var ErrShutdown = errors.New("netio: shutdown")

// Interface describes one of a node's network-facing ports.
type Interface struct {
	Name    string
	HWAddr  net.HardwareAddr
	IP      net.IP     // nil if the interface has no IPv4 address
	Netmask net.IPMask // nil if IP is nil
}

// String formats the interface for logging.
func (i Interface) String() string {
	if i.IP == nil {
		return i.Name + " (" + i.HWAddr.String() + ")"
	}
	ones, _ := i.Netmask.Size()
	return i.Name + " (" + i.HWAddr.String() + ", " + i.IP.String() + "/" + strconv.Itoa(ones) + ")"
}

// Received is one frame delivered by Recv, tagged with its arrival time and
// ingress port name.
type Received struct {
	Timestamp time.Time
	Port      string
	Frame     []byte
}

// NetIO is the façade every event loop in this module depends on.
// Implementations need not be safe for concurrent use; every node in this
// module is a single-threaded event loop (spec §5).
type NetIO interface {
	// Interfaces returns the node's configured interfaces, in a stable order.
	Interfaces() []Interface

	// InterfaceByName looks up an interface by its port name.
	InterfaceByName(name string) (Interface, bool)

	// InterfaceByMAC looks up the interface owning the given hardware address.
	InterfaceByMAC(mac net.HardwareAddr) (Interface, bool)

	// Recv blocks for at most timeout waiting for one frame. It returns
	// ErrNoPacket on timeout and ErrShutdown once the node has been asked
	// to stop.
	Recv(timeout time.Duration) (Received, error)

	// Send transmits frame on the named port. A failure is reported to the
	// caller but is never fatal to the event loop (spec §7a).
	Send(port string, frame []byte) error
}
