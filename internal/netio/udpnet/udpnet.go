// Package udpnet implements netio.NetIO over loopback UDP sockets, so the
// CLI binaries in cmd/* can be run as independent OS processes talking to
// each other on 127.0.0.1 instead of only inside the in-memory
// internal/netiotest fake. One UDP socket is bound per interface; Topology
// links are resolved to a fixed local/remote port pair ahead of time (see
// topology.go in this package) — one dedicated connection per peer rather
// than one shared socket multiplexing every remote.
package udpnet

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
)

// Endpoint is one interface's loopback binding: the local address this
// node's socket listens on, and the remote address frames are sent to.
type Endpoint struct {
	LocalAddr  string
	RemoteAddr string
}

type boundPort struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

// NetIO implements netio.NetIO over loopback UDP sockets, one per
// interface.
type NetIO struct {
	mu         sync.RWMutex
	interfaces []netio.Interface
	ports      map[string]*boundPort

	recvCh    chan netio.Received
	closeCh   chan struct{}
	closeOnce sync.Once

	log *slog.Logger
}

// New binds one UDP socket per interface in interfaces, using the
// LocalAddr/RemoteAddr pair endpoints[interface.Name] supplies, and starts
// a receive goroutine per socket feeding the shared Recv queue.
func New(interfaces []netio.Interface, endpoints map[string]Endpoint, logger *slog.Logger) (*NetIO, error) {
	if logger == nil {
		logger = slog.Default()
	}
	n := &NetIO{
		interfaces: interfaces,
		ports:      make(map[string]*boundPort, len(interfaces)),
		recvCh:     make(chan netio.Received, 256),
		closeCh:    make(chan struct{}),
		log:        logger.With("component", "udpnet"),
	}

	for _, intf := range interfaces {
		ep, ok := endpoints[intf.Name]
		if !ok {
			n.closeBound()
			return nil, fmt.Errorf("udpnet: no endpoint configured for interface %q", intf.Name)
		}

		localAddr, err := net.ResolveUDPAddr("udp", ep.LocalAddr)
		if err != nil {
			n.closeBound()
			return nil, fmt.Errorf("udpnet: resolving local addr %q for %q: %w", ep.LocalAddr, intf.Name, err)
		}
		remoteAddr, err := net.ResolveUDPAddr("udp", ep.RemoteAddr)
		if err != nil {
			n.closeBound()
			return nil, fmt.Errorf("udpnet: resolving remote addr %q for %q: %w", ep.RemoteAddr, intf.Name, err)
		}
		conn, err := net.ListenUDP("udp", localAddr)
		if err != nil {
			n.closeBound()
			return nil, fmt.Errorf("udpnet: binding %q on %s: %w", intf.Name, ep.LocalAddr, err)
		}

		n.ports[intf.Name] = &boundPort{conn: conn, peer: remoteAddr}
		go n.recvLoop(intf.Name, conn)
	}

	return n, nil
}

func (n *NetIO) closeBound() {
	n.mu.Lock()
	defer n.mu.Unlock()
	for _, p := range n.ports {
		p.conn.Close()
	}
}

func (n *NetIO) recvLoop(port string, conn *net.UDPConn) {
	buf := make([]byte, 65535)
	for {
		size, _, err := conn.ReadFromUDP(buf)
		if err != nil {
			// Closed by Close(): stop quietly.
			return
		}
		frame := make([]byte, size)
		copy(frame, buf[:size])

		select {
		case n.recvCh <- netio.Received{Timestamp: time.Now(), Port: port, Frame: frame}:
		case <-n.closeCh:
			return
		default:
			n.log.Debug("dropping frame, receive buffer full", "port", port)
		}
	}
}

func (n *NetIO) Interfaces() []netio.Interface {
	return n.interfaces
}

func (n *NetIO) InterfaceByName(name string) (netio.Interface, bool) {
	for _, intf := range n.interfaces {
		if intf.Name == name {
			return intf, true
		}
	}
	return netio.Interface{}, false
}

func (n *NetIO) InterfaceByMAC(mac net.HardwareAddr) (netio.Interface, bool) {
	for _, intf := range n.interfaces {
		if intf.HWAddr.String() == mac.String() {
			return intf, true
		}
	}
	return netio.Interface{}, false
}

func (n *NetIO) Recv(timeout time.Duration) (netio.Received, error) {
	select {
	case r := <-n.recvCh:
		return r, nil
	case <-n.closeCh:
		return netio.Received{}, netio.ErrShutdown
	case <-time.After(timeout):
		return netio.Received{}, netio.ErrNoPacket
	}
}

func (n *NetIO) Send(port string, frame []byte) error {
	n.mu.RLock()
	p, ok := n.ports[port]
	n.mu.RUnlock()
	if !ok {
		return fmt.Errorf("udpnet: unknown port %q", port)
	}
	if _, err := p.conn.WriteToUDP(frame, p.peer); err != nil {
		return fmt.Errorf("udpnet: send on %q: %w", port, err)
	}
	return nil
}

// Close shuts down every bound socket and unblocks any pending Recv with
// netio.ErrShutdown.
func (n *NetIO) Close() error {
	n.closeOnce.Do(func() {
		close(n.closeCh)
	})

	n.mu.Lock()
	defer n.mu.Unlock()
	var firstErr error
	for _, p := range n.ports {
		if err := p.conn.Close(); err != nil && firstErr == nil && !errors.Is(err, net.ErrClosed) {
			firstErr = err
		}
	}
	return firstErr
}
