// Package switchcore is the top-level orchestrator for the learning-switch
// dataplane: it ties together the spanning-tree engine, the MAC-learning
// FIB, and a netio.NetIO to run the event loop described in spec §4.3.
package switchcore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sort"
	"time"

	"github.com/coursenet/dataplane/internal/fib"
	"github.com/coursenet/dataplane/internal/stp"
	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

const (
	// fibCapacity bounds the MAC-learning table (spec §7c resource bounds).
	fibCapacity = 5
	recvTimeout = time.Second
)

// Switch orchestrates the spanning-tree-aware learning switch over a
// netio.NetIO.
type Switch struct {
	net netio.NetIO
	clk netio.Clock
	log *slog.Logger

	interfaces []netio.Interface
	ownMACs    map[string]bool

	fib *fib.Table
	stp *stp.Engine
}

// New constructs a Switch. myID, if nil, is derived as the lexicographically
// smallest MAC of io's interfaces, per spec §4's context note.
func New(io netio.NetIO, clk netio.Clock, logger *slog.Logger, myID net.HardwareAddr) *Switch {
	if logger == nil {
		logger = slog.Default()
	}
	interfaces := io.Interfaces()

	if myID == nil {
		myID = smallestMAC(interfaces)
	}

	ownMACs := make(map[string]bool, len(interfaces))
	for _, intf := range interfaces {
		ownMACs[intf.HWAddr.String()] = true
	}

	return &Switch{
		net:        io,
		clk:        clk,
		log:        logger.With("component", "switch"),
		interfaces: interfaces,
		ownMACs:    ownMACs,
		fib:        fib.New(fibCapacity),
		stp:        stp.New(myID, logger.With("component", "stp")),
	}
}

// FIBEntries returns the switch's currently learned MAC-to-port
// associations, for status reporting.
func (s *Switch) FIBEntries() map[string]string {
	return s.fib.Entries()
}

// STPStatus returns the switch's currently believed root id, whether it
// considers itself root, and its blocked ports, for status reporting.
func (s *Switch) STPStatus() (rootID string, amRoot bool, blocked []string) {
	return s.stp.RootID().String(), s.stp.AmRoot(), s.stp.BlockedPorts()
}

func smallestMAC(interfaces []netio.Interface) net.HardwareAddr {
	macs := make([]net.HardwareAddr, len(interfaces))
	for i, intf := range interfaces {
		macs[i] = intf.HWAddr
	}
	sort.Slice(macs, func(i, j int) bool { return macs[i].String() < macs[j].String() })
	return macs[0]
}

// Run executes the switch's event loop until ctx is cancelled or the
// underlying NetIO signals shutdown.
func (s *Switch) Run(ctx context.Context) error {
	s.log.Debug("starting switch event loop", "interfaces", len(s.interfaces))

	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		s.stp.Emit(s.clk.Now(), s.interfaces, s.net.Send)

		recv, err := s.net.Recv(recvTimeout)
		switch {
		case errors.Is(err, netio.ErrNoPacket):
			continue
		case errors.Is(err, netio.ErrShutdown):
			s.log.Debug("received shutdown signal")
			return nil
		case err != nil:
			return fmt.Errorf("switch: recv: %w", err)
		}

		s.handleFrame(recv)
	}
}

func (s *Switch) handleFrame(recv netio.Received) {
	eth, payload, err := wire.DecodeEthernet(recv.Frame)
	if err != nil {
		s.log.Debug("dropped malformed frame", "port", recv.Port, "error", err)
		return
	}

	if eth.EtherType == wire.EtherTypeSlow {
		bpdu, err := wire.DecodeBPDU(payload)
		if err != nil {
			s.log.Debug("dropped malformed BPDU", "port", recv.Port, "error", err)
			return
		}
		s.stp.Handle(s.clk.Now(), bpdu, recv.Port, s.interfaces, s.net.Send)
		return
	}

	s.fib.Update(eth.Src, recv.Port)

	if s.ownMACs[eth.Dst.String()] {
		return
	}

	if port, ok := s.fib.Lookup(eth.Dst); ok {
		if err := s.net.Send(port, recv.Frame); err != nil {
			s.log.Debug("failed to forward frame", "port", port, "error", err)
		}
		return
	}

	s.flood(recv)
}

func (s *Switch) flood(recv netio.Received) {
	for _, intf := range s.interfaces {
		if intf.Name == recv.Port || s.stp.Blocked(intf.Name) {
			continue
		}
		if err := s.net.Send(intf.Name, recv.Frame); err != nil {
			s.log.Debug("failed to flood frame", "port", intf.Name, "error", err)
		}
	}
}
