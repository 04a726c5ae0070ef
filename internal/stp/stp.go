// Package stp implements the distributed spanning-tree root-election and
// blocked-port maintenance engine described in spec §4.2, grounded on the
// SpanningTreeContext/emit_stm/handle_stm logic of the switch this module's
// dataplane is modeled on.
package stp

import (
	"log/slog"
	"net"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

const (
	emitInterval  = 2 * time.Second
	rootIDTimeout = 10 * time.Second
)

// Sender transmits a raw frame out a named port. Both the switch event loop
// and tests satisfy this with netio.NetIO.Send or a stand-in.
type Sender func(port string, frame []byte) error

// Engine holds one switch's spanning-tree state. Engine is not safe for
// concurrent use; the switch event loop owns one exclusively (spec §7c).
type Engine struct {
	log *slog.Logger

	myID net.HardwareAddr

	rootID        net.HardwareAddr
	hopsFromRoot  int
	rootInterface string             // "" when self-rooted
	rootSwitchID  net.HardwareAddr   // nil when self-rooted
	blocked       map[string]bool

	timeLastTx time.Time
	timeLastRx time.Time
}

// New returns an Engine that starts out self-rooted with the given switch
// id, the lexicographically smallest MAC among the switch's own interfaces
// (spec §4's "Spanning-tree context" note).
func New(myID net.HardwareAddr, log *slog.Logger) *Engine {
	e := &Engine{log: log}
	e.reset(myID)
	return e
}

func (e *Engine) reset(myID net.HardwareAddr) {
	e.myID = myID
	e.rootID = myID
	e.hopsFromRoot = 0
	e.rootInterface = ""
	e.rootSwitchID = nil
	e.blocked = make(map[string]bool)
	e.timeLastTx = time.Time{}
	e.timeLastRx = time.Time{}
	if e.log != nil {
		e.log.Debug("became root", "switch_id", e.myID)
	}
}

// AmRoot reports whether this switch currently believes itself to be root.
// AmRoot() iff root_id == my_id, and while AmRoot() holds the blocked set is
// empty; a non-root switch may also have no blocked ports.
func (e *Engine) AmRoot() bool {
	return e.rootID.String() == e.myID.String()
}

// Blocked reports whether port is currently in the blocked-port set.
func (e *Engine) Blocked(port string) bool {
	return e.blocked[port]
}

// RootID returns the currently believed root switch id.
func (e *Engine) RootID() net.HardwareAddr {
	return e.rootID
}

// BlockedPorts returns the names of every currently blocked port, in no
// particular order. Used to render status reporting.
func (e *Engine) BlockedPorts() []string {
	ports := make([]string, 0, len(e.blocked))
	for port := range e.blocked {
		ports = append(ports, port)
	}
	return ports
}

func (e *Engine) block(port string) {
	if e.AmRoot() {
		if e.log != nil {
			e.log.Debug("ignored block request while root", "port", port)
		}
		return
	}
	e.blocked[port] = true
	if e.log != nil {
		e.log.Debug("blocked port", "port", port)
	}
}

func (e *Engine) unblock(port string) {
	if e.blocked[port] {
		delete(e.blocked, port)
		if e.log != nil {
			e.log.Debug("unblocked port", "port", port)
		}
	}
}

// Emit performs the periodic spanning-tree housekeeping described in spec
// §4.2: when self-rooted and the emission interval has elapsed, broadcast a
// fresh BPDU on every interface; when non-root and no BPDU has refreshed the
// root within rootIDTimeout, reinitialize to self-root.
func (e *Engine) Emit(now time.Time, interfaces []netio.Interface, send Sender) {
	if e.AmRoot() {
		if e.timeLastTx.IsZero() || now.Sub(e.timeLastTx) >= emitInterval {
			bpdu := wire.BPDU{RootID: e.myID, HopsToRoot: 0, SwitchID: e.myID}
			for _, intf := range interfaces {
				e.sendBPDU(send, intf, bpdu)
			}
			e.timeLastTx = now
		}
		return
	}

	if e.timeLastRx.IsZero() || now.Sub(e.timeLastRx) >= rootIDTimeout {
		e.reset(e.myID)
	}
}

// Handle processes a received BPDU per spec §4.2's reception rules.
func (e *Engine) Handle(now time.Time, bpdu wire.BPDU, inPort string, interfaces []netio.Interface, send Sender) {
	e.timeLastRx = now
	advHops := bpdu.HopsToRoot + 1
	advRoot := bpdu.RootID
	advSwitch := bpdu.SwitchID

	acceptAndForward := func() {
		e.rootID = advRoot
		e.rootInterface = inPort
		e.unblock(inPort)
		e.rootSwitchID = advSwitch
		e.hopsFromRoot = int(advHops)
		forwarded := wire.BPDU{RootID: advRoot, HopsToRoot: advHops, SwitchID: e.myID}
		for _, intf := range interfaces {
			if intf.Name == inPort {
				continue
			}
			e.sendBPDU(send, intf, forwarded)
		}
	}

	if inPort == e.rootInterface || macLess(advRoot, e.rootID) {
		acceptAndForward()
		return
	}

	if macLess(e.myID, advRoot) {
		e.unblock(inPort)
		return
	}

	if advRoot.String() == e.rootID.String() {
		betterHops := int(advHops) < e.hopsFromRoot
		tiedHopsBetterSwitch := int(advHops) == e.hopsFromRoot && macLess(advSwitch, e.rootSwitchID)
		if betterHops || tiedHopsBetterSwitch {
			e.unblock(inPort)
			e.block(e.rootInterface)
			acceptAndForward()
		} else {
			e.block(inPort)
		}
	}
}

func (e *Engine) sendBPDU(send Sender, intf netio.Interface, bpdu wire.BPDU) {
	frame := wire.EncodeEthernet(wire.Ethernet{
		Dst:       wire.BroadcastMAC,
		Src:       intf.HWAddr,
		EtherType: wire.EtherTypeSlow,
	}, wire.EncodeBPDU(bpdu))
	if err := send(intf.Name, frame); err != nil && e.log != nil {
		e.log.Debug("failed to send BPDU", "port", intf.Name, "error", err)
	}
}

func macLess(a, b net.HardwareAddr) bool {
	return a.String() < b.String()
}
