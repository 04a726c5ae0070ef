// Package middlebox implements the lossy, delaying relay sitting between
// blaster and blastee described in spec §4.9: Bernoulli packet drop and
// Gaussian delay on the blaster-facing port, a TTL guard, and unconditional
// Ethernet-header rewriting on forward.
package middlebox

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"net"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

// Params is the middlebox's whitespace-delimited params-file configuration
// (spec §4.9, §6): pseudorandom seed, drop probability (percent, 0-100),
// and Gaussian delay parameters in milliseconds.
type Params struct {
	Seed        int64
	DropPct     int
	DelayMeanMs float64
	DelayStdMs  float64
}

// Port describes one of the middlebox's two interfaces and the neighbor it
// forwards toward.
type Port struct {
	Name    string
	MAC     net.HardwareAddr
	NextHop net.HardwareAddr // the neighbor's Ethernet address for egress rewriting
}

const recvTimeout = time.Second

// Middlebox relays frames between a blaster-facing port and a
// blastee-facing port, impairing only the blaster->blastee direction.
type Middlebox struct {
	blasterPort Port
	blasteePort Port

	rng     *rand.Rand
	dropPct int
	meanMs  float64
	stdMs   float64

	sleep func(time.Duration)
	log   *slog.Logger
}

// New constructs a Middlebox. sleep, if nil, defaults to time.Sleep; tests
// inject a no-op or recording stand-in so Gaussian delay doesn't make the
// suite slow or flaky.
func New(blasterPort, blasteePort Port, params Params, sleep func(time.Duration), logger *slog.Logger) *Middlebox {
	if logger == nil {
		logger = slog.Default()
	}
	if sleep == nil {
		sleep = time.Sleep
	}
	return &Middlebox{
		blasterPort: blasterPort,
		blasteePort: blasteePort,
		rng:         rand.New(rand.NewSource(params.Seed)),
		dropPct:     params.DropPct,
		meanMs:      params.DelayMeanMs,
		stdMs:       params.DelayStdMs,
		sleep:       sleep,
		log:         logger.With("component", "middlebox"),
	}
}

// HandleFrame processes one frame received on inPort.
func (m *Middlebox) HandleFrame(inPort string, frame []byte, send func(port string, frame []byte) error) {
	eth, ipv4Frame, err := wire.DecodeEthernet(frame)
	if err != nil {
		m.log.Debug("dropped malformed frame", "port", inPort, "error", err)
		return
	}
	if eth.EtherType != wire.EtherTypeIPv4 {
		m.log.Debug("dropping non-IPv4 packet", "port", inPort)
		return
	}
	h, _, err := wire.DecodeIPv4(ipv4Frame)
	if err != nil {
		m.log.Debug("dropped malformed IPv4 header", "port", inPort, "error", err)
		return
	}
	if h.TTL <= 1 {
		m.log.Debug("dropping packet, ttl reached", "port", inPort)
		return
	}

	switch inPort {
	case m.blasterPort.Name:
		m.handleFromBlaster(ipv4Frame, send)
	case m.blasteePort.Name:
		m.handleFromBlastee(ipv4Frame, send)
	default:
		m.log.Debug("received frame on unrecognized port", "port", inPort)
	}
}

func (m *Middlebox) handleFromBlaster(ipv4Frame []byte, send func(port string, frame []byte) error) {
	if m.bernoulliDrop() {
		m.log.Debug("dropping packet")
		return
	}
	m.gaussianDelay()
	out := rewriteForEgress(ipv4Frame, m.blasteePort.MAC, m.blasteePort.NextHop)
	if err := send(m.blasteePort.Name, out); err != nil {
		m.log.Debug("failed to send packet", "port", m.blasteePort.Name, "error", err)
	}
}

// handleFromBlastee relays ACKs; never dropped, never delayed (spec §4.9).
func (m *Middlebox) handleFromBlastee(ipv4Frame []byte, send func(port string, frame []byte) error) {
	out := rewriteForEgress(ipv4Frame, m.blasterPort.MAC, m.blasterPort.NextHop)
	if err := send(m.blasterPort.Name, out); err != nil {
		m.log.Debug("failed to send packet", "port", m.blasterPort.Name, "error", err)
	}
}

func rewriteForEgress(ipv4Frame []byte, outPortMAC, nextHopMAC net.HardwareAddr) []byte {
	cp := make([]byte, len(ipv4Frame))
	copy(cp, ipv4Frame)
	wire.DecrementTTLInPlace(cp[:20])
	return wire.EncodeEthernet(wire.Ethernet{Src: outPortMAC, Dst: nextHopMAC, EtherType: wire.EtherTypeIPv4}, cp)
}

func (m *Middlebox) bernoulliDrop() bool {
	return m.rng.Intn(100) < m.dropPct
}

func (m *Middlebox) gaussianDelay() {
	d := m.rng.NormFloat64()*m.stdMs + m.meanMs
	if d > 0 {
		m.sleep(time.Duration(d * float64(time.Millisecond)))
	}
}

// Run drives the middlebox's main loop until ctx is cancelled or the
// underlying NetIO signals shutdown.
func Run(ctx context.Context, io netio.NetIO, m *Middlebox) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		recv, err := io.Recv(recvTimeout)
		switch {
		case errors.Is(err, netio.ErrNoPacket):
			continue
		case errors.Is(err, netio.ErrShutdown):
			m.log.Debug("received shutdown signal")
			return nil
		case err != nil:
			return fmt.Errorf("middlebox: recv: %w", err)
		}

		m.HandleFrame(recv.Port, recv.Frame, io.Send)
	}
}
