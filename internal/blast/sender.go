// Package blast implements the reliable sender ("blaster") and receiver
// ("blastee") pair described in spec §4.7–§4.8: a sliding-window sender with
// EWMA RTT estimation and coarse retransmit, and a stateless per-frame ACK
// responder.
package blast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

// Fixed UDP ports for the blaster/blastee control stream (spec §4.8's
// Ethernet/IPv4/UDP/seq/ack framing names no port values, so these are
// pinned constants rather than a params-file field).
const (
	blasterUDPPort uint16 = 4444
	blasteeUDPPort uint16 = 5555
)

// SenderConfig is the blaster's whitespace-delimited params-file
// configuration (spec §4.7, §6).
type SenderConfig struct {
	BlasteeIP      net.IP
	TotalPackets   int
	LengthPerBlast int
	WindowSize     int
	EstRTTMs       float64
	RecvTimeoutMs  int
	EWMAAlpha      float64
}

type windowSlot struct {
	valid     bool
	acked     bool
	tsInitial time.Time
	tsLast    time.Time
}

// Metrics accumulates the blaster's run-time statistics, printed at
// termination (spec §4.7).
type Metrics struct {
	FirstSentTime         time.Time
	LastAckTime           time.Time
	TotalRetrans          int
	NumTimeouts           int
	TotalPayloadBytesSent int
	MinRTTMs              float64
	MaxRTTMs              float64
	haveMinMax            bool

	// ThroughputBps and GoodputBps are derived at snapshot time from
	// TotalTxSeconds; GoodputBps uses the ideal (no-retransmit) byte count.
	TotalTxSeconds float64
	ThroughputBps  float64
	GoodputBps     float64
	FinalEstRTTMs  float64
	FinalTimeoutMs float64
}

// Sender is a single-interface reliable sender. A Sender is not safe for
// concurrent use; the blaster event loop owns one exclusively.
type Sender struct {
	net net.HardwareAddr // blaster interface MAC
	ip  net.IP           // blaster interface IP

	targetMAC net.HardwareAddr // the next hop's MAC, fixed at construction

	cfg       SenderConfig
	timeoutMs float64

	window []windowSlot
	lhs    int
	rhs    int

	metrics Metrics

	log *slog.Logger
}

// NewSender constructs a Sender bound to intf, sending to targetMAC.
func NewSender(cfg SenderConfig, intf netio.Interface, targetMAC net.HardwareAddr, logger *slog.Logger) *Sender {
	if logger == nil {
		logger = slog.Default()
	}
	return &Sender{
		net:       intf.HWAddr,
		ip:        intf.IP,
		targetMAC: targetMAC,
		cfg:       cfg,
		timeoutMs: 2 * cfg.EstRTTMs,
		window:    make([]windowSlot, cfg.WindowSize),
		lhs:       1,
		rhs:       1,
		log:       logger.With("component", "blaster"),
	}
}

// ShouldStop reports whether every packet has been sent and acknowledged.
func (s *Sender) ShouldStop() bool {
	return s.rhs > s.cfg.TotalPackets && s.lhs == s.rhs
}

// ReblastUnacked resends any in-flight, unacknowledged packet whose
// retransmit timer has expired. ts_initial is deliberately left untouched so
// a packet's eventual ACK still yields a true end-to-end RTT (spec §4.7,
// §9).
func (s *Sender) ReblastUnacked(now time.Time, send func(frame []byte) error) {
	for offset := 0; offset < s.rhs-s.lhs; offset++ {
		seq := s.lhs + offset
		slot := &s.window[seq%s.cfg.WindowSize]
		if slot.acked {
			continue
		}
		if now.Sub(slot.tsLast).Seconds()*1000 > s.timeoutMs {
			s.sendSeq(seq, now, send)
			slot.tsLast = now
			s.metrics.TotalRetrans++
			s.metrics.NumTimeouts++
			s.log.Debug("retransmitted", "seq", seq)
		}
	}
}

// Blast fills the open window with fresh packets, up to TotalPackets.
func (s *Sender) Blast(now time.Time, send func(frame []byte) error) {
	available := s.cfg.WindowSize - (s.rhs - s.lhs)
	for i := 0; i < available; i++ {
		if s.rhs > s.cfg.TotalPackets {
			return
		}
		s.sendSeq(s.rhs, now, send)
		s.window[s.rhs%s.cfg.WindowSize] = windowSlot{valid: true, tsInitial: now, tsLast: now}
		s.rhs++
	}
}

func (s *Sender) sendSeq(seq int, now time.Time, send func(frame []byte) error) {
	payload := wire.EncodeBlastPayload(wire.BlastPayload{Seq: uint32(seq), Length: uint16(s.cfg.LengthPerBlast)})
	udp := wire.EncodeUDP(wire.UDP{SrcPort: blasterUDPPort, DstPort: blasteeUDPPort}, payload)
	ipv4 := wire.EncodeIPv4(wire.IPv4{TTL: 64, Protocol: wire.IPProtocolUDP, Src: s.ip, Dst: s.cfg.BlasteeIP}, udp)
	frame := wire.EncodeEthernet(wire.Ethernet{Dst: s.targetMAC, Src: s.net, EtherType: wire.EtherTypeIPv4}, ipv4)

	if err := send(frame); err != nil {
		s.log.Debug("failed to send packet", "seq", seq, "error", err)
		return
	}
	s.metrics.TotalPayloadBytesSent += s.cfg.LengthPerBlast
	if s.metrics.FirstSentTime.IsZero() {
		s.metrics.FirstSentTime = now
	}
}

// ProcessACK absorbs one received ACK payload.
func (s *Sender) ProcessACK(frame []byte, now time.Time) {
	_, payload, err := wire.DecodeEthernet(frame)
	if err != nil {
		return
	}
	_, ipPayload, err := wire.DecodeIPv4(payload)
	if err != nil {
		return
	}
	_, udpPayload, err := wire.DecodeUDP(ipPayload)
	if err != nil {
		return
	}
	seq, err := wire.DecodeAckPayload(udpPayload)
	if err != nil {
		s.log.Debug("ignored packet of unknown type")
		return
	}

	seqInt := int(seq)
	if seqInt < s.lhs || seqInt >= s.rhs {
		s.log.Debug("ignored out-of-bound ACK", "seq", seqInt)
		return
	}

	slot := &s.window[seqInt%s.cfg.WindowSize]
	slot.acked = true
	s.metrics.LastAckTime = now

	rttMs := now.Sub(slot.tsInitial).Seconds() * 1000
	if !s.metrics.haveMinMax || rttMs < s.metrics.MinRTTMs {
		s.metrics.MinRTTMs = rttMs
	}
	if !s.metrics.haveMinMax || rttMs > s.metrics.MaxRTTMs {
		s.metrics.MaxRTTMs = rttMs
	}
	s.metrics.haveMinMax = true

	s.cfg.EstRTTMs = (1-s.cfg.EWMAAlpha)*s.cfg.EstRTTMs + s.cfg.EWMAAlpha*rttMs
	s.timeoutMs = 2 * s.cfg.EstRTTMs
}

// AdvanceLHS moves the left edge of the window past every contiguously
// acknowledged slot.
func (s *Sender) AdvanceLHS() {
	for s.lhs < s.rhs && s.window[s.lhs%s.cfg.WindowSize].acked {
		s.lhs++
	}
}

// MetricsSnapshot returns a snapshot of the sender's run-time statistics,
// including the throughput/goodput/final-estimate figures that
// print_metrics reports at termination (spec §4.7).
func (s *Sender) MetricsSnapshot() Metrics {
	m := s.metrics
	m.FinalEstRTTMs = s.cfg.EstRTTMs
	m.FinalTimeoutMs = s.timeoutMs

	if !m.FirstSentTime.IsZero() && !m.LastAckTime.IsZero() {
		m.TotalTxSeconds = m.LastAckTime.Sub(m.FirstSentTime).Seconds()
	}
	if m.TotalTxSeconds > 0 {
		m.ThroughputBps = float64(m.TotalPayloadBytesSent) / m.TotalTxSeconds
		m.GoodputBps = float64(s.cfg.TotalPackets*s.cfg.LengthPerBlast) / m.TotalTxSeconds
	}
	return m
}

// Window returns the current sliding-window edges and the live estimated
// RTT, for status reporting.
func (s *Sender) Window() (lhs, rhs int, estRTTMs float64) {
	return s.lhs, s.rhs, s.cfg.EstRTTMs
}

// Run drives the blaster's main loop (spec §4.7) until it finishes sending
// and acknowledging every packet, or the underlying NetIO signals shutdown.
func Run(ctx context.Context, io netio.NetIO, clk netio.Clock, s *Sender) (Metrics, error) {
	interfaces := io.Interfaces()
	if len(interfaces) != 1 {
		return Metrics{}, fmt.Errorf("blast: blaster must have exactly one interface, got %d", len(interfaces))
	}

	recvTimeout := time.Duration(s.cfg.RecvTimeoutMs) * time.Millisecond

	for {
		if s.ShouldStop() {
			return s.MetricsSnapshot(), nil
		}
		if err := ctx.Err(); err != nil {
			return s.MetricsSnapshot(), nil
		}

		now := clk.Now()
		s.ReblastUnacked(now, sendVia(io, interfaces[0].Name))
		s.Blast(now, sendVia(io, interfaces[0].Name))

		recv, err := io.Recv(recvTimeout)
		switch {
		case errors.Is(err, netio.ErrNoPacket):
			continue
		case errors.Is(err, netio.ErrShutdown):
			s.log.Debug("received shutdown signal")
			return s.MetricsSnapshot(), nil
		case err != nil:
			return s.MetricsSnapshot(), fmt.Errorf("blast: recv: %w", err)
		}

		s.ProcessACK(recv.Frame, clk.Now())
		s.AdvanceLHS()
	}
}

func sendVia(io netio.NetIO, port string) func(frame []byte) error {
	return func(frame []byte) error { return io.Send(port, frame) }
}
