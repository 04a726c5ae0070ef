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

const receiverRecvTimeout = time.Second

// Receiver is the stateless blastee: for every blast packet received, reply
// with an ACK carrying the same sequence number (spec §4.8).
type Receiver struct {
	intf      netio.Interface
	targetMAC net.HardwareAddr // Ethernet address of the next hop toward the blaster
	blasterIP net.IP

	log *slog.Logger
}

// NewReceiver constructs a Receiver bound to intf, acknowledging toward
// blasterIP/targetMAC.
func NewReceiver(intf netio.Interface, targetMAC net.HardwareAddr, blasterIP net.IP, logger *slog.Logger) *Receiver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Receiver{intf: intf, targetMAC: targetMAC, blasterIP: blasterIP, log: logger.With("component", "blastee")}
}

// Ack parses one received frame's sequence number and sends the
// corresponding ACK. No state is kept across calls; duplicate ACKs are
// permitted and expected.
func (r *Receiver) Ack(frame []byte, send func(port string, frame []byte) error) {
	_, ipv4Frame, err := wire.DecodeEthernet(frame)
	if err != nil {
		r.log.Debug("ignored packet of unknown type")
		return
	}
	_, udpFrame, err := wire.DecodeIPv4(ipv4Frame)
	if err != nil {
		r.log.Debug("ignored packet of unknown type")
		return
	}
	_, blastPayload, err := wire.DecodeUDP(udpFrame)
	if err != nil {
		r.log.Debug("ignored packet of unknown type")
		return
	}
	data, err := wire.DecodeBlastPayload(blastPayload)
	if err != nil {
		r.log.Debug("ignored packet of unknown type")
		return
	}
	r.log.Info("got packet", "seq", data.Seq)

	ackPayload := wire.EncodeAckPayload(data.Seq)
	udp := wire.EncodeUDP(wire.UDP{SrcPort: blasteeUDPPort, DstPort: blasterUDPPort}, ackPayload)
	ipv4 := wire.EncodeIPv4(wire.IPv4{TTL: 64, Protocol: wire.IPProtocolUDP, Src: r.intf.IP, Dst: r.blasterIP}, udp)
	out := wire.EncodeEthernet(wire.Ethernet{Dst: r.targetMAC, Src: r.intf.HWAddr, EtherType: wire.EtherTypeIPv4}, ipv4)

	if err := send(r.intf.Name, out); err != nil {
		r.log.Debug("failed to send ACK", "error", err)
	}
}

// RunReceiver drives the blastee's main loop: receive, ack, repeat, until
// the underlying NetIO signals shutdown.
func RunReceiver(ctx context.Context, io netio.NetIO, r *Receiver) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		recv, err := io.Recv(receiverRecvTimeout)
		switch {
		case errors.Is(err, netio.ErrNoPacket):
			continue
		case errors.Is(err, netio.ErrShutdown):
			r.log.Debug("received shutdown signal")
			return nil
		case err != nil:
			return fmt.Errorf("blast: recv: %w", err)
		}

		r.Ack(recv.Frame, io.Send)
	}
}
