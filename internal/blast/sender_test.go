package blast

import (
	"net"
	"testing"
	"time"

	"github.com/coursenet/dataplane/pkg/netio"
	"github.com/coursenet/dataplane/pkg/wire"
)

func mac(b byte) net.HardwareAddr { return net.HardwareAddr{0, 0, 0, 0, 0, b} }

func testConfig() SenderConfig {
	return SenderConfig{
		BlasteeIP:      net.ParseIP("192.168.100.1").To4(),
		TotalPackets:   5,
		LengthPerBlast: 16,
		WindowSize:     2,
		EstRTTMs:       100,
		RecvTimeoutMs:  100,
		EWMAAlpha:      0.2,
	}
}

func newTestSender() (*Sender, *[][]byte) {
	intf := netio.Interface{Name: "eth0", HWAddr: mac(1), IP: net.ParseIP("10.0.0.1").To4()}
	s := NewSender(testConfig(), intf, mac(2), nil)
	var sent [][]byte
	return s, &sent
}

func TestBlastFillsWindowAndStops(t *testing.T) {
	t.Parallel()

	s, sent := newTestSender()
	now := time.Unix(0, 0)
	send := func(frame []byte) error { *sent = append(*sent, frame); return nil }

	s.Blast(now, send)
	if len(*sent) != 2 {
		t.Fatalf("sent after first Blast() = %d, want window_size=2", len(*sent))
	}
	if s.rhs != 3 {
		t.Errorf("rhs = %d, want 3", s.rhs)
	}

	*sent = nil
	s.Blast(now, send) // window already full, lhs hasn't advanced
	if len(*sent) != 0 {
		t.Fatalf("sent while window full = %d, want 0", len(*sent))
	}
}

func TestShouldStop(t *testing.T) {
	t.Parallel()

	s, _ := newTestSender()
	if s.ShouldStop() {
		t.Fatalf("ShouldStop() = true, want false before any packets sent")
	}
	s.lhs, s.rhs = 6, 6 // past total_packets=5, fully drained
	if !s.ShouldStop() {
		t.Errorf("ShouldStop() = false, want true")
	}
}

func ackFrame(t *testing.T, s *Sender, seq uint32) []byte {
	t.Helper()
	payload := wire.EncodeAckPayload(seq)
	udp := wire.EncodeUDP(wire.UDP{SrcPort: blasteeUDPPort, DstPort: blasterUDPPort}, payload)
	ipv4 := wire.EncodeIPv4(wire.IPv4{TTL: 64, Protocol: wire.IPProtocolUDP, Src: s.cfg.BlasteeIP, Dst: s.ip}, udp)
	return wire.EncodeEthernet(wire.Ethernet{Dst: s.net, Src: mac(2), EtherType: wire.EtherTypeIPv4}, ipv4)
}

func TestProcessACKMarksSlotAndUpdatesRTT(t *testing.T) {
	t.Parallel()

	s, sent := newTestSender()
	start := time.Unix(100, 0)
	send := func(frame []byte) error { *sent = append(*sent, frame); return nil }
	s.Blast(start, send)

	later := start.Add(50 * time.Millisecond)
	s.ProcessACK(ackFrame(t, s, 1), later)

	if !s.window[1%s.cfg.WindowSize].acked {
		t.Fatalf("window slot for seq 1 not marked acked")
	}
	if s.cfg.EstRTTMs == 100 {
		t.Errorf("EstRTTMs unchanged after ACK, want updated via EWMA")
	}
	if !s.metrics.haveMinMax {
		t.Errorf("metrics min/max RTT not recorded")
	}
}

func TestProcessACKIgnoresOutOfBoundSeq(t *testing.T) {
	t.Parallel()

	s, sent := newTestSender()
	send := func(frame []byte) error { *sent = append(*sent, frame); return nil }
	s.Blast(time.Unix(0, 0), send)

	s.ProcessACK(ackFrame(t, s, 99), time.Unix(0, 1))

	for i := range s.window {
		if s.window[i].acked {
			t.Fatalf("window[%d] marked acked for an out-of-range seq", i)
		}
	}
}

func TestAdvanceLHSStopsAtFirstUnacked(t *testing.T) {
	t.Parallel()

	s, sent := newTestSender()
	send := func(frame []byte) error { *sent = append(*sent, frame); return nil }
	s.Blast(time.Unix(0, 0), send) // sends seq 1, 2 (window_size=2)

	s.ProcessACK(ackFrame(t, s, 2), time.Unix(0, 1)) // ack the second, not the first
	s.AdvanceLHS()

	if s.lhs != 1 {
		t.Errorf("lhs = %d, want 1 (seq 1 still unacked)", s.lhs)
	}

	s.ProcessACK(ackFrame(t, s, 1), time.Unix(0, 2))
	s.AdvanceLHS()
	if s.lhs != 3 {
		t.Errorf("lhs = %d, want 3 (both acked)", s.lhs)
	}
}

func TestReblastUnackedResendsAfterTimeout(t *testing.T) {
	t.Parallel()

	s, sent := newTestSender()
	send := func(frame []byte) error { *sent = append(*sent, frame); return nil }
	start := time.Unix(0, 0)
	s.Blast(start, send)

	*sent = nil
	s.ReblastUnacked(start.Add(10*time.Millisecond), send)
	if len(*sent) != 0 {
		t.Fatalf("resent = %d before timeout elapsed, want 0", len(*sent))
	}

	s.ReblastUnacked(start.Add(300*time.Millisecond), send) // timeout_ms = 2*100 = 200
	if len(*sent) != 2 {
		t.Fatalf("resent = %d after timeout elapsed, want 2", len(*sent))
	}
	if s.metrics.TotalRetrans != 2 {
		t.Errorf("TotalRetrans = %d, want 2", s.metrics.TotalRetrans)
	}
}

func TestWindowReflectsLHSAndRHS(t *testing.T) {
	t.Parallel()

	s, sent := newTestSender()
	send := func(frame []byte) error { *sent = append(*sent, frame); return nil }
	s.Blast(time.Unix(0, 0), send)

	lhs, rhs, estRTT := s.Window()
	if lhs != 1 {
		t.Errorf("lhs = %d, want 1", lhs)
	}
	if rhs != 3 {
		t.Errorf("rhs = %d, want 3", rhs)
	}
	if estRTT != s.cfg.EstRTTMs {
		t.Errorf("estRTT = %v, want %v", estRTT, s.cfg.EstRTTMs)
	}
}
