package wire

import "net"

const bpduLen = 14

// BPDU is the spanning-tree announcement carried over EtherTypeSlow
// (spec §6): root_mac(6) || pad(1) || hops_to_root(1) || switch_mac(6).
type BPDU struct {
	RootID     net.HardwareAddr
	HopsToRoot uint8
	SwitchID   net.HardwareAddr
}

// EncodeBPDU serializes a BPDU payload (no Ethernet header).
func EncodeBPDU(b BPDU) []byte {
	buf := make([]byte, bpduLen)
	copy(buf[0:6], normalizeMAC(b.RootID))
	buf[6] = 0 // pad
	buf[7] = b.HopsToRoot
	copy(buf[8:14], normalizeMAC(b.SwitchID))
	return buf
}

// DecodeBPDU parses a BPDU payload.
func DecodeBPDU(payload []byte) (BPDU, error) {
	if len(payload) < bpduLen {
		return BPDU{}, ErrShortFrame
	}
	return BPDU{
		RootID:     append(net.HardwareAddr(nil), payload[0:6]...),
		HopsToRoot: payload[7],
		SwitchID:   append(net.HardwareAddr(nil), payload[8:14]...),
	}, nil
}
