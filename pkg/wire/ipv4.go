package wire

import (
	"encoding/binary"
	"net"
)

// IPProtocol identifies the transport protocol carried in an IPv4 packet.
type IPProtocol uint8

const IPProtocolUDP IPProtocol = 17

const ipv4HeaderLen = 20 // no options; IP fragmentation/options are out of scope (spec §1)

// IPv4 is a minimal IPv4 header: just the fields this module's routers,
// middlebox, and blast pair actually inspect or mutate.
type IPv4 struct {
	TTL      uint8
	Protocol IPProtocol
	Src      net.IP
	Dst      net.IP
}

// EncodeIPv4 serializes an IPv4 header (no options) followed by payload,
// filling in a correct header checksum.
func EncodeIPv4(h IPv4, payload []byte) []byte {
	total := ipv4HeaderLen + len(payload)
	buf := make([]byte, total)
	buf[0] = 0x45 // version 4, IHL 5 (20 bytes)
	buf[1] = 0
	binary.BigEndian.PutUint16(buf[2:4], uint16(total))
	binary.BigEndian.PutUint16(buf[4:6], 0) // identification
	binary.BigEndian.PutUint16(buf[6:8], 0) // flags/frag offset
	buf[8] = h.TTL
	buf[9] = uint8(h.Protocol)
	binary.BigEndian.PutUint16(buf[10:12], 0) // checksum placeholder
	copy(buf[12:16], h.Src.To4())
	copy(buf[16:20], h.Dst.To4())
	binary.BigEndian.PutUint16(buf[10:12], ipv4Checksum(buf[:ipv4HeaderLen]))
	copy(buf[ipv4HeaderLen:], payload)
	return buf
}

// DecodeIPv4 parses the IPv4 header from the front of frame and returns the
// header plus the remaining payload bytes (a sub-slice, not a copy).
func DecodeIPv4(frame []byte) (IPv4, []byte, error) {
	if len(frame) < ipv4HeaderLen {
		return IPv4{}, nil, ErrShortFrame
	}
	ihl := int(frame[0]&0x0f) * 4
	if ihl < ipv4HeaderLen || len(frame) < ihl {
		return IPv4{}, nil, ErrShortFrame
	}
	h := IPv4{
		TTL:      frame[8],
		Protocol: IPProtocol(frame[9]),
		Src:      append(net.IP(nil), frame[12:16]...),
		Dst:      append(net.IP(nil), frame[16:20]...),
	}
	return h, frame[ihl:], nil
}

// DecrementTTLInPlace decrements the TTL field of an encoded IPv4 header
// (as produced by EncodeIPv4/stored in a full frame) by one and recomputes
// the header checksum. header must be at least ipv4HeaderLen bytes, the
// IPv4 header sub-slice (not including the preceding Ethernet header).
func DecrementTTLInPlace(header []byte) {
	header[8]--
	binary.BigEndian.PutUint16(header[10:12], 0)
	binary.BigEndian.PutUint16(header[10:12], ipv4Checksum(header[:ipv4HeaderLen]))
}

func ipv4Checksum(header []byte) uint16 {
	var sum uint32
	for i := 0; i+1 < len(header); i += 2 {
		sum += uint32(binary.BigEndian.Uint16(header[i : i+2]))
	}
	for sum>>16 != 0 {
		sum = (sum & 0xffff) + (sum >> 16)
	}
	return ^uint16(sum)
}
