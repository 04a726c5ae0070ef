package wire

import "encoding/binary"

const udpHeaderLen = 8

// UDP is the standard 8-byte UDP header. This module only ever uses it on
// the blaster/blastee path, whose addressing is already pinned by the
// surrounding IPv4 header, so checksum is left at zero (optional over
// IPv4, and explicitly not part of this module's scope per spec §1).
type UDP struct {
	SrcPort uint16
	DstPort uint16
}

// EncodeUDP serializes a UDP header followed by payload.
func EncodeUDP(h UDP, payload []byte) []byte {
	buf := make([]byte, udpHeaderLen+len(payload))
	binary.BigEndian.PutUint16(buf[0:2], h.SrcPort)
	binary.BigEndian.PutUint16(buf[2:4], h.DstPort)
	binary.BigEndian.PutUint16(buf[4:6], uint16(udpHeaderLen+len(payload)))
	binary.BigEndian.PutUint16(buf[6:8], 0) // checksum: unused, see doc comment
	copy(buf[udpHeaderLen:], payload)
	return buf
}

// DecodeUDP parses the UDP header from the front of frame and returns the
// header plus the remaining payload bytes (a sub-slice, not a copy).
func DecodeUDP(frame []byte) (UDP, []byte, error) {
	if len(frame) < udpHeaderLen {
		return UDP{}, nil, ErrShortFrame
	}
	h := UDP{
		SrcPort: binary.BigEndian.Uint16(frame[0:2]),
		DstPort: binary.BigEndian.Uint16(frame[2:4]),
	}
	return h, frame[udpHeaderLen:], nil
}
