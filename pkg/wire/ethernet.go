// Package wire implements the small set of packet codecs this module needs:
// Ethernet, ARP, IPv4 (header fields only), UDP, the BPDU and DRM control
// frames, and the blaster's payload/ACK formats. A generic, RFC-complete
// parsing/serialization library is explicitly out of scope (spec §1); these
// types encode exactly the fields spec §6 specifies and nothing more.
package wire

import (
	"encoding/binary"
	"errors"
	"net"
)

// EtherType identifies the payload carried after the Ethernet header.
type EtherType uint16

const (
	EtherTypeIPv4 EtherType = 0x0800
	EtherTypeARP  EtherType = 0x0806
	// EtherTypeSlow is the "slow protocols" ethertype, reused here as the
	// carrier for both BPDUs and dynamic-routing messages (spec §6).
	EtherTypeSlow EtherType = 0x8809
)

// BroadcastMAC is the Ethernet broadcast address ff:ff:ff:ff:ff:ff.
var BroadcastMAC = net.HardwareAddr{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// IsBroadcast reports whether mac is the Ethernet broadcast address.
func IsBroadcast(mac net.HardwareAddr) bool {
	return len(mac) == 6 && mac.String() == BroadcastMAC.String()
}

const ethernetHeaderLen = 14

// ErrShortFrame is returned when a byte slice is too short to contain the
// header being decoded.
var ErrShortFrame = errors.New("wire: frame too short")

// Ethernet is the standard 14-byte Ethernet header (spec §6).
type Ethernet struct {
	Dst       net.HardwareAddr
	Src       net.HardwareAddr
	EtherType EtherType
}

// EncodeEthernet prepends an Ethernet header to payload.
func EncodeEthernet(h Ethernet, payload []byte) []byte {
	buf := make([]byte, ethernetHeaderLen+len(payload))
	copy(buf[0:6], normalizeMAC(h.Dst))
	copy(buf[6:12], normalizeMAC(h.Src))
	binary.BigEndian.PutUint16(buf[12:14], uint16(h.EtherType))
	copy(buf[14:], payload)
	return buf
}

// DecodeEthernet parses the Ethernet header from the front of frame and
// returns the header plus the remaining payload bytes (a sub-slice of
// frame, not a copy).
func DecodeEthernet(frame []byte) (Ethernet, []byte, error) {
	if len(frame) < ethernetHeaderLen {
		return Ethernet{}, nil, ErrShortFrame
	}
	h := Ethernet{
		Dst:       append(net.HardwareAddr(nil), frame[0:6]...),
		Src:       append(net.HardwareAddr(nil), frame[6:12]...),
		EtherType: EtherType(binary.BigEndian.Uint16(frame[12:14])),
	}
	return h, frame[ethernetHeaderLen:], nil
}

func normalizeMAC(mac net.HardwareAddr) net.HardwareAddr {
	if len(mac) == 6 {
		return mac
	}
	out := make(net.HardwareAddr, 6)
	copy(out, mac)
	return out
}
