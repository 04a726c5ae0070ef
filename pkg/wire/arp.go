package wire

import (
	"encoding/binary"
	"net"
)

// ARPOperation distinguishes an ARP request from an ARP reply.
type ARPOperation uint16

const (
	ARPRequest ARPOperation = 1
	ARPReply   ARPOperation = 2
)

const arpLen = 28 // standard Ethernet/IPv4 ARP packet

// ARP is a standard Ethernet/IPv4 ARP request or reply (spec §6).
type ARP struct {
	Operation       ARPOperation
	SenderHWAddr    net.HardwareAddr
	SenderProtoAddr net.IP
	TargetHWAddr    net.HardwareAddr
	TargetProtoAddr net.IP
}

// EncodeARP serializes an ARP packet (Ethernet/IPv4 hard-coded hardware and
// protocol type fields).
func EncodeARP(a ARP) []byte {
	buf := make([]byte, arpLen)
	binary.BigEndian.PutUint16(buf[0:2], 1)      // HTYPE: Ethernet
	binary.BigEndian.PutUint16(buf[2:4], 0x0800) // PTYPE: IPv4
	buf[4] = 6                                   // HLEN
	buf[5] = 4                                   // PLEN
	binary.BigEndian.PutUint16(buf[6:8], uint16(a.Operation))
	copy(buf[8:14], normalizeMAC(a.SenderHWAddr))
	copy(buf[14:18], a.SenderProtoAddr.To4())
	copy(buf[18:24], normalizeMAC(a.TargetHWAddr))
	copy(buf[24:28], a.TargetProtoAddr.To4())
	return buf
}

// DecodeARP parses an ARP packet from payload (the bytes following the
// Ethernet header).
func DecodeARP(payload []byte) (ARP, error) {
	if len(payload) < arpLen {
		return ARP{}, ErrShortFrame
	}
	return ARP{
		Operation:       ARPOperation(binary.BigEndian.Uint16(payload[6:8])),
		SenderHWAddr:    append(net.HardwareAddr(nil), payload[8:14]...),
		SenderProtoAddr: append(net.IP(nil), payload[14:18]...),
		TargetHWAddr:    append(net.HardwareAddr(nil), payload[18:24]...),
		TargetProtoAddr: append(net.IP(nil), payload[24:28]...),
	}, nil
}
