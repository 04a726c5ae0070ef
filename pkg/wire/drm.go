package wire

import (
	"encoding/binary"
	"net"
)

// drmLen is prefix(8) || pad(1) || mask(8) || pad(1) || next_hop(8) = 26
// bytes, each 8-byte field carrying a big-endian IPv4 address in its low 4
// bytes (spec §6). This matches the original's struct.calcsize("qxqxq").
const drmLen = 26

// DRM is a dynamic-routing-message advertisement: "install or refresh a
// route to AdvertisedPrefix/AdvertisedMask via NextHop", carried over
// EtherTypeSlow (spec §6, §4.6).
type DRM struct {
	AdvertisedPrefix net.IP
	AdvertisedMask   net.IP
	NextHop          net.IP
}

// EncodeDRM serializes a DRM payload (no Ethernet header).
func EncodeDRM(d DRM) []byte {
	buf := make([]byte, drmLen)
	putQuadAddr(buf[0:8], d.AdvertisedPrefix)
	buf[8] = 0 // pad
	putQuadAddr(buf[9:17], d.AdvertisedMask)
	buf[17] = 0 // pad
	putQuadAddr(buf[18:26], d.NextHop)
	return buf
}

// DecodeDRM parses a DRM payload.
func DecodeDRM(payload []byte) (DRM, error) {
	if len(payload) < drmLen {
		return DRM{}, ErrShortFrame
	}
	return DRM{
		AdvertisedPrefix: quadAddr(payload[0:8]),
		AdvertisedMask:   quadAddr(payload[9:17]),
		NextHop:          quadAddr(payload[18:26]),
	}, nil
}

// putQuadAddr writes ip into the low 4 bytes of an 8-byte big-endian field,
// leaving the high 4 bytes zero as spec §6 requires on the wire.
func putQuadAddr(field []byte, ip net.IP) {
	binary.BigEndian.PutUint32(field[0:4], 0)
	copy(field[4:8], ip.To4())
}

func quadAddr(field []byte) net.IP {
	return append(net.IP(nil), field[4:8]...)
}
