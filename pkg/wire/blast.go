package wire

import "encoding/binary"

// ackPayloadLen is seq(4 BE) || 0xFF×8 (spec §6).
const ackPayloadLen = 12

// BlastPayload is one blaster data packet's payload: seq(4 BE) || length(2
// BE) || 0xFF×length (spec §6, §4.7).
type BlastPayload struct {
	Seq    uint32
	Length uint16
}

// EncodeBlastPayload serializes a blaster data payload.
func EncodeBlastPayload(p BlastPayload) []byte {
	buf := make([]byte, 6+int(p.Length))
	binary.BigEndian.PutUint32(buf[0:4], p.Seq)
	binary.BigEndian.PutUint16(buf[4:6], p.Length)
	for i := range buf[6:] {
		buf[6+i] = 0xFF
	}
	return buf
}

// DecodeBlastPayload parses a blaster data payload.
func DecodeBlastPayload(payload []byte) (BlastPayload, error) {
	if len(payload) < 6 {
		return BlastPayload{}, ErrShortFrame
	}
	p := BlastPayload{
		Seq:    binary.BigEndian.Uint32(payload[0:4]),
		Length: binary.BigEndian.Uint16(payload[4:6]),
	}
	if len(payload) < 6+int(p.Length) {
		return BlastPayload{}, ErrShortFrame
	}
	return p, nil
}

// EncodeAckPayload serializes a blastee ACK payload: seq(4 BE) || 0xFF×8.
func EncodeAckPayload(seq uint32) []byte {
	buf := make([]byte, ackPayloadLen)
	binary.BigEndian.PutUint32(buf[0:4], seq)
	for i := 4; i < ackPayloadLen; i++ {
		buf[i] = 0xFF
	}
	return buf
}

// DecodeAckPayload parses a blastee ACK payload and returns its sequence
// number.
func DecodeAckPayload(payload []byte) (uint32, error) {
	if len(payload) < ackPayloadLen {
		return 0, ErrShortFrame
	}
	return binary.BigEndian.Uint32(payload[0:4]), nil
}
