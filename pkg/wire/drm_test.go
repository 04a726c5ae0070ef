package wire

import (
	"net"
	"testing"
)

func TestEncodeDecodeDRM(t *testing.T) {
	t.Parallel()

	want := DRM{
		AdvertisedPrefix: net.IPv4(192, 168, 1, 0).To4(),
		AdvertisedMask:   net.IPv4(255, 255, 255, 0).To4(),
		NextHop:          net.IPv4(10, 0, 0, 1).To4(),
	}

	payload := EncodeDRM(want)
	if len(payload) != drmLen {
		t.Fatalf("len(payload) = %d, want %d", len(payload), drmLen)
	}
	// Pad bytes must be zero on the wire (spec §6).
	if payload[8] != 0 {
		t.Errorf("payload[8] (pad) = %#x, want 0", payload[8])
	}
	if payload[17] != 0 {
		t.Errorf("payload[17] (pad) = %#x, want 0", payload[17])
	}
	// The high 4 bytes of each 8-byte field must be zero.
	for _, field := range [][]byte{payload[0:8], payload[9:17], payload[18:26]} {
		for _, b := range field[0:4] {
			if b != 0 {
				t.Errorf("field high bytes = %v, want all zero", field[0:4])
				break
			}
		}
	}

	got, err := DecodeDRM(payload)
	if err != nil {
		t.Fatalf("DecodeDRM() error: %v", err)
	}
	if !got.AdvertisedPrefix.Equal(want.AdvertisedPrefix) {
		t.Errorf("AdvertisedPrefix = %v, want %v", got.AdvertisedPrefix, want.AdvertisedPrefix)
	}
	if !got.AdvertisedMask.Equal(want.AdvertisedMask) {
		t.Errorf("AdvertisedMask = %v, want %v", got.AdvertisedMask, want.AdvertisedMask)
	}
	if !got.NextHop.Equal(want.NextHop) {
		t.Errorf("NextHop = %v, want %v", got.NextHop, want.NextHop)
	}
}

func TestDecodeDRM_ShortFrame(t *testing.T) {
	t.Parallel()

	if _, err := DecodeDRM(make([]byte, 10)); err != ErrShortFrame {
		t.Fatalf("DecodeDRM() error = %v, want %v", err, ErrShortFrame)
	}
}
