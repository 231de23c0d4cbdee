package depacket

import (
	"bytes"
	"testing"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

func aacMedia() sdpmedia.Media {
	return sdpmedia.Media{
		ClockRate: 48000,
		Channels:  2,
		Fmtp: map[string]string{
			"sizelength":       "13",
			"indexlength":      "3",
			"indexdeltalength": "3",
		},
	}
}

// buildAUHeader packs one 16-bit AU header: 13-bit size, 3-bit index.
func buildAUHeader(size, index int) []byte {
	v := uint16(size<<3) | uint16(index&0x7)
	return []byte{byte(v >> 8), byte(v)}
}

func TestAACConfigureRequiresSizeAndIndexLength(t *testing.T) {
	d := NewAAC()
	_, err := d.Configure(sdpmedia.Media{Fmtp: map[string]string{}})
	if err == nil {
		t.Fatalf("expected error without sizelength/indexlength")
	}
}

func TestAACSingleAUHeaderSlicesDataSection(t *testing.T) {
	d := NewAAC()
	if _, err := d.Configure(aacMedia()); err != nil {
		t.Fatalf("configure: %v", err)
	}

	au := []byte{0x01, 0x02, 0x03, 0x04, 0x05}
	header := buildAUHeader(len(au), 0)
	payload := []byte{0x00, 0x10} // AU-headers-length = 16 bits
	payload = append(payload, header...)
	payload = append(payload, au...)

	out, err := d.Handle(&rtppacket.Packet{Payload: payload, Marker: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 1 || !bytes.Equal(out[0], au) {
		t.Fatalf("unexpected output: %x", out)
	}
}

func TestAACMultipleAUHeadersSliceInOrder(t *testing.T) {
	d := NewAAC()
	if _, err := d.Configure(aacMedia()); err != nil {
		t.Fatalf("configure: %v", err)
	}

	au1 := []byte{0xAA, 0xBB}
	au2 := []byte{0xCC, 0xDD, 0xEE}

	h1 := buildAUHeader(len(au1), 0)
	h2 := buildAUHeader(len(au2), 0)

	payload := []byte{0x00, 0x20} // 32 bits = two 16-bit headers
	payload = append(payload, h1...)
	payload = append(payload, h2...)
	payload = append(payload, au1...)
	payload = append(payload, au2...)

	out, err := d.Handle(&rtppacket.Packet{Payload: payload})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 access units, got %d", len(out))
	}
	if !bytes.Equal(out[0], au1) || !bytes.Equal(out[1], au2) {
		t.Fatalf("slicing mismatch: %x / %x", out[0], out[1])
	}
}

func TestAACFragmentReassemblesAcrossPacketsUntilMarker(t *testing.T) {
	d := NewAAC()
	if _, err := d.Configure(aacMedia()); err != nil {
		t.Fatalf("configure: %v", err)
	}

	full := []byte{0x01, 0x02, 0x03, 0x04, 0x05, 0x06}
	header := buildAUHeader(len(full), 0)

	part1 := []byte{0x00, 0x10}
	part1 = append(part1, header...)
	part1 = append(part1, full[:3]...)

	part2 := []byte{0x00, 0x10}
	part2 = append(part2, header...)
	part2 = append(part2, full[3:]...)

	out, err := d.Handle(&rtppacket.Packet{Payload: part1, Timestamp: 1000})
	if err != nil || len(out) != 0 {
		t.Fatalf("part1: out=%v err=%v", out, err)
	}
	out, err = d.Handle(&rtppacket.Packet{Payload: part2, Timestamp: 1000, Marker: true})
	if err != nil {
		t.Fatalf("part2: %v", err)
	}
	if len(out) != 1 || !bytes.Equal(out[0], full) {
		t.Fatalf("reassembled AU mismatch: %x", out)
	}
}
