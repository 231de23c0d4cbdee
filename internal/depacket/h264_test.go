package depacket

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

func TestH264ConfigureBuildsExtradataFromSpropParameterSets(t *testing.T) {
	sps := []byte{0x67, 0x42, 0x00, 0x1F}
	pps := []byte{0x68, 0xCE, 0x3C, 0x80}
	value := base64.StdEncoding.EncodeToString(sps) + "," + base64.StdEncoding.EncodeToString(pps)

	d := NewH264()
	params, err := d.Configure(sdpmedia.Media{Fmtp: map[string]string{"sprop-parameter-sets": value}, ClockRate: 90000})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}

	want := append(append(append([]byte{}, annexBStartCode...), sps...), make([]byte, fuaPaddingZeros)...)
	want = append(append(want, annexBStartCode...), pps...)
	want = append(want, make([]byte, fuaPaddingZeros)...)

	if !bytes.Equal(params.Extradata, want) {
		t.Fatalf("extradata mismatch:\ngot  %x\nwant %x", params.Extradata, want)
	}
}

func TestH264SingleNALEmitsWithStartCode(t *testing.T) {
	d := NewH264()
	nal := []byte{0x65, 0x01, 0x02, 0x03}
	out, err := d.Handle(&rtppacket.Packet{Payload: nal, Marker: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 access unit, got %d", len(out))
	}
	if !bytes.Equal(out[0], withStartCode(nal)) {
		t.Fatalf("access unit mismatch: %x", out[0])
	}
}

func TestH264STAPABigEndianSizesSplitsIntoNALs(t *testing.T) {
	nalA := []byte{0x67, 0xAA, 0xBB}
	nalB := []byte{0x68, 0xCC, 0xDD, 0xEE}

	payload := []byte{0x18} // STAP-A header
	payload = append(payload, byte(len(nalA)>>8), byte(len(nalA)))
	payload = append(payload, nalA...)
	payload = append(payload, byte(len(nalB)>>8), byte(len(nalB)))
	payload = append(payload, nalB...)

	d := NewH264()
	out, err := d.Handle(&rtppacket.Packet{Payload: payload, Marker: true})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 access units, got %d", len(out))
	}
	if !bytes.Equal(out[0], withStartCode(nalA)) {
		t.Fatalf("first NAL mismatch: %x", out[0])
	}
	if !bytes.Equal(out[1], withStartCode(nalB)) {
		t.Fatalf("second NAL mismatch: %x", out[1])
	}
}

func TestH264FUAReassemblesAcrossFragments(t *testing.T) {
	original := []byte{0x65, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF, 0x11, 0x22}
	naluType := original[0] & 0x1F
	indicator := original[0] & 0xE0

	start := append([]byte{indicator | nalTypeFUA, 0x80 | naluType}, original[1:4]...)
	mid := append([]byte{indicator | nalTypeFUA, naluType}, original[4:7]...)
	end := append([]byte{indicator | nalTypeFUA, 0x40 | naluType}, original[7:]...)

	d := NewH264()
	if _, err := d.Handle(&rtppacket.Packet{Payload: start}); err != nil {
		t.Fatalf("start: %v", err)
	}
	if out, err := d.Handle(&rtppacket.Packet{Payload: mid}); err != nil || len(out) != 0 {
		t.Fatalf("mid: out=%v err=%v", out, err)
	}
	out, err := d.Handle(&rtppacket.Packet{Payload: end, Marker: true})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 access unit, got %d", len(out))
	}
	if !bytes.Equal(out[0], withStartCode(original)) {
		t.Fatalf("reassembled NAL mismatch:\ngot  %x\nwant %x", out[0], withStartCode(original))
	}
}

func TestH264ZeroBytePayloadErrors(t *testing.T) {
	d := NewH264()
	if _, err := d.Handle(&rtppacket.Packet{Payload: []byte{}}); err == nil {
		t.Fatalf("expected error on zero-byte payload")
	}
}
