package depacket

import (
	"bytes"
	"testing"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
)

func hevcPayloadHeader(nalType byte) (byte, byte) {
	b0 := (nalType << 1) & 0xFE
	b1 := byte(1) // tid=1 (tid==0 is rejected)
	return b0, b1
}

func TestHEVCSingleNALEmitsWithStartCode(t *testing.T) {
	b0, b1 := hevcPayloadHeader(1) // TRAIL_R, <=47
	payload := []byte{b0, b1, 0xAA, 0xBB}

	d := NewHEVC()
	out, err := d.Handle(&rtppacket.Packet{Payload: payload})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 1 || !bytes.Equal(out[0], withStartCode(payload)) {
		t.Fatalf("unexpected output: %x", out)
	}
}

func TestHEVCRejectsZeroTemporalID(t *testing.T) {
	b0, _ := hevcPayloadHeader(1)
	payload := []byte{b0, 0x00, 0xAA}

	d := NewHEVC()
	if _, err := d.Handle(&rtppacket.Packet{Payload: payload}); err == nil {
		t.Fatalf("expected error for tid==0")
	}
}

func TestHEVCAggregatedPacketSplitsIntoNALs(t *testing.T) {
	b0, b1 := hevcPayloadHeader(48) // AP
	nalA := []byte{0x02, 0x01, 0xAA}
	nalB := []byte{0x02, 0x01, 0xBB, 0xCC}

	payload := []byte{b0, b1}
	payload = append(payload, byte(len(nalA)>>8), byte(len(nalA)))
	payload = append(payload, nalA...)
	payload = append(payload, byte(len(nalB)>>8), byte(len(nalB)))
	payload = append(payload, nalB...)

	d := NewHEVC()
	out, err := d.Handle(&rtppacket.Packet{Payload: payload})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 2 {
		t.Fatalf("expected 2 NALs, got %d", len(out))
	}
	if !bytes.Equal(out[0], withStartCode(nalA)) || !bytes.Equal(out[1], withStartCode(nalB)) {
		t.Fatalf("NAL mismatch: %x / %x", out[0], out[1])
	}
}

func TestHEVCFUReassemblesAcrossFragments(t *testing.T) {
	originalB0, originalB1 := hevcPayloadHeader(1)
	payload := []byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE}

	fuB0, fuB1 := hevcPayloadHeader(hevcNALTypeFU)

	start := []byte{fuB0, fuB1, 0x80 | (1 & 0x3F)}
	start = append(start, payload[:2]...)
	end := []byte{fuB0, fuB1, 0x40 | (1 & 0x3F)}
	end = append(end, payload[2:]...)

	d := NewHEVC()
	if out, err := d.Handle(&rtppacket.Packet{Payload: start}); err != nil || len(out) != 0 {
		t.Fatalf("start: out=%v err=%v", out, err)
	}
	out, err := d.Handle(&rtppacket.Packet{Payload: end})
	if err != nil {
		t.Fatalf("end: %v", err)
	}
	if len(out) != 1 {
		t.Fatalf("expected 1 access unit, got %d", len(out))
	}

	wantNAL := append([]byte{originalB0, originalB1}, payload...)
	if !bytes.Equal(out[0], withStartCode(wantNAL)) {
		t.Fatalf("reassembled NAL mismatch:\ngot  %x\nwant %x", out[0], withStartCode(wantNAL))
	}
}
