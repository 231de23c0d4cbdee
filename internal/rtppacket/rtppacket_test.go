package rtppacket

import "testing"

func TestParseBasicFields(t *testing.T) {
	raw := []byte{
		0x80, 0xE0, // version 2, marker set, payload type 96
		0x00, 0x2A, // sequence 42
		0x00, 0x00, 0x01, 0x00, // timestamp
		0x00, 0x00, 0x00, 0x07, // ssrc
		0x01, 0x02, 0x03,
	}

	pkt, err := Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if !pkt.Marker {
		t.Fatalf("expected marker set")
	}
	if pkt.PayloadType != 0x60 {
		t.Fatalf("payload type = %d, want 96", pkt.PayloadType)
	}
	if pkt.SequenceNum != 42 {
		t.Fatalf("seq = %d, want 42", pkt.SequenceNum)
	}
	if pkt.SSRC != 7 {
		t.Fatalf("ssrc = %d, want 7", pkt.SSRC)
	}
	if len(pkt.Payload) != 3 {
		t.Fatalf("payload len = %d, want 3", len(pkt.Payload))
	}
}

func TestParseTruncatedHeaderErrors(t *testing.T) {
	if _, err := Parse([]byte{0x80, 0x60}); err == nil {
		t.Fatalf("expected error on truncated header")
	}
}
