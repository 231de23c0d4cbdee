package depacket

import (
	"bytes"
	"testing"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

func TestMPEG4VisualConfigureDecodesHexConfig(t *testing.T) {
	d := NewMPEG4Visual()
	params, err := d.Configure(sdpmedia.Media{Fmtp: map[string]string{"config": "000001b0"}})
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if !bytes.Equal(params.Extradata, []byte{0x00, 0x00, 0x01, 0xB0}) {
		t.Fatalf("extradata = %x", params.Extradata)
	}
}

func TestMPEG4VisualPassesPayloadThrough(t *testing.T) {
	d := NewMPEG4Visual()
	payload := []byte{0x11, 0x22, 0x33}
	out, err := d.Handle(&rtppacket.Packet{Payload: payload})
	if err != nil {
		t.Fatalf("handle: %v", err)
	}
	if len(out) != 1 || !bytes.Equal(out[0], payload) {
		t.Fatalf("unexpected output: %x", out)
	}
}
