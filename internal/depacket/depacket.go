// Package depacket translates codec-specific RTP payloads into codec-native
// access units. Each codec is a tagged implementation of the Depacketizer
// contract rather than a class hierarchy with shared mutable state.
package depacket

import (
	"fmt"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// AccessUnit is one complete, decoder-consumable elementary-stream unit.
type AccessUnit []byte

// CodecParams are the codec context parameters derived from SDP, handed to
// the input codec context when a decoder slot is created.
type CodecParams struct {
	Extradata []byte
	ClockRate uint32
	Channels  int
}

// Depacketizer turns RTP packets belonging to one logical stream into
// access units. Handle(nil) is a flush signal: emit whatever is currently
// buffered (if anything can legally be completed) and return.
type Depacketizer interface {
	Configure(media sdpmedia.Media) (CodecParams, error)
	Handle(pkt *rtppacket.Packet) ([]AccessUnit, error)
}

// ErrUnsupportedCodec is returned by New when no depacketizer is registered
// for the given SDP codec name.
var ErrUnsupportedCodec = fmt.Errorf("depacket: unsupported codec")

// New builds the Depacketizer for a codec name as it appears in an SDP
// rtpmap (case-insensitive).
func New(codecName string) (Depacketizer, error) {
	switch normalizeCodec(codecName) {
	case "h264":
		return NewH264(), nil
	case "h265", "hevc":
		return NewHEVC(), nil
	case "mp4v-es":
		return NewMPEG4Visual(), nil
	case "mpeg4-generic":
		return NewAAC(), nil
	case "pcma":
		return NewPCM(1), nil
	case "pcmu":
		return NewPCM(1), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedCodec, codecName)
	}
}

func normalizeCodec(name string) string {
	out := make([]byte, 0, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		out = append(out, c)
	}
	return string(out)
}

// annexBStartCode is the 4-byte Annex-B NAL delimiter.
var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// withStartCode returns a new slice: start code followed by payload.
func withStartCode(payload []byte) []byte {
	out := make([]byte, 0, len(annexBStartCode)+len(payload))
	out = append(out, annexBStartCode...)
	out = append(out, payload...)
	return out
}
