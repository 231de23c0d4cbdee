package depacket

import (
	"encoding/hex"
	"fmt"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// mpeg4VisualDepacketizer passes mp4v-es (RFC 3016) payloads through
// unchanged; the only codec configuration is the hex-decoded config blob.
type mpeg4VisualDepacketizer struct{}

// NewMPEG4Visual builds the MPEG-4 Visual (mp4v-es) depacketizer.
func NewMPEG4Visual() Depacketizer {
	return &mpeg4VisualDepacketizer{}
}

func (m *mpeg4VisualDepacketizer) Configure(media sdpmedia.Media) (CodecParams, error) {
	var extradata []byte
	if cfg := media.Fmtp["config"]; cfg != "" {
		decoded, err := hex.DecodeString(cfg)
		if err != nil {
			return CodecParams{}, fmt.Errorf("mpeg4visual: decode config: %w", err)
		}
		extradata = decoded
	}
	return CodecParams{Extradata: extradata, ClockRate: media.ClockRate}, nil
}

func (m *mpeg4VisualDepacketizer) Handle(pkt *rtppacket.Packet) ([]AccessUnit, error) {
	if pkt == nil {
		return nil, nil
	}
	if len(pkt.Payload) == 0 {
		return nil, fmt.Errorf("mpeg4visual: zero-byte RTP payload")
	}
	return []AccessUnit{AccessUnit(pkt.Payload)}, nil
}
