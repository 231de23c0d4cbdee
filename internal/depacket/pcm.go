package depacket

import (
	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// pcmDepacketizer passes PCMA/PCMU (RFC 3551) payloads through verbatim.
type pcmDepacketizer struct {
	defaultChannels int
}

// NewPCM builds the PCMA/PCMU depacketizer, defaulting to defaultChannels
// when SDP does not specify a channel count.
func NewPCM(defaultChannels int) Depacketizer {
	return &pcmDepacketizer{defaultChannels: defaultChannels}
}

func (p *pcmDepacketizer) Configure(media sdpmedia.Media) (CodecParams, error) {
	channels := media.Channels
	if channels == 0 {
		channels = p.defaultChannels
	}
	return CodecParams{ClockRate: media.ClockRate, Channels: channels}, nil
}

func (p *pcmDepacketizer) Handle(pkt *rtppacket.Packet) ([]AccessUnit, error) {
	if pkt == nil {
		return []AccessUnit{{}}, nil // flush: empty access unit
	}
	return []AccessUnit{AccessUnit(pkt.Payload)}, nil
}
