package depacket

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// H.264 NAL unit types (RFC 6184).
const (
	nalTypeSTAPA = 24
	nalTypeFUA   = 28
)

const fuaPaddingZeros = 64

// h264Depacketizer reassembles RFC 6184 RTP payloads (single NAL, STAP-A,
// FU-A) into Annex-B access units.
type h264Depacketizer struct {
	fragment    []byte
	fragmenting bool
}

// NewH264 builds the H.264 depacketizer.
func NewH264() Depacketizer {
	return &h264Depacketizer{}
}

func (h *h264Depacketizer) Configure(media sdpmedia.Media) (CodecParams, error) {
	extradata, err := h264Extradata(media.Fmtp["sprop-parameter-sets"])
	if err != nil {
		return CodecParams{}, err
	}
	return CodecParams{Extradata: extradata, ClockRate: media.ClockRate}, nil
}

// h264Extradata builds Annex-B extradata from a comma-separated,
// base64-encoded sprop-parameter-sets value: each decoded set is prefixed
// with a start code and followed by padding zero bytes.
func h264Extradata(spropParameterSets string) ([]byte, error) {
	if spropParameterSets == "" {
		return nil, nil
	}
	var out []byte
	for _, s := range strings.Split(spropParameterSets, ",") {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		decoded, err := base64.StdEncoding.DecodeString(s)
		if err != nil {
			return nil, fmt.Errorf("h264: decode sprop-parameter-sets: %w", err)
		}
		out = append(out, annexBStartCode...)
		out = append(out, decoded...)
		out = append(out, make([]byte, fuaPaddingZeros)...)
	}
	return out, nil
}

func (h *h264Depacketizer) Handle(pkt *rtppacket.Packet) ([]AccessUnit, error) {
	if pkt == nil {
		h.fragment = nil
		h.fragmenting = false
		return nil, nil
	}
	if len(pkt.Payload) == 0 {
		return nil, fmt.Errorf("h264: zero-byte RTP payload")
	}

	naluType := pkt.Payload[0] & 0x1F

	switch {
	case naluType >= 1 && naluType <= 23:
		return []AccessUnit{withStartCode(pkt.Payload)}, nil

	case naluType == nalTypeSTAPA:
		return h.handleSTAPA(pkt.Payload)

	case naluType == nalTypeFUA:
		return h.handleFUA(pkt.Payload)

	default:
		return nil, fmt.Errorf("h264: unsupported NAL type %d", naluType)
	}
}

func (h *h264Depacketizer) handleSTAPA(payload []byte) ([]AccessUnit, error) {
	rest := payload[1:]
	var out []AccessUnit

	for len(rest) > 2 {
		size := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		if int(size) > len(rest) {
			return nil, fmt.Errorf("h264: STAP-A NAL size %d exceeds remaining payload", size)
		}
		out = append(out, withStartCode(rest[:size]))
		rest = rest[size:]
	}
	return out, nil
}

func (h *h264Depacketizer) handleFUA(payload []byte) ([]AccessUnit, error) {
	if len(payload) < 2 {
		return nil, fmt.Errorf("h264: FU-A packet too short")
	}
	indicator := payload[0]
	header := payload[1]
	rest := payload[2:]

	start := header&0x80 != 0
	end := header&0x40 != 0
	naluType := header & 0x1F

	if start {
		h.fragment = append(h.fragment[:0], (indicator&0xE0)|naluType)
		h.fragmenting = true
	}
	if !h.fragmenting {
		return nil, fmt.Errorf("h264: FU-A continuation without start")
	}
	h.fragment = append(h.fragment, rest...)

	if !end {
		return nil, nil
	}

	out := withStartCode(h.fragment)
	h.fragment = nil
	h.fragmenting = false
	return []AccessUnit{out}, nil
}
