package depacket

import (
	"encoding/base64"
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// HEVC NAL unit types relevant to RTP payload structure (RFC 7798).
const (
	hevcNALMaxSingle = 47
	hevcNALTypeAP    = 48
	hevcNALTypeFU    = 49
	hevcNALTypePACI  = 50
)

type hevcDepacketizer struct {
	donMode bool

	fragment    []byte
	fragmenting bool
}

// NewHEVC builds the HEVC/H.265 depacketizer.
func NewHEVC() Depacketizer {
	return &hevcDepacketizer{}
}

func (h *hevcDepacketizer) Configure(media sdpmedia.Media) (CodecParams, error) {
	extradata, err := hevcExtradata(media.Fmtp)
	if err != nil {
		return CodecParams{}, err
	}

	h.donMode = fmtpIntNonzero(media.Fmtp, "sprop-max-don-diff") || fmtpIntNonzero(media.Fmtp, "sprop-depack-buf-nalus")

	return CodecParams{Extradata: extradata, ClockRate: media.ClockRate}, nil
}

func fmtpIntNonzero(fmtp map[string]string, key string) bool {
	v, ok := fmtp[key]
	if !ok {
		return false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	return err == nil && n > 0
}

// hevcExtradata builds Annex-B extradata from the union of sprop-vps,
// sprop-sps, sprop-pps, sprop-sei (each base64, possibly comma-separated).
func hevcExtradata(fmtp map[string]string) ([]byte, error) {
	var out []byte
	for _, key := range []string{"sprop-vps", "sprop-sps", "sprop-pps", "sprop-sei"} {
		raw, ok := fmtp[key]
		if !ok || raw == "" {
			continue
		}
		for _, s := range strings.Split(raw, ",") {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			decoded, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				return nil, fmt.Errorf("hevc: decode %s: %w", key, err)
			}
			out = append(out, annexBStartCode...)
			out = append(out, decoded...)
			out = append(out, make([]byte, fuaPaddingZeros)...)
		}
	}
	return out, nil
}

func (h *hevcDepacketizer) Handle(pkt *rtppacket.Packet) ([]AccessUnit, error) {
	if pkt == nil {
		h.fragment = nil
		h.fragmenting = false
		return nil, nil
	}
	if len(pkt.Payload) < 2 {
		return nil, fmt.Errorf("hevc: payload shorter than payload header")
	}

	b0, b1 := pkt.Payload[0], pkt.Payload[1]
	nalType := (b0 >> 1) & 0x3F
	lid := ((b0 << 5) & 0x20) | ((b1 >> 3) & 0x1F)
	tid := b1 & 0x07

	if lid != 0 {
		return nil, fmt.Errorf("hevc: unsupported layer id %d", lid)
	}
	if tid == 0 {
		return nil, fmt.Errorf("hevc: invalid temporal id 0")
	}

	switch {
	case nalType <= hevcNALMaxSingle:
		return []AccessUnit{withStartCode(pkt.Payload)}, nil
	case nalType == hevcNALTypeAP:
		return h.handleAP(pkt.Payload)
	case nalType == hevcNALTypeFU:
		return h.handleFU(pkt.Payload, b0, b1)
	case nalType == hevcNALTypePACI:
		return nil, nil // not supported, drop
	default:
		return nil, fmt.Errorf("hevc: unsupported NAL type %d", nalType)
	}
}

func (h *hevcDepacketizer) handleAP(payload []byte) ([]AccessUnit, error) {
	rest := payload[2:]
	if h.donMode {
		if len(rest) < 2 {
			return nil, fmt.Errorf("hevc: AP too short for DONL")
		}
		rest = rest[2:]
	}

	var out []AccessUnit
	first := true
	for len(rest) > 2 {
		if h.donMode && !first {
			if len(rest) < 1 {
				return nil, fmt.Errorf("hevc: AP too short for DOND")
			}
			rest = rest[1:]
		}
		if len(rest) < 2 {
			return nil, fmt.Errorf("hevc: AP truncated size field")
		}
		size := binary.BigEndian.Uint16(rest[:2])
		rest = rest[2:]
		if int(size) > len(rest) {
			return nil, fmt.Errorf("hevc: AP NAL size %d exceeds remaining payload", size)
		}
		out = append(out, withStartCode(rest[:size]))
		rest = rest[size:]
		first = false
	}
	return out, nil
}

func (h *hevcDepacketizer) handleFU(payload []byte, b0, b1 byte) ([]AccessUnit, error) {
	if len(payload) < 3 {
		return nil, fmt.Errorf("hevc: FU packet too short")
	}
	fuHeader := payload[2]
	rest := payload[3:]

	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	fuType := fuHeader & 0x3F

	if h.donMode {
		if len(rest) < 2 {
			return nil, fmt.Errorf("hevc: FU too short for DONL")
		}
		rest = rest[2:]
	}

	if start {
		nalB0 := (b0 & 0x81) | (fuType << 1)
		h.fragment = append(h.fragment[:0], nalB0, b1)
		h.fragmenting = true
	}
	if !h.fragmenting {
		return nil, fmt.Errorf("hevc: FU continuation without start")
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
