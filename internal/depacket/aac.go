package depacket

import (
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

const maxFragmentBuffer = 8191

// aacDepacketizer implements RFC 3640 mpeg4-generic AU-header parsing and
// fragment reassembly.
type aacDepacketizer struct {
	sizeLength       int
	indexLength      int
	indexDeltaLength int

	fragmenting    bool
	expectedTotal  int
	buffered       []byte
	firstTimestamp uint32
}

// NewAAC builds the AAC (mpeg4-generic) depacketizer.
func NewAAC() Depacketizer {
	return &aacDepacketizer{}
}

func (a *aacDepacketizer) Configure(media sdpmedia.Media) (CodecParams, error) {
	sizeLen, ok := fmtpRangedInt(media.Fmtp, "sizelength", 0, 32)
	if !ok {
		return CodecParams{}, fmt.Errorf("aac: missing or invalid sizelength")
	}
	indexLen, ok := fmtpRangedInt(media.Fmtp, "indexlength", 0, 32)
	if !ok {
		return CodecParams{}, fmt.Errorf("aac: missing or invalid indexlength")
	}
	indexDeltaLen, _ := fmtpRangedInt(media.Fmtp, "indexdeltalength", 0, 32)

	if v, present := media.Fmtp["profile-level-id"]; present {
		if _, err := strconv.ParseInt(v, 10, 32); err != nil {
			return CodecParams{}, fmt.Errorf("aac: invalid profile-level-id: %w", err)
		}
	}
	if st, ok := fmtpRangedInt(media.Fmtp, "streamtype", 0, 0x3F); media.Fmtp["streamtype"] != "" && !ok {
		return CodecParams{}, fmt.Errorf("aac: invalid streamtype %d", st)
	}

	a.sizeLength = sizeLen
	a.indexLength = indexLen
	a.indexDeltaLength = indexDeltaLen

	var extradata []byte
	if cfg := media.Fmtp["config"]; cfg != "" {
		decoded, err := hex.DecodeString(cfg)
		if err != nil {
			return CodecParams{}, fmt.Errorf("aac: decode config: %w", err)
		}
		extradata = decoded
	}

	channels := media.Channels
	if channels == 0 {
		channels = 1
	}

	return CodecParams{Extradata: extradata, ClockRate: media.ClockRate, Channels: channels}, nil
}

func fmtpRangedInt(fmtp map[string]string, key string, min, max int) (int, bool) {
	v, present := fmtp[key]
	if !present {
		return 0, false
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < min || n > max {
		return 0, false
	}
	return n, true
}

type auHeader struct {
	size  int
	index int
}

func (a *aacDepacketizer) Handle(pkt *rtppacket.Packet) ([]AccessUnit, error) {
	if pkt == nil {
		a.fragmenting = false
		a.buffered = nil
		return nil, nil
	}
	if len(pkt.Payload) < 2 {
		return nil, fmt.Errorf("aac: packet shorter than AU-headers-length field")
	}

	auHeadersLengthBits := binary.BigEndian.Uint16(pkt.Payload[:2])
	auHeadersLengthBytes := int((auHeadersLengthBits + 7) / 8)
	if len(pkt.Payload) < 2+auHeadersLengthBytes {
		return nil, fmt.Errorf("aac: packet truncated before end of AU-headers")
	}

	headerBitWidth := a.sizeLength + a.indexLength
	if headerBitWidth <= 0 {
		return nil, fmt.Errorf("aac: zero-width AU-header")
	}
	if int(auHeadersLengthBits)%headerBitWidth != 0 {
		return nil, fmt.Errorf("aac: AU-headers area does not divide evenly by header width")
	}
	numHeaders := int(auHeadersLengthBits) / headerBitWidth

	headersBuf := pkt.Payload[2 : 2+auHeadersLengthBytes]
	dataBuf := pkt.Payload[2+auHeadersLengthBytes:]

	br := newBitReader(headersBuf)
	headers := make([]auHeader, 0, numHeaders)
	for i := 0; i < numHeaders; i++ {
		size, err := br.readBits(a.sizeLength)
		if err != nil {
			return nil, fmt.Errorf("aac: read AU size: %w", err)
		}
		var index int
		if i == 0 {
			index, err = br.readBits(a.indexLength)
		} else {
			index, err = br.readBits(a.indexDeltaLength)
			if err == nil && index != 0 {
				return nil, fmt.Errorf("aac: AU-header interleaving not supported")
			}
		}
		if err != nil {
			return nil, fmt.Errorf("aac: read AU index: %w", err)
		}
		headers = append(headers, auHeader{size: size, index: index})
	}

	if len(headers) == 1 && len(dataBuf) < headers[0].size {
		return a.handleFragment(pkt, headers[0].size, dataBuf)
	}

	var out []AccessUnit
	offset := 0
	for _, h := range headers {
		if offset+h.size > len(dataBuf) {
			return nil, fmt.Errorf("aac: AU size %d exceeds remaining data section", h.size)
		}
		out = append(out, AccessUnit(dataBuf[offset:offset+h.size]))
		offset += h.size
	}
	return out, nil
}

func (a *aacDepacketizer) handleFragment(pkt *rtppacket.Packet, expected int, data []byte) ([]AccessUnit, error) {
	if a.fragmenting && (pkt.Timestamp != a.firstTimestamp || expected != a.expectedTotal) {
		a.fragmenting = false
		a.buffered = nil
	}
	if !a.fragmenting {
		a.fragmenting = true
		a.expectedTotal = expected
		a.firstTimestamp = pkt.Timestamp
		a.buffered = append([]byte(nil), data...)
	} else {
		a.buffered = append(a.buffered, data...)
	}

	if len(a.buffered) > maxFragmentBuffer {
		a.fragmenting = false
		a.buffered = nil
		return nil, fmt.Errorf("aac: fragment buffer overflow")
	}

	if !pkt.Marker {
		return nil, nil
	}

	complete := len(a.buffered) == a.expectedTotal
	out := a.buffered
	a.fragmenting = false
	a.buffered = nil

	if !complete {
		return nil, fmt.Errorf("aac: fragment size mismatch at marker bit, discarding")
	}
	return []AccessUnit{AccessUnit(out)}, nil
}

// bitReader reads an MSB-first bitstream packed into bytes.
type bitReader struct {
	buf     []byte
	bitPos  int
	maxBits int
}

func newBitReader(buf []byte) *bitReader {
	return &bitReader{buf: buf, maxBits: len(buf) * 8}
}

func (b *bitReader) readBits(n int) (int, error) {
	if n == 0 {
		return 0, nil
	}
	if b.bitPos+n > b.maxBits {
		return 0, fmt.Errorf("bitreader: out of range reading %d bits", n)
	}
	var v int
	for i := 0; i < n; i++ {
		byteIdx := (b.bitPos + i) / 8
		bitIdx := 7 - (b.bitPos+i)%8
		bit := (b.buf[byteIdx] >> bitIdx) & 1
		v = (v << 1) | int(bit)
	}
	b.bitPos += n
	return v, nil
}
