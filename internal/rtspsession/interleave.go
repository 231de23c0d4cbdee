package rtspsession

import (
	"github.com/pion/rtp"

	"github.com/gtfodev/rtsp-reconstruct/internal/logger"
)

// interleaveMagic is the '$' byte that introduces an interleaved frame,
// per RFC 2326 §10.12.
const interleaveMagic = 0x24

const (
	minInterleavedPayload = 12
	maxInterleavedPayload = 8192
)

// Interleaver turns a byte stream carrying RFC 2326 §10.12 interleaved
// frames ($<channel><u16 length><payload>) into RTP packets, discarding
// RTCP frames on control channels and resynchronizing on the next magic
// byte whenever validation fails or a reassembly gap is signalled.
type Interleaver struct {
	dataChannels    map[int]bool
	controlChannels map[int]bool
	buf             []byte
	log             *logger.Logger
}

// NewInterleaver builds an Interleaver scoped to the given data/control
// channel numbers (as negotiated by SETUP Transport headers).
func NewInterleaver(dataChannels, controlChannels []int, log *logger.Logger) *Interleaver {
	in := &Interleaver{
		dataChannels:    make(map[int]bool, len(dataChannels)),
		controlChannels: make(map[int]bool, len(controlChannels)),
		log:             log,
	}
	for _, c := range dataChannels {
		in.dataChannels[c] = true
	}
	for _, c := range controlChannels {
		in.controlChannels[c] = true
	}
	return in
}

// Reset clears buffered bytes, used when the underlying byte reassembler
// signals a gap: the framer can no longer trust its buffered offset and
// must resynchronize on the next magic byte in fresh data.
func (in *Interleaver) Reset() {
	in.buf = in.buf[:0]
}

// Feed appends data to the internal buffer and extracts as many complete,
// valid frames as possible, returning the RTP packets found on data
// channels. Control-channel (RTCP) frames are discarded.
func (in *Interleaver) Feed(data []byte) []*rtp.Packet {
	in.buf = append(in.buf, data...)

	var out []*rtp.Packet
	for {
		if len(in.buf) < 4 {
			return out
		}

		if in.buf[0] != interleaveMagic {
			idx := nextMagic(in.buf[1:])
			if idx < 0 {
				// No magic byte anywhere in the buffer: drop it all, nothing
				// to resync on yet.
				in.buf = in.buf[:0]
				return out
			}
			in.buf = in.buf[1+idx:]
			continue
		}

		channel := int(in.buf[1])
		length := int(in.buf[2])<<8 | int(in.buf[3])

		if !in.validChannel(channel) || length < minInterleavedPayload || length > maxInterleavedPayload {
			// Not a genuine frame header at this offset; scan forward.
			idx := nextMagic(in.buf[1:])
			if idx < 0 {
				in.buf = in.buf[:0]
				return out
			}
			in.buf = in.buf[1+idx:]
			continue
		}

		if len(in.buf) < 4+length {
			return out // wait for more data
		}

		payload := in.buf[4 : 4+length]
		in.buf = in.buf[4+length:]

		if in.controlChannels[channel] {
			continue // RTCP: discarded per spec
		}

		pkt := &rtp.Packet{}
		if err := pkt.Unmarshal(payload); err != nil {
			if in.log != nil {
				in.log.DebugCategory(logger.CategoryInterleave, "dropping unparsable interleaved RTP payload",
					"channel", channel, "length", length, "error", err)
			}
			continue
		}
		out = append(out, pkt)
	}
}

func (in *Interleaver) validChannel(ch int) bool {
	return in.dataChannels[ch] || in.controlChannels[ch]
}

func nextMagic(b []byte) int {
	for i, c := range b {
		if c == interleaveMagic {
			return i
		}
	}
	return -1
}
