// Package rtspsession tracks one RTSP TCP flow from its first DESCRIBE/SETUP
// exchange through to the point where enough SETUP responses have arrived to
// account for every SDP media description (or the flow ends), and frames any
// interleaved RTP that follows on the same connection.
package rtspsession

import (
	"github.com/google/uuid"
	"github.com/pion/rtp"

	"github.com/gtfodev/rtsp-reconstruct/internal/logger"
	"github.com/gtfodev/rtsp-reconstruct/internal/reassemble"
	"github.com/gtfodev/rtsp-reconstruct/internal/rtspproto"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// State is the session's lifecycle stage.
type State int

const (
	// StateProcessingRTSP is accumulating and classifying RTSP responses.
	StateProcessingRTSP State = iota
	// StateRTSPReady has a full SDP but is still waiting on SETUP responses.
	StateRTSPReady
	// StateProcessingRTP has every expected transport negotiated and, for
	// interleaved transports, is now framing RTP out of the same TCP stream.
	StateProcessingRTP
	// StateDone needs no further segments.
	StateDone
)

// Segment is one TCP segment traveling server-to-client on the flow this
// Session tracks.
type Segment struct {
	Seq           uint32
	Data          []byte
	FIN           bool
	Urgent        bool
	UrgentPointer uint16
}

// Session is the per-TCP-flow RTSP state machine.
type Session struct {
	ServerAddr string
	ClientAddr string

	// ID uniquely identifies this session for log correlation across the
	// orchestrator's two capture passes.
	ID string

	State State

	SDP              *sdpmedia.SDP
	TransportHeaders []Transport

	DataChannels    []int
	ControlChannels []int

	// GapsSkipped counts reassembly emissions flagged as skipped (each one
	// follows a sequence gap), for the run's end-of-run statistics.
	GapsSkipped int

	byteReasm   *reassemble.Reassembler[[]byte]
	accumulator []byte
	interleaver *Interleaver

	log *logger.Logger
}

// New builds a Session for one TCP flow identified by its server and client
// endpoints (address:port strings; the orchestrator also splits them to
// register the UDP 5-tuples negotiated by SETUP).
func New(serverAddr, clientAddr string, log *logger.Logger) *Session {
	return &Session{
		ServerAddr: serverAddr,
		ClientAddr: clientAddr,
		ID:         uuid.New().String(),
		State:      StateProcessingRTSP,
		byteReasm: reassemble.New[[]byte](32, 30, reassemble.DataMode, func(b []byte) uint64 {
			return uint64(len(b))
		}),
		log: log,
	}
}

// Process consumes one TCP segment (server-to-client direction) and returns
// any RTP packets framed out of it, once the session has transitioned into
// interleaved RTP mode. Passing a nil segment signals TCP flow end and
// finalizes pending reassembly.
func (s *Session) Process(seg *Segment) ([]*rtp.Packet, error) {
	if s.State == StateDone {
		return nil, nil
	}

	if seg == nil {
		return s.finalize()
	}

	payload := urgentTruncate(seg)
	if payload == nil {
		return nil, nil
	}

	emissions, err := s.byteReasm.Process(payload, uint64(seg.Seq))
	if err != nil {
		return nil, err
	}

	var out []*rtp.Packet
	out = append(out, s.consume(emissions)...)

	if seg.FIN {
		fin, err := s.finalize()
		if err != nil {
			return out, err
		}
		out = append(out, fin...)
	}

	return out, nil
}

// urgentTruncate applies the urgent-pointer rule: a segment with the urgent
// flag set but no data and a zero urgent pointer is ignored outright;
// otherwise only the in-order portion up to the urgent pointer (or the full
// segment, if not urgent) is taken.
func urgentTruncate(seg *Segment) []byte {
	if !seg.Urgent {
		return seg.Data
	}
	if seg.UrgentPointer == 0 && len(seg.Data) == 0 {
		return nil
	}
	limit := int(seg.UrgentPointer)
	if limit > len(seg.Data) || limit == 0 {
		limit = len(seg.Data)
	}
	return seg.Data[:limit]
}

// consume routes reassembled byte chunks to either RTSP response parsing or
// interleaved RTP framing, depending on the current state.
func (s *Session) consume(emissions []reassemble.Emission[[]byte]) []*rtp.Packet {
	var out []*rtp.Packet

	for _, em := range emissions {
		if em.Item == nil {
			continue // end-of-stream sentinel: nothing more to feed
		}

		if s.State == StateProcessingRTP {
			if em.Skipped {
				s.GapsSkipped++
				s.interleaver.Reset()
			}
			out = append(out, s.interleaver.Feed(*em.Item)...)
			continue
		}

		if em.Skipped {
			// A gap in the RTSP response stream invalidates whatever partial
			// response we were accumulating.
			s.GapsSkipped++
			s.accumulator = s.accumulator[:0]
		}
		s.accumulator = append(s.accumulator, *em.Item...)
		s.drainRTSP()

		if s.State == StateProcessingRTP && len(s.accumulator) > 0 {
			leftover := s.accumulator
			s.accumulator = nil
			out = append(out, s.interleaver.Feed(leftover)...)
		}
	}

	return out
}

// drainRTSP repeatedly parses complete RTSP responses out of the front of
// s.accumulator, classifying each one, until it runs out of data or the
// session transitions out of RTSP-response mode.
func (s *Session) drainRTSP() {
	for s.State != StateProcessingRTP && s.State != StateDone {
		resp, n, err := rtspproto.Parse(s.accumulator)
		if err == rtspproto.ErrNeedMore {
			return
		}
		if err == rtspproto.ErrMalformed {
			if !s.resyncToNextStatusLine() {
				return
			}
			continue
		}
		if err != nil {
			return
		}

		s.accumulator = s.accumulator[n:]
		s.classify(resp)
	}
}

// resyncToNextStatusLine drops bytes up to (but not including) the next
// "RTSP/" occurrence, so parsing can forward-recover from corruption rather
// than stalling forever. Returns false if no candidate offset was found.
func (s *Session) resyncToNextStatusLine() bool {
	marker := []byte("RTSP/")
	for i := 1; i+len(marker) <= len(s.accumulator); i++ {
		if string(s.accumulator[i:i+len(marker)]) == string(marker) {
			s.accumulator = s.accumulator[i:]
			return true
		}
	}
	return false
}

// classify inspects one parsed RTSP response and updates session state:
// a 2xx SDP body becomes the session's SDP, a 2xx Transport header is
// recorded, and once every SDP media has a matching transport the session
// is ready to move on (interleaved) or done (UDP/multicast).
func (s *Session) classify(resp *rtspproto.Response) {
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return
	}

	if ct := resp.Headers.Get("Content-Type"); ct == "application/sdp" && len(resp.Body) > 0 {
		if sdp, err := sdpmedia.Parse(resp.Body); err == nil {
			s.SDP = sdp
			s.State = StateRTSPReady
			if s.log != nil {
				s.log.DebugCategory(logger.CategoryRTSP, "parsed SDP", "session_id", s.ID, "medias", len(sdp.Medias))
			}
		}
		return
	}

	if tv := resp.Headers.Get("Transport"); tv != "" {
		t := ParseTransport(tv)
		s.TransportHeaders = append(s.TransportHeaders, t)
		if t.HasInterleaved {
			s.DataChannels = append(s.DataChannels, t.Interleaved[0])
			s.ControlChannels = append(s.ControlChannels, t.Interleaved[1])
		}

		if s.SDP != nil && len(s.TransportHeaders) >= len(s.SDP.Medias) {
			s.onTransportsComplete()
		}
	}
}

// onTransportsComplete fires once one transport header has arrived per SDP
// media description: interleaved transports move the session into RTP
// framing mode on this same TCP flow, everything else is done.
func (s *Session) onTransportsComplete() {
	if len(s.DataChannels) > 0 {
		s.interleaver = NewInterleaver(s.DataChannels, s.ControlChannels, s.log)
		s.State = StateProcessingRTP
		return
	}
	s.State = StateDone
}

// finalize drains the byte reassembler's remaining held segments and marks
// the session done.
func (s *Session) finalize() ([]*rtp.Packet, error) {
	emissions := s.byteReasm.Finalize()
	out := s.consume(emissions)
	s.State = StateDone
	return out, nil
}
