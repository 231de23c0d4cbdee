// Package orchestrator wires the packet source, RTSP session tracking, and
// per-stream decode/encode/mux pipeline together: it maintains the global
// association table (flow, SSRC, payload type) → decoder id and drives the
// two-pass capture iteration the interleaved-TCP/UDP split requires.
package orchestrator

import (
	"fmt"
	"io"
	"net"
	"os"

	"github.com/pion/rtp"

	"github.com/gtfodev/rtsp-reconstruct/internal/capture"
	"github.com/gtfodev/rtsp-reconstruct/internal/codec"
	"github.com/gtfodev/rtsp-reconstruct/internal/flowkey"
	"github.com/gtfodev/rtsp-reconstruct/internal/logger"
	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/rtspsession"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// knownRTSPPorts identifies which TCP flows carry RTSP signaling.
var knownRTSPPorts = map[int]bool{554: true, 8554: true, 7236: true}

// Config holds the options that shape decoder-slot creation and output
// naming.
type Config struct {
	OutputDir         string
	Prefix            string
	Format            string
	DefaultVideoCodec string
	DefaultAudioCodec string
	ForceVideoCodec   bool
	ForceAudioCodec   bool
	Fast              bool
	DumpSDP           bool
	Library           codec.Library
	Log               *logger.Logger
}

// Identity is the (flow, SSRC, payload type) triple that disambiguates
// logical RTP streams sharing a transport.
type Identity struct {
	Flow        flowkey.Key
	SSRC        uint32
	PayloadType uint8
}

// Stats summarizes one run, for the CLI's end-of-run report.
type Stats struct {
	DecodersCreated       int
	IdentitiesInvalidated int
	RTPPacketsProcessed   int
	ReassemblyGapsSkipped int
}

// Orchestrator owns the global identity table and the RTSP/UDP session
// registries for one capture run.
type Orchestrator struct {
	cfg Config

	nextDecoderID uint64
	identities    map[Identity]uint64
	invalid       map[Identity]bool
	slots         map[uint64]*decoderSlot

	rtspSessions  map[flowkey.Key]*rtspsession.Session
	udpSessions   map[flowkey.Key]*rtspsession.Session
	resolvedFlows map[flowkey.Key]bool
	dumpedSDP     map[flowkey.Key]bool

	stats Stats
}

// New builds an Orchestrator for one run.
func New(cfg Config) *Orchestrator {
	if cfg.Library == nil {
		cfg.Library = codec.NewNativeLibrary()
	}
	return &Orchestrator{
		cfg:           cfg,
		identities:    make(map[Identity]uint64),
		invalid:       make(map[Identity]bool),
		slots:         make(map[uint64]*decoderSlot),
		rtspSessions:  make(map[flowkey.Key]*rtspsession.Session),
		udpSessions:   make(map[flowkey.Key]*rtspsession.Session),
		resolvedFlows: make(map[flowkey.Key]bool),
		dumpedSDP:     make(map[flowkey.Key]bool),
	}
}

// Stats returns a snapshot of the run's counters. ReassemblyGapsSkipped is
// computed on demand by summing every RTSP session's and decoder slot's own
// gap counter, rather than tracked redundantly on Orchestrator itself.
func (o *Orchestrator) Stats() Stats {
	stats := o.stats
	for _, sess := range o.rtspSessions {
		stats.ReassemblyGapsSkipped += sess.GapsSkipped
	}
	for _, slot := range o.slots {
		stats.ReassemblyGapsSkipped += slot.gapsSkipped
	}
	return stats
}

// Run iterates the capture twice: once to process RTSP signaling and
// interleaved TCP RTP, registering UDP 5-tuples as they're negotiated, and
// once more to admit UDP RTP packets against those registrations.
func (o *Orchestrator) Run(src *capture.Source) error {
	for {
		pkt, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("orchestrator: pass 1: %w", err)
		}
		if pkt.Protocol == "tcp" {
			o.handleTCP(pkt)
		}
	}

	for flow, sess := range o.rtspSessions {
		if sess.State == rtspsession.StateDone {
			continue
		}
		pkts, err := sess.Process(nil)
		if err != nil && o.cfg.Log != nil {
			o.cfg.Log.DebugCategory(logger.CategoryRTSP, "session finalize error", "error", err)
		}
		o.emitRTP(flow, pkts)
		o.maybeDumpSDP(flow, sess)
		o.resolveSessionTransports(flow, sess)
	}

	if err := src.Rewind(); err != nil {
		return fmt.Errorf("orchestrator: rewind for pass 2: %w", err)
	}

	for {
		pkt, err := src.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return fmt.Errorf("orchestrator: pass 2: %w", err)
		}
		if pkt.Protocol == "udp" {
			o.handleUDP(pkt)
		}
	}

	return nil
}

// Close flushes and closes every decoder slot created during the run.
// Errors are reported per-slot and do not stop other slots from closing.
func (o *Orchestrator) Close() []error {
	var errs []error
	for _, slot := range o.slots {
		if err := slot.close(); err != nil {
			errs = append(errs, err)
			if o.cfg.Log != nil {
				o.cfg.Log.Warn("decoder slot close failed", "id", slot.id, "error", err)
			}
		}
	}
	return errs
}

func (o *Orchestrator) handleTCP(pkt *capture.Packet) {
	serverPort := knownRTSPPorts[pkt.SrcPort]
	clientPort := knownRTSPPorts[pkt.DstPort]
	if !serverPort && !clientPort {
		return
	}

	flow := flowkey.New(pkt.SrcIP.String(), pkt.SrcPort, pkt.DstIP.String(), pkt.DstPort, flowkey.TCP)
	sess, ok := o.rtspSessions[flow]
	if !ok {
		var serverAddr, clientAddr string
		if serverPort {
			serverAddr = net.JoinHostPort(pkt.SrcIP.String(), itoa(pkt.SrcPort))
			clientAddr = net.JoinHostPort(pkt.DstIP.String(), itoa(pkt.DstPort))
		} else {
			serverAddr = net.JoinHostPort(pkt.DstIP.String(), itoa(pkt.DstPort))
			clientAddr = net.JoinHostPort(pkt.SrcIP.String(), itoa(pkt.SrcPort))
		}
		sess = rtspsession.New(serverAddr, clientAddr, o.cfg.Log)
		o.rtspSessions[flow] = sess
	}

	if !serverPort {
		// Client→server direction: the session tracker only consumes
		// server→client segments.
		return
	}

	seg := &rtspsession.Segment{Seq: pkt.TCP.Seq, Data: pkt.Payload, FIN: pkt.TCP.FIN, Urgent: pkt.TCP.Urgent, UrgentPointer: pkt.TCP.UrgentPointer}
	pkts, err := sess.Process(seg)
	if err != nil && o.cfg.Log != nil {
		o.cfg.Log.DebugCategory(logger.CategoryRTSP, "session process error", "error", err)
	}
	o.emitRTP(flow, pkts)
	o.maybeDumpSDP(flow, sess)

	if sess.State == rtspsession.StateDone {
		o.resolveSessionTransports(flow, sess)
	}
}

// maybeDumpSDP prints a just-parsed session's SDP to stderr, once per flow,
// when the -dump-sdp option is set.
func (o *Orchestrator) maybeDumpSDP(flow flowkey.Key, sess *rtspsession.Session) {
	if !o.cfg.DumpSDP || sess.SDP == nil || o.dumpedSDP[flow] {
		return
	}
	o.dumpedSDP[flow] = true
	fmt.Fprintf(os.Stderr, "--- SDP for session %s (%s -> %s) ---\n", sess.ID, sess.ClientAddr, sess.ServerAddr)
	for _, m := range sess.SDP.Medias {
		fmt.Fprintf(os.Stderr, "  media=%s codec=%s payload_type=%d clock_rate=%d channels=%d\n",
			m.MediaType, m.Codec, m.PayloadType, m.ClockRate, m.Channels)
	}
}

func (o *Orchestrator) handleUDP(pkt *capture.Packet) {
	flow := flowkey.New(pkt.SrcIP.String(), pkt.SrcPort, pkt.DstIP.String(), pkt.DstPort, flowkey.UDP)
	if _, ok := o.udpSessions[flow]; !ok {
		return
	}
	rp, err := rtppacket.Parse(pkt.Payload)
	if err != nil {
		if o.cfg.Log != nil {
			o.cfg.Log.DebugCategory(logger.CategoryRTP, "unparsable UDP RTP payload", "error", err)
		}
		return
	}
	o.OnRTP(flow, rp)
}

func (o *Orchestrator) emitRTP(flow flowkey.Key, pkts []*rtp.Packet) {
	for _, p := range pkts {
		o.OnRTP(flow, rtppacket.FromPion(p))
	}
}

// resolveSessionTransports registers UDP 5-tuples for every UDP transport
// header a just-DONE session collected, exactly once per flow.
func (o *Orchestrator) resolveSessionTransports(flow flowkey.Key, sess *rtspsession.Session) {
	if o.resolvedFlows[flow] {
		return
	}
	o.resolvedFlows[flow] = true

	serverHost, _, err := net.SplitHostPort(sess.ServerAddr)
	if err != nil {
		return
	}
	clientHost, _, err := net.SplitHostPort(sess.ClientAddr)
	if err != nil {
		return
	}

	for _, t := range sess.TransportHeaders {
		if t.IsInterleavedTCP() || !t.HasServerPort || !t.HasClientPort {
			continue
		}
		udpFlow := flowkey.New(serverHost, t.ServerPort[0], clientHost, t.ClientPort[0], flowkey.UDP)
		o.udpSessions[udpFlow] = sess
	}
}

// OnRTP resolves an RTP packet's identity, creating a decoder slot on first
// sight of a new identity, and feeds the packet to its slot.
func (o *Orchestrator) OnRTP(flow flowkey.Key, pkt rtppacket.Packet) {
	o.stats.RTPPacketsProcessed++

	id := Identity{Flow: flow, SSRC: pkt.SSRC, PayloadType: pkt.PayloadType}
	if o.invalid[id] {
		return
	}

	if decID, ok := o.identities[id]; ok {
		o.feedSlot(decID, pkt)
		return
	}

	media := o.lookupMedia(flow, pkt.PayloadType)
	if media == nil {
		o.invalid[id] = true
		o.stats.IdentitiesInvalidated++
		return
	}

	decID := o.nextDecoderID
	slot, err := o.createDecoder(decID, media)
	if err != nil {
		if o.cfg.Log != nil {
			o.cfg.Log.Warn("decoder slot init failed", "codec", media.Codec, "error", err)
		}
		o.invalid[id] = true
		o.stats.IdentitiesInvalidated++
		return
	}

	o.nextDecoderID++
	o.identities[id] = decID
	o.slots[decID] = slot
	o.stats.DecodersCreated++

	o.feedSlot(decID, pkt)
}

func (o *Orchestrator) feedSlot(decID uint64, pkt rtppacket.Packet) {
	slot, ok := o.slots[decID]
	if !ok {
		return
	}
	if err := slot.process(pkt); err != nil && o.cfg.Log != nil {
		o.cfg.Log.DebugCategory(logger.CategoryCodec, "decoder slot processing error", "id", decID, "error", err)
	}
}

func (o *Orchestrator) lookupMedia(flow flowkey.Key, payloadType uint8) *sdpmedia.Media {
	var sess *rtspsession.Session
	if s, ok := o.rtspSessions[flow]; ok {
		sess = s
	} else if s, ok := o.udpSessions[flow]; ok {
		sess = s
	}
	if sess == nil || sess.SDP == nil {
		return nil
	}
	for i := range sess.SDP.Medias {
		if sess.SDP.Medias[i].PayloadType == payloadType {
			return &sess.SDP.Medias[i]
		}
	}
	return nil
}

func itoa(n int) string {
	return fmt.Sprintf("%d", n)
}
