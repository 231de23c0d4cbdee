package orchestrator

import (
	"fmt"
	"path/filepath"

	"github.com/gtfodev/rtsp-reconstruct/internal/codec"
	"github.com/gtfodev/rtsp-reconstruct/internal/depacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/logger"
	"github.com/gtfodev/rtsp-reconstruct/internal/reassemble"
	"github.com/gtfodev/rtsp-reconstruct/internal/rtppacket"
	"github.com/gtfodev/rtsp-reconstruct/internal/sdpmedia"
)

// maxPendingFrames bounds how many decoded frames a slot buffers before the
// output stream parameters are known; beyond this it falls back to the
// configured default codec rather than buffering indefinitely.
const maxPendingFrames = 100

// decoderSlot owns one logical stream's depacketizer, input codec context,
// output container, and per-stream packet reassembler.
type decoderSlot struct {
	id    uint64
	media sdpmedia.Media

	depacketizer depacket.Depacketizer
	inputDecoder codec.Decoder
	muxer        codec.Muxer
	lib          codec.Library

	outputEncoder codec.Encoder
	streamIndex   int
	outputOpened  bool
	pendingFrames []codec.Frame

	// gapsSkipped counts reassembly emissions flagged as skipped (each one
	// follows a gap in this slot's RTP sequence), for the run's end-of-run
	// statistics.
	gapsSkipped int

	reassembler *reassemble.Reassembler[rtppacket.Packet]

	defaultVideoCodec string
	defaultAudioCodec string
	forceVideoCodec   bool
	forceAudioCodec   bool

	log *logger.Logger
}

func (o *Orchestrator) createDecoder(id uint64, media *sdpmedia.Media) (*decoderSlot, error) {
	dep, err := depacket.New(media.Codec)
	if err != nil {
		return nil, err
	}
	params, err := dep.Configure(*media)
	if err != nil {
		return nil, fmt.Errorf("configure %s depacketizer: %w", media.Codec, err)
	}

	kind := codec.KindAudio
	if media.MediaType == "video" {
		kind = codec.KindVideo
	}

	dec, err := o.cfg.Library.NewDecoder(media.Codec, params.Extradata, codec.StreamParams{
		Kind:      kind,
		CodecName: media.Codec,
		ClockRate: int(media.ClockRate),
		Channels:  params.Channels,
	})
	if err != nil {
		return nil, fmt.Errorf("open input codec context for %s: %w", media.Codec, err)
	}

	path := filepath.Join(o.cfg.OutputDir, fmt.Sprintf("%s%d.%s", o.cfg.Prefix, id, o.cfg.Format))
	mux, err := o.cfg.Library.OpenMuxer(path, o.cfg.Format)
	if err != nil {
		return nil, fmt.Errorf("open output container %s: %w", path, err)
	}

	return &decoderSlot{
		id:                id,
		media:             *media,
		depacketizer:      dep,
		inputDecoder:      dec,
		muxer:             mux,
		lib:               o.cfg.Library,
		reassembler:       reassemble.New[rtppacket.Packet](16, 50, reassemble.PacketMode, nil),
		defaultVideoCodec: o.cfg.DefaultVideoCodec,
		defaultAudioCodec: o.cfg.DefaultAudioCodec,
		forceVideoCodec:   o.cfg.ForceVideoCodec,
		forceAudioCodec:   o.cfg.ForceAudioCodec,
		log:               o.cfg.Log,
	}, nil
}

// process feeds one RTP packet through this slot's reassembler and on to
// depacketization/decode/encode/mux.
func (s *decoderSlot) process(pkt rtppacket.Packet) error {
	emissions, err := s.reassembler.Process(pkt, uint64(pkt.SequenceNum))
	if err != nil {
		return err
	}
	return s.consumeEmissions(emissions)
}

func (s *decoderSlot) consumeEmissions(emissions []reassemble.Emission[rtppacket.Packet]) error {
	for _, em := range emissions {
		if em.Item == nil {
			continue
		}
		if em.Skipped {
			s.gapsSkipped++
			if s.log != nil {
				s.log.DebugCategory(logger.CategoryRTP, "reassembly gap", "decoder_id", s.id)
			}
		}
		s.consumeRTP(*em.Item)
	}
	return nil
}

// consumeRTP depacketizes one admitted RTP packet; depacketization and
// decode errors are transient and logged, not propagated, so one bad packet
// does not abort the stream.
func (s *decoderSlot) consumeRTP(pkt rtppacket.Packet) {
	aus, err := s.depacketizer.Handle(&pkt)
	if err != nil {
		if s.log != nil {
			s.log.DebugCategory(logger.CategoryDepacket, "depacketize error", "decoder_id", s.id, "error", err)
		}
		return
	}
	for _, au := range aus {
		s.feedDecoder(au)
	}
}

func (s *decoderSlot) feedDecoder(au depacket.AccessUnit) {
	frames, err := s.inputDecoder.Decode(au)
	if err != nil {
		if s.log != nil {
			s.log.DebugCategory(logger.CategoryCodec, "decode error", "decoder_id", s.id, "error", err)
		}
		return
	}
	for _, f := range frames {
		if err := s.handleFrame(f); err != nil && s.log != nil {
			s.log.Warn("frame handling failed", "decoder_id", s.id, "error", err)
		}
	}
}

// handleFrame buffers frames until the output stream can be opened (either
// because the input codec reports ready, or because the pending buffer
// overflowed and a default codec fallback is used instead), then flushes
// whatever was buffered followed by the current frame.
func (s *decoderSlot) handleFrame(frame codec.Frame) error {
	if s.outputOpened {
		return s.encodeAndMux(frame)
	}

	s.pendingFrames = append(s.pendingFrames, frame)

	switch {
	case s.inputDecoder.Ready():
		if err := s.openOutputStream(false); err != nil {
			return err
		}
	case len(s.pendingFrames) > maxPendingFrames:
		if err := s.openOutputStream(true); err != nil {
			return err
		}
	default:
		return nil
	}

	buffered := s.pendingFrames
	s.pendingFrames = nil
	for _, f := range buffered {
		if err := s.encodeAndMux(f); err != nil {
			return err
		}
	}
	return nil
}

func (s *decoderSlot) openOutputStream(forceDefault bool) error {
	params := s.inputDecoder.Params()

	useDefault := forceDefault
	defaultCodec := s.defaultVideoCodec
	if params.Kind == codec.KindVideo {
		useDefault = useDefault || s.forceVideoCodec
	} else {
		defaultCodec = s.defaultAudioCodec
		useDefault = useDefault || s.forceAudioCodec
	}

	codecName := params.CodecName
	if useDefault {
		codecName = defaultCodec
	}

	out := codec.StreamParams{
		Kind:      params.Kind,
		CodecName: codecName,
		Width:     params.Width,
		Height:    params.Height,
		Channels:  params.Channels,
	}
	if params.Kind == codec.KindVideo {
		out.ClockRate = 30
		if params.ClockRate > 1 && params.ClockRate < 120 {
			out.ClockRate = params.ClockRate
		}
	} else {
		out.ClockRate = params.ClockRate
	}

	enc, err := s.lib.NewEncoder(codecName, out)
	if err != nil && codecName != defaultCodec {
		out.CodecName = defaultCodec
		enc, err = s.lib.NewEncoder(defaultCodec, out)
	}
	if err != nil {
		return fmt.Errorf("open output encoder: %w", err)
	}

	idx, err := s.muxer.AddStream(out)
	if err != nil {
		return fmt.Errorf("add output stream: %w", err)
	}

	s.outputEncoder = enc
	s.streamIndex = idx
	s.outputOpened = true
	return nil
}

func (s *decoderSlot) encodeAndMux(frame codec.Frame) error {
	packets, err := s.outputEncoder.Encode(&frame)
	if err != nil {
		return fmt.Errorf("encode frame: %w", err)
	}
	for _, p := range packets {
		if err := s.muxer.WritePacket(s.streamIndex, p, frame.PTS, frame.KeyFrame); err != nil {
			return fmt.Errorf("write packet: %w", err)
		}
	}
	return nil
}

// close drains the packet reassembler, flushes the depacketizer, decoder,
// and (if opened) the encoder, then closes the output container.
func (s *decoderSlot) close() error {
	emissions := s.reassembler.Finalize()
	s.consumeEmissions(emissions)

	aus, err := s.depacketizer.Handle(nil)
	if err != nil && s.log != nil {
		s.log.DebugCategory(logger.CategoryDepacket, "flush error", "decoder_id", s.id, "error", err)
	}
	for _, au := range aus {
		s.feedDecoder(au)
	}

	frames, err := s.inputDecoder.Decode(nil)
	if err != nil && s.log != nil {
		s.log.DebugCategory(logger.CategoryCodec, "decoder flush error", "decoder_id", s.id, "error", err)
	}
	for _, f := range frames {
		if err := s.handleFrame(f); err != nil && s.log != nil {
			s.log.Warn("frame handling failed during flush", "decoder_id", s.id, "error", err)
		}
	}

	if s.outputOpened {
		packets, err := s.outputEncoder.Encode(nil)
		if err != nil {
			return fmt.Errorf("flush encoder: %w", err)
		}
		for _, p := range packets {
			if err := s.muxer.WritePacket(s.streamIndex, p, 0, false); err != nil {
				return fmt.Errorf("write flushed packet: %w", err)
			}
		}
	}

	if err := s.muxer.Close(); err != nil {
		return fmt.Errorf("close container: %w", err)
	}
	return nil
}
