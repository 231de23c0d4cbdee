// Package codec names the contract this pipeline expects from an external
// decode/encode/mux library (a libav-style codec and container library is
// explicitly out of scope for this repository; only its contract is named
// here, per the system's external-interfaces boundary).
package codec

// Kind distinguishes video from audio streams.
type Kind int

const (
	KindVideo Kind = iota
	KindAudio
)

// StreamParams describes one output stream's codec parameters, as known
// once the input codec context reports them ready.
type StreamParams struct {
	Kind      Kind
	CodecName string

	Width  int
	Height int

	ClockRate int // input decoder: SDP clock rate; output video: frame rate in Hz if that rate is in (1,120), else 30; output audio: sample rate
	Channels  int // audio only
}

// Frame is one decoded elementary frame, handed from a Decoder to an
// Encoder.
type Frame struct {
	Data     []byte
	PTS      int64
	KeyFrame bool
}

// Decoder is an input codec context: it consumes access units produced by a
// depacket.Depacketizer and emits decoded frames once enough of them have
// accumulated to produce output (e.g. a GOP boundary).
type Decoder interface {
	// Decode feeds one access unit. A nil au is a flush signal: emit
	// whatever frames remain buffered.
	Decode(au []byte) ([]Frame, error)
	// Ready reports whether codec parameters (resolution for video, sample
	// rate for audio) are now known from the bitstream.
	Ready() bool
	// Params returns the stream parameters derived from the bitstream so
	// far. Only meaningful once Ready returns true.
	Params() StreamParams
}

// Encoder is an output stream encoder targeting a concrete output codec.
type Encoder interface {
	// Encode feeds one decoded frame and returns zero or more encoded
	// packets ready to mux. A nil frame flushes the encoder.
	Encode(frame *Frame) ([][]byte, error)
}

// Muxer owns one output container file.
type Muxer interface {
	// AddStream declares one output stream and returns its index.
	AddStream(params StreamParams) (streamIndex int, err error)
	// WritePacket writes one encoded packet to the given stream.
	WritePacket(streamIndex int, data []byte, pts int64, keyFrame bool) error
	// Close flushes and closes the container.
	Close() error
}

// Library is the external collaborator boundary: given a codec name and
// stream parameters, it constructs decoders, encoders, and muxers. A real
// implementation wraps a libav-style native library; this repository only
// depends on the interface.
type Library interface {
	NewDecoder(codecName string, extradata []byte, params StreamParams) (Decoder, error)
	NewEncoder(codecName string, params StreamParams) (Encoder, error)
	OpenMuxer(path, format string) (Muxer, error)
}
