package codec

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"os"
)

// nativeLibrary is a minimal, dependency-free Library implementation: it
// treats every access unit as one decoded frame and writes encoded packets
// to a simple length-prefixed container of this repository's own design.
// It exists to exercise decoder-slot sequencing end to end without a real
// libav binding, which this repository does not depend on.
type nativeLibrary struct{}

// NewNativeLibrary builds the default Library used when no other codec
// library is configured.
func NewNativeLibrary() Library {
	return &nativeLibrary{}
}

func (l *nativeLibrary) NewDecoder(codecName string, extradata []byte, params StreamParams) (Decoder, error) {
	return &passthroughDecoder{codecName: codecName, extradata: extradata, params: params}, nil
}

func (l *nativeLibrary) NewEncoder(codecName string, params StreamParams) (Encoder, error) {
	return &passthroughEncoder{codecName: codecName, params: params}, nil
}

func (l *nativeLibrary) OpenMuxer(path, format string) (Muxer, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("codec: create %s: %w", path, err)
	}
	w := bufio.NewWriter(f)
	if _, err := w.WriteString("RCMX" + format + "\x00"); err != nil {
		f.Close()
		return nil, fmt.Errorf("codec: write container header: %w", err)
	}
	return &fileMuxer{file: f, w: w}, nil
}

// defaultVideoWidth/Height stand in for the resolution a real decoder would
// report once it has parsed the bitstream's parameter sets.
const (
	defaultVideoWidth  = 1280
	defaultVideoHeight = 720
)

type passthroughDecoder struct {
	codecName string
	extradata []byte
	params    StreamParams
	ready     bool
	nextPTS   int64
}

func (d *passthroughDecoder) Decode(au []byte) ([]Frame, error) {
	if au == nil {
		return nil, nil // nothing buffered in this lightweight adapter
	}
	if !d.ready {
		d.ready = true
		if d.params.Kind == KindVideo && d.params.Width == 0 {
			d.params.Width = defaultVideoWidth
			d.params.Height = defaultVideoHeight
		}
	}

	frame := Frame{Data: au, PTS: d.nextPTS, KeyFrame: d.nextPTS == 0}
	d.nextPTS++
	return []Frame{frame}, nil
}

func (d *passthroughDecoder) Ready() bool {
	return d.ready
}

func (d *passthroughDecoder) Params() StreamParams {
	return d.params
}

type passthroughEncoder struct {
	codecName string
	params    StreamParams
}

func (e *passthroughEncoder) Encode(frame *Frame) ([][]byte, error) {
	if frame == nil {
		return nil, nil
	}
	return [][]byte{frame.Data}, nil
}

type fileMuxer struct {
	file    *os.File
	w       *bufio.Writer
	streams []StreamParams
}

func (m *fileMuxer) AddStream(params StreamParams) (int, error) {
	idx := len(m.streams)
	m.streams = append(m.streams, params)

	nameBytes := []byte(params.CodecName)
	header := make([]byte, 0, 1+4+len(nameBytes)+16)
	header = append(header, byte(params.Kind))
	header = binary.BigEndian.AppendUint32(header, uint32(len(nameBytes)))
	header = append(header, nameBytes...)
	header = binary.BigEndian.AppendUint32(header, uint32(params.Width))
	header = binary.BigEndian.AppendUint32(header, uint32(params.Height))
	header = binary.BigEndian.AppendUint32(header, uint32(params.ClockRate))
	header = binary.BigEndian.AppendUint32(header, uint32(params.Channels))

	if _, err := m.w.Write(header); err != nil {
		return 0, fmt.Errorf("codec: write stream descriptor: %w", err)
	}
	return idx, nil
}

func (m *fileMuxer) WritePacket(streamIndex int, data []byte, pts int64, keyFrame bool) error {
	if streamIndex < 0 || streamIndex >= len(m.streams) {
		return fmt.Errorf("codec: write packet: stream index %d out of range", streamIndex)
	}
	record := make([]byte, 0, 1+8+1+4+len(data))
	record = append(record, byte(streamIndex))
	record = binary.BigEndian.AppendUint64(record, uint64(pts))
	if keyFrame {
		record = append(record, 1)
	} else {
		record = append(record, 0)
	}
	record = binary.BigEndian.AppendUint32(record, uint32(len(data)))
	record = append(record, data...)

	if _, err := m.w.Write(record); err != nil {
		return fmt.Errorf("codec: write packet: %w", err)
	}
	return nil
}

func (m *fileMuxer) Close() error {
	if err := m.w.Flush(); err != nil {
		m.file.Close()
		return fmt.Errorf("codec: flush container: %w", err)
	}
	return m.file.Close()
}
