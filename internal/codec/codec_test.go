package codec

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestPassthroughDecoderBecomesReadyAfterFirstAU(t *testing.T) {
	lib := NewNativeLibrary()
	dec, err := lib.NewDecoder("h264", nil, StreamParams{Kind: KindVideo})
	if err != nil {
		t.Fatalf("new decoder: %v", err)
	}
	if dec.Ready() {
		t.Fatalf("expected not ready before first AU")
	}

	frames, err := dec.Decode([]byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames) != 1 || !frames[0].KeyFrame {
		t.Fatalf("expected first frame to be a keyframe, got %+v", frames)
	}
	if !dec.Ready() {
		t.Fatalf("expected ready after first AU")
	}
	if dec.Params().Width == 0 {
		t.Fatalf("expected width to be populated once ready")
	}

	frames2, err := dec.Decode([]byte{0x03})
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(frames2) != 1 || frames2[0].KeyFrame {
		t.Fatalf("expected second frame to not be a keyframe")
	}
}

func TestFileMuxerWritesStreamsAndPackets(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stream0.mp4")

	lib := NewNativeLibrary()
	mux, err := lib.OpenMuxer(path, "mp4")
	if err != nil {
		t.Fatalf("open muxer: %v", err)
	}

	idx, err := mux.AddStream(StreamParams{Kind: KindVideo, CodecName: "h264", Width: 1280, Height: 720, ClockRate: 30})
	if err != nil {
		t.Fatalf("add stream: %v", err)
	}
	if idx != 0 {
		t.Fatalf("stream index = %d, want 0", idx)
	}

	if err := mux.WritePacket(idx, []byte{0xDE, 0xAD}, 0, true); err != nil {
		t.Fatalf("write packet: %v", err)
	}
	if err := mux.WritePacket(idx, []byte{0xBE, 0xEF}, 1, false); err != nil {
		t.Fatalf("write packet: %v", err)
	}

	if err := mux.WritePacket(5, []byte{0x00}, 2, false); err == nil {
		t.Fatalf("expected error for out-of-range stream index")
	}

	if err := mux.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read output file: %v", err)
	}
	if !bytes.HasPrefix(data, []byte("RCMXmp4\x00")) {
		t.Fatalf("missing container header, got %q", data[:8])
	}
}
