// Package clioptions registers and validates the reconstruct command's
// command-line flags, including the logging flags: Register binds them to a
// flag.FlagSet and Build validates the parsed values.
package clioptions

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gtfodev/rtsp-reconstruct/internal/logger"
)

// supportedFormats, supportedVideoCodecs and supportedAudioCodecs bound what
// -format/-video-codec/-audio-codec accept.
var (
	supportedFormats    = map[string]bool{"mp4": true, "mkv": true}
	supportedVideoCodecs = map[string]bool{"h264": true, "h265": true, "mp4v-es": true}
	supportedAudioCodecs = map[string]bool{"aac": true, "pcma": true, "pcmu": true}
)

// Options holds the parsed and validated command-line configuration for one
// reconstruction run.
type Options struct {
	InputPath string
	OutputDir string
	Prefix    string
	Format    string

	DefaultVideoCodec string
	DefaultAudioCodec string
	ForceVideoCodec   bool
	ForceAudioCodec   bool

	Fast    bool
	DumpSDP bool

	LogLevel         string
	LogFormat        string
	LogFile          string
	DebugCategories  []string
}

// Flags wraps the registered flag values prior to validation; Build turns
// them into Options.
type Flags struct {
	inputPath string
	outputDir string
	prefix    string
	format    string

	videoCodec string
	audioCodec string
	forceVideo bool
	forceAudio bool

	fast    bool
	dumpSDP bool

	logLevel  string
	logFormat string
	logFile   string

	debugCapture    bool
	debugTCP        bool
	debugRTSP       bool
	debugInterleave bool
	debugRTP        bool
	debugDepacket   bool
	debugCodec      bool
	debugAll        bool
}

// Register adds every reconstruct flag to fs and returns the holder used to
// build validated Options once fs.Parse has run.
func Register(fs *flag.FlagSet) *Flags {
	f := &Flags{}

	fs.StringVar(&f.inputPath, "input", "", "path to the pcap/pcapng capture file (required)")
	fs.StringVar(&f.inputPath, "i", "", "path to the capture file (shorthand)")

	fs.StringVar(&f.outputDir, "output-dir", "", "output directory for reconstructed streams (default: input file's basename without extension)")
	fs.StringVar(&f.outputDir, "o", "", "output directory (shorthand)")

	fs.StringVar(&f.prefix, "prefix", "stream", "per-stream output file name prefix")
	fs.StringVar(&f.format, "format", "mp4", "output container format: mp4, mkv")

	fs.StringVar(&f.videoCodec, "video-codec", "h264", "default/fallback video codec")
	fs.StringVar(&f.audioCodec, "audio-codec", "aac", "default/fallback audio codec")
	fs.BoolVar(&f.forceVideo, "force-video-codec", false, "always use -video-codec instead of the stream's native codec")
	fs.BoolVar(&f.forceAudio, "force-audio-codec", false, "always use -audio-codec instead of the stream's native codec")

	fs.BoolVar(&f.fast, "fast", false, "passed through to the orchestrator config; the built-in codec library does not read it, so it changes no encode or decode setting")
	fs.BoolVar(&f.dumpSDP, "dump-sdp", false, "print each session's negotiated SDP to stderr as it's parsed")

	fs.StringVar(&f.logLevel, "log-level", "info", "log level: debug, info, warn, error")
	fs.StringVar(&f.logLevel, "l", "info", "log level (shorthand)")
	fs.StringVar(&f.logFormat, "log-format", "text", "log output format: text, json")
	fs.StringVar(&f.logFile, "log-file", "", "log output file path (default: stdout)")

	fs.BoolVar(&f.debugCapture, "debug-capture", false, "debug capture-file reading")
	fs.BoolVar(&f.debugTCP, "debug-tcp", false, "debug TCP byte-stream reassembly")
	fs.BoolVar(&f.debugRTSP, "debug-rtsp", false, "debug RTSP protocol parsing")
	fs.BoolVar(&f.debugInterleave, "debug-interleave", false, "debug interleaved RTP framing")
	fs.BoolVar(&f.debugRTP, "debug-rtp", false, "debug RTP packet admission and sequencing")
	fs.BoolVar(&f.debugDepacket, "debug-depacket", false, "debug codec depacketization")
	fs.BoolVar(&f.debugCodec, "debug-codec", false, "debug decode/encode/mux")
	fs.BoolVar(&f.debugAll, "debug-all", false, "enable all debug categories")

	return f
}

// Build validates the parsed flags and produces Options, or a descriptive
// error for the caller to report and exit on.
func (f *Flags) Build() (*Options, error) {
	if f.inputPath == "" {
		return nil, fmt.Errorf("clioptions: -input is required")
	}
	if _, err := os.Stat(f.inputPath); err != nil {
		return nil, fmt.Errorf("clioptions: input file: %w", err)
	}

	format := strings.ToLower(f.format)
	if !supportedFormats[format] {
		return nil, fmt.Errorf("clioptions: unsupported -format %q", f.format)
	}

	videoCodec := strings.ToLower(f.videoCodec)
	if !supportedVideoCodecs[videoCodec] {
		return nil, fmt.Errorf("clioptions: unsupported -video-codec %q", f.videoCodec)
	}
	audioCodec := strings.ToLower(f.audioCodec)
	if !supportedAudioCodecs[audioCodec] {
		return nil, fmt.Errorf("clioptions: unsupported -audio-codec %q", f.audioCodec)
	}

	outputDir := f.outputDir
	if outputDir == "" {
		base := filepath.Base(f.inputPath)
		outputDir = strings.TrimSuffix(base, filepath.Ext(base))
	}
	if info, err := os.Stat(outputDir); err == nil {
		if !info.IsDir() {
			return nil, fmt.Errorf("clioptions: output path %q exists and is not a directory", outputDir)
		}
	} else if os.IsNotExist(err) {
		if err := os.MkdirAll(outputDir, 0o755); err != nil {
			return nil, fmt.Errorf("clioptions: create output directory: %w", err)
		}
	} else {
		return nil, fmt.Errorf("clioptions: output directory: %w", err)
	}

	prefix := f.prefix
	if prefix == "" {
		prefix = "stream"
	}

	level, err := logger.ParseLevel(f.logLevel)
	if err != nil {
		return nil, fmt.Errorf("clioptions: %w", err)
	}
	logFormat, err := logger.ParseFormat(f.logFormat)
	if err != nil {
		return nil, fmt.Errorf("clioptions: %w", err)
	}

	var cats []string
	if f.debugAll {
		cats = append(cats, string(logger.CategoryAll))
	} else {
		for _, pair := range []struct {
			on  bool
			cat logger.Category
		}{
			{f.debugCapture, logger.CategoryCapture},
			{f.debugTCP, logger.CategoryTCP},
			{f.debugRTSP, logger.CategoryRTSP},
			{f.debugInterleave, logger.CategoryInterleave},
			{f.debugRTP, logger.CategoryRTP},
			{f.debugDepacket, logger.CategoryDepacket},
			{f.debugCodec, logger.CategoryCodec},
		} {
			if pair.on {
				cats = append(cats, string(pair.cat))
			}
		}
	}

	return &Options{
		InputPath:         f.inputPath,
		OutputDir:         outputDir,
		Prefix:            prefix,
		Format:            format,
		DefaultVideoCodec: videoCodec,
		DefaultAudioCodec: audioCodec,
		ForceVideoCodec:   f.forceVideo,
		ForceAudioCodec:   f.forceAudio,
		Fast:              f.fast,
		DumpSDP:           f.dumpSDP,
		LogLevel:          string(level),
		LogFormat:         string(logFormat),
		LogFile:           f.logFile,
		DebugCategories:   cats,
	}, nil
}

// LoggerConfig builds a logger.Config from validated Options.
func (o *Options) LoggerConfig() (*logger.Config, error) {
	cfg := logger.NewConfig()

	level, err := logger.ParseLevel(o.LogLevel)
	if err != nil {
		return nil, err
	}
	cfg.Level = level

	format, err := logger.ParseFormat(o.LogFormat)
	if err != nil {
		return nil, err
	}
	cfg.Format = format
	cfg.OutputFile = o.LogFile

	for _, c := range o.DebugCategories {
		cfg.EnableCategory(logger.Category(c))
		cfg.Level = logger.LevelDebug
	}

	return cfg, nil
}
