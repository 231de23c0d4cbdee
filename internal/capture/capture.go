// Package capture reads a pcap/pcapng trace and yields decoded transport
// records (Ethernet → IPv4/IPv6 → TCP/UDP), skipping non-IP frames. It
// wraps github.com/google/gopacket's pure-Go pcapgo readers rather than the
// libpcap cgo binding, since the pipeline only ever reads offline files.
package capture

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
)

// TCPInfo carries the TCP-specific fields the RTSP session tracker needs.
type TCPInfo struct {
	Seq           uint32
	FIN           bool
	Urgent        bool
	UrgentPointer uint16
}

// Packet is one decoded transport-layer record from the trace.
type Packet struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   int
	DstPort   int
	Protocol  string // "tcp" or "udp"
	Payload   []byte
	TCP       *TCPInfo // non-nil only when Protocol == "tcp"
}

type packetDataReader interface {
	ReadPacketData() (data []byte, ci gopacket.CaptureInfo, err error)
}

// pcapngMagic is the block-type magic of a pcapng Section Header Block.
const pcapngMagic = 0x0A0D0D0A

// Source reads packet records from a capture file, supporting both .pcap
// and .pcapng framing, and can be rewound for a second pass.
type Source struct {
	path     string
	file     *os.File
	reader   packetDataReader
	linkType layers.LinkType
}

// Open opens a capture file for reading, auto-detecting pcap vs. pcapng.
func Open(path string) (*Source, error) {
	s := &Source{path: path}
	if err := s.openReader(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Source) openReader() error {
	f, err := os.Open(s.path)
	if err != nil {
		return fmt.Errorf("capture: open %s: %w", s.path, err)
	}

	buffered := bufio.NewReader(f)
	magic, err := peekMagic(buffered)
	if err != nil {
		f.Close()
		return fmt.Errorf("capture: read magic: %w", err)
	}

	if magic == pcapngMagic {
		r, err := pcapgo.NewNgReader(buffered, pcapgo.DefaultNgReaderOptions)
		if err != nil {
			f.Close()
			return fmt.Errorf("capture: open pcapng: %w", err)
		}
		s.file = f
		s.reader = r
		s.linkType = r.LinkType()
		return nil
	}

	r, err := pcapgo.NewReader(buffered)
	if err != nil {
		f.Close()
		return fmt.Errorf("capture: open pcap: %w", err)
	}
	s.file = f
	s.reader = r
	s.linkType = r.LinkType()
	return nil
}

func peekMagic(r *bufio.Reader) (uint32, error) {
	b, err := r.Peek(4)
	if err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint32(b), nil
}

// Rewind closes and reopens the underlying file, so a second pass can be
// made over the same capture (see the orchestrator's two-pass run).
func (s *Source) Rewind() error {
	if s.file != nil {
		s.file.Close()
	}
	return s.openReader()
}

// Close releases the underlying file handle.
func (s *Source) Close() error {
	if s.file == nil {
		return nil
	}
	return s.file.Close()
}

// Next returns the next decoded TCP or UDP record, skipping non-IP frames
// and frames without a recognized transport layer. It returns io.EOF at the
// end of the capture.
func (s *Source) Next() (*Packet, error) {
	for {
		data, ci, err := s.reader.ReadPacketData()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			return nil, fmt.Errorf("capture: read packet: %w", err)
		}

		pkt := gopacket.NewPacket(data, s.linkType, gopacket.DecodeOptions{Lazy: true, NoCopy: true})

		netLayer := pkt.NetworkLayer()
		if netLayer == nil {
			continue
		}

		var srcIP, dstIP net.IP
		switch l := netLayer.(type) {
		case *layers.IPv4:
			srcIP, dstIP = l.SrcIP, l.DstIP
		case *layers.IPv6:
			srcIP, dstIP = l.SrcIP, l.DstIP
		default:
			continue
		}

		transport := pkt.TransportLayer()
		if transport == nil {
			continue
		}

		timestamp := ci.Timestamp

		switch t := transport.(type) {
		case *layers.TCP:
			return &Packet{
				Timestamp: timestamp,
				SrcIP:     srcIP,
				DstIP:     dstIP,
				SrcPort:   int(t.SrcPort),
				DstPort:   int(t.DstPort),
				Protocol:  "tcp",
				Payload:   t.Payload,
				TCP: &TCPInfo{
					Seq:           t.Seq,
					FIN:           t.FIN,
					Urgent:        t.URG,
					UrgentPointer: t.Urgent,
				},
			}, nil
		case *layers.UDP:
			return &Packet{
				Timestamp: timestamp,
				SrcIP:     srcIP,
				DstIP:     dstIP,
				SrcPort:   int(t.SrcPort),
				DstPort:   int(t.DstPort),
				Protocol:  "udp",
				Payload:   t.Payload,
			}, nil
		default:
			continue
		}
	}
}
