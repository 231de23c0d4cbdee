// Package rtppacket parses raw RTP payloads (already demultiplexed from
// either a UDP datagram or an interleaved TCP frame) into the fields the
// depacketizers need, delegating wire parsing to github.com/pion/rtp.
package rtppacket

import (
	"fmt"

	"github.com/pion/rtp"
)

// Packet is the subset of an RTP packet the reconstruction pipeline cares
// about. Padding, per RFC 3550 §5.1, has already been stripped from Payload
// by the time this value exists.
type Packet struct {
	Marker      bool
	PayloadType uint8
	SequenceNum uint16
	Timestamp   uint32
	SSRC        uint32
	Payload     []byte
}

// Parse unmarshals one RTP packet from raw bytes.
func Parse(raw []byte) (Packet, error) {
	var pkt rtp.Packet
	if err := pkt.Unmarshal(raw); err != nil {
		return Packet{}, fmt.Errorf("rtppacket: unmarshal: %w", err)
	}
	return Packet{
		Marker:      pkt.Marker,
		PayloadType: pkt.PayloadType,
		SequenceNum: pkt.SequenceNumber,
		Timestamp:   pkt.Timestamp,
		SSRC:        pkt.SSRC,
		Payload:     pkt.Payload,
	}, nil
}

// FromPion adapts an already-unmarshaled pion RTP packet (e.g. one produced
// by the interleaved TCP framer) into a Packet.
func FromPion(pkt *rtp.Packet) Packet {
	return Packet{
		Marker:      pkt.Marker,
		PayloadType: pkt.PayloadType,
		SequenceNum: pkt.SequenceNumber,
		Timestamp:   pkt.Timestamp,
		SSRC:        pkt.SSRC,
		Payload:     pkt.Payload,
	}
}
