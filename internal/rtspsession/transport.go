package rtspsession

import (
	"strconv"
	"strings"
)

// Transport is one parsed RTSP Transport header value.
type Transport struct {
	Protocol string            // lowercased: "rtp/avp", "rtp/avp/udp", "rtp/avp/tcp"
	Options  map[string]string // lowercased keys, raw values

	HasClientPort bool
	ClientPort    [2]int // [data, control]

	HasServerPort bool
	ServerPort    [2]int

	HasInterleaved bool
	Interleaved    [2]int

	SSRC   string
	Source string
}

// ParseTransport parses one Transport header value, e.g.
// "RTP/AVP;unicast;client_port=5000-5001;server_port=6000-6001" or
// "RTP/AVP/TCP;interleaved=0-1".
func ParseTransport(value string) Transport {
	t := Transport{Options: make(map[string]string)}

	fields := strings.Split(value, ";")
	if len(fields) == 0 {
		return t
	}
	t.Protocol = strings.ToLower(strings.TrimSpace(fields[0]))

	for _, f := range fields[1:] {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		eq := strings.IndexByte(f, '=')
		if eq < 0 {
			t.Options[strings.ToLower(f)] = ""
			continue
		}
		key := strings.ToLower(strings.TrimSpace(f[:eq]))
		val := strings.TrimSpace(f[eq+1:])
		t.Options[key] = val

		switch key {
		case "client_port":
			if a, b, ok := parseRange(val); ok {
				t.HasClientPort = true
				t.ClientPort = [2]int{a, b}
			}
		case "server_port":
			if a, b, ok := parseRange(val); ok {
				t.HasServerPort = true
				t.ServerPort = [2]int{a, b}
			}
		case "interleaved":
			if a, b, ok := parseRange(val); ok {
				t.HasInterleaved = true
				t.Interleaved = [2]int{a, b}
			}
		case "ssrc":
			t.SSRC = val
		case "source":
			t.Source = val
		}
	}

	return t
}

// parseRange parses "N" or "N-M" into a (data, control) pair. A bare N
// yields (N, N).
func parseRange(s string) (int, int, bool) {
	parts := strings.SplitN(s, "-", 2)
	a, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, false
	}
	if len(parts) == 1 {
		return a, a, true
	}
	b, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, false
	}
	return a, b, true
}

// IsInterleavedTCP reports whether this transport negotiated RTP-over-TCP
// interleaving.
func (t Transport) IsInterleavedTCP() bool {
	return t.Protocol == "rtp/avp/tcp"
}
