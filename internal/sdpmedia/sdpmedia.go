// Package sdpmedia projects an already-parsed SDP session description (from
// github.com/pion/sdp/v3, the external SDP parser this spec consumes) into
// the structured Media value the rest of the pipeline operates on.
package sdpmedia

import (
	"strconv"
	"strings"

	"github.com/pion/sdp/v3"
)

// Media is one m-line's worth of parsed description.
type Media struct {
	MediaType   string // "video", "audio", ...
	PayloadType uint8
	Payloads    []uint8
	Codec       string
	ClockRate   uint32
	Channels    int // 0 if not present
	Fmtp        map[string]string
	Control     string
}

// SDP is the structured SDP value consumed by the rest of the pipeline.
type SDP struct {
	Medias []Media
}

// Parse decodes raw SDP text (the DESCRIBE response body) via pion/sdp/v3
// and projects each media description into a Media.
func Parse(raw []byte) (*SDP, error) {
	var sess sdp.SessionDescription
	if err := sess.Unmarshal(raw); err != nil {
		return nil, err
	}

	out := &SDP{}
	for _, md := range sess.MediaDescriptions {
		m := Media{
			MediaType: md.MediaName.Media,
			Fmtp:      make(map[string]string),
		}

		for _, f := range md.MediaName.Formats {
			if pt, err := strconv.Atoi(f); err == nil {
				m.Payloads = append(m.Payloads, uint8(pt))
			}
		}
		if len(m.Payloads) > 0 {
			m.PayloadType = m.Payloads[0]
		}

		rtpmapKey := strconv.Itoa(int(m.PayloadType))
		for _, attr := range md.Attributes {
			switch attr.Key {
			case "rtpmap":
				codec, rate, channels, ok := parseRtpmap(attr.Value)
				if ok && strings.HasPrefix(attr.Value, rtpmapKey+" ") {
					m.Codec = codec
					m.ClockRate = rate
					m.Channels = channels
				}
			case "fmtp":
				if params, ok := parseFmtp(attr.Value, rtpmapKey); ok {
					for k, v := range params {
						m.Fmtp[strings.ToLower(k)] = v
					}
				}
			case "control":
				m.Control = attr.Value
			}
		}

		out.Medias = append(out.Medias, m)
	}

	return out, nil
}

// parseRtpmap parses "<fmt> <codec>/<rate>[/<channels>]".
func parseRtpmap(value string) (codec string, rate uint32, channels int, ok bool) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 {
		return "", 0, 0, false
	}
	parts := strings.Split(fields[1], "/")
	codec = strings.ToUpper(parts[0])
	if len(parts) > 1 {
		if r, err := strconv.ParseUint(parts[1], 10, 32); err == nil {
			rate = uint32(r)
		}
	}
	if len(parts) > 2 {
		if c, err := strconv.Atoi(parts[2]); err == nil {
			channels = c
		}
	}
	return codec, rate, channels, true
}

// parseFmtp parses "<fmt> key1=val1;key2=val2" for the given fmt, returning
// the key=value bag with keys lowercased.
func parseFmtp(value, wantFmt string) (map[string]string, bool) {
	fields := strings.SplitN(value, " ", 2)
	if len(fields) != 2 || fields[0] != wantFmt {
		return nil, false
	}
	out := make(map[string]string)
	for _, kv := range strings.Split(fields[1], ";") {
		kv = strings.TrimSpace(kv)
		if kv == "" {
			continue
		}
		eq := strings.Index(kv, "=")
		if eq < 0 {
			out[strings.ToLower(kv)] = ""
			continue
		}
		key := strings.ToLower(strings.TrimSpace(kv[:eq]))
		out[key] = strings.TrimSpace(kv[eq+1:])
	}
	return out, true
}
