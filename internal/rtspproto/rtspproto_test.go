package rtspproto

import "testing"

func TestParseFullResponseRoundTrips(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\n" +
		"CSeq: 2\r\n" +
		"Content-Type: application/sdp\r\n" +
		"Content-Length: 5\r\n" +
		"\r\n" +
		"hello" +
		"TRAILING"

	resp, n, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if resp.StatusCode != 200 {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	if resp.Headers.Get("content-type") != "application/sdp" {
		t.Fatalf("case-insensitive header lookup failed: %+v", resp.Headers)
	}
	if string(resp.Body) != "hello" {
		t.Fatalf("body = %q, want %q", resp.Body, "hello")
	}
	want := len(raw) - len("TRAILING")
	if n != want {
		t.Fatalf("bytes_consumed = %d, want %d", n, want)
	}
}

func TestParseNeedsMoreOnIncompleteHeaders(t *testing.T) {
	_, _, err := Parse([]byte("RTSP/1.0 200 OK\r\nCSeq: 1\r\n"))
	if err != ErrNeedMore {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}
}

func TestParseNeedsMoreOnIncompleteBody(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nContent-Length: 10\r\n\r\nabc"
	_, _, err := Parse([]byte(raw))
	if err != ErrNeedMore {
		t.Fatalf("err = %v, want ErrNeedMore", err)
	}
}

func TestParseMalformedStatusLine(t *testing.T) {
	_, _, err := Parse([]byte("GARBAGE\r\n\r\n"))
	if err != ErrMalformed {
		t.Fatalf("err = %v, want ErrMalformed", err)
	}
}

func TestParseNoContentLengthMeansEmptyBody(t *testing.T) {
	raw := "RTSP/1.0 200 OK\r\nCSeq: 1\r\n\r\n"
	resp, n, err := Parse([]byte(raw))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(resp.Body) != 0 {
		t.Fatalf("expected empty body, got %q", resp.Body)
	}
	if n != len(raw) {
		t.Fatalf("bytes_consumed = %d, want %d", n, len(raw))
	}
}
