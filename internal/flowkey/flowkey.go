// Package flowkey gives a canonical, direction-independent identity to a
// transport-layer flow, so that packets from either endpoint hash to the
// same key.
package flowkey

import (
	"fmt"
	"net"
	"strconv"
)

// Protocol identifies the transport protocol contributing to a Key.
type Protocol string

const (
	TCP Protocol = "tcp"
	UDP Protocol = "udp"
)

// Key is an unordered endpoint-pair identity: two packets traveling in
// opposite directions of the same flow produce an identical Key.
type Key string

// New builds a Key from two endpoints (address:port strings) and a
// protocol, by lexicographically sorting the endpoint strings before
// combining them so direction does not affect the result.
func New(addrA string, portA int, addrB string, portB int, proto Protocol) Key {
	a := net.JoinHostPort(addrA, strconv.Itoa(portA))
	b := net.JoinHostPort(addrB, strconv.Itoa(portB))
	if a > b {
		a, b = b, a
	}
	return Key(fmt.Sprintf("%s|%s|%s", proto, a, b))
}
