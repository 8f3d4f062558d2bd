package cluster

import (
	"fmt"
	"strconv"
	"strings"
)

// NodeKey identifies a single cluster endpoint by host and port. It is
// the identity of an endpoint across the Topology: two NodeKeys are
// equal when both fields match, so NodeKey is safe to use as a map
// key.
type NodeKey struct {
	Host string
	Port uint16
}

// String formats the NodeKey as "host:port".
func (k NodeKey) String() string {
	return k.Host + ":" + strconv.FormatUint(uint64(k.Port), 10)
}

// IsZero reports whether k is the zero NodeKey.
func (k NodeKey) IsZero() bool {
	return k == NodeKey{}
}

// ParseNodeKey parses a "host:port" string into a NodeKey. The port is
// the part after the last colon and must be a valid uint16; the host
// is everything before it, may itself contain colons, and has
// surrounding square brackets stripped ("[::1]:6379" gives host
// "::1"). An empty host is an error.
func ParseNodeKey(s string) (NodeKey, error) {
	ix := strings.LastIndex(s, ":")
	if ix < 0 {
		return NodeKey{}, fmt.Errorf("redisc: invalid node address %q", s)
	}

	host, ports := s[:ix], s[ix+1:]
	host = strings.TrimPrefix(strings.TrimSuffix(host, "]"), "[")
	if host == "" {
		return NodeKey{}, fmt.Errorf("redisc: invalid node address %q", s)
	}

	port, err := strconv.ParseUint(ports, 10, 16)
	if err != nil {
		return NodeKey{}, fmt.Errorf("redisc: invalid node address %q: %w", s, err)
	}

	return NodeKey{Host: host, Port: uint16(port)}, nil
}
