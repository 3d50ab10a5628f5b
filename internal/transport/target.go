// Package transport delivers encoded Pinba packets to collectors.
//
// Delivery is fire and forget: one datagram per packet, no retries, no
// queueing. Failures are returned to the caller as values.
package transport

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// DefaultPort is the port pinba collectors listen on.
const DefaultPort = 30002

// ErrInvalidTarget is wrapped by ParseTarget failures.
var ErrInvalidTarget = errors.New("invalid target")

// ParseTarget normalizes a collector address to host:port. Accepted forms
// are host, host:port, [ipv6]:port, [ipv6] and a bare ipv6 address.
func ParseTarget(target string) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", fmt.Errorf("%w: empty address", ErrInvalidTarget)
	}

	if ip := net.ParseIP(target); ip != nil {
		return net.JoinHostPort(target, strconv.Itoa(DefaultPort)), nil
	}
	if strings.HasPrefix(target, "[") && strings.HasSuffix(target, "]") {
		host := target[1 : len(target)-1]
		if net.ParseIP(host) == nil {
			return "", fmt.Errorf("%w: %q", ErrInvalidTarget, target)
		}
		return net.JoinHostPort(host, strconv.Itoa(DefaultPort)), nil
	}
	if !strings.Contains(target, ":") {
		return net.JoinHostPort(target, strconv.Itoa(DefaultPort)), nil
	}

	host, port, err := net.SplitHostPort(target)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if host == "" {
		return "", fmt.Errorf("%w: %q has no host", ErrInvalidTarget, target)
	}
	n, err := strconv.Atoi(port)
	if err != nil || n <= 0 || n > 65535 {
		return "", fmt.Errorf("%w: bad port %q", ErrInvalidTarget, port)
	}
	return net.JoinHostPort(host, port), nil
}
