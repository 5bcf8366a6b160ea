// Package safehttp builds HTTP clients that refuse to reach private networks.
// Callers choose provider base URLs, so without it a request could point the
// server at internal services.
package safehttp

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"syscall"
	"time"
)

const dialTimeout = 5 * time.Second

// ErrDenied is wrapped by dial errors for blocked addresses.
var ErrDenied = errors.New("access to private address denied")

// Denied reports whether ip is loopback, private, link-local or unspecified.
func Denied(ip net.IP) bool {
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}

// control runs after DNS resolution and before connect, so every resolved
// address is checked, including ones reached through redirects.
func control(network, address string, _ syscall.RawConn) error {
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		return fmt.Errorf("parse dial address %q: %w", address, err)
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return fmt.Errorf("failed to parse remote IP for %q", address)
	}
	if Denied(ip) {
		return fmt.Errorf("%w: %s", ErrDenied, ip)
	}
	return nil
}

// NewTransport returns a transport whose dialer rejects private addresses.
func NewTransport() *http.Transport {
	dialer := &net.Dialer{Timeout: dialTimeout, Control: control}
	t := http.DefaultTransport.(*http.Transport).Clone()
	t.Proxy = nil
	t.DialContext = func(ctx context.Context, network, addr string) (net.Conn, error) {
		return dialer.DialContext(ctx, network, addr)
	}
	return t
}

// NewClient returns a client on NewTransport with an overall timeout.
func NewClient(timeout time.Duration) *http.Client {
	return &http.Client{Transport: NewTransport(), Timeout: timeout}
}
