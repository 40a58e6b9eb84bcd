// Address Resolution Adapter (component C6): wraps the stdlib resolver
// behind the same contract spec.md §4.6 describes — never call back
// synchronously (so listeners attached right after the call still fire),
// try IPv4 first, fall back to IPv6 on an empty result.
package netio

import (
	"context"
	"net"

	"github.com/pkg/errors"

	"github.com/streamkit/netio/internal/ioloop"
)

// lookupHost resolves host to one literal IP and invokes cb on loop, never
// synchronously. If host is already a literal address, no network lookup
// happens at all — only the next-tick deferral, per spec.md §4.6's
// needsLookup predicate.
func lookupHost(loop *ioloop.Loop, host string, cb func(net.IP, error)) {
	if ip := net.ParseIP(host); ip != nil {
		loop.Post(func() { cb(ip, nil) })
		return
	}
	go func() {
		ip, err := lookupIPv4ThenIPv6(host)
		loop.Post(func() { cb(ip, err) })
	}()
}

func lookupIPv4ThenIPv6(host string) (net.IP, error) {
	ctx := context.Background()
	if ips, err := net.DefaultResolver.LookupIP(ctx, "ip4", host); err == nil && len(ips) > 0 {
		return ips[0], nil
	}
	ips, err := net.DefaultResolver.LookupIP(ctx, "ip6", host)
	if err != nil {
		return nil, errors.Wrapf(err, "resolve %s", host)
	}
	if len(ips) == 0 {
		return nil, errors.Errorf("resolve %s: no addresses found", host)
	}
	return ips[0], nil
}
