// Package discovery finds LEAP bridges on the local network over mDNS.
package discovery

import (
	"context"
	"net"
	"time"

	"github.com/enbility/zeroconf/v3"
	"go.uber.org/zap"
)

const (
	// serviceType is the mDNS service LEAP bridges advertise.
	serviceType = "_lutron._tcp"
	domain      = "local."

	// DefaultTimeout bounds a browse pass.
	DefaultTimeout = 5 * time.Second
)

// BridgeInfo describes one discovered bridge.
type BridgeInfo struct {
	Instance  string
	HostName  string
	Port      int
	Addresses []net.IP
}

// Browse scans connected networks for LEAP bridges until the timeout
// elapses or ctx is cancelled.
func Browse(ctx context.Context, timeout time.Duration, logger *zap.Logger) ([]BridgeInfo, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	browseCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	go func() {
		if err := zeroconf.Browse(browseCtx, serviceType, domain, entries, removed); err != nil {
			logger.Warn("mdns browse failed", zap.Error(err))
			cancel()
		}
	}()
	go func() {
		// Bridges do not go away mid-scan; drain removals.
		for range removed {
		}
	}()

	// Aggregate by instance: entries repeat per network interface.
	found := make(map[string]*BridgeInfo)
	var order []string
	for {
		select {
		case entry, ok := <-entries:
			if !ok {
				return collect(found, order), nil
			}
			if entry == nil {
				continue
			}
			info, seen := found[entry.Instance]
			if !seen {
				info = &BridgeInfo{
					Instance: entry.Instance,
					HostName: entry.HostName,
					Port:     entry.Port,
				}
				found[entry.Instance] = info
				order = append(order, entry.Instance)
				logger.Debug("discovered bridge",
					zap.String("instance", entry.Instance),
					zap.String("host", entry.HostName))
			}
			for _, addr := range append(entry.AddrIPv4, entry.AddrIPv6...) {
				info.Addresses = appendAddress(info.Addresses, addr)
			}
		case <-browseCtx.Done():
			return collect(found, order), nil
		}
	}
}

func appendAddress(addresses []net.IP, addr net.IP) []net.IP {
	for _, existing := range addresses {
		if existing.Equal(addr) {
			return addresses
		}
	}
	return append(addresses, addr)
}

func collect(found map[string]*BridgeInfo, order []string) []BridgeInfo {
	infos := make([]BridgeInfo, 0, len(found))
	for _, instance := range order {
		infos = append(infos, *found[instance])
	}
	return infos
}
