package worker

import (
	"context"
	"time"
)

const defaultDNSRefreshInterval = 5 * time.Minute

// Refresher re-resolves cached host entries. Implemented by *dnscache.Resolver.
type Refresher interface {
	Refresh(clearUnused bool)
}

// DNSRefresher periodically refreshes a DNS cache so entries track upstream
// changes. Hosts not looked up since the previous refresh are dropped.
type DNSRefresher struct {
	resolver Refresher
	interval time.Duration
}

// NewDNSRefresher creates a DNSRefresher. A zero interval uses the default.
func NewDNSRefresher(resolver Refresher, interval time.Duration) *DNSRefresher {
	if interval <= 0 {
		interval = defaultDNSRefreshInterval
	}
	return &DNSRefresher{resolver: resolver, interval: interval}
}

// Name returns the worker identifier.
func (d *DNSRefresher) Name() string { return "dns_refresh" }

// Run refreshes on every tick until ctx is cancelled.
func (d *DNSRefresher) Run(ctx context.Context) error {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			d.resolver.Refresh(true)
		case <-ctx.Done():
			return nil
		}
	}
}
