package breaker

import (
	"context"
	"time"
)

// HealthProbe periodically invokes a side-effect-free check against a
// source on every tick, whatever state its breaker is in.
type HealthProbe struct {
	source   string
	interval time.Duration
	check    func(ctx context.Context) error
}

// NewHealthProbe builds a probe; check should call the adapter's Health.
func NewHealthProbe(source string, interval time.Duration, check func(ctx context.Context) error) *HealthProbe {
	return &HealthProbe{source: source, interval: interval, check: check}
}

// Run starts the probe loop, calling onResult after every tick until ctx is
// canceled. Callers typically feed a successful onResult into the breaker
// via a lightweight Call so consecutive half-open successes can close it.
func (p *HealthProbe) Run(ctx context.Context, onResult func(err error)) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			onResult(p.check(ctx))
		}
	}
}
