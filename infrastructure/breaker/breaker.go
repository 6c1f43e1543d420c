// Package breaker implements a per-(source, operation) circuit breaker
// registry over sony/gobreaker, with single-probe half-open behavior.
package breaker

import (
	"context"
	"sync"
	"time"

	"github.com/sony/gobreaker"
	"github.com/rs/zerolog/log"

	"github.com/thetangstr/vehiclesearch/domain"
)

// Config configures one breaker instance.
type Config struct {
	FailureThreshold uint32        // consecutive failures that trip the breaker
	SuccessThreshold uint32        // not read by the registry; a half-open breaker closes after MaxRequests consecutive successes
	Timeout          time.Duration // cooldown before an open breaker tries half-open
	MaxRequests      uint32        // requests allowed through while half-open
}

// DefaultConfig returns conservative generic-upstream defaults.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		MaxRequests:      1,
	}
}

// State mirrors gobreaker's three states under the spec's own names.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

func fromGobreaker(s gobreaker.State) State {
	switch s {
	case gobreaker.StateOpen:
		return StateOpen
	case gobreaker.StateHalfOpen:
		return StateHalfOpen
	default:
		return StateClosed
	}
}

// Status is the admin-facing snapshot of one breaker.
type Status struct {
	Source       string
	Operation    string
	State        State
	Failures     uint32
	Successes    uint32
	ErrorRate    float64
	OpenedAt     time.Time
}

type entry struct {
	source   string
	op       string
	cb       *gobreaker.CircuitBreaker
	cfg      Config
	openedAt time.Time
	mu       sync.Mutex
}

// Registry holds one breaker per (source, operation) pair, created lazily
// from a per-source Config the first time that pair is seen.
type Registry struct {
	mu       sync.RWMutex
	configs  map[string]Config
	breakers map[string]*entry
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		configs:  make(map[string]Config),
		breakers: make(map[string]*entry),
	}
}

func regKey(source, op string) string { return source + "::" + op }

// Configure sets the Config used for (source, op) the next time a breaker
// for that pair is created. Existing breakers are unaffected; call before
// first use.
func (r *Registry) Configure(source, op string, cfg Config) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[regKey(source, op)] = cfg
}

func (r *Registry) getOrCreate(source, op string) *entry {
	k := regKey(source, op)

	r.mu.RLock()
	e, ok := r.breakers[k]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok := r.breakers[k]; ok {
		return e
	}

	cfg, ok := r.configs[k]
	if !ok {
		cfg = DefaultConfig()
	}

	e = &entry{source: source, op: op, cfg: cfg}
	name := k
	settings := gobreaker.Settings{
		Name:        name,
		MaxRequests: cfg.MaxRequests,
		Interval:    0,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= cfg.FailureThreshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			e.mu.Lock()
			if to == gobreaker.StateOpen {
				e.openedAt = time.Now()
			}
			e.mu.Unlock()
			log.Warn().Str("breaker", name).Str("from", string(fromGobreaker(from))).
				Str("to", string(fromGobreaker(to))).Msg("circuit breaker state change")
		},
	}
	e.cb = gobreaker.NewCircuitBreaker(settings)
	r.breakers[k] = e
	return e
}

// Call executes fn through the (source, op) breaker. When the breaker is
// open it returns a *domain.AdapterError with ErrKindCircuitOpen without
// invoking fn, so the dispatcher never spends a rate-limit token on a
// known-dead source.
func (r *Registry) Call(ctx context.Context, source, op string, fn func(ctx context.Context) error) error {
	e := r.getOrCreate(source, op)

	_, err := e.cb.Execute(func() (interface{}, error) {
		return nil, fn(ctx)
	})
	if err == nil {
		return nil
	}
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return domain.NewAdapterError(source, op, domain.ErrKindCircuitOpen, err)
	}
	return err
}

// Status returns the current state of the (source, op) breaker.
func (r *Registry) Status(source, op string) Status {
	e := r.getOrCreate(source, op)
	counts := e.cb.Counts()

	var errRate float64
	if counts.Requests > 0 {
		errRate = float64(counts.TotalFailures) / float64(counts.Requests)
	}

	e.mu.Lock()
	openedAt := e.openedAt
	e.mu.Unlock()

	return Status{
		Source:    source,
		Operation: op,
		State:     fromGobreaker(e.cb.State()),
		Failures:  counts.ConsecutiveFailures,
		Successes: counts.ConsecutiveSuccesses,
		ErrorRate: errRate,
		OpenedAt:  openedAt,
	}
}

// AllStatuses snapshots every breaker the registry has created, for the
// admin health surface.
func (r *Registry) AllStatuses() []Status {
	r.mu.RLock()
	keys := make([]string, 0, len(r.breakers))
	for k := range r.breakers {
		keys = append(keys, k)
	}
	r.mu.RUnlock()

	out := make([]Status, 0, len(keys))
	for _, k := range keys {
		r.mu.RLock()
		e := r.breakers[k]
		r.mu.RUnlock()
		counts := e.cb.Counts()
		var errRate float64
		if counts.Requests > 0 {
			errRate = float64(counts.TotalFailures) / float64(counts.Requests)
		}
		e.mu.Lock()
		openedAt := e.openedAt
		e.mu.Unlock()
		out = append(out, Status{
			Source:    e.source,
			Operation: e.op,
			State:     fromGobreaker(e.cb.State()),
			Failures:  counts.ConsecutiveFailures,
			Successes: counts.ConsecutiveSuccesses,
			ErrorRate: errRate,
			OpenedAt:  openedAt,
		})
	}
	return out
}
