// Package router owns the provider registry: one entry per variant with
// its transport and live health snapshot, the current-provider pointer,
// and the failover selection policy.
package router

import (
	"sync"
	"time"

	"github.com/switchboard-dev/switchboard/internal/metrics"
	"github.com/switchboard-dev/switchboard/internal/transport"
	"github.com/switchboard-dev/switchboard/internal/types"
)

// Default provider priorities. Higher is preferred during failover.
// Vulcan first (local GPU), then the hosted providers, Ollama last.
var defaultPriorities = map[types.Provider]int{
	types.ProviderVulcan:  10,
	types.ProviderClaude:  9,
	types.ProviderOpenAI:  8,
	types.ProviderCopilot: 7,
	types.ProviderOllama:  5,
}

// Entry is one registered provider: transport handle, priority, enabled
// flag and health snapshot. Health is guarded by mu so RecordOutcome is
// atomic with respect to snapshot reads.
type Entry struct {
	Provider  types.Provider
	Transport transport.Transport
	Priority  int
	Enabled   bool

	mu     sync.Mutex
	health healthState
}

func (e *Entry) status() types.ProviderStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return types.ProviderStatus{
		Provider:          e.Provider,
		IsHealthy:         e.health.healthy,
		ResponseTimeMs:    uint32(e.health.responseTimeMs),
		ErrorRate:         float32(e.health.errorRate),
		RequestsPerMinute: e.health.rpm(),
	}
}

func (e *Entry) selectable(now time.Time) bool {
	if !e.Enabled {
		return false
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.health.selectable(now)
}

// Router selects providers for requests and tracks their health.
type Router struct {
	mu       sync.RWMutex
	entries  []*Entry // sorted by priority, descending
	byID     map[types.Provider]*Entry
	current  types.Provider
	fallback bool
}

// New builds a router over the given transports. current becomes the
// active provider; enabled lists the variants allowed to serve requests.
func New(transports map[types.Provider]transport.Transport, current types.Provider, fallback bool, enabled map[types.Provider]bool) (*Router, error) {
	r := &Router{
		byID:     make(map[types.Provider]*Entry, len(transports)),
		current:  current,
		fallback: fallback,
	}

	for _, p := range types.AllProviders() {
		tr, ok := transports[p]
		if !ok {
			continue
		}
		e := &Entry{
			Provider:  p,
			Transport: tr,
			Priority:  defaultPriorities[p],
			Enabled:   enabled[p],
			health:    newHealthState(),
		}
		r.byID[p] = e
		r.entries = append(r.entries, e)
		metrics.SetHealthy(p.String(), true)
	}

	// Priority order, stable within equal priorities by enum order.
	for i := 1; i < len(r.entries); i++ {
		for j := i; j > 0 && r.entries[j].Priority > r.entries[j-1].Priority; j-- {
			r.entries[j], r.entries[j-1] = r.entries[j-1], r.entries[j]
		}
	}

	cur, ok := r.byID[current]
	if !ok || !cur.Enabled {
		return nil, types.Errorf(types.CodeProviderUnavailable, "provider %s is not available", current)
	}
	return r, nil
}

// Current returns the active provider.
func (r *Router) Current() types.Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Switch sets the active provider. Takes effect on the next request;
// requests already in flight are not cancelled. Switching to the
// current provider again is a no-op.
func (r *Router) Switch(p types.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.byID[p]
	if !ok || !e.Enabled {
		return types.Errorf(types.CodeProviderUnavailable, "provider %s is unknown or disabled", p)
	}
	r.current = p
	return nil
}

// SetFallback updates the failover policy for subsequent requests.
func (r *Router) SetFallback(enabled bool) {
	r.mu.Lock()
	r.fallback = enabled
	r.mu.Unlock()
}

// Lookup returns the entry registered for p, if any.
func (r *Router) Lookup(p types.Provider) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.byID[p]
	return e, ok
}

// SelectForRequest picks the provider for a new request: the current one
// if it may serve, otherwise (with fallback enabled) the highest-priority
// healthy entry. Returns ProviderUnavailable when nothing can serve.
func (r *Router) SelectForRequest() (*Entry, error) {
	r.mu.RLock()
	cur := r.byID[r.current]
	fallback := r.fallback
	r.mu.RUnlock()

	now := time.Now()
	if cur != nil && cur.selectable(now) {
		return cur, nil
	}
	if fallback {
		if next := r.nextSelectable(now, map[types.Provider]bool{cur.Provider: true}); next != nil {
			return next, nil
		}
	}
	return nil, types.E(types.CodeProviderUnavailable, "no healthy provider available")
}

// NextHealthy returns the highest-priority selectable entry not yet
// tried, or nil. Used by the failover loop: at most one attempt per
// remaining healthy provider, never the same provider twice.
func (r *Router) NextHealthy(tried map[types.Provider]bool) *Entry {
	return r.nextSelectable(time.Now(), tried)
}

func (r *Router) nextSelectable(now time.Time, exclude map[types.Provider]bool) *Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, e := range r.entries {
		if exclude[e.Provider] {
			continue
		}
		if e.selectable(now) {
			return e
		}
	}
	return nil
}

// RecordOutcome folds one completed request into the provider's health
// snapshot. Rolling error rate is an EWMA, so consecutive failures
// strictly raise it and consecutive successes strictly lower it.
func (r *Router) RecordOutcome(p types.Provider, success bool, elapsed time.Duration) {
	r.mu.RLock()
	e, ok := r.byID[p]
	r.mu.RUnlock()
	if !ok {
		return
	}

	e.mu.Lock()
	e.health.record(success, elapsed, time.Now())
	healthy := e.health.healthy
	e.mu.Unlock()

	metrics.SetHealthy(p.String(), healthy)
}

// Status returns a point-in-time snapshot of all entries in priority order.
func (r *Router) Status() []types.ProviderStatus {
	r.mu.RLock()
	entries := make([]*Entry, len(r.entries))
	copy(entries, r.entries)
	r.mu.RUnlock()

	out := make([]types.ProviderStatus, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.status())
	}
	return out
}

// StatusInto fills buf with as many entries as fit and returns how many
// were written plus the true provider count. A short buffer is not an
// error.
func (r *Router) StatusInto(buf []types.ProviderStatus) (written, total int) {
	all := r.Status()
	n := copy(buf, all)
	return n, len(all)
}
