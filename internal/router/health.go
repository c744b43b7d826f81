package router

import (
	"time"
)

// Health tuning. The trip and recovery thresholds are deliberately
// distinct (hysteresis) so a provider does not flap on single failures,
// and an unhealthy provider gets a probe request after the cooldown so
// it has a path back to healthy.
const (
	// ewmaAlpha is the weight of the newest outcome in the rolling
	// error rate: rate = rate*(1-alpha) + outcome*alpha.
	ewmaAlpha = 0.1

	// tripThreshold flips a provider to unhealthy.
	tripThreshold = 0.5
	// recoverThreshold flips it back to healthy.
	recoverThreshold = 0.2

	// probeCooldown is how long an unhealthy provider is skipped before
	// it is offered a single probe request again.
	probeCooldown = 30 * time.Second
)

// healthState is one provider's rolling health snapshot. It is guarded
// by the owning Entry's mutex; RecordOutcome applies updates atomically
// with respect to Status reads.
type healthState struct {
	healthy        bool
	errorRate      float64
	responseTimeMs float64

	lastFailure time.Time

	// Requests-per-minute window.
	windowStart time.Time
	windowCount uint32
	lastRPM     uint32
}

func newHealthState() healthState {
	return healthState{healthy: true}
}

// record applies one completed request outcome.
func (h *healthState) record(success bool, elapsed time.Duration, now time.Time) {
	outcome := 1.0
	if success {
		outcome = 0.0
	} else {
		h.lastFailure = now
	}
	h.errorRate = h.errorRate*(1-ewmaAlpha) + outcome*ewmaAlpha

	ms := float64(elapsed.Milliseconds())
	if h.responseTimeMs == 0 {
		h.responseTimeMs = ms
	} else {
		h.responseTimeMs = h.responseTimeMs*(1-ewmaAlpha) + ms*ewmaAlpha
	}

	switch {
	case h.healthy && h.errorRate >= tripThreshold:
		h.healthy = false
	case !h.healthy && h.errorRate <= recoverThreshold:
		h.healthy = true
	}

	h.tick(now)
	h.windowCount++
}

// tick rolls the per-minute request window forward.
func (h *healthState) tick(now time.Time) {
	if h.windowStart.IsZero() {
		h.windowStart = now
		return
	}
	if now.Sub(h.windowStart) >= time.Minute {
		h.lastRPM = h.windowCount
		h.windowCount = 0
		h.windowStart = now
	}
}

// rpm reports requests per minute: the last completed window, or the
// current count while the first window is still filling.
func (h *healthState) rpm() uint32 {
	if h.lastRPM > 0 {
		return h.lastRPM
	}
	return h.windowCount
}

// selectable reports whether this provider may serve a request: healthy,
// or unhealthy but past the probe cooldown (half-open).
func (h *healthState) selectable(now time.Time) bool {
	if h.healthy {
		return true
	}
	return now.Sub(h.lastFailure) > probeCooldown
}
