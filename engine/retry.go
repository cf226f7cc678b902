package engine

import (
	"math/rand"
	"time"
)

const (
	defaultInitialBackoff = 500 * time.Millisecond
	defaultMaxBackoff     = 2 * time.Minute
)

// ExponentialBackoffScheduler doubles the delay per attempt up to Max and
// spreads retries with a jitter fraction so stalled siblings do not
// retry in lockstep.
type ExponentialBackoffScheduler struct {
	Initial time.Duration
	Max     time.Duration
	Jitter  float64
	rand    *rand.Rand
}

func (s ExponentialBackoffScheduler) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	initial := s.Initial
	if initial <= 0 {
		initial = defaultInitialBackoff
	}
	max := s.Max
	if max <= 0 {
		max = defaultMaxBackoff
	}

	delay := initial
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= max {
			delay = max
			break
		}
	}
	if delay > max {
		delay = max
	}
	return s.applyJitter(delay)
}

func (s ExponentialBackoffScheduler) applyJitter(delay time.Duration) time.Duration {
	if s.Jitter <= 0 || delay <= 0 {
		return delay
	}
	jitter := s.Jitter
	if jitter > 1 {
		jitter = 1
	}
	span := float64(delay) * jitter
	var offset float64
	if s.rand != nil {
		offset = (s.rand.Float64()*2 - 1) * span
	} else {
		offset = (rand.Float64()*2 - 1) * span
	}
	jittered := time.Duration(float64(delay) + offset)
	if jittered <= 0 {
		return delay
	}
	return jittered
}
