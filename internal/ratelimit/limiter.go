// Package ratelimit provides token-bucket admission control for outbound
// calls to rate-limited external services. Callers queue FIFO; one drain
// goroutine owns the bucket so concurrent callers never race on token
// accounting.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

const defaultMinSleep = 50 * time.Millisecond

type Config struct {
	RatePerSecond float64
	BurstSize     int
	// RatePerMinute optionally caps the absolute request count over a
	// sliding 60-second window, independent of the bucket.
	RatePerMinute int
	// MinSleep is the floor on the drain loop's retry sleep, so a slow
	// external limit is not polled at fine granularity.
	MinSleep time.Duration
}

type waiter struct {
	ready    chan struct{}
	canceled bool
}

type Limiter struct {
	cfg Config

	mu       sync.Mutex
	tokens   float64
	last     time.Time
	window   []time.Time
	queue    []*waiter
	draining bool
}

func New(cfg Config) *Limiter {
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 1
	}
	if cfg.BurstSize <= 0 {
		cfg.BurstSize = 1
	}
	if cfg.MinSleep <= 0 {
		cfg.MinSleep = defaultMinSleep
	}
	return &Limiter{
		cfg:    cfg,
		tokens: float64(cfg.BurstSize),
		last:   time.Now(),
	}
}

// Acquire blocks until a token is reserved or ctx is done. The limiter
// itself never fails; bounded latency is the caller's responsibility via
// ctx.
func (l *Limiter) Acquire(ctx context.Context) error {
	w := &waiter{ready: make(chan struct{})}

	l.mu.Lock()
	l.queue = append(l.queue, w)
	if !l.draining {
		l.draining = true
		go l.drain()
	}
	l.mu.Unlock()

	select {
	case <-w.ready:
		return nil
	case <-ctx.Done():
		l.mu.Lock()
		w.canceled = true
		l.mu.Unlock()
		// The drain loop may have admitted us concurrently; a reserved
		// token for a canceled waiter is simply spent.
		select {
		case <-w.ready:
			return nil
		default:
		}
		return ctx.Err()
	}
}

// Reset clears bucket and window state.
func (l *Limiter) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.tokens = float64(l.cfg.BurstSize)
	l.window = nil
	l.last = time.Now()
}

// drain is the single queue processor. It pops waiters FIFO, sleeping
// between re-checks when no token is available, and exits once the queue is
// empty.
func (l *Limiter) drain() {
	for {
		l.mu.Lock()
		if len(l.queue) == 0 {
			l.draining = false
			l.mu.Unlock()
			return
		}

		w := l.queue[0]
		if w.canceled {
			l.queue = l.queue[1:]
			l.mu.Unlock()
			continue
		}

		now := time.Now()
		l.refill(now)
		l.pruneWindow(now)

		if l.tokens >= 1 && l.windowAllows() {
			l.tokens--
			l.window = append(l.window, now)
			l.queue = l.queue[1:]
			l.mu.Unlock()
			close(w.ready)
			continue
		}

		wait := l.nextAvailable(now)
		if wait < l.cfg.MinSleep {
			wait = l.cfg.MinSleep
		}
		l.mu.Unlock()
		time.Sleep(wait)
	}
}

func (l *Limiter) refill(now time.Time) {
	elapsed := now.Sub(l.last).Seconds()
	if elapsed > 0 {
		l.tokens += elapsed * l.cfg.RatePerSecond
		if max := float64(l.cfg.BurstSize); l.tokens > max {
			l.tokens = max
		}
	}
	l.last = now
}

func (l *Limiter) pruneWindow(now time.Time) {
	cutoff := now.Add(-time.Minute)
	for len(l.window) > 0 && l.window[0].Before(cutoff) {
		l.window = l.window[1:]
	}
}

func (l *Limiter) windowAllows() bool {
	return l.cfg.RatePerMinute <= 0 || len(l.window) < l.cfg.RatePerMinute
}

func (l *Limiter) nextAvailable(now time.Time) time.Duration {
	var wait time.Duration
	if l.tokens < 1 {
		missing := 1 - l.tokens
		wait = time.Duration(missing / l.cfg.RatePerSecond * float64(time.Second))
	}
	if !l.windowAllows() && len(l.window) > 0 {
		windowWait := l.window[0].Add(time.Minute).Sub(now)
		if windowWait > wait {
			wait = windowWait
		}
	}
	return wait
}
