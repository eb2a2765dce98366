// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 ShenBot Contributors

package command

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Default rate limiting values.
const (
	// DefaultBurstCapacity is the number of commands a sender can issue in
	// a burst before rate limiting kicks in.
	DefaultBurstCapacity = 5

	// DefaultSustainedRate is the token refill rate in commands per second.
	DefaultSustainedRate = 0.5

	// MinSustainedRate keeps cooldowns finite.
	MinSustainedRate = 0.01

	// DefaultCleanupInterval is how often idle senders are forgotten.
	DefaultCleanupInterval = 5 * time.Minute

	// DefaultSenderMaxAge is how long a sender may stay idle before cleanup.
	DefaultSenderMaxAge = time.Hour
)

// RateLimiterConfig configures the rate limiter.
type RateLimiterConfig struct {
	// BurstCapacity defaults to DefaultBurstCapacity if zero or negative.
	BurstCapacity int
	// SustainedRate defaults to DefaultSustainedRate if zero or negative.
	SustainedRate float64
	// CleanupInterval defaults to DefaultCleanupInterval if zero.
	CleanupInterval time.Duration
	// SenderMaxAge defaults to DefaultSenderMaxAge if zero.
	SenderMaxAge time.Duration
}

type bucket struct {
	tokens    float64
	lastCheck time.Time
}

// RateLimiter implements per-sender token buckets. It is safe for
// concurrent use and runs a cleanup goroutine until Close.
type RateLimiter struct {
	mu            sync.Mutex
	senders       map[string]*bucket
	burstCapacity int
	sustainedRate float64
	senderMaxAge  time.Duration

	stopChan chan struct{}
	wg       sync.WaitGroup

	senderGauge prometheus.Gauge
}

// NewRateLimiter creates a rate limiter. Call Close to stop its cleanup goroutine.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return newRateLimiter(cfg, nil)
}

// NewRateLimiterWithRegistry creates a rate limiter that reports the
// number of tracked senders to reg.
func NewRateLimiterWithRegistry(cfg RateLimiterConfig, reg prometheus.Registerer) *RateLimiter {
	return newRateLimiter(cfg, reg)
}

func newRateLimiter(cfg RateLimiterConfig, reg prometheus.Registerer) *RateLimiter {
	burst := cfg.BurstCapacity
	if burst <= 0 {
		burst = DefaultBurstCapacity
	}
	rate := cfg.SustainedRate
	if rate <= 0 {
		rate = DefaultSustainedRate
	}
	if rate < MinSustainedRate {
		rate = MinSustainedRate
	}
	interval := cfg.CleanupInterval
	if interval <= 0 {
		interval = DefaultCleanupInterval
	}
	maxAge := cfg.SenderMaxAge
	if maxAge <= 0 {
		maxAge = DefaultSenderMaxAge
	}

	rl := &RateLimiter{
		senders:       make(map[string]*bucket),
		burstCapacity: burst,
		sustainedRate: rate,
		senderMaxAge:  maxAge,
		stopChan:      make(chan struct{}),
	}
	if reg != nil {
		rl.senderGauge = prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "shenbot_admin_ratelimiter_senders",
			Help: "Current number of senders tracked by the admin command rate limiter",
		})
		reg.MustRegister(rl.senderGauge)
	}

	rl.wg.Add(1)
	go rl.cleanupLoop(interval)
	return rl
}

// Allow consumes one token for sender. When none is left it returns false
// and the milliseconds until the next token.
func (rl *RateLimiter) Allow(sender string) (allowed bool, cooldownMs int64) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	b, ok := rl.senders[sender]
	if !ok {
		b = &bucket{tokens: float64(rl.burstCapacity), lastCheck: now}
		rl.senders[sender] = b
	}

	b.tokens += now.Sub(b.lastCheck).Seconds() * rl.sustainedRate
	if b.tokens > float64(rl.burstCapacity) {
		b.tokens = float64(rl.burstCapacity)
	}
	b.lastCheck = now

	if b.tokens >= 1.0 {
		b.tokens--
		return true, 0
	}
	deficit := 1.0 - b.tokens
	return false, int64(deficit / rl.sustainedRate * 1000)
}

// SenderCount returns the number of tracked senders.
func (rl *RateLimiter) SenderCount() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.senders)
}

// Cleanup forgets senders idle for longer than maxAge.
func (rl *RateLimiter) Cleanup(maxAge time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	threshold := time.Now().Add(-maxAge)
	for sender, b := range rl.senders {
		if b.lastCheck.Before(threshold) {
			delete(rl.senders, sender)
		}
	}
	if rl.senderGauge != nil {
		rl.senderGauge.Set(float64(len(rl.senders)))
	}
}

func (rl *RateLimiter) cleanupLoop(interval time.Duration) {
	defer rl.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-rl.stopChan:
			return
		case <-ticker.C:
			rl.Cleanup(rl.senderMaxAge)
		}
	}
}

// Close stops the cleanup goroutine and waits for it.
func (rl *RateLimiter) Close() {
	close(rl.stopChan)
	rl.wg.Wait()
}
