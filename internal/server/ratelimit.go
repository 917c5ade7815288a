package server

import (
	"fmt"
	"sync"
	"time"
)

// RateLimitConfig shapes the two limiters the server runs: a global token
// bucket over every request, and a per-client window over mutations. When
// RedisAddr is set the mutation counters live in Redis so replicas share
// one window.
type RateLimitConfig struct {
	GlobalRPS      float64
	GlobalBurst    int
	MutationLimit  int
	MutationWindow time.Duration
	RedisAddr      string
	RedisPassword  string
	RedisDB        int
	RedisTimeout   time.Duration
}

// tokenStore counts events per key inside a rolling window. The in-process
// fallback and the Redis store both satisfy it.
type tokenStore interface {
	Allow(key string, limit int, window time.Duration) (bool, time.Duration, error)
}

type rateLimiter struct {
	global         *tokenBucket
	mutationLimit  int
	mutationWindow time.Duration
	mutationMu     sync.Mutex
	mutationByKey  map[string]*keyedLimiter
	store          tokenStore
	closeOnce      sync.Once
	closer         func() error
}

type keyedLimiter struct {
	bucket   *tokenBucket
	lastSeen time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{
		mutationLimit:  cfg.MutationLimit,
		mutationWindow: cfg.MutationWindow,
		mutationByKey:  make(map[string]*keyedLimiter),
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = int(cfg.GlobalRPS)
			if burst < 1 {
				burst = 1
			}
		}
		rl.global = newTokenBucket(cfg.GlobalRPS, burst)
	}
	if rl.mutationWindow <= 0 {
		rl.mutationWindow = time.Minute
	}
	if cfg.RedisAddr != "" && rl.mutationLimit > 0 {
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		store := newRedisStore(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, timeout)
		rl.store = store
		rl.closer = store.Close
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	if r == nil || r.global == nil {
		return true
	}
	return r.global.Allow()
}

// AllowMutation admits or rejects one channel mutation for the given
// client key, typically an IP address.
func (r *rateLimiter) AllowMutation(key string) (bool, time.Duration, error) {
	if r == nil || r.mutationLimit <= 0 {
		return true, 0, nil
	}
	if r.store != nil {
		return r.store.Allow(fmt.Sprintf("canaldir:mutation:%s", key), r.mutationLimit, r.mutationWindow)
	}
	if key == "" {
		key = "unknown"
	}
	r.mutationMu.Lock()
	limiter, exists := r.mutationByKey[key]
	if !exists {
		rate := float64(r.mutationLimit) / r.mutationWindow.Seconds()
		if rate <= 0 {
			rate = 1 / r.mutationWindow.Seconds()
		}
		limiter = &keyedLimiter{bucket: newTokenBucket(rate, r.mutationLimit)}
		r.mutationByKey[key] = limiter
	}
	limiter.lastSeen = time.Now()
	r.evictStaleLocked()
	r.mutationMu.Unlock()

	if limiter.bucket.Allow() {
		return true, 0, nil
	}
	return false, time.Second, nil
}

func (r *rateLimiter) evictStaleLocked() {
	if len(r.mutationByKey) == 0 {
		return
	}
	cutoff := time.Now().Add(-2 * r.mutationWindow)
	for key, limiter := range r.mutationByKey {
		if limiter.lastSeen.Before(cutoff) {
			delete(r.mutationByKey, key)
		}
	}
}

func (r *rateLimiter) Close() error {
	if r == nil || r.closer == nil {
		return nil
	}
	var err error
	r.closeOnce.Do(func() {
		err = r.closer()
	})
	return err
}

type tokenBucket struct {
	mu        sync.Mutex
	rate      float64
	capacity  float64
	tokens    float64
	lastCheck time.Time
}

func newTokenBucket(rate float64, burst int) *tokenBucket {
	if rate <= 0 {
		rate = 1
	}
	if burst <= 0 {
		burst = 1
	}
	return &tokenBucket{
		rate:      rate,
		capacity:  float64(burst),
		tokens:    float64(burst),
		lastCheck: time.Now(),
	}
}

func (tb *tokenBucket) Allow() bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	now := time.Now()
	tb.tokens += now.Sub(tb.lastCheck).Seconds() * tb.rate
	tb.lastCheck = now
	if tb.tokens > tb.capacity {
		tb.tokens = tb.capacity
	}
	if tb.tokens < 1 {
		return false
	}
	tb.tokens--
	return true
}
