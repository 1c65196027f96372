package middleware

import (
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter provides IP-based rate limiting
type RateLimiter struct {
	limiters *keyedLimiters
}

// RateLimiterConfig holds rate limiter configuration
type RateLimiterConfig struct {
	RequestsPerSecond float64       // Requests allowed per second
	BurstSize         int           // Maximum burst size
	CleanupInterval   time.Duration // How often to clean up old visitors
	TTL               time.Duration // How long to keep inactive visitors
}

// DefaultRateLimiterConfig returns a sensible default configuration
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		RequestsPerSecond: 10,
		BurstSize:         20,
		CleanupInterval:   time.Minute,
		TTL:               3 * time.Minute,
	}
}

// NewRateLimiter creates a new rate limiter with the given configuration.
// Stop releases its cleanup goroutine.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	return &RateLimiter{limiters: newKeyedLimiters(cfg)}
}

// Allow checks if a request from the given IP is allowed
func (rl *RateLimiter) Allow(ip string) bool {
	return rl.limiters.allow(ip)
}

// Stop ends background cleanup.
func (rl *RateLimiter) Stop() {
	rl.limiters.stop()
}

// Middleware returns an HTTP middleware that rate limits requests
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rl.Allow(getClientIP(r)) {
			writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RateLimitBySubject limits authenticated callers by their subject id. It
// must run after Authenticate.
type RateLimitBySubject struct {
	limiters *keyedLimiters
}

// NewRateLimitBySubject creates a subject-keyed rate limiter
func NewRateLimitBySubject(cfg RateLimiterConfig) *RateLimitBySubject {
	return &RateLimitBySubject{limiters: newKeyedLimiters(cfg)}
}

// Allow checks if a request from the given subject is allowed
func (rl *RateLimitBySubject) Allow(subjectID string) bool {
	return rl.limiters.allow(subjectID)
}

// Stop ends background cleanup.
func (rl *RateLimitBySubject) Stop() {
	rl.limiters.stop()
}

// Middleware returns an HTTP middleware that rate limits requests per subject
func (rl *RateLimitBySubject) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, ok := IdentityFromContext(r.Context())
		if ok && !rl.Allow(identity.SubjectID) {
			writeRateLimited(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeRateLimited(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Retry-After", "1")
	w.WriteHeader(http.StatusTooManyRequests)
	_, _ = w.Write([]byte(`{"error":"Too many requests. Please try again later.","code":"RATE_LIMITED"}`))
}

type visitor struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// keyedLimiters holds one token bucket per key and evicts idle keys.
type keyedLimiters struct {
	mu       sync.Mutex
	visitors map[string]*visitor
	rate     rate.Limit
	burst    int
	done     chan struct{}
	stopOnce sync.Once
}

func newKeyedLimiters(cfg RateLimiterConfig) *keyedLimiters {
	def := DefaultRateLimiterConfig()
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = def.CleanupInterval
	}
	if cfg.TTL <= 0 {
		cfg.TTL = def.TTL
	}

	kl := &keyedLimiters{
		visitors: make(map[string]*visitor),
		rate:     rate.Limit(cfg.RequestsPerSecond),
		burst:    cfg.BurstSize,
		done:     make(chan struct{}),
	}
	go kl.cleanup(cfg.CleanupInterval, cfg.TTL)
	return kl
}

func (kl *keyedLimiters) allow(key string) bool {
	kl.mu.Lock()
	v, exists := kl.visitors[key]
	if !exists {
		v = &visitor{limiter: rate.NewLimiter(kl.rate, kl.burst)}
		kl.visitors[key] = v
	}
	v.lastSeen = time.Now()
	kl.mu.Unlock()

	return v.limiter.Allow()
}

// cleanup removes visitors that haven't been seen recently
func (kl *keyedLimiters) cleanup(interval, ttl time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-kl.done:
			return
		case <-ticker.C:
			kl.mu.Lock()
			for key, v := range kl.visitors {
				if time.Since(v.lastSeen) > ttl {
					delete(kl.visitors, key)
				}
			}
			kl.mu.Unlock()
		}
	}
}

func (kl *keyedLimiters) stop() {
	kl.stopOnce.Do(func() { close(kl.done) })
}

// getClientIP extracts the client IP from the request
// It checks X-Forwarded-For and X-Real-IP headers first (for reverse proxies)
func getClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		// Take the first IP in the list
		first, _, _ := strings.Cut(xff, ",")
		return strings.TrimSpace(first)
	}

	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}

	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}
