package httpmiddleware

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"
)

// Bucket names a rate-limit class of endpoints. Authentication endpoints get
// a stricter limit than the rest of the API to slow down credential stuffing.
type Bucket string

const (
	// BucketAuth is the strict bucket for authentication endpoints.
	BucketAuth Bucket = "AUTH"
	// BucketAPI is the default bucket for everything else.
	BucketAPI Bucket = "API"
)

// RateLimitConfig configures the fixed window rate limiter.
type RateLimitConfig struct {
	// AuthLimit is the maximum number of requests per minute in BucketAuth.
	AuthLimit int
	// APILimit is the maximum number of requests per minute in BucketAPI.
	APILimit int
	// KeyFunc extracts the client key from a request.
	// If nil, the client IP address is used.
	KeyFunc func(*http.Request) string
	// BucketFunc assigns a request to a bucket. If nil, paths under
	// /api/auth/ go to BucketAuth and everything else to BucketAPI.
	BucketFunc func(*http.Request) Bucket
}

// counter is one fixed window's state. It is an immutable value: a counter is
// replaced via compare-and-swap, never mutated in place, so check-and-
// increment is a single atomic step per key.
type counter struct {
	window int64 // minute epoch the window started at
	count  int64
}

// rateLimiter tracks one counter per (client key, bucket) pair in a
// concurrent map. Independent keys never contend on a shared lock.
type rateLimiter struct {
	cfg      RateLimitConfig
	counters sync.Map // string -> counter
	now      func() time.Time
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	if cfg.KeyFunc == nil {
		cfg.KeyFunc = clientIP
	}
	if cfg.BucketFunc == nil {
		cfg.BucketFunc = defaultBucketFunc
	}
	return &rateLimiter{cfg: cfg, now: time.Now}
}

func (rl *rateLimiter) limit(bucket Bucket) int64 {
	if bucket == BucketAuth {
		return int64(rl.cfg.AuthLimit)
	}
	return int64(rl.cfg.APILimit)
}

// allow runs one check-and-increment for the key. A counter from an earlier
// minute is replaced with a fresh one rather than incremented; within the
// current minute the count is bumped atomically and compared to the bucket's
// limit. It returns the remaining allowance and the window reset time.
func (rl *rateLimiter) allow(key string, bucket Bucket) (remaining int64, resetAt time.Time, allowed bool) {
	limit := rl.limit(bucket)
	window := rl.now().Unix() / 60
	resetAt = time.Unix((window+1)*60, 0)
	mapKey := key + ":" + string(bucket)

	for {
		v, ok := rl.counters.Load(mapKey)
		if !ok {
			if _, raced := rl.counters.LoadOrStore(mapKey, counter{window: window, count: 1}); raced {
				continue
			}
			return limit - 1, resetAt, true
		}

		cur := v.(counter)
		if cur.window != window {
			if !rl.counters.CompareAndSwap(mapKey, cur, counter{window: window, count: 1}) {
				continue
			}
			return limit - 1, resetAt, true
		}

		next := counter{window: window, count: cur.count + 1}
		if !rl.counters.CompareAndSwap(mapKey, cur, next) {
			continue
		}
		if next.count > limit {
			return 0, resetAt, false
		}
		return limit - next.count, resetAt, true
	}
}

// sweep removes counters whose window has already passed. Without it the map
// grows by one entry per distinct client key for the process lifetime.
func (rl *rateLimiter) sweep() {
	window := rl.now().Unix() / 60
	rl.counters.Range(func(k, v any) bool {
		if v.(counter).window < window {
			rl.counters.Delete(k)
		}
		return true
	})
}

func (rl *rateLimiter) startSweep(ctx context.Context, interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				rl.sweep()
			}
		}
	}()
}

// RateLimit returns a middleware enforcing a per-client fixed window (one
// wall-clock minute) rate limit with separate allowances for the AUTH and API
// buckets. When the limit is exceeded it responds 429 with a JSON body; every
// response carries X-RateLimit-Limit, X-RateLimit-Remaining, and
// X-RateLimit-Reset headers.
//
// This variant never evicts idle counters. Use RateLimitWithSweep to bound
// memory in long-running processes.
func RateLimit(cfg RateLimitConfig) Middleware {
	return rateLimitMiddleware(newRateLimiter(cfg))
}

// RateLimitWithSweep is like RateLimit but additionally starts a background
// goroutine that drops counters from past minutes every two minutes. The
// goroutine stops when ctx is cancelled.
func RateLimitWithSweep(ctx context.Context, cfg RateLimitConfig) Middleware {
	rl := newRateLimiter(cfg)
	rl.startSweep(ctx, 2*time.Minute)
	return rateLimitMiddleware(rl)
}

func rateLimitMiddleware(rl *rateLimiter) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			bucket := rl.cfg.BucketFunc(r)
			remaining, resetAt, allowed := rl.allow(rl.cfg.KeyFunc(r), bucket)

			w.Header().Set("X-RateLimit-Limit", strconv.FormatInt(rl.limit(bucket), 10))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

			if !allowed {
				retryAfter := int(time.Until(resetAt).Seconds())
				if retryAfter < 0 {
					retryAfter = 0
				}
				w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				_ = json.NewEncoder(w).Encode(map[string]any{
					"code":    http.StatusTooManyRequests,
					"message": "rate limit exceeded",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// defaultBucketFunc routes authentication endpoints to the strict bucket.
func defaultBucketFunc(r *http.Request) Bucket {
	if strings.HasPrefix(r.URL.Path, "/api/auth/") {
		return BucketAuth
	}
	return BucketAPI
}

// clientIP extracts the client address, preferring X-Forwarded-For, then
// X-Real-IP, then RemoteAddr.
func clientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		if i := strings.IndexByte(xff, ','); i > 0 {
			return strings.TrimSpace(xff[:i])
		}
		return strings.TrimSpace(xff)
	}
	if xri := r.Header.Get("X-Real-IP"); xri != "" {
		return xri
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
