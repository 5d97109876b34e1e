// Copyright (C) 2026 Tessera Labs, Inc.
// See LICENSE for copying information.

package web

import (
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/juju/ratelimit"
	"go.uber.org/zap"

	"tessera.io/tessera/tessera/registry"
	"tessera.io/tessera/tessera/web/api"
)

// requestIDMiddleware tags every request with an id for log joining.
// A caller-supplied X-Request-ID is kept so ids can flow through
// multi-service traces.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-ID")
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", id)
		next.ServeHTTP(w, r.WithContext(api.WithRequestID(r.Context(), id)))
	})
}

// securityHeadersMiddleware sets the response headers every endpoint
// carries. HSTS only makes sense behind TLS, so it is limited to
// production.
func securityHeadersMiddleware(production bool) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Frame-Options", "DENY")
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Referrer-Policy", "strict-origin-when-cross-origin")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			if production {
				h.Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
			}
			next.ServeHTTP(w, r)
		})
	}
}

// rateLimiter throttles per caller: the API key prefix when one is
// presented, the remote address otherwise.
type rateLimiter struct {
	mu        sync.Mutex
	buckets   map[string]*ratelimit.Bucket
	perMinute int
}

func newRateLimiter(perMinute int) *rateLimiter {
	if perMinute <= 0 {
		perMinute = 120
	}
	return &rateLimiter{
		buckets:   make(map[string]*ratelimit.Bucket),
		perMinute: perMinute,
	}
}

func (rl *rateLimiter) bucket(key string) *ratelimit.Bucket {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	b, ok := rl.buckets[key]
	if !ok {
		b = ratelimit.NewBucketWithQuantum(time.Minute/time.Duration(rl.perMinute), int64(rl.perMinute), 1)
		rl.buckets[key] = b
	}
	return b
}

func (rl *rateLimiter) middleware(log *zap.Logger) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := callerKey(r)
			if rl.bucket(key).TakeAvailable(1) == 0 {
				mon.Counter("rate_limited").Inc(1)
				w.Header().Set("Retry-After", strconv.Itoa(int(time.Minute.Seconds())))
				api.ServeError(log, w, r, api.ErrRateLimited.New("request budget exhausted"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// callerKey identifies the caller before authentication runs. Using
// the key prefix keeps a team's budget stable across source addresses.
func callerKey(r *http.Request) string {
	if token := bearerToken(r); strings.HasPrefix(token, registry.KeyPrefix) && len(token) >= len(registry.KeyPrefix)+8 {
		return token[:len(registry.KeyPrefix)+8]
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func bearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	const prefix = "Bearer "
	if !strings.HasPrefix(auth, prefix) {
		return ""
	}
	return strings.TrimSpace(auth[len(prefix):])
}
