package httpsec

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter はクライアントごとのトークンバケットで流量を制限します
// 一定時間アクセスのないクライアントのバケットは Sweep で破棄されます
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*limiterEntry
	rps     rate.Limit
	burst   int
	ttl     time.Duration
	now     func() time.Time

	// trustProxy が true の場合のみ X-Forwarded-For をクライアント識別に使う
	trustProxy bool
}

type limiterEntry struct {
	l        *rate.Limiter
	lastSeen time.Time
}

// NewRateLimiter はレートリミッタを作成します
// rps か burst が0以下の場合は制限なしになります
func NewRateLimiter(rps float64, burst int) *RateLimiter {
	limit := rate.Limit(rps)
	if rps <= 0 || burst <= 0 {
		limit = rate.Inf
	}
	return &RateLimiter{
		entries: make(map[string]*limiterEntry),
		rps:     limit,
		burst:   burst,
		ttl:     10 * time.Minute,
		now:     time.Now,
	}
}

// TrustForwardedFor は信頼できるリバースプロキシ配下で X-Forwarded-For を使うよう設定します
func (rl *RateLimiter) TrustForwardedFor(trust bool) *RateLimiter {
	rl.trustProxy = trust
	return rl
}

// Allow はキーに対応するバケットからトークンを1つ消費できるかを返します
func (rl *RateLimiter) Allow(key string) (bool, time.Duration) {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := rl.now()
	e, ok := rl.entries[key]
	if !ok {
		e = &limiterEntry{l: rate.NewLimiter(rl.rps, rl.burst)}
		rl.entries[key] = e
	}
	e.lastSeen = now

	if e.l.AllowN(now, 1) {
		return true, 0
	}
	r := e.l.ReserveN(now, 1)
	delay := r.DelayFrom(now)
	r.CancelAt(now)
	return false, delay
}

// Sweep は ttl 以上アクセスのないバケットを破棄し、破棄した件数を返します
func (rl *RateLimiter) Sweep() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := rl.now().Add(-rl.ttl)
	removed := 0
	for k, e := range rl.entries {
		if e.lastSeen.Before(cutoff) {
			delete(rl.entries, k)
			removed++
		}
	}
	return removed
}

// Middleware は制限を超えたリクエストに 429 を返すミドルウェアです
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ok, wait := rl.Allow(ClientKey(r, rl.trustProxy))
		if !ok {
			retryAfter := int(math.Ceil(wait.Seconds()))
			if retryAfter < 1 {
				retryAfter = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusTooManyRequests)
			fmt.Fprintf(w, `{"error":"Too many requests","retryAfter":%d}`, retryAfter)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// ClientKey はクライアント識別子を返します
// trustProxy が false の場合、クライアントが自由に付けられる X-Forwarded-For は無視して接続元IPを使います
func ClientKey(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
			first, _, _ := strings.Cut(fwd, ",")
			if ip := strings.TrimSpace(first); ip != "" {
				return ip
			}
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
