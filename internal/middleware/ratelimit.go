package middleware

import (
	"context"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"
)

type Limiter interface {
	Allow(ctx context.Context, key string) (bool, error)
}

type client struct {
	lim  *rate.Limiter
	seen time.Time
}

// MemoryLimiter keeps one token bucket per client in process memory.
type MemoryLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	r       rate.Limit
	burst   int
	done    chan struct{}
	once    sync.Once
}

func NewMemoryLimiter(rps float64, burst int) *MemoryLimiter {
	ml := &MemoryLimiter{
		clients: make(map[string]*client),
		r:       rate.Limit(rps),
		burst:   burst,
		done:    make(chan struct{}),
	}
	go ml.cleanup(time.Minute, 3*time.Minute)
	return ml
}

// cleanup drops clients not seen for idle
func (ml *MemoryLimiter) cleanup(every, idle time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ml.done:
			return
		case <-t.C:
			ml.mu.Lock()
			for ip, c := range ml.clients {
				if time.Since(c.seen) > idle {
					delete(ml.clients, ip)
				}
			}
			ml.mu.Unlock()
		}
	}
}

func (ml *MemoryLimiter) Close() {
	ml.once.Do(func() { close(ml.done) })
}

func (ml *MemoryLimiter) get(ip string) *rate.Limiter {
	ml.mu.Lock()
	defer ml.mu.Unlock()
	if c, ok := ml.clients[ip]; ok {
		c.seen = time.Now()
		return c.lim
	}
	l := rate.NewLimiter(ml.r, ml.burst)
	ml.clients[ip] = &client{lim: l, seen: time.Now()}
	return l
}

func (ml *MemoryLimiter) Allow(_ context.Context, key string) (bool, error) {
	return ml.get(key).Allow(), nil
}

// RedisLimiter is a fixed window counter shared by every portal replica.
type RedisLimiter struct {
	rdb    redis.Cmdable
	limit  int64
	window time.Duration
	now    func() time.Time
}

// NewRedisLimiter allows burst requests per window, where the window is the
// time it takes rps to refill burst.
func NewRedisLimiter(rdb redis.Cmdable, rps float64, burst int) *RedisLimiter {
	window := time.Minute
	if rps > 0 {
		window = time.Duration(float64(burst) / rps * float64(time.Second))
	}
	if window < time.Second {
		window = time.Second
	}
	return &RedisLimiter{rdb: rdb, limit: int64(burst), window: window, now: time.Now}
}

func (rl *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	slot := rl.now().UnixNano() / int64(rl.window)
	k := fmt.Sprintf("portal:ratelimit:%s:%d", key, slot)

	var incr *redis.IntCmd
	_, err := rl.rdb.TxPipelined(ctx, func(p redis.Pipeliner) error {
		incr = p.Incr(ctx, k)
		p.Expire(ctx, k, rl.window)
		return nil
	})
	if err != nil {
		return false, err
	}
	return incr.Val() <= rl.limit, nil
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// RateLimit rejects clients over the limit with 429. A limiter that errors
// lets the request through.
func RateLimit(l Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ok, err := l.Allow(r.Context(), clientIP(r))
			if err != nil {
				log.Printf("[%s] rate limit: %v", RequestIDFrom(r.Context()), err)
				ok = true
			}
			if !ok {
				http.Error(w, "too many requests", http.StatusTooManyRequests)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
