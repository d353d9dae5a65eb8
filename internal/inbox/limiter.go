package inbox

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

const (
	limiterIdleTTL    = 10 * time.Minute
	limiterPruneEvery = 1024
)

type chatLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// chatLimiters 为每个会话维护一个令牌桶，长时间不活跃的会话会被回收。
type chatLimiters struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*chatLimiter
	calls   int
	now     func() time.Time
}

func newChatLimiters(perSecond float64, burst int) *chatLimiters {
	if burst <= 0 {
		burst = 1
	}
	return &chatLimiters{
		limit:   rate.Limit(perSecond),
		burst:   burst,
		entries: make(map[string]*chatLimiter),
		now:     time.Now,
	}
}

func (l *chatLimiters) Allow(chatID string) bool {
	if l == nil || l.limit <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.calls++
	if l.calls%limiterPruneEvery == 0 {
		for id, entry := range l.entries {
			if now.Sub(entry.lastSeen) > limiterIdleTTL {
				delete(l.entries, id)
			}
		}
	}
	entry, ok := l.entries[chatID]
	if !ok {
		entry = &chatLimiter{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[chatID] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}
