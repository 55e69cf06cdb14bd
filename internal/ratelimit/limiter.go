package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type client struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// ClientLimiter выдает каждому клиенту свое ведро токенов.
// requests запросов за window с полным ведром в начале, как у окна фиксированного размера.
type ClientLimiter struct {
	mu       sync.Mutex
	clients  map[string]*client
	interval time.Duration
	burst    int
	now      func() time.Time
}

func NewClientLimiter(requests int, window time.Duration) *ClientLimiter {
	return &ClientLimiter{
		clients:  make(map[string]*client),
		interval: window / time.Duration(requests),
		burst:    requests,
		now:      time.Now,
	}
}

// Allow сообщает, можно ли обслужить запрос клиента key прямо сейчас
func (l *ClientLimiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[key]
	if !ok {
		c = &client{limiter: rate.NewLimiter(rate.Every(l.interval), l.burst)}
		l.clients[key] = c
	}
	c.lastSeen = now
	return c.limiter.AllowN(now, 1)
}

// RetryAfter - сколько ждать до следующего токена
func (l *ClientLimiter) RetryAfter() time.Duration {
	return l.interval
}

// Prune забывает клиентов, которых не было дольше idle, и возвращает их число
func (l *ClientLimiter) Prune(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-idle)
	removed := 0
	for key, c := range l.clients {
		if c.lastSeen.Before(cutoff) {
			delete(l.clients, key)
			removed++
		}
	}
	return removed
}

// Len возвращает число отслеживаемых клиентов
func (l *ClientLimiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
