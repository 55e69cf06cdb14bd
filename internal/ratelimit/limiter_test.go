package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixedClock(l *ClientLimiter, start time.Time) *time.Time {
	now := start
	l.now = func() time.Time { return now }
	return &now
}

func TestClientLimiter_Allow(t *testing.T) {
	l := NewClientLimiter(3, time.Minute)
	now := fixedClock(l, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	for i := 0; i < 3; i++ {
		assert.True(t, l.Allow("10.0.0.1"), "request %d", i)
	}
	assert.False(t, l.Allow("10.0.0.1"))

	// другой клиент считается отдельно
	assert.True(t, l.Allow("10.0.0.2"))

	// через треть окна появляется один токен
	*now = now.Add(21 * time.Second)
	assert.True(t, l.Allow("10.0.0.1"))
	assert.False(t, l.Allow("10.0.0.1"))
}

func TestClientLimiter_RetryAfter(t *testing.T) {
	l := NewClientLimiter(100, 15*time.Minute)

	assert.Equal(t, 9*time.Second, l.RetryAfter())
}

func TestClientLimiter_Prune(t *testing.T) {
	l := NewClientLimiter(10, time.Minute)
	now := fixedClock(l, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))

	l.Allow("old")
	*now = now.Add(30 * time.Minute)
	l.Allow("fresh")

	removed := l.Prune(15 * time.Minute)

	assert.Equal(t, 1, removed)
	assert.Equal(t, 1, l.Len())
}
