package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LoginRateLimiter throttles sign-in attempts per client. Each client gets a
// token bucket holding maxAttempts tokens that refills over window; draining it
// blocks the client for the block duration.
type LoginRateLimiter struct {
	mu      sync.Mutex
	clients map[string]*client
	limit   rate.Limit
	burst   int
	window  time.Duration
	block   time.Duration
	now     func() time.Time
}

type client struct {
	limiter      *rate.Limiter
	lastSeen     time.Time
	blockedUntil time.Time
}

func NewLoginRateLimiter(maxAttempts int, window, block time.Duration) *LoginRateLimiter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &LoginRateLimiter{
		clients: make(map[string]*client),
		limit:   rate.Every(window / time.Duration(maxAttempts)),
		burst:   maxAttempts,
		window:  window,
		block:   block,
		now:     time.Now,
	}
}

// Allow consumes one attempt for clientID. When the client is blocked it
// reports false and how long the block still lasts.
func (l *LoginRateLimiter) Allow(clientID string) (bool, time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	c, ok := l.clients[clientID]
	if !ok {
		c = &client{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.clients[clientID] = c
	}
	c.lastSeen = now

	if now.Before(c.blockedUntil) {
		return false, c.blockedUntil.Sub(now)
	}
	if c.limiter.AllowN(now, 1) {
		return true, 0
	}
	c.blockedUntil = now.Add(l.block)
	return false, l.block
}

// Reset forgets clientID, typically after a successful sign-in.
func (l *LoginRateLimiter) Reset(clientID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.clients, clientID)
}

// Prune drops clients idle for two windows whose block has expired.
func (l *LoginRateLimiter) Prune() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	removed := 0
	for id, c := range l.clients {
		if now.Sub(c.lastSeen) > 2*l.window && !now.Before(c.blockedUntil) {
			delete(l.clients, id)
			removed++
		}
	}
	return removed
}

// Run prunes idle clients every interval until ctx is done.
func (l *LoginRateLimiter) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.Prune()
		}
	}
}

func (l *LoginRateLimiter) tracked() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.clients)
}
