package redis

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/go-redis/redis/v8"
)

// Limiter is a fixed-window rate limiter for queue joins, keyed per user.
// The first join in a window sets the key with the window TTL; further joins
// increment it until the limit is hit, after which the key's remaining TTL
// tells the user how long to wait.
type Limiter struct {
	Client *redis.Client
	Limit  int
	Window time.Duration
	Logger *log.Logger
}

func NewLimiter(client *redis.Client, limit int, window time.Duration) *Limiter {
	return &Limiter{
		Client: client,
		Limit:  limit,
		Window: window,
		Logger: log.Default(),
	}
}

// Allow reports whether the user may join, and when not, how long until the
// current window resets.
func (l *Limiter) Allow(ctx context.Context, userID string) (bool, time.Duration, error) {
	key := fmt.Sprintf("join_rate:%s", userID)

	count, err := l.Client.Incr(ctx, key).Result()
	if err != nil {
		return false, 0, err
	}

	if count == 1 {
		if err := l.Client.Expire(ctx, key, l.Window).Err(); err != nil {
			// A counter with no TTL would lock the user out forever; drop it
			// and let the next attempt start a fresh window.
			l.Client.Del(ctx, key)
			return false, 0, err
		}
	}

	if count > int64(l.Limit) {
		ttl, err := l.Client.TTL(ctx, key).Result()
		if err != nil || ttl < 0 {
			ttl = l.Window
		}
		l.Logger.Printf("RATELIMIT: user %s exceeded %d joins per %s", userID, l.Limit, l.Window)
		return false, ttl, nil
	}

	return true, 0, nil
}

// Reset clears the user's window. Used by tests and support tooling.
func (l *Limiter) Reset(ctx context.Context, userID string) error {
	return l.Client.Del(ctx, fmt.Sprintf("join_rate:%s", userID)).Err()
}
