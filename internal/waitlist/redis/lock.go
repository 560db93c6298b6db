package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

// EventLock serializes admission-critical sections per event across service
// instances. Lock polls SetNX with a random token; the TTL bounds how long a
// crashed holder can block the event, and release only deletes the key while
// it still carries this holder's token.
type EventLock struct {
	Client *redis.Client
	TTL    time.Duration
	Retry  time.Duration
}

func NewEventLock(client *redis.Client) *EventLock {
	return &EventLock{
		Client: client,
		TTL:    10 * time.Second,
		Retry:  25 * time.Millisecond,
	}
}

func (l *EventLock) Lock(ctx context.Context, eventID string) (func(), error) {
	key := fmt.Sprintf("event_admit_lock:%s", eventID)
	token := uuid.NewString()

	for {
		ok, err := l.Client.SetNX(ctx, key, token, l.TTL).Result()
		if err != nil {
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(l.Retry):
		}
	}

	release := func() {
		ctx := context.Background()
		val, err := l.Client.Get(ctx, key).Result()
		if err != nil {
			return
		}
		if val == token {
			l.Client.Del(ctx, key)
		}
	}
	return release, nil
}
