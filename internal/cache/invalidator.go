package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const keyPrefix = "imgvault:list:"

// Invalidator drops cached listings after mutations. Invalidation is
// best-effort and detached: the response path never waits on it and a
// failure only produces a log line.
type Invalidator struct {
	client *redis.Client
	log    zerolog.Logger
}

func NewInvalidator(client *redis.Client, log zerolog.Logger) *Invalidator {
	return &Invalidator{client: client, log: log}
}

// Invalidate schedules deletion of the cached list for kind and returns
// immediately.
func (i *Invalidator) Invalidate(kind string) {
	if i == nil || i.client == nil {
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		if err := i.client.Del(ctx, keyPrefix+kind).Err(); err != nil {
			i.log.Warn().Err(err).Str("kind", kind).Msg("cache invalidation failed")
		}
	}()
}
