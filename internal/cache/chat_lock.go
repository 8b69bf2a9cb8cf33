package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/go-redsync/redsync/v4"
	"github.com/go-redsync/redsync/v4/redis/goredis/v9"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// ChatLocker serializes turns on the same chat across every API instance.
type ChatLocker struct {
	rs     *redsync.Redsync
	expiry time.Duration
	log    zerolog.Logger
}

func NewChatLocker(client *redisv9.Client, expiry time.Duration, log zerolog.Logger) *ChatLocker {
	if expiry <= 0 {
		expiry = 2 * time.Minute
	}
	return &ChatLocker{
		rs:     redsync.New(goredis.NewPool(client)),
		expiry: expiry,
		log:    log.With().Str("component", "chat_lock").Logger(),
	}
}

// Lock blocks until the chat lock is held or ctx is done. The returned func
// releases it and is safe to call once.
func (l *ChatLocker) Lock(ctx context.Context, chatID string) (func(), error) {
	mutex := l.rs.NewMutex(lockName(chatID),
		redsync.WithExpiry(l.expiry),
		redsync.WithTries(64),
		redsync.WithRetryDelay(50*time.Millisecond),
	)
	if err := mutex.LockContext(ctx); err != nil {
		return nil, fmt.Errorf("acquire chat lock failed: %w", err)
	}
	return func() {
		if _, err := mutex.UnlockContext(context.WithoutCancel(ctx)); err != nil {
			l.log.Error().Err(err).Str("chat_id", chatID).Msg("release chat lock failed")
		}
	}, nil
}

func lockName(chatID string) string {
	return "chat:lock:" + chatID
}
