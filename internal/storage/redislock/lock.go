// Package redislock implements the matchmaking run lock on Redis.
package redislock

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/cory-johannsen/matchmaker/internal/config"
	"github.com/cory-johannsen/matchmaker/internal/matchmaking"
	"github.com/cory-johannsen/matchmaker/internal/observability"
)

var _ matchmaking.Locker = (*Locker)(nil)

const releaseTimeout = 5 * time.Second

// releaseScript deletes the lock key only while it still holds our token.
const releaseScript = `
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`

// Locker is a single-instance Redis lock taken with SET NX PX. The TTL bounds
// how long a crashed holder can block other runners.
type Locker struct {
	client goredis.Cmdable
	key    string
	ttl    time.Duration
	token  func() string
	logger *zap.Logger
}

// NewLocker creates a Locker on key that expires after ttl.
//
// Precondition: client must be non-nil; key non-empty; ttl > 0.
func NewLocker(client goredis.Cmdable, key string, ttl time.Duration, logger *zap.Logger) *Locker {
	return &Locker{
		client: client,
		key:    key,
		ttl:    ttl,
		token:  ownerToken,
		logger: logger,
	}
}

// ownerToken identifies the holder in the lock value so operators can tell
// which matchmaker instance owns the run.
func ownerToken() string {
	return observability.InstanceID() + "/" + uuid.NewString()
}

// NewClient opens a go-redis client from cfg and verifies it responds.
//
// Postcondition: Returns a connected client or a non-nil error.
func NewClient(ctx context.Context, cfg config.RedisConfig) (*goredis.Client, error) {
	client := goredis.NewClient(&goredis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("pinging redis at %s: %w", cfg.Addr, err)
	}
	return client, nil
}

// Ping verifies that the lock's Redis server answers.
func (l *Locker) Ping(ctx context.Context) error {
	if err := l.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("pinging redis for lock %q: %w", l.key, err)
	}
	return nil
}

// TryLock attempts to take the lock without waiting.
//
// Postcondition: When ok is true the caller must invoke release exactly once.
// When ok is false and err is nil another holder owns the lock.
func (l *Locker) TryLock(ctx context.Context) (func(), bool, error) {
	token := l.token()
	ok, err := l.client.SetNX(ctx, l.key, token, l.ttl).Result()
	if err != nil {
		return nil, false, fmt.Errorf("taking redis lock %q: %w", l.key, err)
	}
	if !ok {
		return nil, false, nil
	}

	release := func() {
		ctx, cancel := context.WithTimeout(context.Background(), releaseTimeout)
		defer cancel()
		n, err := l.client.Eval(ctx, releaseScript, []string{l.key}, token).Int64()
		if err != nil {
			l.logger.Error("releasing redis lock", zap.String("lock_key", l.key), zap.Error(err))
			return
		}
		if n == 0 {
			l.logger.Warn("redis lock expired before release", zap.String("lock_key", l.key))
		}
	}
	return release, true, nil
}
