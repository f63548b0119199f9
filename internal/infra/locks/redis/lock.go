package redis

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"

	"staykeeper/internal/app/locks"
)

const (
	defaultTTL   = 10 * time.Second
	defaultRetry = 25 * time.Millisecond
	keyPrefix    = "staykeeper:lock:"
)

// Only the holder's token may release or extend a key.
var (
	releaseScript = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("del", KEYS[1]) else return 0 end`)
	extendScript  = redis.NewScript(`if redis.call("get", KEYS[1]) == ARGV[1] then return redis.call("pexpire", KEYS[1], ARGV[2]) else return 0 end`)
)

// Client is the part of *redis.Client the lock needs.
type Client interface {
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	redis.Scripter
}

// Locker is a cross-process per-key lock. The holder refreshes the TTL
// while it works, so a crashed instance frees its keys after at most TTL.
type Locker struct {
	Client Client
	TTL    time.Duration
	Retry  time.Duration
	Logger *slog.Logger
}

func NewLocker(client Client, ttl, retry time.Duration, logger *slog.Logger) *Locker {
	return &Locker{Client: client, TTL: ttl, Retry: retry, Logger: logger}
}

func NewClient(addr, password string, db int) *redis.Client {
	return redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
}

func (l *Locker) Lock(ctx context.Context, key string) (locks.Unlock, error) {
	if key == "" {
		return nil, locks.ErrEmptyKey
	}
	redisKey := keyPrefix + key
	token := uuid.NewString()
	ttl := l.ttl()

	ticker := time.NewTicker(l.retry())
	defer ticker.Stop()
	for {
		ok, err := l.Client.SetNX(ctx, redisKey, token, ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, err
		}
		if ok {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-ticker.C:
		}
	}

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		l.keepAlive(redisKey, token, ttl, stop)
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
			wg.Wait()
			ctx, cancel := context.WithTimeout(context.Background(), ttl)
			defer cancel()
			if err := releaseScript.Run(ctx, l.Client, []string{redisKey}, token).Err(); err != nil && !errors.Is(err, redis.Nil) {
				l.logger().Warn("lock release failed", "key", key, "error", err)
			}
		})
	}, nil
}

func (l *Locker) keepAlive(key, token string, ttl time.Duration, stop <-chan struct{}) {
	ticker := time.NewTicker(ttl / 3)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), ttl/3)
			n, err := extendScript.Run(ctx, l.Client, []string{key}, token, ttl.Milliseconds()).Int64()
			cancel()
			if err != nil {
				l.logger().Warn("lock refresh failed", "key", key, "error", err)
				continue
			}
			if n == 0 {
				l.logger().Error("lock lost before release", "key", key)
				return
			}
		}
	}
}

func (l *Locker) ttl() time.Duration {
	if l.TTL <= 0 {
		return defaultTTL
	}
	return l.TTL
}

func (l *Locker) retry() time.Duration {
	if l.Retry <= 0 {
		return defaultRetry
	}
	return l.Retry
}

func (l *Locker) logger() *slog.Logger {
	if l.Logger != nil {
		return l.Logger
	}
	return slog.Default()
}

var _ locks.Locker = (*Locker)(nil)
