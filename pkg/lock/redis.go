package lock

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrFailedToParseRedisConnString is returned for malformed connection URLs.
	ErrFailedToParseRedisConnString = errors.New("lock: failed to parse redis connection string")

	// ErrRedisNotReady is returned when the server did not answer a ping
	// within the configured attempts.
	ErrRedisNotReady = errors.New("lock: redis did not become ready within the given time period")
)

// RedisConfig holds connection settings for the Redis-backed locker.
type RedisConfig struct {
	ConnectionURL  string        `env:"REDIS_URL,required" envDefault:"redis://localhost:6379/0"`
	RetryAttempts  int           `env:"REDIS_RETRY_ATTEMPTS" envDefault:"3"`
	RetryInterval  time.Duration `env:"REDIS_RETRY_INTERVAL" envDefault:"5s"`
	ConnectTimeout time.Duration `env:"REDIS_CONNECT_TIMEOUT" envDefault:"30s"`
}

// Connect establishes a Redis connection, retrying per the config before
// giving up.
func Connect(ctx context.Context, cfg RedisConfig) (*redis.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, cfg.ConnectTimeout)
	defer cancel()

	opt, err := redis.ParseURL(cfg.ConnectionURL)
	if err != nil {
		return nil, errors.Join(ErrFailedToParseRedisConnString, err)
	}

	for range cfg.RetryAttempts {
		client := redis.NewClient(opt)
		if err := client.Ping(ctx).Err(); err == nil {
			return client, nil
		}
		_ = client.Close()

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrRedisNotReady, ctx.Err())
		default:
			time.Sleep(cfg.RetryInterval)
		}
	}

	return nil, ErrRedisNotReady
}

// releaseScript deletes the lock key only when it still holds our token,
// so an expired lease taken over by another instance is never released
// from here.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

const (
	// DefaultLeaseTTL bounds how long a crashed holder can block a key.
	DefaultLeaseTTL = 30 * time.Second

	// DefaultPollInterval is how often a blocked Acquire re-attempts SET NX.
	DefaultPollInterval = 50 * time.Millisecond
)

// RedisLocker is a KeyedLocker backed by Redis SET NX PX leases. It provides
// mutual exclusion across process instances; the lease TTL bounds the damage
// of a holder that dies without releasing.
type RedisLocker struct {
	client       redis.UniversalClient
	prefix       string
	leaseTTL     time.Duration
	pollInterval time.Duration
}

// RedisOption configures a RedisLocker.
type RedisOption func(*RedisLocker)

// WithLeaseTTL overrides the lease TTL. Non-positive values are ignored.
func WithLeaseTTL(ttl time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if ttl > 0 {
			l.leaseTTL = ttl
		}
	}
}

// WithPollInterval overrides the acquisition poll interval. Non-positive
// values are ignored.
func WithPollInterval(d time.Duration) RedisOption {
	return func(l *RedisLocker) {
		if d > 0 {
			l.pollInterval = d
		}
	}
}

// WithKeyPrefix namespaces lock keys, e.g. per environment.
func WithKeyPrefix(prefix string) RedisOption {
	return func(l *RedisLocker) { l.prefix = prefix }
}

// NewRedisLocker creates a RedisLocker over an established client.
// Panics when client is nil to fail fast during initialization.
func NewRedisLocker(client redis.UniversalClient, opts ...RedisOption) *RedisLocker {
	if client == nil {
		panic("lock: redis client is required")
	}

	l := &RedisLocker{
		client:       client,
		prefix:       "lock:",
		leaseTTL:     DefaultLeaseTTL,
		pollInterval: DefaultPollInterval,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *RedisLocker) Acquire(ctx context.Context, key string) (func(), error) {
	if key == "" {
		return nil, ErrEmptyKey
	}

	redisKey := l.prefix + key
	token := uuid.New().String()

	for {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.leaseTTL).Result()
		if err != nil {
			return nil, errors.Join(ErrNotAcquired, err)
		}
		if ok {
			return func() {
				releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = releaseScript.Run(releaseCtx, l.client, []string{redisKey}, token).Err()
			}, nil
		}

		select {
		case <-ctx.Done():
			return nil, errors.Join(ErrNotAcquired, ctx.Err())
		case <-time.After(l.pollInterval):
		}
	}
}
