package ratelimit

import (
	"context"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

const defaultRedisPrefix = "leadhook:ratelimit:"

// slidingWindow prunes, checks and records in one atomic step. Scores are
// unix milliseconds.
var slidingWindow = redis.NewScript(`
local key    = KEYS[1]
local now    = tonumber(ARGV[1])
local window = tonumber(ARGV[2])
local limit  = tonumber(ARGV[3])

redis.call('ZREMRANGEBYSCORE', key, '-inf', now - window)
if redis.call('ZCARD', key) >= limit then
	return 0
end
redis.call('ZADD', key, now, ARGV[4])
redis.call('PEXPIRE', key, window)
return 1
`)

// Redis is a sliding-window limiter shared by every process pointing at the
// same Redis. Keys expire one window after the client's last accepted hit.
type Redis struct {
	client *redis.Client
	cfg    Config
	prefix string
	now    func() time.Time
}

// NewRedis wraps an existing client.
func NewRedis(client *redis.Client, cfg Config) (*Redis, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &Redis{
		client: client,
		cfg:    cfg,
		prefix: defaultRedisPrefix,
		now:    time.Now,
	}, nil
}

// NewRedisFromURL parses a redis:// URL, connects and pings.
func NewRedisFromURL(ctx context.Context, redisURL string, cfg Config) (*Redis, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, eris.Wrap(err, "ratelimit: parse redis url")
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close() //nolint:errcheck
		return nil, eris.Wrap(err, "ratelimit: connect to redis")
	}

	r, err := NewRedis(client, cfg)
	if err != nil {
		client.Close() //nolint:errcheck
		return nil, err
	}
	return r, nil
}

// Allow runs the sliding-window script for key.
func (r *Redis) Allow(ctx context.Context, key string) (bool, error) {
	now := r.now().UnixMilli()
	res, err := slidingWindow.Run(ctx, r.client,
		[]string{r.prefix + key},
		now,
		r.cfg.Window.Milliseconds(),
		r.cfg.MaxRequests,
		strconv.FormatInt(now, 10)+"-"+uuid.NewString(),
	).Int()
	if err != nil {
		return false, eris.Wrapf(err, "ratelimit: redis allow %s", key)
	}
	return res == 1, nil
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.client.Close()
}
