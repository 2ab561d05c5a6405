package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultPrefix = "pixelpress:ratelimit"

type Decision struct {
	Allowed    bool
	Remaining  int64
	RetryAfter time.Duration
}

// takeScript refills a bucket for the elapsed time and then tries to take
// ARGV[4] tokens. State is a hash of {tokens, ts}.
var takeScript = redis.NewScript(`
local capacity = tonumber(ARGV[1])
local rate = tonumber(ARGV[2])
local now = tonumber(ARGV[3])
local cost = math.min(tonumber(ARGV[4]), capacity)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = tonumber(state[1]) or capacity
local ts = tonumber(state[2]) or now

tokens = math.min(capacity, tokens + math.max(0, now - ts) * rate)

local ok = 0
local wait = 0
if tokens >= cost then
  tokens = tokens - cost
  ok = 1
else
  wait = math.ceil((cost - tokens) / rate)
end

redis.call("HSET", KEYS[1], "tokens", tokens, "ts", now)
redis.call("PEXPIRE", KEYS[1], ARGV[5])
return {ok, math.floor(tokens), wait}
`)

// Bucket is a token bucket kept in Redis so every API replica shares the
// same budget per subject.
type Bucket struct {
	client   redis.UniversalClient
	capacity int64
	perMS    float64
	ttl      time.Duration
	prefix   string
	now      func() time.Time
}

type Option func(*Bucket)

func WithPrefix(prefix string) Option {
	return func(b *Bucket) {
		if p := strings.TrimSpace(prefix); p != "" {
			b.prefix = p
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(b *Bucket) {
		if now != nil {
			b.now = now
		}
	}
}

// NewBucket refills capacity tokens evenly across window.
func NewBucket(client redis.UniversalClient, capacity int, window time.Duration, opts ...Option) (*Bucket, error) {
	switch {
	case client == nil:
		return nil, errors.New("redis client is required")
	case capacity <= 0:
		return nil, errors.New("capacity must be positive")
	case window <= 0:
		return nil, errors.New("window must be positive")
	}

	b := &Bucket{
		client:   client,
		capacity: int64(capacity),
		perMS:    float64(capacity) / float64(max(window.Milliseconds(), 1)),
		ttl:      2 * window,
		prefix:   DefaultPrefix,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func (b *Bucket) Capacity() int64 {
	return b.capacity
}

func (b *Bucket) Allow(ctx context.Context, subject string) (Decision, error) {
	return b.AllowN(ctx, subject, 1)
}

// AllowN takes cost tokens from subject's bucket. A cost above capacity is
// charged as a full bucket so large batches remain possible.
func (b *Bucket) AllowN(ctx context.Context, subject string, cost int) (Decision, error) {
	subject = strings.TrimSpace(subject)
	if subject == "" {
		subject = "anonymous"
	}
	cost = max(cost, 1)

	vals, err := takeScript.Run(ctx, b.client,
		[]string{b.prefix + ":" + subject},
		b.capacity,
		b.perMS,
		b.now().UTC().UnixMilli(),
		cost,
		b.ttl.Milliseconds(),
	).Int64Slice()
	if err != nil {
		return Decision{}, fmt.Errorf("take %d tokens for %s: %w", cost, subject, err)
	}
	if len(vals) != 3 {
		return Decision{}, fmt.Errorf("token bucket returned %d values", len(vals))
	}

	return Decision{
		Allowed:    vals[0] == 1,
		Remaining:  vals[1],
		RetryAfter: time.Duration(vals[2]) * time.Millisecond,
	}, nil
}
