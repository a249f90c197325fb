package baseline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const DefaultRedisKey = "signalbot:baseline"

// kv is the subset of redis.Cmdable the persister needs.
type kv interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// RedisOptions configure the Redis connection.
type RedisOptions struct {
	Addr     string
	Password string
	DB       int
	Key      string
}

// RedisPersister stores the snapshot as one JSON value under a single key,
// so a save replaces the whole state in one SET.
type RedisPersister struct {
	client kv
	closer func() error
	key    string
	now    func() time.Time
}

var _ Persister = (*RedisPersister)(nil)

// NewRedisPersister dials Redis and verifies the connection with PING.
func NewRedisPersister(ctx context.Context, opts RedisOptions) (*RedisPersister, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	p := newRedisPersister(client, opts.Key)
	p.closer = client.Close
	return p, nil
}

func newRedisPersister(client kv, key string) *RedisPersister {
	if key == "" {
		key = DefaultRedisKey
	}
	return &RedisPersister{client: client, key: key, now: time.Now}
}

// Load returns an empty snapshot when the key is absent.
func (p *RedisPersister) Load(ctx context.Context) (Snapshot, error) {
	data, err := p.client.Get(ctx, p.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return Snapshot{}, nil
		}
		return nil, fmt.Errorf("redis get %s: %w", p.key, err)
	}
	return Decode(data, p.now().UTC())
}

func (p *RedisPersister) Save(ctx context.Context, snap Snapshot) error {
	data, err := Encode(snap)
	if err != nil {
		return err
	}
	if err := p.client.Set(ctx, p.key, data, 0).Err(); err != nil {
		return fmt.Errorf("redis set %s: %w", p.key, err)
	}
	return nil
}

func (p *RedisPersister) Close() error {
	if p.closer == nil {
		return nil
	}
	return p.closer()
}
