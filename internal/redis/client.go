package redisclient

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Options configures the connection used for slot locks. Zero values fall
// back to the defaults below.
type Options struct {
	Addr     string
	Username string
	Password string
	DB       int
	PoolSize int
	// Timeout bounds each read and write. Lock commands are single round
	// trips, so a slow server should fail the booking rather than stall it.
	Timeout time.Duration
}

const (
	defaultPoolSize = 10
	defaultTimeout  = 2 * time.Second
)

func (o Options) redisOptions() *redis.Options {
	pool := o.PoolSize
	if pool <= 0 {
		pool = defaultPoolSize
	}
	timeout := o.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &redis.Options{
		Addr:         o.Addr,
		Username:     o.Username,
		Password:     o.Password,
		DB:           o.DB,
		DialTimeout:  2 * timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
		PoolSize:     pool,
		MinIdleConns: 1,
	}
}

// NewRedisClient connects and pings before returning, so a misconfigured
// address fails at startup instead of on the first booking.
func NewRedisClient(ctx context.Context, o Options) (*redis.Client, error) {
	opts := o.redisOptions()
	rdb := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, opts.DialTimeout+opts.ReadTimeout)
	defer cancel()

	if err := rdb.Ping(pingCtx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("ping redis at %s: %w", o.Addr, err)
	}

	return rdb, nil
}
