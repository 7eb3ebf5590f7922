package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

type Options struct {
	URL      string
	Addr     string
	Username string
	Password string
	DB       int
}

// NewClient builds a client from a redis:// URL when one is set, otherwise from the
// discrete fields, and verifies the connection.
func NewClient(ctx context.Context, opts Options) (*goredis.Client, error) {
	var redisOpts *goredis.Options
	if opts.URL != "" {
		parsed, err := goredis.ParseURL(opts.URL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		redisOpts = parsed
	} else {
		if opts.Addr == "" {
			return nil, fmt.Errorf("redis addr is required")
		}
		redisOpts = &goredis.Options{
			Addr:     opts.Addr,
			Username: opts.Username,
			Password: opts.Password,
			DB:       opts.DB,
		}
	}

	client := goredis.NewClient(redisOpts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return client, nil
}
