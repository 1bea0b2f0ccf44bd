// Package rediscache shares the signed out sessions between every API instance through redis.
package rediscache

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/pkg/errors"

	"github.com/trezcool/pesantren/core/auth"
)

const keyPrefix = "pesantren:revoked:"

var pingTimeout = 5 * time.Second

type Revoker struct {
	client *redis.Client
}

var _ auth.Revoker = (*Revoker)(nil)

// NewRevoker connects to the redis server at url, eg. "redis://localhost:6379/0".
func NewRevoker(url string) (*Revoker, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, errors.Wrap(err, "parsing redis URL")
	}
	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second

	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), pingTimeout)
	defer cancel()
	if err = client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "connecting to redis")
	}
	return &Revoker{client: client}, nil
}

// Revoke denies sid until `until`. The key expires with it.
func (r *Revoker) Revoke(ctx context.Context, sid string, until time.Time) error {
	ttl := time.Until(until)
	if ttl <= 0 {
		return nil
	}
	if err := r.client.Set(ctx, keyPrefix+sid, 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "revoking session")
	}
	return nil
}

func (r *Revoker) IsRevoked(ctx context.Context, sid string) (bool, error) {
	n, err := r.client.Exists(ctx, keyPrefix+sid).Result()
	if err != nil {
		return false, errors.Wrap(err, "checking session")
	}
	return n > 0, nil
}

func (r *Revoker) Close() error {
	return r.client.Close()
}
