package redis

import (
	"context"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const heartbeatKeyPrefix = "heartbeat:"

type Client struct {
	Context     context.Context
	RedisClient *redis.Client
}

func NewClient(ctx context.Context, dsn string) (*Client, error) {
	opts, err := redis.ParseURL(dsn)
	if err != nil {
		return nil, err
	}

	redisClient := redis.NewClient(opts)
	return &Client{
		Context:     ctx,
		RedisClient: redisClient,
	}, nil
}

// MarkAlive stores the time of the latest heartbeat of source; the key expires after ttl.
func (c *Client) MarkAlive(source string, ttl time.Duration) (err error) {
	err = c.RedisClient.Set(c.Context, heartbeatKey(source), time.Now().UTC().Unix(), ttl).Err()
	return err
}

func (c *Client) LastSeen(source string) (lastSeen time.Time, found bool, err error) {
	stamp, err := c.RedisClient.Get(c.Context, heartbeatKey(source)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return time.Time{}, false, nil
		}

		return time.Time{}, false, err
	}

	return time.Unix(stamp, 0).UTC(), true, nil
}

func (c *Client) Close() (err error) {
	err = c.RedisClient.Close()
	return err
}

func (c *Client) Ping(ctx context.Context) (err error) {
	err = c.RedisClient.Ping(ctx).Err()
	return err
}

func heartbeatKey(source string) string {
	return heartbeatKeyPrefix + source
}
