package cache

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})
}

func Ping(ctx context.Context, c *redis.Client) error {
	return c.Ping(ctx).Err()
}

// ChannelTopic is the pub/sub topic carrying realtime events of a chat channel.
func ChannelTopic(channelID string) string {
	return "workhub:channel:" + channelID
}

// UserTopic carries events addressed to every session of one user.
func UserTopic(userID string) string {
	return "workhub:user:" + userID
}

const BroadcastTopic = "workhub:broadcast"
