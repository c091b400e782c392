package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"workhub/server/chat/domain"
	"workhub/server/common/infra/cache"
	commonlog "workhub/server/common/log"
)

// RedisRelay mirrors committed events between instances sharing one Redis.
// As a publisher it broadcasts every event; Run applies events that other
// instances broadcast.
type RedisRelay struct {
	client *redis.Client
	topic  string
}

func NewRedisRelay(client *redis.Client) *RedisRelay {
	return &RedisRelay{client: client, topic: cache.BroadcastTopic}
}

func (r *RedisRelay) Publish(ctx context.Context, event domain.Event) error {
	b, err := json.Marshal(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, r.topic, b).Err()
}

// Run consumes the broadcast topic until ctx is done.
func (r *RedisRelay) Run(ctx context.Context, chat *ChatService) {
	pubsub := r.client.Subscribe(ctx, r.topic)
	defer pubsub.Close()

	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			commonlog.Warnf("event=chat_relay action=receive status=failed error=%v", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		event, err := DecodeEvent([]byte(msg.Payload))
		if err != nil {
			commonlog.Warnf("event=chat_relay action=decode status=failed error=%v", err)
			continue
		}
		if err := chat.ApplyRemote(event); err != nil {
			commonlog.Warnf("event=chat_relay action=apply status=failed type=%s origin=%s error=%v", event.Type, event.Origin, err)
		}
	}
}

type wireEvent struct {
	Origin    string          `json:"origin"`
	Type      string          `json:"type"`
	ChannelID string          `json:"channel_id"`
	UserID    string          `json:"user_id"`
	Payload   json.RawMessage `json:"payload"`
	At        time.Time       `json:"at"`
}

// DecodeEvent parses a JSON event and decodes its payload into the domain
// type that matches the event type.
func DecodeEvent(raw []byte) (domain.Event, error) {
	var w wireEvent
	if err := json.Unmarshal(raw, &w); err != nil {
		return domain.Event{}, err
	}
	event := domain.Event{Origin: w.Origin, Type: w.Type, ChannelID: w.ChannelID, UserID: w.UserID, At: w.At}

	var err error
	switch w.Type {
	case domain.EventMessageCreated:
		event.Payload, err = decodePayload[domain.Message](w.Payload)
	case domain.EventReactionToggled:
		event.Payload, err = decodePayload[domain.ReactionPayload](w.Payload)
	case domain.EventUserStatus:
		event.Payload, err = decodePayload[domain.StatusPayload](w.Payload)
	case domain.EventChannelCreated:
		event.Payload, err = decodePayload[domain.Channel](w.Payload)
	case domain.EventUserUpdated:
		event.Payload, err = decodePayload[domain.User](w.Payload)
	case domain.EventChannelRead:
	default:
		return domain.Event{}, fmt.Errorf("event type %q: %w", w.Type, domain.ErrInvalidInput)
	}
	if err != nil {
		return domain.Event{}, fmt.Errorf("decode %s payload: %w", w.Type, err)
	}
	return event, nil
}

func decodePayload[T any](raw json.RawMessage) (T, error) {
	var out T
	if len(raw) == 0 {
		return out, domain.ErrInvalidInput
	}
	err := json.Unmarshal(raw, &out)
	return out, err
}
