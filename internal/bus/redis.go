package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"dmchat/internal/chat"
)

const channelPrefix = "dmchat:"

// Redis fans events out across server instances: Publish pushes the event
// onto the topic's redis channel, Run pumps everything arriving on those
// channels into a local Memory broker that the instance's subscribers hang
// off. An instance therefore also hears its own publishes, via redis, in
// publish order.
type Redis struct {
	client *redis.Client
	local  *Memory
	log    *slog.Logger
}

func NewRedis(client *redis.Client, log *slog.Logger) *Redis {
	return &Redis{client: client, local: NewMemory(log), log: log}
}

func (b *Redis) Publish(ctx context.Context, evt chat.Event) {
	payload, err := marshalEvent(evt)
	if err != nil {
		b.log.Error("marshal event", "topic", evt.Topic(), "err", err)
		return
	}
	if err := b.client.Publish(ctx, channelPrefix+string(evt.Topic()), payload).Err(); err != nil {
		b.log.Error("redis publish", "topic", evt.Topic(), "err", err)
	}
}

func (b *Redis) Subscribe(topic chat.Topic) *Subscription {
	return b.local.Subscribe(topic)
}

// Run blocks pumping redis messages into local subscribers until ctx ends.
func (b *Redis) Run(ctx context.Context) error {
	channels := make([]string, len(chat.Topics))
	for i, t := range chat.Topics {
		channels[i] = channelPrefix + string(t)
	}
	pubsub := b.client.Subscribe(ctx, channels...)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			evt, err := unmarshalEvent(msg.Channel, []byte(msg.Payload))
			if err != nil {
				b.log.Error("decode event", "channel", msg.Channel, "err", err)
				continue
			}
			b.local.Publish(ctx, evt)
		}
	}
}

func marshalEvent(evt chat.Event) ([]byte, error) {
	return json.Marshal(evt)
}

func unmarshalEvent(channel string, payload []byte) (chat.Event, error) {
	topic := chat.Topic(strings.TrimPrefix(channel, channelPrefix))
	switch topic {
	case chat.TopicMessageAdded:
		var evt chat.MessageAdded
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case chat.TopicChatAdded:
		var evt chat.ChatAdded
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	case chat.TopicChatRemoved:
		var evt chat.ChatRemoved
		if err := json.Unmarshal(payload, &evt); err != nil {
			return nil, err
		}
		return evt, nil
	}
	return nil, fmt.Errorf("unknown topic %q", topic)
}
