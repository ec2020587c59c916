// ABOUTME: Redis pub/sub backplane shared between relay instances
// ABOUTME: Publishes local sync-actions and delivers remote ones to local members
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const channelPrefix = "syncwatch:room:"

// RoomChannel is the pub/sub channel carrying a room's frames
func RoomChannel(roomID string) string {
	return channelPrefix + roomID
}

// busMessage is what travels over Redis
type busMessage struct {
	Origin string          `json:"origin"`
	Frame  json.RawMessage `json:"frame"`
}

type backplane struct {
	rdb      *redis.Client
	pubsub   *redis.PubSub
	instance string
	logger   zerolog.Logger
	done     chan struct{}
}

// startBackplane subscribes to every room channel. deliver is called for
// frames published by other instances.
func startBackplane(ctx context.Context, rdb *redis.Client, instance string, logger zerolog.Logger, deliver func(roomID string, frame []byte)) (*backplane, error) {
	pubsub := rdb.PSubscribe(ctx, channelPrefix+"*")
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("subscribe to room channels: %w", err)
	}

	b := &backplane{
		rdb:      rdb,
		pubsub:   pubsub,
		instance: instance,
		logger:   logger.With().Str("component", "backplane").Logger(),
		done:     make(chan struct{}),
	}
	go b.receive(deliver)
	return b, nil
}

func (b *backplane) publish(ctx context.Context, roomID string, frame []byte) {
	payload, err := json.Marshal(busMessage{Origin: b.instance, Frame: frame})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to encode bus message")
		return
	}
	if err := b.rdb.Publish(ctx, RoomChannel(roomID), payload).Err(); err != nil {
		b.logger.Warn().Err(err).Str("room", roomID).Msg("publish failed")
	}
}

func (b *backplane) receive(deliver func(roomID string, frame []byte)) {
	defer close(b.done)

	for msg := range b.pubsub.Channel() {
		var m busMessage
		if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
			b.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("dropping unreadable bus message")
			continue
		}
		if m.Origin == b.instance {
			continue
		}
		deliver(strings.TrimPrefix(msg.Channel, channelPrefix), m.Frame)
	}
}

func (b *backplane) close() error {
	err := b.pubsub.Close()
	<-b.done
	return err
}
