package hub

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PubSub carries frames between server instances.
type PubSub interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, func() error, error)
}

type relayEnvelope struct {
	Room  string          `json:"room"`
	Event string          `json:"event"`
	Frame json.RawMessage `json:"frame"`
}

// Bridge fans emits out through a shared channel so that sessions connected
// to any instance receive them. Every instance, including the publisher,
// delivers relayed frames to its local hub.
type Bridge struct {
	hub     *Hub
	ps      PubSub
	channel string
	logger  zerolog.Logger
}

// NewBridge creates a bridge relaying over channel.
func NewBridge(h *Hub, ps PubSub, channel string, logger zerolog.Logger) *Bridge {
	return &Bridge{
		hub:     h,
		ps:      ps,
		channel: channel,
		logger:  logger.With().Str("component", "relay").Str("channel", channel).Logger(),
	}
}

// Emit publishes the frame for room. It has the same signature as Hub.Emit.
// When the publish fails the frame still reaches local members and the
// error is returned, since other instances missed it.
func (b *Bridge) Emit(ctx context.Context, room, event string, payload any) error {
	if b.hub.Closed() {
		return ErrHubClosed
	}
	frame, err := encodeFrame(room, event, payload)
	if err != nil {
		return err
	}
	env, err := json.Marshal(relayEnvelope{Room: room, Event: event, Frame: frame})
	if err != nil {
		return err
	}
	if err := b.ps.Publish(ctx, b.channel, env); err != nil {
		b.hub.deliver(room, event, frame)
		return fmt.Errorf("relay publish: %w", err)
	}
	return nil
}

// Run delivers relayed frames until ctx is cancelled. A dropped subscription
// is re-established after a short pause.
func (b *Bridge) Run(ctx context.Context) error {
	for {
		err := b.consume(ctx)
		if ctx.Err() != nil {
			return nil
		}
		b.logger.Warn().Err(err).Msg("relay subscription ended, resubscribing")

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func (b *Bridge) consume(ctx context.Context) error {
	frames, closeFn, err := b.ps.Subscribe(ctx, b.channel)
	if err != nil {
		return err
	}
	defer closeFn()
	b.logger.Info().Msg("relay subscribed")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case raw, ok := <-frames:
			if !ok {
				return nil
			}
			var env relayEnvelope
			if err := json.Unmarshal(raw, &env); err != nil || env.Room == "" {
				b.logger.Warn().Err(err).Msg("discarding malformed relay frame")
				continue
			}
			b.hub.deliver(env.Room, env.Event, env.Frame)
		}
	}
}
