// Package statusbus implements the Status Bus (C6, spec §4.6): a
// publish/subscribe layer keyed by room (a grievance_id for accessible
// sessions, a client session id for bot sessions), backed by Redis so any
// worker process can reach any client's session regardless of which server
// the subscriber is attached to.
package statusbus

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/go-redis/redis/v8"

	"github.com/grievanceplatform/orchestrator/core"
	"github.com/grievanceplatform/orchestrator/telemetry"
)

// Bus is the Status Bus (C6). It implements core.StatusPublisher so the
// Worker Runtime can hold it (or an HTTP-bridged BridgeClient standing in
// for it) behind that narrow interface.
type Bus struct {
	client *core.RedisClient
	logger core.ComponentAwareLogger
}

// New returns a Bus backed by client, which must be opened against
// core.RedisDBStatusBus.
func New(client *core.RedisClient, logger core.ComponentAwareLogger) *Bus {
	return &Bus{client: client, logger: logger}
}

// Publish sends frame to its room, deriving the room from
// frame.GrievanceID and the channel from frame.Data's "operation" entry,
// defaulting to core.DefaultStatusChannel (spec §4.6's publish(room,
// channel, frame)). Per the routing rule, bot-sourced frames (grievance id
// suffix -B) are silently skipped — the conversational runtime polls task
// status by other means and never subscribes to the bus.
func (b *Bus) Publish(ctx context.Context, frame core.StatusFrame) error {
	if !core.RoutesToBus(frame.GrievanceID) {
		return nil
	}

	operation, _ := frame.Data["operation"].(string)
	channel := core.StatusChannel(operation)
	key := roomChannelKey(frame.GrievanceID, channel)

	payload, err := json.Marshal(frame)
	if err != nil {
		return fmt.Errorf("statusbus: marshal frame: %w", err)
	}

	if err := b.client.Publish(ctx, key, string(payload)); err != nil {
		return fmt.Errorf("statusbus: publish to room %s: %w", frame.GrievanceID, err)
	}

	telemetry.Counter(telemetry.MetricStatusBusPublished, "channel", channel, "source", "redis")

	if b.logger != nil {
		b.logger.Debug("status frame published", map[string]interface{}{
			"operation":    "statusbus_publish",
			"room":         frame.GrievanceID,
			"channel":      channel,
			"frame_status": string(frame.Status),
		})
	}
	return nil
}

// roomChannelKey composes the actual Redis channel name a room/channel pair
// maps to: every specialized channel for a room shares the room's prefix so
// Join's pattern subscription (room + ":*") catches all of them.
func roomChannelKey(room, channel string) string {
	return room + ":" + channel
}

// Subscription is an open join on a room (spec §4.6's join(room, connection)).
type Subscription struct {
	pubsub *redis.PubSub
	room   string
}

// Join subscribes to every channel under room. Callers (pkg/realtime's
// websocket hub, or a test harness) drain Frames until Leave is called.
func (b *Bus) Join(ctx context.Context, room string) *Subscription {
	ps := b.client.PSubscribe(ctx, roomChannelKey(room, "*"))
	return &Subscription{pubsub: ps, room: room}
}

// Leave tears down the subscription (spec §4.6's leave(room, connection)).
func (s *Subscription) Leave() error {
	return s.pubsub.Close()
}

// Frames decodes incoming pub/sub messages into StatusFrames, dropping any
// message that fails to decode (delivery is best-effort and at-least-once
// per spec §4.6; a malformed frame is not worth failing the subscription
// over). The returned channel closes when Leave closes the underlying
// subscription.
func (s *Subscription) Frames() <-chan core.StatusFrame {
	out := make(chan core.StatusFrame)
	go func() {
		defer close(out)
		for msg := range s.pubsub.Channel() {
			var frame core.StatusFrame
			if err := json.Unmarshal([]byte(msg.Payload), &frame); err != nil {
				continue
			}
			out <- frame
		}
	}()
	return out
}
