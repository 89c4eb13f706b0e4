package registry

import (
	"context"
	"encoding/json"

	"github.com/go-redis/redis/v8"

	"github.com/ltyfantasy/goapn/pkg/logger"
)

// SuspendBroadcaster is an additive, optional hook for propagating
// suspend/resume decisions beyond this process. The spec's suspend
// gates are process-local state (spec.md §4.4/§4.5); a broadcaster does
// not change that — it only lets a multi-instance deployment keep its
// instances' local gates in sync. localBroadcaster is the default and
// does nothing.
type SuspendBroadcaster interface {
	PublishSuspend(identifiers []string)
	PublishResume(identifiers []string)
}

type localBroadcaster struct{}

func (localBroadcaster) PublishSuspend([]string) {}
func (localBroadcaster) PublishResume([]string)  {}

type suspendMessage struct {
	Action      string   `json:"action"` // "suspend" or "resume"
	Identifiers []string `json:"identifiers"`
}

// RedisSuspendBroadcaster publishes suspend/resume decisions on a Redis
// pub/sub channel so peer instances can call the same Suspend/Resume on
// their own Registry. It does not subscribe itself — wiring a received
// message back into Registry.Suspend/Resume is the host application's
// responsibility, since only it can route the message to the right
// Registry instance when more than one exists.
type RedisSuspendBroadcaster struct {
	client  *redis.Client
	channel string
	log     logger.Logger
}

// NewRedisSuspendBroadcaster builds a broadcaster publishing on channel
// via client.
func NewRedisSuspendBroadcaster(client *redis.Client, channel string, log logger.Logger) *RedisSuspendBroadcaster {
	if log == nil {
		log = logger.NewDefaultLogger()
	}
	return &RedisSuspendBroadcaster{client: client, channel: channel, log: log}
}

func (b *RedisSuspendBroadcaster) publish(action string, identifiers []string) {
	msg, err := json.Marshal(suspendMessage{Action: action, Identifiers: identifiers})
	if err != nil {
		b.log.Warn("registry: failed to encode suspend broadcast", "error", err)
		return
	}
	if err := b.client.Publish(context.Background(), b.channel, msg).Err(); err != nil {
		b.log.Warn("registry: failed to publish suspend broadcast", "error", err)
	}
}

func (b *RedisSuspendBroadcaster) PublishSuspend(identifiers []string) { b.publish("suspend", identifiers) }
func (b *RedisSuspendBroadcaster) PublishResume(identifiers []string)  { b.publish("resume", identifiers) }

// Subscribe listens on the broadcaster's channel and invokes onSuspend
// or onResume as messages arrive, until ctx is cancelled. A host
// application wires onSuspend/onResume to its own Registry's
// Suspend/Resume methods.
func (b *RedisSuspendBroadcaster) Subscribe(ctx context.Context, onSuspend, onResume func(identifiers []string)) error {
	sub := b.client.Subscribe(ctx, b.channel)
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var m suspendMessage
			if err := json.Unmarshal([]byte(msg.Payload), &m); err != nil {
				b.log.Warn("registry: failed to decode suspend broadcast", "error", err)
				continue
			}
			switch m.Action {
			case "suspend":
				onSuspend(m.Identifiers)
			case "resume":
				onResume(m.Identifiers)
			}
		}
	}
}
