package session

import (
	"context"

	"github.com/justapithecus/heliwatch/adapter"
)

// notify enqueues a lifecycle event for the notifier. It never blocks:
// when the queue is full the event is dropped and counted.
func (c *Controller) notify(eventType, message string) {
	if c.events == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	ev := &adapter.SessionEvent{
		EventType:   eventType,
		SessionID:   c.sessionID,
		Channel:     c.channel.String(),
		State:       c.state.String(),
		ServerID:    c.serverID,
		Message:     message,
		PacketCount: c.packets,
		Marker:      adapter.FormatTime(c.marker),
		Timestamp:   adapter.FormatTime(c.now()),
	}
	select {
	case c.events <- ev:
	default:
		c.collector.IncAdapterPublishFailure()
		c.logger.Warn("notification queue full, event dropped", map[string]any{
			"event_type": eventType,
		})
	}
}

func (c *Controller) publishLoop() {
	defer close(c.notifyDone)
	for ev := range c.events {
		ctx, cancel := context.WithTimeout(context.Background(), c.notifyTimeout)
		err := c.notifier.Publish(ctx, ev)
		cancel()
		if err != nil {
			c.collector.IncAdapterPublishFailure()
			c.logger.Warn("notification failed", map[string]any{
				"event_type": ev.EventType,
				"error":      err.Error(),
			})
			continue
		}
		c.collector.IncAdapterPublishSuccess()
	}
}
