// Package service implements the CareForge features as dispatch handlers on
// top of the ports.
package service

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/Strob0t/CareForge/internal/port/broadcast"
	"github.com/Strob0t/CareForge/internal/port/messagequeue"
)

// Events publishes domain events to the queue and to live WebSocket
// clients. Both sinks are optional. Publishing is best effort: the mutation
// has already been committed, so a failed publish is logged, not returned.
type Events struct {
	queue messagequeue.Queue
	hub   broadcast.Broadcaster
	log   *slog.Logger
}

// NewEvents creates an Events publisher. queue and hub may be nil.
func NewEvents(queue messagequeue.Queue, hub broadcast.Broadcaster, log *slog.Logger) *Events {
	return &Events{queue: queue, hub: hub, log: log}
}

func (e *Events) publish(ctx context.Context, subject string, payload any) {
	if e == nil {
		return
	}
	if e.queue != nil {
		data, err := json.Marshal(payload)
		if err != nil {
			e.log.ErrorContext(ctx, "marshal event", "subject", subject, "error", err)
		} else if err := e.queue.Publish(ctx, subject, data); err != nil {
			e.log.WarnContext(ctx, "publish event", "subject", subject, "error", err)
		}
	}
	if e.hub != nil {
		e.hub.BroadcastEvent(ctx, subject, payload)
	}
}
