package workers

import (
	"bandmate/domain"
	"context"
	"log/slog"
)

// MessageBroadcaster is what the fanout worker drives for each dequeued
// message; in production it is the runtime.Dispatcher.
type MessageBroadcaster interface {
	Broadcast(ctx context.Context, msg domain.Message)
}

// FanoutWorker decouples the send pipeline from live delivery: appends
// enqueue and return, while this worker drains the queue and pushes to
// sessions. The queue is bounded and Enqueue never blocks; when the queue is
// full the message is dropped from live delivery only, it is already
// persisted.
type FanoutWorker struct {
	log        *slog.Logger
	dispatcher MessageBroadcaster
	queue      chan domain.Message
}

func NewFanoutWorker(log *slog.Logger, dispatcher MessageBroadcaster, bufferSize int) *FanoutWorker {
	return &FanoutWorker{
		log:        log,
		dispatcher: dispatcher,
		queue:      make(chan domain.Message, bufferSize),
	}
}

// Enqueue hands a persisted message to the worker. Fire-and-forget: no
// acknowledgment, no back-pressure to the sender.
func (w *FanoutWorker) Enqueue(msg domain.Message) {
	select {
	case w.queue <- msg:
	default:
		w.log.Warn("Fanout queue full, dropping live delivery",
			"conversation", msg.ConversationID, "message", msg.ID)
	}
}

func (w *FanoutWorker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case msg := <-w.queue:
			w.dispatcher.Broadcast(ctx, msg)
		}
	}
}
