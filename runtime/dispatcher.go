package runtime

import (
	"bandmate/contract"
	"bandmate/domain"
	"context"
	"log/slog"
	"time"
)

// ParticipantResolver yields the current membership of a conversation.
type ParticipantResolver interface {
	Participants(conversationID string) ([]string, error)
}

// Dispatcher pushes one persisted message to every live session of the
// conversation's other participants. Delivery is best-effort: a failure on
// one session is logged and never aborts delivery to the rest, and nothing
// is retried. Recipients that were offline catch up by re-reading the
// thread.
type Dispatcher struct {
	log           *slog.Logger
	registry      contract.IRegistry
	conversations ParticipantResolver
	timeout       time.Duration
}

func NewDispatcher(log *slog.Logger, registry contract.IRegistry,
	conversations ParticipantResolver, timeout time.Duration) *Dispatcher {
	return &Dispatcher{
		log:           log,
		registry:      registry,
		conversations: conversations,
		timeout:       timeout,
	}
}

// Broadcast fans the message out to participants(conversation) minus the
// sender. The receiver hint on the message plays no part here.
func (d *Dispatcher) Broadcast(ctx context.Context, msg domain.Message) {
	participants, err := d.conversations.Participants(msg.ConversationID)
	if err != nil {
		d.log.Warn("Audience lookup failed, message stays persisted only",
			"conversation", msg.ConversationID, "message", msg.ID, "error", err)
		return
	}

	for _, userID := range participants {
		if userID == msg.SenderID {
			continue
		}
		for _, sink := range d.registry.SessionsFor(userID) {
			d.push(ctx, sink, userID, msg)
		}
	}
}

func (d *Dispatcher) push(ctx context.Context, sink contract.MessageSink, userID string, msg domain.Message) {
	pushCtx := ctx
	if d.timeout > 0 {
		var cancel context.CancelFunc
		pushCtx, cancel = context.WithTimeout(ctx, d.timeout)
		defer cancel()
	}
	if err := sink.Deliver(pushCtx, msg); err != nil {
		d.log.Warn("Live delivery failed, recipient will catch up from history",
			"user", userID, "conversation", msg.ConversationID, "message", msg.ID, "error", err)
	}
}
