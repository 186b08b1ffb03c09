// ABOUTME: Message router implementing the persist-then-route pipeline
// ABOUTME: Fans a persisted message out to every live connection of its recipient

package router

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/joshdirkx/chat-rs/internal/registry"
	"github.com/joshdirkx/chat-rs/internal/store"
	"github.com/joshdirkx/chat-rs/internal/wire"
)

// markTimeout bounds the status update that follows a delivery attempt.
const markTimeout = 5 * time.Second

// Router connects the durable message log to the live connection registry.
// Every message, whether it arrived over RPC or a stream, is persisted first
// and routed after; delivery is a side effect of an already-durable record.
type Router struct {
	store    store.Store
	registry *registry.Registry
	logger   *slog.Logger
}

// New creates a Router. Pass nil logger for default.
func New(s store.Store, reg *registry.Registry, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:    s,
		registry: reg,
		logger:   logger.With("component", "router"),
	}
}

// Submit persists a message and kicks off routing. It returns as soon as the
// message is durable; delivery runs on a detached goroutine and is
// at-least-attempted, never confirmed to the submitter.
func (r *Router) Submit(ctx context.Context, senderID, recipientID int64, contents string) (*store.Message, error) {
	msg, err := r.store.CreateMessage(ctx, senderID, recipientID, contents)
	if err != nil {
		return nil, fmt.Errorf("persisting message: %w", err)
	}

	go r.Route(context.WithoutCancel(ctx), msg)

	return msg, nil
}

// Route attempts delivery of an already-persisted message. With no live
// connection the message stays pending - only an actual failed push marks it
// undeliverable. Push failures on individual connections are independent:
// one slow or dead connection never blocks delivery to its siblings.
func (r *Router) Route(ctx context.Context, msg *store.Message) {
	conns := r.registry.ConnectionsFor(msg.RecipientID)
	if len(conns) == 0 {
		r.logger.Debug("recipient offline, message stays pending",
			"message_id", msg.ID,
			"recipient_id", msg.RecipientID,
		)
		return
	}

	payload, err := json.Marshal(wire.Delivery{
		Type:            wire.TypeMessage,
		MessageID:       msg.ID,
		SenderID:        msg.SenderID,
		RecipientID:     msg.RecipientID,
		MessageContents: msg.Contents,
		CreatedAt:       msg.CreatedAt,
	})
	if err != nil {
		r.logger.Error("encoding delivery frame", "message_id", msg.ID, "error", err)
		return
	}

	delivered := 0
	for _, c := range conns {
		if err := c.Deliver(payload); err != nil {
			r.logger.Warn("delivery push failed",
				"message_id", msg.ID,
				"conn_id", c.ID(),
				"error", err,
			)
			continue
		}
		delivered++
	}

	status := store.StatusDelivered
	if delivered == 0 {
		status = store.StatusUndeliverable
	}

	markCtx, cancel := context.WithTimeout(ctx, markTimeout)
	defer cancel()
	if err := r.store.MarkDelivered(markCtx, msg.ID, status); err != nil {
		r.logger.Error("updating delivery status",
			"message_id", msg.ID,
			"status", status,
			"error", err,
		)
		return
	}

	r.logger.Debug("message routed",
		"message_id", msg.ID,
		"recipient_id", msg.RecipientID,
		"connections", len(conns),
		"delivered", delivered,
		"status", status,
	)
}
