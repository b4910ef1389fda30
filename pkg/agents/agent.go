// Package agents implements the roles that collaborate over the message bus:
// the maestro orchestrator and the four specialist workers. Agents share one
// contract: block on the mailbox, process each message, and convert every
// failure into an error message back to the sender. The loop itself never
// dies on a bad message.
package agents

import (
	"context"
	"fmt"

	"github.com/inkharmony/inkharmony/pkg/bus"
	"github.com/inkharmony/inkharmony/pkg/domain"
	"github.com/inkharmony/inkharmony/pkg/logger"
)

// Handler processes one inbound message for a role. Returning an error makes
// the runner emit an error message to the sender, threaded to the failed
// message; the loop then continues with the next message.
type Handler interface {
	Role() domain.Role
	Handle(ctx context.Context, msg *bus.Message) error
}

// Run drives a handler's receive loop until the context is cancelled or the
// bus closes. Panics inside the handler are contained the same way handler
// errors are.
func Run(ctx context.Context, b *bus.MessageBus, h Handler) {
	role := h.Role()
	b.Register(role)
	logger.InfoCF("agents", "agent started", map[string]interface{}{"role": role.String()})

	for {
		msgs, ok := b.Wait(ctx, role)
		if !ok {
			logger.InfoCF("agents", "agent stopped", map[string]interface{}{"role": role.String()})
			return
		}
		for _, msg := range msgs {
			logger.DebugCF("agents", "message received", map[string]interface{}{
				"role":       role.String(),
				"message_id": msg.ID,
				"kind":       msg.Kind.String(),
			})
			dispatch(ctx, b, h, msg)
		}
	}
}

func dispatch(ctx context.Context, b *bus.MessageBus, h Handler, msg *bus.Message) {
	defer func() {
		if r := recover(); r != nil {
			reportFailure(b, h.Role(), msg, fmt.Errorf("panic: %v", r))
		}
	}()

	if err := h.Handle(ctx, msg); err != nil {
		reportFailure(b, h.Role(), msg, err)
	}
}

func reportFailure(b *bus.MessageBus, role domain.Role, msg *bus.Message, err error) {
	logger.ErrorCF("agents", "message processing failed", map[string]interface{}{
		"role":       role.String(),
		"message_id": msg.ID,
		"kind":       msg.Kind.String(),
		"error":      err.Error(),
	})
	b.SendError(role, msg.Sender, fmt.Sprintf("error processing message: %v", err), msg.ID, nil)
}
