package rabbitmq

import (
	"context"
	"fmt"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	amqp "github.com/rabbitmq/amqp091-go"
)

const reconnectDelay = 3 * time.Second

// consumer subscribes a single client (a role station screen or one user's
// device) to its slice of the event stream. Queues are exclusive and
// auto-deleted: a subscriber that disconnects re-syncs through the REST
// read endpoints, not through queued backlog.
type consumer struct {
	conn   Connection
	logger logger.Logger
}

func NewConsumer(conn Connection, lgr logger.Logger) interfaces.EventConsumer {
	return &consumer{conn: conn, logger: lgr}
}

func (c *consumer) ConsumeRole(ctx context.Context, branchID string, role domain.RoleTarget, handler interfaces.EventHandler) error {
	keys := []string{
		fmt.Sprintf("branch.%s.role.all.*", branchID),
	}
	if role != domain.TargetAll {
		keys = append(keys, fmt.Sprintf("branch.%s.role.%s.*", branchID, role))
	}
	return c.consume(ctx, keys, handler)
}

func (c *consumer) ConsumeUser(ctx context.Context, branchID, userID string, handler interfaces.EventHandler) error {
	keys := []string{
		fmt.Sprintf("branch.%s.user.%s.*", branchID, userID),
	}
	return c.consume(ctx, keys, handler)
}

func (c *consumer) consume(ctx context.Context, bindingKeys []string, handler interfaces.EventHandler) error {
	for {
		err := c.consumeOnce(ctx, bindingKeys, handler)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		c.logger.Error("stream_interrupted", "Event stream interrupted, reconnecting", "", map[string]interface{}{
			"retry_in_ms": reconnectDelay.Milliseconds(),
		}, err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(reconnectDelay):
		}
	}
}

func (c *consumer) consumeOnce(ctx context.Context, bindingKeys []string, handler interfaces.EventHandler) error {
	ch, err := c.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	// Server-named, exclusive, auto-delete: one queue per live subscriber.
	q, err := ch.QueueDeclare("", false, true, true, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue: %w", err)
	}

	for _, key := range bindingKeys {
		if err := ch.QueueBind(q.Name, key, EventsExchange, false, nil); err != nil {
			return fmt.Errorf("failed to bind queue to %s: %w", key, err)
		}
	}

	deliveries, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to start consuming: %w", err)
	}

	closed := ch.NotifyClose()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-closed:
			if err != nil {
				return fmt.Errorf("channel closed: %w", err)
			}
			return fmt.Errorf("channel closed")
		case d, ok := <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel closed")
			}
			c.handle(ctx, d, handler)
		}
	}
}

func (c *consumer) handle(ctx context.Context, d amqp.Delivery, handler interfaces.EventHandler) {
	if err := handler(ctx, d.Body); err != nil {
		c.logger.Error("event_handler_failed", "Failed to apply event", "", map[string]interface{}{
			"routing_key": d.RoutingKey,
		}, err)
	}
}
