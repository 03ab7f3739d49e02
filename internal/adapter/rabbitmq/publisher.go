package rabbitmq

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/BekzhanKaspakov/mesa/internal/domain"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"

	amqp "github.com/rabbitmq/amqp091-go"
)

// EventsExchange carries every broadcast. Routing keys:
//
//	branch.<branchID>.role.<target>.<event>   role-scoped
//	branch.<branchID>.user.<userID>.<event>   user-scoped sync
//
// Events are published synchronously from the mutating call path, after the
// store commit, so per-entity delivery order follows commit order.
const EventsExchange = "ops_events"

type publisher struct {
	conn Connection
}

func NewPublisher(conn Connection) interfaces.EventPublisher {
	return &publisher{conn: conn}
}

func (p *publisher) PublishRole(ctx context.Context, target domain.RoleTarget, env interfaces.Envelope) error {
	key := fmt.Sprintf("branch.%s.role.%s.%s", env.BranchID, target, env.Event)
	return p.publish(key, env)
}

func (p *publisher) PublishUser(ctx context.Context, userID string, env interfaces.Envelope) error {
	key := fmt.Sprintf("branch.%s.user.%s.%s", env.BranchID, userID, env.Event)
	return p.publish(key, env)
}

func (p *publisher) publish(routingKey string, env interfaces.Envelope) error {
	ch, err := p.conn.Channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err := ch.ExchangeDeclare(EventsExchange, "topic", true, false, false, false, nil); err != nil {
		return fmt.Errorf("failed to declare exchange: %w", err)
	}

	body, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	err = ch.Publish(EventsExchange, routingKey, false, false, amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		ContentType:  "application/json",
		Body:         body,
	})
	if err != nil {
		return fmt.Errorf("failed to publish event: %w", err)
	}
	return nil
}
