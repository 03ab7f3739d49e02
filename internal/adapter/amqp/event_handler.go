package amqp

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

// EventHandler is the subscriber-side projector. It decodes broadcast
// envelopes and tracks the last version applied per entity so that late or
// replayed deliveries after a reconnect are discarded instead of rolling a
// client's view backwards.
type EventHandler struct {
	logger logger.Logger

	mu       sync.Mutex
	versions map[string]int64
}

func NewEventHandler(lgr logger.Logger) *EventHandler {
	return &EventHandler{
		logger:   lgr,
		versions: make(map[string]int64),
	}
}

// Handle implements interfaces.EventHandler.
func (h *EventHandler) Handle(ctx context.Context, body []byte) error {
	var env interfaces.Envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("failed to decode event envelope: %w", err)
	}

	if env.EntityID != "" && !h.advance(env.EntityType, env.EntityID, env.Version) {
		h.logger.Debug("event_discarded", "Dropped stale event", "", map[string]interface{}{
			"event":       env.Event,
			"entity_type": env.EntityType,
			"entity_id":   env.EntityID,
			"version":     env.Version,
		})
		return nil
	}

	h.logger.Info("event_applied", fmt.Sprintf("Applied %s", env.Event), "", map[string]interface{}{
		"event":       env.Event,
		"branch_id":   env.BranchID,
		"entity_type": env.EntityType,
		"entity_id":   env.EntityID,
		"version":     env.Version,
	})
	return nil
}

// advance records the version if it is newer than anything seen for the
// entity. Equal versions are also dropped: the broker may redeliver.
func (h *EventHandler) advance(entityType, entityID string, version int64) bool {
	key := entityType + ":" + entityID

	h.mu.Lock()
	defer h.mu.Unlock()

	if last, ok := h.versions[key]; ok && version <= last {
		return false
	}
	h.versions[key] = version
	return true
}
