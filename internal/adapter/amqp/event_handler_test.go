package amqp

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/BekzhanKaspakov/mesa/internal/adapter/logger"
	"github.com/BekzhanKaspakov/mesa/internal/interfaces"
)

func envelope(t *testing.T, entityID string, version int64) []byte {
	t.Helper()
	body, err := json.Marshal(interfaces.Envelope{
		Event:      interfaces.EventOrderUpdated,
		BranchID:   "branch-1",
		EntityType: "order",
		EntityID:   entityID,
		Version:    version,
		OccurredAt: time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return body
}

func TestHandleDiscardsStaleVersions(t *testing.T) {
	h := NewEventHandler(logger.New("test"))
	ctx := context.Background()

	if err := h.Handle(ctx, envelope(t, "ord-1", 3)); err != nil {
		t.Fatalf("version 3: %v", err)
	}
	if !h.advance("order", "ord-1", 4) {
		t.Error("version 4 should advance past 3")
	}
	if h.advance("order", "ord-1", 4) {
		t.Error("replayed version 4 should be discarded")
	}
	if h.advance("order", "ord-1", 2) {
		t.Error("stale version 2 should be discarded")
	}
}

func TestHandleTracksEntitiesIndependently(t *testing.T) {
	h := NewEventHandler(logger.New("test"))

	if !h.advance("order", "ord-1", 5) {
		t.Error("first event for ord-1 rejected")
	}
	if !h.advance("order", "ord-2", 1) {
		t.Error("ord-2 should not be affected by ord-1's version")
	}
	if !h.advance("table", "ord-1", 1) {
		t.Error("a table sharing an id with an order must track separately")
	}
}

func TestHandleRejectsMalformedPayload(t *testing.T) {
	h := NewEventHandler(logger.New("test"))
	if err := h.Handle(context.Background(), []byte("{not json")); err == nil {
		t.Error("expected error for malformed payload")
	}
}
