package ingest

import (
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floorlink/floorlink/hub"
	"github.com/floorlink/floorlink/message"
)

func newBridgeFixture(t *testing.T) (*hub.Hub, *Bridge) {
	t.Helper()
	h := hub.New(hub.Options{QueueCapacity: 16, WriteTimeout: time.Second})
	d := hub.NewDispatcher(h)
	b := hub.NewBroadcaster(h, d)
	return h, New(nil, b, Options{SubjectPrefix: "floor"})
}

func TestDecodeForwardsValidPayload(t *testing.T) {
	h, bridge := newBridgeFixture(t)

	conn, err := h.Attach("c1", "user-1", nil)
	require.NoError(t, err)
	h.Index().Subscribe(hub.DimLine, "L1", conn.ID)

	handler := decode(bridge, func(p message.ProductionUpdate) {
		// Exercised through the broadcaster, same as production wiring.
		d := hub.NewDispatcher(h)
		hub.NewBroadcaster(h, d).BroadcastProductionUpdate(p)
	})
	handler(&nats.Msg{
		Subject: "floor.production.update",
		Data:    []byte(`{"line_id":"L1","units_ok":12}`),
	})

	assert.Equal(t, 1, conn.QueueDepth(), "decoded event reaches the subscriber")
}

func TestDecodeDropsMalformedPayload(t *testing.T) {
	_, bridge := newBridgeFixture(t)

	called := false
	handler := decode(bridge, func(message.ProductionUpdate) { called = true })
	handler(&nats.Msg{Subject: "floor.production.update", Data: []byte(`{broken`)})

	assert.False(t, called, "malformed payloads must not reach the broadcaster")
}

func TestDecodeToleratesUnknownFields(t *testing.T) {
	_, bridge := newBridgeFixture(t)

	var got message.AndonEvent
	handler := decode(bridge, func(p message.AndonEvent) { got = p })
	handler(&nats.Msg{
		Subject: "floor.andon.event",
		Data:    []byte(`{"line_id":"L2","severity":"high","future_field":true}`),
	})

	assert.Equal(t, "L2", got.LineID)
	assert.Equal(t, message.SeverityHigh, got.Severity)
}

func TestNewDefaultsPrefix(t *testing.T) {
	_, b := newBridgeFixture(t)
	assert.Equal(t, "floor", b.prefix)

	h := hub.New(hub.Options{QueueCapacity: 4, WriteTimeout: time.Second})
	d := hub.NewDispatcher(h)
	b2 := New(nil, hub.NewBroadcaster(h, d), Options{})
	assert.Equal(t, "floor", b2.prefix)
}
