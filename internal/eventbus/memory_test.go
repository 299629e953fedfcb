package eventbus

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stocksentry/stocksentry/pkg/types"
)

func TestMemoryBus_PublishSubscribe(t *testing.T) {
	bus := NewMemory(nil)
	defer func() { _ = bus.Close() }()

	ch, cancel := bus.Subscribe("stock.received")
	defer cancel()

	event := types.BusEvent{
		Name:      "stock.received",
		Records:   []types.Record{{ID: "rec-1", Fields: map[string]any{"quantity": 3}}},
		Timestamp: time.Now(),
	}
	require.NoError(t, bus.Publish(context.Background(), event))

	select {
	case got := <-ch:
		assert.Equal(t, "stock.received", got.Name)
		assert.Len(t, got.Records, 1)
	case <-time.After(time.Second):
		t.Fatal("event not delivered")
	}
}

func TestMemoryBus_NameIsolation(t *testing.T) {
	bus := NewMemory(nil)
	defer func() { _ = bus.Close() }()

	ch, cancel := bus.Subscribe("stock.received")
	defer cancel()

	require.NoError(t, bus.Publish(context.Background(), types.BusEvent{Name: "other.event"}))

	select {
	case <-ch:
		t.Fatal("received event for a different name")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestMemoryBus_CancelStopsDelivery(t *testing.T) {
	bus := NewMemory(nil)
	defer func() { _ = bus.Close() }()

	ch, cancel := bus.Subscribe("stock.received")
	cancel()

	require.NoError(t, bus.Publish(context.Background(), types.BusEvent{Name: "stock.received"}))

	_, open := <-ch
	assert.False(t, open, "channel should be closed after cancel")
}
