package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusDeliversInSubscriptionOrder(t *testing.T) {
	bus := NewBus(nil)

	var order []string
	bus.Subscribe(SessionAdded, func(event string, _ any) { order = append(order, "first") })
	bus.Subscribe(SessionAdded, func(event string, _ any) { order = append(order, "second") })
	bus.SubscribeAll(func(event string, _ any) { order = append(order, "all:"+event) })

	bus.Publish(SessionAdded, nil)
	require.Equal(t, []string{"first", "second", "all:" + SessionAdded}, order)
}

func TestBusScopesSubscriptions(t *testing.T) {
	bus := NewBus(nil)

	var got []string
	bus.Subscribe(SessionRemoved, func(event string, _ any) { got = append(got, event) })

	bus.Publish(SessionAdded, nil)
	assert.Empty(t, got)

	bus.Publish(SessionRemoved, 42)
	assert.Equal(t, []string{SessionRemoved}, got)
}

func TestBusCarriesPayload(t *testing.T) {
	bus := NewBus(nil)

	var payload any
	bus.Subscribe(StateSaved, func(_ string, p any) { payload = p })
	bus.Publish(StateSaved, "autumn-2026")
	assert.Equal(t, "autumn-2026", payload)
}

func TestBusIgnoresNilHandlers(t *testing.T) {
	bus := NewBus(nil)
	bus.Subscribe(SessionAdded, nil)
	bus.SubscribeAll(nil)
	assert.NotPanics(t, func() { bus.Publish(SessionAdded, nil) })
}
