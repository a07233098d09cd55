package events

import (
	"encoding/json"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_EmitDeliversToSubscribersOfType(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	var got []*Event
	bus.Subscribe(StateChanged, func(e *Event) { got = append(got, e) })
	bus.Subscribe(QuotesUpdated, func(e *Event) { t.Fatal("wrong type delivered") })

	bus.Emit(StateChanged, "syncer", &StateChangedData{Source: "local", Revision: 3})

	require.Len(t, got, 1)
	assert.Equal(t, StateChanged, got[0].Type)
	assert.Equal(t, "syncer", got[0].Module)
	assert.False(t, got[0].Timestamp.IsZero())
	data, ok := got[0].Data.(*StateChangedData)
	require.True(t, ok)
	assert.Equal(t, uint64(3), data.Revision)
}

func TestBus_Unsubscribe(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	calls := 0
	id := bus.Subscribe(StateChanged, func(*Event) { calls++ })
	other := 0
	bus.Subscribe(StateChanged, func(*Event) { other++ })

	bus.Emit(StateChanged, "test", nil)
	bus.Unsubscribe(id)
	bus.Unsubscribe(id)
	bus.Emit(StateChanged, "test", nil)

	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, other)
}

func TestBus_PanickingHandlerDoesNotStopDelivery(t *testing.T) {
	bus := NewBus(zerolog.Nop())

	delivered := false
	bus.Subscribe(ErrorOccurred, func(*Event) { panic("boom") })
	bus.Subscribe(ErrorOccurred, func(*Event) { delivered = true })

	assert.NotPanics(t, func() {
		bus.Emit(ErrorOccurred, "test", &ErrorEventData{Error: "x"})
	})
	assert.True(t, delivered)
}

func TestBus_HandlerMaySubscribeDuringEmit(t *testing.T) {
	bus := NewBus(zerolog.Nop())
	bus.Subscribe(StateChanged, func(*Event) {
		bus.Subscribe(StateChanged, func(*Event) {})
	})
	assert.NotPanics(t, func() { bus.Emit(StateChanged, "test", nil) })
}

func TestRemoteSnapshotData_EventType(t *testing.T) {
	assert.Equal(t, RemoteSnapshotApplied, (&RemoteSnapshotData{Revision: 1}).EventType())
	assert.Equal(t, RemoteSnapshotRejected, (&RemoteSnapshotData{Revision: 1, Reason: "grace"}).EventType())
}

func TestEvent_UnmarshalTypedData(t *testing.T) {
	price := decimal.RequireFromString("245.5")
	in := Event{
		Type:   QuotesUpdated,
		Module: "quotes",
		Data:   &QuotesUpdatedData{Symbol: "00631L.TW", Price: &price},
	}
	raw, err := json.Marshal(&in)
	require.NoError(t, err)

	var out Event
	require.NoError(t, json.Unmarshal(raw, &out))
	assert.Equal(t, QuotesUpdated, out.Type)
	data, ok := out.Data.(*QuotesUpdatedData)
	require.True(t, ok)
	assert.Equal(t, "00631L.TW", data.Symbol)
	require.NotNil(t, data.Price)
	assert.True(t, data.Price.Equal(price))
	assert.Nil(t, data.MarketIndex)
}

func TestEvent_UnmarshalUnknownTypeFallsBackToGeneric(t *testing.T) {
	var out Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"CUSTOM","module":"x","data":{"a":1}}`), &out))

	data, ok := out.Data.(*GenericEventData)
	require.True(t, ok)
	assert.Equal(t, EventType("CUSTOM"), data.EventType())
	assert.Equal(t, float64(1), data.Data["a"])
}

func TestEvent_UnmarshalNullData(t *testing.T) {
	var out Event
	require.NoError(t, json.Unmarshal([]byte(`{"type":"STATE_CHANGED","data":null}`), &out))
	assert.Nil(t, out.Data)
}
