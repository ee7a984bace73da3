package store

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEventBusGlobalReceivesEverything(t *testing.T) {
	b := newEventBus()
	var got []EventType
	b.On(func(e Event) { got = append(got, e.Type) })

	b.emit(Event{Type: EventInitStart, DataID: "d1"})
	b.emit(Event{Type: EventCustom, DataID: "d1", Payload: "x"})

	require.Equal(t, []EventType{EventInitStart, EventCustom}, got)
}

func TestEventBusUnsubscribeStopsDelivery(t *testing.T) {
	b := newEventBus()
	var count int
	unsub := b.On(func(e Event) { count++ })

	b.emit(Event{Type: EventInitStart})
	unsub()
	b.emit(Event{Type: EventInitStart})

	require.Equal(t, 1, count)
}

func TestEventBusCommandChannelIsKeyedByDataIDAndTag(t *testing.T) {
	b := newEventBus()
	var forA, forB int
	b.OnCommand("a", EventCommandDone, func(e Event) { forA++ })
	b.OnCommand("b", EventCommandDone, func(e Event) { forB++ })

	b.emit(Event{Type: EventCommandDone, DataID: "a"})
	b.emit(Event{Type: EventCommandStart, DataID: "a"}) // different tag, should not reach forA

	require.Equal(t, 1, forA)
	require.Equal(t, 0, forB)
}

func TestEventBusCustomChannelIsKeyedByDataID(t *testing.T) {
	b := newEventBus()
	var payloads []interface{}
	b.OnCustom("a", func(e Event) { payloads = append(payloads, e.Payload) })

	b.emit(Event{Type: EventCustom, DataID: "a", Payload: "hi"})
	b.emit(Event{Type: EventCustom, DataID: "other", Payload: "nope"})

	require.Equal(t, []interface{}{"hi"}, payloads)
}

func TestEventBusPurgeRemovesPerSpaceSubscriptions(t *testing.T) {
	b := newEventBus()
	var fired int
	b.OnCommand("a", EventCommandDone, func(e Event) { fired++ })

	b.Purge("a")
	b.emit(Event{Type: EventCommandDone, DataID: "a"})

	require.Equal(t, 0, fired)
}

func TestEventBusHandlerPanicDoesNotStopOtherHandlers(t *testing.T) {
	b := newEventBus()
	var secondRan bool
	b.On(func(e Event) { panic("boom") })
	b.On(func(e Event) { secondRan = true })

	require.NotPanics(t, func() {
		b.emit(Event{Type: EventInitStart})
	})
	require.True(t, secondRan)
}
