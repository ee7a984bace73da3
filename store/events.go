package store

import (
	"context"
	"sync"

	events "github.com/docker/go-events"

	"github.com/radium-fs/radium-fs/internal/dcontext"
)

// EventType tags the union of events the engine emits.
type EventType string

const (
	EventInitStart    EventType = "init:start"
	EventInitCached   EventType = "init:cached"
	EventInitDone     EventType = "init:done"
	EventInitError    EventType = "init:error"
	EventCommandStart EventType = "command:start"
	EventCommandDone  EventType = "command:done"
	EventCommandError EventType = "command:error"
	EventCustom       EventType = "custom"
)

// Event is the payload delivered to every subscription channel. Not every
// field is populated for every Type; see the emission sites in build.go and
// command.go for which fields each Type carries.
type Event struct {
	Type     EventType
	Kind     string
	DataID   string
	Input    interface{}
	Path     string
	Exports  map[string]string
	Metadata map[string]interface{}
	Command  interface{}
	Error    error
	Payload  interface{}
}

var _ events.Event = Event{}

// Handler receives events from any subscription channel. A Handler that
// panics is recovered so it can't interrupt delivery to other handlers or
// to the engine itself.
type Handler func(Event)

// handlerSink adapts a Handler to the events.Sink interface so the engine's
// channels are expressed in the same vocabulary as the wider event-bus
// ecosystem, even though delivery here is synchronous rather than queued.
type handlerSink struct {
	handler Handler
}

func (s *handlerSink) Write(ev events.Event) error {
	e, ok := ev.(Event)
	if !ok {
		return nil
	}
	s.safeInvoke(e)
	return nil
}

func (s *handlerSink) safeInvoke(e Event) {
	defer func() {
		if r := recover(); r != nil {
			dcontext.GetLogger(context.Background()).Errorf("store: event handler panicked: %v", r)
		}
	}()
	s.handler(e)
}

func (s *handlerSink) Close() error { return nil }

// eventBus implements the three-tier routing described by the engine: a
// global channel that sees everything, a per-space command channel keyed
// by dataId and tag, and a per-space custom-payload channel keyed by
// dataId.
type eventBus struct {
	mu sync.Mutex

	global []*handlerSink

	commandSinks map[string]map[EventType][]*handlerSink
	customSinks  map[string][]*handlerSink
}

func newEventBus() *eventBus {
	return &eventBus{
		commandSinks: make(map[string]map[EventType][]*handlerSink),
		customSinks:  make(map[string][]*handlerSink),
	}
}

// On subscribes handler to every event the store emits. The returned
// function unsubscribes it.
func (b *eventBus) On(handler Handler) func() {
	sink := &handlerSink{handler: handler}
	b.mu.Lock()
	b.global = append(b.global, sink)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		for i, s := range b.global {
			if s == sink {
				b.global = append(b.global[:i], b.global[i+1:]...)
				return
			}
		}
	}
}

// OnCommand subscribes handler to a single command-lifecycle tag for one
// space's dataId.
func (b *eventBus) OnCommand(dataID string, tag EventType, handler Handler) func() {
	sink := &handlerSink{handler: handler}

	b.mu.Lock()
	byTag, ok := b.commandSinks[dataID]
	if !ok {
		byTag = make(map[EventType][]*handlerSink)
		b.commandSinks[dataID] = byTag
	}
	byTag[tag] = append(byTag[tag], sink)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		byTag, ok := b.commandSinks[dataID]
		if !ok {
			return
		}
		list := byTag[tag]
		for i, s := range list {
			if s == sink {
				byTag[tag] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// OnCustom subscribes handler to every custom payload emitted for one
// space's dataId.
func (b *eventBus) OnCustom(dataID string, handler Handler) func() {
	sink := &handlerSink{handler: handler}

	b.mu.Lock()
	b.customSinks[dataID] = append(b.customSinks[dataID], sink)
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		list := b.customSinks[dataID]
		for i, s := range list {
			if s == sink {
				b.customSinks[dataID] = append(list[:i], list[i+1:]...)
				return
			}
		}
	}
}

// Purge deletes every per-space subscriber map entry for dataID. Called on
// remove(origin) so long-running processes don't leak listener maps.
func (b *eventBus) Purge(dataID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.commandSinks, dataID)
	delete(b.customSinks, dataID)
}

// emit delivers e to the global channel, then (for command:* and custom
// events) to the matching per-space channel.
func (b *eventBus) emit(e Event) {
	b.mu.Lock()
	global := append([]*handlerSink(nil), b.global...)
	var spaceSinks []*handlerSink
	switch e.Type {
	case EventCommandStart, EventCommandDone, EventCommandError:
		if byTag, ok := b.commandSinks[e.DataID]; ok {
			spaceSinks = append(spaceSinks, byTag[e.Type]...)
		}
	case EventCustom:
		spaceSinks = append(spaceSinks, b.customSinks[e.DataID]...)
	}
	b.mu.Unlock()

	for _, s := range global {
		_ = s.Write(e)
	}
	for _, s := range spaceSinks {
		_ = s.Write(e)
	}
}
