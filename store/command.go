package store

import (
	"context"
	"path"
	"time"
)

// send implements §4.5.3: read the current manifest, invoke onCommand
// against the already-materialized content directory, and persist the
// result, appending a command-history entry when the handler returned
// exports or metadata.
func (s *Store) send(ctx context.Context, space *Space, command interface{}) (CommandResult, error) {
	kindName := space.Kind
	id := space.DataID

	s.fields(ctx, kindName, id).Debug("send: command start")
	startEvt := Event{Type: EventCommandStart, Kind: kindName, DataID: id, Command: command}
	s.bus.emit(startEvt)

	m, err := readManifest(ctx, s.adapter, sharedOrLocalManifestPath(space))
	if err != nil {
		err = AdapterIOError{Op: "readManifest", Err: err}
		s.bus.emit(Event{Type: EventCommandError, Kind: kindName, DataID: id, Command: command, Error: err})
		return CommandResult{}, err
	}

	current := CommandResult{Exports: m.Exports, Metadata: m.Metadata}

	emitCustom := func(payload interface{}) {
		evt := Event{Type: EventCustom, Kind: kindName, DataID: id, Payload: payload}
		s.bus.emit(evt)
	}

	cmdAPI := &CommandAPI{fileAPI{ctx: ctx, adapter: s.adapter, root: space.contentDir}}

	result, err := space.onCommand(ctx, CommandInvocation{
		Command: command,
		Current: current,
		Space:   cmdAPI,
		Emit:    emitCustom,
	})
	if err != nil {
		wrapped := UserCommandError{Kind: kindName, Err: err}
		commandErrorsCounter.WithValues(kindName).Inc(1)
		s.fields(ctx, kindName, id).WithError(wrapped).Error("send: command failed")
		s.bus.emit(Event{Type: EventCommandError, Kind: kindName, DataID: id, Command: command, Error: wrapped})
		return CommandResult{}, wrapped
	}

	exports := m.Exports
	if result.Exports != nil {
		exports = result.Exports
	}
	metadata := m.Metadata
	if result.Metadata != nil {
		metadata = result.Metadata
	}

	m.Exports = exports
	m.Metadata = metadata
	m.UpdatedAt = time.Now().UTC()

	resultTouched := result.Exports != nil || result.Metadata != nil
	if resultTouched {
		m.Commands = append(m.Commands, CommandRecord{
			Command:    command,
			ExecutedAt: m.UpdatedAt,
			Result: &CommandResultPayload{
				Exports:  exports,
				Metadata: metadata,
			},
		})
	}

	if err := writeManifest(ctx, s.adapter, sharedOrLocalManifestPath(space), m); err != nil {
		s.bus.emit(Event{Type: EventCommandError, Kind: kindName, DataID: id, Command: command, Error: err})
		return CommandResult{}, err
	}

	absExports := make(map[string]string, len(exports))
	for name, rel := range exports {
		absExports[name] = path.Join(space.contentDir, rel)
	}

	commandsCounter.WithValues(kindName).Inc(1)
	s.fields(ctx, kindName, id).Debug("send: command done")
	s.bus.emit(Event{Type: EventCommandDone, Kind: kindName, DataID: id, Command: command, Exports: absExports, Metadata: metadata})

	return CommandResult{Exports: absExports, Metadata: metadata}, nil
}

func sharedOrLocalManifestPath(space *Space) string {
	return layoutFor(path.Dir(space.contentDir)).manifest
}
