package store

import (
	"context"
	"path"
)

// Space is the read-only runtime handle returned by Ensure/Find. If its
// Kind supplied an onCommand handler, Send/OnCommand/OnCustom are usable;
// otherwise Send returns CommandUnsupportedError and OnCommand/OnCustom
// register nothing.
type Space struct {
	DataID   string
	Kind     string
	Origin   Origin
	Path     string            // absolute, ends with "/space"
	Exports  map[string]string // absolute
	Manifest Manifest

	store           *Store
	contentDir      string
	supportsCommand bool
	onCommand       CommandFunc
}

func newSpace(store *Store, kindName, dataID string, l layout, m Manifest, onCommand CommandFunc) *Space {
	exports := make(map[string]string, len(m.Exports))
	for name, rel := range m.Exports {
		exports[name] = path.Join(l.contentDir, rel)
	}
	return &Space{
		DataID:          dataID,
		Kind:            kindName,
		Origin:          m.Origin,
		Path:            l.contentDir,
		Exports:         exports,
		Manifest:        m,
		store:           store,
		contentDir:      l.contentDir,
		supportsCommand: onCommand != nil,
		onCommand:       onCommand,
	}
}

// Send invokes the space's onCommand handler, persisting the result to the
// manifest on success; a command-history entry is appended only when the
// handler returned exports or metadata.
func (s *Space) Send(ctx context.Context, command interface{}) (CommandResult, error) {
	if !s.supportsCommand {
		return CommandResult{}, CommandUnsupportedError{Kind: s.Kind}
	}
	return s.store.send(ctx, s, command)
}

// OnCommand subscribes to one command-lifecycle tag for this space. No-op
// subscription (never fires) if the Kind doesn't support commands.
func (s *Space) OnCommand(tag EventType, handler Handler) func() {
	if !s.supportsCommand {
		return func() {}
	}
	return s.store.bus.OnCommand(s.DataID, tag, handler)
}

// OnCustom subscribes to every custom payload this space emits during
// command handling. No-op subscription if the Kind doesn't support
// commands (custom events from onInit only ever reach the global channel).
func (s *Space) OnCustom(handler Handler) func() {
	if !s.supportsCommand {
		return func() {}
	}
	return s.store.bus.OnCustom(s.DataID, handler)
}

