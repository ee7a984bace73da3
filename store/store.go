// Package store implements the content-addressed build-and-cache engine:
// given a Kind (name, cache-key reduction, initializer, optional command
// handler) and an input, it materializes a directory at a path derived
// deterministically from hash(kind, input), persists a manifest describing
// it, and composes spaces by mounting one inside another via symlinks.
package store

import (
	"context"
	"path"

	"github.com/radium-fs/radium-fs/internal/dcontext"
	"github.com/radium-fs/radium-fs/storagedriver"
	"github.com/radium-fs/radium-fs/storagedriver/base"
)

// EnsureOptions narrows an Ensure call.
type EnsureOptions struct {
	// Cache defaults to true when nil. false forces a rebuild, discarding
	// any previously cached space at the same dataId.
	Cache *bool

	OnStart  Handler
	OnCached Handler
	OnDone   Handler
	OnError  Handler
}

func (o EnsureOptions) cacheEnabled() bool {
	return o.Cache == nil || *o.Cache
}

// Store is the engine: one Adapter, one root directory, an optional
// Locker, and the three-tier event bus.
type Store struct {
	adapter storagedriver.Adapter
	root    string
	locker  Locker
	runtime interface{}
	bus     *eventBus
}

// Option configures optional Store behavior at construction time.
type Option func(*Store)

// WithConcurrencyLimit wraps the Store's adapter in a regulator (§5 shared
// resources) so that no more than limit adapter calls run concurrently
// across every ensure/find/send the Store handles. A limit of 0 leaves the
// adapter unwrapped.
func WithConcurrencyLimit(limit uint64) Option {
	return func(s *Store) {
		s.adapter = base.NewRegulator(s.adapter, limit)
	}
}

// New constructs a Store rooted at root on adapter. runtime is the value
// threaded through to every root-level Ensure's BuildAPI.Runtime; locker
// may be nil, in which case concurrent builders race to rename instead of
// deduplicating work.
func New(adapter storagedriver.Adapter, root string, locker Locker, runtime interface{}, opts ...Option) *Store {
	s := &Store{
		adapter: adapter,
		root:    root,
		locker:  locker,
		runtime: runtime,
		bus:     newEventBus(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// On subscribes handler to every event the store emits. The returned
// function unsubscribes it.
func (s *Store) On(handler Handler) func() {
	return s.bus.On(handler)
}

// Ensure builds or returns a cached space for (kind, input).
func (s *Store) Ensure(ctx context.Context, kind Kind, input interface{}, opts EnsureOptions) (*Space, error) {
	if err := kind.Validate(); err != nil {
		return nil, err
	}
	return s.ensureInternal(ctx, kind, input, "", s.runtime, opts)
}

// Find returns the space for (kind, input) if it has already been
// materialized, or nil if not. kind is the same Kind value the caller
// would pass to Ensure; passing it (rather than a bare name, as the
// wire-format Origin stores) lets the returned handle support Send when
// the Kind has an onCommand handler.
func (s *Store) Find(ctx context.Context, kind Kind, input interface{}) (*Space, error) {
	id := dataID(s.adapter, kind.Name, kind.effectiveInput(input))
	l := sharedLayout(s.root, kind.Name, id)

	if !s.adapter.Exists(ctx, l.manifest) {
		return nil, nil
	}
	m, err := readManifest(ctx, s.adapter, l.manifest)
	if err != nil {
		return nil, AdapterIOError{Op: "readManifest", Err: err}
	}
	return newSpace(s, kind.Name, id, l, m, kind.OnCommand), nil
}

// Has reports whether (kind, input) has already been materialized.
func (s *Store) Has(ctx context.Context, kind Kind, input interface{}) bool {
	id := dataID(s.adapter, kind.Name, kind.effectiveInput(input))
	l := sharedLayout(s.root, kind.Name, id)
	return s.adapter.Exists(ctx, l.manifest)
}

// Remove deletes (kind, input)'s data directory (including any
// local-scoped dependencies under it) and purges its per-space event
// subscriptions.
func (s *Store) Remove(ctx context.Context, kind Kind, input interface{}) error {
	id := dataID(s.adapter, kind.Name, kind.effectiveInput(input))
	l := sharedLayout(s.root, kind.Name, id)

	if err := s.adapter.Remove(ctx, l.dataDir, storagedriver.RemoveOptions{Recursive: true}); err != nil {
		if _, ok := err.(storagedriver.PathNotFoundError); !ok {
			return AdapterIOError{Op: "remove", Err: err}
		}
	}
	s.bus.Purge(id)
	return nil
}

// List enumerates every materialized space under the store root, or only
// those of kindName if non-empty. Entries with a missing or unreadable
// manifest, and temp directories, are silently skipped.
func (s *Store) List(ctx context.Context, kindName string) ([]*Space, error) {
	base := path.Join(s.root, dataDirName)
	if kindName != "" {
		base = path.Join(base, kindName)
	}

	var kindNames []string
	if kindName != "" {
		kindNames = []string{kindName}
	} else {
		names, err := s.adapter.ReadDir(ctx, base)
		if err != nil {
			if _, ok := err.(storagedriver.PathNotFoundError); ok {
				return nil, nil
			}
			return nil, AdapterIOError{Op: "readDir", Err: err}
		}
		kindNames = names
	}

	var out []*Space
	for _, kn := range kindNames {
		kindBase := path.Join(s.root, dataDirName, kn)
		shards, err := s.adapter.ReadDir(ctx, kindBase)
		if err != nil {
			continue
		}
		for _, sh := range shards {
			shardDir := path.Join(kindBase, sh)
			ids, err := s.adapter.ReadDir(ctx, shardDir)
			if err != nil {
				continue
			}
			for _, id := range ids {
				if isTempName(id) {
					continue
				}
				l := layoutFor(path.Join(shardDir, id))
				m, err := readManifest(ctx, s.adapter, l.manifest)
				if err != nil {
					continue
				}
				out = append(out, newSpace(s, kn, id, l, m, nil))
			}
		}
	}
	return out, nil
}

func (s *Store) logger(ctx context.Context) dcontext.Logger {
	return dcontext.GetLogger(ctx, "store")
}

// fields returns a logger annotated with the kind/dataId pair every
// build/command log line carries.
func (s *Store) fields(ctx context.Context, kindName, dataID string) dcontext.Logger {
	return dcontext.GetLoggerWithFields(ctx, map[any]any{"kind": kindName, "dataId": dataID})
}
