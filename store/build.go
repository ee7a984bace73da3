package store

import (
	"context"
	"time"

	"github.com/radium-fs/radium-fs/internal/uuid"
	"github.com/radium-fs/radium-fs/storagedriver"
)

// ensureInternal implements the build protocol of §4.5.1. localAnchor is
// the parent's data directory when this call is a local-scoped dep(), or
// "" for a root Ensure or a shared-scoped dep().
func (s *Store) ensureInternal(ctx context.Context, kind Kind, input interface{}, localAnchor string, runtime interface{}, opts EnsureOptions) (*Space, error) {
	id := dataID(s.adapter, kind.Name, kind.effectiveInput(input))

	var l layout
	if localAnchor != "" {
		l = localLayout(localAnchor, kind.Name, id)
	} else {
		l = sharedLayout(s.root, kind.Name, id)
	}

	if s.locker != nil {
		handle, err := s.locker.Acquire(ctx, id)
		if err != nil {
			return nil, AbortedError{Kind: kind.Name}
		}
		defer handle.Release()
	}

	if err := ctx.Err(); err != nil {
		return nil, AbortedError{Kind: kind.Name}
	}

	origin := Origin{Kind: kind.Name, Input: input, CacheKey: cacheKeyValueOf(kind, input)}

	if s.adapter.Exists(ctx, l.manifest) {
		if opts.cacheEnabled() {
			m, err := readManifest(ctx, s.adapter, l.manifest)
			if err != nil {
				return nil, AdapterIOError{Op: "readManifest", Err: err}
			}
			space := newSpace(s, kind.Name, id, l, m, kind.OnCommand)
			cacheHitsCounter.WithValues(kind.Name).Inc(1)
			s.fields(ctx, kind.Name, id).Debug("ensure: cache hit")
			cached := Event{Type: EventInitCached, Kind: kind.Name, DataID: id, Input: input, Path: l.contentDir}
			s.bus.emit(cached)
			if opts.OnCached != nil {
				opts.OnCached(cached)
			}
			return space, nil
		}
		if err := s.adapter.Remove(ctx, l.dataDir, storagedriver.RemoveOptions{Recursive: true}); err != nil {
			if _, ok := err.(storagedriver.PathNotFoundError); !ok {
				return nil, AdapterIOError{Op: "remove", Err: err}
			}
		}
	}

	buildsStartedCounter.WithValues(kind.Name).Inc(1)
	activeBuildsGauge.Inc(1)
	defer activeBuildsGauge.Dec(1)

	s.fields(ctx, kind.Name, id).Debug("ensure: build start")

	start := Event{Type: EventInitStart, Kind: kind.Name, DataID: id, Input: input}
	s.bus.emit(start)
	if opts.OnStart != nil {
		opts.OnStart(start)
	}

	tempDir := tempDirFor(l, uuid.NewString()[:8])
	tempLayout := layoutFor(tempDir)

	if err := s.adapter.Mkdir(ctx, tempLayout.contentDir); err != nil {
		return s.failInit(ctx, kind, id, input, tempDir, opts, AdapterIOError{Op: "mkdir", Err: err})
	}
	if err := s.adapter.Mkdir(ctx, tempLayout.privateDir); err != nil {
		return s.failInit(ctx, kind, id, input, tempDir, opts, AdapterIOError{Op: "mkdir", Err: err})
	}

	var deps []DependencyRecord
	buildAPI := &BuildAPI{
		ContentAPI: ContentAPI{fileAPI{ctx: ctx, adapter: s.adapter, root: tempLayout.contentDir}},
		Path:       tempLayout.contentDir,
		Runtime:    runtime,
		Local:      LocalAPI{fileAPI{ctx: ctx, adapter: s.adapter, root: tempLayout.privateDir}},
		store:      s,
		anchor:     tempDir,
		deps:       &deps,
	}

	buildAPI.emitCustom = func(payload interface{}) {
		// Global channel only, even if per-space custom subscribers exist
		// for this dataId from an earlier build.
		e := Event{Type: EventCustom, Kind: kind.Name, DataID: id, Payload: payload}
		s.bus.mu.Lock()
		global := append([]*handlerSink(nil), s.bus.global...)
		s.bus.mu.Unlock()
		for _, sink := range global {
			_ = sink.Write(e)
		}
	}

	result, err := kind.OnInit(ctx, buildAPI, input)
	if err != nil {
		buildErrorsCounter.WithValues(kind.Name).Inc(1)
		return s.failInit(ctx, kind, id, input, tempDir, opts, UserInitError{Kind: kind.Name, Err: err})
	}

	now := time.Now().UTC()
	manifest := Manifest{
		Version:      manifestVersion,
		Origin:       origin,
		Exports:      normalizeExports(result.Exports),
		Dependencies: deps,
		Metadata:     normalizeMetadata(result.Metadata),
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := writeManifest(ctx, s.adapter, tempLayout.manifest, manifest); err != nil {
		return s.failInit(ctx, kind, id, input, tempDir, opts, err)
	}

	if err := s.adapter.Rename(ctx, tempDir, l.dataDir); err != nil {
		if s.adapter.Exists(ctx, l.manifest) {
			// A concurrent builder won the race; adopt its manifest.
			_ = s.adapter.Remove(ctx, tempDir, storagedriver.RemoveOptions{Recursive: true})
			m, rerr := readManifest(ctx, s.adapter, l.manifest)
			if rerr != nil {
				return nil, AdapterIOError{Op: "readManifest", Err: rerr}
			}
			space := newSpace(s, kind.Name, id, l, m, kind.OnCommand)
			s.fields(ctx, kind.Name, id).Debug("ensure: lost finalize race, adopted winner's manifest")
			done := Event{Type: EventInitDone, Kind: kind.Name, DataID: id, Input: input, Path: l.contentDir, Exports: space.Exports, Metadata: m.Metadata}
			s.bus.emit(done)
			if opts.OnDone != nil {
				opts.OnDone(done)
			}
			return space, nil
		}
		buildErrorsCounter.WithValues(kind.Name).Inc(1)
		return s.failInit(ctx, kind, id, input, tempDir, opts, FinalizeFailedError{Kind: kind.Name, DataID: id, Err: err})
	}

	m, err := readManifest(ctx, s.adapter, l.manifest)
	if err != nil {
		return nil, AdapterIOError{Op: "readManifest", Err: err}
	}
	space := newSpace(s, kind.Name, id, l, m, kind.OnCommand)

	s.fields(ctx, kind.Name, id).Debug("ensure: build done")
	done := Event{Type: EventInitDone, Kind: kind.Name, DataID: id, Input: input, Path: l.contentDir, Exports: space.Exports, Metadata: m.Metadata}
	s.bus.emit(done)
	if opts.OnDone != nil {
		opts.OnDone(done)
	}
	return space, nil
}

// failInit cleans up the temp directory on a best-effort basis, emits
// init:error, and returns the original error unchanged alongside it.
func (s *Store) failInit(ctx context.Context, kind Kind, id string, input interface{}, tempDir string, opts EnsureOptions, cause error) (*Space, error) {
	_ = s.adapter.Remove(ctx, tempDir, storagedriver.RemoveOptions{Recursive: true})

	s.fields(ctx, kind.Name, id).WithError(cause).Error("ensure: build failed")

	errEvent := Event{Type: EventInitError, Kind: kind.Name, DataID: id, Input: input, Error: cause}
	s.bus.emit(errEvent)
	if opts.OnError != nil {
		opts.OnError(errEvent)
	}

	return nil, cause
}
