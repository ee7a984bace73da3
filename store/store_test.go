package store

import (
	"context"
	"encoding/json"
	"sync/atomic"
	"testing"
	"time"

	"github.com/radium-fs/radium-fs/storagedriver"
	"github.com/radium-fs/radium-fs/storagedriver/memory"
	"github.com/stretchr/testify/require"
)

func greetingKind() Kind {
	return Kind{
		Name: "greeting",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			in := input.(map[string]interface{})
			text := "Hello, " + in["name"].(string) + "!"
			if err := api.WriteFile("hello.txt", []byte(text)); err != nil {
				return InitResult{}, err
			}
			return InitResult{Exports: map[string]string{".": ".", "greeting": "hello.txt"}}, nil
		},
	}
}

func TestEnsureCacheHitOnSecondCall(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)
	k := greetingKind()
	input := map[string]interface{}{"name": "World", "lang": "en"}

	var types []EventType
	s.On(func(e Event) { types = append(types, e.Type) })

	sp1, err := s.Ensure(ctx, k, input, EnsureOptions{})
	require.NoError(t, err)
	require.Contains(t, sp1.Exports["greeting"], "/space/hello.txt")
	require.Equal(t, []EventType{EventInitStart, EventInitDone}, types)

	types = nil
	sp2, err := s.Ensure(ctx, k, input, EnsureOptions{})
	require.NoError(t, err)
	require.Equal(t, []EventType{EventInitCached}, types)
	require.Equal(t, sp1.DataID, sp2.DataID)
	require.Equal(t, sp1.Path, sp2.Path)
}

func TestEnsureIsIdempotentAcrossCalls(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	calls := 0
	k := Kind{
		Name: "counted",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			calls++
			return InitResult{}, nil
		},
	}

	_, err := s.Ensure(ctx, k, map[string]interface{}{"x": 1.0}, EnsureOptions{})
	require.NoError(t, err)
	_, err = s.Ensure(ctx, k, map[string]interface{}{"x": 1.0}, EnsureOptions{})
	require.NoError(t, err)

	require.Equal(t, 1, calls)
}

func TestEnsureNoCacheForcesRebuild(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	calls := 0
	k := Kind{
		Name: "forced",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			calls++
			return InitResult{}, nil
		},
	}

	noCache := false
	_, err := s.Ensure(ctx, k, nil, EnsureOptions{})
	require.NoError(t, err)
	_, err = s.Ensure(ctx, k, nil, EnsureOptions{Cache: &noCache})
	require.NoError(t, err)

	require.Equal(t, 2, calls)
}

func TestFindRoundTripsAfterEnsure(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)
	k := greetingKind()
	input := map[string]interface{}{"name": "World"}

	sp, err := s.Ensure(ctx, k, input, EnsureOptions{})
	require.NoError(t, err)

	found, err := s.Find(ctx, k, input)
	require.NoError(t, err)
	require.NotNil(t, found)
	require.Equal(t, sp.DataID, found.DataID)
	require.Equal(t, sp.Path, found.Path)
}

func TestRemoveThenHasIsFalse(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)
	k := greetingKind()
	input := map[string]interface{}{"name": "World"}

	_, err := s.Ensure(ctx, k, input, EnsureOptions{})
	require.NoError(t, err)
	require.True(t, s.Has(ctx, k, input))

	require.NoError(t, s.Remove(ctx, k, input))
	require.False(t, s.Has(ctx, k, input))
}

func TestOnInitFailureLeavesNoTrace(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	var types []EventType
	s.On(func(e Event) { types = append(types, e.Type) })

	boom := errFixture("boom")
	k := Kind{
		Name: "broken",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			return InitResult{}, boom
		},
	}

	_, err := s.Ensure(ctx, k, nil, EnsureOptions{})
	require.Error(t, err)
	require.ErrorIs(t, err, error(boom))
	require.False(t, s.Has(ctx, k, nil))
	require.Equal(t, []EventType{EventInitStart, EventInitError}, types)
}

type errFixture string

func (e errFixture) Error() string { return string(e) }

func TestDependencyChainPartialRebuild(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	config := Kind{
		Name: "config",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			b, _ := json.Marshal(input)
			if err := api.WriteFile("settings.json", b); err != nil {
				return InitResult{}, err
			}
			return InitResult{}, nil
		},
	}
	lib := Kind{
		Name: "lib",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			if err := api.WriteFile("index.js", []byte("module.exports = {}")); err != nil {
				return InitResult{}, err
			}
			return InitResult{}, nil
		},
	}
	app := Kind{
		Name: "app",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			in := input.(map[string]interface{})
			if _, err := api.Dep(ctx, "config", config, map[string]interface{}{"env": in["env"]}, DepOptions{}); err != nil {
				return InitResult{}, err
			}
			if _, err := api.Dep(ctx, "lib", lib, map[string]interface{}{"name": "utils", "version": "1.0.0"}, DepOptions{}); err != nil {
				return InitResult{}, err
			}
			if err := api.WriteFile("main.js", []byte("require('./lib')")); err != nil {
				return InitResult{}, err
			}
			return InitResult{}, nil
		},
	}

	var types []EventType
	s.On(func(e Event) { types = append(types, e.Type) })

	_, err := s.Ensure(ctx, app, map[string]interface{}{"env": "prod"}, EnsureOptions{})
	require.NoError(t, err)
	require.Equal(t, []EventType{
		EventInitStart, EventInitStart, EventInitDone, EventInitStart, EventInitDone, EventInitDone,
	}, types)

	types = nil
	_, err = s.Ensure(ctx, app, map[string]interface{}{"env": "prod"}, EnsureOptions{})
	require.NoError(t, err)
	require.Equal(t, []EventType{EventInitCached}, types)

	types = nil
	_, err = s.Ensure(ctx, app, map[string]interface{}{"env": "dev"}, EnsureOptions{})
	require.NoError(t, err)
	require.Equal(t, []EventType{
		EventInitStart, EventInitStart, EventInitDone, EventInitCached, EventInitDone,
	}, types)
}

func TestDepExportNotFoundFailsParentBuild(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	leaf := Kind{
		Name: "leaf",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			return InitResult{}, nil
		},
	}
	parent := Kind{
		Name: "parent",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			_, err := api.Dep(ctx, "dep", leaf, nil, DepOptions{Export: "missing"})
			return InitResult{}, err
		},
	}

	_, err := s.Ensure(ctx, parent, nil, EnsureOptions{})
	require.Error(t, err)
	require.IsType(t, ExportNotFoundError{}, err)
}

func TestSendAppendsCommandHistory(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	counter := Kind{
		Name: "counter",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			if err := api.WriteFile("state.json", []byte(`{"count":0}`)); err != nil {
				return InitResult{}, err
			}
			return InitResult{Metadata: map[string]interface{}{"count": 0.0}}, nil
		},
		OnCommand: func(ctx context.Context, inv CommandInvocation) (CommandResult, error) {
			cmd := inv.Command.(map[string]interface{})
			count := inv.Current.Metadata["count"].(float64)
			switch cmd["type"] {
			case "increment":
				count += cmd["amount"].(float64)
			case "reset":
				count = 0
			}
			return CommandResult{Metadata: map[string]interface{}{"count": count}}, nil
		},
	}

	sp, err := s.Ensure(ctx, counter, nil, EnsureOptions{})
	require.NoError(t, err)

	_, err = sp.Send(ctx, map[string]interface{}{"type": "increment", "amount": 5.0})
	require.NoError(t, err)

	refreshed, err := s.Find(ctx, counter, nil)
	require.NoError(t, err)
	require.Len(t, refreshed.Manifest.Commands, 1)
	require.Equal(t, 5.0, refreshed.Manifest.Metadata["count"])

	_, err = sp.Send(ctx, map[string]interface{}{"type": "reset"})
	require.NoError(t, err)

	refreshed, err = s.Find(ctx, counter, nil)
	require.NoError(t, err)
	require.Len(t, refreshed.Manifest.Commands, 2)
	require.Equal(t, 0.0, refreshed.Manifest.Metadata["count"])
}

func TestRemovePurgesPerSpaceListeners(t *testing.T) {
	ctx := context.Background()
	s := New(memory.New(), "/store", nil, nil)

	k := Kind{
		Name:   "noop",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) { return InitResult{}, nil },
		OnCommand: func(ctx context.Context, inv CommandInvocation) (CommandResult, error) {
			return CommandResult{}, nil
		},
	}

	sp, err := s.Ensure(ctx, k, nil, EnsureOptions{})
	require.NoError(t, err)

	fired := 0
	sp.OnCommand(EventCommandDone, func(e Event) { fired++ })

	require.NoError(t, s.Remove(ctx, k, nil))

	sp2, err := s.Ensure(ctx, k, nil, EnsureOptions{})
	require.NoError(t, err)
	_, err = sp2.Send(ctx, "go")
	require.NoError(t, err)

	require.Equal(t, 0, fired)
}

// countingAdapter wraps an Adapter to track how many WriteFile calls are
// in flight at once, so WithConcurrencyLimit's regulator can be observed
// from outside storagedriver/base.
type countingAdapter struct {
	storagedriver.Adapter
	active int32
	peak   int32
}

func (c *countingAdapter) WriteFile(ctx context.Context, p string, content []byte) error {
	n := atomic.AddInt32(&c.active, 1)
	for {
		cur := atomic.LoadInt32(&c.peak)
		if n <= cur || atomic.CompareAndSwapInt32(&c.peak, cur, n) {
			break
		}
	}
	time.Sleep(5 * time.Millisecond)
	defer atomic.AddInt32(&c.active, -1)
	return c.Adapter.WriteFile(ctx, p, content)
}

func TestWithConcurrencyLimitCapsInFlightAdapterCalls(t *testing.T) {
	ctx := context.Background()
	counting := &countingAdapter{Adapter: memory.New()}
	s := New(counting, "/store", nil, nil, WithConcurrencyLimit(2))

	slow := Kind{
		Name: "slow",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			return InitResult{}, api.WriteFile("out.txt", []byte("x"))
		},
	}

	done := make(chan struct{})
	for i := 0; i < 6; i++ {
		i := i
		go func() {
			_, err := s.Ensure(ctx, slow, map[string]interface{}{"n": float64(i)}, EnsureOptions{})
			require.NoError(t, err)
			done <- struct{}{}
		}()
	}
	for i := 0; i < 6; i++ {
		<-done
	}

	require.LessOrEqual(t, counting.peak, int32(2))
}
