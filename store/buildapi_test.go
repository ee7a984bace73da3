package store

import (
	"context"
	"strings"
	"testing"

	"github.com/radium-fs/radium-fs/storagedriver/memory"
	"github.com/stretchr/testify/require"
)

func TestLocalScopedDepLivesUnderParentDataDir(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	s := New(adapter, "/store", nil, nil)

	secret := Kind{
		Name: "secret",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			return InitResult{}, api.WriteFile("key", []byte("shh"))
		},
	}
	parent := Kind{
		Name: "parent",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			target, err := api.Dep(ctx, "creds", secret, nil, DepOptions{Scope: ScopeLocal})
			if err != nil {
				return InitResult{}, err
			}
			if !strings.Contains(target, localDepsDir) {
				return InitResult{}, errFixture("expected local-deps path, got " + target)
			}
			return InitResult{}, nil
		},
	}

	sp, err := s.Ensure(ctx, parent, nil, EnsureOptions{})
	require.NoError(t, err)
	require.False(t, s.Has(ctx, secret, nil), "a local-scoped dep must not be discoverable as a shared space")

	require.True(t, adapter.Exists(ctx, sp.Path+"/creds"))
}

func TestLocalSubAPIWritesUnderPrivateDirectory(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	s := New(adapter, "/store", nil, nil)

	k := Kind{
		Name: "withlocal",
		OnInit: func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error) {
			return InitResult{}, api.Local.WriteFile("scratch.txt", []byte("private"))
		},
	}

	sp, err := s.Ensure(ctx, k, nil, EnsureOptions{})
	require.NoError(t, err)

	privatePath := strings.TrimSuffix(sp.Path, "space") + "local/scratch.txt"
	b, err := adapter.ReadFile(ctx, privatePath)
	require.NoError(t, err)
	require.Equal(t, "private", string(b))
}

func TestReadFileLineRangeClampsAndLimits(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()
	require.NoError(t, adapter.WriteFile(ctx, "/root/f.txt", []byte("one\ntwo\nthree\nfour")))

	api := ContentAPI{fileAPI{ctx: ctx, adapter: adapter, root: "/root"}}

	b, err := api.ReadFile("f.txt", ReadFileOptions{StartLine: 2, MaxLines: 2})
	require.NoError(t, err)
	require.Equal(t, "two\nthree", string(b))

	full, err := api.ReadFile("f.txt", ReadFileOptions{})
	require.NoError(t, err)
	require.Equal(t, "one\ntwo\nthree\nfour", string(full))
}
