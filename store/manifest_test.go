package store

import (
	"context"
	"testing"

	"github.com/radium-fs/radium-fs/storagedriver/memory"
	"github.com/stretchr/testify/require"
)

func TestManifestRoundTripsThroughAdapter(t *testing.T) {
	ctx := context.Background()
	adapter := memory.New()

	m := Manifest{
		Version: manifestVersion,
		Origin:  Origin{Kind: "greeting", Input: map[string]interface{}{"name": "World"}},
		Exports: map[string]string{".": "."},
	}

	require.NoError(t, writeManifest(ctx, adapter, "/m.json", m))

	got, err := readManifest(ctx, adapter, "/m.json")
	require.NoError(t, err)
	require.Equal(t, m.Origin.Kind, got.Origin.Kind)
	require.Equal(t, m.Exports, got.Exports)
	require.Empty(t, got.Dependencies)
	require.Empty(t, got.Commands)
}

func TestNormalizeExportsDefaultsToDot(t *testing.T) {
	require.Equal(t, map[string]string{".": "."}, normalizeExports(nil))
	require.Equal(t, map[string]string{".": "."}, normalizeExports(map[string]string{}))
}

func TestNormalizeExportsAddsDotIfMissing(t *testing.T) {
	got := normalizeExports(map[string]string{"lib": "dist"})
	require.Equal(t, ".", got["."])
	require.Equal(t, "dist", got["lib"])
}

func TestNormalizeMetadataDefaultsToEmptyMap(t *testing.T) {
	require.Equal(t, map[string]interface{}{}, normalizeMetadata(nil))
}
