package memory

import (
	"context"
	"testing"

	"github.com/radium-fs/radium-fs/storagedriver"
	"github.com/radium-fs/radium-fs/storagedriver/testsuites"
	"github.com/stretchr/testify/require"
)

func TestMemoryAdapterSuite(t *testing.T) {
	testsuites.RunAdapterSuite(t, func() (storagedriver.Adapter, error) {
		return New(), nil
	}, testsuites.NeverSkip)
}

func TestSymlinkLoopDetected(t *testing.T) {
	d := New()
	ctx := context.Background()

	require.NoError(t, d.Symlink(ctx, "/b", "/a"))
	require.NoError(t, d.Symlink(ctx, "/a", "/b"))

	require.False(t, d.Exists(ctx, "/a"))
	_, err := d.ReadFile(ctx, "/a")
	require.Error(t, err)
	require.IsType(t, storagedriver.SymlinkLoopError{}, err)
}
