// Package base provides a wrapper around a storagedriver.Adapter
// implementation that adds common path checking, duration logging, and
// optional call concurrency limiting. The canonical approach is to embed
// Base in the exported adapter struct so calls are proxied through it:
//
//	type driver struct { ... internal ... }
//
//	type baseEmbed struct { base.Base }
//
//	type Driver struct { baseEmbed }
//
// Driver then implements storagedriver.Adapter by proxying through Base,
// without exporting an unnecessary field.
package base

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/radium-fs/radium-fs/internal/dcontext"
	storagedriver "github.com/radium-fs/radium-fs/storagedriver"
)

// Base wraps an Adapter implementation with path and duration bookkeeping.
type Base struct {
	storagedriver.Adapter
}

func durationDebugLog(ctx context.Context, methodName string) func() {
	startedAt := time.Now()
	return func() {
		dcontext.GetLogger(ctx, "duration").Debugf("adapter.%s took %s", methodName, time.Since(startedAt))
	}
}

func checkAbsolute(p string) error {
	if !strings.HasPrefix(p, "/") {
		return storagedriver.InvalidPathError{Path: p}
	}
	return nil
}

func (base *Base) ReadFile(ctx context.Context, p string) ([]byte, error) {
	if err := checkAbsolute(p); err != nil {
		return nil, err
	}
	defer durationDebugLog(ctx, "ReadFile")()
	return base.Adapter.ReadFile(ctx, p)
}

func (base *Base) WriteFile(ctx context.Context, p string, content []byte) error {
	if err := checkAbsolute(p); err != nil {
		return err
	}
	defer durationDebugLog(ctx, "WriteFile")()
	return base.Adapter.WriteFile(ctx, p, content)
}

func (base *Base) Mkdir(ctx context.Context, p string) error {
	if err := checkAbsolute(p); err != nil {
		return err
	}
	defer durationDebugLog(ctx, "Mkdir")()
	return base.Adapter.Mkdir(ctx, p)
}

func (base *Base) ReadDir(ctx context.Context, p string) ([]string, error) {
	if err := checkAbsolute(p); err != nil {
		return nil, err
	}
	defer durationDebugLog(ctx, "ReadDir")()
	return base.Adapter.ReadDir(ctx, p)
}

func (base *Base) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	if err := checkAbsolute(p); err != nil {
		return nil, err
	}
	defer durationDebugLog(ctx, "Stat")()
	return base.Adapter.Stat(ctx, p)
}

func (base *Base) Exists(ctx context.Context, p string) bool {
	if err := checkAbsolute(p); err != nil {
		return false
	}
	defer durationDebugLog(ctx, "Exists")()
	return base.Adapter.Exists(ctx, p)
}

func (base *Base) Remove(ctx context.Context, p string, opts storagedriver.RemoveOptions) error {
	if err := checkAbsolute(p); err != nil {
		return err
	}
	defer durationDebugLog(ctx, "Remove")()
	return base.Adapter.Remove(ctx, p, opts)
}

func (base *Base) Rename(ctx context.Context, src, dest string) error {
	if err := checkAbsolute(src); err != nil {
		return err
	}
	if err := checkAbsolute(dest); err != nil {
		return err
	}
	defer durationDebugLog(ctx, "Rename")()
	return base.Adapter.Rename(ctx, src, dest)
}

func (base *Base) Symlink(ctx context.Context, target, linkPath string) error {
	if err := checkAbsolute(linkPath); err != nil {
		return err
	}
	defer durationDebugLog(ctx, "Symlink")()
	return base.Adapter.Symlink(ctx, target, linkPath)
}

func (base *Base) Glob(ctx context.Context, rootDir, pattern string, opts storagedriver.GlobOptions) ([]string, error) {
	if err := checkAbsolute(rootDir); err != nil {
		return nil, err
	}
	defer durationDebugLog(ctx, "Glob")()
	return base.Adapter.Glob(ctx, rootDir, pattern, opts)
}

func (base *Base) Grep(ctx context.Context, rootDir string, regex *regexp.Regexp, opts storagedriver.GrepOptions) ([]string, error) {
	if err := checkAbsolute(rootDir); err != nil {
		return nil, err
	}
	defer durationDebugLog(ctx, "Grep")()
	return base.Adapter.Grep(ctx, rootDir, regex, opts)
}
