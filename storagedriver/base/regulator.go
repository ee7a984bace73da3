package base

import (
	"context"
	"fmt"
	"regexp"
	"strconv"

	storagedriver "github.com/radium-fs/radium-fs/storagedriver"
)

// regulator limits the number of concurrent calls made to an underlying
// Adapter using a buffered channel as a semaphore.
type regulator struct {
	storagedriver.Adapter
	limit chan struct{}
}

// NewRegulator wraps adapter so that no more than maxConcurrency calls run
// against it at once. A maxConcurrency of 0 disables the limit.
func NewRegulator(adapter storagedriver.Adapter, maxConcurrency uint64) storagedriver.Adapter {
	if maxConcurrency == 0 {
		return adapter
	}
	return &regulator{
		Adapter: adapter,
		limit:   make(chan struct{}, maxConcurrency),
	}
}

func (r *regulator) enter() func() {
	r.limit <- struct{}{}
	return func() { <-r.limit }
}

func (r *regulator) ReadFile(ctx context.Context, p string) ([]byte, error) {
	defer r.enter()()
	return r.Adapter.ReadFile(ctx, p)
}

func (r *regulator) WriteFile(ctx context.Context, p string, content []byte) error {
	defer r.enter()()
	return r.Adapter.WriteFile(ctx, p, content)
}

func (r *regulator) Mkdir(ctx context.Context, p string) error {
	defer r.enter()()
	return r.Adapter.Mkdir(ctx, p)
}

func (r *regulator) ReadDir(ctx context.Context, p string) ([]string, error) {
	defer r.enter()()
	return r.Adapter.ReadDir(ctx, p)
}

func (r *regulator) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	defer r.enter()()
	return r.Adapter.Stat(ctx, p)
}

func (r *regulator) Exists(ctx context.Context, p string) bool {
	defer r.enter()()
	return r.Adapter.Exists(ctx, p)
}

func (r *regulator) Remove(ctx context.Context, p string, opts storagedriver.RemoveOptions) error {
	defer r.enter()()
	return r.Adapter.Remove(ctx, p, opts)
}

func (r *regulator) Rename(ctx context.Context, src, dest string) error {
	defer r.enter()()
	return r.Adapter.Rename(ctx, src, dest)
}

func (r *regulator) Symlink(ctx context.Context, target, linkPath string) error {
	defer r.enter()()
	return r.Adapter.Symlink(ctx, target, linkPath)
}

func (r *regulator) Glob(ctx context.Context, rootDir, pattern string, opts storagedriver.GlobOptions) ([]string, error) {
	defer r.enter()()
	return r.Adapter.Glob(ctx, rootDir, pattern, opts)
}

func (r *regulator) Grep(ctx context.Context, rootDir string, regex *regexp.Regexp, opts storagedriver.GrepOptions) ([]string, error) {
	defer r.enter()()
	return r.Adapter.Grep(ctx, rootDir, regex, opts)
}

// GetLimitFromParameter takes a parameter in the generic configuration
// format ("parameters map[string]interface{}") and converts it to a
// uint64, clamped to least min, falling back to def when the parameter is
// absent.
func GetLimitFromParameter(param interface{}, min, def uint64) (uint64, error) {
	limit := def

	switch v := param.(type) {
	case string:
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parameter must be an integer, %q invalid", v)
		}
		limit = n
	case uint64:
		limit = v
	case int:
		if v < 0 {
			return 0, fmt.Errorf("parameter must be a positive integer, %d invalid", v)
		}
		limit = uint64(v)
	case nil:
		// use def
	default:
		return 0, fmt.Errorf("invalid value for limit parameter: %#v", param)
	}

	if limit < min {
		return min, nil
	}
	return limit, nil
}
