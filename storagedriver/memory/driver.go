// Package memory implements storagedriver.Adapter backed by a single flat
// map from absolute path to entry. Intended for tests and for hosting
// environments (such as a browser) with no native filesystem.
package memory

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/radium-fs/radium-fs/storagedriver"
	"github.com/radium-fs/radium-fs/storagedriver/base"
	"github.com/radium-fs/radium-fs/storagedriver/factory"
)

const driverName = "memory"

// maxSymlinkDepth bounds path resolution so that a symlink cycle fails
// fast instead of looping forever.
const maxSymlinkDepth = 32

func init() {
	factory.Register(driverName, &memoryAdapterFactory{})
}

type memoryAdapterFactory struct{}

func (memoryAdapterFactory) Create(map[string]interface{}) (storagedriver.Adapter, error) {
	return New(), nil
}

type entryKind int

const (
	kindFile entryKind = iota
	kindDir
	kindSymlink
)

type entry struct {
	kind    entryKind
	content []byte
	target  string // symlink only
	modTime time.Time
}

type driver struct {
	mu      sync.RWMutex
	storage map[string]entry
}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.Adapter implementation backed by a local map.
type Driver struct {
	baseEmbed
}

var _ storagedriver.Adapter = &Driver{}

// New constructs a new Driver with an empty root directory.
func New() *Driver {
	d := &driver{
		storage: map[string]entry{
			"/": {kind: kindDir, modTime: time.Now()},
		},
	}
	return &Driver{baseEmbed: baseEmbed{Base: base.Base{Adapter: d}}}
}

func (d *driver) Name() string { return driverName }

func (d *driver) Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// resolve walks path component by component, substituting symlink targets
// as they're encountered, and returns the fully resolved path. It does not
// require the final path to exist. steps bounds total substitutions across
// the whole walk (not just at the leaf) to catch loops built from several
// symlinks chained together.
func (d *driver) resolve(p string) (string, error) {
	clean := path.Clean(p)
	if clean == "/" {
		return "/", nil
	}

	components := strings.Split(strings.TrimPrefix(clean, "/"), "/")
	resolved := "/"
	steps := 0

	for _, comp := range components {
		candidate := path.Join(resolved, comp)
		for {
			e, ok := d.storage[candidate]
			if !ok || e.kind != kindSymlink {
				break
			}
			steps++
			if steps > maxSymlinkDepth {
				return "", storagedriver.SymlinkLoopError{Path: p}
			}
			target := e.target
			if !path.IsAbs(target) {
				target = path.Join(path.Dir(candidate), target)
			}
			candidate = path.Clean(target)
		}
		resolved = candidate
	}

	return resolved, nil
}

func (d *driver) ensureParents(p string) {
	dir := path.Dir(p)
	for dir != "/" && dir != "." {
		if _, ok := d.storage[dir]; !ok {
			d.storage[dir] = entry{kind: kindDir, modTime: time.Now()}
		}
		dir = path.Dir(dir)
	}
	if _, ok := d.storage["/"]; !ok {
		d.storage["/"] = entry{kind: kindDir, modTime: time.Now()}
	}
}

func (d *driver) ReadFile(ctx context.Context, p string) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rp, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	e, ok := d.storage[rp]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	if e.kind == kindDir {
		return nil, fmt.Errorf("memory: %s is a directory", p)
	}
	out := make([]byte, len(e.content))
	copy(out, e.content)
	return out, nil
}

func (d *driver) WriteFile(ctx context.Context, p string, content []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rp, err := d.resolve(p)
	if err != nil {
		return err
	}
	if e, ok := d.storage[rp]; ok && e.kind == kindDir {
		return fmt.Errorf("memory: %s is a directory", p)
	}

	cp := make([]byte, len(content))
	copy(cp, content)

	d.ensureParents(rp)
	d.storage[rp] = entry{kind: kindFile, content: cp, modTime: time.Now()}
	return nil
}

func (d *driver) Mkdir(ctx context.Context, p string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rp, err := d.resolve(p)
	if err != nil {
		return err
	}
	if e, ok := d.storage[rp]; ok {
		if e.kind != kindDir {
			return storagedriver.NotADirectoryError{Path: p}
		}
		return nil
	}
	d.ensureParents(rp)
	d.storage[rp] = entry{kind: kindDir, modTime: time.Now()}
	return nil
}

func (d *driver) children(dir string) []string {
	prefix := dir
	if prefix != "/" {
		prefix += "/"
	}
	seen := map[string]struct{}{}
	for k := range d.storage {
		if k == dir || !strings.HasPrefix(k, prefix) {
			continue
		}
		rest := strings.TrimPrefix(k, prefix)
		if i := strings.Index(rest, "/"); i >= 0 {
			rest = rest[:i]
		}
		if rest == "" {
			continue
		}
		seen[rest] = struct{}{}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (d *driver) ReadDir(ctx context.Context, p string) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rp, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	e, ok := d.storage[rp]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}
	if e.kind != kindDir {
		return nil, storagedriver.NotADirectoryError{Path: p}
	}
	return d.children(rp), nil
}

func (d *driver) Stat(ctx context.Context, p string) (storagedriver.FileInfo, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rp, err := d.resolve(p)
	if err != nil {
		return nil, err
	}
	e, ok := d.storage[rp]
	if !ok {
		return nil, storagedriver.PathNotFoundError{Path: p}
	}

	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
		Path:    p,
		Size:    int64(len(e.content)),
		ModTime: e.modTime,
		IsDir:   e.kind == kindDir,
	}}, nil
}

func (d *driver) Exists(ctx context.Context, p string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rp, err := d.resolve(p)
	if err != nil {
		return false
	}
	_, ok := d.storage[rp]
	return ok
}

func (d *driver) Remove(ctx context.Context, p string, opts storagedriver.RemoveOptions) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rp, err := d.resolve(p)
	if err != nil {
		return err
	}
	if _, ok := d.storage[rp]; !ok {
		return storagedriver.PathNotFoundError{Path: p}
	}

	if !opts.Recursive {
		if len(d.children(rp)) > 0 {
			return fmt.Errorf("memory: %s is not empty", p)
		}
		delete(d.storage, rp)
		return nil
	}

	prefix := rp
	if prefix != "/" {
		prefix += "/"
	}
	for k := range d.storage {
		if k == rp || strings.HasPrefix(k, prefix) {
			delete(d.storage, k)
		}
	}
	return nil
}

func (d *driver) Rename(ctx context.Context, src, dest string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	rsrc, err := d.resolve(src)
	if err != nil {
		return err
	}
	if _, ok := d.storage[rsrc]; !ok {
		return storagedriver.PathNotFoundError{Path: src}
	}
	rdest, err := d.resolve(dest)
	if err != nil {
		return err
	}
	if _, ok := d.storage[rdest]; ok {
		return fmt.Errorf("memory: rename destination exists: %s", dest)
	}

	d.ensureParents(rdest)

	prefix := rsrc
	if prefix != "/" {
		prefix += "/"
	}
	moved := map[string]entry{}
	for k, v := range d.storage {
		if k == rsrc {
			moved[rdest] = v
		} else if strings.HasPrefix(k, prefix) {
			moved[rdest+strings.TrimPrefix(k, rsrc)] = v
		} else {
			continue
		}
		delete(d.storage, k)
	}
	for k, v := range moved {
		d.storage[k] = v
	}
	return nil
}

func (d *driver) Symlink(ctx context.Context, target, linkPath string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	clean := path.Clean(linkPath)
	d.ensureParents(clean)
	d.storage[clean] = entry{kind: kindSymlink, target: target, modTime: time.Now()}
	return nil
}

func (d *driver) Glob(ctx context.Context, rootDir, pattern string, opts storagedriver.GlobOptions) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rroot, err := d.resolve(rootDir)
	if err != nil {
		return nil, err
	}
	if _, ok := d.storage[rroot]; !ok {
		return nil, storagedriver.PathNotFoundError{Path: rootDir}
	}

	prefix := rroot
	if prefix != "/" {
		prefix += "/"
	}

	var matches []string
	for k := range d.storage {
		if !strings.HasPrefix(k, prefix) {
			continue
		}
		rel := strings.TrimPrefix(k, prefix)
		ok, err := path.Match(pattern, rel)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		if matchesAny(rel, opts.Ignore) {
			continue
		}
		matches = append(matches, rel)
	}
	sort.Strings(matches)
	if opts.MaxResults > 0 && len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

func (d *driver) Grep(ctx context.Context, rootDir string, regex *regexp.Regexp, opts storagedriver.GrepOptions) ([]string, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	rroot, err := d.resolve(rootDir)
	if err != nil {
		return nil, err
	}

	prefix := rroot
	if prefix != "/" {
		prefix += "/"
	}

	var paths []string
	for k, e := range d.storage {
		if e.kind != kindFile {
			continue
		}
		if k != rroot && !strings.HasPrefix(k, prefix) {
			continue
		}
		paths = append(paths, k)
	}
	sort.Strings(paths)

	var results []string
	for _, k := range paths {
		rel := strings.TrimPrefix(k, prefix)
		if rel == "" {
			rel = path.Base(k)
		}
		if len(opts.Include) > 0 && !matchesAny(rel, opts.Include) {
			continue
		}
		lines := strings.Split(string(d.storage[k].content), "\n")
		for i, line := range lines {
			if regex.MatchString(line) {
				results = append(results, fmt.Sprintf("%s:%d:%s", rel, i+1, line))
				if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
					return results, nil
				}
			}
		}
	}
	return results, nil
}

func matchesAny(p string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := path.Match(pat, p); ok {
			return true
		}
	}
	return false
}
