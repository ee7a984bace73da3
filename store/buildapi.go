package store

import (
	"bytes"
	"context"
	"path"
	"regexp"

	"github.com/radium-fs/radium-fs/storagedriver"
)

// ReadFileOptions narrows ContentAPI.ReadFile to a line range.
type ReadFileOptions struct {
	StartLine int // 1-based; values below 1 are clamped to 1
	MaxLines  int // 0 means unbounded
}

// ReadDirOptions narrows ContentAPI.ReadDir.
type ReadDirOptions struct {
	Recursive  bool
	MaxResults int
}

// fileAPI is the shared implementation behind LocalAPI and ContentAPI: a
// set of file operations rooted at an absolute directory.
type fileAPI struct {
	ctx     context.Context
	adapter storagedriver.Adapter
	root    string
}

func (f fileAPI) abs(p string) string {
	return path.Join(f.root, p)
}

func (f fileAPI) WriteFile(p string, content []byte) error {
	if err := f.adapter.WriteFile(f.ctx, f.abs(p), content); err != nil {
		return AdapterIOError{Op: "writeFile", Err: err}
	}
	return nil
}

func (f fileAPI) ReadFile(p string, opts ReadFileOptions) ([]byte, error) {
	b, err := f.adapter.ReadFile(f.ctx, f.abs(p))
	if err != nil {
		return nil, err
	}
	if opts.StartLine <= 0 && opts.MaxLines <= 0 {
		return b, nil
	}
	lines := bytes.Split(b, []byte("\n"))
	start := opts.StartLine - 1
	if start < 0 {
		start = 0
	}
	if start > len(lines) {
		start = len(lines)
	}
	end := len(lines)
	if opts.MaxLines > 0 && start+opts.MaxLines < end {
		end = start + opts.MaxLines
	}
	return bytes.Join(lines[start:end], []byte("\n")), nil
}

func (f fileAPI) Mkdir(p string) error {
	if err := f.adapter.Mkdir(f.ctx, f.abs(p)); err != nil {
		return AdapterIOError{Op: "mkdir", Err: err}
	}
	return nil
}

func (f fileAPI) ReadDir(p string, opts ReadDirOptions) ([]string, error) {
	root := f.abs(p)
	if !opts.Recursive {
		names, err := f.adapter.ReadDir(f.ctx, root)
		if err != nil {
			return nil, err
		}
		if opts.MaxResults > 0 && len(names) > opts.MaxResults {
			names = names[:opts.MaxResults]
		}
		return names, nil
	}

	var out []string
	var walk func(rel string) error
	walk = func(rel string) error {
		names, err := f.adapter.ReadDir(f.ctx, path.Join(root, rel))
		if err != nil {
			return err
		}
		for _, name := range names {
			childRel := path.Join(rel, name)
			out = append(out, childRel)
			if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
				return nil
			}
			fi, err := f.adapter.Stat(f.ctx, path.Join(root, childRel))
			if err == nil && fi.IsDir() {
				if err := walk(childRel); err != nil {
					return err
				}
			}
			if opts.MaxResults > 0 && len(out) >= opts.MaxResults {
				return nil
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	if opts.MaxResults > 0 && len(out) > opts.MaxResults {
		out = out[:opts.MaxResults]
	}
	return out, nil
}

func (f fileAPI) Stat(p string) (storagedriver.FileInfo, error) {
	return f.adapter.Stat(f.ctx, f.abs(p))
}

func (f fileAPI) Remove(p string, opts storagedriver.RemoveOptions) error {
	if err := f.adapter.Remove(f.ctx, f.abs(p), opts); err != nil {
		return AdapterIOError{Op: "remove", Err: err}
	}
	return nil
}

// LocalAPI exposes the subset of file operations allowed against a space's
// private directory. Deliberately missing copy/move/glob/grep: the private
// directory is not part of the user-level search surface.
type LocalAPI struct {
	fileAPI
}

// ContentAPI exposes the full file-operation surface against a space's
// content directory.
type ContentAPI struct {
	fileAPI
}

// Copy duplicates the file or directory at src to dest, both relative to
// the content directory.
func (c ContentAPI) Copy(src, dest string) error {
	return copyTree(c.ctx, c.adapter, c.abs(src), c.abs(dest))
}

// Move relocates src to dest, both relative to the content directory.
func (c ContentAPI) Move(src, dest string) error {
	if err := c.adapter.Rename(c.ctx, c.abs(src), c.abs(dest)); err != nil {
		return AdapterIOError{Op: "move", Err: err}
	}
	return nil
}

// Glob returns paths relative to the content directory matching pattern.
func (c ContentAPI) Glob(pattern string, opts storagedriver.GlobOptions) ([]string, error) {
	return c.adapter.Glob(c.ctx, c.root, pattern, opts)
}

// Grep returns "relpath:line:content" matches under the content directory.
func (c ContentAPI) Grep(regex *regexp.Regexp, opts storagedriver.GrepOptions) ([]string, error) {
	return c.adapter.Grep(c.ctx, c.root, regex, opts)
}

func copyTree(ctx context.Context, adapter storagedriver.Adapter, src, dest string) error {
	fi, err := adapter.Stat(ctx, src)
	if err != nil {
		return err
	}
	if !fi.IsDir() {
		b, err := adapter.ReadFile(ctx, src)
		if err != nil {
			return err
		}
		return adapter.WriteFile(ctx, dest, b)
	}

	if err := adapter.Mkdir(ctx, dest); err != nil {
		return err
	}
	names, err := adapter.ReadDir(ctx, src)
	if err != nil {
		return err
	}
	for _, name := range names {
		if err := copyTree(ctx, adapter, path.Join(src, name), path.Join(dest, name)); err != nil {
			return err
		}
	}
	return nil
}

// CommandAPI exposes the full file-operation surface against a space's
// content directory for the duration of an onCommand invocation. Unlike
// BuildAPI, it is bound to the space's permanent directory, not a temp one.
type CommandAPI struct {
	fileAPI
}

// Copy duplicates the file or directory at src to dest, both relative to
// the content directory.
func (c CommandAPI) Copy(src, dest string) error {
	return copyTree(c.ctx, c.adapter, c.abs(src), c.abs(dest))
}

// Move relocates src to dest, both relative to the content directory.
func (c CommandAPI) Move(src, dest string) error {
	if err := c.adapter.Rename(c.ctx, c.abs(src), c.abs(dest)); err != nil {
		return AdapterIOError{Op: "move", Err: err}
	}
	return nil
}

// Glob returns paths relative to the content directory matching pattern.
func (c CommandAPI) Glob(pattern string, opts storagedriver.GlobOptions) ([]string, error) {
	return c.adapter.Glob(c.ctx, c.root, pattern, opts)
}

// Grep returns "relpath:line:content" matches under the content directory.
func (c CommandAPI) Grep(regex *regexp.Regexp, opts storagedriver.GrepOptions) ([]string, error) {
	return c.adapter.Grep(c.ctx, c.root, regex, opts)
}

// DepOptions narrows a BuildAPI.Dep call.
type DepOptions struct {
	// Scope defaults to ScopeShared.
	Scope Scope
	// Export selects which export of the dependency to mount. "" or "."
	// means the default export; "*" bypasses the exports map entirely and
	// mounts the dependency's content directory root.
	Export string
	// Runtime is shallow-merged over the parent's runtime value for the
	// nested ensure() call this dep triggers.
	Runtime map[string]interface{}
}

// BuildAPI is bound to a space's temporary build directory for the
// duration of its Kind's onInit call. It disappears once the build
// completes.
type BuildAPI struct {
	ContentAPI

	// Path is the absolute path to the content directory inside the temp
	// tree.
	Path string
	// Runtime is the value threaded through from the Store (for a root
	// ensure) or shallow-merged with DepOptions.Runtime (for a nested dep).
	Runtime interface{}
	// Local is rooted at the build's private directory.
	Local LocalAPI

	store      *Store
	anchor     string // this build's own data/temp dir, used as the local-deps anchor for its own local deps
	deps       *[]DependencyRecord
	emitCustom func(payload interface{})
}

// Emit delivers payload to the global custom-event channel. Per §4.4,
// custom events raised during onInit reach only the global channel: the
// space handle (and therefore its per-space custom subscription) doesn't
// exist yet.
func (b *BuildAPI) Emit(payload interface{}) {
	if b.emitCustom != nil {
		b.emitCustom(payload)
	}
}

// Dep recursively ensures a dependency and mounts it into the parent's
// content directory at mountPath, returning the mount's absolute path.
func (b *BuildAPI) Dep(ctx context.Context, mountPath string, kind Kind, input interface{}, opts DepOptions) (string, error) {
	scope := opts.Scope
	if scope == "" {
		scope = ScopeShared
	}

	runtime := mergeRuntime(b.Runtime, opts.Runtime)

	localAnchor := ""
	if scope == ScopeLocal {
		localAnchor = b.anchor
	}

	child, err := b.store.ensureInternal(ctx, kind, input, localAnchor, runtime, EnsureOptions{})
	if err != nil {
		return "", err
	}

	export := opts.Export
	if export == "" {
		export = "."
	}

	var targetAbs string
	if export == "*" {
		targetAbs = child.contentDir
	} else {
		rel, ok := child.Manifest.Exports[export]
		if !ok {
			available := make([]string, 0, len(child.Manifest.Exports))
			for name := range child.Manifest.Exports {
				available = append(available, name)
			}
			return "", ExportNotFoundError{Kind: kind.Name, Export: export, Available: available}
		}
		targetAbs = path.Join(child.contentDir, rel)
	}

	linkPath := path.Join(b.Path, mountPath)
	relTarget := relativeSymlinkTarget(linkPath, targetAbs)
	if err := b.store.adapter.Symlink(ctx, relTarget, linkPath); err != nil {
		return "", AdapterIOError{Op: "symlink", Err: err}
	}

	record := DependencyRecord{
		MountPath: mountPath,
		Origin: Origin{
			Kind:     kind.Name,
			Input:    input,
			CacheKey: cacheKeyValueOf(kind, input),
		},
		Scope:  scope,
		Export: opts.Export,
	}
	*b.deps = append(*b.deps, record)

	return linkPath, nil
}

func cacheKeyValueOf(k Kind, input interface{}) interface{} {
	if k.CacheKey == nil {
		return nil
	}
	return k.CacheKey(input)
}

func mergeRuntime(parent interface{}, extra map[string]interface{}) interface{} {
	if len(extra) == 0 {
		return parent
	}
	parentMap, _ := parent.(map[string]interface{})
	merged := make(map[string]interface{}, len(parentMap)+len(extra))
	for k, v := range parentMap {
		merged[k] = v
	}
	for k, v := range extra {
		merged[k] = v
	}
	return merged
}
