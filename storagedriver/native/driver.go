// Package native implements storagedriver.Adapter by wrapping OS
// filesystem primitives directly: the adapter's root directory is the
// native filesystem root, so all paths passed to it are used as-is.
package native

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"strconv"

	"github.com/radium-fs/radium-fs/storagedriver"
	"github.com/radium-fs/radium-fs/storagedriver/base"
	"github.com/radium-fs/radium-fs/storagedriver/factory"
)

const driverName = "native"

func init() {
	factory.Register(driverName, &nativeAdapterFactory{})
}

type nativeAdapterFactory struct{}

func (nativeAdapterFactory) Create(map[string]interface{}) (storagedriver.Adapter, error) {
	return New(), nil
}

type driver struct{}

type baseEmbed struct {
	base.Base
}

// Driver is a storagedriver.Adapter implementation backed by the native
// filesystem.
type Driver struct {
	baseEmbed
}

var _ storagedriver.Adapter = &Driver{}

// New constructs a new Driver.
func New() *Driver {
	return &Driver{baseEmbed: baseEmbed{Base: base.Base{Adapter: &driver{}}}}
}

func (d *driver) Name() string { return driverName }

func (d *driver) Hash(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

func wrapNotExist(p string, err error) error {
	if os.IsNotExist(err) {
		return storagedriver.PathNotFoundError{Path: p}
	}
	return err
}

func (d *driver) ReadFile(ctx context.Context, p string) ([]byte, error) {
	b, err := os.ReadFile(p)
	if err != nil {
		return nil, wrapNotExist(p, err)
	}
	return b, nil
}

// WriteFile writes through a temporary sibling file and renames it into
// place, so a reader never observes a partially written file.
func (d *driver) WriteFile(ctx context.Context, subPath string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(subPath), 0o777); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(subPath), ".radium-fs-write-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}

	if err := os.Rename(tmpName, subPath); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

func (d *driver) Mkdir(ctx context.Context, p string) error {
	return os.MkdirAll(p, 0o777)
}

func (d *driver) ReadDir(ctx context.Context, p string) ([]string, error) {
	entries, err := os.ReadDir(p)
	if err != nil {
		return nil, wrapNotExist(p, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names, nil
}

func (d *driver) Stat(ctx context.Context, subPath string) (storagedriver.FileInfo, error) {
	fi, err := os.Stat(subPath)
	if err != nil {
		return nil, wrapNotExist(subPath, err)
	}
	return storagedriver.FileInfoInternal{FileInfoFields: storagedriver.FileInfoFields{
		Path:    subPath,
		Size:    fi.Size(),
		ModTime: fi.ModTime(),
		IsDir:   fi.IsDir(),
	}}, nil
}

func (d *driver) Exists(ctx context.Context, p string) bool {
	_, err := os.Stat(p)
	return err == nil
}

func (d *driver) Remove(ctx context.Context, subPath string, opts storagedriver.RemoveOptions) error {
	if opts.Recursive {
		return os.RemoveAll(subPath)
	}
	if err := os.Remove(subPath); err != nil {
		return wrapNotExist(subPath, err)
	}
	return nil
}

func (d *driver) Rename(ctx context.Context, sourcePath, destPath string) error {
	if _, err := os.Stat(sourcePath); err != nil {
		return wrapNotExist(sourcePath, err)
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o777); err != nil {
		return err
	}
	return os.Rename(sourcePath, destPath)
}

func (d *driver) Symlink(ctx context.Context, target, linkPath string) error {
	if err := os.MkdirAll(filepath.Dir(linkPath), 0o777); err != nil {
		return err
	}
	return os.Symlink(target, linkPath)
}

func (d *driver) Glob(ctx context.Context, rootDir, pattern string, opts storagedriver.GlobOptions) ([]string, error) {
	var matches []string
	err := filepath.WalkDir(rootDir, func(p string, de os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if p == rootDir {
			return nil
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		ok, err := filepath.Match(pattern, rel)
		if err != nil {
			return err
		}
		if ok && !matchesAny(rel, opts.Ignore) {
			matches = append(matches, rel)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if opts.MaxResults > 0 && len(matches) > opts.MaxResults {
		matches = matches[:opts.MaxResults]
	}
	return matches, nil
}

func (d *driver) Grep(ctx context.Context, rootDir string, regex *regexp.Regexp, opts storagedriver.GrepOptions) ([]string, error) {
	var results []string
	err := filepath.WalkDir(rootDir, func(p string, de os.DirEntry, err error) error {
		if err != nil {
			if os.IsNotExist(err) {
				return nil
			}
			return err
		}
		if de.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(rootDir, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if len(opts.Include) > 0 && !matchesAny(rel, opts.Include) {
			return nil
		}

		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()

		scanner := bufio.NewScanner(f)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		lineNo := 0
		for scanner.Scan() {
			lineNo++
			line := scanner.Text()
			if regex.MatchString(line) {
				results = append(results, rel+":"+strconv.Itoa(lineNo)+":"+line)
				if opts.MaxResults > 0 && len(results) >= opts.MaxResults {
					return errStop
				}
			}
		}
		if err := scanner.Err(); err != nil && err != io.EOF {
			return err
		}
		return nil
	})
	if err != nil && err != errStop {
		return nil, err
	}
	return results, nil
}

var errStop = stopErr{}

type stopErr struct{}

func (stopErr) Error() string { return "grep: max results reached" }

func matchesAny(p string, patterns []string) bool {
	for _, pat := range patterns {
		if ok, _ := filepath.Match(pat, p); ok {
			return true
		}
	}
	return false
}
