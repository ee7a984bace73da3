package storagedriver

import (
	"fmt"
	"strings"
)

// PathNotFoundError is returned when operating on a nonexistent path.
type PathNotFoundError struct {
	Path string
}

func (err PathNotFoundError) Error() string {
	return fmt.Sprintf("path not found: %s", err.Path)
}

// InvalidPathError is returned when the provided path is malformed.
type InvalidPathError struct {
	Path string
}

func (err InvalidPathError) Error() string {
	return fmt.Sprintf("invalid path: %s", err.Path)
}

// NotADirectoryError is returned when a directory-only operation is
// attempted against a file.
type NotADirectoryError struct {
	Path string
}

func (err NotADirectoryError) Error() string {
	return fmt.Sprintf("not a directory: %s", err.Path)
}

// SymlinkLoopError is returned when symlink resolution exceeds the
// implementation's maximum resolution depth.
type SymlinkLoopError struct {
	Path string
}

func (err SymlinkLoopError) Error() string {
	return fmt.Sprintf("symlink loop detected resolving: %s", err.Path)
}

// Error records an error and the adapter name that generated it.
type Error struct {
	DriverName string
	Detail     error
}

func (e Error) Error() string {
	return fmt.Sprintf("%s: %s", e.DriverName, e.Detail)
}

func (e Error) Unwrap() error { return e.Detail }

// Errors aggregates multiple errors under a single adapter name, for
// reporting more than one failure from a single logical call (e.g. a
// failed write followed by a failed cleanup).
type Errors struct {
	DriverName string
	Errs       []error
}

func (e Errors) Error() string {
	switch len(e.Errs) {
	case 0:
		return fmt.Sprintf("%s: <nil>", e.DriverName)
	case 1:
		return fmt.Sprintf("%s: %s", e.DriverName, e.Errs[0])
	default:
		var b strings.Builder
		b.WriteString(e.DriverName)
		b.WriteString(": errors:\n")
		for _, err := range e.Errs {
			b.WriteString(err.Error())
			b.WriteByte('\n')
		}
		return b.String()
	}
}
