// Package testsuites provides a conformance suite runnable against any
// storagedriver.Adapter implementation.
package testsuites

import (
	"context"
	"fmt"
	"math/rand"
	"path"
	"regexp"
	"testing"

	"github.com/radium-fs/radium-fs/storagedriver"
	"github.com/stretchr/testify/suite"
)

// SkipCheck returns a non-empty reason to skip the suite, or "" to run it.
type SkipCheck func() string

// NeverSkip always runs the suite.
func NeverSkip() string { return "" }

// AdapterConstructor builds a fresh Adapter for a single test.
type AdapterConstructor func() (storagedriver.Adapter, error)

// AdapterSuite is a testify suite exercising the full Adapter contract.
type AdapterSuite struct {
	suite.Suite
	Adapter     storagedriver.Adapter
	constructor AdapterConstructor
	skipCheck   SkipCheck
	rootParent  string
	ctx         context.Context
	root        string
}

// NewAdapterSuite constructs a suite that builds a new adapter instance
// for each test via constructor, rooted under a random directory so tests
// don't collide with each other on a shared native filesystem. rootParent
// is the directory under which that random root is created ("/" for the
// in-memory adapter, a real temp directory for the native one).
func NewAdapterSuite(constructor AdapterConstructor, skipCheck SkipCheck, rootParent string) *AdapterSuite {
	if rootParent == "" {
		rootParent = "/"
	}
	return &AdapterSuite{constructor: constructor, skipCheck: skipCheck, rootParent: rootParent}
}

func (s *AdapterSuite) SetupTest() {
	if reason := s.skipCheck(); reason != "" {
		s.T().Skip(reason)
	}
	a, err := s.constructor()
	s.Require().NoError(err)
	s.Adapter = a
	s.ctx = context.Background()
	s.root = path.Join(s.rootParent, randomName(8))
	s.Require().NoError(s.Adapter.Mkdir(s.ctx, s.root))
}

func (s *AdapterSuite) TearDownTest() {
	if s.Adapter != nil {
		_ = s.Adapter.Remove(s.ctx, s.root, storagedriver.RemoveOptions{Recursive: true})
	}
}

func (s *AdapterSuite) p(parts ...string) string {
	return path.Join(append([]string{s.root}, parts...)...)
}

func (s *AdapterSuite) TestWriteReadFile() {
	p := s.p("hello.txt")
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, p, []byte("hello")))
	b, err := s.Adapter.ReadFile(s.ctx, p)
	s.Require().NoError(err)
	s.Equal("hello", string(b))
}

func (s *AdapterSuite) TestWrittenBytesAreCopied() {
	p := s.p("copy.txt")
	buf := []byte("original")
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, p, buf))
	buf[0] = 'X'
	b, err := s.Adapter.ReadFile(s.ctx, p)
	s.Require().NoError(err)
	s.Equal("original", string(b))
}

func (s *AdapterSuite) TestReadMissingFileFails() {
	_, err := s.Adapter.ReadFile(s.ctx, s.p("missing.txt"))
	s.Require().Error(err)
	s.IsType(storagedriver.PathNotFoundError{}, err)
}

func (s *AdapterSuite) TestMkdirIdempotent() {
	d := s.p("a", "b")
	s.Require().NoError(s.Adapter.Mkdir(s.ctx, d))
	s.Require().NoError(s.Adapter.Mkdir(s.ctx, d))
	fi, err := s.Adapter.Stat(s.ctx, d)
	s.Require().NoError(err)
	s.True(fi.IsDir())
}

func (s *AdapterSuite) TestReadDirListsChildren() {
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("dir", "one.txt"), []byte("1")))
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("dir", "two.txt"), []byte("2")))
	names, err := s.Adapter.ReadDir(s.ctx, s.p("dir"))
	s.Require().NoError(err)
	s.ElementsMatch([]string{"one.txt", "two.txt"}, names)
}

func (s *AdapterSuite) TestExistsNeverErrors() {
	s.False(s.Adapter.Exists(s.ctx, s.p("nope")))
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("yes"), []byte("y")))
	s.True(s.Adapter.Exists(s.ctx, s.p("yes")))
}

func (s *AdapterSuite) TestRemoveRecursive() {
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("tree", "leaf.txt"), []byte("x")))
	s.Require().NoError(s.Adapter.Remove(s.ctx, s.p("tree"), storagedriver.RemoveOptions{Recursive: true}))
	s.False(s.Adapter.Exists(s.ctx, s.p("tree")))
	s.False(s.Adapter.Exists(s.ctx, s.p("tree", "leaf.txt")))
}

func (s *AdapterSuite) TestRenameMovesSubtree() {
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("src", "f.txt"), []byte("data")))
	s.Require().NoError(s.Adapter.Rename(s.ctx, s.p("src"), s.p("dst")))
	s.False(s.Adapter.Exists(s.ctx, s.p("src")))
	b, err := s.Adapter.ReadFile(s.ctx, s.p("dst", "f.txt"))
	s.Require().NoError(err)
	s.Equal("data", string(b))
}

func (s *AdapterSuite) TestSymlinkResolvesOnRead() {
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("target.txt"), []byte("via-link")))
	s.Require().NoError(s.Adapter.Symlink(s.ctx, "target.txt", s.p("link.txt")))
	b, err := s.Adapter.ReadFile(s.ctx, s.p("link.txt"))
	s.Require().NoError(err)
	s.Equal("via-link", string(b))
}

func (s *AdapterSuite) TestGlobMatchesPattern() {
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("a.go"), []byte("x")))
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("b.txt"), []byte("x")))
	matches, err := s.Adapter.Glob(s.ctx, s.root, "*.go", storagedriver.GlobOptions{})
	s.Require().NoError(err)
	s.Equal([]string{"a.go"}, matches)
}

func (s *AdapterSuite) TestGrepFindsMatchingLines() {
	s.Require().NoError(s.Adapter.WriteFile(s.ctx, s.p("f.txt"), []byte("alpha\nbeta\nalphabet\n")))
	re := regexp.MustCompile("^alpha$")
	results, err := s.Adapter.Grep(s.ctx, s.root, re, storagedriver.GrepOptions{})
	s.Require().NoError(err)
	s.Require().Len(results, 1)
	s.Contains(results[0], "f.txt:1:alpha")
}

func randomName(n int) string {
	const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.Intn(len(alphabet))]
	}
	return fmt.Sprintf("t-%s", b)
}

// RunAdapterSuite is a convenience entry point for adapter packages whose
// test roots can live directly under "/" (e.g. the in-memory adapter).
func RunAdapterSuite(t *testing.T, constructor AdapterConstructor, skipCheck SkipCheck) {
	suite.Run(t, NewAdapterSuite(constructor, skipCheck, "/"))
}

// RunAdapterSuiteIn is like RunAdapterSuite but roots every test directory
// under rootParent, which adapters backed by a real filesystem should set
// to a throwaway directory such as one from t.TempDir().
func RunAdapterSuiteIn(t *testing.T, constructor AdapterConstructor, skipCheck SkipCheck, rootParent string) {
	suite.Run(t, NewAdapterSuite(constructor, skipCheck, rootParent))
}
