package store

import (
	"path"
	"strings"

	"github.com/radium-fs/radium-fs/canon"
	"github.com/radium-fs/radium-fs/storagedriver"
)

const (
	dataDirName    = ".radium-fs-data"
	localDepsDir   = ".radium-fs-local-deps"
	manifestName   = ".radium-fs-manifest.json"
	contentDirName = "space"
	privateDirName = "local"
	tempDirPrefix  = ".tmp-"
)

// dataID computes the deterministic identity of (kindName, effective input):
// SHA-256(kindName || 0x00 || canonical(effectiveInput)).
func dataID(adapter storagedriver.Adapter, kindName string, effectiveInput interface{}) string {
	buf := append([]byte(kindName), 0x00)
	buf = append(buf, canon.Marshal(effectiveInput)...)
	return adapter.Hash(buf)
}

// shard returns the first two hex characters of a dataId, used as an
// intermediate fan-out directory.
func shard(id string) string {
	if len(id) < 2 {
		return id
	}
	return id[:2]
}

// layout resolves every on-disk path that matters for one space.
type layout struct {
	dataDir    string // .../<kindName>/<shard>/<dataId>
	contentDir string // dataDir/space
	privateDir string // dataDir/local
	manifest   string // dataDir/.radium-fs-manifest.json
}

// sharedLayout computes the layout of a space stored directly under the
// store root.
func sharedLayout(storeRoot, kindName, id string) layout {
	dataDir := path.Join(storeRoot, dataDirName, kindName, shard(id), id)
	return layoutFor(dataDir)
}

// localLayout computes the layout of a space scoped to a parent's private
// dependency subtree, where parentDataDir is the parent's own data
// directory (its final location, or its temp location while building).
func localLayout(parentDataDir, kindName, id string) layout {
	dataDir := path.Join(parentDataDir, localDepsDir, kindName, shard(id), id)
	return layoutFor(dataDir)
}

func layoutFor(dataDir string) layout {
	return layout{
		dataDir:    dataDir,
		contentDir: path.Join(dataDir, contentDirName),
		privateDir: path.Join(dataDir, privateDirName),
		manifest:   path.Join(dataDir, manifestName),
	}
}

// tempDirFor returns a fresh, unique temp directory path sibling to l's
// data directory.
func tempDirFor(l layout, rand8 string) string {
	return path.Join(path.Dir(l.dataDir), tempDirPrefix+path.Base(l.dataDir)+"-"+rand8)
}

// isTempName reports whether name, a single path segment, looks like a temp
// directory, so list()/ReadDir scans can skip it.
func isTempName(name string) bool {
	return strings.HasPrefix(name, tempDirPrefix)
}

// relativeSymlinkTarget computes the relative path from the directory
// containing link to target, by eliminating the common path prefix and
// walking up with ".." for whatever remains of link's directory.
func relativeSymlinkTarget(link, target string) string {
	linkDir := path.Dir(path.Clean(link))
	rel, err := relPath(linkDir, path.Clean(target))
	if err != nil || rel == "" {
		return "."
	}
	return rel
}

// relPath is a pure, path-package implementation of the relative path from
// base to target, both absolute and slash-separated.
func relPath(base, target string) (string, error) {
	baseParts := splitClean(base)
	targetParts := splitClean(target)

	i := 0
	for i < len(baseParts) && i < len(targetParts) && baseParts[i] == targetParts[i] {
		i++
	}

	var parts []string
	for range baseParts[i:] {
		parts = append(parts, "..")
	}
	parts = append(parts, targetParts[i:]...)

	if len(parts) == 0 {
		return ".", nil
	}
	return path.Join(parts...), nil
}

func splitClean(p string) []string {
	p = path.Clean(p)
	if p == "/" || p == "." {
		return nil
	}
	return strings.Split(strings.TrimPrefix(p, "/"), "/")
}
