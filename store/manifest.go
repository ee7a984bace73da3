package store

import (
	"context"
	"encoding/json"
	"time"

	"github.com/radium-fs/radium-fs/storagedriver"
)

const manifestVersion = 1

// Scope controls where a dependency materializes and who owns its
// lifetime.
type Scope string

const (
	// ScopeShared builds the dependency under the store root, discoverable
	// by any parent that asks for the same (kind, input).
	ScopeShared Scope = "shared"
	// ScopeLocal builds the dependency under the parent's private
	// .radium-fs-local-deps subtree; it dies with the parent.
	ScopeLocal Scope = "local"
)

// Origin identifies what produced a space: the Kind name, the raw input,
// and (if the Kind has a CacheKey) the derived cache key.
type Origin struct {
	Kind     string      `json:"kind"`
	Input    interface{} `json:"input"`
	CacheKey interface{} `json:"cacheKey,omitempty"`
}

// DependencyRecord is one entry of a manifest's dependencies list, in the
// order dep() was called during the build.
type DependencyRecord struct {
	MountPath string `json:"mountPath"`
	Origin    Origin `json:"origin"`
	Scope     Scope  `json:"scope"`
	Export    string `json:"export,omitempty"`
}

// CommandRecord is one entry of a manifest's command history, appended on
// a successful send whose handler returned exports or metadata.
type CommandRecord struct {
	Command     interface{}            `json:"command"`
	ExecutedAt  time.Time              `json:"executedAt"`
	Result      *CommandResultPayload  `json:"result,omitempty"`
}

// CommandResultPayload is the persisted form of a CommandResult: both
// fields resolved, never nil maps.
type CommandResultPayload struct {
	Exports  map[string]string      `json:"exports"`
	Metadata map[string]interface{} `json:"metadata"`
}

// Manifest is the serialized, authoritative description of one
// materialized space.
type Manifest struct {
	Version      int                    `json:"version"`
	Origin       Origin                 `json:"origin"`
	Exports      map[string]string      `json:"exports"`
	Dependencies []DependencyRecord     `json:"dependencies,omitempty"`
	Commands     []CommandRecord        `json:"commands,omitempty"`
	Metadata     map[string]interface{} `json:"metadata"`
	CreatedAt    time.Time              `json:"createdAt"`
	UpdatedAt    time.Time              `json:"updatedAt"`
}

func readManifest(ctx context.Context, adapter storagedriver.Adapter, path string) (Manifest, error) {
	b, err := adapter.ReadFile(ctx, path)
	if err != nil {
		return Manifest{}, err
	}
	var m Manifest
	if err := json.Unmarshal(b, &m); err != nil {
		return Manifest{}, AdapterIOError{Op: "unmarshal manifest", Err: err}
	}
	return m, nil
}

func writeManifest(ctx context.Context, adapter storagedriver.Adapter, path string, m Manifest) error {
	b, err := json.Marshal(m)
	if err != nil {
		return AdapterIOError{Op: "marshal manifest", Err: err}
	}
	if err := adapter.WriteFile(ctx, path, b); err != nil {
		return AdapterIOError{Op: "write manifest", Err: err}
	}
	return nil
}

// normalizeExports applies the §4.5.1(9a) defaulting rule to whatever an
// InitResult returned.
func normalizeExports(exports map[string]string) map[string]string {
	if len(exports) == 0 {
		return map[string]string{".": "."}
	}
	if _, ok := exports["."]; !ok {
		// Callers are expected to have set "." themselves; this keeps the
		// invariant "exports always contains at least the key '.'" even if
		// they didn't.
		out := make(map[string]string, len(exports)+1)
		for k, v := range exports {
			out[k] = v
		}
		out["."] = "."
		return out
	}
	return exports
}

func normalizeMetadata(m map[string]interface{}) map[string]interface{} {
	if m == nil {
		return map[string]interface{}{}
	}
	return m
}
