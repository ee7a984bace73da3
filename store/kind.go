package store

import "context"

// CacheKeyFunc reduces an input to the subset of it that actually
// determines identity. A nil CacheKeyFunc means the whole input
// participates in hashing.
type CacheKeyFunc func(input interface{}) interface{}

// InitResult is what onInit returns on success.
type InitResult struct {
	// Exports maps export name to a path relative to the space's content
	// directory. A nil map defaults to {".": "."}.
	Exports map[string]string
	// Metadata is opaque, user-defined data persisted on the manifest.
	Metadata map[string]interface{}
}

// InitFunc materializes a space's content directory from input. It runs
// against a BuildAPI bound to a temporary directory; the directory only
// becomes the space's permanent home if InitFunc returns without error.
type InitFunc func(ctx context.Context, api *BuildAPI, input interface{}) (InitResult, error)

// CommandResult is what onCommand returns on success. Both fields are
// optional: a nil value means "leave the existing field untouched".
type CommandResult struct {
	Exports  map[string]string
	Metadata map[string]interface{}
}

// CommandInvocation is the argument passed to onCommand.
type CommandInvocation struct {
	Command interface{}
	Current CommandResult
	Space   *CommandAPI
	Emit    func(payload interface{})
}

// CommandFunc mutates an already-materialized space in place. Kinds that
// don't support commands leave this nil.
type CommandFunc func(ctx context.Context, inv CommandInvocation) (CommandResult, error)

// Kind is an immutable recipe: a name, an optional cache-key reduction, a
// required initializer, and an optional command handler. Kinds are created
// once at registration time and hold no per-space state.
type Kind struct {
	Name      string
	CacheKey  CacheKeyFunc
	OnInit    InitFunc
	OnCommand CommandFunc
}

// Validate checks the invariants a Kind must satisfy before it can be
// registered with a Store.
func (k Kind) Validate() error {
	if k.Name == "" {
		return ValidationError{Reason: "kind name must not be empty"}
	}
	if k.OnInit == nil {
		return ValidationError{Reason: "kind " + k.Name + " has no initializer"}
	}
	return nil
}

// effectiveInput applies CacheKey to input, falling back to input itself
// when no CacheKeyFunc is set, and to an empty object when the result is
// nil.
func (k Kind) effectiveInput(input interface{}) interface{} {
	v := input
	if k.CacheKey != nil {
		v = k.CacheKey(input)
	}
	if v == nil {
		return map[string]interface{}{}
	}
	return v
}
