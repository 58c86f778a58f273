package store

import "github.com/pkg/errors"

// ErrNotFound is returned by typed getters when the requested row does not
// exist. Operations documented as returning T (required) rather than T|None
// wrap this with additional context via errors.Wrap.
var ErrNotFound = errors.New("not found")

// ErrInvariant marks a violation of a documented store invariant (§7):
// a pending generation with no task reference, a generation referencing
// neither a chat nor a match, and similar states that should never occur.
var ErrInvariant = errors.New("store invariant violated")
