package core

import (
	"errors"
	"fmt"
)

// Sentinel errors for comparison via errors.Is(). The first three describe
// programmer-error conditions (spec.md §4.6): a missing business, an
// attempt to promise-enable a non-serializable body, or a completion
// slot written more than once. They are never returned to callers as
// Response.Error values — those are represented by Error (response.go).
var (
	ErrUnknownBusiness      = errors.New("goapn: unknown business identifier")
	ErrNotSerializable      = errors.New("goapn: request body is not serializable for promise enlistment")
	ErrAlreadyCompleted     = errors.New("goapn: completion slot already written")
	ErrManagerNotInitialized = errors.New("goapn: manager not initialized")
	ErrStoreNotInitialized  = errors.New("goapn: store not initialized")
	ErrTierMismatch         = errors.New("goapn: cache key already present in the other tier")
	ErrCancelled            = errors.New("goapn: cancelled")
)

// OpError gives structured context to an internal failure: which
// operation failed, against which key/id, and why. It wraps an
// underlying error so errors.Is/errors.As keep working across layers
// (cache -> manager -> caller logs).
type OpError struct {
	Op  string // e.g. "cache.Save", "promise.Delete", "registry.AddBusiness"
	Key string // the cache key, promise key, or business identifier involved
	Err error
}

func (e *OpError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s [%s]: %v", e.Op, e.Key, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *OpError) Unwrap() error { return e.Err }

// NewOpError wraps err with operation and key context.
func NewOpError(op, key string, err error) *OpError {
	if err == nil {
		return nil
	}
	return &OpError{Op: op, Key: key, Err: err}
}
