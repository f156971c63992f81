package modelset

import (
	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/uri"
)

var (
	// ErrNoFactory is returned when no factory is registered for a URI.
	ErrNoFactory = errors.New("modelset: no model factory")
	// ErrModelSetDisposed is returned by operations on a disposed set.
	ErrModelSetDisposed = errors.New("modelset: disposed")
	// ErrHandleClosed is returned by operations on a torn down handle.
	ErrHandleClosed = errors.New("modelset: handle closed")
	// ErrDuplicateModel is returned when a URI is already taken in the set.
	ErrDuplicateModel = errors.New("modelset: duplicate model")
	// ErrNotWritable is returned when a handle writes outside its writable
	// graph.
	ErrNotWritable = errors.New("modelset: graph not writable")
	// ErrNotOwned is returned when a model is used with a set it does not
	// belong to.
	ErrNotOwned = errors.New("modelset: model not owned by set")
)

// LoadError reports a failed demand-load.
type LoadError struct {
	URI uri.URI
	Err error
}

func (e *LoadError) Error() string {
	return "modelset: load " + e.URI.String() + ": " + e.Err.Error()
}

func (e *LoadError) Unwrap() error { return e.Err }
