package uri

import (
	"context"
	"io"
	"time"

	"github.com/cockroachdb/errors"
)

var (
	// ErrNoHandler is returned when no handler in the chain accepts a URI. It
	// indicates missing configuration rather than a data problem.
	ErrNoHandler = errors.New("uri: no handler")
	// ErrNotFound is returned when the content behind a URI does not exist.
	ErrNotFound = errors.New("uri: not found")
	// ErrTimeout is returned when a network handler exceeds its hard timeout.
	ErrTimeout = errors.New("uri: timeout")
	// ErrReadOnly is returned when writing to content that cannot be written.
	ErrReadOnly = errors.New("uri: read-only")
)

// Attribute names understood by Attributes and SetAttributes.
const (
	AttrTimestamp = "timestamp"
	AttrLength    = "length"
	AttrReadOnly  = "readOnly"
	AttrHidden    = "hidden"
	AttrDirectory = "directory"
)

// Attributes describes stored content. Every field is optional; a nil field
// means the handler does not support it or it was not requested.
type Attributes struct {
	Timestamp *time.Time
	Length    *int64
	ReadOnly  *bool
	Hidden    *bool
	Directory *bool
}

// IsZero reports whether no attribute is set.
func (a Attributes) IsZero() bool {
	return a.Timestamp == nil && a.Length == nil && a.ReadOnly == nil && a.Hidden == nil && a.Directory == nil
}

// ErrUnsupportedAttributes is returned by handlers that cannot set the
// attributes of their content.
var ErrUnsupportedAttributes = errors.Mark(errors.New("uri: attributes cannot be set"), ErrReadOnly)

func unsupportedAttributes(u URI, attrs Attributes) error {
	if attrs.IsZero() {
		return nil
	}
	return errors.Wrapf(ErrUnsupportedAttributes, "uri: set attributes of %s", u)
}

// Handler provides stream access for the URIs it claims.
type Handler interface {
	CanHandle(u URI) bool
	OpenInput(ctx context.Context, u URI) (io.ReadCloser, error)
	// OpenOutput opens a writer for u, creating parent containers as needed.
	// Content is committed when the writer is closed.
	OpenOutput(ctx context.Context, u URI) (io.WriteCloser, error)
	Delete(ctx context.Context, u URI) error
	Exists(ctx context.Context, u URI) (bool, error)
	// Attributes returns the requested attributes, or all supported ones when
	// names is empty.
	Attributes(ctx context.Context, u URI, names ...string) (Attributes, error)
	SetAttributes(ctx context.Context, u URI, attrs Attributes) error
}

func wants(names []string, name string) bool {
	if len(names) == 0 {
		return true
	}
	for _, n := range names {
		if n == name {
			return true
		}
	}
	return false
}

func boolPtr(v bool) *bool           { return &v }
func int64Ptr(v int64) *int64        { return &v }
func timePtr(v time.Time) *time.Time { return &v }
