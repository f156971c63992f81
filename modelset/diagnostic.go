package modelset

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
)

// Diagnostic is a problem recorded on a model while loading it or resolving
// its imports.
type Diagnostic struct {
	Message  string
	Location string
	Line     int
	Column   int
	// Cause is the underlying error, if any.
	Cause error
}

func (d Diagnostic) String() string {
	switch {
	case d.Location == "":
		return d.Message
	case d.Line > 0 && d.Column > 0:
		return fmt.Sprintf("%s:%d:%d: %s", d.Location, d.Line, d.Column, d.Message)
	case d.Line > 0:
		return fmt.Sprintf("%s:%d: %s", d.Location, d.Line, d.Message)
	default:
		return d.Location + ": " + d.Message
	}
}

// NewDiagnostic builds a diagnostic for err at location, taking the line and
// column from a parse error when err carries one.
func NewDiagnostic(location string, err error) Diagnostic {
	d := Diagnostic{Message: err.Error(), Location: location, Cause: err}
	var parseErr *rdf.ParseError
	if errors.As(err, &parseErr) {
		d.Message = parseErr.Err.Error()
		d.Line = parseErr.Line
		d.Column = parseErr.Column
	}
	return d
}

func (d Diagnostic) key() string {
	return fmt.Sprintf("%s\x00%s\x00%d\x00%d", d.Message, d.Location, d.Line, d.Column)
}

// diagnostics is an insertion ordered set.
type diagnostics struct {
	items []Diagnostic
	keys  map[string]bool
}

// add records d unless an equal diagnostic is already present.
func (s *diagnostics) add(d Diagnostic) bool {
	if s.keys == nil {
		s.keys = map[string]bool{}
	}
	k := d.key()
	if s.keys[k] {
		return false
	}
	s.keys[k] = true
	s.items = append(s.items, d)
	return true
}

func (s *diagnostics) list() []Diagnostic {
	return append([]Diagnostic(nil), s.items...)
}

func (s *diagnostics) reset() {
	s.items = nil
	s.keys = nil
}
