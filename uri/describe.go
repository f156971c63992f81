package uri

import (
	"github.com/geoknoesis/rdf-models/rdf"
)

// Validity is the verdict of a Describer.
type Validity int

const (
	Invalid Validity = iota
	Indeterminate
	Valid
)

func (v Validity) String() string {
	switch v {
	case Valid:
		return "valid"
	case Indeterminate:
		return "indeterminate"
	default:
		return "invalid"
	}
}

// ContentDescription describes the content behind a URI.
type ContentDescription struct {
	Validity    Validity
	ContentType string
	// Format is set when the content is an RDF serialization the codecs read.
	Format rdf.Format
}

// InvalidContent is returned when no describer recognizes the content.
var InvalidContent = ContentDescription{Validity: Invalid}

// Describer inspects a content sample.
type Describer interface {
	Describe(u URI, sample []byte) ContentDescription
}

// DescriberFunc adapts a function to the Describer interface.
type DescriberFunc func(u URI, sample []byte) ContentDescription

func (f DescriberFunc) Describe(u URI, sample []byte) ContentDescription { return f(u, sample) }

// RDFSniffer recognizes RDF serializations by their leading bytes.
type RDFSniffer struct{}

func (RDFSniffer) Describe(_ URI, sample []byte) ContentDescription {
	format, ok := rdf.DetectFormat(sample)
	if !ok {
		return InvalidContent
	}
	return ContentDescription{Validity: Valid, ContentType: format.ContentType(), Format: format}
}

// ExtensionDescriber guesses the format from the URI extension. Its verdict is
// Indeterminate since the bytes are not inspected.
type ExtensionDescriber struct{}

func (ExtensionDescriber) Describe(u URI, _ []byte) ContentDescription {
	format, ok := rdf.FormatFromPath(u.Path())
	if !ok {
		return InvalidContent
	}
	return ContentDescription{Validity: Indeterminate, ContentType: format.ContentType(), Format: format}
}

// Describe runs describers in order. The first Valid verdict wins, then the
// first Indeterminate one, else InvalidContent.
func Describe(describers []Describer, u URI, sample []byte) ContentDescription {
	var fallback *ContentDescription
	for _, d := range describers {
		desc := d.Describe(u, sample)
		switch desc.Validity {
		case Valid:
			return desc
		case Indeterminate:
			if fallback == nil {
				fallback = &desc
			}
		}
	}
	if fallback != nil {
		return *fallback
	}
	return InvalidContent
}
