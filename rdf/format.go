package rdf

import (
	"path/filepath"
	"strings"
)

// Format identifies RDF serialization formats.
type Format string

const (
	FormatTurtle   Format = "turtle"
	FormatNTriples Format = "ntriples"
	FormatNQuads   Format = "nquads"
)

// ParseFormat normalizes a format string.
func ParseFormat(value string) (Format, bool) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "turtle", "ttl":
		return FormatTurtle, true
	case "ntriples", "nt":
		return FormatNTriples, true
	case "nquads", "nq":
		return FormatNQuads, true
	default:
		return "", false
	}
}

// FormatFromPath infers the format from a file name or URI path extension.
func FormatFromPath(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".ttl":
		return FormatTurtle, true
	case ".nt":
		return FormatNTriples, true
	case ".nq":
		return FormatNQuads, true
	default:
		return "", false
	}
}

// FormatFromContentType infers the format from a MIME content type. Parameters
// such as charset are ignored.
func FormatFromContentType(contentType string) (Format, bool) {
	mediaType := strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
	switch mediaType {
	case "text/turtle", "application/x-turtle":
		return FormatTurtle, true
	case "application/n-triples":
		return FormatNTriples, true
	case "application/n-quads":
		return FormatNQuads, true
	default:
		return "", false
	}
}

// ContentType returns the registered MIME type of the format.
func (f Format) ContentType() string {
	switch f {
	case FormatTurtle:
		return "text/turtle"
	case FormatNTriples:
		return "application/n-triples"
	case FormatNQuads:
		return "application/n-quads"
	default:
		return ""
	}
}

// Extension returns the conventional file extension, including the dot.
func (f Format) Extension() string {
	switch f {
	case FormatTurtle:
		return ".ttl"
	case FormatNTriples:
		return ".nt"
	case FormatNQuads:
		return ".nq"
	default:
		return ""
	}
}
