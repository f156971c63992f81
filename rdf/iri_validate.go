package rdf

import (
	"fmt"
	"net/url"
	"strings"
)

// ValidateIRI checks that iri is an absolute, well-formed IRI. It is a basic
// structural check, not full RFC 3987 validation.
func ValidateIRI(iri string) error {
	if iri == "" {
		return fmt.Errorf("empty IRI")
	}
	for i, r := range iri {
		if r < 0x20 {
			return fmt.Errorf("invalid control character at position %d in IRI: %q", i, iri)
		}
		switch r {
		case '<', '>', '"', ' ', '{', '}', '|', '`':
			return fmt.Errorf("invalid character '%c' at position %d in IRI: %q", r, i, iri)
		}
	}
	parsed, err := url.Parse(iri)
	if err != nil {
		return fmt.Errorf("invalid IRI syntax: %w", err)
	}
	if parsed.Scheme == "" {
		return fmt.Errorf("relative IRI without scheme: %s", iri)
	}
	first := parsed.Scheme[0]
	if !((first >= 'a' && first <= 'z') || (first >= 'A' && first <= 'Z')) {
		return fmt.Errorf("scheme must start with a letter: %s", iri)
	}
	if strings.HasPrefix(iri, parsed.Scheme+"://") && parsed.Host == "" && parsed.Scheme != "file" {
		return fmt.Errorf("missing authority in IRI: %s", iri)
	}
	return nil
}
