package rdf

import (
	"net/url"
	"strings"
)

// ResolveIRI resolves a relative IRI against a base IRI according to RFC 3986.
// An empty base returns the reference unchanged.
func ResolveIRI(base, relative string) string {
	if base == "" {
		return relative
	}
	baseURL, err := url.Parse(base)
	if err != nil {
		return concatIRI(base, relative)
	}
	relURL, err := url.Parse(relative)
	if err != nil {
		return concatIRI(base, relative)
	}
	// References with a scheme are already absolute.
	if relURL.Scheme != "" {
		return relative
	}
	return baseURL.ResolveReference(relURL).String()
}

func concatIRI(base, relative string) string {
	if strings.HasSuffix(base, "/") || strings.HasSuffix(base, "#") {
		return base + relative
	}
	if lastSlash := strings.LastIndex(base, "/"); lastSlash >= 0 {
		return base[:lastSlash+1] + relative
	}
	return base + "/" + relative
}
