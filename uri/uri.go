// Package uri resolves model identities to byte streams.
//
// A Converter combines a Mapper, which rewrites logical URIs into physical
// locations, with an ordered chain of Handlers that open, delete and describe
// the content behind a URI.
package uri

import (
	"net/url"
	"path"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
)

// URI is an immutable identifier. The zero value is the empty URI.
//
// URIs are comparable and may be used as map keys; two URIs are equal when
// their string forms are equal.
type URI struct {
	raw string
}

// Parse validates s as a URI reference.
func Parse(s string) (URI, error) {
	if strings.TrimSpace(s) == "" {
		return URI{}, errors.New("uri: empty URI")
	}
	if _, err := url.Parse(s); err != nil {
		return URI{}, errors.Wrapf(err, "uri: parse %q", s)
	}
	return URI{raw: s}, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) URI {
	u, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return u
}

// FromPath converts a local file path into a file URI.
func FromPath(p string) URI {
	abs, err := filepath.Abs(p)
	if err != nil {
		abs = p
	}
	u := url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}
	return URI{raw: u.String()}
}

func (u URI) String() string { return u.raw }

// IsZero reports whether u is the empty URI.
func (u URI) IsZero() bool { return u.raw == "" }

// IRI returns u as an RDF IRI term.
func (u URI) IRI() rdf.IRI { return rdf.IRI{Value: u.raw} }

func (u URI) parsed() *url.URL {
	parsed, err := url.Parse(u.raw)
	if err != nil {
		return &url.URL{Opaque: u.raw}
	}
	return parsed
}

// Scheme returns the lower-cased scheme, or "" for relative references.
func (u URI) Scheme() string { return strings.ToLower(u.parsed().Scheme) }

// IsAbsolute reports whether u has a scheme.
func (u URI) IsAbsolute() bool { return u.Scheme() != "" }

// Host returns the authority host, if any.
func (u URI) Host() string { return u.parsed().Host }

// Path returns the decoded hierarchical path, or the opaque part for
// non-hierarchical URIs such as urn:.
func (u URI) Path() string {
	parsed := u.parsed()
	if parsed.Opaque != "" {
		return parsed.Opaque
	}
	return parsed.Path
}

// Segments returns the non-empty path segments.
func (u URI) Segments() []string {
	var segments []string
	for _, segment := range strings.Split(u.Path(), "/") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}
	return segments
}

// Fragment returns the fragment without the leading '#'.
func (u URI) Fragment() string { return u.parsed().Fragment }

// TrimFragment returns u without its fragment.
func (u URI) TrimFragment() URI {
	if i := strings.IndexByte(u.raw, '#'); i >= 0 {
		return URI{raw: u.raw[:i]}
	}
	return u
}

// Ext returns the extension of the last path segment, including the dot.
func (u URI) Ext() string { return path.Ext(u.Path()) }

// Resolve resolves ref against u.
func (u URI) Resolve(ref string) URI {
	return URI{raw: rdf.ResolveIRI(u.raw, ref)}
}

// AppendSegment adds a path segment to a hierarchical URI.
func (u URI) AppendSegment(segment string) URI {
	base := u.TrimFragment().raw
	if !strings.HasSuffix(base, "/") {
		base += "/"
	}
	return URI{raw: base + url.PathEscape(segment)}
}

// FilePath returns the local path of a file URI.
func (u URI) FilePath() (string, error) {
	if u.Scheme() != "file" {
		return "", errors.Newf("uri: %s is not a file URI", u)
	}
	return filepath.FromSlash(u.parsed().Path), nil
}
