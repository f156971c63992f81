package modelset

import (
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/uri"
)

// Wildcard registers a fallback extension or content type factory.
const Wildcard = "*"

// Factory creates an unowned model for a URI.
type Factory interface {
	NewModel(u uri.URI) (*Model, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(u uri.URI) (*Model, error)

func (f FactoryFunc) NewModel(u uri.URI) (*Model, error) { return f(u) }

// CodecFactory creates models read and written with codec.
func CodecFactory(codec Codec) Factory {
	return FactoryFunc(func(u uri.URI) (*Model, error) { return NewModel(u, codec), nil })
}

// Registry maps URI schemes, file extensions and content types to factories.
// Lookup tries the scheme, then the extension, then the content type, then
// the wildcard extension and finally the wildcard content type.
type Registry struct {
	mu           sync.RWMutex
	schemes      map[string]Factory
	extensions   map[string]Factory
	contentTypes map[string]Factory
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		schemes:      map[string]Factory{},
		extensions:   map[string]Factory{},
		contentTypes: map[string]Factory{},
	}
}

// DefaultRegistry maps Turtle and N-Triples by extension and content type,
// and falls back to Turtle.
func DefaultRegistry() *Registry {
	r := NewRegistry()
	for _, codec := range []FormatCodec{TurtleCodec, NTriplesCodec} {
		factory := CodecFactory(codec)
		r.RegisterExtension(codec.Format().Extension(), factory)
		r.RegisterContentType(codec.Format().ContentType(), factory)
	}
	r.RegisterExtension("owl", CodecFactory(TurtleCodec))
	r.RegisterExtension(Wildcard, CodecFactory(TurtleCodec))
	return r
}

func (r *Registry) RegisterScheme(scheme string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.schemes[strings.ToLower(scheme)] = f
}

// RegisterExtension registers f for ext, with or without the leading dot.
func (r *Registry) RegisterExtension(ext string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.extensions[normalizeExt(ext)] = f
}

func (r *Registry) RegisterContentType(contentType string, f Factory) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.contentTypes[normalizeContentType(contentType)] = f
}

// Lookup finds the factory for u. contentType is only called when neither
// the scheme nor the extension is registered; it may be nil.
func (r *Registry) Lookup(u uri.URI, contentType func() string) (Factory, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if f, ok := r.schemes[u.Scheme()]; ok {
		return f, nil
	}
	if ext := normalizeExt(u.Ext()); ext != "" {
		if f, ok := r.extensions[ext]; ok {
			return f, nil
		}
	}
	if contentType != nil {
		if f, ok := r.contentTypes[normalizeContentType(contentType())]; ok {
			return f, nil
		}
	}
	if f, ok := r.extensions[Wildcard]; ok {
		return f, nil
	}
	if f, ok := r.contentTypes[Wildcard]; ok {
		return f, nil
	}
	return nil, errors.Wrapf(ErrNoFactory, "modelset: %s", u)
}

func normalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

func normalizeContentType(contentType string) string {
	if format, ok := rdf.FormatFromContentType(contentType); ok {
		return format.ContentType()
	}
	return strings.ToLower(strings.TrimSpace(strings.Split(contentType, ";")[0]))
}
