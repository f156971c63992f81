package uri

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
	"go.uber.org/zap"
)

// Converter is the single entry point models use to reach content. Every
// operation normalizes its URI with the mapper and dispatches to the first
// handler that accepts the result.
type Converter struct {
	mapper *Mapper
	logger *zap.Logger

	mu         sync.RWMutex
	handlers   []Handler
	describers []Describer
}

// ConverterOption configures a Converter.
type ConverterOption func(*Converter)

// WithMapper sets the mapper used by Normalize.
func WithMapper(m *Mapper) ConverterOption {
	return func(c *Converter) { c.mapper = m }
}

// WithHandlers sets the handler chain, replacing the default file handler.
func WithHandlers(handlers ...Handler) ConverterOption {
	return func(c *Converter) { c.handlers = handlers }
}

// WithDescribers sets the describer chain.
func WithDescribers(describers ...Describer) ConverterOption {
	return func(c *Converter) { c.describers = describers }
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) ConverterOption {
	return func(c *Converter) { c.logger = logger }
}

// NewConverter creates a converter. Without options it serves file: URIs
// and describes content with the RDF sniffer and the extension describer.
func NewConverter(opts ...ConverterOption) *Converter {
	c := &Converter{
		handlers:   []Handler{FileHandler{}},
		describers: []Describer{RDFSniffer{}, ExtensionDescriber{}},
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.mapper == nil {
		c.mapper = &Mapper{}
	}
	return c
}

// Mapper returns the converter's mapper.
func (c *Converter) Mapper() *Mapper { return c.mapper }

// AddHandler appends a handler to the chain.
func (c *Converter) AddHandler(h Handler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.handlers = append(c.handlers, h)
}

// Normalize applies the mapping rules.
func (c *Converter) Normalize(u URI) URI {
	normalized := c.mapper.Normalize(u)
	if normalized != u {
		c.logger.Debug("normalized uri", zap.Stringer("from", u), zap.Stringer("to", normalized))
	}
	return normalized
}

// Handler returns the handler responsible for the normalized form of u.
func (c *Converter) Handler(u URI) (Handler, URI, error) {
	normalized := c.Normalize(u)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, h := range c.handlers {
		if h.CanHandle(normalized) {
			return h, normalized, nil
		}
	}
	return nil, normalized, errors.Wrapf(ErrNoHandler, "uri: %s", normalized)
}

func (c *Converter) OpenInput(ctx context.Context, u URI) (io.ReadCloser, error) {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return nil, err
	}
	return h.OpenInput(ctx, normalized)
}

func (c *Converter) OpenOutput(ctx context.Context, u URI) (io.WriteCloser, error) {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return nil, err
	}
	return h.OpenOutput(ctx, normalized)
}

func (c *Converter) Delete(ctx context.Context, u URI) error {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return err
	}
	c.logger.Info("deleting content", zap.Stringer("uri", normalized))
	return h.Delete(ctx, normalized)
}

func (c *Converter) Exists(ctx context.Context, u URI) (bool, error) {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return false, err
	}
	return h.Exists(ctx, normalized)
}

func (c *Converter) Attributes(ctx context.Context, u URI, names ...string) (Attributes, error) {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return Attributes{}, err
	}
	return h.Attributes(ctx, normalized, names...)
}

func (c *Converter) SetAttributes(ctx context.Context, u URI, attrs Attributes) error {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return err
	}
	return h.SetAttributes(ctx, normalized, attrs)
}

// ContentDescription reads a sample of the content behind u and runs the
// describer chain over it. Unreadable content is described from the URI alone.
func (c *Converter) ContentDescription(ctx context.Context, u URI) (ContentDescription, error) {
	h, normalized, err := c.Handler(u)
	if err != nil {
		return InvalidContent, err
	}
	var sample []byte
	if r, err := h.OpenInput(ctx, normalized); err == nil {
		sample, err = io.ReadAll(io.LimitReader(r, rdf.DetectSampleSize))
		r.Close()
		if err != nil {
			sample = nil
		}
	}
	c.mu.RLock()
	describers := c.describers
	c.mu.RUnlock()
	return Describe(describers, normalized, sample), nil
}
