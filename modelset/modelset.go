package modelset

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/notify"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/uri"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Metadata predicates recorded in a set's metadata graph.
var (
	MetaLoadedAt = rdf.IRI{Value: "urn:rdf-models:meta:loadedAt"}
	xsdDateTime  = rdf.IRI{Value: rdf.XSDNamespace + "dateTime"}
)

// DelegateResolver supplies models the set does not know. A returned model
// is adopted into the set.
type DelegateResolver interface {
	ResolveModel(ctx context.Context, u uri.URI) (*Model, error)
}

// DelegateResolverFunc adapts a function to DelegateResolver.
type DelegateResolverFunc func(ctx context.Context, u uri.URI) (*Model, error)

func (f DelegateResolverFunc) ResolveModel(ctx context.Context, u uri.URI) (*Model, error) {
	return f(ctx, u)
}

// Option configures a ModelSet.
type Option func(*ModelSet)

func WithConverter(c *uri.Converter) Option {
	return func(s *ModelSet) { s.conv = c }
}

func WithRegistry(r *Registry) Option {
	return func(s *ModelSet) { s.registry = r }
}

func WithModuleProvider(p ModuleProvider) Option {
	return func(s *ModelSet) { s.provider = p }
}

func WithDelegateResolver(d DelegateResolver) Option {
	return func(s *ModelSet) { s.delegate = d }
}

func WithLogger(logger *zap.Logger) Option {
	return func(s *ModelSet) { s.logger = logger }
}

// WithMetrics records set activity in m.
func WithMetrics(m *Metrics) Option {
	return func(s *ModelSet) { s.metrics = m }
}

// WithOptions replaces the default load options.
func WithOptions(o *Options) Option {
	return func(s *ModelSet) { s.options = o }
}

// WithBaseNamespaces binds prefixes in the store for every model of the set.
// Prefixes the store already binds keep their namespace.
func WithBaseNamespaces(ns ...rdf.Namespace) Option {
	return func(s *ModelSet) { s.baseNamespaces = append(s.baseNamespaces, ns...) }
}

// ModelSet is a collection of models sharing one store. Models are unique by
// normalized URI.
type ModelSet struct {
	store          store.Store
	registry       *Registry
	options        *Options
	provider       ModuleProvider
	delegate       DelegateResolver
	tracker        *notify.Tracker
	logger         *zap.Logger
	metrics        *Metrics
	metaGraph      uri.URI
	baseNamespaces []rdf.Namespace

	convOnce sync.Once
	conv     *uri.Converter

	mu       sync.RWMutex
	models   []*Model
	byURI    map[string]*Model
	disposed bool

	creating singleflight.Group
	detach   func()
}

// New creates a set on st. The caller keeps ownership of st.
func New(st store.Store, opts ...Option) (*ModelSet, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, errors.Wrap(err, "modelset: metadata graph id")
	}
	s := &ModelSet{
		store:     st,
		logger:    zap.NewNop(),
		byURI:     map[string]*Model{},
		metaGraph: uri.MustParse("urn:uuid:" + id.String()),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.registry == nil {
		s.registry = DefaultRegistry()
	}
	if s.options == nil {
		s.options = NewOptions()
	}
	s.tracker = notify.NewTracker(
		notify.WithLogger(s.logger),
		notify.WithModifiedHook(s.markModified),
		notify.WithExemptGraph(s.metaGraph.IRI()),
	)
	s.tracker.AddListener(notify.ListenerFunc(func(batch []notify.Notification) {
		s.metrics.recordNotifications(len(batch))
	}))
	s.detach = s.tracker.Attach(st)

	ctx := context.Background()
	bound, err := st.Namespaces(ctx)
	if err != nil {
		s.detach()
		return nil, err
	}
	for _, ns := range s.baseNamespaces {
		if containsPrefix(bound, ns.Prefix) {
			continue
		}
		if err := st.SetNamespace(ctx, ns.Prefix, ns.IRI); err != nil {
			s.detach()
			return nil, err
		}
	}
	return s, nil
}

func containsPrefix(ns []rdf.Namespace, prefix string) bool {
	for _, n := range ns {
		if n.Prefix == prefix {
			return true
		}
	}
	return false
}

// Converter returns the set's URI converter, creating a default one on first
// use.
func (s *ModelSet) Converter() *uri.Converter {
	s.convOnce.Do(func() {
		if s.conv == nil {
			s.conv = uri.NewConverter(uri.WithLogger(s.logger))
		}
	})
	return s.conv
}

func (s *ModelSet) Store() store.Store             { return s.store }
func (s *ModelSet) Registry() *Registry            { return s.registry }
func (s *ModelSet) Options() *Options              { return s.options }
func (s *ModelSet) Tracker() *notify.Tracker       { return s.tracker }
func (s *ModelSet) ModuleProvider() ModuleProvider { return s.provider }

// MetadataGraph names the set's private graph. Changes to it never mark a
// model modified.
func (s *ModelSet) MetadataGraph() uri.URI { return s.metaGraph }

func (s *ModelSet) isDisposed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.disposed
}

// Models returns the set's models in registration order.
func (s *ModelSet) Models() []*Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]*Model(nil), s.models...)
}

// lookup finds the model with normalized URI u.
func (s *ModelSet) lookup(u uri.URI) *Model {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if m, ok := s.byURI[u.String()]; ok {
		return m
	}
	for _, m := range s.models {
		if m.URI() == u {
			return m
		}
	}
	return nil
}

// GetModel returns the model for u.
//
// With loadOnDemand a missing model is created through the registry and any
// unloaded model is loaded. A failed load returns the model together with a
// *LoadError; later calls return the model without retrying. Without
// loadOnDemand an unknown URI yields nil and no error.
func (s *ModelSet) GetModel(ctx context.Context, u uri.URI, loadOnDemand bool) (*Model, error) {
	if s.isDisposed() {
		return nil, ErrModelSetDisposed
	}
	normalized := s.Converter().Normalize(u)
	if m := s.lookup(normalized); m != nil {
		s.logger.Debug("model cache hit", zap.Stringer("model", m))
		if loadOnDemand && !m.Loaded() {
			return m, m.Load(ctx)
		}
		return m, nil
	}
	if s.delegate != nil {
		m, err := s.delegate.ResolveModel(ctx, normalized)
		if err != nil {
			return nil, err
		}
		if m != nil {
			if err := s.Adopt(ctx, m); err != nil {
				return nil, err
			}
			return m, nil
		}
	}
	if !loadOnDemand {
		return nil, nil
	}
	v, err, _ := s.creating.Do(normalized.String(), func() (any, error) {
		if m := s.lookup(normalized); m != nil {
			return m, nil
		}
		return s.create(ctx, normalized)
	})
	if err != nil {
		return nil, err
	}
	m := v.(*Model)
	return m, m.Load(ctx)
}

// CreateModel creates and registers a new empty model for u. The model counts
// as loaded, so it is not read from u and changes to it mark it modified.
func (s *ModelSet) CreateModel(ctx context.Context, u uri.URI) (*Model, error) {
	if s.isDisposed() {
		return nil, ErrModelSetDisposed
	}
	normalized := s.Converter().Normalize(u)
	if s.lookup(normalized) != nil {
		return nil, errors.Wrapf(ErrDuplicateModel, "modelset: %s", normalized)
	}
	m, err := s.create(ctx, normalized)
	if err != nil {
		return nil, err
	}
	m.loaded.Store(true)
	return m, nil
}

func (s *ModelSet) create(ctx context.Context, u uri.URI) (*Model, error) {
	factory, err := s.registry.Lookup(u, func() string {
		desc, err := s.Converter().ContentDescription(ctx, u)
		if err != nil {
			return ""
		}
		return desc.ContentType
	})
	if err != nil {
		return nil, err
	}
	m, err := factory.NewModel(u)
	if err != nil {
		return nil, errors.Wrapf(err, "modelset: create %s", u)
	}
	m.setURI(u)
	if err := s.register(m); err != nil {
		return nil, err
	}
	s.logger.Debug("created model", zap.Stringer("model", m))
	return m, nil
}

func (s *ModelSet) register(m *Model) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return ErrModelSetDisposed
	}
	key := m.URI().String()
	if _, ok := s.byURI[key]; ok {
		return errors.Wrapf(ErrDuplicateModel, "modelset: %s", key)
	}
	if !m.set.CompareAndSwap(nil, s) {
		return errors.Newf("modelset: %s belongs to another set", key)
	}
	s.byURI[key] = m
	s.models = append(s.models, m)
	s.metrics.setModels(len(s.models))
	return nil
}

func (s *ModelSet) unregister(m *Model) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, have := range s.models {
		if have == m {
			s.models = append(s.models[:i:i], s.models[i+1:]...)
			break
		}
	}
	for key, have := range s.byURI {
		if have == m {
			delete(s.byURI, key)
		}
	}
	m.set.CompareAndSwap(s, nil)
	s.metrics.setModels(len(s.models))
}

func (s *ModelSet) reindex(m *Model, old, target uri.URI) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if other, ok := s.byURI[target.String()]; ok && other != m {
		return errors.Wrapf(ErrDuplicateModel, "modelset: %s", target)
	}
	delete(s.byURI, old.String())
	m.setURI(target)
	s.byURI[target.String()] = m
	return nil
}

// Remove unloads m and removes it from the set without touching its content
// at its URI.
func (s *ModelSet) Remove(ctx context.Context, m *Model) error {
	if m.ModelSet() != s {
		return errors.Wrapf(ErrNotOwned, "modelset: %s", m)
	}
	err := m.Unload(ctx)
	s.unregister(m)
	return err
}

// Adopt moves m into the set. Its cached module, closure and handles are
// discarded. A model coming from a set on another store is reset to
// unloaded and its statements are removed from the old store.
func (s *ModelSet) Adopt(ctx context.Context, m *Model) error {
	if s.isDisposed() {
		return ErrModelSetDisposed
	}
	old := m.ModelSet()
	if old == s {
		return nil
	}
	m.invalidate()
	if old != nil {
		if old.store != s.store {
			if err := m.Unload(ctx); err != nil {
				return err
			}
		}
		old.unregister(m)
	}
	m.setURI(s.Converter().Normalize(m.URI()))
	if err := s.register(m); err != nil {
		return err
	}
	s.logger.Debug("adopted model", zap.Stringer("model", m))
	return nil
}

// Refresh discards every model's cached module, closure and handles, for
// example after the store connection changed.
func (s *ModelSet) Refresh() {
	for _, m := range s.Models() {
		m.invalidate()
	}
	s.logger.Debug("refreshed model set")
}

// Session opens a unit of work on m with its own handle.
func (s *ModelSet) Session(ctx context.Context, m *Model) (*Session, error) {
	if m.ModelSet() != s {
		return nil, errors.Wrapf(ErrNotOwned, "modelset: %s", m)
	}
	mod, err := m.Closure(ctx)
	if err != nil {
		return nil, err
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	h := newHandle(s, m, mod)
	m.trackSession(h)
	return &Session{ID: id, handle: h}, nil
}

// Dispose unloads every model and detaches the set from its store. The store
// itself stays open.
func (s *ModelSet) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return nil
	}
	models := s.models
	s.mu.Unlock()

	var err error
	for _, m := range models {
		err = errors.CombineErrors(err, m.Unload(ctx))
		m.set.CompareAndSwap(s, nil)
	}

	s.mu.Lock()
	s.disposed = true
	s.models = nil
	s.byURI = map[string]*Model{}
	s.mu.Unlock()
	s.detach()
	s.metrics.setModels(0)
	s.logger.Info("disposed model set", zap.Int("models", len(models)))
	return err
}

// markModified flags the loaded model whose graph is g.
func (s *ModelSet) markModified(g rdf.Term) {
	iri, ok := g.(rdf.IRI)
	if !ok {
		return
	}
	s.mu.RLock()
	m := s.byURI[iri.Value]
	s.mu.RUnlock()
	if m != nil && m.Loaded() && !m.Loading() {
		m.modified.Store(true)
	}
}

// graphScope holds back the notifications of a load or unload of u: the
// statements of its graph and its entries in the metadata graph.
func (s *ModelSet) graphScope(u uri.URI) notify.Scope {
	return notify.Graph(u.IRI(), s.metaGraph.IRI())
}

// baseModule is the module every closure includes: the provider's set
// modules and the store's namespace bindings.
func (s *ModelSet) baseModule(ctx context.Context) (Module, error) {
	var mod Module
	if s.provider != nil {
		for _, extra := range s.provider.Modules(ctx, SetModuleKey) {
			mod = mod.Union(extra)
		}
	}
	bound, err := s.store.Namespaces(ctx)
	if err != nil {
		return Module{}, err
	}
	return mod.Union(Module{Namespaces: bound}), nil
}

func (s *ModelSet) clearGraph(ctx context.Context, g rdf.IRI) error {
	_, err := s.store.RemoveMatching(ctx, store.Pattern{G: g})
	return err
}

func (s *ModelSet) recordLoaded(ctx context.Context, u uri.URI) error {
	if err := s.forgetLoaded(ctx, u); err != nil {
		return err
	}
	stamp := rdf.Literal{Lexical: time.Now().UTC().Format(time.RFC3339Nano), Datatype: xsdDateTime}
	return s.store.Add(ctx, rdf.Quad{S: u.IRI(), P: MetaLoadedAt, O: stamp, G: s.metaGraph.IRI()})
}

func (s *ModelSet) forgetLoaded(ctx context.Context, u uri.URI) error {
	_, err := s.store.RemoveMatching(ctx, store.Pattern{S: u.IRI(), G: s.metaGraph.IRI()})
	return err
}

func (s *ModelSet) loadedAt(ctx context.Context, u uri.URI) (time.Time, bool, error) {
	quads, err := s.store.Match(ctx, store.Pattern{S: u.IRI(), P: MetaLoadedAt, G: s.metaGraph.IRI()})
	if err != nil || len(quads) == 0 {
		return time.Time{}, false, err
	}
	lit, ok := quads[0].O.(rdf.Literal)
	if !ok {
		return time.Time{}, false, nil
	}
	t, err := time.Parse(time.RFC3339Nano, lit.Lexical)
	if err != nil {
		return time.Time{}, false, errors.Wrapf(err, "modelset: load time of %s", u)
	}
	return t, true, nil
}
