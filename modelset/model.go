package modelset

import (
	"context"
	"io"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/uri"
	"go.uber.org/zap"
)

// loadChunkSize bounds the number of triples buffered before they are handed
// to the load transaction.
const loadChunkSize = 1024

// Model is one named graph of a ModelSet. Its graph name is its URI.
//
// State flags are atomic so that change notifications can read them while a
// load is in progress. Derived state (module, closure, handle) is built
// lazily and discarded by unload, rename, Refresh and adoption.
type Model struct {
	codec Codec

	uriMu sync.RWMutex
	uri   uri.URI

	set      atomic.Pointer[ModelSet]
	loaded   atomic.Bool
	loading  atomic.Bool
	modified atomic.Bool

	// loadMu serializes Load, Unload and Delete.
	loadMu sync.Mutex

	diagMu   sync.Mutex
	errors   diagnostics
	warnings diagnostics

	nsMu       sync.RWMutex
	namespaces []rdf.Namespace

	// gen is bumped on every invalidation; lazily built values are only
	// cached when the generation did not move while building them.
	gen       atomic.Uint64
	moduleMu  sync.Mutex
	module    atomic.Pointer[Module]
	closureMu sync.Mutex
	closure   atomic.Pointer[Module]
	handleMu  sync.Mutex
	handle    atomic.Pointer[Handle]

	sessionMu sync.Mutex
	sessions  map[*Handle]struct{}

	// saveMu is held while Save writes and records saved.
	saveMu sync.Mutex
	saved  *contentStamp
}

// contentStamp identifies the content a Save wrote.
type contentStamp struct {
	timestamp time.Time
	length    int64
}

func stampOf(attrs uri.Attributes) (contentStamp, bool) {
	if attrs.Timestamp == nil || attrs.Length == nil {
		return contentStamp{}, false
	}
	return contentStamp{timestamp: *attrs.Timestamp, length: *attrs.Length}, true
}

func (c contentStamp) equal(other contentStamp) bool {
	return c.length == other.length && c.timestamp.Equal(other.timestamp)
}

// savedContent reports whether the content at the model's URI is what the
// last written Save left there.
func (m *Model) savedContent(ctx context.Context, conv *uri.Converter) bool {
	m.saveMu.Lock()
	saved := m.saved
	m.saveMu.Unlock()
	if saved == nil {
		return false
	}
	attrs, err := conv.Attributes(ctx, m.URI(), uri.AttrTimestamp, uri.AttrLength)
	if err != nil {
		return false
	}
	current, ok := stampOf(attrs)
	return ok && current.equal(*saved)
}

// NewModel creates an unowned model. A nil codec means Turtle.
func NewModel(u uri.URI, codec Codec) *Model {
	if codec == nil {
		codec = TurtleCodec
	}
	return &Model{codec: codec, uri: u}
}

func (m *Model) URI() uri.URI {
	m.uriMu.RLock()
	defer m.uriMu.RUnlock()
	return m.uri
}

func (m *Model) String() string { return m.URI().String() }

// Graph returns the model's graph name.
func (m *Model) Graph() rdf.IRI { return m.URI().IRI() }

func (m *Model) Codec() Codec { return m.codec }

// ModelSet returns the owning set, or nil.
func (m *Model) ModelSet() *ModelSet { return m.set.Load() }

func (m *Model) Loaded() bool   { return m.loaded.Load() }
func (m *Model) Loading() bool  { return m.loading.Load() }
func (m *Model) Modified() bool { return m.modified.Load() }

// SetModified overrides the modified flag.
func (m *Model) SetModified(modified bool) { m.modified.Store(modified) }

// Errors returns the error diagnostics of the last load and of import
// resolution since.
func (m *Model) Errors() []Diagnostic {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	return m.errors.list()
}

func (m *Model) Warnings() []Diagnostic {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	return m.warnings.list()
}

func (m *Model) addError(d Diagnostic) {
	m.diagMu.Lock()
	added := m.errors.add(d)
	m.diagMu.Unlock()
	if s := m.ModelSet(); added && s != nil {
		s.logger.Warn("model error", zap.Stringer("model", m), zap.String("diagnostic", d.String()))
	}
}

func (m *Model) addWarning(d Diagnostic) {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	m.warnings.add(d)
}

func (m *Model) resetDiagnostics() {
	m.diagMu.Lock()
	defer m.diagMu.Unlock()
	m.errors.reset()
	m.warnings.reset()
}

// Namespaces returns the prefixes declared by the model's content.
func (m *Model) Namespaces() []rdf.Namespace {
	m.nsMu.RLock()
	defer m.nsMu.RUnlock()
	return append([]rdf.Namespace(nil), m.namespaces...)
}

// SetNamespace binds prefix in the model's own declarations. An empty
// namespace removes the binding.
func (m *Model) SetNamespace(prefix, namespace string) {
	m.nsMu.Lock()
	next := make([]rdf.Namespace, 0, len(m.namespaces)+1)
	found := false
	for _, ns := range m.namespaces {
		if ns.Prefix != prefix {
			next = append(next, ns)
			continue
		}
		found = true
		if namespace != "" {
			next = append(next, rdf.Namespace{Prefix: prefix, IRI: namespace})
		}
	}
	if !found && namespace != "" {
		next = append(next, rdf.Namespace{Prefix: prefix, IRI: namespace})
	}
	m.namespaces = next
	m.nsMu.Unlock()
	m.modified.Store(true)
	m.invalidate()
}

func (m *Model) setNamespaces(ns []rdf.Namespace) {
	m.nsMu.Lock()
	defer m.nsMu.Unlock()
	m.namespaces = ns
}

// DemandLoadImport reports whether resolving the closure loads the model
// imported as u.
func (m *Model) DemandLoadImport(uri.URI) bool {
	s := m.ModelSet()
	return s != nil && s.options.Bool(OptionDemandLoadImports, true)
}

func (m *Model) owner() (*ModelSet, error) {
	s := m.ModelSet()
	if s == nil {
		return nil, errors.Wrapf(ErrNotOwned, "modelset: %s", m)
	}
	if s.isDisposed() {
		return nil, ErrModelSetDisposed
	}
	return s, nil
}

// LoadOption modifies a Load call.
type LoadOption func(*loadConfig)

type loadConfig struct {
	force bool
}

// LoadForce reloads a model that is already loaded, including one whose
// previous load failed.
func LoadForce(c *loadConfig) { c.force = true }

// Load reads the model's content into the store. Loading a loaded model is a
// no-op unless LoadForce is given.
//
// A model whose content cannot be read is still marked loaded; the failure is
// recorded as an error diagnostic and returned as a *LoadError. Malformed
// statements become diagnostics and the rest of the content is kept. A
// missing URI handler is a configuration error: it is returned as is and the
// model stays unloaded.
func (m *Model) Load(ctx context.Context, opts ...LoadOption) error {
	var cfg loadConfig
	for _, opt := range opts {
		opt(&cfg)
	}
	s, err := m.owner()
	if err != nil {
		return err
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	if m.loaded.Load() && !cfg.force {
		return nil
	}

	start := time.Now()
	m.loading.Store(true)
	defer m.loading.Store(false)
	m.loaded.Store(false)
	m.resetDiagnostics()
	u := m.URI()

	var namespaces []rdf.Namespace
	err = s.tracker.Batch(s.graphScope(u), func() error {
		var readErr error
		namespaces, readErr = m.read(ctx, s, u)
		return readErr
	})
	s.metrics.recordLoad(err, time.Since(start))
	if errors.Is(err, uri.ErrNoHandler) {
		m.invalidate()
		return err
	}
	m.setNamespaces(namespaces)
	m.loaded.Store(true)
	m.modified.Store(false)
	m.invalidate()
	if err != nil {
		m.addError(NewDiagnostic(u.String(), err))
		return &LoadError{URI: u, Err: err}
	}
	s.logger.Info("loaded model",
		zap.Stringer("model", m),
		zap.Int("errors", len(m.Errors())),
		zap.Duration("took", time.Since(start)))
	return nil
}

func (m *Model) read(ctx context.Context, s *ModelSet, u uri.URI) ([]rdf.Namespace, error) {
	graph := u.IRI()
	if err := s.clearGraph(ctx, graph); err != nil {
		return nil, err
	}
	in, err := s.Converter().OpenInput(ctx, u)
	if err != nil {
		return nil, err
	}
	defer in.Close()

	txn, err := s.store.Begin(ctx)
	if err != nil {
		return nil, err
	}
	sink := &loadSink{model: m, txn: txn, graph: graph, location: u.String()}
	decodeErr := m.codec.Decode(ctx, in, u.String(), sink)
	if flushErr := sink.flush(); flushErr != nil {
		return nil, errors.CombineErrors(flushErr, txn.Rollback())
	}
	// Statements decoded before a read failure are kept.
	if err := txn.Commit(ctx); err != nil {
		return nil, errors.CombineErrors(decodeErr, err)
	}
	if err := s.recordLoaded(ctx, u); err != nil {
		return sink.namespaces, errors.CombineErrors(decodeErr, err)
	}
	return sink.namespaces, decodeErr
}

type loadSink struct {
	model      *Model
	txn        store.Txn
	graph      rdf.IRI
	location   string
	buf        []rdf.Quad
	namespaces []rdf.Namespace
}

func (s *loadSink) AddTriple(t rdf.Triple) error {
	for _, term := range []rdf.Term{t.S, t.P, t.O} {
		if iri, ok := term.(rdf.IRI); ok {
			if err := rdf.ValidateIRI(iri.Value); err != nil {
				s.model.addWarning(NewDiagnostic(s.location, err))
			}
		}
	}
	s.buf = append(s.buf, t.InGraph(s.graph))
	if len(s.buf) >= loadChunkSize {
		return s.flush()
	}
	return nil
}

func (s *loadSink) flush() error {
	if len(s.buf) == 0 {
		return nil
	}
	err := s.txn.Add(s.buf...)
	s.buf = s.buf[:0]
	return err
}

func (s *loadSink) BindNamespace(ns rdf.Namespace) {
	s.namespaces = appendNamespaces(s.namespaces, []rdf.Namespace{ns})
}

func (s *loadSink) ReportParseError(err *rdf.ParseError) {
	s.model.addError(NewDiagnostic(s.location, err))
}

// Unload discards the model's content from the store, its diagnostics and
// all derived state.
func (m *Model) Unload(ctx context.Context) error {
	s := m.ModelSet()
	if s == nil {
		return errors.Wrapf(ErrNotOwned, "modelset: %s", m)
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	return m.unloadLocked(ctx, s)
}

func (m *Model) unloadLocked(ctx context.Context, s *ModelSet) error {
	wasLoaded := m.loaded.Swap(false)
	m.modified.Store(false)
	m.resetDiagnostics()
	m.setNamespaces(nil)
	m.invalidate()
	u := m.URI()
	err := s.tracker.Batch(s.graphScope(u), func() error {
		return errors.CombineErrors(s.clearGraph(ctx, u.IRI()), s.forgetLoaded(ctx, u))
	})
	if wasLoaded {
		s.logger.Info("unloaded model", zap.Stringer("model", m))
	}
	return err
}

// Delete removes the model's content at its URI, unloads it and removes it
// from its set.
func (m *Model) Delete(ctx context.Context) error {
	s, err := m.owner()
	if err != nil {
		return err
	}
	m.loadMu.Lock()
	defer m.loadMu.Unlock()
	u := m.URI()
	if err := s.Converter().Delete(ctx, u); err != nil && !errors.Is(err, uri.ErrNotFound) {
		return err
	}
	if err := m.unloadLocked(ctx, s); err != nil {
		return err
	}
	s.unregister(m)
	s.logger.Info("deleted model", zap.Stringer("model", m))
	return nil
}

// Save writes the model to its URI unless the serialized content is already
// there. Statements are sorted so that unchanged models serialize to the same
// bytes. The modified flag is cleared whether or not a write happened.
func (m *Model) Save(ctx context.Context) (bool, error) {
	s, err := m.owner()
	if err != nil {
		return false, err
	}
	codec := m.codec
	if format, ok := s.options.SaveFormat(); ok {
		if codec, err = NewFormatCodec(format); err != nil {
			return false, err
		}
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	u := m.URI()
	quads, err := s.store.Match(ctx, store.Pattern{G: u.IRI()})
	if err != nil {
		return false, err
	}
	triples := sortedTriples(quads)
	namespaces := m.Namespaces()
	written, err := SaveIfChanged(ctx, s.Converter(), u, func(w io.Writer) error {
		return codec.Encode(ctx, w, triples, namespaces)
	}, s.options.SaveStrategy())
	s.metrics.recordSave(written, err)
	if err != nil {
		return false, err
	}
	if written {
		m.saved = nil
		if attrs, err := s.Converter().Attributes(ctx, u, uri.AttrTimestamp, uri.AttrLength); err == nil {
			if stamp, ok := stampOf(attrs); ok {
				m.saved = &stamp
			}
		}
	}
	m.modified.Store(false)
	s.logger.Info("saved model",
		zap.Stringer("model", m),
		zap.Bool("written", written),
		zap.Int("statements", len(triples)))
	return written, nil
}

func sortedTriples(quads []rdf.Quad) []rdf.Triple {
	type keyed struct {
		t       rdf.Triple
		s, p, o string
	}
	rows := make([]keyed, len(quads))
	for i, q := range quads {
		rows[i] = keyed{t: q.Triple(), s: rdf.TermKey(q.S), p: rdf.TermKey(q.P), o: rdf.TermKey(q.O)}
	}
	sort.Slice(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		if a.s != b.s {
			return a.s < b.s
		}
		if a.p != b.p {
			return a.p < b.p
		}
		return a.o < b.o
	})
	out := make([]rdf.Triple, len(rows))
	for i, r := range rows {
		out[i] = r.t
	}
	return out
}

// Imports returns the targets of the model's owl:imports statements in
// store order.
func (m *Model) Imports(ctx context.Context) ([]uri.URI, error) {
	s, err := m.owner()
	if err != nil {
		return nil, err
	}
	quads, err := s.store.Match(ctx, store.Pattern{P: rdf.OWLImports, G: m.Graph()})
	if err != nil {
		return nil, err
	}
	var out []uri.URI
	seen := map[uri.URI]bool{}
	for _, q := range quads {
		iri, ok := q.O.(rdf.IRI)
		if !ok {
			continue
		}
		u, err := uri.Parse(iri.Value)
		if err != nil {
			m.addWarning(NewDiagnostic(m.String(), err))
			continue
		}
		if !seen[u] {
			seen[u] = true
			out = append(out, u)
		}
	}
	return out, nil
}

// Ontology returns the subject typed owl:Ontology in the model's graph, or
// the model's own IRI when there is none.
func (m *Model) Ontology(ctx context.Context) (rdf.Term, error) {
	s, err := m.owner()
	if err != nil {
		return nil, err
	}
	quads, err := s.store.Match(ctx, store.Pattern{P: rdf.RDFType, O: rdf.OWLOntology, G: m.Graph()})
	if err != nil {
		return nil, err
	}
	if len(quads) == 0 {
		return m.Graph(), nil
	}
	return quads[0].S, nil
}

// LoadedAt returns when the model was last loaded successfully.
func (m *Model) LoadedAt(ctx context.Context) (time.Time, bool, error) {
	s, err := m.owner()
	if err != nil {
		return time.Time{}, false, err
	}
	return s.loadedAt(ctx, m.URI())
}

// Module returns the model's own module: its graph, its declared namespaces
// and the provider's modules for its URI.
func (m *Model) Module(ctx context.Context) (Module, error) {
	if mod := m.module.Load(); mod != nil {
		return *mod, nil
	}
	s, err := m.owner()
	if err != nil {
		return Module{}, err
	}
	m.moduleMu.Lock()
	defer m.moduleMu.Unlock()
	if mod := m.module.Load(); mod != nil {
		return *mod, nil
	}
	gen := m.gen.Load()
	u := m.URI()
	mod := Module{Writable: u, Readable: []uri.URI{u}, Namespaces: m.Namespaces()}
	if s.provider != nil {
		for _, extra := range s.provider.Modules(ctx, u.String()) {
			mod = mod.Union(extra)
		}
	}
	if m.gen.Load() == gen {
		m.module.Store(&mod)
	}
	return mod, nil
}

// Closure returns the model's module unioned over its transitive imports and
// the set's base module. The writable graph is the model's own.
func (m *Model) Closure(ctx context.Context) (Module, error) {
	if mod := m.closure.Load(); mod != nil {
		return *mod, nil
	}
	s, err := m.owner()
	if err != nil {
		return Module{}, err
	}
	m.closureMu.Lock()
	defer m.closureMu.Unlock()
	if mod := m.closure.Load(); mod != nil {
		return *mod, nil
	}
	gen := m.gen.Load()
	mod, err := resolveClosure(ctx, s, m)
	if err != nil {
		return Module{}, err
	}
	if m.gen.Load() == gen {
		m.closure.Store(&mod)
	}
	return mod, nil
}

// Handle returns the model's shared access handle.
func (m *Model) Handle(ctx context.Context) (*Handle, error) {
	if h := m.handle.Load(); h != nil {
		return h, nil
	}
	s, err := m.owner()
	if err != nil {
		return nil, err
	}
	m.handleMu.Lock()
	defer m.handleMu.Unlock()
	if h := m.handle.Load(); h != nil {
		return h, nil
	}
	gen := m.gen.Load()
	mod, err := m.Closure(ctx)
	if err != nil {
		return nil, err
	}
	h := newHandle(s, m, mod)
	if m.gen.Load() == gen {
		m.handle.Store(h)
	}
	return h, nil
}

// invalidate discards the cached module, closure and handles. Handles in a
// transaction stay usable until it ends.
func (m *Model) invalidate() {
	m.gen.Add(1)
	m.module.Store(nil)
	m.closure.Store(nil)
	if h := m.handle.Swap(nil); h != nil {
		h.retire()
	}
	m.sessionMu.Lock()
	sessions := m.sessions
	m.sessions = nil
	m.sessionMu.Unlock()
	for h := range sessions {
		h.retire()
	}
}

func (m *Model) trackSession(h *Handle) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	if m.sessions == nil {
		m.sessions = map[*Handle]struct{}{}
	}
	m.sessions[h] = struct{}{}
}

func (m *Model) untrackSession(h *Handle) {
	m.sessionMu.Lock()
	defer m.sessionMu.Unlock()
	delete(m.sessions, h)
}

// AddImport adds an owl:imports statement for target to the model's
// ontology. It joins the handle's transaction when one is active and
// otherwise runs in its own.
func (m *Model) AddImport(ctx context.Context, target uri.URI) error {
	h, err := m.Handle(ctx)
	if err != nil {
		return err
	}
	subject, err := m.Ontology(ctx)
	if err != nil {
		return err
	}
	q := rdf.Quad{S: subject, P: rdf.OWLImports, O: target.IRI(), G: m.Graph()}
	return h.update(ctx, func(txn store.Txn) error { return txn.Add(q) }, m.invalidated)
}

// RemoveImport removes every owl:imports statement targeting target.
func (m *Model) RemoveImport(ctx context.Context, target uri.URI) error {
	h, err := m.Handle(ctx)
	if err != nil {
		return err
	}
	return h.update(ctx, func(txn store.Txn) error {
		quads, err := txn.Match(store.Pattern{P: rdf.OWLImports, O: target.IRI(), G: m.Graph()})
		if err != nil || len(quads) == 0 {
			return err
		}
		return txn.Remove(quads...)
	}, m.invalidated)
}

// invalidated is invalidate as a commit hook.
func (m *Model) invalidated() error {
	m.invalidate()
	return nil
}

// SetURI renames the model: its statements move to the graph named by the
// normalized target and the set indexes it under the new URI.
func (m *Model) SetURI(ctx context.Context, target uri.URI) error {
	s, err := m.owner()
	if err != nil {
		return err
	}
	target = s.Converter().Normalize(target)
	old := m.URI()
	if target == old {
		return nil
	}
	if other := s.lookup(target); other != nil {
		return errors.Wrapf(ErrDuplicateModel, "modelset: rename %s to %s", old, target)
	}
	h, err := m.Handle(ctx)
	if err != nil {
		return err
	}
	return h.update(ctx, func(txn store.Txn) error {
		if err := moveGraph(txn, store.Pattern{G: old.IRI()}, func(q rdf.Quad) rdf.Quad {
			q.G = target.IRI()
			return q
		}); err != nil {
			return err
		}
		return moveGraph(txn, store.Pattern{S: old.IRI(), G: s.metaGraph.IRI()}, func(q rdf.Quad) rdf.Quad {
			q.S = target.IRI()
			return q
		})
	}, func() error {
		if err := s.reindex(m, old, target); err != nil {
			return err
		}
		m.invalidate()
		s.logger.Info("renamed model", zap.Stringer("from", old), zap.Stringer("to", target))
		return nil
	})
}

func moveGraph(txn store.Txn, p store.Pattern, rewrite func(rdf.Quad) rdf.Quad) error {
	quads, err := txn.Match(p)
	if err != nil || len(quads) == 0 {
		return err
	}
	moved := make([]rdf.Quad, len(quads))
	for i, q := range quads {
		moved[i] = rewrite(q)
	}
	if err := txn.Remove(quads...); err != nil {
		return err
	}
	return txn.Add(moved...)
}

func (m *Model) setURI(u uri.URI) {
	m.uriMu.Lock()
	defer m.uriMu.Unlock()
	m.uri = u
}
