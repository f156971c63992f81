package modelset

import (
	"context"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/uri"
	"github.com/google/uuid"
)

// ErrTxnActive is returned by Begin when the handle already has a
// transaction.
var ErrTxnActive = errors.New("modelset: transaction already active")

// Handle reads the graphs of a model's closure and writes its own graph.
//
// A handle is built from a snapshot of the closure. When the model is
// unloaded, renamed, refreshed or adopted the handle is retired: it closes at
// once, or when its active transaction ends.
type Handle struct {
	set    *ModelSet
	model  *Model
	module Module

	mu       sync.Mutex
	txn      store.Txn
	retiring bool
	closed   bool
	// onCommit runs after the active transaction commits and is dropped
	// when it rolls back.
	onCommit []func() error
}

func newHandle(s *ModelSet, m *Model, mod Module) *Handle {
	return &Handle{set: s, model: m, module: mod}
}

func (h *Handle) Model() *Model { return h.model }

// Module returns the closure snapshot the handle was built from.
func (h *Handle) Module() Module { return h.module }

// Writable returns the graph the handle writes to.
func (h *Handle) Writable() uri.URI { return h.module.Writable }

// Namespaces returns the closure's prefix bindings.
func (h *Handle) Namespaces() []rdf.Namespace {
	return append([]rdf.Namespace(nil), h.module.Namespaces...)
}

// Expand resolves a prefixed name such as "owl:Class".
func (h *Handle) Expand(name string) (rdf.IRI, error) {
	prefix, local, ok := strings.Cut(name, ":")
	if !ok {
		return rdf.IRI{}, errors.Newf("modelset: %q is not a prefixed name", name)
	}
	ns, ok := h.module.Namespace(prefix)
	if !ok {
		return rdf.IRI{}, errors.Newf("modelset: unknown prefix %q", prefix)
	}
	return rdf.IRI{Value: ns + local}, nil
}

// Closed reports whether the handle was torn down.
func (h *Handle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

func (h *Handle) retire() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.txn != nil {
		h.retiring = true
		return
	}
	h.closed = true
}

func (h *Handle) close() error {
	h.mu.Lock()
	txn := h.txn
	h.txn = nil
	h.onCommit = nil
	h.closed = true
	h.mu.Unlock()
	if txn != nil {
		return txn.Rollback()
	}
	return nil
}

// active returns the current transaction, or nil.
func (h *Handle) active() (store.Txn, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, ErrHandleClosed
	}
	return h.txn, nil
}

// InTransaction reports whether the handle has an active transaction.
func (h *Handle) InTransaction() bool {
	txn, _ := h.active()
	return txn != nil
}

// Begin starts a transaction. Writes through the handle and model mutations
// join it until Commit or Rollback.
func (h *Handle) Begin(ctx context.Context) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return ErrHandleClosed
	}
	if h.txn != nil {
		return ErrTxnActive
	}
	txn, err := h.set.store.Begin(ctx)
	if err != nil {
		return err
	}
	h.txn = txn
	return nil
}

// Commit commits the active transaction and then applies the model changes
// that joined it.
func (h *Handle) Commit(ctx context.Context) error {
	txn, after, err := h.end()
	if err != nil {
		return err
	}
	if err := txn.Commit(ctx); err != nil {
		return err
	}
	for _, fn := range after {
		err = errors.CombineErrors(err, fn())
	}
	return err
}

// Rollback discards the active transaction along with the model changes
// that joined it.
func (h *Handle) Rollback() error {
	txn, _, err := h.end()
	if err != nil {
		return err
	}
	return txn.Rollback()
}

func (h *Handle) end() (store.Txn, []func() error, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.txn == nil {
		return nil, nil, store.ErrTxnDone
	}
	txn, after := h.txn, h.onCommit
	h.txn, h.onCommit = nil, nil
	if h.retiring {
		h.closed = true
	}
	return txn, after, nil
}

// update runs fn in the handle's transaction when one is active and queues
// after until that transaction commits. Otherwise it begins a transaction,
// commits it and runs after when fn succeeds, and rolls it back when fn
// fails. after may be nil.
func (h *Handle) update(ctx context.Context, fn func(store.Txn) error, after func() error) error {
	txn, err := h.active()
	if err != nil {
		return err
	}
	if txn != nil {
		if err := fn(txn); err != nil {
			return err
		}
		if after != nil {
			h.mu.Lock()
			if h.txn == txn {
				h.onCommit = append(h.onCommit, after)
			}
			h.mu.Unlock()
		}
		return nil
	}
	if err := h.Begin(ctx); err != nil {
		return err
	}
	h.mu.Lock()
	txn = h.txn
	h.mu.Unlock()
	if err := fn(txn); err != nil {
		_, _, _ = h.end()
		return errors.CombineErrors(err, txn.Rollback())
	}
	if _, _, err := h.end(); err != nil {
		return err
	}
	if err := txn.Commit(ctx); err != nil {
		return err
	}
	if after != nil {
		return after()
	}
	return nil
}

// Query matches p against the readable graphs. A pattern naming a graph
// outside the closure matches nothing.
func (h *Handle) Query(ctx context.Context, p store.Pattern) ([]rdf.Quad, error) {
	txn, err := h.active()
	if err != nil {
		return nil, err
	}
	match := func(p store.Pattern) ([]rdf.Quad, error) {
		if txn != nil {
			return txn.Match(p)
		}
		return h.set.store.Match(ctx, p)
	}
	if p.G != nil {
		g, ok := p.G.(rdf.IRI)
		if !ok || !h.canReadIRI(g) {
			return nil, nil
		}
		return match(p)
	}
	var out []rdf.Quad
	for _, g := range h.module.Readable {
		scoped := p
		scoped.G = g.IRI()
		quads, err := match(scoped)
		if err != nil {
			return nil, err
		}
		out = append(out, quads...)
	}
	return out, nil
}

func (h *Handle) canReadIRI(g rdf.IRI) bool {
	for _, r := range h.module.Readable {
		if r.String() == g.Value {
			return true
		}
	}
	return false
}

// Add writes triples to the writable graph.
func (h *Handle) Add(ctx context.Context, triples ...rdf.Triple) error {
	quads, err := h.toWritable(triples)
	if err != nil {
		return err
	}
	return h.update(ctx, func(txn store.Txn) error { return txn.Add(quads...) }, nil)
}

// Remove deletes triples from the writable graph.
func (h *Handle) Remove(ctx context.Context, triples ...rdf.Triple) error {
	quads, err := h.toWritable(triples)
	if err != nil {
		return err
	}
	return h.update(ctx, func(txn store.Txn) error { return txn.Remove(quads...) }, nil)
}

// AddQuads writes quads that must already name the writable graph.
func (h *Handle) AddQuads(ctx context.Context, quads ...rdf.Quad) error {
	graph := h.module.Writable.IRI()
	for _, q := range quads {
		if q.G != graph {
			return errors.Wrapf(ErrNotWritable, "modelset: %s", rdf.TermKey(q.G))
		}
	}
	triples := make([]rdf.Triple, len(quads))
	for i, q := range quads {
		triples[i] = q.Triple()
	}
	return h.Add(ctx, triples...)
}

func (h *Handle) toWritable(triples []rdf.Triple) ([]rdf.Quad, error) {
	graph := h.module.Writable.IRI()
	quads := make([]rdf.Quad, len(triples))
	for i, t := range triples {
		for _, term := range []rdf.Term{t.S, t.P, t.O} {
			if iri, ok := term.(rdf.IRI); ok {
				if err := rdf.ValidateIRI(iri.Value); err != nil {
					return nil, errors.Wrap(err, "modelset: invalid statement")
				}
			}
		}
		quads[i] = t.InGraph(graph)
	}
	return quads, nil
}

// Session is a unit of work on one model. It owns a private handle, which is
// torn down by Close and by the same events that retire the model's shared
// handle.
type Session struct {
	ID     uuid.UUID
	handle *Handle
	once   sync.Once
	err    error
}

// Handle returns the session's handle.
func (s *Session) Handle() *Handle { return s.handle }

// Close rolls back an uncommitted transaction and releases the handle.
func (s *Session) Close() error {
	s.once.Do(func() {
		s.handle.model.untrackSession(s.handle)
		s.err = s.handle.close()
	})
	return s.err
}
