package store

import (
	"context"
	"sort"
	"sync"

	"github.com/geoknoesis/rdf-models/rdf"
)

type memEntry struct {
	quad rdf.Quad
	seq  uint64
}

// Memory is an in-memory Store. Match returns quads in insertion order.
type Memory struct {
	mu         sync.RWMutex
	graphs     map[string]map[string]memEntry
	namespaces []rdf.Namespace
	seq        uint64
	closed     bool
	feed       Feed
}

var _ Store = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{graphs: map[string]map[string]memEntry{}}
}

func (m *Memory) Match(_ context.Context, p Pattern) ([]rdf.Quad, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return m.matchLocked(p), nil
}

func (m *Memory) matchLocked(p Pattern) []rdf.Quad {
	var entries []memEntry
	collect := func(graph map[string]memEntry) {
		for _, entry := range graph {
			if p.Matches(entry.quad) {
				entries = append(entries, entry)
			}
		}
	}
	if p.G != nil {
		collect(m.graphs[rdf.TermKey(p.G)])
	} else {
		for _, graph := range m.graphs {
			collect(graph)
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].seq < entries[j].seq })
	out := make([]rdf.Quad, len(entries))
	for i, entry := range entries {
		out[i] = entry.quad
	}
	return out
}

func (m *Memory) Add(_ context.Context, quads ...rdf.Quad) error {
	ops := make([]Op, len(quads))
	for i, q := range quads {
		ops[i] = Op{Quad: q}
	}
	return m.apply(ops)
}

func (m *Memory) Remove(_ context.Context, quads ...rdf.Quad) error {
	ops := make([]Op, len(quads))
	for i, q := range quads {
		ops[i] = Op{Remove: true, Quad: q}
	}
	return m.apply(ops)
}

func (m *Memory) RemoveMatching(_ context.Context, p Pattern) (int, error) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return 0, ErrClosed
	}
	matched := m.matchLocked(p)
	events := m.applyLocked(removeOps(matched))
	m.mu.Unlock()
	m.feed.Publish(events)
	return len(events), nil
}

func removeOps(quads []rdf.Quad) []Op {
	ops := make([]Op, len(quads))
	for i, q := range quads {
		ops[i] = Op{Remove: true, Quad: q}
	}
	return ops
}

// apply validates and applies ops atomically, then publishes one batch.
func (m *Memory) apply(ops []Op) error {
	for _, op := range ops {
		if err := ValidQuad(op.Quad); err != nil {
			return err
		}
	}
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	events := m.applyLocked(ops)
	m.mu.Unlock()
	m.feed.Publish(events)
	return nil
}

func (m *Memory) applyLocked(ops []Op) []Event {
	var events []Event
	for _, op := range ops {
		graphKey := rdf.TermKey(op.Quad.G)
		key := op.Quad.String()
		graph := m.graphs[graphKey]
		_, exists := graph[key]
		switch {
		case op.Remove && exists:
			delete(graph, key)
			if len(graph) == 0 {
				delete(m.graphs, graphKey)
			}
			events = append(events, Event{Kind: EventRemoved, Quad: op.Quad})
		case !op.Remove && !exists:
			if graph == nil {
				graph = map[string]memEntry{}
				m.graphs[graphKey] = graph
			}
			m.seq++
			graph[key] = memEntry{quad: op.Quad, seq: m.seq}
			events = append(events, Event{Kind: EventAdded, Quad: op.Quad})
		}
	}
	return events
}

func (m *Memory) Namespaces(context.Context) ([]rdf.Namespace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	out := make([]rdf.Namespace, len(m.namespaces))
	copy(out, m.namespaces)
	return out, nil
}

// SetNamespace binds prefix to namespace. An empty namespace removes the
// binding.
func (m *Memory) SetNamespace(_ context.Context, prefix, namespace string) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return ErrClosed
	}
	changed := false
	idx := -1
	for i, ns := range m.namespaces {
		if ns.Prefix == prefix {
			idx = i
			break
		}
	}
	switch {
	case namespace == "" && idx >= 0:
		m.namespaces = append(m.namespaces[:idx:idx], m.namespaces[idx+1:]...)
		changed = true
	case namespace != "" && idx >= 0 && m.namespaces[idx].IRI != namespace:
		m.namespaces[idx].IRI = namespace
		changed = true
	case namespace != "" && idx < 0:
		m.namespaces = append(m.namespaces, rdf.Namespace{Prefix: prefix, IRI: namespace})
		changed = true
	}
	m.mu.Unlock()
	if changed {
		m.feed.Publish([]Event{{Kind: EventNamespace, Prefix: prefix, Namespace: namespace}})
	}
	return nil
}

func (m *Memory) Subscribe(fn func([]Event)) func() { return m.feed.Subscribe(fn) }

func (m *Memory) Begin(context.Context) (Txn, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	return &memTxn{store: m, active: true}, nil
}

func (m *Memory) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

type memTxn struct {
	store  *Memory
	mu     sync.Mutex
	ops    []Op
	active bool
}

func (t *memTxn) Add(quads ...rdf.Quad) error { return t.buffer(false, quads) }

func (t *memTxn) Remove(quads ...rdf.Quad) error { return t.buffer(true, quads) }

func (t *memTxn) buffer(remove bool, quads []rdf.Quad) error {
	for _, q := range quads {
		if err := ValidQuad(q); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrTxnDone
	}
	for _, q := range quads {
		t.ops = append(t.ops, Op{Remove: remove, Quad: q})
	}
	return nil
}

func (t *memTxn) Match(p Pattern) ([]rdf.Quad, error) {
	t.mu.Lock()
	ops := append([]Op(nil), t.ops...)
	active := t.active
	t.mu.Unlock()
	if !active {
		return nil, ErrTxnDone
	}
	committed, err := t.store.Match(context.Background(), p)
	if err != nil {
		return nil, err
	}
	return Overlay(committed, ops, p), nil
}

func (t *memTxn) Commit(context.Context) error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return ErrTxnDone
	}
	t.active = false
	ops := t.ops
	t.ops = nil
	t.mu.Unlock()
	return t.store.apply(ops)
}

func (t *memTxn) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return ErrTxnDone
	}
	t.active = false
	t.ops = nil
	return nil
}

func (t *memTxn) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
