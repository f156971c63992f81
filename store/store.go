// Package store defines the quad store the model set runs on and provides an
// in-memory implementation.
package store

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
)

var (
	// ErrClosed is returned by operations on a closed store.
	ErrClosed = errors.New("store: closed")
	// ErrTxnDone is returned by operations on a committed or rolled back
	// transaction.
	ErrTxnDone = errors.New("store: transaction already finished")
)

// Pattern selects quads. A nil field matches any term.
type Pattern struct {
	S rdf.Term
	P rdf.Term
	O rdf.Term
	G rdf.Term
}

// Matches reports whether q satisfies the pattern.
func (p Pattern) Matches(q rdf.Quad) bool {
	return termMatches(p.S, q.S) && termMatches(p.P, q.P) &&
		termMatches(p.O, q.O) && termMatches(p.G, q.G)
}

func termMatches(pattern, term rdf.Term) bool {
	return pattern == nil || pattern == term
}

// EventKind classifies store events.
type EventKind int

const (
	EventAdded EventKind = iota
	EventRemoved
	EventNamespace
)

func (k EventKind) String() string {
	switch k {
	case EventAdded:
		return "added"
	case EventRemoved:
		return "removed"
	case EventNamespace:
		return "namespace"
	default:
		return "unknown"
	}
}

// Event is a single mutation. Namespace events carry Prefix and Namespace; an
// empty Namespace means the prefix was removed.
type Event struct {
	Kind      EventKind
	Quad      rdf.Quad
	Prefix    string
	Namespace string
}

// Store is a quad store with transactions and a change feed.
//
// Every mutation that changes the store publishes exactly one batch of events
// to subscribers: one per Add/Remove call, one per committed transaction.
type Store interface {
	Match(ctx context.Context, p Pattern) ([]rdf.Quad, error)
	Add(ctx context.Context, quads ...rdf.Quad) error
	Remove(ctx context.Context, quads ...rdf.Quad) error
	RemoveMatching(ctx context.Context, p Pattern) (int, error)
	Begin(ctx context.Context) (Txn, error)
	Namespaces(ctx context.Context) ([]rdf.Namespace, error)
	SetNamespace(ctx context.Context, prefix, namespace string) error
	// Subscribe registers fn for event batches and returns a function that
	// removes it.
	Subscribe(fn func([]Event)) (unsubscribe func())
	Close() error
}

// Txn buffers mutations until Commit. Match sees the buffered mutations on
// top of the committed state.
type Txn interface {
	Add(quads ...rdf.Quad) error
	Remove(quads ...rdf.Quad) error
	Match(p Pattern) ([]rdf.Quad, error)
	Commit(ctx context.Context) error
	Rollback() error
	Active() bool
}

// Feed fans event batches out to subscribers. The subscriber list is
// copy-on-write, so Publish never holds the lock while calling out.
type Feed struct {
	mu     sync.Mutex
	nextID int
	subs   []subscriber
}

type subscriber struct {
	id int
	fn func([]Event)
}

// Subscribe registers fn.
func (f *Feed) Subscribe(fn func([]Event)) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	id := f.nextID
	next := make([]subscriber, len(f.subs), len(f.subs)+1)
	copy(next, f.subs)
	f.subs = append(next, subscriber{id: id, fn: fn})
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		next := make([]subscriber, 0, len(f.subs))
		for _, sub := range f.subs {
			if sub.id != id {
				next = append(next, sub)
			}
		}
		f.subs = next
	}
}

// Publish delivers a non-empty batch to every subscriber in registration
// order.
func (f *Feed) Publish(events []Event) {
	if len(events) == 0 {
		return
	}
	f.mu.Lock()
	subs := f.subs
	f.mu.Unlock()
	for _, sub := range subs {
		sub.fn(events)
	}
}

// Op is a buffered transaction mutation.
type Op struct {
	Remove bool
	Quad   rdf.Quad
}

// Overlay applies buffered ops to a committed match result.
func Overlay(committed []rdf.Quad, ops []Op, p Pattern) []rdf.Quad {
	if len(ops) == 0 {
		return committed
	}
	present := make(map[string]int, len(committed))
	out := append([]rdf.Quad(nil), committed...)
	for i, q := range out {
		present[q.String()] = i
	}
	removed := map[int]bool{}
	for _, op := range ops {
		if !p.Matches(op.Quad) {
			continue
		}
		key := op.Quad.String()
		idx, ok := present[key]
		switch {
		case op.Remove && ok:
			removed[idx] = true
			delete(present, key)
		case !op.Remove && !ok:
			present[key] = len(out)
			out = append(out, op.Quad)
		}
	}
	if len(removed) == 0 {
		return out
	}
	filtered := out[:0]
	for i, q := range out {
		if !removed[i] {
			filtered = append(filtered, q)
		}
	}
	return filtered
}

// ValidQuad checks that q is complete and names a graph.
func ValidQuad(q rdf.Quad) error {
	if q.S == nil || q.P.Value == "" || q.O == nil {
		return errors.Newf("store: incomplete quad %s", q)
	}
	if q.G == nil {
		return errors.Newf("store: quad %s has no graph", q)
	}
	return nil
}
