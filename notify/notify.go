// Package notify turns store mutation events into model notifications and
// routes them to listeners.
//
// A Tracker dispatches each store event batch once. Global listeners receive
// the whole batch; subject listeners receive only the notifications about
// their subject, in arrival order. Listener lists are copy-on-write, so
// listeners may be added or removed from inside a dispatch without affecting
// the snapshot being delivered.
package notify

import (
	"sync"
	"sync/atomic"

	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"go.uber.org/zap"
)

// Kind classifies a notification.
type Kind int

const (
	StatementAdded Kind = iota
	StatementRemoved
	NamespaceChanged
	Generic
)

func (k Kind) String() string {
	switch k {
	case StatementAdded:
		return "statement-added"
	case StatementRemoved:
		return "statement-removed"
	case NamespaceChanged:
		return "namespace-changed"
	case Generic:
		return "generic"
	default:
		return "unknown"
	}
}

// Notification describes one change. Statement notifications carry the quad
// and use its subject as Subject. Namespace notifications carry Prefix and
// Namespace and have no subject.
type Notification struct {
	Kind      Kind
	Subject   rdf.Term
	Quad      rdf.Quad
	Prefix    string
	Namespace string
	Payload   any
}

// IsStatement reports whether n is a statement change.
func (n Notification) IsStatement() bool {
	return n.Kind == StatementAdded || n.Kind == StatementRemoved
}

// Listener receives notification batches.
type Listener interface {
	NotifyChanged(batch []Notification)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(batch []Notification)

func (f ListenerFunc) NotifyChanged(batch []Notification) { f(batch) }

type entry struct {
	id       uint64
	listener Listener
}

type subjectListeners map[rdf.Term][]entry

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(logger *zap.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithModifiedHook sets the function called once per dispatch for every
// graph that had statements added or removed.
func WithModifiedHook(hook func(graph rdf.Term)) Option {
	return func(t *Tracker) { t.modified = hook }
}

// WithExemptGraph excludes graph from the modified hook.
func WithExemptGraph(graph rdf.Term) Option {
	return func(t *Tracker) { t.exempt = graph }
}

// Tracker converts and dispatches change notifications.
type Tracker struct {
	logger   *zap.Logger
	modified func(graph rdf.Term)
	exempt   rdf.Term

	nextID   atomic.Uint64
	global   atomic.Pointer[[]entry]
	subjects atomic.Pointer[subjectListeners]
	// writeMu serializes listener list replacement.
	writeMu sync.Mutex

	batchMu sync.Mutex
	batches []*openBatch
}

// Scope selects the notifications a Batch holds back.
type Scope func(Notification) bool

// All holds back every notification.
func All(Notification) bool { return true }

// Graph scopes a batch to statements in graph g and, when meta is not nil, to
// statements about g in the graph meta.
func Graph(g, meta rdf.Term) Scope {
	return func(n Notification) bool {
		if !n.IsStatement() {
			return false
		}
		if n.Quad.G == g {
			return true
		}
		return meta != nil && n.Quad.G == meta && n.Quad.S == g
	}
}

type openBatch struct {
	scope   Scope
	pending []Notification
}

// NewTracker creates a tracker with no listeners.
func NewTracker(opts ...Option) *Tracker {
	t := &Tracker{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	t.global.Store(&[]entry{})
	t.subjects.Store(&subjectListeners{})
	return t
}

// AddListener registers l for every batch and returns a function removing it.
func (t *Tracker) AddListener(l Listener) (remove func()) {
	id := t.nextID.Add(1)
	t.writeMu.Lock()
	current := *t.global.Load()
	next := make([]entry, len(current), len(current)+1)
	copy(next, current)
	next = append(next, entry{id: id, listener: l})
	t.global.Store(&next)
	t.writeMu.Unlock()
	return func() {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		filtered := without(*t.global.Load(), id)
		t.global.Store(&filtered)
	}
}

// AddSubjectListener registers l for notifications about subject and returns a
// function removing it.
func (t *Tracker) AddSubjectListener(subject rdf.Term, l Listener) (remove func()) {
	id := t.nextID.Add(1)
	t.writeMu.Lock()
	next := t.copySubjects()
	next[subject] = append(append([]entry(nil), next[subject]...), entry{id: id, listener: l})
	t.subjects.Store(&next)
	t.writeMu.Unlock()
	return func() {
		t.writeMu.Lock()
		defer t.writeMu.Unlock()
		next := t.copySubjects()
		if remaining := without(next[subject], id); len(remaining) > 0 {
			next[subject] = remaining
		} else {
			delete(next, subject)
		}
		t.subjects.Store(&next)
	}
}

func (t *Tracker) copySubjects() subjectListeners {
	current := *t.subjects.Load()
	next := make(subjectListeners, len(current)+1)
	for subject, entries := range current {
		next[subject] = entries
	}
	return next
}

func without(entries []entry, id uint64) []entry {
	out := make([]entry, 0, len(entries))
	for _, e := range entries {
		if e.id != id {
			out = append(out, e)
		}
	}
	return out
}

// Attach subscribes the tracker to s and returns the unsubscribe function.
func (t *Tracker) Attach(s store.Store) (detach func()) {
	return s.Subscribe(t.HandleEvents)
}

// HandleEvents converts a store event batch and dispatches it.
func (t *Tracker) HandleEvents(events []store.Event) {
	batch := make([]Notification, 0, len(events))
	for _, ev := range events {
		batch = append(batch, FromEvent(ev))
	}
	t.submit(batch)
}

// FromEvent converts a store event.
func FromEvent(ev store.Event) Notification {
	switch ev.Kind {
	case store.EventAdded:
		return Notification{Kind: StatementAdded, Subject: ev.Quad.S, Quad: ev.Quad}
	case store.EventRemoved:
		return Notification{Kind: StatementRemoved, Subject: ev.Quad.S, Quad: ev.Quad}
	default:
		return Notification{Kind: NamespaceChanged, Prefix: ev.Prefix, Namespace: ev.Namespace}
	}
}

// Fire dispatches notifications that did not come from the store.
func (t *Tracker) Fire(batch ...Notification) {
	t.submit(append([]Notification(nil), batch...))
}

// Batch runs fn and dispatches the notifications selected by scope as a
// single batch when fn returns. Notifications outside every open scope are
// dispatched as usual. A notification matching several open batches is held
// by the one opened first, so nested batches with the same scope coalesce
// into the outer one.
func (t *Tracker) Batch(scope Scope, fn func() error) error {
	b := &openBatch{scope: scope}
	t.batchMu.Lock()
	t.batches = append(t.batches, b)
	t.batchMu.Unlock()

	err := fn()

	t.batchMu.Lock()
	for i, open := range t.batches {
		if open == b {
			t.batches = append(t.batches[:i:i], t.batches[i+1:]...)
			break
		}
	}
	flush := b.pending
	b.pending = nil
	t.batchMu.Unlock()
	t.dispatch(flush)
	return err
}

func (t *Tracker) submit(notifications []Notification) {
	if len(notifications) == 0 {
		return
	}
	t.batchMu.Lock()
	if len(t.batches) == 0 {
		t.batchMu.Unlock()
		t.dispatch(notifications)
		return
	}
	var rest []Notification
	for _, n := range notifications {
		held := false
		for _, b := range t.batches {
			if b.scope(n) {
				b.pending = append(b.pending, n)
				held = true
				break
			}
		}
		if !held {
			rest = append(rest, n)
		}
	}
	t.batchMu.Unlock()
	t.dispatch(rest)
}

func (t *Tracker) dispatch(batch []Notification) {
	if len(batch) == 0 {
		return
	}
	t.markModified(batch)

	for _, e := range *t.global.Load() {
		e.listener.NotifyChanged(batch)
	}

	subjects := *t.subjects.Load()
	if len(subjects) == 0 {
		return
	}
	var order []rdf.Term
	groups := map[rdf.Term][]Notification{}
	for _, n := range batch {
		if n.Subject == nil || len(subjects[n.Subject]) == 0 {
			continue
		}
		if _, ok := groups[n.Subject]; !ok {
			order = append(order, n.Subject)
		}
		groups[n.Subject] = append(groups[n.Subject], n)
	}
	for _, subject := range order {
		for _, e := range subjects[subject] {
			e.listener.NotifyChanged(groups[subject])
		}
	}
	t.logger.Debug("dispatched notifications",
		zap.Int("notifications", len(batch)),
		zap.Int("subjects", len(order)))
}

func (t *Tracker) markModified(batch []Notification) {
	if t.modified == nil {
		return
	}
	seen := map[rdf.Term]bool{}
	for _, n := range batch {
		if !n.IsStatement() || n.Quad.G == nil || seen[n.Quad.G] {
			continue
		}
		seen[n.Quad.G] = true
		if t.exempt != nil && n.Quad.G == t.exempt {
			continue
		}
		t.modified(n.Quad.G)
	}
}
