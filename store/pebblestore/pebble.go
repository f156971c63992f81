// Package pebblestore implements store.Store on a Pebble key-value engine.
//
// Quads are keyed by their graph, subject, predicate and object in N-Triples
// form, so every prefix of that order can be scanned directly. Each key holds
// the insertion sequence number that orders Match results.
package pebblestore

import (
	"context"
	"encoding/binary"
	"path/filepath"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"go.uber.org/zap"
)

const (
	quadPrefix      = 'q'
	namespacePrefix = 'n'
	dataDirname     = "quads"
)

var seqKey = []byte{'s'}

type Config struct {
	// Dirname is the directory the store writes to. It must not be shared
	// with another open store.
	Dirname string
	// MemBacked keeps all data in memory.
	MemBacked bool
	// Logger receives storage diagnostics. Nil disables logging.
	Logger *zap.Logger
}

// Store is a persistent store.Store.
type Store struct {
	cfg    Config
	db     *pebble.DB
	mu     sync.RWMutex
	seq    uint64
	closed bool
	feed   store.Feed
}

var _ store.Store = (*Store)(nil)

// Open opens or creates the store described by cfg.
func Open(cfg Config) (*Store, error) {
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	fs := vfs.Default
	if cfg.MemBacked {
		fs = vfs.NewMem()
	}
	dirname := filepath.Join(cfg.Dirname, dataDirname)
	db, err := pebble.Open(dirname, &pebble.Options{FS: fs})
	if err != nil {
		return nil, errors.Wrapf(err, "pebblestore: open %s", dirname)
	}
	s := &Store{cfg: cfg, db: db}
	if s.seq, err = s.loadSeq(); err != nil {
		return nil, errors.CombineErrors(err, db.Close())
	}
	cfg.Logger.Debug("opened quad store",
		zap.String("dir", dirname),
		zap.Bool("memBacked", cfg.MemBacked),
		zap.Uint64("seq", s.seq))
	return s, nil
}

func (s *Store) loadSeq() (uint64, error) {
	value, closer, err := s.db.Get(seqKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, errors.Wrap(err, "pebblestore: read sequence")
	}
	defer closer.Close()
	if len(value) != 8 {
		return 0, errors.Newf("pebblestore: corrupt sequence value of %d bytes", len(value))
	}
	return binary.BigEndian.Uint64(value), nil
}

func (s *Store) Match(_ context.Context, p store.Pattern) ([]rdf.Quad, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return s.matchLocked(p)
}

type seqQuad struct {
	quad rdf.Quad
	seq  uint64
}

func (s *Store) matchLocked(p store.Pattern) ([]rdf.Quad, error) {
	prefix := scanPrefix(p)
	iter := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	var found []seqQuad
	for iter.First(); iter.Valid(); iter.Next() {
		q, err := decodeQuadKey(iter.Key())
		if err != nil {
			return nil, errors.CombineErrors(err, iter.Close())
		}
		if !p.Matches(q) {
			continue
		}
		found = append(found, seqQuad{quad: q, seq: binary.BigEndian.Uint64(iter.Value())})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "pebblestore: scan quads")
	}
	sort.Slice(found, func(i, j int) bool { return found[i].seq < found[j].seq })
	out := make([]rdf.Quad, len(found))
	for i, f := range found {
		out[i] = f.quad
	}
	return out, nil
}

func (s *Store) Add(_ context.Context, quads ...rdf.Quad) error {
	ops := make([]store.Op, len(quads))
	for i, q := range quads {
		ops[i] = store.Op{Quad: q}
	}
	return s.apply(ops)
}

func (s *Store) Remove(_ context.Context, quads ...rdf.Quad) error {
	ops := make([]store.Op, len(quads))
	for i, q := range quads {
		ops[i] = store.Op{Remove: true, Quad: q}
	}
	return s.apply(ops)
}

func (s *Store) RemoveMatching(_ context.Context, p store.Pattern) (int, error) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return 0, store.ErrClosed
	}
	matched, err := s.matchLocked(p)
	if err != nil {
		s.mu.Unlock()
		return 0, err
	}
	ops := make([]store.Op, len(matched))
	for i, q := range matched {
		ops[i] = store.Op{Remove: true, Quad: q}
	}
	events, err := s.applyLocked(ops)
	s.mu.Unlock()
	if err != nil {
		return 0, err
	}
	s.feed.Publish(events)
	return len(events), nil
}

func (s *Store) apply(ops []store.Op) error {
	for _, op := range ops {
		if err := store.ValidQuad(op.Quad); err != nil {
			return err
		}
	}
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	events, err := s.applyLocked(ops)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.feed.Publish(events)
	return nil
}

// applyLocked writes ops in one indexed batch so that later ops observe
// earlier ones in the same call.
func (s *Store) applyLocked(ops []store.Op) ([]store.Event, error) {
	batch := s.db.NewIndexedBatch()
	defer batch.Close()
	seq := s.seq
	var events []store.Event
	for _, op := range ops {
		key := encodeQuadKey(op.Quad)
		exists, err := has(batch, key)
		if err != nil {
			return nil, err
		}
		switch {
		case op.Remove && exists:
			if err := batch.Delete(key, nil); err != nil {
				return nil, errors.Wrap(err, "pebblestore: delete quad")
			}
			events = append(events, store.Event{Kind: store.EventRemoved, Quad: op.Quad})
		case !op.Remove && !exists:
			seq++
			if err := batch.Set(key, encodeSeq(seq), nil); err != nil {
				return nil, errors.Wrap(err, "pebblestore: write quad")
			}
			events = append(events, store.Event{Kind: store.EventAdded, Quad: op.Quad})
		}
	}
	if len(events) == 0 {
		return nil, nil
	}
	if seq != s.seq {
		if err := batch.Set(seqKey, encodeSeq(seq), nil); err != nil {
			return nil, errors.Wrap(err, "pebblestore: write sequence")
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return nil, errors.Wrap(err, "pebblestore: commit")
	}
	s.seq = seq
	return events, nil
}

func has(batch *pebble.Batch, key []byte) (bool, error) {
	_, closer, err := batch.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "pebblestore: lookup")
	}
	return true, closer.Close()
}

// Namespaces returns the bindings in the order they were first declared.
func (s *Store) Namespaces(context.Context) ([]rdf.Namespace, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	prefix := []byte{namespacePrefix}
	iter := s.db.NewIter(&pebble.IterOptions{LowerBound: prefix, UpperBound: prefixEnd(prefix)})
	type binding struct {
		ns  rdf.Namespace
		seq uint64
	}
	var bindings []binding
	for iter.First(); iter.Valid(); iter.Next() {
		value := iter.Value()
		if len(value) < 8 {
			return nil, errors.CombineErrors(
				errors.Newf("pebblestore: corrupt namespace %q", iter.Key()[1:]), iter.Close())
		}
		bindings = append(bindings, binding{
			ns:  rdf.Namespace{Prefix: string(iter.Key()[1:]), IRI: string(value[8:])},
			seq: binary.BigEndian.Uint64(value[:8]),
		})
	}
	if err := iter.Close(); err != nil {
		return nil, errors.Wrap(err, "pebblestore: scan namespaces")
	}
	sort.Slice(bindings, func(i, j int) bool { return bindings[i].seq < bindings[j].seq })
	out := make([]rdf.Namespace, len(bindings))
	for i, b := range bindings {
		out[i] = b.ns
	}
	return out, nil
}

// SetNamespace binds prefix to namespace. An empty namespace removes the
// binding. Rebinding a prefix keeps its position.
func (s *Store) SetNamespace(_ context.Context, prefix, namespace string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return store.ErrClosed
	}
	changed, err := s.setNamespaceLocked(prefix, namespace)
	s.mu.Unlock()
	if err != nil || !changed {
		return err
	}
	s.feed.Publish([]store.Event{{Kind: store.EventNamespace, Prefix: prefix, Namespace: namespace}})
	return nil
}

func (s *Store) setNamespaceLocked(prefix, namespace string) (bool, error) {
	key := append([]byte{namespacePrefix}, prefix...)
	current, seq, exists, err := s.lookupNamespace(key)
	if err != nil {
		return false, err
	}
	if current == namespace || (!exists && namespace == "") {
		return false, nil
	}
	batch := s.db.NewBatch()
	defer batch.Close()
	next := s.seq
	if namespace == "" {
		err = batch.Delete(key, nil)
	} else {
		if !exists {
			next++
			seq = next
			err = batch.Set(seqKey, encodeSeq(next), nil)
		}
		if err == nil {
			err = batch.Set(key, append(encodeSeq(seq), namespace...), nil)
		}
	}
	if err != nil {
		return false, errors.Wrap(err, "pebblestore: write namespace")
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return false, errors.Wrap(err, "pebblestore: commit namespace")
	}
	s.seq = next
	return true, nil
}

func (s *Store) lookupNamespace(key []byte) (iri string, seq uint64, exists bool, err error) {
	value, closer, err := s.db.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return "", 0, false, nil
	}
	if err != nil {
		return "", 0, false, errors.Wrap(err, "pebblestore: read namespace")
	}
	defer closer.Close()
	if len(value) < 8 {
		return "", 0, false, errors.Newf("pebblestore: corrupt namespace %q", key[1:])
	}
	return string(value[8:]), binary.BigEndian.Uint64(value[:8]), true, nil
}

func (s *Store) Subscribe(fn func([]store.Event)) func() { return s.feed.Subscribe(fn) }

func (s *Store) Begin(context.Context) (store.Txn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return &txn{store: s, active: true}, nil
}

// Close flushes and closes the underlying engine. Closing twice is a no-op.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	if err := s.db.Close(); err != nil {
		return errors.Wrap(err, "pebblestore: close")
	}
	s.cfg.Logger.Debug("closed quad store", zap.String("dir", s.cfg.Dirname))
	return nil
}

type txn struct {
	store  *Store
	mu     sync.Mutex
	ops    []store.Op
	active bool
}

func (t *txn) Add(quads ...rdf.Quad) error    { return t.buffer(false, quads) }
func (t *txn) Remove(quads ...rdf.Quad) error { return t.buffer(true, quads) }

func (t *txn) buffer(remove bool, quads []rdf.Quad) error {
	for _, q := range quads {
		if err := store.ValidQuad(q); err != nil {
			return err
		}
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return store.ErrTxnDone
	}
	for _, q := range quads {
		t.ops = append(t.ops, store.Op{Remove: remove, Quad: q})
	}
	return nil
}

func (t *txn) Match(p store.Pattern) ([]rdf.Quad, error) {
	t.mu.Lock()
	ops := append([]store.Op(nil), t.ops...)
	active := t.active
	t.mu.Unlock()
	if !active {
		return nil, store.ErrTxnDone
	}
	committed, err := t.store.Match(context.Background(), p)
	if err != nil {
		return nil, err
	}
	return store.Overlay(committed, ops, p), nil
}

func (t *txn) Commit(context.Context) error {
	t.mu.Lock()
	if !t.active {
		t.mu.Unlock()
		return store.ErrTxnDone
	}
	t.active = false
	ops := t.ops
	t.ops = nil
	t.mu.Unlock()
	return t.store.apply(ops)
}

func (t *txn) Rollback() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.active {
		return store.ErrTxnDone
	}
	t.active = false
	t.ops = nil
	return nil
}

func (t *txn) Active() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.active
}
