// Package storetest provides a conformance suite for store.Store
// implementations.
package storetest

import (
	"context"
	"sync"
	"testing"

	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Quad builds a quad from IRIs. A value starting with '"' becomes a plain
// literal object.
func Quad(s, p, o, g string) rdf.Quad {
	var object rdf.Term = rdf.IRI{Value: o}
	if len(o) > 0 && o[0] == '"' {
		object = rdf.Literal{Lexical: o[1:]}
	}
	return rdf.Quad{S: rdf.IRI{Value: s}, P: rdf.IRI{Value: p}, O: object, G: rdf.IRI{Value: g}}
}

type recorder struct {
	mu      sync.Mutex
	batches [][]store.Event
}

func (r *recorder) record(events []store.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, events)
}

func (r *recorder) snapshot() [][]store.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([][]store.Event(nil), r.batches...)
}

// Run exercises open's store against the Store contract. open is called once
// per subtest and must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	ctx := context.Background()
	a1 := Quad("http://a/s1", "http://a/p", "http://a/o1", "http://g/a")
	a2 := Quad("http://a/s2", "http://a/p", `"two`, "http://g/a")
	b1 := Quad("http://a/s1", "http://a/p", "http://a/o1", "http://g/b")

	t.Run("AddMatchInsertionOrder", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Add(ctx, a2, a1, b1))
		got, err := s.Match(ctx, store.Pattern{G: rdf.IRI{Value: "http://g/a"}})
		require.NoError(t, err)
		assert.Equal(t, []rdf.Quad{a2, a1}, got)

		got, err = s.Match(ctx, store.Pattern{S: rdf.IRI{Value: "http://a/s1"}})
		require.NoError(t, err)
		assert.Equal(t, []rdf.Quad{a1, b1}, got)

		got, err = s.Match(ctx, store.Pattern{O: rdf.Literal{Lexical: "two"}})
		require.NoError(t, err)
		assert.Equal(t, []rdf.Quad{a2}, got)
	})

	t.Run("RejectsIncompleteQuads", func(t *testing.T) {
		s := open(t)
		assert.Error(t, s.Add(ctx, rdf.Quad{S: rdf.IRI{Value: "http://a/s"}}))
		noGraph := a1
		noGraph.G = nil
		assert.Error(t, s.Add(ctx, noGraph))
	})

	t.Run("EventsOnePerCall", func(t *testing.T) {
		s := open(t)
		rec := &recorder{}
		unsubscribe := s.Subscribe(rec.record)
		require.NoError(t, s.Add(ctx, a1, a2))
		require.NoError(t, s.Add(ctx, a1))
		require.NoError(t, s.Remove(ctx, a1))
		n, err := s.RemoveMatching(ctx, store.Pattern{G: rdf.IRI{Value: "http://g/a"}})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		batches := rec.snapshot()
		require.Len(t, batches, 3)
		assert.Len(t, batches[0], 2)
		assert.Equal(t, store.EventAdded, batches[0][0].Kind)
		assert.Equal(t, store.Event{Kind: store.EventRemoved, Quad: a1}, batches[1][0])
		assert.Equal(t, store.Event{Kind: store.EventRemoved, Quad: a2}, batches[2][0])

		unsubscribe()
		require.NoError(t, s.Add(ctx, b1))
		assert.Len(t, rec.snapshot(), 3)
	})

	t.Run("TransactionCommit", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Add(ctx, a1))
		rec := &recorder{}
		s.Subscribe(rec.record)

		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		assert.True(t, txn.Active())
		require.NoError(t, txn.Add(a2, b1))
		require.NoError(t, txn.Remove(a1))

		inTxn, err := txn.Match(store.Pattern{G: rdf.IRI{Value: "http://g/a"}})
		require.NoError(t, err)
		assert.Equal(t, []rdf.Quad{a2}, inTxn)
		outside, err := s.Match(ctx, store.Pattern{G: rdf.IRI{Value: "http://g/a"}})
		require.NoError(t, err)
		assert.Equal(t, []rdf.Quad{a1}, outside)
		assert.Empty(t, rec.snapshot())

		require.NoError(t, txn.Commit(ctx))
		assert.False(t, txn.Active())
		assert.ErrorIs(t, txn.Commit(ctx), store.ErrTxnDone)
		require.Len(t, rec.snapshot(), 1)
		assert.Len(t, rec.snapshot()[0], 3)

		all, err := s.Match(ctx, store.Pattern{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []rdf.Quad{a2, b1}, all)
	})

	t.Run("TransactionRollback", func(t *testing.T) {
		s := open(t)
		txn, err := s.Begin(ctx)
		require.NoError(t, err)
		require.NoError(t, txn.Add(a1))
		require.NoError(t, txn.Rollback())
		assert.False(t, txn.Active())
		assert.ErrorIs(t, txn.Add(a2), store.ErrTxnDone)
		all, err := s.Match(ctx, store.Pattern{})
		require.NoError(t, err)
		assert.Empty(t, all)
	})

	t.Run("Namespaces", func(t *testing.T) {
		s := open(t)
		rec := &recorder{}
		s.Subscribe(rec.record)
		require.NoError(t, s.SetNamespace(ctx, "ex", "http://example.org/"))
		require.NoError(t, s.SetNamespace(ctx, "owl", rdf.OWLNamespace))
		require.NoError(t, s.SetNamespace(ctx, "ex", "http://example.org/"))
		require.NoError(t, s.SetNamespace(ctx, "ex", "http://example.com/"))
		require.NoError(t, s.SetNamespace(ctx, "owl", ""))

		ns, err := s.Namespaces(ctx)
		require.NoError(t, err)
		assert.Equal(t, []rdf.Namespace{{Prefix: "ex", IRI: "http://example.com/"}}, ns)

		batches := rec.snapshot()
		require.Len(t, batches, 4)
		assert.Equal(t, store.Event{Kind: store.EventNamespace, Prefix: "owl"}, batches[3][0])
	})

	t.Run("Closed", func(t *testing.T) {
		s := open(t)
		require.NoError(t, s.Close())
		_, err := s.Match(ctx, store.Pattern{})
		assert.ErrorIs(t, err, store.ErrClosed)
		assert.ErrorIs(t, s.Add(ctx, a1), store.ErrClosed)
	})
}
