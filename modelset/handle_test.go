package modelset

import (
	"context"
	"testing"

	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/uri"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	exThing  = rdf.IRI{Value: "http://example.org/thing"}
	owlThing = rdf.IRI{Value: rdf.OWLNamespace + "Thing"}
)

func thingTriple() rdf.Triple {
	return rdf.Triple{S: exThing, P: rdf.RDFType, O: owlThing}
}

func TestHandleQueryIsScopedToClosure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.put("mem:/a.ttl", ontology("mem:/a.ttl", "mem:/b.ttl"))
	f.put("mem:/b.ttl", ontology("mem:/b.ttl"))
	outside := f.put("mem:/c.ttl", ontology("mem:/c.ttl"))
	_, err := f.set.GetModel(ctx, outside, true)
	require.NoError(t, err)

	m, err := f.set.GetModel(ctx, a, true)
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	classes, err := h.Query(ctx, store.Pattern{P: rdf.RDFType, O: rdf.IRI{Value: rdf.OWLNamespace + "Class"}})
	require.NoError(t, err)
	var subjects []string
	for _, q := range classes {
		subjects = append(subjects, q.S.(rdf.IRI).Value)
	}
	assert.Equal(t, []string{"http://example.org/a", "http://example.org/b"}, subjects)

	none, err := h.Query(ctx, store.Pattern{G: outside.IRI()})
	require.NoError(t, err)
	assert.Empty(t, none)

	own, err := h.Query(ctx, store.Pattern{G: a.IRI()})
	require.NoError(t, err)
	assert.Len(t, own, 3)
}

func TestHandleWritesOnlyWritableGraph(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)
	assert.Equal(t, m.URI(), h.Writable())

	require.NoError(t, h.AddQuads(ctx, thingTriple().InGraph(m.Graph())))
	err = h.AddQuads(ctx, thingTriple().InGraph(rdf.IRI{Value: "mem:/other.ttl"}))
	assert.ErrorIs(t, err, ErrNotWritable)
	assert.Len(t, f.graph(t, m.URI()), 1)

	bad := rdf.Triple{S: rdf.IRI{Value: "not an iri"}, P: rdf.RDFType, O: owlThing}
	assert.Error(t, h.Add(ctx, bad))

	require.NoError(t, h.Remove(ctx, thingTriple()))
	assert.Empty(t, f.graph(t, m.URI()))
}

func TestHandleTransactionCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	require.NoError(t, h.Begin(ctx))
	assert.ErrorIs(t, h.Begin(ctx), ErrTxnActive)
	require.NoError(t, h.Add(ctx, thingTriple()))

	visible, err := h.Query(ctx, store.Pattern{S: exThing})
	require.NoError(t, err)
	assert.Len(t, visible, 1)
	assert.Empty(t, f.graph(t, m.URI()))
	assert.False(t, m.Modified())

	require.NoError(t, h.Commit(ctx))
	assert.False(t, h.InTransaction())
	assert.Len(t, f.graph(t, m.URI()), 1)
	assert.True(t, m.Modified())
	assert.ErrorIs(t, h.Commit(ctx), store.ErrTxnDone)
}

func TestMutationsJoinCallerTransaction(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	require.NoError(t, h.Begin(ctx))
	require.NoError(t, m.AddImport(ctx, uri.MustParse("mem:/b.ttl")))
	// The import joined the open transaction and did not commit it.
	assert.True(t, h.InTransaction())
	assert.False(t, h.Closed())
	assert.Empty(t, f.graph(t, m.URI()))

	require.NoError(t, h.Rollback())
	// Nothing changed, so the handle and its closure stay valid.
	assert.False(t, h.Closed())
	imports, err := m.Imports(ctx)
	require.NoError(t, err)
	assert.Empty(t, imports)
	assert.False(t, m.Modified())
}

func TestJoinedImportRefreshesClosureOnCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	b := f.put("mem:/b.ttl", ontology("mem:/b.ttl"))
	m, err := f.set.GetModel(ctx, f.put("mem:/a.ttl", ontology("mem:/a.ttl")), true)
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	require.NoError(t, h.Begin(ctx))
	require.NoError(t, m.AddImport(ctx, b))
	inside, err := m.Closure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem:/a.ttl"}, readable(inside))

	require.NoError(t, h.Commit(ctx))
	assert.True(t, h.Closed())
	imports, err := m.Imports(ctx)
	require.NoError(t, err)
	assert.Equal(t, []uri.URI{b}, imports)
	after, err := m.Closure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem:/a.ttl", "mem:/b.ttl"}, readable(after))
}

func TestJoinedRemoveImportRefreshesClosureOnCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.put("mem:/b.ttl", ontology("mem:/b.ttl"))
	m, err := f.set.GetModel(ctx, f.put("mem:/a.ttl", ontology("mem:/a.ttl", "mem:/b.ttl")), true)
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)
	before, err := m.Closure(ctx)
	require.NoError(t, err)
	require.Len(t, readable(before), 2)

	require.NoError(t, h.Begin(ctx))
	require.NoError(t, m.RemoveImport(ctx, uri.MustParse("mem:/b.ttl")))
	require.NoError(t, h.Commit(ctx))

	after, err := m.Closure(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"mem:/a.ttl"}, readable(after))
}

func TestJoinedRenameRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.put("mem:/a.ttl", ontology("mem:/a.ttl"))
	m, err := f.set.GetModel(ctx, old, true)
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	target := uri.MustParse("mem:/renamed.ttl")
	require.NoError(t, h.Begin(ctx))
	require.NoError(t, m.SetURI(ctx, target))
	assert.Equal(t, old, m.URI())
	assert.Nil(t, f.set.lookup(target))

	require.NoError(t, h.Rollback())
	assert.Equal(t, old, m.URI())
	assert.Same(t, m, f.set.lookup(old))
	assert.Nil(t, f.set.lookup(target))
	assert.Len(t, f.graph(t, old), 2)
	assert.Empty(t, f.graph(t, target))
}

func TestJoinedRenameAppliesOnCommit(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	old := f.put("mem:/a.ttl", ontology("mem:/a.ttl"))
	m, err := f.set.GetModel(ctx, old, true)
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	target := uri.MustParse("mem:/renamed.ttl")
	require.NoError(t, h.Begin(ctx))
	require.NoError(t, m.SetURI(ctx, target))
	require.NoError(t, h.Commit(ctx))

	assert.Equal(t, target, m.URI())
	assert.Same(t, m, f.set.lookup(target))
	assert.Nil(t, f.set.lookup(old))
	mod, err := m.Closure(ctx)
	require.NoError(t, err)
	assert.Equal(t, target, mod.Writable)
	assert.Len(t, f.graph(t, target), 2)
}

func TestHandleRetiredByUnload(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.GetModel(ctx, f.put("mem:/a.ttl", ontology("mem:/a.ttl")), true)
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	require.NoError(t, m.Unload(ctx))
	assert.True(t, h.Closed())
	_, err = h.Query(ctx, store.Pattern{})
	assert.ErrorIs(t, err, ErrHandleClosed)
	assert.ErrorIs(t, h.Add(ctx, thingTriple()), ErrHandleClosed)

	fresh, err := m.Handle(ctx)
	require.NoError(t, err)
	assert.NotSame(t, h, fresh)
	assert.False(t, fresh.Closed())
}

func TestRefreshRetiresHandles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)
	h, err := m.Handle(ctx)
	require.NoError(t, err)

	f.set.Refresh()
	assert.True(t, h.Closed())
}

func TestSessionTeardown(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)

	sess, err := f.set.Session(ctx, m)
	require.NoError(t, err)
	shared, err := m.Handle(ctx)
	require.NoError(t, err)
	assert.NotSame(t, shared, sess.Handle())

	h := sess.Handle()
	require.NoError(t, h.Begin(ctx))
	require.NoError(t, h.Add(ctx, thingTriple()))

	// A rename retires the session's handle, which stays usable until its
	// transaction ends.
	require.NoError(t, m.SetURI(ctx, uri.MustParse("mem:/renamed.ttl")))
	assert.False(t, h.Closed())
	assert.True(t, shared.Closed())

	require.NoError(t, sess.Close())
	assert.True(t, h.Closed())
	assert.Empty(t, f.graph(t, m.URI()))
	require.NoError(t, sess.Close())
}

func TestSessionCloseRollsBack(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)
	sess, err := f.set.Session(ctx, m)
	require.NoError(t, err)
	assert.NotEqual(t, uuid.Nil, sess.ID)

	require.NoError(t, sess.Handle().Begin(ctx))
	require.NoError(t, sess.Handle().Add(ctx, thingTriple()))
	require.NoError(t, sess.Close())
	assert.Empty(t, f.graph(t, m.URI()))
	assert.ErrorIs(t, sess.Handle().Begin(ctx), ErrHandleClosed)
}

func TestSessionRequiresOwnedModel(t *testing.T) {
	f := newFixture(t)
	_, err := f.set.Session(context.Background(), NewModel(uri.MustParse("mem:/x.ttl"), nil))
	assert.ErrorIs(t, err, ErrNotOwned)
}
