package pebblestore_test

import (
	"context"
	"testing"

	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/store/pebblestore"
	"github.com/geoknoesis/rdf-models/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, err := pebblestore.Open(pebblestore.Config{Dirname: "/data", MemBacked: true})
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestReopenKeepsQuadsAndNamespaces(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	first := storetest.Quad("http://a/s", "http://a/p", `"hello`, "http://g/1")
	second := storetest.Quad("http://a/s", "http://a/p", "http://a/o", "http://g/1")

	s, err := pebblestore.Open(pebblestore.Config{Dirname: dir})
	require.NoError(t, err)
	require.NoError(t, s.Add(ctx, first, second))
	require.NoError(t, s.SetNamespace(ctx, "ex", "http://a/"))
	require.NoError(t, s.Close())

	s, err = pebblestore.Open(pebblestore.Config{Dirname: dir})
	require.NoError(t, err)
	defer s.Close()
	got, err := s.Match(ctx, store.Pattern{G: rdf.IRI{Value: "http://g/1"}})
	require.NoError(t, err)
	assert.Equal(t, []rdf.Quad{first, second}, got)

	third := storetest.Quad("http://a/s0", "http://a/p", "http://a/o", "http://g/1")
	require.NoError(t, s.Add(ctx, third))
	got, err = s.Match(ctx, store.Pattern{})
	require.NoError(t, err)
	assert.Equal(t, []rdf.Quad{first, second, third}, got)

	ns, err := s.Namespaces(ctx)
	require.NoError(t, err)
	assert.Equal(t, []rdf.Namespace{{Prefix: "ex", IRI: "http://a/"}}, ns)
}

func TestMatchByGraphAndSubjectPrefix(t *testing.T) {
	ctx := context.Background()
	s, err := pebblestore.Open(pebblestore.Config{Dirname: "/data", MemBacked: true})
	require.NoError(t, err)
	defer s.Close()
	a := storetest.Quad("http://a/s", "http://a/p", "http://a/o", "http://g/1")
	// Subject sharing a string prefix with a must not match a subject scan.
	b := storetest.Quad("http://a/s2", "http://a/p", "http://a/o", "http://g/1")
	c := storetest.Quad("http://a/s", "http://a/p", "http://a/o", "http://g/10")
	require.NoError(t, s.Add(ctx, a, b, c))

	got, err := s.Match(ctx, store.Pattern{G: rdf.IRI{Value: "http://g/1"}, S: rdf.IRI{Value: "http://a/s"}})
	require.NoError(t, err)
	assert.Equal(t, []rdf.Quad{a}, got)

	got, err = s.Match(ctx, store.Pattern{G: rdf.IRI{Value: "http://g/1"}})
	require.NoError(t, err)
	assert.Equal(t, []rdf.Quad{a, b}, got)
}
