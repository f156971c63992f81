package modelset

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSaveSkipsUnchangedContent(t *testing.T) {
	for _, strategy := range []SaveStrategy{SaveInMemory, SaveViaTempFile} {
		t.Run(strategy.String(), func(t *testing.T) {
			ctx := context.Background()
			f := newFixture(t)
			f.set.Options().Set(OptionSaveStrategy, strategy)
			m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
			require.NoError(t, err)
			h, err := m.Handle(ctx)
			require.NoError(t, err)
			require.NoError(t, h.Add(ctx,
				rdf.Triple{S: rdf.IRI{Value: "http://example.org/b"}, P: rdf.RDFType, O: rdf.IRI{Value: rdf.OWLNamespace + "Class"}},
				rdf.Triple{S: rdf.IRI{Value: "http://example.org/a"}, P: rdf.RDFType, O: rdf.IRI{Value: rdf.OWLNamespace + "Class"}},
			))
			require.True(t, m.Modified())

			written, err := m.Save(ctx)
			require.NoError(t, err)
			assert.True(t, written)
			assert.False(t, m.Modified())

			written, err = m.Save(ctx)
			require.NoError(t, err)
			assert.False(t, written)
			assert.Equal(t, 1, f.mem.OutputCount())

			data, ok := f.mem.Get(m.URI())
			require.True(t, ok)
			text := string(data)
			assert.Less(t, strings.Index(text, "http://example.org/a"), strings.Index(text, "http://example.org/b"))
		})
	}
}

func TestSaveRoundTrip(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	a := f.put("mem:/a.ttl", ontology("mem:/a.ttl", "mem:/b.ttl"))
	m, err := f.set.GetModel(ctx, a, true)
	require.NoError(t, err)

	written, err := m.Save(ctx)
	require.NoError(t, err)
	assert.True(t, written)
	require.NoError(t, m.Load(ctx, LoadForce))

	// A reloaded model serializes to the bytes it was read from.
	written, err = m.Save(ctx)
	require.NoError(t, err)
	assert.False(t, written)
	assert.Equal(t, 1, f.mem.OutputCount())
	assert.Len(t, f.graph(t, a), 3)
}

func TestSaveFormatOverride(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.set.Options().Set(OptionSaveFormat, rdf.FormatNTriples)
	m, err := f.set.GetModel(ctx, f.put("mem:/a.ttl", ontology("mem:/a.ttl")), true)
	require.NoError(t, err)

	_, err = m.Save(ctx)
	require.NoError(t, err)
	data, ok := f.mem.Get(m.URI())
	require.True(t, ok)
	assert.NotContains(t, string(data), "@prefix")
	assert.Contains(t, string(data), "<mem:/a.ttl> <"+rdf.RDFNamespace+"type> <"+rdf.OWLNamespace+"Ontology> .")
}

func TestSaveIfChanged(t *testing.T) {
	ctx := context.Background()
	mem := uri.NewMemoryHandler()
	u := uri.MustParse("mem:/blob")
	write := func(content string) func(io.Writer) error {
		return func(w io.Writer) error {
			_, err := io.WriteString(w, content)
			return err
		}
	}
	big := strings.Repeat("x", compareChunkSize+10)

	cases := []struct {
		name    string
		content string
		written bool
	}{
		{"new", "hello", true},
		{"same", "hello", false},
		{"longer", "hello world", true},
		{"shorter", "hello", true},
		{"multi chunk", big, true},
		{"multi chunk same", big, false},
		{"last chunk differs", big[:len(big)-1] + "y", true},
		{"empty", "", true},
		{"empty again", "", false},
	}
	for _, strategy := range []SaveStrategy{SaveInMemory, SaveViaTempFile} {
		for _, tc := range cases {
			written, err := SaveIfChanged(ctx, mem, u, write(tc.content), strategy)
			require.NoError(t, err, "%s/%s", strategy, tc.name)
			assert.Equal(t, tc.written, written, "%s/%s", strategy, tc.name)
			data, _ := mem.Get(u)
			assert.True(t, bytes.Equal([]byte(tc.content), data), "%s/%s", strategy, tc.name)
		}
	}
}

func TestSaveIfChangedSerializeError(t *testing.T) {
	mem := uri.NewMemoryHandler()
	failing := func(io.Writer) error { return io.ErrClosedPipe }
	written, err := SaveIfChanged(context.Background(), mem, uri.MustParse("mem:/x"), failing, SaveInMemory)
	assert.ErrorIs(t, err, io.ErrClosedPipe)
	assert.False(t, written)
	assert.Zero(t, mem.OutputCount())
}

func TestParseSaveStrategy(t *testing.T) {
	s, err := ParseSaveStrategy("tempfile")
	require.NoError(t, err)
	assert.Equal(t, SaveViaTempFile, s)
	s, err = ParseSaveStrategy("memory")
	require.NoError(t, err)
	assert.Equal(t, SaveInMemory, s)
	_, err = ParseSaveStrategy("disk")
	assert.Error(t, err)
}
