package uri

import (
	"context"
	"io"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConverterDispatch(t *testing.T) {
	ctx := context.Background()
	mapper, err := NewMapper(Rule{From: "http://example.org/", To: "mem:/example/"})
	require.NoError(t, err)
	mem := NewMemoryHandler()
	c := NewConverter(WithMapper(mapper), WithHandlers(mem))

	logical := MustParse("http://example.org/a.ttl")
	assert.Equal(t, "mem:/example/a.ttl", c.Normalize(logical).String())

	w, err := c.OpenOutput(ctx, logical)
	require.NoError(t, err)
	_, err = io.WriteString(w, "@prefix ex: <http://example.org/> .\n")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, ok := mem.Get(MustParse("mem:/example/a.ttl"))
	require.True(t, ok)
	assert.Contains(t, string(data), "@prefix")

	exists, err := c.Exists(ctx, logical)
	require.NoError(t, err)
	assert.True(t, exists)

	attrs, err := c.Attributes(ctx, logical, AttrLength)
	require.NoError(t, err)
	assert.EqualValues(t, len(data), *attrs.Length)

	require.NoError(t, c.Delete(ctx, logical))
	exists, err = c.Exists(ctx, logical)
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestConverterNoHandler(t *testing.T) {
	c := NewConverter(WithHandlers(NewMemoryHandler()))
	_, err := c.OpenInput(context.Background(), MustParse("ftp://example.org/a.ttl"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNoHandler))
}

func TestConverterFirstHandlerWins(t *testing.T) {
	first := NewMemoryHandler("mem")
	second := NewMemoryHandler("mem")
	c := NewConverter(WithHandlers(first))
	c.AddHandler(second)
	u := MustParse("mem:/a")
	w, err := c.OpenOutput(context.Background(), u)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, 1, first.OutputCount())
	assert.Equal(t, 0, second.OutputCount())
}

func TestContentDescription(t *testing.T) {
	ctx := context.Background()
	mem := NewMemoryHandler()
	c := NewConverter(WithHandlers(mem))

	mem.Put(MustParse("mem:/sniffed.data"), []byte("<http://a/s> <http://a/p> <http://a/o> .\n"))
	desc, err := c.ContentDescription(ctx, MustParse("mem:/sniffed.data"))
	require.NoError(t, err)
	assert.Equal(t, Valid, desc.Validity)
	assert.Equal(t, rdf.FormatNTriples, desc.Format)

	mem.Put(MustParse("mem:/binary.ttl"), []byte{0x00, 0x01})
	desc, err = c.ContentDescription(ctx, MustParse("mem:/binary.ttl"))
	require.NoError(t, err)
	assert.Equal(t, Indeterminate, desc.Validity)
	assert.Equal(t, rdf.FormatTurtle, desc.Format)

	desc, err = c.ContentDescription(ctx, MustParse("mem:/missing.bin"))
	require.NoError(t, err)
	assert.Equal(t, InvalidContent, desc)
}

func TestDescribeOrder(t *testing.T) {
	verdict := func(v Validity, contentType string) Describer {
		return DescriberFunc(func(URI, []byte) ContentDescription {
			return ContentDescription{Validity: v, ContentType: contentType}
		})
	}
	u := MustParse("mem:/x")
	got := Describe([]Describer{verdict(Indeterminate, "first"), verdict(Indeterminate, "second"), verdict(Valid, "valid")}, u, nil)
	assert.Equal(t, "valid", got.ContentType)

	got = Describe([]Describer{verdict(Invalid, "no"), verdict(Indeterminate, "first"), verdict(Indeterminate, "second")}, u, nil)
	assert.Equal(t, "first", got.ContentType)

	assert.Equal(t, InvalidContent, Describe([]Describer{verdict(Invalid, "no")}, u, nil))
	assert.Equal(t, "indeterminate", Indeterminate.String())
}
