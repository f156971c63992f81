package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/geoknoesis/rdf-models/uri"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sample = `@prefix owl: <http://www.w3.org/2002/07/owl#> .
@prefix ex: <http://example.org/a#> .

<http://example.org/a> a owl:Ontology .
ex:Thing a owl:Class .
`

func run(t *testing.T, args ...string) string {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	return out.String()
}

func TestParseArg(t *testing.T) {
	u, err := parseArg("http://example.org/onto")
	require.NoError(t, err)
	assert.Equal(t, "http://example.org/onto", u.String())

	u, err = parseArg("models/a.ttl")
	require.NoError(t, err)
	assert.Equal(t, "file", u.Scheme())
	assert.True(t, strings.HasSuffix(u.String(), "/models/a.ttl"))

	_, err = parseArg("")
	assert.Error(t, err)
}

func TestConvertSkipsUnchangedOutput(t *testing.T) {
	dir := t.TempDir()
	in := filepath.Join(dir, "a.ttl")
	out := filepath.Join(dir, "a.nt")
	require.NoError(t, os.WriteFile(in, []byte(sample), 0o644))

	first := run(t, "convert", in, out)
	assert.Contains(t, first, "2 statements written")
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), "<http://example.org/a#Thing>")

	second := run(t, "convert", in, out)
	assert.Contains(t, second, "2 statements unchanged")
}

func TestImportsAndClosure(t *testing.T) {
	dir := t.TempDir()
	b := filepath.Join(dir, "b.ttl")
	require.NoError(t, os.WriteFile(b, []byte(sample), 0o644))
	a := filepath.Join(dir, "a.ttl")
	bURI := uri.FromPath(b).String()
	require.NoError(t, os.WriteFile(a, []byte(`@prefix owl: <http://www.w3.org/2002/07/owl#> .
<http://example.org/root> a owl:Ontology ; owl:imports <`+bURI+`> .
`), 0o644))

	assert.Equal(t, bURI+"\n", run(t, "imports", a))

	closure := run(t, "closure", a)
	assert.Contains(t, closure, "writable: "+uri.FromPath(a).String())
	assert.Contains(t, closure, "  "+bURI+"\n")
	assert.NotContains(t, closure, "error:")
}

func TestNormalize(t *testing.T) {
	out := run(t, "normalize", "file:///srv/a.ttl")
	assert.Equal(t, "file:///srv/a.ttl\tfile:///srv/a.ttl\n", out)
}

func TestWriteMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := prometheus.NewCounterVec(prometheus.CounterOpts{Name: "loads_total"}, []string{"result"})
	reg.MustRegister(c)
	c.WithLabelValues("ok").Add(2)

	var buf bytes.Buffer
	require.NoError(t, writeMetrics(&buf, reg))
	assert.Equal(t, "loads_total{result=\"ok\"} 2\n", buf.String())
}
