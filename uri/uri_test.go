package uri

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	u, err := Parse("http://example.org/onto/core.ttl#Thing")
	require.NoError(t, err)
	assert.Equal(t, "http", u.Scheme())
	assert.True(t, u.IsAbsolute())
	assert.Equal(t, "example.org", u.Host())
	assert.Equal(t, []string{"onto", "core.ttl"}, u.Segments())
	assert.Equal(t, "Thing", u.Fragment())
	assert.Equal(t, ".ttl", u.Ext())
	assert.Equal(t, "http://example.org/onto/core.ttl", u.TrimFragment().String())

	_, err = Parse("  ")
	assert.Error(t, err)
	_, err = Parse("http://exa mple.org/%zz")
	assert.Error(t, err)
}

func TestOpaqueURI(t *testing.T) {
	u := MustParse("urn:example:models:core")
	assert.Equal(t, "urn", u.Scheme())
	assert.Equal(t, "example:models:core", u.Path())
	assert.Empty(t, u.Fragment())
}

func TestResolveAndAppend(t *testing.T) {
	base := MustParse("http://example.org/onto/core.ttl")
	assert.Equal(t, "http://example.org/onto/ext.ttl", base.Resolve("ext.ttl").String())
	assert.Equal(t, "http://example.org/shared.ttl", base.Resolve("../shared.ttl").String())

	dir := MustParse("mem:/models")
	assert.Equal(t, "mem:/models/a%20b.ttl", dir.AppendSegment("a b.ttl").String())
}

func TestFromPath(t *testing.T) {
	dir := t.TempDir()
	u := FromPath(filepath.Join(dir, "x.ttl"))
	assert.Equal(t, "file", u.Scheme())
	p, err := u.FilePath()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "x.ttl"), p)

	_, err = MustParse("http://a/b").FilePath()
	assert.Error(t, err)
}

func TestURIComparable(t *testing.T) {
	seen := map[URI]int{MustParse("http://a/b"): 1}
	assert.Equal(t, 1, seen[MustParse("http://a/b")])
	assert.True(t, URI{}.IsZero())
}
