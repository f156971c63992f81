package modelset

import (
	"context"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/geoknoesis/rdf-models/uri"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// gateCodec holds the decode of every URI containing "slow" until release is
// closed.
type gateCodec struct {
	FormatCodec
	started chan struct{}
	release chan struct{}
}

func (c *gateCodec) Decode(ctx context.Context, r io.Reader, base string, sink Sink) error {
	if strings.Contains(base, "slow") {
		close(c.started)
		<-c.release
	}
	return c.FormatCodec.Decode(ctx, r, base, sink)
}

func TestConcurrentGetModelLoadsOnce(t *testing.T) {
	ctx := context.Background()
	codec := &countingCodec{FormatCodec: TurtleCodec}
	reg := NewRegistry()
	reg.RegisterScheme("mem", FactoryFunc(func(u uri.URI) (*Model, error) {
		return NewModel(u, codec), nil
	}))
	f := newFixture(t, WithRegistry(reg))
	a := f.put("mem:/a.ttl", ontology("mem:/a.ttl"))

	const callers = 8
	models := make([]*Model, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			models[i], errs[i] = f.set.GetModel(ctx, a, true)
		}(i)
	}
	wg.Wait()

	for i := 0; i < callers; i++ {
		require.NoError(t, errs[i])
		assert.Same(t, models[0], models[i])
	}
	assert.EqualValues(t, 1, codec.decodes.Load())
	assert.True(t, models[0].Loaded())
	assert.False(t, models[0].Modified())
	assert.Len(t, f.set.Models(), 1)
	assert.Len(t, f.graph(t, a), 2)
}

func TestOverlappingLoadsKeepModifiedFlagClear(t *testing.T) {
	ctx := context.Background()
	codec := &gateCodec{
		FormatCodec: TurtleCodec,
		started:     make(chan struct{}),
		release:     make(chan struct{}),
	}
	reg := NewRegistry()
	reg.RegisterScheme("mem", FactoryFunc(func(u uri.URI) (*Model, error) {
		return NewModel(u, codec), nil
	}))
	f := newFixture(t, WithRegistry(reg))
	slow := f.put("mem:/slow.ttl", ontology("mem:/slow.ttl"))
	fast := f.put("mem:/fast.ttl", ontology("mem:/fast.ttl"))

	type result struct {
		m   *Model
		err error
	}
	done := make(chan result, 1)
	go func() {
		m, err := f.set.GetModel(ctx, slow, true)
		done <- result{m, err}
	}()
	<-codec.started

	fastModel, err := f.set.GetModel(ctx, fast, true)
	require.NoError(t, err)
	assert.True(t, fastModel.Loaded())
	assert.False(t, fastModel.Modified())

	close(codec.release)
	slowResult := <-done
	require.NoError(t, slowResult.err)

	assert.False(t, fastModel.Modified())
	assert.True(t, slowResult.m.Loaded())
	assert.False(t, slowResult.m.Modified())
	assert.Len(t, f.graph(t, fast), 2)
	assert.Len(t, f.graph(t, slow), 2)
}
