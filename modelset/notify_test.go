package modelset

import (
	"context"
	"sync"
	"testing"

	"github.com/geoknoesis/rdf-models/notify"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/uri"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type batches struct {
	mu  sync.Mutex
	all [][]notify.Notification
}

func (b *batches) NotifyChanged(batch []notify.Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.all = append(b.all, batch)
}

func (b *batches) snapshot() [][]notify.Notification {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([][]notify.Notification(nil), b.all...)
}

func TestLoadIsOneNotificationBatch(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	rec := &batches{}
	f.set.Tracker().AddListener(rec)

	_, err := f.set.GetModel(ctx, f.put("mem:/a.ttl", ontology("mem:/a.ttl", "mem:/b.ttl")), true)
	require.NoError(t, err)

	got := rec.snapshot()
	require.Len(t, got, 1)
	var added int
	for _, n := range got[0] {
		if n.Kind == notify.StatementAdded && n.Quad.G == rdf.Term(rdf.IRI{Value: "mem:/a.ttl"}) {
			added++
		}
	}
	assert.Equal(t, 3, added)
}

func TestSubjectListenerSeesModelChanges(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	m, err := f.set.CreateModel(ctx, uri.MustParse("mem:/a.ttl"))
	require.NoError(t, err)
	rec := &batches{}
	remove := f.set.Tracker().AddSubjectListener(exThing, rec)

	h, err := m.Handle(ctx)
	require.NoError(t, err)
	require.NoError(t, h.Begin(ctx))
	require.NoError(t, h.Add(ctx,
		thingTriple(),
		rdf.Triple{S: rdf.IRI{Value: "http://example.org/other"}, P: rdf.RDFType, O: owlThing},
		rdf.Triple{S: exThing, P: rdf.IRI{Value: rdf.RDFSNamespace + "label"}, O: rdf.Literal{Lexical: "thing"}},
	))
	require.NoError(t, h.Commit(ctx))

	got := rec.snapshot()
	require.Len(t, got, 1)
	require.Len(t, got[0], 2)
	assert.Equal(t, rdf.RDFType, got[0][0].Quad.P)
	assert.Equal(t, rdf.Term(rdf.Literal{Lexical: "thing"}), got[0][1].Quad.O)

	remove()
	require.NoError(t, h.Remove(ctx, thingTriple()))
	assert.Len(t, rec.snapshot(), 1)
}

func TestMetrics(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	metrics, err := NewMetrics(reg)
	require.NoError(t, err)
	f := newFixture(t, WithMetrics(metrics))
	a := f.put("mem:/a.ttl", ontology("mem:/a.ttl", "mem:/missing.ttl"))

	m, err := f.set.GetModel(ctx, a, true)
	require.NoError(t, err)
	_, err = m.Closure(ctx)
	require.NoError(t, err)
	_, err = m.Save(ctx)
	require.NoError(t, err)

	values := gather(t, reg)
	assert.Equal(t, 1.0, values["rdfmodels_modelset_loads_total{result=ok}"])
	assert.Equal(t, 1.0, values["rdfmodels_modelset_loads_total{result=failed}"])
	assert.Equal(t, 1.0, values["rdfmodels_modelset_saves_total{result=written}"])
	assert.Equal(t, 1.0, values["rdfmodels_modelset_closure_builds_total"])
	assert.Equal(t, 2.0, values["rdfmodels_modelset_models"])
	assert.Greater(t, values["rdfmodels_modelset_notifications_total"], 0.0)

	_, err = NewMetrics(reg)
	assert.Error(t, err)
}

// gather flattens counters and gauges into name{label=value} keys.
func gather(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := map[string]float64{}
	for _, mf := range families {
		for _, metric := range mf.GetMetric() {
			key := mf.GetName()
			for _, label := range metric.GetLabel() {
				key += "{" + label.GetName() + "=" + label.GetValue() + "}"
			}
			switch {
			case metric.GetCounter() != nil:
				out[key] = metric.GetCounter().GetValue()
			case metric.GetGauge() != nil:
				out[key] = metric.GetGauge().GetValue()
			}
		}
	}
	return out
}
