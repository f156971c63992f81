package notify_test

import (
	"context"
	"sync"
	"testing"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/notify"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
	"github.com/geoknoesis/rdf-models/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu      sync.Mutex
	batches [][]notify.Notification
}

func (r *recorder) NotifyChanged(batch []notify.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, batch)
}

func statement(subject, object string) notify.Notification {
	q := storetest.Quad(subject, "http://ex/p", object, "http://ex/g")
	return notify.Notification{Kind: notify.StatementAdded, Subject: q.S, Quad: q}
}

func TestSubjectGrouping(t *testing.T) {
	tracker := notify.NewTracker()
	subject := &recorder{}
	global := &recorder{}
	tracker.AddSubjectListener(rdf.IRI{Value: "http://ex/S"}, subject)
	tracker.AddListener(global)

	batch := []notify.Notification{
		statement("http://ex/S", "http://ex/o1"),
		statement("http://ex/T", "http://ex/o2"),
		statement("http://ex/S", "http://ex/o3"),
		statement("http://ex/U", "http://ex/o4"),
		statement("http://ex/S", "http://ex/o5"),
	}
	tracker.Fire(batch...)

	require.Len(t, subject.batches, 1)
	assert.Equal(t, []notify.Notification{batch[0], batch[2], batch[4]}, subject.batches[0])
	require.Len(t, global.batches, 1)
	assert.Equal(t, batch, global.batches[0])
}

func TestStoreEventsOneDispatchPerBatch(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tracker := notify.NewTracker()
	tracker.Attach(s)
	global := &recorder{}
	tracker.AddListener(global)

	a := storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", "http://ex/g")
	b := storetest.Quad("http://ex/b", "http://ex/p", "http://ex/o", "http://ex/g")
	require.NoError(t, s.Add(ctx, a, b))
	require.NoError(t, s.SetNamespace(ctx, "ex", "http://ex/"))
	require.NoError(t, s.Remove(ctx, a))

	require.Len(t, global.batches, 3)
	assert.Len(t, global.batches[0], 2)
	assert.Equal(t, notify.Notification{Kind: notify.NamespaceChanged, Prefix: "ex", Namespace: "http://ex/"}, global.batches[1][0])
	assert.Equal(t, notify.StatementRemoved, global.batches[2][0].Kind)
	assert.Equal(t, a.S, global.batches[2][0].Subject)
}

func TestBatchCoalesces(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tracker := notify.NewTracker()
	tracker.Attach(s)
	global := &recorder{}
	tracker.AddListener(global)

	err := tracker.Batch(notify.All, func() error {
		require.NoError(t, s.Add(ctx, storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", "http://ex/g")))
		tracker.Fire(notify.Notification{Kind: notify.Generic, Payload: "reloaded"})
		return tracker.Batch(notify.All, func() error {
			return s.Add(ctx, storetest.Quad("http://ex/b", "http://ex/p", "http://ex/o", "http://ex/g"))
		})
	})
	require.NoError(t, err)
	require.Len(t, global.batches, 1)
	assert.Len(t, global.batches[0], 3)
	assert.Equal(t, "reloaded", global.batches[0][1].Payload)
}

func TestBatchReturnsErrorAndStillDispatches(t *testing.T) {
	tracker := notify.NewTracker()
	global := &recorder{}
	tracker.AddListener(global)
	boom := errors.New("boom")
	err := tracker.Batch(notify.All, func() error {
		tracker.Fire(notify.Notification{Kind: notify.Generic})
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Len(t, global.batches, 1)
}

func TestBatchHoldsOnlyItsScope(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tracker := notify.NewTracker()
	tracker.Attach(s)
	global := &recorder{}
	tracker.AddListener(global)

	meta := rdf.IRI{Value: "urn:uuid:meta"}
	g := rdf.IRI{Value: "http://ex/g"}
	inG := storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", g.Value)
	aboutG := storetest.Quad(g.Value, "http://ex/loadedAt", "http://ex/now", meta.Value)
	elsewhere := storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", "http://ex/h")

	err := tracker.Batch(notify.Graph(g, meta), func() error {
		require.NoError(t, s.Add(ctx, inG))
		require.NoError(t, s.Add(ctx, elsewhere))
		require.Len(t, global.batches, 1)
		assert.Equal(t, elsewhere, global.batches[0][0].Quad)
		return s.Add(ctx, aboutG)
	})
	require.NoError(t, err)
	require.Len(t, global.batches, 2)
	require.Len(t, global.batches[1], 2)
	assert.Equal(t, inG, global.batches[1][0].Quad)
	assert.Equal(t, aboutG, global.batches[1][1].Quad)
}

func TestConcurrentBatchesFlushIndependently(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	tracker := notify.NewTracker()
	tracker.Attach(s)
	global := &recorder{}
	tracker.AddListener(global)

	slow := rdf.IRI{Value: "http://ex/slow"}
	fast := rdf.IRI{Value: "http://ex/fast"}
	started := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error)
	go func() {
		done <- tracker.Batch(notify.Graph(slow, nil), func() error {
			if err := s.Add(ctx, storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", slow.Value)); err != nil {
				return err
			}
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	require.NoError(t, tracker.Batch(notify.Graph(fast, nil), func() error {
		return s.Add(ctx, storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", fast.Value))
	}))
	global.mu.Lock()
	require.Len(t, global.batches, 1)
	assert.Equal(t, rdf.Term(fast), global.batches[0][0].Quad.G)
	global.mu.Unlock()

	close(release)
	require.NoError(t, <-done)
	global.mu.Lock()
	defer global.mu.Unlock()
	require.Len(t, global.batches, 2)
	assert.Equal(t, rdf.Term(slow), global.batches[1][0].Quad.G)
}

func TestModifiedHook(t *testing.T) {
	metadata := rdf.IRI{Value: "urn:uuid:meta"}
	var marked []rdf.Term
	tracker := notify.NewTracker(
		notify.WithModifiedHook(func(g rdf.Term) { marked = append(marked, g) }),
		notify.WithExemptGraph(metadata),
	)
	inG := storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", "http://ex/g")
	inG2 := storetest.Quad("http://ex/b", "http://ex/p", "http://ex/o", "http://ex/g")
	inMeta := storetest.Quad("http://ex/a", "http://ex/p", "http://ex/o", metadata.Value)
	tracker.HandleEvents([]store.Event{
		{Kind: store.EventAdded, Quad: inG},
		{Kind: store.EventRemoved, Quad: inG2},
		{Kind: store.EventAdded, Quad: inMeta},
		{Kind: store.EventNamespace, Prefix: "ex", Namespace: "http://ex/"},
	})
	assert.Equal(t, []rdf.Term{rdf.IRI{Value: "http://ex/g"}}, marked)
}

func TestListenerChangesDuringDispatch(t *testing.T) {
	tracker := notify.NewTracker()
	late := &recorder{}
	second := &recorder{}
	var removeSecond func()
	tracker.AddListener(notify.ListenerFunc(func([]notify.Notification) {
		removeSecond()
		tracker.AddListener(late)
	}))
	removeSecond = tracker.AddListener(second)

	tracker.Fire(notify.Notification{Kind: notify.Generic})
	assert.Len(t, second.batches, 1)
	assert.Empty(t, late.batches)

	tracker.Fire(notify.Notification{Kind: notify.Generic})
	assert.Len(t, second.batches, 1)
	assert.Len(t, late.batches, 1)
}

func TestRemoveSubjectListener(t *testing.T) {
	tracker := notify.NewTracker()
	rec := &recorder{}
	remove := tracker.AddSubjectListener(rdf.IRI{Value: "http://ex/S"}, rec)
	remove()
	tracker.Fire(statement("http://ex/S", "http://ex/o"))
	assert.Empty(t, rec.batches)
}
