// Package modelset manages a set of RDF/OWL models stored as named graphs in
// one store.
//
// A ModelSet resolves URIs to Models, creating and loading them on demand
// through a uri.Converter and a Codec. Each Model exposes a Handle whose
// readable graphs span the transitive closure of its owl:imports. The set's
// notify.Tracker turns store mutations into notifications and keeps every
// loaded model's modified flag current.
//
//	set, err := modelset.New(store.NewMemory())
//	m, err := set.GetModel(ctx, uri.MustParse("file:///onto/a.ttl"), true)
//	h, err := m.Handle(ctx)
//	quads, err := h.Query(ctx, store.Pattern{P: rdf.RDFType})
package modelset
