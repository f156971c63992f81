// Package rdf provides the RDF term model and the streaming codecs used by the
// model set: Turtle, N-Triples and N-Quads.
//
// Decoding is pull-style:
//
//	reader, err := rdf.NewTripleReader(r, rdf.FormatTurtle, rdf.DecodeOptions{BaseIRI: base})
//	if err != nil {
//	    // handle error
//	}
//	defer reader.Close()
//
//	for {
//	    triple, err := reader.Next()
//	    if err == io.EOF {
//	        break
//	    }
//	    if rdf.IsParseError(err) {
//	        // malformed statement; the reader continues with the next one
//	        continue
//	    }
//	    if err != nil {
//	        // handle error
//	    }
//	    // process triple.S, triple.P, triple.O
//	}
//
// Encoding is push-style through TripleWriter and QuadWriter. The Turtle
// writer abbreviates IRIs with the namespaces given in EncodeOptions and groups
// consecutive statements about the same subject.
//
// Formats are resolved from file extensions (FormatFromPath), media types
// (FormatFromContentType) or sniffed from content (DetectFormat).
package rdf
