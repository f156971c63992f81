package pebblestore

import (
	"encoding/binary"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
	"github.com/geoknoesis/rdf-models/store"
)

func encodeSeq(seq uint64) []byte {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, seq)
	return buf
}

func appendTerm(dst []byte, term rdf.Term) []byte {
	key := rdf.TermKey(term)
	dst = binary.AppendUvarint(dst, uint64(len(key)))
	return append(dst, key...)
}

func encodeQuadKey(q rdf.Quad) []byte {
	key := []byte{quadPrefix}
	key = appendTerm(key, q.G)
	key = appendTerm(key, q.S)
	key = appendTerm(key, q.P)
	return appendTerm(key, q.O)
}

// scanPrefix returns the longest key prefix fixed by the pattern's leading
// graph, subject and predicate terms.
func scanPrefix(p store.Pattern) []byte {
	prefix := []byte{quadPrefix}
	for _, term := range []rdf.Term{p.G, p.S, p.P} {
		if term == nil {
			break
		}
		prefix = appendTerm(prefix, term)
	}
	return prefix
}

// prefixEnd returns the smallest key greater than every key with the prefix.
func prefixEnd(prefix []byte) []byte {
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}

func decodeQuadKey(key []byte) (rdf.Quad, error) {
	if len(key) == 0 || key[0] != quadPrefix {
		return rdf.Quad{}, errors.Newf("pebblestore: not a quad key %q", key)
	}
	rest := key[1:]
	var terms [4]rdf.Term
	for i := range terms {
		n, width := binary.Uvarint(rest)
		if width <= 0 || uint64(len(rest)-width) < n {
			return rdf.Quad{}, errors.Newf("pebblestore: truncated quad key %q", key)
		}
		term, err := rdf.ParseTerm(string(rest[width : width+int(n)]))
		if err != nil {
			return rdf.Quad{}, errors.Wrapf(err, "pebblestore: decode quad key %q", key)
		}
		terms[i] = term
		rest = rest[width+int(n):]
	}
	predicate, ok := terms[2].(rdf.IRI)
	if !ok {
		return rdf.Quad{}, errors.Newf("pebblestore: predicate in %q is not an IRI", key)
	}
	return rdf.Quad{G: terms[0], S: terms[1], P: predicate, O: terms[3]}, nil
}
