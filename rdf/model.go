package rdf

import "fmt"

// TermKind identifies RDF term types.
type TermKind uint8

const (
	// TermIRI represents an IRI term.
	TermIRI TermKind = iota
	// TermBlankNode represents a blank node term.
	TermBlankNode
	// TermLiteral represents a literal term.
	TermLiteral
)

// Term is a value that can appear in RDF statements.
//
// All concrete terms are comparable values, so two terms are equal
// exactly when a == b.
type Term interface {
	Kind() TermKind
	String() string
}

// IRI represents an RDF IRI.
type IRI struct {
	// Value is the IRI string value.
	Value string
}

// Kind returns TermIRI.
func (i IRI) Kind() TermKind { return TermIRI }

// String returns the IRI value.
func (i IRI) String() string { return i.Value }

// BlankNode represents an RDF blank node.
type BlankNode struct {
	// ID is the blank node identifier.
	ID string
}

// Kind returns TermBlankNode.
func (b BlankNode) Kind() TermKind { return TermBlankNode }

// String returns the blank node identifier prefixed with "_:".
func (b BlankNode) String() string { return "_:" + b.ID }

// Literal represents an RDF literal.
type Literal struct {
	// Lexical is the lexical form of the literal.
	Lexical string
	// Datatype is the datatype IRI, if any.
	Datatype IRI
	// Lang is the language tag, if any.
	Lang string
}

// Kind returns TermLiteral.
func (l Literal) Kind() TermKind { return TermLiteral }

// String returns a string representation of the literal.
func (l Literal) String() string {
	if l.Lang != "" {
		return fmt.Sprintf("%q@%s", l.Lexical, l.Lang)
	}
	if l.Datatype.Value != "" {
		return fmt.Sprintf("%q^^<%s>", l.Lexical, l.Datatype.Value)
	}
	return fmt.Sprintf("%q", l.Lexical)
}

// Triple is an RDF triple.
type Triple struct {
	S Term
	P IRI
	O Term
}

// InGraph places the triple in a named graph. A nil graph is the default graph.
func (t Triple) InGraph(graph Term) Quad {
	return Quad{S: t.S, P: t.P, O: t.O, G: graph}
}

// Quad is an RDF quad (triple + optional graph name).
type Quad struct {
	S Term
	P IRI
	O Term
	// G is the graph name, or nil for the default graph.
	G Term
}

// IsZero reports whether the quad has no subject/predicate/object.
func (q Quad) IsZero() bool {
	return q.S == nil && q.P.Value == "" && q.O == nil && q.G == nil
}

// Triple extracts the triple from a quad (ignores graph).
func (q Quad) Triple() Triple {
	return Triple{S: q.S, P: q.P, O: q.O}
}

// String renders the quad as one N-Quads statement without the trailing newline.
func (q Quad) String() string {
	line := TermKey(q.S) + " " + renderIRI(q.P) + " " + TermKey(q.O)
	if q.G != nil {
		line += " " + TermKey(q.G)
	}
	return line + " ."
}

// TermKey returns the canonical N-Triples rendering of a term, suitable as a map
// key. A nil term yields the empty string.
func TermKey(term Term) string {
	if term == nil {
		return ""
	}
	return renderTerm(term)
}

// Namespace binds a prefix to a namespace IRI.
type Namespace struct {
	Prefix string
	IRI    string
}
