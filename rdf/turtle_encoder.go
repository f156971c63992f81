package rdf

import (
	"bufio"
	"fmt"
	"io"
	"sort"
	"strings"
)

// turtleEncoder writes Turtle. Consecutive triples sharing a subject are
// grouped with ';' and those sharing subject and predicate with ','. Callers
// that want compact output sort their triples first.
type turtleEncoder struct {
	writer     *bufio.Writer
	namespaces []Namespace
	base       string
	err        error
	started    bool
	closed     bool
	subject    string
	predicate  string
}

func newTurtleEncoder(w io.Writer, opts EncodeOptions) *turtleEncoder {
	namespaces := make([]Namespace, len(opts.Namespaces))
	copy(namespaces, opts.Namespaces)
	sort.SliceStable(namespaces, func(i, j int) bool {
		return namespaces[i].Prefix < namespaces[j].Prefix
	})
	return &turtleEncoder{writer: bufio.NewWriter(w), namespaces: namespaces, base: opts.BaseIRI}
}

func (e *turtleEncoder) Write(t Triple) error {
	if e.err != nil {
		return e.err
	}
	if e.closed {
		return fmt.Errorf("turtle: writer closed")
	}
	if t.S == nil || t.P.Value == "" || t.O == nil {
		return fmt.Errorf("turtle: missing statement fields")
	}
	if !e.started {
		e.writeHeader()
	}
	subject := e.render(t.S)
	predicate := e.renderPredicate(t.P)
	object := e.render(t.O)
	switch {
	case subject == e.subject && predicate == e.predicate:
		e.writeString(" ,\n        " + object)
	case subject == e.subject:
		e.writeString(" ;\n    " + predicate + " " + object)
	default:
		if e.subject != "" {
			e.writeString(" .\n\n")
		}
		e.writeString(subject + "\n    " + predicate + " " + object)
	}
	e.subject, e.predicate = subject, predicate
	return e.err
}

func (e *turtleEncoder) Close() error {
	if e.closed {
		return e.err
	}
	e.closed = true
	if e.err != nil {
		return e.err
	}
	if e.subject != "" {
		e.writeString(" .\n")
	}
	if e.err != nil {
		return e.err
	}
	return e.writer.Flush()
}

func (e *turtleEncoder) writeHeader() {
	e.started = true
	if e.base != "" {
		e.writeString("@base <" + e.base + "> .\n")
	}
	for _, ns := range e.namespaces {
		e.writeString("@prefix " + ns.Prefix + ": <" + ns.IRI + "> .\n")
	}
	if e.base != "" || len(e.namespaces) > 0 {
		e.writeString("\n")
	}
}

func (e *turtleEncoder) writeString(s string) {
	if e.err != nil {
		return
	}
	if _, err := e.writer.WriteString(s); err != nil {
		e.err = err
	}
}

func (e *turtleEncoder) renderPredicate(p IRI) string {
	if p == RDFType {
		return "a"
	}
	return e.renderIRI(p)
}

func (e *turtleEncoder) render(term Term) string {
	switch value := term.(type) {
	case IRI:
		return e.renderIRI(value)
	case Literal:
		if value.Lang == "" && value.Datatype.Value != "" && value.Datatype != XSDString {
			return quoteLiteral(value.Lexical) + "^^" + e.renderIRI(value.Datatype)
		}
		return renderTerm(value)
	default:
		return renderTerm(term)
	}
}

// renderIRI abbreviates iri with the longest matching namespace whose
// remainder is a valid local name.
func (e *turtleEncoder) renderIRI(iri IRI) string {
	best := -1
	for i, ns := range e.namespaces {
		if ns.IRI == "" || !strings.HasPrefix(iri.Value, ns.IRI) {
			continue
		}
		local := iri.Value[len(ns.IRI):]
		if local != "" && !isQNameLocal(local) || strings.HasSuffix(local, ".") {
			continue
		}
		if best < 0 || len(ns.IRI) > len(e.namespaces[best].IRI) {
			best = i
		}
	}
	if best < 0 {
		return renderIRI(iri)
	}
	ns := e.namespaces[best]
	return ns.Prefix + ":" + iri.Value[len(ns.IRI):]
}
