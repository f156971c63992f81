package rdf

import (
	"bytes"
	"io"
	"strings"
	"testing"
)

func readAllTriples(t *testing.T, input string, opts DecodeOptions) ([]Triple, []error) {
	t.Helper()
	reader, err := NewTripleReader(strings.NewReader(input), FormatTurtle, opts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer reader.Close()
	var triples []Triple
	var parseErrs []error
	for {
		triple, err := reader.Next()
		if err == io.EOF {
			return triples, parseErrs
		}
		if IsParseError(err) {
			parseErrs = append(parseErrs, err)
			continue
		}
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		triples = append(triples, triple)
	}
}

func TestTurtlePrefixesAndAbbreviations(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
PREFIX owl: <http://www.w3.org/2002/07/owl#>

ex:a a owl:Ontology ;
    owl:imports ex:b , ex:c .
`
	triples, errs := readAllTriples(t, input, DecodeOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if len(triples) != 3 {
		t.Fatalf("expected 3 triples, got %d", len(triples))
	}
	a := IRI{Value: "http://example.org/a"}
	want := []Triple{
		{S: a, P: RDFType, O: OWLOntology},
		{S: a, P: OWLImports, O: IRI{Value: "http://example.org/b"}},
		{S: a, P: OWLImports, O: IRI{Value: "http://example.org/c"}},
	}
	for i := range want {
		if triples[i] != want[i] {
			t.Errorf("triple %d = %v, want %v", i, triples[i], want[i])
		}
	}
}

func TestTurtleNamespacesInDeclarationOrder(t *testing.T) {
	input := "@prefix b: <http://b/> .\n@prefix a: <http://a/> .\nb:s b:p a:o .\n"
	reader, err := NewTripleReader(strings.NewReader(input), FormatTurtle, DecodeOptions{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := reader.Next(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	ns := reader.Namespaces()
	if len(ns) != 2 || ns[0].Prefix != "b" || ns[1].Prefix != "a" {
		t.Fatalf("unexpected namespaces: %v", ns)
	}
}

func TestTurtleBaseResolution(t *testing.T) {
	triples, errs := readAllTriples(t, "<s> <p> <../o> .\n", DecodeOptions{BaseIRI: "http://example.org/dir/doc"})
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	if got := triples[0].S.(IRI).Value; got != "http://example.org/dir/s" {
		t.Errorf("subject = %q", got)
	}
	if got := triples[0].O.(IRI).Value; got != "http://example.org/o" {
		t.Errorf("object = %q", got)
	}

	triples, _ = readAllTriples(t, "@base <http://other.org/> .\n<s> <p> <o> .\n", DecodeOptions{BaseIRI: "http://example.org/"})
	if got := triples[0].S.(IRI).Value; got != "http://other.org/s" {
		t.Errorf("subject after @base = %q", got)
	}
}

func TestTurtleLiterals(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
@prefix xsd: <http://www.w3.org/2001/XMLSchema#> .
ex:s ex:p "plain", 'single', "hi"@EN, "5"^^xsd:integer, 42, -3.5, 1e10, true, """multi
line "quoted" text""" .
`
	triples, errs := readAllTriples(t, input, DecodeOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	want := []Literal{
		{Lexical: "plain"},
		{Lexical: "single"},
		{Lexical: "hi", Lang: "en"},
		{Lexical: "5", Datatype: XSDInteger},
		{Lexical: "42", Datatype: XSDInteger},
		{Lexical: "-3.5", Datatype: XSDDecimal},
		{Lexical: "1e10", Datatype: XSDDouble},
		{Lexical: "true", Datatype: XSDBoolean},
		{Lexical: "multi\nline \"quoted\" text"},
	}
	if len(triples) != len(want) {
		t.Fatalf("expected %d triples, got %d", len(want), len(triples))
	}
	for i, lit := range want {
		if triples[i].O != lit {
			t.Errorf("object %d = %#v, want %#v", i, triples[i].O, lit)
		}
	}
}

func TestTurtleBlankNodesAndCollections(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
ex:s ex:p [ ex:q ex:o ] .
ex:s ex:list ( ex:a ex:b ) .
[ ex:only ex:here ] .
_:x ex:p () .
`
	triples, errs := readAllTriples(t, input, DecodeOptions{})
	if len(errs) != 0 {
		t.Fatalf("unexpected parse errors: %v", errs)
	}
	var firsts, nils, only int
	for _, triple := range triples {
		switch triple.P {
		case RDFFirst:
			firsts++
		case IRI{Value: "http://example.org/only"}:
			only++
		}
		if triple.O == RDFNil {
			nils++
		}
	}
	if firsts != 2 {
		t.Errorf("expected 2 rdf:first, got %d", firsts)
	}
	if nils != 2 {
		t.Errorf("expected 2 rdf:nil objects, got %d", nils)
	}
	if only != 1 {
		t.Errorf("expected standalone property list to produce 1 triple, got %d", only)
	}
	// Nested statements are emitted before the statement that refers to them.
	if triples[0].S != triples[1].O {
		t.Errorf("property list node not linked: %v / %v", triples[0], triples[1])
	}
	if _, ok := triples[1].O.(BlankNode); !ok {
		t.Errorf("expected blank node object, got %T", triples[1].O)
	}
}

func TestTurtleRecoversAfterBadStatement(t *testing.T) {
	input := `@prefix ex: <http://example.org/> .
ex:a ex:p ex:b .
ex:a ex:p nope:b .
ex:c ex:p ex:d .
`
	triples, errs := readAllTriples(t, input, DecodeOptions{})
	if len(triples) != 2 {
		t.Fatalf("expected 2 triples around the bad statement, got %d", len(triples))
	}
	if len(errs) != 1 {
		t.Fatalf("expected one parse error, got %d", len(errs))
	}
	parseErr := errs[0].(*ParseError)
	if parseErr.Line != 3 {
		t.Errorf("error line = %d, want 3", parseErr.Line)
	}
	if !strings.Contains(parseErr.Error(), "unknown prefix") {
		t.Errorf("unexpected message: %v", parseErr)
	}
}

func TestTurtleUnterminatedStatement(t *testing.T) {
	_, errs := readAllTriples(t, "<http://a/s> <http://a/p> <http://a/o>\n", DecodeOptions{})
	if len(errs) != 1 {
		t.Fatalf("expected unterminated statement error, got %v", errs)
	}
}

func TestTurtleStatementLimit(t *testing.T) {
	input := "<http://a/s> <http://a/p>\n\"" + strings.Repeat("x", 64) + "\" .\n<http://a/s> <http://a/p> <http://a/o> .\n"
	triples, errs := readAllTriples(t, input, DecodeOptions{MaxStatementBytes: 32})
	if len(errs) != 1 || Code(errs[0]) != ErrCodeStatementTooLong {
		t.Fatalf("expected statement limit error, got %v", errs)
	}
	if len(triples) != 1 {
		t.Fatalf("expected the following statement to parse, got %d triples", len(triples))
	}
}

func TestTurtleEncoderRoundTrip(t *testing.T) {
	ex := "http://example.org/"
	triples := []Triple{
		{S: IRI{Value: ex + "a"}, P: RDFType, O: OWLOntology},
		{S: IRI{Value: ex + "a"}, P: OWLImports, O: IRI{Value: ex + "b"}},
		{S: IRI{Value: ex + "a"}, P: OWLImports, O: IRI{Value: ex + "c"}},
		{S: BlankNode{ID: "n1"}, P: IRI{Value: ex + "label"}, O: Literal{Lexical: "line\n\"two\"", Lang: "en"}},
		{S: IRI{Value: ex + "d"}, P: IRI{Value: ex + "count"}, O: Literal{Lexical: "3", Datatype: XSDInteger}},
	}
	var buf bytes.Buffer
	writer, err := NewTripleWriter(&buf, FormatTurtle, EncodeOptions{Namespaces: []Namespace{
		{Prefix: "owl", IRI: OWLNamespace},
		{Prefix: "ex", IRI: ex},
		{Prefix: "xsd", IRI: XSDNamespace},
	}})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	for _, triple := range triples {
		if err := writer.Write(triple); err != nil {
			t.Fatalf("write failed: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	out := buf.String()
	if !strings.HasPrefix(out, "@prefix ex: <http://example.org/> .\n@prefix owl:") {
		t.Errorf("prefixes not sorted:\n%s", out)
	}
	if !strings.Contains(out, "ex:a\n    a owl:Ontology ;\n    owl:imports ex:b ,\n        ex:c .") {
		t.Errorf("subject grouping missing:\n%s", out)
	}
	if !strings.Contains(out, `"3"^^xsd:integer`) {
		t.Errorf("datatype not abbreviated:\n%s", out)
	}

	decoded, errs := readAllTriples(t, out, DecodeOptions{})
	if len(errs) != 0 {
		t.Fatalf("round trip parse errors: %v\n%s", errs, out)
	}
	if len(decoded) != len(triples) {
		t.Fatalf("round trip produced %d triples, want %d", len(decoded), len(triples))
	}
	for i := range triples {
		if decoded[i] != triples[i] {
			t.Errorf("triple %d = %v, want %v", i, decoded[i], triples[i])
		}
	}
}

func TestTurtleEncoderRejectsIncompleteTriple(t *testing.T) {
	writer, _ := NewTripleWriter(io.Discard, FormatTurtle, EncodeOptions{})
	if err := writer.Write(Triple{S: IRI{Value: "http://a/s"}}); err == nil {
		t.Fatal("expected error for missing predicate")
	}
}
