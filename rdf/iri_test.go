package rdf

import "testing"

func TestResolveIRI(t *testing.T) {
	cases := []struct {
		base, ref, want string
	}{
		{base: "", ref: "rel", want: "rel"},
		{base: "http://a/b/c/d;p?q", ref: "g", want: "http://a/b/c/g"},
		{base: "http://a/b/c/d;p?q", ref: "../g", want: "http://a/b/g"},
		{base: "http://a/b/c/d;p?q", ref: "#s", want: "http://a/b/c/d;p?q#s"},
		{base: "http://a/b/c/d", ref: "urn:x:y", want: "urn:x:y"},
		{base: "file:///models/root.ttl", ref: "sub/child.ttl", want: "file:///models/sub/child.ttl"},
	}
	for _, tc := range cases {
		if got := ResolveIRI(tc.base, tc.ref); got != tc.want {
			t.Errorf("ResolveIRI(%q, %q) = %q, want %q", tc.base, tc.ref, got, tc.want)
		}
	}
}

func TestValidateIRI(t *testing.T) {
	valid := []string{"http://example.org/a#b", "urn:uuid:1234", "file:///tmp/x.ttl", "mem:/models/a.ttl"}
	for _, iri := range valid {
		if err := ValidateIRI(iri); err != nil {
			t.Errorf("ValidateIRI(%q) = %v", iri, err)
		}
	}
	invalid := []string{"", "relative/path", "http://exa mple.org/", "1http://a/", "http://a/<b>", "http:///path"}
	for _, iri := range invalid {
		if err := ValidateIRI(iri); err == nil {
			t.Errorf("ValidateIRI(%q) succeeded, want error", iri)
		}
	}
}

func TestTermKey(t *testing.T) {
	cases := []struct {
		term Term
		want string
	}{
		{term: nil, want: ""},
		{term: IRI{Value: "http://a/s"}, want: "<http://a/s>"},
		{term: BlankNode{ID: "b0"}, want: "_:b0"},
		{term: Literal{Lexical: "x", Datatype: XSDString}, want: `"x"`},
		{term: Literal{Lexical: "x", Lang: "en"}, want: `"x"@en`},
		{term: Literal{Lexical: "1", Datatype: XSDInteger}, want: `"1"^^<http://www.w3.org/2001/XMLSchema#integer>`},
	}
	for _, tc := range cases {
		if got := TermKey(tc.term); got != tc.want {
			t.Errorf("TermKey(%v) = %q, want %q", tc.term, got, tc.want)
		}
	}
}

func TestParseTermInvertsTermKey(t *testing.T) {
	terms := []Term{
		IRI{Value: "http://a/s"},
		BlankNode{ID: "b0"},
		Literal{Lexical: "tab\there \"q\""},
		Literal{Lexical: "x", Lang: "en"},
		Literal{Lexical: "1", Datatype: XSDInteger},
	}
	for _, term := range terms {
		parsed, err := ParseTerm(TermKey(term))
		if err != nil {
			t.Fatalf("ParseTerm(%q): %v", TermKey(term), err)
		}
		if parsed != term {
			t.Errorf("ParseTerm(TermKey(%#v)) = %#v", term, parsed)
		}
	}
	if _, err := ParseTerm("<http://a/s> extra"); err == nil {
		t.Error("expected error for trailing content")
	}
}
