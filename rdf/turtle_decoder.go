package rdf

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

const (
	directiveAtPrefix = "@prefix"
	directiveAtBase   = "@base"
)

// turtleDecoder reads Turtle one statement at a time. Lines are accumulated
// until a top-level '.' closes the statement, which is then parsed with a
// turtleCursor.
type turtleDecoder struct {
	reader     *bufio.Reader
	opts       DecodeOptions
	prefixes   map[string]string
	namespaces []Namespace
	base       string
	pending    []Triple
	line       int
	blanks     int
	done       bool
}

func newTurtleDecoder(r io.Reader, opts DecodeOptions) *turtleDecoder {
	return &turtleDecoder{
		reader:   bufio.NewReader(r),
		opts:     opts,
		prefixes: map[string]string{},
		base:     opts.BaseIRI,
	}
}

func (d *turtleDecoder) Next() (Triple, error) {
	for {
		if len(d.pending) > 0 {
			triple := d.pending[0]
			d.pending = d.pending[1:]
			return triple, nil
		}
		if d.done {
			return Triple{}, io.EOF
		}
		if err := checkDecodeContext(d.opts.Context); err != nil {
			return Triple{}, err
		}
		statement, startLine, err := d.readStatement()
		if err != nil {
			return Triple{}, err
		}
		if statement == "" {
			continue
		}
		triples, err := d.parseStatement(statement)
		if err != nil {
			return Triple{}, wrapParseError(FormatTurtle, statement, startLine, 0, err)
		}
		d.pending = triples
	}
}

func (d *turtleDecoder) Namespaces() []Namespace {
	out := make([]Namespace, len(d.namespaces))
	copy(out, d.namespaces)
	return out
}

func (d *turtleDecoder) Close() error { return nil }

// readStatement returns the next complete statement and the line it started
// on. Directives are applied as they are read and never returned.
func (d *turtleDecoder) readStatement() (string, int, error) {
	var statement strings.Builder
	startLine := 0
	for {
		line, err := readLineWithLimit(d.reader, d.opts.MaxLineBytes)
		if err == io.EOF {
			d.done = true
			rest := strings.TrimSpace(statement.String())
			if rest == "" {
				return "", 0, nil
			}
			return "", 0, wrapParseError(FormatTurtle, rest, startLine, 0, fmt.Errorf("unterminated statement"))
		}
		d.line++
		if err == ErrLineTooLong {
			return "", 0, wrapParseError(FormatTurtle, "", d.line, 0, err)
		}
		if err != nil {
			return "", 0, err
		}
		trimmed := strings.TrimSpace(stripComment(line))
		if trimmed == "" {
			continue
		}
		if statement.Len() == 0 {
			if handled, err := d.handleDirective(trimmed); handled {
				if err != nil {
					return "", 0, wrapParseError(FormatTurtle, trimmed, d.line, 0, err)
				}
				continue
			}
			startLine = d.line
		} else {
			statement.WriteByte('\n')
		}
		statement.WriteString(trimmed)
		if d.opts.MaxStatementBytes > 0 && statement.Len() > d.opts.MaxStatementBytes {
			if !isStatementComplete(statement.String()) {
				d.skipToStatementEnd()
			}
			return "", 0, wrapParseError(FormatTurtle, "", startLine, 0, ErrStatementTooLong)
		}
		if isStatementComplete(statement.String()) {
			return statement.String(), startLine, nil
		}
	}
}

func (d *turtleDecoder) skipToStatementEnd() {
	for {
		line, err := readLineWithLimit(d.reader, d.opts.MaxLineBytes)
		if err == io.EOF {
			d.done = true
			return
		}
		d.line++
		if err != nil {
			continue
		}
		if strings.HasSuffix(strings.TrimSpace(stripComment(line)), ".") {
			return
		}
	}
}

// handleDirective applies @prefix/@base and the SPARQL style PREFIX/BASE forms.
func (d *turtleDecoder) handleDirective(line string) (bool, error) {
	lower := strings.ToLower(line)
	switch {
	case strings.HasPrefix(lower, directiveAtPrefix+" ") || strings.HasPrefix(lower, directiveAtPrefix+"\t"):
		if !strings.HasSuffix(line, ".") {
			return true, fmt.Errorf("@prefix directive must end with '.'")
		}
		return true, d.bindPrefix(strings.TrimSpace(strings.TrimSuffix(line[len(directiveAtPrefix):], ".")))
	case strings.HasPrefix(lower, "prefix ") || strings.HasPrefix(lower, "prefix\t"):
		return true, d.bindPrefix(strings.TrimSpace(line[len("prefix"):]))
	case strings.HasPrefix(lower, directiveAtBase+" ") || strings.HasPrefix(lower, directiveAtBase+"\t"):
		if !strings.HasSuffix(line, ".") {
			return true, fmt.Errorf("@base directive must end with '.'")
		}
		return true, d.setBase(strings.TrimSpace(strings.TrimSuffix(line[len(directiveAtBase):], ".")))
	case strings.HasPrefix(lower, "base ") || strings.HasPrefix(lower, "base\t"):
		return true, d.setBase(strings.TrimSpace(line[len("base"):]))
	default:
		return false, nil
	}
}

func (d *turtleDecoder) bindPrefix(rest string) error {
	colon := strings.IndexByte(rest, ':')
	if colon < 0 {
		return fmt.Errorf("prefix name must end with ':'")
	}
	prefix := strings.TrimSpace(rest[:colon])
	if prefix != "" && !isQNameLocal(prefix) {
		return fmt.Errorf("invalid prefix name %q", prefix)
	}
	iri, err := d.directiveIRI(strings.TrimSpace(rest[colon+1:]))
	if err != nil {
		return err
	}
	d.prefixes[prefix] = iri
	for i := range d.namespaces {
		if d.namespaces[i].Prefix == prefix {
			d.namespaces[i].IRI = iri
			return nil
		}
	}
	d.namespaces = append(d.namespaces, Namespace{Prefix: prefix, IRI: iri})
	return nil
}

func (d *turtleDecoder) setBase(rest string) error {
	iri, err := d.directiveIRI(rest)
	if err != nil {
		return err
	}
	d.base = iri
	return nil
}

func (d *turtleDecoder) directiveIRI(token string) (string, error) {
	if !strings.HasPrefix(token, "<") || !strings.HasSuffix(token, ">") {
		return "", fmt.Errorf("expected IRI reference, got %q", token)
	}
	return ResolveIRI(d.base, token[1:len(token)-1]), nil
}

// parseStatement parses one or more triples statements held in statement.
func (d *turtleDecoder) parseStatement(statement string) ([]Triple, error) {
	cursor := &turtleCursor{input: statement, dec: d}
	for {
		cursor.skipWS()
		if cursor.pos >= len(cursor.input) {
			return cursor.triples, nil
		}
		subject, err := cursor.parseSubject()
		if err != nil {
			return nil, err
		}
		cursor.skipWS()
		// A blank node property list may stand alone: [ ex:p ex:o ] .
		if cursor.lastWasPropertyList && cursor.peek() == '.' {
			cursor.pos++
			continue
		}
		if err := cursor.parsePredicateObjectList(subject, '.'); err != nil {
			return nil, err
		}
		if !cursor.consume('.') {
			return nil, cursor.errorf("expected '.'")
		}
	}
}

func (d *turtleDecoder) newBlankNode() BlankNode {
	d.blanks++
	return BlankNode{ID: fmt.Sprintf("anon%d", d.blanks)}
}

func stripComment(line string) string {
	inString := false
	inIRI := false
	quote := byte(0)
	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case inString:
			if ch == '\\' {
				i++
			} else if ch == quote {
				inString = false
			}
		case inIRI:
			if ch == '>' {
				inIRI = false
			}
		case ch == '"' || ch == '\'':
			inString = true
			quote = ch
		case ch == '<':
			inIRI = true
		case ch == '#':
			if i > 0 && line[i-1] == '\\' {
				continue
			}
			return line[:i]
		}
	}
	return line
}

// isStatementComplete reports whether stmt ends with a '.' that is outside any
// string, IRI, property list or collection.
func isStatementComplete(stmt string) bool {
	inString := false
	longString := false
	quote := byte(0)
	inIRI := false
	depth := 0
	for i := 0; i < len(stmt); i++ {
		ch := stmt[i]
		if inString {
			if ch == '\\' {
				i++
				continue
			}
			if ch != quote {
				continue
			}
			if !longString {
				inString = false
			} else if strings.HasPrefix(stmt[i:], strings.Repeat(string(quote), 3)) {
				inString = false
				i += 2
			}
			continue
		}
		if inIRI {
			if ch == '>' {
				inIRI = false
			}
			continue
		}
		switch ch {
		case '<':
			inIRI = true
		case '"', '\'':
			inString = true
			quote = ch
			longString = strings.HasPrefix(stmt[i:], strings.Repeat(string(ch), 3))
			if longString {
				i += 2
			}
		case '[', '(':
			depth++
		case ']', ')':
			if depth > 0 {
				depth--
			}
		case '.':
			if depth == 0 && strings.TrimSpace(stmt[i+1:]) == "" {
				return true
			}
		}
	}
	return false
}
