package rdf

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"
)

type ntDecoder struct {
	reader *bufio.Reader
	format Format
	opts   DecodeOptions
	line   int
}

func newNTDecoder(r io.Reader, format Format, opts DecodeOptions) *ntDecoder {
	return &ntDecoder{reader: bufio.NewReader(r), format: format, opts: opts}
}

func (d *ntDecoder) Next() (Quad, error) {
	for {
		if err := checkDecodeContext(d.opts.Context); err != nil {
			return Quad{}, err
		}
		line, err := readLineWithLimit(d.reader, d.opts.MaxLineBytes)
		if err == ErrLineTooLong {
			d.line++
			return Quad{}, wrapParseError(d.format, "", d.line, 0, err)
		}
		if err != nil {
			return Quad{}, err
		}
		d.line++
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		quad, err := parseNTLine(line, d.format)
		if err != nil {
			return Quad{}, wrapParseError(d.format, line, d.line, 0, err)
		}
		return quad, nil
	}
}

func (d *ntDecoder) Close() error { return nil }

func parseNTLine(line string, format Format) (Quad, error) {
	cursor := &ntCursor{input: line}
	subject, err := cursor.parseTerm(false)
	if err != nil {
		return Quad{}, err
	}
	predicate, err := cursor.parseIRI()
	if err != nil {
		return Quad{}, err
	}
	object, err := cursor.parseTerm(true)
	if err != nil {
		return Quad{}, err
	}
	var graph Term
	cursor.skipWS()
	if cursor.pos < len(cursor.input) && cursor.input[cursor.pos] != '.' {
		if format != FormatNQuads {
			return Quad{}, cursor.errorf("graph term not allowed in N-Triples")
		}
		if graph, err = cursor.parseTerm(false); err != nil {
			return Quad{}, err
		}
	}
	if !cursor.consume('.') {
		return Quad{}, cursor.errorf("expected '.' at end of statement")
	}
	cursor.skipWS()
	if cursor.pos < len(cursor.input) && cursor.input[cursor.pos] != '#' {
		return Quad{}, cursor.errorf("unexpected content after '.'")
	}
	return Quad{S: subject, P: predicate, O: object, G: graph}, nil
}

// ParseTerm parses a single term in N-Triples syntax, the inverse of TermKey.
func ParseTerm(s string) (Term, error) {
	cursor := &ntCursor{input: s}
	term, err := cursor.parseTerm(true)
	if err != nil {
		return nil, err
	}
	cursor.skipWS()
	if cursor.pos != len(cursor.input) {
		return nil, cursor.errorf("unexpected content after term")
	}
	return term, nil
}

type ntCursor struct {
	input string
	pos   int
}

func (c *ntCursor) skipWS() {
	for c.pos < len(c.input) {
		switch c.input[c.pos] {
		case ' ', '\t', '\r', '\n':
			c.pos++
		default:
			return
		}
	}
}

func (c *ntCursor) consume(ch byte) bool {
	c.skipWS()
	if c.pos < len(c.input) && c.input[c.pos] == ch {
		c.pos++
		return true
	}
	return false
}

func (c *ntCursor) parseTerm(allowLiteral bool) (Term, error) {
	c.skipWS()
	if c.pos >= len(c.input) {
		return nil, c.errorf("unexpected end of line")
	}
	switch {
	case c.input[c.pos] == '<':
		return c.parseIRI()
	case strings.HasPrefix(c.input[c.pos:], "_:"):
		return c.parseBlankNode()
	case c.input[c.pos] == '"':
		if !allowLiteral {
			return nil, c.errorf("literal not allowed here")
		}
		return c.parseLiteral()
	default:
		return nil, c.errorf("unexpected token")
	}
}

func (c *ntCursor) parseIRI() (IRI, error) {
	if !c.consume('<') {
		return IRI{}, c.errorf("expected IRI")
	}
	start := c.pos
	for c.pos < len(c.input) && c.input[c.pos] != '>' {
		if c.input[c.pos] == ' ' {
			return IRI{}, c.errorf("space in IRI")
		}
		c.pos++
	}
	if c.pos >= len(c.input) {
		return IRI{}, c.errorf("unterminated IRI")
	}
	value := c.input[start:c.pos]
	c.pos++
	if strings.Contains(value, `\u`) || strings.Contains(value, `\U`) {
		unescaped, err := unescapeUnicode(value)
		if err != nil {
			return IRI{}, c.errorf("%v", err)
		}
		value = unescaped
	}
	return IRI{Value: value}, nil
}

func (c *ntCursor) parseBlankNode() (BlankNode, error) {
	c.pos += 2
	start := c.pos
	for c.pos < len(c.input) && !isTermDelimiter(c.input[c.pos]) {
		c.pos++
	}
	if start == c.pos {
		return BlankNode{}, c.errorf("blank node id missing")
	}
	return BlankNode{ID: c.input[start:c.pos]}, nil
}

func (c *ntCursor) parseLiteral() (Literal, error) {
	if !c.consume('"') {
		return Literal{}, c.errorf("expected literal")
	}
	lexical, n, err := readQuoted(c.input[c.pos:], '"')
	if err != nil {
		return Literal{}, c.errorf("%v", err)
	}
	c.pos += n
	if strings.HasPrefix(c.input[c.pos:], "@") {
		c.pos++
		start := c.pos
		for c.pos < len(c.input) && !isTermDelimiter(c.input[c.pos]) {
			c.pos++
		}
		if start == c.pos {
			return Literal{}, c.errorf("empty language tag")
		}
		return Literal{Lexical: lexical, Lang: c.input[start:c.pos]}, nil
	}
	if strings.HasPrefix(c.input[c.pos:], "^^") {
		c.pos += 2
		dt, err := c.parseIRI()
		if err != nil {
			return Literal{}, err
		}
		return Literal{Lexical: lexical, Datatype: dt}, nil
	}
	return Literal{Lexical: lexical}, nil
}

func (c *ntCursor) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("col %d: "+format, append([]interface{}{c.pos + 1}, args...)...)
}

func isTermDelimiter(ch byte) bool {
	switch ch {
	case ' ', '\t', '\r', '\n', '.':
		return true
	default:
		return false
	}
}

// readQuoted reads an escaped string body up to and including the closing
// quote. It returns the unescaped value and the number of bytes consumed.
func readQuoted(input string, quote byte) (string, int, error) {
	var builder strings.Builder
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if ch == quote {
			return builder.String(), i + 1, nil
		}
		if ch != '\\' {
			builder.WriteByte(ch)
			continue
		}
		if i+1 >= len(input) {
			return "", 0, fmt.Errorf("unterminated escape")
		}
		n, err := writeEscape(&builder, input[i+1:])
		if err != nil {
			return "", 0, err
		}
		i += n
	}
	return "", 0, fmt.Errorf("unterminated string")
}

// writeEscape decodes the escape sequence following a backslash and returns
// the number of bytes consumed after the backslash.
func writeEscape(builder *strings.Builder, rest string) (int, error) {
	switch rest[0] {
	case 'n':
		builder.WriteByte('\n')
	case 't':
		builder.WriteByte('\t')
	case 'r':
		builder.WriteByte('\r')
	case 'b':
		builder.WriteByte('\b')
	case 'f':
		builder.WriteByte('\f')
	case '"', '\'', '\\':
		builder.WriteByte(rest[0])
	case 'u', 'U':
		width := 4
		if rest[0] == 'U' {
			width = 8
		}
		if len(rest) < width+1 {
			return 0, fmt.Errorf("short unicode escape")
		}
		code, err := strconv.ParseUint(rest[1:width+1], 16, 32)
		if err != nil {
			return 0, fmt.Errorf("invalid unicode escape %q", rest[:width+1])
		}
		builder.WriteRune(rune(code))
		return width + 1, nil
	default:
		return 0, fmt.Errorf("invalid escape \\%c", rest[0])
	}
	return 1, nil
}

func unescapeUnicode(value string) (string, error) {
	var builder strings.Builder
	for i := 0; i < len(value); i++ {
		if value[i] == '\\' && i+1 < len(value) && (value[i+1] == 'u' || value[i+1] == 'U') {
			n, err := writeEscape(&builder, value[i+1:])
			if err != nil {
				return "", err
			}
			i += n
			continue
		}
		builder.WriteByte(value[i])
	}
	return builder.String(), nil
}

type ntEncoder struct {
	writer *bufio.Writer
	format Format
	err    error
}

func newNTEncoder(w io.Writer, format Format) *ntEncoder {
	return &ntEncoder{writer: bufio.NewWriter(w), format: format}
}

func (e *ntEncoder) Write(q Quad) error {
	if e.err != nil {
		return e.err
	}
	if q.S == nil || q.P.Value == "" || q.O == nil {
		return fmt.Errorf("%s: missing statement fields", e.format)
	}
	if e.format != FormatNQuads {
		q.G = nil
	}
	_, err := e.writer.WriteString(q.String() + "\n")
	if err != nil {
		e.err = err
	}
	return err
}

func (e *ntEncoder) Close() error {
	if e.err != nil {
		return e.err
	}
	return e.writer.Flush()
}

func renderIRI(iri IRI) string {
	return "<" + iri.Value + ">"
}

func renderTerm(term Term) string {
	switch value := term.(type) {
	case IRI:
		return renderIRI(value)
	case BlankNode:
		return value.String()
	case Literal:
		quoted := quoteLiteral(value.Lexical)
		if value.Lang != "" {
			return quoted + "@" + value.Lang
		}
		if value.Datatype.Value != "" && value.Datatype != XSDString {
			return quoted + "^^" + renderIRI(value.Datatype)
		}
		return quoted
	default:
		return ""
	}
}

// quoteLiteral escapes a lexical form using the N-Triples ECHAR rules.
func quoteLiteral(lexical string) string {
	var builder strings.Builder
	builder.Grow(len(lexical) + 2)
	builder.WriteByte('"')
	for i := 0; i < len(lexical); i++ {
		switch ch := lexical[i]; ch {
		case '"':
			builder.WriteString(`\"`)
		case '\\':
			builder.WriteString(`\\`)
		case '\n':
			builder.WriteString(`\n`)
		case '\r':
			builder.WriteString(`\r`)
		case '\t':
			builder.WriteString(`\t`)
		default:
			builder.WriteByte(ch)
		}
	}
	builder.WriteByte('"')
	return builder.String()
}
