package rdf

import (
	"fmt"
	"strings"
)

type turtleCursor struct {
	input   string
	pos     int
	dec     *turtleDecoder
	triples []Triple
	// lastWasPropertyList is set when the last parsed subject was [ ... ].
	lastWasPropertyList bool
}

func (c *turtleCursor) skipWS() {
	for c.pos < len(c.input) {
		switch c.input[c.pos] {
		case ' ', '\t', '\r', '\n':
			c.pos++
		default:
			return
		}
	}
}

func (c *turtleCursor) peek() byte {
	if c.pos >= len(c.input) {
		return 0
	}
	return c.input[c.pos]
}

func (c *turtleCursor) consume(ch byte) bool {
	c.skipWS()
	if c.peek() == ch {
		c.pos++
		return true
	}
	return false
}

func (c *turtleCursor) emit(s Term, p IRI, o Term) {
	c.triples = append(c.triples, Triple{S: s, P: p, O: o})
}

func (c *turtleCursor) parseSubject() (Term, error) {
	c.skipWS()
	c.lastWasPropertyList = false
	switch c.peek() {
	case '[':
		c.lastWasPropertyList = true
		return c.parseBlankNodePropertyList()
	case '(':
		return c.parseCollection()
	case '"', '\'':
		return nil, c.errorf("literal not allowed as subject")
	}
	return c.parseResource()
}

// parsePredicateObjectList parses verb objectList (';' verb objectList)* up to
// but not including the closing delimiter.
func (c *turtleCursor) parsePredicateObjectList(subject Term, closer byte) error {
	for {
		predicate, err := c.parseVerb()
		if err != nil {
			return err
		}
		if err := c.parseObjectList(subject, predicate); err != nil {
			return err
		}
		c.skipWS()
		if c.peek() != ';' {
			return nil
		}
		for c.consume(';') {
		}
		c.skipWS()
		if c.peek() == closer || c.pos >= len(c.input) {
			return nil
		}
	}
}

func (c *turtleCursor) parseObjectList(subject Term, predicate IRI) error {
	for {
		object, err := c.parseObject()
		if err != nil {
			return err
		}
		c.emit(subject, predicate, object)
		if !c.consume(',') {
			return nil
		}
	}
}

func (c *turtleCursor) parseVerb() (IRI, error) {
	c.skipWS()
	if c.peek() == 'a' && (c.pos+1 >= len(c.input) || isTurtleTerminator(c.input[c.pos+1], 0) || c.input[c.pos+1] == '<') {
		c.pos++
		return RDFType, nil
	}
	term, err := c.parseResource()
	if err != nil {
		return IRI{}, err
	}
	iri, ok := term.(IRI)
	if !ok {
		return IRI{}, c.errorf("predicate must be an IRI")
	}
	return iri, nil
}

func (c *turtleCursor) parseObject() (Term, error) {
	c.skipWS()
	switch ch := c.peek(); {
	case ch == '[':
		return c.parseBlankNodePropertyList()
	case ch == '(':
		return c.parseCollection()
	case ch == '"' || ch == '\'':
		return c.parseLiteral()
	case ch == '+' || ch == '-' || ch == '.' || (ch >= '0' && ch <= '9'):
		return c.parseNumber()
	case strings.HasPrefix(c.input[c.pos:], "true") && c.endsWord(c.pos+4):
		c.pos += 4
		return Literal{Lexical: "true", Datatype: XSDBoolean}, nil
	case strings.HasPrefix(c.input[c.pos:], "false") && c.endsWord(c.pos+5):
		c.pos += 5
		return Literal{Lexical: "false", Datatype: XSDBoolean}, nil
	}
	return c.parseResource()
}

func (c *turtleCursor) endsWord(at int) bool {
	if at >= len(c.input) {
		return true
	}
	next := byte(0)
	if at+1 < len(c.input) {
		next = c.input[at+1]
	}
	return isTurtleTerminator(c.input[at], next)
}

// parseResource parses an IRI reference, a prefixed name or a blank node label.
func (c *turtleCursor) parseResource() (Term, error) {
	c.skipWS()
	if c.pos >= len(c.input) {
		return nil, c.errorf("unexpected end of statement")
	}
	if c.peek() == '<' {
		return c.parseIRIRef()
	}
	if strings.HasPrefix(c.input[c.pos:], "_:") {
		return c.parseBlankNode()
	}
	return c.parsePrefixedName()
}

func (c *turtleCursor) parseIRIRef() (Term, error) {
	c.pos++
	end := strings.IndexByte(c.input[c.pos:], '>')
	if end < 0 {
		return nil, c.errorf("unterminated IRI")
	}
	value := c.input[c.pos : c.pos+end]
	c.pos += end + 1
	if strings.ContainsAny(value, " \t\n\"{}|^`") {
		return nil, c.errorf("invalid character in IRI %q", value)
	}
	if strings.Contains(value, `\u`) || strings.Contains(value, `\U`) {
		unescaped, err := unescapeUnicode(value)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		value = unescaped
	}
	return IRI{Value: ResolveIRI(c.dec.base, value)}, nil
}

func (c *turtleCursor) parsePrefixedName() (Term, error) {
	start := c.pos
	for c.pos < len(c.input) {
		ch := c.input[c.pos]
		if ch == '\\' && c.pos+1 < len(c.input) {
			c.pos += 2
			continue
		}
		next := byte(0)
		if c.pos+1 < len(c.input) {
			next = c.input[c.pos+1]
		}
		if isTurtleTerminator(ch, next) {
			break
		}
		c.pos++
	}
	token := c.input[start:c.pos]
	if token == "" {
		return nil, c.errorf("expected term")
	}
	colon := strings.IndexByte(token, ':')
	if colon < 0 {
		return nil, c.errorf("invalid token %q", token)
	}
	prefix, local := token[:colon], token[colon+1:]
	ns, ok := c.dec.prefixes[prefix]
	if !ok {
		return nil, c.errorf("unknown prefix %q", prefix)
	}
	if strings.HasPrefix(local, ".") || strings.HasPrefix(local, "-") {
		return nil, c.errorf("invalid local name %q", local)
	}
	if strings.Contains(local, `\`) {
		var builder strings.Builder
		for i := 0; i < len(local); i++ {
			if local[i] == '\\' && i+1 < len(local) {
				i++
			}
			builder.WriteByte(local[i])
		}
		local = builder.String()
	}
	return IRI{Value: ns + local}, nil
}

func (c *turtleCursor) parseBlankNode() (Term, error) {
	c.pos += 2
	start := c.pos
	for c.pos < len(c.input) {
		next := byte(0)
		if c.pos+1 < len(c.input) {
			next = c.input[c.pos+1]
		}
		if isTurtleTerminator(c.input[c.pos], next) {
			break
		}
		c.pos++
	}
	if start == c.pos {
		return nil, c.errorf("blank node id missing")
	}
	return BlankNode{ID: c.input[start:c.pos]}, nil
}

func (c *turtleCursor) parseLiteral() (Term, error) {
	quote := c.input[c.pos]
	long := strings.Repeat(string(quote), 3)
	var lexical string
	if strings.HasPrefix(c.input[c.pos:], long) {
		c.pos += 3
		end := c.findLongEnd(long)
		if end < 0 {
			return nil, c.errorf("unterminated long string")
		}
		var builder strings.Builder
		body := c.input[c.pos:end]
		for i := 0; i < len(body); i++ {
			if body[i] == '\\' && i+1 < len(body) {
				n, err := writeEscape(&builder, body[i+1:])
				if err != nil {
					return nil, c.errorf("%v", err)
				}
				i += n
				continue
			}
			builder.WriteByte(body[i])
		}
		lexical = builder.String()
		c.pos = end + 3
	} else {
		c.pos++
		value, n, err := readQuoted(c.input[c.pos:], quote)
		if err != nil {
			return nil, c.errorf("%v", err)
		}
		lexical = value
		c.pos += n
	}

	if c.peek() == '@' {
		c.pos++
		start := c.pos
		for c.pos < len(c.input) && (isNameChar(c.input[c.pos]) && c.input[c.pos] != '.' && c.input[c.pos] != '_') {
			c.pos++
		}
		if start == c.pos {
			return nil, c.errorf("empty language tag")
		}
		return Literal{Lexical: lexical, Lang: strings.ToLower(c.input[start:c.pos])}, nil
	}
	if strings.HasPrefix(c.input[c.pos:], "^^") {
		c.pos += 2
		dt, err := c.parseResource()
		if err != nil {
			return nil, err
		}
		iri, ok := dt.(IRI)
		if !ok {
			return nil, c.errorf("datatype must be an IRI")
		}
		return Literal{Lexical: lexical, Datatype: iri}, nil
	}
	return Literal{Lexical: lexical}, nil
}

func (c *turtleCursor) findLongEnd(long string) int {
	for i := c.pos; i+len(long) <= len(c.input); i++ {
		if c.input[i] == '\\' {
			i++
			continue
		}
		if strings.HasPrefix(c.input[i:], long) {
			// A quote directly before the delimiter belongs to the body.
			for i+len(long) < len(c.input) && c.input[i+len(long)] == long[0] {
				i++
			}
			return i
		}
	}
	return -1
}

func (c *turtleCursor) parseNumber() (Term, error) {
	start := c.pos
	if c.peek() == '+' || c.peek() == '-' {
		c.pos++
	}
	digits := func() int {
		n := 0
		for c.pos < len(c.input) && c.input[c.pos] >= '0' && c.input[c.pos] <= '9' {
			c.pos++
			n++
		}
		return n
	}
	intDigits := digits()
	datatype := XSDInteger
	if c.peek() == '.' && c.pos+1 < len(c.input) && c.input[c.pos+1] >= '0' && c.input[c.pos+1] <= '9' {
		c.pos++
		digits()
		datatype = XSDDecimal
	} else if intDigits == 0 {
		c.pos = start
		return nil, c.errorf("invalid number")
	}
	if ch := c.peek(); ch == 'e' || ch == 'E' {
		c.pos++
		if c.peek() == '+' || c.peek() == '-' {
			c.pos++
		}
		if digits() == 0 {
			return nil, c.errorf("invalid exponent")
		}
		datatype = XSDDouble
	}
	return Literal{Lexical: c.input[start:c.pos], Datatype: datatype}, nil
}

func (c *turtleCursor) parseCollection() (Term, error) {
	c.pos++
	var items []Term
	for {
		c.skipWS()
		if c.pos >= len(c.input) {
			return nil, c.errorf("unterminated collection")
		}
		if c.peek() == ')' {
			c.pos++
			break
		}
		item, err := c.parseObject()
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	if len(items) == 0 {
		return RDFNil, nil
	}
	head := c.dec.newBlankNode()
	current := head
	for i, item := range items {
		c.emit(current, RDFFirst, item)
		if i == len(items)-1 {
			c.emit(current, RDFRest, RDFNil)
			break
		}
		next := c.dec.newBlankNode()
		c.emit(current, RDFRest, next)
		current = next
	}
	return head, nil
}

func (c *turtleCursor) parseBlankNodePropertyList() (Term, error) {
	c.pos++
	node := c.dec.newBlankNode()
	c.skipWS()
	if c.peek() == ']' {
		c.pos++
		return node, nil
	}
	if err := c.parsePredicateObjectList(node, ']'); err != nil {
		return nil, err
	}
	if !c.consume(']') {
		return nil, c.errorf("expected ']'")
	}
	return node, nil
}

func isTurtleTerminator(ch byte, next byte) bool {
	switch ch {
	case ' ', '\t', '\r', '\n', ';', ',', '(', ')', '[', ']', '<', '>', '"', '\'':
		return true
	case '.':
		// Dot ends a name only when followed by whitespace, a delimiter or the
		// end of the statement.
		switch next {
		case 0, ' ', '\t', '\r', '\n', ';', ',', ')', ']', '#':
			return true
		default:
			return false
		}
	default:
		return false
	}
}

func (c *turtleCursor) errorf(format string, args ...interface{}) error {
	return fmt.Errorf("col %d: "+format, append([]interface{}{c.pos + 1}, args...)...)
}
