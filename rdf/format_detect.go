package rdf

import (
	"strings"
)

// DetectSampleSize is the number of leading bytes DetectFormat looks at.
const DetectSampleSize = 512

// DetectFormat attempts to detect the RDF format from the first bytes of a
// document. Detection is based on format signatures and heuristics, so a
// successful result is a strong hint rather than a guarantee.
func DetectFormat(sample []byte) (Format, bool) {
	if len(sample) > DetectSampleSize {
		sample = sample[:DetectSampleSize]
	}
	text := strings.TrimSpace(string(sample))
	if text == "" {
		return "", false
	}

	// Markup and JSON documents are RDF/XML or JSON-LD, neither of which is
	// decoded here.
	if strings.HasPrefix(text, "<?xml") || strings.HasPrefix(text, "<rdf:") ||
		strings.HasPrefix(text, "{") || strings.HasPrefix(text, "[") && strings.Contains(text, "@context") {
		return "", false
	}

	upper := strings.ToUpper(text)
	if strings.HasPrefix(upper, "@PREFIX") || strings.HasPrefix(upper, "PREFIX") ||
		strings.HasPrefix(upper, "@BASE") || strings.HasPrefix(upper, "BASE") {
		return FormatTurtle, true
	}

	firstLine := text
	if idx := strings.IndexByte(text, '\n'); idx >= 0 {
		firstLine = strings.TrimSpace(text[:idx])
	}
	for strings.HasPrefix(firstLine, "#") {
		text = strings.TrimSpace(text[len(firstLine):])
		if text == "" {
			return "", false
		}
		firstLine = text
		if idx := strings.IndexByte(text, '\n'); idx >= 0 {
			firstLine = strings.TrimSpace(text[:idx])
		}
		upper = strings.ToUpper(firstLine)
		if strings.HasPrefix(upper, "@PREFIX") || strings.HasPrefix(upper, "PREFIX") {
			return FormatTurtle, true
		}
	}

	if strings.HasPrefix(firstLine, "<") || strings.HasPrefix(firstLine, "_:") {
		if !strings.HasSuffix(firstLine, ".") {
			return FormatTurtle, true
		}
		switch countTerms(firstLine) {
		case 3:
			return FormatNTriples, true
		case 4:
			return FormatNQuads, true
		default:
			return FormatTurtle, true
		}
	}

	// Prefixed names (ex:s) or anonymous nodes only occur in Turtle.
	for _, part := range strings.Fields(firstLine) {
		if strings.Contains(part, ":") && !strings.HasPrefix(part, "_:") && !strings.HasPrefix(part, "<") {
			return FormatTurtle, true
		}
	}
	if strings.HasPrefix(firstLine, "[") || strings.HasPrefix(firstLine, "(") {
		return FormatTurtle, true
	}
	return "", false
}

// countTerms counts the terms of a single N-Triples/N-Quads line before the
// terminating dot.
func countTerms(line string) int {
	cursor := &ntCursor{input: strings.TrimSuffix(strings.TrimSpace(line), ".")}
	count := 0
	for {
		cursor.skipWS()
		if cursor.pos >= len(cursor.input) {
			return count
		}
		if _, err := cursor.parseTerm(true); err != nil {
			return count
		}
		count++
	}
}
