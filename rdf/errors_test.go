package rdf

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"
)

func TestErrorCodes(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorCode
	}{
		{err: nil, want: ""},
		{err: io.EOF, want: ""},
		{err: ErrUnsupportedFormat, want: ErrCodeUnsupportedFormat},
		{err: fmt.Errorf("wrapped: %w", ErrLineTooLong), want: ErrCodeLineTooLong},
		{err: &ParseError{Format: FormatTurtle, Err: ErrStatementTooLong}, want: ErrCodeStatementTooLong},
		{err: context.Canceled, want: ErrCodeContextCanceled},
		{err: errors.New("boom"), want: ErrCodeParseError},
	}
	for _, tc := range cases {
		if got := Code(tc.err); got != tc.want {
			t.Errorf("Code(%v) = %q, want %q", tc.err, got, tc.want)
		}
	}
}

func TestParseErrorMessage(t *testing.T) {
	err := &ParseError{
		Format:    FormatTurtle,
		Statement: strings.Repeat("x", 100),
		Line:      3,
		Column:    7,
		Err:       errors.New("unexpected token"),
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "turtle:3:7: unexpected token") {
		t.Errorf("unexpected message %q", msg)
	}
	if !strings.HasSuffix(msg, "...") {
		t.Errorf("expected truncated excerpt, got %q", msg)
	}
	if !IsParseError(fmt.Errorf("load: %w", err)) {
		t.Error("expected wrapped parse error to be detected")
	}
}

func TestDecodeHonorsContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	reader, _ := NewTripleReader(strings.NewReader("<http://a/s> <http://a/p> <http://a/o> .\n"), FormatTurtle, DecodeOptions{Context: ctx})
	if _, err := reader.Next(); Code(err) != ErrCodeContextCanceled {
		t.Fatalf("expected cancellation, got %v", err)
	}
}

func TestUnsupportedFormat(t *testing.T) {
	if _, err := NewTripleReader(strings.NewReader(""), Format("rdfxml"), DecodeOptions{}); !errors.Is(err, ErrUnsupportedFormat) {
		t.Fatalf("expected ErrUnsupportedFormat, got %v", err)
	}
}
