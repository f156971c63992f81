package rdf

import (
	"bufio"
	"context"
	"io"
)

const (
	DefaultMaxLineBytes      = 1 << 20
	DefaultMaxStatementBytes = 4 << 20
)

// TripleReader streams triples from an input.
//
// Next returns io.EOF at the end of input. A *ParseError reports one malformed
// statement; the reader stays usable and the following call to Next resumes
// after the bad statement. Any other error is fatal.
type TripleReader interface {
	Next() (Triple, error)
	// Namespaces returns the prefix bindings declared so far, in declaration
	// order.
	Namespaces() []Namespace
	Close() error
}

// QuadReader streams quads from an input. Error semantics match TripleReader.
type QuadReader interface {
	Next() (Quad, error)
	Close() error
}

// TripleWriter streams triples to an output.
type TripleWriter interface {
	Write(Triple) error
	Close() error
}

// QuadWriter streams quads to an output.
type QuadWriter interface {
	Write(Quad) error
	Close() error
}

// DecodeOptions configures parser behavior and limits.
// Zero values use defaults. Use negative values to disable specific limits.
type DecodeOptions struct {
	// Context provides cancellation for decoding work.
	Context context.Context
	// BaseIRI resolves relative IRIs until the document declares its own base.
	BaseIRI           string
	MaxLineBytes      int
	MaxStatementBytes int
}

// EncodeOptions configures serialization.
type EncodeOptions struct {
	// Namespaces are emitted as prefix declarations and used to abbreviate
	// IRIs in formats that support it.
	Namespaces []Namespace
	// BaseIRI is written as a base declaration when the format supports it.
	BaseIRI string
}

// NewTripleReader creates a reader for a triple format. N-Quads input is
// accepted and its graph names dropped.
func NewTripleReader(r io.Reader, format Format, opts DecodeOptions) (TripleReader, error) {
	opts = normalizeDecodeOptions(opts)
	switch format {
	case FormatTurtle:
		return newTurtleDecoder(r, opts), nil
	case FormatNTriples, FormatNQuads:
		return &tripleView{dec: newNTDecoder(r, format, opts)}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// NewQuadReader creates a reader for a line based format.
func NewQuadReader(r io.Reader, format Format, opts DecodeOptions) (QuadReader, error) {
	switch format {
	case FormatNTriples, FormatNQuads:
		return newNTDecoder(r, format, normalizeDecodeOptions(opts)), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// NewTripleWriter creates a writer for the specified format.
func NewTripleWriter(w io.Writer, format Format, opts EncodeOptions) (TripleWriter, error) {
	switch format {
	case FormatTurtle:
		return newTurtleEncoder(w, opts), nil
	case FormatNTriples, FormatNQuads:
		return &tripleSink{enc: newNTEncoder(w, FormatNTriples)}, nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// NewQuadWriter creates a writer for the line based formats. Graph names are
// dropped for N-Triples.
func NewQuadWriter(w io.Writer, format Format) (QuadWriter, error) {
	switch format {
	case FormatNTriples, FormatNQuads:
		return newNTEncoder(w, format), nil
	default:
		return nil, ErrUnsupportedFormat
	}
}

// Parse decodes every triple of r, passing each to handle. Parse errors are
// returned immediately; use a TripleReader to recover from them.
func Parse(ctx context.Context, r io.Reader, format Format, handle func(Triple) error) error {
	reader, err := NewTripleReader(r, format, DecodeOptions{Context: ctx})
	if err != nil {
		return err
	}
	defer reader.Close()
	for {
		t, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err := handle(t); err != nil {
			return err
		}
	}
}

func normalizeDecodeOptions(opts DecodeOptions) DecodeOptions {
	if opts.MaxLineBytes == 0 {
		opts.MaxLineBytes = DefaultMaxLineBytes
	}
	if opts.MaxStatementBytes == 0 {
		opts.MaxStatementBytes = DefaultMaxStatementBytes
	}
	return opts
}

func checkDecodeContext(ctx context.Context) error {
	if ctx == nil {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// readLineWithLimit reads one line including its terminator. Over-long lines
// are discarded and reported as ErrLineTooLong.
func readLineWithLimit(reader *bufio.Reader, maxBytes int) (string, error) {
	var buffer []byte
	for {
		part, err := reader.ReadSlice('\n')
		buffer = append(buffer, part...)
		if maxBytes > 0 && len(buffer) > maxBytes {
			for err == bufio.ErrBufferFull {
				_, err = reader.ReadSlice('\n')
			}
			return "", ErrLineTooLong
		}
		switch err {
		case nil:
			return string(buffer), nil
		case bufio.ErrBufferFull:
			continue
		case io.EOF:
			if len(buffer) > 0 {
				return string(buffer), nil
			}
			return "", io.EOF
		default:
			return "", err
		}
	}
}

type tripleView struct {
	dec *ntDecoder
}

func (v *tripleView) Next() (Triple, error) {
	q, err := v.dec.Next()
	if err != nil {
		return Triple{}, err
	}
	return q.Triple(), nil
}

func (v *tripleView) Namespaces() []Namespace { return nil }
func (v *tripleView) Close() error            { return v.dec.Close() }

type tripleSink struct {
	enc *ntEncoder
}

func (s *tripleSink) Write(t Triple) error { return s.enc.Write(t.InGraph(nil)) }
func (s *tripleSink) Close() error         { return s.enc.Close() }
