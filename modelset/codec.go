package modelset

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/rdf"
)

// Sink receives decoded content.
type Sink interface {
	AddTriple(t rdf.Triple) error
	BindNamespace(ns rdf.Namespace)
	// ReportParseError records a malformed statement. Decoding continues.
	ReportParseError(err *rdf.ParseError)
}

// Codec reads and writes a model's serialization.
type Codec interface {
	// Decode parses r into sink. base resolves relative IRIs. Malformed
	// statements go to sink.ReportParseError; the returned error is reserved
	// for failures that stop decoding.
	Decode(ctx context.Context, r io.Reader, base string, sink Sink) error
	// Encode writes triples in the given order.
	Encode(ctx context.Context, w io.Writer, triples []rdf.Triple, namespaces []rdf.Namespace) error
	Format() rdf.Format
}

// FormatCodec is a Codec for one of the rdf package's formats.
type FormatCodec struct {
	format rdf.Format
}

var (
	TurtleCodec   = FormatCodec{format: rdf.FormatTurtle}
	NTriplesCodec = FormatCodec{format: rdf.FormatNTriples}
)

// NewFormatCodec returns the codec for format.
func NewFormatCodec(format rdf.Format) (FormatCodec, error) {
	switch format {
	case rdf.FormatTurtle, rdf.FormatNTriples:
		return FormatCodec{format: format}, nil
	default:
		return FormatCodec{}, errors.Wrapf(rdf.ErrUnsupportedFormat, "modelset: codec for %q", format)
	}
}

func (c FormatCodec) Format() rdf.Format { return c.format }

func (c FormatCodec) Decode(ctx context.Context, r io.Reader, base string, sink Sink) error {
	reader, err := rdf.NewTripleReader(r, c.format, rdf.DecodeOptions{Context: ctx, BaseIRI: base})
	if err != nil {
		return err
	}
	defer reader.Close()
	for {
		t, err := reader.Next()
		if err == io.EOF {
			break
		}
		var parseErr *rdf.ParseError
		if errors.As(err, &parseErr) {
			sink.ReportParseError(parseErr)
			continue
		}
		if err != nil {
			return err
		}
		if err := sink.AddTriple(t); err != nil {
			return err
		}
	}
	for _, ns := range reader.Namespaces() {
		sink.BindNamespace(ns)
	}
	return nil
}

func (c FormatCodec) Encode(_ context.Context, w io.Writer, triples []rdf.Triple, namespaces []rdf.Namespace) error {
	writer, err := rdf.NewTripleWriter(w, c.format, rdf.EncodeOptions{Namespaces: namespaces})
	if err != nil {
		return err
	}
	for _, t := range triples {
		if err := writer.Write(t); err != nil {
			return errors.CombineErrors(err, writer.Close())
		}
	}
	return writer.Close()
}
