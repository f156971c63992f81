package modelset

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/geoknoesis/rdf-models/uri"
)

// SaveStrategy selects where SaveIfChanged stages the new content.
type SaveStrategy int

const (
	// SaveInMemory serializes into a buffer.
	SaveInMemory SaveStrategy = iota
	// SaveViaTempFile serializes into a temporary file.
	SaveViaTempFile
)

func (s SaveStrategy) String() string {
	switch s {
	case SaveInMemory:
		return "memory"
	case SaveViaTempFile:
		return "tempfile"
	default:
		return "unknown"
	}
}

// ParseSaveStrategy parses "memory" or "tempfile".
func ParseSaveStrategy(s string) (SaveStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "memory":
		return SaveInMemory, nil
	case "tempfile", "temp-file":
		return SaveViaTempFile, nil
	default:
		return 0, errors.Newf("modelset: unknown save strategy %q", s)
	}
}

// Storage opens the streams SaveIfChanged compares and writes.
// *uri.Converter implements it.
type Storage interface {
	OpenInput(ctx context.Context, u uri.URI) (io.ReadCloser, error)
	OpenOutput(ctx context.Context, u uri.URI) (io.WriteCloser, error)
}

const compareChunkSize = 32 << 10

// SaveIfChanged serializes with write and stores the result at u only when it
// differs from the existing content. Existing content that cannot be read
// counts as different. It reports whether u was written.
func SaveIfChanged(ctx context.Context, st Storage, u uri.URI, write func(io.Writer) error, strategy SaveStrategy) (bool, error) {
	switch strategy {
	case SaveViaTempFile:
		return saveViaTempFile(ctx, st, u, write)
	default:
		return saveInMemory(ctx, st, u, write)
	}
}

func saveInMemory(ctx context.Context, st Storage, u uri.URI, write func(io.Writer) error) (bool, error) {
	var buf bytes.Buffer
	if err := write(&buf); err != nil {
		return false, errors.Wrapf(err, "modelset: serialize %s", u)
	}
	changed, err := differs(ctx, st, u, bytes.NewReader(buf.Bytes()))
	if err != nil || !changed {
		return false, err
	}
	return true, copyTo(ctx, st, u, bytes.NewReader(buf.Bytes()))
}

func saveViaTempFile(ctx context.Context, st Storage, u uri.URI, write func(io.Writer) error) (written bool, err error) {
	f, err := os.CreateTemp("", "rdfmodels-save-*")
	if err != nil {
		return false, errors.Wrap(err, "modelset: create temp file")
	}
	defer func() {
		err = errors.CombineErrors(err, f.Close())
		if rmErr := os.Remove(f.Name()); rmErr != nil && !os.IsNotExist(rmErr) {
			err = errors.CombineErrors(err, rmErr)
		}
	}()
	w := bufio.NewWriter(f)
	if err := write(w); err != nil {
		return false, errors.Wrapf(err, "modelset: serialize %s", u)
	}
	if err := w.Flush(); err != nil {
		return false, errors.Wrap(err, "modelset: write temp file")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, errors.Wrap(err, "modelset: rewind temp file")
	}
	changed, err := differs(ctx, st, u, bufio.NewReader(f))
	if err != nil || !changed {
		return false, err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false, errors.Wrap(err, "modelset: rewind temp file")
	}
	return true, copyTo(ctx, st, u, f)
}

func copyTo(ctx context.Context, st Storage, u uri.URI, r io.Reader) error {
	out, err := st.OpenOutput(ctx, u)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, r); err != nil {
		return errors.CombineErrors(errors.Wrapf(err, "modelset: write %s", u), out.Close())
	}
	return errors.Wrapf(out.Close(), "modelset: write %s", u)
}

// differs compares the content at u with fresh chunk by chunk and stops at
// the first mismatch.
func differs(ctx context.Context, st Storage, u uri.URI, fresh io.Reader) (bool, error) {
	in, err := st.OpenInput(ctx, u)
	if err != nil {
		return true, nil
	}
	defer in.Close()
	existingBuf := make([]byte, compareChunkSize)
	freshBuf := make([]byte, compareChunkSize)
	for {
		ne, errE := io.ReadFull(in, existingBuf)
		nf, errF := io.ReadFull(fresh, freshBuf)
		if errF != nil && !isEnd(errF) {
			return false, errors.Wrap(errF, "modelset: read staged content")
		}
		if errE != nil && !isEnd(errE) {
			return true, nil
		}
		if ne != nf || !bytes.Equal(existingBuf[:ne], freshBuf[:nf]) {
			return true, nil
		}
		if isEnd(errE) || isEnd(errF) {
			return isEnd(errE) != isEnd(errF), nil
		}
	}
}

func isEnd(err error) bool {
	return err == io.EOF || err == io.ErrUnexpectedEOF
}
