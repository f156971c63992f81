package uri

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/cockroachdb/errors"
)

// FileHandler serves file: URIs from the local file system.
type FileHandler struct{}

func (FileHandler) CanHandle(u URI) bool { return u.Scheme() == "file" }

func (FileHandler) OpenInput(_ context.Context, u URI) (io.ReadCloser, error) {
	p, err := u.FilePath()
	if err != nil {
		return nil, err
	}
	f, err := os.Open(p)
	if err != nil {
		return nil, fileError(err, "open", u)
	}
	return f, nil
}

func (FileHandler) OpenOutput(_ context.Context, u URI) (io.WriteCloser, error) {
	p, err := u.FilePath()
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return nil, errors.Wrapf(err, "uri: create parent of %s", u)
	}
	f, err := os.Create(p)
	if err != nil {
		return nil, fileError(err, "create", u)
	}
	return f, nil
}

func (FileHandler) Delete(_ context.Context, u URI) error {
	p, err := u.FilePath()
	if err != nil {
		return err
	}
	if err := os.Remove(p); err != nil {
		return fileError(err, "delete", u)
	}
	return nil
}

func (FileHandler) Exists(_ context.Context, u URI) (bool, error) {
	p, err := u.FilePath()
	if err != nil {
		return false, err
	}
	_, err = os.Stat(p)
	switch {
	case err == nil:
		return true, nil
	case os.IsNotExist(err):
		return false, nil
	default:
		return false, errors.Wrapf(err, "uri: stat %s", u)
	}
}

func (FileHandler) Attributes(_ context.Context, u URI, names ...string) (Attributes, error) {
	p, err := u.FilePath()
	if err != nil {
		return Attributes{}, err
	}
	info, err := os.Stat(p)
	if err != nil {
		return Attributes{}, fileError(err, "stat", u)
	}
	var attrs Attributes
	if wants(names, AttrTimestamp) {
		attrs.Timestamp = timePtr(info.ModTime())
	}
	if wants(names, AttrLength) {
		attrs.Length = int64Ptr(info.Size())
	}
	if wants(names, AttrReadOnly) {
		attrs.ReadOnly = boolPtr(info.Mode().Perm()&0o200 == 0)
	}
	if wants(names, AttrHidden) {
		attrs.Hidden = boolPtr(strings.HasPrefix(info.Name(), "."))
	}
	if wants(names, AttrDirectory) {
		attrs.Directory = boolPtr(info.IsDir())
	}
	return attrs, nil
}

// SetAttributes supports Timestamp and ReadOnly. Other fields are ignored.
func (FileHandler) SetAttributes(_ context.Context, u URI, attrs Attributes) error {
	p, err := u.FilePath()
	if err != nil {
		return err
	}
	if attrs.Timestamp != nil {
		if err := os.Chtimes(p, *attrs.Timestamp, *attrs.Timestamp); err != nil {
			return fileError(err, "touch", u)
		}
	}
	if attrs.ReadOnly != nil {
		info, err := os.Stat(p)
		if err != nil {
			return fileError(err, "stat", u)
		}
		mode := info.Mode().Perm()
		if *attrs.ReadOnly {
			mode &^= 0o222
		} else {
			mode |= 0o200
		}
		if err := os.Chmod(p, mode); err != nil {
			return fileError(err, "chmod", u)
		}
	}
	return nil
}

func fileError(err error, op string, u URI) error {
	if os.IsNotExist(err) {
		return errors.Mark(errors.Wrapf(err, "uri: %s %s", op, u), ErrNotFound)
	}
	return errors.Wrapf(err, "uri: %s %s", op, u)
}
