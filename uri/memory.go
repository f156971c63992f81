package uri

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
)

type memoryEntry struct {
	data     []byte
	modified time.Time
	readOnly bool
}

// MemoryHandler keeps content in process memory. It claims the schemes it is
// created with, or mem: when none are given.
type MemoryHandler struct {
	schemes []string

	mu      sync.RWMutex
	entries map[string]*memoryEntry
	outputs int
	now     func() time.Time
}

// NewMemoryHandler creates an empty in-memory handler.
func NewMemoryHandler(schemes ...string) *MemoryHandler {
	if len(schemes) == 0 {
		schemes = []string{"mem"}
	}
	for i, scheme := range schemes {
		schemes[i] = strings.ToLower(scheme)
	}
	return &MemoryHandler{schemes: schemes, entries: map[string]*memoryEntry{}, now: time.Now}
}

func (h *MemoryHandler) CanHandle(u URI) bool {
	scheme := u.Scheme()
	for _, s := range h.schemes {
		if s == scheme {
			return true
		}
	}
	return false
}

// Put stores content directly, bypassing the output stream counter.
func (h *MemoryHandler) Put(u URI, data []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.entries[u.String()] = &memoryEntry{data: append([]byte(nil), data...), modified: h.now()}
}

// Get returns a copy of the stored content.
func (h *MemoryHandler) Get(u URI) ([]byte, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.entries[u.String()]
	if !ok {
		return nil, false
	}
	return append([]byte(nil), entry.data...), true
}

// OutputCount returns how many output streams have been opened.
func (h *MemoryHandler) OutputCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.outputs
}

func (h *MemoryHandler) OpenInput(_ context.Context, u URI) (io.ReadCloser, error) {
	data, ok := h.Get(u)
	if !ok {
		return nil, errors.Wrapf(ErrNotFound, "uri: open %s", u)
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (h *MemoryHandler) OpenOutput(_ context.Context, u URI) (io.WriteCloser, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if entry, ok := h.entries[u.String()]; ok && entry.readOnly {
		return nil, errors.Wrapf(ErrReadOnly, "uri: create %s", u)
	}
	h.outputs++
	return &memoryWriter{handler: h, uri: u}, nil
}

func (h *MemoryHandler) Delete(_ context.Context, u URI) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.entries[u.String()]; !ok {
		return errors.Wrapf(ErrNotFound, "uri: delete %s", u)
	}
	delete(h.entries, u.String())
	return nil
}

func (h *MemoryHandler) Exists(_ context.Context, u URI) (bool, error) {
	_, ok := h.Get(u)
	return ok, nil
}

// Attributes supports Timestamp, Length and ReadOnly.
func (h *MemoryHandler) Attributes(_ context.Context, u URI, names ...string) (Attributes, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	entry, ok := h.entries[u.String()]
	if !ok {
		return Attributes{}, errors.Wrapf(ErrNotFound, "uri: stat %s", u)
	}
	var attrs Attributes
	if wants(names, AttrTimestamp) {
		attrs.Timestamp = timePtr(entry.modified)
	}
	if wants(names, AttrLength) {
		attrs.Length = int64Ptr(int64(len(entry.data)))
	}
	if wants(names, AttrReadOnly) {
		attrs.ReadOnly = boolPtr(entry.readOnly)
	}
	return attrs, nil
}

func (h *MemoryHandler) SetAttributes(_ context.Context, u URI, attrs Attributes) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	entry, ok := h.entries[u.String()]
	if !ok {
		return errors.Wrapf(ErrNotFound, "uri: touch %s", u)
	}
	if attrs.Timestamp != nil {
		entry.modified = *attrs.Timestamp
	}
	if attrs.ReadOnly != nil {
		entry.readOnly = *attrs.ReadOnly
	}
	return nil
}

type memoryWriter struct {
	handler *MemoryHandler
	uri     URI
	buf     bytes.Buffer
	closed  bool
}

func (w *memoryWriter) Write(p []byte) (int, error) {
	if w.closed {
		return 0, errors.New("uri: write to closed stream")
	}
	return w.buf.Write(p)
}

func (w *memoryWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	w.handler.Put(w.uri, w.buf.Bytes())
	return nil
}
