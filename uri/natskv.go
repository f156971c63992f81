package uri

import (
	"bytes"
	"context"
	"io"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"
)

// NATSKVScheme addresses content in JetStream key-value buckets as
// nats-kv://bucket/key. The key may contain further '/' separated segments.
const NATSKVScheme = "nats-kv"

// KeyValue is the subset of jetstream.KeyValue the handler needs.
type KeyValue interface {
	Get(ctx context.Context, key string) (jetstream.KeyValueEntry, error)
	Put(ctx context.Context, key string, value []byte) (uint64, error)
	Delete(ctx context.Context, key string, opts ...jetstream.KVDeleteOpt) error
}

// BucketOpener returns the bucket with the given name.
type BucketOpener func(ctx context.Context, bucket string) (KeyValue, error)

// NATSKVHandler stores model content in JetStream key-value buckets, which
// lets a model set share its sources with other processes.
type NATSKVHandler struct {
	open   BucketOpener
	logger *zap.Logger

	mu      sync.RWMutex
	buckets map[string]KeyValue
}

// NewNATSKVHandler creates a handler over the buckets of js. Buckets must
// already exist.
func NewNATSKVHandler(js jetstream.JetStream, logger *zap.Logger) *NATSKVHandler {
	return NewNATSKVHandlerWithOpener(func(ctx context.Context, bucket string) (KeyValue, error) {
		return js.KeyValue(ctx, bucket)
	}, logger)
}

// NewNATSKVHandlerWithOpener creates a handler that obtains buckets from open.
func NewNATSKVHandlerWithOpener(open BucketOpener, logger *zap.Logger) *NATSKVHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NATSKVHandler{open: open, logger: logger, buckets: map[string]KeyValue{}}
}

func (h *NATSKVHandler) CanHandle(u URI) bool { return u.Scheme() == NATSKVScheme }

func splitKV(u URI) (bucket, key string, err error) {
	bucket = u.Host()
	key = strings.Trim(u.Path(), "/")
	if bucket == "" || key == "" {
		return "", "", errors.Newf("uri: %s does not name a bucket and key", u)
	}
	return bucket, key, nil
}

func (h *NATSKVHandler) bucket(ctx context.Context, name string) (KeyValue, error) {
	h.mu.RLock()
	kv := h.buckets[name]
	h.mu.RUnlock()
	if kv != nil {
		return kv, nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if kv := h.buckets[name]; kv != nil {
		return kv, nil
	}
	kv, err := h.open(ctx, name)
	if err != nil {
		return nil, errors.Wrapf(err, "uri: open bucket %s", name)
	}
	h.buckets[name] = kv
	h.logger.Debug("opened key-value bucket", zap.String("bucket", name))
	return kv, nil
}

func (h *NATSKVHandler) entry(ctx context.Context, u URI) (jetstream.KeyValueEntry, error) {
	bucket, key, err := splitKV(u)
	if err != nil {
		return nil, err
	}
	kv, err := h.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	entry, err := kv.Get(ctx, key)
	if err != nil {
		if isKeyMissing(err) {
			return nil, errors.Wrapf(ErrNotFound, "uri: get %s", u)
		}
		return nil, errors.Wrapf(err, "uri: get %s", u)
	}
	return entry, nil
}

func isKeyMissing(err error) bool {
	return errors.Is(err, jetstream.ErrKeyNotFound) || errors.Is(err, jetstream.ErrKeyDeleted)
}

func (h *NATSKVHandler) OpenInput(ctx context.Context, u URI) (io.ReadCloser, error) {
	entry, err := h.entry(ctx, u)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(entry.Value())), nil
}

func (h *NATSKVHandler) OpenOutput(ctx context.Context, u URI) (io.WriteCloser, error) {
	bucket, key, err := splitKV(u)
	if err != nil {
		return nil, err
	}
	kv, err := h.bucket(ctx, bucket)
	if err != nil {
		return nil, err
	}
	return &kvWriter{ctx: ctx, kv: kv, key: key, uri: u}, nil
}

func (h *NATSKVHandler) Delete(ctx context.Context, u URI) error {
	if _, err := h.entry(ctx, u); err != nil {
		return err
	}
	bucket, key, _ := splitKV(u)
	kv, err := h.bucket(ctx, bucket)
	if err != nil {
		return err
	}
	if err := kv.Delete(ctx, key); err != nil {
		return errors.Wrapf(err, "uri: delete %s", u)
	}
	return nil
}

func (h *NATSKVHandler) Exists(ctx context.Context, u URI) (bool, error) {
	_, err := h.entry(ctx, u)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, ErrNotFound):
		return false, nil
	default:
		return false, err
	}
}

// Attributes supports Timestamp (revision creation time) and Length.
func (h *NATSKVHandler) Attributes(ctx context.Context, u URI, names ...string) (Attributes, error) {
	entry, err := h.entry(ctx, u)
	if err != nil {
		return Attributes{}, err
	}
	var attrs Attributes
	if wants(names, AttrTimestamp) {
		attrs.Timestamp = timePtr(entry.Created())
	}
	if wants(names, AttrLength) {
		attrs.Length = int64Ptr(int64(len(entry.Value())))
	}
	return attrs, nil
}

// SetAttributes is not supported for key-value content. Setting any
// attribute fails with ErrUnsupportedAttributes.
func (h *NATSKVHandler) SetAttributes(_ context.Context, u URI, attrs Attributes) error {
	return unsupportedAttributes(u, attrs)
}

type kvWriter struct {
	ctx    context.Context
	kv     KeyValue
	key    string
	uri    URI
	buf    bytes.Buffer
	closed bool
}

func (w *kvWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *kvWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	if _, err := w.kv.Put(w.ctx, w.key, w.buf.Bytes()); err != nil {
		return errors.Wrapf(err, "uri: put %s", w.uri)
	}
	return nil
}
