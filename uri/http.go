package uri

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	DefaultHTTPTimeout       = 30 * time.Second
	DefaultHardTimeoutMargin = 5 * time.Second
)

// HTTPHandler serves http: and https: URIs. Reads use GET, writes PUT the
// content when the output stream is closed.
//
// The client timeout is the soft limit. Connecting and receiving the status
// line are additionally bounded by a hard limit of timeout plus margin, which
// is enforced outside the client so a stuck transport cannot block the caller.
type HTTPHandler struct {
	client *http.Client
	hard   time.Duration
	logger *zap.Logger
}

// HTTPOption configures an HTTPHandler.
type HTTPOption func(*HTTPHandler)

// WithHTTPClient replaces the default client. Its Timeout is kept when set.
func WithHTTPClient(client *http.Client) HTTPOption {
	return func(h *HTTPHandler) { h.client = client }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(logger *zap.Logger) HTTPOption {
	return func(h *HTTPHandler) { h.logger = logger }
}

// NewHTTPHandler creates a handler with the given soft timeout and the margin
// added for the hard timeout. Zero values select the defaults.
func NewHTTPHandler(timeout, margin time.Duration, opts ...HTTPOption) *HTTPHandler {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	if margin <= 0 {
		margin = DefaultHardTimeoutMargin
	}
	h := &HTTPHandler{logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	if h.client == nil {
		h.client = &http.Client{}
	}
	if h.client.Timeout == 0 {
		h.client.Timeout = timeout
	}
	h.hard = h.client.Timeout + margin
	return h
}

func (h *HTTPHandler) CanHandle(u URI) bool {
	scheme := u.Scheme()
	return scheme == "http" || scheme == "https"
}

type httpResult struct {
	resp *http.Response
	err  error
}

// do issues the request on its own goroutine and waits at most the hard
// timeout for the response headers. The returned cancel func must be called
// once the body is no longer needed.
func (h *HTTPHandler) do(ctx context.Context, method string, u URI, body []byte) (*http.Response, context.CancelFunc, error) {
	reqCtx, cancel := context.WithCancel(ctx)
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(reqCtx, method, u.String(), reader)
	if err != nil {
		cancel()
		return nil, nil, errors.Wrapf(err, "uri: %s %s", method, u)
	}
	done := make(chan httpResult, 1)
	go func() {
		resp, err := h.client.Do(req)
		done <- httpResult{resp: resp, err: err}
	}()

	timer := time.NewTimer(h.hard)
	defer timer.Stop()
	select {
	case res := <-done:
		if res.err != nil {
			cancel()
			return nil, nil, errors.Wrapf(res.err, "uri: %s %s", method, u)
		}
		return res.resp, cancel, nil
	case <-timer.C:
		cancel()
		h.logger.Warn("http request exceeded hard timeout",
			zap.String("method", method),
			zap.Stringer("uri", u),
			zap.Duration("timeout", h.hard))
		go drain(done)
		return nil, nil, errors.Wrapf(ErrTimeout, "uri: %s %s after %s", method, u, h.hard)
	case <-ctx.Done():
		cancel()
		go drain(done)
		return nil, nil, errors.Wrapf(ctx.Err(), "uri: %s %s", method, u)
	}
}

func drain(done <-chan httpResult) {
	if res := <-done; res.resp != nil {
		res.resp.Body.Close()
	}
}

func statusError(resp *http.Response, method string, u URI) error {
	if resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone {
		return errors.Wrapf(ErrNotFound, "uri: %s %s: %s", method, u, resp.Status)
	}
	return errors.Newf("uri: %s %s: %s", method, u, resp.Status)
}

func (h *HTTPHandler) OpenInput(ctx context.Context, u URI) (io.ReadCloser, error) {
	resp, cancel, err := h.do(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		resp.Body.Close()
		cancel()
		return nil, statusError(resp, http.MethodGet, u)
	}
	return &cancelOnClose{ReadCloser: resp.Body, cancel: cancel}, nil
}

func (h *HTTPHandler) OpenOutput(ctx context.Context, u URI) (io.WriteCloser, error) {
	return &httpWriter{ctx: ctx, handler: h, uri: u}, nil
}

func (h *HTTPHandler) Delete(ctx context.Context, u URI) error {
	return h.simple(ctx, http.MethodDelete, u, nil)
}

func (h *HTTPHandler) Exists(ctx context.Context, u URI) (bool, error) {
	resp, cancel, err := h.do(ctx, http.MethodHead, u, nil)
	if err != nil {
		return false, err
	}
	defer cancel()
	resp.Body.Close()
	switch {
	case resp.StatusCode/100 == 2:
		return true, nil
	case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
		return false, nil
	default:
		return false, statusError(resp, http.MethodHead, u)
	}
}

// Attributes supports Timestamp (Last-Modified) and Length (Content-Length).
func (h *HTTPHandler) Attributes(ctx context.Context, u URI, names ...string) (Attributes, error) {
	resp, cancel, err := h.do(ctx, http.MethodHead, u, nil)
	if err != nil {
		return Attributes{}, err
	}
	defer cancel()
	resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return Attributes{}, statusError(resp, http.MethodHead, u)
	}
	var attrs Attributes
	if wants(names, AttrTimestamp) {
		if modified, err := http.ParseTime(resp.Header.Get("Last-Modified")); err == nil {
			attrs.Timestamp = timePtr(modified)
		}
	}
	if wants(names, AttrLength) && resp.ContentLength >= 0 {
		attrs.Length = int64Ptr(resp.ContentLength)
	}
	return attrs, nil
}

// SetAttributes is not supported over HTTP. Setting any attribute fails with
// ErrUnsupportedAttributes.
func (h *HTTPHandler) SetAttributes(_ context.Context, u URI, attrs Attributes) error {
	return unsupportedAttributes(u, attrs)
}

func (h *HTTPHandler) simple(ctx context.Context, method string, u URI, body []byte) error {
	resp, cancel, err := h.do(ctx, method, u, body)
	if err != nil {
		return err
	}
	defer cancel()
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(resp, method, u)
	}
	return nil
}

type cancelOnClose struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (c *cancelOnClose) Close() error {
	err := c.ReadCloser.Close()
	c.cancel()
	return err
}

type httpWriter struct {
	ctx     context.Context
	handler *HTTPHandler
	uri     URI
	buf     bytes.Buffer
	closed  bool
}

func (w *httpWriter) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *httpWriter) Close() error {
	if w.closed {
		return nil
	}
	w.closed = true
	return w.handler.simple(w.ctx, http.MethodPut, w.uri, w.buf.Bytes())
}
