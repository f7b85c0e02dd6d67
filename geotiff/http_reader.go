package geotiff

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
)

// readAhead is the minimum size of a ranged GET issued by Read. Header and IFD
// parsing read a few bytes at a time, so one window usually covers them.
const readAhead = 16 << 10

var ErrNoRangeSupport = errors.New("server does not accept byte range requests")

// HTTPRangeReader reads a remote GeoTIFF through HTTP range requests. Sequential
// reads go through a read-ahead window; ReadAt is served from that window when
// it covers the request and fetches exactly what is asked otherwise.
type HTTPRangeReader struct {
	ctx    context.Context
	url    string
	client *http.Client
	size   int64

	mu       sync.Mutex
	offset   int64
	window   []byte
	winStart int64
	requests int
}

// NewHTTPRangeReader learns the size of url with a HEAD request. Later requests
// are bound to ctx.
func NewHTTPRangeReader(ctx context.Context, url string, client *http.Client) (*HTTPRangeReader, error) {
	if client == nil {
		client = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating head request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("head %s: %w", url, err)
	}
	resp.Body.Close()

	switch {
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("head %s: %s", url, resp.Status)
	case resp.Header.Get("Accept-Ranges") != "bytes":
		return nil, fmt.Errorf("%w: %s", ErrNoRangeSupport, url)
	case resp.ContentLength <= 0:
		return nil, fmt.Errorf("head %s: unknown or empty content length", url)
	}

	return &HTTPRangeReader{ctx: ctx, url: url, client: client, size: resp.ContentLength}, nil
}

// Size returns the remote content length.
func (h *HTTPRangeReader) Size() int64 { return h.size }

// Requests returns the number of ranged GETs issued so far.
func (h *HTTPRangeReader) Requests() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.requests
}

func (h *HTTPRangeReader) Read(p []byte) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.offset >= h.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	if h.offset < h.winStart || h.offset >= h.winStart+int64(len(h.window)) {
		buf := make([]byte, min(max(int64(len(p)), readAhead), h.size-h.offset))
		n, err := h.fetch(buf, h.offset)
		if n == 0 {
			return 0, err
		}
		h.window, h.winStart = buf[:n], h.offset
	}
	n := copy(p, h.window[h.offset-h.winStart:])
	h.offset += int64(n)
	return n, nil
}

func (h *HTTPRangeReader) Seek(offset int64, whence int) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch whence {
	case io.SeekStart:
	case io.SeekCurrent:
		offset += h.offset
	case io.SeekEnd:
		offset += h.size
	default:
		return 0, fmt.Errorf("seek: invalid whence %d", whence)
	}
	if offset < 0 {
		return 0, fmt.Errorf("seek: negative offset %d", offset)
	}
	h.offset = offset
	return offset, nil
}

// ReadAt does not move the sequential offset.
func (h *HTTPRangeReader) ReadAt(p []byte, off int64) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if off < 0 {
		return 0, fmt.Errorf("read at: negative offset %d", off)
	}
	if off >= h.size {
		return 0, io.EOF
	}
	want := min(int64(len(p)), h.size-off)
	h.mu.Lock()
	var n int
	var err error
	if off >= h.winStart && off+want <= h.winStart+int64(len(h.window)) {
		n = copy(p[:want], h.window[off-h.winStart:])
	} else {
		n, err = h.fetch(p[:want], off)
	}
	h.mu.Unlock()
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

// fetch fills buf from off with one ranged GET. Callers hold mu.
func (h *HTTPRangeReader) fetch(buf []byte, off int64) (int, error) {
	req, err := http.NewRequestWithContext(h.ctx, http.MethodGet, h.url, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, off+int64(len(buf))-1))
	h.requests++

	resp, err := h.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusPartialContent {
		return 0, fmt.Errorf("range %d+%d of %s: %s", off, len(buf), h.url, resp.Status)
	}
	return io.ReadFull(resp.Body, buf)
}
