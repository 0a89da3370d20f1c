package goavif

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/valyala/fasthttp"
)

// Default read-ahead size. 'ftyp' and 'meta' of a typical AVIF fit in the
// first fetch.
const defaultReadAheadSize = 32 * 1024

// HTTPRangeReader implements io.ReadSeeker over HTTP range requests, so a
// remote AVIF can be decoded without downloading bytes the decoder skips.
// Sequential reads go through a read-ahead buffer.
type HTTPRangeReader struct {
	url    string
	client *fasthttp.Client
	size   int64
	mu     sync.Mutex
	pos    int64

	buffer        []byte
	bufferStart   int64 // file offset of buffer[0]
	bufferEnd     int64 // exclusive
	readAheadSize int

	requests atomic.Int64
}

// NewHTTPRangeReader creates a range reader for url. The file size is taken
// from a HEAD request, or from Content-Range of the first ranged GET when the
// server does not answer HEAD with a length.
func NewHTTPRangeReader(url string, client *fasthttp.Client) *HTTPRangeReader {
	rr := &HTTPRangeReader{
		url:           url,
		client:        client,
		readAheadSize: defaultReadAheadSize,
		bufferStart:   -1,
		bufferEnd:     -1,
	}
	rr.size = rr.getSize()
	return rr
}

// NewHTTPRangeReaderWithReadAhead creates a range reader with a custom
// read-ahead size.
func NewHTTPRangeReaderWithReadAhead(url string, client *fasthttp.Client, readAheadSize int) *HTTPRangeReader {
	rr := NewHTTPRangeReader(url, client)
	if readAheadSize > 0 {
		rr.readAheadSize = readAheadSize
	}
	return rr
}

// SetReadAheadSize sets the read-ahead buffer size.
func (rr *HTTPRangeReader) SetReadAheadSize(size int) {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	if size > 0 {
		rr.readAheadSize = size
	}
}

func (rr *HTTPRangeReader) getSize() int64 {
	if rr.client == nil {
		return -1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodHead)
	rr.requests.Add(1)
	if err := rr.client.Do(req, resp); err == nil && resp.StatusCode() == fasthttp.StatusOK {
		if n := resp.Header.ContentLength(); n > 0 {
			return int64(n)
		}
	}

	// Fall back to a one byte GET and read the total from Content-Range.
	req.Reset()
	resp.Reset()
	req.SetRequestURI(rr.url)
	req.Header.Set("Range", "bytes=0-0")
	rr.requests.Add(1)
	if err := rr.client.Do(req, resp); err != nil {
		return -1
	}
	if resp.StatusCode() == fasthttp.StatusPartialContent {
		return parseContentRangeTotal(string(resp.Header.Peek("Content-Range")))
	}
	return -1
}

// parseContentRangeTotal extracts the complete length from
// "bytes start-end/total". An unknown total ("*") yields -1.
func parseContentRangeTotal(v string) int64 {
	i := strings.LastIndexByte(v, '/')
	if i < 0 {
		return -1
	}
	n, err := strconv.ParseInt(v[i+1:], 10, 64)
	if err != nil || n <= 0 {
		return -1
	}
	return n
}

// Read reads from the current position.
func (rr *HTTPRangeReader) Read(p []byte) (n int, err error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	if rr.size >= 0 && rr.pos >= rr.size {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}

	toRead := len(p)
	if rr.size > 0 && rr.pos+int64(toRead) > rr.size {
		toRead = int(rr.size - rr.pos)
	}

	if rr.buffer != nil && rr.pos >= rr.bufferStart && rr.pos < rr.bufferEnd {
		bufferOffset := int(rr.pos - rr.bufferStart)
		availableInBuffer := int(rr.bufferEnd - rr.pos)

		if availableInBuffer >= toRead {
			n = copy(p[:toRead], rr.buffer[bufferOffset:bufferOffset+toRead])
			rr.pos += int64(n)
			return n, nil
		}

		// Serve the buffered head, fetch the tail.
		n = copy(p[:availableInBuffer], rr.buffer[bufferOffset:])
		rr.pos += int64(n)
		remaining := toRead - n
		nn, err := rr.readFromNetwork(p[n:n+remaining], remaining)
		n += nn
		return n, err
	}

	return rr.readWithReadAhead(p, toRead)
}

func (rr *HTTPRangeReader) readWithReadAhead(p []byte, toRead int) (n int, err error) {
	readSize := rr.readAheadSize
	if readSize < toRead {
		readSize = toRead
	}
	if rr.size > 0 && rr.pos+int64(readSize) > rr.size {
		readSize = int(rr.size - rr.pos)
	}

	data, err := rr.fetchRange(rr.pos, rr.pos+int64(readSize)-1)
	if err != nil {
		return 0, err
	}

	if len(data) > toRead {
		if cap(rr.buffer) >= len(data) {
			rr.buffer = rr.buffer[:len(data)]
		} else {
			rr.buffer = make([]byte, len(data))
		}
		copy(rr.buffer, data)
		rr.bufferStart = rr.pos
		rr.bufferEnd = rr.pos + int64(len(data))
	}

	if len(data) < toRead {
		toRead = len(data)
	}
	n = copy(p[:toRead], data[:toRead])
	if n == 0 {
		return 0, io.EOF
	}
	rr.pos += int64(n)
	return n, nil
}

// readFromNetwork reads directly, bypassing the read-ahead buffer. Large
// item payloads take this path.
func (rr *HTTPRangeReader) readFromNetwork(p []byte, toRead int) (n int, err error) {
	data, err := rr.fetchRange(rr.pos, rr.pos+int64(toRead)-1)
	if err != nil {
		return 0, err
	}
	if len(data) < toRead {
		toRead = len(data)
	}
	n = copy(p[:toRead], data[:toRead])
	rr.pos += int64(n)
	return n, nil
}

// fetchRange fetches the inclusive byte range [start, end]. A server that
// ignores Range and answers 200 gets its body sliced to the range.
func (rr *HTTPRangeReader) fetchRange(start, end int64) ([]byte, error) {
	if rr.client == nil {
		return nil, fmt.Errorf("no HTTP client for %s", rr.url)
	}
	if rr.size > 0 && end >= rr.size {
		end = rr.size - 1
	}

	req := fasthttp.AcquireRequest()
	defer fasthttp.ReleaseRequest(req)
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(rr.url)
	req.Header.SetMethod(fasthttp.MethodGet)
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", start, end))

	rr.requests.Add(1)
	if err := rr.client.Do(req, resp); err != nil {
		return nil, fmt.Errorf("failed to fetch bytes %d-%d: %w", start, end, err)
	}

	body := resp.Body()
	switch resp.StatusCode() {
	case fasthttp.StatusPartialContent:
	case fasthttp.StatusOK:
		if start >= int64(len(body)) {
			return nil, nil
		}
		stop := end + 1
		if stop > int64(len(body)) {
			stop = int64(len(body))
		}
		body = body[start:stop]
	case fasthttp.StatusRequestedRangeNotSatisfiable:
		return nil, nil
	default:
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode())
	}

	// Copy body since response will be released
	result := make([]byte, len(body))
	copy(result, body)
	return result, nil
}

// Seek sets the offset for the next Read. Seeking outside the buffered
// range drops the buffer.
func (rr *HTTPRangeReader) Seek(offset int64, whence int) (int64, error) {
	rr.mu.Lock()
	defer rr.mu.Unlock()

	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = rr.pos + offset
	case io.SeekEnd:
		if rr.size < 0 {
			return 0, fmt.Errorf("cannot seek from end: file size unknown")
		}
		newPos = rr.size + offset
	default:
		return 0, fmt.Errorf("invalid whence: %d", whence)
	}

	if newPos < 0 {
		return 0, fmt.Errorf("negative position: %d", newPos)
	}

	if rr.buffer != nil && (newPos < rr.bufferStart || newPos >= rr.bufferEnd) {
		rr.bufferStart = -1
		rr.bufferEnd = -1
	}

	rr.pos = newPos
	return rr.pos, nil
}

// ClearBuffer frees the read-ahead buffer.
func (rr *HTTPRangeReader) ClearBuffer() {
	rr.mu.Lock()
	defer rr.mu.Unlock()
	rr.buffer = nil
	rr.bufferStart = -1
	rr.bufferEnd = -1
}

// Size returns the file size, or -1 if unknown.
func (rr *HTTPRangeReader) Size() int64 {
	return rr.size
}

// Requests returns the number of HTTP requests issued so far.
func (rr *HTTPRangeReader) Requests() int64 {
	return rr.requests.Load()
}
