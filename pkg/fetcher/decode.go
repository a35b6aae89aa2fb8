package fetcher

import (
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// decodedBody wraps resp.Body with a decoder matching Content-Encoding.
// We advertise Accept-Encoding ourselves, so net/http leaves the body
// compressed and decoding is our job.
func decodedBody(resp *http.Response) (io.ReadCloser, bool, error) {
	encoding := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding")))
	switch encoding {
	case "", "identity":
		return resp.Body, false, nil
	case "gzip", "x-gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("gzip decode: %w", err)
		}
		return &stackedReader{Reader: gz, closers: []io.Closer{gz, resp.Body}}, true, nil
	case "deflate":
		fl := flate.NewReader(resp.Body)
		return &stackedReader{Reader: fl, closers: []io.Closer{fl, resp.Body}}, true, nil
	case "br":
		return &stackedReader{Reader: brotli.NewReader(resp.Body), closers: []io.Closer{resp.Body}}, true, nil
	case "zstd":
		zr, err := zstd.NewReader(resp.Body)
		if err != nil {
			return nil, false, fmt.Errorf("zstd decode: %w", err)
		}
		return &stackedReader{Reader: zr, closers: []io.Closer{zr.IOReadCloser(), resp.Body}}, true, nil
	default:
		return nil, false, fmt.Errorf("unsupported content encoding %q", encoding)
	}
}

type stackedReader struct {
	io.Reader
	closers []io.Closer
}

func (s *stackedReader) Close() error {
	var first error
	for _, c := range s.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// readLimited reads at most limit bytes and fails when the body is larger.
func readLimited(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > limit {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", limit)
	}
	return body, nil
}
