package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrExpired reports that a direct media URL is no longer accepted.
var ErrExpired = errors.New("media URL expired")

// ErrRangeUnsupported reports that the server answered a ranged request
// at a non-zero offset with the whole resource.
var ErrRangeUnsupported = errors.New("server ignores range requests")

// Transport reads byte ranges of direct media URLs.
type Transport struct {
	client *http.Client
}

// NewTransport creates a transport whose requests time out after timeout.
func NewTransport(timeout time.Duration) *Transport {
	if timeout <= 0 {
		timeout = DefaultHTTPTimeout
	}
	return &Transport{
		client: &http.Client{Timeout: timeout},
	}
}

// ReadRange reads up to length bytes at offset. It returns the bytes read
// and the total size of the resource when the server reported it, or -1.
// Reading at or past the end returns no data and no error.
func (t *Transport) ReadRange(ctx context.Context, url string, headers map[string]string, offset int64, length int) ([]byte, int64, error) {
	if length <= 0 {
		return nil, -1, nil
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, -1, err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", offset, offset+int64(length)-1))

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, -1, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusPartialContent:
		total := parseContentRangeTotal(resp.Header.Get("Content-Range"))
		data, err := readUpTo(resp.Body, length)
		return data, total, err

	case http.StatusOK:
		// Server ignored the range. Skipping to the offset on every read
		// costs the whole prefix each time, so only a read from the start
		// is served.
		total := resp.ContentLength
		if offset > 0 {
			return nil, total, ErrRangeUnsupported
		}
		data, err := readUpTo(resp.Body, length)
		return data, total, err

	case http.StatusRequestedRangeNotSatisfiable:
		return nil, parseContentRangeTotal(resp.Header.Get("Content-Range")), nil

	case http.StatusForbidden, http.StatusGone:
		return nil, -1, fmt.Errorf("%w: %s", ErrExpired, resp.Status)

	default:
		return nil, -1, fmt.Errorf("unexpected response: %s", resp.Status)
	}
}

func readUpTo(r io.Reader, n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r, buf)
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		err = nil
	}
	return buf[:read], err
}

// parseContentRangeTotal extracts the complete length from a header such
// as "bytes 0-99/1234". It returns -1 when the length is unknown.
func parseContentRangeTotal(h string) int64 {
	i := strings.LastIndexByte(h, '/')
	if i < 0 || i == len(h)-1 {
		return -1
	}
	total, err := strconv.ParseInt(h[i+1:], 10, 64)
	if err != nil {
		return -1
	}
	return total
}
