package media

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const payload = "0123456789abcdefghijklmnopqrstuvwxyz"

// rangeServer answers "bytes=a-b" requests over payload.
func rangeServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "test-agent", r.Header.Get("User-Agent"))

		byteRange := strings.TrimPrefix(r.Header.Get("Range"), "bytes=")
		from, to, _ := strings.Cut(byteRange, "-")
		start, _ := strconv.Atoi(from)
		end, _ := strconv.Atoi(to)
		if start >= len(payload) {
			w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", len(payload)))
			w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
			return
		}
		if end >= len(payload) {
			end = len(payload) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(payload)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write([]byte(payload[start : end+1]))
	}))
	t.Cleanup(srv.Close)
	return srv
}

var testHeaders = map[string]string{"User-Agent": "test-agent"}

func TestReadRangePartialContent(t *testing.T) {
	srv := rangeServer(t)
	tr := NewTransport(time.Second)

	data, total, err := tr.ReadRange(context.Background(), srv.URL, testHeaders, 10, 5)
	require.NoError(t, err)
	assert.Equal(t, "abcde", string(data))
	assert.Equal(t, int64(len(payload)), total)

	data, _, err = tr.ReadRange(context.Background(), srv.URL, testHeaders, 30, 100)
	require.NoError(t, err)
	assert.Equal(t, "uvwxyz", string(data))
}

func TestReadRangePastEnd(t *testing.T) {
	srv := rangeServer(t)
	tr := NewTransport(time.Second)

	data, total, err := tr.ReadRange(context.Background(), srv.URL, testHeaders, 100, 10)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, int64(len(payload)), total)
}

func TestReadRangeIgnoredRange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Length", strconv.Itoa(len(payload)))
		w.Write([]byte(payload))
	}))
	defer srv.Close()
	tr := NewTransport(time.Second)

	data, total, err := tr.ReadRange(context.Background(), srv.URL, nil, 0, 3)
	require.NoError(t, err)
	assert.Equal(t, "012", string(data))
	assert.Equal(t, int64(len(payload)), total)

	_, total, err = tr.ReadRange(context.Background(), srv.URL, nil, 4, 3)
	assert.ErrorIs(t, err, ErrRangeUnsupported)
	assert.NotErrorIs(t, err, ErrExpired)
	assert.Equal(t, int64(len(payload)), total)
}

func TestReadRangeExpired(t *testing.T) {
	for _, code := range []int{http.StatusForbidden, http.StatusGone} {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(code)
		}))
		tr := NewTransport(time.Second)

		_, _, err := tr.ReadRange(context.Background(), srv.URL, nil, 0, 10)
		assert.ErrorIs(t, err, ErrExpired, "status %d", code)
		srv.Close()
	}
}

func TestReadRangeServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	tr := NewTransport(time.Second)

	_, _, err := tr.ReadRange(context.Background(), srv.URL, nil, 0, 10)
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrExpired)
}

func TestReadRangeZeroLength(t *testing.T) {
	tr := NewTransport(time.Second)
	data, total, err := tr.ReadRange(context.Background(), "http://127.0.0.1:1/unused", nil, 0, 0)
	require.NoError(t, err)
	assert.Empty(t, data)
	assert.Equal(t, int64(-1), total)
}

func TestParseContentRangeTotal(t *testing.T) {
	assert.Equal(t, int64(1234), parseContentRangeTotal("bytes 0-99/1234"))
	assert.Equal(t, int64(36), parseContentRangeTotal("bytes */36"))
	assert.Equal(t, int64(-1), parseContentRangeTotal("bytes 0-99/*"))
	assert.Equal(t, int64(-1), parseContentRangeTotal(""))
	assert.Equal(t, int64(-1), parseContentRangeTotal("bytes 0-99/"))
}
