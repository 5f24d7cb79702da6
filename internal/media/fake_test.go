package media

import (
	"context"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
)

// fakeExtractor serves total numbered hits for any phrase and writes a
// small file on Download.
type fakeExtractor struct {
	total   int
	content []byte

	// url, when set, is returned as the direct URL of every resolved item.
	url string

	searchErr   error
	resolveErr  error
	downloadErr error

	// block, when set, is received from before Resolve and Download return.
	block chan struct{}

	searches  atomic.Int32
	resolves  atomic.Int32
	downloads atomic.Int32

	mu          sync.Mutex
	resolvedIDs []string
	ranges      [][2]int
}

func (f *fakeExtractor) Search(ctx context.Context, phrase string, start, end int) ([]Entry, error) {
	f.searches.Add(1)
	f.mu.Lock()
	f.ranges = append(f.ranges, [2]int{start, end})
	f.mu.Unlock()
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	var entries []Entry
	for n := start; n <= end && n <= f.total; n++ {
		entries = append(entries, Entry{
			ID:       fmt.Sprintf("id%03d", n),
			Title:    fmt.Sprintf("%s %d", phrase, n),
			Duration: float64(n),
		})
	}
	return entries, nil
}

func (f *fakeExtractor) Resolve(ctx context.Context, id, format string) (*Media, error) {
	f.resolves.Add(1)
	f.mu.Lock()
	f.resolvedIDs = append(f.resolvedIDs, id)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	if f.resolveErr != nil {
		return nil, f.resolveErr
	}
	return &Media{
		ID:     id,
		Title:  "title of " + id,
		Format: format,
		Ext:    "m4a",
		URL:    f.url,
		Size:   int64(len(f.content)),
	}, nil
}

func (f *fakeExtractor) Download(ctx context.Context, id, format, prefix string) (string, error) {
	f.downloads.Add(1)
	if f.block != nil {
		<-f.block
	}
	if f.downloadErr != nil {
		return "", f.downloadErr
	}
	path := prefix + ".m4a"
	if err := os.WriteFile(path, f.content, 0o600); err != nil {
		return "", err
	}
	return path, nil
}

func (f *fakeExtractor) lastRange() [2]int {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.ranges) == 0 {
		return [2]int{}
	}
	return f.ranges[len(f.ranges)-1]
}
