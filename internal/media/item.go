package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shrikrishnaholla/ytfs/internal/metrics"
	"github.com/shrikrishnaholla/ytfs/internal/vfs"
)

// Item is one search result. Its metadata is resolved on first open and
// its bytes are served either by ranged requests or from a downloaded
// copy.
type Item struct {
	resolver *Resolver
	entry    Entry
	logger   *slog.Logger

	mu       sync.Mutex
	media    *Media
	size     int64
	fds      map[int]struct{}
	file     *os.File
	path     string
	released bool

	downloads singleflight.Group
}

var (
	_ vfs.Handle   = (*Item)(nil)
	_ vfs.Unbinder = (*Item)(nil)
)

func newItem(s *Session, e Entry) *Item {
	return &Item{
		resolver: s.resolver,
		entry:    e,
		logger:   s.logger.With("id", e.ID),
		fds:      make(map[int]struct{}),
	}
}

// ID returns the id of the item as listed by the search.
func (i *Item) ID() string {
	return i.entry.ID
}

func (i *Item) sourceID() string {
	if i.resolver.opts.RickRoll {
		return rickRollID
	}
	return i.entry.ID
}

// Resolve fetches the item's metadata once.
func (i *Item) Resolve(ctx context.Context) error {
	i.mu.Lock()
	done := i.media != nil
	i.mu.Unlock()
	if done {
		return nil
	}

	m, err := i.resolver.resolve(ctx, i.sourceID())
	if err != nil {
		return err
	}

	i.mu.Lock()
	if i.media == nil {
		i.media = m
		if i.size == 0 {
			i.size = m.Size
		}
	}
	i.mu.Unlock()
	i.logger.Debug("resolved", "format", m.Format, "size", m.Size, "direct", m.URL != "")
	return nil
}

// Size is the best known size of the item, or zero before Resolve.
func (i *Item) Size() int64 {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.size
}

func (i *Item) Bind(fd int) {
	i.mu.Lock()
	i.fds[fd] = struct{}{}
	i.mu.Unlock()
}

func (i *Item) Unbind(fd int) {
	i.mu.Lock()
	delete(i.fds, fd)
	i.mu.Unlock()
}

// Readers returns the number of descriptors bound to the item.
func (i *Item) Readers() int {
	i.mu.Lock()
	defer i.mu.Unlock()
	return len(i.fds)
}

// Read returns up to length bytes at offset.
func (i *Item) Read(ctx context.Context, offset int64, length int) ([]byte, error) {
	i.mu.Lock()
	m := i.media
	i.mu.Unlock()
	if m == nil {
		return nil, fmt.Errorf("read before resolve: %s", i.entry.ID)
	}

	if i.resolver.opts.streaming() && m.URL != "" {
		data, err := i.readStream(ctx, m, offset, length)
		switch {
		case err == nil:
			return data, nil
		case errors.Is(err, ErrExpired):
			i.logger.Info("direct URL expired, downloading instead", "error", err)
			i.resolver.forget(i.sourceID())
		case errors.Is(err, ErrRangeUnsupported):
			i.logger.Info("direct URL cannot seek, downloading instead", "offset", offset)
		default:
			return nil, err
		}
		i.stopStreaming(m)
	}
	return i.readDownload(ctx, offset, length)
}

// stopStreaming drops the direct URL of m so later reads go straight to
// the download.
func (i *Item) stopStreaming(m *Media) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.media == m {
		local := *m
		local.URL = ""
		local.Headers = nil
		i.media = &local
	}
}

func (i *Item) readStream(ctx context.Context, m *Media, offset int64, length int) ([]byte, error) {
	data, total, err := i.resolver.transport.ReadRange(ctx, m.URL, m.Headers, offset, length)
	if err != nil {
		return nil, err
	}
	if total > 0 {
		i.mu.Lock()
		i.size = total
		i.mu.Unlock()
	}
	metrics.AddBytesServed("stream", len(data))
	return data, nil
}

func (i *Item) readDownload(ctx context.Context, offset int64, length int) ([]byte, error) {
	f, err := i.download(ctx)
	if err != nil {
		return nil, err
	}

	buf := make([]byte, length)
	n, err := f.ReadAt(buf, offset)
	if err != nil && !errors.Is(err, io.EOF) {
		return nil, err
	}
	metrics.AddBytesServed("download", n)
	return buf[:n], nil
}

// download fetches the whole item once. Concurrent readers wait for the
// same download, which is not tied to any single reader's context.
func (i *Item) download(ctx context.Context) (*os.File, error) {
	i.mu.Lock()
	if i.file != nil {
		f := i.file
		i.mu.Unlock()
		return f, nil
	}
	if i.released {
		i.mu.Unlock()
		return nil, fmt.Errorf("item %s was released", i.entry.ID)
	}
	i.mu.Unlock()

	ch := i.downloads.DoChan("download", func() (any, error) {
		opts := i.resolver.opts
		dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), opts.DownloadTimeout)
		defer cancel()

		prefix := filepath.Join(opts.TempDir, "ytfs-"+uuid.NewString())
		i.logger.Info("downloading", "format", opts.FormatSelector())
		path, err := i.resolver.extractor.Download(dctx, i.sourceID(), opts.FormatSelector(), prefix)
		if err != nil {
			return nil, err
		}
		f, err := os.Open(path)
		if err != nil {
			os.Remove(path)
			return nil, err
		}
		fi, err := f.Stat()
		if err != nil {
			f.Close()
			os.Remove(path)
			return nil, err
		}

		i.mu.Lock()
		defer i.mu.Unlock()
		if i.released {
			f.Close()
			os.Remove(path)
			return nil, fmt.Errorf("item %s was released", i.entry.ID)
		}
		i.file = f
		i.path = path
		i.size = fi.Size()
		i.logger.Info("download complete", "size", fi.Size())
		return f, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(*os.File), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// release closes and removes the downloaded copy.
func (i *Item) release() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.released = true
	if i.file == nil {
		return nil
	}
	err := i.file.Close()
	if rmErr := os.Remove(i.path); rmErr != nil && !os.IsNotExist(rmErr) {
		err = errors.Join(err, rmErr)
	}
	i.file = nil
	i.path = ""
	return err
}
