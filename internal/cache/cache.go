// Package cache provides optional media metadata caching using NutsDB.
package cache

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nutsdb/nutsdb"
)

const (
	mediaBucket = "media_cache"
	pageBucket  = "page_cache"
)

// DefaultMediaTTL is the default time-to-live for resolved media. Direct
// media URLs handed out by the extractor expire, so this stays well below
// their lifetime.
const DefaultMediaTTL = 2 * time.Hour

// DefaultPageTTL is the default time-to-live for cached search pages.
const DefaultPageTTL = 10 * time.Minute

// ErrMiss is returned when a key is not cached or has expired.
var ErrMiss = errors.New("cache miss")

// MediaEntry is the cached outcome of resolving one item.
type MediaEntry struct {
	ID       string            `json:"id"`
	Title    string            `json:"title"`
	Format   string            `json:"format"`
	Ext      string            `json:"ext"`
	URL      string            `json:"url,omitempty"`
	Size     int64             `json:"size"`
	Headers  map[string]string `json:"headers,omitempty"`
	Resolved int64             `json:"resolved"`
}

// PageEntry is one search result of a cached page.
type PageEntry struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Duration float64 `json:"duration,omitempty"`
}

// Options tunes TTLs. Zero values use the defaults.
type Options struct {
	MediaTTL time.Duration
	PageTTL  time.Duration
}

// Cache provides metadata caching with NutsDB.
type Cache struct {
	db       *nutsdb.DB
	logger   *slog.Logger
	mediaTTL uint32
	pageTTL  uint32
}

// New creates a new cache instance at the specified directory.
func New(dir string, opts Options, logger *slog.Logger) (*Cache, error) {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "cache")
	if opts.MediaTTL <= 0 {
		opts.MediaTTL = DefaultMediaTTL
	}
	if opts.PageTTL <= 0 {
		opts.PageTTL = DefaultPageTTL
	}

	db, err := nutsdb.Open(
		nutsdb.DefaultOptions,
		nutsdb.WithDir(dir),
		nutsdb.WithSegmentSize(8*1024*1024),
		nutsdb.WithEntryIdxMode(nutsdb.HintKeyAndRAMIdxMode), // only keys in RAM
		nutsdb.WithRWMode(nutsdb.MMap),
	)
	if err != nil {
		logger.Error("failed to open cache database", "dir", dir, "error", err)
		return nil, err
	}

	err = db.Update(func(tx *nutsdb.Tx) error {
		for _, b := range []string{mediaBucket, pageBucket} {
			if err := tx.NewBucket(nutsdb.DataStructureBTree, b); err != nil && !errors.Is(err, nutsdb.ErrBucketAlreadyExist) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logger.Error("failed to create cache buckets", "error", err)
		db.Close()
		return nil, err
	}

	logger.Info("cache initialized", "dir", dir, "media_ttl", opts.MediaTTL, "page_ttl", opts.PageTTL)
	return &Cache{
		db:       db,
		logger:   logger,
		mediaTTL: uint32(opts.MediaTTL.Seconds()),
		pageTTL:  uint32(opts.PageTTL.Seconds()),
	}, nil
}

func mediaKey(id, format string) []byte {
	return []byte(id + "\x00" + format)
}

func pageKey(phrase string, page, perPage int) []byte {
	return []byte(fmt.Sprintf("%s\x00%d\x00%d", phrase, perPage, page))
}

func (c *Cache) get(bucket string, key []byte, v any) error {
	err := c.db.View(func(tx *nutsdb.Tx) error {
		val, err := tx.Get(bucket, key)
		if err != nil {
			return err
		}
		return json.Unmarshal(val, v)
	})
	if err != nil {
		// Missing, expired and undecodable entries are all misses.
		return fmt.Errorf("%w: %v", ErrMiss, err)
	}
	return nil
}

func (c *Cache) put(bucket string, key []byte, v any, ttl uint32) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return c.db.Update(func(tx *nutsdb.Tx) error {
		return tx.Put(bucket, key, data, ttl)
	})
}

// GetMedia retrieves the resolved media of item id in format.
func (c *Cache) GetMedia(id, format string) (*MediaEntry, error) {
	var entry MediaEntry
	if err := c.get(mediaBucket, mediaKey(id, format), &entry); err != nil {
		return nil, err
	}
	c.logger.Debug("cache hit", "type", "media", "id", id, "format", format)
	return &entry, nil
}

// PutMedia stores resolved media with TTL.
func (c *Cache) PutMedia(format string, entry *MediaEntry) error {
	if err := c.put(mediaBucket, mediaKey(entry.ID, format), entry, c.mediaTTL); err != nil {
		c.logger.Warn("failed to cache media", "id", entry.ID, "error", err)
		return err
	}
	c.logger.Debug("cached media", "id", entry.ID, "format", format, "ttl", c.mediaTTL)
	return nil
}

// GetPage retrieves a cached search page.
func (c *Cache) GetPage(phrase string, page, perPage int) ([]PageEntry, error) {
	var entries []PageEntry
	if err := c.get(pageBucket, pageKey(phrase, page, perPage), &entries); err != nil {
		return nil, err
	}
	c.logger.Debug("cache hit", "type", "page", "phrase", phrase, "page", page, "entries", len(entries))
	return entries, nil
}

// PutPage stores a search page with TTL.
func (c *Cache) PutPage(phrase string, page, perPage int, entries []PageEntry) error {
	if err := c.put(pageBucket, pageKey(phrase, page, perPage), entries, c.pageTTL); err != nil {
		c.logger.Warn("failed to cache page", "phrase", phrase, "page", page, "error", err)
		return err
	}
	c.logger.Debug("cached page", "phrase", phrase, "page", page, "entries", len(entries), "ttl", c.pageTTL)
	return nil
}

// InvalidateMedia drops the resolved media of item id, typically after
// its URL stopped working.
func (c *Cache) InvalidateMedia(id, format string) {
	c.db.Update(func(tx *nutsdb.Tx) error {
		tx.Delete(mediaBucket, mediaKey(id, format))
		return nil
	})
	c.logger.Debug("invalidated cache", "id", id, "format", format)
}

// Close closes the cache database.
func (c *Cache) Close() error {
	c.logger.Info("closing cache")
	return c.db.Close()
}
