package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"github.com/shrikrishnaholla/ytfs/internal/cache"
	"github.com/shrikrishnaholla/ytfs/internal/metrics"
	"github.com/shrikrishnaholla/ytfs/internal/vfs"
)

// ErrNoMoreResults is returned when paginating forward past the last hit.
var ErrNoMoreResults = errors.New("no more results")

// Resolver creates search sessions backed by an Extractor.
type Resolver struct {
	opts      Options
	extractor Extractor
	cache     *cache.Cache
	transport *Transport
	logger    *slog.Logger

	// resolves deduplicates concurrent metadata lookups of the same item
	// across sessions.
	resolves singleflight.Group
}

var _ vfs.Resolver = (*Resolver)(nil)

// NewResolver creates a resolver. c may be nil to disable caching.
func NewResolver(opts Options, extractor Extractor, c *cache.Cache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()
	if opts.TempDir == "" {
		opts.TempDir = os.TempDir()
	}
	return &Resolver{
		opts:      opts,
		extractor: extractor,
		cache:     c,
		transport: NewTransport(opts.HTTPTimeout),
		logger:    logger.With("component", "media"),
	}
}

// Options returns the effective options.
func (r *Resolver) Options() Options {
	return r.opts
}

// NewSession starts a session for phrase. No request is made until
// Search is called.
func (r *Resolver) NewSession(phrase string) vfs.Session {
	id := uuid.NewString()
	return &Session{
		resolver: r,
		phrase:   phrase,
		id:       id,
		items:    make(map[string]*Item),
		logger:   r.logger.With("phrase", phrase, "session", id),
	}
}

// resolve fetches item metadata, consulting the cache first. The lookup
// is shared by concurrent callers, so it does not inherit the caller's
// cancellation; the extractor timeout bounds it instead.
func (r *Resolver) resolve(ctx context.Context, id string) (*Media, error) {
	format := r.opts.FormatSelector()
	ctx = context.WithoutCancel(ctx)
	v, err, shared := r.resolves.Do(id+"\x00"+format, func() (any, error) {
		if r.cache != nil {
			if e, err := r.cache.GetMedia(id, format); err == nil {
				metrics.CacheHit()
				return mediaFromCache(e), nil
			}
			metrics.CacheMiss()
		}

		m, err := r.extractor.Resolve(ctx, id, format)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			// The cache logs its own write failures.
			_ = r.cache.PutMedia(format, mediaToCache(m))
		}
		return m, nil
	})
	if err != nil {
		return nil, err
	}
	if shared {
		r.logger.Debug("shared resolve", "id", id)
	}
	return v.(*Media), nil
}

// forget drops a cached resolution after its URL stopped working.
func (r *Resolver) forget(id string) {
	if r.cache != nil {
		r.cache.InvalidateMedia(id, r.opts.FormatSelector())
	}
}

func mediaFromCache(e *cache.MediaEntry) *Media {
	return &Media{
		ID:      e.ID,
		Title:   e.Title,
		Format:  e.Format,
		Ext:     e.Ext,
		URL:     e.URL,
		Headers: e.Headers,
		Size:    e.Size,
	}
}

func mediaToCache(m *Media) *cache.MediaEntry {
	return &cache.MediaEntry{
		ID:      m.ID,
		Title:   m.Title,
		Format:  m.Format,
		Ext:     m.Ext,
		URL:     m.URL,
		Headers: m.Headers,
		Size:    m.Size,
	}
}

// Session is one search phrase and its page cursor.
type Session struct {
	resolver *Resolver
	phrase   string
	id       string
	logger   *slog.Logger

	mu    sync.Mutex
	page  int
	items map[string]*Item // by item id, kept until ReleaseAll
}

var _ vfs.Session = (*Session)(nil)

// Page returns the zero-based index of the visible page.
func (s *Session) Page() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.page
}

// Search fetches the first page.
func (s *Session) Search(ctx context.Context) ([]vfs.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	results, err := s.fetch(ctx, 0)
	if err != nil {
		return nil, err
	}
	s.page = 0
	return results, nil
}

// Paginate moves the cursor and fetches the new page. A neutral direction
// re-queries the current page; going back from the first page stays on
// it. The cursor only moves when the fetch succeeds.
func (s *Session) Paginate(ctx context.Context, direction vfs.Direction) ([]vfs.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	page := s.page
	switch direction {
	case vfs.DirectionForward:
		page++
	case vfs.DirectionBackward:
		if page > 0 {
			page--
		}
	}

	results, err := s.fetch(ctx, page)
	if err != nil {
		return nil, err
	}
	if len(results) == 0 && direction == vfs.DirectionForward {
		return nil, fmt.Errorf("%w for %q after page %d", ErrNoMoreResults, s.phrase, s.page)
	}
	s.page = page
	return results, nil
}

// fetch expects s.mu to be held.
func (s *Session) fetch(ctx context.Context, page int) ([]vfs.Result, error) {
	r := s.resolver
	per := r.opts.ResultsPerPage

	var entries []Entry
	cached := false
	if r.cache != nil {
		if hits, err := r.cache.GetPage(s.phrase, page, per); err == nil {
			metrics.CacheHit()
			cached = true
			for _, h := range hits {
				entries = append(entries, Entry{ID: h.ID, Title: h.Title, Duration: h.Duration})
			}
		} else {
			metrics.CacheMiss()
		}
	}

	if !cached {
		var err error
		entries, err = r.extractor.Search(ctx, s.phrase, page*per+1, (page+1)*per)
		if err != nil {
			return nil, err
		}
		if r.cache != nil {
			hits := make([]cache.PageEntry, 0, len(entries))
			for _, e := range entries {
				hits = append(hits, cache.PageEntry{ID: e.ID, Title: e.Title, Duration: e.Duration})
			}
			_ = r.cache.PutPage(s.phrase, page, per, hits)
		}
	}

	ext := r.opts.Extension()
	results := make([]vfs.Result, 0, len(entries))
	for _, e := range entries {
		item, ok := s.items[e.ID]
		if !ok {
			item = newItem(s, e)
			s.items[e.ID] = item
		}
		results = append(results, vfs.Result{
			Name:   FileName(e.Title, e.ID, ext),
			Handle: item,
		})
	}
	s.logger.Debug("fetched page", "page", page, "results", len(results), "cached", cached)
	return results, nil
}

// ReleaseAll drops every item of the session and removes downloaded
// files.
func (s *Session) ReleaseAll() error {
	s.mu.Lock()
	items := s.items
	s.items = make(map[string]*Item)
	s.mu.Unlock()

	var errs []error
	for _, item := range items {
		if err := item.release(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(items) > 0 {
		s.logger.Debug("released session", "items", len(items))
	}
	return errors.Join(errs...)
}
