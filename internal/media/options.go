// Package media resolves search phrases into pages of playable media items
// using a yt-dlp compatible extractor.
package media

import (
	"strings"
	"time"
)

const (
	// DefaultResultsPerPage is the size of one search page.
	DefaultResultsPerPage = 10

	// DefaultHTTPTimeout bounds a single ranged media request.
	DefaultHTTPTimeout = 30 * time.Second

	// DefaultDownloadTimeout bounds a whole-file download.
	DefaultDownloadTimeout = 30 * time.Minute

	// rickRollID replaces every item id when Options.RickRoll is set.
	rickRollID = "dQw4w9WgXcQ"

	// mergedFallback is used when both audio and video are requested.
	mergedFallback = "bestvideo[height<=?1080]+bestaudio/best"
)

// Options controls what is fetched for each item and how it is delivered.
type Options struct {
	// Audio and Video select the streams to fetch. When neither is set
	// only audio is fetched.
	Audio bool
	Video bool

	// Format is an explicit extractor format selector. It overrides
	// Audio and Video.
	Format string

	// Stream serves reads with ranged HTTP requests whenever the selected
	// format has a single direct URL. Otherwise the whole item is
	// downloaded before the first read is answered.
	Stream bool

	// RickRoll resolves every item to the same well known video.
	RickRoll bool

	ResultsPerPage int

	// TempDir holds downloaded items. Empty uses os.TempDir.
	TempDir string

	HTTPTimeout     time.Duration
	DownloadTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ResultsPerPage <= 0 {
		o.ResultsPerPage = DefaultResultsPerPage
	}
	if o.HTTPTimeout <= 0 {
		o.HTTPTimeout = DefaultHTTPTimeout
	}
	if o.DownloadTimeout <= 0 {
		o.DownloadTimeout = DefaultDownloadTimeout
	}
	return o
}

func (o Options) audioOnly() bool {
	return !o.Video
}

// FormatSelector returns the extractor format selector for the options.
func (o Options) FormatSelector() string {
	if o.Format != "" {
		return o.Format
	}
	switch {
	case o.Audio && o.Video:
		return mergedFallback
	case o.Video:
		return "bestvideo"
	default:
		return "bestaudio"
	}
}

// Extension is the file extension shown in listings.
func (o Options) Extension() string {
	if o.Format == "" && o.audioOnly() {
		return "m4a"
	}
	return "mp4"
}

// Merged reports whether the format selector combines separate streams,
// which can only be served after a full download.
func (o Options) Merged() bool {
	return strings.Contains(o.FormatSelector(), "+")
}

// streaming reports whether reads should use ranged requests.
func (o Options) streaming() bool {
	return o.Stream && !o.Merged()
}
