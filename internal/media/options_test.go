package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOptionsFormatSelection(t *testing.T) {
	tests := []struct {
		name      string
		opts      Options
		selector  string
		ext       string
		merged    bool
		streaming bool
	}{
		{"default is audio", Options{Stream: true}, "bestaudio", "m4a", false, true},
		{"audio flag", Options{Audio: true, Stream: true}, "bestaudio", "m4a", false, true},
		{"video only", Options{Video: true, Stream: true}, "bestvideo", "mp4", false, true},
		{"audio and video", Options{Audio: true, Video: true, Stream: true}, mergedFallback, "mp4", true, false},
		{"explicit format", Options{Format: "18", Stream: true}, "18", "mp4", false, true},
		{"explicit merged format", Options{Format: "137+140", Stream: true}, "137+140", "mp4", true, false},
		{"explicit format wins over flags", Options{Audio: true, Format: "22"}, "22", "mp4", false, false},
		{"download mode", Options{Stream: false}, "bestaudio", "m4a", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.selector, tt.opts.FormatSelector())
			assert.Equal(t, tt.ext, tt.opts.Extension())
			assert.Equal(t, tt.merged, tt.opts.Merged())
			assert.Equal(t, tt.streaming, tt.opts.streaming())
		})
	}
}

func TestOptionsDefaults(t *testing.T) {
	o := Options{}.withDefaults()
	assert.Equal(t, DefaultResultsPerPage, o.ResultsPerPage)
	assert.Equal(t, DefaultHTTPTimeout, o.HTTPTimeout)
	assert.Equal(t, DefaultDownloadTimeout, o.DownloadTimeout)

	o = Options{ResultsPerPage: 3}.withDefaults()
	assert.Equal(t, 3, o.ResultsPerPage)
}
