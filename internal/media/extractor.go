package media

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/kballard/go-shellquote"

	"github.com/shrikrishnaholla/ytfs/internal/metrics"
)

// ErrExtractor reports that the extractor could not answer a request.
var ErrExtractor = errors.New("extractor failed")

// Entry is one search hit.
type Entry struct {
	ID       string
	Title    string
	Duration float64
}

// Media is a resolved item.
type Media struct {
	ID     string
	Title  string
	Format string
	Ext    string

	// URL is the direct media URL. It is empty when the format merges
	// several streams.
	URL     string
	Headers map[string]string

	// Size is zero when the extractor does not know it.
	Size int64
}

// Extractor finds and resolves items.
type Extractor interface {
	// Search returns hits start..end (1-based, inclusive) for phrase.
	Search(ctx context.Context, phrase string, start, end int) ([]Entry, error)

	// Resolve fetches the metadata of item id in format.
	Resolve(ctx context.Context, id, format string) (*Media, error)

	// Download writes item id in format to a file whose name starts with
	// prefix and returns the file's path.
	Download(ctx context.Context, id, format, prefix string) (string, error)
}

// YTDLPOptions configures the yt-dlp extractor.
type YTDLPOptions struct {
	Binary string `mapstructure:"binary"`

	// Args are extra arguments added to every invocation, in shell
	// syntax.
	Args string `mapstructure:"args"`

	Cookies string        `mapstructure:"cookies"`
	Proxy   string        `mapstructure:"proxy"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// YTDLP runs a yt-dlp compatible executable with JSON output.
type YTDLP struct {
	binary  string
	args    []string
	timeout time.Duration
	logger  *slog.Logger
}

var _ Extractor = (*YTDLP)(nil)

// NewYTDLP creates an extractor. The binary is not executed until the
// first request.
func NewYTDLP(opts YTDLPOptions, logger *slog.Logger) (*YTDLP, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.Binary == "" {
		opts.Binary = "yt-dlp"
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 2 * time.Minute
	}

	args, err := shellquote.Split(opts.Args)
	if err != nil {
		return nil, fmt.Errorf("parsing extractor arguments %q: %w", opts.Args, err)
	}
	if opts.Cookies != "" {
		args = append(args, "--cookies", opts.Cookies)
	}
	if opts.Proxy != "" {
		args = append(args, "--proxy", opts.Proxy)
	}

	return &YTDLP{
		binary:  opts.Binary,
		args:    args,
		timeout: opts.Timeout,
		logger:  logger.With("component", "extractor"),
	}, nil
}

func watchURL(id string) string {
	return "https://www.youtube.com/watch?v=" + id
}

type ytdlpFormat struct {
	FormatID       string            `json:"format_id"`
	Ext            string            `json:"ext"`
	URL            string            `json:"url"`
	Filesize       float64           `json:"filesize"`
	FilesizeApprox float64           `json:"filesize_approx"`
	HTTPHeaders    map[string]string `json:"http_headers"`
}

type ytdlpInfo struct {
	ytdlpFormat
	ID               string        `json:"id"`
	Title            string        `json:"title"`
	Duration         float64       `json:"duration"`
	RequestedFormats []ytdlpFormat `json:"requested_formats"`
	Entries          []struct {
		ID       string  `json:"id"`
		Title    string  `json:"title"`
		Duration float64 `json:"duration"`
	} `json:"entries"`
}

func (f ytdlpFormat) size() int64 {
	if f.Filesize > 0 {
		return int64(f.Filesize)
	}
	return int64(f.FilesizeApprox)
}

// run executes the extractor. Downloads are bounded by the caller's
// context only; every other operation also by the extractor timeout.
func (y *YTDLP) run(ctx context.Context, operation string, args ...string) (out []byte, err error) {
	if operation != "download" {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, y.timeout)
		defer cancel()
	}
	defer func(start time.Time) { metrics.ObserveExtractor(operation, start, err) }(time.Now())

	full := append(append([]string{}, y.args...), args...)
	cmd := exec.CommandContext(ctx, y.binary, full...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	y.logger.Debug("running extractor", "operation", operation, "args", shellquote.Join(full...))
	if err := cmd.Run(); err != nil {
		if errors.Is(ctx.Err(), context.Canceled) {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: %s: %v: %s", ErrExtractor, operation, err, lastLine(stderr.String()))
	}
	return stdout.Bytes(), nil
}

func lastLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.LastIndexByte(s, '\n'); i >= 0 {
		return s[i+1:]
	}
	return s
}

// Search runs a flat playlist query over the extractor's search URL.
func (y *YTDLP) Search(ctx context.Context, phrase string, start, end int) ([]Entry, error) {
	out, err := y.run(ctx, "search",
		"--flat-playlist", "-J",
		"--playlist-start", strconv.Itoa(start),
		"--playlist-end", strconv.Itoa(end),
		fmt.Sprintf("ytsearch%d:%s", end, phrase))
	if err != nil {
		return nil, err
	}

	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: decoding search output: %v", ErrExtractor, err)
	}
	entries := make([]Entry, 0, len(info.Entries))
	for _, e := range info.Entries {
		if e.ID == "" {
			continue
		}
		entries = append(entries, Entry{ID: e.ID, Title: e.Title, Duration: e.Duration})
	}
	return entries, nil
}

// Resolve fetches the metadata of one item without downloading it.
func (y *YTDLP) Resolve(ctx context.Context, id, format string) (*Media, error) {
	out, err := y.run(ctx, "resolve", "-J", "--no-playlist", "-f", format, watchURL(id))
	if err != nil {
		return nil, err
	}
	return parseMedia(out)
}

func parseMedia(out []byte) (*Media, error) {
	var info ytdlpInfo
	if err := json.Unmarshal(out, &info); err != nil {
		return nil, fmt.Errorf("%w: decoding metadata: %v", ErrExtractor, err)
	}
	if info.ID == "" {
		return nil, fmt.Errorf("%w: metadata without id", ErrExtractor)
	}

	m := &Media{
		ID:      info.ID,
		Title:   info.Title,
		Format:  info.FormatID,
		Ext:     info.Ext,
		URL:     info.URL,
		Headers: info.HTTPHeaders,
		Size:    info.size(),
	}
	if len(info.RequestedFormats) > 1 {
		// Merged output has no single URL; its size is the sum of parts.
		m.URL = ""
		m.Headers = nil
		m.Size = 0
		for _, f := range info.RequestedFormats {
			m.Size += f.size()
		}
	}
	return m, nil
}

// Download fetches the whole item into a file named prefix.<ext>.
func (y *YTDLP) Download(ctx context.Context, id, format, prefix string) (string, error) {
	_, err := y.run(ctx, "download",
		"--no-playlist", "--no-part", "--quiet",
		"-f", format,
		"--merge-output-format", "mp4",
		"-o", prefix+".%(ext)s",
		watchURL(id))
	if err != nil {
		return "", err
	}
	return findDownload(prefix)
}

func findDownload(prefix string) (string, error) {
	matches, err := filepath.Glob(prefix + ".*")
	if err != nil {
		return "", err
	}
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			return m, nil
		}
	}
	return "", fmt.Errorf("%w: download produced no file for %s", ErrExtractor, filepath.Base(prefix))
}
