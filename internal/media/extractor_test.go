package media

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBinary writes an executable shell script that stands in for yt-dlp.
// It records its arguments, one per line, in the returned args file.
func fakeBinary(t *testing.T, body string) (binary, argsFile string) {
	t.Helper()
	dir := t.TempDir()
	argsFile = filepath.Join(dir, "args")
	binary = filepath.Join(dir, "yt-dlp")
	script := "#!/bin/sh\nfor a in \"$@\"; do echo \"$a\" >> " + argsFile + "; done\n" + body
	require.NoError(t, os.WriteFile(binary, []byte(script), 0o755))
	return binary, argsFile
}

func readArgs(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	return strings.Split(strings.TrimSpace(string(data)), "\n")
}

func TestNewYTDLPArgs(t *testing.T) {
	y, err := NewYTDLP(YTDLPOptions{
		Args:    `--extractor-args "youtube:player_client=web" -4`,
		Cookies: "/tmp/cookies.txt",
		Proxy:   "socks5://127.0.0.1:1080",
	}, nil)
	require.NoError(t, err)

	assert.Equal(t, "yt-dlp", y.binary)
	assert.Equal(t, []string{
		"--extractor-args", "youtube:player_client=web", "-4",
		"--cookies", "/tmp/cookies.txt",
		"--proxy", "socks5://127.0.0.1:1080",
	}, y.args)
	assert.Positive(t, y.timeout)
}

func TestNewYTDLPBadArgs(t *testing.T) {
	_, err := NewYTDLP(YTDLPOptions{Args: `--unterminated "quote`}, nil)
	require.Error(t, err)
}

func TestYTDLPSearch(t *testing.T) {
	binary, argsFile := fakeBinary(t, `cat <<'EOF'
{"id": "ytsearch20:cats", "entries": [
  {"id": "aaa", "title": "Cat one", "duration": 61},
  {"id": "", "title": "broken"},
  {"id": "bbb", "title": "Cat two", "duration": 12.5}
]}
EOF
`)
	y, err := NewYTDLP(YTDLPOptions{Binary: binary, Args: "--no-warnings"}, nil)
	require.NoError(t, err)

	entries, err := y.Search(context.Background(), "cats", 11, 20)
	require.NoError(t, err)
	assert.Equal(t, []Entry{
		{ID: "aaa", Title: "Cat one", Duration: 61},
		{ID: "bbb", Title: "Cat two", Duration: 12.5},
	}, entries)

	assert.Equal(t, []string{
		"--no-warnings",
		"--flat-playlist", "-J",
		"--playlist-start", "11",
		"--playlist-end", "20",
		"ytsearch20:cats",
	}, readArgs(t, argsFile))
}

func TestYTDLPResolve(t *testing.T) {
	binary, argsFile := fakeBinary(t, `echo '{"id": "aaa", "title": "Cat", "format_id": "140", "ext": "m4a", "url": "https://example.com/a", "filesize": 1000}'
`)
	y, err := NewYTDLP(YTDLPOptions{Binary: binary}, nil)
	require.NoError(t, err)

	m, err := y.Resolve(context.Background(), "aaa", "bestaudio")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", m.URL)
	assert.Equal(t, int64(1000), m.Size)
	assert.Equal(t, []string{"-J", "--no-playlist", "-f", "bestaudio", watchURL("aaa")}, readArgs(t, argsFile))
}

func TestYTDLPFailure(t *testing.T) {
	binary, _ := fakeBinary(t, `echo "WARNING: something" >&2
echo "ERROR: video unavailable" >&2
exit 1
`)
	y, err := NewYTDLP(YTDLPOptions{Binary: binary}, nil)
	require.NoError(t, err)

	_, err = y.Resolve(context.Background(), "gone", "bestaudio")
	require.ErrorIs(t, err, ErrExtractor)
	assert.Contains(t, err.Error(), "ERROR: video unavailable")
	assert.NotContains(t, err.Error(), "WARNING")
}

func TestYTDLPCanceled(t *testing.T) {
	binary, _ := fakeBinary(t, "sleep 5\n")
	y, err := NewYTDLP(YTDLPOptions{Binary: binary}, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = y.Search(ctx, "cats", 1, 10)
	require.ErrorIs(t, err, context.Canceled)
}

func TestYTDLPDownload(t *testing.T) {
	// Writes the output template with the extension filled in.
	binary, _ := fakeBinary(t, `out=""
prev=""
for a in "$@"; do
  if [ "$prev" = "-o" ]; then out="$a"; fi
  prev="$a"
done
printf 'media' > "$(echo "$out" | sed 's/%(ext)s/mp4/')"
`)
	y, err := NewYTDLP(YTDLPOptions{Binary: binary}, nil)
	require.NoError(t, err)

	prefix := filepath.Join(t.TempDir(), "ytfs-test")
	path, err := y.Download(context.Background(), "aaa", "bestvideo+bestaudio", prefix)
	require.NoError(t, err)
	assert.Equal(t, prefix+".mp4", path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "media", string(data))
}

func TestFindDownloadMissing(t *testing.T) {
	_, err := findDownload(filepath.Join(t.TempDir(), "nothing"))
	require.ErrorIs(t, err, ErrExtractor)
}

func TestParseMedia(t *testing.T) {
	m, err := parseMedia([]byte(`{
		"id": "aaa", "title": "Cat", "format_id": "140", "ext": "m4a",
		"url": "https://example.com/a", "filesize_approx": 2048,
		"http_headers": {"User-Agent": "ua"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, &Media{
		ID:      "aaa",
		Title:   "Cat",
		Format:  "140",
		Ext:     "m4a",
		URL:     "https://example.com/a",
		Headers: map[string]string{"User-Agent": "ua"},
		Size:    2048,
	}, m)
}

func TestParseMediaMerged(t *testing.T) {
	m, err := parseMedia([]byte(`{
		"id": "aaa", "title": "Cat", "format_id": "137+140", "ext": "mp4",
		"requested_formats": [
			{"format_id": "137", "url": "https://example.com/v", "filesize": 3000},
			{"format_id": "140", "url": "https://example.com/a", "filesize_approx": 1000}
		]
	}`))
	require.NoError(t, err)
	assert.Empty(t, m.URL)
	assert.Nil(t, m.Headers)
	assert.Equal(t, int64(4000), m.Size)
	assert.Equal(t, "137+140", m.Format)
}

func TestParseMediaErrors(t *testing.T) {
	_, err := parseMedia([]byte("not json"))
	require.ErrorIs(t, err, ErrExtractor)

	_, err = parseMedia([]byte(`{"title": "no id"}`))
	require.ErrorIs(t, err, ErrExtractor)
}
