package config

import (
	"errors"
	"fmt"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// ErrUsage reports a command line that cannot be interpreted.
var ErrUsage = errors.New("usage error")

// NewFlagSet defines the ytfs command line. The single positional
// argument is the mountpoint.
func NewFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SortFlags = false

	fs.BoolP("audio", "a", false, "fetch audio (default when neither -a nor -v is given)")
	fs.BoolP("video", "v", false, "fetch video")
	fs.BoolP("rickroll", "r", false, "resolve every result to the same well known video")
	fs.StringP("format", "f", "", "extractor format selector; overrides -a and -v")
	fs.BoolP("stream", "s", false, "stream with ranged requests whenever possible (default)")
	fs.BoolP("no-stream", "S", false, "always download the whole item before reading")
	fs.BoolP("debug", "d", false, "debug logging, including FUSE requests")

	fs.StringP("config", "c", "", "configuration file (YAML)")
	fs.Bool("print-config", false, "print the effective configuration and exit")
	fs.Int("per-page", 0, "results per page")
	fs.String("cache-dir", "", "metadata cache directory; empty disables the cache")
	fs.String("temp-dir", "", "directory for downloaded items")
	fs.String("metrics-addr", "", "Prometheus metrics listen address, e.g. :9090")
	fs.String("health-addr", "", "gRPC health listen address, e.g. :9091")
	fs.Bool("allow-other", false, "allow other users to access the mount")
	return fs
}

// flagKeys maps flags to the configuration keys they override.
var flagKeys = map[string]string{
	"audio":        "media.audio",
	"video":        "media.video",
	"rickroll":     "media.rickroll",
	"format":       "media.format",
	"per-page":     "media.results_per_page",
	"temp-dir":     "media.temp_dir",
	"cache-dir":    "cache.dir",
	"metrics-addr": "metrics.addr",
	"health-addr":  "health.addr",
	"allow-other":  "mount.allow_other",
}

func bindFlags(v *viper.Viper, flags *pflag.FlagSet) error {
	for name, key := range flagKeys {
		if f := flags.Lookup(name); f != nil && f.Changed {
			if err := v.BindPFlag(key, f); err != nil {
				return fmt.Errorf("binding flag --%s: %w", name, err)
			}
		}
	}

	stream, _ := flags.GetBool("stream")
	noStream, _ := flags.GetBool("no-stream")
	switch {
	case stream && noStream:
		return fmt.Errorf("%w: -s and -S are mutually exclusive", ErrUsage)
	case stream:
		v.Set("media.stream", true)
	case noStream:
		v.Set("media.stream", false)
	}

	if debug, _ := flags.GetBool("debug"); debug {
		v.Set("logging.level", "DEBUG")
		v.Set("mount.debug", true)
	}

	switch flags.NArg() {
	case 0:
	case 1:
		v.Set("mount.mountpoint", flags.Arg(0))
	default:
		return fmt.Errorf("%w: expected one mountpoint, got %d arguments", ErrUsage, flags.NArg())
	}
	return nil
}
