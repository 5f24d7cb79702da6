package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/shrikrishnaholla/ytfs/internal/media"
)

// setDefaults registers defaults that differ from the zero value or that
// must be known for environment overrides of nested keys to apply.
func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "INFO")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stderr")

	v.SetDefault("mount.mountpoint", "")
	v.SetDefault("mount.allow_other", false)
	v.SetDefault("mount.entry_timeout", time.Second)
	v.SetDefault("mount.attr_timeout", time.Second)
	v.SetDefault("mount.debug", false)

	v.SetDefault("media.audio", false)
	v.SetDefault("media.video", false)
	v.SetDefault("media.format", "")
	v.SetDefault("media.stream", true)
	v.SetDefault("media.rickroll", false)
	v.SetDefault("media.results_per_page", media.DefaultResultsPerPage)
	v.SetDefault("media.temp_dir", "")
	v.SetDefault("media.http_timeout", media.DefaultHTTPTimeout)
	v.SetDefault("media.download_timeout", media.DefaultDownloadTimeout)

	v.SetDefault("extractor.binary", "yt-dlp")
	v.SetDefault("extractor.args", "")
	v.SetDefault("extractor.cookies", "")
	v.SetDefault("extractor.proxy", "")
	v.SetDefault("extractor.timeout", "2m")

	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.media_ttl", 2*time.Hour)
	v.SetDefault("cache.page_ttl", 10*time.Minute)

	v.SetDefault("metrics.addr", "")
	v.SetDefault("health.addr", "")
}

// ApplyDefaults fills zero values left by an incomplete configuration and
// normalizes the log level.
func ApplyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "INFO"
	}
	cfg.Logging.Level = strings.ToUpper(cfg.Logging.Level)
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "text"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stderr"
	}

	if cfg.Media.ResultsPerPage == 0 {
		cfg.Media.ResultsPerPage = media.DefaultResultsPerPage
	}
	if cfg.Media.HTTPTimeout == 0 {
		cfg.Media.HTTPTimeout = media.DefaultHTTPTimeout
	}
	if cfg.Media.DownloadTimeout == 0 {
		cfg.Media.DownloadTimeout = media.DefaultDownloadTimeout
	}

	if cfg.Extractor == nil {
		cfg.Extractor = make(map[string]any)
	}
}
