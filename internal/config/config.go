// Package config loads the ytfs configuration from command line flags,
// YTFS_* environment variables and an optional YAML file.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/shrikrishnaholla/ytfs/internal/cache"
	"github.com/shrikrishnaholla/ytfs/internal/media"
)

// EnvPrefix prefixes every environment variable, e.g. YTFS_MEDIA_FORMAT.
const EnvPrefix = "YTFS"

// Config is the complete ytfs configuration.
//
// Sources, highest precedence first: command line flags, environment
// variables, the configuration file, defaults.
type Config struct {
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Mount   MountConfig   `mapstructure:"mount" yaml:"mount"`
	Media   MediaConfig   `mapstructure:"media" yaml:"media"`

	// Extractor holds the options of the yt-dlp extractor. It is decoded
	// into media.YTDLPOptions by ExtractorOptions.
	Extractor map[string]any `mapstructure:"extractor" yaml:"extractor"`

	Cache   CacheConfig   `mapstructure:"cache" yaml:"cache"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
	Health  HealthConfig  `mapstructure:"health" yaml:"health"`
}

// LoggingConfig controls log output.
type LoggingConfig struct {
	// Level is one of DEBUG, INFO, WARN, ERROR (case-insensitive).
	Level string `mapstructure:"level" yaml:"level" validate:"required,oneof=DEBUG INFO WARN ERROR"`

	// Format is text or json.
	Format string `mapstructure:"format" yaml:"format" validate:"required,oneof=text json"`

	// Output is stdout, stderr or a file path.
	Output string `mapstructure:"output" yaml:"output" validate:"required"`
}

// MountConfig controls the FUSE mount.
type MountConfig struct {
	Mountpoint   string        `mapstructure:"mountpoint" yaml:"mountpoint" validate:"required"`
	AllowOther   bool          `mapstructure:"allow_other" yaml:"allow_other"`
	EntryTimeout time.Duration `mapstructure:"entry_timeout" yaml:"entry_timeout" validate:"gte=0"`
	AttrTimeout  time.Duration `mapstructure:"attr_timeout" yaml:"attr_timeout" validate:"gte=0"`

	// Debug logs every FUSE request.
	Debug bool `mapstructure:"debug" yaml:"debug"`
}

// MediaConfig selects what is fetched for each result.
type MediaConfig struct {
	Audio    bool   `mapstructure:"audio" yaml:"audio"`
	Video    bool   `mapstructure:"video" yaml:"video"`
	Format   string `mapstructure:"format" yaml:"format"`
	Stream   bool   `mapstructure:"stream" yaml:"stream"`
	RickRoll bool   `mapstructure:"rickroll" yaml:"rickroll"`

	ResultsPerPage  int           `mapstructure:"results_per_page" yaml:"results_per_page" validate:"gte=1,lte=1000"`
	TempDir         string        `mapstructure:"temp_dir" yaml:"temp_dir"`
	HTTPTimeout     time.Duration `mapstructure:"http_timeout" yaml:"http_timeout" validate:"gt=0"`
	DownloadTimeout time.Duration `mapstructure:"download_timeout" yaml:"download_timeout" validate:"gt=0"`
}

// CacheConfig controls the metadata cache. An empty Dir disables it.
type CacheConfig struct {
	Dir      string        `mapstructure:"dir" yaml:"dir"`
	MediaTTL time.Duration `mapstructure:"media_ttl" yaml:"media_ttl" validate:"gte=0"`
	PageTTL  time.Duration `mapstructure:"page_ttl" yaml:"page_ttl" validate:"gte=0"`
}

// MetricsConfig controls the Prometheus endpoint. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// HealthConfig controls the gRPC health endpoint. An empty Addr disables it.
type HealthConfig struct {
	Addr string `mapstructure:"addr" yaml:"addr" validate:"omitempty,hostname_port"`
}

// Load builds the configuration from parsed flags, the environment and the
// configuration file named by the --config flag, if any.
func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := bindFlags(v, flags); err != nil {
		return nil, err
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	ApplyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &cfg, nil
}

// MediaOptions converts the media section for the resolver.
func (c *Config) MediaOptions() media.Options {
	m := c.Media
	return media.Options{
		Audio:           m.Audio,
		Video:           m.Video,
		Format:          m.Format,
		Stream:          m.Stream,
		RickRoll:        m.RickRoll,
		ResultsPerPage:  m.ResultsPerPage,
		TempDir:         m.TempDir,
		HTTPTimeout:     m.HTTPTimeout,
		DownloadTimeout: m.DownloadTimeout,
	}
}

// CacheOptions converts the cache section.
func (c *Config) CacheOptions() cache.Options {
	return cache.Options{
		MediaTTL: c.Cache.MediaTTL,
		PageTTL:  c.Cache.PageTTL,
	}
}

// ExtractorOptions decodes the extractor section. Durations may be given
// as strings such as "90s".
func (c *Config) ExtractorOptions() (media.YTDLPOptions, error) {
	var opts media.YTDLPOptions
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &opts,
	})
	if err != nil {
		return opts, fmt.Errorf("failed to create decoder: %w", err)
	}
	if err := decoder.Decode(c.Extractor); err != nil {
		return opts, fmt.Errorf("invalid extractor configuration: %w", err)
	}
	return opts, nil
}

// YAML renders the effective configuration.
func (c *Config) YAML() ([]byte, error) {
	out, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("failed to render config: %w", err)
	}
	return out, nil
}
