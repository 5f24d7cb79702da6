// ytfs - FUSE filesystem that turns directory names into media searches
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/shrikrishnaholla/ytfs/internal/cache"
	"github.com/shrikrishnaholla/ytfs/internal/config"
	ytfuse "github.com/shrikrishnaholla/ytfs/internal/fuse"
	"github.com/shrikrishnaholla/ytfs/internal/health"
	"github.com/shrikrishnaholla/ytfs/internal/media"
	"github.com/shrikrishnaholla/ytfs/internal/metrics"
	"github.com/shrikrishnaholla/ytfs/internal/vfs"
)

var (
	Version   = "dev"
	Commit    = "unknown"
	BuildTime = "unknown"
)

func main() {
	flags := config.NewFlagSet("ytfs")
	showVersion := flags.Bool("version", false, "show version and exit")
	flags.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: ytfs [flags] MOUNTPOINT\n\n")
		fmt.Fprintf(os.Stderr, "Every directory created in MOUNTPOINT is a search; its files are the results.\n")
		fmt.Fprintf(os.Stderr, "Read \" next\" or \" prev\" inside a search directory to change pages.\n\n")
		flags.PrintDefaults()
	}
	if err := flags.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			os.Exit(0)
		}
		os.Exit(2)
	}

	if *showVersion {
		fmt.Printf("ytfs %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
		os.Exit(0)
	}

	cfg, err := config.Load(flags)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ytfs: %v\n", err)
		if errors.Is(err, config.ErrUsage) {
			flags.Usage()
		}
		os.Exit(2)
	}

	if printConfig, _ := flags.GetBool("print-config"); printConfig {
		out, err := cfg.YAML()
		if err != nil {
			fmt.Fprintf(os.Stderr, "ytfs: %v\n", err)
			os.Exit(1)
		}
		os.Stdout.Write(out)
		os.Exit(0)
	}

	logger, closeLog, err := newLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "ytfs: %v\n", err)
		os.Exit(1)
	}
	slog.SetDefault(logger)

	err = run(cfg, logger)
	closeLog()
	if err != nil {
		logger.Error("ytfs failed", "error", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *slog.Logger) error {
	opts := cfg.MediaOptions()
	logger.Info("starting ytfs",
		"version", Version,
		"commit", Commit,
		"mountpoint", cfg.Mount.Mountpoint,
		"format", opts.FormatSelector(),
		"stream", opts.Stream,
		"cache_dir", cfg.Cache.Dir)

	// Metadata cache is optional
	var metaCache *cache.Cache
	if cfg.Cache.Dir != "" {
		if err := os.MkdirAll(cfg.Cache.Dir, 0o755); err != nil {
			return fmt.Errorf("creating cache directory: %w", err)
		}
		c, err := cache.New(cfg.Cache.Dir, cfg.CacheOptions(), logger)
		if err != nil {
			logger.Warn("failed to initialize cache, continuing without cache", "error", err)
		} else {
			metaCache = c
			defer metaCache.Close()
		}
	}

	extractorOpts, err := cfg.ExtractorOptions()
	if err != nil {
		return err
	}
	extractor, err := media.NewYTDLP(extractorOpts, logger)
	if err != nil {
		return err
	}

	resolver := media.NewResolver(opts, extractor, metaCache, logger)
	fsys := vfs.New(resolver, logger)
	defer fsys.Close()

	metrics.Register(nil)
	if cfg.Metrics.Addr != "" {
		srv := metrics.NewServer(cfg.Metrics.Addr, logger)
		srv.Start()
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(ctx)
		}()
	}

	var healthSrv *health.Server
	if cfg.Health.Addr != "" {
		healthSrv, err = health.NewServer(cfg.Health.Addr, logger)
		if err != nil {
			return err
		}
		healthSrv.Start()
		defer healthSrv.Stop()
	}

	server, err := ytfuse.Mount(ytfuse.Options{
		Mountpoint:   cfg.Mount.Mountpoint,
		FileSystem:   fsys,
		EntryTimeout: cfg.Mount.EntryTimeout,
		AttrTimeout:  cfg.Mount.AttrTimeout,
		AllowOther:   cfg.Mount.AllowOther,
		Debug:        cfg.Mount.Debug,
		Logger:       logger,
	})
	if err != nil {
		return err
	}
	if healthSrv != nil {
		healthSrv.SetServing(true)
	}

	// Handle unmount on signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		sig, ok := <-sigCh
		if !ok {
			return
		}
		logger.Info("received signal, unmounting", "signal", sig)
		if healthSrv != nil {
			healthSrv.SetServing(false)
		}
		if err := server.Unmount(); err != nil {
			logger.Error("unmount error", "error", err)
		}
	}()

	// Wait for unmount
	server.Wait()
	if healthSrv != nil {
		healthSrv.SetServing(false)
	}
	logger.Info("filesystem unmounted")
	return nil
}

// newLogger builds the process logger. The returned function closes the
// log file, if one was opened.
func newLogger(cfg config.LoggingConfig) (*slog.Logger, func(), error) {
	var (
		out     io.Writer
		closeFn = func() {}
	)
	switch cfg.Output {
	case "stdout":
		out = os.Stdout
	case "stderr":
		out = os.Stderr
	default:
		f, err := os.OpenFile(cfg.Output, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, nil, fmt.Errorf("opening log file: %w", err)
		}
		out = f
		closeFn = func() { f.Close() }
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, nil, fmt.Errorf("log level %q: %w", cfg.Level, err)
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(out, handlerOpts)
	} else {
		handler = slog.NewTextHandler(out, handlerOpts)
	}
	return slog.New(handler), closeFn, nil
}
