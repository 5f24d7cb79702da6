package fuse

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"

	"github.com/shrikrishnaholla/ytfs/internal/vfs"
)

const (
	DefaultEntryTimeout = time.Second
	DefaultAttrTimeout  = time.Second
)

// Options configures the mount.
type Options struct {
	// Mountpoint is the directory where the filesystem is mounted. It is
	// created if it does not exist.
	Mountpoint string

	FileSystem *vfs.FileSystem

	// EntryTimeout and AttrTimeout bound how long the kernel caches
	// names and attributes. Zero uses the defaults. Result sizes change
	// once a file is resolved, so long attribute timeouts make freshly
	// opened files look empty.
	EntryTimeout time.Duration
	AttrTimeout  time.Duration

	// AllowOther permits other users to access the mount. Requires
	// user_allow_other in /etc/fuse.conf.
	AllowOther bool

	// Debug logs every FUSE request.
	Debug bool

	Logger *slog.Logger
}

// Mount mounts the filesystem. The caller must call Unmount on the
// returned server when done.
func Mount(options Options) (*fuse.Server, error) {
	if options.Mountpoint == "" {
		return nil, fmt.Errorf("mountpoint is required")
	}
	if options.FileSystem == nil {
		return nil, fmt.Errorf("filesystem is required")
	}
	if options.EntryTimeout == 0 {
		options.EntryTimeout = DefaultEntryTimeout
	}
	if options.AttrTimeout == 0 {
		options.AttrTimeout = DefaultAttrTimeout
	}
	if options.Logger == nil {
		options.Logger = slog.Default()
	}

	if err := os.MkdirAll(options.Mountpoint, 0o755); err != nil {
		return nil, fmt.Errorf("creating mountpoint %s: %w", options.Mountpoint, err)
	}

	root := NewRoot(options.FileSystem, options.Logger)

	// Directories appear through mkdir on this mount, so negative entries
	// are never cached.
	var negativeTimeout time.Duration
	server, err := fs.Mount(options.Mountpoint, root, &fs.Options{
		EntryTimeout:    &options.EntryTimeout,
		AttrTimeout:     &options.AttrTimeout,
		NegativeTimeout: &negativeTimeout,
		MountOptions: fuse.MountOptions{
			FsName:     "ytfs",
			Name:       "ytfs",
			AllowOther: options.AllowOther,
			Debug:      options.Debug,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("mounting FUSE filesystem at %s: %w", options.Mountpoint, err)
	}

	options.Logger.Info("filesystem mounted", "mountpoint", options.Mountpoint)
	return server, nil
}
