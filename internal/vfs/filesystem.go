package vfs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"syscall"
	"time"
)

// FileSystem binds filesystem calls to the tree, the descriptor table and
// the resolver. Every handler takes the raw path received from the host
// runtime, so invalid paths are rejected before any state is touched.
type FileSystem struct {
	tree   *Tree
	fds    *DescriptorTable
	logger *slog.Logger
	now    func() time.Time
}

// New creates an empty namespace backed by resolver.
func New(resolver Resolver, logger *slog.Logger) *FileSystem {
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "vfs")
	return &FileSystem{
		tree:   NewTree(resolver, logger),
		fds:    NewDescriptorTable(),
		logger: logger,
		now:    time.Now,
	}
}

// Tree exposes the namespace, mainly for inspection.
func (f *FileSystem) Tree() *Tree {
	return f.tree
}

// OpenDescriptors returns the number of live descriptors.
func (f *FileSystem) OpenDescriptors() int {
	return f.fds.Len()
}

// Getattr returns the attributes of path.
func (f *FileSystem) Getattr(path string) (*Attr, error) {
	addr, err := ParseAddress(path)
	if err != nil {
		return nil, err
	}
	if !f.tree.Exists(addr) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}

	now := f.now()
	switch addr.Type() {
	case PathRoot, PathSearchDirectory:
		return directoryAttr(now), nil
	case PathControlFile:
		return controlAttr(now), nil
	case PathResultFile:
		h, err := f.tree.Handle(addr)
		if err != nil {
			return nil, err
		}
		return resultAttr(h.Size(), now), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidPath, path)
	}
}

// Readdir lists the names inside path. Search directories list their
// control files ahead of the results.
func (f *FileSystem) Readdir(path string) ([]string, error) {
	addr, err := ParseAddress(path)
	if err != nil {
		return nil, err
	}

	switch addr.Type() {
	case PathRoot:
		return f.tree.Directories(), nil
	case PathSearchDirectory:
		entries, err := f.tree.Entries(addr.Dir)
		if err != nil {
			return nil, err
		}
		names := make([]string, 0, len(controlNames)+len(entries))
		names = append(names, controlNames...)
		return append(names, entries...), nil
	case PathResultFile:
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, addr)
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}
}

// Mkdir creates a search directory and runs its first search.
func (f *FileSystem) Mkdir(ctx context.Context, path string) error {
	addr, err := ParseAddress(path)
	if err != nil {
		return err
	}
	if addr.Type() != PathSearchDirectory {
		return fmt.Errorf("%w: mkdir %s", ErrPermissionDenied, addr)
	}

	f.logger.Info("search requested", "phrase", addr.Dir)
	return f.tree.Create(ctx, addr.Dir)
}

// Rmdir removes a search directory and releases everything the resolver
// holds for it.
func (f *FileSystem) Rmdir(path string) error {
	addr, err := ParseAddress(path)
	if err != nil {
		return err
	}
	if err := f.tree.Remove(addr); err != nil {
		return err
	}
	f.logger.Info("search removed", "phrase", addr.Dir)
	return nil
}

// Rename renames a search directory by searching again under the new name.
func (f *FileSystem) Rename(ctx context.Context, oldPath, newPath string) error {
	oldAddr, err := ParseAddress(oldPath)
	if err != nil {
		return err
	}
	newAddr, err := ParseAddress(newPath)
	if err != nil {
		return err
	}
	if err := f.tree.Rename(ctx, oldAddr, newAddr); err != nil {
		return err
	}
	f.fds.MoveDir(oldAddr.Dir, newAddr.Dir)
	f.logger.Info("search renamed", "from", oldAddr.Dir, "to", newAddr.Dir)
	return nil
}

// Unlink always succeeds without touching the tree. Results cannot be
// deleted individually, but recursive removal unlinks files before the
// directory and must not fail.
func (f *FileSystem) Unlink(path string) error {
	return nil
}

// Open resolves a result file, or opens a control file, and returns a new
// descriptor. Only read-only access is allowed.
func (f *FileSystem) Open(ctx context.Context, path string, flags int) (int, error) {
	addr, err := ParseAddress(path)
	if err != nil {
		return -1, err
	}

	pt := addr.Type()
	if pt != PathResultFile && pt != PathControlFile {
		return -1, fmt.Errorf("%w: open %s", ErrInvalidOperation, addr)
	}
	if flags&syscall.O_ACCMODE != syscall.O_RDONLY {
		return -1, fmt.Errorf("%w: open %s for writing", ErrReadOnly, addr)
	}
	if !f.tree.Exists(addr) {
		return -1, fmt.Errorf("%w: %s", ErrNotFound, addr)
	}

	if pt == PathControlFile {
		return f.fds.Allocate(Binding{Addr: addr}), nil
	}

	h, err := f.tree.Handle(addr)
	if err != nil {
		return -1, err
	}
	if err := h.Resolve(ctx); err != nil {
		f.logger.Warn("resolve failed", "path", addr.Path(), "error", err)
		return -1, fmt.Errorf("%w: %s: %v", ErrResolverFailure, addr, err)
	}

	fd := f.fds.Allocate(Binding{Addr: addr, Handle: h})
	h.Bind(fd)
	f.logger.Debug("opened", "path", addr.Path(), "fd", fd, "size", h.Size())
	return fd, nil
}

// Read reads from descriptor fd. Control files run their command and
// return the placeholder script.
func (f *FileSystem) Read(ctx context.Context, path string, length int, offset int64, fd int) ([]byte, error) {
	b, err := f.fds.Lookup(fd)
	if err != nil {
		return nil, err
	}

	if !b.IsControl() {
		data, err := b.Handle.Read(ctx, offset, length)
		if err != nil {
			if errors.Is(err, context.Canceled) {
				return nil, err
			}
			return nil, fmt.Errorf("%w: %s: %v", ErrTransport, b.Addr, err)
		}
		return data, nil
	}

	// The descriptor decides the command and directory. The path is only
	// checked against it.
	addr := b.Addr
	if path != "" {
		if p, err := ParseAddress(path); err != nil || p != addr {
			f.logger.Debug("control read path differs from descriptor", "path", path, "descriptor", addr.Path())
		}
	}

	direction := ParseCommand(addr.Entry)
	f.logger.Debug("control command", "path", addr.Path(), "direction", direction)
	if err := f.tree.Paginate(ctx, addr.Dir, direction); err != nil {
		return nil, err
	}
	return controlContent(offset, length), nil
}

// Release frees descriptor fd.
func (f *FileSystem) Release(path string, fd int) error {
	b, err := f.fds.Release(fd)
	if err != nil {
		return err
	}
	if u, ok := b.Handle.(Unbinder); ok {
		u.Unbind(fd)
	}
	return nil
}

// Close releases every search directory.
func (f *FileSystem) Close() {
	f.tree.Close()
}
