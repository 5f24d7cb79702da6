// Package fuse binds the search namespace to the kernel through go-fuse.
package fuse

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"syscall"
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"golang.org/x/sys/unix"

	"github.com/shrikrishnaholla/ytfs/internal/metrics"
	"github.com/shrikrishnaholla/ytfs/internal/vfs"
)

// Node is one inode of the mounted namespace. Every node delegates to the
// same vfs.FileSystem and only remembers the absolute path it was looked
// up under.
type Node struct {
	fs.Inode

	fsys   *vfs.FileSystem
	logger *slog.Logger

	mu   sync.RWMutex
	path string
}

var (
	_ fs.NodeLookuper  = (*Node)(nil)
	_ fs.NodeGetattrer = (*Node)(nil)
	_ fs.NodeReaddirer = (*Node)(nil)
	_ fs.NodeMkdirer   = (*Node)(nil)
	_ fs.NodeRmdirer   = (*Node)(nil)
	_ fs.NodeUnlinker  = (*Node)(nil)
	_ fs.NodeRenamer   = (*Node)(nil)
	_ fs.NodeOpener    = (*Node)(nil)
	_ fs.NodeReader    = (*Node)(nil)
	_ fs.NodeReleaser  = (*Node)(nil)
	_ fs.NodeStatfser  = (*Node)(nil)
)

var (
	lookupOp  = metrics.NewOperation("Lookup")
	getattrOp = metrics.NewOperation("Getattr")
	readdirOp = metrics.NewOperation("Readdir")
	mkdirOp   = metrics.NewOperation("Mkdir")
	rmdirOp   = metrics.NewOperation("Rmdir")
	unlinkOp  = metrics.NewOperation("Unlink")
	renameOp  = metrics.NewOperation("Rename")
	openOp    = metrics.NewOperation("Open")
	readOp    = metrics.NewOperation("Read")
	releaseOp = metrics.NewOperation("Release")
)

// NewRoot creates the root node of the filesystem.
func NewRoot(fsys *vfs.FileSystem, logger *slog.Logger) *Node {
	if logger == nil {
		logger = slog.Default()
	}
	return &Node{
		fsys:   fsys,
		logger: logger.With("component", "fuse"),
		path:   "/",
	}
}

// Path returns the absolute path of the node.
func (n *Node) Path() string {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.path
}

func (n *Node) setPath(p string) {
	n.mu.Lock()
	n.path = p
	n.mu.Unlock()
}

// movePath sets the path of n and of every descendant already known to the
// kernel, such as looked-up control files.
func (n *Node) movePath(p string) {
	n.setPath(p)
	for name, c := range n.Children() {
		if cn, ok := c.Operations().(*Node); ok {
			cn.movePath(p + "/" + name)
		}
	}
}

func (n *Node) childPath(name string) string {
	p := n.Path()
	if p == "/" {
		return "/" + name
	}
	return p + "/" + name
}

func (n *Node) newChild(ctx context.Context, path string, attr *vfs.Attr) *fs.Inode {
	child := &Node{
		fsys:   n.fsys,
		logger: n.logger,
		path:   path,
	}
	return n.NewInode(ctx, child, fs.StableAttr{
		Mode: attr.Mode & syscall.S_IFMT,
		Ino:  hashPath(path),
	})
}

// recoverPanic keeps a panicking handler from taking the mount down.
func (n *Node) recoverPanic(operation string, errno *syscall.Errno) {
	if r := recover(); r != nil {
		n.logger.Error("panic in filesystem handler",
			"operation", operation,
			"path", n.Path(),
			"panic", fmt.Sprint(r),
			"stack", string(debug.Stack()))
		*errno = syscall.EIO
	}
}

func (n *Node) errno(operation string, err error) syscall.Errno {
	errno := vfs.Errno(err)
	if errno == syscall.EIO {
		n.logger.Warn(operation+" failed", "path", n.Path(), "error", err)
	} else if errno != 0 {
		n.logger.Debug(operation+" failed", "path", n.Path(), "error", err, "errno", unix.ErrnoName(errno))
	}
	return errno
}

// Lookup looks up a child entry in a directory.
func (n *Node) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (_ *fs.Inode, errno syscall.Errno) {
	defer func(start time.Time) { lookupOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Lookup", &errno)

	p := n.childPath(name)
	attr, err := n.fsys.Getattr(p)
	if err != nil {
		return nil, n.errno("lookup", err)
	}
	fillAttr(&out.Attr, attr, hashPath(p))
	return n.newChild(ctx, p, attr), 0
}

// Getattr returns the attributes of the node.
func (n *Node) Getattr(ctx context.Context, f fs.FileHandle, out *fuse.AttrOut) (errno syscall.Errno) {
	defer func(start time.Time) { getattrOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Getattr", &errno)

	p := n.Path()
	attr, err := n.fsys.Getattr(p)
	if err != nil {
		return n.errno("getattr", err)
	}
	fillAttr(&out.Attr, attr, hashPath(p))
	return 0
}

// Readdir lists the directory. The bridge adds "." and "..".
func (n *Node) Readdir(ctx context.Context) (_ fs.DirStream, errno syscall.Errno) {
	defer func(start time.Time) { readdirOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Readdir", &errno)

	p := n.Path()
	names, err := n.fsys.Readdir(p)
	if err != nil {
		return nil, n.errno("readdir", err)
	}

	mode := uint32(syscall.S_IFREG)
	if p == "/" {
		mode = syscall.S_IFDIR
	}
	entries := make([]fuse.DirEntry, 0, len(names))
	for _, name := range names {
		entries = append(entries, fuse.DirEntry{
			Name: name,
			Mode: mode,
			Ino:  hashPath(n.childPath(name)),
		})
	}
	return fs.NewListDirStream(entries), 0
}

// Mkdir starts a new search named after the directory.
func (n *Node) Mkdir(ctx context.Context, name string, mode uint32, out *fuse.EntryOut) (_ *fs.Inode, errno syscall.Errno) {
	defer func(start time.Time) { mkdirOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Mkdir", &errno)

	p := n.childPath(name)
	if err := n.fsys.Mkdir(ctx, p); err != nil {
		return nil, n.errno("mkdir", err)
	}
	attr, err := n.fsys.Getattr(p)
	if err != nil {
		return nil, n.errno("mkdir", err)
	}
	fillAttr(&out.Attr, attr, hashPath(p))
	n.countDirectories()
	return n.newChild(ctx, p, attr), 0
}

func (n *Node) Rmdir(ctx context.Context, name string) (errno syscall.Errno) {
	defer func(start time.Time) { rmdirOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Rmdir", &errno)

	if err := n.fsys.Rmdir(n.childPath(name)); err != nil {
		return n.errno("rmdir", err)
	}
	n.countDirectories()
	return 0
}

func (n *Node) Unlink(ctx context.Context, name string) (errno syscall.Errno) {
	defer func(start time.Time) { unlinkOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Unlink", &errno)

	return n.errno("unlink", n.fsys.Unlink(n.childPath(name)))
}

// Rename renames a search directory. go-fuse moves the child inode after
// a successful rename, so the child and its descendants learn their new
// paths here.
func (n *Node) Rename(ctx context.Context, name string, newParent fs.InodeEmbedder, newName string, flags uint32) (errno syscall.Errno) {
	defer func(start time.Time) { renameOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Rename", &errno)

	if flags&unix.RENAME_EXCHANGE != 0 {
		return syscall.EINVAL
	}
	parent, ok := newParent.(*Node)
	if !ok {
		return syscall.EXDEV
	}

	oldPath := n.childPath(name)
	newPath := parent.childPath(newName)
	if err := n.fsys.Rename(ctx, oldPath, newPath); err != nil {
		return n.errno("rename", err)
	}

	if child := n.GetChild(name); child != nil {
		if cn, ok := child.Operations().(*Node); ok {
			cn.movePath(newPath)
		}
	}
	n.countDirectories()
	return 0
}

// Open opens a result or control file. Result files are served with
// direct I/O since their size is unknown until resolved. Control files go
// through the page cache so that one cat triggers one command.
func (n *Node) Open(ctx context.Context, flags uint32) (_ fs.FileHandle, _ uint32, errno syscall.Errno) {
	defer func(start time.Time) { openOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Open", &errno)

	p := n.Path()
	fd, err := n.fsys.Open(ctx, p, int(flags))
	if err != nil {
		return nil, 0, n.errno("open", err)
	}
	metrics.SetOpenDescriptors(n.fsys.OpenDescriptors())

	var fuseFlags uint32
	if addr, err := vfs.ParseAddress(p); err == nil && addr.Type() == vfs.PathResultFile {
		fuseFlags = fuse.FOPEN_DIRECT_IO
	}
	n.logger.Debug("open", "path", p, "fd", fd)
	return &fileHandle{fd: fd}, fuseFlags, 0
}

// Read reads through the descriptor allocated by Open.
func (n *Node) Read(ctx context.Context, f fs.FileHandle, dest []byte, off int64) (_ fuse.ReadResult, errno syscall.Errno) {
	defer func(start time.Time) { readOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Read", &errno)

	fh, ok := f.(*fileHandle)
	if !ok {
		return nil, syscall.EBADF
	}
	data, err := n.fsys.Read(ctx, n.Path(), len(dest), off, fh.fd)
	if err != nil {
		return nil, n.errno("read", err)
	}
	return fuse.ReadResultData(data), 0
}

// Release frees the descriptor allocated by Open.
func (n *Node) Release(ctx context.Context, f fs.FileHandle) (errno syscall.Errno) {
	defer func(start time.Time) { releaseOp.Observe(errno, start) }(time.Now())
	defer n.recoverPanic("Release", &errno)

	fh, ok := f.(*fileHandle)
	if !ok {
		return syscall.EBADF
	}
	if err := n.fsys.Release(n.Path(), fh.fd); err != nil {
		return n.errno("release", err)
	}
	metrics.SetOpenDescriptors(n.fsys.OpenDescriptors())
	return 0
}

// Statfs reports a filesystem with no free space.
func (n *Node) Statfs(ctx context.Context, out *fuse.StatfsOut) syscall.Errno {
	out.Bsize = vfs.BlockSize
	out.Frsize = vfs.BlockSize
	out.NameLen = 255
	out.Files = uint64(len(n.fsys.Tree().Directories()))
	return 0
}

func (n *Node) countDirectories() {
	metrics.SetSearchDirectories(len(n.fsys.Tree().Directories()))
}

// fileHandle carries the descriptor allocated by vfs.FileSystem.Open.
type fileHandle struct {
	fd int
}

func fillAttr(out *fuse.Attr, attr *vfs.Attr, ino uint64) {
	out.Ino = ino
	out.Mode = attr.Mode
	out.Nlink = attr.Nlink
	out.Size = attr.Size
	out.Blocks = attr.Blocks
	out.Blksize = attr.Blksize
	out.Owner = fuse.Owner{Uid: attr.Uid, Gid: attr.Gid}
	out.SetTimes(&attr.Atime, &attr.Mtime, &attr.Ctime)
}

// hashPath creates a stable inode number from a path.
func hashPath(path string) uint64 {
	if path == "/" {
		return fuse.FUSE_ROOT_ID
	}
	h := uint64(14695981039346656037) // FNV offset basis
	for _, c := range []byte(path) {
		h ^= uint64(c)
		h *= 1099511628211 // FNV prime
	}
	return h
}
