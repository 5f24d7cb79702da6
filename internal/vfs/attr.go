package vfs

import (
	"os"
	"syscall"
	"time"
)

const (
	// DirectorySize is the synthetic size reported for directories.
	DirectorySize = 4096

	// BlockSize is the st_blksize reported for every node.
	BlockSize = 512
)

// Attr is a stat record. It is computed on every call and never stored.
type Attr struct {
	Mode    uint32
	Nlink   uint32
	Size    uint64
	Blocks  uint64
	Blksize uint32
	Uid     uint32
	Gid     uint32
	Atime   time.Time
	Mtime   time.Time
	Ctime   time.Time
}

// IsDir reports whether the record describes a directory.
func (a *Attr) IsDir() bool {
	return a.Mode&syscall.S_IFMT == syscall.S_IFDIR
}

func newAttr(mode uint32, nlink uint32, size int64, now time.Time) *Attr {
	if size < 0 {
		size = 0
	}
	return &Attr{
		Mode:    mode,
		Nlink:   nlink,
		Size:    uint64(size),
		Blocks:  (uint64(size) + BlockSize - 1) / BlockSize,
		Blksize: BlockSize,
		Uid:     uint32(os.Getuid()),
		Gid:     uint32(os.Getgid()),
		Atime:   now,
		Mtime:   now,
		Ctime:   now,
	}
}

func directoryAttr(now time.Time) *Attr {
	return newAttr(syscall.S_IFDIR|0o555, 2, DirectorySize, now)
}

func resultAttr(size int64, now time.Time) *Attr {
	return newAttr(syscall.S_IFREG|0o444, 1, size, now)
}

func controlAttr(now time.Time) *Attr {
	return newAttr(syscall.S_IFREG|0o555, 1, ControlScriptSize(), now)
}
