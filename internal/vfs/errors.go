package vfs

import (
	"context"
	"errors"
	"syscall"
)

var (
	ErrInvalidPath      = errors.New("invalid path")
	ErrNotFound         = errors.New("no such file or directory")
	ErrAlreadyExists    = errors.New("already exists")
	ErrNotADirectory    = errors.New("not a directory")
	ErrPermissionDenied = errors.New("operation not permitted")
	ErrInvalidOperation = errors.New("invalid operation")
	ErrReadOnly         = errors.New("read-only filesystem")
	ErrBadDescriptor    = errors.New("bad file descriptor")

	// ErrResolverFailure reports that the resolver could not resolve a
	// result. It is reported as EINVAL at every call site.
	ErrResolverFailure = errors.New("resolver failure")

	// ErrTransport reports that media bytes could not be fetched.
	ErrTransport = errors.New("media transport failure")
)

// Errno maps an error returned by FileSystem to the errno reported to the
// kernel. Unknown errors map to EIO.
func Errno(err error) syscall.Errno {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return syscall.EINTR
	case errors.Is(err, ErrNotFound):
		return syscall.ENOENT
	case errors.Is(err, ErrAlreadyExists):
		return syscall.EEXIST
	case errors.Is(err, ErrNotADirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrPermissionDenied):
		return syscall.EPERM
	case errors.Is(err, ErrReadOnly):
		return syscall.EROFS
	case errors.Is(err, ErrBadDescriptor):
		return syscall.EBADF
	case errors.Is(err, ErrInvalidPath),
		errors.Is(err, ErrInvalidOperation),
		errors.Is(err, ErrResolverFailure):
		return syscall.EINVAL
	default:
		return syscall.EIO
	}
}
