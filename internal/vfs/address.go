// Package vfs implements the search-driven virtual namespace served by ytfs:
// path addressing, the directory tree, the descriptor table and the
// filesystem operation handlers that sit between FUSE and the media resolver.
package vfs

import (
	"fmt"
	"strings"
)

// ControlMarker is the leading byte that turns an entry name into a
// control pseudo-file.
const ControlMarker = ' '

// PathType classifies an Address.
type PathType int

const (
	PathInvalid PathType = iota
	PathRoot
	PathSearchDirectory
	PathResultFile
	PathControlFile
)

func (t PathType) String() string {
	switch t {
	case PathRoot:
		return "root"
	case PathSearchDirectory:
		return "directory"
	case PathResultFile:
		return "file"
	case PathControlFile:
		return "control"
	default:
		return "invalid"
	}
}

// Address is the canonical two-level identifier of a path in the namespace.
// An empty component means the component is absent.
type Address struct {
	Dir   string
	Entry string
}

// RootAddress addresses the mount root.
var RootAddress = Address{}

// ParseAddress converts a slash-delimited path into its Address.
//
// Accepted forms are "/", "/dir", "/dir/" and "/dir/entry".
func ParseAddress(path string) (Address, error) {
	if path == "" {
		return Address{}, fmt.Errorf("%w: empty path", ErrInvalidPath)
	}
	if path[0] != '/' {
		return Address{}, fmt.Errorf("%w: %q does not start with '/'", ErrInvalidPath, path)
	}

	parts := strings.Split(path[1:], "/")
	if len(parts) > 2 {
		return Address{}, fmt.Errorf("%w: %q is too deep", ErrInvalidPath, path)
	}

	var addr Address
	addr.Dir = parts[0]
	if len(parts) == 2 {
		// A trailing separator means directory-only.
		addr.Entry = parts[1]
		if addr.Dir == "" {
			return Address{}, fmt.Errorf("%w: %q has an entry without a directory", ErrInvalidPath, path)
		}
	}
	return addr, nil
}

// Type classifies the address. It performs no I/O.
func (a Address) Type() PathType {
	switch {
	case a.Dir == "" && a.Entry == "":
		return PathRoot
	case a.Dir == "":
		return PathInvalid
	case a.Entry == "":
		return PathSearchDirectory
	case a.Entry[0] == ControlMarker:
		return PathControlFile
	default:
		return PathResultFile
	}
}

// Path renders the address back into its canonical path form.
func (a Address) Path() string {
	switch {
	case a.Dir == "":
		return "/"
	case a.Entry == "":
		return "/" + a.Dir
	default:
		return "/" + a.Dir + "/" + a.Entry
	}
}

func (a Address) String() string {
	return a.Path()
}
