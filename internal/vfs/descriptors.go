package vfs

import (
	"fmt"
	"sync"
)

// Binding is what an open descriptor refers to: a resolved result handle,
// or a control file that owns no resource.
type Binding struct {
	// Addr is the address the descriptor was opened with.
	Addr Address

	// Handle is nil for control files.
	Handle Handle
}

// IsControl reports whether the binding belongs to a control file.
func (b Binding) IsControl() bool {
	return b.Handle == nil
}

// DescriptorTable hands out the lowest free non-negative descriptor.
type DescriptorTable struct {
	mu   sync.Mutex
	open map[int]Binding
}

// NewDescriptorTable returns an empty table.
func NewDescriptorTable() *DescriptorTable {
	return &DescriptorTable{open: make(map[int]Binding)}
}

// Allocate binds the lowest unused descriptor to b. It never fails.
func (t *DescriptorTable) Allocate(b Binding) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	fd := 0
	for {
		if _, used := t.open[fd]; !used {
			break
		}
		fd++
	}
	t.open[fd] = b
	return fd
}

// Lookup returns the binding of an open descriptor.
func (t *DescriptorTable) Lookup(fd int) (Binding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.open[fd]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}
	return b, nil
}

// Release frees fd and returns the binding it held. The integer is
// immediately eligible for reuse.
func (t *DescriptorTable) Release(fd int) (Binding, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	b, ok := t.open[fd]
	if !ok {
		return Binding{}, fmt.Errorf("%w: %d", ErrBadDescriptor, fd)
	}
	delete(t.open, fd)
	return b, nil
}

// MoveDir points control descriptors opened under directory from at
// directory to. Result descriptors keep their handle and are left alone.
func (t *DescriptorTable) MoveDir(from, to string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for fd, b := range t.open {
		if b.IsControl() && b.Addr.Dir == from {
			b.Addr.Dir = to
			t.open[fd] = b
		}
	}
}

// Len returns the number of open descriptors.
func (t *DescriptorTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.open)
}
